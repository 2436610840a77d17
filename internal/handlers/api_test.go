package handlers_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/AnshRaj112/taskverse-backend/internal/auth"
	"github.com/AnshRaj112/taskverse-backend/internal/handlers"
	"github.com/AnshRaj112/taskverse-backend/internal/middleware"
	"github.com/AnshRaj112/taskverse-backend/internal/models"
	"github.com/AnshRaj112/taskverse-backend/internal/ranking"
	"github.com/AnshRaj112/taskverse-backend/internal/routes"
	"github.com/AnshRaj112/taskverse-backend/internal/services"
	"github.com/AnshRaj112/taskverse-backend/internal/store"
	"github.com/AnshRaj112/taskverse-backend/pkg/utils"
)

const adminEmail = "boss@example.com"

type harness struct {
	t       *testing.T
	mem     *store.Memory
	auth    *auth.Service
	router  http.Handler
	gateway *handlers.Gateway
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newLoggedHarness(t, zap.NewNop())
}

func newLoggedHarness(t *testing.T, logger *zap.Logger) *harness {
	t.Helper()
	rules := store.NewRules([]string{adminEmail})
	mem := store.NewMemory(rules)
	guarded := store.NewGuard(mem, nil)

	cipher, err := utils.NewCipher(base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32))))
	require.NoError(t, err)

	authSvc := auth.NewService(newMemAccounts(), newMemSessions(),
		auth.NewTokenManager("test-secret", "taskverse"), auth.NewLogMailer(logger),
		auth.Options{FrontendURL: "http://localhost:3000", Logger: logger})

	now := services.Clock(time.Now)
	settings := services.NewSettings(guarded, services.NewCacheService(nil, 0), logger)
	play := services.NewPlay(guarded, settings, now, logger)
	audit := services.NewDenialAudit(nil, logger, now)

	api := &handlers.API{
		Auth:         authSvc,
		Store:        guarded,
		Wallet:       services.NewWallet(guarded, settings, cipher, now, logger),
		Play:         play,
		Submissions:  services.NewSubmissions(guarded, play, now, logger),
		Admin:        services.NewAdmin(guarded, now, logger),
		Settings:     settings,
		Audit:        audit,
		Personalizer: ranking.NewPersonalizer(nil, logger),
		Logger:       logger,
	}
	gateway := handlers.NewGateway(mem, authSvc, audit, handlers.GatewayOptions{Logger: logger})

	r := chi.NewRouter()
	routes.SetupRoutes(r, api, gateway, middleware.Authenticate(authSvc, mem, logger))
	return &harness{t: t, mem: mem, auth: authSvc, router: r, gateway: gateway}
}

// signUp registers an account and returns its uid and session token.
func (h *harness) signUp(email string) (string, string) {
	h.t.Helper()
	p, token, err := h.auth.CreateAccount(context.Background(), email, "correct-horse", "")
	require.NoError(h.t, err)
	return p.UID, token
}

// seedProfile writes the profile a live session would have provisioned.
func (h *harness) seedProfile(uid, email, role string, balance float64) {
	h.t.Helper()
	require.NoError(h.t, h.mem.Create(store.SystemContext(context.Background()), store.UserPath(uid), store.Record{
		"id": uid, "name": "player", "email": email, "role": role, "level": 1, "walletBalance": balance,
	}))
}

func (h *harness) profile(uid string) models.UserProfile {
	h.t.Helper()
	rec, err := h.mem.GetOne(store.SystemContext(context.Background()), store.UserPath(uid))
	require.NoError(h.t, err)
	require.NotNil(h.t, rec)
	var u models.UserProfile
	require.NoError(h.t, store.Decode(rec, &u))
	return u
}

func (h *harness) do(method, path, token string, body any) (int, map[string]any) {
	h.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(h.t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func TestSignupSigninAndMe(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(http.MethodPost, "/api/auth/signup", "", handlers.SignupRequest{
		Email: "Ada@Example.com", Password: "correct-horse", DisplayName: "Ada",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, true, body["success"])
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	status, body = h.do(http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	user := body["user"].(map[string]any)
	assert.Equal(t, "ada@example.com", user["email"])
	assert.Nil(t, body["profile"])

	status, body = h.do(http.MethodPost, "/api/auth/signin", "", handlers.SigninRequest{
		Email: "ada@example.com", Password: "correct-horse",
	})
	assert.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["token"])

	status, body = h.do(http.MethodPost, "/api/auth/signin", "", handlers.SigninRequest{
		Email: "ada@example.com", Password: "wrong-horse",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, false, body["success"])
}

func TestSignupValidation(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(http.MethodPost, "/api/auth/signup", "", handlers.SignupRequest{
		Email: "ada@example.com", Password: "short",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "password", body["field"])

	h.signUp("taken@example.com")
	status, _ = h.do(http.MethodPost, "/api/auth/signup", "", handlers.SignupRequest{
		Email: "taken@example.com", Password: "correct-horse",
	})
	assert.Equal(t, http.StatusConflict, status)
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(http.MethodGet, "/api/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, false, body["success"])

	status, _ = h.do(http.MethodGet, "/api/tasks", "tok-unknown", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestDepositCreditsWallet(t *testing.T) {
	h := newHarness(t)
	uid, token := h.signUp("ada@example.com")
	h.seedProfile(uid, "ada@example.com", models.RoleUser, 0)

	status, body := h.do(http.MethodPost, "/api/wallet/deposit", token, handlers.DepositRequest{Amount: 25.5, Method: "card"})
	require.Equal(t, http.StatusCreated, status)
	tx := body["transaction"].(map[string]any)
	assert.Equal(t, 25.5, tx["amount"])
	assert.Equal(t, 25.5, h.profile(uid).WalletBalance)

	status, body = h.do(http.MethodGet, "/api/wallet/transactions", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["total"])

	status, _ = h.do(http.MethodPost, "/api/wallet/deposit", token, handlers.DepositRequest{Amount: -5})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = h.do(http.MethodPost, "/api/wallet/deposit", token, "{")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid request body", body["message"])
}

func TestUpdateProfile(t *testing.T) {
	h := newHarness(t)
	uid, token := h.signUp("ada@example.com")
	h.seedProfile(uid, "ada@example.com", models.RoleUser, 0)

	name, country := "  Ada L  ", "PE"
	status, _ := h.do(http.MethodPut, "/api/profile", token, handlers.UpdateProfileRequest{Name: &name, Country: &country})
	require.Equal(t, http.StatusOK, status)
	u := h.profile(uid)
	assert.Equal(t, "Ada L", u.Name)
	assert.Equal(t, "PE", u.Country)

	status, body := h.do(http.MethodPut, "/api/profile", token, handlers.UpdateProfileRequest{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Nothing to update", body["message"])
}

func TestNonAdminGetsPermissionContext(t *testing.T) {
	h := newHarness(t)
	uid, token := h.signUp("ada@example.com")
	h.seedProfile(uid, "ada@example.com", models.RoleUser, 0)

	status, body := h.do(http.MethodGet, "/api/admin/users", token, nil)
	require.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, false, body["success"])
	perm := body["permission"].(map[string]any)
	assert.Equal(t, store.CollectionUsers, perm["path"])
	assert.Equal(t, string(models.OpReadMany), perm["operation"])

	status, body = h.do(http.MethodGet, "/api/admin/denials", token, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Admin access required", body["message"])
}

func TestRESTDenialIsAuditedOnce(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	h := newLoggedHarness(t, zap.New(core))
	uid, token := h.signUp("ada@example.com")
	h.seedProfile(uid, "ada@example.com", models.RoleUser, 0)

	status, _ := h.do(http.MethodGet, "/api/admin/users", token, nil)
	require.Equal(t, http.StatusForbidden, status)

	denials := logs.FilterMessage("Permission denied").All()
	require.Len(t, denials, 1)
	fields := denials[0].ContextMap()
	assert.Equal(t, uid, fields["uid"])
	assert.Equal(t, store.CollectionUsers, fields["path"])
	assert.Equal(t, string(models.OpReadMany), fields["operation"])
}

func TestAdminListsUsers(t *testing.T) {
	h := newHarness(t)
	adminUID, adminToken := h.signUp(adminEmail)
	h.seedProfile(adminUID, adminEmail, models.RoleAdmin, 0)
	uid, _ := h.signUp("ada@example.com")
	h.seedProfile(uid, "ada@example.com", models.RoleUser, 0)

	status, body := h.do(http.MethodGet, "/api/admin/users", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body["total"])

	status, body = h.do(http.MethodPut, "/api/admin/users/"+uid+"/level", adminToken, handlers.SetLevelRequest{Level: 3})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, 3, h.profile(uid).Level)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}
