// Package handlers exposes the platform over HTTP: JSON endpoints for one-shot
// operations and a WebSocket gateway for live bindings. Every JSON response
// uses the {"success": bool, "message": string, ...} envelope.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/AnshRaj112/taskverse-backend/internal/auth"
	"github.com/AnshRaj112/taskverse-backend/internal/middleware"
	"github.com/AnshRaj112/taskverse-backend/internal/models"
	"github.com/AnshRaj112/taskverse-backend/internal/ranking"
	"github.com/AnshRaj112/taskverse-backend/internal/services"
	"github.com/AnshRaj112/taskverse-backend/internal/store"
	"github.com/AnshRaj112/taskverse-backend/pkg/utils"
)

const maxBodyBytes = 1 << 20

// API holds the dependencies of the JSON handlers. Avatars, Blocklist and
// Audit may be nil when their backing service is not configured.
type API struct {
	Auth         *auth.Service
	Store        services.Store // guarded store
	Wallet       *services.Wallet
	Play         *services.Play
	Submissions  *services.Submissions
	Admin        *services.Admin
	Settings     *services.Settings
	Avatars      *services.AvatarService
	Audit        *services.DenialAudit
	Personalizer *ranking.Personalizer
	Blocklist    *middleware.RedisRateLimiter
	Logger       *zap.Logger
}

type envelope map[string]any

func nowUTC() time.Time { return time.Now().UTC() }

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, status int, message string, fields envelope) {
	body := envelope{"success": true}
	if message != "" {
		body["message"] = message
	}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, status, body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{"success": false, "message": message})
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return fallback
	}
	return v
}

// principal returns the signed-in principal. Routes behind RequireAuth always
// have one.
func principal(r *http.Request) *models.Principal {
	p, _ := middleware.PrincipalFrom(r.Context())
	if p == nil {
		return &models.Principal{}
	}
	return p
}

// requireAdmin guards endpoints that do not go through the store rules.
func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if c, ok := store.CallerFrom(r.Context()); ok && c.IsAdmin() {
		return true
	}
	writeError(w, http.StatusForbidden, "Admin access required")
	return false
}

var badRequestErrors = []error{
	services.ErrInvalidAmount,
	services.ErrBelowMinimum,
	services.ErrInvalidInput,
	store.ErrInvalidPath,
	auth.ErrInvalidToken,
}

var conflictErrors = []error{
	services.ErrInsufficientFunds,
	services.ErrAttemptLimit,
	services.ErrLevelTooLow,
	services.ErrTaskInactive,
	services.ErrManualTask,
	services.ErrNotManualTask,
	services.ErrAlreadyVisited,
	services.ErrAlreadyCheckedIn,
	services.ErrAlreadyReviewed,
	auth.ErrEmailTaken,
	store.ErrConflict,
}

// fail maps a service error onto a status code and the envelope. Permission
// denials carry their context so clients can show what was refused, and are
// recorded in the denial audit.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	var permErr *models.PermissionError
	if errors.As(err, &permErr) {
		if a.Audit != nil {
			var uid string
			if c, ok := store.CallerFrom(r.Context()); ok {
				uid = c.UID
			}
			a.Audit.Record(services.DenialEntry{PermissionContext: permErr.Context(), UID: uid, At: nowUTC()})
		}
		writeJSON(w, http.StatusForbidden, envelope{
			"success":    false,
			"message":    permErr.Error(),
			"permission": permErr.Context(),
		})
		return
	}

	var validationErr *utils.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, envelope{
			"success": false,
			"message": validationErr.Message,
			"field":   validationErr.Field,
		})
		return
	case errors.Is(err, models.ErrNotFound), errors.Is(err, auth.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "Not found")
		return
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrSessionNotFound):
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
	}

	a.Logger.Error("Request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

// Health reports liveness.
func Health(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}
