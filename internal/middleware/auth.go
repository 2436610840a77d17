package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/AnshRaj112/taskverse-backend/internal/models"
	"github.com/AnshRaj112/taskverse-backend/internal/store"
)

// SessionResolver turns a bearer token into the signed-in principal.
type SessionResolver interface {
	PrincipalForSession(ctx context.Context, token string) (*models.Principal, error)
}

type principalKey struct{}

// PrincipalFrom returns the principal Authenticate attached, if any.
func PrincipalFrom(ctx context.Context) (*models.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*models.Principal)
	return p, ok && p != nil
}

// WithPrincipal attaches p; handlers tests use it to skip token resolution.
func WithPrincipal(ctx context.Context, p *models.Principal, role string) context.Context {
	ctx = context.WithValue(ctx, principalKey{}, p)
	return store.WithCaller(ctx, store.Caller{UID: p.UID, Email: p.Email, Role: role})
}

// BearerToken reads "Authorization: Bearer <token>", falling back to the
// token query parameter for browser WebSocket clients.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// Authenticate resolves the bearer token, when one is sent, and attaches the
// principal and the store caller. The caller's role comes from the stored
// profile; a principal without a profile yet is a plain user. Requests
// without a token pass through anonymous.
func Authenticate(resolver SessionResolver, s store.Store, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			p, err := resolver.PrincipalForSession(r.Context(), token)
			if err != nil {
				logger.Debug("Session rejected", zap.Error(err))
				unauthorized(w, "Invalid or expired session")
				return
			}

			role := models.RoleUser
			rec, err := s.GetOne(store.SystemContext(r.Context()), store.UserPath(p.UID))
			if err != nil {
				logger.Error("Failed to load caller profile", zap.String("uid", p.UID), zap.Error(err))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"success":false,"message":"Internal server error"}`))
				return
			}
			if stored, ok := rec["role"].(string); ok && stored != "" {
				role = stored
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p, role)))
		})
	}
}

// RequireAuth rejects anonymous requests. Mount after Authenticate.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFrom(r.Context()); !ok {
			unauthorized(w, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"success":false,"message":"` + message + `"}`))
}
