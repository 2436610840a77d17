package middleware

import (
	"net/http"

	"golang.org/x/time/rate"

	"github.com/AnshRaj112/taskverse-backend/internal/store"
	"github.com/AnshRaj112/taskverse-backend/pkg/clientip"
)

// Personalized task ordering calls the ranking model, so it gets its own
// budget: signed-in callers 6 req/min burst 3, anonymous clients per IP
// 2 req/min burst 1.
const (
	rankingAuthRPS   = 0.1
	rankingAuthBurst = 3
	rankingAnonRPS   = 1.0 / 30
	rankingAnonBurst = 1
)

// CallerRateLimit limits per caller uid when the request is authenticated and
// per IP otherwise. Mount after Authenticate.
func CallerRateLimit(authenticated, anonymous *LimiterSet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var ok bool
			if caller, signedIn := store.CallerFrom(r.Context()); signedIn {
				ok = authenticated.Allow("uid:" + caller.UID)
			} else {
				ok = anonymous.Allow("ip:" + clientip.RealClientIP(r))
			}
			if !ok {
				tooManyRequests(w, "Too many requests. Please slow down.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RankingRateLimit is CallerRateLimit with the ranking budgets.
func RankingRateLimit() func(http.Handler) http.Handler {
	return CallerRateLimit(
		NewLimiterSet(rate.Limit(rankingAuthRPS), rankingAuthBurst),
		NewLimiterSet(rate.Limit(rankingAnonRPS), rankingAnonBurst),
	)
}
