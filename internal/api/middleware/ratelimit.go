package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/loglens/loglens/internal/ratelimit"
	pkgmw "github.com/loglens/loglens/pkg/middleware"
)

// RateObserver counts rejected requests.
type RateObserver interface {
	ObserveRateLimited(route string)
}

// RateLimit admits at most the limiter's quota per authenticated identity.
// It must run after APIKeyAuth: requests without an identity (public routes)
// pass through and never consume a unit.
func RateLimit(l ratelimit.Limiter, observer RateObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := pkgmw.GetIdentity(r.Context())
			if identity == nil {
				next.ServeHTTP(w, r)
				return
			}

			d := l.Allow(r.Context(), identity.Subject)
			applyRateHeaders(w, d)
			if !d.Allowed {
				route := routePattern(r)
				if observer != nil {
					observer.ObserveRateLimited(route)
				}
				log.Info().Str("subject", identity.Subject).Str("route", route).Msg("Rate limit exceeded")
				respondRateLimited(w, d.RetryAfter(time.Now()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func applyRateHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	if d.Limit <= 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining()))
	if !d.ResetAt.IsZero() {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	}
}

func respondRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int(retryAfter / time.Second)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]any{
		"error":      "rate_limited",
		"retryAfter": secs,
	})
}

// routePattern returns the matched chi pattern, falling back to the path.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
