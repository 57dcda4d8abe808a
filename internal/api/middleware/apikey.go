package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/loglens/loglens/internal/auth"
	pkgmw "github.com/loglens/loglens/pkg/middleware"
)

// AuthObserver counts rejected requests.
type AuthObserver interface {
	ObserveAuthFailure(reason string)
}

// APIKeyAuth is middleware that validates API key authentication.
//
// Every route except the public ones must carry a key matching a
// configured hash, via:
//   - the configured header (X-API-Key by default)
//   - Authorization: Bearer <key>
//   - the api_key query parameter (websocket clients)
//
// With no hashes configured every protected request is rejected.
type APIKeyAuth struct {
	verifier *auth.Verifier
	header   string
	observer AuthObserver
}

// NewAPIKeyAuth creates the middleware. observer may be nil.
func NewAPIKeyAuth(v *auth.Verifier, header string, observer AuthObserver) *APIKeyAuth {
	if header == "" {
		header = "X-API-Key"
	}
	if !v.Enabled() {
		log.Warn().Msg("No API key hashes configured; all protected routes will return 401")
	}
	return &APIKeyAuth{verifier: v, header: header, observer: observer}
}

// Middleware returns an http.Handler middleware that enforces API key auth
// and stores the resulting Identity in the request context.
func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := a.verifier.Authenticate(r, a.header)
		if err != nil {
			reason := "invalid"
			msg := "Invalid API key."
			if errors.Is(err, auth.ErrMissingKey) {
				reason = "missing"
				msg = "API key required. Set " + a.header + " or Authorization: Bearer <key> header."
			}
			if a.observer != nil {
				a.observer.ObserveAuthFailure(reason)
			}
			log.Debug().Str("path", r.URL.Path).Str("reason", reason).Msg("Authentication failed")
			respondUnauthorized(w, msg)
			return
		}

		next.ServeHTTP(w, r.WithContext(pkgmw.SetIdentity(r.Context(), identity)))
	})
}

func isPublicPath(path string) bool {
	switch path {
	case "/health", "/version", "/metrics":
		return true
	}
	return false
}

func respondUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="loglens"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": msg,
	})
}
