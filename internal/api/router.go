package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/loglens/loglens/internal/api/handlers"
	"github.com/loglens/loglens/internal/api/middleware"
	"github.com/loglens/loglens/internal/config"
	"github.com/loglens/loglens/internal/metrics"
	"github.com/loglens/loglens/internal/ratelimit"
)

// Options carries the gateway's cross-cutting dependencies.
type Options struct {
	Auth    *middleware.APIKeyAuth
	Limiter ratelimit.Limiter
	Metrics *metrics.Metrics
}

// NewRouter creates the HTTP router with all gateway routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers, opts Options) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	if opts.Metrics != nil {
		r.Use(middleware.Metrics(opts.Metrics))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins(cfg),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   allowedHeaders(cfg),
		ExposedHeaders:   []string{"X-Request-Id", "X-Trace-Id", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(opts.Auth.Middleware)
		if opts.Limiter != nil {
			var observer middleware.RateObserver
			if opts.Metrics != nil {
				observer = opts.Metrics
			}
			r.Use(middleware.RateLimit(opts.Limiter, observer))
		}

		r.Get("/status", h.Status)
		r.Post("/chat", h.Chat)
		r.Post("/switch-provider", h.SwitchProvider)
		r.Post("/summarize", h.Summarize)
		r.Get("/summaries", h.Summaries)
		r.Get("/logs", h.Logs)
		r.Get("/ws/summaries", h.StreamSummaries)
	})

	return r
}

func corsOrigins(cfg *config.Config) []string {
	if len(cfg.CORSOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSOrigins
}

func allowedHeaders(cfg *config.Config) []string {
	headers := []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"}
	if h := cfg.Auth.Header; h != "" && h != "X-API-Key" && h != "Authorization" {
		headers = append(headers, h)
	}
	return headers
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "loglens",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "loglens",
		})
	}
}
