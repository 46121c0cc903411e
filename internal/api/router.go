/**
 * @description
 * HTTP router setup for the gifting service using go-chi/chi.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig carries what the router needs beyond the handlers.
type RouterConfig struct {
	InternalAPIKey string
	Keys           *JWKSCache
	Roles          RoleChecker
	Gatherer       prometheus.Gatherer
	// RequestTimeout bounds ordinary requests. Defaults to 60s.
	RequestTimeout time.Duration
}

// NewRouter creates a new Chi router and registers the gifting routes.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("healthy"))
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(cfg.InternalAPIKey))

		// A full reveal pass can run far longer than the request timeout.
		r.Post("/surprise-reveal-pass", h.handleRevealPass)

		r.With(middleware.Timeout(timeout)).Post("/reciprocity-notify", h.handleReciprocityNotify)
	})

	r.Route("/admin/imbalance-alerts", func(r chi.Router) {
		r.Use(ClerkAuthMiddleware(cfg.Keys))
		r.Use(RequireRole(cfg.Roles, "admin", h.logger))

		// The event stream outlives the request timeout.
		r.Get("/events", h.handleAlertEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(timeout))
			r.Get("/", h.handleListAlerts)
			r.Get("/stats", h.handleAlertStats)
			r.Post("/{id}/review", h.handleReviewAlert)
			r.Patch("/{id}", h.handleUpdateAlert)
		})
	})

	return r
}
