package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/arbplane/arbplane/internal/domain"
	"github.com/arbplane/arbplane/internal/server/handler"
	"github.com/arbplane/arbplane/internal/server/middleware"
)

// CoordinatorConfig holds the coordinator HTTP server's configuration.
type CoordinatorConfig struct {
	Port   int
	APIKey string
}

// NewCoordinatorServer builds the coordinator's HTTP surface, chaining auth,
// authorization, and rate-limit middleware in that order for the mutating
// routes. metrics is the Prometheus /metrics handler (distinct from the
// coordinator's own JSON /api/metrics endpoint).
func NewCoordinatorServer(cfg CoordinatorConfig, h *handler.CoordinatorHandler, limiter domain.RateLimiter, metrics http.Handler, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health)
	mux.HandleFunc("GET /api/health/live", h.Live)
	mux.HandleFunc("GET /api/health/ready", h.Ready)

	authorized := func(next http.HandlerFunc) http.Handler {
		var hh http.Handler = next
		hh = middleware.Authorize()(hh)
		hh = middleware.Auth(cfg.APIKey)(hh)
		return hh
	}

	mux.Handle("GET /api/metrics", authorized(h.Metrics))
	mux.Handle("GET /api/services", authorized(h.Services))
	mux.Handle("GET /api/opportunities", authorized(h.Opportunities))
	mux.Handle("GET /api/alerts", authorized(h.Alerts))
	mux.Handle("GET /api/leader", authorized(h.Leader))

	rateLimited := func(next http.HandlerFunc, limit int, window time.Duration) http.Handler {
		var hh http.Handler = next
		hh = middleware.RateLimit(limiter, limit, window)(hh)
		hh = middleware.Authorize()(hh)
		hh = middleware.Auth(cfg.APIKey)(hh)
		return hh
	}

	mux.Handle("POST /api/services/{service}/restart", rateLimited(h.RestartService, 5, 15*time.Minute))
	mux.Handle("POST /api/alerts/{alert}/acknowledge", rateLimited(h.AcknowledgeAlert, 5, 15*time.Minute))

	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      middleware.Logging(logger)(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, mux: mux, logger: logger}
}
