package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/arbplane/arbplane/internal/server/handler"
	"github.com/arbplane/arbplane/internal/server/middleware"
)

// EngineConfig holds the execution engine HTTP server's configuration.
type EngineConfig struct {
	Port int
}

// NewEngineServer builds the execution engine's minimal HTTP surface:
// unauthenticated health/live/ready plus an optional Prometheus /metrics
// handler.
func NewEngineServer(cfg EngineConfig, h *handler.EngineHandler, metrics http.Handler, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /health/live", h.Live)
	mux.HandleFunc("GET /health/ready", h.Ready)

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
