package handler

import (
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/arbplane/arbplane/internal/coordinator"
	"github.com/arbplane/arbplane/internal/domain"
	"github.com/arbplane/arbplane/internal/server/middleware"
)

// serviceNamePattern restricts restart/acknowledge path parameters to a
// conservative identifier charset before they reach the allow-list lookup.
var serviceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// CoordinatorHandler serves the coordinator's read/admin HTTP surface.
type CoordinatorHandler struct {
	coord       *coordinator.Coordinator
	isLeader    func() bool
	instanceID  string
	allowedSvcs map[string]bool
	restart     func(service string) error
	history     func(limit int) []domain.Alert
	logger      *slog.Logger
}

// NewCoordinatorHandler creates a CoordinatorHandler. restart performs the
// actual per-service restart side effect (e.g. signaling an orchestrator);
// allowedServices names the services /restart may target; history returns
// the notifier's bounded alert history.
func NewCoordinatorHandler(coord *coordinator.Coordinator, isLeader func() bool, instanceID string, allowedServices []string, restart func(service string) error, history func(limit int) []domain.Alert, logger *slog.Logger) *CoordinatorHandler {
	allowed := make(map[string]bool, len(allowedServices))
	for _, s := range allowedServices {
		allowed[s] = true
	}
	return &CoordinatorHandler{
		coord:       coord,
		isLeader:    isLeader,
		instanceID:  instanceID,
		allowedSvcs: allowed,
		restart:     restart,
		history:     history,
		logger:      logger.With(slog.String("handler", "coordinator")),
	}
}

// Alerts handles GET /api/alerts: the notifier's bounded recent-alert
// history, newest first.
func (h *CoordinatorHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	limit := 100
	writeJSON(w, http.StatusOK, h.history(limit))
}

// Health handles GET /api/health. Unauthenticated; enriches the response
// with leader/instance/service details if a validated identity is present.
func (h *CoordinatorHandler) Health(w http.ResponseWriter, r *http.Request) {
	systemHealth := h.coord.SystemHealth()
	status := "degraded"
	if systemHealth >= 50 {
		status = "healthy"
	}

	body := map[string]any{
		"status":       status,
		"systemHealth": systemHealth,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	}

	if _, ok := middleware.IdentityFromContext(r.Context()); ok {
		body["isLeader"] = h.isLeader()
		body["instanceId"] = h.instanceID
		body["services"] = h.coord.Services()
	}

	writeJSON(w, http.StatusOK, body)
}

// Live handles GET /api/health/live: always 200 while the process is up.
func (h *CoordinatorHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "live"})
}

// Ready handles GET /api/health/ready: 200 iff the coordinator is running
// and systemHealth > 0, else 503.
func (h *CoordinatorHandler) Ready(w http.ResponseWriter, r *http.Request) {
	isRunning := h.coord.IsRunning()
	systemHealth := h.coord.SystemHealth()

	if isRunning && systemHealth > 0 {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]any{
		"status":       "not_ready",
		"isRunning":    isRunning,
		"systemHealth": systemHealth,
	})
}

// Metrics handles GET /api/metrics.
func (h *CoordinatorHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.coord.Metrics())
}

// Services handles GET /api/services.
func (h *CoordinatorHandler) Services(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.coord.Services())
}

// Opportunities handles GET /api/opportunities: top-100 by timestamp.
func (h *CoordinatorHandler) Opportunities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.coord.TopOpportunities(100))
}

// Leader handles GET /api/leader.
func (h *CoordinatorHandler) Leader(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"isLeader":   h.isLeader(),
		"instanceId": h.instanceID,
	})
}

// RestartService handles POST /api/services/{service}/restart. Auth and
// authorize are applied as middleware ahead of this handler; rate limiting
// likewise. The remaining ordering — regex 400, allow-list 404, leader
// 403, execute — runs here because the allow-list lookup must resolve
// before the leader check.
func (h *CoordinatorHandler) RestartService(w http.ResponseWriter, r *http.Request) {
	service := pathParam(r, "service")

	if !serviceNamePattern.MatchString(service) {
		writeError(w, http.StatusBadRequest, "invalid service name")
		return
	}
	if !h.allowedSvcs[service] {
		writeError(w, http.StatusNotFound, "Service not found")
		return
	}
	if !h.isLeader() {
		writeError(w, http.StatusForbidden, "not leader")
		return
	}

	if err := h.restart(service); err != nil {
		h.logger.ErrorContext(r.Context(), "restart failed", slog.String("service", service), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "restart failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Restart requested for " + service,
	})
}

// AcknowledgeAlert handles POST /api/alerts/{alert}/acknowledge. No leader
// check: any authorized caller may acknowledge.
func (h *CoordinatorHandler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	alert := pathParam(r, "alert")

	if !serviceNamePattern.MatchString(alert) {
		writeError(w, http.StatusBadRequest, "invalid alert id")
		return
	}

	if h.coord.AcknowledgeAlert(alert) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Alert acknowledged"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "Alert not found in cooldowns"})
}
