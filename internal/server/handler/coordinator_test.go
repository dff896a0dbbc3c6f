package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arbplane/arbplane/internal/coordinator"
	"github.com/arbplane/arbplane/internal/domain"
)

type fakeSink struct{}

func (fakeSink) NotifyAlert(ctx context.Context, a domain.Alert) error { return nil }
func (fakeSink) RecordAlert(a domain.Alert)                            {}

func newTestHandler(t *testing.T, isLeader bool, allowed []string, restartErr error) (*CoordinatorHandler, *int) {
	t.Helper()
	coord := coordinator.New(nil, fakeSink{}, "svc", "inst-1", "group", slog.Default())
	restarted := 0
	h := NewCoordinatorHandler(coord, func() bool { return isLeader }, "inst-1", allowed,
		func(service string) error { restarted++; return restartErr },
		func(limit int) []domain.Alert { return nil },
		slog.Default(),
	)
	return h, &restarted
}

func TestRestartService_RejectsBadServiceNameBeforeLeaderCheck(t *testing.T) {
	h, restarted := newTestHandler(t, false, []string{"engine"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/services/bad%20name/restart", nil)
	req.SetPathValue("service", "bad name")
	rec := httptest.NewRecorder()

	h.RestartService(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, 0, *restarted)
}

func TestRestartService_UnknownServiceIs404BeforeLeaderCheck(t *testing.T) {
	h, restarted := newTestHandler(t, false, []string{"engine"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/services/unknown-svc/restart", nil)
	req.SetPathValue("service", "unknown-svc")
	rec := httptest.NewRecorder()

	h.RestartService(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, 0, *restarted)
}

func TestRestartService_NonLeaderRejectedAfterAllowListPasses(t *testing.T) {
	h, restarted := newTestHandler(t, false, []string{"engine"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/services/engine/restart", nil)
	req.SetPathValue("service", "engine")
	rec := httptest.NewRecorder()

	h.RestartService(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, 0, *restarted)
}

func TestRestartService_LeaderSucceeds(t *testing.T) {
	h, restarted := newTestHandler(t, true, []string{"engine"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/services/engine/restart", nil)
	req.SetPathValue("service", "engine")
	rec := httptest.NewRecorder()

	h.RestartService(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, *restarted)
	require.Contains(t, rec.Body.String(), "Restart requested for engine")
}

func TestAcknowledgeAlert_NoLeaderCheckRequired(t *testing.T) {
	h, _ := newTestHandler(t, false, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/alerts/STREAM_CONSUMER_FAILURE/acknowledge", nil)
	req.SetPathValue("alert", "STREAM_CONSUMER_FAILURE")
	rec := httptest.NewRecorder()

	h.AcknowledgeAlert(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Alert not found in cooldowns")
}

func TestHealth_OmitsLeaderDetailsWhenUnauthenticated(t *testing.T) {
	h, _ := newTestHandler(t, true, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "isLeader")
}

func TestReady_NotRunningIs503RegardlessOfSystemHealth(t *testing.T) {
	h, _ := newTestHandler(t, true, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/health/ready", nil)
	rec := httptest.NewRecorder()
	h.Ready(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"not_ready"`)
	require.Contains(t, rec.Body.String(), `"isRunning":false`)
}
