package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_CountersIncrementIndependently(t *testing.T) {
	r := New()

	r.IncOpportunitiesSeen()
	r.IncOpportunitiesSeen()
	r.IncExecutionsSucceeded()
	r.IncRiskEVRejections()

	require.Equal(t, float64(2), testCounterValue(t, r.OpportunitiesSeen))
	require.Equal(t, float64(1), testCounterValue(t, r.ExecutionsSucceeded))
	require.Equal(t, float64(1), testCounterValue(t, r.RiskEVRejections))
	require.Equal(t, float64(0), testCounterValue(t, r.ExecutionsFailed))
}

func TestRegistry_SetBreakerStateIsExclusive(t *testing.T) {
	r := New()

	r.SetBreakerState("OPEN")

	require.Equal(t, float64(1), testGaugeValue(t, r.BreakerState.WithLabelValues("OPEN")))
	require.Equal(t, float64(0), testGaugeValue(t, r.BreakerState.WithLabelValues("CLOSED")))
	require.Equal(t, float64(0), testGaugeValue(t, r.BreakerState.WithLabelValues("HALF_OPEN")))

	r.SetBreakerState("CLOSED")

	require.Equal(t, float64(0), testGaugeValue(t, r.BreakerState.WithLabelValues("OPEN")))
	require.Equal(t, float64(1), testGaugeValue(t, r.BreakerState.WithLabelValues("CLOSED")))
}

func TestRegistry_HandlerServesMetrics(t *testing.T) {
	r := New()
	r.IncOpportunitiesSeen()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()

	r.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "arbplane_opportunities_seen_total")
}
