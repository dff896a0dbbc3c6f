// Package metrics exposes the coordinator and execution engine's running
// counters as Prometheus collectors, grounded on the promauto-registered
// counter/gauge idiom used across the retrieved corpus's telemetry layers
// (ariadne's PrometheusProvider, service_layer's monitoring package).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every counter/gauge the pipeline and coordinator report
// through, registered once at process startup against a dedicated registry
// (never the global default, so multiple processes in one test binary don't
// collide).
type Registry struct {
	reg *prometheus.Registry

	OpportunitiesSeen     prometheus.Counter
	OpportunitiesRejected prometheus.Counter
	ExecutionsSucceeded   prometheus.Counter
	ExecutionsFailed      prometheus.Counter
	ExecutionTimeouts     prometheus.Counter
	WhaleAlerts           prometheus.Counter
	VolumeUpdates         prometheus.Counter
	PriceUpdates          prometheus.Counter
	LockConflicts         prometheus.Counter
	StaleLockRecoveries   prometheus.Counter
	CircuitBreakerBlocks  prometheus.Counter
	RiskDrawdownBlocks    prometheus.Counter
	RiskEVRejections      prometheus.Counter
	RiskPositionSizeRejections prometheus.Counter

	QueueSize          prometheus.Gauge
	QueuePaused        prometheus.Gauge
	BreakerState       *prometheus.GaugeVec
	ServiceHealthStale prometheus.Gauge
}

// New creates a Registry with every metric registered under the
// "arbplane" namespace.
func New() *Registry {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Registry{
		reg: reg,

		OpportunitiesSeen:     f.NewCounter(prometheus.CounterOpts{Namespace: "arbplane", Name: "opportunities_seen_total", Help: "Opportunities dequeued by the execution pipeline."}),
		OpportunitiesRejected: f.NewCounter(prometheus.CounterOpts{Namespace: "arbplane", Name: "opportunities_rejected_total", Help: "Opportunities rejected before execution (expired, breaker, risk, lock)."}),
		ExecutionsSucceeded:   f.NewCounter(prometheus.CounterOpts{Namespace: "arbplane", Name: "executions_succeeded_total", Help: "Strategy executions that reported success."}),
		ExecutionsFailed:      f.NewCounter(prometheus.CounterOpts{Namespace: "arbplane", Name: "executions_failed_total", Help: "Strategy executions that reported failure."}),
		ExecutionTimeouts:     f.NewCounter(prometheus.CounterOpts{Namespace: "arbplane", Name: "execution_timeouts_total", Help: "Strategy executions that hit the 55s deadline."}),
		WhaleAlerts:           f.NewCounter(prometheus.CounterOpts{Namespace: "arbplane", Name: "whale_alerts_total", Help: "Whale-alert events consumed."}),
		VolumeUpdates:         f.NewCounter(prometheus.CounterOpts{Namespace: "arbplane", Name: "volume_updates_total", Help: "Volume-aggregate events consumed."}),
		PriceUpdates:          f.NewCounter(prometheus.CounterOpts{Namespace: "arbplane", Name: "price_updates_total", Help: "Price-update events consumed."}),
		LockConflicts:         f.NewCounter(prometheus.CounterOpts{Namespace: "arbplane", Name: "lock_conflicts_total", Help: "Opportunity-lock acquisition conflicts."}),
		StaleLockRecoveries:   f.NewCounter(prometheus.CounterOpts{Namespace: "arbplane", Name: "stale_lock_recoveries_total", Help: "Stale lock holders force-released and retried."}),
		CircuitBreakerBlocks:  f.NewCounter(prometheus.CounterOpts{Namespace: "arbplane", Name: "circuit_breaker_blocks_total", Help: "Opportunities dropped because the breaker was open."}),
		RiskDrawdownBlocks:    f.NewCounter(prometheus.CounterOpts{Namespace: "arbplane", Name: "risk_drawdown_blocks_total", Help: "Opportunities rejected by the drawdown breaker."}),
		RiskEVRejections:      f.NewCounter(prometheus.CounterOpts{Namespace: "arbplane", Name: "risk_ev_rejections_total", Help: "Opportunities rejected by the EV gate."}),
		RiskPositionSizeRejections: f.NewCounter(prometheus.CounterOpts{Namespace: "arbplane", Name: "risk_position_size_rejections_total", Help: "Opportunities rejected by the Kelly sizer (zero size)."}),

		QueueSize:          f.NewGauge(prometheus.GaugeOpts{Namespace: "arbplane", Name: "queue_size", Help: "Current execution-queue length."}),
		QueuePaused:        f.NewGauge(prometheus.GaugeOpts{Namespace: "arbplane", Name: "queue_paused", Help: "1 if the execution queue is paused (manual or backpressure), else 0."}),
		BreakerState:       f.NewGaugeVec(prometheus.GaugeOpts{Namespace: "arbplane", Name: "circuit_breaker_state", Help: "1 for the breaker's current state, 0 otherwise, labeled by state name."}, []string{"state"}),
		ServiceHealthStale: f.NewGauge(prometheus.GaugeOpts{Namespace: "arbplane", Name: "stale_service_count", Help: "Number of services whose health record has aged past the staleness window."}),
	}
}

// Handler returns the /metrics HTTP handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// IncOpportunitiesSeen implements pipeline.Metrics.
func (r *Registry) IncOpportunitiesSeen() { r.OpportunitiesSeen.Inc() }

// IncOpportunitiesRejected implements pipeline.Metrics.
func (r *Registry) IncOpportunitiesRejected() { r.OpportunitiesRejected.Inc() }

// IncExecutionsSucceeded implements pipeline.Metrics.
func (r *Registry) IncExecutionsSucceeded() { r.ExecutionsSucceeded.Inc() }

// IncExecutionsFailed implements pipeline.Metrics.
func (r *Registry) IncExecutionsFailed() { r.ExecutionsFailed.Inc() }

// IncExecutionTimeouts implements pipeline.Metrics.
func (r *Registry) IncExecutionTimeouts() { r.ExecutionTimeouts.Inc() }

// IncCircuitBreakerBlocks implements pipeline.Metrics.
func (r *Registry) IncCircuitBreakerBlocks() { r.CircuitBreakerBlocks.Inc() }

// IncRiskDrawdownBlocks implements pipeline.Metrics.
func (r *Registry) IncRiskDrawdownBlocks() { r.RiskDrawdownBlocks.Inc() }

// IncRiskEVRejections implements pipeline.Metrics.
func (r *Registry) IncRiskEVRejections() { r.RiskEVRejections.Inc() }

// IncRiskPositionSizeRejections implements pipeline.Metrics.
func (r *Registry) IncRiskPositionSizeRejections() { r.RiskPositionSizeRejections.Inc() }

// SetBreakerState zeroes every known state gauge and sets only the current
// one to 1, so a Grafana panel can graph state over time as a step function.
func (r *Registry) SetBreakerState(state string) {
	for _, s := range []string{"CLOSED", "OPEN", "HALF_OPEN"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		r.BreakerState.WithLabelValues(s).Set(v)
	}
}
