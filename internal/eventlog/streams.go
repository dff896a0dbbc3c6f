// Package eventlog implements the ordered append-only event log with
// consumer-group semantics that the coordinator and execution engine share:
// an at-least-once, explicitly-acknowledged substrate over Redis streams.
package eventlog

// Stream names used by the coordinator and engine. Reproduced bit-exactly
// since monitoring tooling keys off these names.
const (
	StreamHealth              = "stream:health"
	StreamOpportunities       = "stream:opportunities"
	StreamWhaleAlerts         = "stream:whale-alerts"
	StreamSwapEvents          = "stream:swap-events"
	StreamVolumeAggregates    = "stream:volume-aggregates"
	StreamPriceUpdates        = "stream:price-updates"
	StreamExecutionRequests   = "stream:execution-requests"
	StreamExecutionResults    = "stream:execution-results"
	StreamDLQ                 = "stream:dlq"
	StreamCircuitBreakerEvents = "stream:circuit-breaker-events"
)
