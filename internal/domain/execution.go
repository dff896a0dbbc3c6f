package domain

import "time"

// ExecutionResult is appended to stream:execution-results exactly once per
// accepted opportunity, whether the attempt succeeded or failed.
type ExecutionResult struct {
	OpportunityID   string
	Success         bool
	TransactionHash string
	ActualProfit    float64
	GasUsed         uint64
	GasCost         float64
	Error           string
	Timestamp       time.Time
	Chain           string
	Dex             string
}

// BreakerState is the circuit breaker's three-value state.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// CircuitBreakerSnapshot is a point-in-time read of the breaker's state,
// suitable for publication or HTTP exposure.
type CircuitBreakerSnapshot struct {
	State                 BreakerState
	ConsecutiveFailures    int
	LastStateChangeAt      time.Time
	HalfOpenAttemptsUsed   int
	TimesTripped           int64
	TotalFailures          int64
	TotalSuccesses         int64
	TotalOpenTimeMs        int64
}

// LockConflictRecord tracks repeated acquisition conflicts for a single
// opportunityId so the pipeline can detect a stale lock holder.
type LockConflictRecord struct {
	OpportunityID string
	FirstSeenAt   time.Time
	ConflictCount int
}

// SystemMetrics is the aggregate counter set maintained by the coordinator
// and engine. Fields are opaque running totals, incremented as the
// corresponding event streams are consumed.
type SystemMetrics struct {
	OpportunitiesSeen     int64
	OpportunitiesRejected int64
	ExecutionsSucceeded   int64
	ExecutionsFailed      int64
	ExecutionTimeouts     int64
	WhaleAlerts           int64
	VolumeUpdates         int64
	PriceUpdates          int64
	LockConflicts         int64
	StaleLockRecoveries   int64
	CircuitBreakerBlocks  int64
	RiskDrawdownBlocks    int64
	RiskEVRejections      int64
	RiskPositionSizeRejections int64
}
