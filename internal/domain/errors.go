package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// Error taxonomy for the arbitrage execution pipeline. Each kind drives
	// a distinct ack/retry/DLQ policy in the consumer framework.
	ErrInvalidOpportunity = errors.New("invalid opportunity")
	ErrNoStrategy         = errors.New("no strategy registered for opportunity type")
	ErrUnsafeSimulation   = errors.New("simulation mode unsafe for this environment")
)
