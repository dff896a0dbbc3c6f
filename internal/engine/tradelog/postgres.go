package tradelog

import (
	"context"
	"errors"
	"fmt"

	"github.com/arbplane/arbplane/internal/domain"
)

// executionStore is the persistence capability PostgresSink needs —
// satisfied by *postgres.ArbExecutionStore without importing the store
// package (which would pull pgx into every tradelog consumer, including
// tests that only exercise the file-backed Log).
type executionStore interface {
	Create(ctx context.Context, exec domain.ArbExecution) error
}

// PostgresSink persists each execution result as a row in the durable
// arb_executions table alongside the file-backed Log, so fleet-wide PnL
// queries survive log rotation and don't require tailing JSON files.
type PostgresSink struct {
	store executionStore
}

// NewPostgresSink wraps store (typically *postgres.ArbExecutionStore) as a
// Recorder.
func NewPostgresSink(store executionStore) *PostgresSink {
	return &PostgresSink{store: store}
}

// Record maps an execution engine result onto the arb_executions schema.
// The execution engine only ever produces cross-chain/cross-dex/backrun
// arbitrage, which has no rebalancing legs of its own, so ArbType is
// recorded as ArbTypeCrossPlatform; leg detail is left to the file log.
func (s *PostgresSink) Record(ctx context.Context, result domain.ExecutionResult) error {
	status := domain.ArbExecFilled
	if !result.Success {
		status = domain.ArbExecFailed
	}
	completedAt := result.Timestamp
	exec := domain.ArbExecution{
		ID:            fmt.Sprintf("%s-%d", result.OpportunityID, result.Timestamp.UnixNano()),
		OpportunityID: result.OpportunityID,
		ArbType:       domain.ArbTypeCrossPlatform,
		NetPnLUSD:     result.ActualProfit - result.GasCost,
		Status:        status,
		StartedAt:     result.Timestamp,
		CompletedAt:   &completedAt,
	}
	if err := s.store.Create(ctx, exec); err != nil {
		return fmt.Errorf("tradelog: postgres sink: %w", err)
	}
	return nil
}

// Recorder is the capability both Log and PostgresSink implement, letting
// Multi fan a result out to any combination of them.
type Recorder interface {
	Record(ctx context.Context, result domain.ExecutionResult) error
}

// Multi fans one Record call out to every Recorder in order, continuing
// past individual failures and joining their errors rather than aborting
// the remaining sinks on the first one.
type Multi []Recorder

// Record satisfies Recorder by calling Record on every member.
func (m Multi) Record(ctx context.Context, result domain.ExecutionResult) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("tradelog: multi: %d of %d sinks failed: %w", len(errs), len(m), errors.Join(errs...))
}
