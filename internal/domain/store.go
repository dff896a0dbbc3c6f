package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// ArbExecutionStore persists arb executions and legs for PnL tracking.
type ArbExecutionStore interface {
	Create(ctx context.Context, exec ArbExecution) error
	GetByID(ctx context.Context, id string) (ArbExecution, error)
	ListRecent(ctx context.Context, limit int) ([]ArbExecution, error)
	SumPnL(ctx context.Context, since time.Time) (float64, error)
	SumPnLByType(ctx context.Context, arbType ArbType, since time.Time) (float64, error)
}
