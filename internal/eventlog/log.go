package eventlog

import (
	"context"
	"time"
)

// Message is a single entry read from a stream, with its fields decoded
// from the wire representation into string key/value pairs (callers parse
// further as needed).
type Message struct {
	ID     string
	Fields map[string]string
}

// PendingSummary reports the lag of a consumer group over a stream.
type PendingSummary struct {
	Count int64
	Min   string
	Max   string
}

// Log is the ordered append-only event log contract the coordinator and
// engine consume. Implementations must provide at-least-once delivery with
// per-stream ordering only; no cross-stream ordering is assumed.
type Log interface {
	// Append produces a strictly monotone id for the given stream.
	Append(ctx context.Context, stream string, fields map[string]string) (id string, err error)

	// CreateGroup is idempotent: calling it twice with the same arguments
	// succeeds both times. from is the starting id ("0" for the beginning,
	// "$" for only-new).
	CreateGroup(ctx context.Context, stream, group, from string) error

	// ReadGroup returns entries not yet delivered to this consumer within
	// the group, blocking up to block when none are available.
	ReadGroup(ctx context.Context, stream, group, consumerID string, count int64, block time.Duration) ([]Message, error)

	// Ack removes the given ids from the group's pending entries list.
	Ack(ctx context.Context, stream, group string, ids ...string) error

	// Pending reports the group's outstanding (unacked) entry count and id
	// range, for lag reporting.
	Pending(ctx context.Context, stream, group string) (PendingSummary, error)

	// Len reports the current length of the stream.
	Len(ctx context.Context, stream string) (int64, error)

	// Trim caps the stream at approximately maxLen entries.
	Trim(ctx context.Context, stream string, maxLen int64) error
}
