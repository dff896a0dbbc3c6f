package eventlog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLog implements Log over go-redis/v9 streams, generalizing the
// teacher's plain XADD/XREAD SignalBus into full consumer-group semantics
// (XGROUP/XREADGROUP/XACK/XPENDING/XLEN/XTRIM).
type RedisLog struct {
	rdb          *redis.Client
	defaultMaxLen int64
}

// NewRedisLog creates a RedisLog. defaultMaxLen is the approximate trim
// bound applied to every Append call (0 disables trimming on append;
// streams can still be trimmed explicitly via Trim).
func NewRedisLog(rdb *redis.Client, defaultMaxLen int64) *RedisLog {
	return &RedisLog{rdb: rdb, defaultMaxLen: defaultMaxLen}
}

func (l *RedisLog) Append(ctx context.Context, stream string, fields map[string]string) (string, error) {
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	args := &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}
	if l.defaultMaxLen > 0 {
		args.MaxLen = l.defaultMaxLen
		args.Approx = true
	}
	id, err := l.rdb.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("eventlog: append %s: %w", stream, err)
	}
	return id, nil
}

// CreateGroup creates the consumer group, treating BUSYGROUP (group already
// exists) as success so repeated calls are idempotent.
func (l *RedisLog) CreateGroup(ctx context.Context, stream, group, from string) error {
	if from == "" {
		from = "0"
	}
	err := l.rdb.XGroupCreateMkStream(ctx, stream, group, from).Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("eventlog: create group %s/%s: %w", stream, group, err)
	}
	return nil
}

func (l *RedisLog) ReadGroup(ctx context.Context, stream, group, consumerID string, count int64, block time.Duration) ([]Message, error) {
	res, err := l.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumerID,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("eventlog: read group %s/%s: %w", stream, group, err)
	}

	var out []Message
	for _, s := range res {
		for _, entry := range s.Messages {
			fields := make(map[string]string, len(entry.Values))
			for k, v := range entry.Values {
				fields[k] = fmt.Sprintf("%v", v)
			}
			out = append(out, Message{ID: entry.ID, Fields: fields})
		}
	}
	return out, nil
}

func (l *RedisLog) Ack(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := l.rdb.XAck(ctx, stream, group, ids...).Err(); err != nil {
		return fmt.Errorf("eventlog: ack %s/%s: %w", stream, group, err)
	}
	return nil
}

func (l *RedisLog) Pending(ctx context.Context, stream, group string) (PendingSummary, error) {
	res, err := l.rdb.XPending(ctx, stream, group).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return PendingSummary{}, nil
		}
		return PendingSummary{}, fmt.Errorf("eventlog: pending %s/%s: %w", stream, group, err)
	}
	return PendingSummary{Count: res.Count, Min: res.Lower, Max: res.Higher}, nil
}

func (l *RedisLog) Len(ctx context.Context, stream string) (int64, error) {
	n, err := l.rdb.XLen(ctx, stream).Result()
	if err != nil {
		return 0, fmt.Errorf("eventlog: len %s: %w", stream, err)
	}
	return n, nil
}

func (l *RedisLog) Trim(ctx context.Context, stream string, maxLen int64) error {
	if err := l.rdb.XTrimMaxLenApprox(ctx, stream, maxLen, 0).Err(); err != nil {
		return fmt.Errorf("eventlog: trim %s: %w", stream, err)
	}
	return nil
}

// DLQReason classifies why a message was dead-lettered.
type DLQReason string

const (
	DLQReasonParseError    DLQReason = "parse_error"
	DLQReasonHandlerFailed DLQReason = "handler_failed"
)

// ToDLQ appends a failed message to stream:dlq, preserving its originating
// stream, raw fields, and error kind.
func ToDLQ(ctx context.Context, l Log, originStream string, msg Message, reason DLQReason, errKind string) error {
	fields := make(map[string]string, len(msg.Fields)+4)
	for k, v := range msg.Fields {
		fields["orig_"+k] = v
	}
	fields["orig_stream"] = originStream
	fields["orig_id"] = msg.ID
	fields["reason"] = string(reason)
	fields["error_kind"] = errKind
	_, err := l.Append(ctx, StreamDLQ, fields)
	return err
}

// FormatCount renders an int64 as a base-10 string for field maps, the
// plain string-field convention used for all values over Redis streams.
func FormatCount(n int64) string {
	return strconv.FormatInt(n, 10)
}
