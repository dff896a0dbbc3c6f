package eventlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arbplane/arbplane/internal/domain"
)

// Handler processes a single message. A nil return acks the message; a
// non-nil return leaves it pending for redelivery unless the error is
// domain.ErrInvalidOpportunity, which is acked immediately (not replayable)
// per the error taxonomy.
type Handler func(ctx context.Context, msg Message) error

// ConsumerGroup polls a single stream/group pair in a loop, dispatching each
// message to Handler, tracking per-opportunity retry counts, and
// dead-lettering messages that fail repeatedly: a single cooperating
// goroutine with its own ticker-free blocking read and an error branch
// that increments a stream-error counter.
type ConsumerGroup struct {
	log        Log
	stream     string
	group      string
	consumerID string
	count      int64
	block      time.Duration
	maxRetries int
	handler    Handler
	logger     *slog.Logger

	onStreamError func(stream string, consecutiveErrors int)

	retries map[string]int
}

// NewConsumerGroup creates a ConsumerGroup. maxRetries bounds how many times
// the *same* message id is redelivered before being moved to stream:dlq.
func NewConsumerGroup(l Log, stream, group, consumerID string, count int64, block time.Duration, maxRetries int, handler Handler, logger *slog.Logger) *ConsumerGroup {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &ConsumerGroup{
		log:        l,
		stream:     stream,
		group:      group,
		consumerID: consumerID,
		count:      count,
		block:      block,
		maxRetries: maxRetries,
		handler:    handler,
		logger:     logger.With(slog.String("component", "consumer"), slog.String("stream", stream), slog.String("group", group)),
		retries:    make(map[string]int),
	}
}

// OnStreamError registers a callback invoked whenever a read against the
// substrate fails (ack failures are only logged), with the running consecutive-error count for this
// stream. Used by the coordinator's stream-error tracker (§4.4).
func (c *ConsumerGroup) OnStreamError(fn func(stream string, consecutiveErrors int)) {
	c.onStreamError = fn
}

// Run creates the group (idempotent) and polls until ctx is cancelled.
func (c *ConsumerGroup) Run(ctx context.Context) error {
	if err := c.log.CreateGroup(ctx, c.stream, c.group, "0"); err != nil {
		return fmt.Errorf("consumer: create group: %w", err)
	}

	c.logger.InfoContext(ctx, "consumer started")
	defer c.logger.InfoContext(ctx, "consumer stopped")

	consecutiveErrors := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := c.log.ReadGroup(ctx, c.stream, c.group, c.consumerID, c.count, c.block)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			consecutiveErrors++
			c.logger.ErrorContext(ctx, "read group failed",
				slog.String("error", err.Error()),
				slog.Int("consecutive_errors", consecutiveErrors),
			)
			if c.onStreamError != nil {
				c.onStreamError(c.stream, consecutiveErrors)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(consecutiveErrors)):
			}
			continue
		}
		consecutiveErrors = 0

		if len(msgs) == 0 {
			continue
		}

		for _, msg := range msgs {
			c.process(ctx, msg)
		}
	}
}

func (c *ConsumerGroup) process(ctx context.Context, msg Message) {
	err := c.handler(ctx, msg)
	if err == nil {
		if ackErr := c.log.Ack(ctx, c.stream, c.group, msg.ID); ackErr != nil {
			c.logger.ErrorContext(ctx, "ack failed", slog.String("id", msg.ID), slog.String("error", ackErr.Error()))
		}
		delete(c.retries, msg.ID)
		return
	}

	if errors.Is(err, domain.ErrInvalidOpportunity) {
		c.logger.WarnContext(ctx, "invalid message, acking without replay",
			slog.String("id", msg.ID), slog.String("error", err.Error()))
		_ = c.log.Ack(ctx, c.stream, c.group, msg.ID)
		_ = ToDLQ(ctx, c.log, c.stream, msg, DLQReasonParseError, err.Error())
		delete(c.retries, msg.ID)
		return
	}

	c.retries[msg.ID]++
	if c.retries[msg.ID] >= c.maxRetries {
		c.logger.ErrorContext(ctx, "handler failed repeatedly, dead-lettering",
			slog.String("id", msg.ID), slog.Int("retries", c.retries[msg.ID]), slog.String("error", err.Error()))
		_ = ToDLQ(ctx, c.log, c.stream, msg, DLQReasonHandlerFailed, err.Error())
		_ = c.log.Ack(ctx, c.stream, c.group, msg.ID)
		delete(c.retries, msg.ID)
		return
	}

	c.logger.WarnContext(ctx, "handler failed, leaving pending for redelivery",
		slog.String("id", msg.ID), slog.Int("attempt", c.retries[msg.ID]), slog.String("error", err.Error()))
}

func backoff(consecutiveErrors int) time.Duration {
	d := time.Duration(consecutiveErrors) * 200 * time.Millisecond
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
