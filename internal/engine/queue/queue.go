// Package queue implements the execution engine's bounded, back-pressured
// opportunity queue: a mutex-protected ordered sequence with hi/lo
// watermark backpressure and an item-available signal.
package queue

import (
	"sync"
	"time"

	"github.com/arbplane/arbplane/internal/domain"
)

// Config holds the queue's size thresholds.
type Config struct {
	MaxSize       int
	HighWaterMark int
	LowWaterMark  int
}

// DefaultConfig holds the documented defaults.
func DefaultConfig() Config {
	return Config{MaxSize: 1000, HighWaterMark: 800, LowWaterMark: 200}
}

// Queue is a bounded, ordered in-memory sequence of opportunities with
// independent manual-pause and backpressure-pause flags.
type Queue struct {
	mu    sync.Mutex
	items []domain.Opportunity
	cfg   Config

	backpressurePaused bool
	manualPaused       bool

	onPauseStateChange func(isPaused bool)
	onItemAvailable    func()

	fallback *time.Ticker
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a Queue. If cfg's fields are zero, DefaultConfig is used.
func New(cfg Config) *Queue {
	if cfg.MaxSize <= 0 {
		cfg = DefaultConfig()
	}
	q := &Queue{cfg: cfg, stopCh: make(chan struct{})}
	q.fallback = time.NewTicker(1 * time.Second)
	go q.fallbackLoop()
	return q
}

func (q *Queue) fallbackLoop() {
	for {
		select {
		case <-q.stopCh:
			return
		case <-q.fallback.C:
			q.mu.Lock()
			hasItems := len(q.items) > 0
			cb := q.onItemAvailable
			q.mu.Unlock()
			if hasItems && cb != nil {
				cb()
			}
		}
	}
}

// Close stops the fallback timer. Safe to call multiple times.
func (q *Queue) Close() {
	q.stopOnce.Do(func() {
		close(q.stopCh)
		q.fallback.Stop()
	})
}

// OnPauseStateChange registers the callback fired whenever the effective
// paused state (manual OR backpressure) flips.
func (q *Queue) OnPauseStateChange(fn func(isPaused bool)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onPauseStateChange = fn
}

// OnItemAvailable registers the callback fired after a successful Enqueue;
// it is the primary signal for the pipeline to do work. The 1s fallback
// ticker also fires it whenever items are present, as a safety net.
func (q *Queue) OnItemAvailable(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onItemAvailable = fn
}

// CanEnqueue reports whether Enqueue would currently succeed.
func (q *Queue) CanEnqueue() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.canEnqueueLocked()
}

func (q *Queue) canEnqueueLocked() bool {
	if q.manualPaused || q.backpressurePaused {
		return false
	}
	return len(q.items) < q.cfg.MaxSize
}

// Enqueue appends an opportunity. It returns false if the queue cannot
// currently accept items (full, or paused for either reason).
func (q *Queue) Enqueue(o domain.Opportunity) bool {
	q.mu.Lock()
	if !q.canEnqueueLocked() {
		q.mu.Unlock()
		return false
	}

	q.items = append(q.items, o)
	size := len(q.items)

	var pauseChanged bool
	if !q.backpressurePaused && size >= q.cfg.HighWaterMark {
		q.backpressurePaused = true
		pauseChanged = true
	}
	cb := q.onItemAvailable
	pauseCb := q.onPauseStateChange
	isPaused := q.manualPaused || q.backpressurePaused
	q.mu.Unlock()

	if pauseChanged && pauseCb != nil {
		pauseCb(isPaused)
	}
	if cb != nil {
		cb()
	}
	return true
}

// Dequeue removes and returns the oldest opportunity, if any.
func (q *Queue) Dequeue() (domain.Opportunity, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return domain.Opportunity{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	size := len(q.items)

	var pauseChanged bool
	if q.backpressurePaused && size <= q.cfg.LowWaterMark {
		q.backpressurePaused = false
		pauseChanged = true
	}
	pauseCb := q.onPauseStateChange
	isPaused := q.manualPaused || q.backpressurePaused
	q.mu.Unlock()

	if pauseChanged && pauseCb != nil {
		pauseCb(isPaused)
	}
	return item, true
}

// Size returns the current number of queued items.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsPaused reports whether the queue is paused for any reason (manual or
// backpressure).
func (q *Queue) IsPaused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.manualPaused || q.backpressurePaused
}

// IsManuallyPaused reports only the manual-pause flag, independent of
// backpressure.
func (q *Queue) IsManuallyPaused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.manualPaused
}

// Clear empties the queue without affecting pause state.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}

// Pause sets the manual-pause flag. Idempotent: pausing an already-paused
// queue is a no-op with respect to the callback.
func (q *Queue) Pause() {
	q.setManualPause(true)
}

// Resume clears the manual-pause flag. Idempotent, same as Pause.
func (q *Queue) Resume() {
	q.setManualPause(false)
}

func (q *Queue) setManualPause(paused bool) {
	q.mu.Lock()
	wasPaused := q.manualPaused || q.backpressurePaused
	if q.manualPaused == paused {
		q.mu.Unlock()
		return
	}
	q.manualPaused = paused
	isPaused := q.manualPaused || q.backpressurePaused
	cb := q.onPauseStateChange
	q.mu.Unlock()

	if isPaused != wasPaused && cb != nil {
		cb(isPaused)
	}
}
