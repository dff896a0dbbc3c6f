package coordinator

import (
	"strconv"
	"sync"
	"time"

	"github.com/arbplane/arbplane/internal/domain"
)

// maxStreamErrors is the consecutive-error burst threshold that fires one
// STREAM_CONSUMER_FAILURE alert per burst.
const maxStreamErrors = 10

// streamErrorState tracks one stream's consecutive-failure run and whether
// the current burst has already alerted.
type streamErrorState struct {
	consecutive int
	alerted     bool
}

// StreamErrorTracker counts consecutive consumer errors per stream and
// raises a single critical alert per burst once the threshold is crossed,
// resetting on the next successful read. Each eventlog.ConsumerGroup this
// coordinator runs reports into it via OnStreamError.
type StreamErrorTracker struct {
	mu     sync.Mutex
	states map[string]*streamErrorState
}

// NewStreamErrorTracker creates an empty tracker.
func NewStreamErrorTracker() *StreamErrorTracker {
	return &StreamErrorTracker{states: make(map[string]*streamErrorState)}
}

// RecordError registers a consumer error for stream with the consumer
// group's own running consecutive-error count, and reports an Alert iff
// this call crosses the burst threshold for the first time in this burst.
func (t *StreamErrorTracker) RecordError(stream string, consecutiveErrors int, now time.Time) (domain.Alert, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[stream]
	if !ok {
		st = &streamErrorState{}
		t.states[stream] = st
	}
	// The consumer group restarts its count after a successful read, so a
	// count that did not grow marks the start of a new burst.
	if consecutiveErrors <= st.consecutive {
		st.alerted = false
	}
	st.consecutive = consecutiveErrors

	if st.consecutive >= maxStreamErrors && !st.alerted {
		st.alerted = true
		return domain.Alert{
			Type:      "STREAM_CONSUMER_FAILURE",
			Service:   stream,
			Message:   "stream consumer has failed " + strconv.Itoa(st.consecutive) + " times consecutively",
			Severity:  domain.AlertSeverityCritical,
			Timestamp: now,
			Data: map[string]any{
				"streamName": stream,
				"errorCount": st.consecutive,
			},
		}, true
	}
	return domain.Alert{}, false
}

// RecordSuccess resets stream's consecutive-error count and un-arms the
// burst-already-alerted flag, so a future burst can alert again.
func (t *StreamErrorTracker) RecordSuccess(stream string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, stream)
}
