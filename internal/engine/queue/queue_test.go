package queue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arbplane/arbplane/internal/domain"
	"github.com/arbplane/arbplane/internal/engine/queue"
)

func mkOpp(id string) domain.Opportunity {
	return domain.Opportunity{ID: id, Type: domain.OpportunityCrossDex, Confidence: 0.9, Timestamp: time.Now()}
}

func TestQueue_BackpressureWatermarks(t *testing.T) {
	q := queue.New(queue.Config{MaxSize: 10, HighWaterMark: 5, LowWaterMark: 2})
	defer q.Close()

	for i := 0; i < 5; i++ {
		require.True(t, q.Enqueue(mkOpp("o")))
	}
	require.True(t, q.IsPaused())
	require.False(t, q.CanEnqueue())

	// Draining below the high mark but above the low mark still rejects.
	_, _ = q.Dequeue()
	_, _ = q.Dequeue()
	require.True(t, q.IsPaused())

	// Reaching the low mark resumes.
	_, _ = q.Dequeue()
	require.False(t, q.IsPaused())
	require.Equal(t, 2, q.Size())
}

func TestQueue_NeverExceedsMaxSize(t *testing.T) {
	q := queue.New(queue.Config{MaxSize: 3, HighWaterMark: 100, LowWaterMark: 0})
	defer q.Close()

	for i := 0; i < 3; i++ {
		require.True(t, q.Enqueue(mkOpp("o")))
	}
	require.False(t, q.Enqueue(mkOpp("overflow")))
	require.Equal(t, 3, q.Size())
}

func TestQueue_PauseResumeIdempotent(t *testing.T) {
	q := queue.New(queue.DefaultConfig())
	defer q.Close()

	calls := 0
	q.OnPauseStateChange(func(isPaused bool) { calls++ })

	q.Pause()
	q.Pause()
	require.Equal(t, 1, calls)
	require.True(t, q.IsManuallyPaused())

	q.Resume()
	q.Resume()
	require.Equal(t, 2, calls)
	require.False(t, q.IsManuallyPaused())
}

func TestQueue_ManualPauseIndependentOfBackpressure(t *testing.T) {
	q := queue.New(queue.Config{MaxSize: 10, HighWaterMark: 8, LowWaterMark: 2})
	defer q.Close()

	q.Pause()
	require.True(t, q.IsPaused())
	require.False(t, q.CanEnqueue())

	q.Resume()
	require.False(t, q.IsPaused())
}

func TestQueue_OnItemAvailableFires(t *testing.T) {
	q := queue.New(queue.DefaultConfig())
	defer q.Close()

	fired := make(chan struct{}, 1)
	q.OnItemAvailable(func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	q.Enqueue(mkOpp("a"))
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("onItemAvailable not called")
	}
}
