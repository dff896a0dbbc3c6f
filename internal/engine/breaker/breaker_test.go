package breaker_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arbplane/arbplane/internal/domain"
	"github.com/arbplane/arbplane/internal/engine/breaker"
)

func TestBreaker_TripsAtFailureThreshold(t *testing.T) {
	cb := breaker.New(breaker.Config{FailureThreshold: 3, CooldownPeriod: 60 * time.Second, HalfOpenMaxAttempts: 1})

	var transitions []breaker.Transition
	cb.OnTransition(func(tr breaker.Transition) { transitions = append(transitions, tr) })

	require.True(t, cb.CanExecute())
	cb.RecordFailure()
	require.Equal(t, domain.BreakerClosed, cb.Snapshot().State)

	require.True(t, cb.CanExecute())
	cb.RecordFailure()
	require.Equal(t, domain.BreakerClosed, cb.Snapshot().State)

	require.True(t, cb.CanExecute())
	cb.RecordFailure()
	require.Equal(t, domain.BreakerOpen, cb.Snapshot().State)

	require.Len(t, transitions, 1)
	require.Equal(t, domain.BreakerClosed, transitions[0].PreviousState)
	require.Equal(t, domain.BreakerOpen, transitions[0].NewState)
	require.Equal(t, 3, transitions[0].ConsecutiveFailures)
}

func TestBreaker_BlocksWhileOpen(t *testing.T) {
	cb := breaker.New(breaker.Config{FailureThreshold: 1, CooldownPeriod: time.Hour, HalfOpenMaxAttempts: 1})
	cb.RecordFailure()
	require.Equal(t, domain.BreakerOpen, cb.Snapshot().State)
	require.False(t, cb.CanExecute())
	require.False(t, cb.CanExecute())
}

func TestBreaker_HalfOpenAfterCooldownThenCloses(t *testing.T) {
	cb := breaker.New(breaker.Config{FailureThreshold: 1, CooldownPeriod: 10 * time.Millisecond, HalfOpenMaxAttempts: 1})
	cb.RecordFailure()
	require.Equal(t, domain.BreakerOpen, cb.Snapshot().State)

	time.Sleep(15 * time.Millisecond)
	require.True(t, cb.CanExecute())
	require.Equal(t, domain.BreakerHalfOpen, cb.Snapshot().State)

	// HalfOpenMaxAttempts is 1, already consumed by the CanExecute above.
	require.False(t, cb.CanExecute())

	cb.RecordSuccess()
	require.Equal(t, domain.BreakerClosed, cb.Snapshot().State)
}

func TestBreaker_HalfOpenFailureReopensImmediately(t *testing.T) {
	cb := breaker.New(breaker.Config{FailureThreshold: 1, CooldownPeriod: 10 * time.Millisecond, HalfOpenMaxAttempts: 2})
	cb.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	require.True(t, cb.CanExecute())
	require.Equal(t, domain.BreakerHalfOpen, cb.Snapshot().State)

	cb.RecordFailure()
	require.Equal(t, domain.BreakerOpen, cb.Snapshot().State)
}

func TestBreaker_ForceOpenAndForceClose(t *testing.T) {
	cb := breaker.New(breaker.DefaultConfig())
	cb.ForceOpen("manual halt")
	require.Equal(t, domain.BreakerOpen, cb.Snapshot().State)
	require.False(t, cb.CanExecute())

	cb.ForceClose()
	require.Equal(t, domain.BreakerClosed, cb.Snapshot().State)
	require.True(t, cb.CanExecute())
}

func TestBreaker_TransitionCallbackNotInvokedWhenStateUnchanged(t *testing.T) {
	cb := breaker.New(breaker.DefaultConfig())
	calls := 0
	cb.OnTransition(func(breaker.Transition) { calls++ })

	cb.RecordSuccess()
	cb.RecordSuccess()
	require.Equal(t, 0, calls)
}
