// Package breaker implements the execution engine's CLOSED/OPEN/HALF_OPEN
// circuit breaker. State transitions are serialized behind a mutex; the
// transition callback always fires after the mutex is released so it may
// safely call back into the breaker (e.g. to read Snapshot) without
// deadlocking.
package breaker

import (
	"sync"
	"time"

	"github.com/arbplane/arbplane/internal/domain"
)

// Config holds the breaker's tunables.
type Config struct {
	FailureThreshold    int
	CooldownPeriod      time.Duration
	HalfOpenMaxAttempts int
}

// DefaultConfig holds the documented defaults.
func DefaultConfig() Config {
	return Config{FailureThreshold: 5, CooldownPeriod: 300 * time.Second, HalfOpenMaxAttempts: 1}
}

// Transition is the typed event emitted on every state change.
type Transition struct {
	PreviousState       domain.BreakerState
	NewState            domain.BreakerState
	Reason              string
	ConsecutiveFailures int
	Timestamp           time.Time
}

// Breaker is a single engine-wide circuit breaker instance.
type Breaker struct {
	mu  sync.Mutex
	cfg Config

	state                domain.BreakerState
	consecutiveFailures  int
	openedAt             time.Time
	lastStateChangeAt    time.Time
	halfOpenAttemptsUsed int

	timesTripped    int64
	totalFailures   int64
	totalSuccesses  int64
	totalOpenTimeMs int64

	onTransition func(Transition)

	now func() time.Time
}

// New creates a Breaker in the CLOSED state.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg = DefaultConfig()
	}
	if cfg.HalfOpenMaxAttempts <= 0 {
		cfg.HalfOpenMaxAttempts = 1
	}
	return &Breaker{
		cfg:               cfg,
		state:             domain.BreakerClosed,
		lastStateChangeAt: time.Now(),
		now:               time.Now,
	}
}

// OnTransition registers the callback invoked on every state transition.
func (b *Breaker) OnTransition(fn func(Transition)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTransition = fn
}

// CanExecute reports whether a new call may proceed, advancing the state
// machine as needed (OPEN -> HALF_OPEN on cooldown expiry; each HALF_OPEN
// call that returns true consumes one of halfOpenMaxAttempts slots).
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	now := b.now()

	var (
		allow    bool
		pending  *Transition
	)

	switch b.state {
	case domain.BreakerClosed:
		allow = true

	case domain.BreakerOpen:
		if now.Sub(b.openedAt) < b.cfg.CooldownPeriod {
			allow = false
		} else {
			b.totalOpenTimeMs += now.Sub(b.openedAt).Milliseconds()
			pending = b.setStateLocked(domain.BreakerHalfOpen, "cooldown elapsed", now)
			b.halfOpenAttemptsUsed = 1
			allow = true
		}

	case domain.BreakerHalfOpen:
		if b.halfOpenAttemptsUsed < b.cfg.HalfOpenMaxAttempts {
			b.halfOpenAttemptsUsed++
			allow = true
		} else {
			allow = false
		}
	}

	cb := b.onTransition
	b.mu.Unlock()

	if pending != nil && cb != nil {
		cb(*pending)
	}
	return allow
}

// RecordSuccess resets failure counters. In HALF_OPEN it closes the
// breaker; in CLOSED it simply resets consecutiveFailures.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	now := b.now()
	b.totalSuccesses++
	b.consecutiveFailures = 0

	var pending *Transition
	if b.state == domain.BreakerHalfOpen {
		pending = b.setStateLocked(domain.BreakerClosed, "recovery confirmed", now)
	}
	cb := b.onTransition
	b.mu.Unlock()

	if pending != nil && cb != nil {
		cb(*pending)
	}
}

// RecordFailure increments the consecutive-failure counter and trips the
// breaker to OPEN at the configured threshold (or immediately from
// HALF_OPEN).
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	now := b.now()
	b.totalFailures++

	var pending *Transition
	switch b.state {
	case domain.BreakerHalfOpen:
		pending = b.setStateLocked(domain.BreakerOpen, "failure during half-open probe", now)
	case domain.BreakerClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			pending = b.setStateLocked(domain.BreakerOpen, "consecutive failure threshold reached", now)
		}
	case domain.BreakerOpen:
		// Already open; nothing to do.
	}
	cb := b.onTransition
	b.mu.Unlock()

	if pending != nil && cb != nil {
		cb(*pending)
	}
}

// ForceClose manually resets the breaker to CLOSED.
func (b *Breaker) ForceClose() {
	b.mu.Lock()
	b.consecutiveFailures = 0
	pending := b.setStateLocked(domain.BreakerClosed, "forced close", b.now())
	cb := b.onTransition
	b.mu.Unlock()

	if pending != nil && cb != nil {
		cb(*pending)
	}
}

// ForceOpen manually trips the breaker to OPEN with the given reason.
func (b *Breaker) ForceOpen(reason string) {
	b.mu.Lock()
	pending := b.setStateLocked(domain.BreakerOpen, reason, b.now())
	cb := b.onTransition
	b.mu.Unlock()

	if pending != nil && cb != nil {
		cb(*pending)
	}
}

// setStateLocked must be called with b.mu held. It returns the transition to
// emit, or nil if newState equals the current state.
func (b *Breaker) setStateLocked(newState domain.BreakerState, reason string, now time.Time) *Transition {
	prev := b.state
	if prev == newState {
		return nil
	}
	b.state = newState
	b.lastStateChangeAt = now
	if newState == domain.BreakerOpen {
		b.openedAt = now
		b.timesTripped++
	}
	b.halfOpenAttemptsUsed = 0

	return &Transition{
		PreviousState:       prev,
		NewState:            newState,
		Reason:              reason,
		ConsecutiveFailures: b.consecutiveFailures,
		Timestamp:           now,
	}
}

// Snapshot returns a point-in-time read of the breaker's state and
// counters.
func (b *Breaker) Snapshot() domain.CircuitBreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return domain.CircuitBreakerSnapshot{
		State:                b.state,
		ConsecutiveFailures:  b.consecutiveFailures,
		LastStateChangeAt:    b.lastStateChangeAt,
		HalfOpenAttemptsUsed: b.halfOpenAttemptsUsed,
		TimesTripped:         b.timesTripped,
		TotalFailures:        b.totalFailures,
		TotalSuccesses:       b.totalSuccesses,
		TotalOpenTimeMs:      b.totalOpenTimeMs,
	}
}
