// Package leader implements per-service, per-region leader election over
// the shared fenced lock primitive. Only the leader performs
// cluster-side-effecting work (service restart, singleton cleanups);
// non-leaders still serve read endpoints. Grounded on the river-style
// elector (gainLeadership / keepLeadership / giveUpLeadership loop,
// subscriber notification channel) but retargeted from Postgres
// LISTEN/NOTIFY onto internal/lock.Manager.
package leader

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/arbplane/arbplane/internal/lock"
)

// ChangeFunc is the narrow callback fired on every leadership transition, a
// capability rather than a full back-reference per the spec's cyclic-graph
// guidance.
type ChangeFunc func(isLeader bool)

// Elector runs the follower -> leader -> follower state machine for a
// single lock key.
type Elector struct {
	lockMgr  lock.Manager
	key      string
	id       string
	ttl      time.Duration
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	isLeader  bool
	listeners []ChangeFunc
}

// NewElector creates an Elector for the given lock key. id must be unique
// per instance (typically a uuid). ttl is the lock TTL; renewal happens on
// a ttl/3 schedule, matching the lock package's own convention.
func NewElector(lockMgr lock.Manager, key, id string, ttl time.Duration, logger *slog.Logger) *Elector {
	return &Elector{
		lockMgr:  lockMgr,
		key:      key,
		id:       id,
		ttl:      ttl,
		interval: ttl / 3,
		logger:   logger.With(slog.String("component", "leader_elector"), slog.String("key", key), slog.String("id", id)),
	}
}

// OnChange registers a callback invoked whenever leadership is gained or
// lost. Safe to call before Run.
func (e *Elector) OnChange(fn ChangeFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// IsLeader reports the last-known leadership state.
func (e *Elector) IsLeader() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isLeader
}

// Run drives the election loop until ctx is cancelled, at which point it
// releases any held leadership before returning.
func (e *Elector) Run(ctx context.Context) error {
	defer e.giveUpLeadership()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !e.gainLeadership(ctx) {
			return ctx.Err()
		}

		e.setLeader(true)
		err := e.keepLeadership(ctx)
		e.setLeader(false)
		e.logger.WarnContext(ctx, "leadership lost")

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			e.logger.ErrorContext(ctx, "keep leadership error", slog.String("error", err.Error()))
		}
	}
}

func (e *Elector) gainLeadership(ctx context.Context) bool {
	for {
		ok, _, err := e.lockMgr.Acquire(ctx, e.key, e.id, e.ttl)
		if err != nil {
			e.logger.ErrorContext(ctx, "acquire failed", slog.String("error", err.Error()))
		}
		if ok {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(e.interval):
		}
	}
}

func (e *Elector) keepLeadership(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			renewed, err := e.lockMgr.Renew(ctx, e.key, e.id, e.ttl)
			if err != nil {
				return err
			}
			if !renewed {
				return nil
			}
		}
	}
}

func (e *Elector) giveUpLeadership() {
	if !e.IsLeader() {
		return
	}
	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = e.lockMgr.Release(releaseCtx, e.key, e.id)
	e.setLeader(false)
}

func (e *Elector) setLeader(isLeader bool) {
	e.mu.Lock()
	if e.isLeader == isLeader {
		e.mu.Unlock()
		return
	}
	e.isLeader = isLeader
	listeners := append([]ChangeFunc(nil), e.listeners...)
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(isLeader)
	}
}

// LeaderKey builds the coordinator's singleton leader lock key.
func LeaderKey() string {
	return "coordinator:leader:lock"
}

// EngineLeaderKey builds the per-region execution-engine leader lock key.
func EngineLeaderKey(region string) string {
	return "execution-engine:leader:lock:" + region
}
