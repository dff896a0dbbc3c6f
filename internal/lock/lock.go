// Package lock implements the fenced distributed lock primitive shared by
// the leader elector and the execution pipeline's per-opportunity locking,
// exposing a fenced Acquire/Renew/Release/ForceRelease contract.
package lock

import (
	"context"
	"time"
)

// Manager is the distributed lock primitive over the shared K/V store.
type Manager interface {
	// Acquire attempts set-if-absent-with-expiration semantics. acquired is
	// false when another owner already holds the key; holderID then names
	// the current holder.
	Acquire(ctx context.Context, key, ownerID string, ttl time.Duration) (acquired bool, holderID string, err error)

	// Renew extends ttl only if ownerID is still the current holder
	// (fencing).
	Renew(ctx context.Context, key, ownerID string, ttl time.Duration) (bool, error)

	// Release removes the lock only if ownerID is still the current holder
	// (fencing).
	Release(ctx context.Context, key, ownerID string) (bool, error)

	// ForceRelease removes the lock unconditionally. Used by stale-holder
	// recovery.
	ForceRelease(ctx context.Context, key string) error
}

// WithLock acquires key for ownerID, runs fn, and releases on every exit
// path. While fn runs, a background goroutine renews the lock on a ttl/3
// schedule. If acquisition fails, WithLock returns (false, nil) without
// running fn.
func WithLock(ctx context.Context, m Manager, key, ownerID string, ttl time.Duration, fn func(ctx context.Context) error) (acquired bool, err error) {
	ok, _, err := m.Acquire(ctx, key, ownerID, ttl)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	renewCtx, cancelRenew := context.WithCancel(ctx)
	defer cancelRenew()

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-renewCtx.Done():
				return
			case <-ticker.C:
				_, _ = m.Renew(renewCtx, key, ownerID, ttl)
			}
		}
	}()

	runErr := fn(ctx)

	cancelRenew()
	<-done
	_, _ = m.Release(context.WithoutCancel(ctx), key, ownerID)

	return true, runErr
}
