package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arbplane/arbplane/internal/lock"
)

// fakeManager is an in-memory Manager used to exercise WithLock's fencing
// and renewal behavior without a Redis dependency.
type fakeManager struct {
	mu     sync.Mutex
	holder map[string]string
	renews int
}

func newFakeManager() *fakeManager {
	return &fakeManager{holder: make(map[string]string)}
}

func (f *fakeManager) Acquire(_ context.Context, key, ownerID string, _ time.Duration) (bool, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h, ok := f.holder[key]; ok {
		return false, h, nil
	}
	f.holder[key] = ownerID
	return true, ownerID, nil
}

func (f *fakeManager) Renew(_ context.Context, key, ownerID string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renews++
	return f.holder[key] == ownerID, nil
}

func (f *fakeManager) Release(_ context.Context, key, ownerID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.holder[key] != ownerID {
		return false, nil
	}
	delete(f.holder, key)
	return true, nil
}

func (f *fakeManager) ForceRelease(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.holder, key)
	return nil
}

func TestWithLock_RunsFnAndReleases(t *testing.T) {
	m := newFakeManager()
	ran := false

	acquired, err := lock.WithLock(context.Background(), m, "opp:1", "owner-a", 50*time.Millisecond, func(ctx context.Context) error {
		ran = true
		return nil
	})

	require.NoError(t, err)
	require.True(t, acquired)
	require.True(t, ran)

	m.mu.Lock()
	_, stillHeld := m.holder["opp:1"]
	m.mu.Unlock()
	require.False(t, stillHeld)
}

func TestWithLock_SecondCallerBlockedWhileHeld(t *testing.T) {
	m := newFakeManager()
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_, _ = lock.WithLock(context.Background(), m, "opp:2", "owner-a", 50*time.Millisecond, func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	acquired, err := lock.WithLock(context.Background(), m, "opp:2", "owner-b", 50*time.Millisecond, func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
	require.False(t, acquired)

	close(release)
}

func TestWithLock_RenewsOnSchedule(t *testing.T) {
	m := newFakeManager()
	var renewObserved bool

	_, err := lock.WithLock(context.Background(), m, "opp:3", "owner-a", 30*time.Millisecond, func(ctx context.Context) error {
		time.Sleep(80 * time.Millisecond)
		m.mu.Lock()
		renewObserved = m.renews > 0
		m.mu.Unlock()
		return nil
	})

	require.NoError(t, err)
	require.True(t, renewObserved)
}
