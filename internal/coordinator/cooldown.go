package coordinator

import (
	"sync"
	"time"
)

const (
	defaultCooldown         = 5 * time.Minute
	defaultCooldownMaxAge   = time.Hour
	defaultCleanupThreshold = 1000
)

// CooldownStore is the optional delegate capability a cooldown manager can
// be backed by instead of its own in-memory map — e.g. a shared
// health-monitor component. Keys alert cooldowns the same way the rate
// limiter keys request buckets ("ratelimit:api:"+ip), but prefixed with
// the alert type and service ("${type}_${service}").
type CooldownStore interface {
	Get(key string) (lastFiredAt time.Time, ok bool)
	Set(key string, firedAt time.Time)
	Cleanup(now time.Time, maxAge time.Duration)
}

// mapStore is the default in-process CooldownStore.
type mapStore struct {
	mu   sync.Mutex
	data map[string]time.Time
}

func newMapStore() *mapStore {
	return &mapStore{data: make(map[string]time.Time)}
}

func (s *mapStore) Get(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.data[key]
	return t, ok
}

func (s *mapStore) Set(key string, firedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = firedAt
}

func (s *mapStore) Cleanup(now time.Time, maxAge time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.data {
		if now.Sub(v) > maxAge {
			delete(s.data, k)
		}
	}
}

func (s *mapStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// CooldownManager suppresses repeated alerts for the same "${type}_${service}"
// key within a cooldown window, optionally delegating storage to an external
// component. When delegated, Clear is a no-op: the delegate owns the
// record's lifecycle.
type CooldownManager struct {
	store            CooldownStore
	delegated        bool
	cooldown         time.Duration
	maxAge           time.Duration
	cleanupThreshold int

	own *mapStore // only set when store == own, so len() can be cheaply read for the threshold check
}

// NewCooldownManager creates a manager backed by its own in-memory store.
func NewCooldownManager(cooldown, maxAge time.Duration, cleanupThreshold int) *CooldownManager {
	s := newMapStore()
	return &CooldownManager{
		store:            s,
		own:              s,
		cooldown:         orDefault(cooldown, defaultCooldown),
		maxAge:           orDefault(maxAge, defaultCooldownMaxAge),
		cleanupThreshold: orDefaultInt(cleanupThreshold, defaultCleanupThreshold),
	}
}

// NewDelegatedCooldownManager creates a manager backed by an external
// CooldownStore. Clear becomes a no-op since the delegate owns cleanup.
func NewDelegatedCooldownManager(store CooldownStore, cooldown, maxAge time.Duration) *CooldownManager {
	return &CooldownManager{
		store:     store,
		delegated: true,
		cooldown:  orDefault(cooldown, defaultCooldown),
		maxAge:    orDefault(maxAge, defaultCooldownMaxAge),
	}
}

// ShouldFire reports whether an alert for key may fire at now: true and
// records now as lastFiredAt if the cooldown has elapsed (or the key has
// never fired); false (suppressed) otherwise. An opportunistic Cleanup runs
// first if the own store has grown past cleanupThreshold.
func (c *CooldownManager) ShouldFire(key string, now time.Time) bool {
	if c.own != nil && c.own.len() > c.cleanupThreshold {
		c.store.Cleanup(now, c.maxAge)
	}

	last, ok := c.store.Get(key)
	if ok && now.Sub(last) <= c.cooldown {
		return false
	}
	c.store.Set(key, now)
	return true
}

// Clear deletes key's record, e.g. on an explicit alert-acknowledge request.
// It reports whether a record existed to delete. A no-op (always false) on
// a delegated store.
func (c *CooldownManager) Clear(key string) bool {
	if c.delegated {
		return false
	}
	if _, ok := c.store.Get(key); !ok {
		return false
	}
	c.own.mu.Lock()
	delete(c.own.data, key)
	c.own.mu.Unlock()
	return true
}

// Cleanup runs a timer-driven sweep removing records older than maxAge.
func (c *CooldownManager) Cleanup(now time.Time) {
	c.store.Cleanup(now, c.maxAge)
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func orDefaultInt(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
