package leader

import (
	"context"
	"log/slog"
	"time"
)

// RegionHealth reports whether a named region is currently considered
// healthy. Implementations typically wrap the coordinator's fleet health
// aggregate for that region.
type RegionHealth interface {
	IsRegionHealthy(region string) bool
}

// StandbyManager watches the primary region's health and, once it has been
// unhealthy for failoverThreshold consecutive checks while the local region
// is healthy, attempts to acquire the primary's leader lock and promote
// itself. It holds the Elector it promotes; the Elector holds no reference
// back to it, per the spec's cyclic-graph guidance.
type StandbyManager struct {
	elector           *Elector
	health            RegionHealth
	localRegion       string
	primaryRegion     string
	checkInterval     time.Duration
	failoverThreshold int
	logger            *slog.Logger

	onActivate func()

	consecutiveUnhealthy int
}

// NewStandbyManager creates a StandbyManager. elector must be configured
// with the primary region's leader key so a successful Acquire here
// actually takes over that region's leadership.
func NewStandbyManager(elector *Elector, health RegionHealth, localRegion, primaryRegion string, checkInterval time.Duration, failoverThreshold int, logger *slog.Logger) *StandbyManager {
	if failoverThreshold <= 0 {
		failoverThreshold = 3
	}
	return &StandbyManager{
		elector:           elector,
		health:            health,
		localRegion:       localRegion,
		primaryRegion:     primaryRegion,
		checkInterval:     checkInterval,
		failoverThreshold: failoverThreshold,
		logger:            logger.With(slog.String("component", "standby_manager"), slog.String("region", localRegion)),
	}
}

// OnActivate registers the callback fired when this standby successfully
// promotes itself ("activateStandby" in spec terms).
func (s *StandbyManager) OnActivate(fn func()) {
	s.onActivate = fn
}

// Run polls region health on checkInterval until ctx is cancelled.
func (s *StandbyManager) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

func (s *StandbyManager) check(ctx context.Context) {
	localHealthy := s.health.IsRegionHealthy(s.localRegion)
	primaryHealthy := s.health.IsRegionHealthy(s.primaryRegion)

	if !localHealthy || primaryHealthy {
		s.consecutiveUnhealthy = 0
		return
	}

	s.consecutiveUnhealthy++
	if s.consecutiveUnhealthy < s.failoverThreshold {
		return
	}

	s.logger.WarnContext(ctx, "primary region unhealthy past threshold, attempting promotion",
		slog.Int("consecutive_unhealthy", s.consecutiveUnhealthy))

	if !s.elector.gainLeadershipOnce(ctx) {
		return
	}
	s.elector.setLeader(true)
	s.consecutiveUnhealthy = 0
	if s.onActivate != nil {
		s.onActivate()
	}
}

// gainLeadershipOnce attempts a single Acquire, without blocking/retrying,
// so the standby monitor's poll cadence governs the retry interval instead
// of the elector's own backoff loop.
func (e *Elector) gainLeadershipOnce(ctx context.Context) bool {
	ok, _, err := e.lockMgr.Acquire(ctx, e.key, e.id, e.ttl)
	if err != nil {
		e.logger.ErrorContext(ctx, "standby acquire failed", slog.String("error", err.Error()))
		return false
	}
	return ok
}
