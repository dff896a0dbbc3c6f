// Package coordinator implements the fleet-wide health aggregator,
// opportunity cache, and alert pipeline the coordinator process runs.
package coordinator

import (
	"container/heap"
	"context"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arbplane/arbplane/internal/domain"
	"github.com/arbplane/arbplane/internal/eventlog"
)

// MaxOpportunities bounds the in-memory opportunity cache; entries beyond
// this count are pruned oldest-first once per cleanup tick.
const MaxOpportunities = 1000

// AlertSink receives alerts the coordinator raises (cooldown-gated
// STREAM_CONSUMER_FAILURE bursts, health-derived alerts, etc.) so delivery
// can be handled by an independent notifier without a back-reference.
type AlertSink interface {
	NotifyAlert(ctx context.Context, alert domain.Alert) error
	RecordAlert(alert domain.Alert)
}

// Coordinator owns fleet health, the opportunity cache, and system metrics,
// consuming the shared event log and emitting its own health heartbeat.
type Coordinator struct {
	log         eventlog.Log
	alerts      AlertSink
	cooldown    *CooldownManager
	streamErr   *StreamErrorTracker
	serviceName string
	instanceID  string
	consumerGrp string
	logger      *slog.Logger
	now         func() time.Time
	running     atomic.Bool

	mu           sync.RWMutex
	health       map[string]domain.ServiceHealth
	opportunities map[string]domain.Opportunity
	metrics      domain.SystemMetrics

	staleAfter time.Duration
}

// New creates a Coordinator. serviceName/instanceID identify this process's
// own health heartbeat; consumerGroup names the shared consumer group this
// coordinator's stream readers join.
func New(log eventlog.Log, alerts AlertSink, serviceName, instanceID, consumerGroup string, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		log:           log,
		alerts:        alerts,
		cooldown:      NewCooldownManager(0, 0, 0),
		streamErr:     NewStreamErrorTracker(),
		serviceName:   serviceName,
		instanceID:    instanceID,
		consumerGrp:   consumerGroup,
		logger:        logger.With(slog.String("component", "coordinator")),
		now:           time.Now,
		health:        make(map[string]domain.ServiceHealth),
		opportunities: make(map[string]domain.Opportunity),
		staleAfter:    30 * time.Second,
	}
}

// Run starts every stream consumer plus the self-health heartbeat and
// cleanup tickers, blocking until ctx is cancelled. IsRunning reports true
// for the duration of this call.
func (c *Coordinator) Run(ctx context.Context) error {
	c.running.Store(true)
	defer c.running.Store(false)

	g, ctx := errgroup.WithContext(ctx)

	consumers := []struct {
		stream  string
		handler eventlog.Handler
	}{
		{eventlog.StreamHealth, c.handleHealth},
		{eventlog.StreamOpportunities, c.handleOpportunity},
		{eventlog.StreamWhaleAlerts, c.handleCounterOnly(func(m *domain.SystemMetrics) *int64 { return &m.WhaleAlerts })},
		{eventlog.StreamVolumeAggregates, c.handleCounterOnly(func(m *domain.SystemMetrics) *int64 { return &m.VolumeUpdates })},
		{eventlog.StreamPriceUpdates, c.handleCounterOnly(func(m *domain.SystemMetrics) *int64 { return &m.PriceUpdates })},
		{eventlog.StreamExecutionResults, c.handleExecutionResult},
	}

	for _, cons := range consumers {
		cg := eventlog.NewConsumerGroup(c.log, cons.stream, c.consumerGrp, c.instanceID, 10, 2*time.Second, 5, cons.handler, c.logger)
		cg.OnStreamError(c.onStreamError)
		g.Go(func() error { return cg.Run(ctx) })
	}

	g.Go(func() error { return c.runSelfHealth(ctx, 5*time.Second) })
	g.Go(func() error { return c.runCleanup(ctx, time.Second) })

	return g.Wait()
}

func (c *Coordinator) onStreamError(stream string, consecutiveErrors int) {
	alert, fire := c.streamErr.RecordError(stream, consecutiveErrors, c.now())
	if !fire {
		return
	}
	c.raise(alert)
}

// raise cooldown-gates and fans an alert out through the sink, recording it
// into history regardless of delivery outcome.
func (c *Coordinator) raise(alert domain.Alert) {
	if !c.cooldown.ShouldFire(alert.CooldownKey(), c.now()) {
		return
	}
	c.alerts.RecordAlert(alert)
	if err := c.alerts.NotifyAlert(context.Background(), alert); err != nil {
		c.logger.Warn("alert delivery failed", slog.String("type", alert.Type), slog.String("error", err.Error()))
	}
}

func (c *Coordinator) handleHealth(ctx context.Context, msg eventlog.Message) error {
	svc := msg.Fields["service"]
	if svc == "" {
		return domain.ErrInvalidOpportunity
	}
	h := domain.ServiceHealth{
		Service:    svc,
		Status:     domain.HealthStatus(msg.Fields["status"]),
		LastSeen:   c.now(),
		UptimeSec:  parseFloat(msg.Fields["uptimeSec"]),
		MemoryMB:   parseFloat(msg.Fields["memoryMB"]),
		CPUPercent: parseFloat(msg.Fields["cpuPercent"]),
	}
	c.mu.Lock()
	c.health[svc] = h
	c.streamErr.RecordSuccess(eventlog.StreamHealth)
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) handleOpportunity(ctx context.Context, msg eventlog.Message) error {
	id := msg.Fields["id"]
	if id == "" {
		return domain.ErrInvalidOpportunity
	}
	expiresAt, _ := time.Parse(time.RFC3339Nano, msg.Fields["expiresAt"])
	ts, _ := time.Parse(time.RFC3339Nano, msg.Fields["timestamp"])
	opp := domain.Opportunity{
		ID:             id,
		Type:           domain.OpportunityType(msg.Fields["type"]),
		SourceChain:    msg.Fields["sourceChain"],
		DestChain:      msg.Fields["destChain"],
		ExpectedProfit: parseFloat(msg.Fields["expectedProfit"]),
		Confidence:     parseFloat(msg.Fields["confidence"]),
		Timestamp:      ts,
		ExpiresAt:      expiresAt,
	}

	c.mu.Lock()
	c.opportunities[id] = opp
	c.metrics.OpportunitiesSeen++
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) handleExecutionResult(ctx context.Context, msg eventlog.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg.Fields["success"] == "true" {
		c.metrics.ExecutionsSucceeded++
	} else {
		c.metrics.ExecutionsFailed++
	}
	if msg.Fields["error"] == "ERR_EXECUTION_TIMEOUT" {
		c.metrics.ExecutionTimeouts++
	}
	return nil
}

func (c *Coordinator) handleCounterOnly(field func(*domain.SystemMetrics) *int64) eventlog.Handler {
	return func(ctx context.Context, msg eventlog.Message) error {
		c.mu.Lock()
		*field(&c.metrics)++
		c.mu.Unlock()
		return nil
	}
}

// pruneOpportunities evicts the oldest entries (by ExpiresAt, then
// Timestamp) in a single batch pass, never inline per message.
func (c *Coordinator) pruneOpportunities(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.opportunities) <= MaxOpportunities {
		return
	}

	all := make([]domain.Opportunity, 0, len(c.opportunities))
	for _, o := range c.opportunities {
		all = append(all, o)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].ExpiresAt.Equal(all[j].ExpiresAt) {
			return all[i].ExpiresAt.Before(all[j].ExpiresAt)
		}
		return all[i].Timestamp.Before(all[j].Timestamp)
	})

	toEvict := len(c.opportunities) - MaxOpportunities
	for i := 0; i < toEvict && i < len(all); i++ {
		delete(c.opportunities, all[i].ID)
	}
}

// runCleanup prunes expired opportunities and sweeps the cooldown map on a
// single shared batch ticker.
func (c *Coordinator) runCleanup(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.pruneExpired()
			c.cooldown.Cleanup(c.now())
		}
	}
}

func (c *Coordinator) pruneExpired() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, o := range c.opportunities {
		if o.Expired(now) {
			delete(c.opportunities, id)
		}
	}
	if len(c.opportunities) > MaxOpportunities {
		overflow := len(c.opportunities) - MaxOpportunities
		c.mu.Unlock()
		c.pruneOpportunities(overflow)
		c.mu.Lock()
	}
}

// runSelfHealth appends this coordinator's own health record to
// stream:health every interval.
func (c *Coordinator) runSelfHealth(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	started := c.now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fields := map[string]string{
				"service":   c.serviceName,
				"status":    string(domain.HealthStatusHealthy),
				"uptimeSec": strconv.FormatFloat(c.now().Sub(started).Seconds(), 'f', 2, 64),
			}
			if _, err := c.log.Append(ctx, eventlog.StreamHealth, fields); err != nil {
				c.logger.WarnContext(ctx, "self health append failed", slog.String("error", err.Error()))
			}
		}
	}
}

// IsRunning reports whether Run's consumer/heartbeat goroutines are
// currently active.
func (c *Coordinator) IsRunning() bool {
	return c.running.Load()
}

// SystemHealth returns the fraction of known services currently healthy, in
// [0, 100]. 100 when no services are known yet.
func (c *Coordinator) SystemHealth() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.systemHealthLocked()
}

func (c *Coordinator) systemHealthLocked() float64 {
	if len(c.health) == 0 {
		return 100
	}
	now := c.now()
	healthy := 0
	for _, h := range c.health {
		status := h.Status
		if h.Stale(now, c.staleAfter) {
			status = domain.HealthStatusUnhealthy
		}
		if status == domain.HealthStatusHealthy {
			healthy++
		}
	}
	return 100 * float64(healthy) / float64(len(c.health))
}

// Services returns a snapshot of every known service's health, with
// staleness re-derived against now.
func (c *Coordinator) Services() map[string]domain.ServiceHealth {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()
	out := make(map[string]domain.ServiceHealth, len(c.health))
	for name, h := range c.health {
		if h.Stale(now, c.staleAfter) && h.Status != domain.HealthStatusUnhealthy {
			h.Status = domain.HealthStatusUnhealthy
		}
		out[name] = h
	}
	return out
}

// Metrics returns a snapshot of the running counters.
func (c *Coordinator) Metrics() domain.SystemMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metrics
}

// oppHeap is a min-heap over Opportunity by Timestamp, used for the top-100
// partial selection (container/heap gives O(n log k) instead of a full
// sort when the cache holds more than k candidates).
type oppHeap []domain.Opportunity

func (h oppHeap) Len() int            { return len(h) }
func (h oppHeap) Less(i, j int) bool  { return h[i].Timestamp.Before(h[j].Timestamp) }
func (h oppHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *oppHeap) Push(x any)         { *h = append(*h, x.(domain.Opportunity)) }
func (h *oppHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// TopOpportunities returns up to limit opportunities ordered newest-first by
// Timestamp. When the cache holds more than limit entries it uses a bounded
// min-heap (O(n log limit)); otherwise a full sort.
func (c *Coordinator) TopOpportunities(limit int) []domain.Opportunity {
	c.mu.RLock()
	all := make([]domain.Opportunity, 0, len(c.opportunities))
	for _, o := range c.opportunities {
		all = append(all, o)
	}
	c.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	if len(all) <= limit {
		sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.After(all[j].Timestamp) })
		return all
	}

	h := make(oppHeap, 0, limit)
	heap.Init(&h)
	for _, o := range all {
		if h.Len() < limit {
			heap.Push(&h, o)
			continue
		}
		if o.Timestamp.After(h[0].Timestamp) {
			heap.Pop(&h)
			heap.Push(&h, o)
		}
	}

	out := make([]domain.Opportunity, h.Len())
	copy(out, h)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// AcknowledgeAlert clears a raised alert's cooldown record so a future
// occurrence fires immediately, trying the service-scoped key first and
// falling back to the system-scoped key.
func (c *Coordinator) AcknowledgeAlert(alertType string) bool {
	if c.cooldown.Clear(alertType) {
		return true
	}
	return c.cooldown.Clear(alertType + "_system")
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
