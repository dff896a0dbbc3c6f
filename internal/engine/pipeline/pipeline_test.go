package pipeline_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arbplane/arbplane/internal/domain"
	"github.com/arbplane/arbplane/internal/engine/breaker"
	"github.com/arbplane/arbplane/internal/engine/lockconflict"
	"github.com/arbplane/arbplane/internal/engine/pipeline"
	"github.com/arbplane/arbplane/internal/engine/queue"
	"github.com/arbplane/arbplane/internal/engine/risk"
	"github.com/arbplane/arbplane/internal/engine/strategy"
	"github.com/arbplane/arbplane/internal/eventlog"
)

type fakeLock struct {
	mu      sync.Mutex
	holders map[string]string
}

func newFakeLock() *fakeLock { return &fakeLock{holders: make(map[string]string)} }

func (f *fakeLock) Acquire(ctx context.Context, key, ownerID string, ttl time.Duration) (bool, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h, ok := f.holders[key]; ok {
		return false, h, nil
	}
	f.holders[key] = ownerID
	return true, "", nil
}

func (f *fakeLock) Renew(ctx context.Context, key, ownerID string, ttl time.Duration) (bool, error) {
	return true, nil
}

func (f *fakeLock) Release(ctx context.Context, key, ownerID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.holders[key] == ownerID {
		delete(f.holders, key)
		return true, nil
	}
	return false, nil
}

func (f *fakeLock) ForceRelease(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.holders, key)
	return nil
}

type recordFunc func(ctx context.Context, r domain.ExecutionResult) error

func (f recordFunc) Record(ctx context.Context, r domain.ExecutionResult) error { return f(ctx, r) }

type noopEventLog struct{}

func (noopEventLog) Append(ctx context.Context, stream string, fields map[string]string) (string, error) {
	return "1-0", nil
}
func (noopEventLog) CreateGroup(ctx context.Context, stream, group, from string) error { return nil }
func (noopEventLog) ReadGroup(ctx context.Context, stream, group, consumerID string, count int64, block time.Duration) ([]eventlog.Message, error) {
	return nil, nil
}
func (noopEventLog) Ack(ctx context.Context, stream, group string, ids ...string) error { return nil }
func (noopEventLog) Pending(ctx context.Context, stream, group string) (eventlog.PendingSummary, error) {
	return eventlog.PendingSummary{}, nil
}
func (noopEventLog) Len(ctx context.Context, stream string) (int64, error)       { return 0, nil }
func (noopEventLog) Trim(ctx context.Context, stream string, maxLen int64) error { return nil }

var _ eventlog.Log = noopEventLog{}

func TestPipeline_HappyPathPublishesSuccessResult(t *testing.T) {
	q := queue.New(queue.DefaultConfig())
	defer q.Close()

	lockMgr := newFakeLock()
	cb := breaker.New(breaker.DefaultConfig())
	drawdown := risk.NewDrawdownBreaker(risk.DefaultConfig(), 1000)
	tracker := risk.NewProbabilityTracker(0.1)
	for i := 0; i < 3; i++ {
		tracker.Observe(domain.OpportunityCrossDex, true)
	}
	riskOrch := risk.NewOrchestrator(risk.DefaultConfig(), drawdown, tracker, nil)

	registry := strategy.NewRegistry()
	sim := strategy.NewSimulationStrategy(strategy.SimulationConfig{LatencyMs: 0, SuccessRate: 1, ProfitVariance: 0})
	registry.Register(domain.OpportunityCrossDex, sim)

	conflict := lockconflict.New()

	recorded := make(chan domain.ExecutionResult, 1)
	tl := recordFunc(func(ctx context.Context, r domain.ExecutionResult) error {
		select {
		case recorded <- r:
		default:
		}
		return nil
	})

	p := pipeline.New(pipeline.DefaultConfig(), q, noopEventLog{}, lockMgr, cb, riskOrch, registry, &strategy.Context{}, conflict, tl, nil, "engine-1", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = p.Run(ctx) }()

	q.Enqueue(domain.Opportunity{ID: "opp-1", Type: domain.OpportunityCrossDex, ExpectedProfit: 10, Confidence: 0.9})

	select {
	case r := <-recorded:
		require.True(t, r.Success)
		require.Equal(t, "opp-1", r.OpportunityID)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not publish a result")
	}
}

func TestPipeline_RiskGateRejectsWhenDrawdownHalted(t *testing.T) {
	q := queue.New(queue.DefaultConfig())
	defer q.Close()

	lockMgr := newFakeLock()
	cb := breaker.New(breaker.DefaultConfig())
	// A drawdown breaker already halted rejects everything.
	drawdown := risk.NewDrawdownBreaker(risk.Config{MaxDrawdownPct: 0.01}, 1000)
	drawdown.RecordPnL(-50)
	riskOrch := risk.NewOrchestrator(risk.DefaultConfig(), drawdown, risk.NewProbabilityTracker(0.1), nil)

	registry := strategy.NewRegistry()
	registry.Register(domain.OpportunityCrossDex, strategy.NewSimulationStrategy(strategy.SimulationConfig{LatencyMs: 0, SuccessRate: 1}))

	published := make(chan struct{}, 1)
	tl := recordFunc(func(ctx context.Context, r domain.ExecutionResult) error {
		select {
		case published <- struct{}{}:
		default:
		}
		return nil
	})

	p := pipeline.New(pipeline.DefaultConfig(), q, noopEventLog{}, lockMgr, cb, riskOrch, registry, &strategy.Context{}, lockconflict.New(), tl, nil, "engine-1", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	q.Enqueue(domain.Opportunity{ID: "opp-2", Type: domain.OpportunityCrossDex, ExpectedProfit: 10, Confidence: 0.9})

	select {
	case <-published:
		t.Fatal("risk-gated opportunity should never reach publication")
	case <-time.After(300 * time.Millisecond):
	}
}
