// Package pipeline implements the execution engine's per-opportunity
// processing sequence: dequeue, duplicate suppression, circuit-breaker
// gate, risk gate, fenced lock, strategy dispatch, and result publication,
// draining in-flight work on shutdown.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arbplane/arbplane/internal/domain"
	"github.com/arbplane/arbplane/internal/engine/breaker"
	"github.com/arbplane/arbplane/internal/engine/lockconflict"
	"github.com/arbplane/arbplane/internal/engine/queue"
	"github.com/arbplane/arbplane/internal/engine/risk"
	"github.com/arbplane/arbplane/internal/engine/strategy"
	"github.com/arbplane/arbplane/internal/eventlog"
	"github.com/arbplane/arbplane/internal/lock"
)

// Config holds the pipeline's tunables.
type Config struct {
	MaxConcurrentExecutions int
	LockTTL                 time.Duration
	ExecutionTimeout        time.Duration
	RiskEnabled             bool
}

// DefaultConfig holds the documented defaults: maxConcurrentExecutions=5,
// lock TTL=60s, timeout=55s (< lock TTL).
func DefaultConfig() Config {
	return Config{
		MaxConcurrentExecutions: 5,
		LockTTL:                 60 * time.Second,
		ExecutionTimeout:        55 * time.Second,
		RiskEnabled:             true,
	}
}

// TradeLog persists a completed execution result, in addition to the
// always-on stream:execution-results publication.
type TradeLog interface {
	Record(ctx context.Context, result domain.ExecutionResult) error
}

// Metrics is the narrow capability interface the pipeline uses to report
// counters, avoiding a back-reference to the coordinator's metrics
// aggregate.
type Metrics interface {
	IncOpportunitiesSeen()
	IncOpportunitiesRejected()
	IncExecutionsSucceeded()
	IncExecutionsFailed()
	IncExecutionTimeouts()
	IncCircuitBreakerBlocks()
	IncRiskDrawdownBlocks()
	IncRiskEVRejections()
	IncRiskPositionSizeRejections()
}

// Pipeline processes opportunities dequeued from a queue.Queue, up to
// MaxConcurrentExecutions at a time.
type Pipeline struct {
	cfg      Config
	q        *queue.Queue
	log      eventlog.Log
	lockMgr  lock.Manager
	cb       *breaker.Breaker
	riskOrch *risk.Orchestrator
	registry *strategy.Registry
	sctx     *strategy.Context
	conflict *lockconflict.Tracker
	tradeLog TradeLog
	metrics  Metrics
	ownerID  string
	logger   *slog.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

// New creates a Pipeline wired to its dependencies. metrics and tradeLog may
// be nil; a nil metrics is a no-op, a nil tradeLog skips persistent logging.
func New(
	cfg Config,
	q *queue.Queue,
	log eventlog.Log,
	lockMgr lock.Manager,
	cb *breaker.Breaker,
	riskOrch *risk.Orchestrator,
	registry *strategy.Registry,
	sctx *strategy.Context,
	conflict *lockconflict.Tracker,
	tradeLog TradeLog,
	metrics Metrics,
	ownerID string,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConcurrentExecutions <= 0 {
		cfg = DefaultConfig()
	}
	return &Pipeline{
		cfg:      cfg,
		q:        q,
		log:      log,
		lockMgr:  lockMgr,
		cb:       cb,
		riskOrch: riskOrch,
		registry: registry,
		sctx:     sctx,
		conflict: conflict,
		tradeLog: tradeLog,
		metrics:  metrics,
		ownerID:  ownerID,
		logger:   logger.With(slog.String("component", "pipeline")),
		active:   make(map[string]struct{}),
	}
}

// Run drains the queue until ctx is cancelled, processing up to
// MaxConcurrentExecutions opportunities concurrently via an errgroup-backed
// semaphore.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started")
	defer p.logger.Info("pipeline stopped")

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, p.cfg.MaxConcurrentExecutions)
	signal := make(chan struct{}, 1)
	p.q.OnItemAvailable(func() {
		select {
		case signal <- struct{}{}:
		default:
		}
	})

	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return ctx.Err()
		case <-signal:
		drainLoop:
			for {
				if gctx.Err() != nil {
					break drainLoop
				}
				opp, ok := p.q.Dequeue()
				if !ok {
					break drainLoop
				}
				select {
				case sem <- struct{}{}:
				case <-gctx.Done():
					break drainLoop
				}
				opp := opp
				g.Go(func() error {
					defer func() { <-sem }()
					p.processOne(gctx, opp)
					return nil
				})
			}
		}
	}
}

// processOne runs the full per-item sequence — duplicate suppression,
// breaker gate, risk gate, fenced lock, strategy dispatch, result
// publication — with dequeue left to the caller.
func (p *Pipeline) processOne(ctx context.Context, opp domain.Opportunity) {
	log := p.logger.With(slog.String("opportunity_id", opp.ID), slog.String("opportunity_type", string(opp.Type)))
	p.incSeen()

	if !p.beginActive(opp.ID) {
		log.Debug("duplicate delivery coalesced")
		return
	}
	defer p.endActive(opp.ID)

	if opp.Expired(time.Now()) {
		log.Warn("opportunity expired before processing")
		p.incRejected()
		return
	}

	if !p.cb.CanExecute() {
		log.Warn("circuit breaker open, dropping opportunity")
		p.incRejected()
		if p.metrics != nil {
			p.metrics.IncCircuitBreakerBlocks()
		}
		return
	}

	sized := opp
	if p.cfg.RiskEnabled && p.riskOrch != nil {
		decision := p.riskOrch.PreTradeCheck(opp, 1.0)
		if !decision.Allowed {
			log.Warn("risk gate rejected opportunity", slog.String("reason", decision.RejectReason))
			p.incRejected()
			p.incRiskRejection(decision.RejectReason)
			return
		}
		if decision.PositionSize > 0 {
			sized.ExpectedProfit = decision.PositionSize
		}
	}

	result, acquired := p.executeWithLock(ctx, sized, log)
	if !acquired {
		log.Warn("could not acquire opportunity lock, dropping")
		p.incRejected()
		return
	}

	p.publish(ctx, result, log)
	if result.Success {
		p.cb.RecordSuccess()
		if p.metrics != nil {
			p.metrics.IncExecutionsSucceeded()
		}
	} else {
		p.cb.RecordFailure()
		if p.metrics != nil {
			p.metrics.IncExecutionsFailed()
		}
	}
}

// executeWithLock acquires the per-opportunity lock (key "opp:${id}"),
// retrying once via stale-holder force-release when the lock-conflict
// tracker declares the current holder stale, then dispatches the strategy
// under a renewing lock and a hard execution timeout.
func (p *Pipeline) executeWithLock(ctx context.Context, opp domain.Opportunity, log *slog.Logger) (domain.ExecutionResult, bool) {
	key := "opp:" + opp.ID

	acquired, holder, err := p.lockMgr.Acquire(ctx, key, p.ownerID, p.cfg.LockTTL)
	if err != nil {
		log.Error("lock acquire error", slog.String("error", err.Error()))
		return domain.ExecutionResult{}, false
	}
	if !acquired {
		stale := p.conflict.RecordConflict(opp.ID, time.Now())
		if !stale {
			log.Debug("lock held by another owner", slog.String("holder", holder))
			return domain.ExecutionResult{}, false
		}

		log.Warn("stale lock holder detected, force-releasing and retrying once")
		if err := p.lockMgr.ForceRelease(ctx, key); err != nil {
			log.Error("force release failed", slog.String("error", err.Error()))
			return domain.ExecutionResult{}, false
		}
		p.conflict.RecordStaleRecovery(opp.ID)

		acquired, _, err = p.lockMgr.Acquire(ctx, key, p.ownerID, p.cfg.LockTTL)
		if err != nil {
			log.Error("lock retry acquire error", slog.String("error", err.Error()))
			return domain.ExecutionResult{}, false
		}
		if !acquired {
			log.Warn("lock retry also failed")
			return domain.ExecutionResult{}, false
		}
	}
	p.conflict.RecordAcquired(opp.ID)

	renewCtx, cancelRenew := context.WithCancel(ctx)
	renewDone := make(chan struct{})
	go func() {
		defer close(renewDone)
		ticker := time.NewTicker(p.cfg.LockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-renewCtx.Done():
				return
			case <-ticker.C:
				_, _ = p.lockMgr.Renew(renewCtx, key, p.ownerID, p.cfg.LockTTL)
			}
		}
	}()

	execCtx, cancelExec := context.WithTimeout(ctx, p.cfg.ExecutionTimeout)
	result, err := p.registry.Dispatch(execCtx, opp, p.sctx)
	cancelExec()

	cancelRenew()
	<-renewDone
	_, _ = p.lockMgr.Release(context.WithoutCancel(ctx), key, p.ownerID)

	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			log.Warn("strategy execution timed out")
			if p.metrics != nil {
				p.metrics.IncExecutionTimeouts()
			}
			return domain.ExecutionResult{
				OpportunityID: opp.ID,
				Success:       false,
				Error:         "ERR_EXECUTION_TIMEOUT",
				Timestamp:     time.Now(),
			}, true
		}
		log.Error("strategy dispatch error", slog.String("error", err.Error()))
		return domain.ExecutionResult{
			OpportunityID: opp.ID,
			Success:       false,
			Error:         err.Error(),
			Timestamp:     time.Now(),
		}, true
	}

	return result, true
}

// publish always appends the result to stream:execution-results and, if a
// trade log is wired, persists it there too. Both happen regardless of
// success or failure.
func (p *Pipeline) publish(ctx context.Context, result domain.ExecutionResult, log *slog.Logger) {
	fields := map[string]string{
		"opportunityId":   result.OpportunityID,
		"success":         fmt.Sprintf("%t", result.Success),
		"transactionHash": result.TransactionHash,
		"actualProfit":    fmt.Sprintf("%f", result.ActualProfit),
		"gasUsed":         fmt.Sprintf("%d", result.GasUsed),
		"gasCost":         fmt.Sprintf("%f", result.GasCost),
		"error":           result.Error,
		"chain":           result.Chain,
		"dex":             result.Dex,
	}
	if _, err := p.log.Append(ctx, eventlog.StreamExecutionResults, fields); err != nil {
		log.Error("append execution result failed", slog.String("error", err.Error()))
	}
	if p.tradeLog != nil {
		if err := p.tradeLog.Record(ctx, result); err != nil {
			log.Error("trade log record failed", slog.String("error", err.Error()))
		}
	}
}

func (p *Pipeline) beginActive(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.active[id]; ok {
		return false
	}
	p.active[id] = struct{}{}
	return true
}

func (p *Pipeline) endActive(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, id)
}

func (p *Pipeline) incSeen() {
	if p.metrics != nil {
		p.metrics.IncOpportunitiesSeen()
	}
}

func (p *Pipeline) incRejected() {
	if p.metrics != nil {
		p.metrics.IncOpportunitiesRejected()
	}
}

func (p *Pipeline) incRiskRejection(reason string) {
	if p.metrics == nil {
		return
	}
	switch reason {
	case "drawdown_halt":
		p.metrics.IncRiskDrawdownBlocks()
	case "ev_below_threshold":
		p.metrics.IncRiskEVRejections()
	case "position_size_zero":
		p.metrics.IncRiskPositionSizeRejections()
	}
}
