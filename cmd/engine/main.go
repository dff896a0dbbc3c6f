// Command engine is the execution engine: it dequeues opportunities,
// gates them through the circuit breaker and risk orchestrator, dispatches
// to a strategy under a distributed per-opportunity lock, and publishes
// results. It loads configuration, validates it, wires its Redis-backed
// dependencies, and serves a minimal health surface until SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/arbplane/arbplane/internal/cache/redis"
	"github.com/arbplane/arbplane/internal/config"
	"github.com/arbplane/arbplane/internal/domain"
	"github.com/arbplane/arbplane/internal/engine/breaker"
	"github.com/arbplane/arbplane/internal/engine/lockconflict"
	"github.com/arbplane/arbplane/internal/engine/pipeline"
	"github.com/arbplane/arbplane/internal/engine/queue"
	"github.com/arbplane/arbplane/internal/engine/risk"
	"github.com/arbplane/arbplane/internal/engine/strategy"
	"github.com/arbplane/arbplane/internal/engine/tradelog"
	"github.com/arbplane/arbplane/internal/eventlog"
	"github.com/arbplane/arbplane/internal/leader"
	"github.com/arbplane/arbplane/internal/lock"
	"github.com/arbplane/arbplane/internal/metrics"
	"github.com/arbplane/arbplane/internal/server"
	"github.com/arbplane/arbplane/internal/server/handler"
	"github.com/arbplane/arbplane/internal/store/postgres"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "engine",
		Short: "Execution engine: risk-gated, lock-fenced opportunity processing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", "config.toml", "path to configuration file")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("path", configPath), slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)
	logger.Debug("configuration loaded", slog.Any("config", config.RedactedConfig(cfg)))

	if cfg.Engine.ServiceName == "" {
		cfg.Engine.ServiceName = "execution-engine"
	}

	if err := cfg.ValidateEngine(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := strategy.CheckProductionSafety(cfg.NodeEnv, cfg.Simulation.Mode, cfg.Simulation.ProductionOverride); err != nil {
		logger.Error("refusing to start", slog.String("error", err.Error()))
		os.Exit(1)
	}

	instanceID := uuid.NewString()
	logger.Info("execution engine starting",
		slog.String("instance_id", instanceID),
		slog.Int("port", cfg.Engine.Port),
		slog.String("region", cfg.Engine.RegionID),
		slog.Bool("standby", cfg.Engine.IsStandby),
		slog.Bool("simulation", cfg.Simulation.Mode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		logger.Error("event log connect failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer rdb.Close()

	log := eventlog.NewRedisLog(rdb.Underlying(), 10_000)
	lockMgr := lock.NewRedisManager(rdb.Underlying())

	elector := leader.NewElector(lockMgr, leader.EngineLeaderKey(cfg.Engine.RegionID), instanceID, 15*time.Second, logger)

	q := queue.New(queue.Config{MaxSize: 1000, HighWaterMark: 800, LowWaterMark: 200})
	if cfg.Engine.QueuePausedOnStart {
		q.Pause()
	}
	if cfg.Engine.IsStandby {
		q.Pause()
	}

	cb := breaker.New(breaker.Config{
		FailureThreshold:    cfg.CircuitBreaker.FailureThreshold,
		CooldownPeriod:      time.Duration(cfg.CircuitBreaker.CooldownMs) * time.Millisecond,
		HalfOpenMaxAttempts: cfg.CircuitBreaker.HalfOpenMaxAttempts,
	})

	reg := metrics.New()
	cb.OnTransition(func(t breaker.Transition) {
		reg.SetBreakerState(string(t.NewState))
		logger.Info("circuit breaker transition",
			slog.String("previous", string(t.PreviousState)),
			slog.String("new", string(t.NewState)),
			slog.String("reason", t.Reason),
		)
		if _, err := log.Append(ctx, eventlog.StreamCircuitBreakerEvents, map[string]string{
			"previousState":       string(t.PreviousState),
			"newState":            string(t.NewState),
			"reason":              t.Reason,
			"consecutiveFailures": strconv.Itoa(t.ConsecutiveFailures),
		}); err != nil {
			logger.Warn("append circuit breaker event failed", slog.String("error", err.Error()))
		}
	})

	drawdown := risk.NewDrawdownBreaker(risk.Config{
		MaxDrawdownPct:   cfg.Risk.MaxDrawdownPct,
		MinExpectedValue: cfg.Risk.MinExpectedValue,
		KellyFraction:    cfg.Risk.KellyFraction,
		MaxPositionSize:  cfg.Risk.MaxPositionSize,
	}, 1.0)
	probTrack := risk.NewProbabilityTracker(0.1)
	riskOrch := risk.NewOrchestrator(risk.Config{
		MaxDrawdownPct:   cfg.Risk.MaxDrawdownPct,
		MinExpectedValue: cfg.Risk.MinExpectedValue,
		KellyFraction:    cfg.Risk.KellyFraction,
		MaxPositionSize:  cfg.Risk.MaxPositionSize,
	}, drawdown, probTrack, logger)

	registry := strategy.NewRegistry()
	if cfg.Simulation.Mode {
		sim := strategy.NewSimulationStrategy(strategy.SimulationConfig{
			LatencyMs:         cfg.Simulation.LatencyMs,
			SuccessRate:       cfg.Simulation.SuccessRate,
			GasUsed:           cfg.Simulation.GasUsed,
			GasCostMultiplier: cfg.Simulation.GasCostMultiplier,
			ProfitVariance:    cfg.Simulation.ProfitVariance,
			Log:               cfg.Simulation.Log,
		})
		for _, t := range []domain.OpportunityType{domain.OpportunityCrossDex, domain.OpportunityCrossChain, domain.OpportunityBackrun} {
			registry.Register(t, sim)
		}
	} else {
		logger.Warn("no live execution strategies registered; only the simulation strategy is implemented")
	}
	sctx := &strategy.Context{SimulationMode: cfg.Simulation.Mode, Stats: &strategy.Stats{}}

	conflict := lockconflict.New()

	fileLog := tradelog.New(fmt.Sprintf("trades-%s.log", cfg.Engine.ServiceName), 14)
	defer fileLog.Close()

	trades := tradelog.Recorder(fileLog)
	if cfg.Supabase.DSN != "" {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			logger.Error("postgres connect failed; continuing with file-only trade log", slog.String("error", err.Error()))
		} else {
			defer pg.Close()
			execStore := postgres.NewArbExecutionStore(pg.Pool())
			trades = tradelog.Multi{fileLog, tradelog.NewPostgresSink(execStore)}
			logger.Info("trade log persisting to postgres in addition to file")
		}
	}

	pcfg := pipeline.Config{
		MaxConcurrentExecutions: cfg.Engine.MaxConcurrentExecutions,
		LockTTL:                 60 * time.Second,
		ExecutionTimeout:        55 * time.Second,
		RiskEnabled:             cfg.Risk.Enabled,
	}
	pl := pipeline.New(pcfg, q, log, lockMgr, cb, riskOrch, registry, sctx, conflict, trades, reg, instanceID, logger)

	h := handler.NewEngineHandler(
		func() bool { return cfg.Engine.IsStandby },
		elector.IsLeader,
		q.Size,
		q.IsPaused,
		func() bool { return cb.Snapshot().State == domain.BreakerOpen },
	)
	srv := server.NewEngineServer(server.EngineConfig{Port: cfg.Engine.Port}, h, reg.Handler(), logger)

	ingest := eventlog.NewConsumerGroup(log, eventlog.StreamOpportunities, "execution-engine-group", instanceID, 10, 2*time.Second, 5, ingestHandler(q), logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return elector.Run(ctx) })
	g.Go(func() error { return ingest.Run(ctx) })
	g.Go(func() error { return pl.Run(ctx) })
	g.Go(func() error { return sweepLockConflicts(ctx, conflict, 5*time.Second) })
	g.Go(func() error {
		if err := srv.Start(); err != nil {
			return fmt.Errorf("engine http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return srv.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("execution engine exited with error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("execution engine stopped")
	return nil
}

// ingestHandler feeds the bounded queue from stream:opportunities. A
// malformed opportunity is acked (not replayable, mirroring the
// INVALID_OPPORTUNITY policy); a full or paused queue is left unacked so
// the consumer group redelivers it once backpressure clears.
func ingestHandler(q *queue.Queue) eventlog.Handler {
	return func(ctx context.Context, msg eventlog.Message) error {
		opp := parseOpportunity(msg)
		if err := opp.Validate(0); err != nil {
			return nil
		}
		if !q.Enqueue(opp) {
			return fmt.Errorf("queue: cannot enqueue opportunity %s: full or paused", opp.ID)
		}
		return nil
	}
}

func parseOpportunity(msg eventlog.Message) domain.Opportunity {
	expiresAt, _ := time.Parse(time.RFC3339Nano, msg.Fields["expiresAt"])
	ts, _ := time.Parse(time.RFC3339Nano, msg.Fields["timestamp"])
	return domain.Opportunity{
		ID:             msg.Fields["id"],
		Type:           domain.OpportunityType(msg.Fields["type"]),
		SourceChain:    msg.Fields["sourceChain"],
		DestChain:      msg.Fields["destChain"],
		ExpectedProfit: parseFloat(msg.Fields["expectedProfit"]),
		Confidence:     parseFloat(msg.Fields["confidence"]),
		Timestamp:      ts,
		ExpiresAt:      expiresAt,
	}
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

// sweepLockConflicts removes conflict records older than 60s every
// interval so the tracker doesn't grow unbounded across long uptimes.
func sweepLockConflicts(ctx context.Context, conflict *lockconflict.Tracker, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			conflict.Sweep(time.Now())
		}
	}
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
