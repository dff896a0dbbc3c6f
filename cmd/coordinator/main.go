// Command coordinator is the fleet-wide health aggregator, opportunity
// cache, and alert pipeline. It loads configuration, validates it, wires
// its Redis-backed dependencies, and serves the coordinator HTTP surface
// until SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/arbplane/arbplane/internal/cache/redis"
	"github.com/arbplane/arbplane/internal/config"
	"github.com/arbplane/arbplane/internal/coordinator"
	"github.com/arbplane/arbplane/internal/domain"
	"github.com/arbplane/arbplane/internal/eventlog"
	"github.com/arbplane/arbplane/internal/leader"
	"github.com/arbplane/arbplane/internal/lock"
	"github.com/arbplane/arbplane/internal/metrics"
	"github.com/arbplane/arbplane/internal/notify"
	"github.com/arbplane/arbplane/internal/server"
	"github.com/arbplane/arbplane/internal/server/handler"
	"github.com/arbplane/arbplane/internal/store/postgres"
)

// auditingAlertSink wraps a coordinator.AlertSink so every delivered alert
// is also appended to the durable audit log, independent of whether any
// notification sender is configured.
type auditingAlertSink struct {
	inner  coordinator.AlertSink
	audit  domain.AuditStore
	logger *slog.Logger
}

func (s *auditingAlertSink) RecordAlert(a domain.Alert) { s.inner.RecordAlert(a) }

func (s *auditingAlertSink) NotifyAlert(ctx context.Context, a domain.Alert) error {
	if s.audit != nil {
		detail := map[string]any{"severity": a.Severity, "message": a.Message, "service": a.Service}
		if err := s.audit.Log(ctx, "alert."+a.Type, detail); err != nil {
			s.logger.Warn("audit log failed", slog.String("event", a.Type), slog.String("error", err.Error()))
		}
	}
	return s.inner.NotifyAlert(ctx, a)
}

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "coordinator",
		Short: "Fleet-wide health aggregator and alert pipeline",
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

	if cfg.Coordinator.ServiceName == "" {
		cfg.Coordinator.ServiceName = "coordinator"
	}

	if err := cfg.ValidateCoordinator(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	instanceID := uuid.NewString()
	logger.Info("coordinator starting",
		slog.String("instance_id", instanceID),
		slog.Int("port", cfg.Coordinator.Port),
		slog.String("region", cfg.Coordinator.RegionID),
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

	var senders []notify.Sender
	if cfg.Webhook.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Webhook.DiscordWebhookURL))
	}
	notifier := notify.NewNotifier(senders, nil, logger, 500)

	var auditStore domain.AuditStore
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
			logger.Error("postgres connect failed; restarts and alerts will not be audit-logged", slog.String("error", err.Error()))
		} else {
			defer pg.Close()
			auditStore = postgres.NewAuditStore(pg.Pool())
			logger.Info("audit log persisting to postgres")
		}
	}

	alertSink := coordinator.AlertSink(notifier)
	if auditStore != nil {
		alertSink = &auditingAlertSink{inner: notifier, audit: auditStore, logger: logger}
	}

	coord := coordinator.New(log, alertSink, cfg.Coordinator.ServiceName, instanceID, "coordinator-group", logger)

	elector := leader.NewElector(lockMgr, leader.LeaderKey(), instanceID, 15*time.Second, logger)

	reg := metrics.New()

	allowedServices := []string{"coordinator", "execution-engine", "detector"}
	h := handler.NewCoordinatorHandler(
		coord,
		elector.IsLeader,
		instanceID,
		allowedServices,
		func(service string) error {
			if auditStore != nil {
				if err := auditStore.Log(context.Background(), "service.restart_requested", map[string]any{"service": service, "instanceId": instanceID}); err != nil {
					logger.Warn("audit log failed", slog.String("event", "service.restart_requested"), slog.String("error", err.Error()))
				}
			}
			logger.Warn("service restart requested but no process supervisor is wired", slog.String("service", service))
			return fmt.Errorf("restart not supported for %q: no process supervisor configured", service)
		},
		notifier.AlertHistory,
		logger,
	)

	srv := server.NewCoordinatorServer(
		server.CoordinatorConfig{Port: cfg.Coordinator.Port, APIKey: os.Getenv("COORDINATOR_API_KEY")},
		h,
		redis.NewRateLimiter(rdb),
		reg.Handler(),
		logger,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return elector.Run(ctx) })
	g.Go(func() error { return coord.Run(ctx) })
	g.Go(func() error {
		if err := srv.Start(); err != nil {
			return fmt.Errorf("coordinator http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return srv.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("coordinator exited with error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("coordinator stopped")
	return nil
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
