package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CoordinatorConfig holds the coordinator process's tunables.
type CoordinatorConfig struct {
	Port              int     `toml:"port"`
	RegionID          string  `toml:"region_id"`
	ServiceName       string  `toml:"service_name"`
	MaxOpportunities  int     `toml:"max_opportunities"`
	MaxStreamErrors   int     `toml:"max_stream_errors"`
	SelfHealthPeriod  duration `toml:"self_health_period"`
}

// EngineConfig holds the execution engine process's tunables.
type EngineConfig struct {
	Port                    int      `toml:"port"`
	RegionID                string   `toml:"region_id"`
	ServiceName             string   `toml:"service_name"`
	IsStandby               bool     `toml:"is_standby"`
	QueuePausedOnStart      bool     `toml:"queue_paused_on_start"`
	MaxConcurrentExecutions int      `toml:"max_concurrent_executions"`
	ShutdownDrainTimeout    duration `toml:"shutdown_drain_timeout"`
}

// SimulationConfig holds the execution simulation strategy's tunables,
// named to mirror the EXECUTION_SIMULATION_* environment variables
// bit-exactly.
type SimulationConfig struct {
	Mode                   bool    `toml:"mode"`
	SuccessRate            float64 `toml:"success_rate"`
	LatencyMs              int     `toml:"latency_ms"`
	GasUsed                uint64  `toml:"gas_used"`
	GasCostMultiplier      float64 `toml:"gas_cost_multiplier"`
	ProfitVariance         float64 `toml:"profit_variance"`
	Log                    bool    `toml:"log"`
	ProductionOverride     string  `toml:"production_override"`
}

// CircuitBreakerConfig holds the execution engine's breaker tunables.
type CircuitBreakerConfig struct {
	Enabled             bool     `toml:"enabled"`
	FailureThreshold    int      `toml:"failure_threshold"`
	CooldownMs          int      `toml:"cooldown_ms"`
	HalfOpenMaxAttempts int      `toml:"half_open_max_attempts"`
}

// RiskConfig holds the pre-trade risk orchestrator's tunables.
type RiskConfig struct {
	Enabled          bool    `toml:"enabled"`
	MaxDrawdownPct   float64 `toml:"max_drawdown_pct"`
	MinExpectedValue float64 `toml:"min_expected_value"`
	KellyFraction    float64 `toml:"kelly_fraction"`
	MaxPositionSize  float64 `toml:"max_position_size"`
}

// WebhookConfig holds alert-delivery webhook targets, named to mirror
// their literal environment variable names.
type WebhookConfig struct {
	DiscordWebhookURL string `toml:"discord_webhook_url"`
	SlackWebhookURL   string `toml:"slack_webhook_url"`
	AlertEmail        string `toml:"alert_email"`
}

// DefaultCoordinatorConfig holds the coordinator's documented defaults.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		Port:             3000,
		MaxOpportunities: 1000,
		MaxStreamErrors:  10,
		SelfHealthPeriod: duration{5 * time.Second},
	}
}

// DefaultEngineConfig holds the execution engine's documented defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Port:                    3005,
		MaxConcurrentExecutions: 5,
		ShutdownDrainTimeout:    duration{30 * time.Second},
	}
}

// DefaultSimulationConfig holds the simulation strategy's documented defaults.
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		SuccessRate:       0.85,
		LatencyMs:         500,
		GasUsed:           200_000,
		GasCostMultiplier: 0.1,
		ProfitVariance:    0.2,
	}
}

// DefaultCircuitBreakerConfig holds the circuit breaker's documented defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Enabled:             true,
		FailureThreshold:    5,
		CooldownMs:          300_000,
		HalfOpenMaxAttempts: 1,
	}
}

// DefaultRiskConfig holds the risk orchestrator's documented defaults.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		Enabled:          true,
		MaxDrawdownPct:   0.15,
		KellyFraction:    0.5,
		MaxPositionSize:  1.0,
	}
}

// ValidateCoordinator checks only the config sections the coordinator process
// actually depends on — Redis plus its own tunables; settings that only the
// engine reads are not checked here.
func (c *Config) ValidateCoordinator() error {
	var errs []string

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.Coordinator.Port <= 0 || c.Coordinator.Port > 65535 {
		errs = append(errs, fmt.Sprintf("coordinator: port must be 1-65535, got %d", c.Coordinator.Port))
	}
	if c.Coordinator.ServiceName == "" {
		errs = append(errs, "coordinator: service_name must not be empty")
	}
	if c.Coordinator.MaxOpportunities < 1 {
		errs = append(errs, "coordinator: max_opportunities must be >= 1")
	}
	if c.Coordinator.MaxStreamErrors < 1 {
		errs = append(errs, "coordinator: max_stream_errors must be >= 1")
	}
	if c.Coordinator.SelfHealthPeriod.Duration <= 0 {
		errs = append(errs, "coordinator: self_health_period must be > 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("coordinator config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ValidateEngine checks the config sections the execution engine process
// depends on: Redis, its own tunables, and — when simulation mode is off —
// the risk orchestrator's limits, since a live engine with an unconfigured
// risk gate would trade without a loss ceiling.
func (c *Config) ValidateEngine() error {
	var errs []string

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.Engine.Port <= 0 || c.Engine.Port > 65535 {
		errs = append(errs, fmt.Sprintf("engine: port must be 1-65535, got %d", c.Engine.Port))
	}
	if c.Engine.ServiceName == "" {
		errs = append(errs, "engine: service_name must not be empty")
	}
	if c.Engine.MaxConcurrentExecutions < 1 {
		errs = append(errs, "engine: max_concurrent_executions must be >= 1")
	}
	if c.Engine.ShutdownDrainTimeout.Duration <= 0 {
		errs = append(errs, "engine: shutdown_drain_timeout must be > 0")
	}

	if c.CircuitBreaker.Enabled {
		if c.CircuitBreaker.FailureThreshold < 1 {
			errs = append(errs, "circuit_breaker: failure_threshold must be >= 1 when enabled")
		}
		if c.CircuitBreaker.CooldownMs < 1 {
			errs = append(errs, "circuit_breaker: cooldown_ms must be >= 1 when enabled")
		}
		if c.CircuitBreaker.HalfOpenMaxAttempts < 1 {
			errs = append(errs, "circuit_breaker: half_open_max_attempts must be >= 1 when enabled")
		}
	}

	if !c.Simulation.Mode {
		if !c.Risk.Enabled {
			errs = append(errs, "risk: must be enabled when simulation mode is off (live trading requires risk management)")
		} else {
			if c.Risk.MaxDrawdownPct <= 0 || c.Risk.MaxDrawdownPct >= 1 {
				errs = append(errs, "risk: max_drawdown_pct must be in (0, 1)")
			}
			if c.Risk.KellyFraction <= 0 || c.Risk.KellyFraction > 1 {
				errs = append(errs, "risk: kelly_fraction must be in (0, 1]")
			}
			if c.Risk.MaxPositionSize <= 0 {
				errs = append(errs, "risk: max_position_size must be > 0")
			}
		}
	}

	if c.Simulation.Mode {
		if c.Simulation.SuccessRate <= 0 || c.Simulation.SuccessRate > 1 {
			errs = append(errs, "simulation: success_rate must be in (0, 1]")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("engine config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// applyArbplaneEnvOverrides reads the literal environment variable names
// monitoring and deploy tooling already key off, covering the plane-specific
// sections applyEnvOverrides doesn't touch.
func applyArbplaneEnvOverrides(cfg *Config) {
	setStr(&cfg.NodeEnv, "NODE_ENV")

	setBool(&cfg.Simulation.Mode, "EXECUTION_SIMULATION_MODE")
	setFloat64(&cfg.Simulation.SuccessRate, "EXECUTION_SIMULATION_SUCCESS_RATE")
	setInt(&cfg.Simulation.LatencyMs, "EXECUTION_SIMULATION_LATENCY_MS")
	setUint64(&cfg.Simulation.GasUsed, "EXECUTION_SIMULATION_GAS_USED")
	setFloat64(&cfg.Simulation.GasCostMultiplier, "EXECUTION_SIMULATION_GAS_COST_MULTIPLIER")
	setFloat64(&cfg.Simulation.ProfitVariance, "EXECUTION_SIMULATION_PROFIT_VARIANCE")
	setBool(&cfg.Simulation.Log, "EXECUTION_SIMULATION_LOG")
	setStr(&cfg.Simulation.ProductionOverride, "SIMULATION_MODE_PRODUCTION_OVERRIDE")

	setBool(&cfg.CircuitBreaker.Enabled, "CIRCUIT_BREAKER_ENABLED")
	setInt(&cfg.CircuitBreaker.FailureThreshold, "CIRCUIT_BREAKER_FAILURE_THRESHOLD")
	setInt(&cfg.CircuitBreaker.CooldownMs, "CIRCUIT_BREAKER_COOLDOWN_MS")
	setInt(&cfg.CircuitBreaker.HalfOpenMaxAttempts, "CIRCUIT_BREAKER_HALF_OPEN_ATTEMPTS")

	setBool(&cfg.Engine.IsStandby, "IS_STANDBY")
	setBool(&cfg.Engine.QueuePausedOnStart, "QUEUE_PAUSED_ON_START")

	regionID := os.Getenv("REGION_ID")
	if regionID != "" {
		cfg.Coordinator.RegionID = regionID
		cfg.Engine.RegionID = regionID
	}
	serviceName := os.Getenv("SERVICE_NAME")
	if serviceName != "" {
		cfg.Coordinator.ServiceName = serviceName
		cfg.Engine.ServiceName = serviceName
	}

	setInt(&cfg.Engine.Port, "HEALTH_CHECK_PORT")
	setInt(&cfg.Engine.Port, "EXECUTION_ENGINE_PORT")
	setInt(&cfg.Coordinator.Port, "COORDINATOR_PORT")

	if ms := os.Getenv("SHUTDOWN_DRAIN_TIMEOUT_MS"); ms != "" {
		if n, err := strconv.Atoi(ms); err == nil {
			cfg.Engine.ShutdownDrainTimeout = duration{time.Duration(n) * time.Millisecond}
		}
	}

	setStr(&cfg.Webhook.DiscordWebhookURL, "DISCORD_WEBHOOK_URL")
	setStr(&cfg.Webhook.SlackWebhookURL, "SLACK_WEBHOOK_URL")
	setStr(&cfg.Webhook.AlertEmail, "ALERT_EMAIL")
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}
