// Package config defines the top-level configuration for the coordinator and
// execution engine processes and provides validation helpers.
package config

import (
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by environment variables.
type Config struct {
	Supabase SupabaseConfig `toml:"supabase"`
	Redis    RedisConfig    `toml:"redis"`
	LogLevel string         `toml:"log_level"`

	// Coordinator, Engine, Simulation, CircuitBreaker, Risk, and Webhook
	// configure the arbitrage-opportunity processing plane: the
	// coordinator/execution-engine pair and the shared Redis/Postgres
	// substrate beneath them.
	Coordinator    CoordinatorConfig    `toml:"coordinator"`
	Engine         EngineConfig         `toml:"engine"`
	Simulation     SimulationConfig     `toml:"simulation"`
	CircuitBreaker CircuitBreakerConfig `toml:"circuit_breaker"`
	Risk           RiskConfig           `toml:"risk"`
	Webhook        WebhookConfig        `toml:"webhook"`
	NodeEnv        string               `toml:"node_env"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	ApiURL        string `toml:"api_url"`
	ApiKey        string `toml:"api_key"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Supabase: SupabaseConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		LogLevel: "info",

		Coordinator:    DefaultCoordinatorConfig(),
		Engine:         DefaultEngineConfig(),
		Simulation:     DefaultSimulationConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
		Risk:           DefaultRiskConfig(),
		NodeEnv:        "development",
	}
}
