package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults_ArbplaneSectionsPopulated(t *testing.T) {
	cfg := Defaults()
	require.Equal(t, 3000, cfg.Coordinator.Port)
	require.Equal(t, 1000, cfg.Coordinator.MaxOpportunities)
	require.Equal(t, 3005, cfg.Engine.Port)
	require.Equal(t, 5, cfg.Engine.MaxConcurrentExecutions)
	require.Equal(t, 0.85, cfg.Simulation.SuccessRate)
	require.Equal(t, 200_000, int(cfg.Simulation.GasUsed))
	require.True(t, cfg.CircuitBreaker.Enabled)
	require.Equal(t, 5, cfg.CircuitBreaker.FailureThreshold)
	require.True(t, cfg.Risk.Enabled)
	require.Equal(t, "development", cfg.NodeEnv)
}

func TestApplyArbplaneEnvOverrides_LiteralNames(t *testing.T) {
	t.Setenv("NODE_ENV", "production")
	t.Setenv("EXECUTION_SIMULATION_MODE", "true")
	t.Setenv("EXECUTION_SIMULATION_SUCCESS_RATE", "0.5")
	t.Setenv("CIRCUIT_BREAKER_FAILURE_THRESHOLD", "3")
	t.Setenv("COORDINATOR_PORT", "9000")
	t.Setenv("REGION_ID", "us-east-1")
	t.Setenv("SIMULATION_MODE_PRODUCTION_OVERRIDE", "true")

	cfg := Defaults()
	applyArbplaneEnvOverrides(&cfg)

	require.Equal(t, "production", cfg.NodeEnv)
	require.True(t, cfg.Simulation.Mode)
	require.Equal(t, 0.5, cfg.Simulation.SuccessRate)
	require.Equal(t, 3, cfg.CircuitBreaker.FailureThreshold)
	require.Equal(t, 9000, cfg.Coordinator.Port)
	require.Equal(t, "us-east-1", cfg.Coordinator.RegionID)
	require.Equal(t, "us-east-1", cfg.Engine.RegionID)
	require.Equal(t, "true", cfg.Simulation.ProductionOverride)
}

func TestApplyArbplaneEnvOverrides_HealthCheckPortAliasesEngine(t *testing.T) {
	t.Setenv("HEALTH_CHECK_PORT", "4100")

	cfg := Defaults()
	applyArbplaneEnvOverrides(&cfg)

	require.Equal(t, 4100, cfg.Engine.Port)
}

func TestValidateCoordinator_DefaultsPassOnceNamed(t *testing.T) {
	cfg := Defaults()
	cfg.Coordinator.ServiceName = "coordinator"
	require.NoError(t, cfg.ValidateCoordinator())
}

func TestValidateCoordinator_RejectsEmptyRedisAddr(t *testing.T) {
	cfg := Defaults()
	cfg.Coordinator.ServiceName = "coordinator"
	cfg.Redis.Addr = ""
	err := cfg.ValidateCoordinator()
	require.Error(t, err)
	require.Contains(t, err.Error(), "redis: addr must not be empty")
}

func TestValidateCoordinator_RejectsMissingServiceName(t *testing.T) {
	cfg := Defaults()
	err := cfg.ValidateCoordinator()
	require.Error(t, err)
	require.Contains(t, err.Error(), "coordinator: service_name must not be empty")
}

func TestValidateEngine_DefaultsPassOnceNamed(t *testing.T) {
	cfg := Defaults()
	cfg.Engine.ServiceName = "execution-engine"
	require.NoError(t, cfg.ValidateEngine())
}

func TestValidateEngine_RequiresRiskEnabledOutsideSimulation(t *testing.T) {
	cfg := Defaults()
	cfg.Engine.ServiceName = "execution-engine"
	cfg.Simulation.Mode = false
	cfg.Risk.Enabled = false

	err := cfg.ValidateEngine()
	require.Error(t, err)
	require.Contains(t, err.Error(), "risk: must be enabled when simulation mode is off")
}

func TestValidateEngine_SimulationModeSkipsRiskRequirement(t *testing.T) {
	cfg := Defaults()
	cfg.Engine.ServiceName = "execution-engine"
	cfg.Simulation.Mode = true
	cfg.Risk.Enabled = false

	require.NoError(t, cfg.ValidateEngine())
}

func TestValidateEngine_RejectsBadCircuitBreakerTunablesWhenEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.Engine.ServiceName = "execution-engine"
	cfg.CircuitBreaker.Enabled = true
	cfg.CircuitBreaker.FailureThreshold = 0

	err := cfg.ValidateEngine()
	require.Error(t, err)
	require.Contains(t, err.Error(), "circuit_breaker: failure_threshold must be >= 1")
}
