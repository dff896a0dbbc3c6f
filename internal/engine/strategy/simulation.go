package strategy

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	mrand "math/rand/v2"
	"time"

	"github.com/arbplane/arbplane/internal/domain"
)

// SimulationConfig holds the tunables for deterministic synthetic
// execution, populated from the EXECUTION_SIMULATION_* environment
// variables.
type SimulationConfig struct {
	LatencyMs         int
	SuccessRate       float64
	GasUsed           uint64
	GasCostMultiplier float64
	ProfitVariance    float64
	Log               bool
}

// DefaultSimulationConfig returns conservative defaults for local/dev runs.
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		LatencyMs:         200,
		SuccessRate:       0.8,
		GasUsed:           150_000,
		GasCostMultiplier: 0.02,
		ProfitVariance:    0.1,
	}
}

// SimulationStrategy is the required fallback strategy: it never touches a
// real chain, instead sleeping a jittered latency and drawing a synthetic
// success/failure outcome. Registered for every opportunity type when
// simulation mode is enabled.
type SimulationStrategy struct {
	cfg SimulationConfig
}

// NewSimulationStrategy creates a SimulationStrategy with the given config.
func NewSimulationStrategy(cfg SimulationConfig) *SimulationStrategy {
	return &SimulationStrategy{cfg: cfg}
}

// Name identifies the strategy for logging and registry listing.
func (s *SimulationStrategy) Name() string { return "simulation" }

// Execute produces a deterministic synthetic ExecutionResult: id-validation
// failure, jittered latency sleep, a success draw against SuccessRate, and
// on success a gas cost and variance-applied profit. The transaction hash is
// a random 0x-prefixed 64-hex string, unique per call.
func (s *SimulationStrategy) Execute(ctx context.Context, opp domain.Opportunity, _ *Context) (domain.ExecutionResult, error) {
	if opp.ID == "" {
		return domain.ExecutionResult{Success: false, Error: "ERR_INVALID_OPPORTUNITY", Timestamp: time.Now()}, nil
	}

	latency := jitter(s.cfg.LatencyMs, 0.3)
	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return domain.ExecutionResult{}, ctx.Err()
	}

	txHash, err := randomTxHash()
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("simulation: generate tx hash: %w", err)
	}

	result := domain.ExecutionResult{
		OpportunityID:   opp.ID,
		TransactionHash: txHash,
		GasUsed:         s.cfg.GasUsed,
		Timestamp:       time.Now(),
		Chain:           opp.SourceChain,
	}

	if mrand.Float64() >= s.cfg.SuccessRate {
		result.Success = false
		result.Error = "ERR_SIMULATED_FAILURE"
		result.GasCost = opp.ExpectedProfit * s.cfg.GasCostMultiplier
		return result, nil
	}

	result.Success = true
	result.GasCost = opp.ExpectedProfit * s.cfg.GasCostMultiplier
	result.ActualProfit = opp.ExpectedProfit * varianceFactor(s.cfg.ProfitVariance)
	return result, nil
}

// jitter returns a duration that is base milliseconds +/- fraction,
// uniformly distributed.
func jitter(baseMs int, fraction float64) time.Duration {
	if baseMs <= 0 {
		return 0
	}
	spread := float64(baseMs) * fraction
	delta := (mrand.Float64()*2 - 1) * spread
	ms := float64(baseMs) + delta
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond
}

// varianceFactor returns a uniform multiplier in [1-v, 1+v].
func varianceFactor(v float64) float64 {
	if v <= 0 {
		return 1
	}
	return 1 - v + mrand.Float64()*2*v
}

// randomTxHash generates a random 0x-prefixed 64-hex-character string.
func randomTxHash() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(buf), nil
}

// CheckProductionSafety enforces the engine's constructor invariant:
// simulation mode may never run in a production process unless the
// operator has set the explicit override. Called once at startup; a
// non-nil error must abort the process before any stream consumption
// begins.
func CheckProductionSafety(nodeEnv string, simulationEnabled bool, productionOverride string) error {
	if nodeEnv == "production" && simulationEnabled && productionOverride != "true" {
		return fmt.Errorf("%w: simulation mode enabled in production without SIMULATION_MODE_PRODUCTION_OVERRIDE=true", domain.ErrUnsafeSimulation)
	}
	return nil
}
