// Package risk implements the execution engine's pre-trade risk gate: a
// drawdown breaker, an expected-value gate, and a Kelly-criterion position
// sizer, run in order with first rejection winning.
package risk

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/arbplane/arbplane/internal/domain"
)

// DrawdownState is the drawdown breaker's state: NORMAL while trading is
// allowed, HALT once the drawdown limit has been reached.
type DrawdownState string

const (
	DrawdownNormal DrawdownState = "NORMAL"
	DrawdownHalt   DrawdownState = "HALT"
)

// Config holds the risk orchestrator's tunables.
type Config struct {
	// MaxDrawdownPct halts new trades once cumulative drawdown from the
	// running equity peak exceeds this fraction (e.g. 0.15 = 15%).
	MaxDrawdownPct float64
	// MinExpectedValue rejects an opportunity whose computed EV (in
	// quote-currency units) is below this floor.
	MinExpectedValue float64
	// KellyFraction scales the full Kelly stake down (e.g. 0.5 for
	// half-Kelly), matching common risk-averse sizing practice.
	KellyFraction float64
	// MaxPositionSize caps the Kelly-computed size regardless of edge.
	MaxPositionSize float64
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{
		MaxDrawdownPct:   0.15,
		MinExpectedValue: 0,
		KellyFraction:    0.5,
		MaxPositionSize:  1.0,
	}
}

// Decision is the outcome of a pre-trade risk evaluation.
type Decision struct {
	Allowed       bool
	RejectReason  string
	PositionSize  float64
	ExpectedValue float64
}

// ProbabilityTracker supplies a running win-probability estimate per
// opportunity type, informing the EV calculation. A fresh tracker starts
// every type at 0.5 (maximum uncertainty) and updates via exponential
// smoothing on each observed outcome.
type ProbabilityTracker struct {
	mu     sync.Mutex
	alpha  float64
	priors map[domain.OpportunityType]float64
}

// NewProbabilityTracker creates a tracker with the given smoothing factor
// (0 < alpha <= 1; higher weighs recent outcomes more heavily).
func NewProbabilityTracker(alpha float64) *ProbabilityTracker {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.1
	}
	return &ProbabilityTracker{alpha: alpha, priors: make(map[domain.OpportunityType]float64)}
}

// Probability returns the current win-probability estimate for a type.
func (p *ProbabilityTracker) Probability(t domain.OpportunityType) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.priors[t]; ok {
		return v
	}
	return 0.5
}

// Observe records a trade outcome (true = win) and updates the estimate.
func (p *ProbabilityTracker) Observe(t domain.OpportunityType, won bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev, ok := p.priors[t]
	if !ok {
		prev = 0.5
	}
	outcome := 0.0
	if won {
		outcome = 1.0
	}
	p.priors[t] = prev + p.alpha*(outcome-prev)
}

// DrawdownBreaker halts new trades once cumulative loss from the running
// equity peak breaches MaxDrawdownPct, the same way the circuit breaker
// halts calls once failures breach its threshold.
type DrawdownBreaker struct {
	mu            sync.Mutex
	cfg           Config
	peakEquity    float64
	currentEquity float64
	state         DrawdownState
}

// NewDrawdownBreaker creates a breaker seeded at the given starting equity.
func NewDrawdownBreaker(cfg Config, startingEquity float64) *DrawdownBreaker {
	return &DrawdownBreaker{cfg: cfg, peakEquity: startingEquity, currentEquity: startingEquity, state: DrawdownNormal}
}

// RecordPnL applies a realized profit or loss and re-evaluates the halt
// state.
func (d *DrawdownBreaker) RecordPnL(delta float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.currentEquity += delta
	if d.currentEquity > d.peakEquity {
		d.peakEquity = d.currentEquity
	}
	if d.peakEquity <= 0 {
		return
	}
	drawdown := (d.peakEquity - d.currentEquity) / d.peakEquity
	if drawdown >= d.cfg.MaxDrawdownPct {
		d.state = DrawdownHalt
	} else {
		d.state = DrawdownNormal
	}
}

// State returns the current halt state.
func (d *DrawdownBreaker) State() DrawdownState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Reset manually clears the halt state, e.g. after operator intervention.
func (d *DrawdownBreaker) Reset(equity float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peakEquity = equity
	d.currentEquity = equity
	d.state = DrawdownNormal
}

// Orchestrator composes the drawdown breaker, EV gate, and Kelly sizer into
// the single pre-trade gate the pipeline calls: checks run in a fixed
// order, first rejection wins.
type Orchestrator struct {
	cfg        Config
	drawdown   *DrawdownBreaker
	probTrack  *ProbabilityTracker
	logger     *slog.Logger
}

// NewOrchestrator wires a drawdown breaker and probability tracker into a
// risk Orchestrator.
func NewOrchestrator(cfg Config, drawdown *DrawdownBreaker, probTrack *ProbabilityTracker, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{cfg: cfg, drawdown: drawdown, probTrack: probTrack, logger: logger.With(slog.String("component", "risk_orchestrator"))}
}

// PreTradeCheck evaluates an opportunity against the drawdown breaker, EV
// gate, and Kelly sizer in order, returning the first rejection or an
// allowed Decision carrying the sized position.
//
// Checks performed:
//  1. Drawdown breaker: refuse when state is HALT.
//  2. EV gate: reject if expected value < MinExpectedValue.
//  3. Kelly sizer: reject if computed size is 0, else override amount.
func (o *Orchestrator) PreTradeCheck(opp domain.Opportunity, odds float64) Decision {
	if o.drawdown.State() == DrawdownHalt {
		o.logger.Warn("risk: drawdown breaker halted", slog.String("opportunity_id", opp.ID))
		return Decision{Allowed: false, RejectReason: "drawdown_halt"}
	}

	prob := o.probTrack.Probability(opp.Type)
	ev := ExpectedValue(prob, opp.ExpectedProfit, odds)
	if ev < o.cfg.MinExpectedValue {
		o.logger.Warn("risk: expected value below floor",
			slog.String("opportunity_id", opp.ID),
			slog.Float64("ev", ev),
			slog.Float64("floor", o.cfg.MinExpectedValue),
		)
		return Decision{Allowed: false, RejectReason: "ev_below_threshold", ExpectedValue: ev}
	}

	size := KellySize(prob, odds, o.cfg.KellyFraction, o.cfg.MaxPositionSize)
	if size <= 0 {
		o.logger.Warn("risk: kelly sizer computed zero position",
			slog.String("opportunity_id", opp.ID),
			slog.Float64("probability", prob),
		)
		return Decision{Allowed: false, RejectReason: "position_size_zero", ExpectedValue: ev}
	}

	return Decision{Allowed: true, PositionSize: size, ExpectedValue: ev}
}

// ExpectedValue computes EV = p*profit - (1-p)*stake, where odds expresses
// stake-at-risk per unit profit (odds=1 means stake equals profit).
func ExpectedValue(probability, profit, odds float64) float64 {
	if odds <= 0 {
		odds = 1
	}
	stake := profit * odds
	return probability*profit - (1-probability)*stake
}

// KellySize computes the Kelly-optimal fraction of bankroll to stake given
// a win probability and payout odds (b in the classic f* = (bp - q) / b
// formula), scaled by fraction (e.g. 0.5 for half-Kelly) and capped at max.
// Returns 0 if the edge is non-positive.
func KellySize(probability, odds, fraction, max float64) float64 {
	if odds <= 0 {
		odds = 1
	}
	q := 1 - probability
	full := (odds*probability - q) / odds
	if full <= 0 {
		return 0
	}
	size := full * fraction
	if size > max {
		size = max
	}
	return size
}

// Error renders a Decision's reject reason as an error message, so a
// rejected Decision can be propagated as an error.
func (d Decision) Error() string {
	return fmt.Sprintf("risk: rejected (%s)", d.RejectReason)
}
