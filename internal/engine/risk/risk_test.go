package risk_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arbplane/arbplane/internal/domain"
	"github.com/arbplane/arbplane/internal/engine/risk"
)

func TestDrawdownBreaker_HaltsAtThreshold(t *testing.T) {
	d := risk.NewDrawdownBreaker(risk.Config{MaxDrawdownPct: 0.2}, 1000)
	require.Equal(t, risk.DrawdownNormal, d.State())

	d.RecordPnL(-150) // 15% drawdown, below threshold
	require.Equal(t, risk.DrawdownNormal, d.State())

	d.RecordPnL(-60) // cumulative 21% drawdown from peak
	require.Equal(t, risk.DrawdownHalt, d.State())
}

func TestDrawdownBreaker_RecoversOnNewPeak(t *testing.T) {
	d := risk.NewDrawdownBreaker(risk.Config{MaxDrawdownPct: 0.1}, 1000)
	d.RecordPnL(-200)
	require.Equal(t, risk.DrawdownHalt, d.State())

	d.RecordPnL(300) // new peak of 1100, drawdown now 0
	require.Equal(t, risk.DrawdownNormal, d.State())
}

func TestKellySize_ZeroOnNonPositiveEdge(t *testing.T) {
	require.Equal(t, 0.0, risk.KellySize(0.4, 1.0, 0.5, 1.0))
}

func TestKellySize_CapsAtMax(t *testing.T) {
	size := risk.KellySize(0.9, 1.0, 1.0, 0.1)
	require.Equal(t, 0.1, size)
}

func TestOrchestrator_RejectsWhenHalted(t *testing.T) {
	d := risk.NewDrawdownBreaker(risk.Config{MaxDrawdownPct: 0.1}, 1000)
	d.RecordPnL(-200)
	o := risk.NewOrchestrator(risk.DefaultConfig(), d, risk.NewProbabilityTracker(0.1), nil)

	decision := o.PreTradeCheck(domain.Opportunity{ID: "o1", Type: domain.OpportunityCrossDex, ExpectedProfit: 10}, 1.0)
	require.False(t, decision.Allowed)
	require.Equal(t, "drawdown_halt", decision.RejectReason)
}

func TestOrchestrator_RejectsBelowEVFloor(t *testing.T) {
	d := risk.NewDrawdownBreaker(risk.DefaultConfig(), 1000)
	cfg := risk.DefaultConfig()
	cfg.MinExpectedValue = 1000
	o := risk.NewOrchestrator(cfg, d, risk.NewProbabilityTracker(0.1), nil)

	decision := o.PreTradeCheck(domain.Opportunity{ID: "o2", Type: domain.OpportunityCrossDex, ExpectedProfit: 5}, 1.0)
	require.False(t, decision.Allowed)
	require.Equal(t, "ev_below_threshold", decision.RejectReason)
}

func TestOrchestrator_AllowsWithSizedPosition(t *testing.T) {
	d := risk.NewDrawdownBreaker(risk.DefaultConfig(), 1000)
	tracker := risk.NewProbabilityTracker(0.1)
	for i := 0; i < 5; i++ {
		tracker.Observe(domain.OpportunityCrossDex, true)
	}
	o := risk.NewOrchestrator(risk.DefaultConfig(), d, tracker, nil)

	decision := o.PreTradeCheck(domain.Opportunity{ID: "o3", Type: domain.OpportunityCrossDex, ExpectedProfit: 10}, 1.0)
	require.True(t, decision.Allowed)
	require.Greater(t, decision.PositionSize, 0.0)
}
