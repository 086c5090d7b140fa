package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"adaptiveRiskBot/internal/domain"
)

func result(pnlPct float64, closedAt time.Time) *domain.TradeResult {
	return &domain.TradeResult{
		Symbol:   "ETHUSDT",
		PNLPct:   pnlPct,
		Duration: time.Hour,
		ClosedAt: closedAt,
	}
}

func TestComputeEmptyHistory(t *testing.T) {
	s := Compute(nil)
	assert.Equal(t, 0, s.TotalTrades)
	assert.Equal(t, 0.0, s.WinRate)
}

func TestComputeBasicStats(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	results := []*domain.TradeResult{
		result(0.02, base),
		result(-0.01, base.Add(1*time.Hour)),
		result(0.03, base.Add(2*time.Hour)),
		result(0.01, base.Add(3*time.Hour)),
	}

	s := Compute(results)
	assert.Equal(t, 4, s.TotalTrades)
	assert.Equal(t, 3, s.WinningTrades)
	assert.Equal(t, 1, s.LosingTrades)
	assert.InDelta(t, 0.75, s.WinRate, 1e-9)
	assert.InDelta(t, 0.02, s.AverageWin, 1e-9)
	assert.InDelta(t, -0.01, s.AverageLoss, 1e-9)
	assert.InDelta(t, 6.0, s.ProfitFactor, 1e-9)
	assert.Equal(t, 2, s.CurrentWinStreak)
	assert.Equal(t, 0, s.CurrentLossStreak)
	assert.Equal(t, 4*time.Hour, s.TotalDuration)
}

func TestComputeStreaksAndDrawdown(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	results := []*domain.TradeResult{
		result(0.05, base),
		result(-0.02, base.Add(1*time.Hour)),
		result(-0.02, base.Add(2*time.Hour)),
		result(-0.02, base.Add(3*time.Hour)),
	}

	s := Compute(results)
	assert.Equal(t, 0, s.CurrentWinStreak)
	assert.Equal(t, 3, s.CurrentLossStreak)
	// Peak 1.05, trough 1.05*0.98^3.
	expectedDD := 1 - 0.98*0.98*0.98
	assert.InDelta(t, expectedDD, s.MaxDrawdown, 1e-9)
}

func TestComputeOrdersByClosingTime(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	// Deliberately out of order: the final streak must follow closing time.
	results := []*domain.TradeResult{
		result(-0.01, base.Add(2*time.Hour)),
		result(0.02, base),
		result(0.02, base.Add(1*time.Hour)),
	}

	s := Compute(results)
	assert.Equal(t, 0, s.CurrentWinStreak)
	assert.Equal(t, 1, s.CurrentLossStreak)
}

func TestSymbolPerformance(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	results := []*domain.TradeResult{
		{Symbol: "ETHUSDT", PNLPct: 0.02, ClosedAt: base},
		{Symbol: "ETHUSDT", PNLPct: -0.01, ClosedAt: base},
		{Symbol: "BTCUSDT", PNLPct: 0.04, ClosedAt: base},
	}

	perf := SymbolPerformance(results)
	assert.InDelta(t, 0.01, perf["ETHUSDT"], 1e-9)
	assert.InDelta(t, 0.04, perf["BTCUSDT"], 1e-9)
}
