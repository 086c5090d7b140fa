package analytics

import (
	"sort"
	"time"

	"adaptiveRiskBot/internal/domain"
)

// Stats holds trade-outcome statistics derived from the append-only result
// log. The Kelly and anti-martingale sizers consume them, and the engine
// includes them in notification summaries.
type Stats struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	AverageWin    float64 // Mean P&L fraction of winning trades
	AverageLoss   float64 // Mean P&L fraction of losing trades (negative)
	ProfitFactor  float64 // Gross wins / gross losses
	Expectancy    float64 // WinRate*AverageWin + (1-WinRate)*AverageLoss
	MaxDrawdown   float64 // Deepest peak-to-trough dip of the P&L-fraction equity curve

	// Streaks at the end of the history, used by the anti-martingale sizer.
	CurrentWinStreak  int
	CurrentLossStreak int

	TotalDuration time.Duration
}

// Compute derives Stats from a slice of trade results. Results are processed
// in closing-time order; the input slice is not modified.
func Compute(results []*domain.TradeResult) *Stats {
	s := &Stats{}
	if len(results) == 0 {
		return s
	}

	ordered := make([]*domain.TradeResult, len(results))
	copy(ordered, results)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].ClosedAt.Before(ordered[j].ClosedAt)
	})

	var grossWin, grossLoss float64
	equity := 1.0
	peak := 1.0

	for _, r := range ordered {
		s.TotalTrades++
		s.TotalDuration += r.Duration

		if r.PNLPct > 0 {
			s.WinningTrades++
			grossWin += r.PNLPct
			s.CurrentWinStreak++
			s.CurrentLossStreak = 0
		} else {
			s.LosingTrades++
			grossLoss += -r.PNLPct
			s.CurrentLossStreak++
			s.CurrentWinStreak = 0
		}

		// Compound the P&L fractions into a synthetic equity curve for the
		// drawdown figure.
		equity *= 1 + r.PNLPct
		if equity > peak {
			peak = equity
		} else if dd := (peak - equity) / peak; dd > s.MaxDrawdown {
			s.MaxDrawdown = dd
		}
	}

	s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades)
	if s.WinningTrades > 0 {
		s.AverageWin = grossWin / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		s.AverageLoss = -grossLoss / float64(s.LosingTrades)
	}
	if grossLoss > 0 {
		s.ProfitFactor = grossWin / grossLoss
	} else if grossWin > 0 {
		s.ProfitFactor = grossWin // No losses yet; treat gross wins as the factor
	}
	s.Expectancy = s.WinRate*s.AverageWin + (1-s.WinRate)*s.AverageLoss

	return s
}

// SymbolPerformance aggregates realized P&L fraction per symbol. The
// portfolio sizer reads it on each recalibration cycle.
func SymbolPerformance(results []*domain.TradeResult) map[string]float64 {
	perf := make(map[string]float64)
	for _, r := range results {
		perf[r.Symbol] += r.PNLPct
	}
	return perf
}
