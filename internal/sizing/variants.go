package sizing

import "math"

// VolatilityAdjusted scales the risk fraction by ATRMean/ATR before applying
// the fixed-fractional rule, shrinking size when current volatility runs
// above its rolling mean. The scale is capped so a volatility lull cannot
// balloon the position.
type VolatilityAdjusted struct {
	maxScale float64
}

func (s *VolatilityAdjusted) Name() Strategy { return StrategyVolatilityAdjusted }

func (s *VolatilityAdjusted) Size(equity, riskPct, entryPrice, stopPrice float64, sctx Context) (float64, error) {
	if sctx.ATR > 0 && sctx.ATRMean > 0 {
		scale := math.Min(sctx.ATRMean/sctx.ATR, s.maxScale)
		riskPct *= scale
	}
	return fixedFractionalSize(equity, riskPct, entryPrice, stopPrice)
}

// KellyCriterion applies an effective risk multiplier sqrt(winRate *
// profitFactor) derived from trailing trade statistics, capped at a
// fractional-Kelly ceiling to bound variance. With insufficient history it
// degrades to plain fixed-fractional sizing.
type KellyCriterion struct {
	ceiling   float64
	minTrades int
}

func (s *KellyCriterion) Name() Strategy { return StrategyKelly }

func (s *KellyCriterion) Size(equity, riskPct, entryPrice, stopPrice float64, sctx Context) (float64, error) {
	if m, ok := s.multiplier(sctx); ok {
		riskPct *= m
	}
	return fixedFractionalSize(equity, riskPct, entryPrice, stopPrice)
}

// multiplier returns the capped Kelly multiplier, or ok=false when the
// trailing history is too short for the estimate to mean anything.
func (s *KellyCriterion) multiplier(sctx Context) (float64, bool) {
	if sctx.Stats == nil || sctx.Stats.TotalTrades < s.minTrades {
		return 0, false
	}
	if sctx.Stats.WinRate <= 0 || sctx.Stats.ProfitFactor <= 0 {
		return 0, false
	}
	m := math.Sqrt(sctx.Stats.WinRate * sctx.Stats.ProfitFactor)
	return math.Min(m, s.ceiling), true
}

// AntiMartingale multiplies the base size by an increasing factor after
// consecutive wins and a decreasing factor after consecutive losses, bounded
// to [minFactor, maxFactor].
type AntiMartingale struct {
	winStep   float64
	lossStep  float64
	minFactor float64
	maxFactor float64
}

func (s *AntiMartingale) Name() Strategy { return StrategyAntiMartingale }

func (s *AntiMartingale) Size(equity, riskPct, entryPrice, stopPrice float64, sctx Context) (float64, error) {
	base, err := fixedFractionalSize(equity, riskPct, entryPrice, stopPrice)
	if err != nil {
		return 0, err
	}
	return base * s.factor(sctx), nil
}

func (s *AntiMartingale) factor(sctx Context) float64 {
	f := 1.0
	if sctx.Stats != nil {
		switch {
		case sctx.Stats.CurrentWinStreak > 0:
			f = 1 + float64(sctx.Stats.CurrentWinStreak)*s.winStep
		case sctx.Stats.CurrentLossStreak > 0:
			f = 1 - float64(sctx.Stats.CurrentLossStreak)*s.lossStep
		}
	}
	return math.Min(math.Max(f, s.minFactor), s.maxFactor)
}
