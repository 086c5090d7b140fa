package sizing

import (
	"fmt"
	"math"

	"adaptiveRiskBot/internal/analytics"
	"adaptiveRiskBot/internal/ports"
)

// Strategy selects one of the sizing variants by configuration.
type Strategy string

const (
	StrategyFixedFractional    Strategy = "fixed_fractional"
	StrategyVolatilityAdjusted Strategy = "volatility_adjusted"
	StrategyKelly              Strategy = "kelly"
	StrategyAntiMartingale     Strategy = "anti_martingale"
	StrategyPortfolio          Strategy = "portfolio"
)

// Context carries the market and account context a sizer may consult beyond
// the raw price inputs. Fields a given variant does not use are ignored.
type Context struct {
	Symbol  string
	ATR     float64          // Current ATR (volatility-adjusted variant)
	ATRMean float64          // Rolling mean of ATR
	Stats   *analytics.Stats // Trailing trade statistics (Kelly, anti-martingale); may be nil
}

// Sizer converts (equity, risk budget, stop distance, context) into a
// position size. Implementations must return a positive size or an error;
// they never return zero silently.
type Sizer interface {
	// Name returns the strategy identifier for logging and metrics.
	Name() Strategy
	// Size computes the position size in base units.
	// Fails with ports.ErrInvalidStopDistance when entryPrice == stopPrice.
	Size(equity, riskPct, entryPrice, stopPrice float64, sctx Context) (float64, error)
}

// Config bundles the per-variant calibration. Only the fields of the
// selected strategy are read.
type Config struct {
	// Volatility-adjusted
	MaxVolatilityScale float64 // Upper bound on the ATRMean/ATR multiplier (default 2.0)

	// Kelly
	KellyCeiling  float64 // Fractional-Kelly cap on the multiplier (default 1.0)
	KellyMinTrade int     // Closed trades required before Kelly engages (default 30)

	// Anti-martingale
	WinStep   float64 // Size factor increase per consecutive win (default 0.1)
	LossStep  float64 // Size factor decrease per consecutive loss (default 0.1)
	MinFactor float64 // Lower clamp on the streak factor (default 0.5)
	MaxFactor float64 // Upper clamp on the streak factor (default 2.0)

	// Portfolio
	AdjustmentFactor float64 // Weight sensitivity to relative performance (default 0.5)
	MaxWeightSwing   float64 // Maximum weight change per recalibration cycle (default 0.2)
}

// DefaultConfig returns the default sizing calibration.
func DefaultConfig() Config {
	return Config{
		MaxVolatilityScale: 2.0,
		KellyCeiling:       1.0,
		KellyMinTrade:      30,
		WinStep:            0.1,
		LossStep:           0.1,
		MinFactor:          0.5,
		MaxFactor:          2.0,
		AdjustmentFactor:   0.5,
		MaxWeightSwing:     0.2,
	}
}

// New builds the sizer selected by strategy. Portfolio sizing additionally
// needs initial per-symbol weights; pass them via NewPortfolio instead.
func New(strategy Strategy, cfg Config) (Sizer, error) {
	switch strategy {
	case StrategyFixedFractional:
		return &FixedFractional{}, nil
	case StrategyVolatilityAdjusted:
		if cfg.MaxVolatilityScale <= 0 {
			return nil, fmt.Errorf("max volatility scale must be positive, got %f", cfg.MaxVolatilityScale)
		}
		return &VolatilityAdjusted{maxScale: cfg.MaxVolatilityScale}, nil
	case StrategyKelly:
		if cfg.KellyCeiling <= 0 {
			return nil, fmt.Errorf("kelly ceiling must be positive, got %f", cfg.KellyCeiling)
		}
		if cfg.KellyMinTrade <= 0 {
			return nil, fmt.Errorf("kelly minimum trade count must be positive, got %d", cfg.KellyMinTrade)
		}
		return &KellyCriterion{ceiling: cfg.KellyCeiling, minTrades: cfg.KellyMinTrade}, nil
	case StrategyAntiMartingale:
		if cfg.MinFactor <= 0 || cfg.MaxFactor < cfg.MinFactor {
			return nil, fmt.Errorf("anti-martingale factors must satisfy 0 < min <= max, got [%f, %f]", cfg.MinFactor, cfg.MaxFactor)
		}
		return &AntiMartingale{
			winStep:   cfg.WinStep,
			lossStep:  cfg.LossStep,
			minFactor: cfg.MinFactor,
			maxFactor: cfg.MaxFactor,
		}, nil
	case StrategyPortfolio:
		return nil, fmt.Errorf("portfolio sizing requires initial weights; use NewPortfolio")
	default:
		return nil, fmt.Errorf("unknown sizing strategy %q", strategy)
	}
}

// fixedFractionalSize is the base rule every variant builds on:
// size = equity * riskPct / |entry - stop|.
func fixedFractionalSize(equity, riskPct, entryPrice, stopPrice float64) (float64, error) {
	if equity <= 0 {
		return 0, fmt.Errorf("equity must be positive, got %f", equity)
	}
	if riskPct <= 0 {
		return 0, fmt.Errorf("risk fraction must be positive, got %f", riskPct)
	}
	dist := math.Abs(entryPrice - stopPrice)
	if dist == 0 {
		return 0, fmt.Errorf("entry %f equals stop %f: %w", entryPrice, stopPrice, ports.ErrInvalidStopDistance)
	}
	return equity * riskPct / dist, nil
}

// FixedFractional risks a fixed fraction of equity per trade.
type FixedFractional struct{}

func (s *FixedFractional) Name() Strategy { return StrategyFixedFractional }

func (s *FixedFractional) Size(equity, riskPct, entryPrice, stopPrice float64, _ Context) (float64, error) {
	return fixedFractionalSize(equity, riskPct, entryPrice, stopPrice)
}
