package sizing

import (
	"fmt"
	"math"
	"sync"
)

// Portfolio holds per-symbol allocation weights and sizes each trade as the
// symbol's weighted share of the fixed-fractional size. Weights drift toward
// the symbols that have been performing, bounded per recalibration cycle,
// and always renormalize to sum to 1.
type Portfolio struct {
	adjustmentFactor float64
	maxSwing         float64

	mu      sync.RWMutex
	weights map[string]float64
}

// NewPortfolio creates a portfolio sizer with the given initial weights.
// Weights are normalized on construction; at least one symbol is required.
func NewPortfolio(initial map[string]float64, cfg Config) (*Portfolio, error) {
	if len(initial) == 0 {
		return nil, fmt.Errorf("portfolio sizing requires at least one symbol weight")
	}
	if cfg.AdjustmentFactor <= 0 {
		return nil, fmt.Errorf("adjustment factor must be positive, got %f", cfg.AdjustmentFactor)
	}
	if cfg.MaxWeightSwing <= 0 || cfg.MaxWeightSwing >= 1 {
		return nil, fmt.Errorf("max weight swing must be in (0, 1), got %f", cfg.MaxWeightSwing)
	}
	weights := make(map[string]float64, len(initial))
	var total float64
	for sym, w := range initial {
		if w <= 0 {
			return nil, fmt.Errorf("initial weight for %s must be positive, got %f", sym, w)
		}
		weights[sym] = w
		total += w
	}
	for sym := range weights {
		weights[sym] /= total
	}
	return &Portfolio{
		adjustmentFactor: cfg.AdjustmentFactor,
		maxSwing:         cfg.MaxWeightSwing,
		weights:          weights,
	}, nil
}

func (p *Portfolio) Name() Strategy { return StrategyPortfolio }

// Size applies the symbol's allocation weight, scaled by the number of
// symbols so an evenly weighted portfolio matches plain fixed-fractional
// sizing. Unknown symbols get no allocation.
func (p *Portfolio) Size(equity, riskPct, entryPrice, stopPrice float64, sctx Context) (float64, error) {
	p.mu.RLock()
	w, ok := p.weights[sctx.Symbol]
	n := len(p.weights)
	p.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("symbol %s has no portfolio allocation", sctx.Symbol)
	}
	base, err := fixedFractionalSize(equity, riskPct, entryPrice, stopPrice)
	if err != nil {
		return 0, err
	}
	return base * w * float64(n), nil
}

// Weight returns the current allocation for a symbol.
func (p *Portfolio) Weight(symbol string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.weights[symbol]
}

// Recalibrate shifts each symbol's weight by
// (symbolPerf/meanPerf - 1) * adjustmentFactor, clamps the shift to the
// configured maximum swing per cycle, then renormalizes the weights to sum
// to 1. Symbols absent from perf keep their weight through the shift and
// only move via renormalization.
func (p *Portfolio) Recalibrate(perf map[string]float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var mean float64
	var counted int
	for sym := range p.weights {
		if v, ok := perf[sym]; ok {
			mean += v
			counted++
		}
	}
	if counted == 0 {
		return
	}
	mean /= float64(counted)
	if mean == 0 {
		return
	}

	var total float64
	for sym, w := range p.weights {
		if v, ok := perf[sym]; ok {
			adj := (v/mean - 1.0) * p.adjustmentFactor
			adj = math.Min(math.Max(adj, -p.maxSwing), p.maxSwing)
			w *= 1 + adj
			if w < 0 {
				w = 0
			}
			p.weights[sym] = w
		}
		total += p.weights[sym]
	}
	if total <= 0 {
		// Degenerate cycle; reset to even weights rather than divide by zero.
		even := 1.0 / float64(len(p.weights))
		for sym := range p.weights {
			p.weights[sym] = even
		}
		return
	}
	for sym := range p.weights {
		p.weights[sym] /= total
	}
}
