package domain

import "fmt"

// RiskBudget holds the per-account risk configuration. It is loaded at
// session start and mutated only by the Monte Carlo recalibration (bounded
// adjustment of RiskPerTrade) or an explicit reconfiguration.
type RiskBudget struct {
	RiskPerTrade     float64            // Fraction of equity risked per trade (e.g., 0.01)
	Leverage         int                // Leverage applied to new positions
	MaxOpenPositions int                // Maximum concurrent open/pending positions
	MaxDailyDrawdown float64            // Maximum fraction of equity lost per day before admissions stop
	SymbolCaps       map[string]float64 // Optional per-symbol risk allocation caps (fraction of equity)
}

// Validate checks the budget values are usable before trading starts.
func (b *RiskBudget) Validate() error {
	if b.RiskPerTrade <= 0 || b.RiskPerTrade >= 1 {
		return fmt.Errorf("risk per trade must be in (0, 1), got %f", b.RiskPerTrade)
	}
	if b.Leverage <= 0 {
		return fmt.Errorf("leverage must be positive, got %d", b.Leverage)
	}
	if b.MaxOpenPositions <= 0 {
		return fmt.Errorf("max open positions must be positive, got %d", b.MaxOpenPositions)
	}
	if b.MaxDailyDrawdown <= 0 || b.MaxDailyDrawdown >= 1 {
		return fmt.Errorf("max daily drawdown must be in (0, 1), got %f", b.MaxDailyDrawdown)
	}
	for sym, cap := range b.SymbolCaps {
		if cap <= 0 || cap > 1 {
			return fmt.Errorf("symbol cap for %s must be in (0, 1], got %f", sym, cap)
		}
	}
	return nil
}

// SymbolCap returns the per-symbol risk cap, or 1.0 when the symbol has no
// explicit cap configured.
func (b *RiskBudget) SymbolCap(symbol string) float64 {
	if cap, ok := b.SymbolCaps[symbol]; ok {
		return cap
	}
	return 1.0
}

// Clone returns a deep copy so a published budget can be read without
// racing the recalibrator.
func (b *RiskBudget) Clone() *RiskBudget {
	c := *b
	if b.SymbolCaps != nil {
		c.SymbolCaps = make(map[string]float64, len(b.SymbolCaps))
		for k, v := range b.SymbolCaps {
			c.SymbolCaps[k] = v
		}
	}
	return &c
}
