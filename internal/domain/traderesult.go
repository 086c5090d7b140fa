package domain

import "time"

// TradeResult represents the outcome of a closed position. Results are
// appended to history and never mutated; the Monte Carlo analyzer and the
// performance stats consume the append-only log.
type TradeResult struct {
	ID          int64         // Unique identifier (assigned by the repository)
	PositionID  int64         // Identifier of the position this result closed
	Symbol      string        // Trading symbol (e.g., "ETHUSDT")
	Direction   Direction     // LONG or SHORT
	PNL         float64       // Realized profit and loss in quote units
	PNLPct      float64       // Realized P&L as a fraction of entry notional
	CloseReason CloseReason   // SL, TP, trailing or manual
	Duration    time.Duration // Time the position was held
	ClosedAt    time.Time     // When the position was closed
}
