package domain

import (
	"math"
	"time"
)

// Position represents a trading position managed by the engine.
// Positions are owned exclusively by the ledger; all mutation goes through
// the stop controller or a risk-controller-authorized close.
type Position struct {
	ID         int64          // Unique identifier (assigned by the repository)
	Symbol     string         // Trading symbol (e.g., "ETHUSDT")
	Direction  Direction      // LONG or SHORT
	EntryPrice float64        // Price at which the position was entered
	ExitPrice  float64        // Price at which the position was exited (0 if open)
	Size       float64        // Position size in base units
	Leverage   int            // Leverage used for the position
	StopLoss   float64        // Static stop-loss price (always set before admission)
	TakeProfit float64        // Static take-profit price
	RiskPct    float64        // Risk-per-trade fraction in force at admission
	EntryTime  time.Time      // Timestamp when the position was entered
	ExitTime   time.Time      // Timestamp when the position was exited (zero value if open)
	Status     PositionStatus // pending, open or closed
	PNL        float64        // Realized profit and loss (set on close)
	PNLPct     float64        // Realized P&L as a fraction of entry notional

	CloseReason CloseReason // Reason for closing (SL, TP, trailing, manual)

	// Trailing-stop state machine.
	Trailing        TrailingState // inactive, active or triggered
	TrailingTrigger float64       // Current trailing trigger price (0 while inactive)
}

// IsOpen checks if the position status is open.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// IsClosed checks if the position status is closed.
func (p *Position) IsClosed() bool {
	return p.Status == StatusClosed
}

// ProfitPct returns the unrealized profit at the given price as a fraction of
// the entry price. Positive means the position is in profit, for both sides.
func (p *Position) ProfitPct(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	move := (price - p.EntryPrice) / p.EntryPrice
	if p.Direction == Short {
		move = -move
	}
	return move
}

// RiskAmount returns the loss in quote units if the position is stopped out
// at its static stop-loss.
func (p *Position) RiskAmount() float64 {
	return p.Size * math.Abs(p.EntryPrice-p.StopLoss)
}
