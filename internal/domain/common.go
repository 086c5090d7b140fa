package domain

// Direction represents the direction of a signal or position.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Opposite returns the reverse direction.
func (d Direction) Opposite() Direction {
	if d == Long {
		return Short
	}
	return Long
}

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// EntrySide maps a position direction to the order side that opens it.
func (d Direction) EntrySide() OrderSide {
	if d == Long {
		return Buy
	}
	return Sell
}

// ExitSide maps a position direction to the order side that flattens it.
func (d Direction) ExitSide() OrderSide {
	if d == Long {
		return Sell
	}
	return Buy
}

// PositionStatus represents the lifecycle status of a trading position.
// A pending position holds a reserved slice of the risk budget but has no
// confirmed fill yet.
type PositionStatus string

const (
	StatusPending PositionStatus = "pending"
	StatusOpen    PositionStatus = "open"
	StatusClosed  PositionStatus = "closed"
)

// CloseReason indicates why a position was closed.
type CloseReason string

const (
	CloseReasonStopLoss     CloseReason = "SL"
	CloseReasonTakeProfit   CloseReason = "TP"
	CloseReasonTrailingStop CloseReason = "TRAILING"
	CloseReasonManual       CloseReason = "MANUAL"
	CloseReasonUnknown      CloseReason = "Unknown"
)

// TrailingState is the state of a position's trailing-stop state machine.
// Transitions: inactive -> active (activation profit reached) -> triggered
// (terminal, price crossed the trailing trigger).
type TrailingState string

const (
	TrailingInactive  TrailingState = "inactive"
	TrailingActive    TrailingState = "active"
	TrailingTriggered TrailingState = "triggered"
)
