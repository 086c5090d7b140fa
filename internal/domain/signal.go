package domain

import "time"

// Timeframe identifies the bar interval a signal was generated on.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
)

// Signal is a directional trading signal emitted by an upstream strategy.
// It is immutable once emitted; the filter and controllers only read it.
type Signal struct {
	Symbol    string    // Trading symbol (e.g., "ETHUSDT")
	Direction Direction // LONG or SHORT
	Timeframe Timeframe // Interval the signal was generated on

	// Strength components, produced alongside the signal.
	VolumeRatio        float64 // Current volume / rolling average volume
	TrendSlope         float64 // Regression slope of recent closes (sign matters)
	TimeframesAgreeing int     // Number of higher timeframes confirming the direction

	Timestamp time.Time // When the signal was emitted
}

// Validate checks the signal carries the minimum fields the engine needs.
func (s *Signal) Validate() error {
	if s.Symbol == "" {
		return ErrMissingSymbol
	}
	if s.Direction != Long && s.Direction != Short {
		return ErrInvalidDirection
	}
	if s.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}
	return nil
}
