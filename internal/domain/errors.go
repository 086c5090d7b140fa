package domain

import "errors"

// Validation errors for malformed domain objects. The engine treats these as
// immediate rejections (no retry).
var (
	ErrMissingSymbol    = errors.New("signal is missing a symbol")
	ErrInvalidDirection = errors.New("signal direction must be LONG or SHORT")
	ErrMissingTimestamp = errors.New("signal is missing a timestamp")
)
