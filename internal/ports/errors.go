package ports

import "errors"

// Standard application-level errors.
// Adapters and core components wrap underlying errors with these sentinels so
// callers can branch on the category without knowing the implementation.
var (
	// General errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Admission / trade-path errors
	ErrValidation          = errors.New("signal failed validation")
	ErrRiskLimitExceeded   = errors.New("risk limit exceeded")
	ErrInvalidStopDistance = errors.New("entry and stop price must differ")
	ErrInsufficientHistory = errors.New("not enough closed trades for statistical estimate")
	ErrStaleData           = errors.New("price data is stale beyond the configured window")
	ErrSubmissionFailed    = errors.New("order submission failed")
	ErrReservationNotFound = errors.New("no pending reservation for the given token")

	// Exchange specific errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderNotFound        = errors.New("order not found on the exchange")
	ErrOrderPlacementFailed = errors.New("failed to place order")
	ErrOrderCancelFailed    = errors.New("failed to cancel order")

	// Database specific errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
)
