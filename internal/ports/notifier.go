package ports

import "context"

// AlertKind categorizes the events the engine raises alerts for.
type AlertKind string

const (
	AlertDrawdownLimit    AlertKind = "drawdown_limit"
	AlertSubmissionFailed AlertKind = "submission_failed"
	AlertRegimeChange     AlertKind = "regime_change"
	AlertRiskRecalibrated AlertKind = "risk_recalibrated"
)

// Notifier is a fire-and-forget alert sink. Implementations must not block
// the decision path; failures are logged, never propagated.
type Notifier interface {
	Notify(ctx context.Context, kind AlertKind, message string)
}
