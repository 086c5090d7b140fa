package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	signalsEvaluated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskbot_signals_evaluated_total",
			Help: "Total signals run through the filter, by outcome.",
		},
		[]string{"symbol", "outcome"},
	)

	admissionsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskbot_admissions_rejected_total",
			Help: "Admissions refused by the risk gate, by reason.",
		},
		[]string{"reason"},
	)

	positionsOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskbot_positions_opened_total",
			Help: "Positions opened, by symbol and direction.",
		},
		[]string{"symbol", "direction"},
	)

	positionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskbot_positions_closed_total",
			Help: "Positions closed, by symbol and close reason.",
		},
		[]string{"symbol", "reason"},
	)

	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "riskbot_open_positions",
			Help: "Current number of pending and open positions.",
		},
	)

	dailyPNL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "riskbot_daily_pnl",
			Help: "Realized P&L for the current UTC day.",
		},
	)

	riskPerTrade = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "riskbot_risk_per_trade",
			Help: "Current recalibrated risk-per-trade fraction.",
		},
	)

	regimeConfidence = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "riskbot_regime_confidence",
			Help: "Confidence of the latest regime classification.",
		},
		[]string{"symbol", "regime"},
	)

	submissionRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "riskbot_order_submission_retries_total",
			Help: "Order submissions retried after a transient failure.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		signalsEvaluated,
		admissionsRejected,
		positionsOpened,
		positionsClosed,
		openPositions,
		dailyPNL,
		riskPerTrade,
		regimeConfidence,
		submissionRetries,
	)
}

// Handler exposes the registry for the HTTP metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSignal counts one filter evaluation; outcome is "accepted" or "rejected".
func RecordSignal(symbol, outcome string) {
	signalsEvaluated.WithLabelValues(symbol, outcome).Inc()
}

// RecordRejection counts an admission refusal.
func RecordRejection(reason string) {
	admissionsRejected.WithLabelValues(reason).Inc()
}

// RecordOpen counts a filled entry.
func RecordOpen(symbol, direction string) {
	positionsOpened.WithLabelValues(symbol, direction).Inc()
}

// RecordClose counts a finalized position.
func RecordClose(symbol, reason string) {
	positionsClosed.WithLabelValues(symbol, reason).Inc()
}

// SetOpenPositions updates the active position gauge.
func SetOpenPositions(n int) {
	openPositions.Set(float64(n))
}

// SetDailyPNL updates the realized daily P&L gauge.
func SetDailyPNL(pnl float64) {
	dailyPNL.Set(pnl)
}

// SetRiskPerTrade updates the recalibrated risk gauge.
func SetRiskPerTrade(risk float64) {
	riskPerTrade.Set(risk)
}

// SetRegimeConfidence updates the latest classification gauge.
func SetRegimeConfidence(symbol, regime string, confidence float64) {
	regimeConfidence.WithLabelValues(symbol, regime).Set(confidence)
}

// RecordSubmissionRetry counts one backoff retry of an order submission.
func RecordSubmissionRetry() {
	submissionRetries.Inc()
}
