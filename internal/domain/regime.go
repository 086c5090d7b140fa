package domain

// Regime labels the classified market behavior state.
type Regime string

const (
	RegimeTrending Regime = "trending"
	RegimeRanging  Regime = "ranging"
	RegimeVolatile Regime = "volatile"
	RegimeQuiet    Regime = "quiet"
	RegimeChoppy   Regime = "choppy"
	RegimeUnknown  Regime = "unknown"
)

// FeatureSnapshot is the indicator feature vector the classifier consumes.
// The indicator library (external) produces these values from OHLCV history.
type FeatureSnapshot struct {
	ATR             float64 // Average True Range
	ATRMean         float64 // Rolling mean of ATR
	ADX             float64 // Average Directional Index
	BollingerWidth  float64 // Bollinger band width
	BollingerMean   float64 // Rolling mean of Bollinger band width
	Autocorrelation float64 // Lag-1 return autocorrelation in [-1, 1]
	Hurst           float64 // Hurst exponent estimate in [0, 1]
	TrendSlope      float64 // Regression slope of recent closes
	Bars            int     // Number of bars the snapshot was computed from
}

// RegimeClassification is the classifier output: a labeled market state with
// a confidence in [0, 1] and the feature snapshot it was derived from. Only
// the latest value is retained; it is recomputed on each evaluation tick.
type RegimeClassification struct {
	Regime     Regime
	Confidence float64
	Features   FeatureSnapshot
}

// TrendingUp reports whether the regime is trending with a positive slope.
func (c *RegimeClassification) TrendingUp() bool {
	return c.Regime == RegimeTrending && c.Features.TrendSlope > 0
}

// TrendingDown reports whether the regime is trending with a negative slope.
func (c *RegimeClassification) TrendingDown() bool {
	return c.Regime == RegimeTrending && c.Features.TrendSlope < 0
}
