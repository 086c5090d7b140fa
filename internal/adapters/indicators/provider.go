package indicators

import (
	"context"
	"fmt"
	"math"

	"adaptiveRiskBot/internal/domain"
	"adaptiveRiskBot/internal/ports"
)

// Provider implements ports.IndicatorProvider, deriving the feature vector
// the regime classifier consumes from raw OHLCV history.
type Provider struct {
	period          int // ATR/ADX lookback
	bollingerPeriod int
}

// Config holds the indicator lookback periods.
type Config struct {
	Period          int // default 14
	BollingerPeriod int // default 20
}

// New creates an indicator provider.
func New(cfg Config) *Provider {
	period := cfg.Period
	if period <= 0 {
		period = 14
	}
	bollinger := cfg.BollingerPeriod
	if bollinger <= 0 {
		bollinger = 20
	}
	return &Provider{period: period, bollingerPeriod: bollinger}
}

// Snapshot computes the current feature vector from the supplied klines,
// oldest first.
func (p *Provider) Snapshot(ctx context.Context, klines []*domain.Kline) (domain.FeatureSnapshot, error) {
	minBars := p.period + 1
	if p.bollingerPeriod+1 > minBars {
		minBars = p.bollingerPeriod + 1
	}
	if len(klines) < minBars {
		return domain.FeatureSnapshot{Bars: len(klines)},
			fmt.Errorf("need at least %d klines, got %d: %w", minBars, len(klines), ports.ErrInsufficientHistory)
	}

	high := make([]float64, len(klines))
	low := make([]float64, len(klines))
	closes := make([]float64, len(klines))
	for i, k := range klines {
		high[i] = k.High
		low[i] = k.Low
		closes[i] = k.Close
	}
	returns := toReturns(closes)

	atrSeries := atr(high, low, closes, p.period)
	widthSeries := bollingerWidth(closes, p.bollingerPeriod)

	return domain.FeatureSnapshot{
		ATR:             last(atrSeries),
		ATRMean:         mean(atrSeries),
		ADX:             adx(high, low, closes, p.period),
		BollingerWidth:  last(widthSeries),
		BollingerMean:   mean(widthSeries),
		Autocorrelation: autocorrelation(returns),
		Hurst:           hurst(returns),
		TrendSlope:      trendSlope(closes),
		Bars:            len(klines),
	}, nil
}

// trueRange computes the TR series; index 0 is the plain high-low range.
func trueRange(high, low, closes []float64) []float64 {
	tr := make([]float64, len(closes))
	tr[0] = high[0] - low[0]
	for i := 1; i < len(closes); i++ {
		tr[i] = math.Max(high[i]-low[i],
			math.Max(math.Abs(high[i]-closes[i-1]), math.Abs(low[i]-closes[i-1])))
	}
	return tr
}

// atr returns the Wilder-smoothed ATR series.
func atr(high, low, closes []float64, period int) []float64 {
	tr := trueRange(high, low, closes)

	var sum float64
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	current := sum / float64(period)

	series := []float64{current}
	for i := period + 1; i < len(tr); i++ {
		current = (current*float64(period-1) + tr[i]) / float64(period)
		series = append(series, current)
	}
	return series
}

// adx returns the latest Average Directional Index value.
func adx(high, low, closes []float64, period int) float64 {
	n := len(high)
	plusDM := make([]float64, n-1)
	minusDM := make([]float64, n-1)
	for i := 1; i < n; i++ {
		highDiff := high[i] - high[i-1]
		lowDiff := low[i-1] - low[i]
		if highDiff > lowDiff && highDiff > 0 {
			plusDM[i-1] = highDiff
		}
		if lowDiff > highDiff && lowDiff > 0 {
			minusDM[i-1] = lowDiff
		}
	}

	tr := trueRange(high, low, closes)
	smoothedPlus := wilderSmooth(plusDM, period)
	smoothedMinus := wilderSmooth(minusDM, period)
	smoothedTR := wilderSmooth(tr[1:], period)

	dx := make([]float64, len(smoothedTR))
	for i := range smoothedTR {
		if smoothedTR[i] == 0 {
			continue
		}
		plusDI := smoothedPlus[i] / smoothedTR[i] * 100
		minusDI := smoothedMinus[i] / smoothedTR[i] * 100
		if diSum := plusDI + minusDI; diSum != 0 {
			dx[i] = math.Abs(plusDI-minusDI) / diSum * 100
		}
	}
	return last(wilderSmooth(dx, period))
}

// wilderSmooth applies Wilder's smoothing.
func wilderSmooth(values []float64, period int) []float64 {
	if len(values) < period {
		return nil
	}
	smoothed := make([]float64, len(values)-period+1)
	var sum float64
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	smoothed[0] = sum / float64(period)
	for i := 1; i < len(smoothed); i++ {
		smoothed[i] = (smoothed[i-1]*float64(period-1) + values[i+period-1]) / float64(period)
	}
	return smoothed
}

// bollingerWidth returns the band width series, (4*stddev)/sma per window.
func bollingerWidth(closes []float64, period int) []float64 {
	var series []float64
	for i := period; i <= len(closes); i++ {
		window := closes[i-period : i]
		m := mean(window)
		if m == 0 {
			series = append(series, 0)
			continue
		}
		series = append(series, 4*stddev(window, m)/m)
	}
	return series
}

// autocorrelation returns the lag-1 autocorrelation of the return series.
func autocorrelation(returns []float64) float64 {
	if len(returns) < 3 {
		return 0
	}
	m := mean(returns)
	var num, den float64
	for i := 1; i < len(returns); i++ {
		num += (returns[i] - m) * (returns[i-1] - m)
	}
	for _, r := range returns {
		den += (r - m) * (r - m)
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// hurst estimates the Hurst exponent with a rescaled-range calculation over
// the full return window. ~0.5 means a random walk, above it persistence.
func hurst(returns []float64) float64 {
	n := len(returns)
	if n < 8 {
		return 0.5
	}
	m := mean(returns)
	sd := stddev(returns, m)
	if sd == 0 {
		return 0.5
	}

	var cum, minCum, maxCum float64
	for _, r := range returns {
		cum += r - m
		if cum < minCum {
			minCum = cum
		}
		if cum > maxCum {
			maxCum = cum
		}
	}
	rs := (maxCum - minCum) / sd
	if rs <= 0 {
		return 0.5
	}
	h := math.Log(rs) / math.Log(float64(n))
	return math.Max(0, math.Min(1, h))
}

// trendSlope returns the least-squares slope of closes, normalized by the
// mean price so it reads as fractional change per bar.
func trendSlope(closes []float64) float64 {
	n := float64(len(closes))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, c := range closes {
		x := float64(i)
		sumX += x
		sumY += c
		sumXY += x * c
		sumXX += x * x
	}
	den := n*sumXX - sumX*sumX
	if den == 0 {
		return 0
	}
	slope := (n*sumXY - sumX*sumY) / den
	meanPrice := sumY / n
	if meanPrice == 0 {
		return 0
	}
	return slope / meanPrice
}

func toReturns(closes []float64) []float64 {
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, closes[i]/closes[i-1]-1)
	}
	return returns
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64, m float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

func last(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}
