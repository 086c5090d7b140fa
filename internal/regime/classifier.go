package regime

import (
	"fmt"
	"math"

	"adaptiveRiskBot/internal/domain"
)

// Config holds the threshold table the classifier scores against.
// The defaults are calibration values, not invariants; operators can tune
// them through configuration.
type Config struct {
	MinLookbackBars int // Minimum bars required before classifying

	ADXTrending     float64 // ADX above this favors trending (default 25)
	ADXRanging      float64 // ADX below this favors ranging (default 20)
	HurstTrending   float64 // Hurst above this favors trending (default 0.6)
	HurstRanging    float64 // Hurst below this favors ranging (default 0.45)
	HurstChoppyBand float64 // |Hurst - 0.5| inside this favors choppy (default 0.05)
	VolatileATR     float64 // ATR/ATRMean above this favors volatile (default 1.5)
	QuietATR        float64 // ATR/ATRMean below this favors quiet (default 0.7)
	WideBands       float64 // BollingerWidth/BollingerMean above this favors volatile (default 1.3)
	NarrowBands     float64 // BollingerWidth/BollingerMean below this favors quiet (default 0.75)
	LowAutocorr     float64 // |autocorrelation| below this favors choppy (default 0.1)
}

// DefaultConfig returns the default calibration thresholds.
func DefaultConfig() Config {
	return Config{
		MinLookbackBars: 50,
		ADXTrending:     25,
		ADXRanging:      20,
		HurstTrending:   0.6,
		HurstRanging:    0.45,
		HurstChoppyBand: 0.05,
		VolatileATR:     1.5,
		QuietATR:        0.7,
		WideBands:       1.3,
		NarrowBands:     0.75,
		LowAutocorr:     0.1,
	}
}

// Classifier turns an indicator feature snapshot into a labeled market state
// with confidence. It is a pure function of its input snapshot; it keeps no
// internal state between calls.
type Classifier struct {
	cfg Config
}

// New creates a classifier after validating the threshold table.
func New(cfg Config) (*Classifier, error) {
	if cfg.MinLookbackBars <= 0 {
		return nil, fmt.Errorf("minimum lookback bars must be positive, got %d", cfg.MinLookbackBars)
	}
	if cfg.ADXRanging >= cfg.ADXTrending {
		return nil, fmt.Errorf("ADX ranging threshold (%f) must be below trending threshold (%f)", cfg.ADXRanging, cfg.ADXTrending)
	}
	if cfg.QuietATR >= cfg.VolatileATR {
		return nil, fmt.Errorf("quiet ATR ratio (%f) must be below volatile ratio (%f)", cfg.QuietATR, cfg.VolatileATR)
	}
	return &Classifier{cfg: cfg}, nil
}

// Classify scores each candidate regime with threshold-weighted rules and
// returns the arg-max label. Confidence is the winning score divided by the
// sum of all scores. With insufficient lookback, or when every score is
// zero, it returns unknown with confidence 0.
func (c *Classifier) Classify(f domain.FeatureSnapshot) domain.RegimeClassification {
	if f.Bars < c.cfg.MinLookbackBars {
		return domain.RegimeClassification{Regime: domain.RegimeUnknown, Confidence: 0, Features: f}
	}

	scores := map[domain.Regime]float64{}

	atrRatio := 1.0
	if f.ATRMean > 0 {
		atrRatio = f.ATR / f.ATRMean
	}
	bandRatio := 1.0
	if f.BollingerMean > 0 {
		bandRatio = f.BollingerWidth / f.BollingerMean
	}

	// Trending: strong directional index and persistent returns.
	if f.ADX > c.cfg.ADXTrending {
		scores[domain.RegimeTrending] += 1 + (f.ADX-c.cfg.ADXTrending)/c.cfg.ADXTrending
	}
	if f.Hurst > c.cfg.HurstTrending {
		scores[domain.RegimeTrending] += 1
	}
	if f.Autocorrelation > c.cfg.LowAutocorr {
		scores[domain.RegimeTrending] += 0.5
	}

	// Ranging: weak directional index and anti-persistent returns.
	if f.ADX < c.cfg.ADXRanging && f.ADX > 0 {
		scores[domain.RegimeRanging] += 1
	}
	if f.Hurst > 0 && f.Hurst < c.cfg.HurstRanging {
		scores[domain.RegimeRanging] += 1
	}
	if f.Autocorrelation < -c.cfg.LowAutocorr {
		scores[domain.RegimeRanging] += 0.5
	}

	// Volatile: current range expansion well above its rolling mean.
	if atrRatio > c.cfg.VolatileATR {
		scores[domain.RegimeVolatile] += 1 + (atrRatio - c.cfg.VolatileATR)
	}
	if bandRatio > c.cfg.WideBands {
		scores[domain.RegimeVolatile] += 1
	}

	// Quiet: compressed ranges on both measures.
	if atrRatio > 0 && atrRatio < c.cfg.QuietATR {
		scores[domain.RegimeQuiet] += 1
	}
	if bandRatio > 0 && bandRatio < c.cfg.NarrowBands {
		scores[domain.RegimeQuiet] += 1
	}

	// Choppy: no persistence signature either way.
	if math.Abs(f.Autocorrelation) < c.cfg.LowAutocorr && f.Hurst > 0 {
		scores[domain.RegimeChoppy] += 0.75
	}
	if math.Abs(f.Hurst-0.5) < c.cfg.HurstChoppyBand {
		scores[domain.RegimeChoppy] += 0.75
	}

	var total float64
	best := domain.RegimeUnknown
	var bestScore float64
	// Iterate in a fixed order so score ties break deterministically.
	for _, r := range []domain.Regime{domain.RegimeTrending, domain.RegimeRanging, domain.RegimeVolatile, domain.RegimeQuiet, domain.RegimeChoppy} {
		s := scores[r]
		total += s
		if s > bestScore {
			bestScore = s
			best = r
		}
	}

	if total == 0 || best == domain.RegimeUnknown {
		return domain.RegimeClassification{Regime: domain.RegimeUnknown, Confidence: 0, Features: f}
	}

	return domain.RegimeClassification{
		Regime:     best,
		Confidence: bestScore / total,
		Features:   f,
	}
}
