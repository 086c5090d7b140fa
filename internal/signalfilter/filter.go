package signalfilter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"adaptiveRiskBot/internal/domain"
	"adaptiveRiskBot/internal/ports"
)

// Criterion names one of the five weighted scoring criteria.
type Criterion string

const (
	CriterionMultiTimeframe Criterion = "multi_timeframe"
	CriterionRegime         Criterion = "regime_alignment"
	CriterionTimeWindow     Criterion = "time_window"
	CriterionVolume         Criterion = "volume"
	CriterionTrend          Criterion = "trend_alignment"
	CriterionSpacing        Criterion = "signal_spacing"
)

// Criterion weights. They sum to 1 so the composite score stays in [0, 1].
const (
	weightMultiTimeframe = 0.30
	weightRegime         = 0.25
	weightTimeWindow     = 0.20
	weightVolume         = 0.15
	weightTrend          = 0.10
)

// Window is a daily UTC hour window with elevated liquidity.
// A window may wrap midnight (e.g., StartHour 22, EndHour 2).
type Window struct {
	StartHour int
	EndHour   int
}

// Contains reports whether the given time falls inside the window.
func (w Window) Contains(t time.Time) bool {
	h := t.UTC().Hour()
	if w.StartHour <= w.EndHour {
		return h >= w.StartHour && h < w.EndHour
	}
	return h >= w.StartHour || h < w.EndHour
}

// Config holds the filter's acceptance calibration.
type Config struct {
	AcceptanceThreshold   float64       // Minimum composite score to accept (default 0.65)
	MinTimeframesAgreeing int           // Timeframes required for full confirmation credit (default 2)
	MinVolumeRatio        float64       // Volume ratio required for full volume credit (default 1.2)
	MinSignalSpacing      time.Duration // Minimum spacing between accepted same-symbol+direction signals
	HighLiquidityWindows  []Window      // Hours with a time-window boost; empty means always boosted
	ReducedWindowScore    float64       // Score outside the liquidity windows (default 0.4)
}

// DefaultConfig returns the default acceptance calibration.
func DefaultConfig() Config {
	return Config{
		AcceptanceThreshold:   0.65,
		MinTimeframesAgreeing: 2,
		MinVolumeRatio:        1.2,
		MinSignalSpacing:      15 * time.Minute,
		HighLiquidityWindows: []Window{
			{StartHour: 7, EndHour: 11},  // European open overlap
			{StartHour: 13, EndHour: 17}, // US open overlap
		},
		ReducedWindowScore: 0.4,
	}
}

// Decision is the filter's verdict on one signal.
type Decision struct {
	Accepted         bool
	Score            float64
	FailingCriterion Criterion // Dominant failing criterion when rejected
	Reason           string
}

// Filter scores incoming directional signals against regime, multi-timeframe,
// volume, timing and trend criteria, and suppresses overtrading by enforcing
// a minimum spacing between repeated signals of the same symbol+direction.
type Filter struct {
	cfg Config
	log ports.Logger

	mu           sync.Mutex
	lastAccepted map[string]time.Time // symbol+direction -> last acceptance time
}

// New creates a filter after validating the calibration.
func New(cfg Config, log ports.Logger) (*Filter, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is required for signal filter")
	}
	if cfg.AcceptanceThreshold <= 0 || cfg.AcceptanceThreshold > 1 {
		return nil, fmt.Errorf("acceptance threshold must be in (0, 1], got %f", cfg.AcceptanceThreshold)
	}
	if cfg.MinTimeframesAgreeing <= 0 {
		return nil, fmt.Errorf("minimum agreeing timeframes must be positive, got %d", cfg.MinTimeframesAgreeing)
	}
	if cfg.MinVolumeRatio <= 0 {
		return nil, fmt.Errorf("minimum volume ratio must be positive, got %f", cfg.MinVolumeRatio)
	}
	if cfg.MinSignalSpacing < 0 {
		return nil, fmt.Errorf("minimum signal spacing cannot be negative")
	}
	if cfg.ReducedWindowScore < 0 || cfg.ReducedWindowScore > 1 {
		return nil, fmt.Errorf("reduced window score must be in [0, 1], got %f", cfg.ReducedWindowScore)
	}
	return &Filter{
		cfg:          cfg,
		log:          log,
		lastAccepted: make(map[string]time.Time),
	}, nil
}

// Evaluate scores the signal and returns the accept/reject decision.
// An accepted signal updates the spacing tracker for its symbol+direction.
func (f *Filter) Evaluate(ctx context.Context, sig *domain.Signal, regime domain.RegimeClassification) Decision {
	if err := sig.Validate(); err != nil {
		return Decision{Accepted: false, Reason: err.Error()}
	}

	key := spacingKey(sig.Symbol, sig.Direction)

	f.mu.Lock()
	defer f.mu.Unlock()

	// Spacing is checked before scoring: a repeat inside the window is
	// rejected regardless of how strong it looks.
	if last, ok := f.lastAccepted[key]; ok && f.cfg.MinSignalSpacing > 0 {
		if elapsed := sig.Timestamp.Sub(last); elapsed < f.cfg.MinSignalSpacing {
			f.log.Debug(ctx, "Signal rejected by spacing", map[string]interface{}{
				"symbol":    sig.Symbol,
				"direction": sig.Direction,
				"elapsed":   elapsed.String(),
				"required":  f.cfg.MinSignalSpacing.String(),
			})
			return Decision{
				Accepted:         false,
				FailingCriterion: CriterionSpacing,
				Reason:           fmt.Sprintf("only %s since last %s %s signal, need %s", elapsed, sig.Symbol, sig.Direction, f.cfg.MinSignalSpacing),
			}
		}
	}

	type scored struct {
		criterion Criterion
		weight    float64
		score     float64
	}
	parts := []scored{
		{CriterionMultiTimeframe, weightMultiTimeframe, f.multiTimeframeScore(sig)},
		{CriterionRegime, weightRegime, f.regimeScore(sig, regime)},
		{CriterionTimeWindow, weightTimeWindow, f.timeWindowScore(sig.Timestamp)},
		{CriterionVolume, weightVolume, f.volumeScore(sig)},
		{CriterionTrend, weightTrend, f.trendScore(sig)},
	}

	var composite float64
	worst := parts[0]
	worstShortfall := -1.0
	for _, p := range parts {
		composite += p.weight * p.score
		if shortfall := p.weight * (1 - p.score); shortfall > worstShortfall {
			worstShortfall = shortfall
			worst = p
		}
	}

	if composite < f.cfg.AcceptanceThreshold {
		f.log.Debug(ctx, "Signal rejected by composite score", map[string]interface{}{
			"symbol":    sig.Symbol,
			"direction": sig.Direction,
			"score":     composite,
			"threshold": f.cfg.AcceptanceThreshold,
			"failing":   string(worst.criterion),
		})
		return Decision{
			Accepted:         false,
			Score:            composite,
			FailingCriterion: worst.criterion,
			Reason:           fmt.Sprintf("composite score %.3f below threshold %.3f (dominant failure: %s)", composite, f.cfg.AcceptanceThreshold, worst.criterion),
		}
	}

	f.lastAccepted[key] = sig.Timestamp
	f.log.Info(ctx, "Signal accepted", map[string]interface{}{
		"symbol":    sig.Symbol,
		"direction": sig.Direction,
		"score":     composite,
	})
	return Decision{Accepted: true, Score: composite}
}

// ResolveConflict picks exactly one of two opposing signals asserted for the
// same symbol on the same tick. In ranging/choppy regimes the
// mean-reversion-oriented direction survives; otherwise the trend-following
// direction does. The tie-break is deterministic, never both.
func (f *Filter) ResolveConflict(ctx context.Context, long, short *domain.Signal, regime domain.RegimeClassification) *domain.Signal {
	preferred := trendFollowingDirection(regime)
	if regime.Regime == domain.RegimeRanging || regime.Regime == domain.RegimeChoppy {
		preferred = preferred.Opposite()
	}
	f.log.Info(ctx, "Conflicting signals resolved", map[string]interface{}{
		"symbol":    long.Symbol,
		"regime":    string(regime.Regime),
		"preferred": string(preferred),
	})
	if preferred == domain.Long {
		return long
	}
	return short
}

// trendFollowingDirection derives the with-trend direction from the regime's
// slope. A flat or missing slope defaults to long so the tie-break stays
// deterministic.
func trendFollowingDirection(regime domain.RegimeClassification) domain.Direction {
	if regime.Features.TrendSlope < 0 {
		return domain.Short
	}
	return domain.Long
}

func (f *Filter) multiTimeframeScore(sig *domain.Signal) float64 {
	if sig.TimeframesAgreeing >= f.cfg.MinTimeframesAgreeing {
		return 1
	}
	return float64(sig.TimeframesAgreeing) / float64(f.cfg.MinTimeframesAgreeing)
}

// regimeScore favors longs in trending-up markets and shorts in
// trending-down markets; neutral regimes neither help nor hurt.
func (f *Filter) regimeScore(sig *domain.Signal, regime domain.RegimeClassification) float64 {
	switch {
	case regime.TrendingUp():
		if sig.Direction == domain.Long {
			return 1
		}
		return 0
	case regime.TrendingDown():
		if sig.Direction == domain.Short {
			return 1
		}
		return 0
	case regime.Regime == domain.RegimeVolatile:
		// Elevated volatility makes either direction a coin toss; penalize.
		return 0.3
	default:
		return 0.5
	}
}

func (f *Filter) timeWindowScore(t time.Time) float64 {
	if len(f.cfg.HighLiquidityWindows) == 0 {
		return 1
	}
	for _, w := range f.cfg.HighLiquidityWindows {
		if w.Contains(t) {
			return 1
		}
	}
	return f.cfg.ReducedWindowScore
}

func (f *Filter) volumeScore(sig *domain.Signal) float64 {
	if sig.VolumeRatio >= f.cfg.MinVolumeRatio {
		return 1
	}
	if sig.VolumeRatio <= 0 {
		return 0
	}
	return sig.VolumeRatio / f.cfg.MinVolumeRatio
}

func (f *Filter) trendScore(sig *domain.Signal) float64 {
	switch {
	case sig.TrendSlope == 0:
		return 0.5
	case sig.Direction == domain.Long && sig.TrendSlope > 0:
		return 1
	case sig.Direction == domain.Short && sig.TrendSlope < 0:
		return 1
	default:
		return 0
	}
}

func spacingKey(symbol string, dir domain.Direction) string {
	return symbol + ":" + string(dir)
}
