package signalfilter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adaptiveRiskBot/internal/domain"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newFilter(t *testing.T, cfg Config) *Filter {
	f, err := New(cfg, &mockLogger{})
	require.NoError(t, err)
	return f
}

func trendingUp() domain.RegimeClassification {
	return domain.RegimeClassification{
		Regime:     domain.RegimeTrending,
		Confidence: 0.8,
		Features:   domain.FeatureSnapshot{TrendSlope: 1.5, Bars: 100},
	}
}

// inWindow is a timestamp inside the default 07:00-11:00 UTC liquidity window.
var inWindow = time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)

// outOfWindow is a timestamp outside both default liquidity windows.
var outOfWindow = time.Date(2025, 3, 10, 20, 30, 0, 0, time.UTC)

func strongLong(ts time.Time) *domain.Signal {
	return &domain.Signal{
		Symbol:             "ETHUSDT",
		Direction:          domain.Long,
		Timeframe:          domain.Timeframe15m,
		VolumeRatio:        1.5,
		TrendSlope:         0.8,
		TimeframesAgreeing: 2,
		Timestamp:          ts,
	}
}

func TestEvaluateAcceptsStrongSignal(t *testing.T) {
	f := newFilter(t, DefaultConfig())

	d := f.Evaluate(context.Background(), strongLong(inWindow), trendingUp())
	assert.True(t, d.Accepted)
	assert.InDelta(t, 1.0, d.Score, 1e-9)
}

func TestEvaluateRejectsBelowThresholdWithDominantCriterion(t *testing.T) {
	f := newFilter(t, DefaultConfig())

	sig := &domain.Signal{
		Symbol:             "ETHUSDT",
		Direction:          domain.Long,
		Timeframe:          domain.Timeframe15m,
		VolumeRatio:        1.5,
		TrendSlope:         0.8,
		TimeframesAgreeing: 1, // only one timeframe confirms
		Timestamp:          outOfWindow,
	}
	// 0.30*0.5 + 0.25*0.5 + 0.20*0.4 + 0.15*1 + 0.10*1 = 0.605 < 0.65
	d := f.Evaluate(context.Background(), sig, domain.RegimeClassification{Regime: domain.RegimeUnknown})
	assert.False(t, d.Accepted)
	assert.InDelta(t, 0.605, d.Score, 1e-9)
	assert.Equal(t, CriterionMultiTimeframe, d.FailingCriterion)
	assert.Contains(t, d.Reason, "multi_timeframe")
}

func TestEvaluateRejectsWrongDirectionInTrend(t *testing.T) {
	f := newFilter(t, DefaultConfig())

	sig := strongLong(inWindow)
	sig.Direction = domain.Short
	sig.TrendSlope = 0.8   // slope still up, short against it
	sig.VolumeRatio = 0.75 // and volume is thin

	d := f.Evaluate(context.Background(), sig, trendingUp())
	assert.False(t, d.Accepted)
	// Regime misalignment carries the largest weighted shortfall.
	assert.Equal(t, CriterionRegime, d.FailingCriterion)
}

func TestEvaluateEnforcesSignalSpacing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSignalSpacing = 30 * time.Minute
	f := newFilter(t, cfg)

	first := f.Evaluate(context.Background(), strongLong(inWindow), trendingUp())
	require.True(t, first.Accepted)

	// A second, equally strong signal 10 minutes later must be rejected.
	repeat := strongLong(inWindow.Add(10 * time.Minute))
	d := f.Evaluate(context.Background(), repeat, trendingUp())
	assert.False(t, d.Accepted)
	assert.Equal(t, CriterionSpacing, d.FailingCriterion)

	// The opposite direction is tracked separately.
	opposite := strongLong(inWindow.Add(10 * time.Minute))
	opposite.Direction = domain.Short
	opposite.TrendSlope = -0.8
	d = f.Evaluate(context.Background(), opposite, domain.RegimeClassification{
		Regime:   domain.RegimeTrending,
		Features: domain.FeatureSnapshot{TrendSlope: -1.0},
	})
	assert.True(t, d.Accepted)

	// After the spacing elapses the same direction is admissible again.
	later := strongLong(inWindow.Add(31 * time.Minute))
	d = f.Evaluate(context.Background(), later, trendingUp())
	assert.True(t, d.Accepted)
}

func TestEvaluateRejectsMalformedSignal(t *testing.T) {
	f := newFilter(t, DefaultConfig())

	d := f.Evaluate(context.Background(), &domain.Signal{Direction: domain.Long, Timestamp: inWindow}, trendingUp())
	assert.False(t, d.Accepted)
	assert.NotEmpty(t, d.Reason)
}

func TestResolveConflictPrefersMeanReversionInRanging(t *testing.T) {
	f := newFilter(t, DefaultConfig())

	long := strongLong(inWindow)
	short := strongLong(inWindow)
	short.Direction = domain.Short

	ranging := domain.RegimeClassification{
		Regime:   domain.RegimeRanging,
		Features: domain.FeatureSnapshot{TrendSlope: 1.0}, // recent push up
	}
	// Mean reversion fades the push: the short survives.
	winner := f.ResolveConflict(context.Background(), long, short, ranging)
	assert.Equal(t, domain.Short, winner.Direction)

	choppy := ranging
	choppy.Regime = domain.RegimeChoppy
	winner = f.ResolveConflict(context.Background(), long, short, choppy)
	assert.Equal(t, domain.Short, winner.Direction)
}

func TestResolveConflictPrefersTrendFollowingOtherwise(t *testing.T) {
	f := newFilter(t, DefaultConfig())

	long := strongLong(inWindow)
	short := strongLong(inWindow)
	short.Direction = domain.Short

	winner := f.ResolveConflict(context.Background(), long, short, trendingUp())
	assert.Equal(t, domain.Long, winner.Direction)

	down := domain.RegimeClassification{
		Regime:   domain.RegimeTrending,
		Features: domain.FeatureSnapshot{TrendSlope: -1.0},
	}
	winner = f.ResolveConflict(context.Background(), long, short, down)
	assert.Equal(t, domain.Short, winner.Direction)
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AcceptanceThreshold = 0
	_, err := New(cfg, &mockLogger{})
	assert.Error(t, err)

	cfg = DefaultConfig()
	_, err = New(cfg, nil)
	assert.Error(t, err)
}
