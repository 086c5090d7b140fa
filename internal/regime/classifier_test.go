package regime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adaptiveRiskBot/internal/domain"
)

func newClassifier(t *testing.T) *Classifier {
	c, err := New(DefaultConfig())
	require.NoError(t, err)
	return c
}

func TestClassifyInsufficientHistory(t *testing.T) {
	c := newClassifier(t)

	out := c.Classify(domain.FeatureSnapshot{Bars: 10, ADX: 40, Hurst: 0.8})
	assert.Equal(t, domain.RegimeUnknown, out.Regime)
	assert.Equal(t, 0.0, out.Confidence)
}

func TestClassifyAllScoresZero(t *testing.T) {
	c := newClassifier(t)

	// Every feature sits in the dead zone between thresholds.
	out := c.Classify(domain.FeatureSnapshot{
		Bars:            100,
		ADX:             22,
		Hurst:           0.56,
		ATR:             1.0,
		ATRMean:         1.0,
		BollingerWidth:  1.0,
		BollingerMean:   1.0,
		Autocorrelation: 0.1,
	})
	assert.Equal(t, domain.RegimeUnknown, out.Regime)
	assert.Equal(t, 0.0, out.Confidence)
}

func TestClassifyTrending(t *testing.T) {
	c := newClassifier(t)

	out := c.Classify(domain.FeatureSnapshot{
		Bars:            100,
		ADX:             35,
		Hurst:           0.7,
		ATR:             1.0,
		ATRMean:         1.0,
		BollingerWidth:  1.0,
		BollingerMean:   1.0,
		Autocorrelation: 0.3,
		TrendSlope:      1.2,
	})
	assert.Equal(t, domain.RegimeTrending, out.Regime)
	assert.Greater(t, out.Confidence, 0.5)
	assert.True(t, out.TrendingUp())
}

func TestClassifyVolatile(t *testing.T) {
	c := newClassifier(t)

	out := c.Classify(domain.FeatureSnapshot{
		Bars:            100,
		ADX:             22,
		Hurst:           0.55,
		ATR:             2.0,
		ATRMean:         1.0,
		BollingerWidth:  1.5,
		BollingerMean:   1.0,
		Autocorrelation: 0.15,
	})
	assert.Equal(t, domain.RegimeVolatile, out.Regime)
}

func TestClassifyChoppy(t *testing.T) {
	c := newClassifier(t)

	out := c.Classify(domain.FeatureSnapshot{
		Bars:            100,
		ADX:             22,
		Hurst:           0.51,
		ATR:             1.0,
		ATRMean:         1.0,
		BollingerWidth:  1.0,
		BollingerMean:   1.0,
		Autocorrelation: 0.02,
	})
	assert.Equal(t, domain.RegimeChoppy, out.Regime)
}

func TestClassifyQuiet(t *testing.T) {
	c := newClassifier(t)

	out := c.Classify(domain.FeatureSnapshot{
		Bars:            100,
		ADX:             30,
		Hurst:           0.55,
		ATR:             0.5,
		ATRMean:         1.0,
		BollingerWidth:  0.5,
		BollingerMean:   1.0,
		Autocorrelation: 0.15,
	})
	// ADX above trending contributes too, but the double quiet hit should win.
	assert.Contains(t, []domain.Regime{domain.RegimeQuiet, domain.RegimeTrending}, out.Regime)
	assert.GreaterOrEqual(t, out.Confidence, 0.0)
	assert.LessOrEqual(t, out.Confidence, 1.0)
}

func TestConfidenceAlwaysInUnitInterval(t *testing.T) {
	c := newClassifier(t)

	snapshots := []domain.FeatureSnapshot{
		{Bars: 100, ADX: 50, Hurst: 0.9, ATR: 3, ATRMean: 1, Autocorrelation: 0.5},
		{Bars: 100, ADX: 5, Hurst: 0.2, ATR: 0.1, ATRMean: 1, Autocorrelation: -0.5},
		{Bars: 100},
		{Bars: 0},
	}
	for _, f := range snapshots {
		out := c.Classify(f)
		assert.GreaterOrEqual(t, out.Confidence, 0.0)
		assert.LessOrEqual(t, out.Confidence, 1.0)
	}
}

func TestNewRejectsBadThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ADXRanging = 30 // above trending threshold
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.MinLookbackBars = 0
	_, err = New(cfg)
	assert.Error(t, err)
}
