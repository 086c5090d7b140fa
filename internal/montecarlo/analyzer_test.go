package montecarlo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adaptiveRiskBot/internal/domain"
	"adaptiveRiskBot/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type stubResultRepo struct {
	results []*domain.TradeResult
}

func (s *stubResultRepo) AppendResult(ctx context.Context, r *domain.TradeResult) (int64, error) {
	s.results = append(s.results, r)
	return int64(len(s.results)), nil
}

func (s *stubResultRepo) RecentResults(ctx context.Context, limit int) ([]*domain.TradeResult, error) {
	if limit > 0 && limit < len(s.results) {
		return s.results[len(s.results)-limit:], nil
	}
	return s.results, nil
}

func (s *stubResultRepo) ResultsBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.TradeResult, error) {
	return s.results, nil
}

func repoWithReturns(returns []float64) *stubResultRepo {
	repo := &stubResultRepo{}
	for _, r := range returns {
		repo.results = append(repo.results, &domain.TradeResult{PNLPct: r})
	}
	return repo
}

func seededConfig() Config {
	cfg := DefaultConfig()
	cfg.Seed = 42
	return cfg
}

func TestAnalyzeRequiresMinimumHistory(t *testing.T) {
	repo := repoWithReturns(make([]float64, 29))
	a, err := New(seededConfig(), repo, &mockLogger{})
	require.NoError(t, err)

	_, err = a.Analyze(context.Background())
	assert.ErrorIs(t, err, ports.ErrInsufficientHistory)
}

func TestAnalyzeAllWinnersRecommendsAbsoluteMax(t *testing.T) {
	// A history with no losing trade produces zero drawdown in every
	// simulation, so the ceiling clamps at the absolute maximum.
	returns := make([]float64, 40)
	for i := range returns {
		returns[i] = 0.01
	}
	a, err := New(seededConfig(), repoWithReturns(returns), &mockLogger{})
	require.NoError(t, err)

	report, err := a.Analyze(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.VaR)
	assert.Equal(t, a.cfg.AbsoluteMax, report.RecommendedRisk)
}

func TestAnalyzeLossyHistoryLowersRisk(t *testing.T) {
	// Alternating heavy losses guarantee deep simulated drawdowns, so the
	// recommended risk must land below the base.
	returns := make([]float64, 60)
	for i := range returns {
		if i%2 == 0 {
			returns[i] = -0.10
		} else {
			returns[i] = 0.02
		}
	}
	cfg := seededConfig()
	cfg.TradesPerSim = 50
	a, err := New(cfg, repoWithReturns(returns), &mockLogger{})
	require.NoError(t, err)

	report, err := a.Analyze(context.Background())
	require.NoError(t, err)
	assert.Greater(t, report.VaR, cfg.MaxDrawdown)
	assert.Less(t, report.RecommendedRisk, cfg.BaseRisk)
	assert.LessOrEqual(t, report.RecommendedRisk, cfg.AbsoluteMax)
}

func TestAnalyzeIsDeterministicForFixedSeed(t *testing.T) {
	returns := []float64{0.03, -0.02, 0.01, -0.04, 0.05, -0.01}
	history := make([]float64, 0, 36)
	for i := 0; i < 6; i++ {
		history = append(history, returns...)
	}

	run := func() *Report {
		a, err := New(seededConfig(), repoWithReturns(history), &mockLogger{})
		require.NoError(t, err)
		report, err := a.Analyze(context.Background())
		require.NoError(t, err)
		return report
	}

	first := run()
	second := run()
	assert.Equal(t, first.VaR, second.VaR)
	assert.Equal(t, first.RecommendedRisk, second.RecommendedRisk)
	assert.Equal(t, first.MeanDrawdown, second.MeanDrawdown)
}

func TestNewValidatesConfig(t *testing.T) {
	repo := &stubResultRepo{}

	cfg := seededConfig()
	cfg.Simulations = 0
	_, err := New(cfg, repo, &mockLogger{})
	assert.Error(t, err)

	cfg = seededConfig()
	cfg.Percentile = 1.0
	_, err = New(cfg, repo, &mockLogger{})
	assert.Error(t, err)

	cfg = seededConfig()
	cfg.MaxDrawdown = 0
	_, err = New(cfg, repo, &mockLogger{})
	assert.Error(t, err)
}

func TestPercentileIndexing(t *testing.T) {
	sorted := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0}
	assert.Equal(t, 1.0, percentile(sorted, 0.95))
	assert.Equal(t, 0.5, percentile(sorted, 0.5))
	assert.Equal(t, 0.1, percentile(sorted, 0.01))
	assert.Zero(t, percentile(nil, 0.95))
}
