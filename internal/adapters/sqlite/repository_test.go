package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

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

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(Config{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func samplePosition() *domain.Position {
	return &domain.Position{
		Symbol:     "ETHUSDT",
		Direction:  domain.Long,
		EntryPrice: 2000,
		Size:       1.5,
		Leverage:   3,
		StopLoss:   1950,
		TakeProfit: 2100,
		RiskPct:    0.01,
		Status:     domain.StatusPending,
		Trailing:   domain.TrailingInactive,
	}
}

func TestPositionLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.CreatePosition(ctx, samplePosition())
	require.NoError(t, err)
	require.NotZero(t, id)

	got, err := repo.FindPositionByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, domain.Long, got.Direction)
	assert.Equal(t, domain.TrailingInactive, got.Trailing)
	assert.True(t, got.EntryTime.IsZero())

	got.Status = domain.StatusOpen
	got.EntryTime = time.Now().UTC().Truncate(time.Second)
	got.Trailing = domain.TrailingActive
	got.TrailingTrigger = 2050
	require.NoError(t, repo.UpdatePosition(ctx, got))

	reloaded, err := repo.FindPositionByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, reloaded)
	assert.Equal(t, domain.StatusOpen, reloaded.Status)
	assert.Equal(t, domain.TrailingActive, reloaded.Trailing)
	assert.Equal(t, 2050.0, reloaded.TrailingTrigger)
	assert.Equal(t, got.EntryTime.Unix(), reloaded.EntryTime.Unix())
}

func TestFindActiveExcludesClosed(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	pendingID, err := repo.CreatePosition(ctx, samplePosition())
	require.NoError(t, err)

	open := samplePosition()
	open.Status = domain.StatusOpen
	openID, err := repo.CreatePosition(ctx, open)
	require.NoError(t, err)

	closed := samplePosition()
	closedID, err := repo.CreatePosition(ctx, closed)
	require.NoError(t, err)
	closed.ID = closedID
	closed.Status = domain.StatusClosed
	closed.ExitPrice = 2100
	closed.ExitTime = time.Now().UTC()
	closed.CloseReason = domain.CloseReasonTakeProfit
	require.NoError(t, repo.UpdatePosition(ctx, closed))

	active, err := repo.FindActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, pendingID, active[0].ID)
	assert.Equal(t, openID, active[1].ID)
}

func TestDeletePosition(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.CreatePosition(ctx, samplePosition())
	require.NoError(t, err)
	require.NoError(t, repo.DeletePosition(ctx, id))

	got, err := repo.FindPositionByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.ErrorIs(t, repo.DeletePosition(ctx, id), ports.ErrNotFound)
}

func TestUpdateUnknownPosition(t *testing.T) {
	repo := newTestRepo(t)

	pos := samplePosition()
	pos.ID = 999
	assert.ErrorIs(t, repo.UpdatePosition(context.Background(), pos), ports.ErrNotFound)
}

func TestTradeResultLogOrderingAndLimit(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := repo.AppendResult(ctx, &domain.TradeResult{
			PositionID:  int64(i + 1),
			Symbol:      "ETHUSDT",
			Direction:   domain.Long,
			PNL:         float64(i * 10),
			PNLPct:      float64(i) * 0.01,
			CloseReason: domain.CloseReasonTakeProfit,
			Duration:    time.Duration(i) * time.Minute,
			ClosedAt:    base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	// Full history, chronological.
	all, err := repo.RecentResults(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, int64(1), all[0].PositionID)
	assert.Equal(t, int64(5), all[4].PositionID)

	// A limit keeps the most recent entries, still chronological.
	last2, err := repo.RecentResults(ctx, 2)
	require.NoError(t, err)
	require.Len(t, last2, 2)
	assert.Equal(t, int64(4), last2[0].PositionID)
	assert.Equal(t, int64(5), last2[1].PositionID)
	assert.Equal(t, 3*time.Minute, last2[0].Duration)
}

func TestResultsBySymbol(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, symbol := range []string{"ETHUSDT", "BTCUSDT", "ETHUSDT"} {
		_, err := repo.AppendResult(ctx, &domain.TradeResult{
			Symbol:      symbol,
			Direction:   domain.Short,
			PNL:         5,
			PNLPct:      0.002,
			CloseReason: domain.CloseReasonTrailingStop,
			ClosedAt:    now,
		})
		require.NoError(t, err)
	}

	eth, err := repo.ResultsBySymbol(ctx, "ETHUSDT", 0)
	require.NoError(t, err)
	assert.Len(t, eth, 2)

	btc, err := repo.ResultsBySymbol(ctx, "BTCUSDT", 0)
	require.NoError(t, err)
	require.Len(t, btc, 1)
	assert.Equal(t, domain.CloseReasonTrailingStop, btc[0].CloseReason)
}

func TestNewRepositoryRejectsUnopenablePath(t *testing.T) {
	// A directory is not a database file.
	_, err := NewRepository(Config{DBPath: t.TempDir(), Logger: &mockLogger{}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrDBConnection)
}

func TestClosedRepositoryReportsErrorCategory(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.CreatePosition(ctx, samplePosition())
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	// Writes surface as update failures, reads as query failures, so
	// callers can branch on the category.
	_, err = repo.CreatePosition(ctx, samplePosition())
	assert.ErrorIs(t, err, ports.ErrUpdateFailed)

	pos := samplePosition()
	pos.ID = id
	assert.ErrorIs(t, repo.UpdatePosition(ctx, pos), ports.ErrUpdateFailed)

	_, err = repo.FindActive(ctx)
	assert.ErrorIs(t, err, ports.ErrQueryFailed)

	_, err = repo.RecentResults(ctx, 10)
	assert.ErrorIs(t, err, ports.ErrQueryFailed)

	assert.ErrorIs(t, repo.SaveBudget(ctx, &domain.RiskBudget{RiskPerTrade: 0.01}), ports.ErrUpdateFailed)
}

func TestRiskBudgetRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// No budget stored yet.
	loaded, err := repo.LoadBudget(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	budget := &domain.RiskBudget{
		RiskPerTrade:     0.01,
		Leverage:         4,
		MaxOpenPositions: 3,
		MaxDailyDrawdown: 0.05,
		SymbolCaps:       map[string]float64{"ETHUSDT": 0.5},
	}
	require.NoError(t, repo.SaveBudget(ctx, budget))

	loaded, err = repo.LoadBudget(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, budget.RiskPerTrade, loaded.RiskPerTrade)
	assert.Equal(t, budget.SymbolCaps, loaded.SymbolCaps)

	// Saving again replaces the stored value.
	budget.RiskPerTrade = 0.015
	require.NoError(t, repo.SaveBudget(ctx, budget))
	loaded, err = repo.LoadBudget(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.015, loaded.RiskPerTrade)
}
