package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adaptiveRiskBot/internal/domain"
)

// Mock implementations

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockPositionRepo struct {
	nextID    int64
	positions map[int64]*domain.Position
	createErr error
	updateErr error
}

func newMockPositionRepo() *mockPositionRepo {
	return &mockPositionRepo{positions: make(map[int64]*domain.Position)}
}

func (m *mockPositionRepo) CreatePosition(ctx context.Context, pos *domain.Position) (int64, error) {
	if m.createErr != nil {
		return 0, m.createErr
	}
	m.nextID++
	cp := *pos
	cp.ID = m.nextID
	m.positions[cp.ID] = &cp
	return cp.ID, nil
}

func (m *mockPositionRepo) UpdatePosition(ctx context.Context, pos *domain.Position) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	cp := *pos
	m.positions[pos.ID] = &cp
	return nil
}

func (m *mockPositionRepo) DeletePosition(ctx context.Context, id int64) error {
	delete(m.positions, id)
	return nil
}

func (m *mockPositionRepo) FindActive(ctx context.Context) ([]*domain.Position, error) {
	var out []*domain.Position
	for _, p := range m.positions {
		if p.Status != domain.StatusClosed {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockPositionRepo) FindPositionByID(ctx context.Context, id int64) (*domain.Position, error) {
	if p, ok := m.positions[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

type mockResultRepo struct {
	results []*domain.TradeResult
}

func (m *mockResultRepo) AppendResult(ctx context.Context, r *domain.TradeResult) (int64, error) {
	cp := *r
	cp.ID = int64(len(m.results) + 1)
	m.results = append(m.results, &cp)
	return cp.ID, nil
}

func (m *mockResultRepo) RecentResults(ctx context.Context, limit int) ([]*domain.TradeResult, error) {
	return m.results, nil
}

func (m *mockResultRepo) ResultsBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.TradeResult, error) {
	var out []*domain.TradeResult
	for _, r := range m.results {
		if r.Symbol == symbol {
			out = append(out, r)
		}
	}
	return out, nil
}

func newTestLedger(t *testing.T) (*Ledger, *mockPositionRepo, *mockResultRepo) {
	posRepo := newMockPositionRepo()
	resultRepo := &mockResultRepo{}
	l, err := New(Config{
		Logger:             &mockLogger{},
		PositionRepository: posRepo,
		ResultRepository:   resultRepo,
	})
	require.NoError(t, err)
	return l, posRepo, resultRepo
}

func pendingPosition() *domain.Position {
	return &domain.Position{
		Symbol:     "ETHUSDT",
		Direction:  domain.Long,
		EntryPrice: 2000,
		Size:       1.5,
		Leverage:   3,
		StopLoss:   1950,
		TakeProfit: 2100,
		RiskPct:    0.01,
	}
}

func TestInsertPendingRequiresStopLoss(t *testing.T) {
	l, _, _ := newTestLedger(t)

	pos := pendingPosition()
	pos.StopLoss = 0
	_, err := l.InsertPending(context.Background(), pos)
	assert.Error(t, err)

	pos = pendingPosition()
	pos.Size = 0
	_, err = l.InsertPending(context.Background(), pos)
	assert.Error(t, err)
}

func TestPendingLifecycle(t *testing.T) {
	l, posRepo, _ := newTestLedger(t)
	ctx := context.Background()

	id, err := l.InsertPending(ctx, pendingPosition())
	require.NoError(t, err)
	require.NotZero(t, id)
	assert.Equal(t, domain.StatusPending, posRepo.positions[id].Status)

	now := time.Now().UTC()
	require.NoError(t, l.MarkOpen(ctx, id, 2002, 1952, 2102, now))
	got := l.Get(id)
	require.NotNil(t, got)
	assert.Equal(t, domain.StatusOpen, got.Status)
	assert.Equal(t, 2002.0, got.EntryPrice)
	assert.Equal(t, domain.TrailingInactive, got.Trailing)

	// Opening twice must fail: the reservation was consumed.
	assert.Error(t, l.MarkOpen(ctx, id, 2002, 1952, 2102, now))
}

func TestRemovePendingRollsBack(t *testing.T) {
	l, posRepo, _ := newTestLedger(t)
	ctx := context.Background()

	id, err := l.InsertPending(ctx, pendingPosition())
	require.NoError(t, err)

	require.NoError(t, l.RemovePending(ctx, id))
	assert.Nil(t, l.Get(id))
	_, exists := posRepo.positions[id]
	assert.False(t, exists)

	// Removing again is an error: nothing is reserved anymore.
	assert.Error(t, l.RemovePending(ctx, id))
}

func TestCloseRealizesPNL(t *testing.T) {
	l, _, resultRepo := newTestLedger(t)
	ctx := context.Background()
	now := time.Now().UTC()

	id, err := l.InsertPending(ctx, pendingPosition())
	require.NoError(t, err)
	require.NoError(t, l.MarkOpen(ctx, id, 2000, 1950, 2100, now.Add(-time.Hour)))

	result, err := l.Close(ctx, id, 2100, domain.CloseReasonTakeProfit, now)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.InDelta(t, 150.0, result.PNL, 1e-9) // (2100-2000)*1.5
	assert.InDelta(t, 0.05, result.PNLPct, 1e-9)
	assert.Equal(t, domain.CloseReasonTakeProfit, result.CloseReason)
	assert.Equal(t, time.Hour, result.Duration)
	assert.Len(t, resultRepo.results, 1)

	state := l.AccountState(10_000)
	assert.Equal(t, 0, state.OpenPositions)
	assert.InDelta(t, 150.0, state.DailyPNL, 1e-9)
}

func TestCloseShortPosition(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	now := time.Now().UTC()

	pos := pendingPosition()
	pos.Direction = domain.Short
	pos.StopLoss = 2050
	id, err := l.InsertPending(ctx, pos)
	require.NoError(t, err)
	require.NoError(t, l.MarkOpen(ctx, id, 2000, 2050, 1900, now))

	result, err := l.Close(ctx, id, 1900, domain.CloseReasonTakeProfit, now.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.InDelta(t, 150.0, result.PNL, 1e-9) // (2000-1900)*1.5
	assert.InDelta(t, 0.05, result.PNLPct, 1e-9)
}

func TestCloseIsIdempotent(t *testing.T) {
	l, _, resultRepo := newTestLedger(t)
	ctx := context.Background()
	now := time.Now().UTC()

	id, err := l.InsertPending(ctx, pendingPosition())
	require.NoError(t, err)
	require.NoError(t, l.MarkOpen(ctx, id, 2000, 1950, 2100, now))

	first, err := l.Close(ctx, id, 1950, domain.CloseReasonStopLoss, now)
	require.NoError(t, err)
	require.NotNil(t, first)

	// A duplicate trigger evaluation closes again: no-op, no new result.
	second, err := l.Close(ctx, id, 1950, domain.CloseReasonStopLoss, now)
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Len(t, resultRepo.results, 1)
}

func TestAccountStateAggregatesReservedRisk(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	id1, err := l.InsertPending(ctx, pendingPosition())
	require.NoError(t, err)
	_, err = l.InsertPending(ctx, pendingPosition())
	require.NoError(t, err)
	require.NoError(t, l.MarkOpen(ctx, id1, 2000, 1950, 2100, time.Now().UTC()))

	state := l.AccountState(10_000)
	assert.Equal(t, 2, state.OpenPositions)
	assert.InDelta(t, 150.0, state.ReservedRisk, 1e-9) // 2 * 1.5*|2000-1950|
	assert.Equal(t, 10_000.0, state.Equity)
}

func TestRestoreReloadsStateAndDailyPNL(t *testing.T) {
	l, posRepo, resultRepo := newTestLedger(t)
	ctx := context.Background()
	now := time.Now().UTC()

	id, err := l.InsertPending(ctx, pendingPosition())
	require.NoError(t, err)
	require.NoError(t, l.MarkOpen(ctx, id, 2000, 1950, 2100, now))
	resultRepo.results = append(resultRepo.results,
		&domain.TradeResult{Symbol: "ETHUSDT", PNL: 75, ClosedAt: now},
		&domain.TradeResult{Symbol: "ETHUSDT", PNL: 50, ClosedAt: now.Add(-48 * time.Hour)}, // not today
	)

	fresh, err := New(Config{
		Logger:             &mockLogger{},
		PositionRepository: posRepo,
		ResultRepository:   resultRepo,
	})
	require.NoError(t, err)
	require.NoError(t, fresh.Restore(ctx, now))

	assert.NotNil(t, fresh.Get(id))
	state := fresh.AccountState(10_000)
	assert.Equal(t, 1, state.OpenPositions)
	assert.InDelta(t, 75.0, state.DailyPNL, 1e-9)
}

func TestResetDaily(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	now := time.Now().UTC()

	id, err := l.InsertPending(ctx, pendingPosition())
	require.NoError(t, err)
	require.NoError(t, l.MarkOpen(ctx, id, 2000, 1950, 2100, now))
	_, err = l.Close(ctx, id, 1950, domain.CloseReasonStopLoss, now)
	require.NoError(t, err)

	require.NotZero(t, l.AccountState(0).DailyPNL)
	l.ResetDaily(ctx)
	assert.Zero(t, l.AccountState(0).DailyPNL)
}
