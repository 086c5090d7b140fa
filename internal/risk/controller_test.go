package risk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adaptiveRiskBot/internal/domain"
	"adaptiveRiskBot/internal/ledger"
	"adaptiveRiskBot/internal/ports"
	"adaptiveRiskBot/internal/signalfilter"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type memPositionRepo struct {
	nextID    int64
	positions map[int64]*domain.Position
}

func (m *memPositionRepo) CreatePosition(ctx context.Context, pos *domain.Position) (int64, error) {
	m.nextID++
	cp := *pos
	cp.ID = m.nextID
	m.positions[cp.ID] = &cp
	return cp.ID, nil
}

func (m *memPositionRepo) UpdatePosition(ctx context.Context, pos *domain.Position) error {
	cp := *pos
	m.positions[pos.ID] = &cp
	return nil
}

func (m *memPositionRepo) DeletePosition(ctx context.Context, id int64) error {
	delete(m.positions, id)
	return nil
}

func (m *memPositionRepo) FindActive(ctx context.Context) ([]*domain.Position, error) {
	var out []*domain.Position
	for _, p := range m.positions {
		if p.Status != domain.StatusClosed {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memPositionRepo) FindPositionByID(ctx context.Context, id int64) (*domain.Position, error) {
	if p, ok := m.positions[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

// flakyPositionRepo fails UpdatePosition on demand to exercise persistence
// error paths.
type flakyPositionRepo struct {
	memPositionRepo
	failUpdate bool
}

func (f *flakyPositionRepo) UpdatePosition(ctx context.Context, pos *domain.Position) error {
	if f.failUpdate {
		return ports.ErrUpdateFailed
	}
	return f.memPositionRepo.UpdatePosition(ctx, pos)
}

type memResultRepo struct {
	results []*domain.TradeResult
}

func (m *memResultRepo) AppendResult(ctx context.Context, r *domain.TradeResult) (int64, error) {
	cp := *r
	cp.ID = int64(len(m.results) + 1)
	m.results = append(m.results, &cp)
	return cp.ID, nil
}

func (m *memResultRepo) RecentResults(ctx context.Context, limit int) ([]*domain.TradeResult, error) {
	return m.results, nil
}

func (m *memResultRepo) ResultsBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.TradeResult, error) {
	return m.results, nil
}

func testBudget() *domain.RiskBudget {
	return &domain.RiskBudget{
		RiskPerTrade:     0.01,
		Leverage:         5,
		MaxOpenPositions: 3,
		MaxDailyDrawdown: 0.05,
	}
}

func newTestController(t *testing.T, budget *domain.RiskBudget) (*Controller, *ledger.Ledger) {
	l, err := ledger.New(ledger.Config{
		Logger:             &mockLogger{},
		PositionRepository: &memPositionRepo{positions: make(map[int64]*domain.Position)},
		ResultRepository:   &memResultRepo{},
	})
	require.NoError(t, err)
	c, err := New(Config{Logger: &mockLogger{}, Ledger: l, Budget: budget})
	require.NoError(t, err)
	return c, l
}

func acceptedRequest(dir domain.Direction) AdmissionRequest {
	stop := 1950.0
	if dir == domain.Short {
		stop = 2050.0
	}
	return AdmissionRequest{
		Signal: domain.Signal{
			Symbol:    "ETHUSDT",
			Direction: dir,
			Timestamp: time.Now().UTC(),
		},
		Filter:     signalfilter.Decision{Accepted: true, Score: 0.8},
		Size:       2.0, // risk = 2.0 * 50 = 100 = equity * riskPerTrade
		EntryPrice: 2000,
		StopLoss:   stop,
		TakeProfit: 2150,
		Equity:     10_000,
	}
}

func TestAdmitGrantsTokenAndReservesPending(t *testing.T) {
	c, l := newTestController(t, testBudget())

	adm, err := c.Admit(context.Background(), acceptedRequest(domain.Long))
	require.NoError(t, err)
	require.NotNil(t, adm)
	assert.NotEmpty(t, adm.Token)
	assert.NotZero(t, adm.PositionID)

	pos := l.Get(adm.PositionID)
	require.NotNil(t, pos)
	assert.Equal(t, domain.StatusPending, pos.Status)
	assert.Equal(t, 0.01, pos.RiskPct)
}

func TestAdmitRejectsFilterRejectedSignal(t *testing.T) {
	c, _ := newTestController(t, testBudget())

	req := acceptedRequest(domain.Long)
	req.Filter = signalfilter.Decision{Accepted: false, Reason: "composite score below threshold"}
	_, err := c.Admit(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrValidation)

	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ReasonFilterRejected, rej.Reason)
}

func TestAdmitRejectsAtPositionLimit(t *testing.T) {
	budget := testBudget()
	budget.MaxOpenPositions = 2
	budget.MaxDailyDrawdown = 0.5 // keep the drawdown check out of the way
	c, _ := newTestController(t, budget)
	ctx := context.Background()

	_, err := c.Admit(ctx, acceptedRequest(domain.Long))
	require.NoError(t, err)
	_, err = c.Admit(ctx, acceptedRequest(domain.Long))
	require.NoError(t, err)

	_, err = c.Admit(ctx, acceptedRequest(domain.Long))
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrRiskLimitExceeded)

	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ReasonPositionCount, rej.Reason)
}

func TestAdmitNeverExceedsDailyDrawdown(t *testing.T) {
	budget := testBudget()
	budget.MaxDailyDrawdown = 0.025 // 250 on 10k equity
	budget.MaxOpenPositions = 10
	c, l := newTestController(t, budget)
	ctx := context.Background()
	now := time.Now().UTC()

	// Realize a 200 loss today; reserved risk of one more 100-risk trade
	// projects to 300 > 250.
	adm, err := c.Admit(ctx, acceptedRequest(domain.Long))
	require.NoError(t, err)
	require.NoError(t, c.Confirm(ctx, adm.Token, 2000, 1950, 2150, now))
	_, err = l.Close(ctx, adm.PositionID, 1900, domain.CloseReasonStopLoss, now)
	require.NoError(t, err)

	_, err = c.Admit(ctx, acceptedRequest(domain.Long))
	require.Error(t, err)
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ReasonDailyDrawdown, rej.Reason)
}

func TestAdmitRejectsOversizedTrade(t *testing.T) {
	c, _ := newTestController(t, testBudget())

	req := acceptedRequest(domain.Long)
	req.Size = 4.0 // risk 200 > cap 100
	_, err := c.Admit(context.Background(), req)
	require.Error(t, err)

	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ReasonPerTradeCap, rej.Reason)
}

func TestAdmitEnforcesSymbolAllocationCap(t *testing.T) {
	budget := testBudget()
	budget.SymbolCaps = map[string]float64{"ETHUSDT": 0.05}
	c, _ := newTestController(t, budget)

	// Notional 2*2000 = 4000 > 10_000 * 5 * 0.05 = 2500.
	_, err := c.Admit(context.Background(), acceptedRequest(domain.Long))
	require.Error(t, err)

	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ReasonSymbolCap, rej.Reason)
}

func TestReleaseRollsBackReservation(t *testing.T) {
	c, l := newTestController(t, testBudget())
	ctx := context.Background()

	adm, err := c.Admit(ctx, acceptedRequest(domain.Long))
	require.NoError(t, err)

	require.NoError(t, c.Release(ctx, adm.Token))
	assert.Nil(t, l.Get(adm.PositionID))

	// The token is consumed; a second release must fail.
	err = c.Release(ctx, adm.Token)
	assert.ErrorIs(t, err, ports.ErrReservationNotFound)
}

func TestConfirmOpensPosition(t *testing.T) {
	c, l := newTestController(t, testBudget())
	ctx := context.Background()
	now := time.Now().UTC()

	adm, err := c.Admit(ctx, acceptedRequest(domain.Long))
	require.NoError(t, err)
	require.NoError(t, c.Confirm(ctx, adm.Token, 2001, 1951, 2151, now))

	pos := l.Get(adm.PositionID)
	require.NotNil(t, pos)
	assert.Equal(t, domain.StatusOpen, pos.Status)
	assert.Equal(t, 2001.0, pos.EntryPrice)

	assert.ErrorIs(t, c.Confirm(ctx, adm.Token, 2001, 1951, 2151, now), ports.ErrReservationNotFound)
}

func TestConfirmFailureKeepsReservationClaimable(t *testing.T) {
	repo := &flakyPositionRepo{memPositionRepo: memPositionRepo{positions: make(map[int64]*domain.Position)}}
	l, err := ledger.New(ledger.Config{
		Logger:             &mockLogger{},
		PositionRepository: repo,
		ResultRepository:   &memResultRepo{},
	})
	require.NoError(t, err)
	c, err := New(Config{Logger: &mockLogger{}, Ledger: l, Budget: testBudget()})
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Now().UTC()

	adm, err := c.Admit(ctx, acceptedRequest(domain.Long))
	require.NoError(t, err)

	repo.failUpdate = true
	err = c.Confirm(ctx, adm.Token, 2001, 1951, 2151, now)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrUpdateFailed)

	// The token survives the failed persistence attempt, so the caller can
	// retry the confirmation once the store recovers.
	repo.failUpdate = false
	require.NoError(t, c.Confirm(ctx, adm.Token, 2001, 1951, 2151, now))

	pos := l.Get(adm.PositionID)
	require.NotNil(t, pos)
	assert.Equal(t, domain.StatusOpen, pos.Status)
}

func TestOpposingPendingIsCancelled(t *testing.T) {
	budget := testBudget()
	budget.MaxDailyDrawdown = 0.5
	c, l := newTestController(t, budget)
	ctx := context.Background()

	long, err := c.Admit(ctx, acceptedRequest(domain.Long))
	require.NoError(t, err)

	short, err := c.Admit(ctx, acceptedRequest(domain.Short))
	require.NoError(t, err)
	assert.Equal(t, []int64{long.PositionID}, short.CancelledPending)
	assert.Nil(t, l.Get(long.PositionID))

	// The cancelled reservation's token is gone too.
	assert.ErrorIs(t, c.Release(ctx, long.Token), ports.ErrReservationNotFound)
}

func TestOpposingOpenPositionIsNotCancelled(t *testing.T) {
	budget := testBudget()
	budget.MaxDailyDrawdown = 0.5
	c, l := newTestController(t, budget)
	ctx := context.Background()
	now := time.Now().UTC()

	long, err := c.Admit(ctx, acceptedRequest(domain.Long))
	require.NoError(t, err)
	require.NoError(t, c.Confirm(ctx, long.Token, 2000, 1950, 2150, now))

	// Only pending reservations get cancelled; open positions stay.
	short, err := c.Admit(ctx, acceptedRequest(domain.Short))
	require.NoError(t, err)
	assert.Empty(t, short.CancelledPending)
	assert.NotNil(t, l.Get(long.PositionID))
}

func TestSetRiskPerTradeAffectsSubsequentAdmissions(t *testing.T) {
	c, _ := newTestController(t, testBudget())
	ctx := context.Background()

	require.NoError(t, c.SetRiskPerTrade(ctx, 0.005))
	assert.Equal(t, 0.005, c.Budget().RiskPerTrade)

	// The old 100-risk size now exceeds the halved cap.
	_, err := c.Admit(ctx, acceptedRequest(domain.Long))
	require.Error(t, err)
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, ReasonPerTradeCap, rej.Reason)

	assert.Error(t, c.SetRiskPerTrade(ctx, 0))
	assert.Error(t, c.SetRiskPerTrade(ctx, 1.5))
}
