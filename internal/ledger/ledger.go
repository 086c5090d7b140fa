package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"adaptiveRiskBot/internal/domain"
	"adaptiveRiskBot/internal/ports"
)

// Ledger is the single authoritative store of pending/open/closed positions
// and realized P&L. All position mutation flows through it; callers get
// copies, never pointers into its state. Writes go through the repository so
// open risk survives a restart.
type Ledger struct {
	log        ports.Logger
	posRepo    ports.PositionRepository
	resultRepo ports.TradeResultRepository

	mu        sync.Mutex
	positions map[int64]*domain.Position // pending + open
	dailyPNL  float64
}

// Config holds the ledger's dependencies.
type Config struct {
	Logger             ports.Logger
	PositionRepository ports.PositionRepository
	ResultRepository   ports.TradeResultRepository
}

// New creates a ledger. Call Restore before use to reload state after a
// restart.
func New(cfg Config) (*Ledger, error) {
	if cfg.Logger == nil || cfg.PositionRepository == nil || cfg.ResultRepository == nil {
		return nil, fmt.Errorf("missing required dependencies for ledger")
	}
	return &Ledger{
		log:        cfg.Logger,
		posRepo:    cfg.PositionRepository,
		resultRepo: cfg.ResultRepository,
		positions:  make(map[int64]*domain.Position),
	}, nil
}

// Restore reloads pending and open positions from the repository and
// recomputes today's realized P&L from the result log.
func (l *Ledger) Restore(ctx context.Context, now time.Time) error {
	active, err := l.posRepo.FindActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to reload active positions: %w", err)
	}
	results, err := l.resultRepo.RecentResults(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to reload trade results: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.positions = make(map[int64]*domain.Position, len(active))
	for _, p := range active {
		cp := *p
		l.positions[p.ID] = &cp
	}
	l.dailyPNL = 0
	y, m, d := now.UTC().Date()
	for _, r := range results {
		ry, rm, rd := r.ClosedAt.UTC().Date()
		if ry == y && rm == m && rd == d {
			l.dailyPNL += r.PNL
		}
	}
	l.log.Info(ctx, "Ledger state restored", map[string]interface{}{
		"activePositions": len(l.positions),
		"dailyPNL":        l.dailyPNL,
	})
	return nil
}

// InsertPending persists a new pending position and registers it as active.
// Every inserted position must already carry a stop-loss.
func (l *Ledger) InsertPending(ctx context.Context, pos *domain.Position) (int64, error) {
	if pos.StopLoss == 0 {
		return 0, fmt.Errorf("position for %s has no stop-loss: %w", pos.Symbol, ports.ErrValidation)
	}
	if pos.Size <= 0 {
		return 0, fmt.Errorf("position size must be positive, got %f: %w", pos.Size, ports.ErrValidation)
	}
	pos.Status = domain.StatusPending
	pos.Trailing = domain.TrailingInactive

	id, err := l.posRepo.CreatePosition(ctx, pos)
	if err != nil {
		return 0, fmt.Errorf("failed to persist pending position: %w", err)
	}
	pos.ID = id

	l.mu.Lock()
	cp := *pos
	l.positions[id] = &cp
	l.mu.Unlock()

	l.log.Debug(ctx, "Pending position inserted", map[string]interface{}{"positionID": id, "symbol": pos.Symbol})
	return id, nil
}

// RemovePending rolls back a pending position whose order submission failed
// or was cancelled, releasing its risk reservation.
func (l *Ledger) RemovePending(ctx context.Context, id int64) error {
	l.mu.Lock()
	pos, ok := l.positions[id]
	if !ok || pos.Status != domain.StatusPending {
		l.mu.Unlock()
		return fmt.Errorf("position %d is not pending: %w", id, ports.ErrReservationNotFound)
	}
	delete(l.positions, id)
	l.mu.Unlock()

	if err := l.posRepo.DeletePosition(ctx, id); err != nil {
		return fmt.Errorf("failed to delete pending position %d: %w", id, err)
	}
	l.log.Info(ctx, "Pending position rolled back", map[string]interface{}{"positionID": id, "symbol": pos.Symbol})
	return nil
}

// MarkOpen promotes a pending position to open at the actual fill price.
// Stops may differ from the provisional values once the fill price is known.
func (l *Ledger) MarkOpen(ctx context.Context, id int64, fillPrice, stopLoss, takeProfit float64, at time.Time) error {
	l.mu.Lock()
	pos, ok := l.positions[id]
	if !ok || pos.Status != domain.StatusPending {
		l.mu.Unlock()
		return fmt.Errorf("position %d is not pending: %w", id, ports.ErrReservationNotFound)
	}
	cp := *pos
	cp.Status = domain.StatusOpen
	cp.EntryPrice = fillPrice
	cp.StopLoss = stopLoss
	cp.TakeProfit = takeProfit
	cp.EntryTime = at
	l.mu.Unlock()

	// Persist before committing to memory so a failed write leaves the
	// reservation pending and retryable.
	if err := l.posRepo.UpdatePosition(ctx, &cp); err != nil {
		return fmt.Errorf("failed to persist open position %d: %w", id, err)
	}
	l.mu.Lock()
	if cur, ok := l.positions[id]; ok {
		*cur = cp
	}
	l.mu.Unlock()
	l.log.Info(ctx, "Position opened", map[string]interface{}{
		"positionID": id,
		"symbol":     cp.Symbol,
		"entryPrice": fillPrice,
		"stopLoss":   stopLoss,
		"takeProfit": takeProfit,
	})
	return nil
}

// UpdateTrailing stores a new trailing-stop state and trigger price for an
// open position.
func (l *Ledger) UpdateTrailing(ctx context.Context, id int64, state domain.TrailingState, trigger float64) error {
	l.mu.Lock()
	pos, ok := l.positions[id]
	if !ok || pos.Status != domain.StatusOpen {
		l.mu.Unlock()
		return fmt.Errorf("position %d is not open: %w", id, ports.ErrNotFound)
	}
	pos.Trailing = state
	pos.TrailingTrigger = trigger
	cp := *pos
	l.mu.Unlock()

	if err := l.posRepo.UpdatePosition(ctx, &cp); err != nil {
		return fmt.Errorf("failed to persist trailing state for position %d: %w", id, err)
	}
	return nil
}

// Close finalizes an open position at the given exit price, appends the
// trade result to the append-only log, and returns the result. Closing an
// already-closed (or unknown) position is a no-op returning nil, nil, so
// duplicate trigger evaluations are tolerated.
func (l *Ledger) Close(ctx context.Context, id int64, exitPrice float64, reason domain.CloseReason, at time.Time) (*domain.TradeResult, error) {
	l.mu.Lock()
	pos, ok := l.positions[id]
	if !ok {
		l.mu.Unlock()
		l.log.Debug(ctx, "Close requested for inactive position, ignoring", map[string]interface{}{"positionID": id})
		return nil, nil
	}
	if pos.Status != domain.StatusOpen {
		l.mu.Unlock()
		return nil, fmt.Errorf("position %d is pending, cancel it instead of closing: %w", id, ports.ErrValidation)
	}

	pnl := (exitPrice - pos.EntryPrice) * pos.Size
	if pos.Direction == domain.Short {
		pnl = -pnl
	}
	pos.Status = domain.StatusClosed
	pos.ExitPrice = exitPrice
	pos.ExitTime = at
	pos.PNL = pnl
	pos.PNLPct = pos.ProfitPct(exitPrice)
	pos.CloseReason = reason
	if pos.Trailing == domain.TrailingActive && reason == domain.CloseReasonTrailingStop {
		pos.Trailing = domain.TrailingTriggered
	}
	cp := *pos
	delete(l.positions, id)
	l.dailyPNL += pnl
	l.mu.Unlock()

	if err := l.posRepo.UpdatePosition(ctx, &cp); err != nil {
		return nil, fmt.Errorf("failed to persist closed position %d: %w", id, err)
	}

	result := &domain.TradeResult{
		PositionID:  cp.ID,
		Symbol:      cp.Symbol,
		Direction:   cp.Direction,
		PNL:         cp.PNL,
		PNLPct:      cp.PNLPct,
		CloseReason: reason,
		Duration:    at.Sub(cp.EntryTime),
		ClosedAt:    at,
	}
	if _, err := l.resultRepo.AppendResult(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to append trade result for position %d: %w", id, err)
	}

	l.log.Info(ctx, "Position closed", map[string]interface{}{
		"positionID": id,
		"symbol":     cp.Symbol,
		"exitPrice":  exitPrice,
		"pnl":        pnl,
		"reason":     string(reason),
	})
	return result, nil
}

// Active returns copies of all pending and open positions.
func (l *Ledger) Active() []*domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// ActiveBySymbol returns copies of the pending and open positions for one symbol.
func (l *Ledger) ActiveBySymbol(symbol string) []*domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*domain.Position
	for _, p := range l.positions {
		if p.Symbol == symbol {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out
}

// Get returns a copy of one active position, or nil when it is not active.
func (l *Ledger) Get(id int64) *domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.positions[id]; ok {
		cp := *p
		return &cp
	}
	return nil
}

// AccountState derives the aggregated account snapshot for the given equity.
func (l *Ledger) AccountState(equity float64) domain.AccountState {
	l.mu.Lock()
	defer l.mu.Unlock()
	state := domain.AccountState{
		Equity:   equity,
		DailyPNL: l.dailyPNL,
	}
	for _, p := range l.positions {
		state.OpenPositions++
		state.ReservedRisk += p.RiskAmount()
	}
	return state
}

// ResetDaily zeroes the running daily P&L window. The engine schedules this
// at midnight UTC.
func (l *Ledger) ResetDaily(ctx context.Context) {
	l.mu.Lock()
	l.dailyPNL = 0
	l.mu.Unlock()
	l.log.Info(ctx, "Daily P&L window reset")
}
