package risk

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"adaptiveRiskBot/internal/domain"
	"adaptiveRiskBot/internal/ledger"
	"adaptiveRiskBot/internal/ports"
	"adaptiveRiskBot/internal/signalfilter"
)

// RejectionReason categorizes why an admission was refused.
type RejectionReason string

const (
	ReasonFilterRejected RejectionReason = "filter_rejected"
	ReasonDailyDrawdown  RejectionReason = "daily_drawdown_limit"
	ReasonPositionCount  RejectionReason = "max_open_positions"
	ReasonPerTradeCap    RejectionReason = "per_trade_risk_cap"
	ReasonSymbolCap      RejectionReason = "per_symbol_allocation_cap"
)

// Rejection is the typed refusal returned by Admit. It wraps the matching
// sentinel so callers can branch with errors.Is while still reading the
// concrete reason.
type Rejection struct {
	Reason  RejectionReason
	Detail  string
	wrapped error
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("admission rejected (%s): %s", r.Reason, r.Detail)
}

func (r *Rejection) Unwrap() error { return r.wrapped }

// AdmissionRequest carries everything the gate needs to decide: the filtered
// signal, the sized position candidate, and the current equity.
type AdmissionRequest struct {
	Signal     domain.Signal
	Filter     signalfilter.Decision
	Size       float64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Equity     float64
}

// Admission is a granted risk reservation. The token authorizes exactly one
// order submission; Confirm or Release consumes it.
type Admission struct {
	Token      string
	PositionID int64
	Position   *domain.Position

	// CancelledPending lists pending position IDs that were rolled back to
	// make way for this admission (opposite direction, same symbol). The
	// caller must cancel their exchange orders.
	CancelledPending []int64
}

// Config holds the risk controller's dependencies and initial budget.
type Config struct {
	Logger ports.Logger
	Ledger *ledger.Ledger
	Budget *domain.RiskBudget
}

// Controller is the per-account admission gate. Admission checks and the
// pending-position insertion happen under one lock, so two concurrent signal
// evaluations can never both pass the drawdown or position-count check
// against a stale snapshot.
type Controller struct {
	log    ports.Logger
	ledger *ledger.Ledger

	mu           sync.Mutex
	budget       *domain.RiskBudget
	reservations map[string]int64 // approval token -> pending position ID
}

// New creates a risk controller. The budget is cloned; later recalibrations
// go through SetRiskPerTrade or ReplaceBudget.
func New(cfg Config) (*Controller, error) {
	if cfg.Logger == nil || cfg.Ledger == nil || cfg.Budget == nil {
		return nil, fmt.Errorf("missing required dependencies for risk controller")
	}
	if err := cfg.Budget.Validate(); err != nil {
		return nil, fmt.Errorf("invalid risk budget: %w", err)
	}
	return &Controller{
		log:          cfg.Logger,
		ledger:       cfg.Ledger,
		budget:       cfg.Budget.Clone(),
		reservations: make(map[string]int64),
	}, nil
}

// Budget returns a copy of the current risk budget.
func (c *Controller) Budget() domain.RiskBudget {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.budget.Clone()
}

// SetRiskPerTrade publishes a recalibrated risk-per-trade ceiling. Only
// subsequent admissions see it; open positions are never touched.
func (c *Controller) SetRiskPerTrade(ctx context.Context, riskPct float64) error {
	if riskPct <= 0 || riskPct >= 1 {
		return fmt.Errorf("risk per trade must be in (0, 1), got %f: %w", riskPct, ports.ErrValidation)
	}
	c.mu.Lock()
	previous := c.budget.RiskPerTrade
	c.budget.RiskPerTrade = riskPct
	c.mu.Unlock()

	c.log.Info(ctx, "Risk per trade recalibrated", map[string]interface{}{
		"previous": previous,
		"current":  riskPct,
	})
	return nil
}

// ReplaceBudget swaps in an explicitly reconfigured budget.
func (c *Controller) ReplaceBudget(ctx context.Context, budget *domain.RiskBudget) error {
	if err := budget.Validate(); err != nil {
		return fmt.Errorf("invalid risk budget: %w", err)
	}
	c.mu.Lock()
	c.budget = budget.Clone()
	c.mu.Unlock()
	c.log.Info(ctx, "Risk budget replaced")
	return nil
}

// Admit runs the admission checks and, on success, atomically reserves the
// risk by inserting a pending position. It returns an approval token the
// caller uses for order submission; Confirm promotes the reservation to an
// open position, Release rolls it back.
//
// An accepted signal opposite to a still-pending same-symbol order cancels
// that reservation first; the rolled-back IDs come back in the admission so
// their exchange orders can be cancelled too.
func (c *Controller) Admit(ctx context.Context, req AdmissionRequest) (*Admission, error) {
	op := "riskcontroller.Admit"

	if !req.Filter.Accepted {
		return nil, c.reject(ctx, op, req, &Rejection{
			Reason:  ReasonFilterRejected,
			Detail:  req.Filter.Reason,
			wrapped: ports.ErrValidation,
		})
	}
	if req.Size <= 0 {
		return nil, fmt.Errorf("%s: size must be positive, got %f: %w", op, req.Size, ports.ErrValidation)
	}
	if req.EntryPrice == req.StopLoss {
		return nil, fmt.Errorf("%s: %w", op, ports.ErrInvalidStopDistance)
	}
	if req.Equity <= 0 {
		return nil, fmt.Errorf("%s: equity must be positive, got %f: %w", op, req.Equity, ports.ErrValidation)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	budget := c.budget
	state := c.ledger.AccountState(req.Equity)
	riskAmount := req.Size * math.Abs(req.EntryPrice-req.StopLoss)

	if state.OpenPositions >= budget.MaxOpenPositions {
		return nil, c.reject(ctx, op, req, &Rejection{
			Reason:  ReasonPositionCount,
			Detail:  fmt.Sprintf("%d positions active, limit %d", state.OpenPositions, budget.MaxOpenPositions),
			wrapped: ports.ErrRiskLimitExceeded,
		})
	}

	// Projected daily loss if this trade and every reserved trade stop out.
	maxDailyLoss := req.Equity * budget.MaxDailyDrawdown
	projectedLoss := -state.DailyPNL + state.ReservedRisk + riskAmount
	if projectedLoss > maxDailyLoss {
		return nil, c.reject(ctx, op, req, &Rejection{
			Reason:  ReasonDailyDrawdown,
			Detail:  fmt.Sprintf("projected daily loss %.2f exceeds limit %.2f", projectedLoss, maxDailyLoss),
			wrapped: ports.ErrRiskLimitExceeded,
		})
	}

	perTradeCap := req.Equity * budget.RiskPerTrade
	if riskAmount > perTradeCap*(1+riskTolerance) {
		return nil, c.reject(ctx, op, req, &Rejection{
			Reason:  ReasonPerTradeCap,
			Detail:  fmt.Sprintf("risk amount %.2f exceeds per-trade cap %.2f", riskAmount, perTradeCap),
			wrapped: ports.ErrRiskLimitExceeded,
		})
	}

	notional := req.Size * req.EntryPrice
	notionalCap := req.Equity * float64(budget.Leverage) * budget.SymbolCap(req.Signal.Symbol)
	if notional > notionalCap {
		return nil, c.reject(ctx, op, req, &Rejection{
			Reason:  ReasonSymbolCap,
			Detail:  fmt.Sprintf("notional %.2f exceeds symbol cap %.2f for %s", notional, notionalCap, req.Signal.Symbol),
			wrapped: ports.ErrRiskLimitExceeded,
		})
	}

	cancelled, err := c.cancelOpposingPending(ctx, req.Signal.Symbol, req.Signal.Direction)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pos := &domain.Position{
		Symbol:     req.Signal.Symbol,
		Direction:  req.Signal.Direction,
		EntryPrice: req.EntryPrice,
		Size:       req.Size,
		Leverage:   budget.Leverage,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		RiskPct:    budget.RiskPerTrade,
	}
	id, err := c.ledger.InsertPending(ctx, pos)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to reserve position: %w", op, err)
	}

	token := uuid.NewString()
	c.reservations[token] = id

	c.log.Info(ctx, "Admission granted", map[string]interface{}{
		"positionID": id,
		"symbol":     req.Signal.Symbol,
		"direction":  string(req.Signal.Direction),
		"size":       req.Size,
		"riskAmount": riskAmount,
	})
	return &Admission{
		Token:            token,
		PositionID:       id,
		Position:         pos,
		CancelledPending: cancelled,
	}, nil
}

// riskTolerance absorbs float rounding between the sizer's output and the
// per-trade cap check; a size computed from the cap itself must pass.
const riskTolerance = 1e-9

// Confirm promotes the reserved position to open at the actual fill price
// and consumes the token.
func (c *Controller) Confirm(ctx context.Context, token string, fillPrice, stopLoss, takeProfit float64, at time.Time) error {
	c.mu.Lock()
	id, ok := c.reservations[token]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("unknown approval token: %w", ports.ErrReservationNotFound)
	}
	delete(c.reservations, token)
	c.mu.Unlock()

	if err := c.ledger.MarkOpen(ctx, id, fillPrice, stopLoss, takeProfit, at); err != nil {
		// Restore the token so the reservation stays claimable; otherwise the
		// pending row would hold risk budget with no way to confirm or release it.
		c.mu.Lock()
		c.reservations[token] = id
		c.mu.Unlock()
		return fmt.Errorf("failed to open reserved position %d: %w", id, err)
	}
	return nil
}

// Release rolls back a reservation whose order submission failed or was
// cancelled, returning the risk to the budget.
func (c *Controller) Release(ctx context.Context, token string) error {
	c.mu.Lock()
	id, ok := c.reservations[token]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("unknown approval token: %w", ports.ErrReservationNotFound)
	}
	delete(c.reservations, token)
	c.mu.Unlock()

	if err := c.ledger.RemovePending(ctx, id); err != nil {
		return fmt.Errorf("failed to release reservation for position %d: %w", id, err)
	}
	c.log.Info(ctx, "Risk reservation released", map[string]interface{}{"positionID": id})
	return nil
}

// cancelOpposingPending rolls back pending same-symbol reservations in the
// opposite direction. No two opposing pending orders may coexist for one
// symbol. Caller holds c.mu.
func (c *Controller) cancelOpposingPending(ctx context.Context, symbol string, dir domain.Direction) ([]int64, error) {
	var cancelled []int64
	for _, pos := range c.ledger.ActiveBySymbol(symbol) {
		if pos.Status != domain.StatusPending || pos.Direction == dir {
			continue
		}
		if err := c.ledger.RemovePending(ctx, pos.ID); err != nil {
			return nil, fmt.Errorf("failed to cancel opposing pending position %d: %w", pos.ID, err)
		}
		for token, id := range c.reservations {
			if id == pos.ID {
				delete(c.reservations, token)
				break
			}
		}
		cancelled = append(cancelled, pos.ID)
		c.log.Info(ctx, "Opposing pending position cancelled", map[string]interface{}{
			"positionID": pos.ID,
			"symbol":     symbol,
		})
	}
	return cancelled, nil
}

// reject logs and returns the typed rejection.
func (c *Controller) reject(ctx context.Context, op string, req AdmissionRequest, r *Rejection) error {
	c.log.Info(ctx, "Admission rejected", map[string]interface{}{
		"op":     op,
		"symbol": req.Signal.Symbol,
		"reason": string(r.Reason),
		"detail": r.Detail,
	})
	return r
}
