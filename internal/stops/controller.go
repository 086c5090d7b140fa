package stops

import (
	"context"
	"fmt"
	"math"
	"time"

	"adaptiveRiskBot/internal/domain"
	"adaptiveRiskBot/internal/ledger"
	"adaptiveRiskBot/internal/ports"
)

// Multiplier is the per-regime ATR multiplier pair for the initial stops.
type Multiplier struct {
	StopLoss   float64
	TakeProfit float64
}

// Config holds the stop controller calibration.
type Config struct {
	ActivationPct    float64 // Profit fraction that arms the trailing stop (e.g., 0.025)
	StepPct          float64 // Profit step size for the acceleration schedule (e.g., 0.005)
	AccelerationRate float64 // Acceleration per achieved step (e.g., 0.02)
	MaxFactor        float64 // Upper bound on the acceleration factor (e.g., 0.2)

	// StalenessWindow is the maximum price age before trailing updates are
	// suspended. Static stops remain authoritative throughout.
	StalenessWindow time.Duration

	// Multipliers maps each regime to its ATR multiplier pair. Regimes
	// without an entry fall back to DefaultMultiplier.
	Multipliers       map[domain.Regime]Multiplier
	DefaultMultiplier Multiplier
}

// DefaultConfig returns the default stop calibration. The multiplier table
// values are tuning defaults, not invariants.
func DefaultConfig() Config {
	return Config{
		ActivationPct:    0.025,
		StepPct:          0.005,
		AccelerationRate: 0.02,
		MaxFactor:        0.2,
		StalenessWindow:  30 * time.Second,
		Multipliers: map[domain.Regime]Multiplier{
			domain.RegimeTrending: {StopLoss: 2.0, TakeProfit: 3.5},
			domain.RegimeRanging:  {StopLoss: 1.7, TakeProfit: 3.0},
			domain.RegimeVolatile: {StopLoss: 1.9, TakeProfit: 3.2},
		},
		DefaultMultiplier: Multiplier{StopLoss: 1.8, TakeProfit: 3.0},
	}
}

// CloseRequest asks the ledger owner to close a position after a stop fired.
type CloseRequest struct {
	PositionID int64
	Symbol     string
	Price      float64
	Reason     domain.CloseReason
}

// Controller computes initial stop-loss/take-profit levels and owns the
// trailing-stop state machine for every open position. It mutates trailing
// state through the ledger and reports crossings as close requests; actual
// closing stays with the caller so order submission and ledger updates
// happen in one place.
type Controller struct {
	cfg    Config
	log    ports.Logger
	ledger *ledger.Ledger
}

// New creates a stop controller.
func New(cfg Config, l *ledger.Ledger, log ports.Logger) (*Controller, error) {
	if l == nil || log == nil {
		return nil, fmt.Errorf("missing required dependencies for stop controller")
	}
	if cfg.ActivationPct <= 0 || cfg.StepPct <= 0 {
		return nil, fmt.Errorf("trailing activation and step must be positive")
	}
	if cfg.AccelerationRate <= 0 || cfg.MaxFactor <= 0 || cfg.MaxFactor >= 1 {
		return nil, fmt.Errorf("trailing acceleration rate must be positive and max factor in (0, 1)")
	}
	if cfg.StalenessWindow <= 0 {
		return nil, fmt.Errorf("staleness window must be positive")
	}
	return &Controller{cfg: cfg, log: log, ledger: l}, nil
}

// InitialStops computes the entry stop-loss and take-profit as
// entry -/+ ATR * multiplier(regime), mirrored for shorts.
func (c *Controller) InitialStops(direction domain.Direction, entryPrice, atr float64, regime domain.Regime) (stopLoss, takeProfit float64) {
	m, ok := c.cfg.Multipliers[regime]
	if !ok {
		m = c.cfg.DefaultMultiplier
	}
	if direction == domain.Long {
		return entryPrice - atr*m.StopLoss, entryPrice + atr*m.TakeProfit
	}
	return entryPrice + atr*m.StopLoss, entryPrice - atr*m.TakeProfit
}

// OnPriceTick advances the trailing-stop state machine for every open
// position on the tick's symbol and returns the close requests for any
// stops that fired. A tick older than the staleness window freezes trailing
// recomputation at the last known trigger; static levels (and an already
// armed trigger) keep firing.
func (c *Controller) OnPriceTick(ctx context.Context, tick domain.PriceTick, now time.Time) []CloseRequest {
	stale := now.Sub(tick.Time) > c.cfg.StalenessWindow
	if stale {
		err := fmt.Errorf("%s tick is %s old, window %s: %w",
			tick.Symbol, now.Sub(tick.Time), c.cfg.StalenessWindow, ports.ErrStaleData)
		c.log.Error(ctx, err, "Stale price tick, trailing updates suspended", map[string]interface{}{
			"symbol": tick.Symbol,
			"price":  tick.Price,
		})
	}

	var requests []CloseRequest
	for _, pos := range c.ledger.ActiveBySymbol(tick.Symbol) {
		if !pos.IsOpen() {
			continue
		}
		if req := c.evaluate(ctx, pos, tick.Price, stale); req != nil {
			requests = append(requests, *req)
		}
	}
	return requests
}

// evaluate runs one position through the state machine for one price.
func (c *Controller) evaluate(ctx context.Context, pos *domain.Position, price float64, stale bool) *CloseRequest {
	switch pos.Trailing {
	case domain.TrailingActive:
		if crossed(pos.Direction, price, pos.TrailingTrigger) {
			return &CloseRequest{PositionID: pos.ID, Symbol: pos.Symbol, Price: price, Reason: domain.CloseReasonTrailingStop}
		}
		if !stale {
			c.advanceTrailing(ctx, pos, price)
		}
		return nil

	case domain.TrailingInactive:
		// Static levels are authoritative until the trailing stop arms.
		if hitStopLoss(pos, price) {
			return &CloseRequest{PositionID: pos.ID, Symbol: pos.Symbol, Price: price, Reason: domain.CloseReasonStopLoss}
		}
		if hitTakeProfit(pos, price) {
			return &CloseRequest{PositionID: pos.ID, Symbol: pos.Symbol, Price: price, Reason: domain.CloseReasonTakeProfit}
		}
		if !stale && pos.ProfitPct(price) >= c.cfg.ActivationPct {
			c.activateTrailing(ctx, pos, price)
		}
		return nil

	default:
		// Triggered is terminal; a close request was already issued.
		return nil
	}
}

// activateTrailing arms the trailing stop and seeds the first trigger.
func (c *Controller) activateTrailing(ctx context.Context, pos *domain.Position, price float64) {
	trigger := c.trailingTrigger(pos, price)
	if err := c.ledger.UpdateTrailing(ctx, pos.ID, domain.TrailingActive, trigger); err != nil {
		c.log.Error(ctx, err, "Failed to activate trailing stop", map[string]interface{}{"positionID": pos.ID})
		return
	}
	c.log.Info(ctx, "Trailing stop activated", map[string]interface{}{
		"positionID": pos.ID,
		"symbol":     pos.Symbol,
		"trigger":    trigger,
		"profitPct":  pos.ProfitPct(price),
	})
}

// advanceTrailing recomputes the trigger and tightens it when the new value
// is more favorable. The trigger never loosens.
func (c *Controller) advanceTrailing(ctx context.Context, pos *domain.Position, price float64) {
	trigger := c.trailingTrigger(pos, price)
	improved := trigger > pos.TrailingTrigger
	if pos.Direction == domain.Short {
		improved = trigger < pos.TrailingTrigger
	}
	if !improved {
		return
	}
	if err := c.ledger.UpdateTrailing(ctx, pos.ID, domain.TrailingActive, trigger); err != nil {
		c.log.Error(ctx, err, "Failed to advance trailing stop", map[string]interface{}{"positionID": pos.ID})
		return
	}
	c.log.Debug(ctx, "Trailing stop tightened", map[string]interface{}{
		"positionID": pos.ID,
		"symbol":     pos.Symbol,
		"trigger":    trigger,
	})
}

// stepEpsilon absorbs float rounding in the achieved-step division so a
// profit sitting exactly on a step boundary counts the step.
const stepEpsilon = 1e-9

// trailingTrigger computes the trigger price for the current profit:
// stepsAchieved = floor((profit - activation)/step) + 1
// accelerationFactor = min(stepsAchieved * rate, maxFactor)
// trailingDistance = step * (1 - accelerationFactor)
// trigger = price * (1 - distance) for longs, price * (1 + distance) for shorts.
func (c *Controller) trailingTrigger(pos *domain.Position, price float64) float64 {
	profit := pos.ProfitPct(price)
	steps := math.Floor((profit-c.cfg.ActivationPct)/c.cfg.StepPct+stepEpsilon) + 1
	if steps < 1 {
		steps = 1
	}
	factor := math.Min(steps*c.cfg.AccelerationRate, c.cfg.MaxFactor)
	distance := c.cfg.StepPct * (1 - factor)
	if pos.Direction == domain.Long {
		return price * (1 - distance)
	}
	return price * (1 + distance)
}

func crossed(dir domain.Direction, price, trigger float64) bool {
	if dir == domain.Long {
		return price <= trigger
	}
	return price >= trigger
}

func hitStopLoss(pos *domain.Position, price float64) bool {
	if pos.StopLoss == 0 {
		return false
	}
	if pos.Direction == domain.Long {
		return price <= pos.StopLoss
	}
	return price >= pos.StopLoss
}

func hitTakeProfit(pos *domain.Position, price float64) bool {
	if pos.TakeProfit == 0 {
		return false
	}
	if pos.Direction == domain.Long {
		return price >= pos.TakeProfit
	}
	return price <= pos.TakeProfit
}
