package ports

import (
	"context"

	"adaptiveRiskBot/internal/domain"
)

// PositionRepository defines the interface for persisting trading positions.
// The ledger writes through it so open risk survives a restart.
type PositionRepository interface {
	// CreatePosition saves a new position and returns its assigned ID.
	CreatePosition(ctx context.Context, pos *domain.Position) (int64, error)
	// UpdatePosition modifies an existing position.
	UpdatePosition(ctx context.Context, pos *domain.Position) error
	// DeletePosition removes a position (used to roll back a cancelled pending entry).
	DeletePosition(ctx context.Context, id int64) error
	// FindActive retrieves all pending and open positions.
	FindActive(ctx context.Context) ([]*domain.Position, error)
	// FindPositionByID retrieves a position by its unique ID.
	// Returns nil, nil if not found.
	FindPositionByID(ctx context.Context, id int64) (*domain.Position, error)
}

// TradeResultRepository defines the interface for the append-only trade
// outcome log consumed by the Monte Carlo analyzer and performance stats.
type TradeResultRepository interface {
	// AppendResult saves a new trade result and returns its assigned ID.
	AppendResult(ctx context.Context, result *domain.TradeResult) (int64, error)
	// RecentResults retrieves the most recent trade results, up to a limit.
	// Pass limit <= 0 for the full history.
	RecentResults(ctx context.Context, limit int) ([]*domain.TradeResult, error)
	// ResultsBySymbol retrieves the most recent results for one symbol.
	ResultsBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.TradeResult, error)
}

// RiskBudgetRepository persists the account risk budget so a recalibrated
// ceiling survives a restart.
type RiskBudgetRepository interface {
	// LoadBudget retrieves the stored budget. Returns nil, nil when none is stored.
	LoadBudget(ctx context.Context) (*domain.RiskBudget, error)
	// SaveBudget stores the budget, replacing any previous value.
	SaveBudget(ctx context.Context, budget *domain.RiskBudget) error
}
