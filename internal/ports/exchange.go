package ports

import (
	"context"
	"time"

	"adaptiveRiskBot/internal/domain"
)

// OrderRequest describes an order the engine wants submitted.
type OrderRequest struct {
	Symbol   string           // Trading symbol
	Side     domain.OrderSide // BUY or SELL
	Quantity float64          // Base-unit quantity
	Price    float64          // Limit price; 0 means market
}

// OrderResponse represents the essential details returned after placing an order.
type OrderResponse struct {
	OrderID     int64     // Exchange's order ID
	Symbol      string    // Symbol for the order
	AvgPrice    float64   // Average filled price
	ExecutedQty float64   // Quantity filled
	Status      string    // Order status (e.g., NEW, FILLED, CANCELED)
	Timestamp   time.Time // Time the order response was generated
}

// ExchangeClient defines the interface for interacting with a cryptocurrency exchange.
// This abstraction keeps the decision engine decoupled from any specific venue.
type ExchangeClient interface {
	// GetPrice retrieves the last ticker price for a given symbol.
	GetPrice(ctx context.Context, symbol string) (float64, error)

	// GetBalance retrieves the available balance for a specific asset (e.g., "USDT").
	GetBalance(ctx context.Context, asset string) (float64, error)

	// SubmitOrder places an order and returns the exchange response.
	SubmitOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error)

	// CancelOrder cancels an existing open order by its ID.
	CancelOrder(ctx context.Context, symbol string, orderID int64) (*OrderResponse, error)

	// SetLeverage sets the leverage for a specific symbol.
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// GetKlines retrieves historical klines/candlestick data for the given symbol.
	GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error)

	// StreamKlines starts a stream of kline/candlestick data. It takes handlers
	// for processing domain.Kline events and errors. Returns channels to control
	// the stream (doneCh, stopCh) or an error if connection fails.
	StreamKlines(ctx context.Context, symbol, interval string, handler func(kline *domain.Kline), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)

	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error
}
