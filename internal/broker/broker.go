// Package broker provides broker integration interfaces and implementations.
package broker

import (
	"context"
	"time"

	"nifty-options-trader/internal/models"
)

// Broker defines the interface for broker operations. The live Kite
// backend and the paper simulator both implement it.
type Broker interface {
	// Market Data
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
	GetHistoricalData(ctx context.Context, symbol, interval string, from, to time.Time) ([]models.Candle, error)
	GetInstrumentToken(ctx context.Context, symbol string, exchange models.Exchange) (uint32, error)

	// Orders
	PlaceOrder(ctx context.Context, req *models.OrderRequest) (*models.OrderResult, error)
	ModifyOrder(ctx context.Context, orderID string, req *models.OrderRequest) error
	CancelOrder(ctx context.Context, orderID string) error
	GetOrders(ctx context.Context) ([]models.Order, error)
	GetOrderStatus(ctx context.Context, orderID string) (*models.Order, error)

	// Positions
	GetPositions(ctx context.Context) ([]models.Position, error)
}
