// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"io"

	"nifty-options-trader/internal/models"
)

// TradeStore defines the interface for trade log persistence.
type TradeStore interface {
	// LogTrade inserts a new trade record. The order ID must be unique;
	// inserting a duplicate fails.
	LogTrade(ctx context.Context, trade *models.TradeRecord) error

	// UpdateTradeExit records the exit of an open trade by order ID.
	UpdateTradeExit(ctx context.Context, orderID string, exitPrice, pnl float64, reason string, status models.TradeStatus) error

	// UpdateTradeStatus moves a trade to a new lifecycle state.
	UpdateTradeStatus(ctx context.Context, orderID string, status models.TradeStatus) error

	// GetTradeByOrderID returns the trade with the given order ID.
	GetTradeByOrderID(ctx context.Context, orderID string) (*models.TradeRecord, error)

	// GetTrades returns trades matching the filter, newest first.
	GetTrades(ctx context.Context, filter models.TradeFilter) ([]models.TradeRecord, error)

	// ExportCSV writes all trades matching the filter as CSV.
	ExportCSV(ctx context.Context, w io.Writer, filter models.TradeFilter) error

	// Close releases the underlying database.
	Close() error
}
