package models

import "time"

// TradeStatus is the lifecycle state of a trade record.
type TradeStatus string

const (
	TradePending TradeStatus = "PENDING"
	TradeOpen    TradeStatus = "OPEN"
	TradeClosed  TradeStatus = "CLOSED"
	TradeFailed  TradeStatus = "FAILED"
)

// TradeRecord is one entry in the trade log, keyed by OrderID.
type TradeRecord struct {
	ID         int64
	OrderID    string
	Symbol     string
	Direction  TradeDirection
	Strike     float64
	Expiry     time.Time
	Quantity   int
	Lots       int
	EntryPrice float64
	StopLoss   float64
	Target     float64
	ExitPrice  float64
	PnL        float64
	Status     TradeStatus
	Reason     string // exit reason: SL, BOOK1, BOOK2, EXPIRY, MANUAL
	IsPaper    bool
	EnteredAt  time.Time
	ExitedAt   *time.Time
}

// TradeFilter narrows trade log queries.
type TradeFilter struct {
	Symbol string
	Status TradeStatus
	From   time.Time
	To     time.Time
	Limit  int
}
