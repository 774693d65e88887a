package models

import "time"

// OrderRequest is everything needed to place an order.
type OrderRequest struct {
	Symbol       string
	Exchange     Exchange
	Side         OrderSide
	Type         OrderType
	Product      ProductType
	Quantity     int
	Price        float64
	TriggerPrice float64
	Validity     string // DAY, IOC
	Tag          string
}

// OrderResult is the broker's response to a placed order.
type OrderResult struct {
	OrderID string
	Status  bool
	Message string
}

// Order represents an order as reported by the broker.
type Order struct {
	ID           string
	Symbol       string
	Exchange     Exchange
	Side         OrderSide
	Type         OrderType
	Product      ProductType
	Quantity     int
	Price        float64
	TriggerPrice float64
	Status       string
	FilledQty    int
	AveragePrice float64
	PlacedAt     time.Time
}

// Position represents an open trading position.
type Position struct {
	Symbol       string
	Exchange     Exchange
	Product      ProductType
	Quantity     int
	AveragePrice float64
	LTP          float64
	PnL          float64
	PnLPercent   float64
	Multiplier   int // F&O lot size
}
