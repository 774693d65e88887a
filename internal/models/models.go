// Package models provides domain models for the trading application.
package models

import (
	"fmt"
	"time"
)

// Exchange represents a stock exchange.
type Exchange string

const (
	NSE Exchange = "NSE"
	NFO Exchange = "NFO" // F&O
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket   OrderType = "MARKET"
	OrderTypeLimit    OrderType = "LIMIT"
	OrderTypeStopLoss OrderType = "SL"
)

// ProductType represents the product type of an order.
type ProductType string

const (
	ProductMIS  ProductType = "MIS"  // Intraday
	ProductNRML ProductType = "NRML" // F&O Normal
)

// MarketStatus represents the current market status.
type MarketStatus string

const (
	MarketOpen             MarketStatus = "OPEN"
	MarketPreOpen          MarketStatus = "PRE_OPEN"
	MarketClosed           MarketStatus = "CLOSED"
	MarketMISSquareOffWarn MarketStatus = "MIS_SQUAREOFF_WARNING"
)

// TradeDirection is the option side a breakout resolves to.
type TradeDirection string

const (
	DirectionCall TradeDirection = "CE"
	DirectionPut  TradeDirection = "PE"
)

// Candle represents OHLCV data for a time period.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Validate checks basic OHLC consistency.
func (c Candle) Validate() error {
	if c.High < c.Low {
		return fmt.Errorf("candle at %s: high %.2f below low %.2f", c.Timestamp.Format(time.RFC3339), c.High, c.Low)
	}
	if c.Open > c.High || c.Open < c.Low {
		return fmt.Errorf("candle at %s: open %.2f outside [%.2f, %.2f]", c.Timestamp.Format(time.RFC3339), c.Open, c.Low, c.High)
	}
	if c.Close > c.High || c.Close < c.Low {
		return fmt.Errorf("candle at %s: close %.2f outside [%.2f, %.2f]", c.Timestamp.Format(time.RFC3339), c.Close, c.Low, c.High)
	}
	if c.Volume < 0 {
		return fmt.Errorf("candle at %s: negative volume %d", c.Timestamp.Format(time.RFC3339), c.Volume)
	}
	return nil
}

// Quote represents a market quote.
type Quote struct {
	Symbol        string
	LTP           float64
	Open          float64
	High          float64
	Low           float64
	Close         float64 // previous session close
	Volume        int64
	BidPrice      float64
	AskPrice      float64
	IV            float64 // implied volatility, percent; 0 when unknown
	Change        float64
	ChangePercent float64
	Timestamp     time.Time
}

// SpreadPercent returns the bid-ask spread as a percent of mid price.
// Returns false when bid/ask are unavailable.
func (q Quote) SpreadPercent() (float64, bool) {
	if q.BidPrice <= 0 || q.AskPrice <= 0 || q.AskPrice < q.BidPrice {
		return 0, false
	}
	mid := (q.BidPrice + q.AskPrice) / 2
	if mid == 0 {
		return 0, false
	}
	return (q.AskPrice - q.BidPrice) / mid * 100, true
}

// Instrument represents a tradeable instrument.
type Instrument struct {
	Token     uint32
	Symbol    string
	Name      string
	Exchange  Exchange
	Segment   string
	LotSize   int
	TickSize  float64
	Expiry    time.Time
	Strike    float64
	InstrType string
}
