package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "nifty-options-trader/internal/errors"
	"nifty-options-trader/internal/models"
)

// PaperBroker implements the Broker interface for paper trading
// simulation. Market data comes from a real data broker when one is
// configured; orders fill instantly at the quoted price.
type PaperBroker struct {
	dataBroker Broker

	positions map[string]*models.Position
	orders    map[string]*models.Order

	orderCounter int

	// Last seen price per symbol. Tests seed it directly with SetPrice.
	priceCache map[string]float64

	mu sync.RWMutex
}

// NewPaperBroker creates a new paper trading broker. dataBroker may be
// nil, in which case quotes must be seeded with SetPrice.
func NewPaperBroker(dataBroker Broker) *PaperBroker {
	return &PaperBroker{
		dataBroker: dataBroker,
		positions:  make(map[string]*models.Position),
		orders:     make(map[string]*models.Order),
		priceCache: make(map[string]float64),
	}
}

// SetPrice seeds the simulated price for a symbol.
func (p *PaperBroker) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	p.priceCache[symbol] = price
	p.mu.Unlock()
}

// GetQuote fetches a quote from the data broker, falling back to the
// seeded price cache.
func (p *PaperBroker) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if p.dataBroker != nil {
		quote, err := p.dataBroker.GetQuote(ctx, symbol)
		if err == nil {
			p.mu.Lock()
			p.priceCache[symbol] = quote.LTP
			p.mu.Unlock()
		}
		return quote, err
	}

	p.mu.RLock()
	price, ok := p.priceCache[symbol]
	p.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewDataError("quote", symbol, "no price seeded", apperrors.ErrQuoteUnavailable)
	}
	return &models.Quote{
		Symbol:    symbol,
		LTP:       price,
		Timestamp: time.Now(),
	}, nil
}

// GetHistoricalData fetches historical data from the data broker.
func (p *PaperBroker) GetHistoricalData(ctx context.Context, symbol, interval string, from, to time.Time) ([]models.Candle, error) {
	if p.dataBroker == nil {
		return nil, apperrors.NewDataError("historical", symbol, "no data broker configured", apperrors.ErrDataNotFound)
	}
	return p.dataBroker.GetHistoricalData(ctx, symbol, interval, from, to)
}

// GetInstrumentToken resolves tokens through the data broker.
func (p *PaperBroker) GetInstrumentToken(ctx context.Context, symbol string, exchange models.Exchange) (uint32, error) {
	if p.dataBroker == nil {
		return 0, apperrors.ErrSymbolNotFound
	}
	return p.dataBroker.GetInstrumentToken(ctx, symbol, exchange)
}

// PlaceOrder simulates order placement with an instant fill at the
// last seen price (or the limit price for limit orders).
func (p *PaperBroker) PlaceOrder(ctx context.Context, req *models.OrderRequest) (*models.OrderResult, error) {
	if req.Quantity <= 0 {
		return nil, apperrors.NewOrderError("", req.Symbol, "place", "quantity must be positive", apperrors.ErrInvalidOrder)
	}

	price := p.lookupPrice(ctx, req.Symbol)
	execPrice := price
	if req.Type == models.OrderTypeLimit {
		execPrice = req.Price
	}
	if execPrice <= 0 {
		return nil, apperrors.NewOrderError("", req.Symbol, "place", "no price available", apperrors.ErrQuoteUnavailable)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.orderCounter++
	orderID := fmt.Sprintf("PAPER_%d_%d", time.Now().Unix(), p.orderCounter)

	order := &models.Order{
		ID:           orderID,
		Symbol:       req.Symbol,
		Exchange:     req.Exchange,
		Side:         req.Side,
		Type:         req.Type,
		Product:      req.Product,
		Quantity:     req.Quantity,
		Price:        req.Price,
		TriggerPrice: req.TriggerPrice,
		Status:       "COMPLETE",
		FilledQty:    req.Quantity,
		AveragePrice: execPrice,
		PlacedAt:     time.Now(),
	}
	p.orders[orderID] = order
	p.applyFill(req, execPrice)

	return &models.OrderResult{
		OrderID: orderID,
		Status:  true,
		Message: "paper order filled",
	}, nil
}

func (p *PaperBroker) lookupPrice(ctx context.Context, symbol string) float64 {
	p.mu.RLock()
	price := p.priceCache[symbol]
	p.mu.RUnlock()
	if price > 0 {
		return price
	}

	if p.dataBroker != nil {
		if quote, err := p.dataBroker.GetQuote(ctx, symbol); err == nil {
			p.mu.Lock()
			p.priceCache[symbol] = quote.LTP
			p.mu.Unlock()
			return quote.LTP
		}
	}
	return 0
}

// applyFill adjusts the simulated position book. Callers hold p.mu.
func (p *PaperBroker) applyFill(req *models.OrderRequest, execPrice float64) {
	pos, ok := p.positions[req.Symbol]
	if !ok {
		pos = &models.Position{
			Symbol:   req.Symbol,
			Exchange: req.Exchange,
			Product:  models.ProductType(req.Product),
		}
		p.positions[req.Symbol] = pos
	}

	qty := req.Quantity
	if req.Side == models.OrderSideSell {
		qty = -qty
	}

	newQty := pos.Quantity + qty
	if qty > 0 {
		// Weighted average entry on adds.
		total := pos.AveragePrice*float64(pos.Quantity) + execPrice*float64(qty)
		if newQty != 0 {
			pos.AveragePrice = total / float64(newQty)
		}
	}
	pos.Quantity = newQty
	pos.LTP = execPrice

	if pos.Quantity == 0 {
		delete(p.positions, req.Symbol)
	}
}

// ModifyOrder simulates order modification. Paper fills are instant,
// so there is never an open order to modify.
func (p *PaperBroker) ModifyOrder(ctx context.Context, orderID string, req *models.OrderRequest) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	order, ok := p.orders[orderID]
	if !ok {
		return apperrors.NewOrderError(orderID, "", "modify", "order not found", nil)
	}
	return apperrors.NewOrderError(orderID, order.Symbol, "modify", fmt.Sprintf("cannot modify order with status %s", order.Status), nil)
}

// CancelOrder simulates order cancellation.
func (p *PaperBroker) CancelOrder(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[orderID]
	if !ok {
		return apperrors.NewOrderError(orderID, "", "cancel", "order not found", nil)
	}
	if order.Status != "OPEN" {
		return apperrors.NewOrderError(orderID, order.Symbol, "cancel", fmt.Sprintf("cannot cancel order with status %s", order.Status), nil)
	}
	order.Status = "CANCELLED"
	return nil
}

// GetOrders returns all paper orders.
func (p *PaperBroker) GetOrders(ctx context.Context) ([]models.Order, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	orders := make([]models.Order, 0, len(p.orders))
	for _, o := range p.orders {
		orders = append(orders, *o)
	}
	return orders, nil
}

// GetOrderStatus returns one paper order.
func (p *PaperBroker) GetOrderStatus(ctx context.Context, orderID string) (*models.Order, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	order, ok := p.orders[orderID]
	if !ok {
		return nil, apperrors.NewOrderError(orderID, "", "status", "order not found", nil)
	}
	o := *order
	return &o, nil
}

// GetPositions returns simulated positions with P&L marked to the
// last seen price.
func (p *PaperBroker) GetPositions(ctx context.Context) ([]models.Position, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	positions := make([]models.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		snapshot := *pos
		if price := p.priceCache[pos.Symbol]; price > 0 {
			snapshot.LTP = price
			snapshot.PnL = (price - pos.AveragePrice) * float64(pos.Quantity)
			if pos.AveragePrice > 0 {
				snapshot.PnLPercent = ((price - pos.AveragePrice) / pos.AveragePrice) * 100
			}
		}
		positions = append(positions, snapshot)
	}
	return positions, nil
}
