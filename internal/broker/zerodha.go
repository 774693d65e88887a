package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	apperrors "nifty-options-trader/internal/errors"
	"nifty-options-trader/internal/models"
	"nifty-options-trader/pkg/utils"
)

// ZerodhaBroker implements the Broker interface for Zerodha Kite Connect.
type ZerodhaBroker struct {
	client        *kiteconnect.Client
	apiKey        string
	apiSecret     string
	accessToken   string
	tokenPath     string
	authenticated bool
	instruments   map[string]models.Instrument
	mu            sync.RWMutex
}

// ZerodhaConfig holds configuration for the Zerodha broker.
type ZerodhaConfig struct {
	APIKey      string
	APISecret   string
	AccessToken string
	TokenPath   string
}

// NewZerodhaBroker creates a new Zerodha broker instance.
// It automatically loads any saved session from disk; an explicit
// AccessToken in the config takes precedence.
func NewZerodhaBroker(cfg ZerodhaConfig) *ZerodhaBroker {
	client := kiteconnect.New(cfg.APIKey)

	tokenPath := cfg.TokenPath
	if tokenPath == "" {
		homeDir, _ := os.UserHomeDir()
		tokenPath = filepath.Join(homeDir, ".config", "nifty-options-trader", "session.json")
	}

	zb := &ZerodhaBroker{
		client:      client,
		apiKey:      cfg.APIKey,
		apiSecret:   cfg.APISecret,
		tokenPath:   tokenPath,
		instruments: make(map[string]models.Instrument),
	}

	if cfg.AccessToken != "" {
		zb.accessToken = cfg.AccessToken
		zb.authenticated = true
		client.SetAccessToken(cfg.AccessToken)
	} else {
		_ = zb.loadSession()
	}

	return zb
}

// sessionData represents persisted session data.
type sessionData struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// CompleteLogin exchanges a request token from the Kite login flow for
// an access token and persists it.
func (z *ZerodhaBroker) CompleteLogin(ctx context.Context, requestToken string) error {
	session, err := z.client.GenerateSession(requestToken, z.apiSecret)
	if err != nil {
		return apperrors.NewBrokerError("AUTH", "failed to generate session", err)
	}

	z.mu.Lock()
	z.accessToken = session.AccessToken
	z.authenticated = true
	z.client.SetAccessToken(session.AccessToken)
	z.mu.Unlock()

	if err := z.saveSession(session.AccessToken); err != nil {
		// Session is valid even if persistence fails.
		fmt.Fprintf(os.Stderr, "warning: failed to persist session: %v\n", err)
	}

	return nil
}

// LoginURL returns the Kite login URL for the interactive flow.
func (z *ZerodhaBroker) LoginURL() string {
	return z.client.GetLoginURL()
}

// IsAuthenticated returns whether the broker has a usable session.
func (z *ZerodhaBroker) IsAuthenticated() bool {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.authenticated
}

func (z *ZerodhaBroker) loadSession() error {
	data, err := os.ReadFile(z.tokenPath)
	if err != nil {
		return err
	}

	var session sessionData
	if err := json.Unmarshal(data, &session); err != nil {
		return err
	}

	// Zerodha tokens expire at 6 AM IST the next day.
	if time.Now().After(session.ExpiresAt) {
		return apperrors.ErrSessionExpired
	}

	z.mu.Lock()
	z.accessToken = session.AccessToken
	z.authenticated = true
	z.client.SetAccessToken(session.AccessToken)
	z.mu.Unlock()

	return nil
}

func (z *ZerodhaBroker) saveSession(accessToken string) error {
	dir := filepath.Dir(z.tokenPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	now := time.Now().In(utils.IndiaLocation)
	expiresAt := time.Date(now.Year(), now.Month(), now.Day()+1, 6, 0, 0, 0, utils.IndiaLocation)

	session := sessionData{
		AccessToken: accessToken,
		ExpiresAt:   expiresAt,
	}

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	return os.WriteFile(z.tokenPath, data, 0600)
}

// GetQuote fetches a real-time quote for a symbol, including best
// bid/ask from market depth when available.
func (z *ZerodhaBroker) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if !z.IsAuthenticated() {
		return nil, apperrors.ErrNotAuthenticated
	}

	quotes, err := z.client.GetQuote(symbol)
	if err != nil {
		return nil, apperrors.NewBrokerError("QUOTE", "failed to get quote", err)
	}

	q, ok := quotes[symbol]
	if !ok {
		return nil, apperrors.NewDataError("quote", symbol, "not in response", apperrors.ErrQuoteUnavailable)
	}

	quote := &models.Quote{
		Symbol:        symbol,
		LTP:           q.LastPrice,
		Open:          q.OHLC.Open,
		High:          q.OHLC.High,
		Low:           q.OHLC.Low,
		Close:         q.OHLC.Close,
		Volume:        int64(q.Volume),
		Change:        q.NetChange,
		Timestamp:     q.LastTradeTime.Time,
	}
	if q.OHLC.Close != 0 {
		quote.ChangePercent = (q.NetChange / q.OHLC.Close) * 100
	}
	if len(q.Depth.Buy) > 0 {
		quote.BidPrice = q.Depth.Buy[0].Price
	}
	if len(q.Depth.Sell) > 0 {
		quote.AskPrice = q.Depth.Sell[0].Price
	}

	return quote, nil
}

// GetHistoricalData fetches historical OHLCV data at the given Kite
// interval ("minute", "15minute", "60minute", "day").
func (z *ZerodhaBroker) GetHistoricalData(ctx context.Context, symbol, interval string, from, to time.Time) ([]models.Candle, error) {
	if !z.IsAuthenticated() {
		return nil, apperrors.ErrNotAuthenticated
	}

	exchange := models.NSE
	token, err := z.GetInstrumentToken(ctx, symbol, exchange)
	if err != nil {
		// Index options live on NFO.
		if token, err = z.GetInstrumentToken(ctx, symbol, models.NFO); err != nil {
			return nil, err
		}
	}

	data, err := z.client.GetHistoricalData(int(token), interval, from, to, false, false)
	if err != nil {
		return nil, apperrors.NewBrokerError("HISTORICAL", "failed to get historical data", err)
	}

	candles := make([]models.Candle, len(data))
	for i, d := range data {
		candles[i] = models.Candle{
			Timestamp: d.Date.Time,
			Open:      d.Open,
			High:      d.High,
			Low:       d.Low,
			Close:     d.Close,
			Volume:    int64(d.Volume),
		}
	}

	return candles, nil
}

// GetInstrumentToken resolves a symbol to its instrument token,
// fetching and caching the instrument dump on first use.
func (z *ZerodhaBroker) GetInstrumentToken(ctx context.Context, symbol string, exchange models.Exchange) (uint32, error) {
	key := fmt.Sprintf("%s:%s", exchange, symbol)

	z.mu.RLock()
	inst, ok := z.instruments[key]
	z.mu.RUnlock()

	if ok {
		return inst.Token, nil
	}

	if err := z.loadInstruments(exchange); err != nil {
		return 0, err
	}

	z.mu.RLock()
	inst, ok = z.instruments[key]
	z.mu.RUnlock()

	if !ok {
		return 0, apperrors.NewDataError("instrument", symbol, "not found", apperrors.ErrSymbolNotFound)
	}

	return inst.Token, nil
}

func (z *ZerodhaBroker) loadInstruments(exchange models.Exchange) error {
	instruments, err := z.client.GetInstruments()
	if err != nil {
		return apperrors.NewBrokerError("INSTRUMENTS", "failed to get instruments", err)
	}

	z.mu.Lock()
	defer z.mu.Unlock()
	for _, inst := range instruments {
		if inst.Exchange != string(exchange) {
			continue
		}
		key := fmt.Sprintf("%s:%s", inst.Exchange, inst.Tradingsymbol)
		z.instruments[key] = models.Instrument{
			Token:     uint32(inst.InstrumentToken),
			Symbol:    inst.Tradingsymbol,
			Name:      inst.Name,
			Exchange:  models.Exchange(inst.Exchange),
			Segment:   inst.Segment,
			LotSize:   int(inst.LotSize),
			TickSize:  inst.TickSize,
			Expiry:    inst.Expiry.Time,
			Strike:    inst.StrikePrice,
			InstrType: inst.InstrumentType,
		}
	}
	return nil
}

// PlaceOrder places a new order.
func (z *ZerodhaBroker) PlaceOrder(ctx context.Context, req *models.OrderRequest) (*models.OrderResult, error) {
	if !z.IsAuthenticated() {
		return nil, apperrors.ErrNotAuthenticated
	}

	params := kiteconnect.OrderParams{
		Exchange:        string(req.Exchange),
		Tradingsymbol:   req.Symbol,
		TransactionType: string(req.Side),
		OrderType:       string(req.Type),
		Product:         string(req.Product),
		Quantity:        req.Quantity,
		Price:           req.Price,
		TriggerPrice:    req.TriggerPrice,
		Validity:        req.Validity,
		Tag:             req.Tag,
	}

	if params.Validity == "" {
		params.Validity = "DAY"
	}

	resp, err := z.client.PlaceOrder(kiteconnect.VarietyRegular, params)
	if err != nil {
		return &models.OrderResult{
			Status:  false,
			Message: err.Error(),
		}, apperrors.NewOrderError("", req.Symbol, "place", "broker rejected order", err)
	}

	return &models.OrderResult{
		OrderID: resp.OrderID,
		Status:  true,
		Message: "order placed",
	}, nil
}

// ModifyOrder modifies an existing order.
func (z *ZerodhaBroker) ModifyOrder(ctx context.Context, orderID string, req *models.OrderRequest) error {
	if !z.IsAuthenticated() {
		return apperrors.ErrNotAuthenticated
	}

	params := kiteconnect.OrderParams{
		Exchange:        string(req.Exchange),
		Tradingsymbol:   req.Symbol,
		TransactionType: string(req.Side),
		OrderType:       string(req.Type),
		Product:         string(req.Product),
		Quantity:        req.Quantity,
		Price:           req.Price,
		TriggerPrice:    req.TriggerPrice,
		Validity:        req.Validity,
	}

	if _, err := z.client.ModifyOrder(kiteconnect.VarietyRegular, orderID, params); err != nil {
		return apperrors.NewOrderError(orderID, req.Symbol, "modify", "broker rejected modification", err)
	}

	return nil
}

// CancelOrder cancels an existing order.
func (z *ZerodhaBroker) CancelOrder(ctx context.Context, orderID string) error {
	if !z.IsAuthenticated() {
		return apperrors.ErrNotAuthenticated
	}

	if _, err := z.client.CancelOrder(kiteconnect.VarietyRegular, orderID, nil); err != nil {
		return apperrors.NewOrderError(orderID, "", "cancel", "broker rejected cancellation", err)
	}

	return nil
}

// GetOrders fetches all orders for the day.
func (z *ZerodhaBroker) GetOrders(ctx context.Context) ([]models.Order, error) {
	if !z.IsAuthenticated() {
		return nil, apperrors.ErrNotAuthenticated
	}

	orders, err := z.client.GetOrders()
	if err != nil {
		return nil, apperrors.NewBrokerError("ORDERS", "failed to get orders", err)
	}

	result := make([]models.Order, len(orders))
	for i, o := range orders {
		result[i] = convertKiteOrder(o)
	}

	return result, nil
}

// GetOrderStatus fetches the current state of one order.
func (z *ZerodhaBroker) GetOrderStatus(ctx context.Context, orderID string) (*models.Order, error) {
	orders, err := z.GetOrders(ctx)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if orders[i].ID == orderID {
			return &orders[i], nil
		}
	}
	return nil, apperrors.NewOrderError(orderID, "", "status", "order not found", nil)
}

// GetPositions fetches open positions.
func (z *ZerodhaBroker) GetPositions(ctx context.Context) ([]models.Position, error) {
	if !z.IsAuthenticated() {
		return nil, apperrors.ErrNotAuthenticated
	}

	positions, err := z.client.GetPositions()
	if err != nil {
		return nil, apperrors.NewBrokerError("POSITIONS", "failed to get positions", err)
	}

	result := make([]models.Position, len(positions.Net))
	for i, p := range positions.Net {
		result[i] = models.Position{
			Symbol:       p.Tradingsymbol,
			Exchange:     models.Exchange(p.Exchange),
			Product:      models.ProductType(p.Product),
			Quantity:     int(p.Quantity),
			AveragePrice: p.AveragePrice,
			LTP:          p.LastPrice,
			PnL:          p.PnL,
			Multiplier:   int(p.Multiplier),
		}
	}

	return result, nil
}

func convertKiteOrder(o kiteconnect.Order) models.Order {
	return models.Order{
		ID:           o.OrderID,
		Symbol:       o.TradingSymbol,
		Exchange:     models.Exchange(o.Exchange),
		Side:         models.OrderSide(o.TransactionType),
		Type:         models.OrderType(o.OrderType),
		Product:      models.ProductType(o.Product),
		Quantity:     int(o.Quantity),
		Price:        o.Price,
		TriggerPrice: o.TriggerPrice,
		Status:       o.Status,
		FilledQty:    int(o.FilledQuantity),
		AveragePrice: o.AveragePrice,
		PlacedAt:     o.OrderTimestamp.Time,
	}
}
