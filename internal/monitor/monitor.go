package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"nifty-options-trader/internal/broker"
	apperrors "nifty-options-trader/internal/errors"
	"nifty-options-trader/internal/logging"
	"nifty-options-trader/internal/models"
	"nifty-options-trader/internal/store"
)

// Quoter serves premium quotes. Monitors take quotes through the
// market data service rather than the broker directly, so every
// concurrent monitor shares the service's rate limiter.
type Quoter interface {
	Quote(ctx context.Context, symbol string) (*models.Quote, error)
}

// Monitor watches open positions and executes exits through the broker.
// One Run call manages one position; the runner spawns a goroutine per
// open trade and joins them on shutdown.
type Monitor struct {
	rules   Rules
	quotes  Quoter
	broker  broker.Broker
	trades  store.TradeStore
	product models.ProductType
	logger  zerolog.Logger
	now     func() time.Time
}

// New creates a position monitor.
func New(rules Rules, quotes Quoter, b broker.Broker, trades store.TradeStore, product models.ProductType, logger zerolog.Logger) *Monitor {
	return &Monitor{
		rules:   rules,
		quotes:  quotes,
		broker:  b,
		trades:  trades,
		product: product,
		logger:  logger.With().Str("component", "monitor").Logger(),
		now:     time.Now,
	}
}

// Run ticks the state machine for one open trade until the position is
// flat or the context is cancelled. It blocks; callers run it in its own
// goroutine.
func (m *Monitor) Run(ctx context.Context, trade *models.TradeRecord) {
	state := NewState(trade)
	logger := logging.WithOrderID(logging.WithSymbol(m.logger, trade.Symbol), trade.OrderID)

	interval := m.rules.TickInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info().
		Float64("entry", state.Entry).
		Float64("stop_loss", state.StopLoss).
		Int("quantity", state.RemainingQty).
		Msg("Monitoring position")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Monitor stopped with position still open")
			return
		case <-ticker.C:
			m.tick(ctx, trade, state, logger)
			if state.Closed() {
				return
			}
		}
	}
}

// tick fetches the premium and acts on the rule evaluation. A failed
// quote fetch skips the tick without mutating state.
func (m *Monitor) tick(ctx context.Context, trade *models.TradeRecord, state *State, logger zerolog.Logger) {
	quote, err := m.quotes.Quote(ctx, string(models.NFO)+":"+trade.Symbol)
	if err != nil {
		logger.Warn().Err(err).Msg("Quote fetch failed, skipping tick")
		return
	}

	prevStop := state.StopLoss
	action := m.rules.Evaluate(state, quote.LTP, m.now())
	if action.Qty == 0 {
		if state.StopLoss > prevStop {
			logger.Info().
				Float64("stop_loss", state.StopLoss).
				Float64("anchor", state.TrailAnchor).
				Msg("Trailing stop raised")
		}
		return
	}

	if err := m.exit(ctx, trade, state, action, quote.LTP, logger); err != nil {
		logger.Error().Err(err).Str("reason", action.Reason).Msg("Exit order failed, will retry next tick")
	}
}

func (m *Monitor) exit(ctx context.Context, trade *models.TradeRecord, state *State, action Action, premium float64, logger zerolog.Logger) error {
	result, err := m.broker.PlaceOrder(ctx, &models.OrderRequest{
		Symbol:   trade.Symbol,
		Exchange: models.NFO,
		Side:     models.OrderSideSell,
		Type:     models.OrderTypeMarket,
		Product:  m.product,
		Quantity: action.Qty,
		Validity: "DAY",
		Tag:      action.Reason,
	})
	if err != nil {
		return err
	}
	if !result.Status {
		return apperrors.NewOrderError(result.OrderID, trade.Symbol, "exit", result.Message, nil)
	}

	state.Apply(action, premium)
	logging.LogOrder(logger, result.OrderID, trade.Symbol, string(models.OrderSideSell), "COMPLETE")
	logging.LogExit(logger, trade.Symbol, action.Reason, action.Qty, premium, (premium-state.Entry)*float64(action.Qty))

	if state.Closed() {
		exitPrice := premium
		if err := m.trades.UpdateTradeExit(ctx, trade.OrderID, exitPrice, state.RealizedPnL, action.Reason, models.TradeClosed); err != nil {
			logger.Error().Err(err).Msg("Failed to record trade exit")
		}
		logger.Info().
			Str("exit_order_id", result.OrderID).
			Float64("pnl", state.RealizedPnL).
			Msg("Position closed")
	}
	return nil
}
