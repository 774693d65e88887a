// Package runner drives the signal-detection loop: every polling cycle
// it rebuilds the candle frames, looks for a confirmed inside-bar
// breakout, and opens at most one position, handing it to the monitor.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"nifty-options-trader/internal/analysis/indicators"
	"nifty-options-trader/internal/broker"
	"nifty-options-trader/internal/config"
	apperrors "nifty-options-trader/internal/errors"
	"nifty-options-trader/internal/logging"
	"nifty-options-trader/internal/marketdata"
	"nifty-options-trader/internal/models"
	"nifty-options-trader/internal/monitor"
	"nifty-options-trader/internal/store"
	"nifty-options-trader/internal/strategy"
	"nifty-options-trader/pkg/utils"
)

// Runner coordinates one strategy instance for one underlying.
type Runner struct {
	cfg         *config.Config
	data        *marketdata.Service
	broker      broker.Broker
	trades      store.TradeStore
	eligibility *strategy.Eligibility
	monitor     *monitor.Monitor
	logger      zerolog.Logger

	now        func() time.Time
	marketOpen func() bool

	// Monitors run on their own context so cancelling signal detection
	// never abandons an open position. join cancels them only after the
	// grace period elapses.
	monitorCtx    context.Context
	monitorCancel context.CancelFunc
	joinGrace     time.Duration

	wg sync.WaitGroup

	mu             sync.Mutex
	positionOpen   bool
	lastSignalTime time.Time
	cycles         int
	cycleErrors    int
	signals        int
	tradesOpened   int
}

// Status is a point-in-time snapshot of the runner.
type Status struct {
	Cycles       int
	CycleErrors  int
	Signals      int
	TradesOpened int
	PositionOpen bool
}

// Option customizes a runner at construction.
type Option func(*Runner)

// WithClock overrides the runner's time source. Used by tests and
// replay tooling.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithMarketOpenCheck overrides the market-hours gate.
func WithMarketOpenCheck(open func() bool) Option {
	return func(r *Runner) { r.marketOpen = open }
}

// New creates a runner wired to the given broker and trade store.
// The monitor shares the runner's market data service so position
// ticks and signal detection drain the same rate limiter.
func New(cfg *config.Config, b broker.Broker, trades store.TradeStore, logger zerolog.Logger, opts ...Option) *Runner {
	componentLogger := logger.With().Str("component", "runner").Logger()
	data := marketdata.NewService(b, cfg.MarketData.RateLimitInterval, cfg.MarketData.HistoryDays, logger)
	monitorCtx, monitorCancel := context.WithCancel(context.Background())
	r := &Runner{
		cfg:           cfg,
		data:          data,
		broker:        b,
		trades:        trades,
		eligibility:   strategy.NewEligibility(cfg.Filters, logger),
		monitor:       monitor.New(monitor.RulesFromConfig(cfg), data, b, trades, models.ProductType(cfg.Trading.Product), logger),
		logger:        componentLogger,
		now:           time.Now,
		marketOpen:    utils.IsMarketOpen,
		monitorCtx:    monitorCtx,
		monitorCancel: monitorCancel,
		joinGrace:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes detection cycles until the context is cancelled, then
// waits for any position monitor still running.
func (r *Runner) Run(ctx context.Context) error {
	interval := r.cfg.MarketData.PollingInterval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	r.logger.Info().
		Str("mode", r.cfg.Trading.Mode).
		Str("underlying", r.cfg.Trading.Underlying).
		Dur("interval", interval).
		Msg("Runner started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Runner stopping, waiting for open monitors")
			r.join()
			return nil
		case <-ticker.C:
			r.cycle(ctx)
		}
	}
}

// join waits for running monitors to finish on their own. Monitors
// still open after the grace period are cancelled and waited out, so
// shutdown always completes.
func (r *Runner) join() {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(r.joinGrace):
		r.logger.Warn().Dur("grace", r.joinGrace).Msg("Monitors still open after grace period, cancelling")
		r.monitorCancel()
		<-done
	}
	r.monitorCancel()
}

// Status returns a snapshot of the runner's counters.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		Cycles:       r.cycles,
		CycleErrors:  r.cycleErrors,
		Signals:      r.signals,
		TradesOpened: r.tradesOpened,
		PositionOpen: r.positionOpen,
	}
}

// cycle runs one detection pass. Any failure logs and skips the cycle;
// the next tick retries from scratch.
func (r *Runner) cycle(ctx context.Context) {
	r.mu.Lock()
	r.cycles++
	busy := r.positionOpen
	r.mu.Unlock()

	if busy {
		r.logger.Debug().Msg("Position open, skipping cycle")
		return
	}
	if !r.marketOpen() {
		r.logger.Debug().Msg("Market closed, skipping cycle")
		return
	}

	now := r.now()
	underlyingKey := fmt.Sprintf("%s:%s", r.cfg.Trading.Exchange, r.cfg.Trading.Underlying)

	hourly, fifteen, err := r.data.Frames(ctx, r.cfg.Trading.Underlying, now)
	if err != nil {
		r.fail("Frame fetch failed", err)
		return
	}
	if len(hourly) < r.cfg.MarketData.HourlyWindow || len(fifteen) < r.cfg.MarketData.FifteenMinWindow {
		r.logger.Warn().
			Int("hourly", len(hourly)).
			Int("fifteen", len(fifteen)).
			Msg("Not enough candles, skipping cycle")
		return
	}

	sig := strategy.LatestSignal(hourly, now)
	if sig == nil {
		r.logger.Debug().Msg("No inside bar on hourly series")
		return
	}

	insideTime := hourly[sig.InsideIndex].Timestamp
	r.mu.Lock()
	seen := insideTime.Equal(r.lastSignalTime)
	r.mu.Unlock()
	if seen {
		r.logger.Debug().Time("inside_bar", insideTime).Msg("Signal already consumed")
		return
	}

	direction := strategy.ConfirmBreakout(fifteen, sig.RangeHigh, sig.RangeLow)
	if direction == "" {
		r.logger.Debug().
			Float64("range_high", sig.RangeHigh).
			Float64("range_low", sig.RangeLow).
			Msg("No confirmed breakout")
		return
	}

	r.mu.Lock()
	r.signals++
	r.lastSignalTime = insideTime
	r.mu.Unlock()
	logging.LogSignal(r.logger, r.cfg.Trading.Underlying, string(direction), sig.RangeHigh, sig.RangeLow)
	r.logger.Debug().
		Time("inside_bar", insideTime).
		Float64("range_width", sig.RangeWidth()).
		Msg("Breakout confirmed")

	spot, err := r.data.Quote(ctx, underlyingKey)
	if err != nil {
		r.fail("Spot quote failed", err)
		return
	}

	contract, err := strategy.PickOption(spot.LTP, direction, r.cfg.Strategy.ATMOffset, r.cfg.Strategy.LotSize, "NIFTY", now, r.cfg.Strategy.ExpiryCutoverHour)
	if err != nil {
		r.fail("Option selection failed", err)
		return
	}
	optionKey := fmt.Sprintf("%s:%s", models.NFO, contract.Symbol())

	premium, err := r.data.Quote(ctx, optionKey)
	if err != nil {
		r.fail("Premium quote failed", err)
		return
	}

	if ok, reason := r.eligibility.Check(r.gateInputs(spot, premium, hourly)); !ok {
		r.logger.Info().Str("reason", reason).Msg("Entry rejected by eligibility gates")
		return
	}

	lots := strategy.ComputeLots(r.cfg.Strategy.AccountRisk, premium.LTP, contract.LotSize)
	if lots < 1 {
		perLot := (premium.LTP - strategy.InitialStop(premium.LTP)) * float64(contract.LotSize)
		riskErr := apperrors.NewRiskError("account_risk", r.cfg.Strategy.AccountRisk, perLot,
			"account risk below one lot of premium risk")
		r.logger.Info().Err(riskErr).Float64("premium", premium.LTP).Msg("Skipping entry")
		return
	}

	r.enter(ctx, contract, premium.LTP, lots, now)
}

// fail records a cycle error. The cycle is abandoned; the next tick
// starts over.
func (r *Runner) fail(msg string, err error) {
	r.mu.Lock()
	r.cycleErrors++
	r.mu.Unlock()
	r.logger.Error().Err(err).Msg(msg)
}

func (r *Runner) gateInputs(spot, premium *models.Quote, hourly []models.Candle) strategy.GateInputs {
	in := strategy.GateInputs{
		Spot:      spot.LTP,
		PrevClose: spot.Close,
		IV:        premium.IV,
	}
	if pct, ok := premium.SpreadPercent(); ok {
		in.SpreadPct = pct
		in.SpreadKnown = true
	}
	if atrPct, err := indicators.LatestATRPercent(hourly, r.cfg.Filters.ATRPeriod, spot.LTP); err == nil {
		in.ATRPct = atrPct
		in.ATRPctKnown = true
	}
	return in
}

// enter places the entry order and either starts a monitor or records
// the failure. A failed order is logged FAILED and never retried; the
// next signal starts fresh.
func (r *Runner) enter(ctx context.Context, contract models.OptionContract, entry float64, lots int, now time.Time) {
	qty := lots * contract.LotSize
	symbol := contract.Symbol()

	result, err := r.broker.PlaceOrder(ctx, &models.OrderRequest{
		Symbol:   symbol,
		Exchange: models.NFO,
		Side:     models.OrderSideBuy,
		Type:     models.OrderTypeMarket,
		Product:  models.ProductType(r.cfg.Trading.Product),
		Quantity: qty,
		Validity: "DAY",
		Tag:      "ENTRY",
	})

	record := &models.TradeRecord{
		Symbol:     symbol,
		Direction:  contract.Direction,
		Strike:     contract.Strike,
		Expiry:     contract.Expiry,
		Quantity:   qty,
		Lots:       lots,
		EntryPrice: entry,
		IsPaper:    r.cfg.IsPaperMode(),
		EnteredAt:  now,
	}
	record.StopLoss, record.Target = entryLevels(entry, r.cfg)

	if err != nil || !result.Status {
		record.OrderID = fmt.Sprintf("FAILED_%d", now.UnixNano())
		record.Status = models.TradeFailed
		if err != nil {
			record.Reason = err.Error()
		} else {
			record.Reason = result.Message
		}
		r.logger.Error().Err(err).Str("symbol", symbol).Msg("Entry order failed")
		if logErr := r.trades.LogTrade(ctx, record); logErr != nil {
			r.logger.Error().Err(logErr).Msg("Failed to record failed trade")
		}
		return
	}

	record.OrderID = result.OrderID
	record.Status = models.TradeOpen
	logging.LogOrder(r.logger, result.OrderID, symbol, string(models.OrderSideBuy), "COMPLETE")
	if err := r.trades.LogTrade(ctx, record); err != nil {
		r.logger.Error().Err(err).Msg("Failed to record trade")
	}

	r.mu.Lock()
	r.tradesOpened++
	r.positionOpen = true
	r.mu.Unlock()

	r.logger.Info().
		Str("symbol", symbol).
		Str("order_id", result.OrderID).
		Int("lots", lots).
		Int("quantity", qty).
		Float64("entry", entry).
		Float64("stop_loss", record.StopLoss).
		Msg("Position opened")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.monitor.Run(r.monitorCtx, record)
		r.mu.Lock()
		r.positionOpen = false
		r.mu.Unlock()
	}()
}

// entryLevels derives the initial stop and logged target from entry.
// The working stop is the premium-fraction stop; the point-based stop
// and RR target from config are recorded for the trade log.
func entryLevels(entry float64, cfg *config.Config) (stop, target float64) {
	stop = strategy.InitialStop(entry)
	_, target = strategy.StopAndTarget(entry, cfg.Strategy.SLPoints, cfg.Strategy.RRRatio)
	return stop, target
}
