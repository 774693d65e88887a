// Package backtest replays the inside-bar breakout strategy over
// historical candles. Detection reuses the live strategy code and
// exits run through the same position rules the monitor applies, so a
// replay exercises the exact decision path of a live session.
package backtest

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"nifty-options-trader/internal/config"
	"nifty-options-trader/internal/models"
	"nifty-options-trader/internal/monitor"
	"nifty-options-trader/internal/strategy"
)

// maxLookahead caps how many fifteen-minute candles after an inside
// bar are scanned for a breakout confirmation.
const maxLookahead = 20

// ReasonTimeExit closes positions still open when the data runs out.
const ReasonTimeExit = "TIME"

// Trade is one simulated round trip.
type Trade struct {
	Symbol     string
	Direction  models.TradeDirection
	Strike     float64
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	Lots       int
	Quantity   int
	PnL        float64
	Reason     string // final exit reason
}

// Result aggregates a full replay.
type Result struct {
	Trades         []Trade
	InitialCapital float64
	FinalCapital   float64
	TotalPnL       float64
	Wins           int
	Losses         int
	WinRate        float64 // percent of closed trades with positive P&L
	AvgWin         float64
	AvgLoss        float64
	MaxDrawdownPct float64
	ReturnPct      float64
	Equity         []float64
}

// Engine replays the strategy with the configured rules.
type Engine struct {
	cfg    *config.Config
	rules  monitor.Rules
	logger zerolog.Logger
}

// New creates a backtest engine.
func New(cfg *config.Config, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		rules:  monitor.RulesFromConfig(cfg),
		logger: logger.With().Str("component", "backtest").Logger(),
	}
}

// Run replays every inside-bar setup in the hourly series against the
// fifteen-minute series. At most one trade is taken per inside bar.
// The option premium is approximated by the contract's intrinsic
// value, so deep out-of-the-money entries are skipped rather than
// sized on a near-zero price.
func (e *Engine) Run(hourly, fifteen []models.Candle, initialCapital float64) *Result {
	result := &Result{
		InitialCapital: initialCapital,
		FinalCapital:   initialCapital,
		Equity:         []float64{initialCapital},
	}

	for _, idx := range strategy.DetectInsideBars(hourly) {
		parent := hourly[idx-1]
		insideTime := hourly[idx].Timestamp
		sig := models.Signal{
			ParentIndex: idx - 1,
			InsideIndex: idx,
			RangeHigh:   parent.High,
			RangeLow:    parent.Low,
			DetectedAt:  insideTime,
		}
		e.logger.Debug().
			Time("inside_bar", insideTime).
			Float64("range_width", sig.RangeWidth()).
			Msg("Inside bar")

		future := candlesAfter(fifteen, insideTime)
		for i := 0; i < len(future) && i < maxLookahead; i++ {
			direction := strategy.ConfirmBreakout(future[:i+1], sig.RangeHigh, sig.RangeLow)
			if direction == "" {
				continue
			}
			if trade, ok := e.simulate(direction, future[i], future[i+1:]); ok {
				result.Trades = append(result.Trades, trade)
				result.FinalCapital += trade.PnL
				result.Equity = append(result.Equity, result.FinalCapital)
			}
			// One attempt per inside bar.
			break
		}
	}

	summarize(result)
	return result
}

// simulate enters on the confirmation candle's close and drives the
// exit rules over the remaining candles. Positions still open at the
// end of the series are closed at the last close.
func (e *Engine) simulate(direction models.TradeDirection, entry models.Candle, rest []models.Candle) (Trade, bool) {
	contract, err := strategy.PickOption(entry.Close, direction,
		e.cfg.Strategy.ATMOffset, e.cfg.Strategy.LotSize, "NIFTY",
		entry.Timestamp, e.cfg.Strategy.ExpiryCutoverHour)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Option selection failed, skipping signal")
		return Trade{}, false
	}

	premium := premiumAt(direction, contract.Strike, entry.Close)
	if premium <= 0 {
		e.logger.Debug().Float64("strike", contract.Strike).Msg("No intrinsic value at entry, skipping signal")
		return Trade{}, false
	}

	lots := strategy.ComputeLots(e.cfg.Strategy.AccountRisk, premium, contract.LotSize)
	if lots < 1 {
		e.logger.Debug().Float64("premium", premium).Msg("Account risk below one lot, skipping signal")
		return Trade{}, false
	}
	qty := lots * contract.LotSize

	state := monitor.NewState(&models.TradeRecord{
		Symbol:     contract.Symbol(),
		Direction:  direction,
		Expiry:     contract.Expiry,
		Quantity:   qty,
		EntryPrice: premium,
		StopLoss:   strategy.InitialStop(premium),
	})

	trade := Trade{
		Symbol:     contract.Symbol(),
		Direction:  direction,
		Strike:     contract.Strike,
		EntryTime:  entry.Timestamp,
		EntryPrice: premium,
		Lots:       lots,
		Quantity:   qty,
	}

	lastPremium := premium
	lastTime := entry.Timestamp
	for _, c := range rest {
		p := premiumAt(direction, contract.Strike, c.Close)
		action := e.rules.Evaluate(state, p, c.Timestamp)
		state.Apply(action, p)
		lastPremium, lastTime = p, c.Timestamp
		if action.Qty > 0 {
			trade.Reason = action.Reason
			trade.ExitPrice = p
			trade.ExitTime = c.Timestamp
		}
		if state.Closed() {
			break
		}
	}

	if !state.Closed() {
		state.Apply(monitor.Action{Reason: ReasonTimeExit, Qty: state.RemainingQty}, lastPremium)
		trade.Reason = ReasonTimeExit
		trade.ExitPrice = lastPremium
		trade.ExitTime = lastTime
	}

	trade.PnL = state.RealizedPnL
	return trade, true
}

// candlesAfter returns the suffix of candles strictly after t.
func candlesAfter(candles []models.Candle, t time.Time) []models.Candle {
	for i, c := range candles {
		if c.Timestamp.After(t) {
			return candles[i:]
		}
	}
	return nil
}

// premiumAt approximates the premium as the contract's intrinsic
// value at the given spot. Out-of-the-money contracts price at zero.
func premiumAt(direction models.TradeDirection, strike, spot float64) float64 {
	if direction == models.DirectionCall {
		return math.Max(spot-strike, 0)
	}
	return math.Max(strike-spot, 0)
}

// summarize fills the aggregate statistics from the trade list.
func summarize(r *Result) {
	var winSum, lossSum float64
	for _, t := range r.Trades {
		r.TotalPnL += t.PnL
		switch {
		case t.PnL > 0:
			r.Wins++
			winSum += t.PnL
		case t.PnL < 0:
			r.Losses++
			lossSum += t.PnL
		}
	}

	if n := len(r.Trades); n > 0 {
		r.WinRate = float64(r.Wins) / float64(n) * 100
	}
	if r.Wins > 0 {
		r.AvgWin = winSum / float64(r.Wins)
	}
	if r.Losses > 0 {
		r.AvgLoss = lossSum / float64(r.Losses)
	}
	if r.InitialCapital > 0 {
		r.ReturnPct = (r.FinalCapital - r.InitialCapital) / r.InitialCapital * 100
	}
	r.MaxDrawdownPct = maxDrawdown(r.Equity)
}

// maxDrawdown returns the deepest percent drop from a running peak of
// the equity curve.
func maxDrawdown(equity []float64) float64 {
	var worst float64
	peak := math.Inf(-1)
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak * 100; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}
