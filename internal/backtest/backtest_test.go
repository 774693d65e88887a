package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"nifty-options-trader/internal/config"
	"nifty-options-trader/internal/models"
	"nifty-options-trader/pkg/utils"
)

func testConfig() *config.Config {
	return &config.Config{
		Strategy: config.StrategyConfig{
			AccountRisk:       10000,
			LotSize:           75,
			SLPoints:          30,
			RRRatio:           2,
			ExpiryCutoverHour: 15,
		},
		Position: config.PositionConfig{
			TickInterval:   10 * time.Second,
			TrailPoints:    10,
			Book1Points:    40,
			Book2Points:    54,
			Book1Ratio:     0.5,
			ExpiryExitTime: "15:15",
			DecayFraction:  0.05,
		},
	}
}

func ist(hour, minute int) time.Time {
	return time.Date(2025, 9, 1, hour, minute, 0, 0, utils.IndiaLocation)
}

func candle(ts time.Time, high, low, close float64, vol int64) models.Candle {
	return models.Candle{
		Timestamp: ts,
		Open:      close,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    vol,
	}
}

// insideBarHourly produces an 11:00 parent spanning 24360..24640 with
// the 12:00 candle strictly inside it.
func insideBarHourly() []models.Candle {
	return []models.Candle{
		candle(ist(10, 0), 24620, 24380, 24500, 10),
		candle(ist(11, 0), 24640, 24360, 24500, 10),
		candle(ist(12, 0), 24600, 24420, 24520, 10),
	}
}

// confirmedFifteen closes the fifth quarter above the 24640 range high
// on heavy volume, then follows the given closes.
func confirmedFifteen(afterBreakout ...float64) []models.Candle {
	out := []models.Candle{
		candle(ist(13, 0), 24510, 24490, 24500, 10),
		candle(ist(13, 15), 24530, 24500, 24520, 10),
		candle(ist(13, 30), 24520, 24500, 24510, 10),
		candle(ist(13, 45), 24540, 24510, 24530, 10),
		candle(ist(14, 0), 24680, 24530, 24670, 100),
	}
	ts := ist(14, 15)
	for _, c := range afterBreakout {
		out = append(out, candle(ts, c+5, c-5, c, 10))
		ts = ts.Add(15 * time.Minute)
	}
	return out
}

func TestRunBooksBothTargets(t *testing.T) {
	e := New(testConfig(), zerolog.Nop())

	// Entry at spot 24670: strike 24650, premium 20, 19 lots of 75.
	// 24712 clears book1 at premium 60; 24740 clears book2 at 74.
	result := e.Run(insideBarHourly(), confirmedFifteen(24690, 24712, 24740), 100000)

	if len(result.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(result.Trades))
	}
	trade := result.Trades[0]
	if trade.Direction != models.DirectionCall || trade.Strike != 24650 {
		t.Errorf("contract = %s %v, want CE 24650", trade.Direction, trade.Strike)
	}
	if trade.Symbol != "NIFTY25SEP24650CE" {
		t.Errorf("symbol = %s", trade.Symbol)
	}
	if trade.EntryPrice != 20 || trade.Lots != 19 || trade.Quantity != 1425 {
		t.Errorf("entry %v lots %d qty %d, want 20/19/1425", trade.EntryPrice, trade.Lots, trade.Quantity)
	}
	if trade.Reason != "BOOK2" || trade.ExitPrice != 90 {
		t.Errorf("exit %s at %v, want BOOK2 at 90", trade.Reason, trade.ExitPrice)
	}
	// (62-20)*713 at book1 plus (90-20)*712 at book2.
	if trade.PnL != 79786 {
		t.Errorf("pnl = %v, want 79786", trade.PnL)
	}

	if result.Wins != 1 || result.Losses != 0 || result.WinRate != 100 {
		t.Errorf("wins %d losses %d rate %v", result.Wins, result.Losses, result.WinRate)
	}
	if result.TotalPnL != 79786 || result.FinalCapital != 179786 {
		t.Errorf("total %v final %v", result.TotalPnL, result.FinalCapital)
	}
	if result.MaxDrawdownPct != 0 {
		t.Errorf("drawdown = %v, want 0 for a single winner", result.MaxDrawdownPct)
	}
}

func TestRunStopsOutLoser(t *testing.T) {
	e := New(testConfig(), zerolog.Nop())

	// Spot falling to 24655 drops the premium to 5, under the 13 stop.
	result := e.Run(insideBarHourly(), confirmedFifteen(24655), 100000)

	if len(result.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(result.Trades))
	}
	trade := result.Trades[0]
	if trade.Reason != "SL" || trade.ExitPrice != 5 {
		t.Errorf("exit %s at %v, want SL at 5", trade.Reason, trade.ExitPrice)
	}
	if trade.PnL != -21375 {
		t.Errorf("pnl = %v, want -21375", trade.PnL)
	}

	if result.Losses != 1 || result.WinRate != 0 {
		t.Errorf("losses %d rate %v", result.Losses, result.WinRate)
	}
	if result.FinalCapital != 78625 {
		t.Errorf("final capital = %v", result.FinalCapital)
	}
	if math.Abs(result.MaxDrawdownPct-21.375) > 1e-9 {
		t.Errorf("drawdown = %v, want 21.375", result.MaxDrawdownPct)
	}
}

func TestRunClosesOpenPositionAtSeriesEnd(t *testing.T) {
	e := New(testConfig(), zerolog.Nop())

	// One candle after entry, premium 30: no rule fires, data ends.
	result := e.Run(insideBarHourly(), confirmedFifteen(24680), 100000)

	if len(result.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(result.Trades))
	}
	trade := result.Trades[0]
	if trade.Reason != ReasonTimeExit || trade.ExitPrice != 30 {
		t.Errorf("exit %s at %v, want %s at 30", trade.Reason, trade.ExitPrice, ReasonTimeExit)
	}
	if trade.PnL != 14250 {
		t.Errorf("pnl = %v, want (30-20)*1425", trade.PnL)
	}
}

func TestRunNoSignals(t *testing.T) {
	e := New(testConfig(), zerolog.Nop())

	// Expanding ranges: no candle is inside its predecessor.
	hourly := []models.Candle{
		candle(ist(10, 0), 24520, 24480, 24500, 10),
		candle(ist(11, 0), 24560, 24460, 24500, 10),
		candle(ist(12, 0), 24600, 24440, 24500, 10),
	}

	result := e.Run(hourly, confirmedFifteen(), 100000)
	if len(result.Trades) != 0 {
		t.Fatalf("got %d trades, want 0", len(result.Trades))
	}
	if result.FinalCapital != 100000 || result.TotalPnL != 0 {
		t.Errorf("final %v total %v, want untouched capital", result.FinalCapital, result.TotalPnL)
	}
}

func TestRunSkipsEntryWithoutIntrinsicValue(t *testing.T) {
	e := New(testConfig(), zerolog.Nop())

	// Breakout closing at 24690 rounds to strike 24700, leaving the
	// call with no intrinsic value.
	fifteen := []models.Candle{
		candle(ist(13, 0), 24510, 24490, 24500, 10),
		candle(ist(13, 15), 24530, 24500, 24520, 10),
		candle(ist(13, 30), 24520, 24500, 24510, 10),
		candle(ist(13, 45), 24540, 24510, 24530, 10),
		candle(ist(14, 0), 24700, 24530, 24690, 100),
	}

	result := e.Run(insideBarHourly(), fifteen, 100000)
	if len(result.Trades) != 0 {
		t.Fatalf("got %d trades, want 0", len(result.Trades))
	}
}
