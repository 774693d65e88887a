package monitor

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"nifty-options-trader/internal/broker"
	"nifty-options-trader/internal/marketdata"
	"nifty-options-trader/internal/models"
	"nifty-options-trader/pkg/utils"
)

func testRules() Rules {
	return Rules{
		SLPoints:      30,
		TrailPoints:   10,
		Book1Points:   40,
		Book2Points:   54,
		Book1Ratio:    0.5,
		DecayFraction: 0.05,
		ExpiryHour:    15,
		ExpiryMinute:  15,
		TickInterval:  10 * time.Second,
	}
}

func openTrade(qty int) *models.TradeRecord {
	return &models.TradeRecord{
		OrderID:    "ORD001",
		Symbol:     "NIFTY25SEP24500CE",
		Direction:  models.DirectionCall,
		Strike:     24500,
		Expiry:     time.Date(2025, 9, 4, 0, 0, 0, 0, utils.IndiaLocation),
		Quantity:   qty,
		Lots:       qty / 75,
		EntryPrice: 100,
		StopLoss:   65,
		Status:     models.TradeOpen,
		EnteredAt:  time.Date(2025, 8, 28, 10, 15, 0, 0, utils.IndiaLocation),
	}
}

// Non-expiry day, well before the position's expiry.
var regularDay = time.Date(2025, 9, 1, 11, 0, 0, 0, utils.IndiaLocation)

func TestTwoStageBooking(t *testing.T) {
	rules := testRules()
	state := NewState(openTrade(10))

	// Below both targets, above stop: nothing happens.
	if action := rules.Evaluate(state, 120, regularDay); action.Qty != 0 {
		t.Fatalf("unexpected action at 120: %+v", action)
	}

	// Book1 at entry+40: half the total, rounded.
	action := rules.Evaluate(state, 140, regularDay)
	if action.Reason != ReasonBook1 || action.Qty != 5 {
		t.Fatalf("expected BOOK1 qty 5, got %+v", action)
	}
	state.Apply(action, 140)
	if state.RemainingQty != 5 || !state.Book1Done || state.Phase != PhasePartiallyBooked {
		t.Fatalf("unexpected state after book1: %+v", state)
	}

	// Book1 never fires twice.
	if action := rules.Evaluate(state, 141, regularDay); action.Reason == ReasonBook1 {
		t.Fatal("book1 fired twice")
	}

	// Book2 at entry+54: everything left.
	action = rules.Evaluate(state, 154, regularDay)
	if action.Reason != ReasonBook2 || action.Qty != 5 {
		t.Fatalf("expected BOOK2 qty 5, got %+v", action)
	}
	state.Apply(action, 154)
	if state.RemainingQty != 0 || state.Phase != PhaseClosed {
		t.Fatalf("unexpected state after book2: %+v", state)
	}
	if state.RealizedPnL != (140-100)*5+(154-100)*5 {
		t.Errorf("realized pnl = %v", state.RealizedPnL)
	}
}

func TestBook2SkipsBook1LevelWhenBothCleared(t *testing.T) {
	// A jump through both levels still books book1 first.
	rules := testRules()
	state := NewState(openTrade(10))

	action := rules.Evaluate(state, 160, regularDay)
	if action.Reason != ReasonBook1 || action.Qty != 5 {
		t.Fatalf("expected BOOK1 first, got %+v", action)
	}
	state.Apply(action, 160)

	action = rules.Evaluate(state, 160, regularDay)
	if action.Reason != ReasonBook2 || action.Qty != 5 {
		t.Fatalf("expected BOOK2 second, got %+v", action)
	}
}

func TestStopLossExit(t *testing.T) {
	rules := testRules()
	state := NewState(openTrade(10))

	action := rules.Evaluate(state, 65, regularDay)
	if action.Reason != ReasonStopLoss || action.Qty != 10 {
		t.Fatalf("expected SL full exit, got %+v", action)
	}
	state.Apply(action, 65)
	if !state.Closed() {
		t.Error("position not closed after stop-loss")
	}
}

func TestStopLossPrecedesBooking(t *testing.T) {
	// Contrived state where premium is at both the stop and book1 level.
	rules := testRules()
	state := NewState(openTrade(10))
	state.StopLoss = 140

	action := rules.Evaluate(state, 140, regularDay)
	if action.Reason != ReasonStopLoss {
		t.Fatalf("expected SL over BOOK1, got %+v", action)
	}
}

func TestTrailingStopAdvances(t *testing.T) {
	rules := testRules()
	state := NewState(openTrade(10))

	// 25 points above entry clears two whole trail steps of 10.
	if action := rules.Evaluate(state, 125, regularDay); action.Qty != 0 {
		t.Fatalf("unexpected exit: %+v", action)
	}
	if state.TrailAnchor != 120 {
		t.Errorf("anchor = %v, want 120", state.TrailAnchor)
	}
	if state.StopLoss != 90 {
		t.Errorf("stop = %v, want 90 (anchor 120 - 30)", state.StopLoss)
	}

	// Price dropping back never lowers the stop.
	rules.Evaluate(state, 121, regularDay)
	if state.StopLoss != 90 {
		t.Errorf("stop lowered to %v", state.StopLoss)
	}

	// Raised stop is now live.
	action := rules.Evaluate(state, 90, regularDay)
	if action.Reason != ReasonStopLoss {
		t.Fatalf("expected SL at trailed stop, got %+v", action)
	}
}

func TestExpiryDayCutoffExit(t *testing.T) {
	rules := testRules()
	state := NewState(openTrade(10))
	expiryAfternoon := time.Date(2025, 9, 4, 15, 15, 0, 0, utils.IndiaLocation)

	action := rules.Evaluate(state, 200, expiryAfternoon)
	if action.Reason != ReasonExpiry || action.Qty != 10 {
		t.Fatalf("expected EXPIRY full exit at cutoff, got %+v", action)
	}
}

func TestExpiryDayDecayExit(t *testing.T) {
	rules := testRules()
	state := NewState(openTrade(10))
	expiryMorning := time.Date(2025, 9, 4, 10, 0, 0, 0, utils.IndiaLocation)

	// Premium above the decay floor: normal rules apply.
	if action := rules.Evaluate(state, 70, expiryMorning); action.Reason == ReasonExpiry {
		t.Fatalf("unexpected expiry exit: %+v", action)
	}

	// Premium under 5% of entry forces out even before the cutoff.
	action := rules.Evaluate(state, 4, expiryMorning)
	if action.Reason != ReasonExpiry {
		t.Fatalf("expected EXPIRY decay exit, got %+v", action)
	}
}

func TestExpiryPrecedesStopLoss(t *testing.T) {
	rules := testRules()
	state := NewState(openTrade(10))
	expiryAfternoon := time.Date(2025, 9, 4, 15, 30, 0, 0, utils.IndiaLocation)

	// Premium below stop on expiry afternoon: expiry reason wins.
	action := rules.Evaluate(state, 50, expiryAfternoon)
	if action.Reason != ReasonExpiry {
		t.Fatalf("expected EXPIRY over SL, got %+v", action)
	}
}

func TestApplyCapsAtRemaining(t *testing.T) {
	state := NewState(openTrade(10))
	state.Apply(Action{Reason: ReasonBook1, Qty: 25}, 140)
	if state.RemainingQty != 0 {
		t.Errorf("remaining = %d, want 0", state.RemainingQty)
	}
	if !state.Closed() {
		t.Error("expected closed after over-sized exit")
	}

	// Applying again on a closed position is a no-op.
	state.Apply(Action{Reason: ReasonBook2, Qty: 5}, 154)
	if state.RemainingQty != 0 || state.RealizedPnL != (140-100)*10 {
		t.Errorf("closed state mutated: %+v", state)
	}
}

// Property: across any price path, the stop-loss never decreases and the
// remaining quantity never increases.
func TestProperty_StopMonotoneQuantityDecreasing(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	rules := testRules()

	properties.Property("stop monotone, quantity non-increasing", prop.ForAll(
		func(prices []float64) bool {
			state := NewState(openTrade(150))
			now := regularDay
			for _, p := range prices {
				prevStop := state.StopLoss
				prevQty := state.RemainingQty

				action := rules.Evaluate(state, p, now)
				state.Apply(action, p)

				if state.StopLoss < prevStop {
					return false
				}
				if state.RemainingQty > prevQty || state.RemainingQty < 0 {
					return false
				}
				if state.Closed() {
					break
				}
				now = now.Add(10 * time.Second)
			}
			return true
		},
		gen.SliceOfN(50, gen.Float64Range(1, 300)),
	))

	properties.TestingRun(t)
}

type recordingStore struct {
	mu     sync.Mutex
	exits  []string
	pnl    float64
	status models.TradeStatus
}

func (r *recordingStore) LogTrade(ctx context.Context, trade *models.TradeRecord) error { return nil }
func (r *recordingStore) UpdateTradeExit(ctx context.Context, orderID string, exitPrice, pnl float64, reason string, status models.TradeStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exits = append(r.exits, reason)
	r.pnl = pnl
	r.status = status
	return nil
}
func (r *recordingStore) UpdateTradeStatus(ctx context.Context, orderID string, status models.TradeStatus) error {
	return nil
}
func (r *recordingStore) GetTradeByOrderID(ctx context.Context, orderID string) (*models.TradeRecord, error) {
	return nil, nil
}
func (r *recordingStore) GetTrades(ctx context.Context, filter models.TradeFilter) ([]models.TradeRecord, error) {
	return nil, nil
}
func (r *recordingStore) ExportCSV(ctx context.Context, w io.Writer, filter models.TradeFilter) error {
	return nil
}
func (r *recordingStore) Close() error { return nil }

func TestMonitorRunExitsOnStopLoss(t *testing.T) {
	paper := broker.NewPaperBroker(nil)
	paper.SetPrice("NFO:NIFTY25SEP24500CE", 60) // below the 65 stop

	trades := &recordingStore{}
	rules := testRules()
	rules.TickInterval = 10 * time.Millisecond

	quotes := marketdata.NewService(paper, time.Millisecond, 1, zerolog.Nop())
	m := New(rules, quotes, paper, trades, models.ProductNRML, zerolog.Nop())
	m.now = func() time.Time { return regularDay }

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		m.Run(ctx, openTrade(10))
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("monitor did not close the position in time")
	}

	trades.mu.Lock()
	defer trades.mu.Unlock()
	if len(trades.exits) != 1 || trades.exits[0] != ReasonStopLoss {
		t.Fatalf("exits = %v, want one SL", trades.exits)
	}
	if trades.status != models.TradeClosed {
		t.Errorf("status = %s, want CLOSED", trades.status)
	}
	if trades.pnl != (60-100)*10 {
		t.Errorf("pnl = %v, want -400", trades.pnl)
	}
}

func TestMonitorRunStopsOnCancel(t *testing.T) {
	paper := broker.NewPaperBroker(nil)
	paper.SetPrice("NFO:NIFTY25SEP24500CE", 100) // holds steady, no exit

	rules := testRules()
	rules.TickInterval = 10 * time.Millisecond

	quotes := marketdata.NewService(paper, time.Millisecond, 1, zerolog.Nop())
	m := New(rules, quotes, paper, &recordingStore{}, models.ProductNRML, zerolog.Nop())
	m.now = func() time.Time { return regularDay }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, openTrade(10))
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop on context cancel")
	}
}

// pacedSource records the wall-clock time of every quote fetch.
type pacedSource struct {
	mu    sync.Mutex
	times []time.Time
}

func (p *pacedSource) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	p.mu.Lock()
	p.times = append(p.times, time.Now())
	p.mu.Unlock()
	return &models.Quote{Symbol: symbol, LTP: 100}, nil
}

func (p *pacedSource) GetHistoricalData(ctx context.Context, symbol, interval string, from, to time.Time) ([]models.Candle, error) {
	return nil, nil
}

func (p *pacedSource) fetches() []time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Time(nil), p.times...)
}

// Two monitors ticking far faster than the quote interval must still
// space their fetches by the shared limiter's interval.
func TestConcurrentMonitorsShareQuotePacing(t *testing.T) {
	const interval = 50 * time.Millisecond

	source := &pacedSource{}
	quotes := marketdata.NewService(source, interval, 1, zerolog.Nop())
	paper := broker.NewPaperBroker(nil)

	rules := testRules()
	rules.TickInterval = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		m := New(rules, quotes, paper, &recordingStore{}, models.ProductNRML, zerolog.Nop())
		m.now = func() time.Time { return regularDay }
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Run(ctx, openTrade(10))
		}()
	}
	wg.Wait()

	times := source.fetches()
	if len(times) < 2 {
		t.Fatalf("only %d fetches recorded", len(times))
	}
	// 400ms at one fetch per 50ms admits at most nine including the
	// initial token.
	if len(times) > 10 {
		t.Errorf("%d fetches in 400ms, limiter not shared", len(times))
	}
	for i := 1; i < len(times); i++ {
		if gap := times[i].Sub(times[i-1]); gap < 40*time.Millisecond {
			t.Errorf("fetches %d and %d only %v apart", i-1, i, gap)
		}
	}
}
