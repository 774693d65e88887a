// Package monitor runs the per-position trade management state machine:
// stop-loss, trailing stop, two-stage profit booking and expiry-day exit.
package monitor

import (
	"math"
	"time"

	"nifty-options-trader/internal/config"
	"nifty-options-trader/internal/models"
	"nifty-options-trader/pkg/utils"
)

// Phase is the lifecycle phase of a monitored position.
type Phase string

const (
	PhaseArmed           Phase = "ARMED"
	PhaseMonitoring      Phase = "MONITORING"
	PhasePartiallyBooked Phase = "PARTIALLY_BOOKED"
	PhaseClosed          Phase = "CLOSED"
)

// Exit reasons recorded in the trade log.
const (
	ReasonExpiry   = "EXPIRY"
	ReasonStopLoss = "SL"
	ReasonBook1    = "BOOK1"
	ReasonBook2    = "BOOK2"
)

// Rules is the canonical rule set applied to every position.
type Rules struct {
	SLPoints      float64
	TrailPoints   float64
	Book1Points   float64
	Book2Points   float64
	Book1Ratio    float64
	DecayFraction float64
	ExpiryHour    int
	ExpiryMinute  int
	TickInterval  time.Duration
}

// RulesFromConfig builds the rule set from application config.
func RulesFromConfig(cfg *config.Config) Rules {
	hour, minute := cfg.ExpiryExitClock()
	return Rules{
		SLPoints:      cfg.Strategy.SLPoints,
		TrailPoints:   cfg.Position.TrailPoints,
		Book1Points:   cfg.Position.Book1Points,
		Book2Points:   cfg.Position.Book2Points,
		Book1Ratio:    cfg.Position.Book1Ratio,
		DecayFraction: cfg.Position.DecayFraction,
		ExpiryHour:    hour,
		ExpiryMinute:  minute,
		TickInterval:  cfg.Position.TickInterval,
	}
}

// State is the mutable per-position state. It is owned by exactly one
// Monitor goroutine and mutated only between ticks.
type State struct {
	Symbol       string
	Direction    models.TradeDirection
	Expiry       time.Time
	Entry        float64
	TotalQty     int
	RemainingQty int
	StopLoss     float64
	TrailAnchor  float64
	Book1Done    bool
	Book2Done    bool
	Phase        Phase
	RealizedPnL  float64
}

// NewState initializes monitoring state from an open trade record.
func NewState(trade *models.TradeRecord) *State {
	return &State{
		Symbol:       trade.Symbol,
		Direction:    trade.Direction,
		Expiry:       trade.Expiry,
		Entry:        trade.EntryPrice,
		TotalQty:     trade.Quantity,
		RemainingQty: trade.Quantity,
		StopLoss:     trade.StopLoss,
		TrailAnchor:  trade.EntryPrice,
		Phase:        PhaseArmed,
	}
}

// Closed reports whether the position is flat.
func (s *State) Closed() bool {
	return s.Phase == PhaseClosed
}

// Action is the decision of a single tick.
type Action struct {
	Reason string // empty when nothing to do
	Qty    int
}

// Evaluate decides what, if anything, must be sold at the given premium.
// Checks run in strict precedence: expiry exit, stop-loss, book1, book2.
// When no exit fires the trailing stop is advanced in place. Quantity
// reductions are not applied here; call Apply once the order is filled.
func (r Rules) Evaluate(s *State, premium float64, now time.Time) Action {
	if s.Phase == PhaseArmed {
		s.Phase = PhaseMonitoring
	}

	// Expiry-day forced exit short-circuits everything else.
	if utils.SameISTDay(now, s.Expiry) {
		ist := now.In(utils.IndiaLocation)
		cutoff := ist.Hour()*60+ist.Minute() >= r.ExpiryHour*60+r.ExpiryMinute
		decayed := premium < r.DecayFraction*s.Entry
		if cutoff || decayed {
			return Action{Reason: ReasonExpiry, Qty: s.RemainingQty}
		}
	}

	if premium <= s.StopLoss {
		return Action{Reason: ReasonStopLoss, Qty: s.RemainingQty}
	}

	if !s.Book1Done && premium >= s.Entry+r.Book1Points {
		qty := int(math.Round(float64(s.TotalQty) * r.Book1Ratio))
		if qty > s.RemainingQty {
			qty = s.RemainingQty
		}
		return Action{Reason: ReasonBook1, Qty: qty}
	}

	if !s.Book2Done && premium >= s.Entry+r.Book2Points {
		return Action{Reason: ReasonBook2, Qty: s.RemainingQty}
	}

	// Trailing stop: advance the anchor by whole trail steps cleared,
	// raise the stop only if strictly higher. Never lowered.
	if r.TrailPoints > 0 && premium >= s.TrailAnchor+r.TrailPoints {
		steps := math.Floor((premium - s.TrailAnchor) / r.TrailPoints)
		s.TrailAnchor += steps * r.TrailPoints
		if stop := s.TrailAnchor - r.SLPoints; stop > s.StopLoss {
			s.StopLoss = stop
		}
	}

	return Action{}
}

// Apply records a filled exit against the state. Quantity is capped at
// remaining; remaining reaches zero exactly once, closing the position.
func (s *State) Apply(action Action, fillPrice float64) {
	if action.Qty <= 0 || s.Phase == PhaseClosed {
		return
	}
	qty := action.Qty
	if qty > s.RemainingQty {
		qty = s.RemainingQty
	}

	s.RealizedPnL += (fillPrice - s.Entry) * float64(qty)
	s.RemainingQty -= qty

	switch action.Reason {
	case ReasonBook1:
		s.Book1Done = true
	case ReasonBook2:
		s.Book2Done = true
	}

	if s.RemainingQty == 0 {
		s.Phase = PhaseClosed
	} else if s.Book1Done {
		s.Phase = PhasePartiallyBooked
	}
}
