package strategy

import (
	"math"
	"time"

	apperrors "nifty-options-trader/internal/errors"
	"nifty-options-trader/internal/models"
	"nifty-options-trader/pkg/utils"
)

// strikeStep is the NIFTY strike interval.
const strikeStep = 50

// stopFraction fixes the initial stop at 65% of the entry premium,
// a 35% premium risk per trade.
const stopFraction = 0.65

// PickOption maps a confirmed direction to a tradeable weekly
// contract. The strike starts at the nearest multiple of 50 to spot;
// a call shifts the configured offset further up, a put further down.
// On a Thursday past expiryCutover (IST hour) the expiry rolls to the
// next week.
func PickOption(spot float64, direction models.TradeDirection, atmOffset float64, lotSize int, underlying string, now time.Time, expiryCutover int) (models.OptionContract, error) {
	if spot <= 0 {
		return models.OptionContract{}, apperrors.NewSignalError("spot", spot, "must be positive")
	}
	if direction != models.DirectionCall && direction != models.DirectionPut {
		return models.OptionContract{}, apperrors.NewSignalError("direction", 0, "must be CE or PE")
	}
	if lotSize <= 0 {
		return models.OptionContract{}, apperrors.NewSignalError("lot_size", float64(lotSize), "must be positive")
	}

	atm := math.Round(spot/strikeStep) * strikeStep
	strike := atm
	if direction == models.DirectionCall {
		strike += atmOffset
	} else {
		strike -= atmOffset
	}

	return models.OptionContract{
		Underlying: underlying,
		Strike:     strike,
		Direction:  direction,
		Expiry:     utils.NextWeeklyExpiry(now, expiryCutover),
		LotSize:    lotSize,
	}, nil
}

// InitialStop returns the stop-loss premium for an entry premium.
func InitialStop(entry float64) float64 {
	return entry * stopFraction
}

// ComputeLots sizes the position so the premium risked between entry
// and the initial stop stays within accountRisk. Returns 0 when even
// one lot would risk more than the account allows.
func ComputeLots(accountRisk, entryPremium float64, lotSize int) int {
	if accountRisk <= 0 || entryPremium <= 0 || lotSize <= 0 {
		return 0
	}

	riskPerLot := (entryPremium - InitialStop(entryPremium)) * float64(lotSize)
	if riskPerLot <= 0 {
		return 0
	}

	lots := int(math.Floor(accountRisk / riskPerLot))
	if lots < 1 {
		return 0
	}
	return lots
}

// StopAndTarget derives the logged stop and target premiums from the
// configured point distance and reward multiple.
func StopAndTarget(entry, slPoints, rrRatio float64) (stop, target float64) {
	stop = entry - slPoints
	if stop < 0 {
		stop = 0
	}
	target = entry + slPoints*rrRatio
	return stop, target
}
