package strategy

import (
	"nifty-options-trader/internal/models"
)

// confirmWindow is how many trailing fifteen-minute candles are both
// averaged for the volume threshold and scanned for a breakout close.
const confirmWindow = 5

// ConfirmBreakout scans the trailing fifteen-minute candles for a
// volume-confirmed close outside the signal range. The volume
// threshold is the average volume of the scanned window. Candles are
// visited oldest first and the first qualifying close wins: above the
// range maps to a call, below it to a put. Returns "" when the series
// is too short or nothing qualifies.
func ConfirmBreakout(candles []models.Candle, rangeHigh, rangeLow float64) models.TradeDirection {
	if len(candles) < confirmWindow {
		return ""
	}

	window := candles[len(candles)-confirmWindow:]

	var total int64
	for _, c := range window {
		total += c.Volume
	}
	avgVolume := float64(total) / float64(confirmWindow)

	for _, c := range window {
		if float64(c.Volume) <= avgVolume {
			continue
		}
		if c.Close > rangeHigh {
			return models.DirectionCall
		}
		if c.Close < rangeLow {
			return models.DirectionPut
		}
	}
	return ""
}
