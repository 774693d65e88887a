// Package strategy implements inside-bar breakout detection on the
// hourly series, volume-confirmed breakouts on the fifteen-minute
// series, entry eligibility gates, and option selection and sizing.
package strategy

import (
	"time"

	"nifty-options-trader/internal/models"
)

// DetectInsideBars returns the indices of all inside bars in the
// series. A candle is an inside bar when it is strictly contained in
// the previous candle: high below the prior high and low above the
// prior low. Equal highs or lows do not qualify. Scanning starts at
// index 2 so every hit has a fully formed parent and grandparent.
func DetectInsideBars(candles []models.Candle) []int {
	if len(candles) < 2 {
		return nil
	}

	var hits []int
	for i := 2; i < len(candles); i++ {
		if candles[i].High < candles[i-1].High && candles[i].Low > candles[i-1].Low {
			hits = append(hits, i)
		}
	}
	return hits
}

// LatestSignal returns the most recent inside-bar setup, or nil when
// the series has none. The breakout range comes from the parent
// candle, not the inside bar itself.
func LatestSignal(candles []models.Candle, now time.Time) *models.Signal {
	hits := DetectInsideBars(candles)
	if len(hits) == 0 {
		return nil
	}

	i := hits[len(hits)-1]
	parent := candles[i-1]
	return &models.Signal{
		ParentIndex: i - 1,
		InsideIndex: i,
		RangeHigh:   parent.High,
		RangeLow:    parent.Low,
		DetectedAt:  now,
	}
}
