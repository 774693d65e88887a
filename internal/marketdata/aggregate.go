// Package marketdata turns raw minute candles into the clock-aligned
// series the strategy consumes, and paces fetches against broker quotas.
package marketdata

import (
	"time"

	"nifty-options-trader/internal/models"
	"nifty-options-trader/pkg/utils"
)

// bucketStart aligns t to the start of its bucket on the IST wall
// clock. Truncating against local midnight keeps hourly buckets at
// :00 IST despite the half-hour UTC offset.
func bucketStart(t time.Time, width time.Duration) time.Time {
	t = t.In(utils.IndiaLocation)
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, utils.IndiaLocation)
	elapsed := t.Sub(midnight)
	return midnight.Add(elapsed - elapsed%width)
}

// Aggregate resamples raw candles into clock-aligned buckets of the
// given width (15m buckets start at :00/:15/:30/:45, hourly at :00).
// A bucket is emitted only once its full width has elapsed at now;
// the trailing in-progress bucket is dropped so the strategy never
// sees a half-formed candle. Input order is preserved within buckets:
// open is the first candle's open, close the last candle's close.
func Aggregate(raw []models.Candle, width time.Duration, now time.Time) []models.Candle {
	if len(raw) == 0 || width <= 0 {
		return nil
	}

	var out []models.Candle
	var cur models.Candle
	var curStart time.Time
	open := false

	flush := func() {
		if open && !now.Before(curStart.Add(width)) {
			out = append(out, cur)
		}
		open = false
	}

	for _, c := range raw {
		start := bucketStart(c.Timestamp, width)
		if !open || !start.Equal(curStart) {
			flush()
			curStart = start
			cur = models.Candle{
				Timestamp: start,
				Open:      c.Open,
				High:      c.High,
				Low:       c.Low,
				Close:     c.Close,
				Volume:    c.Volume,
			}
			open = true
			continue
		}
		if c.High > cur.High {
			cur.High = c.High
		}
		if c.Low < cur.Low {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume += c.Volume
	}
	flush()

	return out
}

// Tail returns the last n candles of the series, or the whole series
// when it is shorter than n.
func Tail(series []models.Candle, n int) []models.Candle {
	if n <= 0 {
		return nil
	}
	if len(series) <= n {
		return series
	}
	return series[len(series)-n:]
}
