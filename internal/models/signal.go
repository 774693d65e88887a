package models

import "time"

// Signal is a detected inside-bar setup on the hourly series.
// RangeHigh and RangeLow come from the parent candle, the one the
// inside bar is contained in.
type Signal struct {
	ParentIndex int
	InsideIndex int
	RangeHigh   float64
	RangeLow    float64
	DetectedAt  time.Time
}

// RangeWidth returns the parent candle's high-low span.
func (s Signal) RangeWidth() float64 {
	return s.RangeHigh - s.RangeLow
}
