// Package indicators provides technical indicator calculations on candle data.
package indicators

import (
	"fmt"

	"nifty-options-trader/internal/models"
)

// ATR calculates the Average True Range.
type ATR struct {
	period int
}

// NewATR creates a new ATR indicator.
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string {
	return fmt.Sprintf("ATR_%d", a.period)
}

func (a *ATR) Period() int {
	return a.period
}

func (a *ATR) Calculate(candles []models.Candle) ([]float64, error) {
	if a.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) < a.period+1 {
		return nil, ErrInsufficientData
	}

	n := len(candles)
	result := make([]float64, n)
	tr := make([]float64, n)

	// First TR is just high - low
	tr[0] = candles[0].High - candles[0].Low

	for i := 1; i < n; i++ {
		tr[i] = trueRange(candles[i], candles[i-1])
	}

	// First ATR is SMA of TR
	result[a.period-1] = mean(tr[:a.period])

	// Subsequent ATR using Wilder smoothing
	for i := a.period; i < n; i++ {
		result[i] = (result[i-1]*float64(a.period-1) + tr[i]) / float64(a.period)
	}

	return result, nil
}

// LatestATRPercent returns the most recent ATR reading expressed as a
// percent of the given spot price.
func LatestATRPercent(candles []models.Candle, period int, spot float64) (float64, error) {
	if spot <= 0 {
		return 0, ErrInvalidPeriod
	}
	atr := NewATR(period)
	values, err := atr.Calculate(candles)
	if err != nil {
		return 0, err
	}
	return values[len(values)-1] / spot * 100, nil
}
