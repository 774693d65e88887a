package marketdata

import (
	"testing"
	"time"

	"nifty-options-trader/internal/models"
	"nifty-options-trader/pkg/utils"
)

func ist(hour, minute int) time.Time {
	return time.Date(2025, 8, 25, hour, minute, 0, 0, utils.IndiaLocation)
}

func minuteCandle(ts time.Time, price float64, vol int64) models.Candle {
	return models.Candle{
		Timestamp: ts,
		Open:      price,
		High:      price + 1,
		Low:       price - 1,
		Close:     price + 0.5,
		Volume:    vol,
	}
}

func TestAggregateEmpty(t *testing.T) {
	if got := Aggregate(nil, 15*time.Minute, ist(12, 0)); len(got) != 0 {
		t.Errorf("empty input should yield empty output, got %d", len(got))
	}
}

func TestAggregateFifteenMinute(t *testing.T) {
	var raw []models.Candle
	// 10:00 .. 10:29, one candle per minute
	for i := 0; i < 30; i++ {
		raw = append(raw, minuteCandle(ist(10, 0).Add(time.Duration(i)*time.Minute), 100+float64(i), 10))
	}

	now := ist(10, 30)
	got := Aggregate(raw, 15*time.Minute, now)
	if len(got) != 2 {
		t.Fatalf("want 2 complete buckets, got %d", len(got))
	}

	first := got[0]
	if !first.Timestamp.Equal(ist(10, 0)) {
		t.Errorf("first bucket start = %v, want 10:00", first.Timestamp)
	}
	if first.Open != 100 {
		t.Errorf("open = %v, want first candle's open 100", first.Open)
	}
	if first.Close != 114.5 {
		t.Errorf("close = %v, want last candle's close 114.5", first.Close)
	}
	if first.High != 115 { // 114 + 1
		t.Errorf("high = %v, want 115", first.High)
	}
	if first.Low != 99 {
		t.Errorf("low = %v, want 99", first.Low)
	}
	if first.Volume != 150 {
		t.Errorf("volume = %v, want 150", first.Volume)
	}
}

func TestAggregateDropsIncompleteBucket(t *testing.T) {
	var raw []models.Candle
	for i := 0; i < 20; i++ {
		raw = append(raw, minuteCandle(ist(10, 0).Add(time.Duration(i)*time.Minute), 100, 10))
	}

	// At 10:20 the 10:15 bucket has data but is not complete.
	got := Aggregate(raw, 15*time.Minute, ist(10, 20))
	if len(got) != 1 {
		t.Fatalf("want 1 complete bucket, got %d", len(got))
	}

	// At 10:30 it is.
	got = Aggregate(raw, 15*time.Minute, ist(10, 30))
	if len(got) != 2 {
		t.Fatalf("want 2 complete buckets, got %d", len(got))
	}
}

func TestAggregateHourlyISTAlignment(t *testing.T) {
	var raw []models.Candle
	// 9:15 .. 10:59
	for i := 0; i < 105; i++ {
		raw = append(raw, minuteCandle(ist(9, 15).Add(time.Duration(i)*time.Minute), 100, 1))
	}

	got := Aggregate(raw, time.Hour, ist(11, 0))
	if len(got) != 2 {
		t.Fatalf("want 2 complete hourly buckets, got %d", len(got))
	}
	if !got[0].Timestamp.Equal(ist(9, 0)) {
		t.Errorf("first hourly bucket = %v, want 09:00 IST", got[0].Timestamp)
	}
	if !got[1].Timestamp.Equal(ist(10, 0)) {
		t.Errorf("second hourly bucket = %v, want 10:00 IST", got[1].Timestamp)
	}
	if got[1].Volume != 60 {
		t.Errorf("10:00 bucket volume = %d, want 60", got[1].Volume)
	}
}

func TestAggregateGapBetweenBuckets(t *testing.T) {
	raw := []models.Candle{
		minuteCandle(ist(10, 0), 100, 5),
		minuteCandle(ist(10, 5), 101, 5),
		// nothing in 10:15..10:29
		minuteCandle(ist(10, 30), 105, 5),
	}

	got := Aggregate(raw, 15*time.Minute, ist(10, 45))
	if len(got) != 2 {
		t.Fatalf("want 2 buckets, got %d", len(got))
	}
	if !got[1].Timestamp.Equal(ist(10, 30)) {
		t.Errorf("second bucket = %v, want 10:30", got[1].Timestamp)
	}
}

func TestTail(t *testing.T) {
	series := []models.Candle{
		minuteCandle(ist(10, 0), 1, 1),
		minuteCandle(ist(10, 1), 2, 1),
		minuteCandle(ist(10, 2), 3, 1),
	}

	if got := Tail(series, 2); len(got) != 2 || got[0].Open != 2 {
		t.Errorf("Tail(2) wrong: %+v", got)
	}
	if got := Tail(series, 5); len(got) != 3 {
		t.Errorf("Tail(5) should return whole series, got %d", len(got))
	}
	if got := Tail(series, 0); got != nil {
		t.Errorf("Tail(0) should be nil")
	}
}
