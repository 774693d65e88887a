package utils

import (
	"time"

	"nifty-options-trader/internal/models"
)

// IndiaLocation is the timezone for Indian markets.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback to UTC+5:30
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// GetMarketStatus returns the current market status.
func GetMarketStatus() models.MarketStatus {
	now := time.Now().In(IndiaLocation)
	
	// Check if weekend
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return models.MarketClosed
	}

	hour := now.Hour()
	minute := now.Minute()
	timeMinutes := hour*60 + minute

	// Pre-open: 9:00 - 9:15
	if timeMinutes >= 540 && timeMinutes < 555 {
		return models.MarketPreOpen
	}

	// Market open: 9:15 - 15:30
	if timeMinutes >= 555 && timeMinutes < 930 {
		// MIS square-off warning: 15:00 - 15:15
		if timeMinutes >= 900 && timeMinutes < 915 {
			return models.MarketMISSquareOffWarn
		}
		return models.MarketOpen
	}

	return models.MarketClosed
}

// IsMarketOpen returns true if the market is currently open.
func IsMarketOpen() bool {
	status := GetMarketStatus()
	return status == models.MarketOpen || status == models.MarketMISSquareOffWarn
}

// GetNextMarketOpen returns the next market opening time.
func GetNextMarketOpen() time.Time {
	now := time.Now().In(IndiaLocation)
	
	// Start with today at 9:15
	next := time.Date(now.Year(), now.Month(), now.Day(), 9, 15, 0, 0, IndiaLocation)
	
	// If already past today's open, move to tomorrow
	if now.After(next) {
		next = next.AddDate(0, 0, 1)
	}
	
	// Skip weekends
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	
	return next
}

// NextWeeklyExpiry returns the upcoming Thursday expiry date in IST.
// On a Thursday at or past cutoverHour (IST) it rolls a week forward.
// An out-of-range cutoverHour falls back to 15.
func NextWeeklyExpiry(now time.Time, cutoverHour int) time.Time {
	if cutoverHour < 1 || cutoverHour > 23 {
		cutoverHour = 15
	}
	now = now.In(IndiaLocation)
	daysAhead := (int(time.Thursday) - int(now.Weekday()) + 7) % 7
	if daysAhead == 0 && now.Hour() >= cutoverHour {
		daysAhead = 7
	}
	d := now.AddDate(0, 0, daysAhead)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, IndiaLocation)
}

// SameISTDay reports whether two instants fall on the same IST calendar day.
func SameISTDay(a, b time.Time) bool {
	a, b = a.In(IndiaLocation), b.In(IndiaLocation)
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
