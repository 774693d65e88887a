package models

import (
	"fmt"
	"time"
)

// OptionContract identifies a single NIFTY weekly option.
type OptionContract struct {
	Underlying string
	Strike     float64
	Direction  TradeDirection
	Expiry     time.Time
	LotSize    int
}

// Symbol renders the NFO trading symbol, e.g. NIFTY25SEP24500CE.
func (o OptionContract) Symbol() string {
	return fmt.Sprintf("%s%s%d%s",
		o.Underlying,
		expiryCode(o.Expiry),
		int(o.Strike),
		o.Direction)
}

// expiryCode renders the YYMMM part of an expiry-week symbol, e.g. 25SEP.
func expiryCode(t time.Time) string {
	months := [...]string{"JAN", "FEB", "MAR", "APR", "MAY", "JUN",
		"JUL", "AUG", "SEP", "OCT", "NOV", "DEC"}
	return fmt.Sprintf("%02d%s", t.Year()%100, months[t.Month()-1])
}
