package strategy

import (
	"fmt"

	"github.com/rs/zerolog"

	"nifty-options-trader/internal/config"
)

// GateInputs carries the market context evaluated by the entry gates.
// Zero-valued fields mean the input could not be fetched; each gate
// treats a missing input per the strict flag.
type GateInputs struct {
	Spot        float64
	PrevClose   float64 // previous session close of the underlying
	IV          float64 // option implied volatility, percent; 0 = unknown
	SpreadPct   float64 // option bid-ask spread as percent of mid
	SpreadKnown bool
	ATRPct      float64 // hourly ATR as percent of spot
	ATRPctKnown bool
}

// Eligibility applies the configured entry gates to a confirmed
// signal. All enabled gates must pass.
type Eligibility struct {
	cfg    config.FilterConfig
	logger zerolog.Logger
}

// NewEligibility creates an eligibility checker.
func NewEligibility(cfg config.FilterConfig, logger zerolog.Logger) *Eligibility {
	return &Eligibility{
		cfg:    cfg,
		logger: logger.With().Str("component", "eligibility").Logger(),
	}
}

// Check runs every enabled gate and returns whether the entry may
// proceed, with the first rejection reason when it may not. A gate
// whose input is unavailable passes by default and rejects only under
// strict mode; the skip is logged either way.
func (e *Eligibility) Check(in GateInputs) (bool, string) {
	checks := []struct {
		name string
		fn   func(GateInputs) (pass bool, known bool, reason string)
	}{
		{"gap", e.gapGate},
		{"iv", e.ivGate},
		{"spread", e.spreadGate},
		{"atr", e.atrGate},
	}

	for _, check := range checks {
		pass, known, reason := check.fn(in)
		if !known {
			if e.cfg.Strict {
				return false, fmt.Sprintf("%s gate: input unavailable", check.name)
			}
			e.logger.Warn().Str("gate", check.name).Msg("Gate input unavailable, passing")
			continue
		}
		if !pass {
			return false, reason
		}
	}
	return true, ""
}

func (e *Eligibility) gapGate(in GateInputs) (bool, bool, string) {
	if !e.cfg.GapEnabled {
		return true, true, ""
	}
	if in.Spot <= 0 || in.PrevClose <= 0 {
		return false, false, ""
	}
	gap := abs(in.Spot-in.PrevClose) / in.PrevClose * 100
	if gap > e.cfg.MaxGapPct {
		return false, true, fmt.Sprintf("gap %.2f%% exceeds %.2f%%", gap, e.cfg.MaxGapPct)
	}
	return true, true, ""
}

func (e *Eligibility) ivGate(in GateInputs) (bool, bool, string) {
	if !e.cfg.IVEnabled {
		return true, true, ""
	}
	if in.IV <= 0 {
		return false, false, ""
	}
	if in.IV < e.cfg.MinIV || in.IV > e.cfg.MaxIV {
		return false, true, fmt.Sprintf("IV %.2f outside [%.2f, %.2f]", in.IV, e.cfg.MinIV, e.cfg.MaxIV)
	}
	return true, true, ""
}

func (e *Eligibility) spreadGate(in GateInputs) (bool, bool, string) {
	if !e.cfg.SpreadEnabled {
		return true, true, ""
	}
	if !in.SpreadKnown {
		return false, false, ""
	}
	if in.SpreadPct > e.cfg.MaxSpreadPct {
		return false, true, fmt.Sprintf("spread %.2f%% exceeds %.2f%%", in.SpreadPct, e.cfg.MaxSpreadPct)
	}
	return true, true, ""
}

func (e *Eligibility) atrGate(in GateInputs) (bool, bool, string) {
	if !e.cfg.ATREnabled {
		return true, true, ""
	}
	if !in.ATRPctKnown {
		return false, false, ""
	}
	if in.ATRPct < e.cfg.MinATRPct || in.ATRPct > e.cfg.MaxATRPct {
		return false, true, fmt.Sprintf("ATR %.2f%% outside [%.2f%%, %.2f%%]", in.ATRPct, e.cfg.MinATRPct, e.cfg.MaxATRPct)
	}
	return true, true, ""
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
