package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# NIFTY Options Trader Configuration

[trading]
# Trading mode: "live" or "paper"
mode = "paper"
# Index to trade
underlying = "NIFTY 50"
# Spot exchange
exchange = "NSE"
# Product type: MIS, NRML
product = "MIS"

[strategy]
# Rupees risked per trade
account_risk = 10000.0
# Contracts per lot
lot_size = 75
# Strike points away from ATM (CALL adds, PUT subtracts)
atm_offset = 0.0
# Stop-loss distance in points, recorded on the trade log
sl_points = 20.0
# Target as a multiple of sl_points
rr_ratio = 2.0
# IST hour on expiry Thursday after which selection rolls to next week
expiry_cutover_hour = 15

[market_data]
# Signal detection cadence
polling_interval = "900s"
# Minimum spacing between market data requests
rate_limit_interval = "1s"
# Minimum hourly candles required before analysis
hourly_window = 20
# Minimum 15m candles required for breakout confirmation
fifteen_min_window = 5
# Days of 1m history fetched each cycle
history_days = 5

[position]
# Premium check cadence
tick_interval = "10s"
# Trailing stop step in premium points
trail_points = 10.0
# First partial book trigger, points above entry
book1_points = 40.0
# Full exit trigger, points above entry
book2_points = 54.0
# Fraction of total quantity booked at book1
book1_ratio = 0.5
# Expiry-day forced exit time (IST)
expiry_exit_time = "15:15"
# Expiry-day exit when premium falls below this fraction of entry
decay_fraction = 0.05

[filters]
# Reject when a gate's input is unavailable (default: pass)
strict = false
gap_enabled = false
max_gap_pct = 0.5
iv_enabled = false
min_iv = 10.0
max_iv = 25.0
spread_enabled = false
max_spread_pct = 2.0
atr_enabled = false
min_atr_pct = 0.2
max_atr_pct = 1.5
atr_period = 14

[store]
# SQLite trade log path (defaults under the config directory)
path = ""
`

const credentialsTemplate = `# NIFTY Options Trader Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[zerodha]
api_key = ""
api_secret = ""
access_token = ""
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return fmt.Errorf("config file not found, created template at %s", path)
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}

	return fmt.Errorf("credentials file not found, created template at %s", path)
}
