// Package config provides configuration management for the trading application.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Trading     TradingConfig    `mapstructure:"trading"`
	Strategy    StrategyConfig   `mapstructure:"strategy"`
	MarketData  MarketDataConfig `mapstructure:"market_data"`
	Position    PositionConfig   `mapstructure:"position"`
	Filters     FilterConfig     `mapstructure:"filters"`
	Store       StoreConfig      `mapstructure:"store"`
	Credentials Credentials      `mapstructure:"-"` // Loaded separately
}

// TradingConfig holds trading-related configuration.
type TradingConfig struct {
	Mode       string `mapstructure:"mode"`       // "live", "paper"
	Underlying string `mapstructure:"underlying"` // index symbol, e.g. "NIFTY 50"
	Exchange   string `mapstructure:"exchange"`   // spot exchange, e.g. NSE
	Product    string `mapstructure:"product"`    // MIS, NRML
}

// StrategyConfig holds inside-bar strategy parameters.
type StrategyConfig struct {
	AccountRisk float64 `mapstructure:"account_risk"` // rupees risked per trade
	LotSize     int     `mapstructure:"lot_size"`
	ATMOffset   float64 `mapstructure:"atm_offset"` // strike points away from ATM
	SLPoints    float64 `mapstructure:"sl_points"`  // logged SL distance in points
	RRRatio     float64 `mapstructure:"rr_ratio"`   // logged target multiple

	// ExpiryCutoverHour is the IST hour on an expiry Thursday after
	// which option selection rolls to the next week's contract.
	ExpiryCutoverHour int `mapstructure:"expiry_cutover_hour"`
}

// MarketDataConfig holds fetch cadence and window sizes.
type MarketDataConfig struct {
	PollingInterval   time.Duration `mapstructure:"polling_interval"`
	RateLimitInterval time.Duration `mapstructure:"rate_limit_interval"`
	HourlyWindow      int           `mapstructure:"hourly_window"`      // min 1h candles to analyze
	FifteenMinWindow  int           `mapstructure:"fifteen_min_window"` // min 15m candles to confirm
	HistoryDays       int           `mapstructure:"history_days"`       // 1m history lookback
}

// PositionConfig holds position-monitor rules.
type PositionConfig struct {
	TickInterval   time.Duration `mapstructure:"tick_interval"`
	TrailPoints    float64       `mapstructure:"trail_points"`
	Book1Points    float64       `mapstructure:"book1_points"`
	Book2Points    float64       `mapstructure:"book2_points"`
	Book1Ratio     float64       `mapstructure:"book1_ratio"`
	ExpiryExitTime string        `mapstructure:"expiry_exit_time"` // HH:MM IST
	DecayFraction  float64       `mapstructure:"decay_fraction"`   // expiry-day premium floor vs entry
}

// FilterConfig holds the entry eligibility gates. Each gate is optional;
// a disabled gate always passes.
type FilterConfig struct {
	Strict        bool    `mapstructure:"strict"` // missing inputs reject instead of pass
	GapEnabled    bool    `mapstructure:"gap_enabled"`
	MaxGapPct     float64 `mapstructure:"max_gap_pct"`
	IVEnabled     bool    `mapstructure:"iv_enabled"`
	MinIV         float64 `mapstructure:"min_iv"`
	MaxIV         float64 `mapstructure:"max_iv"`
	SpreadEnabled bool    `mapstructure:"spread_enabled"`
	MaxSpreadPct  float64 `mapstructure:"max_spread_pct"`
	ATREnabled    bool    `mapstructure:"atr_enabled"`
	MinATRPct     float64 `mapstructure:"min_atr_pct"`
	MaxATRPct     float64 `mapstructure:"max_atr_pct"`
	ATRPeriod     int     `mapstructure:"atr_period"`
}

// StoreConfig holds the trade log location.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// Credentials holds API credentials.
type Credentials struct {
	Zerodha ZerodhaCredentials `mapstructure:"zerodha"`
}

// ZerodhaCredentials holds Zerodha API credentials.
type ZerodhaCredentials struct {
	APIKey      string `mapstructure:"api_key"`
	APISecret   string `mapstructure:"api_secret"`
	AccessToken string `mapstructure:"access_token"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/nifty-options-trader"
	}
	return filepath.Join(home, ".config", "nifty-options-trader")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, create template
			return createTemplateConfig(configDir, name)
		}
		return err
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ZERODHA_API_KEY"); v != "" {
		cfg.Credentials.Zerodha.APIKey = v
	}
	if v := os.Getenv("ZERODHA_API_SECRET"); v != "" {
		cfg.Credentials.Zerodha.APISecret = v
	}
	if v := os.Getenv("ZERODHA_ACCESS_TOKEN"); v != "" {
		cfg.Credentials.Zerodha.AccessToken = v
	}
	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Trading.Mode == "" {
		cfg.Trading.Mode = "paper"
	}
	if cfg.Trading.Underlying == "" {
		cfg.Trading.Underlying = "NIFTY 50"
	}
	if cfg.Trading.Exchange == "" {
		cfg.Trading.Exchange = "NSE"
	}
	if cfg.Trading.Product == "" {
		cfg.Trading.Product = "MIS"
	}
	if cfg.Strategy.AccountRisk == 0 {
		cfg.Strategy.AccountRisk = 10000
	}
	if cfg.Strategy.LotSize == 0 {
		cfg.Strategy.LotSize = 75
	}
	if cfg.Strategy.SLPoints == 0 {
		cfg.Strategy.SLPoints = 20
	}
	if cfg.Strategy.RRRatio == 0 {
		cfg.Strategy.RRRatio = 2
	}
	if cfg.Strategy.ExpiryCutoverHour == 0 {
		cfg.Strategy.ExpiryCutoverHour = 15
	}
	if cfg.MarketData.PollingInterval == 0 {
		cfg.MarketData.PollingInterval = 900 * time.Second
	}
	if cfg.MarketData.RateLimitInterval == 0 {
		cfg.MarketData.RateLimitInterval = time.Second
	}
	if cfg.MarketData.HourlyWindow == 0 {
		cfg.MarketData.HourlyWindow = 20
	}
	if cfg.MarketData.FifteenMinWindow == 0 {
		cfg.MarketData.FifteenMinWindow = 5
	}
	if cfg.MarketData.HistoryDays == 0 {
		cfg.MarketData.HistoryDays = 5
	}
	if cfg.Position.TickInterval == 0 {
		cfg.Position.TickInterval = 10 * time.Second
	}
	if cfg.Position.TrailPoints == 0 {
		cfg.Position.TrailPoints = 10
	}
	if cfg.Position.Book1Points == 0 {
		cfg.Position.Book1Points = 40
	}
	if cfg.Position.Book2Points == 0 {
		cfg.Position.Book2Points = 54
	}
	if cfg.Position.Book1Ratio == 0 {
		cfg.Position.Book1Ratio = 0.5
	}
	if cfg.Position.ExpiryExitTime == "" {
		cfg.Position.ExpiryExitTime = "15:15"
	}
	if cfg.Position.DecayFraction == 0 {
		cfg.Position.DecayFraction = 0.05
	}
	if cfg.Filters.ATRPeriod == 0 {
		cfg.Filters.ATRPeriod = 14
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(DefaultConfigDir(), "trades.db")
	}
}

// Validate validates the configuration. Invalid values fail fast so a
// misconfigured engine never reaches the market.
func (c *Config) Validate() error {
	if c.Trading.Mode != "live" && c.Trading.Mode != "paper" {
		return fmt.Errorf("invalid trading mode: %s (must be 'live' or 'paper')", c.Trading.Mode)
	}
	if c.Strategy.AccountRisk <= 0 {
		return fmt.Errorf("account_risk must be positive")
	}
	if c.Strategy.LotSize <= 0 {
		return fmt.Errorf("lot_size must be positive")
	}
	if c.Strategy.ATMOffset < 0 {
		return fmt.Errorf("atm_offset must be non-negative")
	}
	if c.Strategy.ExpiryCutoverHour < 1 || c.Strategy.ExpiryCutoverHour > 23 {
		return fmt.Errorf("expiry_cutover_hour must be between 1 and 23")
	}
	if c.MarketData.PollingInterval < time.Minute {
		return fmt.Errorf("polling_interval must be at least 1m")
	}
	if c.MarketData.RateLimitInterval < 100*time.Millisecond {
		return fmt.Errorf("rate_limit_interval too small")
	}
	if c.Position.TickInterval < time.Second {
		return fmt.Errorf("tick_interval must be at least 1s")
	}
	if c.Position.Book1Ratio <= 0 || c.Position.Book1Ratio > 1 {
		return fmt.Errorf("book1_ratio must be in (0, 1]")
	}
	if c.Position.Book2Points <= c.Position.Book1Points {
		return fmt.Errorf("book2_points must exceed book1_points")
	}
	if c.Position.DecayFraction <= 0 || c.Position.DecayFraction >= 1 {
		return fmt.Errorf("decay_fraction must be in (0, 1)")
	}
	if _, err := time.Parse("15:04", c.Position.ExpiryExitTime); err != nil {
		return fmt.Errorf("expiry_exit_time must be HH:MM: %w", err)
	}
	if c.Filters.IVEnabled && c.Filters.MinIV > c.Filters.MaxIV {
		return fmt.Errorf("min_iv must not exceed max_iv")
	}
	if c.Filters.ATREnabled && c.Filters.MinATRPct > c.Filters.MaxATRPct {
		return fmt.Errorf("min_atr_pct must not exceed max_atr_pct")
	}
	return nil
}

// IsPaperMode returns true if paper trading mode is enabled.
func (c *Config) IsPaperMode() bool {
	return c.Trading.Mode == "paper"
}

// ExpiryExitClock parses ExpiryExitTime into hour and minute.
func (c *Config) ExpiryExitClock() (hour, minute int) {
	t, err := time.Parse("15:04", c.Position.ExpiryExitTime)
	if err != nil {
		return 15, 15
	}
	return t.Hour(), t.Minute()
}
