package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.Trading.Mode = "paper"
	applyDefaults(cfg)
	return cfg
}

func TestApplyDefaultsFillsStrategy(t *testing.T) {
	cfg := validConfig()
	if cfg.Strategy.ExpiryCutoverHour != 15 {
		t.Errorf("expiry cutover hour = %d, want 15", cfg.Strategy.ExpiryCutoverHour)
	}
	if cfg.MarketData.PollingInterval != 900*time.Second {
		t.Errorf("polling interval = %v", cfg.MarketData.PollingInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaulted config invalid: %v", err)
	}
}

func TestValidateExpiryCutoverHourRange(t *testing.T) {
	cfg := validConfig()

	cfg.Strategy.ExpiryCutoverHour = 12
	if err := cfg.Validate(); err != nil {
		t.Errorf("hour 12 rejected: %v", err)
	}

	cfg.Strategy.ExpiryCutoverHour = 24
	if err := cfg.Validate(); err == nil {
		t.Error("hour 24 accepted")
	}

	cfg.Strategy.ExpiryCutoverHour = -1
	if err := cfg.Validate(); err == nil {
		t.Error("negative hour accepted")
	}
}
