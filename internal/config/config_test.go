package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SHEETS_BACKEND", "xlsx")
	t.Setenv("SYNC_INTERVAL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Sync.Interval != 10*time.Minute {
		t.Errorf("Expected 10m sync interval, got %v", cfg.Sync.Interval)
	}
	if cfg.Bot.ReportEditWindow != 48*time.Hour {
		t.Errorf("Expected 48h edit window, got %v", cfg.Bot.ReportEditWindow)
	}
	if cfg.Sync.NextMonthThreshold != 3 {
		t.Errorf("Expected 3 days threshold, got %d", cfg.Sync.NextMonthThreshold)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SHEETS_BACKEND", "xlsx")
	t.Setenv("SYNC_INTERVAL", "90s")
	t.Setenv("NOTIFY_CHAT_ID", "-100200300")
	t.Setenv("SYNC_RETRY_ATTEMPTS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Sync.Interval != 90*time.Second {
		t.Errorf("Expected 90s, got %v", cfg.Sync.Interval)
	}
	if cfg.Bot.NotifyChatID != -100200300 {
		t.Errorf("Expected notify chat id, got %d", cfg.Bot.NotifyChatID)
	}
	if cfg.Sync.RetryAttempts != 5 {
		t.Errorf("Invalid value should fall back to default, got %d", cfg.Sync.RetryAttempts)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Database: DatabaseConfig{Host: "localhost", Name: "worklog"},
			Bot:      BotConfig{DefaultTimezone: "UTC"},
			Sheets:   SheetsConfig{Backend: "xlsx", XLSXDir: "/tmp/sheets"},
			Sync:     SyncConfig{RetryAttempts: 3},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing host", func(c *Config) { c.Database.Host = "" }, true},
		{"bad timezone", func(c *Config) { c.Bot.DefaultTimezone = "Mars/Olympus" }, true},
		{"google without credentials", func(c *Config) { c.Sheets.Backend = "google" }, true},
		{"unknown backend", func(c *Config) { c.Sheets.Backend = "csv" }, true},
		{"zero attempts", func(c *Config) { c.Sync.RetryAttempts = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
