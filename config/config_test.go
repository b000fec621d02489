package config

import (
	"os"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"STAGE", "DATABASE_PATH",
		"CLOB_API_URL", "CLOB_REQUEST_TIMEOUT", "CLOB_RATE_INTERVAL", "CLOB_MAX_RETRIES", "CLOB_BATCH_SIZE",
		"INDEXER_UPDATE_INTERVAL", "INDEXER_MAX_WHALES_PER_UPDATE",
		"DETECTOR_NEW_POSITION_HIGH_VALUE", "DETECTOR_EXIT_HIGH_PNL",
		"DETECTOR_DOUBLE_DOWN_RATIO", "DETECTOR_DOUBLE_DOWN_HIGH_RATIO",
		"DETECTOR_LARGE_TRADE_VALUE", "DETECTOR_LARGE_TRADE_HIGH_VALUE", "DETECTOR_LARGE_TRADE_CRITICAL_VALUE",
		"METRICS_ROLLUP_INTERVAL", "METRICS_RETENTION_DAYS",
		"DISCORD_BOT_TOKEN", "DISCORD_PROD_CHANNEL_ID", "DISCORD_BETA_CHANNEL_ID",
		"SERVER_ENABLED", "SERVER_PORT",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.IsProd {
		t.Error("expected IsProd to be false by default")
	}
	if cfg.Database.Path != "whaletracker.db" {
		t.Errorf("unexpected database path: %s", cfg.Database.Path)
	}
	if cfg.Clob.BaseURL != "https://clob.polymarket.com" {
		t.Errorf("unexpected clob base URL: %s", cfg.Clob.BaseURL)
	}
	if cfg.Clob.MaxRetries != 3 {
		t.Errorf("unexpected max retries: %d", cfg.Clob.MaxRetries)
	}
	if cfg.Clob.RateInterval != 100*time.Millisecond {
		t.Errorf("unexpected rate interval: %v", cfg.Clob.RateInterval)
	}
	if cfg.Indexer.UpdateInterval != 1*time.Minute {
		t.Errorf("unexpected update interval: %v", cfg.Indexer.UpdateInterval)
	}
	if cfg.Indexer.MaxWhalesPerUpdate != 50 {
		t.Errorf("unexpected max whales per update: %d", cfg.Indexer.MaxWhalesPerUpdate)
	}
	if cfg.Detector.LargeTradeValue != 5000.0 {
		t.Errorf("unexpected large trade value: %f", cfg.Detector.LargeTradeValue)
	}
	if cfg.Detector.LargeTradeCriticalValue != 20000.0 {
		t.Errorf("unexpected critical value: %f", cfg.Detector.LargeTradeCriticalValue)
	}
	if cfg.Metrics.RetentionDays != 90 {
		t.Errorf("unexpected retention days: %d", cfg.Metrics.RetentionDays)
	}
	if !cfg.Server.Enabled {
		t.Error("expected server enabled by default")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("unexpected server port: %d", cfg.Server.Port)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)

	t.Setenv("STAGE", "PROD")
	t.Setenv("DATABASE_PATH", "/data/tracker.db")
	t.Setenv("CLOB_MAX_RETRIES", "5")
	t.Setenv("CLOB_RATE_INTERVAL", "250ms")
	t.Setenv("INDEXER_MAX_WHALES_PER_UPDATE", "10")
	t.Setenv("DETECTOR_LARGE_TRADE_VALUE", "7500")
	t.Setenv("SERVER_PORT", "9090")

	cfg := Load()

	if !cfg.IsProd {
		t.Error("expected IsProd to be true")
	}
	if cfg.Database.Path != "/data/tracker.db" {
		t.Errorf("unexpected database path: %s", cfg.Database.Path)
	}
	if cfg.Clob.MaxRetries != 5 {
		t.Errorf("unexpected max retries: %d", cfg.Clob.MaxRetries)
	}
	if cfg.Clob.RateInterval != 250*time.Millisecond {
		t.Errorf("unexpected rate interval: %v", cfg.Clob.RateInterval)
	}
	if cfg.Indexer.MaxWhalesPerUpdate != 10 {
		t.Errorf("unexpected max whales: %d", cfg.Indexer.MaxWhalesPerUpdate)
	}
	if cfg.Detector.LargeTradeValue != 7500.0 {
		t.Errorf("unexpected large trade value: %f", cfg.Detector.LargeTradeValue)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("unexpected port: %d", cfg.Server.Port)
	}
}

func TestLoad_InvalidEnvFallsBack(t *testing.T) {
	clearEnv(t)

	t.Setenv("CLOB_MAX_RETRIES", "not-a-number")
	t.Setenv("METRICS_ROLLUP_INTERVAL", "soon")

	cfg := Load()

	if cfg.Clob.MaxRetries != 3 {
		t.Errorf("expected fallback retries 3, got %d", cfg.Clob.MaxRetries)
	}
	if cfg.Metrics.RollupInterval != 1*time.Hour {
		t.Errorf("expected fallback rollup interval 1h, got %v", cfg.Metrics.RollupInterval)
	}
}

func TestValidate_Defaults(t *testing.T) {
	result := Defaults().Validate()
	if !result.Valid {
		t.Errorf("expected default config to be valid, got errors: %+v", result.Errors)
	}
}

func TestValidate_BadValues(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Path = ""
	cfg.Clob.MaxRetries = 0
	cfg.Detector.LargeTradeHighValue = 1 // below LargeTradeValue
	cfg.Server.Port = 0

	result := cfg.Validate()
	if result.Valid {
		t.Fatal("expected invalid config")
	}

	fields := make(map[string]bool)
	for _, e := range result.Errors {
		fields[e.Field] = true
	}
	for _, want := range []string{
		"database.path",
		"clob.max_retries",
		"detector.large_trade_high_value",
		"server.port",
	} {
		if !fields[want] {
			t.Errorf("expected validation error for %s", want)
		}
	}
}

func TestClone(t *testing.T) {
	cfg := Defaults()
	clone := cfg.Clone()

	clone.Server.Port = 9999
	if cfg.Server.Port == 9999 {
		t.Error("expected clone to be independent of original")
	}

	var nilCfg *Config
	if nilCfg.Clone() != nil {
		t.Error("expected nil clone for nil config")
	}
}
