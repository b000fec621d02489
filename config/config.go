package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Environment
	IsProd bool `json:"is_prod"`

	// SQLite database
	Database DatabaseConfig `json:"database"`

	// CLOB market-data API
	Clob ClobConfig `json:"clob"`

	// Indexing orchestration
	Indexer IndexerConfig `json:"indexer"`

	// Event classification thresholds
	Detector DetectorConfig `json:"detector"`

	// Metrics rollups and retention
	Metrics MetricsConfig `json:"metrics"`

	// Discord - excluded from serialized settings (env var only)
	Discord DiscordConfig `json:"-"`

	// HTTP server (health, stats, websocket, manual triggers)
	Server ServerConfig `json:"server"`
}

// DatabaseConfig holds SQLite configuration.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// ClobConfig holds CLOB API client configuration.
type ClobConfig struct {
	BaseURL        string        `json:"base_url"`
	RequestTimeout time.Duration `json:"request_timeout"`
	RateInterval   time.Duration `json:"rate_interval"` // Minimum delay between external calls
	MaxRetries     int           `json:"max_retries"`   // Bounded attempts per call
	BatchSize      int           `json:"batch_size"`    // Page size for full reindex
}

// IndexerConfig holds orchestrator configuration.
type IndexerConfig struct {
	UpdateInterval     time.Duration `json:"update_interval"`       // Incremental update cadence
	MaxWhalesPerUpdate int           `json:"max_whales_per_update"` // Bounded batch size per run
}

// DetectorConfig holds event classification thresholds.
type DetectorConfig struct {
	NewPositionHighValue    float64 `json:"new_position_high_value"`    // NEW_POSITION severity HIGH above this trade value
	ExitHighPnl             float64 `json:"exit_high_pnl"`              // EXIT severity HIGH above this |realized pnl|
	DoubleDownRatio         float64 `json:"double_down_ratio"`          // DOUBLE_DOWN fires above this added/existing ratio
	DoubleDownHighRatio     float64 `json:"double_down_high_ratio"`     // DOUBLE_DOWN severity HIGH above this ratio
	LargeTradeValue         float64 `json:"large_trade_value"`          // LARGE_TRADE fires above this trade value
	LargeTradeHighValue     float64 `json:"large_trade_high_value"`     // LARGE_TRADE severity HIGH above this value
	LargeTradeCriticalValue float64 `json:"large_trade_critical_value"` // LARGE_TRADE severity CRITICAL above this value
}

// MetricsConfig holds metrics aggregation configuration.
type MetricsConfig struct {
	RollupInterval time.Duration `json:"rollup_interval"` // Hourly pass cadence
	RetentionDays  int           `json:"retention_days"`  // Rollup/job-log retention horizon
}

// DiscordConfig holds Discord notification configuration.
type DiscordConfig struct {
	BotToken      string `json:"-"` // Excluded - env var only
	ProdChannelID string `json:"prod_channel_id"`
	BetaChannelID string `json:"beta_channel_id"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

// Clone creates a deep copy of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Defaults returns a config with hardcoded default values.
func Defaults() *Config {
	return &Config{
		IsProd: false,
		Database: DatabaseConfig{
			Path: "whaletracker.db",
		},
		Clob: ClobConfig{
			BaseURL:        "https://clob.polymarket.com",
			RequestTimeout: 30 * time.Second,
			RateInterval:   100 * time.Millisecond,
			MaxRetries:     3,
			BatchSize:      100,
		},
		Indexer: IndexerConfig{
			UpdateInterval:     1 * time.Minute,
			MaxWhalesPerUpdate: 50,
		},
		Detector: DetectorConfig{
			NewPositionHighValue:    1000.0,
			ExitHighPnl:             500.0,
			DoubleDownRatio:         0.5,
			DoubleDownHighRatio:     1.0,
			LargeTradeValue:         5000.0,
			LargeTradeHighValue:     10000.0,
			LargeTradeCriticalValue: 20000.0,
		},
		Metrics: MetricsConfig{
			RollupInterval: 1 * time.Hour,
			RetentionDays:  90,
		},
		Discord: DiscordConfig{},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
	}
}

// Load reads configuration from environment variables, falling back to defaults.
func Load() *Config {
	d := Defaults()

	return &Config{
		IsProd: envBool("STAGE", "PROD"),

		Database: DatabaseConfig{
			Path: envString("DATABASE_PATH", d.Database.Path),
		},

		Clob: ClobConfig{
			BaseURL:        envString("CLOB_API_URL", d.Clob.BaseURL),
			RequestTimeout: envDuration("CLOB_REQUEST_TIMEOUT", d.Clob.RequestTimeout),
			RateInterval:   envDuration("CLOB_RATE_INTERVAL", d.Clob.RateInterval),
			MaxRetries:     envInt("CLOB_MAX_RETRIES", d.Clob.MaxRetries),
			BatchSize:      envInt("CLOB_BATCH_SIZE", d.Clob.BatchSize),
		},

		Indexer: IndexerConfig{
			UpdateInterval:     envDuration("INDEXER_UPDATE_INTERVAL", d.Indexer.UpdateInterval),
			MaxWhalesPerUpdate: envInt("INDEXER_MAX_WHALES_PER_UPDATE", d.Indexer.MaxWhalesPerUpdate),
		},

		Detector: DetectorConfig{
			NewPositionHighValue:    envFloat("DETECTOR_NEW_POSITION_HIGH_VALUE", d.Detector.NewPositionHighValue),
			ExitHighPnl:             envFloat("DETECTOR_EXIT_HIGH_PNL", d.Detector.ExitHighPnl),
			DoubleDownRatio:         envFloat("DETECTOR_DOUBLE_DOWN_RATIO", d.Detector.DoubleDownRatio),
			DoubleDownHighRatio:     envFloat("DETECTOR_DOUBLE_DOWN_HIGH_RATIO", d.Detector.DoubleDownHighRatio),
			LargeTradeValue:         envFloat("DETECTOR_LARGE_TRADE_VALUE", d.Detector.LargeTradeValue),
			LargeTradeHighValue:     envFloat("DETECTOR_LARGE_TRADE_HIGH_VALUE", d.Detector.LargeTradeHighValue),
			LargeTradeCriticalValue: envFloat("DETECTOR_LARGE_TRADE_CRITICAL_VALUE", d.Detector.LargeTradeCriticalValue),
		},

		Metrics: MetricsConfig{
			RollupInterval: envDuration("METRICS_ROLLUP_INTERVAL", d.Metrics.RollupInterval),
			RetentionDays:  envInt("METRICS_RETENTION_DAYS", d.Metrics.RetentionDays),
		},

		Discord: DiscordConfig{
			BotToken:      envString("DISCORD_BOT_TOKEN", ""),
			ProdChannelID: envString("DISCORD_PROD_CHANNEL_ID", ""),
			BetaChannelID: envString("DISCORD_BETA_CHANNEL_ID", ""),
		},

		Server: ServerConfig{
			Enabled: envBoolDefault("SERVER_ENABLED", d.Server.Enabled),
			Port:    envInt("SERVER_PORT", d.Server.Port),
		},
	}
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// envBool returns true if the env var equals the given value (case-insensitive).
func envBool(key, trueValue string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(key)), trueValue)
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return dur
}
