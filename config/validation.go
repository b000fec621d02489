package config

import (
	"time"
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds the result of config validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Validate checks the config for invalid values.
func (c *Config) Validate() ValidationResult {
	var errors []ValidationError

	errors = append(errors, validateDatabase(&c.Database)...)
	errors = append(errors, validateClob(&c.Clob)...)
	errors = append(errors, validateIndexer(&c.Indexer)...)
	errors = append(errors, validateDetector(&c.Detector)...)
	errors = append(errors, validateMetrics(&c.Metrics)...)
	errors = append(errors, validateServer(&c.Server)...)

	return ValidationResult{
		Valid:  len(errors) == 0,
		Errors: errors,
	}
}

func validateDatabase(db *DatabaseConfig) []ValidationError {
	var errors []ValidationError

	if db.Path == "" {
		errors = append(errors, ValidationError{
			Field:   "database.path",
			Message: "must not be empty",
		})
	}

	return errors
}

func validateClob(cl *ClobConfig) []ValidationError {
	var errors []ValidationError

	if cl.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "clob.base_url",
			Message: "must not be empty",
		})
	}
	if cl.RequestTimeout < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "clob.request_timeout",
			Message: "must be at least 1 second",
		})
	}
	if cl.RateInterval <= 0 {
		errors = append(errors, ValidationError{
			Field:   "clob.rate_interval",
			Message: "must be positive",
		})
	}
	if cl.MaxRetries < 1 {
		errors = append(errors, ValidationError{
			Field:   "clob.max_retries",
			Message: "must be at least 1",
		})
	}
	if cl.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "clob.batch_size",
			Message: "must be at least 1",
		})
	}

	return errors
}

func validateIndexer(ix *IndexerConfig) []ValidationError {
	var errors []ValidationError

	if ix.UpdateInterval < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "indexer.update_interval",
			Message: "must be at least 1 second",
		})
	}
	if ix.MaxWhalesPerUpdate < 1 {
		errors = append(errors, ValidationError{
			Field:   "indexer.max_whales_per_update",
			Message: "must be at least 1",
		})
	}

	return errors
}

func validateDetector(dt *DetectorConfig) []ValidationError {
	var errors []ValidationError

	if dt.DoubleDownRatio <= 0 {
		errors = append(errors, ValidationError{
			Field:   "detector.double_down_ratio",
			Message: "must be positive",
		})
	}
	if dt.DoubleDownHighRatio < dt.DoubleDownRatio {
		errors = append(errors, ValidationError{
			Field:   "detector.double_down_high_ratio",
			Message: "must not be below detector.double_down_ratio",
		})
	}
	if dt.LargeTradeValue <= 0 {
		errors = append(errors, ValidationError{
			Field:   "detector.large_trade_value",
			Message: "must be positive",
		})
	}
	if dt.LargeTradeHighValue < dt.LargeTradeValue {
		errors = append(errors, ValidationError{
			Field:   "detector.large_trade_high_value",
			Message: "must not be below detector.large_trade_value",
		})
	}
	if dt.LargeTradeCriticalValue < dt.LargeTradeHighValue {
		errors = append(errors, ValidationError{
			Field:   "detector.large_trade_critical_value",
			Message: "must not be below detector.large_trade_high_value",
		})
	}

	return errors
}

func validateMetrics(m *MetricsConfig) []ValidationError {
	var errors []ValidationError

	if m.RollupInterval < 1*time.Minute {
		errors = append(errors, ValidationError{
			Field:   "metrics.rollup_interval",
			Message: "must be at least 1 minute",
		})
	}
	if m.RetentionDays < 1 {
		errors = append(errors, ValidationError{
			Field:   "metrics.retention_days",
			Message: "must be at least 1",
		})
	}

	return errors
}

func validateServer(s *ServerConfig) []ValidationError {
	var errors []ValidationError

	if s.Enabled && (s.Port < 1 || s.Port > 65535) {
		errors = append(errors, ValidationError{
			Field:   "server.port",
			Message: "must be between 1 and 65535",
		})
	}

	return errors
}
