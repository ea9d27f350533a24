package config

import "time"

// RetentionConfig holds telemetry and dead-letter cleanup settings. They are
// loaded onto Config only: no component in this module runs a cleanup sweep
// or reads these values.
type RetentionConfig struct {
	// ProcessRetentionDays is how many days to keep terminal process
	// documents in the telemetry store before they are eligible for cleanup.
	ProcessRetentionDays int `yaml:"process_retention_days"`

	// DeadLetterTTL is the maximum age of a message sitting in the
	// dead-letter queue before it is purged.
	DeadLetterTTL time.Duration `yaml:"dead_letter_ttl"`

	// CleanupInterval is the configured interval between retention sweeps.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		ProcessRetentionDays: 90,
		DeadLetterTTL:        7 * 24 * time.Hour,
		CleanupInterval:      12 * time.Hour,
	}
}
