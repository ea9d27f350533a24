package config

// Config is the umbrella configuration object that encapsulates the
// resolved settings, credential policy inputs, and roster registry used
// throughout the engine. It is the primary object returned by Initialize()
// and passed to the dispatcher, phase steps, and group-chat runtime.
type Config struct {
	configDir string // Roster directory path (for reference)

	// Queue holds dispatcher polling/lease/retry settings (§6 env vars).
	Queue *QueueConfig

	// Retention holds telemetry and dead-letter cleanup settings (see
	// RetentionConfig; nothing in this module acts on them).
	Retention *RetentionConfig

	// Azure holds the resolved storage account, queue, and Cosmos endpoints
	// plus the indicators used to pick a credential from the chain (§4.A/§4.K).
	Azure *AzureConfig

	// Defaults holds system-wide defaults applied when a roster does not
	// specify its own value.
	Defaults *Defaults

	// RosterRegistry holds the per-phase expert/manager role assignments.
	RosterRegistry *RosterRegistry
}

// Initialize is defined in loader.go.

// ConfigStats contains statistics about loaded configuration, logged once at startup.
type ConfigStats struct {
	Rosters int
}

// Stats returns configuration statistics for logging/monitoring.
func (c *Config) Stats() ConfigStats {
	return ConfigStats{
		Rosters: c.RosterRegistry.Len(),
	}
}

// ConfigDir returns the roster configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// GetRoster retrieves the roster configuration for a phase.
// This is a convenience method that wraps RosterRegistry.Get().
func (c *Config) GetRoster(phase string) (*RosterConfig, error) {
	return c.RosterRegistry.Get(phase)
}
