package config

// Defaults contains system-wide default configurations applied when a
// roster or phase step does not specify its own value.
type Defaults struct {
	// MaxIterations caps group-chat turns when a roster does not set
	// RosterConfig.MaxTurns.
	MaxIterations int `yaml:"max_iterations,omitempty"`

	// ManualInterventionThreshold names an escalation level (§3) for
	// flagging manual intervention. No component reads it: pkg/failure sets
	// ManualInterventionRequired from the termination kind, confidence and
	// blocking-issue count alone.
	ManualInterventionThreshold string `yaml:"manual_intervention_threshold,omitempty"`
}

// DefaultDefaults returns the built-in system-wide defaults.
func DefaultDefaults() *Defaults {
	return &Defaults{
		MaxIterations:               10,
		ManualInterventionThreshold: "critical",
	}
}
