package config

import (
	"log/slog"

	"dario.cat/mergo"
)

// mergeRosters merges built-in and user-defined phase rosters. A
// rosters.yaml entry for a phase the built-ins already cover only needs to
// set the fields it wants to change (e.g. a longer max_turns); anything it
// leaves zero-valued falls back to the built-in roster's value via
// mergo.Merge. A phase absent from the built-ins is taken as-is.
func mergeRosters(builtinRosters map[string]RosterConfig, userRosters map[string]RosterConfig) map[string]*RosterConfig {
	result := make(map[string]*RosterConfig, len(builtinRosters)+len(userRosters))

	for phase, roster := range builtinRosters {
		expertsCopy := make([]string, len(roster.Experts))
		copy(expertsCopy, roster.Experts)
		rosterCopy := roster
		rosterCopy.Experts = expertsCopy
		result[phase] = &rosterCopy
	}

	for phase, override := range userRosters {
		base, ok := result[phase]
		if !ok {
			overrideCopy := override
			result[phase] = &overrideCopy
			continue
		}

		merged := *base
		if err := mergo.Merge(&merged, override, mergo.WithOverride); err != nil {
			slog.Warn("failed to merge roster override, using built-in roster unchanged", "phase", phase, "error", err)
			continue
		}
		result[phase] = &merged
	}

	return result
}
