package config

// BuiltinRosters returns the built-in per-phase rosters. User-supplied
// rosters.yaml entries override these on a per-phase basis (see mergeRosters).
func BuiltinRosters() map[string]RosterConfig {
	return map[string]RosterConfig{
		"analysis": {
			Phase:       "analysis",
			Experts:     []string{"platform_detector", "eks_expert", "gke_expert", "azure_expert"},
			Manager:     "analysis_manager",
			MaxTurns:    12,
			MaxMessages: 60,
		},
		"design": {
			Phase:       "design",
			Experts:     []string{"architecture_expert", "networking_expert", "security_expert"},
			Manager:     "design_manager",
			MaxTurns:    12,
			MaxMessages: 60,
		},
		"yaml_generation": {
			Phase:       "yaml_generation",
			Experts:     []string{"manifest_writer", "helm_expert", "validator"},
			Manager:     "yaml_manager",
			MaxTurns:    16,
			MaxMessages: 80,
		},
		"documentation": {
			Phase:       "documentation",
			Experts:     []string{"technical_writer", "runbook_author"},
			Manager:     "documentation_manager",
			MaxTurns:    8,
			MaxMessages: 40,
		},
	}
}
