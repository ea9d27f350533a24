// Package selection parses free-form LLM output naming the next agent to
// speak in a group chat, tolerating the many ways a model can fail to
// follow the requested JSON format.
package selection

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Result is a parsed agent-selection decision.
type Result struct {
	Agent  string `json:"result"`
	Reason string `json:"reason"`
}

var invisibleChars = regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{2060}]`)

var selectionPrefixes = []string{
	"Select ", "Agent: ", "Next: ", "Choose ", "I select ", "Selected ", "I choose ",
}

var terminationWords = map[string]struct{}{
	"Success": {}, "Complete": {}, "Terminate": {}, "Finished": {},
	"Done": {}, "End": {}, "Yes": {}, "No": {}, "True": {}, "False": {},
}

var stepExpertise = map[string]string{
	"yaml_generation": "YAML conversion and Kubernetes manifest transformation",
	"analysis":        "platform analysis and complexity assessment",
	"design":          "Azure architecture design and service recommendations",
	"documentation":   "technical documentation and migration guides",
}

// Parse parses a raw agent-selection response, falling back from strict
// JSON to sanitized plain-text extraction and fuzzy matching against
// validAgents. Blank content is always an error; otherwise it never returns
// an error if validAgents is non-empty: a selection that cannot be resolved
// any other way falls back to validAgents[0].
func Parse(content, stepName string, validAgents []string) (Result, error) {
	if strings.TrimSpace(content) == "" {
		return Result{}, fmt.Errorf("empty response content received for agent selection")
	}

	var jsonResult Result
	if err := json.Unmarshal([]byte(content), &jsonResult); err == nil && jsonResult.Agent != "" {
		slog.Debug("agent selection JSON parsing succeeded", "step", stepName)
		return jsonResult, nil
	}

	clean := sanitizeAgentName(content)
	if clean == "" {
		if len(validAgents) == 0 {
			return Result{}, fmt.Errorf("could not extract agent name from content: %q", content)
		}
		clean = validAgents[0]
		slog.Warn("termination word or empty extraction forced fallback to first valid agent", "agent", clean, "content", content)
	}

	if len(validAgents) > 0 && !contains(validAgents, clean) {
		clean = findClosestAgent(clean, validAgents)
	}

	if len(validAgents) > 0 && !contains(validAgents, clean) {
		slog.Error("invalid agent after all processing", "agent", clean, "content", content, "valid_agents", validAgents)
		clean = validAgents[0]
		slog.Warn("forced fallback to first valid agent", "agent", clean)
	}

	reason := generateSelectionReason(clean, stepName)
	slog.Info("agent selection fallback parsing succeeded", "agent", clean, "step", stepName)
	return Result{Agent: clean, Reason: reason}, nil
}

func sanitizeAgentName(content string) string {
	clean := strings.TrimSpace(content)
	clean = strings.Trim(clean, `"'`)

	clean = norm.NFKC.String(clean)
	clean = invisibleChars.ReplaceAllString(clean, "")

	for _, prefix := range selectionPrefixes {
		if strings.HasPrefix(clean, prefix) {
			clean = strings.TrimSpace(clean[len(prefix):])
			break
		}
	}

	if idx := strings.IndexByte(clean, '\n'); idx >= 0 {
		clean = strings.TrimSpace(clean[:idx])
	}

	if _, isTermination := terminationWords[clean]; isTermination {
		slog.Warn("detected termination word where an agent name was expected", "word", clean, "content", content)
		return ""
	}

	clean = keepWordCharsAndUnderscore(clean)
	return clean
}

func keepWordCharsAndUnderscore(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func findClosestAgent(agentName string, validAgents []string) string {
	lower := strings.ToLower(agentName)

	for _, valid := range validAgents {
		if lower == strings.ToLower(valid) {
			return valid
		}
	}

	for _, valid := range validAgents {
		validLower := strings.ToLower(valid)
		if strings.Contains(validLower, lower) || strings.Contains(lower, validLower) {
			slog.Info("fuzzy agent match", "input", agentName, "matched", valid)
			return valid
		}
	}

	fallback := agentName
	if len(validAgents) > 0 {
		fallback = validAgents[0]
	}
	slog.Warn("no close agent match found, using fallback", "input", agentName, "fallback", fallback)
	return fallback
}

func generateSelectionReason(agentName, stepName string) string {
	expertise, ok := stepExpertise[stepName]
	if !ok {
		expertise = stepName + " step processing"
	}
	return fmt.Sprintf("Selected %s for %s expertise", agentName, expertise)
}

func contains(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}
