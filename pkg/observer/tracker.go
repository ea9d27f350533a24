// Package observer watches agent response content for tool-usage patterns
// and records them to the telemetry store. Detection is best-effort: it
// never surfaces an error to the caller, since a missed detection should
// never interrupt a phase step.
package observer

import (
	"context"
	"log/slog"
	"strings"
)

// Recorder is the subset of the telemetry store the observer writes to.
type Recorder interface {
	TrackToolUsage(ctx context.Context, processID, agentName, toolCategory, toolAction, details string) error
}

var toolPatterns = map[string][]string{
	"blob": {
		"list_blobs_in_container", "read_blob_content", "save_content_to_blob",
		"list_containers", "find_blobs", "check_blob_exists", "delete_blob",
		"copy_blob", "move_blob",
	},
	"file": {
		"list_files_in_directory", "open_file_content", "save_content_to_file",
		"find_files", "check_file_exists", "analyze_file_quality", "copy_file",
		"move_file", "delete_file", "rename_file",
	},
	"docs": {
		"microsoft_docs_search", "microsoft_docs_fetch",
	},
	"datetime": {
		"get_current_time", "format_datetime", "get_timestamp",
	},
	"context": {
		"resolve_library_id", "get_library_docs",
	},
	"memory": {
		"create_entities", "add_observations", "search_nodes", "read_graph", "create_relations",
	},
	"functionapp": {
		"deploy_function", "list_functions", "invoke_function",
	},
	"infrastructure": {
		"get_azure_verified_module", "get_az_resource_type_schema",
		"list_az_resource_types", "get_bicep_best_practices",
	},
}

// toolCategoryOrder fixes iteration order so detection is deterministic
// ("only track first detected tool per message").
var toolCategoryOrder = []string{
	"blob", "file", "docs", "datetime", "context", "memory", "functionapp", "infrastructure",
}

var functionCallIndicators = []string{
	"function_call", "calling function", "invoke tool",
	"using tool", "executing function", "tool invocation",
}

// Tracker detects and records tool usage in agent response content.
type Tracker struct {
	store Recorder
}

// New creates a Tracker backed by store. A nil store makes DetectAndTrack a no-op.
func New(store Recorder) *Tracker {
	return &Tracker{store: store}
}

// DetectAndTrack scans content for known tool-invocation patterns and
// records one usage per call: the first match, checking categories in
// toolCategoryOrder, or, when no category matches, at most one generic
// function-call indicator. All errors are logged and swallowed.
func (t *Tracker) DetectAndTrack(ctx context.Context, processID, agentName, content string) {
	if t == nil || t.store == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Warn("tool usage detection panicked, ignoring", "error", r)
		}
	}()

	lower := strings.ToLower(content)

	for _, category := range toolCategoryOrder {
		for _, action := range toolPatterns[category] {
			if strings.Contains(lower, strings.ToLower(action)) {
				details := extractToolContext(content, action)
				if err := t.store.TrackToolUsage(ctx, processID, agentName, category, action, details); err != nil {
					slog.Warn("failed to record tool usage", "error", err)
				} else {
					slog.Info("detected tool usage", "agent", agentName, "category", category, "action", action)
				}
				return
			}
		}
	}

	for _, indicator := range functionCallIndicators {
		if strings.Contains(lower, indicator) {
			if err := t.store.TrackToolUsage(ctx, processID, agentName, "unknown", "function_call",
				"generic function call detected: "+indicator); err != nil {
				slog.Warn("failed to record generic tool usage", "error", err)
			}
			return
		}
	}
}

func extractToolContext(content, toolAction string) string {
	lowerAction := strings.ToLower(toolAction)
	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(strings.ToLower(line), lowerAction) {
			trimmed := strings.TrimSpace(line)
			if len(trimmed) > 150 {
				trimmed = trimmed[:150] + "..."
			}
			return trimmed
		}
	}
	return "tool action: " + toolAction
}
