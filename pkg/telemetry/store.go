// Package telemetry projects process activity — agent turns, tool usage,
// phase transitions — into a durable record suitable for a status/snapshot
// endpoint. Writes for a single process are serialized so the monotonic
// last-update-time invariant holds even when multiple agents in the same
// group chat report activity concurrently.
package telemetry

import (
	"context"
	"time"
)

// maxActivityEntries bounds the activity history kept per process; older
// entries are dropped first so a long-running process's record doesn't
// grow without limit.
const maxActivityEntries = 200

// ActivityKind classifies a single activity entry.
type ActivityKind string

const (
	ActivityAgentActive      ActivityKind = "agent_active"
	ActivityToolUsage        ActivityKind = "tool_usage"
	ActivityPhaseTransition  ActivityKind = "phase_transition"
	ActivityTermination      ActivityKind = "termination"
)

// ActivityEntry is a single recorded event in a process's timeline.
type ActivityEntry struct {
	Timestamp time.Time
	AgentName string
	Kind      ActivityKind
	Detail    string
}

// ProcessRecord is the full projection of a process's activity, returned
// by the snapshot/status surface.
type ProcessRecord struct {
	ProcessID   string
	Phase       string
	Status      string
	LastUpdated time.Time
	Activity    []ActivityEntry

	// PhaseOutputs holds each successfully completed phase's JSON-encoded
	// structured output, keyed by phase name. A redelivered job consults
	// this to resume after the last completed phase instead of re-running
	// it (see pkg/process.Machine.Execute).
	PhaseOutputs map[string]string
}

// Store is the telemetry write/read surface. It satisfies both
// agent.ActivityRecorder and observer.Recorder so BaseAgent and the tool
// usage tracker can write to it without depending on its concrete type.
type Store interface {
	MarkAgentActive(ctx context.Context, processID, agentName string) error
	TrackToolUsage(ctx context.Context, processID, agentName, toolCategory, toolAction, details string) error
	RecordPhaseTransition(ctx context.Context, processID, phase, status string) error
	RecordTermination(ctx context.Context, processID, reason string) error

	// RecordPhaseOutput persists a phase's structured output (JSON-encoded)
	// once it completes successfully, so that process id's record is the
	// primary-key source of truth a redelivered job resumes from.
	RecordPhaseOutput(ctx context.Context, processID, phase, outputJSON string) error

	Get(ctx context.Context, processID string) (*ProcessRecord, error)
}

func appendBounded(entries []ActivityEntry, entry ActivityEntry) []ActivityEntry {
	entries = append(entries, entry)
	if len(entries) > maxActivityEntries {
		entries = entries[len(entries)-maxActivityEntries:]
	}
	return entries
}
