// Package failure collects structured failure context for phase steps so
// that a stuck or errored process carries enough information for triage
// without needing to re-run anything.
package failure

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/aks-migrator/engine/pkg/termination"
)

// EscalationLevel ranks how urgently a failure needs human attention.
type EscalationLevel string

const (
	EscalationLow      EscalationLevel = "LOW"
	EscalationMedium   EscalationLevel = "MEDIUM"
	EscalationHigh     EscalationLevel = "HIGH"
	EscalationCritical EscalationLevel = "CRITICAL"
)

// SystemContext captures failure context from a Go error raised during a step.
type SystemContext struct {
	ErrorType           string
	ErrorMessage        string
	StackTrace          string
	Timestamp           time.Time
	ProcessID           string
	StepName            string
	StepPhase           string
	InputContextSummary string
}

// HardTerminationContext captures failure context from a hard termination
// result produced by the group-chat runtime.
type HardTerminationContext struct {
	TerminationKind             termination.Kind
	TerminationReason           string
	BlockingIssues              []string
	RetrySuggestions            []string
	ConfidenceLevel             float64
	InputFiles                  []string
	ManualInterventionRequired  bool
	EscalationLevel             EscalationLevel
}

// StepFailureState is the complete failure record attached to a phase result
// when a step does not complete successfully.
type StepFailureState struct {
	Reason                 string
	SystemFailureContext   *SystemContext
	HardTerminationContext *HardTerminationContext
	ExecutionTime          time.Duration
	FilesAttempted         []string
}

// InputContext is the subset of a step's working context relevant to
// summarizing a failure for a human reader.
type InputContext struct {
	SourceFileFolder string
	AnalyzedFiles    []string
	PlatformDetected string
	HasAnalysisResult bool
	HasDesignResult   bool
}

// CollectSystemFailure builds a SystemContext from a Go error.
func CollectSystemFailure(err error, stepName, processID, stepPhase string, ctx InputContext) SystemContext {
	return SystemContext{
		ErrorType:           fmt.Sprintf("%T", err),
		ErrorMessage:        err.Error(),
		StackTrace:          string(debug.Stack()),
		Timestamp:           time.Now().UTC(),
		ProcessID:           processID,
		StepName:            stepName,
		StepPhase:           stepPhase,
		InputContextSummary: summarizeInputContext(ctx),
	}
}

// CollectHardTermination builds a HardTerminationContext from a termination result.
func CollectHardTermination(result termination.Result, inputFiles []string) HardTerminationContext {
	return HardTerminationContext{
		TerminationKind:            result.Kind,
		TerminationReason:          result.Reason,
		BlockingIssues:             result.BlockingIssues,
		RetrySuggestions:           result.RetrySuggestions,
		ConfidenceLevel:            result.ConfidenceLevel,
		InputFiles:                 dedupe(inputFiles),
		ManualInterventionRequired: requiresManualIntervention(result),
		EscalationLevel:            determineEscalationLevel(result),
	}
}

// Retryable reports whether the step that produced this failure is worth
// attempting again: a system error (a Go error raised by the group chat
// runtime itself, not a manager decision) and the transient hard-termination
// kinds are retryable; a blocked termination means the step cannot succeed
// without a human resolving the blocker first.
func (s *StepFailureState) Retryable() bool {
	if s == nil {
		return false
	}
	if s.SystemFailureContext != nil {
		return true
	}
	if s.HardTerminationContext == nil {
		return false
	}
	switch s.HardTerminationContext.TerminationKind {
	case termination.HardError, termination.HardTimeout, termination.HardResourceLimit:
		return true
	default:
		return false
	}
}

// NewStepFailureState assembles the complete failure record for a phase result.
func NewStepFailureState(reason string, executionTime time.Duration, filesAttempted []string, sys *SystemContext, hard *HardTerminationContext) StepFailureState {
	if filesAttempted == nil {
		filesAttempted = []string{}
	}
	return StepFailureState{
		Reason:                 reason,
		SystemFailureContext:   sys,
		HardTerminationContext: hard,
		ExecutionTime:          executionTime,
		FilesAttempted:         filesAttempted,
	}
}

func summarizeInputContext(ctx InputContext) string {
	var parts []string
	if ctx.SourceFileFolder != "" {
		parts = append(parts, fmt.Sprintf("source: %s", ctx.SourceFileFolder))
	}
	if len(ctx.AnalyzedFiles) > 0 {
		parts = append(parts, fmt.Sprintf("files: %d", len(ctx.AnalyzedFiles)))
	}
	if ctx.PlatformDetected != "" {
		parts = append(parts, fmt.Sprintf("platform: %s", ctx.PlatformDetected))
	}
	if ctx.HasAnalysisResult {
		parts = append(parts, "has_analysis_result")
	}
	if ctx.HasDesignResult {
		parts = append(parts, "has_design_result")
	}
	if len(parts) == 0 {
		return "no context available"
	}
	summary := parts[0]
	for _, p := range parts[1:] {
		summary += ", " + p
	}
	return summary
}

func dedupe(files []string) []string {
	seen := make(map[string]struct{}, len(files))
	out := make([]string, 0, len(files))
	for _, f := range files {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

func requiresManualIntervention(result termination.Result) bool {
	switch result.Kind {
	case termination.HardBlocked, termination.HardError, termination.HardResourceLimit:
		return true
	}
	if result.ConfidenceLevel < 0.5 {
		return true
	}
	if len(result.BlockingIssues) > 2 {
		return true
	}
	return false
}

func determineEscalationLevel(result termination.Result) EscalationLevel {
	switch {
	case result.Kind == termination.HardError:
		return EscalationHigh
	case result.Kind == termination.HardBlocked:
		return EscalationCritical
	case result.ConfidenceLevel < 0.3:
		return EscalationHigh
	case result.ConfidenceLevel < 0.7:
		return EscalationMedium
	default:
		return EscalationLow
	}
}
