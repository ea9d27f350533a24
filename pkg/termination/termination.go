// Package termination models the extended termination result used by the
// group-chat runtime and process state machine to distinguish ordinary
// completion from the various ways a phase can become stuck.
package termination

// Kind classifies why a group chat stopped.
type Kind string

const (
	// SoftCompletion means the work finished successfully.
	SoftCompletion Kind = "soft_completion"
	// SoftEarlyExit means the chat ended before the normal turn budget,
	// without anything having gone wrong (e.g. the manager short-circuited).
	SoftEarlyExit Kind = "soft_early_exit"
	// HardBlocked means the agents cannot proceed due to an external blocker.
	HardBlocked Kind = "hard_blocked"
	// HardError means a critical error prevented further progress.
	HardError Kind = "hard_error"
	// HardTimeout means a time budget or the group chat's turn cap was
	// exceeded.
	HardTimeout Kind = "hard_timeout"
	// HardResourceLimit means a resource constraint (message cap, token
	// budget) was hit.
	HardResourceLimit Kind = "hard_resource_limit"
)

// IsHard reports whether the kind represents a blocking termination rather
// than a clean completion.
func (k Kind) IsHard() bool {
	switch k {
	case HardBlocked, HardError, HardTimeout, HardResourceLimit:
		return true
	default:
		return false
	}
}

// Result is the extended termination result a group chat's termination rule
// produces each turn. Reason must always be set; the rest describe context
// specific to hard terminations.
type Result struct {
	// Result is whether the conversation should terminate this turn.
	Result bool

	// Reason is a human-readable explanation for the decision.
	Reason string

	// IsHardTerminated is true if termination is due to a blocking issue
	// rather than a successful completion.
	IsHardTerminated bool

	// Kind is the specific termination kind for downstream process control.
	Kind Kind

	// BlockingIssues lists the specific issues that caused a hard termination.
	BlockingIssues []string

	// RetrySuggestions lists suggested actions for resolving blocking issues.
	RetrySuggestions []string

	// ConfidenceLevel is the confidence in the termination decision, 0.0-1.0.
	ConfidenceLevel float64

	// Metadata carries additional context-specific data.
	Metadata map[string]any
}

// IsSuccessfulCompletion reports whether this represents successful work completion.
func (r Result) IsSuccessfulCompletion() bool {
	return r.Result && !r.IsHardTerminated && r.Kind == SoftCompletion
}

// IsBlockingTermination reports whether this represents a blocking termination.
func (r Result) IsBlockingTermination() bool {
	return r.Result && r.IsHardTerminated
}

// ShouldRetry reports whether the process should be retried based on termination kind.
func (r Result) ShouldRetry() bool {
	switch r.Kind {
	case HardError, HardTimeout, HardResourceLimit:
		return true
	default:
		return false
	}
}

// ShouldEscalate reports whether the issue should be escalated to manual intervention.
func (r Result) ShouldEscalate() bool {
	return r.IsHardTerminated && r.Kind == HardBlocked
}

// Continuation builds a decision that does not terminate the chat.
func Continuation(reason string, confidence float64) Result {
	return Result{
		Result:          false,
		Reason:          reason,
		Kind:            SoftCompletion,
		ConfidenceLevel: confidence,
	}
}

// SoftTermination builds a successful-completion termination result.
func SoftTermination(reason string, confidence float64) Result {
	return Result{
		Result:          true,
		Reason:          reason,
		IsHardTerminated: false,
		Kind:            SoftCompletion,
		ConfidenceLevel: confidence,
	}
}

// HardTermination builds a blocking termination result.
func HardTermination(reason string, kind Kind, blockingIssues, retrySuggestions []string, confidence float64) Result {
	if blockingIssues == nil {
		blockingIssues = []string{}
	}
	if retrySuggestions == nil {
		retrySuggestions = []string{}
	}
	return Result{
		Result:           true,
		Reason:           reason,
		IsHardTerminated: true,
		Kind:             kind,
		BlockingIssues:   blockingIssues,
		RetrySuggestions: retrySuggestions,
		ConfidenceLevel:  confidence,
	}
}
