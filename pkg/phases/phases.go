// Package phases implements the four migration phase steps -- analysis,
// design, YAML generation, and documentation -- each of which drives a
// roster's group chat to a structured result. A phase step has a single
// responsibility and communicates with the process state machine only
// through its StepResult: it never reaches into another phase's state.
package phases

import (
	"context"
	"fmt"
	"time"

	"github.com/aks-migrator/engine/pkg/agent"
	"github.com/aks-migrator/engine/pkg/config"
	"github.com/aks-migrator/engine/pkg/failure"
	"github.com/aks-migrator/engine/pkg/groupchat"
	"github.com/aks-migrator/engine/pkg/observer"
)

// Registry resolves role names from a roster to the concrete agents that
// play them. Built once at startup from the configured LLM clients and
// handed to every phase step; a phase step never constructs an agent.Agent
// itself.
type Registry struct {
	agents map[string]agent.Agent
}

// NewRegistry builds a Registry from a role-name-to-agent map.
func NewRegistry(agents map[string]agent.Agent) *Registry {
	copied := make(map[string]agent.Agent, len(agents))
	for k, v := range agents {
		copied[k] = v
	}
	return &Registry{agents: copied}
}

// Resolve looks up a roster's expert roles plus its manager role, and
// reports the first role name missing from the registry.
func (r *Registry) Resolve(roster *config.RosterConfig) (experts map[string]agent.Agent, manager agent.Agent, err error) {
	experts = make(map[string]agent.Agent, len(roster.Experts))
	for _, name := range roster.Experts {
		a, ok := r.agents[name]
		if !ok {
			return nil, nil, fmt.Errorf("phases: no agent registered for expert role %q", name)
		}
		experts[name] = a
	}
	mgr, ok := r.agents[roster.Manager]
	if !ok {
		return nil, nil, fmt.Errorf("phases: no agent registered for manager role %q", roster.Manager)
	}
	return experts, mgr, nil
}

// StepInput carries everything a phase step needs beyond its own
// phase-specific seed content.
type StepInput struct {
	ProcessID   string
	Roster      *config.RosterConfig
	Registry    *Registry
	Tracker     *observer.Tracker
	TurnTimeout time.Duration
}

// StepResult is the outcome of a single phase step, independent of which
// phase produced it. Callers that need the phase-specific structured
// payload parse FinalContent themselves (see ParseAnalysisOutput and its
// siblings).
type StepResult struct {
	Phase        string
	Outcome      *groupchat.Outcome
	FinalContent string
	Failure      *failure.StepFailureState
}

// runStep drives seed through the roster's group chat, retrying the whole
// chat in-process while the failure is retryable and the roster's
// PhaseRetry budget (default 1, i.e. no retry) isn't exhausted, and
// classifies the final attempt's outcome into a StepResult. inputFiles
// feeds the hard-termination failure context (see
// failure.CollectHardTermination).
func runStep(ctx context.Context, in StepInput, seed []agent.Message, inputFiles []string) (*StepResult, error) {
	if in.Roster == nil {
		return nil, fmt.Errorf("phases: roster for process %s is nil", in.ProcessID)
	}

	attempts := in.Roster.PhaseRetry
	if attempts <= 0 {
		attempts = 1
	}

	var result *StepResult
	for attempt := 1; attempt <= attempts; attempt++ {
		var err error
		result, err = attemptStep(ctx, in, seed, inputFiles)
		if err != nil {
			return nil, err
		}
		if result.Failure == nil || !result.Failure.Retryable() || attempt == attempts {
			return result, nil
		}
	}
	return result, nil
}

// attemptStep runs the roster's group chat once and classifies the outcome
// into a StepResult, building a failure.StepFailureState whenever the chat
// did not reach a successful completion.
func attemptStep(ctx context.Context, in StepInput, seed []agent.Message, inputFiles []string) (*StepResult, error) {
	experts, manager, err := in.Registry.Resolve(in.Roster)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	outcome, err := groupchat.Run(ctx, in.ProcessID, groupchat.Config{
		Phase:       in.Roster.Phase,
		Experts:     experts,
		ExpertOrder: in.Roster.Experts,
		Manager:     manager,
		MaxTurns:    in.Roster.MaxTurns,
		MaxMessages: in.Roster.MaxMessages,
		TurnTimeout: in.TurnTimeout,
		Tracker:     in.Tracker,
	}, seed)
	elapsed := time.Since(start)

	if err != nil {
		sys := failure.CollectSystemFailure(err, in.Roster.Phase, in.ProcessID, in.Roster.Phase, InputContext{}.toFailureContext())
		state := failure.NewStepFailureState(err.Error(), elapsed, inputFiles, &sys, nil)
		return &StepResult{Phase: in.Roster.Phase, Failure: &state}, nil
	}

	result := &StepResult{Phase: in.Roster.Phase, Outcome: outcome, FinalContent: lastContent(outcome, len(seed))}

	if !outcome.Termination.IsSuccessfulCompletion() {
		hard := failure.CollectHardTermination(outcome.Termination, inputFiles)
		state := failure.NewStepFailureState(outcome.Termination.Reason, elapsed, inputFiles, nil, &hard)
		result.Failure = &state
	}

	return result, nil
}

// lastContent returns the latest expert message's content, the phase's raw
// structured-output candidate before a phase-specific Parse* call. Past the
// seed, the chat appends the manager's message and then the selected
// expert's reply on each turn, so expert replies sit at odd offsets from
// seedLen; the final message of a completed chat is the manager's
// termination decision, not phase output.
func lastContent(outcome *groupchat.Outcome, seedLen int) string {
	if outcome == nil {
		return ""
	}
	for i := len(outcome.Messages) - 1; i >= seedLen; i-- {
		if (i-seedLen)%2 == 1 {
			return outcome.Messages[i].Content
		}
	}
	return ""
}

// InputContext mirrors failure.InputContext but stays local to phases so
// each phase step can build it from its own prior-phase state without
// importing failure's field names directly into its seed-building code.
type InputContext struct {
	SourceFileFolder  string
	AnalyzedFiles     []string
	PlatformDetected  string
	HasAnalysisResult bool
	HasDesignResult   bool
}

func (c InputContext) toFailureContext() failure.InputContext {
	return failure.InputContext{
		SourceFileFolder:  c.SourceFileFolder,
		AnalyzedFiles:     c.AnalyzedFiles,
		PlatformDetected:  c.PlatformDetected,
		HasAnalysisResult: c.HasAnalysisResult,
		HasDesignResult:   c.HasDesignResult,
	}
}

// systemSeed builds the single system message that opens a phase's group
// chat, describing the task and the context carried forward from prior
// phases.
func systemSeed(task string) []agent.Message {
	return []agent.Message{{Role: agent.RoleSystem, Content: task}}
}
