// Package process drives a single migration job through its four phases in
// sequence -- Analysis, Design, YAML Generation, Documentation -- the way
// the original process topology routed "AnalysisCompleted", "DesignCompleted",
// and "YamlCompleted" events from one step to the next. There is no
// separate error-handler step: a phase that fails sets the job's failure
// state directly and the state machine stops, leaving failure reporting to
// the dispatcher and telemetry store.
package process

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aks-migrator/engine/pkg/config"
	"github.com/aks-migrator/engine/pkg/dispatcher"
	"github.com/aks-migrator/engine/pkg/failure"
	"github.com/aks-migrator/engine/pkg/observer"
	"github.com/aks-migrator/engine/pkg/phases"
	"github.com/aks-migrator/engine/pkg/telemetry"
)

// StartPayload is the job content a queued migration request carries: the
// source material to analyze. It is the sole input the Analysis phase needs;
// every later phase's input is the prior phase's own structured output.
type StartPayload struct {
	SourceFileFolder string   `json:"source_file_folder"`
	Files            []string `json:"files"`
}

// Machine drives the four-phase migration process for a single job. It
// satisfies dispatcher.ProcessExecutor.
type Machine struct {
	Config      *config.Config
	Registry    *phases.Registry
	Telemetry   telemetry.Store
	Tracker     *observer.Tracker
	TurnTimeout time.Duration
}

// NewMachine builds a Machine from its dependencies.
func NewMachine(cfg *config.Config, registry *phases.Registry, store telemetry.Store, tracker *observer.Tracker, turnTimeout time.Duration) *Machine {
	return &Machine{Config: cfg, Registry: registry, Telemetry: store, Tracker: tracker, TurnTimeout: turnTimeout}
}

// Execute runs a job's migration process end to end. It implements
// dispatcher.ProcessExecutor.
//
// The process id is the telemetry store's primary key: a job redelivered
// for a process id already recorded as completed is a no-op that
// acknowledges the message without mutating any state, and a job
// redelivered after a later phase failed resumes from the last phase that
// persisted its output rather than re-running phases that already
// succeeded.
func (m *Machine) Execute(ctx context.Context, job dispatcher.Job) *dispatcher.ExecutionResult {
	var payload StartPayload
	if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
		return &dispatcher.ExecutionResult{Status: dispatcher.ExecutionFailed, Error: fmt.Errorf("process: decoding job payload: %w", err), Retryable: false}
	}

	existing := m.existingRecord(ctx, job.ProcessID)
	if existing != nil && existing.Phase == "documentation" && existing.Status == "completed" {
		return &dispatcher.ExecutionResult{Status: dispatcher.ExecutionCompleted}
	}

	analysisOutput, execResult := m.resumeOrRunAnalysis(ctx, job.ProcessID, payload, existing)
	if execResult != nil {
		return execResult
	}

	designOutput, execResult := m.resumeOrRunDesign(ctx, job.ProcessID, analysisOutput, existing)
	if execResult != nil {
		return execResult
	}

	yamlOutput, execResult := m.resumeOrRunYamlGeneration(ctx, job.ProcessID, designOutput, existing)
	if execResult != nil {
		return execResult
	}

	_, execResult = m.runDocumentation(ctx, job.ProcessID, designOutput, yamlOutput)
	if execResult != nil {
		return execResult
	}

	m.recordTransition(ctx, job.ProcessID, "documentation", "completed")
	return &dispatcher.ExecutionResult{Status: dispatcher.ExecutionCompleted}
}

// existingRecord looks up any telemetry already recorded for processID. A
// missing Telemetry store or a not-found record are both treated as "no
// prior state" rather than an error: a fresh process simply has nothing to
// resume from.
func (m *Machine) existingRecord(ctx context.Context, processID string) *telemetry.ProcessRecord {
	if m.Telemetry == nil {
		return nil
	}
	record, err := m.Telemetry.Get(ctx, processID)
	if err != nil {
		return nil
	}
	return record
}

// resumeOrRunAnalysis returns the prior run's persisted output when present,
// skipping the phase entirely; otherwise it runs and persists it.
func (m *Machine) resumeOrRunAnalysis(ctx context.Context, processID string, payload StartPayload, existing *telemetry.ProcessRecord) (phases.AnalysisOutput, *dispatcher.ExecutionResult) {
	if raw, ok := phaseOutput(existing, "analysis"); ok {
		var output phases.AnalysisOutput
		if err := json.Unmarshal([]byte(raw), &output); err == nil {
			return output, nil
		}
	}

	_, output, execResult := m.runAnalysis(ctx, processID, payload)
	if execResult != nil {
		return phases.AnalysisOutput{}, execResult
	}
	m.recordPhaseOutput(ctx, processID, "analysis", output)
	return output, nil
}

func (m *Machine) resumeOrRunDesign(ctx context.Context, processID string, analysis phases.AnalysisOutput, existing *telemetry.ProcessRecord) (phases.DesignOutput, *dispatcher.ExecutionResult) {
	if raw, ok := phaseOutput(existing, "design"); ok {
		var output phases.DesignOutput
		if err := json.Unmarshal([]byte(raw), &output); err == nil {
			return output, nil
		}
	}

	_, output, execResult := m.runDesign(ctx, processID, analysis)
	if execResult != nil {
		return phases.DesignOutput{}, execResult
	}
	m.recordPhaseOutput(ctx, processID, "design", output)
	return output, nil
}

func (m *Machine) resumeOrRunYamlGeneration(ctx context.Context, processID string, design phases.DesignOutput, existing *telemetry.ProcessRecord) (phases.YamlOutput, *dispatcher.ExecutionResult) {
	if raw, ok := phaseOutput(existing, "yaml_generation"); ok {
		var output phases.YamlOutput
		if err := json.Unmarshal([]byte(raw), &output); err == nil {
			return output, nil
		}
	}

	_, output, execResult := m.runYamlGeneration(ctx, processID, design)
	if execResult != nil {
		return phases.YamlOutput{}, execResult
	}
	m.recordPhaseOutput(ctx, processID, "yaml_generation", output)
	return output, nil
}

func phaseOutput(existing *telemetry.ProcessRecord, phase string) (string, bool) {
	if existing == nil || existing.PhaseOutputs == nil {
		return "", false
	}
	raw, ok := existing.PhaseOutputs[phase]
	return raw, ok
}

func (m *Machine) recordPhaseOutput(ctx context.Context, processID, phase string, output any) {
	if m.Telemetry == nil {
		return
	}
	encoded, err := json.Marshal(output)
	if err != nil {
		return
	}
	_ = m.Telemetry.RecordPhaseOutput(ctx, processID, phase, string(encoded))
}

func (m *Machine) stepInput(processID, phase string) (phases.StepInput, error) {
	roster, err := m.Config.GetRoster(phase)
	if err != nil {
		return phases.StepInput{}, fmt.Errorf("process: resolving roster for phase %s: %w", phase, err)
	}
	if roster.MaxTurns <= 0 && m.Config.Defaults != nil && m.Config.Defaults.MaxIterations > 0 {
		withDefault := *roster
		withDefault.MaxTurns = m.Config.Defaults.MaxIterations
		roster = &withDefault
	}
	return phases.StepInput{
		ProcessID:   processID,
		Roster:      roster,
		Registry:    m.Registry,
		Tracker:     m.Tracker,
		TurnTimeout: m.TurnTimeout,
	}, nil
}

func (m *Machine) recordTransition(ctx context.Context, processID, phase, status string) {
	if m.Telemetry == nil {
		return
	}
	_ = m.Telemetry.RecordPhaseTransition(ctx, processID, phase, status)
}

func (m *Machine) runAnalysis(ctx context.Context, processID string, payload StartPayload) (*phases.StepResult, phases.AnalysisOutput, *dispatcher.ExecutionResult) {
	m.recordTransition(ctx, processID, "analysis", "started")

	input, err := m.stepInput(processID, "analysis")
	if err != nil {
		return nil, phases.AnalysisOutput{}, &dispatcher.ExecutionResult{Status: dispatcher.ExecutionFailed, Error: err, Retryable: false}
	}

	result, err := phases.RunAnalysis(ctx, input, phases.AnalysisInput{ProcessID: processID, SourceFileFolder: payload.SourceFileFolder, Files: payload.Files})
	if err != nil {
		return nil, phases.AnalysisOutput{}, &dispatcher.ExecutionResult{Status: dispatcher.ExecutionFailed, Error: err, Retryable: true}
	}
	if execResult := m.handleStepFailure(ctx, processID, "analysis", result.Failure); execResult != nil {
		return result, phases.AnalysisOutput{}, execResult
	}

	output, err := phases.ParseAnalysisOutput(result.FinalContent)
	if err != nil {
		return result, phases.AnalysisOutput{}, m.handleParseFailure(ctx, processID, "analysis", err)
	}

	m.recordTransition(ctx, processID, "analysis", "completed")
	return result, output, nil
}

func (m *Machine) runDesign(ctx context.Context, processID string, analysis phases.AnalysisOutput) (*phases.StepResult, phases.DesignOutput, *dispatcher.ExecutionResult) {
	m.recordTransition(ctx, processID, "design", "started")

	input, err := m.stepInput(processID, "design")
	if err != nil {
		return nil, phases.DesignOutput{}, &dispatcher.ExecutionResult{Status: dispatcher.ExecutionFailed, Error: err, Retryable: false}
	}

	result, err := phases.RunDesign(ctx, input, phases.DesignInput{ProcessID: processID, Analysis: analysis})
	if err != nil {
		return nil, phases.DesignOutput{}, &dispatcher.ExecutionResult{Status: dispatcher.ExecutionFailed, Error: err, Retryable: true}
	}
	if execResult := m.handleStepFailure(ctx, processID, "design", result.Failure); execResult != nil {
		return result, phases.DesignOutput{}, execResult
	}

	output, err := phases.ParseDesignOutput(result.FinalContent)
	if err != nil {
		return result, phases.DesignOutput{}, m.handleParseFailure(ctx, processID, "design", err)
	}

	m.recordTransition(ctx, processID, "design", "completed")
	return result, output, nil
}

func (m *Machine) runYamlGeneration(ctx context.Context, processID string, design phases.DesignOutput) (*phases.StepResult, phases.YamlOutput, *dispatcher.ExecutionResult) {
	m.recordTransition(ctx, processID, "yaml_generation", "started")

	input, err := m.stepInput(processID, "yaml_generation")
	if err != nil {
		return nil, phases.YamlOutput{}, &dispatcher.ExecutionResult{Status: dispatcher.ExecutionFailed, Error: err, Retryable: false}
	}

	result, err := phases.RunYamlGeneration(ctx, input, phases.YamlGenerationInput{ProcessID: processID, Design: design})
	if err != nil {
		return nil, phases.YamlOutput{}, &dispatcher.ExecutionResult{Status: dispatcher.ExecutionFailed, Error: err, Retryable: true}
	}
	if execResult := m.handleStepFailure(ctx, processID, "yaml_generation", result.Failure); execResult != nil {
		return result, phases.YamlOutput{}, execResult
	}

	output, err := phases.ParseYamlOutput(result.FinalContent)
	if err != nil {
		return result, phases.YamlOutput{}, m.handleParseFailure(ctx, processID, "yaml_generation", err)
	}

	m.recordTransition(ctx, processID, "yaml_generation", "completed")
	return result, output, nil
}

func (m *Machine) runDocumentation(ctx context.Context, processID string, design phases.DesignOutput, yaml phases.YamlOutput) (*phases.StepResult, *dispatcher.ExecutionResult) {
	m.recordTransition(ctx, processID, "documentation", "started")

	input, err := m.stepInput(processID, "documentation")
	if err != nil {
		return nil, &dispatcher.ExecutionResult{Status: dispatcher.ExecutionFailed, Error: err, Retryable: false}
	}

	result, err := phases.RunDocumentation(ctx, input, phases.DocumentationInput{ProcessID: processID, Design: design, Yaml: yaml})
	if err != nil {
		return nil, &dispatcher.ExecutionResult{Status: dispatcher.ExecutionFailed, Error: err, Retryable: true}
	}
	if execResult := m.handleStepFailure(ctx, processID, "documentation", result.Failure); execResult != nil {
		return result, execResult
	}
	return result, nil
}

// handleStepFailure records a step's failure state to telemetry and
// translates it into a terminal ExecutionResult, or returns nil when the
// step did not fail.
func (m *Machine) handleStepFailure(ctx context.Context, processID, phase string, state *failure.StepFailureState) *dispatcher.ExecutionResult {
	if state == nil {
		return nil
	}

	if m.Telemetry != nil {
		_ = m.Telemetry.RecordTermination(ctx, processID, fmt.Sprintf("%s: %s", phase, state.Reason))
	}
	m.recordTransition(ctx, processID, phase, "failed")

	return &dispatcher.ExecutionResult{
		Status:    dispatcher.ExecutionFailed,
		Error:     fmt.Errorf("process: phase %s did not complete: %s", phase, state.Reason),
		Retryable: retryable(state),
	}
}

func (m *Machine) handleParseFailure(ctx context.Context, processID, phase string, err error) *dispatcher.ExecutionResult {
	m.recordTransition(ctx, processID, phase, "failed")
	if m.Telemetry != nil {
		_ = m.Telemetry.RecordTermination(ctx, processID, fmt.Sprintf("%s: malformed output: %s", phase, err.Error()))
	}
	return &dispatcher.ExecutionResult{
		Status:    dispatcher.ExecutionFailed,
		Error:     fmt.Errorf("process: phase %s produced malformed output: %w", phase, err),
		Retryable: true,
	}
}

// retryable decides whether the dispatcher should requeue the job with
// backoff or dead-letter it immediately, once the phase's own in-process
// retry budget (see pkg/phases.runStep) is exhausted. It defers to
// failure.StepFailureState.Retryable: a blocking termination means the
// process cannot succeed without a human resolving the blocker, so it goes
// straight to the dead-letter queue.
func retryable(state *failure.StepFailureState) bool {
	return state.Retryable()
}
