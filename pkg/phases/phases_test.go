package phases

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aks-migrator/engine/pkg/agent"
	"github.com/aks-migrator/engine/pkg/config"
	"github.com/aks-migrator/engine/pkg/termination"
)

type scriptedAgent struct {
	name    string
	replies []string
	calls   int
}

func (a *scriptedAgent) Name() string { return a.name }

func (a *scriptedAgent) Invoke(ctx context.Context, messages []agent.Message) (agent.Message, error) {
	i := a.calls
	a.calls++
	content := ""
	if i < len(a.replies) {
		content = a.replies[i]
	}
	return agent.Message{Role: agent.RoleAssistant, Name: a.name, Content: content}, nil
}

type managerReply struct {
	NextAgent string `json:"next_agent"`
	Terminate bool   `json:"terminate"`
	Reason    string `json:"reason"`
}

func decisionJSON(t *testing.T, r managerReply) string {
	t.Helper()
	b, err := json.Marshal(r)
	require.NoError(t, err)
	return string(b)
}

func testRoster(phase, expert, manager string) *config.RosterConfig {
	return &config.RosterConfig{Phase: phase, Experts: []string{expert}, Manager: manager, MaxTurns: 5}
}

func TestRunAnalysisParsesStructuredOutput(t *testing.T) {
	output := AnalysisOutput{Result: "Success", Summary: "found 12 resources", PlatformDetected: "eks"}
	outputJSON, err := json.Marshal(output)
	require.NoError(t, err)

	manager := &scriptedAgent{name: "analysis_manager", replies: []string{
		decisionJSON(t, managerReply{NextAgent: "platform_detector"}),
		decisionJSON(t, managerReply{Terminate: true, Reason: "analysis complete"}),
	}}
	expert := &scriptedAgent{name: "platform_detector", replies: []string{string(outputJSON)}}

	registry := NewRegistry(map[string]agent.Agent{"analysis_manager": manager, "platform_detector": expert})
	step := StepInput{ProcessID: "proc-1", Roster: testRoster("analysis", "platform_detector", "analysis_manager"), Registry: registry}

	result, err := RunAnalysis(context.Background(), step, AnalysisInput{ProcessID: "proc-1", SourceFileFolder: "source/", Files: []string{"deployment.yaml"}})
	require.NoError(t, err)
	require.Nil(t, result.Failure)

	parsed, err := ParseAnalysisOutput(result.FinalContent)
	require.NoError(t, err)
	assert.Equal(t, "eks", parsed.PlatformDetected)
	assert.Equal(t, 1, expert.calls)
}

func TestRunDesignCarriesAnalysisForward(t *testing.T) {
	manager := &scriptedAgent{name: "design_manager", replies: []string{
		decisionJSON(t, managerReply{Terminate: true, Reason: "design complete"}),
	}}
	expert := &scriptedAgent{name: "architecture_expert"}

	registry := NewRegistry(map[string]agent.Agent{"design_manager": manager, "architecture_expert": expert})
	step := StepInput{ProcessID: "proc-2", Roster: testRoster("design", "architecture_expert", "design_manager"), Registry: registry}

	analysis := AnalysisOutput{PlatformDetected: "gke", AnalyzedFiles: []string{"a.yaml", "b.yaml"}}
	result, err := RunDesign(context.Background(), step, DesignInput{ProcessID: "proc-2", Analysis: analysis})
	require.NoError(t, err)
	require.NotNil(t, result.Outcome)
	assert.Contains(t, result.Outcome.Messages[1].Content, "gke")
}

func TestRunYamlGenerationProducesFailureOnHardTermination(t *testing.T) {
	manager := &scriptedAgent{name: "yaml_manager", replies: []string{
		decisionJSON(t, managerReply{NextAgent: "unknown_expert"}),
	}}
	expert := &scriptedAgent{name: "manifest_writer"}

	registry := NewRegistry(map[string]agent.Agent{"yaml_manager": manager, "manifest_writer": expert})
	step := StepInput{ProcessID: "proc-3", Roster: testRoster("yaml_generation", "manifest_writer", "yaml_manager"), Registry: registry}

	result, err := RunYamlGeneration(context.Background(), step, YamlGenerationInput{ProcessID: "proc-3"})
	require.NoError(t, err)
	require.NotNil(t, result.Failure)
	require.NotNil(t, result.Failure.HardTerminationContext)
}

func TestRunDocumentationReferencesPriorPhases(t *testing.T) {
	manager := &scriptedAgent{name: "documentation_manager", replies: []string{
		decisionJSON(t, managerReply{Terminate: true, Reason: "docs complete"}),
	}}
	expert := &scriptedAgent{name: "technical_writer"}

	registry := NewRegistry(map[string]agent.Agent{"documentation_manager": manager, "technical_writer": expert})
	step := StepInput{ProcessID: "proc-4", Roster: testRoster("documentation", "technical_writer", "documentation_manager"), Registry: registry}

	design := DesignOutput{Outputs: []DesignOutputFile{{File: "architecture.md"}}}
	yaml := YamlOutput{ConvertedFiles: []ConvertedFile{{ConvertedFile: "deployment.aks.yaml"}}}
	result, err := RunDocumentation(context.Background(), step, DocumentationInput{ProcessID: "proc-4", Design: design, Yaml: yaml})
	require.NoError(t, err)
	require.Nil(t, result.Failure)
	assert.Contains(t, result.Outcome.Messages[1].Content, "architecture.md")
	assert.Contains(t, result.Outcome.Messages[2].Content, "deployment.aks.yaml")
}

func TestRunStepRetriesAfterRetryableFailure(t *testing.T) {
	manager := &scriptedAgent{name: "analysis_manager", replies: []string{
		decisionJSON(t, managerReply{NextAgent: "ghost"}),
		decisionJSON(t, managerReply{NextAgent: "platform_detector"}),
		decisionJSON(t, managerReply{Terminate: true, Reason: "analysis complete"}),
	}}
	output := AnalysisOutput{Result: "Success", PlatformDetected: "eks"}
	outputJSON, err := json.Marshal(output)
	require.NoError(t, err)
	expert := &scriptedAgent{name: "platform_detector", replies: []string{string(outputJSON)}}

	registry := NewRegistry(map[string]agent.Agent{"analysis_manager": manager, "platform_detector": expert})
	roster := testRoster("analysis", "platform_detector", "analysis_manager")
	roster.PhaseRetry = 2
	step := StepInput{ProcessID: "proc-5", Roster: roster, Registry: registry}

	result, err := RunAnalysis(context.Background(), step, AnalysisInput{ProcessID: "proc-5", SourceFileFolder: "source/", Files: []string{"deployment.yaml"}})
	require.NoError(t, err)
	require.Nil(t, result.Failure, "the first attempt's hard_error is retryable and should be absorbed by the retry loop")

	parsed, err := ParseAnalysisOutput(result.FinalContent)
	require.NoError(t, err)
	assert.Equal(t, "eks", parsed.PlatformDetected)
	assert.Equal(t, 1, expert.calls)
}

func TestRunStepStopsAfterExhaustingPhaseRetryBudget(t *testing.T) {
	manager := &scriptedAgent{name: "analysis_manager", replies: []string{
		decisionJSON(t, managerReply{NextAgent: "ghost"}),
		decisionJSON(t, managerReply{NextAgent: "ghost"}),
	}}
	expert := &scriptedAgent{name: "platform_detector"}

	registry := NewRegistry(map[string]agent.Agent{"analysis_manager": manager, "platform_detector": expert})
	roster := testRoster("analysis", "platform_detector", "analysis_manager")
	roster.PhaseRetry = 2
	step := StepInput{ProcessID: "proc-6", Roster: roster, Registry: registry}

	result, err := RunAnalysis(context.Background(), step, AnalysisInput{ProcessID: "proc-6", SourceFileFolder: "source/", Files: []string{"deployment.yaml"}})
	require.NoError(t, err)
	require.NotNil(t, result.Failure)
	assert.Equal(t, termination.HardError, result.Failure.HardTerminationContext.TerminationKind)
}

func TestRegistryResolveReportsMissingRole(t *testing.T) {
	registry := NewRegistry(map[string]agent.Agent{"x": &scriptedAgent{name: "x"}})
	_, _, err := registry.Resolve(testRoster("analysis", "missing_role", "x"))
	assert.Error(t, err)
}
