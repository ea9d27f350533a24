package failure

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aks-migrator/engine/pkg/termination"
)

func TestCollectSystemFailure(t *testing.T) {
	err := errors.New("boom")
	ctx := InputContext{
		SourceFileFolder:  "blob://cluster-export",
		AnalyzedFiles:     []string{"deployment.yaml", "service.yaml"},
		PlatformDetected:  "eks",
		HasAnalysisResult: true,
	}

	sys := CollectSystemFailure(err, "platform-expert", "proc-1", "analysis", ctx)

	assert.Equal(t, "proc-1", sys.ProcessID)
	assert.Equal(t, "analysis", sys.StepPhase)
	assert.Equal(t, "boom", sys.ErrorMessage)
	assert.Contains(t, sys.InputContextSummary, "source: blob://cluster-export")
	assert.Contains(t, sys.InputContextSummary, "files: 2")
	assert.Contains(t, sys.InputContextSummary, "platform: eks")
	assert.Contains(t, sys.InputContextSummary, "has_analysis_result")
	assert.NotEmpty(t, sys.StackTrace)
	assert.WithinDuration(t, time.Now().UTC(), sys.Timestamp, time.Minute)
}

func TestSummarizeInputContextEmpty(t *testing.T) {
	sys := CollectSystemFailure(errors.New("x"), "step", "proc", "phase", InputContext{})
	assert.Equal(t, "no context available", sys.InputContextSummary)
}

func TestCollectHardTerminationEscalation(t *testing.T) {
	tests := []struct {
		name          string
		result        termination.Result
		wantManual    bool
		wantEscalation EscalationLevel
	}{
		{
			name:           "blocked escalates critical",
			result:         termination.HardTermination("missing subscription access", termination.HardBlocked, []string{"no rbac"}, nil, 0.9),
			wantManual:     true,
			wantEscalation: EscalationCritical,
		},
		{
			name:           "error escalates high",
			result:         termination.HardTermination("panic in tool call", termination.HardError, nil, nil, 0.9),
			wantManual:     true,
			wantEscalation: EscalationHigh,
		},
		{
			name:           "low confidence escalates regardless of kind",
			result:         termination.HardTermination("uncertain", termination.HardResourceLimit, nil, nil, 0.2),
			wantManual:     true,
			wantEscalation: EscalationHigh,
		},
		{
			name:           "many blocking issues force manual intervention",
			result:         termination.HardTermination("several problems", termination.HardResourceLimit, []string{"a", "b", "c"}, nil, 0.9),
			wantManual:     true,
			wantEscalation: EscalationLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hard := CollectHardTermination(tt.result, []string{"deployment.yaml", "deployment.yaml"})
			assert.Equal(t, tt.wantManual, hard.ManualInterventionRequired)
			assert.Equal(t, tt.wantEscalation, hard.EscalationLevel)
			assert.Equal(t, []string{"deployment.yaml"}, hard.InputFiles, "InputFiles should be deduplicated")
		})
	}
}

func TestNewStepFailureStateNormalizesNilFiles(t *testing.T) {
	state := NewStepFailureState("timed out", 5*time.Second, nil, nil, nil)
	require.NotNil(t, state.FilesAttempted)
	assert.Empty(t, state.FilesAttempted)
	assert.Equal(t, "timed out", state.Reason)
}
