package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubController struct {
	result *ExecutionResult
	err    error
	calls  int
}

func (c *stubController) Run(ctx context.Context, processID string, messages []Message) (*ExecutionResult, error) {
	c.calls++
	return c.result, c.err
}

type stubRecorder struct {
	marked []string
	err    error
}

func (r *stubRecorder) MarkAgentActive(ctx context.Context, processID, agentName string) error {
	r.marked = append(r.marked, agentName)
	return r.err
}

func TestNewBaseAgentPanicsOnNilController(t *testing.T) {
	assert.Panics(t, func() {
		NewBaseAgent("expert", nil, nil)
	})
}

func TestExecuteMarksAgentActiveBeforeRunning(t *testing.T) {
	rec := &stubRecorder{}
	ctrl := &stubController{result: &ExecutionResult{Status: ExecutionStatusCompleted, Message: Message{Content: "done"}}}
	a := NewBaseAgent("platform-expert", ctrl, rec)

	result, err := a.Execute(context.Background(), "proc-1", nil)

	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusCompleted, result.Status)
	assert.Equal(t, []string{"platform-expert"}, rec.marked)
	assert.Equal(t, 1, ctrl.calls)
}

func TestExecuteClassifiesTimeoutError(t *testing.T) {
	ctrl := &stubController{err: context.DeadlineExceeded}
	a := NewBaseAgent("expert", ctrl, nil)

	result, err := a.Execute(context.Background(), "proc-1", nil)

	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusTimedOut, result.Status)
}

func TestExecuteClassifiesCancelledError(t *testing.T) {
	ctrl := &stubController{err: context.Canceled}
	a := NewBaseAgent("expert", ctrl, nil)

	result, err := a.Execute(context.Background(), "proc-1", nil)

	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusCancelled, result.Status)
}

func TestExecuteClassifiesGenericError(t *testing.T) {
	ctrl := &stubController{err: errors.New("boom")}
	a := NewBaseAgent("expert", ctrl, nil)

	result, err := a.Execute(context.Background(), "proc-1", nil)

	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusFailed, result.Status)
}

func TestExecuteFailsWhenControllerReturnsNilResult(t *testing.T) {
	ctrl := &stubController{}
	a := NewBaseAgent("expert", ctrl, nil)

	result, err := a.Execute(context.Background(), "proc-1", nil)

	require.NoError(t, err)
	assert.Equal(t, ExecutionStatusFailed, result.Status)
	require.Error(t, result.Error)
}

func TestExecutePropagatesRecorderFailure(t *testing.T) {
	rec := &stubRecorder{err: errors.New("telemetry store unavailable")}
	ctrl := &stubController{result: &ExecutionResult{Status: ExecutionStatusCompleted}}
	a := NewBaseAgent("expert", ctrl, rec)

	_, err := a.Execute(context.Background(), "proc-1", nil)

	require.Error(t, err)
	assert.Equal(t, 0, ctrl.calls)
}

func TestInvokeUnwrapsExecutionResult(t *testing.T) {
	ctrl := &stubController{result: &ExecutionResult{
		Status:  ExecutionStatusCompleted,
		Message: Message{Role: RoleAssistant, Content: "the analysis is complete"},
	}}
	a := NewBaseAgent("expert", ctrl, nil)

	msg, err := a.Invoke(context.Background(), []Message{{Role: RoleUser, Content: "go"}})

	require.NoError(t, err)
	assert.Equal(t, "the analysis is complete", msg.Content)
}

func TestInvokeReturnsResultError(t *testing.T) {
	ctrl := &stubController{result: &ExecutionResult{Status: ExecutionStatusFailed, Error: errors.New("controller failure")}}
	a := NewBaseAgent("expert", ctrl, nil)

	_, err := a.Invoke(context.Background(), nil)

	assert.EqualError(t, err, "controller failure")
}
