package agent

import (
	"context"
	"errors"
	"fmt"
)

// ActivityRecorder is the narrow telemetry surface BaseAgent writes
// execution-state transitions to. Satisfied by telemetry.Store.
type ActivityRecorder interface {
	MarkAgentActive(ctx context.Context, processID, agentName string) error
}

// Controller defines the iteration strategy interface. Each controller
// implements a different conversational pattern (single-call, iterating
// tool-use loop, and so on).
type Controller interface {
	Run(ctx context.Context, processID string, messages []Message) (*ExecutionResult, error)
}

// BaseAgent provides the common agent implementation shared by every role.
// It delegates iteration logic to a controller (strategy pattern).
type BaseAgent struct {
	name       string
	controller Controller
	recorder   ActivityRecorder
}

// NewBaseAgent creates an agent with the given name and iteration controller.
// Panics if controller is nil (programming error in the factory).
func NewBaseAgent(name string, controller Controller, recorder ActivityRecorder) *BaseAgent {
	if controller == nil {
		panic("NewBaseAgent: controller must not be nil")
	}
	return &BaseAgent{name: name, controller: controller, recorder: recorder}
}

// Name returns the agent's role name.
func (a *BaseAgent) Name() string {
	return a.name
}

// Invoke implements Agent by delegating to Execute and unwrapping its result.
func (a *BaseAgent) Invoke(ctx context.Context, messages []Message) (Message, error) {
	result, err := a.Execute(ctx, "", messages)
	if err != nil {
		return Message{}, err
	}
	if result.Error != nil {
		return Message{}, result.Error
	}
	return result.Message, nil
}

// Execute runs the agent's turn by delegating to the controller.
func (a *BaseAgent) Execute(ctx context.Context, processID string, messages []Message) (*ExecutionResult, error) {
	if a.recorder != nil {
		if err := a.recorder.MarkAgentActive(ctx, processID, a.name); err != nil {
			return nil, fmt.Errorf("failed to mark agent active: %w", err)
		}
	}

	result, err := a.controller.Run(ctx, processID, messages)

	// Use errors.Is on the returned error (not ctx.Err()) so a concurrent
	// context expiration doesn't misclassify an unrelated failure as timed-out.
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &ExecutionResult{Status: ExecutionStatusTimedOut, Error: err}, nil
		}
		if errors.Is(err, context.Canceled) {
			return &ExecutionResult{Status: ExecutionStatusCancelled, Error: err}, nil
		}
		return &ExecutionResult{Status: ExecutionStatusFailed, Error: err}, nil
	}

	if result == nil {
		return &ExecutionResult{
			Status: ExecutionStatusFailed,
			Error:  fmt.Errorf("controller returned nil result"),
		}, nil
	}

	return result, nil
}
