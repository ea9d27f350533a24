package agent

import "context"

// LLMClient is the interface for calling the model service (§6). The model
// service itself, and the concrete gRPC/protobuf wire format it speaks, are
// an external concern; the engine only depends on this interface. This
// module contains no implementation of it: the deployment supplies one.
type LLMClient interface {
	// Complete sends a conversation to the model and returns its response.
	Complete(ctx context.Context, input *CompletionInput) (*CompletionOutput, error)

	// Close releases the underlying connection.
	Close() error
}

// CompletionInput is a single completion request.
type CompletionInput struct {
	ProcessID string
	AgentName string
	Messages  []Message
	Tools     []ToolDefinition // nil = no tools
	Model     string
}

// CompletionOutput is the model's response to a CompletionInput.
type CompletionOutput struct {
	Message Message
	Usage   TokenUsage
}

// ToolDefinition describes a tool available to the model.
type ToolDefinition struct {
	Name             string
	Description      string
	ParametersSchema string // JSON Schema
}

// ToolCall represents the model's request to call a tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON
}
