package agent

import (
	"context"
	"fmt"
)

// ToolLoopController is the default Controller: it sends the conversation
// to the model, and for as long as the model keeps requesting tool calls,
// runs them through the registry and feeds their results back, the way an
// MCP-style tool-calling loop works. A model turn that returns no tool
// calls ends the loop with that turn's message as the agent's result.
type ToolLoopController struct {
	Model    string
	Client   LLMClient
	Tools    ToolRegistry
	MaxSteps int // 0 means DefaultMaxToolSteps
}

// DefaultMaxToolSteps bounds a single agent turn's internal tool-call loop,
// independent of the group chat's own turn budget.
const DefaultMaxToolSteps = 8

// NewToolLoopController builds a ToolLoopController for one model/client/tool
// registry combination, shared across every agent role configured to use it.
func NewToolLoopController(model string, client LLMClient, tools ToolRegistry) *ToolLoopController {
	return &ToolLoopController{Model: model, Client: client, Tools: tools}
}

// Run implements Controller.
func (c *ToolLoopController) Run(ctx context.Context, processID string, messages []Message) (*ExecutionResult, error) {
	maxSteps := c.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxToolSteps
	}

	conversation := append([]Message{}, messages...)
	var totalUsage TokenUsage

	for step := 0; step < maxSteps; step++ {
		output, err := c.Client.Complete(ctx, &CompletionInput{
			ProcessID: processID,
			Messages:  conversation,
			Tools:     c.toolDefinitions(),
			Model:     c.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("agent: completion request failed: %w", err)
		}
		totalUsage = addUsage(totalUsage, output.Usage)

		if len(output.Message.ToolCalls) == 0 {
			return &ExecutionResult{Status: ExecutionStatusCompleted, Message: output.Message, TokensUsed: totalUsage}, nil
		}

		conversation = append(conversation, output.Message)
		for _, call := range output.Message.ToolCalls {
			result, err := c.invokeTool(ctx, call)
			conversation = append(conversation, Message{
				Role:       RoleTool,
				Name:       call.Name,
				Content:    result,
				ToolCallID: call.ID,
			})
			if err != nil {
				conversation[len(conversation)-1].Content = "tool error: " + err.Error()
			}
		}
	}

	return nil, fmt.Errorf("agent: exceeded max tool-call steps (%d) without a final response", maxSteps)
}

func (c *ToolLoopController) invokeTool(ctx context.Context, call ToolCall) (string, error) {
	if c.Tools == nil {
		return "", fmt.Errorf("no tool registry configured, cannot invoke %q", call.Name)
	}
	tool, ok := c.Tools.Get(call.Name)
	if !ok {
		return "", fmt.Errorf("unknown tool %q", call.Name)
	}
	return tool.Invoke(ctx, call.Arguments)
}

func (c *ToolLoopController) toolDefinitions() []ToolDefinition {
	if c.Tools == nil {
		return nil
	}
	return c.Tools.Definitions()
}

func addUsage(a, b TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:    a.InputTokens + b.InputTokens,
		OutputTokens:   a.OutputTokens + b.OutputTokens,
		TotalTokens:    a.TotalTokens + b.TotalTokens,
		ThinkingTokens: a.ThinkingTokens + b.ThinkingTokens,
	}
}
