// Package groupchat runs a single phase's multi-agent conversation: a
// manager/selection agent picks the next expert to speak, that expert's
// response is appended to the conversation, and the manager is consulted
// again until it signals completion or a hard limit is hit. It is the
// turn-by-turn analogue of a fire-and-forget task dispatcher: instead of
// handing out independent tasks and collecting results later, each
// invocation depends on everything said so far.
package groupchat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aks-migrator/engine/pkg/agent"
	"github.com/aks-migrator/engine/pkg/observer"
	"github.com/aks-migrator/engine/pkg/selection"
	"github.com/aks-migrator/engine/pkg/termination"
)

// Config wires a roster of resolved agents into a runnable group chat.
type Config struct {
	// Phase names the chat for selection-reason text and logging, e.g. "analysis".
	Phase string

	// Experts maps role name to the resolved agent for that role.
	Experts map[string]agent.Agent

	// ExpertOrder is the roster's configured expert order, used as the
	// fallback candidate list when the manager's choice can't be parsed.
	ExpertOrder []string

	// Manager is the selection/termination agent driving the chat.
	Manager agent.Agent

	// MaxTurns caps total turns (one manager invocation plus the expert it
	// selects count together as one turn) before a hard-timeout termination
	// is forced. Zero means unbounded.
	MaxTurns int

	// MaxMessages caps the total number of messages the conversation may
	// accumulate (seed included) before a hard-resource-limit termination
	// is forced. This is distinct from MaxTurns: a single turn appends at
	// least one message, but the cap exists to bound runaway conversation
	// size regardless of how many turns produced it. Zero means unbounded.
	MaxMessages int

	// TurnTimeout bounds each individual agent invocation. Zero means no
	// per-turn timeout beyond ctx's own deadline.
	TurnTimeout time.Duration

	// Tracker records tool-usage patterns detected in agent responses.
	// Nil disables tracking.
	Tracker *observer.Tracker
}

// Outcome is the result of running a group chat to completion.
type Outcome struct {
	Messages    []agent.Message
	Termination termination.Result
	Turns       int
}

// managerDecision is the manager agent's per-turn output: either name the
// next expert to speak, or terminate the chat with a reason and kind.
type managerDecision struct {
	NextAgent        string             `json:"next_agent"`
	Terminate        bool               `json:"terminate"`
	Reason           string             `json:"reason"`
	Kind             termination.Kind   `json:"kind"`
	Confidence       float64            `json:"confidence"`
	BlockingIssues   []string           `json:"blocking_issues"`
	RetrySuggestions []string           `json:"retry_suggestions"`
}

// Run drives the group chat until the manager terminates it or a hard
// limit is reached. seed is the opening conversation (typically a system
// message describing the phase's task); it is never mutated in place.
func Run(ctx context.Context, processID string, cfg Config, seed []agent.Message) (*Outcome, error) {
	if cfg.Manager == nil {
		return nil, errors.New("groupchat: Config.Manager must not be nil")
	}
	if len(cfg.Experts) == 0 {
		return nil, errors.New("groupchat: Config.Experts must not be empty")
	}

	messages := append([]agent.Message{}, seed...)
	logger := slog.With("process_id", processID, "phase", cfg.Phase)

	for turn := 1; ; turn++ {
		if cfg.MaxTurns > 0 && turn > cfg.MaxTurns {
			result := termination.HardTermination(
				fmt.Sprintf("turn cap of %d reached without the manager terminating the chat", cfg.MaxTurns),
				termination.HardTimeout,
				nil,
				[]string{"increase the roster's max_turns", "narrow the phase's task scope"},
				1.0,
			)
			logger.Warn("group chat hit turn cap", "max_turns", cfg.MaxTurns)
			return &Outcome{Messages: messages, Termination: result, Turns: turn - 1}, nil
		}

		if cfg.MaxMessages > 0 && len(messages) > cfg.MaxMessages {
			result := termination.HardTermination(
				fmt.Sprintf("message cap of %d reached without the manager terminating the chat", cfg.MaxMessages),
				termination.HardResourceLimit,
				nil,
				[]string{"increase the roster's max_messages", "narrow the phase's task scope"},
				1.0,
			)
			logger.Warn("group chat hit message cap", "max_messages", cfg.MaxMessages)
			return &Outcome{Messages: messages, Termination: result, Turns: turn - 1}, nil
		}

		if err := ctx.Err(); err != nil {
			result := termination.HardTermination(
				"context cancelled before the manager's turn: "+err.Error(),
				termination.HardTimeout, nil, nil, 1.0,
			)
			return &Outcome{Messages: messages, Termination: result, Turns: turn - 1}, nil
		}

		managerMsg, err := invoke(ctx, cfg.Manager, messages, cfg.TurnTimeout)
		if err != nil {
			result := terminationForError(err, "manager")
			logger.Error("manager invocation failed", "error", err)
			return &Outcome{Messages: messages, Termination: result, Turns: turn - 1}, nil
		}
		messages = append(messages, managerMsg)
		cfg.Tracker.DetectAndTrack(ctx, processID, cfg.Manager.Name(), managerMsg.Content)

		decision := parseManagerDecision(managerMsg.Content, cfg.ExpertOrder, cfg.Phase)

		if decision.Terminate {
			kind := decision.Kind
			if kind == "" {
				kind = termination.SoftCompletion
			}
			var result termination.Result
			if kind.IsHard() {
				result = termination.HardTermination(decision.Reason, kind, decision.BlockingIssues, decision.RetrySuggestions, decision.Confidence)
			} else {
				result = termination.SoftTermination(decision.Reason, decision.Confidence)
			}
			logger.Info("group chat terminated", "kind", kind, "turns", turn)
			return &Outcome{Messages: messages, Termination: result, Turns: turn}, nil
		}

		expert, ok := cfg.Experts[decision.NextAgent]
		if !ok {
			result := termination.HardTermination(
				fmt.Sprintf("manager selected unknown agent %q", decision.NextAgent),
				termination.HardError,
				[]string{"unknown agent: " + decision.NextAgent},
				[]string{"check the phase's roster configuration"},
				0.5,
			)
			logger.Error("manager selected unknown agent", "agent", decision.NextAgent)
			return &Outcome{Messages: messages, Termination: result, Turns: turn}, nil
		}

		expertMsg, err := invoke(ctx, expert, messages, cfg.TurnTimeout)
		if err != nil {
			result := terminationForError(err, decision.NextAgent)
			logger.Error("expert invocation failed", "agent", decision.NextAgent, "error", err)
			return &Outcome{Messages: messages, Termination: result, Turns: turn}, nil
		}
		messages = append(messages, expertMsg)
		cfg.Tracker.DetectAndTrack(ctx, processID, expert.Name(), expertMsg.Content)
	}
}

func invoke(ctx context.Context, a agent.Agent, messages []agent.Message, timeout time.Duration) (agent.Message, error) {
	turnCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		turnCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return a.Invoke(turnCtx, messages)
}

func terminationForError(err error, who string) termination.Result {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return termination.HardTermination(who+" timed out: "+err.Error(), termination.HardTimeout, nil, nil, 1.0)
	case errors.Is(err, context.Canceled):
		return termination.HardTermination(who+" cancelled: "+err.Error(), termination.HardTimeout, nil, nil, 1.0)
	default:
		return termination.HardTermination(who+" failed: "+err.Error(), termination.HardError,
			[]string{err.Error()}, []string{"check agent and tool availability", "retry the phase"}, 0.8)
	}
}

// parseManagerDecision decodes the manager's structured JSON decision, and
// falls back to selection.Parse's free-form extraction for the next-agent
// name when the manager didn't reply with well-formed JSON. A decode
// failure keeps the chat going with selection.Parse's best guess; only when
// selection.Parse itself returns an error (blank content, or no name and no
// expert list to fall back to) is the chat terminated as a hard error.
func parseManagerDecision(content string, validAgents []string, phase string) managerDecision {
	var decision managerDecision
	if err := json.Unmarshal([]byte(content), &decision); err == nil && (decision.NextAgent != "" || decision.Terminate) {
		return decision
	}

	result, err := selection.Parse(content, phase, validAgents)
	if err != nil {
		slog.Warn("manager decision unparseable, chat cannot proceed", "error", err)
		return managerDecision{
			Terminate: true,
			Reason:    "manager response could not be parsed: " + err.Error(),
			Kind:      termination.HardError,
		}
	}
	return managerDecision{NextAgent: result.Agent, Reason: result.Reason}
}
