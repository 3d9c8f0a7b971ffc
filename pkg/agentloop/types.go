// Package agentloop implements the run loop: the per-user-turn state
// machine that drives a provider call, gates and executes any requested
// tools, and repeats until the model produces a final response. It wraps
// harness.Harness.StreamAndCollect and harness.Turn/Event — the teacher's
// single-call agentic primitive — rather than reimplementing provider
// request/response handling, generalizing harness.RunToolLoop's fixed
// MaxSteps loop into the full AwaitingModel/ExecutingTools/Done/Cancelled
// state machine with policy- and trust-gated tool dispatch.
package agentloop

import (
	"context"
	"encoding/json"
	"time"

	"godex-agent/pkg/convo"
	"godex-agent/pkg/harness"
	"godex-agent/pkg/policy"
	"godex-agent/pkg/tools"
)

// State is one of the per-turn run loop states.
type State int

const (
	AwaitingModel State = iota
	ExecutingTools
	Done
	Cancelled
)

func (s State) String() string {
	switch s {
	case AwaitingModel:
		return "awaiting_model"
	case ExecutingTools:
		return "executing_tools"
	case Done:
		return "done"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// TurnOutcome is the result of running one user turn to completion.
type TurnOutcome int

const (
	AssistantText TurnOutcome = iota
	ToolCycleCompleted
	TurnCancelled
)

func (o TurnOutcome) String() string {
	switch o {
	case AssistantText:
		return "assistant_text"
	case ToolCycleCompleted:
		return "tool_cycle_completed"
	case TurnCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ToolExecutor is the subset of *tools.Registry the run loop depends on;
// satisfied by *tools.Registry directly, and fakeable in tests.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args json.RawMessage) (any, error)
	FunctionDeclarations(level tools.CapabilityLevel) []tools.Definition
}

// DecisionSink receives a DecisionRecord for every consequential thing the
// run loop does, independent of the raw provider event stream (e.g. the
// decision ledger). Optional; nil means "don't record".
type DecisionSink interface {
	Record(convo.DecisionRecord)
}

// TrajectoryRecorder receives the finer-grained, per-message event stream
// (e.g. the .vtcode/ trajectory log) — every user message, assistant
// message, tool call, and tool result, not just the coarser decisions a
// DecisionSink sees. Optional; nil means "don't record".
type TrajectoryRecorder interface {
	LogUserMessage(turn int, content string)
	LogAssistantMessage(turn int, content string)
	LogToolCall(turn int, toolID, name, argsJSON string)
	LogToolResult(turn int, toolID, name, result string)
	LogError(turn int, err error)
}

// PromptTool is invoked when the policy engine returns Prompt for a tool
// call; it must return the operator's answer or an error (treated as a
// decline).
type PromptTool func(ctx context.Context, toolName string, args json.RawMessage) (policy.PromptAnswer, error)

// Config bounds and knobs for a Session, per spec.md §4.1's loop-bounds
// and context-overflow-handling rules.
type Config struct {
	Model                       string
	SystemPrompt                string
	Capability                  tools.CapabilityLevel
	Environment                 *harness.EnvironmentCtx
	Reasoning                   *harness.ReasoningConfig
	MaxToolIterationsPerTurn    int           // default 100
	MaxSessionTurns             int           // 0 = unlimited
	MaxSessionDuration          time.Duration // 0 = unlimited
	ContextErrorRetryLimit      int           // default 2

	// ModelForClass, when set, is consulted before each model call with the
	// last user message's complexity class (see pkg/router.ClassifyComplexity);
	// its return value overrides Model for that call. A nil func or an empty
	// return both mean "use Model".
	ModelForClass func(class string) string
}

// DefaultConfig returns the spec's default loop bounds; callers still must
// set Model, SystemPrompt, and Environment.
func DefaultConfig() Config {
	return Config{
		MaxToolIterationsPerTurn: 100,
		ContextErrorRetryLimit:   2,
	}
}

func (c Config) maxIterations() int {
	if c.MaxToolIterationsPerTurn <= 0 {
		return 100
	}
	return c.MaxToolIterationsPerTurn
}

func (c Config) contextRetryLimit() int {
	if c.ContextErrorRetryLimit <= 0 {
		return 2
	}
	return c.ContextErrorRetryLimit
}
