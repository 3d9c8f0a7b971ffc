package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"godex-agent/pkg/convo"
	"godex-agent/pkg/harness"
	"godex-agent/pkg/metrics"
	"godex-agent/pkg/policy"
	"godex-agent/pkg/retry"
	"godex-agent/pkg/router"
)

// interruptGrace is the window within which a second Esc/Ctrl-C exits the
// session cleanly, per spec.md §4.1's cancellation semantics.
const interruptGrace = 750 * time.Millisecond

// Deps are the Session's collaborators: the provider, the tool registry,
// the policy engine, and the retry engine. All are required except
// PromptTool, Ledger, Trajectory, and Metrics.
type Deps struct {
	Provider   harness.Harness
	Tools      ToolExecutor
	Policy     *policy.Store
	Retry      *retry.Engine
	PromptTool PromptTool // invoked for a Prompt policy decision; nil means always decline
	Ledger     DecisionSink
	Trajectory TrajectoryRecorder
	Metrics    *metrics.Collector // per-provider request latency/token metrics; nil disables
}

// Session runs the per-user-turn state machine over a single conversation
// history, per spec.md §4.1.
type Session struct {
	deps    Deps
	cfg     Config
	history []convo.Message

	startedAt time.Time
	turns     int

	mu            sync.Mutex
	cancelCurrent context.CancelFunc
	lastInterrupt time.Time
	exitRequested bool
}

// New builds a Session with the given system prompt already installed as
// the first history message (if non-empty).
func New(deps Deps, cfg Config) *Session {
	s := &Session{deps: deps, cfg: cfg, startedAt: time.Now()}
	if strings.TrimSpace(cfg.SystemPrompt) != "" {
		s.history = append(s.history, convo.Message{Role: "system", Content: cfg.SystemPrompt})
	}
	return s
}

// History returns a copy of the current conversation history.
func (s *Session) History() []convo.Message {
	out := make([]convo.Message, len(s.history))
	copy(out, s.history)
	return out
}

// ReplaceHistory installs a new history, e.g. after the trimmer runs
// outside the session (the context-overflow retry path calls the trimmer
// internally and does not need this, but a caller doing its own periodic
// trimming does).
func (s *Session) ReplaceHistory(h []convo.Message) {
	s.history = h
}

// Interrupt handles one Esc/Ctrl-C press. It cancels whatever provider
// call or tool execution is currently in flight and reports whether this
// is the second press within interruptGrace, meaning the caller should
// exit the session entirely.
func (s *Session) Interrupt() (exit bool) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelCurrent != nil {
		s.cancelCurrent()
	}
	if !s.lastInterrupt.IsZero() && now.Sub(s.lastInterrupt) <= interruptGrace {
		s.exitRequested = true
		return true
	}
	s.lastInterrupt = now
	return false
}

func (s *Session) withCancel(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	s.cancelCurrent = cancel
	s.mu.Unlock()
	return ctx, func() {
		cancel()
		s.mu.Lock()
		s.cancelCurrent = nil
		s.mu.Unlock()
	}
}

// RunSession drives turns from nextLine until it returns ok=false, the
// user asks to exit, a loop bound is exceeded, or a fatal error occurs.
func (s *Session) RunSession(ctx context.Context, nextLine func() (string, bool)) (convo.SessionSummary, error) {
	for {
		if s.exitRequested {
			return s.summary("user_exit"), nil
		}
		if s.cfg.MaxSessionTurns > 0 && s.turns >= s.cfg.MaxSessionTurns {
			return s.summary("max_turns"), nil
		}
		if s.cfg.MaxSessionDuration > 0 && time.Since(s.startedAt) >= s.cfg.MaxSessionDuration {
			return s.summary("max_duration"), nil
		}

		line, ok := nextLine()
		if !ok {
			return s.summary("user_exit"), nil
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "/exit" || trimmed == "/quit" {
			return s.summary("user_exit"), nil
		}

		s.turns++
		outcome, err := s.OneTurn(ctx, line)
		if err != nil {
			return s.summary("fatal_error"), err
		}
		if outcome == TurnCancelled && s.exitRequested {
			return s.summary("user_exit"), nil
		}
	}
}

func (s *Session) summary(reason string) convo.SessionSummary {
	model := s.cfg.Model
	var toolsEnabled int
	if s.deps.Tools != nil {
		toolsEnabled = len(s.deps.Tools.FunctionDeclarations(s.cfg.Capability))
	}
	return convo.SessionSummary{
		Model:        model,
		ToolsEnabled: toolsEnabled,
		TurnsTaken:   s.turns,
		Reason:       reason,
	}
}

// FatalError marks an error that should end the session rather than just
// the current turn.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// OneTurn runs the AwaitingModel/ExecutingTools state machine for one
// user input, per spec.md §4.1.
func (s *Session) OneTurn(ctx context.Context, userText string) (TurnOutcome, error) {
	s.history = append(s.history, convo.Message{Role: "user", Content: userText})
	s.logUserMessage(userText)

	state := AwaitingModel
	contextRetries := 0
	iterations := 0

	for {
		select {
		case <-ctx.Done():
			return s.turnCancelled()
		default:
		}

		switch state {
		case AwaitingModel:
			result, err := s.callModel(ctx)
			if err != nil {
				if isContextOverflow(err) && contextRetries < s.cfg.contextRetryLimit() {
					contextRetries++
					s.history = aggressivelyTrim(s.history, contextRetries)
					s.recordDecision("error", "context overflow, retrying with a smaller history", "retrying")
					continue
				}
				if errors.Is(err, context.Canceled) {
					return s.turnCancelled()
				}
				s.recordDecision("error", "provider call failed", err.Error())
				s.logError(err)
				return AssistantText, &FatalError{Err: fmt.Errorf("agentloop: provider call failed: %w", err)}
			}

			if len(result.ToolCalls) > 0 {
				for _, tc := range result.ToolCalls {
					s.history = append(s.history, convo.Message{
						Role: "assistant", ToolID: tc.CallID, Name: tc.Name, Content: tc.Arguments,
					})
				}
				state = ExecutingTools
				continue
			}

			if strings.TrimSpace(result.FinalText) != "" {
				s.history = append(s.history, convo.Message{Role: "assistant", Content: result.FinalText})
				s.logAssistantMessage(result.FinalText)
				state = Done
				continue
			}

			s.history = append(s.history, convo.Message{Role: "assistant", Content: "(no response)"})
			state = Done

		case ExecutingTools:
			iterations++
			if iterations > s.cfg.maxIterations() {
				s.history = append(s.history, convo.Message{Role: "assistant", Content: "tool loop limit reached"})
				s.recordDecision("error", "tool loop limit reached", "aborted")
				return ToolCycleCompleted, nil
			}

			pending := s.pendingToolCalls()
			cancelled := s.executeToolBatch(ctx, pending)
			if cancelled {
				return s.turnCancelled()
			}
			state = AwaitingModel

		case Done:
			return AssistantText, nil

		case Cancelled:
			return s.turnCancelled()
		}
	}
}

// turnCancelled synthesizes an answering tool message for every tool call
// left pending by a cancelled turn before reporting TurnCancelled, so the
// pairing invariant (spec.md §8 Testable Property #1: every tool_call has
// exactly one matching tool response) holds even when cancellation lands
// mid-batch.
func (s *Session) turnCancelled() (TurnOutcome, error) {
	s.cancelPendingToolCalls()
	return TurnCancelled, nil
}

// cancelPendingToolCalls appends an error tool message for each call
// pendingToolCalls still reports as unanswered.
func (s *Session) cancelPendingToolCalls() {
	for _, call := range s.pendingToolCalls() {
		output := encodeToolError("cancelled")
		s.history = append(s.history, convo.Message{Role: "tool", ToolID: call.ToolID, Content: output})
		s.logToolResult(call.ToolID, call.Name, output)
		s.recordDecision("tool_call", call.Name, "cancelled")
	}
}

// pendingToolCalls returns the current batch's assistant tool-call
// messages that have no matching tool response yet, in call order. The
// batch is the trailing run of ToolID-bearing assistant messages and tool
// messages; a partially executed batch (some calls already answered,
// cancellation having cut the rest short) still resolves correctly because
// membership in "pending" is decided by call-ID matching within the run,
// not by position.
func (s *Session) pendingToolCalls() []convo.Message {
	start := len(s.history)
	for start > 0 {
		m := s.history[start-1]
		if m.Role == "tool" || (m.Role == "assistant" && m.ToolID != "") {
			start--
			continue
		}
		break
	}
	batch := s.history[start:]

	answered := make(map[string]bool, len(batch))
	for _, m := range batch {
		if m.Role == "tool" {
			answered[m.ToolID] = true
		}
	}

	var pending []convo.Message
	for _, m := range batch {
		if m.Role == "assistant" && m.ToolID != "" && !answered[m.ToolID] {
			pending = append(pending, m)
		}
	}
	return pending
}

// lastUserMessage returns the most recent user-role message's content, or
// "" if none exists yet.
func (s *Session) lastUserMessage() string {
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].Role == "user" {
			return s.history[i].Content
		}
	}
	return ""
}

func (s *Session) callModel(ctx context.Context) (*harness.TurnResult, error) {
	callCtx, done := s.withCancel(ctx)
	defer done()

	model := s.cfg.Model
	if s.cfg.ModelForClass != nil {
		if m := s.cfg.ModelForClass(router.ClassifyComplexity(s.lastUserMessage()).String()); m != "" {
			model = m
		}
	}

	turn := &harness.Turn{
		Model:        model,
		Instructions: s.cfg.SystemPrompt,
		Messages:     toHarnessMessages(s.history),
		Environment:  s.cfg.Environment,
		Reasoning:    s.cfg.Reasoning,
	}
	if s.deps.Tools != nil {
		turn.Tools = toHarnessTools(s.deps.Tools.FunctionDeclarations(s.cfg.Capability))
	}

	callStart := time.Now()
	result, err := retry.Execute(callCtx, s.deps.Retry, "model_call", retry.ApiCall,
		func(ctx context.Context, attempt int) (*harness.TurnResult, error) {
			res, err := s.deps.Provider.StreamAndCollect(ctx, turn)
			if err != nil {
				return nil, err
			}
			if len(res.ToolCalls) == 0 && strings.TrimSpace(res.FinalText) == "" {
				return nil, fmt.Errorf("agentloop: %w", retry.ErrEmptyResponse)
			}
			return res, nil
		})
	s.recordMetric(callStart, turn.Model, result, err)
	return result, err
}

func (s *Session) recordMetric(start time.Time, model string, result *harness.TurnResult, callErr error) {
	if s.deps.Metrics == nil {
		return
	}
	m := metrics.RequestMetric{
		Timestamp: start,
		Backend:   s.deps.Provider.Name(),
		Model:     model,
		Latency:   time.Since(start),
		Status:    "ok",
	}
	if callErr != nil {
		m.Status = "error"
		m.Error = callErr.Error()
	}
	if result != nil && result.Usage != nil {
		m.TokensIn = result.Usage.InputTokens
		m.TokensOut = result.Usage.OutputTokens
	}
	s.deps.Metrics.Record(m)
}

// executeToolBatch runs every pending tool call in order, gating each
// through the policy engine and executing allowed calls under the retry
// engine's ToolExecution profile. A panicking call still produces an
// answering tool message via executeWithRecover's recover. If ctx is
// cancelled partway through, it stops and returns true; the caller
// (OneTurn, via turnCancelled) is responsible for synthesizing answers for
// whatever calls are left pending so the pairing invariant holds.
func (s *Session) executeToolBatch(ctx context.Context, pending []convo.Message) (cancelled bool) {
	for _, call := range pending {
		select {
		case <-ctx.Done():
			return true
		default:
		}

		args := json.RawMessage(call.Content)
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}

		s.logToolCall(call.ToolID, call.Name, string(args))
		output, isError := s.dispatchOneTool(ctx, call.Name, args)
		s.history = append(s.history, convo.Message{Role: "tool", ToolID: call.ToolID, Content: output})
		s.logToolResult(call.ToolID, call.Name, output)
		kind := "tool_call"
		outcome := "ok"
		if isError {
			outcome = "error"
		}
		s.recordDecision(kind, call.Name, outcome)
	}
	return false
}

func (s *Session) dispatchOneTool(ctx context.Context, name string, args json.RawMessage) (output string, isError bool) {
	if s.deps.Tools == nil {
		return encodeToolError("no tool registry configured"), true
	}

	decision := s.deps.Policy.Evaluate(name)
	if decision == policy.Deny {
		return encodeToolError("denied by policy"), true
	}
	if !shellCommandAllowed(s.deps.Policy, name, args) {
		return encodeToolError("denied by command policy"), true
	}

	if decision == policy.Prompt {
		answer := policy.AnswerNo
		if s.deps.PromptTool != nil {
			a, err := s.deps.PromptTool(ctx, name, args)
			if err == nil {
				answer = a
			}
		}
		resolved, err := s.deps.Policy.Resolve(name, answer)
		if err != nil || resolved != policy.Allow {
			return encodeToolError("declined by operator"), true
		}
	}

	result, err := s.executeWithRecover(ctx, name, args)
	if err != nil {
		return encodeToolError(err.Error()), true
	}
	buf, err := json.Marshal(result)
	if err != nil {
		return encodeToolError("failed to encode tool result: " + err.Error()), true
	}
	return string(buf), false
}

func (s *Session) executeWithRecover(ctx context.Context, name string, args json.RawMessage) (out any, err error) {
	callCtx, done := s.withCancel(ctx)
	defer done()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()

	return retry.Execute(callCtx, s.deps.Retry, "tool:"+name, retry.ToolExecution,
		func(ctx context.Context, attempt int) (any, error) {
			return s.deps.Tools.Execute(ctx, name, args)
		})
}

func shellCommandAllowed(store *policy.Store, name string, args json.RawMessage) bool {
	if name != "run_terminal_cmd" && name != "bash" && name != "run_pty_cmd" {
		return true
	}
	var decoded struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(args, &decoded); err != nil || decoded.Command == "" {
		return true
	}
	return store.Commands().Allowed(decoded.Command)
}

func encodeToolError(msg string) string {
	buf, _ := json.Marshal(map[string]any{"ok": false, "error": msg})
	return string(buf)
}

func (s *Session) recordDecision(kind, summary, outcome string) {
	if s.deps.Ledger == nil {
		return
	}
	s.deps.Ledger.Record(convo.DecisionRecord{Turn: s.turns, Kind: kind, Summary: summary, Outcome: outcome})
}

func (s *Session) logUserMessage(content string) {
	if s.deps.Trajectory != nil {
		s.deps.Trajectory.LogUserMessage(s.turns, content)
	}
}

func (s *Session) logAssistantMessage(content string) {
	if s.deps.Trajectory != nil {
		s.deps.Trajectory.LogAssistantMessage(s.turns, content)
	}
}

func (s *Session) logToolCall(toolID, name, argsJSON string) {
	if s.deps.Trajectory != nil {
		s.deps.Trajectory.LogToolCall(s.turns, toolID, name, argsJSON)
	}
}

func (s *Session) logToolResult(toolID, name, result string) {
	if s.deps.Trajectory != nil {
		s.deps.Trajectory.LogToolResult(s.turns, toolID, name, result)
	}
}

func (s *Session) logError(err error) {
	if s.deps.Trajectory != nil {
		s.deps.Trajectory.LogError(s.turns, err)
	}
}

var contextOverflowSubstrings = []string{
	"context_length_exceeded", "context length exceeded", "maximum context length",
	"context window", "too many tokens", "context overflow",
}

func isContextOverflow(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	for _, s := range contextOverflowSubstrings {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}
