package trimmer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"godex-agent/pkg/convo"
)

func userMsg(n int) convo.Message {
	return convo.Message{Role: "user", Content: strings.Repeat("u", n)}
}

func assistantMsg(n int) convo.Message {
	return convo.Message{Role: "assistant", Content: strings.Repeat("a", n)}
}

func toolCallPair(n int) []convo.Message {
	return []convo.Message{
		{Role: "assistant", ToolID: "call-1", Name: "read_file", Content: strings.Repeat("x", n)},
		{Role: "tool", ToolID: "call-1", Content: strings.Repeat("y", n)},
	}
}

// toolCallBatch mirrors the wire shape of a multi-tool-call turn: one
// assistant message per call, followed by one tool response per call.
func toolCallBatch(n int, ids ...string) []convo.Message {
	var batch []convo.Message
	for _, id := range ids {
		batch = append(batch, convo.Message{Role: "assistant", ToolID: id, Name: "read_file", Content: strings.Repeat("x", n)})
	}
	for _, id := range ids {
		batch = append(batch, convo.Message{Role: "tool", ToolID: id, Content: strings.Repeat("y", n)})
	}
	return batch
}

func TestEstimateTokens(t *testing.T) {
	messages := []convo.Message{userMsg(30), assistantMsg(30)}
	if got := EstimateTokens(messages); got != 20 {
		t.Errorf("got %d, want 20", got)
	}
}

func TestTrimNoopWhenUnderBudget(t *testing.T) {
	history := []convo.Message{{Role: "system", Content: "sys"}, userMsg(10), assistantMsg(10)}
	cfg := DefaultConfig()
	got := Trim(context.Background(), history, cfg, nil)
	if len(got) != len(history) {
		t.Fatalf("expected idempotent no-op, got %d messages, want %d", len(got), len(history))
	}
	for i := range history {
		if got[i] != history[i] {
			t.Errorf("message %d mutated: got %+v, want %+v", i, got[i], history[i])
		}
	}
}

func TestTrimPreservesSystemPromptFirst(t *testing.T) {
	history := []convo.Message{{Role: "system", Content: "sys"}}
	for i := 0; i < 40; i++ {
		history = append(history, userMsg(1000), assistantMsg(1000))
	}
	cfg := Config{MaxTokens: 2000, TrimToPercent: 80, PreserveRecentTurns: 6, AggressivePreserveRecentTurns: 4}
	got := Trim(context.Background(), history, cfg, nil)
	if len(got) == 0 || got[0].Role != "system" || got[0].Content != "sys" {
		t.Fatalf("system prompt not preserved first: %+v", got)
	}
}

func TestTrimNeverSplitsToolCallFromResponse(t *testing.T) {
	var history []convo.Message
	for i := 0; i < 30; i++ {
		history = append(history, userMsg(500))
		history = append(history, toolCallPair(500)...)
	}
	cfg := Config{MaxTokens: 3000, TrimToPercent: 70, PreserveRecentTurns: 6, AggressivePreserveRecentTurns: 4}
	got := Trim(context.Background(), history, cfg, nil)

	answered := map[string]bool{}
	for _, m := range got {
		if m.Role == "assistant" && m.ToolID != "" {
			answered[m.ToolID] = false
		}
	}
	for _, m := range got {
		if m.Role == "tool" {
			if _, ok := answered[m.ToolID]; !ok {
				t.Fatalf("tool response %s kept without its tool_call", m.ToolID)
			}
			answered[m.ToolID] = true
		}
	}
	for id, ok := range answered {
		if !ok {
			t.Errorf("tool_call %s kept without its tool response", id)
		}
	}
}

func TestGroupIntoTurnsKeepsMultiCallBatchTogether(t *testing.T) {
	rest := append([]convo.Message{userMsg(10)}, toolCallBatch(10, "call-1", "call-2")...)
	turns := groupIntoTurns(rest)
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns (user, batch), got %d: %+v", len(turns), turns)
	}
	batchTurn := turns[1]
	if len(batchTurn.messages) != 4 {
		t.Fatalf("expected the whole 2-call batch in one turn, got %+v", batchTurn.messages)
	}
	var sawAssistant, sawTool int
	for _, m := range batchTurn.messages {
		switch m.Role {
		case "assistant":
			sawAssistant++
		case "tool":
			sawTool++
		}
	}
	if sawAssistant != 2 || sawTool != 2 {
		t.Fatalf("expected 2 assistant + 2 tool messages in the batch turn, got %+v", batchTurn.messages)
	}
}

func TestTrimNeverSplitsMultiCallBatch(t *testing.T) {
	var history []convo.Message
	for i := 0; i < 30; i++ {
		history = append(history, userMsg(500))
		history = append(history, toolCallBatch(500, "call-a", "call-b")...)
	}
	cfg := Config{MaxTokens: 3000, TrimToPercent: 70, PreserveRecentTurns: 6, AggressivePreserveRecentTurns: 4}
	got := Trim(context.Background(), history, cfg, nil)

	answered := map[string]bool{}
	for _, m := range got {
		if m.Role == "assistant" && m.ToolID != "" {
			answered[m.ToolID] = false
		}
	}
	for _, m := range got {
		if m.Role == "tool" {
			if _, ok := answered[m.ToolID]; !ok {
				t.Fatalf("tool response %s kept without its tool_call", m.ToolID)
			}
			answered[m.ToolID] = true
		}
	}
	for id, ok := range answered {
		if !ok {
			t.Errorf("tool_call %s kept without its tool response", id)
		}
	}
}

func TestTrimEscalatesToAggressivePreserveOnContinuedOverflow(t *testing.T) {
	var history []convo.Message
	for i := 0; i < 50; i++ {
		history = append(history, userMsg(2000), assistantMsg(2000))
	}
	cfg := Config{MaxTokens: 1000, TrimToPercent: 60, PreserveRecentTurns: 12, AggressivePreserveRecentTurns: 6}
	got := Trim(context.Background(), history, cfg, nil)

	// Preserved turns are kept whole, so only the 6 aggressively preserved
	// turns survive: 6 x 2000 chars / 3 = 4000 tokens, half of what leaving
	// 12 untouched would have produced.
	want := EstimateTokens(history[len(history)-6:])
	if n := EstimateTokens(got); n != want {
		t.Errorf("expected aggressive preserve to keep exactly the last 6 turns (%d tokens), got %d tokens", want, n)
	}
	// At least the system-less recent turns remain non-empty.
	if len(got) == 0 {
		t.Fatal("expected some messages to survive trimming")
	}
}

type stubSummarizer struct {
	summary string
	err     error
}

func (s stubSummarizer) Summarize(ctx context.Context, dropped []convo.Message) (string, error) {
	return s.summary, s.err
}

func TestTrimPrependsSummaryAfterSystemPrompt(t *testing.T) {
	history := []convo.Message{{Role: "system", Content: "sys"}}
	for i := 0; i < 40; i++ {
		history = append(history, userMsg(1000), assistantMsg(1000))
	}
	cfg := Config{MaxTokens: 2000, TrimToPercent: 80, PreserveRecentTurns: 6, AggressivePreserveRecentTurns: 4}
	got := Trim(context.Background(), history, cfg, stubSummarizer{summary: "earlier work on the parser"})

	if len(got) < 2 || got[0].Role != "system" {
		t.Fatalf("expected system prompt first, got %+v", got)
	}
	if !strings.Contains(got[1].Content, "Previous conversation summary: earlier work on the parser") {
		t.Fatalf("expected summary message second, got %+v", got[1])
	}
}

func TestTrimSwallowsSummarizerError(t *testing.T) {
	history := []convo.Message{{Role: "system", Content: "sys"}}
	for i := 0; i < 40; i++ {
		history = append(history, userMsg(1000), assistantMsg(1000))
	}
	cfg := Config{MaxTokens: 2000, TrimToPercent: 80, PreserveRecentTurns: 6, AggressivePreserveRecentTurns: 4}
	got := Trim(context.Background(), history, cfg, stubSummarizer{err: errors.New("summarizer unavailable")})

	for _, m := range got {
		if strings.Contains(m.Content, "Previous conversation summary") {
			t.Fatalf("expected no summary message when summarizer errors, got %+v", got)
		}
	}
	if len(got) == 0 {
		t.Fatal("trimming must still succeed when the summarizer fails")
	}
}
