// Package trimmer keeps a conversation under an approximate token budget
// by dropping whole older turns, never splitting a tool_call from its
// tool response. Bookkeeping shape (accumulate-then-render) is grounded
// on pkg/proxy/cache.go's cache-entry accounting.
package trimmer

import (
	"context"
	"fmt"

	"godex-agent/pkg/convo"
)

// Config controls trimming behavior, per spec.md §4.2.
type Config struct {
	MaxTokens                    int
	TrimToPercent                int // 60-90, default 80
	PreserveRecentTurns          int // default 12, minimum 6
	AggressivePreserveRecentTurns int // default 8
}

// DefaultConfig returns the spec's default values.
func DefaultConfig() Config {
	return Config{
		MaxTokens:                     90_000,
		TrimToPercent:                 80,
		PreserveRecentTurns:           12,
		AggressivePreserveRecentTurns: 8,
	}
}

// Summarizer produces a best-effort "Previous conversation summary: ..."
// system message from the dropped turns. A failing or slow Summarizer
// must never prevent trimming from succeeding — the caller treats its
// error as non-fatal (see DESIGN.md's trimmer open-question decision).
type Summarizer interface {
	Summarize(ctx context.Context, dropped []convo.Message) (string, error)
}

// EstimateTokens approximates token count as 1 token per 3 ASCII
// characters over message content plus tool name, per spec.md §4.2.
func EstimateTokens(messages []convo.Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content) + len(m.Name)
	}
	return total / 3
}

// turn is a contiguous run of messages starting at a user or assistant
// message and including every tool message answering that assistant's
// tool_calls — the unit the trimmer drops or keeps as a whole.
type turn struct {
	messages []convo.Message
}

// Trim drops whole older turns from history until the estimated token
// count is at or below cfg's target, preserving the system prompt (if
// history's first message has role "system") and never splitting a
// tool_call from its tool response. summarizer may be nil.
func Trim(ctx context.Context, history []convo.Message, cfg Config, summarizer Summarizer) []convo.Message {
	target := cfg.MaxTokens * clampPercent(cfg.TrimToPercent) / 100

	if EstimateTokens(history) <= target {
		return history
	}

	system, rest := splitSystemPrompt(history)
	turns := groupIntoTurns(rest)

	preserve := clampPreserve(cfg.PreserveRecentTurns)
	kept, dropped := trimToTarget(system, turns, preserve, target)

	if EstimateTokens(flatten(system, kept)) > target && preserve > cfg.AggressivePreserveRecentTurns {
		preserve = clampPreserve(cfg.AggressivePreserveRecentTurns)
		kept, dropped = trimToTarget(system, turns, preserve, target)
	}

	result := flatten(system, kept)

	if summarizer != nil && len(dropped) > 0 {
		var droppedMessages []convo.Message
		for _, t := range dropped {
			droppedMessages = append(droppedMessages, t.messages...)
		}
		if summary, err := summarizer.Summarize(ctx, droppedMessages); err == nil && summary != "" {
			summaryMsg := convo.Message{Role: "system", Content: fmt.Sprintf("Previous conversation summary: %s", summary)}
			result = prepend(result, summaryMsg, len(system))
		}
		// A summarizer error is swallowed: trimming has already succeeded
		// without it, and the user's turn must not fail over a best-effort
		// enrichment.
	}

	return result
}

func clampPercent(p int) int {
	if p < 60 {
		return 60
	}
	if p > 90 {
		return 90
	}
	return p
}

func clampPreserve(n int) int {
	if n < 6 {
		return 6
	}
	return n
}

func splitSystemPrompt(history []convo.Message) ([]convo.Message, []convo.Message) {
	if len(history) > 0 && history[0].Role == "system" {
		return history[:1], history[1:]
	}
	return nil, history
}

// groupIntoTurns partitions rest into contiguous turns. A turn begins at a
// user message, or at an assistant message that doesn't directly follow
// another assistant message in the same batch. A multi-tool-call batch is
// one assistant message per call (see agentloop.Session.OneTurn), so
// consecutive assistant messages with no intervening tool message are the
// same batch and must land in the same turn — splitting them would orphan
// whichever tool_call lands in the earlier turn when trimming cuts between
// them. Tool messages always join whatever turn is open, answering the
// batch's calls.
func groupIntoTurns(rest []convo.Message) []turn {
	var turns []turn
	var current []convo.Message
	flush := func() {
		if len(current) > 0 {
			turns = append(turns, turn{messages: current})
			current = nil
		}
	}
	for _, m := range rest {
		switch {
		case m.Role == "tool":
			current = append(current, m)
		case m.Role == "assistant":
			if len(current) > 0 && current[len(current)-1].Role != "assistant" {
				flush()
			}
			current = append(current, m)
		default:
			flush()
			current = append(current, m)
		}
	}
	flush()
	return turns
}

// trimToTarget keeps the most recent min(preserve, len(turns)) turns
// verbatim and drops older ones, oldest first, until the estimate is at
// or below target or only the preserved turns remain.
func trimToTarget(system []convo.Message, turns []turn, preserve, target int) (kept []turn, dropped []turn) {
	if len(turns) <= preserve {
		return turns, nil
	}

	droppable := turns[:len(turns)-preserve]
	keepFromStart := turns[len(turns)-preserve:]

	keptDroppable := append([]turn{}, droppable...)
	for EstimateTokens(flatten(system, append(keptDroppable, keepFromStart...))) > target && len(keptDroppable) > 0 {
		dropped = append(dropped, keptDroppable[0])
		keptDroppable = keptDroppable[1:]
	}

	kept = append(keptDroppable, keepFromStart...)
	return kept, dropped
}

func flatten(system []convo.Message, turns []turn) []convo.Message {
	out := append([]convo.Message{}, system...)
	for _, t := range turns {
		out = append(out, t.messages...)
	}
	return out
}

func prepend(history []convo.Message, msg convo.Message, systemLen int) []convo.Message {
	out := make([]convo.Message, 0, len(history)+1)
	out = append(out, history[:systemLen]...)
	out = append(out, msg)
	out = append(out, history[systemLen:]...)
	return out
}
