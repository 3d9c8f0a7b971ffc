package agentloop

import (
	"context"

	"godex-agent/pkg/convo"
	"godex-agent/pkg/trimmer"
)

// aggressivelyTrim re-trims history with progressively tighter settings on
// each successive context-overflow retry, per spec.md §4.1's
// context-overflow-handling rule: a provider's context_overflow error
// invokes the trimmer "with progressively more aggressive settings."
func aggressivelyTrim(history []convo.Message, attempt int) []convo.Message {
	cfg := trimmer.DefaultConfig()
	for i := 0; i < attempt; i++ {
		cfg.MaxTokens = cfg.MaxTokens * 3 / 4
		if cfg.PreserveRecentTurns > cfg.AggressivePreserveRecentTurns {
			cfg.PreserveRecentTurns = cfg.AggressivePreserveRecentTurns
		} else if cfg.AggressivePreserveRecentTurns > 2 {
			cfg.AggressivePreserveRecentTurns -= 2
		}
	}
	return trimmer.Trim(context.Background(), history, cfg, nil)
}
