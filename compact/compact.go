// Package compact implements the context transformer/compactor: a
// smart/truncate/compact strategy that keeps a conversation under a
// model's token budget while preserving the toolCall/toolResult pairing
// invariant and recent turns.
package compact

import (
	"sort"

	"github.com/xonecas/symbrt/message"
)

// Strategy selects a compaction algorithm.
type Strategy int

const (
	Smart Strategy = iota
	Truncate
	Compact
)

// Config configures one compaction pass.
type Config struct {
	Strategy Strategy
	// MaxTokens is the model's context window; the target token budget is
	// MaxTokens * TargetUtilization.
	MaxTokens int
	// TargetUtilization defaults to 0.75 when zero.
	TargetUtilization float64
	// PreserveRecent is the number of trailing messages never evicted by
	// the smart strategy. Defaults to 4 when zero.
	PreserveRecent int
	// MinMessages is the floor after any compaction (truncate strategy).
	// Defaults to 2 when zero.
	MinMessages int
	// TruncateTextCeiling is the hard per-part character ceiling the
	// compact strategy enforces. Defaults to 2000 when zero.
	TruncateTextCeiling int
}

func (c Config) withDefaults() Config {
	if c.TargetUtilization <= 0 {
		c.TargetUtilization = 0.75
	}
	if c.PreserveRecent <= 0 {
		c.PreserveRecent = 4
	}
	if c.MinMessages <= 0 {
		c.MinMessages = 2
	}
	if c.TruncateTextCeiling <= 0 {
		c.TruncateTextCeiling = 2000
	}
	return c
}

// Stats reports the effect of one compaction pass.
type Stats struct {
	OriginalTokens int
	NewTokens      int
	TokensSaved    int
	EntriesRemoved int
}

// ShouldCompact reports whether ctx's estimated token footprint exceeds
// maxTokens * threshold, the auto-compact trigger.
func ShouldCompact(ctx message.Context, maxTokens int, threshold float64) bool {
	return message.EstimateTokens(ctx) > int(float64(maxTokens)*threshold)
}

// Compactor runs compaction passes. It carries no state; the zero value
// is ready to use. It exists so callers that thread a single named
// collaborator through the agent loop (mirroring modelprovider.Provider
// and toolkit.Registry) have one, while Run remains available directly
// for callers that don't need it.
type Compactor struct{}

// Compact applies cfg's strategy to ctx and enforces the pairing
// invariant before returning.
func (Compactor) Compact(ctx message.Context, cfg Config) (message.Context, Stats) {
	return Run(ctx, cfg)
}

// Run applies cfg's strategy to ctx and enforces the pairing invariant
// before returning. It never mutates ctx.Messages in place.
func Run(ctx message.Context, cfg Config) (message.Context, Stats) {
	cfg = cfg.withDefaults()
	originalTokens := message.EstimateTokens(ctx)
	originalCount := len(ctx.Messages)

	targetTokens := int(float64(cfg.MaxTokens) * cfg.TargetUtilization)

	var out message.Context
	switch cfg.Strategy {
	case Truncate:
		out = truncatePrune(ctx, targetTokens, cfg)
	case Compact:
		out = compactPrune(ctx, cfg)
	default:
		out = smartPrune(ctx, targetTokens, cfg)
	}

	out = enforcePairing(out)

	newTokens := message.EstimateTokens(out)
	return out, Stats{
		OriginalTokens: originalTokens,
		NewTokens:      newTokens,
		TokensSaved:    originalTokens - newTokens,
		EntriesRemoved: originalCount - len(out.Messages),
	}
}

// enforcePairing drops any assistant tool-call or tool-result message
// whose counterpart did not survive compaction together with it.
func enforcePairing(ctx message.Context) message.Context {
	callIDs := map[string]bool{}
	resultIDs := map[string]bool{}
	for _, m := range ctx.Messages {
		switch v := m.(type) {
		case message.AssistantMessage:
			for _, tc := range v.ToolCalls() {
				callIDs[tc.ID] = true
			}
		case message.ToolResultMessage:
			resultIDs[v.ToolCallID] = true
		}
	}

	kept := make([]message.Message, 0, len(ctx.Messages))
	for _, m := range ctx.Messages {
		switch v := m.(type) {
		case message.AssistantMessage:
			calls := v.ToolCalls()
			if len(calls) == 0 {
				kept = append(kept, m)
				continue
			}
			allPaired := true
			for _, tc := range calls {
				if !resultIDs[tc.ID] {
					allPaired = false
					break
				}
			}
			if allPaired {
				kept = append(kept, m)
			}
		case message.ToolResultMessage:
			if callIDs[v.ToolCallID] {
				kept = append(kept, m)
			}
		default:
			kept = append(kept, m)
		}
	}
	ctx.Messages = kept
	return ctx
}

// sortByScoreDesc stably sorts indices by descending score, ties broken
// by ascending original index so equal-score messages keep their
// conversation order.
func sortByScoreDesc(idx []int, score []float64) {
	sort.SliceStable(idx, func(a, b int) bool {
		ia, ib := idx[a], idx[b]
		if score[ia] != score[ib] {
			return score[ia] > score[ib]
		}
		return ia < ib
	})
}
