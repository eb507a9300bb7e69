package compact

import "github.com/xonecas/symbrt/message"

// importanceScore is recency*10 + role-bonus, where role-bonus is
// {user: 5, assistant-with-tool-calls: 3, tool-result: 2,
// tool-result-with-error: +1}. idx is the message's position in the
// original sequence, total the sequence length.
func importanceScore(m message.Message, idx, total int) float64 {
	recency := float64(idx) / float64(total)
	score := recency * 10

	switch v := m.(type) {
	case message.UserMessage:
		score += 5
	case message.AssistantMessage:
		if len(v.ToolCalls()) > 0 {
			score += 3
		}
	case message.ToolResultMessage:
		score += 2
		if v.IsError {
			score += 1
		}
	}
	return score
}

// smartPrune scores every message, always retains the last
// cfg.PreserveRecent messages, and greedily admits the remainder by
// descending score until targetTokens is reached, then re-emits in
// original order.
func smartPrune(ctx message.Context, targetTokens int, cfg Config) message.Context {
	messages := ctx.Messages
	total := len(messages)
	if total == 0 {
		return ctx
	}

	currentTokens := message.EstimateTokens(ctx)
	if currentTokens <= targetTokens {
		return ctx
	}

	preserveFrom := total - cfg.PreserveRecent
	if preserveFrom < 0 {
		preserveFrom = 0
	}

	kept := make(map[int]bool, total)
	usedTokens := 0
	for i := preserveFrom; i < total; i++ {
		kept[i] = true
		usedTokens += message.EstimateMessageTokens(messages[i])
	}

	scores := make([]float64, total)
	var candidates []int
	for i, m := range messages {
		if kept[i] {
			continue
		}
		scores[i] = importanceScore(m, i, total)
		candidates = append(candidates, i)
	}
	sortByScoreDesc(candidates, scores)

	for _, idx := range candidates {
		msgTokens := message.EstimateMessageTokens(messages[idx])
		if usedTokens+msgTokens > targetTokens {
			continue
		}
		kept[idx] = true
		usedTokens += msgTokens
	}

	out := make([]message.Message, 0, len(kept))
	for i, m := range messages {
		if kept[i] {
			out = append(out, m)
		}
	}
	ctx.Messages = out
	return ctx
}
