package compact

import "github.com/xonecas/symbrt/message"

// truncatePrune walks from newest to oldest, keeping as many whole
// messages as fit in targetTokens, enforcing cfg.MinMessages.
func truncatePrune(ctx message.Context, targetTokens int, cfg Config) message.Context {
	messages := ctx.Messages
	total := len(messages)
	if total == 0 {
		return ctx
	}

	used := 0
	firstKept := total
	for i := total - 1; i >= 0; i-- {
		keptSoFar := total - i
		tokens := message.EstimateMessageTokens(messages[i])
		if used+tokens > targetTokens && keptSoFar >= cfg.MinMessages {
			break
		}
		used += tokens
		firstKept = i
	}

	if total-firstKept < cfg.MinMessages {
		firstKept = total - cfg.MinMessages
		if firstKept < 0 {
			firstKept = 0
		}
	}

	out := make([]message.Message, total-firstKept)
	copy(out, messages[firstKept:])
	ctx.Messages = out
	return ctx
}

// compactPrune keeps every message but truncates any individual
// text/thinking part exceeding cfg.TruncateTextCeiling characters to
// prefix + "\n...[truncated]".
func compactPrune(ctx message.Context, cfg Config) message.Context {
	out := make([]message.Message, len(ctx.Messages))
	for i, m := range ctx.Messages {
		out[i] = truncateMessageParts(m, cfg.TruncateTextCeiling)
	}
	ctx.Messages = out
	return ctx
}

func truncateMessageParts(m message.Message, ceiling int) message.Message {
	switch v := m.(type) {
	case message.UserMessage:
		v.Text = truncateText(v.Text, ceiling)
		if len(v.Parts) > 0 {
			v.Parts = truncateToolResultParts(v.Parts, ceiling)
		}
		return v
	case message.AssistantMessage:
		v.Content = truncateParts(v.Content, ceiling)
		return v
	case message.ToolResultMessage:
		v.Content = truncateToolResultParts(v.Content, ceiling)
		return v
	default:
		return m
	}
}

func truncateParts(parts []message.ContentPart, ceiling int) []message.ContentPart {
	out := make([]message.ContentPart, len(parts))
	for i, p := range parts {
		switch v := p.(type) {
		case message.TextPart:
			v.Text = truncateText(v.Text, ceiling)
			out[i] = v
		case message.ThinkingPart:
			v.Thinking = truncateText(v.Thinking, ceiling)
			out[i] = v
		default:
			out[i] = p
		}
	}
	return out
}

func truncateToolResultParts(parts []message.ToolResultContentPart, ceiling int) []message.ToolResultContentPart {
	out := make([]message.ToolResultContentPart, len(parts))
	for i, p := range parts {
		if t, ok := p.(message.TextPart); ok {
			t.Text = truncateText(t.Text, ceiling)
			out[i] = t
			continue
		}
		out[i] = p
	}
	return out
}

func truncateText(s string, ceiling int) string {
	if len(s) <= ceiling {
		return s
	}
	return s[:ceiling] + "\n...[truncated]"
}
