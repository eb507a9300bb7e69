package message

// Token estimation is a fixed heuristic used only to decide when to
// compact; the authoritative count always comes back in Usage from the
// provider. It is not corrected for Unicode width.
const (
	bytesPerTextToken  = 4
	bytesPerImageToken = 20
	perMessageOverhead = 4
)

// EstimateTokens estimates the token footprint of an entire context,
// including the system prompt.
func EstimateTokens(ctx Context) int {
	total := 0
	if ctx.SystemPrompt != "" {
		total += estimateTextTokens(ctx.SystemPrompt) + perMessageOverhead
	}
	for _, m := range ctx.Messages {
		total += EstimateMessageTokens(m)
	}
	return total
}

// EstimateMessageTokens estimates the token footprint of a single message.
func EstimateMessageTokens(m Message) int {
	total := perMessageOverhead
	switch v := m.(type) {
	case UserMessage:
		for _, p := range v.Content() {
			total += estimatePartTokens(p)
		}
	case AssistantMessage:
		for _, p := range v.Content {
			total += estimatePartTokens(p)
		}
	case ToolResultMessage:
		for _, p := range v.Content {
			total += estimatePartTokens(p)
		}
	}
	return total
}

func estimatePartTokens(p any) int {
	switch v := p.(type) {
	case TextPart:
		return estimateTextTokens(v.Text)
	case ThinkingPart:
		return estimateTextTokens(v.Thinking)
	case ImagePart:
		return estimateImageTokens(len(v.Data))
	case ToolCallPart:
		n := estimateTextTokens(v.Name)
		for k, val := range v.Arguments {
			n += estimateTextTokens(k)
			n += estimateArgTokens(val)
		}
		return n
	default:
		return 0
	}
}

func estimateArgTokens(v any) int {
	switch t := v.(type) {
	case string:
		return estimateTextTokens(t)
	default:
		// Rough fallback: treat any non-string scalar/structure as a
		// short token. This estimate is never authoritative.
		return 1
	}
}

func estimateTextTokens(s string) int {
	if len(s) == 0 {
		return 0
	}
	n := len(s) / bytesPerTextToken
	if n == 0 {
		n = 1
	}
	return n
}

func estimateImageTokens(byteLen int) int {
	if byteLen == 0 {
		return 0
	}
	n := byteLen / bytesPerImageToken
	if n == 0 {
		n = 1
	}
	return n
}
