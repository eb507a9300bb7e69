package compact

import "github.com/xonecas/symbrt/message"

// Adjust is a provider-specific post-processing pass: pure, and must
// never mutate the input context. The rewrites are purely
// presentational and must not leak back into the caller's context.
type Adjust func(message.Context) message.Context

// adjusters is keyed by the modelprovider.Provider.APIType() string, so
// package compact needs no import of modelprovider.
var adjusters = map[string]Adjust{
	"anthropic": AnthropicAdjust,
}

// RegisterAdjust adds or overrides the adjustment pass for an API type.
func RegisterAdjust(apiType string, fn Adjust) {
	adjusters[apiType] = fn
}

// AdjustFor returns the registered Adjust for apiType, or a no-op.
func AdjustFor(apiType string) Adjust {
	if fn, ok := adjusters[apiType]; ok {
		return fn
	}
	return func(c message.Context) message.Context { return c }
}

// AnthropicAdjust inserts a minimal placeholder user message after a
// tool-result that is followed neither by a user message nor by another
// tool-result (a tool-result that ends the context included), so each
// run of consecutive tool-results is followed by user-role content
// before the next assistant turn, as Anthropic-style APIs require.
func AnthropicAdjust(ctx message.Context) message.Context {
	out := make([]message.Message, 0, len(ctx.Messages)+1)
	for i, m := range ctx.Messages {
		out = append(out, m)
		if _, isResult := m.(message.ToolResultMessage); !isResult {
			continue
		}
		if i+1 < len(ctx.Messages) {
			if _, nextIsUser := ctx.Messages[i+1].(message.UserMessage); nextIsUser {
				continue
			}
			if _, nextIsResult := ctx.Messages[i+1].(message.ToolResultMessage); nextIsResult {
				continue
			}
		}
		out = append(out, message.UserMessage{Text: "Continue.", CreatedAt: m.Timestamp()})
	}
	ctx.Messages = out
	return ctx
}

// InlineThinking renders ThinkingPart content as plain TextPart content
// for providers that do not model reasoning as a separate content kind.
func InlineThinking(ctx message.Context) message.Context {
	out := make([]message.Message, len(ctx.Messages))
	for i, m := range ctx.Messages {
		am, ok := m.(message.AssistantMessage)
		if !ok {
			out[i] = m
			continue
		}
		parts := make([]message.ContentPart, 0, len(am.Content))
		for _, p := range am.Content {
			if th, ok := p.(message.ThinkingPart); ok {
				parts = append(parts, message.TextPart{Text: "[thinking] " + th.Thinking})
				continue
			}
			parts = append(parts, p)
		}
		am.Content = parts
		out[i] = am
	}
	ctx.Messages = out
	return ctx
}
