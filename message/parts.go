// Package message defines the provider-agnostic message and content model:
// tagged content parts, user/assistant/tool-result messages, and the
// Context a conversation is carried in between agent turns.
package message

// ContentPart is one unit of an assistant message's content: text,
// thinking, image, or tool-call. Implementations are closed to this
// package's four kinds; callers type-switch on the concrete type.
type ContentPart interface {
	contentPart()
}

// TextPart is plain text content.
type TextPart struct {
	Text string
	// Signature is an opaque provider token preserved across turns for
	// providers that require echoing it back (e.g. a cache marker).
	Signature string
}

func (TextPart) contentPart() {}

// ThinkingPart is model-internal reasoning content. It is preserved
// verbatim across turns when the provider returns a Signature; this
// package never translates reasoning between providers.
type ThinkingPart struct {
	Thinking  string
	Signature string
}

func (ThinkingPart) contentPart() {}

// ImagePart is inline image content.
type ImagePart struct {
	// Data holds raw bytes or base64-encoded bytes, per MimeType convention.
	Data     []byte
	MimeType string
}

func (ImagePart) contentPart() {}

// ToolCallPart is a tool invocation requested by the model.
type ToolCallPart struct {
	ID   string
	Name string
	// Arguments is the fully decoded argument object. By construction a
	// ToolCallPart is never observed with partially-decoded arguments;
	// streaming accumulation happens in package event before a ToolCallPart
	// is ever created.
	Arguments map[string]any
	// ThoughtSignature is an opaque per-call token some providers (Gemini)
	// require preserved and echoed back on the next turn.
	ThoughtSignature string
}

func (ToolCallPart) contentPart() {}
