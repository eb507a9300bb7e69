package message

import "time"

// StopReason is why an assistant turn ended.
type StopReason string

const (
	StopReasonStop    StopReason = "stop"
	StopReasonLength  StopReason = "length"
	StopReasonToolUse StopReason = "toolUse"
	StopReasonError   StopReason = "error"
	StopReasonAborted StopReason = "aborted"
)

// Cost holds per-million-token-derived dollar costs for one Usage.
type Cost struct {
	Input      float64
	Output     float64
	CacheRead  float64
	CacheWrite float64
	Total      float64
}

// Usage reports token accounting for one assistant turn.
type Usage struct {
	Input       int
	Output      int
	CacheRead   int
	CacheWrite  int
	TotalTokens int
	Cost        Cost
}

// Message is implemented by UserMessage, AssistantMessage, and
// ToolResultMessage. A Message is immutable once appended to a Context;
// the only mutation that ever happens is internal to an in-flight
// streaming reconstruction, before the message is appended.
type Message interface {
	message()
	Timestamp() time.Time
}

// UserContentPart is the restricted content a user message may carry:
// text or image, never thinking or tool-call parts.
type UserContentPart interface {
	userContentPart()
}

func (TextPart) userContentPart()  {}
func (ImagePart) userContentPart() {}

// UserMessage is a message from the human or caller side of the
// conversation. Content is either a bare string (the common case) or an
// ordered sequence of text/image parts.
type UserMessage struct {
	Text      string
	Parts     []UserContentPart
	CreatedAt time.Time
}

func (UserMessage) message()               {}
func (m UserMessage) Timestamp() time.Time { return m.CreatedAt }

// Content returns the ordered content parts, synthesizing a single
// TextPart from Text when Parts is unset.
func (m UserMessage) Content() []UserContentPart {
	if len(m.Parts) > 0 {
		return m.Parts
	}
	if m.Text == "" {
		return nil
	}
	return []UserContentPart{TextPart{Text: m.Text}}
}

// AssistantMessage is the model's response to a turn: an ordered sequence
// of content parts plus the metadata the provider returned alongside it.
type AssistantMessage struct {
	Content      []ContentPart
	API          string
	Provider     string
	Model        string
	Usage        Usage
	StopReason   StopReason
	ErrorMessage string
	CreatedAt    time.Time
}

func (AssistantMessage) message()               {}
func (m AssistantMessage) Timestamp() time.Time { return m.CreatedAt }

// ToolCalls returns every ToolCallPart in Content, in content order.
func (m AssistantMessage) ToolCalls() []ToolCallPart {
	var calls []ToolCallPart
	for _, p := range m.Content {
		if tc, ok := p.(ToolCallPart); ok {
			calls = append(calls, tc)
		}
	}
	return calls
}

// Text concatenates every TextPart in Content, in content order.
func (m AssistantMessage) Text() string {
	var out string
	for _, p := range m.Content {
		if t, ok := p.(TextPart); ok {
			out += t.Text
		}
	}
	return out
}

// ToolResultContentPart is the restricted content a tool result may
// carry: text or image.
type ToolResultContentPart = UserContentPart

// ToolResultMessage is produced by executing a tool call and injected
// back into the context for the next model call.
type ToolResultMessage struct {
	ToolCallID string
	ToolName   string
	Content    []ToolResultContentPart
	IsError    bool
	CreatedAt  time.Time
}

func (ToolResultMessage) message()               {}
func (m ToolResultMessage) Timestamp() time.Time { return m.CreatedAt }

// Text concatenates every text part of the tool result.
func (m ToolResultMessage) Text() string {
	var out string
	for _, p := range m.Content {
		if t, ok := p.(TextPart); ok {
			out += t.Text
		}
	}
	return out
}

// NewTextToolResult builds a ToolResultMessage carrying a single text part.
func NewTextToolResult(toolCallID, toolName, text string, isError bool) ToolResultMessage {
	return ToolResultMessage{
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Content:    []ToolResultContentPart{TextPart{Text: text}},
		IsError:    isError,
		CreatedAt:  time.Now(),
	}
}
