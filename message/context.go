package message

import "encoding/json"

// ToolDescriptor is what the model sees for a registered tool: name,
// description, and a JSON-Schema parameter shape. Handler and
// confirmation-required flag are bound at registration time in package
// toolkit and never appear here.
type ToolDescriptor struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Context is the conversation state passed to a provider and extended by
// the agent loop across turns. Loop.Run and Loop.RunContinue work on a
// copy: the messages they append are not visible in the caller's
// Context, and only the final assistant message is returned.
type Context struct {
	SystemPrompt string
	Messages     []Message
	Tools        []ToolDescriptor
}

// Append returns a new Context with msg appended. Messages is always
// copied into a new slice, so the receiver's Messages slice is never
// modified.
func (c Context) Append(msg Message) Context {
	next := make([]Message, len(c.Messages), len(c.Messages)+1)
	copy(next, c.Messages)
	next = append(next, msg)
	c.Messages = next
	return c
}

// Clone returns a deep-enough copy of c: a new Messages slice (messages
// themselves are immutable value types, so no further copying is
// required) and a new Tools slice.
func (c Context) Clone() Context {
	msgs := make([]Message, len(c.Messages))
	copy(msgs, c.Messages)
	tools := make([]ToolDescriptor, len(c.Tools))
	copy(tools, c.Tools)
	return Context{SystemPrompt: c.SystemPrompt, Messages: msgs, Tools: tools}
}

// LastMessage returns the last message in the context, or nil if empty.
func (c Context) LastMessage() Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// PendingToolCallIDs returns the IDs of tool calls in the last
// assistant message that have no matching tool result yet appended; an
// unmatched tool call places the context in an interruptible
// intermediate state.
func (c Context) PendingToolCallIDs() []string {
	am, ok := c.LastMessage().(AssistantMessage)
	if !ok {
		return nil
	}
	calls := am.ToolCalls()
	if len(calls) == 0 {
		return nil
	}
	ids := make([]string, len(calls))
	for i, tc := range calls {
		ids[i] = tc.ID
	}
	return ids
}
