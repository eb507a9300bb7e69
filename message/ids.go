package message

import "github.com/google/uuid"

// NewToolCallID synthesizes a tool-call ID for a provider that omits
// one on its ToolCallStart event. The prefix keeps synthesized IDs
// visually distinct from provider-assigned ones in logs and transcripts.
func NewToolCallID() string {
	return "call_" + uuid.NewString()
}
