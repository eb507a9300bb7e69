// Package event implements the provider-agnostic streaming event
// protocol: a lazy, finite, single-consumer sequence of typed events that
// together reconstruct exactly one assistant message.
//
// Events obey the grammar:
//
//	start (partStream)* (done | error)
//	partStream = textStart textDelta* textEnd
//	           | thinkingStart thinkingDelta* thinkingEnd
//	           | toolcallStart toolcallDelta* toolcallEnd
//
// contentIndex values are assigned in start order and never reused.
// Content parts may interleave at delta level only if their contentIndex
// values differ.
package event

import "github.com/xonecas/symbrt/message"

// Type identifies the kind of streaming event.
type Type int

const (
	Start Type = iota
	TextStart
	TextDelta
	TextEnd
	ThinkingStart
	ThinkingDelta
	ThinkingEnd
	ToolCallStart
	ToolCallDelta
	ToolCallEnd
	Done
	Error
)

// DoneReason is the reason carried on a Done event.
type DoneReason string

const (
	DoneStop    DoneReason = "stop"
	DoneLength  DoneReason = "length"
	DoneToolUse DoneReason = "toolUse"
)

// ErrorReason is the reason carried on an Error event.
type ErrorReason string

const (
	ErrorGeneric ErrorReason = "error"
	ErrorAborted ErrorReason = "aborted"
)

// Event is a single element of a provider's streaming response. Fields
// not relevant to Type are zero.
type Event struct {
	Type Type

	// Shell of the assistant message under construction, set only on Start.
	Partial *message.AssistantMessage

	// ContentIndex identifies which content part this event belongs to.
	// Set on every event except Start/Done/Error.
	ContentIndex int

	// Delta carries the incremental text for textDelta/thinkingDelta and
	// the JSON argument fragment for toolcallDelta.
	Delta string

	// Signature is the opaque provider token sealed on textEnd/thinkingEnd.
	Signature string

	// ToolCallID/ToolCallName are set on ToolCallStart.
	ToolCallID   string
	ToolCallName string

	// Arguments is the fully decoded tool-call argument map, set on
	// ToolCallEnd. Arguments are always a fully decoded object by the
	// time a ToolCallEnd event is observed.
	Arguments map[string]any

	// DoneReason is set on Done.
	DoneReason DoneReason

	// ErrorReason/ErrorMessage are set on Error.
	ErrorReason  ErrorReason
	ErrorMessage string

	// Usage is set on Done when the provider reports it inline; a
	// provider may instead report usage incrementally via its own
	// transport-specific events collapsed into this Done by the adapter.
	Usage message.Usage
}
