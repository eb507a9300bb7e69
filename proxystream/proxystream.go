// Package proxystream implements the streaming proxy reconstructor: a
// client-side Reconstructor that rebuilds the authoritative partial
// assistant message from a bandwidth-trimmed event wire (no partial
// snapshot riding every delta), plus SSE client/server framing for
// transporting that wire.
package proxystream

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xonecas/symbrt/event"
	"github.com/xonecas/symbrt/message"
)

// ProxyEvent is the wire shape a proxy server sends: the fields of
// event.Event except Partial and Arguments. The client rebuilds the
// partial message locally and decodes tool-call arguments from the
// ToolCallDelta fragments at ToolCallEnd, so a tool call sent with no
// ToolCallDelta fragments arrives with empty arguments.
type ProxyEvent struct {
	Type         event.Type        `json:"type"`
	ContentIndex int               `json:"contentIndex,omitempty"`
	Delta        string            `json:"delta,omitempty"`
	Signature    string            `json:"signature,omitempty"`
	ToolCallID   string            `json:"toolCallId,omitempty"`
	ToolCallName string            `json:"toolCallName,omitempty"`
	DoneReason   event.DoneReason  `json:"doneReason,omitempty"`
	ErrorReason  event.ErrorReason `json:"errorReason,omitempty"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
	Usage        message.Usage     `json:"usage,omitempty"`
}

// builder mirrors event.Collect's per-index accumulator; proxystream
// keeps its own copy because it also needs the raw tool-call argument
// buffer (for the strict parse at ToolCallEnd) and outlives a single
// Apply call across the whole stream.
type builder struct {
	kind      event.Type
	text      string
	toolID    string
	toolName  string
	toolArgs  string
	signature string
}

// Reconstructor rebuilds one assistant message's worth of content from a
// sequence of ProxyEvents, tracking a local authoritative copy keyed by
// contentIndex. Apply calls are serialized by a mutex, but events must
// still be applied in stream order.
type Reconstructor struct {
	mu        sync.Mutex
	partial   message.AssistantMessage
	builders  map[int]*builder
	order     []int
	nextIndex int
}

// NewReconstructor returns an empty Reconstructor, ready for a new
// stream's Start event.
func NewReconstructor() *Reconstructor {
	return &Reconstructor{builders: map[int]*builder{}}
}

// ErrOutOfOrder is returned by Apply when a *Start event's ContentIndex
// does not match the next expected index: a duplicate or reordered
// delivery, typically from a server retry.
type ErrOutOfOrder struct {
	Got, Want int
}

func (e *ErrOutOfOrder) Error() string {
	return fmt.Sprintf("proxystream: out-of-order content index %d, want %d", e.Got, e.Want)
}

// Apply applies one ProxyEvent to the local reconstruction and returns
// the equivalent full event.Event a consumer of package event expects.
// A malformed or out-of-order event.Event is returned as an error rather
// than silently corrupting the partial message.
func (r *Reconstructor) Apply(pe ProxyEvent) (event.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch pe.Type {
	case event.Start:
		r.partial = message.AssistantMessage{}
		r.builders = map[int]*builder{}
		r.order = nil
		r.nextIndex = 0
		return event.Event{Type: event.Start, Partial: &r.partial}, nil

	case event.TextStart, event.ThinkingStart, event.ToolCallStart:
		if pe.ContentIndex != r.nextIndex {
			return event.Event{}, &ErrOutOfOrder{Got: pe.ContentIndex, Want: r.nextIndex}
		}
		r.nextIndex++
		b := &builder{kind: pe.Type}
		if pe.Type == event.ToolCallStart {
			b.toolID = pe.ToolCallID
			b.toolName = pe.ToolCallName
		}
		r.builders[pe.ContentIndex] = b
		r.order = append(r.order, pe.ContentIndex)
		return event.Event{
			Type: pe.Type, ContentIndex: pe.ContentIndex,
			ToolCallID: pe.ToolCallID, ToolCallName: pe.ToolCallName,
		}, nil

	case event.TextDelta, event.ThinkingDelta:
		b, ok := r.builders[pe.ContentIndex]
		if !ok {
			return event.Event{}, fmt.Errorf("proxystream: delta for unknown content index %d", pe.ContentIndex)
		}
		b.text += pe.Delta
		return event.Event{Type: pe.Type, ContentIndex: pe.ContentIndex, Delta: pe.Delta}, nil

	case event.ToolCallDelta:
		b, ok := r.builders[pe.ContentIndex]
		if !ok {
			return event.Event{}, fmt.Errorf("proxystream: delta for unknown content index %d", pe.ContentIndex)
		}
		b.toolArgs += pe.Delta
		return event.Event{Type: event.ToolCallDelta, ContentIndex: pe.ContentIndex, Delta: pe.Delta}, nil

	case event.TextEnd, event.ThinkingEnd:
		b, ok := r.builders[pe.ContentIndex]
		if !ok {
			return event.Event{}, fmt.Errorf("proxystream: end for unknown content index %d", pe.ContentIndex)
		}
		b.signature = pe.Signature
		return event.Event{Type: pe.Type, ContentIndex: pe.ContentIndex, Signature: pe.Signature}, nil

	case event.ToolCallEnd:
		b, ok := r.builders[pe.ContentIndex]
		if !ok {
			return event.Event{}, fmt.Errorf("proxystream: end for unknown content index %d", pe.ContentIndex)
		}
		args, err := event.StrictParseArguments(b.toolArgs)
		if err != nil {
			return event.Event{}, fmt.Errorf("proxystream: tool call %q arguments failed to parse: %w", b.toolName, err)
		}
		return event.Event{Type: event.ToolCallEnd, ContentIndex: pe.ContentIndex, Arguments: args}, nil

	case event.Done:
		r.partial.StopReason = toStopReason(pe.DoneReason)
		r.partial.Usage = pe.Usage
		r.partial.Content = buildContent(r.order, r.builders)
		return event.Event{Type: event.Done, DoneReason: pe.DoneReason, Usage: pe.Usage}, nil

	case event.Error:
		r.partial.StopReason = message.StopReasonError
		r.partial.ErrorMessage = pe.ErrorMessage
		return event.Event{Type: event.Error, ErrorReason: pe.ErrorReason, ErrorMessage: pe.ErrorMessage}, nil

	default:
		return event.Event{}, fmt.Errorf("proxystream: unhandled proxy event type %v", pe.Type)
	}
}

// buildContent materializes content parts from builders in start order,
// mirroring event.Collect's buildContent (unexported there, so
// duplicated here rather than creating a cross-package dependency on an
// internal helper).
func buildContent(order []int, builders map[int]*builder) []message.ContentPart {
	parts := make([]message.ContentPart, 0, len(order))
	for _, idx := range order {
		b := builders[idx]
		switch b.kind {
		case event.TextStart:
			parts = append(parts, message.TextPart{Text: b.text, Signature: b.signature})
		case event.ThinkingStart:
			parts = append(parts, message.ThinkingPart{Thinking: b.text, Signature: b.signature})
		case event.ToolCallStart:
			args, _ := event.StrictParseArguments(b.toolArgs)
			parts = append(parts, message.ToolCallPart{ID: b.toolID, Name: b.toolName, Arguments: args})
		}
	}
	return parts
}

func toStopReason(r event.DoneReason) message.StopReason {
	switch r {
	case event.DoneLength:
		return message.StopReasonLength
	case event.DoneToolUse:
		return message.StopReasonToolUse
	default:
		return message.StopReasonStop
	}
}

// MarshalWire encodes evt as the bandwidth-trimmed wire event a server
// sends for one event.Event; deltas never carry the growing Partial
// snapshot.
func MarshalWire(evt event.Event) ([]byte, error) {
	pe := ProxyEvent{
		Type:         evt.Type,
		ContentIndex: evt.ContentIndex,
		Delta:        evt.Delta,
		Signature:    evt.Signature,
		ToolCallID:   evt.ToolCallID,
		ToolCallName: evt.ToolCallName,
		DoneReason:   evt.DoneReason,
		ErrorReason:  evt.ErrorReason,
		ErrorMessage: evt.ErrorMessage,
		Usage:        evt.Usage,
	}
	return json.Marshal(pe)
}
