package event

import (
	"context"
	"fmt"

	"github.com/xonecas/symbrt/message"
)

// Stream is the producer side of the event sequence: a single-consumer
// channel closed by the producer after it sends a Done or Error event.
type Stream = <-chan Event

// TerminalError is returned by Collect when the stream ends with an
// Error event, surfacing its reason and message as a Go error.
type TerminalError struct {
	Reason  ErrorReason
	Message string
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("stream terminated (%s): %s", e.Reason, e.Message)
}

// partBuilder accumulates one content part across its start/delta/end
// triplet, keyed by ContentIndex.
type partBuilder struct {
	kind      Type // TextStart, ThinkingStart, or ToolCallStart
	text      string
	toolID    string
	toolName  string
	toolArgs  map[string]any
	signature string
}

// Collect blocks until the stream reaches Done or Error, replaying
// deltas into a growing assistant message. On Error it returns a
// *TerminalError.
func Collect(ctx context.Context, stream Stream) (*message.AssistantMessage, error) {
	var msg message.AssistantMessage
	builders := map[int]*partBuilder{}
	var order []int

	ensure := func(idx int, kind Type) *partBuilder {
		b, ok := builders[idx]
		if !ok {
			b = &partBuilder{kind: kind}
			builders[idx] = b
			order = append(order, idx)
		}
		return b
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case evt, ok := <-stream:
			if !ok {
				// A well-formed stream always sends Done or Error before
				// closing; a producer that closes early is a protocol
				// violation.
				return nil, fmt.Errorf("event stream closed without done or error")
			}
			switch evt.Type {
			case Start:
				if evt.Partial != nil {
					msg = *evt.Partial
				}
			case TextStart:
				ensure(evt.ContentIndex, TextStart)
			case TextDelta:
				ensure(evt.ContentIndex, TextStart).text += evt.Delta
			case TextEnd:
				ensure(evt.ContentIndex, TextStart).signature = evt.Signature
			case ThinkingStart:
				ensure(evt.ContentIndex, ThinkingStart)
			case ThinkingDelta:
				ensure(evt.ContentIndex, ThinkingStart).text += evt.Delta
			case ThinkingEnd:
				ensure(evt.ContentIndex, ThinkingStart).signature = evt.Signature
			case ToolCallStart:
				b := ensure(evt.ContentIndex, ToolCallStart)
				b.toolID = evt.ToolCallID
				if b.toolID == "" {
					b.toolID = message.NewToolCallID()
				}
				b.toolName = evt.ToolCallName
			case ToolCallDelta:
				// Raw argument fragments are not retained by the blocking
				// collector; only the authoritative ToolCallEnd.Arguments
				// is used to build the final ToolCallPart.
			case ToolCallEnd:
				b := ensure(evt.ContentIndex, ToolCallStart)
				b.toolArgs = evt.Arguments
			case Done:
				msg.StopReason = toStopReason(evt.DoneReason)
				msg.Usage = evt.Usage
				msg.Content = buildContent(order, builders)
				return &msg, nil
			case Error:
				return nil, &TerminalError{Reason: evt.ErrorReason, Message: evt.ErrorMessage}
			}
		}
	}
}

// buildContent materializes content parts from builders in start order.
func buildContent(order []int, builders map[int]*partBuilder) []message.ContentPart {
	parts := make([]message.ContentPart, 0, len(order))
	for _, idx := range order {
		b := builders[idx]
		switch b.kind {
		case TextStart:
			parts = append(parts, message.TextPart{Text: b.text, Signature: b.signature})
		case ThinkingStart:
			parts = append(parts, message.ThinkingPart{Thinking: b.text, Signature: b.signature})
		case ToolCallStart:
			parts = append(parts, message.ToolCallPart{
				ID:        b.toolID,
				Name:      b.toolName,
				Arguments: b.toolArgs,
			})
		}
	}
	return parts
}

func toStopReason(r DoneReason) message.StopReason {
	switch r {
	case DoneLength:
		return message.StopReasonLength
	case DoneToolUse:
		return message.StopReasonToolUse
	default:
		return message.StopReasonStop
	}
}

// StreamText consumes stream and yields UI-facing text chunks as they
// arrive, closing the returned channel when the stream ends (whether
// normally or with an error; the error, if any, is sent on errc).
func StreamText(ctx context.Context, stream Stream) (<-chan string, <-chan error) {
	out := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		for {
			select {
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			case evt, ok := <-stream:
				if !ok {
					return
				}
				switch evt.Type {
				case TextDelta:
					select {
					case out <- evt.Delta:
					case <-ctx.Done():
						errc <- ctx.Err()
						return
					}
				case Done:
					return
				case Error:
					errc <- &TerminalError{Reason: evt.ErrorReason, Message: evt.ErrorMessage}
					return
				}
			}
		}
	}()
	return out, errc
}
