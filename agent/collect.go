package agent

import (
	"context"
	"fmt"

	"github.com/xonecas/symbrt/event"
	"github.com/xonecas/symbrt/message"
)

// partBuilder mirrors event.Collect's internal accumulator; duplicated
// here (rather than exported from package event) because collectAndForward
// also needs to forward each event to opts.OnEvent as it is consumed,
// and event.Collect offers no such hook.
type partBuilder struct {
	kind      event.Type
	text      string
	toolID    string
	toolName  string
	toolArgs  map[string]any
	signature string
}

// collectAndForward blocks until stream reaches Done or Error, exactly
// like event.Collect, but additionally calls opts.emit(evt) for every
// event as it arrives so a caller's RunOptions.OnEvent sees the live
// stream while the loop still gets the finished message back.
func collectAndForward(ctx context.Context, stream event.Stream, opts RunOptions) (*message.AssistantMessage, error) {
	var msg message.AssistantMessage
	builders := map[int]*partBuilder{}
	var order []int

	ensure := func(idx int, kind event.Type) *partBuilder {
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
				return nil, fmt.Errorf("event stream closed without done or error")
			}
			opts.emit(evt)

			switch evt.Type {
			case event.Start:
				if evt.Partial != nil {
					msg = *evt.Partial
				}
			case event.TextStart:
				ensure(evt.ContentIndex, event.TextStart)
			case event.TextDelta:
				ensure(evt.ContentIndex, event.TextStart).text += evt.Delta
			case event.TextEnd:
				ensure(evt.ContentIndex, event.TextStart).signature = evt.Signature
			case event.ThinkingStart:
				ensure(evt.ContentIndex, event.ThinkingStart)
			case event.ThinkingDelta:
				ensure(evt.ContentIndex, event.ThinkingStart).text += evt.Delta
			case event.ThinkingEnd:
				ensure(evt.ContentIndex, event.ThinkingStart).signature = evt.Signature
			case event.ToolCallStart:
				b := ensure(evt.ContentIndex, event.ToolCallStart)
				b.toolID = evt.ToolCallID
				if b.toolID == "" {
					b.toolID = message.NewToolCallID()
				}
				b.toolName = evt.ToolCallName
			case event.ToolCallDelta:
				// Raw argument fragments are not retained; only the
				// authoritative ToolCallEnd.Arguments builds the final part.
			case event.ToolCallEnd:
				b := ensure(evt.ContentIndex, event.ToolCallStart)
				b.toolArgs = evt.Arguments
			case event.Done:
				msg.StopReason = toStopReason(evt.DoneReason)
				msg.Usage = evt.Usage
				msg.Content = buildContent(order, builders)
				return &msg, nil
			case event.Error:
				return nil, &event.TerminalError{Reason: evt.ErrorReason, Message: evt.ErrorMessage}
			}
		}
	}
}

func buildContent(order []int, builders map[int]*partBuilder) []message.ContentPart {
	parts := make([]message.ContentPart, 0, len(order))
	for _, idx := range order {
		b := builders[idx]
		switch b.kind {
		case event.TextStart:
			parts = append(parts, message.TextPart{Text: b.text, Signature: b.signature})
		case event.ThinkingStart:
			parts = append(parts, message.ThinkingPart{Thinking: b.text, Signature: b.signature})
		case event.ToolCallStart:
			parts = append(parts, message.ToolCallPart{
				ID:        b.toolID,
				Name:      b.toolName,
				Arguments: b.toolArgs,
			})
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
