package proxystream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xonecas/symbrt/event"
)

// ReadSSE parses a proxy server's `data: <json>\n\n` SSE body into an
// event.Stream, reconstructing each event.Event through a fresh
// Reconstructor. It closes the returned channel once a Done or Error
// event is delivered, or the reader is exhausted, or ctx is cancelled.
func ReadSSE(ctx context.Context, r io.Reader) event.Stream {
	ch := make(chan event.Event)
	go func() {
		defer close(ch)
		rec := NewReconstructor()

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 512*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "" {
				continue
			}

			var pe ProxyEvent
			if err := json.Unmarshal([]byte(data), &pe); err != nil {
				log.Warn().Err(err).Str("data", data).Msg("proxystream: failed to parse proxy event")
				continue
			}

			evt, err := rec.Apply(pe)
			if err != nil {
				log.Warn().Err(err).Msg("proxystream: failed to reconstruct proxy event")
				if !trySend(ctx, ch, event.Event{Type: event.Error, ErrorReason: event.ErrorGeneric, ErrorMessage: err.Error()}) {
					return
				}
				return
			}

			if !trySend(ctx, ch, evt) {
				return
			}
			if evt.Type == event.Done || evt.Type == event.Error {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			trySend(ctx, ch, event.Event{Type: event.Error, ErrorReason: event.ErrorGeneric, ErrorMessage: err.Error()})
		}
	}()
	return ch
}

func trySend(ctx context.Context, ch chan<- event.Event, evt event.Event) bool {
	select {
	case ch <- evt:
		return true
	case <-ctx.Done():
		return false
	}
}

// Server writes event.Events as SSE lines to an http.ResponseWriter,
// flushing after every write so a proxy client sees each event as it is
// produced rather than buffered behind the handler's return.
type Server struct {
	w http.ResponseWriter
	f http.Flusher
}

// NewServer prepares w for SSE and returns a Server, or an error if w
// does not support flushing (required for a streaming response).
func NewServer(w http.ResponseWriter) (*Server, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("proxystream: response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &Server{w: w, f: f}, nil
}

// WriteEvent sends one event.Event to the client, stripping Partial
// (never part of the wire shape) and flushing immediately.
func (s *Server) WriteEvent(evt event.Event) error {
	payload, err := MarshalWire(evt)
	if err != nil {
		return fmt.Errorf("proxystream: failed to marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("proxystream: failed to write event: %w", err)
	}
	s.f.Flush()
	return nil
}

// Pipe drains stream to the client, stopping at the first Done or Error
// event (inclusive) or when ctx is cancelled.
func (s *Server) Pipe(ctx context.Context, stream event.Stream) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-stream:
			if !ok {
				return nil
			}
			if err := s.WriteEvent(evt); err != nil {
				return err
			}
			if evt.Type == event.Done || evt.Type == event.Error {
				return nil
			}
		}
	}
}
