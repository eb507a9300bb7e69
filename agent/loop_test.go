package agent

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xonecas/symbrt/event"
	"github.com/xonecas/symbrt/message"
	"github.com/xonecas/symbrt/modelprovider"
	"github.com/xonecas/symbrt/toolkit"
)

func textScript(text string) []event.Event {
	return []event.Event{
		{Type: event.Start},
		{Type: event.TextStart, ContentIndex: 0},
		{Type: event.TextDelta, ContentIndex: 0, Delta: text},
		{Type: event.TextEnd, ContentIndex: 0},
		{Type: event.Done, DoneReason: event.DoneStop},
	}
}

func toolCallScript(calls ...message.ToolCallPart) []event.Event {
	evts := []event.Event{{Type: event.Start}}
	for i, tc := range calls {
		evts = append(evts,
			event.Event{Type: event.ToolCallStart, ContentIndex: i, ToolCallID: tc.ID, ToolCallName: tc.Name},
			event.Event{Type: event.ToolCallEnd, ContentIndex: i, Arguments: tc.Arguments},
		)
	}
	evts = append(evts, event.Event{Type: event.Done, DoneReason: event.DoneToolUse})
	return evts
}

func echoTool(name string, handler toolkit.Handler) *toolkit.Registry {
	reg := toolkit.NewRegistry()
	_ = reg.Register(message.ToolDescriptor{Name: name, Description: "test tool"}, handler)
	return reg
}

func testModel() modelprovider.Model {
	return modelprovider.Model{ID: "mock-model", Provider: "mock"}
}

func newConvo(userText string) message.Context {
	return message.Context{}.Append(message.UserMessage{Text: userText, CreatedAt: time.Now()})
}

// A plain text response with no tool calls completes in one turn.
func TestLoop_PlainResponse(t *testing.T) {
	provider := modelprovider.NewMock("p1", textScript("hello there"))
	reg := toolkit.NewRegistry()
	l := New(provider, testModel(), reg, Options{})

	got, err := l.Run(context.Background(), newConvo("hi"), RunOptions{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got.StopReason != message.StopReasonStop {
		t.Fatalf("got stop reason %v, want stop", got.StopReason)
	}
	if got.Text() != "hello there" {
		t.Fatalf("got text %q", got.Text())
	}
	if l.State() != StateIdle {
		t.Fatalf("got state %v, want idle", l.State())
	}
}

// A single tool call followed by a text answer.
func TestLoop_SingleToolCallThenAnswer(t *testing.T) {
	call := message.ToolCallPart{ID: "call-1", Name: "echo", Arguments: map[string]any{"msg": "hi"}}
	provider := modelprovider.NewMock("p2", toolCallScript(call), textScript("done"))
	reg := echoTool("echo", func(args map[string]any, tc toolkit.ToolContext) (any, error) {
		return "echoed: " + args["msg"].(string), nil
	})
	l := New(provider, testModel(), reg, Options{})

	var results []Lifecycle
	got, err := l.Run(context.Background(), newConvo("run the tool"), RunOptions{
		OnLifecycle: func(e Lifecycle) { results = append(results, e) },
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got.Text() != "done" {
		t.Fatalf("got text %q", got.Text())
	}
	var sawToolResult bool
	for _, e := range results {
		if e.Kind == LifecycleToolResult && e.ToolText == "echoed: hi" {
			sawToolResult = true
		}
	}
	if !sawToolResult {
		t.Fatalf("expected a LifecycleToolResult carrying the echoed text, got %+v", results)
	}
}

// A tool call that fails once then succeeds on retry.
func TestLoop_RetrySucceedsAfterTransientFailure(t *testing.T) {
	call := message.ToolCallPart{ID: "call-1", Name: "flaky", Arguments: map[string]any{}}
	provider := modelprovider.NewMock("p3", toolCallScript(call), textScript("recovered"))

	var attempts atomic.Int32
	reg := echoTool("flaky", func(args map[string]any, tc toolkit.ToolContext) (any, error) {
		if attempts.Add(1) == 1 {
			return nil, errors.New("transient failure")
		}
		return "ok", nil
	})
	l := New(provider, testModel(), reg, Options{RetryAttempts: 3, RetryDelayBase: time.Millisecond})

	got, err := l.Run(context.Background(), newConvo("go"), RunOptions{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got.Text() != "recovered" {
		t.Fatalf("got text %q", got.Text())
	}
	if attempts.Load() != 2 {
		t.Fatalf("got %d attempts, want 2", attempts.Load())
	}
}

// A tool handler that steers mid-turn cuts a sequential batch short;
// the steering message is appended and the loop resumes at step 2.
func TestLoop_SteeringInterruptsSequentialBatch(t *testing.T) {
	call1 := message.ToolCallPart{ID: "call-1", Name: "first", Arguments: map[string]any{}}
	call2 := message.ToolCallPart{ID: "call-2", Name: "second", Arguments: map[string]any{}}
	provider := modelprovider.NewMock("p4",
		toolCallScript(call1, call2),
		textScript("acknowledged"),
	)

	var secondRan atomic.Bool
	reg := toolkit.NewRegistry()
	var l *Loop
	_ = reg.Register(message.ToolDescriptor{Name: "first"}, func(args map[string]any, tc toolkit.ToolContext) (any, error) {
		l.Steer("stop what you're doing")
		return "first done", nil
	})
	_ = reg.Register(message.ToolDescriptor{Name: "second"}, func(args map[string]any, tc toolkit.ToolContext) (any, error) {
		secondRan.Store(true)
		return "second done", nil
	})
	l = New(provider, testModel(), reg, Options{EnableParallelTools: false, EnableSteering: true})

	got, err := l.Run(context.Background(), newConvo("go"), RunOptions{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if secondRan.Load() {
		t.Fatalf("expected second tool call to be preempted by steering")
	}
	if got.Text() != "acknowledged" {
		t.Fatalf("got text %q", got.Text())
	}
}

// Steering already pending the moment the turn's stream ends with a
// tool-call means that tool never runs at all. Distinct from
// TestLoop_SteeringInterruptsSequentialBatch, which only exercises the
// between-each-call check for a *second* tool call; this exercises the
// pre-execution check ahead of runTools.
func TestLoop_SteeringPendingBeforeExecutionSkipsOnlyToolCall(t *testing.T) {
	call := message.ToolCallPart{ID: "call-1", Name: "first", Arguments: map[string]any{}}
	provider := modelprovider.NewMock("p4b", toolCallScript(call), textScript("acknowledged"))

	var ran atomic.Bool
	reg := toolkit.NewRegistry()
	_ = reg.Register(message.ToolDescriptor{Name: "first"}, func(args map[string]any, tc toolkit.ToolContext) (any, error) {
		ran.Store(true)
		return "first done", nil
	})
	l := New(provider, testModel(), reg, Options{EnableSteering: true})

	got, err := l.Run(context.Background(), newConvo("go"), RunOptions{
		// Enqueue the steering message the instant the stream reports
		// Done(toolUse), before the loop ever sees the tool call.
		OnEvent: func(evt event.Event) {
			if evt.Type == event.Done && evt.DoneReason == event.DoneToolUse {
				l.Steer("stop and summarize")
			}
		},
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if ran.Load() {
		t.Fatalf("expected the only tool call to be preempted by already-pending steering")
	}
	if got.Text() != "acknowledged" {
		t.Fatalf("got text %q", got.Text())
	}
}

// flakyStreamProvider wraps a Provider, failing Stream with a retryable
// transport error a fixed number of times before delegating. Exercises
// the loop-level retry wrapping around l.provider.Stream, distinct from
// the per-tool retry in agent/tools.go.
type flakyStreamProvider struct {
	modelprovider.Provider
	failures int32
	attempts atomic.Int32
}

func (p *flakyStreamProvider) Stream(ctx context.Context, model modelprovider.Model, convo message.Context, opts modelprovider.Options) (event.Stream, error) {
	if p.attempts.Add(1) <= p.failures {
		return nil, errors.New("connection reset by peer")
	}
	return p.Provider.Stream(ctx, model, convo, opts)
}

// A transient provider-stream error (not a tool error) is retried by
// the loop itself and the run still completes; only errors that survive
// retry are terminal for the run.
func TestLoop_ProviderStreamRetriesTransientFailure(t *testing.T) {
	base := modelprovider.NewMock("p11", textScript("recovered"))
	flaky := &flakyStreamProvider{Provider: base, failures: 1}
	l := New(flaky, testModel(), toolkit.NewRegistry(), Options{RetryAttempts: 3})

	got, err := l.Run(context.Background(), newConvo("go"), RunOptions{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got.Text() != "recovered" {
		t.Fatalf("got text %q", got.Text())
	}
	if got.StopReason != message.StopReasonStop {
		t.Fatalf("got stop reason %v, want stop", got.StopReason)
	}
	if flaky.attempts.Load() != 2 {
		t.Fatalf("got %d stream attempts, want 2 (1 failure + 1 success)", flaky.attempts.Load())
	}
}

// Parallel fan-out preserves call order in the appended results
// regardless of completion order.
func TestLoop_ParallelFanOutPreservesOrder(t *testing.T) {
	calls := []message.ToolCallPart{
		{ID: "call-1", Name: "slow", Arguments: map[string]any{}},
		{ID: "call-2", Name: "fast", Arguments: map[string]any{}},
	}
	provider := modelprovider.NewMock("p5", toolCallScript(calls...), textScript("done"))

	reg := toolkit.NewRegistry()
	_ = reg.Register(message.ToolDescriptor{Name: "slow"}, func(args map[string]any, tc toolkit.ToolContext) (any, error) {
		time.Sleep(20 * time.Millisecond)
		return "slow-result", nil
	})
	_ = reg.Register(message.ToolDescriptor{Name: "fast"}, func(args map[string]any, tc toolkit.ToolContext) (any, error) {
		return "fast-result", nil
	})
	l := New(provider, testModel(), reg, Options{EnableParallelTools: true, MaxParallelTools: 4})

	var order []string
	got, err := l.Run(context.Background(), newConvo("go"), RunOptions{
		OnLifecycle: func(e Lifecycle) {
			if e.Kind == LifecycleToolResult {
				order = append(order, e.ToolText)
			}
		},
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got.Text() != "done" {
		t.Fatalf("got text %q", got.Text())
	}
	if len(order) != 2 || order[0] != "slow-result" || order[1] != "fast-result" {
		t.Fatalf("got result order %v, want [slow-result fast-result]", order)
	}
}

// A long conversation triggers auto-compaction without breaking the
// toolCall/toolResult pairing invariant or the run itself.
func TestLoop_AutoCompactionPreservesPairing(t *testing.T) {
	provider := modelprovider.NewMock("p6", textScript("ok"))
	reg := toolkit.NewRegistry()
	l := New(provider, testModel(), reg, Options{
		AutoCompact:         true,
		MaxContextTokens:    200,
		CompactionThreshold: 0.1,
	})

	convo := newConvo("start")
	for i := 0; i < 50; i++ {
		convo = convo.Append(message.UserMessage{
			Text:      fmt.Sprintf("padding message number %d with some extra filler text to burn tokens", i),
			CreatedAt: time.Now(),
		})
	}

	got, err := l.Run(context.Background(), convo, RunOptions{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got.Text() != "ok" {
		t.Fatalf("got text %q", got.Text())
	}
}

// A tool call loop that never terminates on its own hits the
// iteration ceiling and returns an error-stopped message instead of
// running forever.
func TestLoop_IterationCeiling(t *testing.T) {
	call := message.ToolCallPart{ID: "call-1", Name: "loop", Arguments: map[string]any{}}
	provider := modelprovider.NewMock("p7", toolCallScript(call))
	reg := echoTool("loop", func(args map[string]any, tc toolkit.ToolContext) (any, error) {
		return "again", nil
	})
	l := New(provider, testModel(), reg, Options{MaxIterations: 3})

	got, err := l.Run(context.Background(), newConvo("go"), RunOptions{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got.StopReason != message.StopReasonError {
		t.Fatalf("got stop reason %v, want error", got.StopReason)
	}
	if l.State() != StateError {
		t.Fatalf("got state %v, want error", l.State())
	}
}

// RunContinue resuming with unresolved tool calls executes them before
// calling back into the model.
func TestLoop_RunContinueExecutesUnresolvedToolCalls(t *testing.T) {
	call := message.ToolCallPart{ID: "call-1", Name: "echo", Arguments: map[string]any{"msg": "x"}}
	provider := modelprovider.NewMock("p8", textScript("continued"))
	reg := echoTool("echo", func(args map[string]any, tc toolkit.ToolContext) (any, error) {
		return "echoed", nil
	})
	l := New(provider, testModel(), reg, Options{})

	convo := newConvo("go").Append(message.AssistantMessage{
		Content:    []message.ContentPart{call},
		StopReason: message.StopReasonToolUse,
		CreatedAt:  time.Now(),
	})

	got, err := l.RunContinue(context.Background(), convo, RunOptions{})
	if err != nil {
		t.Fatalf("RunContinue returned error: %v", err)
	}
	if got.Text() != "continued" {
		t.Fatalf("got text %q", got.Text())
	}
}

// RunContinue on an already-stopped context with no pending calls is
// idempotent.
func TestLoop_RunContinueIdempotentOnStoppedContext(t *testing.T) {
	provider := modelprovider.NewMock("p9", textScript("unused"))
	reg := toolkit.NewRegistry()
	l := New(provider, testModel(), reg, Options{})

	final := message.AssistantMessage{
		Content:    []message.ContentPart{message.TextPart{Text: "already done"}},
		StopReason: message.StopReasonStop,
		CreatedAt:  time.Now(),
	}
	convo := newConvo("go").Append(final)

	got, err := l.RunContinue(context.Background(), convo, RunOptions{})
	if err != nil {
		t.Fatalf("RunContinue returned error: %v", err)
	}
	if got.Text() != "already done" {
		t.Fatalf("got text %q, want unchanged message", got.Text())
	}
}

// RunContinue on a bare trailing user message is not resumable.
func TestLoop_RunContinueRejectsUserMessage(t *testing.T) {
	provider := modelprovider.NewMock("p10", textScript("unused"))
	reg := toolkit.NewRegistry()
	l := New(provider, testModel(), reg, Options{})

	_, err := l.RunContinue(context.Background(), newConvo("go"), RunOptions{})
	if !errors.Is(err, ErrInvalidContinue) {
		t.Fatalf("got err %v, want ErrInvalidContinue", err)
	}
}
