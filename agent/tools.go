package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xonecas/symbrt/message"
	"github.com/xonecas/symbrt/parallel"
	"github.com/xonecas/symbrt/queue"
	"github.com/xonecas/symbrt/toolkit"
)

// runTools enforces the soft per-turn tool-call ceiling, then dispatches
// sequentially (with a steering peek between each call) or in parallel
// through package parallel, and appends the assistant message plus every
// tool-result to convo in tool-call order regardless of completion
// order. steered reports whether a steering message cut the turn short,
// in which case the caller must not also append the assistant message a
// second time.
func (l *Loop) runTools(ctx context.Context, convo message.Context, assistant *message.AssistantMessage, calls []message.ToolCallPart, opts RunOptions) (message.Context, bool) {
	execCalls, overflowCalls := l.splitForTurnCeiling(calls)

	var steered bool
	var results []message.ToolResultMessage

	if len(execCalls) == 1 || !l.opts.EnableParallelTools {
		results, steered = l.runSequential(ctx, execCalls, opts)
	} else {
		results = l.runParallel(ctx, execCalls, opts)
	}

	for _, tc := range overflowCalls {
		results = append(results, message.NewTextToolResult(tc.ID, tc.Name,
			"Error: exceeded max tool calls per turn", true))
	}

	if steered {
		// Sequential execution stopped early on a steering message: append
		// the assistant message, every result produced so far, and the
		// steering message itself, then start the next turn.
		convo = convo.Append(*assistant)
		for _, r := range results {
			convo = convo.Append(r)
		}
		if msg, ok := l.queue.GetNext(queue.Steering); ok {
			convo = convo.Append(message.UserMessage{Text: msg.Content, CreatedAt: time.Now()})
		}
		return convo, true
	}

	convo = convo.Append(*assistant)
	for _, r := range results {
		convo = convo.Append(r)
		opts.notify(Lifecycle{Kind: LifecycleToolResult, ToolName: r.ToolName, ToolText: r.Text()})
	}
	return convo, false
}

// splitForTurnCeiling enforces MaxToolCallsPerTurn: calls beyond the
// ceiling never run and get a synthetic error result instead, so every
// tool-call is still matched by a tool-result.
func (l *Loop) splitForTurnCeiling(calls []message.ToolCallPart) (exec, overflow []message.ToolCallPart) {
	if len(calls) <= l.opts.MaxToolCallsPerTurn {
		return calls, nil
	}
	return calls[:l.opts.MaxToolCallsPerTurn], calls[l.opts.MaxToolCallsPerTurn:]
}

// runSequential executes calls one at a time, peeking the steering queue
// between each. This is the only point sequential mode is interruptible
// mid-turn; parallel mode only honors steering at turn boundaries.
func (l *Loop) runSequential(ctx context.Context, calls []message.ToolCallPart, opts RunOptions) ([]message.ToolResultMessage, bool) {
	results := make([]message.ToolResultMessage, 0, len(calls))
	for _, tc := range calls {
		results = append(results, l.dispatchWithRetry(ctx, tc, opts))
		if l.opts.EnableSteering {
			if _, ok := l.queue.Peek(queue.Steering); ok {
				return results, true
			}
		}
	}
	return results, false
}

// runParallel fans calls out through package parallel, bounded by
// MaxParallelTools, then reassembles results in the original call order
// regardless of completion order.
func (l *Loop) runParallel(ctx context.Context, calls []message.ToolCallPart, opts RunOptions) []message.ToolResultMessage {
	tasks := make([]parallel.Task, len(calls))
	for i, tc := range calls {
		tc := tc
		tasks[i] = parallel.Task{
			ID: tc.ID,
			Run: func(ctx context.Context) (any, error) {
				return l.dispatchWithRetry(ctx, tc, opts), nil
			},
		}
	}

	out, err := l.executor.Execute(ctx, tasks)
	if err != nil {
		// Only a dependency cycle reaches here, and these tasks carry no
		// dependencies; treat as an internal invariant violation.
		results := make([]message.ToolResultMessage, len(calls))
		for i, tc := range calls {
			results[i] = message.NewTextToolResult(tc.ID, tc.Name, fmt.Sprintf("Error: %v", err), true)
		}
		return results
	}

	results := make([]message.ToolResultMessage, len(calls))
	for i, tc := range calls {
		r, ok := out[tc.ID]
		if !ok || r.Status != parallel.Completed {
			errText := "Error: tool execution failed"
			if r.Err != nil {
				errText = fmt.Sprintf("Error: %v", r.Err)
			}
			results[i] = message.NewTextToolResult(tc.ID, tc.Name, errText, true)
			continue
		}
		results[i] = r.Value.(message.ToolResultMessage)
	}
	return results
}

// executeCalls runs calls sequentially with no steering interruption,
// used by RunContinue to catch up on tool calls that were left
// unexecuted when the context was handed back to the loop.
func (l *Loop) executeCalls(ctx context.Context, calls []message.ToolCallPart, opts RunOptions) []message.ToolResultMessage {
	results := make([]message.ToolResultMessage, 0, len(calls))
	for _, tc := range calls {
		results = append(results, l.dispatchWithRetry(ctx, tc, opts))
	}
	return results
}

// dispatchOnce runs a single dispatch attempt under ToolTimeout.
// Registry.Dispatch takes no context, so a timed-out handler keeps
// running in its goroutine after this returns; that goroutine's result
// is discarded, matching toolkit.Handler's documented contract that
// ToolContext.Timeout is only advisory to a handler.
func (l *Loop) dispatchOnce(ctx context.Context, tc message.ToolCallPart, toolCtx toolkit.ToolContext) (string, error) {
	if toolCtx.Timeout == 0 && l.opts.ToolTimeout > 0 {
		toolCtx.Timeout = int(l.opts.ToolTimeout / time.Second)
	}

	type dispatchResult struct {
		out string
		err error
	}
	done := make(chan dispatchResult, 1)
	go func() {
		out, err := l.tools.Dispatch(tc.Name, tc.Arguments, toolCtx)
		done <- dispatchResult{out, err}
	}()

	var timeoutCh <-chan time.Time
	if l.opts.ToolTimeout > 0 {
		timer := time.NewTimer(l.opts.ToolTimeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case r := <-done:
		return r.out, r.err
	case <-timeoutCh:
		return "", fmt.Errorf("toolkit: tool %q timed out after %s", tc.Name, l.opts.ToolTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// dispatchWithRetry runs one tool call through the registry with
// per-attempt timeout and exponential backoff retry. A failure at or
// after the last attempt returns an isError tool-result; it is never
// raised to the caller. Tool errors are data the model sees and may
// recover from.
func (l *Loop) dispatchWithRetry(ctx context.Context, tc message.ToolCallPart, opts RunOptions) message.ToolResultMessage {
	l.rs.trackStart(tc.ID, tc.Name, tc.Arguments)

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			l.rs.trackComplete(tc.ID, true)
			return message.NewTextToolResult(tc.ID, tc.Name, "Error: operation aborted", true)
		}

		out, err := l.dispatchOnce(ctx, tc, opts.ToolContext)

		if err == nil {
			l.rs.trackComplete(tc.ID, false)
			return message.NewTextToolResult(tc.ID, tc.Name, out, false)
		}

		notFound := errors.Is(err, toolkit.ErrToolNotFound)
		lastAttempt := attempt >= l.opts.RetryAttempts-1
		if notFound || lastAttempt {
			l.rs.trackComplete(tc.ID, true)
			return message.NewTextToolResult(tc.ID, tc.Name, fmt.Sprintf("Error: %v", err), true)
		}

		l.rs.trackRetry(tc.ID)
		delay := backoffDelay(l.opts.RetryDelayBase, attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			l.rs.trackComplete(tc.ID, true)
			return message.NewTextToolResult(tc.ID, tc.Name, "Error: operation aborted", true)
		}
	}
}
