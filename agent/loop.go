// Package agent implements the bounded, interruptible agent loop: the
// state machine that alternates model inference and tool execution, with
// retry, sequential/parallel tool fan-out, steering/follow-up
// interruption, and a resume operation for contexts handed back
// mid-turn.
package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xonecas/symbrt/compact"
	"github.com/xonecas/symbrt/event"
	"github.com/xonecas/symbrt/message"
	"github.com/xonecas/symbrt/modelprovider"
	"github.com/xonecas/symbrt/parallel"
	"github.com/xonecas/symbrt/queue"
	"github.com/xonecas/symbrt/toolkit"
)

// ErrInvalidContinue is returned by RunContinue when the context's last
// message is neither an assistant message with unexecuted tool calls nor
// a tool-result message.
var ErrInvalidContinue = errors.New("agent: context is not in a resumable state")

// RunOptions configures one Run/RunContinue call.
type RunOptions struct {
	// OnEvent, when set, receives every event.Event from the provider
	// stream as it is consumed, forwarded unchanged.
	OnEvent func(event.Event)
	// OnLifecycle, when set, receives loop-level notifications (turn
	// boundaries, tool results, completion) distinct from the provider
	// event grammar.
	OnLifecycle func(Lifecycle)
	// ToolContext is passed to every tool dispatch this run performs.
	ToolContext toolkit.ToolContext
}

func (o RunOptions) emit(evt event.Event) {
	if o.OnEvent != nil {
		o.OnEvent(evt)
	}
}

func (o RunOptions) notify(l Lifecycle) {
	if o.OnLifecycle != nil {
		o.OnLifecycle(l)
	}
}

// Loop drives one conversation's worth of turns against a single
// provider/model pair. A Loop is not safe for concurrent Run calls;
// independent agent runs each get their own Loop, with its own context,
// queue, and state machine.
type Loop struct {
	provider modelprovider.Provider
	model    modelprovider.Model
	tools    *toolkit.Registry
	opts     Options

	queue       *queue.Queue
	compactor   compact.Compactor
	executor    *parallel.Executor
	retryPolicy modelprovider.RetryPolicy

	rs *runState
}

// New creates a Loop. opts is completed with WithDefaults.
func New(provider modelprovider.Provider, model modelprovider.Model, tools *toolkit.Registry, opts Options) *Loop {
	opts = opts.WithDefaults()
	return &Loop{
		provider:    provider,
		model:       model,
		tools:       tools,
		opts:        opts,
		queue:       queue.New(opts.SteeringMode, opts.FollowUpMode),
		executor:    parallel.NewExecutor(opts.MaxParallelTools),
		retryPolicy: modelprovider.RetryPolicy{MaxRetries: opts.RetryAttempts},
		rs:          newRunState(),
	}
}

// State reports the loop's current position in the state machine.
func (l *Loop) State() State { return l.rs.getState() }

// Steer enqueues a steering message: honored at the next safe
// interruption point.
func (l *Loop) Steer(text string) {
	l.queue.Enqueue(text, queue.Steering)
}

// FollowUp enqueues a follow-up message: honored once the current run
// reaches natural completion.
func (l *Loop) FollowUp(text string) {
	l.queue.Enqueue(text, queue.FollowUp)
}

// Cancel sets the cancellation flag checked at every loop boundary. An
// in-flight tool call is not interrupted; it runs to completion or its
// own timeout before the flag is observed.
func (l *Loop) Cancel() {
	l.rs.cancel()
}

// WaitForIdle blocks until the idle barrier is released and no tool call
// remains in running status, or timeout elapses.
func (l *Loop) WaitForIdle(timeout time.Duration) bool {
	return l.rs.waitForIdle(timeout)
}

// PendingToolCalls returns a copy-on-read snapshot of in-flight tool
// calls.
func (l *Loop) PendingToolCalls() []PendingToolCall {
	return l.rs.snapshot()
}

// Compact applies strategy directly to convo, using the loop's configured
// token budget and preservation settings, and reports the effect. The loop neither owns nor persists convo; the
// caller supplies it and receives the pruned result back.
func (l *Loop) Compact(convo message.Context, strategy compact.Strategy) (message.Context, compact.Stats) {
	return l.compactor.Compact(convo, compact.Config{
		Strategy:          strategy,
		MaxTokens:         l.opts.MaxContextTokens,
		TargetUtilization: l.opts.TargetUtilization,
		PreserveRecent:    l.opts.PreserveRecent,
		MinMessages:       l.opts.MinMessages,
	})
}

// Run drives convo through the main cycle until completion, iteration
// overflow, cancellation, or a terminal provider error. convo's last
// message is used as-is (typically the caller's freshly-appended user
// message); Run does not itself append one.
func (l *Loop) Run(ctx context.Context, convo message.Context, opts RunOptions) (*message.AssistantMessage, error) {
	return l.mainCycle(ctx, convo.Clone(), opts, false)
}

// RunContinue resumes the loop without adding a new user message,
// inspecting convo's last message:
//   - assistant message with unexecuted tool calls: execute them, then
//     resume at the model call.
//   - tool-result message (executed externally): resume at the model call.
//   - assistant message already at StopReasonStop with nothing pending:
//     idempotent, returned unchanged.
//   - anything else: ErrInvalidContinue.
func (l *Loop) RunContinue(ctx context.Context, convo message.Context, opts RunOptions) (*message.AssistantMessage, error) {
	convo = convo.Clone()
	last := convo.LastMessage()

	switch v := last.(type) {
	case message.AssistantMessage:
		pendingIDs := convo.PendingToolCallIDs()
		if len(pendingIDs) == 0 {
			if v.StopReason == message.StopReasonStop {
				return &v, nil
			}
			return nil, ErrInvalidContinue
		}
		l.rs.beginRun()
		pendingSet := map[string]bool{}
		for _, id := range pendingIDs {
			pendingSet[id] = true
		}
		var unresolved []message.ToolCallPart
		for _, tc := range v.ToolCalls() {
			if pendingSet[tc.ID] {
				unresolved = append(unresolved, tc)
			}
		}
		results := l.executeCalls(ctx, unresolved, opts)
		for _, r := range results {
			convo = convo.Append(r)
		}
		return l.mainCycle(ctx, convo, opts, true)
	case message.ToolResultMessage:
		l.rs.beginRun()
		return l.mainCycle(ctx, convo, opts, true)
	default:
		return nil, ErrInvalidContinue
	}
}

// mainCycle runs the turn loop. resumed indicates the first iteration is
// resuming mid-turn (RunContinue already executed this turn's pending
// tool calls) and should skip straight to the model call.
func (l *Loop) mainCycle(ctx context.Context, convo message.Context, opts RunOptions, resumed bool) (*message.AssistantMessage, error) {
	if !resumed {
		l.rs.beginRun()
	}
	iteration := 0
	skipToModelCall := resumed

	for {
		// Cancellation check at the iteration boundary.
		if l.rs.isCancelled() {
			l.rs.endRun(StateCancelled)
			opts.notify(Lifecycle{Kind: LifecycleError, Iteration: iteration, Err: errors.New("aborted")})
			return l.abortedMessage(), nil
		}
		select {
		case <-ctx.Done():
			l.rs.endRun(StateCancelled)
			return l.abortedMessage(), nil
		default:
		}

		iteration++
		if iteration > l.opts.MaxIterations {
			l.rs.endRun(StateError)
			return l.maxIterationsMessage(), nil
		}

		opts.notify(Lifecycle{Kind: LifecycleTurnStart, Iteration: iteration})

		if !skipToModelCall {
			// Steering message at the top of the turn.
			if l.opts.EnableSteering {
				if msg, ok := l.queue.GetNext(queue.Steering); ok {
					convo = convo.Append(message.UserMessage{Text: msg.Content, CreatedAt: time.Now()})
				}
			}
		}
		skipToModelCall = false

		convo = l.prepareContext(convo, iteration)

		// The provider-specific adjustment pass is presentational only: it
		// shapes the copy sent over the wire and never becomes part of the
		// working conversation.
		wire := convo
		if adj := compact.AdjustFor(l.provider.APIType()); adj != nil {
			wire = adj(convo)
		}

		l.rs.setState(StateThinking)
		if err := ctx.Err(); err != nil {
			l.rs.endRun(StateCancelled)
			return l.abortedMessage(), nil
		}
		// The loop decides retry eligibility for provider calls, not the
		// provider itself: transient transport errors (timeouts, connection
		// errors, 429/500/503) are retried with backoff before a run is
		// terminated. This is a distinct retry budget from the per-tool
		// retry in dispatchWithRetry, though both are sized by
		// Options.RetryAttempts: a tool call gets that many attempts in
		// total, a provider call that many retries after its first attempt.
		var stream event.Stream
		err := l.retryPolicy.Call(ctx, "provider.Stream", func(ctx context.Context) error {
			s, streamErr := l.provider.Stream(ctx, l.model, wire, modelprovider.Options{})
			if streamErr != nil {
				return streamErr
			}
			stream = s
			return nil
		})
		if err != nil {
			l.rs.endRun(StateError)
			return l.errorMessage(fmt.Sprintf("provider error: %v", err)), nil
		}
		assistant, collectErr := collectAndForward(ctx, stream, opts)
		if collectErr != nil {
			var term *event.TerminalError
			aborted := errors.Is(collectErr, context.Canceled) || errors.Is(collectErr, context.DeadlineExceeded)
			if errors.As(collectErr, &term) && term.Reason == event.ErrorAborted {
				aborted = true
			}
			if aborted {
				l.rs.endRun(StateCancelled)
				return l.abortedMessage(), nil
			}
			l.rs.endRun(StateError)
			return l.errorMessage(fmt.Sprintf("provider error: %v", collectErr)), nil
		}
		assistant.API = l.provider.APIType()
		assistant.Provider = l.provider.ProviderID()
		assistant.Model = l.model.ID
		assistant.Usage.Cost = l.provider.CalculateCost(l.model, assistant.Usage)
		assistant.CreatedAt = time.Now()

		calls := assistant.ToolCalls()

		// No tool calls -> completion. Append the assistant
		// message, then either honor a pending follow-up (loop back) or
		// terminate the run.
		if len(calls) == 0 {
			convo = convo.Append(*assistant)
			if l.opts.EnableFollowUp {
				if msg, ok := l.queue.GetNext(queue.FollowUp); ok {
					convo = convo.Append(message.UserMessage{Text: msg.Content, CreatedAt: time.Now()})
					opts.notify(Lifecycle{Kind: LifecycleTurnEnd, Iteration: iteration, FollowUp: true})
					continue
				}
			}
			l.rs.endRun(StateIdle)
			opts.notify(Lifecycle{Kind: LifecycleAgentEnd, Iteration: iteration})
			return assistant, nil
		}

		// Pre-execution steering check: if a steering message is already
		// pending the moment the stream ends with a tool-call, the call
		// never runs at all. Distinct from the between-each-call check
		// inside runSequential, which only catches steering that arrives
		// during a multi-call turn.
		if l.opts.EnableSteering {
			if msg, ok := l.queue.GetNext(queue.Steering); ok {
				convo = convo.Append(*assistant)
				convo = convo.Append(message.UserMessage{Text: msg.Content, CreatedAt: time.Now()})
				opts.notify(Lifecycle{Kind: LifecycleTurnEnd, Iteration: iteration, Steered: true})
				continue
			}
		}

		l.rs.setState(StateExecutingTool)
		var steered bool
		convo, steered = l.runTools(ctx, convo, assistant, calls, opts)
		if steered {
			opts.notify(Lifecycle{Kind: LifecycleTurnEnd, Iteration: iteration, Steered: true})
			continue
		}
		opts.notify(Lifecycle{Kind: LifecycleTurnEnd, Iteration: iteration})
	}
}

// prepareContext attaches tool descriptors, applies compaction when the
// conversation is over budget, and injects the optional recitation
// reminder.
func (l *Loop) prepareContext(convo message.Context, iteration int) message.Context {
	convo.Tools = l.tools.Definitions()

	if l.opts.AutoCompact && compact.ShouldCompact(convo, l.opts.MaxContextTokens, l.opts.CompactionThreshold) {
		before := message.EstimateTokens(convo)
		var stats compact.Stats
		convo, stats = l.Compact(convo, compact.Smart)
		log.Debug().Int("before_tokens", before).Int("after_tokens", stats.NewTokens).Int("entries_removed", stats.EntriesRemoved).Msg("agent: auto-compacted context")
	}

	if l.opts.Recitation != nil {
		if text, ok := l.opts.Recitation(len(convo.Messages), iteration); ok && text != "" {
			convo = convo.Append(message.UserMessage{Text: text, CreatedAt: time.Now()})
		}
	}

	return convo
}

func (l *Loop) abortedMessage() *message.AssistantMessage {
	return &message.AssistantMessage{
		Content:      []message.ContentPart{message.TextPart{Text: "Operation aborted"}},
		StopReason:   message.StopReasonAborted,
		ErrorMessage: "aborted",
		CreatedAt:    time.Now(),
	}
}

func (l *Loop) errorMessage(text string) *message.AssistantMessage {
	return &message.AssistantMessage{
		Content:      []message.ContentPart{message.TextPart{Text: "Error: " + text}},
		StopReason:   message.StopReasonError,
		ErrorMessage: text,
		CreatedAt:    time.Now(),
	}
}

func (l *Loop) maxIterationsMessage() *message.AssistantMessage {
	return &message.AssistantMessage{
		Content:      []message.ContentPart{message.TextPart{Text: fmt.Sprintf("Max iterations (%d) reached", l.opts.MaxIterations)}},
		StopReason:   message.StopReasonError,
		ErrorMessage: "Max iterations reached",
		CreatedAt:    time.Now(),
	}
}

// backoffDelay computes retryDelayBase * 2^attempt for tool retry.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	return time.Duration(float64(base) * math.Pow(2, float64(attempt)))
}
