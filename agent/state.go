package agent

import (
	"sync"
	"time"
)

// State is a Loop's position in the run state machine:
// idle -> running -> thinking -> executingTool -> (back to thinking | idle) | error | cancelled.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateThinking
	StateExecutingTool
	StateError
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateThinking:
		return "thinking"
	case StateExecutingTool:
		return "executingTool"
	case StateError:
		return "error"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// PendingStatus is the lifecycle status of one in-flight tool call.
type PendingStatus int

const (
	PendingQueued PendingStatus = iota
	PendingRunning
	PendingCompleted
	PendingFailed
)

func (s PendingStatus) String() string {
	switch s {
	case PendingQueued:
		return "pending"
	case PendingRunning:
		return "running"
	case PendingCompleted:
		return "completed"
	case PendingFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PendingToolCall records one in-flight tool call.
type PendingToolCall struct {
	ID          string
	Name        string
	Arguments   map[string]any
	Status      PendingStatus
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	RetryCount  int
}

// runState holds the mutable machinery shared across one Loop's runs:
// the state machine, the idle barrier, the cancellation flag, and
// pending-call tracking. It is guarded by mu; readers of
// PendingToolCalls get a copy-on-read snapshot.
type runState struct {
	mu        sync.Mutex
	state     State
	cancelled bool
	idleCh    chan struct{}
	pending   map[string]*PendingToolCall
}

func newRunState() *runState {
	ch := make(chan struct{})
	close(ch) // idle barrier starts released: no run in flight.
	return &runState{state: StateIdle, idleCh: ch, pending: map[string]*PendingToolCall{}}
}

func (r *runState) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *runState) getState() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// beginRun transitions to running, clears any cancellation left over
// from a previous run, and replaces the idle barrier with a fresh,
// unreleased one.
func (r *runState) beginRun() {
	r.mu.Lock()
	r.state = StateRunning
	r.cancelled = false
	r.idleCh = make(chan struct{})
	r.mu.Unlock()
}

func (r *runState) cancel() {
	r.mu.Lock()
	r.cancelled = true
	r.mu.Unlock()
}

func (r *runState) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// endRun transitions to terminal and releases the idle barrier. Dispatch
// in this package is synchronous, so by the time a run returns, no
// pending entry is left in PendingRunning status.
func (r *runState) endRun(terminal State) {
	r.mu.Lock()
	r.state = terminal
	close(r.idleCh)
	r.mu.Unlock()
}

// waitForIdle blocks until the idle barrier is released or timeout
// elapses, then double-checks no pending call is still running.
func (r *runState) waitForIdle(timeout time.Duration) bool {
	r.mu.Lock()
	ch := r.idleCh
	alreadyIdle := r.state == StateIdle && !r.hasRunningLocked()
	r.mu.Unlock()
	if alreadyIdle {
		return true
	}

	select {
	case <-ch:
	case <-time.After(timeout):
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.hasRunningLocked()
}

func (r *runState) hasRunningLocked() bool {
	for _, p := range r.pending {
		if p.Status == PendingRunning {
			return true
		}
	}
	return false
}

func (r *runState) trackStart(id, name string, args map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[id] = &PendingToolCall{
		ID: id, Name: name, Arguments: args,
		Status: PendingRunning, CreatedAt: time.Now(), StartedAt: time.Now(),
	}
}

func (r *runState) trackRetry(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pending[id]; ok {
		p.RetryCount++
	}
}

func (r *runState) trackComplete(id string, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[id]
	if !ok {
		return
	}
	p.CompletedAt = time.Now()
	if failed {
		p.Status = PendingFailed
	} else {
		p.Status = PendingCompleted
	}
	delete(r.pending, id)
}

// snapshot returns a copy-on-read list of every tracked pending call.
func (r *runState) snapshot() []PendingToolCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PendingToolCall, 0, len(r.pending))
	for _, p := range r.pending {
		out = append(out, *p)
	}
	return out
}
