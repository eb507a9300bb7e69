// Package parallel implements a DAG-ordered parallel task executor:
// tasks are grouped into dependency levels by a topological sort, each
// level runs with a concurrency cap, and a failed dependency fails its
// dependents without running them.
package parallel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrDependencyCycle is a synchronous configuration error raised when
// a task's Dependencies form a cycle.
var ErrDependencyCycle = errors.New("parallel: dependency cycle detected")

// Status is the terminal state of one task's execution.
type Status int

const (
	Completed Status = iota
	Failed
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Task is one unit of work submitted to Execute.
type Task struct {
	ID           string
	Run          func(ctx context.Context) (any, error)
	Dependencies []string
	// Timeout bounds this task's Run as a deadline on the ctx passed to
	// it. A Run that returns an error after the deadline is recorded as a
	// timeout failure; a Run that ignores ctx is not interrupted, and its
	// result is recorded as returned. Zero means no per-task timeout.
	Timeout time.Duration
}

// Result is the outcome of one task.
type Result struct {
	Status    Status
	Value     any
	Err       error
	ElapsedMs int64
}

// Executor runs a set of tasks respecting their dependency DAG, with at
// most MaxConcurrency tasks in flight within any one dependency level.
type Executor struct {
	MaxConcurrency int
}

// NewExecutor returns an Executor capped at maxConcurrency concurrent
// tasks per level. A non-positive value defaults to 10.
func NewExecutor(maxConcurrency int) *Executor {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Executor{MaxConcurrency: maxConcurrency}
}

// Execute runs tasks to completion and returns a result per task ID.
// Cycles in Dependencies are a configuration error (ErrDependencyCycle);
// everything else (timeouts, panics-as-errors, dependency failures) is
// captured per-task in the returned map and never aborts the whole run.
func (e *Executor) Execute(ctx context.Context, tasks []Task) (map[string]Result, error) {
	byID := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	levels, err := levelsByDependency(tasks)
	if err != nil {
		return nil, err
	}

	results := make(map[string]Result, len(tasks))
	maxConcurrency := e.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}

	for _, level := range levels {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxConcurrency)

		// Go maps aren't safe for concurrent writes even on disjoint keys,
		// so each goroutine writes into its own slot and the level's
		// results are merged into the shared map single-threaded below.
		levelResults := make([]Result, len(level))
		for i, id := range level {
			i, task := i, byID[id]
			g.Go(func() error {
				levelResults[i] = e.runOne(gctx, task, results)
				return nil
			})
		}
		// g.Wait's error is always nil here since runOne never returns an
		// error itself (failures are captured in Result), but Wait still
		// blocks until the level drains.
		_ = g.Wait()
		for i, id := range level {
			results[id] = levelResults[i]
		}
	}

	return results, nil
}

func (e *Executor) runOne(ctx context.Context, task Task, priorResults map[string]Result) (result Result) {
	start := time.Now()
	defer func() {
		result.ElapsedMs = time.Since(start).Milliseconds()
		if r := recover(); r != nil {
			result = Result{Status: Failed, Err: fmt.Errorf("parallel: task %q panicked: %v", task.ID, r), ElapsedMs: time.Since(start).Milliseconds()}
		}
	}()

	for _, dep := range task.Dependencies {
		if dr, ok := priorResults[dep]; ok && dr.Status == Failed {
			return Result{Status: Failed, Err: fmt.Errorf("dependency %s failed", dep)}
		}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if task.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	if err := runCtx.Err(); err != nil {
		return Result{Status: Cancelled, Err: err}
	}

	value, err := task.Run(runCtx)
	if err != nil {
		if runCtx.Err() != nil && task.Timeout > 0 {
			log.Warn().Str("task", task.ID).Dur("timeout", task.Timeout).Msg("parallel task timed out")
			return Result{Status: Failed, Err: fmt.Errorf("task %q timed out after %s", task.ID, task.Timeout)}
		}
		return Result{Status: Failed, Err: err}
	}
	return Result{Status: Completed, Value: value}
}

// levelsByDependency runs Kahn's algorithm: repeatedly peel off the set of
// tasks whose dependencies are all already peeled. A round that peels
// nothing off a non-empty remainder means a cycle.
func levelsByDependency(tasks []Task) ([][]string, error) {
	deps := make(map[string]map[string]bool, len(tasks))
	order := make([]string, 0, len(tasks))
	for _, t := range tasks {
		set := make(map[string]bool, len(t.Dependencies))
		for _, d := range t.Dependencies {
			set[d] = true
		}
		deps[t.ID] = set
		order = append(order, t.ID)
	}

	completed := make(map[string]bool, len(tasks))
	remaining := make(map[string]bool, len(tasks))
	for _, id := range order {
		remaining[id] = true
	}

	var levels [][]string
	for len(remaining) > 0 {
		var level []string
		for _, id := range order {
			if !remaining[id] {
				continue
			}
			ready := true
			for dep := range deps[id] {
				if !completed[dep] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, id)
			}
		}
		if len(level) == 0 {
			return nil, ErrDependencyCycle
		}
		for _, id := range level {
			completed[id] = true
			delete(remaining, id)
		}
		levels = append(levels, level)
	}
	return levels, nil
}
