package parallel

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
)

func TestExecutor_RunsIndependentTasksConcurrently(t *testing.T) {
	e := NewExecutor(4)
	var mu sync.Mutex
	var order []string

	tasks := []Task{
		{ID: "a", Run: func(ctx context.Context) (any, error) {
			mu.Lock()
			order = append(order, "a")
			mu.Unlock()
			return "A", nil
		}},
		{ID: "b", Run: func(ctx context.Context) (any, error) {
			mu.Lock()
			order = append(order, "b")
			mu.Unlock()
			return "B", nil
		}},
	}

	results, err := e.Execute(context.Background(), tasks)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if results["a"].Status != Completed || results["a"].Value != "A" {
		t.Errorf("a = %+v", results["a"])
	}
	if results["b"].Status != Completed || results["b"].Value != "B" {
		t.Errorf("b = %+v", results["b"])
	}
	sort.Strings(order)
	if len(order) != 2 {
		t.Errorf("expected both tasks to run, got %v", order)
	}
}

func TestExecutor_DependencyFailurePropagates(t *testing.T) {
	e := NewExecutor(4)
	ran := false

	tasks := []Task{
		{ID: "a", Run: func(ctx context.Context) (any, error) {
			return nil, errors.New("boom")
		}},
		{ID: "b", Dependencies: []string{"a"}, Run: func(ctx context.Context) (any, error) {
			ran = true
			return nil, nil
		}},
	}

	results, err := e.Execute(context.Background(), tasks)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if results["a"].Status != Failed {
		t.Errorf("a should fail, got %+v", results["a"])
	}
	if results["b"].Status != Failed {
		t.Errorf("b should fail due to dependency, got %+v", results["b"])
	}
	if ran {
		t.Error("b should never have run")
	}
}

func TestExecutor_DependencyCycleIsConfigError(t *testing.T) {
	e := NewExecutor(4)
	tasks := []Task{
		{ID: "a", Dependencies: []string{"b"}, Run: func(ctx context.Context) (any, error) { return nil, nil }},
		{ID: "b", Dependencies: []string{"a"}, Run: func(ctx context.Context) (any, error) { return nil, nil }},
	}
	if _, err := e.Execute(context.Background(), tasks); !errors.Is(err, ErrDependencyCycle) {
		t.Fatalf("expected ErrDependencyCycle, got %v", err)
	}
}

func TestExecutor_PerTaskTimeout(t *testing.T) {
	e := NewExecutor(2)
	tasks := []Task{
		{ID: "slow", Timeout: 10 * time.Millisecond, Run: func(ctx context.Context) (any, error) {
			select {
			case <-time.After(200 * time.Millisecond):
				return "done", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}},
	}
	results, err := e.Execute(context.Background(), tasks)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if results["slow"].Status != Failed {
		t.Errorf("expected timeout to fail the task, got %+v", results["slow"])
	}
}

func TestExecutor_PanicIsCapturedAsFailure(t *testing.T) {
	e := NewExecutor(2)
	tasks := []Task{
		{ID: "boom", Run: func(ctx context.Context) (any, error) {
			panic("kaboom")
		}},
	}
	results, err := e.Execute(context.Background(), tasks)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if results["boom"].Status != Failed {
		t.Fatalf("expected panic to be captured as failure, got %+v", results["boom"])
	}
}

func TestExecutor_LevelsRespectDependencyOrder(t *testing.T) {
	e := NewExecutor(4)
	var mu sync.Mutex
	var finished []string

	tasks := []Task{
		{ID: "base", Run: func(ctx context.Context) (any, error) {
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			finished = append(finished, "base")
			mu.Unlock()
			return nil, nil
		}},
		{ID: "dependent", Dependencies: []string{"base"}, Run: func(ctx context.Context) (any, error) {
			mu.Lock()
			finished = append(finished, "dependent")
			mu.Unlock()
			return nil, nil
		}},
	}

	results, err := e.Execute(context.Background(), tasks)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if results["base"].Status != Completed || results["dependent"].Status != Completed {
		t.Fatalf("expected both completed: %+v", results)
	}
	if len(finished) != 2 || finished[0] != "base" || finished[1] != "dependent" {
		t.Fatalf("expected base before dependent, got %v", finished)
	}
}
