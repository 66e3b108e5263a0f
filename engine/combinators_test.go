package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCombinators_ParallelThenStep(t *testing.T) {
	e := New("parallel-then-step")
	err := e.Parallel(
		func(sub *Engine) error {
			return sub.StepFunc("leaf-x", func() (any, error) { return "x", nil })
		},
		func(sub *Engine) error {
			return sub.StepFunc("leaf-y", func() (any, error) { return "y", nil })
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.StepFunc("z", func() (any, error) { return "z", nil }); err != nil {
		t.Fatal(err)
	}

	result, err := e.Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "z" {
		t.Fatalf("expected final_result=z, got %v", result)
	}

	snap := e.GetContextSnapshot()
	if v, ok := snap.Values[StepResultKey("leaf-x")]; !ok || v != "x" {
		t.Fatalf("expected parent context to contain leaf-x's result, got %v (ok=%v)", v, ok)
	}
	if v, ok := snap.Values[StepResultKey("leaf-y")]; !ok || v != "y" {
		t.Fatalf("expected parent context to contain leaf-y's result, got %v (ok=%v)", v, ok)
	}
	if v, ok := snap.Values[StepResultKey("z")]; !ok || v != "z" {
		t.Fatalf("expected parent context to contain z's result, got %v (ok=%v)", v, ok)
	}
}

func TestCombinators_ForEachSerialSum(t *testing.T) {
	e := New("for-each-serial")
	e.Context().Put("sum", 0)

	err := e.ForEach(
		func(c *Context) []any { return []any{1, 2, 3} },
		func(item any, idx int, c *Context) error {
			current := c.GetWithDefault("sum", 0).(int)
			c.Put("sum", current+item.(int))
			return nil
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.Execute(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sum := e.Context().GetWithDefault("sum", 0).(int)
	if sum != 6 {
		t.Fatalf("expected serial forEach sum=6, got %d", sum)
	}
}

func TestCombinators_When_FlattensIntoParent(t *testing.T) {
	e := New("when-flatten")
	ran := false
	err := e.When(Equals("flag", true), func(sub *Engine) error {
		return sub.StepFunc("conditional", func() (any, error) {
			ran = true
			return "ran", nil
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	e.Context().Put("flag", true)

	result, err := e.Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Fatal("expected conditional body to run when predicate is true")
	}
	if result != "ran" {
		t.Fatalf("expected final_result=ran, got %v", result)
	}
}

func TestCombinators_When_SkipsWhenFalse(t *testing.T) {
	e := New("when-skip")
	ran := false
	err := e.When(Equals("flag", true), func(sub *Engine) error {
		return sub.StepFunc("conditional", func() (any, error) {
			ran = true
			return "ran", nil
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	e.Context().Put("flag", false)

	if _, err := e.Execute(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ran {
		t.Fatal("expected conditional body not to run when predicate is false")
	}
}

func TestCombinators_RepeatRunsNTimes(t *testing.T) {
	e := New("repeat")
	count := 0
	err := e.Repeat(3, func(sub *Engine) error {
		return sub.StepFunc("iterate", func() (any, error) {
			count++
			return count, nil
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.Execute(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected repeat body to run 3 times, got %d", count)
	}
}

func TestCombinators_WithFallback(t *testing.T) {
	e := New("fallback")
	err := e.WithFallback("risky", func() (any, error) {
		return nil, context.DeadlineExceeded
	}, func() (any, error) {
		return "safe", nil
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := e.Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "safe" {
		t.Fatalf("expected fallback result, got %v", result)
	}
}

func TestCombinators_WithTimeoutExpires(t *testing.T) {
	e := New("timeout")
	err := e.WithTimeout("slow", func() (any, error) {
		time.Sleep(50 * time.Millisecond)
		return nil, nil
	}, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	_, execErr := e.Execute(context.Background())
	if execErr == nil {
		t.Fatal("expected workflow to fail on timeout")
	}
	var wfErr *WorkflowFailedError
	if !errors.As(execErr, &wfErr) {
		t.Fatalf("expected *WorkflowFailedError, got %T", execErr)
	}
	var timeoutErr *StepTimeoutError
	if !errors.As(execErr, &timeoutErr) {
		t.Fatalf("expected *StepTimeoutError in chain, got %v", execErr)
	}
}

func TestCombinators_ForEachAsyncCompletesAllItems(t *testing.T) {
	e := New("for-each-async")
	var mu sync.Mutex
	seen := make(map[int]bool)

	err := e.ForEachAsync(
		func(c *Context) []any { return []any{1, 2, 3} },
		func(item any, idx int, c *Context) error {
			mu.Lock()
			seen[item.(int)] = true
			mu.Unlock()
			return nil
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.Execute(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Fatalf("expected all 3 items processed, got %v", seen)
	}
}
