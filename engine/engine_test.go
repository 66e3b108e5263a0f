package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestEngine_EmptyWorkflow(t *testing.T) {
	e := New("empty")
	started, completed := 0, 0
	e.listeners = append(e.listeners, &recordingListener{onStart: func() { started++ }, onComplete: func(any) { completed++ }})

	result, err := e.Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Fatalf("expected nil result, got %v", result)
	}
	if started != 1 || completed != 1 {
		t.Fatalf("expected start+complete to fire once each, got start=%d complete=%d", started, completed)
	}
	if e.GetExecutedStepCount() != 0 {
		t.Fatalf("expected no executed steps")
	}
}

func TestEngine_ScenarioOne_AllStepsSucceed(t *testing.T) {
	e := New("two-steps")
	if err := e.StepFunc("A", func() (any, error) { return "a", nil }); err != nil {
		t.Fatal(err)
	}
	if err := e.StepFunc("B", func() (any, error) { return "b", nil }); err != nil {
		t.Fatal(err)
	}

	result, err := e.Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "b" {
		t.Fatalf("expected final_result=b, got %v", result)
	}
	if names := e.GetExecutedStepNames(); len(names) != 2 || names[0] != "A" || names[1] != "B" {
		t.Fatalf("unexpected executed steps: %v", names)
	}
}

func TestEngine_ScenarioTwo_RetryExhaustionAndCompensation(t *testing.T) {
	e := New("retry-compensate")
	var recordedA any
	var compMu sync.Mutex

	if err := e.StepWithCompensation("A", func() (any, error) {
		return "a", nil
	}, func(result any) error {
		compMu.Lock()
		recordedA = result
		compMu.Unlock()
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	attempts := 0
	if err := e.StepFunc("B", func() (any, error) {
		attempts++
		return nil, errors.New("boom")
	}, WithRetries(3), WithRetryDelay(0)); err != nil {
		t.Fatal(err)
	}

	_, err := e.Execute(context.Background())
	if err == nil {
		t.Fatal("expected workflow failure")
	}
	if attempts != 4 {
		t.Fatalf("expected 4 attempts (maxRetries=3), got %d", attempts)
	}

	var wfErr *WorkflowFailedError
	if !errors.As(err, &wfErr) {
		t.Fatalf("expected *WorkflowFailedError, got %T: %v", err, err)
	}
	if wfErr.FailingStep != 2 {
		t.Fatalf("expected failing step 2, got %d", wfErr.FailingStep)
	}
	if got := wfErr.Error(); !contains(got, "step 2") {
		t.Fatalf("expected error message to contain %q, got %q", "step 2", got)
	}

	compMu.Lock()
	defer compMu.Unlock()
	if recordedA != "a" {
		t.Fatalf("expected compensation for A to run with result \"a\", got %v", recordedA)
	}
}

func TestEngine_ScenarioThree_CriticalStepFails(t *testing.T) {
	e := New("critical")
	rootCause := errors.New("root cause")
	if err := e.StepFunc("A", func() (any, error) {
		return nil, rootCause
	}, WithCritical(), WithRetries(0)); err != nil {
		t.Fatal(err)
	}

	_, err := e.Execute(context.Background())
	if err == nil {
		t.Fatal("expected failure")
	}

	var critical *CriticalStepError
	if !errors.As(err, &critical) {
		t.Fatalf("expected *CriticalStepError in chain, got %v", err)
	}
	if !errors.Is(err, rootCause) {
		t.Fatalf("expected root cause preserved in chain")
	}
}

func TestEngine_ScenarioSix_CompensationOrderIsLIFO(t *testing.T) {
	e := New("lifo")
	var order []string
	var mu sync.Mutex
	record := func(name string) SyncCompensation {
		return func(any) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	if err := e.StepWithCompensation("A", func() (any, error) { return "a", nil }, record("A")); err != nil {
		t.Fatal(err)
	}
	if err := e.StepWithCompensation("B", func() (any, error) { return "b", nil }, record("B")); err != nil {
		t.Fatal(err)
	}
	cCause := errors.New("c failed")
	if err := e.StepWithCompensation("C", func() (any, error) { return nil, cCause }, record("C"), WithRetries(0)); err != nil {
		t.Fatal(err)
	}

	_, err := e.Execute(context.Background())
	if err == nil {
		t.Fatal("expected failure")
	}

	var wfErr *WorkflowFailedError
	if !errors.As(err, &wfErr) {
		t.Fatalf("expected *WorkflowFailedError, got %T", err)
	}
	if !errors.Is(wfErr.Cause, cCause) {
		t.Fatalf("expected cause to be C's failure")
	}
	if len(wfErr.CompensationErrs) != 0 {
		t.Fatalf("expected 0 compensation errors, got %d", len(wfErr.CompensationErrs))
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "B" || order[1] != "A" {
		t.Fatalf("expected compensation order [B A], got %v", order)
	}
	if names := e.GetExecutedStepNames(); len(names) != 2 || names[0] != "A" || names[1] != "B" {
		t.Fatalf("expected executedSteps=[A B] at failure, got %v", names)
	}
}

func TestEngine_IdempotentStepSkipped(t *testing.T) {
	checker := newFakeIdempotencyChecker()
	e := New("idempotent", WithIdempotencyChecker(checker))
	invocations := 0
	if err := e.StepFunc("A", func() (any, error) {
		invocations++
		return "a", nil
	}, WithIdempotent(), WithID("fixed-id")); err != nil {
		t.Fatal(err)
	}
	checker.mark(e.GetWorkflowID(), "fixed-id")

	if _, err := e.Execute(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if invocations != 0 {
		t.Fatalf("expected idempotent step to be skipped, got %d invocations", invocations)
	}
}

func TestEngine_ContextVersionMonotonic(t *testing.T) {
	c := NewContext(nil)
	var last uint64
	for i := 0; i < 10; i++ {
		c.Put("k", i)
		v := c.Version()
		if v <= last {
			t.Fatalf("version did not strictly increase: %d -> %d", last, v)
		}
		last = v
	}
}

func TestEngine_ResetProducesIdenticalOutcome(t *testing.T) {
	build := func() *Engine {
		e := New("deterministic")
		_ = e.StepFunc("A", func() (any, error) { return "a", nil })
		_ = e.StepFunc("B", func() (any, error) { return "b", nil })
		return e
	}

	e := build()
	r1, err1 := e.Execute(context.Background())
	names1 := e.GetExecutedStepNames()

	e.Reset()
	_ = e.StepFunc("A", func() (any, error) { return "a", nil })
	_ = e.StepFunc("B", func() (any, error) { return "b", nil })
	r2, err2 := e.Execute(context.Background())
	names2 := e.GetExecutedStepNames()

	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v / %v", err1, err2)
	}
	if r1 != r2 {
		t.Fatalf("expected identical final_result across reset, got %v vs %v", r1, r2)
	}
	if len(names1) != len(names2) || names1[0] != names2[0] || names1[1] != names2[1] {
		t.Fatalf("expected identical executedStepNames across reset, got %v vs %v", names1, names2)
	}
}

func TestEngine_MutationWhileExecutingFails(t *testing.T) {
	e := New("mutate-while-executing")
	started := make(chan struct{})
	release := make(chan struct{})
	_ = e.AsyncRun("block", func(ctx context.Context, wfCtx *Context) error {
		close(started)
		<-release
		return nil
	})

	go func() {
		_, _ = e.Execute(context.Background())
	}()
	<-started

	err := e.StepFunc("late", func() (any, error) { return nil, nil })
	close(release)

	var precondition *PreconditionError
	if !errors.As(err, &precondition) {
		t.Fatalf("expected *PreconditionError, got %v", err)
	}
}

// --- test helpers ---

type recordingListener struct {
	onStart    func()
	onComplete func(any)
}

func (r *recordingListener) OnWorkflowStart(string)                 { r.onStart() }
func (r *recordingListener) OnWorkflowComplete(_ string, result any) { r.onComplete(result) }
func (r *recordingListener) OnWorkflowError(string, error)           {}
func (r *recordingListener) OnCompensationStart(int)                 {}
func (r *recordingListener) OnCompensationComplete(int, int)         {}

type fakeIdempotencyChecker struct {
	mu   sync.Mutex
	done map[string]bool
}

func newFakeIdempotencyChecker() *fakeIdempotencyChecker {
	return &fakeIdempotencyChecker{done: make(map[string]bool)}
}

func (f *fakeIdempotencyChecker) mark(workflowID, stepID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done[workflowID+"/"+stepID] = true
}

func (f *fakeIdempotencyChecker) IsStepExecuted(workflowID, stepID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done[workflowID+"/"+stepID]
}

func (f *fakeIdempotencyChecker) MarkStepExecuted(workflowID, stepID string) {
	f.mark(workflowID, stepID)
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
