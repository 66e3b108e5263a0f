package activities

import "testing"

func TestInMemoryIdempotencyChecker_MarkAndCheck(t *testing.T) {
	c := NewInMemoryIdempotencyChecker()

	if c.IsStepExecuted("wf-1", "step-a") {
		t.Fatal("expected step not yet marked executed")
	}

	c.MarkStepExecuted("wf-1", "step-a")

	if !c.IsStepExecuted("wf-1", "step-a") {
		t.Fatal("expected step to be marked executed")
	}
	if c.IsStepExecuted("wf-2", "step-a") {
		t.Fatal("expected marking to be scoped per workflow id")
	}
}
