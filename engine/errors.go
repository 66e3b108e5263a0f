package engine

import (
	"fmt"
)

// WorkflowFailedError is the root error kind surfaced from Execute when a
// workflow fails. It carries the workflow name, the ordinal of the failing
// step (1-based), the original cause, and any errors collected while
// running compensations.
type WorkflowFailedError struct {
	WorkflowName     string
	FailingStep      int
	Cause            error
	CompensationErrs []error
}

func (e *WorkflowFailedError) Error() string {
	return fmt.Sprintf("workflow %q failed at step %d: %v (%d compensation error(s))",
		e.WorkflowName, e.FailingStep, e.Cause, len(e.CompensationErrs))
}

func (e *WorkflowFailedError) Unwrap() error {
	return e.Cause
}

// CriticalStepError is raised when a step flagged critical fails. The step
// is retried like any other; once its retries are exhausted, its last
// failure is wrapped in this error.
type CriticalStepError struct {
	StepName string
	Cause    error
}

func (e *CriticalStepError) Error() string {
	return fmt.Sprintf("critical step %q failed: %v", e.StepName, e.Cause)
}

func (e *CriticalStepError) Unwrap() error {
	return e.Cause
}

// StepTimeoutError is raised when a per-step timeout, or the withTimeout
// combinator's deadline, elapses.
type StepTimeoutError struct {
	StepName string
	Timeout  string
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("step %q timed out after %s", e.StepName, e.Timeout)
}

// WorkflowInterruptedError is raised when the executing goroutine or an
// awaited future is interrupted (via context cancellation) during a retry
// sleep or compensation sleep. The triggering cause is preserved.
type WorkflowInterruptedError struct {
	StepName string
	Cause    error
}

func (e *WorkflowInterruptedError) Error() string {
	return fmt.Sprintf("workflow interrupted at step %q: %v", e.StepName, e.Cause)
}

func (e *WorkflowInterruptedError) Unwrap() error {
	return e.Cause
}

// CompensationFailedError is raised per step when that step's compensation
// retries are exhausted. These are collected into
// WorkflowFailedError.CompensationErrs and never surfaced standalone.
type CompensationFailedError struct {
	StepName string
	Cause    error
}

func (e *CompensationFailedError) Error() string {
	return fmt.Sprintf("compensation for step %q failed: %v", e.StepName, e.Cause)
}

func (e *CompensationFailedError) Unwrap() error {
	return e.Cause
}

// PreconditionError is raised when a builder mutator is called while the
// engine is executing, or Execute is called while an execution is already
// in flight.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return "precondition violated: " + e.Reason
}
