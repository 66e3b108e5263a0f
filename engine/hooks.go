package engine

import (
	"log/slog"
)

// StepInterceptor observes the lifecycle of a single step. All three
// methods are invoked synchronously by the engine, in registration order
// across all registered interceptors.
type StepInterceptor interface {
	BeforeStep(step Step)
	AfterStep(step Step, result any)
	OnStepError(step Step, err error)
}

// WorkflowListener observes the lifecycle of a whole workflow execution.
type WorkflowListener interface {
	OnWorkflowStart(workflowName string)
	OnWorkflowComplete(workflowName string, result any)
	OnWorkflowError(workflowName string, err error)
	OnCompensationStart(count int)
	OnCompensationComplete(succeeded, failed int)
}

// MetricsCollector receives execution telemetry. Implementations must be
// safe for concurrent use.
type MetricsCollector interface {
	RecordStepExecution(name string, durationMS int64, success bool)
	RecordRetry(name string, attempt int)
	RecordCompensation(name string, success bool)
}

// IdempotencyChecker lets a step flagged idempotent be skipped when it is
// known to have already run for a given (workflowID, stepID) pair.
// Implementations must be safe for concurrent use.
type IdempotencyChecker interface {
	IsStepExecuted(workflowID, stepID string) bool
	MarkStepExecuted(workflowID, stepID string)
}

// Interceptors, listeners and the metrics collector are invoked
// defensively: a panic in one of them must never abort the workflow. The
// engine wraps each interceptor call, each metrics call and each listener
// fan-out in a recover and logs the failure, per spec.md §4.6 / §7's
// "hook failures are logged and swallowed" policy. The idempotency checker
// is called directly, without a recover.

func safeBeforeStep(l *slog.Logger, i StepInterceptor, step Step) {
	defer func() {
		if r := recover(); r != nil {
			l.Error("interceptor BeforeStep panicked", "step", step.Name(), "panic", r)
		}
	}()
	i.BeforeStep(step)
}

func safeAfterStep(l *slog.Logger, i StepInterceptor, step Step, result any) {
	defer func() {
		if r := recover(); r != nil {
			l.Error("interceptor AfterStep panicked", "step", step.Name(), "panic", r)
		}
	}()
	i.AfterStep(step, result)
}

func safeOnStepError(l *slog.Logger, i StepInterceptor, step Step, err error) {
	defer func() {
		if r := recover(); r != nil {
			l.Error("interceptor OnStepError panicked", "step", step.Name(), "panic", r)
		}
	}()
	i.OnStepError(step, err)
}

func safeOnWorkflowStart(l *slog.Logger, w WorkflowListener, name string) {
	defer func() {
		if r := recover(); r != nil {
			l.Error("listener OnWorkflowStart panicked", "workflow", name, "panic", r)
		}
	}()
	w.OnWorkflowStart(name)
}

func safeOnWorkflowComplete(l *slog.Logger, w WorkflowListener, name string, result any) {
	defer func() {
		if r := recover(); r != nil {
			l.Error("listener OnWorkflowComplete panicked", "workflow", name, "panic", r)
		}
	}()
	w.OnWorkflowComplete(name, result)
}

func safeOnWorkflowError(l *slog.Logger, w WorkflowListener, name string, err error) {
	defer func() {
		if r := recover(); r != nil {
			l.Error("listener OnWorkflowError panicked", "workflow", name, "panic", r)
		}
	}()
	w.OnWorkflowError(name, err)
}

func safeOnCompensationStart(l *slog.Logger, w WorkflowListener, count int) {
	defer func() {
		if r := recover(); r != nil {
			l.Error("listener OnCompensationStart panicked", "panic", r)
		}
	}()
	w.OnCompensationStart(count)
}

func safeOnCompensationComplete(l *slog.Logger, w WorkflowListener, succeeded, failed int) {
	defer func() {
		if r := recover(); r != nil {
			l.Error("listener OnCompensationComplete panicked", "panic", r)
		}
	}()
	w.OnCompensationComplete(succeeded, failed)
}

func safeRecordStepExecution(l *slog.Logger, m MetricsCollector, name string, durationMS int64, success bool) {
	defer func() {
		if r := recover(); r != nil {
			l.Error("metrics collector RecordStepExecution panicked", "step", name, "panic", r)
		}
	}()
	m.RecordStepExecution(name, durationMS, success)
}

func safeRecordRetry(l *slog.Logger, m MetricsCollector, name string, attempt int) {
	defer func() {
		if r := recover(); r != nil {
			l.Error("metrics collector RecordRetry panicked", "step", name, "panic", r)
		}
	}()
	m.RecordRetry(name, attempt)
}

func safeRecordCompensation(l *slog.Logger, m MetricsCollector, name string, success bool) {
	defer func() {
		if r := recover(); r != nil {
			l.Error("metrics collector RecordCompensation panicked", "step", name, "panic", r)
		}
	}()
	m.RecordCompensation(name, success)
}
