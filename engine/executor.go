package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// stepExecutor runs a single step (sync or async) to completion, applying
// its retry policy and reporting timing to the metrics collector. It knows
// nothing about workflow-level bookkeeping (executedSteps, compensation,
// interceptors) — that is the runner's job in engine.go.
type stepExecutor struct {
	logger  *slog.Logger
	metrics MetricsCollector
}

func newStepExecutor(logger *slog.Logger, metrics MetricsCollector) *stepExecutor {
	return &stepExecutor{logger: logger, metrics: metrics}
}

// run executes step's action with retries, returning the final value or the
// last attempt's error. ctx bounds the whole call (e.g. the parent
// workflow's cancellation); step.timeout additionally bounds each attempt.
// wfCtx is the live workflow Context, passed through to async actions.
func (e *stepExecutor) run(ctx context.Context, step Step, wfCtx *Context) (any, error) {
	attempts := step.maxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &WorkflowInterruptedError{StepName: step.name, Cause: err}
		}

		start := time.Now()
		result, err := e.attempt(ctx, step, wfCtx)
		duration := time.Since(start)

		if e.metrics != nil {
			safeRecordStepExecution(e.logger, e.metrics, step.name, duration.Milliseconds(), err == nil)
		}

		if err == nil {
			return result, nil
		}
		lastErr = err

		var interrupted *WorkflowInterruptedError
		if errors.As(err, &interrupted) {
			return nil, err
		}

		if e.metrics != nil {
			safeRecordRetry(e.logger, e.metrics, step.name, attempt)
		}

		e.logger.Error("step attempt failed",
			"step", step.name, "attempt", attempt, "max_attempts", attempts, "error", err)

		if step.nonRetry != nil && step.nonRetry(err) {
			return nil, lastErr
		}
		if attempt >= attempts {
			break
		}
		if err := e.sleep(ctx, step.retryDelay); err != nil {
			return nil, &WorkflowInterruptedError{StepName: step.name, Cause: err}
		}
	}

	return nil, lastErr
}

// attempt runs exactly one invocation of step's action (through its
// optional circuit breaker decorator), bounded by step.timeout if set.
func (e *stepExecutor) attempt(ctx context.Context, step Step, wfCtx *Context) (any, error) {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if step.timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, step.timeout)
		defer cancel()
	}

	if step.IsAsync() {
		return e.runAsync(attemptCtx, step, wfCtx)
	}
	return e.runSync(attemptCtx, step)
}

func (e *stepExecutor) runSync(ctx context.Context, step Step) (any, error) {
	action := step.action
	if step.breaker != nil {
		action = step.breaker(action)
	}

	type outcome struct {
		val any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := action()
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		return o.val, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &StepTimeoutError{StepName: step.name, Timeout: step.timeout.String()}
		}
		return nil, &WorkflowInterruptedError{StepName: step.name, Cause: ctx.Err()}
	}
}

func (e *stepExecutor) runAsync(ctx context.Context, step Step, wfCtx *Context) (any, error) {
	action := step.asyncAct
	if step.breaker != nil {
		inner := action
		action = func(ctx context.Context, wfCtx *Context) (any, error) {
			return step.breaker(func() (any, error) { return inner(ctx, wfCtx) })()
		}
	}

	type outcome struct {
		val any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := action(ctx, wfCtx)
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		return o.val, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &StepTimeoutError{StepName: step.name, Timeout: step.timeout.String()}
		}
		return nil, &WorkflowInterruptedError{StepName: step.name, Cause: ctx.Err()}
	}
}

// sleep waits for d, or returns ctx's error if ctx ends first. d <= 0 is a
// no-op, per spec.md §4.2's tie-break rule.
func (e *stepExecutor) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
