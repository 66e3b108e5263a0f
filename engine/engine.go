package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// EngineOption configures an Engine at construction time.
type EngineOption func(*Engine)

// WithLogger injects a structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithLoggingDisabled turns off the engine's own lifecycle log lines
// (listener/interceptor calls still fire regardless).
func WithLoggingDisabled() EngineOption {
	return func(e *Engine) { e.loggingEnabled = false }
}

// WithSkipCompensation disables the compensation sweep on failure.
func WithSkipCompensation() EngineOption {
	return func(e *Engine) { e.skipCompensation = true }
}

// WithExecutor injects the async executor used by forEachAsync, parallel,
// and withTimeout. Defaults to a shared process-wide pool.
func WithExecutor(ex Executor) EngineOption {
	return func(e *Engine) { e.executor = ex }
}

// WithMetricsCollector injects a metrics collector.
func WithMetricsCollector(m MetricsCollector) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithIdempotencyChecker injects an idempotency checker.
func WithIdempotencyChecker(c IdempotencyChecker) EngineOption {
	return func(e *Engine) { e.idempotency = c }
}

// WithInterceptor registers a StepInterceptor.
func WithInterceptor(i StepInterceptor) EngineOption {
	return func(e *Engine) { e.interceptors = append(e.interceptors, i) }
}

// WithListener registers a WorkflowListener.
func WithListener(l WorkflowListener) EngineOption {
	return func(e *Engine) { e.listeners = append(e.listeners, l) }
}

// WithCompensationPolicy overrides the compensation engine's retry count,
// retry delay, and overall timeout. Defaults to the package Default*
// compensation constants.
func WithCompensationPolicy(maxRetries int, retryDelay, timeout time.Duration) EngineOption {
	return func(e *Engine) {
		e.compensationMaxRetries = maxRetries
		e.compensationRetryDelay = retryDelay
		e.compensationTimeout = timeout
	}
}

// WithDefaultStepOptions sets StepOptions applied to every step enqueued
// through the engine's (name, action[, compensation]) convenience methods,
// before that call's own opts — so a per-call option still overrides the
// engine-wide default. Typically sourced from an EngineConfig.
func WithDefaultStepOptions(opts ...StepOption) EngineOption {
	return func(e *Engine) { e.defaultStepOpts = append(e.defaultStepOpts, opts...) }
}

// Engine is both the builder (configuration + step accumulation) and the
// runner (drive to completion) for one workflow. It is single-use by
// default: call Reset to run it again.
type Engine struct {
	mu sync.Mutex

	name             string
	logger           *slog.Logger
	loggingEnabled   bool
	skipCompensation bool
	executor         Executor
	stepExec         *stepExecutor
	metrics          MetricsCollector
	idempotency      IdempotencyChecker
	interceptors     []StepInterceptor
	listeners        []WorkflowListener
	defaultStepOpts  []StepOption

	compensationMaxRetries int
	compensationRetryDelay time.Duration
	compensationTimeout    time.Duration

	pending     []Step
	runQueue    []Step
	executed    []executedRecord
	stepCounter int
	isExecuting bool

	wfCtx    *Context
	cancelFn context.CancelFunc
}

// New creates an Engine named name, with a fresh Context.
func New(name string, opts ...EngineOption) *Engine {
	e := &Engine{
		name:                   name,
		logger:                 slog.Default(),
		loggingEnabled:         DefaultLoggingEnabled,
		compensationMaxRetries: DefaultMaxCompensationRetries,
		compensationRetryDelay: DefaultRetryDelay,
		compensationTimeout:    DefaultCompensationTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.wfCtx = NewContext(e.logger)
	e.wfCtx.Put(KeyWorkflowName, name)
	e.stepExec = newStepExecutor(e.logger, e.metrics)
	return e
}

// Context returns the engine's live Context. Callers may read it at any
// time; mutating it directly bypasses the engine's own bookkeeping and
// should generally be avoided outside of step actions.
func (e *Engine) Context() *Context { return e.wfCtx }

// GetWorkflowID returns the underlying context's unique identifier.
func (e *Engine) GetWorkflowID() string { return e.wfCtx.ID() }

// IsExecuting reports whether Execute/ExecuteAsync is currently in flight.
func (e *Engine) IsExecuting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isExecuting
}

// GetExecutedStepCount returns how many steps have completed successfully
// so far (across the whole execution if called after it finishes).
func (e *Engine) GetExecutedStepCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.executed)
}

// GetExecutedStepNames returns the names of steps that completed
// successfully, in execution order.
func (e *Engine) GetExecutedStepNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, len(e.executed))
	for i, rec := range e.executed {
		names[i] = rec.step.name
	}
	return names
}

// GetExecutionTrace returns the context's accumulated trace.
func (e *Engine) GetExecutionTrace() []TraceEntry {
	return e.wfCtx.ExecutionTrace()
}

// GetContextSnapshot returns a decoupled snapshot of the context.
func (e *Engine) GetContextSnapshot() ContextSnapshot {
	return e.wfCtx.Snapshot()
}

// asyncExecutor returns the configured Executor, or the shared default pool
// if none was injected.
func (e *Engine) asyncExecutor() Executor {
	if e.executor != nil {
		return e.executor
	}
	return sharedDefaultExecutor()
}

func (e *Engine) checkMutable() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.isExecuting {
		return &PreconditionError{Reason: "engine is executing: cannot mutate the step queue"}
	}
	return nil
}

// enqueue appends step to the pending queue, preserving insertion order.
func (e *Engine) enqueue(step Step) error {
	if err := e.checkMutable(); err != nil {
		return err
	}
	if step.name == "" || (step.IsAsync() && step.asyncAct == nil) || (!step.IsAsync() && step.action == nil) {
		return fmt.Errorf("engine: step name and action are required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stepCounter++
	e.pending = append(e.pending, step)
	return nil
}

// flattenNext splices steps into the front of the currently running queue,
// immediately after the synthetic combinator step that produced them. Only
// meaningful while run is in progress.
func (e *Engine) flattenNext(steps []Step) {
	e.runQueue = append(append([]Step{}, steps...), e.runQueue...)
}

// newSubEngine builds a child Engine sharing this engine's logging,
// skip-compensation flag, executor, step executor, and metrics collector,
// but seeded with a copy of the current context. Used by combinators to
// materialise a conditional/loop/parallel body.
func (e *Engine) newSubEngine(suffix string) *Engine {
	sub := &Engine{
		name:                   e.name + "/" + suffix,
		logger:                 e.logger,
		loggingEnabled:         e.loggingEnabled,
		skipCompensation:       e.skipCompensation,
		executor:               e.executor,
		metrics:                e.metrics,
		idempotency:            e.idempotency,
		compensationMaxRetries: e.compensationMaxRetries,
		compensationRetryDelay: e.compensationRetryDelay,
		compensationTimeout:    e.compensationTimeout,
	}
	sub.wfCtx = e.wfCtx.Copy()
	sub.stepExec = newStepExecutor(sub.logger, sub.metrics)
	sub.defaultStepOpts = e.defaultStepOpts
	return sub
}

// withDefaults prepends the engine's configured default StepOptions ahead
// of call-specific opts, so the latter still win on conflicting fields.
func (e *Engine) withDefaults(opts []StepOption) []StepOption {
	if len(e.defaultStepOpts) == 0 {
		return opts
	}
	merged := make([]StepOption, 0, len(e.defaultStepOpts)+len(opts))
	merged = append(merged, e.defaultStepOpts...)
	merged = append(merged, opts...)
	return merged
}

// Step enqueues a fully built descriptor, sync or async.
func (e *Engine) Step(step Step) error { return e.enqueue(step) }

// StepFunc enqueues a sync step with no compensation.
func (e *Engine) StepFunc(name string, action SyncAction, opts ...StepOption) error {
	return e.enqueue(NewSyncStep(name, action, nil, e.withDefaults(opts)...))
}

// StepWithCompensation enqueues a sync step with a compensation.
func (e *Engine) StepWithCompensation(name string, action SyncAction, comp SyncCompensation, opts ...StepOption) error {
	return e.enqueue(NewSyncStep(name, action, comp, e.withDefaults(opts)...))
}

// Run enqueues a sync void action (no return value), normalised to an
// action returning nil on success.
func (e *Engine) Run(name string, fn func() error, opts ...StepOption) error {
	return e.enqueue(NewSyncStep(name, func() (any, error) {
		return nil, fn()
	}, nil, e.withDefaults(opts)...))
}

// AsyncStepFunc enqueues an async step with no compensation.
func (e *Engine) AsyncStepFunc(name string, action AsyncAction, opts ...StepOption) error {
	return e.enqueue(NewAsyncStep(name, action, nil, e.withDefaults(opts)...))
}

// AsyncStepWithCompensation enqueues an async step with a compensation.
func (e *Engine) AsyncStepWithCompensation(name string, action AsyncAction, comp AsyncCompensation, opts ...StepOption) error {
	return e.enqueue(NewAsyncStep(name, action, comp, e.withDefaults(opts)...))
}

// AsyncRun enqueues an async void action.
func (e *Engine) AsyncRun(name string, fn func(ctx context.Context, wfCtx *Context) error, opts ...StepOption) error {
	return e.enqueue(NewAsyncStep(name, func(ctx context.Context, wfCtx *Context) (any, error) {
		return nil, fn(ctx, wfCtx)
	}, nil, e.withDefaults(opts)...))
}

// Reset returns the engine to a pending state: clears executed history,
// compensation bookkeeping, and the isExecuting gate, but keeps the pending
// queue and configuration. The context is replaced with a fresh one.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executed = nil
	e.isExecuting = false
	e.cancelFn = nil
	e.wfCtx = NewContext(e.logger)
	e.wfCtx.Put(KeyWorkflowName, e.name)
}

// Execute runs the workflow to completion, blocking the calling goroutine.
func (e *Engine) Execute(ctx context.Context) (any, error) {
	return e.run(ctx)
}

// AsyncHandle is returned by ExecuteAsync: a cancellable, awaitable handle
// on a workflow execution running on its own goroutine.
type AsyncHandle struct {
	done   chan struct{}
	result any
	err    error
	cancel context.CancelFunc
}

// Await blocks until the execution finishes and returns its outcome.
func (h *AsyncHandle) Await() (any, error) {
	<-h.done
	return h.result, h.err
}

// Cancel requests cancellation of the running execution. It does not block
// for the execution to observe cancellation.
func (h *AsyncHandle) Cancel() { h.cancel() }

// ExecuteAsync starts the workflow on its own goroutine and returns
// immediately with a handle that can be awaited or cancelled.
func (e *Engine) ExecuteAsync(ctx context.Context) *AsyncHandle {
	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancelFn = cancel
	e.mu.Unlock()

	h := &AsyncHandle{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(h.done)
		h.result, h.err = e.run(runCtx)
	}()
	return h
}

// run implements the §4.1 execution algorithm.
func (e *Engine) run(ctx context.Context) (any, error) {
	e.mu.Lock()
	if e.isExecuting {
		e.mu.Unlock()
		return nil, &PreconditionError{Reason: "engine is already executing"}
	}
	e.isExecuting = true
	e.runQueue = e.pending
	e.pending = nil
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.isExecuting = false
		e.mu.Unlock()
	}()

	safeOnWorkflowStart(e.logger, multiListener(e.listeners), e.name)
	e.wfCtx.Trace(fmt.Sprintf("workflow %q started", e.name))
	if e.loggingEnabled {
		e.logger.Info("workflow started", "workflow", e.name, "workflow_id", e.wfCtx.ID())
	}

	stepNum := 0
	var finalResult any
	var failure error
	var failingStep int

	for len(e.runQueue) > 0 {
		step := e.runQueue[0]
		e.runQueue = e.runQueue[1:]
		stepNum++

		if step.Idempotent() && e.idempotency != nil && e.idempotency.IsStepExecuted(e.wfCtx.ID(), step.ID()) {
			if e.loggingEnabled {
				e.logger.Info("skipping idempotent step", "step", step.name)
			}
			continue
		}

		for _, i := range e.interceptors {
			safeBeforeStep(e.logger, i, step)
		}

		result, err := e.stepExec.run(ctx, step, e.wfCtx)
		if err != nil {
			e.wfCtx.RecordStepError(step.ID(), err)
			for _, i := range e.interceptors {
				safeOnStepError(e.logger, i, step, err)
			}
			if step.Critical() {
				err = &CriticalStepError{StepName: step.name, Cause: err}
			}
			failure = err
			failingStep = stepNum
			break
		}

		e.wfCtx.Put(KeyLastResult, result)
		e.wfCtx.Put(StepResultKey(step.name), result)
		e.wfCtx.RecordStepResult(step.ID(), result)
		if e.idempotency != nil {
			e.idempotency.MarkStepExecuted(e.wfCtx.ID(), step.ID())
		}

		e.mu.Lock()
		e.executed = append(e.executed, executedRecord{step: step, result: result})
		e.mu.Unlock()

		for _, i := range e.interceptors {
			safeAfterStep(e.logger, i, step, result)
		}
		if e.loggingEnabled {
			e.logger.Info("step completed", "step", step.name)
		}

		if result != nil {
			finalResult = result
		}
	}

	if failure == nil {
		e.wfCtx.Put(KeyFinalResult, finalResult)
		safeOnWorkflowComplete(e.logger, multiListener(e.listeners), e.name, finalResult)
		if e.loggingEnabled {
			e.logger.Info("workflow completed", "workflow", e.name)
		}
		return finalResult, nil
	}

	safeOnWorkflowError(e.logger, multiListener(e.listeners), e.name, failure)
	e.wfCtx.Trace(fmt.Sprintf("workflow %q failed: %v", e.name, failure))

	var compErrs []error
	if !e.skipCompensation {
		ce := newCompensationEngine(e.logger, e.metrics, e.listeners,
			e.compensationMaxRetries, e.compensationRetryDelay, e.compensationTimeout)
		e.mu.Lock()
		records := make([]executedRecord, len(e.executed))
		copy(records, e.executed)
		e.mu.Unlock()
		compErrs = ce.compensate(ctx, records)
	}

	return nil, &WorkflowFailedError{
		WorkflowName:     e.name,
		FailingStep:      failingStep,
		Cause:            failure,
		CompensationErrs: compErrs,
	}
}
