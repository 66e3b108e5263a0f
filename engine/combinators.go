package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Predicate inspects the live context to decide a conditional combinator's
// branch.
type Predicate func(*Context) bool

// ExpressionEvaluator evaluates a string expression against a set of
// variables, returning a boolean. Backs the *Expr variants of the
// conditional combinators; the default implementation lives in
// engine/exprpredicate.
type ExpressionEvaluator interface {
	EvaluateBool(expr string, vars map[string]any) (bool, error)
}

// Equals is a convenience Predicate matching when the context value at key
// equals expected, per spec.md §4.5's "when(key, expected, body)" shorthand.
func Equals(key string, expected any) Predicate {
	return func(c *Context) bool {
		v, ok := c.Get(key)
		return ok && v == expected
	}
}

// When enqueues a synthetic step that, when executed, evaluates predicate;
// if true, it builds a sub-engine, runs body to populate it, then flattens
// the sub-engine's pending steps into this engine's queue.
func (e *Engine) When(predicate Predicate, body func(*Engine) error) error {
	return e.enqueue(NewSyncStep("when", func() (any, error) {
		if !predicate(e.wfCtx) {
			return nil, nil
		}
		sub := e.newSubEngine("when")
		if err := body(sub); err != nil {
			return nil, err
		}
		e.flattenNext(sub.pending)
		return nil, nil
	}, nil))
}

// WhenExpr is When with the predicate given as a string expression,
// evaluated against a snapshot of the context's values by eval.
func (e *Engine) WhenExpr(eval ExpressionEvaluator, expr string, body func(*Engine) error) error {
	return e.When(func(c *Context) bool {
		ok, err := eval.EvaluateBool(expr, c.Snapshot().Values)
		if err != nil {
			e.logger.Error("WhenExpr evaluation failed", "expr", expr, "error", err)
			return false
		}
		return ok
	}, body)
}

// IfThen is an alias for When, named to match spec.md §4.5's ifThen.
func (e *Engine) IfThen(predicate Predicate, thenBody func(*Engine) error) error {
	return e.When(predicate, thenBody)
}

// IfThenExpr is IfThen with a string predicate.
func (e *Engine) IfThenExpr(eval ExpressionEvaluator, expr string, thenBody func(*Engine) error) error {
	return e.WhenExpr(eval, expr, thenBody)
}

// IfThenElse runs thenBody if predicate holds, otherwise elseBody.
func (e *Engine) IfThenElse(predicate Predicate, thenBody, elseBody func(*Engine) error) error {
	return e.enqueue(NewSyncStep("if_then_else", func() (any, error) {
		sub := e.newSubEngine("if_then_else")
		var err error
		if predicate(e.wfCtx) {
			err = thenBody(sub)
		} else {
			err = elseBody(sub)
		}
		if err != nil {
			return nil, err
		}
		e.flattenNext(sub.pending)
		return nil, nil
	}, nil))
}

// IfThenElseExpr is IfThenElse with a string predicate.
func (e *Engine) IfThenElseExpr(eval ExpressionEvaluator, expr string, thenBody, elseBody func(*Engine) error) error {
	return e.IfThenElse(func(c *Context) bool {
		ok, err := eval.EvaluateBool(expr, c.Snapshot().Values)
		if err != nil {
			e.logger.Error("IfThenElseExpr evaluation failed", "expr", expr, "error", err)
			return false
		}
		return ok
	}, thenBody, elseBody)
}

// Repeat enqueues a synthetic step that, on execution, runs body n times.
// Unlike When, each iteration's sub-engine is executed inline within this
// one synthetic step rather than flattened into the parent queue — per
// spec.md §9's documented (and deliberately preserved) asymmetry between
// repeat and the conditional combinators.
func (e *Engine) Repeat(n int, body func(*Engine) error) error {
	return e.enqueue(NewSyncStep("repeat", func() (any, error) {
		var last any
		for i := 0; i < n; i++ {
			sub := e.newSubEngine(fmt.Sprintf("Repeat-%d", i))
			if err := body(sub); err != nil {
				return nil, err
			}
			res, err := sub.run(context.Background())
			if err != nil {
				return nil, err
			}
			last = res
		}
		return last, nil
	}, nil))
}

// ForEach enqueues a step that iterates the collection returned by supplier
// serially. For each element it writes current_item/item_index into the
// parent context, then runs a one-step sub-engine ("Process item") calling
// itemProcessor.
func (e *Engine) ForEach(supplier func(*Context) []any, itemProcessor func(item any, idx int, c *Context) error) error {
	return e.enqueue(NewSyncStep("for_each", func() (any, error) {
		items := supplier(e.wfCtx)
		var last any
		for idx, item := range items {
			e.wfCtx.Put(KeyCurrentItem, item)
			e.wfCtx.Put(KeyItemIndex, idx)
			sub := e.newSubEngine(fmt.Sprintf("ForEach-%d", idx))
			if err := sub.Run("Process item", func() error {
				return itemProcessor(item, idx, e.wfCtx)
			}); err != nil {
				return nil, err
			}
			res, err := sub.run(context.Background())
			if err != nil {
				return nil, err
			}
			last = res
		}
		return last, nil
	}, nil))
}

// ForEachAsync enqueues one async step that fans every item out to the
// configured executor concurrently and waits for all. Per-item failures
// are logged and suppressed. All items share the live context, so
// concurrent read-modify-write updates of the same key can lose updates
// (the race noted in spec.md §8 scenario 5).
func (e *Engine) ForEachAsync(supplier func(*Context) []any, itemProcessor func(item any, idx int, c *Context) error) error {
	return e.enqueue(NewAsyncStep("for_each_async", func(ctx context.Context, wfCtx *Context) (any, error) {
		items := supplier(wfCtx)
		var wg sync.WaitGroup
		ex := e.asyncExecutor()
		for idx, item := range items {
			idx, item := idx, item
			wg.Add(1)
			ex.Go(func() {
				defer wg.Done()
				if err := itemProcessor(item, idx, wfCtx); err != nil {
					e.logger.Error("forEachAsync item failed", "index", idx, "error", err)
				}
			})
		}
		wg.Wait()
		return nil, nil
	}, nil))
}

// Parallel enqueues one async step that runs each branch as an isolated
// sub-engine seeded with a snapshot of the current context, all launched
// concurrently. Completion requires every branch to succeed. Branch
// sub-engines are executed standalone against a snapshot context: their
// executedSteps are not merged into the parent's, so a later parent
// failure will not compensate work done inside a parallel branch —
// documented in spec.md §9 as an intentional isolation, not an oversight.
// Each branch's own step results are copied back into the parent context
// once every branch has finished, so they remain visible to later steps.
func (e *Engine) Parallel(branches ...func(*Engine) error) error {
	return e.enqueue(NewAsyncStep("parallel", func(ctx context.Context, wfCtx *Context) (any, error) {
		ex := e.asyncExecutor()
		results := make([]any, len(branches))
		errs := make([]error, len(branches))
		subs := make([]*Engine, len(branches))
		var wg sync.WaitGroup
		for i, branch := range branches {
			i, branch := i, branch
			wg.Add(1)
			ex.Go(func() {
				defer wg.Done()
				sub := e.newSubEngine(fmt.Sprintf("Parallel-%d", i))
				subs[i] = sub
				if err := branch(sub); err != nil {
					errs[i] = err
					return
				}
				res, err := sub.run(ctx)
				results[i] = res
				errs[i] = err
			})
		}
		wg.Wait()

		for _, sub := range subs {
			if sub == nil {
				continue
			}
			for _, rec := range sub.executed {
				wfCtx.Put(StepResultKey(rec.step.name), rec.result)
				wfCtx.RecordStepResult(rec.step.ID(), rec.result)
			}
		}

		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}
		return results, nil
	}, nil))
}

// WithFallback enqueues a step whose action runs main; on any failure it
// invokes fallback and returns its result instead.
func (e *Engine) WithFallback(name string, main SyncAction, fallback SyncAction) error {
	return e.enqueue(NewSyncStep(name, func() (any, error) {
		v, err := main()
		if err == nil {
			return v, nil
		}
		e.logger.Warn("step failed, invoking fallback", "step", name, "error", err)
		return fallback()
	}, nil))
}

// WithTimeout enqueues a step that dispatches action on the configured
// executor and waits at most duration; on expiry it raises a
// StepTimeoutError without waiting further for the abandoned goroutine.
func (e *Engine) WithTimeout(name string, action SyncAction, duration time.Duration) error {
	return e.enqueue(NewSyncStep(name, func() (any, error) {
		type outcome struct {
			val any
			err error
		}
		done := make(chan outcome, 1)
		e.asyncExecutor().Go(func() {
			v, err := action()
			done <- outcome{v, err}
		})
		select {
		case o := <-done:
			return o.val, o.err
		case <-time.After(duration):
			return nil, &StepTimeoutError{StepName: name, Timeout: duration.String()}
		}
	}, nil))
}

// Log enqueues a step that records a formatted message in the context
// trace and, if logging is enabled, in the runtime log. Its value is the
// formatted string.
func (e *Engine) Log(format string, args ...any) error {
	return e.enqueue(NewSyncStep("log", func() (any, error) {
		msg := fmt.Sprintf(format, args...)
		e.wfCtx.Trace(msg)
		if e.loggingEnabled {
			e.logger.Info(msg)
		}
		return msg, nil
	}, nil))
}
