package engine

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"github.com/sony/gobreaker"

	"sagaflow/engine/breaker"
)

// SyncAction is a synchronous step action. It may return any value on
// success, or fail.
type SyncAction func() (any, error)

// SyncCompensation undoes a synchronous step's effect, given its recorded
// result.
type SyncCompensation func(result any) error

// AsyncAction is an asynchronous step action: it receives the live Context
// and returns a value once its work completes, or fails.
type AsyncAction func(ctx context.Context, wfCtx *Context) (any, error)

// AsyncCompensation undoes an asynchronous step's effect, given its
// recorded result.
type AsyncCompensation func(ctx context.Context, result any) error

// kind tags which variant of the Step union is populated. A language-neutral
// encoding of Step as a tagged Sync/Async variant, per spec.md §9 — the
// executor and compensation engine dispatch on kind (via IsAsync) rather
// than on dynamic type assertions.
type kind int

const (
	kindSync kind = iota
	kindAsync
)

// Step is an immutable descriptor for one unit of work in a workflow. A
// given Step is either a sync step (action/comp populated) or an async step
// (asyncAct/asyncComp populated); kind says which.
type Step struct {
	id         string
	name       string
	kind       kind
	action     SyncAction
	comp       SyncCompensation
	asyncAct   AsyncAction
	asyncComp  AsyncCompensation
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
	critical   bool
	idempotent bool
	async      bool
	metadata   map[string]any
	nonRetry   func(error) bool
	breaker    stepDecorator
}

// ID returns the step's stable identifier (random if none was supplied to
// the builder).
func (s Step) ID() string { return s.id }

// Name returns the step's human name.
func (s Step) Name() string { return s.name }

// IsAsync reports whether this step is the async variant.
func (s Step) IsAsync() bool { return s.kind == kindAsync }

// Critical reports whether this step's failure, once its retries are
// exhausted, is surfaced wrapped in a CriticalStepError.
func (s Step) Critical() bool { return s.critical }

// Idempotent reports whether this step may be skipped when the configured
// IdempotencyChecker reports prior completion.
func (s Step) Idempotent() bool { return s.idempotent }

// MaxRetries returns the number of retries (not counting the first
// attempt) configured for this step.
func (s Step) MaxRetries() int { return s.maxRetries }

// Metadata returns the step's free-form metadata map.
func (s Step) Metadata() map[string]any { return s.metadata }

// DecodeMetadata decodes the step's Metadata map into out (a pointer to a
// struct), using mapstructure with "json"-tag field mapping. This is purely
// a convenience for typed activity configuration; it has no bearing on the
// engine's own semantics.
func (s Step) DecodeMetadata(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(s.metadata)
}

// stepDecorator wraps a sync or async action, e.g. to apply a circuit
// breaker. Composes around the retry loop: the decorator runs on every
// attempt.
type stepDecorator func(next SyncAction) SyncAction

// StepOption configures optional Step behaviour beyond the builder's
// required fields.
type StepOption func(*Step)

// WithID overrides the generated random step id.
func WithID(id string) StepOption {
	return func(s *Step) { s.id = id }
}

// WithRetries sets the maximum retry count (not counting the first
// attempt). Negative values are treated as zero (no retries).
func WithRetries(n int) StepOption {
	return func(s *Step) {
		if n < 0 {
			n = 0
		}
		s.maxRetries = n
	}
}

// WithRetryDelay sets the sleep between retry attempts. Zero or negative
// means no sleep.
func WithRetryDelay(d time.Duration) StepOption {
	return func(s *Step) { s.retryDelay = d }
}

// WithTimeout sets a per-step timeout. Zero or negative means no timeout is
// applied.
func WithTimeout(d time.Duration) StepOption {
	return func(s *Step) { s.timeout = d }
}

// WithCritical marks the step critical: its failure, after any retries, is
// wrapped in a CriticalStepError.
func WithCritical() StepOption {
	return func(s *Step) { s.critical = true }
}

// WithIdempotent marks the step idempotent: it may be skipped if the
// engine's IdempotencyChecker reports it already ran for this context.
func WithIdempotent() StepOption {
	return func(s *Step) { s.idempotent = true }
}

// WithMetadata attaches a free-form metadata map to the step.
func WithMetadata(md map[string]any) StepOption {
	return func(s *Step) { s.metadata = md }
}

// WithNonRetryable supplies a predicate identifying errors that must not be
// retried even if attempts remain.
func WithNonRetryable(pred func(error) bool) StepOption {
	return func(s *Step) { s.nonRetry = pred }
}

// WithCircuitBreaker wraps the step's action in cb. It composes with, and
// runs inside, the step's own retry loop: an open breaker fails the
// attempt immediately, and is treated as non-retryable (see
// engine/breaker.NonRetryable) so it does not spend the step's retry
// budget against a collaborator already known to be unhealthy.
func WithCircuitBreaker(cb *gobreaker.CircuitBreaker) StepOption {
	return func(s *Step) {
		s.breaker = func(next SyncAction) SyncAction {
			return func() (any, error) {
				return cb.Execute(func() (any, error) {
					return next()
				})
			}
		}
		existing := s.nonRetry
		s.nonRetry = func(err error) bool {
			return breaker.NonRetryable(err) || (existing != nil && existing(err))
		}
	}
}

// NewSyncStep builds a sync Step. name and action are required; a missing
// name or action is rejected by the engine's enqueue validation.
func NewSyncStep(name string, action SyncAction, comp SyncCompensation, opts ...StepOption) Step {
	s := Step{
		id:         uuid.NewString(),
		name:       name,
		kind:       kindSync,
		action:     action,
		comp:       comp,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		timeout:    DefaultStepTimeout,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// NewAsyncStep builds an async Step. name and action are required.
func NewAsyncStep(name string, action AsyncAction, comp AsyncCompensation, opts ...StepOption) Step {
	s := Step{
		id:         uuid.NewString(),
		name:       name,
		kind:       kindAsync,
		asyncAct:   action,
		asyncComp:  comp,
		async:      true,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		timeout:    DefaultStepTimeout,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// sanitiseName replaces runs of whitespace with underscores and lowercases,
// per spec.md §4.1's context-key sanitisation rule.
func sanitiseName(name string) string {
	return strings.ToLower(whitespaceRun.ReplaceAllString(name, "_"))
}
