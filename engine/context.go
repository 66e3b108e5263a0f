package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/google/uuid"
)

// Reserved context keys. The engine reads and writes these; caller code may
// read them freely but should treat them as opaque.
const (
	KeyWorkflowID   = "workflow_id"
	KeyExecutionID  = "execution_id"
	KeyWorkflowName = "workflow_name"
	KeyLastResult   = "last_result"
	KeyFinalResult  = "final_result"
	KeyCurrentItem  = "current_item"
	KeyItemIndex    = "item_index"
	KeyErrorContext = "error_context"
	KeyStartTime    = "start_time"
	KeyMetricsData  = "metrics_data"
)

// StepResultKey returns the reserved key a step's result is stored under:
// step_result_<sanitised name>. Two steps sharing a (sanitised) name collide
// on this key; the later value wins.
func StepResultKey(stepName string) string {
	return "step_result_" + sanitiseName(stepName)
}

// TraceEntry is one timestamped message in a Context's execution trace.
type TraceEntry struct {
	Time    time.Time
	Message string
}

// Context is the thread-safe, versioned key-value store shared by every step
// of a single workflow execution. It is created with the engine and is never
// shared across engine instances: combinators that build sub-workflows pass
// a Snapshot copy, not the live Context.
type Context struct {
	mu        sync.RWMutex
	id        string
	createdAt time.Time
	version   uint64
	values    map[string]any
	trace     []TraceEntry
	results   map[string]any
	errs      map[string]error
	executed  map[string]struct{}
	logger    *slog.Logger
}

// NewContext creates a Context with a fresh random id, registering it under
// the reserved workflow_id key.
func NewContext(logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	c := &Context{
		id:        id,
		createdAt: time.Now(),
		values:    make(map[string]any),
		results:   make(map[string]any),
		errs:      make(map[string]error),
		executed:  make(map[string]struct{}),
		logger:    logger,
	}
	c.values[KeyWorkflowID] = id
	return c
}

// ID returns the context's unique identifier (also available under the
// reserved workflow_id key).
func (c *Context) ID() string {
	return c.id
}

// CreatedAt returns the immutable creation timestamp.
func (c *Context) CreatedAt() time.Time {
	return c.createdAt
}

// Version returns the current mutation counter. It strictly increases on
// every Put/Remove/Clear call.
func (c *Context) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Put stores a value under key, bumping the version. A nil/empty key is
// silently ignored with a logged warning.
func (c *Context) Put(key string, value any) {
	if key == "" {
		c.logger.Warn("context: ignoring put with empty key")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	c.version++
	c.appendTraceLocked(fmt.Sprintf("put %s", key))
}

// Remove deletes key, bumping the version. A no-op key removal still bumps
// the version, since it is itself a mutation attempt that was recorded.
func (c *Context) Remove(key string) {
	if key == "" {
		c.logger.Warn("context: ignoring remove with empty key")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	c.version++
	c.appendTraceLocked(fmt.Sprintf("remove %s", key))
}

// Clear removes every key except the reserved workflow_id, bumping the
// version once.
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = map[string]any{KeyWorkflowID: c.id}
	c.version++
	c.appendTraceLocked("clear")
}

// Get returns the value stored under key, and whether it was present.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// GetWithDefault returns the value stored under key, or def if absent.
func (c *Context) GetWithDefault(key string, def any) any {
	if v, ok := c.Get(key); ok {
		return v
	}
	return def
}

// Contains reports whether key is present.
func (c *Context) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.values[key]
	return ok
}

// KeySet returns a snapshot of the currently stored keys.
func (c *Context) KeySet() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	return keys
}

// Trace appends a timestamped message to the execution trace without
// counting as a value mutation (it does not bump Version).
func (c *Context) Trace(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendTraceLocked(message)
}

func (c *Context) appendTraceLocked(message string) {
	c.trace = append(c.trace, TraceEntry{Time: time.Now(), Message: message})
}

// ExecutionTrace returns a copy of the accumulated trace, in order.
func (c *Context) ExecutionTrace() []TraceEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]TraceEntry, len(c.trace))
	copy(out, c.trace)
	return out
}

// RecordStepResult records the last successful result for stepID, and marks
// it executed. executedStepIDs is always a superset of the keys recorded
// here.
func (c *Context) RecordStepResult(stepID string, result any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[stepID] = result
	c.executed[stepID] = struct{}{}
	c.version++
}

// RecordStepError records the last failure for stepID without marking it
// executed — a failed step never enters executedStepIDs.
func (c *Context) RecordStepError(stepID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[stepID] = err
	c.version++
}

// StepResult returns the last recorded result for stepID.
func (c *Context) StepResult(stepID string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.results[stepID]
	return v, ok
}

// StepError returns the last recorded error for stepID.
func (c *Context) StepError(stepID string) (error, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.errs[stepID]
	return e, ok
}

// IsExecuted reports whether stepID completed successfully at least once.
func (c *Context) IsExecuted(stepID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.executed[stepID]
	return ok
}

// ExecutedStepIDs returns the set of step ids that have completed
// successfully, in no particular order.
func (c *Context) ExecutedStepIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.executed))
	for id := range c.executed {
		ids = append(ids, id)
	}
	return ids
}

// ContextSnapshot is a decoupled copy of a Context's state at a point in
// time: later Put/Remove/Clear calls on the source Context never affect a
// snapshot already taken. The value map and trace are copied, but the
// stored values themselves are not cloned, so a mutable value (a map, slice
// or pointer) is shared between the snapshot and the source.
type ContextSnapshot struct {
	ID        string
	CreatedAt time.Time
	Version   uint64
	Values    map[string]any
	Trace     []TraceEntry
}

// Snapshot returns a decoupled copy of the context's current state.
func (c *Context) Snapshot() ContextSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	values := make(map[string]any, len(c.values))
	for k, v := range c.values {
		values[k] = v
	}
	trace := make([]TraceEntry, len(c.trace))
	copy(trace, c.trace)
	return ContextSnapshot{
		ID:        c.id,
		CreatedAt: c.createdAt,
		Version:   c.version,
		Values:    values,
		Trace:     trace,
	}
}

// SnapshotJSON renders the context's current values as a nested JSON
// document, for audit-event payloads: flat keys containing "." are
// expanded into nested objects (e.g. "user.id" becomes {"user":{"id":...}}).
// Keys that do not parse as a path are set at the top level verbatim.
func (c *Context) SnapshotJSON() ([]byte, error) {
	snap := c.Snapshot()
	doc := gabs.New()
	for k, v := range snap.Values {
		if _, err := doc.SetP(v, k); err != nil {
			if _, err2 := doc.Set(v, k); err2 != nil {
				return nil, fmt.Errorf("context: snapshot json: key %q: %w", k, err2)
			}
		}
	}
	return doc.Bytes(), nil
}

// Copy returns a new, independent Context seeded with this context's current
// values but its own id, version, trace, and per-step bookkeeping. Used by
// combinators to hand sub-workflows a context that cannot mutate the
// parent's.
func (c *Context) Copy() *Context {
	snap := c.Snapshot()
	cp := NewContext(c.logger)
	cp.mu.Lock()
	for k, v := range snap.Values {
		if k == KeyWorkflowID {
			continue
		}
		cp.values[k] = v
	}
	cp.mu.Unlock()
	return cp
}
