package activities

import "sync"

// InMemoryIdempotencyChecker implements engine.IdempotencyChecker with a
// process-local set, keyed by "workflowID/stepID". Good enough for a single
// process; a real deployment would back this with a shared store.
type InMemoryIdempotencyChecker struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewInMemoryIdempotencyChecker creates an empty checker.
func NewInMemoryIdempotencyChecker() *InMemoryIdempotencyChecker {
	return &InMemoryIdempotencyChecker{seen: make(map[string]struct{})}
}

// IsStepExecuted reports whether (workflowID, stepID) was previously marked.
func (c *InMemoryIdempotencyChecker) IsStepExecuted(workflowID, stepID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[key(workflowID, stepID)]
	return ok
}

// MarkStepExecuted records that (workflowID, stepID) has run.
func (c *InMemoryIdempotencyChecker) MarkStepExecuted(workflowID, stepID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[key(workflowID, stepID)] = struct{}{}
}

func key(workflowID, stepID string) string {
	return workflowID + "/" + stepID
}
