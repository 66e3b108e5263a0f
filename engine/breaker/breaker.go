// Package breaker wires github.com/sony/gobreaker into a step as an
// optional circuit breaker, independent of the step's own retry policy.
package breaker

import (
	"github.com/sony/gobreaker"
)

// NonRetryable reports whether err came from an open circuit breaker, for
// use with a step's WithNonRetryable option: an open breaker should fail
// the whole retry budget immediately rather than spend attempts against a
// collaborator already known to be unhealthy.
func NonRetryable(err error) bool {
	return err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests
}

// New builds a circuit breaker named name with settings, deferring default
// behaviour (60s open-state timeout, trip after 60% failure ratio with at
// least 5 requests) when the caller leaves those fields zero.
func New(name string, settings gobreaker.Settings) *gobreaker.CircuitBreaker {
	settings.Name = name
	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		}
	}
	return gobreaker.NewCircuitBreaker(settings)
}
