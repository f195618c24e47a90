// Package breaker holds the circuit breaker settings shared by the
// best-effort AWS sinks.
package breaker

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// tripAfter is the number of consecutive failures tolerated before the
// breaker opens.
const tripAfter = 5

// Settings returns the sink breaker settings: open after more than five
// consecutive failures, allow one trial call after 30 seconds.
func Settings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > tripAfter
		},
	}
}

// New builds a breaker named name with Settings.
func New[T any](name string) *gobreaker.CircuitBreaker[T] {
	return gobreaker.NewCircuitBreaker[T](Settings(name))
}
