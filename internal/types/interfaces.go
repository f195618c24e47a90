package types

import (
	"time"
)

// TargetValidator checks whether a raw URL may be fetched.
// Implemented by security.Policy; the fetcher re-runs it on every redirect.
type TargetValidator interface {
	Validate(raw string) ValidationResult
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }
