package types

import "time"

// Clock abstracts wall-clock reads so tests can pin time. Timers stay real;
// only Now/Since go through the clock.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }
