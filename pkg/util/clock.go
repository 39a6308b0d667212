package util

import "time"

// Clock is the time source used for run timing, so tests can substitute a
// deterministic one.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
