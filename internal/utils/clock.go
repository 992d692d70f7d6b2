package utils

import "time"

// Clock supplies monotonic time readings. time.Now carries a monotonic
// component, so Sub between two readings is immune to wall clock jumps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the process clock.
var SystemClock Clock = systemClock{}
