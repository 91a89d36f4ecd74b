package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock is a package-level time source so tests can freeze time via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source used for outcome and run timestamps. Pass nil
// to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Clock returns the current time source.
func Clock() clockwork.Clock { return clock }

// Now returns the current time from the package clock.
func Now() time.Time { return clock.Now() }
