package domain

import "github.com/jonboulle/clockwork"

// clock is the process-wide time source handed to the orchestrator, the
// claims service and the pipeline. Binaries that replay a fixed instant
// replace it before wiring.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Clock returns the current time source.
func Clock() clockwork.Clock {
	return clock
}
