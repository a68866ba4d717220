package gwutils

import (
	"time"

	"github.com/xiaonanln/gwphys/engine/gwlog"
)

// RunPanicless calls a function panic-freely
func RunPanicless(f func()) (panicked bool) {
	defer func() {
		err := recover()
		if err != nil {
			gwlog.TraceError("%p panic: %s", f, err)
			panicked = true
		}
	}()

	f()
	return
}

// RepeatUntilPanicless runs the function repeatedly until it returns without a panic
func RepeatUntilPanicless(f func()) {
	for RunPanicless(f) {
	}
}

// RepeatUntilPaniclessWithDelay is RepeatUntilPanicless that waits delay between runs
func RepeatUntilPaniclessWithDelay(f func(), delay time.Duration) {
	for RunPanicless(f) {
		time.Sleep(delay)
	}
}
