package auth

import "time"

// Timer is a cancellable one-shot timer handle.
type Timer interface {
	// Stop cancels the timer; it reports false if the timer already
	// fired or was stopped.
	Stop() bool
}

// TimerFactory schedules fn to run once after d. It can be overridden in
// tests to drive timers by hand.
type TimerFactory func(d time.Duration, fn func()) Timer

func stdTimerFactory(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
