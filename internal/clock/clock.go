// Package clock abstracts wall time and timer scheduling so that debounce
// and backoff logic can be driven deterministically in tests.
package clock

import "time"

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	// Stop prevents the callback from firing. Returns false if the callback
	// already fired or the timer was stopped.
	Stop() bool
}

// Clock источник времени и планировщик отложенных вызовов
type Clock interface {
	Now() time.Time
	// AfterFunc calls f in its own goroutine after d elapses.
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// Real returns the Clock backed by package time.
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
