// Package testutil holds helpers shared by package tests.
package testutil

import (
	"sort"
	"sync"
	"time"

	"github.com/iudanet/offsync/internal/clock"
)

// FakeClock is a manually advanced clock.Clock.
//
// Timers fire synchronously inside Advance, in deadline order, on the
// goroutine that calls Advance. Callers must not hold locks that the
// callbacks need.
type FakeClock struct {
	now    time.Time
	timers []*fakeTimer
	mu     sync.Mutex
}

type fakeTimer struct {
	clock    *FakeClock
	fn       func()
	deadline time.Time
	stopped  bool
	fired    bool
}

// NewFakeClock creates a fake clock set to a fixed instant.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules f to run once the clock is advanced past d.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTimer{clock: c, fn: f, deadline: c.now.Add(d)}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward and fires every timer that became due.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now

	var due []*fakeTimer
	remaining := c.timers[:0]
	for _, t := range c.timers {
		if t.stopped || t.fired {
			continue
		}
		if !t.deadline.After(now) {
			t.fired = true
			due = append(due, t)
			continue
		}
		remaining = append(remaining, t)
	}
	c.timers = remaining
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})
	for _, t := range due {
		t.fn()
	}
}

// PendingTimers returns the number of timers that have neither fired nor
// been stopped.
func (c *FakeClock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}
