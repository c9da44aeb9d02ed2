package util

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Clock is the time source for the simulation scheduler. Production code
// uses NewClock; tests drive a clock.Mock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) *clock.Timer
}

// NewClock returns the wall clock
func NewClock() Clock { return clock.New() }

// NewMockClock returns a manually advanced clock starting at start
func NewMockClock(start time.Time) *clock.Mock {
	m := clock.NewMock()
	m.Set(start)
	return m
}
