// Package clock supplies nanosecond time sources and the trading calendar.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock returns the current time in unix nanoseconds.
type Clock interface {
	Now() int64
}

// Wall reads the system clock.
type Wall struct{}

func (Wall) Now() int64 {
	return time.Now().UnixNano()
}

// Manual is a clock moved only by its owner.
type Manual struct {
	now atomic.Int64
}

// NewManual creates a manual clock reading start.
func NewManual(start int64) *Manual {
	m := &Manual{}
	m.now.Store(start)
	return m
}

func (m *Manual) Now() int64 {
	return m.now.Load()
}

// Set moves the clock to t.
func (m *Manual) Set(t int64) {
	m.now.Store(t)
}

// Advance moves the clock forward by d and returns the new reading.
func (m *Manual) Advance(d time.Duration) int64 {
	return m.now.Add(int64(d))
}

var processStart = time.Now()

// Base returns the system clock and a monotonic count read together, so
// readers can map steady readings onto wall time.
func Base() (system int64, steady int64) {
	now := time.Now()
	return now.UnixNano(), int64(now.Sub(processStart))
}
