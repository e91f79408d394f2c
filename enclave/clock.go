package main

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrExplicitTime is returned when a request pins its time on a clock that
// follows the host.
var ErrExplicitTime = errors.New("explicit time requires a dev clock")

// Clock supplies block timestamps. Time never goes backwards: a request
// carrying an explicit time earlier than the last applied one is rejected.
// Only dev clocks accept explicit times at all.
type Clock struct {
	mu     sync.Mutex
	now    func() time.Time
	offset uint64
	last   uint64
	dev    bool
}

// NewClock returns a clock following now. With dev set, requests may pin
// their own time and Advance may move the clock forward.
func NewClock(now func() time.Time, dev bool) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now, dev: dev}
}

func (c *Clock) current() uint64 {
	t := uint64(c.now().Unix()) + c.offset
	if t < c.last {
		return c.last
	}
	return t
}

// Now returns the current timestamp without consuming it.
func (c *Clock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current()
}

// Resolve picks the timestamp for a transaction and records it as the last
// applied time.
func (c *Clock) Resolve(explicit *uint64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.current()
	if explicit != nil {
		if !c.dev {
			return 0, ErrExplicitTime
		}
		if *explicit < c.last {
			return 0, fmt.Errorf("time %d is before last applied time %d", *explicit, c.last)
		}
		t = *explicit
	}
	c.last = t
	return t, nil
}

// Advance moves the clock forward by seconds. Only dev clocks can be advanced.
func (c *Clock) Advance(seconds uint64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dev {
		return 0, fmt.Errorf("clock advance is disabled")
	}
	c.offset += seconds
	return c.current(), nil
}

// Resume keeps the clock at or after at, the time a restored snapshot was taken.
func (c *Clock) Resume(at uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if at > c.last {
		c.last = at
	}
}
