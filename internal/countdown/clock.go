// Package countdown drives live countdowns towards ReminderEvents.
//
// Remaining time is always recomputed from the wall clock rather than
// decremented, so tick drift and suspended processes correct themselves
// on the next tick.
package countdown

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"crop_notify/internal/model"
)

// State is a snapshot of one countdown.
type State struct {
	Event     *model.ReminderEvent
	Running   bool
	Remaining time.Duration
}

// Seconds returns the remaining whole seconds.
func (s State) Seconds() int64 {
	return int64(s.Remaining / time.Second)
}

// String renders the remaining time as DD:HH:MM:SS.
func (s State) String() string {
	return Format(s.Remaining)
}

// Format renders d as zero-padded days:hours:minutes:seconds, floored at zero.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d:%02d", s/86400, (s%86400)/3600, (s%3600)/60, s%60)
}

// Remaining returns max(0, due-now) floored to whole seconds.
func Remaining(due, now time.Time) time.Duration {
	d := due.Sub(now)
	if d <= 0 {
		return 0
	}
	return d.Truncate(time.Second)
}

// Clock is the countdown for one selected event.
type Clock struct {
	clock clockwork.Clock

	mu        sync.Mutex
	target    model.ReminderEvent
	running   bool
	remaining time.Duration
}

// NewClock selects ev and starts running.
func NewClock(clock clockwork.Clock, ev model.ReminderEvent) *Clock {
	c := &Clock{clock: clock, target: ev, running: true}
	c.remaining = Remaining(ev.DueAt, clock.Now())
	return c
}

// Tick recomputes the remaining time while running.
func (c *Clock) Tick() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.remaining = Remaining(c.target.DueAt, c.clock.Now())
	}
	return c.stateLocked()
}

// Pause freezes the remaining time at its current value.
func (c *Clock) Pause() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.remaining = Remaining(c.target.DueAt, c.clock.Now())
		c.running = false
	}
	return c.stateLocked()
}

// Resume continues the countdown from the current wall time.
func (c *Clock) Resume() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = true
	c.remaining = Remaining(c.target.DueAt, c.clock.Now())
	return c.stateLocked()
}

// State returns the last computed snapshot without recomputing.
func (c *Clock) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Clock) stateLocked() State {
	ev := c.target
	return State{Event: &ev, Running: c.running, Remaining: c.remaining}
}
