package countdown

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"crop_notify/internal/model"
	"crop_notify/internal/task"
)

// TickInterval is how often a running countdown is recomputed.
const TickInterval = time.Second

var (
	// ErrUnknownEvent is returned when selecting an event the controller was never offered.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrWrongFamily is returned when an event of another kind is selected.
	ErrWrongFamily = errors.New("event belongs to another countdown")
	// ErrNoSelection is returned by operations that need a selected event.
	ErrNoSelection = errors.New("no event selected")
)

// Controller owns the single live countdown of one event family.
// Selecting a new event replaces the countdown and its ticker wholesale.
type Controller struct {
	family model.EventKind
	clock  clockwork.Clock
	ctx    context.Context

	mu       sync.Mutex
	events   []model.ReminderEvent
	current  *Clock
	handle   *task.Handle
	disposed bool
}

// NewController creates a controller for family. Tickers stop when ctx is
// cancelled or the controller is disposed.
func NewController(ctx context.Context, family model.EventKind, clock clockwork.Clock) *Controller {
	return &Controller{family: family, clock: clock, ctx: ctx}
}

// Family returns the event kind this controller counts down to.
func (c *Controller) Family() model.EventKind {
	return c.family
}

// Offer replaces the known event set. When nothing is selected yet the
// soonest event is selected automatically.
func (c *Controller) Offer(events []model.ReminderEvent) {
	var mine []model.ReminderEvent
	for _, ev := range events {
		if ev.Kind == c.family {
			mine = append(mine, ev)
		}
	}
	sort.SliceStable(mine, func(i, j int) bool { return mine[i].DueAt.Before(mine[j].DueAt) })

	c.mu.Lock()
	c.events = mine
	autoSelect := c.current == nil && len(mine) > 0 && !c.disposed
	c.mu.Unlock()

	if autoSelect {
		_, _ = c.Select(mine[0])
	}
}

// Events returns the offered events, soonest first.
func (c *Controller) Events() []model.ReminderEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.ReminderEvent, len(c.events))
	copy(out, c.events)
	return out
}

// Select starts a fresh countdown towards ev.
func (c *Controller) Select(ev model.ReminderEvent) (State, error) {
	if ev.Kind != c.family {
		return State{}, fmt.Errorf("select %s: %w", ev.ID, ErrWrongFamily)
	}
	clk := NewClock(c.clock, ev)

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return State{}, fmt.Errorf("select %s: controller disposed", ev.ID)
	}
	old := c.handle
	c.current = clk
	c.handle = task.Every(c.ctx, c.clock, TickInterval, func(context.Context) {
		clk.Tick()
	})
	c.mu.Unlock()

	old.Stop()
	return clk.State(), nil
}

// SelectID selects a previously offered event by ID.
func (c *Controller) SelectID(id string) (State, error) {
	c.mu.Lock()
	var (
		found model.ReminderEvent
		ok    bool
	)
	for _, ev := range c.events {
		if ev.ID == id {
			found, ok = ev, true
			break
		}
	}
	c.mu.Unlock()

	if !ok {
		return State{}, fmt.Errorf("select %s: %w", id, ErrUnknownEvent)
	}
	return c.Select(found)
}

// SelectNext selects the soonest offered event.
func (c *Controller) SelectNext() (State, error) {
	c.mu.Lock()
	if len(c.events) == 0 {
		c.mu.Unlock()
		return State{}, ErrNoSelection
	}
	soonest := c.events[0]
	c.mu.Unlock()
	return c.Select(soonest)
}

// Pause freezes the current countdown.
func (c *Controller) Pause() (State, error) {
	clk := c.currentClock()
	if clk == nil {
		return State{}, ErrNoSelection
	}
	return clk.Pause(), nil
}

// Resume continues the current countdown.
func (c *Controller) Resume() (State, error) {
	clk := c.currentClock()
	if clk == nil {
		return State{}, ErrNoSelection
	}
	return clk.Resume(), nil
}

// State returns a freshly recomputed snapshot, and false when nothing is selected.
func (c *Controller) State() (State, bool) {
	clk := c.currentClock()
	if clk == nil {
		return State{}, false
	}
	return clk.Tick(), true
}

// Clear drops the selection and stops its ticker.
func (c *Controller) Clear() {
	c.mu.Lock()
	h := c.handle
	c.current, c.handle = nil, nil
	c.mu.Unlock()
	h.Stop()
}

// Dispose stops the ticker for good. Later selections fail.
func (c *Controller) Dispose() {
	c.mu.Lock()
	c.disposed = true
	h := c.handle
	c.current, c.handle = nil, nil
	c.mu.Unlock()
	h.Stop()
}

func (c *Controller) currentClock() *Clock {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}
