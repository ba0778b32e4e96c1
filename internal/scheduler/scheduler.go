package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"crop_notify/internal/model"
	"crop_notify/internal/task"
)

// DefaultInterval is how often the current event set is rescanned.
const DefaultInterval = time.Hour

// EventLoader loads the current reminder events from upstream.
type EventLoader interface {
	LoadEvents(ctx context.Context) ([]model.ReminderEvent, error)
}

// Dispatcher fires reminders for eligible events.
type Dispatcher interface {
	Dispatch(ctx context.Context, events []model.ReminderEvent) int
}

// Pruner drops expired dedup records.
type Pruner interface {
	Prune(ctx context.Context, now time.Time, retention time.Duration) (int, error)
}

// Offerer receives every freshly loaded event set, e.g. a countdown controller.
type Offerer interface {
	Offer(events []model.ReminderEvent)
}

// Scheduler periodically re-evaluates the current events against reminder
// eligibility so events crossing the threshold fire without new data.
type Scheduler struct {
	loader     EventLoader
	dispatcher Dispatcher
	pruner     Pruner
	offerers   []Offerer
	clock      clockwork.Clock
	log        *slog.Logger

	tick      time.Duration
	retention time.Duration

	mu     sync.Mutex
	events []model.ReminderEvent
}

// New creates a Scheduler with the default hourly interval.
func New(loader EventLoader, d Dispatcher, log *slog.Logger) *Scheduler {
	return &Scheduler{
		loader:     loader,
		dispatcher: d,
		clock:      clockwork.NewRealClock(),
		log:        log,
		tick:       DefaultInterval,
	}
}

// SetTickInterval overrides the default 1-hour rescan interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	if d > 0 {
		s.tick = d
	}
}

// SetClock replaces the real clock (useful for testing).
func (s *Scheduler) SetClock(c clockwork.Clock) {
	s.clock = c
}

// SetPruner enables dedup pruning at the start of every rescan. Records
// older than retention are dropped; zero retention disables pruning.
func (s *Scheduler) SetPruner(p Pruner, retention time.Duration) {
	s.pruner = p
	s.retention = retention
}

// AddOfferer registers o to receive every refreshed event set.
func (s *Scheduler) AddOfferer(o Offerer) {
	s.offerers = append(s.offerers, o)
}

// Start loads events, runs one rescan immediately and then every interval.
// The returned handle stops the periodic rescan.
func (s *Scheduler) Start(ctx context.Context) *task.Handle {
	if err := s.Refresh(ctx); err != nil {
		s.log.Error("initial refresh", "error", err)
	}
	s.Rescan(ctx)
	return task.Every(ctx, s.clock, s.tick, s.Rescan)
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	h := s.Start(ctx)
	<-ctx.Done()
	h.Stop()
}

// Refresh reloads events from upstream and offers them to every
// registered offerer. On error the previous event set is kept.
func (s *Scheduler) Refresh(ctx context.Context) error {
	events, err := s.loader.LoadEvents(ctx)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}

	s.mu.Lock()
	s.events = events
	s.mu.Unlock()

	for _, o := range s.offerers {
		o.Offer(events)
	}
	s.log.Debug("events refreshed", "count", len(events))
	return nil
}

// Events returns a copy of the current event set.
func (s *Scheduler) Events() []model.ReminderEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ReminderEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Rescan dispatches over the current event set.
func (s *Scheduler) Rescan(ctx context.Context) {
	if s.pruner != nil && s.retention > 0 {
		n, err := s.pruner.Prune(ctx, s.clock.Now(), s.retention)
		if err != nil {
			s.log.Error("prune dedup records", "error", err)
		} else if n > 0 {
			s.log.Info("pruned dedup records", "count", n)
		}
	}

	events := s.Events()
	if len(events) == 0 {
		return
	}
	fired := s.dispatcher.Dispatch(ctx, events)
	if fired > 0 {
		s.log.Info("sent reminders", "count", fired)
	}
}
