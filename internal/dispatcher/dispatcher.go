// Package dispatcher decides which reminders are due and delivers them at
// most once per event and calendar day.
package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"crop_notify/internal/alert"
	"crop_notify/internal/dedup"
	"crop_notify/internal/model"
)

// DefaultThresholdDays is how many days ahead of the due date reminders start.
const DefaultThresholdDays = 4

// NotificationLog is the durable, create-only notification log.
type NotificationLog interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
}

// Tee writes every notification to each log in order. All logs are
// attempted; their errors are joined.
type Tee []NotificationLog

// CreateNotification implements NotificationLog.
func (t Tee) CreateNotification(ctx context.Context, n *model.Notification) error {
	var errs []error
	for _, l := range t {
		if err := l.CreateNotification(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MessageStore accepts best-effort message writes.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg model.Message) error
}

// Deps are the collaborators of a Dispatcher.
type Deps struct {
	Dedup         *dedup.Store
	Alerts        alert.Channel
	Notifications NotificationLog
	Messages      MessageStore
	Clock         clockwork.Clock
	Location      *time.Location
	Log           *slog.Logger
}

// Dispatcher fires deduplicated reminders for eligible events.
type Dispatcher struct {
	dedup         *dedup.Store
	alerts        alert.Channel
	notifications NotificationLog
	messages      MessageStore
	clock         clockwork.Clock
	loc           *time.Location
	log           *slog.Logger

	userID    string
	threshold int

	// mu serializes the check-then-mark sequence across callers.
	mu       sync.Mutex
	inflight sync.WaitGroup
}

// New creates a Dispatcher delivering reminders to userID.
func New(deps Deps, userID string, thresholdDays int) *Dispatcher {
	if deps.Alerts == nil {
		deps.Alerts = alert.Noop{}
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if thresholdDays < 0 {
		thresholdDays = DefaultThresholdDays
	}
	return &Dispatcher{
		dedup:         deps.Dedup,
		alerts:        deps.Alerts,
		notifications: deps.Notifications,
		messages:      deps.Messages,
		clock:         deps.Clock,
		loc:           deps.Location,
		log:           deps.Log,
		userID:        userID,
		threshold:     thresholdDays,
	}
}

// DaysUntil returns the whole days from now until due, never negative.
func DaysUntil(due, now time.Time) int {
	d := due.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

// ShouldFire reports whether ev is inside the reminder window and has not
// fired yet today.
func (d *Dispatcher) ShouldFire(ctx context.Context, ev model.ReminderEvent) (bool, error) {
	now := d.clock.Now()
	if DaysUntil(ev.DueAt, now) > d.threshold {
		return false, nil
	}
	seen, err := d.dedup.Seen(ctx, ev, now)
	if err != nil {
		return false, err
	}
	return !seen, nil
}

// Dispatch evaluates every event and starts deliveries for those that
// should fire. It returns the number of reminders fired. Deliveries run in
// the background; use Wait to block until they settle.
func (d *Dispatcher) Dispatch(ctx context.Context, events []model.ReminderEvent) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	fired := 0
	for _, ev := range events {
		if ctx.Err() != nil {
			break
		}
		ok, err := d.ShouldFire(ctx, ev)
		if err != nil {
			d.log.Error("check reminder", "event_id", ev.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}

		now := d.clock.Now()
		// The record is committed before any delivery so a failed or
		// crashed delivery can never produce a second reminder today.
		if err := d.dedup.Mark(ctx, ev, now); err != nil {
			d.log.Error("mark reminder", "event_id", ev.ID, "error", err)
			continue
		}
		fired++

		r := FormatReminder(ev, DaysUntil(ev.DueAt, now), d.loc)
		d.log.Info("reminder fired", "event_id", ev.ID, "kind", ev.Kind, "days_left", r.Data["days_left"])
		d.deliver(context.WithoutCancel(ctx), r)
	}
	return fired
}

// Wait blocks until all started deliveries have finished.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, r Reminder) {
	d.inflight.Add(2)
	go func() {
		defer d.inflight.Done()
		d.deliverLocal(ctx, r)
	}()
	go func() {
		defer d.inflight.Done()
		d.deliverRemote(ctx, r)
	}()
}

func (d *Dispatcher) deliverLocal(ctx context.Context, r Reminder) {
	if d.alerts.Permission() != alert.PermissionGranted {
		d.log.Debug("local alert skipped", "event_id", r.Data["event_id"], "reason", "permission")
		return
	}
	d.alerts.Notify(ctx, r.Title, r.Message)
}

func (d *Dispatcher) deliverRemote(ctx context.Context, r Reminder) {
	if d.notifications != nil {
		due := r.DueAt
		n := &model.Notification{
			UserID:    d.userID,
			Type:      r.Type,
			Title:     r.Title,
			Message:   r.Message,
			Data:      r.Data,
			DueAt:     &due,
			CreatedAt: d.clock.Now().UTC(),
		}
		if err := d.notifications.CreateNotification(ctx, n); err != nil {
			d.log.Warn("durable notification failed", "event_id", r.Data["event_id"], "error", err)
		}
	}
	if d.messages != nil {
		msg := model.Message{SenderID: d.userID, ReceiverID: d.userID, Text: r.Title + ": " + r.Message}
		if err := d.messages.CreateMessage(ctx, msg); err != nil {
			d.log.Warn("message store write failed", "event_id", r.Data["event_id"], "error", err)
		}
	}
}
