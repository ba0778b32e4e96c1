// Package session wires the reminder and feed pipelines for one user and
// owns their background work.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"crop_notify/internal/aggregator"
	"crop_notify/internal/alert"
	"crop_notify/internal/countdown"
	"crop_notify/internal/dedup"
	"crop_notify/internal/dispatcher"
	"crop_notify/internal/filter"
	"crop_notify/internal/model"
	"crop_notify/internal/readstate"
	"crop_notify/internal/scheduler"
	"crop_notify/internal/storage"
	"crop_notify/internal/task"
	"crop_notify/internal/upstream"
)

var (
	// ErrEnded is returned by operations on an ended session.
	ErrEnded = errors.New("session ended")
	// ErrNotMutable is returned when the alert channel cannot be muted.
	ErrNotMutable = errors.New("alerts cannot be muted")
)

// Options tunes a session.
type Options struct {
	RescanInterval time.Duration
	ReminderDays   int
	Retention      time.Duration
	PageSize       int
}

// Deps are the external collaborators of a session.
type Deps struct {
	Store    storage.Storage
	Upstream *upstream.Client
	Alerts   alert.Channel
	Clock    clockwork.Clock
	Location *time.Location
	Log      *slog.Logger
}

// Session is one user's running notifier.
type Session struct {
	userID   string
	store    storage.Storage
	alerts   alert.Channel
	log      *slog.Logger
	pageSize int

	scheduler   *scheduler.Scheduler
	dispatcher  *dispatcher.Dispatcher
	fertilizer  *countdown.Controller
	appointment *countdown.Controller
	feed        *aggregator.Feed
	reads       *readstate.Reconciler

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	handle  *task.Handle
	started bool
	ended   bool
}

// New wires a session. Nothing runs until Start.
func New(parent context.Context, deps Deps, opts Options) *Session {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Alerts == nil {
		deps.Alerts = alert.Noop{}
	}
	if opts.PageSize < 1 {
		opts.PageSize = 10
	}
	if opts.ReminderDays < 1 {
		opts.ReminderDays = dispatcher.DefaultThresholdDays
	}

	ctx, cancel := context.WithCancel(parent)
	userID := deps.Upstream.Owner()
	seen := dedup.New(deps.Store, deps.Location)

	d := dispatcher.New(dispatcher.Deps{
		Dedup:         seen,
		Alerts:        deps.Alerts,
		Notifications: dispatcher.Tee{deps.Store, deps.Upstream},
		Messages:      deps.Upstream,
		Clock:         deps.Clock,
		Location:      deps.Location,
		Log:           deps.Log.With("component", "dispatcher"),
	}, userID, opts.ReminderDays)

	fert := countdown.NewController(ctx, model.KindFertilizer, deps.Clock)
	appt := countdown.NewController(ctx, model.KindAppointment, deps.Clock)

	sched := scheduler.New(upstream.NewEventLoader(deps.Upstream, deps.Location), d, deps.Log.With("component", "scheduler"))
	sched.SetClock(deps.Clock)
	sched.SetTickInterval(opts.RescanInterval)
	sched.SetPruner(seen, opts.Retention)
	sched.AddOfferer(fert)
	sched.AddOfferer(appt)

	agg := aggregator.New(deps.Upstream, deps.Location, deps.Log.With("component", "aggregator"))
	feed := aggregator.NewFeed(agg, Sources(deps.Upstream))

	readLog := deps.Log.With("component", "readstate")
	reads := readstate.NewReconciler(
		readstate.NewRemoteStrategy(deps.Upstream, readLog),
		readstate.NewLocalStrategy(deps.Store, deps.Clock, readLog),
		readLog,
	)

	return &Session{
		userID:      userID,
		store:       deps.Store,
		alerts:      deps.Alerts,
		log:         deps.Log,
		pageSize:    opts.PageSize,
		scheduler:   sched,
		dispatcher:  d,
		fertilizer:  fert,
		appointment: appt,
		feed:        feed,
		reads:       reads,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Sources returns the feed sources in merge order.
func Sources(c *upstream.Client) []aggregator.SourceSpec {
	return []aggregator.SourceSpec{
		{Type: model.SourceMessage, Candidates: c.Candidates(upstream.Messages)},
		{Type: model.SourceFileUpload, Candidates: c.Candidates(upstream.UserFiles)},
		{Type: model.SourcePrediction, Candidates: c.Candidates(upstream.Predictions)},
	}
}

// Start requests alert permission, loads events, fires due reminders and
// starts the periodic rescan. Start is a no-op after the first call.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrEnded
	}
	if s.started {
		return nil
	}
	s.started = true

	perm, err := s.alerts.RequestPermission(s.ctx)
	if err != nil {
		s.log.Warn("alert permission request failed", "error", err)
	}
	s.log.Info("session started", "user_id", s.userID, "alerts", perm)

	s.handle = s.scheduler.Start(s.ctx)
	return nil
}

// End stops every timer, abandons in-flight fetches and waits for pending
// deliveries. End is idempotent.
func (s *Session) End() {
	// Cancel before locking so a Start blocked on the initial load returns.
	s.cancel()
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	h := s.handle
	s.mu.Unlock()

	h.Stop()
	s.fertilizer.Dispose()
	s.appointment.Dispose()
	s.feed.Close()
	s.dispatcher.Wait()
	s.log.Info("session ended", "user_id", s.userID)
}

func (s *Session) alive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrEnded
	}
	return nil
}

// UserID returns the owner the session acts for.
func (s *Session) UserID() string {
	return s.userID
}

// Alerts returns the local alert channel.
func (s *Session) Alerts() alert.Channel {
	return s.alerts
}

// MuteAlerts stops local alerts. Durable writes continue.
func (s *Session) MuteAlerts() error {
	m, ok := s.alerts.(alert.Muter)
	if !ok {
		return ErrNotMutable
	}
	m.Revoke()
	s.log.Info("alerts muted", "user_id", s.userID)
	return nil
}

// UnmuteAlerts restores local alerts and returns the resulting permission.
func (s *Session) UnmuteAlerts() (alert.Permission, error) {
	m, ok := s.alerts.(alert.Muter)
	if !ok {
		return s.alerts.Permission(), ErrNotMutable
	}
	perm := m.Restore()
	s.log.Info("alerts unmuted", "user_id", s.userID, "alerts", perm)
	return perm, nil
}

// Countdown returns the controller of kind.
func (s *Session) Countdown(kind model.EventKind) (*countdown.Controller, error) {
	switch kind {
	case model.KindFertilizer:
		return s.fertilizer, nil
	case model.KindAppointment:
		return s.appointment, nil
	}
	return nil, fmt.Errorf("unknown event kind %q", kind)
}

// Events returns the current reminder events.
func (s *Session) Events() []model.ReminderEvent {
	return s.scheduler.Events()
}

// RefreshEvents reloads events from upstream and rescans them.
func (s *Session) RefreshEvents(ctx context.Context) (int, error) {
	if err := s.alive(); err != nil {
		return 0, err
	}
	if err := s.scheduler.Refresh(ctx); err != nil {
		return 0, err
	}
	s.scheduler.Rescan(ctx)
	return len(s.scheduler.Events()), nil
}

// Rescan re-evaluates the current events without reloading them.
func (s *Session) Rescan(ctx context.Context) error {
	if err := s.alive(); err != nil {
		return err
	}
	s.scheduler.Rescan(ctx)
	return nil
}

// WaitDeliveries blocks until started reminder deliveries settle.
func (s *Session) WaitDeliveries() {
	s.dispatcher.Wait()
}

// History returns the newest locally journaled reminders.
func (s *Session) History(ctx context.Context, limit int) ([]model.Notification, error) {
	items, err := s.store.ListNotifications(ctx, s.userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return items, nil
}

// RefreshFeed refetches every feed source.
func (s *Session) RefreshFeed(ctx context.Context) ([]model.NotificationItem, error) {
	items, err := s.feed.Refresh(ctx)
	if errors.Is(err, aggregator.ErrClosed) {
		return nil, ErrEnded
	}
	return items, err
}

// Page is one rendered window of the feed.
type Page struct {
	Items   []model.NotificationItem
	Read    map[string]bool
	Unread  int
	Total   int
	Page    int
	HasMore bool
}

// FeedPage returns the first page*pageSize items matching criteria. Read
// state is resolved for every returned item.
func (s *Session) FeedPage(ctx context.Context, page int, criteria filter.Criteria) Page {
	if page < 1 {
		page = 1
	}
	criteria.IsRead = func(it model.NotificationItem) bool { return s.reads.IsRead(ctx, it) }

	all := s.feed.Items()
	items, more := s.feed.Window(page, s.pageSize, criteria.Keep())
	read := make(map[string]bool, len(items))
	for _, it := range items {
		read[it.Key()] = s.reads.IsRead(ctx, it)
	}
	return Page{
		Items:   items,
		Read:    read,
		Unread:  s.reads.UnreadCount(ctx, all),
		Total:   len(all),
		Page:    page,
		HasMore: more,
	}
}

// Find returns the current feed item with the given source and id.
func (s *Session) Find(source model.SourceType, id string) (model.NotificationItem, bool) {
	for _, it := range s.feed.Items() {
		if it.Source == source && it.ID == id {
			return it, true
		}
	}
	return model.NotificationItem{}, false
}

// MarkRead marks one item read.
func (s *Session) MarkRead(ctx context.Context, item model.NotificationItem) error {
	return s.reads.MarkRead(ctx, item)
}

// MarkUnread reverts one item to unread.
func (s *Session) MarkUnread(ctx context.Context, item model.NotificationItem) error {
	return s.reads.MarkUnread(ctx, item)
}

// MarkAllRead marks every unread feed item read.
func (s *Session) MarkAllRead(ctx context.Context) (int, error) {
	return s.reads.MarkAllRead(ctx, s.feed.Items())
}

// UnreadCount counts unread feed items.
func (s *Session) UnreadCount(ctx context.Context) int {
	return s.reads.UnreadCount(ctx, s.feed.Items())
}

// ClearLocalReads drops every client-side read flag.
func (s *Session) ClearLocalReads(ctx context.Context) (int, error) {
	return s.reads.ClearLocal(ctx)
}
