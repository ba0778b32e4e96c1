// Package readstate tracks which feed items the user has seen.
//
// Messages carry a server read marker and are server-authoritative; file
// uploads and predictions have no such field and are tracked with local
// flags. The strategy is picked by item source.
package readstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"crop_notify/internal/model"
	"crop_notify/internal/storage"
)

const localPrefix = "notif_read:"

// ErrServerAuthoritative is returned by MarkUnread for items whose read
// state is owned by the server marker.
var ErrServerAuthoritative = errors.New("read state is owned by the server")

// Strategy resolves and changes the read state of one item kind.
type Strategy interface {
	IsRead(ctx context.Context, item model.NotificationItem) bool
	MarkRead(ctx context.Context, item model.NotificationItem) error
	MarkUnread(ctx context.Context, item model.NotificationItem) error
}

// MessageMarker sets the server read marker of a message.
type MessageMarker interface {
	MarkMessageRead(ctx context.Context, id string) error
}

// RemoteStrategy reads the server marker and keeps an optimistic in-memory
// mark for items marked read during this session.
type RemoteStrategy struct {
	marker MessageMarker
	log    *slog.Logger

	mu         sync.Mutex
	optimistic map[string]bool
}

// NewRemoteStrategy creates a RemoteStrategy.
func NewRemoteStrategy(marker MessageMarker, log *slog.Logger) *RemoteStrategy {
	return &RemoteStrategy{marker: marker, log: log, optimistic: make(map[string]bool)}
}

// IsRead reports whether the server marker or an optimistic mark is set.
func (s *RemoteStrategy) IsRead(_ context.Context, item model.NotificationItem) bool {
	if item.ReadAt != nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.optimistic[item.Key()]
}

// MarkRead issues a best-effort remote update and then marks the item read
// locally whatever the outcome. The remote error is returned for logging.
func (s *RemoteStrategy) MarkRead(ctx context.Context, item model.NotificationItem) error {
	var err error
	if s.marker != nil {
		if err = s.marker.MarkMessageRead(ctx, item.ID); err != nil {
			err = fmt.Errorf("mark message %s read: %w", item.ID, err)
			s.log.Warn("remote mark read failed", "source", item.Source, "id", item.ID, "error", err)
		}
	}
	s.mu.Lock()
	s.optimistic[item.Key()] = true
	s.mu.Unlock()
	return err
}

// MarkUnread drops the optimistic mark. The server marker cannot be
// cleared, so ErrServerAuthoritative is returned while it is set.
func (s *RemoteStrategy) MarkUnread(_ context.Context, item model.NotificationItem) error {
	s.mu.Lock()
	delete(s.optimistic, item.Key())
	s.mu.Unlock()
	if item.ReadAt != nil {
		return ErrServerAuthoritative
	}
	return nil
}

// LocalStrategy keeps read flags in the local key-value store under
// "notif_read:<kind>:<id>" with the unix-millisecond mark time as value.
type LocalStrategy struct {
	kv    storage.KV
	clock clockwork.Clock
	log   *slog.Logger
}

// NewLocalStrategy creates a LocalStrategy.
func NewLocalStrategy(kv storage.KV, clock clockwork.Clock, log *slog.Logger) *LocalStrategy {
	return &LocalStrategy{kv: kv, clock: clock, log: log}
}

// Key returns the flag key of item.
func Key(item model.NotificationItem) string {
	return localPrefix + string(item.Source) + ":" + item.ID
}

// IsRead reports whether the local flag is set. Storage errors read as unread.
func (s *LocalStrategy) IsRead(ctx context.Context, item model.NotificationItem) bool {
	_, ok, err := s.kv.Get(ctx, Key(item))
	if err != nil {
		s.log.Warn("read flag lookup failed", "source", item.Source, "id", item.ID, "error", err)
		return false
	}
	return ok
}

// MarkRead sets the local flag.
func (s *LocalStrategy) MarkRead(ctx context.Context, item model.NotificationItem) error {
	ms := strconv.FormatInt(s.clock.Now().UnixMilli(), 10)
	if err := s.kv.Set(ctx, Key(item), ms); err != nil {
		return fmt.Errorf("set read flag: %w", err)
	}
	return nil
}

// MarkUnread deletes the local flag.
func (s *LocalStrategy) MarkUnread(ctx context.Context, item model.NotificationItem) error {
	if err := s.kv.Delete(ctx, Key(item)); err != nil {
		return fmt.Errorf("delete read flag: %w", err)
	}
	return nil
}

// Clear deletes every local read flag and returns how many were removed.
func (s *LocalStrategy) Clear(ctx context.Context) (int, error) {
	keys, err := s.kv.Keys(ctx, localPrefix)
	if err != nil {
		return 0, fmt.Errorf("list read flags: %w", err)
	}
	for i, k := range keys {
		if err := s.kv.Delete(ctx, k); err != nil {
			return i, fmt.Errorf("delete read flag: %w", err)
		}
	}
	return len(keys), nil
}

// Reconciler dispatches read-state operations to the strategy of each
// item's source.
type Reconciler struct {
	remote *RemoteStrategy
	local  *LocalStrategy
	log    *slog.Logger
}

// NewReconciler creates a Reconciler. Messages use remote; every other
// source uses local.
func NewReconciler(remote *RemoteStrategy, local *LocalStrategy, log *slog.Logger) *Reconciler {
	return &Reconciler{remote: remote, local: local, log: log}
}

func (r *Reconciler) strategy(item model.NotificationItem) Strategy {
	if item.Source == model.SourceMessage {
		return r.remote
	}
	return r.local
}

// IsRead reports the read state of item.
func (r *Reconciler) IsRead(ctx context.Context, item model.NotificationItem) bool {
	return r.strategy(item).IsRead(ctx, item)
}

// MarkRead marks item read. For messages the item reads as read afterwards
// even if the remote update failed; that failure is logged, not returned.
func (r *Reconciler) MarkRead(ctx context.Context, item model.NotificationItem) error {
	if item.Source == model.SourceMessage {
		_ = r.remote.MarkRead(ctx, item)
		return nil
	}
	return r.local.MarkRead(ctx, item)
}

// MarkAllRead marks every unread item read, issuing the updates
// concurrently. It returns the number of items that were unread and the
// local flag errors joined.
func (r *Reconciler) MarkAllRead(ctx context.Context, items []model.NotificationItem) (int, error) {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
		n    int
	)
	for _, item := range items {
		if r.IsRead(ctx, item) {
			continue
		}
		n++
		g.Go(func() error {
			if err := r.MarkRead(ctx, item); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return n, errors.Join(errs...)
}

// MarkUnread reverts item to unread. See RemoteStrategy.MarkUnread for
// messages.
func (r *Reconciler) MarkUnread(ctx context.Context, item model.NotificationItem) error {
	return r.strategy(item).MarkUnread(ctx, item)
}

// UnreadCount counts unread items with a full pass over items.
func (r *Reconciler) UnreadCount(ctx context.Context, items []model.NotificationItem) int {
	n := 0
	for _, item := range items {
		if !r.IsRead(ctx, item) {
			n++
		}
	}
	return n
}

// ClearLocal removes every client-side read flag.
func (r *Reconciler) ClearLocal(ctx context.Context) (int, error) {
	return r.local.Clear(ctx)
}
