// Package dedup persists one idempotency record per (event, calendar day).
package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crop_notify/internal/model"
	"crop_notify/internal/storage"
)

const (
	keyPrefix  = "remind:"
	dateLayout = "2006-01-02"
)

// Store records which reminders already fired on a given local day.
type Store struct {
	kv  storage.KV
	loc *time.Location
}

// New creates a Store that computes calendar days in loc.
func New(kv storage.KV, loc *time.Location) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{kv: kv, loc: loc}
}

// Key builds the dedup key for ev on the local day containing at.
func (s *Store) Key(ev model.ReminderEvent, at time.Time) string {
	return keyPrefix + ev.Kind.Prefix() + ":" + ev.ID + ":" + at.In(s.loc).Format(dateLayout)
}

// Seen reports whether ev already fired on the day containing at.
func (s *Store) Seen(ctx context.Context, ev model.ReminderEvent, at time.Time) (bool, error) {
	_, ok, err := s.kv.Get(ctx, s.Key(ev, at))
	if err != nil {
		return false, fmt.Errorf("check dedup: %w", err)
	}
	return ok, nil
}

// Mark records that ev fired on the day containing at.
func (s *Store) Mark(ctx context.Context, ev model.ReminderEvent, at time.Time) error {
	if err := s.kv.Set(ctx, s.Key(ev, at), "1"); err != nil {
		return fmt.Errorf("mark dedup: %w", err)
	}
	return nil
}

// Prune deletes records whose day is more than retention before now.
// Keys with an unparseable date suffix are left alone.
func (s *Store) Prune(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, nil
	}
	keys, err := s.kv.Keys(ctx, keyPrefix)
	if err != nil {
		return 0, fmt.Errorf("list dedup keys: %w", err)
	}
	local := now.In(s.loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	cutoff := today.Add(-retention)

	removed := 0
	for _, k := range keys {
		i := strings.LastIndex(k, ":")
		if i < 0 {
			continue
		}
		day, err := time.ParseInLocation(dateLayout, k[i+1:], s.loc)
		if err != nil || !day.Before(cutoff) {
			continue
		}
		if err := s.kv.Delete(ctx, k); err != nil {
			return removed, fmt.Errorf("delete dedup key: %w", err)
		}
		removed++
	}
	return removed, nil
}
