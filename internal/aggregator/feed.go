package aggregator

import (
	"context"
	"errors"
	"sync"

	"crop_notify/internal/model"
)

var (
	// ErrStale is returned by a refresh superseded by a newer one.
	ErrStale = errors.New("feed refresh superseded")
	// ErrClosed is returned once the feed has been closed.
	ErrClosed = errors.New("feed closed")
)

// Feed is the in-memory sorted item list of one view. Only the latest
// refresh may replace the list; results of superseded refreshes, or of
// refreshes finishing after Close, are discarded.
type Feed struct {
	agg   *Aggregator
	specs []SourceSpec

	mu     sync.Mutex
	items  []model.NotificationItem
	gen    uint64
	cancel context.CancelFunc
	closed bool
}

// NewFeed creates an empty feed over specs.
func NewFeed(agg *Aggregator, specs []SourceSpec) *Feed {
	return &Feed{agg: agg, specs: specs}
}

// Refresh refetches every source. An in-flight refresh is cancelled.
func (f *Feed) Refresh(ctx context.Context) ([]model.NotificationItem, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrClosed
	}
	if f.cancel != nil {
		f.cancel()
	}
	f.gen++
	gen := f.gen
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.mu.Unlock()

	items := f.agg.Fetch(ctx, f.specs)

	f.mu.Lock()
	defer f.mu.Unlock()
	cancel()
	if f.closed {
		return nil, ErrClosed
	}
	if f.gen != gen {
		return nil, ErrStale
	}
	f.cancel = nil
	f.items = items
	return clone(items), nil
}

// Items returns a copy of the current list.
func (f *Feed) Items() []model.NotificationItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return clone(f.items)
}

// Window filters the current list with keep (nil keeps everything) and
// returns the first page*pageSize matches plus whether more remain.
func (f *Feed) Window(page, pageSize int, keep func(model.NotificationItem) bool) ([]model.NotificationItem, bool) {
	var matched []model.NotificationItem
	for _, item := range f.Items() {
		if keep == nil || keep(item) {
			matched = append(matched, item)
		}
	}
	win := Window(matched, page, pageSize)
	return win, len(win) < len(matched)
}

// Close cancels any in-flight refresh and freezes the feed.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

func clone(items []model.NotificationItem) []model.NotificationItem {
	if items == nil {
		return nil
	}
	out := make([]model.NotificationItem, len(items))
	copy(out, items)
	return out
}
