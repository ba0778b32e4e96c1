// Package task runs cancellable periodic work owned by a disposable handle.
package task

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Handle owns a running periodic task.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Every calls fn every interval until ctx is cancelled or the handle is
// stopped. The first call happens after one interval has elapsed.
// Calls never overlap; a tick that arrives while fn runs is coalesced.
func Every(ctx context.Context, clock clockwork.Clock, interval time.Duration, fn func(context.Context)) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	ticker := clock.NewTicker(interval)
	go func() {
		defer close(h.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				if ctx.Err() != nil {
					return
				}
				fn(ctx)
			}
		}
	}()
	return h
}

// Stop cancels the task and waits for an in-progress call to return.
// Stop is idempotent and safe on a nil handle.
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.once.Do(h.cancel)
	<-h.done
}

// Done is closed once the task goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}
