package upstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"crop_notify/internal/model"
	"crop_notify/internal/normalizer"
)

// EventLoader loads fertilizer applications and appointments for the
// client's owner and normalizes them into reminder events.
type EventLoader struct {
	client *Client
	loc    *time.Location
}

// NewEventLoader creates an EventLoader reading zone-less timestamps in loc.
func NewEventLoader(c *Client, loc *time.Location) *EventLoader {
	if loc == nil {
		loc = time.Local
	}
	return &EventLoader{client: c, loc: loc}
}

// LoadEvents fetches both collections concurrently. One failing collection
// contributes no events; an error is returned only when both fail.
func (l *EventLoader) LoadEvents(ctx context.Context) ([]model.ReminderEvent, error) {
	var (
		ferts, appts     []normalizer.Record
		fertErr, apptErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		ferts, fertErr = l.client.List(ctx, Fertilizers)
		return nil
	})
	g.Go(func() error {
		appts, apptErr = l.client.List(ctx, Appointments)
		return nil
	})
	_ = g.Wait()

	if fertErr != nil && apptErr != nil {
		return nil, fmt.Errorf("load events: %w", errors.Join(fertErr, apptErr))
	}
	if fertErr != nil {
		l.client.log.Warn("fertilizer list unavailable", "error", fertErr)
	}
	if apptErr != nil {
		l.client.log.Warn("appointment list unavailable", "error", apptErr)
	}

	events := normalizer.Events(ferts, model.KindFertilizer, l.loc)
	events = append(events, normalizer.Events(normalizer.OwnedBy(appts, l.client.owner), model.KindAppointment, l.loc)...)
	return events, nil
}
