// Package normalizer maps raw upstream records to ReminderEvents.
//
// Upstream variants disagree on field names, so every field is read through
// a fixed-priority synonym list. Records that cannot be normalized (no id,
// no parseable due timestamp, unapproved appointment) are dropped silently.
package normalizer

import (
	"sort"
	"strings"
	"time"

	"crop_notify/internal/model"
)

// Field synonyms, highest priority first.
var (
	fertilizerDueKeys      = []string{"next_application_date", "nextDate", "date_next"}
	fertilizerPreviousKeys = []string{"application_date", "applied_date", "date"}
	fertilizerLocationKeys = []string{"location", "field"}
	cropKeys               = []string{"crop", "crop_name"}
	fertilizerNameKeys     = []string{"fertilizer_name", "name"}
	createdKeys            = []string{"created_at", "createdAt"}

	appointmentLocationKeys = []string{"location", "place"}
	counterpartNameKeys     = []string{"adviser_name", "advisor_name"}
)

// Events normalizes records of one kind. The result is sorted by due time.
func Events(records []Record, kind model.EventKind, loc *time.Location) []model.ReminderEvent {
	if loc == nil {
		loc = time.UTC
	}
	events := make([]model.ReminderEvent, 0, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		var (
			ev model.ReminderEvent
			ok bool
		)
		switch kind {
		case model.KindFertilizer:
			ev, ok = fertilizer(rec, loc)
		case model.KindAppointment:
			ev, ok = appointment(rec, loc)
		}
		if ok {
			events = append(events, ev)
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].DueAt.Equal(events[j].DueAt) {
			return events[i].DueAt.Before(events[j].DueAt)
		}
		return events[i].ID < events[j].ID
	})
	return events
}

func fertilizer(rec Record, loc *time.Location) (model.ReminderEvent, bool) {
	id := String(rec["id"])
	if id == "" {
		return model.ReminderEvent{}, false
	}
	due, ok := FirstTime(rec, loc, fertilizerDueKeys...)
	if !ok {
		return model.ReminderEvent{}, false
	}
	ev := model.ReminderEvent{
		ID:       model.KindFertilizer.Prefix() + "_" + id,
		Kind:     model.KindFertilizer,
		DueAt:    due,
		Title:    FirstString(rec, "Crop", cropKeys...),
		Detail:   FirstString(rec, "Fertilizer", fertilizerNameKeys...),
		Location: FirstString(rec, "", fertilizerLocationKeys...),
		Metadata: rec,
	}
	if prev, ok := FirstTime(rec, loc, fertilizerPreviousKeys...); ok {
		ev.PreviousAt = &prev
	}
	ev.CreatedAt, _ = FirstTime(rec, loc, createdKeys...)
	return ev, true
}

func appointment(rec Record, loc *time.Location) (model.ReminderEvent, bool) {
	id := String(rec["id"])
	if id == "" {
		return model.ReminderEvent{}, false
	}
	if _, ok := ResolveApproval(rec); !ok {
		return model.ReminderEvent{}, false
	}
	due, ok := appointmentDue(rec, loc)
	if !ok {
		return model.ReminderEvent{}, false
	}
	ev := model.ReminderEvent{
		ID:          model.KindAppointment.Prefix() + "_" + id,
		Kind:        model.KindAppointment,
		DueAt:       due,
		Title:       "Appointment",
		Location:    FirstString(rec, "", appointmentLocationKeys...),
		Counterpart: counterpart(rec),
		Metadata:    rec,
	}
	ev.CreatedAt, _ = FirstTime(rec, loc, createdKeys...)
	return ev, true
}

// appointmentDue walks the due-time synonyms. A split date+time pair ranks
// between the explicit datetime fields and the bare date.
func appointmentDue(rec Record, loc *time.Location) (time.Time, bool) {
	if t, ok := FirstTime(rec, loc, "appointment_date", "scheduled_at", "appointment_at", "appointment_datetime"); ok {
		return t, true
	}
	date, tod := String(rec["date"]), String(rec["time"])
	if date != "" && tod != "" {
		if t, ok := ParseTime(date+"T"+tod, loc); ok {
			return t, true
		}
	}
	return FirstTime(rec, loc, "date", "approved_at")
}

func counterpart(rec Record) string {
	if adv, ok := rec["adviser"].(map[string]any); ok {
		if name := String(adv["username"]); name != "" {
			return name
		}
	}
	if name := FirstString(rec, "", counterpartNameKeys...); name != "" {
		return name
	}
	for _, k := range []string{"adviser", "advisor"} {
		if s, ok := rec[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// OwnedBy keeps the records where owner is the farmer or the adviser.
// When nothing matches the whole list is returned, since some upstream
// variants filter by owner server-side and omit the id fields.
func OwnedBy(records []Record, owner string) []Record {
	if owner == "" {
		return records
	}
	var mine []Record
	for _, rec := range records {
		if String(rec["farmer_id"]) == owner || String(rec["adviser_id"]) == owner {
			mine = append(mine, rec)
		}
	}
	if len(mine) == 0 {
		return records
	}
	return mine
}
