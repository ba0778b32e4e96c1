package dispatcher

import (
	"fmt"
	"strings"
	"time"

	"crop_notify/internal/model"
)

// Reminder is the rendered content of one delivery.
type Reminder struct {
	Type    string
	Title   string
	Message string
	Data    map[string]any
	DueAt   time.Time
}

// FormatReminder renders ev for delivery, daysLeft days before it is due.
func FormatReminder(ev model.ReminderEvent, daysLeft int, loc *time.Location) Reminder {
	if loc == nil {
		loc = time.UTC
	}
	data := map[string]any{
		"event_id":  ev.ID,
		"due_date":  ev.DueAt.UTC().Format(time.RFC3339),
		"location":  ev.Location,
		"days_left": daysLeft,
	}

	switch ev.Kind {
	case model.KindAppointment:
		var title strings.Builder
		title.WriteString("Appointment")
		if ev.Counterpart != "" {
			fmt.Fprintf(&title, " with %s", ev.Counterpart)
			data["with"] = ev.Counterpart
		}
		var msg strings.Builder
		fmt.Fprintf(&msg, "Scheduled %s", ev.DueAt.In(loc).Format("2006-01-02 15:04"))
		if ev.Location != "" {
			fmt.Fprintf(&msg, " @ %s", ev.Location)
		}
		fmt.Fprintf(&msg, ". %d %s to go.", daysLeft, plural(daysLeft, "day"))
		return Reminder{Type: "appointment_reminder", Title: title.String(), Message: msg.String(), Data: data, DueAt: ev.DueAt}
	default:
		where := ev.Location
		if where == "" {
			where = "field"
		}
		return Reminder{
			Type:  "fertilizer_reminder",
			Title: "Fertilizer: " + ev.Title,
			Message: fmt.Sprintf("Apply %s at %s in %d %s (due %s).",
				ev.Detail, where, daysLeft, plural(daysLeft, "day"), ev.DueAt.In(loc).Format("2006-01-02")),
			Data:  data,
			DueAt: ev.DueAt,
		}
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
