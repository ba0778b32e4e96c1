package bot

import (
	"fmt"
	"strings"
	"time"

	"crop_notify/internal/countdown"
	"crop_notify/internal/dispatcher"
	"crop_notify/internal/model"
	"crop_notify/internal/session"
)

const (
	statusRunning = "running"
	statusPaused  = "paused"
)

func familyLabel(kind model.EventKind) string {
	switch kind {
	case model.KindFertilizer:
		return "Fertilizer"
	case model.KindAppointment:
		return "Appointment"
	}
	return string(kind)
}

func eventLabel(ev model.ReminderEvent) string {
	switch ev.Kind {
	case model.KindFertilizer:
		if ev.Detail != "" {
			return ev.Title + " (" + ev.Detail + ")"
		}
		return ev.Title
	case model.KindAppointment:
		if ev.Counterpart != "" {
			return "with " + ev.Counterpart
		}
	}
	return ev.Title
}

// FormatEvents formats the upcoming events with the days left until each.
func FormatEvents(events []model.ReminderEvent, now time.Time, loc *time.Location) string {
	if len(events) == 0 {
		return "No upcoming events. Use /refresh to reload them."
	}
	var b strings.Builder
	b.WriteString("Upcoming events:\n")
	for _, ev := range events {
		days := dispatcher.DaysUntil(ev.DueAt, now)
		fmt.Fprintf(&b, "\n%s  %s: %s\n", ev.ID, familyLabel(ev.Kind), eventLabel(ev))
		fmt.Fprintf(&b, "   due %s", ev.DueAt.In(loc).Format("2006-01-02 15:04"))
		switch {
		case !ev.DueAt.After(now):
			b.WriteString(" (past due)")
		case days == 0:
			b.WriteString(" (today)")
		default:
			fmt.Fprintf(&b, " (in %d day(s))", days)
		}
		if ev.Location != "" {
			fmt.Fprintf(&b, " @ %s", ev.Location)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatCountdown formats the state of one family's countdown.
func FormatCountdown(kind model.EventKind, st countdown.State, ok bool) string {
	if !ok || st.Event == nil {
		return fmt.Sprintf("%s: no countdown selected.", familyLabel(kind))
	}
	status := statusRunning
	if !st.Running {
		status = statusPaused
	}
	return fmt.Sprintf("%s %s %s\n%s [%s]", familyLabel(kind), st.Event.ID, eventLabel(*st.Event), st, status)
}

// ItemSummary returns a one-line description of a feed item.
func ItemSummary(item model.NotificationItem) string {
	p := item.Payload
	switch item.Source {
	case model.SourceMessage:
		text, _ := p["text"].(string)
		if n, _ := p["files_count"].(int); n > 0 {
			return fmt.Sprintf("%s [%d file(s)]", text, n)
		}
		return text
	case model.SourceFileUpload:
		name, _ := p["original_name"].(string)
		if cat, _ := p["category"].(string); cat != "" {
			return fmt.Sprintf("%s (%s)", name, cat)
		}
		return name
	case model.SourcePrediction:
		crop, _ := p["crop_name"].(string)
		if score, ok := p["suitability_score"].(float64); ok {
			return fmt.Sprintf("%s, suitability %.2f", crop, score)
		}
		return crop
	}
	title, _ := p["title"].(string)
	return title
}

func sourceLabel(s model.SourceType) string {
	switch s {
	case model.SourceMessage:
		return "message"
	case model.SourceFileUpload:
		return "file"
	case model.SourcePrediction:
		return "prediction"
	}
	return string(s)
}

// FormatFeedPage formats one window of the aggregated feed. Unread items
// are marked with an asterisk.
func FormatFeedPage(p session.Page, loc *time.Location) string {
	if len(p.Items) == 0 {
		if p.Total == 0 {
			return "No notifications."
		}
		return "No notifications match."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Notifications (%d unread of %d):\n", p.Unread, p.Total)
	for _, it := range p.Items {
		mark := " "
		if !p.Read[it.Key()] {
			mark = "*"
		}
		fmt.Fprintf(&b, "\n%s %s #%s", mark, sourceLabel(it.Source), it.ID)
		if !it.CreatedAt.IsZero() {
			fmt.Fprintf(&b, "  %s", it.CreatedAt.In(loc).Format("2006-01-02 15:04"))
		}
		fmt.Fprintf(&b, "\n   %s\n", ItemSummary(it))
	}
	return b.String()
}

// FormatHistory formats journaled reminders, newest first.
func FormatHistory(items []model.Notification, loc *time.Location) string {
	if len(items) == 0 {
		return "No reminders sent yet."
	}
	var b strings.Builder
	b.WriteString("Recent reminders:\n")
	for _, n := range items {
		fmt.Fprintf(&b, "\n%s  %s\n   %s\n", n.CreatedAt.In(loc).Format("2006-01-02 15:04"), n.Title, n.Message)
	}
	return b.String()
}
