// Package model defines the domain types used across the application.
package model

import "time"

// EventKind identifies the obligation behind a ReminderEvent.
type EventKind string

// Supported event kinds.
const (
	KindFertilizer  EventKind = "fertilizer_application"
	KindAppointment EventKind = "appointment"
)

// Prefix returns the short prefix used for event IDs and dedup keys.
func (k EventKind) Prefix() string {
	switch k {
	case KindFertilizer:
		return "fert"
	case KindAppointment:
		return "appt"
	}
	return string(k)
}

// ReminderEvent is a normalized future- or past-dated obligation.
// Events are derived fresh from upstream records and never persisted.
type ReminderEvent struct {
	ID          string
	Kind        EventKind
	DueAt       time.Time
	CreatedAt   time.Time
	PreviousAt  *time.Time
	Title       string
	Detail      string
	Location    string
	Counterpart string
	Metadata    map[string]any
}

// SourceType identifies the upstream stream a NotificationItem came from.
type SourceType string

// Supported notification sources.
const (
	SourceMessage    SourceType = "message"
	SourceFileUpload SourceType = "user_file"
	SourcePrediction SourceType = "prediction"
)

// NotificationItem is one normalized entry of the aggregated feed.
type NotificationItem struct {
	Source    SourceType
	ID        string
	CreatedAt time.Time
	// ReadAt is the server read marker; only messages carry one.
	ReadAt  *time.Time
	Payload map[string]any
}

// Key identifies the item across sources.
func (n NotificationItem) Key() string {
	return string(n.Source) + ":" + n.ID
}

// Notification is an entry of the durable notification log.
type Notification struct {
	ID        string
	UserID    string
	Type      string
	Title     string
	Message   string
	Data      map[string]any
	DueAt     *time.Time
	CreatedAt time.Time
}

// Message is a message-store write addressed to a user.
type Message struct {
	SenderID   string
	ReceiverID string
	Text       string
}
