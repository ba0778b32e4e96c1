// Package alert abstracts the local alert capability used for reminders.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Permission is the state of the user's consent to local alerts.
type Permission string

// Permission states.
const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Channel delivers fire-and-forget local alerts.
type Channel interface {
	Permission() Permission
	RequestPermission(ctx context.Context) (Permission, error)
	Notify(ctx context.Context, title, body string)
}

// Noop is a Channel for headless runs. It never grants permission.
type Noop struct{}

// Permission always reports denied.
func (Noop) Permission() Permission { return PermissionDenied }

// RequestPermission always reports denied.
func (Noop) RequestPermission(context.Context) (Permission, error) { return PermissionDenied, nil }

// Notify does nothing.
func (Noop) Notify(context.Context, string, string) {}

// Muter is a Channel the user can silence and restore.
type Muter interface {
	Revoke()
	Restore() Permission
}

// Sender is the interface for sending Telegram messages.
type Sender interface {
	SendMessage(chatID int64, text string)
}

// Telegram delivers alerts as chat messages. Permission is granted once a
// chat has been configured and confirmed by RequestPermission.
type Telegram struct {
	sender Sender
	chatID int64
	log    *slog.Logger

	mu   sync.Mutex
	perm Permission
}

// NewTelegram creates a Telegram channel targeting chatID.
func NewTelegram(sender Sender, chatID int64, log *slog.Logger) *Telegram {
	perm := PermissionDefault
	if chatID == 0 {
		perm = PermissionDenied
	}
	return &Telegram{sender: sender, chatID: chatID, log: log, perm: perm}
}

// Permission returns the current permission state.
func (t *Telegram) Permission() Permission {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.perm
}

// RequestPermission grants the channel when a chat is configured.
func (t *Telegram) RequestPermission(ctx context.Context) (Permission, error) {
	if err := ctx.Err(); err != nil {
		return t.Permission(), fmt.Errorf("request permission: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.perm == PermissionDefault {
		t.perm = PermissionGranted
	}
	return t.perm, nil
}

// Revoke denies further alerts, e.g. after the user muted them.
func (t *Telegram) Revoke() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.perm = PermissionDenied
}

// Restore re-grants alerts after Revoke. A channel without a chat stays denied.
func (t *Telegram) Restore() Permission {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.chatID != 0 {
		t.perm = PermissionGranted
	}
	return t.perm
}

// Notify sends the alert if permission is granted; otherwise it is skipped.
func (t *Telegram) Notify(_ context.Context, title, body string) {
	if t.Permission() != PermissionGranted {
		t.log.Debug("local alert skipped", "reason", "permission", "title", title)
		return
	}
	t.sender.SendMessage(t.chatID, title+"\n\n"+body)
}
