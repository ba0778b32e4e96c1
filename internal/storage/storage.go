// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"

	"crop_notify/internal/model"
)

// KV is the local persistent key-value capability backing dedup records
// and client-side read flags.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Keys lists every key starting with prefix, in lexical order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Storage is the interface for all persistence operations.
type Storage interface {
	KV

	CreateNotification(ctx context.Context, n *model.Notification) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error)

	Close() error
}
