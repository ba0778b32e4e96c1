// Package aggregator merges messages, file uploads and predictions from
// several unreliable upstream sources into one feed sorted newest first.
package aggregator

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"crop_notify/internal/model"
	"crop_notify/internal/normalizer"
)

// CreatedAtKeys are the timestamp aliases an item's creation time is read
// from, first present wins.
var CreatedAtKeys = []string{"created_at", "createdAt", "timestamp", "updated_at", "updatedAt", "delivered_at", "read_at"}

// Lister returns the records of the first candidate endpoint that answers
// with a recognizable list.
type Lister interface {
	FirstList(ctx context.Context, candidates []string) ([]normalizer.Record, error)
}

// SourceSpec describes one logical source and its ordered candidate URLs.
type SourceSpec struct {
	Type       model.SourceType
	Candidates []string
}

// Aggregator fetches and merges notification sources.
type Aggregator struct {
	lister Lister
	loc    *time.Location
	log    *slog.Logger
}

// New creates an Aggregator.
func New(lister Lister, loc *time.Location, log *slog.Logger) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{lister: lister, loc: loc, log: log}
}

// Fetch queries every source concurrently and waits for all of them. A
// source whose candidates all fail contributes nothing. Items are merged
// in source order and then sorted newest first.
func (a *Aggregator) Fetch(ctx context.Context, specs []SourceSpec) []model.NotificationItem {
	results := make([][]model.NotificationItem, len(specs))

	var g errgroup.Group
	for i, spec := range specs {
		g.Go(func() error {
			records, err := a.lister.FirstList(ctx, spec.Candidates)
			if err != nil {
				a.log.Warn("source unavailable", "source", spec.Type, "error", err)
				return nil
			}
			results[i] = Normalize(spec.Type, records, a.loc)
			a.log.Debug("source fetched", "source", spec.Type, "count", len(results[i]))
			return nil
		})
	}
	_ = g.Wait()

	var merged []model.NotificationItem
	for _, items := range results {
		merged = append(merged, items...)
	}
	Sort(merged)
	return merged
}

// Sort orders items newest first. Items with equal timestamps keep their
// relative order; items without a timestamp sort last.
func Sort(items []model.NotificationItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

// Window returns the first page*pageSize items.
func Window(items []model.NotificationItem, page, pageSize int) []model.NotificationItem {
	if page < 1 || pageSize < 1 {
		return nil
	}
	if page > len(items)/pageSize {
		return items
	}
	return items[:page*pageSize]
}

// Normalize maps raw records of one source to feed items. Records without
// an id are dropped.
func Normalize(source model.SourceType, records []normalizer.Record, loc *time.Location) []model.NotificationItem {
	items := make([]model.NotificationItem, 0, len(records))
	for _, rec := range records {
		id := normalizer.String(rec["id"])
		if id == "" {
			continue
		}
		item := model.NotificationItem{Source: source, ID: id}
		if t, ok := normalizer.FirstTime(rec, loc, CreatedAtKeys...); ok {
			item.CreatedAt = t
		}

		switch source {
		case model.SourceMessage:
			item.Payload = messagePayload(rec)
			if t, ok := normalizer.FirstTime(rec, loc, "read_at", "readAt"); ok {
				item.ReadAt = &t
			}
		case model.SourceFileUpload:
			item.Payload = filePayload(rec)
		case model.SourcePrediction:
			item.Payload = predictionPayload(rec)
		default:
			item.Payload = map[string]any{"title": normalizer.FirstString(rec, "", "title", "name")}
		}
		items = append(items, item)
	}
	return items
}

func messagePayload(rec normalizer.Record) map[string]any {
	filesCount := 0
	if files, ok := rec["files"].([]any); ok {
		filesCount = len(files)
	} else if n, ok := normalizer.Number(rec["files_count"]); ok {
		filesCount = int(n)
	}
	return map[string]any{
		"sender_id":   normalizer.FirstString(rec, "", "sender_id", "senderId"),
		"receiver_id": normalizer.FirstString(rec, "", "receiver_id", "receiverId"),
		"text":        normalizer.FirstString(rec, "", "text", "body", "title"),
		"files_count": filesCount,
	}
}

func filePayload(rec normalizer.Record) map[string]any {
	p := map[string]any{
		"farmer_id":     normalizer.FirstString(rec, "", "farmer_id", "farmerId"),
		"adviser_id":    normalizer.FirstString(rec, "", "adviser_id", "adviserId"),
		"original_name": normalizer.FirstString(rec, "file", "original_name", "name"),
		"category":      normalizer.FirstString(rec, "", "category"),
		"notes":         normalizer.FirstString(rec, "", "notes"),
		"public_url":    normalizer.FirstString(rec, "", "public_url"),
	}
	if n, ok := normalizer.Number(normalizer.First(rec, "size_bytes", "size")); ok {
		p["size_bytes"] = int64(n)
	}
	return p
}

func predictionPayload(rec normalizer.Record) map[string]any {
	p := map[string]any{
		"user_id":   normalizer.FirstString(rec, "", "user_id", "userId"),
		"crop_name": normalizer.FirstString(rec, "Crop", "crop_name", "predicted_crop"),
	}
	if n, ok := normalizer.Number(normalizer.First(rec, "suitability_score", "confidence")); ok {
		p["suitability_score"] = n
	}
	return p
}
