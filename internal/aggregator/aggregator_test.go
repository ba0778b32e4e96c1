package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/mux"

	"crop_notify/internal/model"
	"crop_notify/internal/normalizer"
	"crop_notify/internal/upstream"
)

var base = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockLister answers by the first candidate of each source.
type mockLister struct {
	mu      sync.Mutex
	lists   map[string][]normalizer.Record
	calls   int
	release chan struct{}
}

func (m *mockLister) FirstList(ctx context.Context, candidates []string) ([]normalizer.Record, error) {
	m.mu.Lock()
	m.calls++
	first := m.calls == 1
	m.mu.Unlock()

	if first && m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	list, ok := m.lists[candidates[0]]
	if !ok {
		return nil, errors.New("all candidates failed")
	}
	return list, nil
}

func ts(d time.Duration) string {
	return base.Add(d).Format(time.RFC3339)
}

func keys(items []model.NotificationItem) []string {
	out := []string{}
	for _, it := range items {
		out = append(out, it.Key())
	}
	return out
}

func TestFetchResilientToFailingSource(t *testing.T) {
	lister := &mockLister{lists: map[string][]normalizer.Record{
		"messages": {
			{"id": "1", "text": "hello", "created_at": ts(-time.Hour)},
			{"id": "2", "text": "read one", "created_at": ts(-3 * time.Hour), "read_at": ts(-2 * time.Hour)},
		},
		"predictions": {
			{"id": "7", "crop_name": "Rice", "createdAt": ts(-2 * time.Hour)},
		},
	}}
	agg := New(lister, time.UTC, discardLog())

	got := agg.Fetch(context.Background(), []SourceSpec{
		{Type: model.SourceMessage, Candidates: []string{"messages"}},
		{Type: model.SourceFileUpload, Candidates: []string{"files"}},
		{Type: model.SourcePrediction, Candidates: []string{"predictions"}},
	})

	want := []string{"message:1", "prediction:7", "message:2"}
	if diff := cmp.Diff(want, keys(got)); diff != "" {
		t.Errorf("merged order mismatch (-want +got):\n%s", diff)
	}
	if got[2].ReadAt == nil {
		t.Error("expected server read marker on message 2")
	}
	if got[0].ReadAt != nil {
		t.Error("message 1 must be unread")
	}
}

func TestSortStable(t *testing.T) {
	lister := &mockLister{lists: map[string][]normalizer.Record{
		"messages": {
			{"id": "a", "created_at": ts(0)},
			{"id": "b", "created_at": ts(-time.Minute)},
			{"id": "c", "created_at": ts(0)},
		},
	}}
	got := New(lister, time.UTC, discardLog()).Fetch(context.Background(), []SourceSpec{
		{Type: model.SourceMessage, Candidates: []string{"messages"}},
	})
	if diff := cmp.Diff([]string{"message:a", "message:c", "message:b"}, keys(got)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		source model.SourceType
		record normalizer.Record
		want   model.NotificationItem
		drop   bool
	}{
		{
			name:   "message synonyms",
			source: model.SourceMessage,
			record: normalizer.Record{"id": json.Number("5"), "senderId": "9", "receiverId": "42", "body": "hi", "files": []any{map[string]any{}, map[string]any{}}, "timestamp": ts(0)},
			want: model.NotificationItem{
				Source: model.SourceMessage, ID: "5", CreatedAt: base,
				Payload: map[string]any{"sender_id": "9", "receiver_id": "42", "text": "hi", "files_count": 2},
			},
		},
		{
			name:   "file defaults",
			source: model.SourceFileUpload,
			record: normalizer.Record{"id": "f1", "farmerId": "42", "size": json.Number("1024"), "updated_at": ts(-time.Hour)},
			want: model.NotificationItem{
				Source: model.SourceFileUpload, ID: "f1", CreatedAt: base.Add(-time.Hour),
				Payload: map[string]any{
					"farmer_id": "42", "adviser_id": "", "original_name": "file",
					"category": "", "notes": "", "public_url": "", "size_bytes": int64(1024),
				},
			},
		},
		{
			name:   "prediction without timestamp",
			source: model.SourcePrediction,
			record: normalizer.Record{"id": "p1", "predicted_crop": "Maize", "confidence": 0.82},
			want: model.NotificationItem{
				Source: model.SourcePrediction, ID: "p1",
				Payload: map[string]any{"user_id": "", "crop_name": "Maize", "suitability_score": 0.82},
			},
		},
		{
			name:   "missing id dropped",
			source: model.SourcePrediction,
			record: normalizer.Record{"crop_name": "Maize"},
			drop:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.source, []normalizer.Record{tt.record}, time.UTC)
			if tt.drop {
				if len(got) != 0 {
					t.Fatalf("expected record to be dropped, got %v", got)
				}
				return
			}
			if diff := cmp.Diff([]model.NotificationItem{tt.want}, got); diff != "" {
				t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWindow(t *testing.T) {
	items := make([]model.NotificationItem, 5)
	tests := []struct {
		page, size, want int
	}{
		{page: 1, size: 2, want: 2},
		{page: 2, size: 2, want: 4},
		{page: 3, size: 2, want: 5},
		{page: 0, size: 2, want: 0},
		{page: math.MaxInt, size: 10, want: 5},
		{page: 2, size: math.MaxInt, want: 5},
	}
	for _, tt := range tests {
		if got := len(Window(items, tt.page, tt.size)); got != tt.want {
			t.Errorf("Window(page=%d, size=%d) = %d items, want %d", tt.page, tt.size, got, tt.want)
		}
	}
}

func TestFetchFailsOverAcrossCandidates(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/first", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	r.HandleFunc("/second", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"message":"no list here"}`))
	})
	r.HandleFunc("/third", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":11,"text":"from third","created_at":"2026-10-17T08:00:00Z"}]}`))
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	client := upstream.New(srv.URL, "42", "", srv.Client(), 5*time.Second, discardLog())
	got := New(client, time.UTC, discardLog()).Fetch(context.Background(), []SourceSpec{{
		Type:       model.SourceMessage,
		Candidates: []string{srv.URL + "/first", srv.URL + "/second", srv.URL + "/third"},
	}})

	if diff := cmp.Diff([]string{"message:11"}, keys(got)); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("from third", got[0].Payload["text"]); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestFeedDiscardsStaleRefresh(t *testing.T) {
	lister := &mockLister{
		lists: map[string][]normalizer.Record{
			"messages": {{"id": "1", "created_at": ts(0)}},
		},
		release: make(chan struct{}),
	}
	feed := NewFeed(New(lister, time.UTC, discardLog()), []SourceSpec{
		{Type: model.SourceMessage, Candidates: []string{"messages"}},
	})
	defer feed.Close()

	firstDone := make(chan error, 1)
	go func() {
		_, err := feed.Refresh(context.Background())
		firstDone <- err
	}()

	// Wait for the first refresh to block inside the lister.
	deadline := time.Now().Add(2 * time.Second)
	for {
		lister.mu.Lock()
		calls := lister.calls
		lister.mu.Unlock()
		if calls >= 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	got, err := feed.Refresh(context.Background())
	if err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if diff := cmp.Diff([]string{"message:1"}, keys(got)); diff != "" {
		t.Errorf("second refresh mismatch (-want +got):\n%s", diff)
	}

	select {
	case err := <-firstDone:
		if !errors.Is(err, ErrStale) {
			t.Errorf("expected ErrStale, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first refresh never finished")
	}
	if diff := cmp.Diff([]string{"message:1"}, keys(feed.Items())); diff != "" {
		t.Errorf("stale result applied (-want +got):\n%s", diff)
	}
}

func TestFeedClosed(t *testing.T) {
	feed := NewFeed(New(&mockLister{}, time.UTC, discardLog()), nil)
	feed.Close()
	if _, err := feed.Refresh(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestFeedWindowFilters(t *testing.T) {
	lister := &mockLister{lists: map[string][]normalizer.Record{
		"messages": {
			{"id": "1", "created_at": ts(0)},
			{"id": "2", "created_at": ts(-time.Hour)},
			{"id": "3", "created_at": ts(-2 * time.Hour)},
		},
		"predictions": {{"id": "9", "created_at": ts(-30 * time.Minute)}},
	}}
	feed := NewFeed(New(lister, time.UTC, discardLog()), []SourceSpec{
		{Type: model.SourceMessage, Candidates: []string{"messages"}},
		{Type: model.SourcePrediction, Candidates: []string{"predictions"}},
	})
	if _, err := feed.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	onlyMessages := func(it model.NotificationItem) bool { return it.Source == model.SourceMessage }
	got, more := feed.Window(1, 2, onlyMessages)
	if diff := cmp.Diff([]string{"message:1", "message:2"}, keys(got)); diff != "" {
		t.Errorf("window mismatch (-want +got):\n%s", diff)
	}
	if !more {
		t.Error("expected more items beyond the first page")
	}

	got, more = feed.Window(2, 2, nil)
	if diff := cmp.Diff([]string{"message:1", "prediction:9", "message:2", "message:3"}, keys(got)); diff != "" {
		t.Errorf("unfiltered window mismatch (-want +got):\n%s", diff)
	}
	if more {
		t.Error("expected no more items")
	}
}
