package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mmcdole/gofeed"

	"crop_notify/internal/normalizer"
)

type response struct {
	body       string
	statusCode int
	err        error
}

type mockTransport struct {
	mu        sync.Mutex
	responses map[string]response
	requests  []*http.Request
}

func (m *mockTransport) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	r, ok := m.responses[req.URL.String()]
	m.mu.Unlock()
	if !ok {
		return nil, errors.New("connection refused")
	}
	if r.err != nil {
		return nil, r.err
	}
	return &http.Response{
		StatusCode: r.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(r.body)),
	}, nil
}

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Advisories</title>
    <item>
      <title>Rust alert</title>
      <description>Wheat rust reported nearby</description>
      <link>https://example.com/1</link>
      <guid>adv-1</guid>
      <pubDate>Fri, 16 Oct 2026 08:00:00 +0000</pubDate>
    </item>
    <item>
      <title>Rain expected</title>
      <link>https://example.com/2</link>
    </item>
  </channel>
</rss>`

func TestFirstListFailsOver(t *testing.T) {
	mock := &mockTransport{responses: map[string]response{
		"https://api.test/a": {statusCode: http.StatusInternalServerError, body: "boom"},
		"https://api.test/c": {statusCode: http.StatusOK, body: `{"data":[{"id":1,"text":"hi"}]}`},
	}}
	f := New(mock)

	got, url, err := f.FirstList(context.Background(), []string{
		"https://api.test/a",
		"https://api.test/b",
		"https://api.test/c",
	})
	if err != nil {
		t.Fatalf("first list: %v", err)
	}
	if diff := cmp.Diff("https://api.test/c", url); diff != "" {
		t.Errorf("url mismatch (-want +got):\n%s", diff)
	}
	want := []normalizer.Record{{"id": json.Number("1"), "text": "hi"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(3, len(mock.requests)); diff != "" {
		t.Errorf("request count mismatch (-want +got):\n%s", diff)
	}
}

func TestFirstListAllFail(t *testing.T) {
	mock := &mockTransport{responses: map[string]response{
		"https://api.test/a": {statusCode: http.StatusOK, body: `{"message":"ok"}`},
		"https://api.test/b": {statusCode: http.StatusNotFound},
	}}
	_, _, err := New(mock).FirstList(context.Background(), []string{"https://api.test/a", "https://api.test/b"})
	if !errors.Is(err, ErrNoCandidate) {
		t.Errorf("expected ErrNoCandidate, got %v", err)
	}
}

func TestFetchSetsHeaders(t *testing.T) {
	mock := &mockTransport{responses: map[string]response{
		"https://api.test/a": {statusCode: http.StatusOK, body: `[]`},
	}}
	f := New(mock)
	f.SetToken("secret")
	if _, err := f.Fetch(context.Background(), "https://api.test/a"); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	req := mock.requests[0]
	if diff := cmp.Diff("Bearer secret", req.Header.Get("Authorization")); diff != "" {
		t.Errorf("authorization mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("CropNotify/1.0", req.Header.Get("User-Agent")); diff != "" {
		t.Errorf("user agent mismatch (-want +got):\n%s", diff)
	}
	if _, ok := req.Context().Deadline(); !ok {
		t.Error("expected a per-request deadline")
	}
}

func TestDecodeList(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantIDs []string
		wantErr bool
	}{
		{name: "bare array", body: `[{"id":"a"},{"id":"b"}]`, wantIDs: []string{"a", "b"}},
		{name: "items key", body: `{"items":[{"id":"a"}]}`, wantIDs: []string{"a"}},
		{name: "results key", body: `{"results":[{"id":"r"}],"total":1}`, wantIDs: []string{"r"}},
		{name: "notifications key", body: ` {"notifications":[{"id":"n"}]}`, wantIDs: []string{"n"}},
		{name: "first container key wins", body: `{"rows":[{"id":"row"}],"data":[{"id":"data"}]}`, wantIDs: []string{"data"}},
		{name: "non-object elements skipped", body: `[1,"x",{"id":"a"},null]`, wantIDs: []string{"a"}},
		{name: "empty array", body: `[]`, wantIDs: []string{}},
		{name: "container holds object", body: `{"data":{"id":"a"}}`, wantErr: true},
		{name: "unknown object", body: `{"message":"ok"}`, wantErr: true},
		{name: "plain text", body: `not json`, wantErr: true},
		{name: "empty", body: ``, wantErr: true},
		{name: "broken json", body: `[{"id":`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeList([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			ids := []string{}
			for _, rec := range got {
				ids = append(ids, normalizer.String(rec["id"]))
			}
			if diff := cmp.Diff(tt.wantIDs, ids); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeListFeed(t *testing.T) {
	got, err := DecodeList([]byte(sampleRSS))
	if err != nil {
		t.Fatalf("decode feed: %v", err)
	}
	if diff := cmp.Diff(2, len(got)); diff != "" {
		t.Fatalf("record count mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("adv-1", got[0]["id"]); diff != "" {
		t.Errorf("id mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("Wheat rust reported nearby", got[0]["text"]); diff != "" {
		t.Errorf("text mismatch (-want +got):\n%s", diff)
	}
	created, ok := normalizer.ParseTime(got[0]["created_at"], time.UTC)
	if !ok || !created.Equal(time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("created_at = %v, want 2026-10-16T08:00:00Z", got[0]["created_at"])
	}
	if _, ok := got[1]["created_at"]; ok {
		t.Error("undated item must not carry created_at")
	}
}

func TestItemGUID(t *testing.T) {
	tests := []struct {
		name string
		item *gofeed.Item
		want string
	}{
		{name: "explicit guid", item: &gofeed.Item{GUID: "abc-123"}, want: "abc-123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ItemGUID(tt.item)); diff != "" {
				t.Errorf("guid mismatch (-want +got):\n%s", diff)
			}
		})
	}

	a := ItemGUID(&gofeed.Item{Title: "Rain", Link: "https://example.com/2"})
	b := ItemGUID(&gofeed.Item{Title: "Rain", Link: "https://example.com/2"})
	c := ItemGUID(&gofeed.Item{Title: "Rain", Link: "https://example.com/3"})
	if a != b {
		t.Errorf("hash not stable: %s vs %s", a, b)
	}
	if a == c {
		t.Error("different links must hash differently")
	}
}
