// Package fetcher downloads record lists from ordered candidate endpoints.
package fetcher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"crop_notify/internal/normalizer"
)

// DefaultTimeout bounds a single candidate request.
const DefaultTimeout = 30 * time.Second

const maxBody = 5 * 1024 * 1024

// ContainerKeys are the object keys recognized as holding the record list,
// in priority order.
var ContainerKeys = []string{"items", "data", "results", "list", "rows", "records", "notifications"}

var (
	// ErrNoCandidate is returned when every candidate failed.
	ErrNoCandidate = errors.New("no candidate endpoint returned a list")
	// ErrUnrecognized is returned for a body with no recognizable list.
	ErrUnrecognized = errors.New("unrecognized payload")
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads and decodes record lists.
type Fetcher struct {
	client  HTTPClient
	timeout time.Duration
	token   string
	log     *slog.Logger
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{
		client:  client,
		timeout: DefaultTimeout,
		log:     slog.New(slog.DiscardHandler),
	}
}

// SetTimeout overrides the per-request timeout. Zero disables it.
func (f *Fetcher) SetTimeout(d time.Duration) {
	f.timeout = d
}

// SetToken sets the bearer token sent with every request.
func (f *Fetcher) SetToken(token string) {
	f.token = token
}

// SetLogger sets the logger used for candidate failures.
func (f *Fetcher) SetLogger(log *slog.Logger) {
	f.log = log
}

// FirstList tries candidates in order and returns the records of the first
// one that answers with a recognizable list, along with its URL.
func (f *Fetcher) FirstList(ctx context.Context, candidates []string) ([]normalizer.Record, string, error) {
	for _, url := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		records, err := f.Fetch(ctx, url)
		if err != nil {
			f.log.Debug("candidate failed", "url", url, "error", err)
			continue
		}
		return records, url, nil
	}
	return nil, "", ErrNoCandidate
}

// Fetch downloads url and decodes its record list.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]normalizer.Record, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "CropNotify/1.0")
	req.Header.Set("Accept", "application/json, application/rss+xml, application/atom+xml")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return DecodeList(body)
}

// DecodeList recognizes a bare JSON array, a JSON object holding an array
// under one of ContainerKeys, or an RSS/Atom document.
func DecodeList(body []byte) ([]normalizer.Record, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, ErrUnrecognized
	}

	switch body[0] {
	case '[':
		var raw []any
		if err := decodeJSON(body, &raw); err != nil {
			return nil, fmt.Errorf("decode array: %w", err)
		}
		return records(raw), nil
	case '{':
		var obj map[string]any
		if err := decodeJSON(body, &obj); err != nil {
			return nil, fmt.Errorf("decode object: %w", err)
		}
		for _, key := range ContainerKeys {
			if list, ok := obj[key].([]any); ok {
				return records(list), nil
			}
		}
		return nil, ErrUnrecognized
	case '<':
		feed, err := gofeed.NewParser().ParseString(string(body))
		if err != nil {
			return nil, fmt.Errorf("parse feed: %w", err)
		}
		return feedRecords(feed), nil
	}
	return nil, ErrUnrecognized
}

func decodeJSON(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(v)
}

// records keeps the object elements of list.
func records(list []any) []normalizer.Record {
	out := make([]normalizer.Record, 0, len(list))
	for _, v := range list {
		if rec, ok := v.(map[string]any); ok {
			out = append(out, rec)
		}
	}
	return out
}

func feedRecords(feed *gofeed.Feed) []normalizer.Record {
	out := make([]normalizer.Record, 0, len(feed.Items))
	for _, item := range feed.Items {
		rec := normalizer.Record{
			"id":    ItemGUID(item),
			"title": item.Title,
			"text":  item.Description,
			"link":  item.Link,
		}
		if t := item.PublishedParsed; t != nil {
			rec["created_at"] = t.UTC().Format(time.RFC3339)
		} else if t := item.UpdatedParsed; t != nil {
			rec["created_at"] = t.UTC().Format(time.RFC3339)
		}
		out = append(out, rec)
	}
	return out
}

// ItemGUID returns the GUID for a feed item.
// If the item has no GUID, a SHA-256 hash of title+link is used.
func ItemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}
