// Package upstream talks to the crop adviser REST API.
//
// List endpoints drift between deployments, so every logical collection is
// addressed by an ordered list of candidate URLs (see Candidates); writes use
// a single fixed route.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"crop_notify/internal/fetcher"
	"crop_notify/internal/model"
	"crop_notify/internal/normalizer"
)

// Collection names a logical upstream list.
type Collection string

// Known collections.
const (
	Fertilizers  Collection = "fertilizers"
	Appointments Collection = "appointments"
	Messages     Collection = "messages"
	UserFiles    Collection = "user_files"
	Predictions  Collection = "predictions"
)

// Client is a thin HTTP client for the upstream API.
type Client struct {
	baseURL string
	owner   string
	token   string
	http    fetcher.HTTPClient
	fetcher *fetcher.Fetcher
	timeout time.Duration
	log     *slog.Logger
}

// New creates a Client for owner. A zero timeout disables request deadlines.
func New(baseURL, owner, token string, hc fetcher.HTTPClient, timeout time.Duration, log *slog.Logger) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	f := fetcher.New(hc)
	f.SetTimeout(timeout)
	f.SetToken(token)
	f.SetLogger(log)
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		owner:   owner,
		token:   token,
		http:    hc,
		fetcher: f,
		timeout: timeout,
		log:     log,
	}
}

// Owner returns the user id the client acts for.
func (c *Client) Owner() string {
	return c.owner
}

// Candidates returns the ordered candidate URLs for collection c.
func (c *Client) Candidates(col Collection) []string {
	id := url.PathEscape(c.owner)
	q := url.QueryEscape(c.owner)
	var paths []string
	switch col {
	case Fertilizers:
		paths = []string{"/api/v1/fertilizers?user_id=" + q, "/api/v1/fertilizer?user_id=" + q}
	case Appointments:
		paths = []string{"/api/v1/appointments?user_id=" + q, "/api/v1/appointment?user_id=" + q}
	case Messages:
		paths = []string{
			"/api/v1/messages/user/" + id + "?page=1&limit=200",
			"/api/v1/messages/user/" + id,
		}
	case UserFiles:
		paths = []string{
			"/api/v1/user-files/farmer/" + id + "?limit=200",
			"/api/v1/user-files?farmer_id=" + q + "&limit=200",
			"/api/v1/user-files?limit=200",
		}
	case Predictions:
		paths = []string{
			"/api/v1/predictions/user/" + id + "?page=1&limit=200",
			"/api/v1/predictions?user_id=" + q + "&limit=200",
		}
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = c.baseURL + p
	}
	return out
}

// FirstList tries candidates in order and returns the first recognizable list.
func (c *Client) FirstList(ctx context.Context, candidates []string) ([]normalizer.Record, error) {
	records, _, err := c.fetcher.FirstList(ctx, candidates)
	return records, err
}

// List fetches collection col.
func (c *Client) List(ctx context.Context, col Collection) ([]normalizer.Record, error) {
	records, err := c.FirstList(ctx, c.Candidates(col))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", col, err)
	}
	return records, nil
}

type notificationBody struct {
	UserID  string         `json:"user_id"`
	Type    string         `json:"type"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Read    bool           `json:"read"`
	Data    map[string]any `json:"data"`
	DueDate *string        `json:"due_date"`
}

// CreateNotification writes n to the durable remote notification log.
func (c *Client) CreateNotification(ctx context.Context, n *model.Notification) error {
	body := notificationBody{
		UserID:  n.UserID,
		Type:    n.Type,
		Title:   n.Title,
		Message: n.Message,
		Data:    n.Data,
	}
	if body.Data == nil {
		body.Data = map[string]any{}
	}
	if n.DueAt != nil {
		s := n.DueAt.UTC().Format(time.RFC3339)
		body.DueDate = &s
	}
	return c.do(ctx, http.MethodPost, "/api/v1/notifications", body)
}

type messageBody struct {
	SenderID   string  `json:"sender_id"`
	ReceiverID string  `json:"receiver_id"`
	Text       string  `json:"text"`
	ReadAt     *string `json:"read_at"`
}

// CreateMessage writes msg to the message store.
func (c *Client) CreateMessage(ctx context.Context, msg model.Message) error {
	return c.do(ctx, http.MethodPost, "/api/v1/messages", messageBody{
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Text:       msg.Text,
	})
}

// MarkMessageRead sets the server read marker of message id.
func (c *Client) MarkMessageRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPatch, "/api/v1/messages/"+url.PathEscape(id)+"/read", nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	return nil
}
