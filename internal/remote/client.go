// Package remote talks to the hosted moments/diary store over its JSON API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/glabrego/moments-cli/internal/feed"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s failed with status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s failed with status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Unwrap maps a 404 to feed.ErrItemNotFound.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return feed.ErrItemNotFound
	}
	return nil
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient builds a client. A non-positive requestsPerSecond disables
// client-side rate limiting.
func NewClient(baseURL, token string, httpClient *http.Client, requestsPerSecond float64) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// ListItems fetches a timeline. An empty category or feed.All fetches every
// category.
func (c *Client) ListItems(ctx context.Context, timeline feed.Timeline, category string) ([]feed.Item, error) {
	path := "/" + url.PathEscape(string(timeline)) + ".json"
	if category != "" && category != feed.All {
		q := make(url.Values)
		q.Set("category", category)
		path += "?" + q.Encode()
	}

	var items []feed.Item
	if err := c.do(ctx, http.MethodGet, path, nil, &items, "list "+string(timeline)); err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Timeline = timeline
	}
	return items, nil
}

type likeResponse struct {
	LikeCount int `json:"like_count"`
}

func (c *Client) Like(ctx context.Context, timeline feed.Timeline, itemID string) (int, error) {
	var resp likeResponse
	if err := c.do(ctx, http.MethodPost, itemPath(timeline, itemID, "like.json"), nil, &resp, "like item"); err != nil {
		return 0, err
	}
	return resp.LikeCount, nil
}

func (c *Client) Unlike(ctx context.Context, timeline feed.Timeline, itemID string) (int, error) {
	var resp likeResponse
	if err := c.do(ctx, http.MethodDelete, itemPath(timeline, itemID, "like.json"), nil, &resp, "unlike item"); err != nil {
		return 0, err
	}
	return resp.LikeCount, nil
}

func (c *Client) AddComment(ctx context.Context, timeline feed.Timeline, itemID, text string) (feed.Comment, error) {
	payload := map[string]any{"comment": map[string]string{"text": text}}
	var comment feed.Comment
	if err := c.do(ctx, http.MethodPost, itemPath(timeline, itemID, "comments.json"), payload, &comment, "add comment"); err != nil {
		return feed.Comment{}, err
	}
	if comment.ItemID == "" {
		comment.ItemID = itemID
	}
	if comment.Text == "" {
		comment.Text = text
	}
	return comment, nil
}

func itemPath(timeline feed.Timeline, itemID, leaf string) string {
	return "/" + url.PathEscape(string(timeline)) + "/" + url.PathEscape(itemID) + "/" + leaf
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any, op string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limiter: %w", op, err)
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}
