// Package api is the HTTP client for the order API.
//
// Every request carries the bearer token. Responses use the envelope
// {"message": ..., "data": ...}; non-2xx replies become *Error values that
// carry the server's message for display.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/unirun/internal/order"
)

var (
	// ErrUnauthorized matches 401 replies. Callers must not mutate local state.
	ErrUnauthorized = errors.New("api: unauthorized")
	// ErrNotFound matches 404 replies.
	ErrNotFound = errors.New("api: not found")
	// ErrForbidden matches 403 replies.
	ErrForbidden = errors.New("api: forbidden")
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 4 << 20

// Error is a non-2xx reply.
type Error struct {
	Status  int
	Message string
	Path    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request to %s failed with status %d", e.Path, e.Status)
}

// Is lets errors.Is match the status sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	}
	return false
}

// Message extracts the user-facing text of err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrUnauthorized) {
		return "Session expired, please sign in again"
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Request timed out"
	}
	return "Request failed: " + err.Error()
}

// Result is the decoded reply of a command endpoint.
type Result struct {
	Message string
}

// ListFilter narrows GET /orders/list.
type ListFilter struct {
	Category string
	// Status is "", "active" or a numeric status.
	Status string
}

// Client talks to the order API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

// Option customizes Client construction.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// New prepares a client for baseURL (for example http://127.0.0.1:5000/api).
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Order fetches the full snapshot: GET /orders/{id}.
func (c *Client) Order(ctx context.Context, id order.ID) (order.Order, error) {
	var o order.Order
	if _, err := c.do(ctx, http.MethodGet, orderPath(id, ""), nil, &o); err != nil {
		return order.Order{}, err
	}
	return o, nil
}

// ListOrders fetches GET /orders/list.
func (c *Client) ListOrders(ctx context.Context, filter ListFilter) ([]order.Order, error) {
	q := url.Values{}
	if cat := strings.TrimSpace(filter.Category); cat != "" && cat != "all" {
		q.Set("category", cat)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		q.Set("status", status)
	}
	path := "/orders/list"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var orders []order.Order
	if _, err := c.do(ctx, http.MethodGet, path, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// Take accepts an open order: POST /orders/{id}/take {taker_id}.
func (c *Client) Take(ctx context.Context, id order.ID, takerID order.UserID) (Result, error) {
	return c.command(ctx, orderPath(id, "take"), map[string]any{"taker_id": takerID})
}

// Cancel cancels an open order: POST /orders/{id}/cancel {user_id}.
func (c *Client) Cancel(ctx context.Context, id order.ID, userID order.UserID) (Result, error) {
	return c.command(ctx, orderPath(id, "cancel"), map[string]any{"user_id": userID})
}

// Deliver marks delivery: POST /orders/{id}/deliver.
func (c *Client) Deliver(ctx context.Context, id order.ID) (Result, error) {
	return c.command(ctx, orderPath(id, "deliver"), struct{}{})
}

// Finish confirms receipt: POST /orders/{id}/finish.
func (c *Client) Finish(ctx context.Context, id order.ID) (Result, error) {
	return c.command(ctx, orderPath(id, "finish"), struct{}{})
}

// SendMessage appends to the thread: POST /orders/{id}/chat {content, type}.
func (c *Client) SendMessage(ctx context.Context, id order.ID, content string) (Result, error) {
	return c.command(ctx, orderPath(id, "chat"), map[string]string{"content": content, "type": "text"})
}

// Rate reviews a completed order: POST /orders/{id}/rate {rating, content}.
func (c *Client) Rate(ctx context.Context, id order.ID, rating int, comment string) (Result, error) {
	return c.command(ctx, orderPath(id, "rate"), map[string]any{"rating": rating, "content": comment})
}

func (c *Client) command(ctx context.Context, path string, body any) (Result, error) {
	msg, err := c.do(ctx, http.MethodPost, path, body, nil)
	if err != nil {
		return Result{}, err
	}
	return Result{Message: msg}, nil
}

type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) (string, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("api: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return "", fmt.Errorf("api: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return "", fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("response",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("api: read %s %s: %w", method, path, err)
	}
	var env envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return "", fmt.Errorf("api: decode %s %s: %w", method, path, err)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &Error{Status: resp.StatusCode, Message: strings.TrimSpace(env.Message), Path: path}
	}
	if out != nil {
		if len(env.Data) == 0 || string(env.Data) == "null" {
			return "", &Error{Status: resp.StatusCode, Message: firstNonEmpty(env.Message, "empty response"), Path: path}
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return "", fmt.Errorf("api: decode data of %s %s: %w", method, path, err)
		}
	}
	return strings.TrimSpace(env.Message), nil
}

func orderPath(id order.ID, action string) string {
	p := "/orders/" + url.PathEscape(string(id))
	if action != "" {
		p += "/" + action
	}
	return p
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
