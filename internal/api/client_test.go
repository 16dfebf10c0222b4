package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/unirun/internal/order"
)

type recorded struct {
	method string
	path   string
	query  string
	auth   string
	body   map[string]any
}

func newServer(t *testing.T, status int, reply string, seen *recorded) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			seen.method = r.Method
			seen.path = r.URL.Path
			seen.query = r.URL.RawQuery
			seen.auth = r.Header.Get("Authorization")
			raw, _ := io.ReadAll(r.Body)
			if len(raw) > 0 {
				_ = json.Unmarshal(raw, &seen.body)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL+"/api/", "token-2")
}

func TestOrderDecodesEnvelope(t *testing.T) {
	var seen recorded
	c := newServer(t, http.StatusOK, `{"message":"ok","data":{"order_id":1007,"status":1,"requester_id":1,"runner_id":2,"category":"food","messages":[]}}`, &seen)

	got, err := c.Order(context.Background(), "1007")
	require.NoError(t, err)
	assert.Equal(t, order.ID("1007"), got.ID)
	assert.Equal(t, order.InProgress, got.Status)
	assert.Equal(t, order.UserID("2"), got.RunnerID)
	assert.Equal(t, http.MethodGet, seen.method)
	assert.Equal(t, "/api/orders/1007", seen.path)
	assert.Equal(t, "Bearer token-2", seen.auth)
}

func TestCommandBodies(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		call func(*Client) (Result, error)
		path string
		body map[string]any
	}{
		{
			name: "take",
			call: func(c *Client) (Result, error) { return c.Take(ctx, "1001", "2") },
			path: "/api/orders/1001/take",
			body: map[string]any{"taker_id": float64(2)},
		},
		{
			name: "cancel",
			call: func(c *Client) (Result, error) { return c.Cancel(ctx, "1001", "1") },
			path: "/api/orders/1001/cancel",
			body: map[string]any{"user_id": float64(1)},
		},
		{
			name: "deliver",
			call: func(c *Client) (Result, error) { return c.Deliver(ctx, "1001") },
			path: "/api/orders/1001/deliver",
		},
		{
			name: "finish",
			call: func(c *Client) (Result, error) { return c.Finish(ctx, "1001") },
			path: "/api/orders/1001/finish",
		},
		{
			name: "chat",
			call: func(c *Client) (Result, error) { return c.SendMessage(ctx, "1001", "on my way") },
			path: "/api/orders/1001/chat",
			body: map[string]any{"content": "on my way", "type": "text"},
		},
		{
			name: "rate",
			call: func(c *Client) (Result, error) { return c.Rate(ctx, "1001", 5, "fast") },
			path: "/api/orders/1001/rate",
			body: map[string]any{"rating": float64(5), "content": "fast"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seen recorded
			c := newServer(t, http.StatusOK, `{"message":" done "}`, &seen)
			res, err := tc.call(c)
			require.NoError(t, err)
			assert.Equal(t, "done", res.Message)
			assert.Equal(t, http.MethodPost, seen.method)
			assert.Equal(t, tc.path, seen.path)
			if tc.body != nil {
				assert.Equal(t, tc.body, seen.body)
			}
		})
	}
}

func TestListOrdersQuery(t *testing.T) {
	var seen recorded
	c := newServer(t, http.StatusOK, `{"data":[{"order_id":1,"status":0},{"order_id":2,"status":3}]}`, &seen)

	orders, err := c.ListOrders(context.Background(), ListFilter{Category: "food", Status: "active"})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, order.Completed, orders[1].Status)
	assert.Equal(t, "/api/orders/list", seen.path)
	assert.Equal(t, "category=food&status=active", seen.query)
}

func TestListOrdersAllCategoryOmitsFilter(t *testing.T) {
	var seen recorded
	c := newServer(t, http.StatusOK, `{"data":[]}`, &seen)

	_, err := c.ListOrders(context.Background(), ListFilter{Category: "all"})
	require.NoError(t, err)
	assert.Empty(t, seen.query)
}

func TestErrorCarriesServerMessage(t *testing.T) {
	c := newServer(t, http.StatusBadRequest, `{"message":"Order already taken"}`, nil)

	_, err := c.Take(context.Background(), "1001", "2")
	require.Error(t, err)
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Order already taken", Message(err))
}

func TestUnauthorizedAndNotFoundSentinels(t *testing.T) {
	c := newServer(t, http.StatusUnauthorized, `{"message":"bad token"}`, nil)
	_, err := c.Order(context.Background(), "1")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, "Session expired, please sign in again", Message(err))

	c = newServer(t, http.StatusNotFound, ``, nil)
	_, err = c.Order(context.Background(), "9")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, Message(err), "404")

	c = newServer(t, http.StatusForbidden, `{"message":"not your order"}`, nil)
	_, err = c.Order(context.Background(), "7")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "not your order", Message(err))
}

func TestOrderWithoutDataFails(t *testing.T) {
	c := newServer(t, http.StatusOK, `{"message":"ok","data":null}`, nil)
	_, err := c.Order(context.Background(), "1")
	require.Error(t, err)
}

func TestContextCancellationAbortsRequest(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(srv.URL, "", WithTimeout(5*time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Order(ctx, "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
