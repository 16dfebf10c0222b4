package detail

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/unirun/internal/api"
	"github.com/kingrea/unirun/internal/eventbus"
	"github.com/kingrea/unirun/internal/order"
)

// fakeBackend serves a mutable order and records calls.
type fakeBackend struct {
	mu       sync.Mutex
	order    order.Order
	fetchErr error
	cmdErr   error
	reply    string
	fetches  int
	calls    []string
	sent     []string
	ratings  []int
}

func (f *fakeBackend) set(o order.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = o
}

func (f *fakeBackend) Order(ctx context.Context, id order.ID) (order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if err := ctx.Err(); err != nil {
		return order.Order{}, err
	}
	if f.fetchErr != nil {
		return order.Order{}, f.fetchErr
	}
	return f.order, nil
}

func (f *fakeBackend) command(name string) (api.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.cmdErr != nil {
		return api.Result{}, f.cmdErr
	}
	return api.Result{Message: f.reply}, nil
}

func (f *fakeBackend) Take(_ context.Context, _ order.ID, _ order.UserID) (api.Result, error) {
	return f.command("take")
}

func (f *fakeBackend) Cancel(_ context.Context, _ order.ID, _ order.UserID) (api.Result, error) {
	return f.command("cancel")
}

func (f *fakeBackend) Deliver(context.Context, order.ID) (api.Result, error) {
	return f.command("deliver")
}

func (f *fakeBackend) Finish(context.Context, order.ID) (api.Result, error) {
	return f.command("finish")
}

func (f *fakeBackend) SendMessage(_ context.Context, _ order.ID, content string) (api.Result, error) {
	f.mu.Lock()
	f.sent = append(f.sent, content)
	f.mu.Unlock()
	return f.command("chat")
}

func (f *fakeBackend) Rate(_ context.Context, _ order.ID, rating int, _ string) (api.Result, error) {
	f.mu.Lock()
	f.ratings = append(f.ratings, rating)
	f.mu.Unlock()
	return f.command("rate")
}

type scheduled struct {
	after time.Duration
	msg   tea.Msg
}

type harness struct {
	t       *testing.T
	session *Session
	backend Backend
	bus     *eventbus.Bus
	timers  []scheduled
}

func newHarness(t *testing.T, backend Backend, id order.ID, viewer order.UserID) *harness {
	t.Helper()
	h := &harness{t: t, backend: backend, bus: eventbus.New()}
	s, err := New(Options{
		OrderID:        id,
		Viewer:         order.Viewer{UserID: viewer},
		Backend:        backend,
		Bus:            h.bus,
		PollInterval:   3 * time.Second,
		NoticeDuration: 2 * time.Second,
		After: func(d time.Duration, msg tea.Msg) tea.Cmd {
			h.timers = append(h.timers, scheduled{after: d, msg: msg})
			return nil
		},
		Clock: func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	h.session = s
	t.Cleanup(s.Close)
	return h
}

// run executes cmd and feeds every resulting message back into the session
// until nothing is left. Timers are captured instead of waited on.
func (h *harness) run(cmd tea.Cmd) {
	h.t.Helper()
	for _, msg := range collect(cmd) {
		h.run(h.session.Update(msg))
	}
}

// collect executes cmd without delivering its messages.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, collect(c)...)
		}
		return out
	}
	if msg == nil {
		return nil
	}
	return []tea.Msg{msg}
}

// fireTick delivers the poll tick the session scheduled most recently.
func (h *harness) fireTick() tea.Cmd {
	h.t.Helper()
	for i := len(h.timers) - 1; i >= 0; i-- {
		if tick, ok := h.timers[i].msg.(pollTickMsg); ok {
			h.timers = append(h.timers[:i], h.timers[i+1:]...)
			return h.session.Update(tick)
		}
	}
	h.t.Fatalf("no poll tick scheduled")
	return nil
}

func (h *harness) pendingTicks() int {
	n := 0
	for _, s := range h.timers {
		if _, ok := s.msg.(pollTickMsg); ok {
			n++
		}
	}
	return n
}

func (h *harness) noticeTimers() []noticeExpiredMsg {
	var out []noticeExpiredMsg
	for _, s := range h.timers {
		if m, ok := s.msg.(noticeExpiredMsg); ok {
			out = append(out, m)
		}
	}
	return out
}

func openOrder(id order.ID, requester order.UserID) order.Order {
	return order.Order{
		ID:          id,
		Status:      order.Open,
		RequesterID: requester,
		Category:    order.CategoryFood,
		Description: "Two sandwiches from the north canteen",
	}
}
