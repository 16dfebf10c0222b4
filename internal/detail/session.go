// Package detail drives one order detail screen.
//
// A Session bundles the snapshot Store, the Poller, the Dispatcher and the
// Thread for a single open screen. It is built when the screen opens and
// closed when it goes away; nothing is shared between sessions. All state
// changes happen inside Update, which the bubbletea loop calls one message at
// a time. Network calls run inside tea.Cmd functions that only return
// messages.
package detail

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kingrea/unirun/internal/affordance"
	"github.com/kingrea/unirun/internal/api"
	"github.com/kingrea/unirun/internal/eventbus"
	"github.com/kingrea/unirun/internal/logbook"
	"github.com/kingrea/unirun/internal/order"
)

const (
	DefaultPollInterval   = 3 * time.Second
	DefaultNoticeDuration = 2 * time.Second
)

// Backend is the slice of the order API a session needs. *api.Client
// implements it.
type Backend interface {
	Order(ctx context.Context, id order.ID) (order.Order, error)
	Take(ctx context.Context, id order.ID, takerID order.UserID) (api.Result, error)
	Cancel(ctx context.Context, id order.ID, userID order.UserID) (api.Result, error)
	Deliver(ctx context.Context, id order.ID) (api.Result, error)
	Finish(ctx context.Context, id order.ID) (api.Result, error)
	SendMessage(ctx context.Context, id order.ID, content string) (api.Result, error)
	Rate(ctx context.Context, id order.ID, rating int, comment string) (api.Result, error)
}

// AfterFunc schedules msg to be delivered after d.
type AfterFunc func(d time.Duration, msg tea.Msg) tea.Cmd

// Options configures a Session.
type Options struct {
	OrderID order.ID
	Viewer  order.Viewer
	Backend Backend

	Logger  *zap.Logger
	Logbook *logbook.Logbook
	Bus     *eventbus.Bus

	PollInterval   time.Duration
	NoticeDuration time.Duration

	// After defaults to tea.Tick.
	After AfterFunc
	Clock func() time.Time
}

// NoticeKind selects how a notice is styled.
type NoticeKind int

const (
	NoticeInfo NoticeKind = iota
	NoticeSuccess
	NoticeError
)

// Notice is a transient, self-dismissing message.
type Notice struct {
	ID   uint64
	Kind NoticeKind
	Text string
}

// Session is the per-screen controller.
type Session struct {
	id      string
	orderID order.ID
	viewer  order.Viewer
	backend Backend

	ctx    context.Context
	cancel context.CancelFunc

	logger  *zap.Logger
	book    *logbook.Logbook
	journal logbook.Journal
	bus     *eventbus.Bus
	after   AfterFunc
	now     func() time.Time

	noticeDuration time.Duration
	notice         Notice
	noticeSeq      uint64

	store      *Store
	poller     *Poller
	dispatcher *Dispatcher
	thread     *Thread

	affordances affordance.Affordances
	derived     bool
	closed      bool
}

// New builds a session in the Idle state. Call Init to start polling.
func New(opts Options) (*Session, error) {
	if opts.OrderID.IsZero() {
		return nil, errors.New("detail: order id is required")
	}
	if opts.Backend == nil {
		return nil, errors.New("detail: backend is required")
	}
	s := &Session{
		id:             uuid.NewString(),
		orderID:        opts.OrderID,
		viewer:         opts.Viewer,
		backend:        opts.Backend,
		logger:         opts.Logger,
		book:           opts.Logbook,
		bus:            opts.Bus,
		after:          opts.After,
		now:            opts.Clock,
		noticeDuration: opts.NoticeDuration,
		store:          &Store{},
	}
	s.journal = s.book.Order(s.orderID.Short())
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.With(zap.String("session", s.id), zap.String("order", string(s.orderID)))
	if s.after == nil {
		s.after = func(d time.Duration, msg tea.Msg) tea.Cmd {
			return tea.Tick(d, func(time.Time) tea.Msg { return msg })
		}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.noticeDuration <= 0 {
		s.noticeDuration = DefaultNoticeDuration
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.poller = newPoller(s, interval)
	s.dispatcher = newDispatcher(s)
	s.thread = newThread(s)
	return s, nil
}

// ID identifies this session instance.
func (s *Session) ID() string { return s.id }

// OrderID is the order this session watches.
func (s *Session) OrderID() order.ID { return s.orderID }

// Viewer is the signed-in user.
func (s *Session) Viewer() order.Viewer { return s.viewer }

func (s *Session) Store() *Store             { return s.store }
func (s *Session) Poller() *Poller           { return s.poller }
func (s *Session) Dispatcher() *Dispatcher   { return s.dispatcher }
func (s *Session) Thread() *Thread           { return s.thread }
func (s *Session) Logger() *zap.Logger       { return s.logger }
func (s *Session) Logbook() *logbook.Logbook { return s.book }

// Snapshot returns the cached order, or false before the first load.
func (s *Session) Snapshot() (order.Order, bool) {
	return s.store.Get()
}

// Affordances returns the derived descriptor, or false before the first load.
func (s *Session) Affordances() (affordance.Affordances, bool) {
	return s.affordances, s.derived
}

// Notice returns the visible notice, if any.
func (s *Session) Notice() (Notice, bool) {
	return s.notice, s.notice.ID != 0
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool { return s.closed }

// Init starts polling.
func (s *Session) Init() tea.Cmd {
	if s.closed {
		return nil
	}
	s.journal.Opened()
	return s.poller.Start()
}

// Close tears the session down. Pending ticks, in-flight fetches and
// commands that resolve later are discarded. Safe to call more than once.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.poller.Stop()
	s.dispatcher.reset()
	s.cancel()
	s.notice = Notice{}
	s.logger.Debug("session closed")
}

// Update applies one message. Messages from other sessions are ignored.
func (s *Session) Update(msg tea.Msg) tea.Cmd {
	if s.closed {
		return nil
	}
	switch msg := msg.(type) {
	case pollTickMsg:
		if msg.session != s.id {
			return nil
		}
		return s.poller.handleTick()
	case fetchedMsg:
		if msg.session != s.id {
			return nil
		}
		return s.poller.handleFetched(msg)
	case commandDoneMsg:
		if msg.session != s.id {
			return nil
		}
		return s.dispatcher.handleCommandDone(msg)
	case ratedMsg:
		if msg.session != s.id {
			return nil
		}
		return s.dispatcher.handleRated(msg)
	case messageSentMsg:
		if msg.session != s.id {
			return nil
		}
		return s.thread.handleSent(msg)
	case noticeExpiredMsg:
		if msg.session == s.id && msg.id == s.notice.ID {
			s.notice = Notice{}
		}
	}
	return nil
}

// apply stores the snapshot from fetch seq and runs everything that depends
// on it.
func (s *Session) apply(o order.Order, seq uint64) {
	prev, hadPrev := s.store.Get()
	statusChanged := s.store.Set(o)
	if hadPrev && statusChanged {
		if !order.CanTransition(prev.Status, o.Status) {
			s.logger.Warn("illegal status transition applied",
				zap.Stringer("from", prev.Status),
				zap.Stringer("to", o.Status),
			)
		}
		s.journal.StatusChanged(prev.Status, o.Status)
	}
	if err := o.Validate(); err != nil {
		s.logger.Debug("snapshot violates invariants", zap.Error(err))
	}
	s.thread.Reconcile(o.Messages, seq)
	s.affordances = affordance.Derive(o, s.viewer)
	s.derived = true

	if !o.Status.IsTerminal() {
		return
	}
	s.poller.Stop()
	if hadPrev && statusChanged && o.Status == order.Completed {
		s.dispatcher.openRating()
	}
}

// notify shows a notice and schedules its dismissal. A newer notice is never
// cleared by an older timer because expiry matches on id.
func (s *Session) notify(kind NoticeKind, text string) tea.Cmd {
	s.noticeSeq++
	s.notice = Notice{ID: s.noticeSeq, Kind: kind, Text: text}
	s.journal.Notice(kind == NoticeError, text)
	return s.after(s.noticeDuration, noticeExpiredMsg{session: s.id, id: s.noticeSeq})
}

func (s *Session) String() string {
	return fmt.Sprintf("detail.Session(%s, order %s)", s.id, s.orderID)
}
