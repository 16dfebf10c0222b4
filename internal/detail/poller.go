package detail

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/kingrea/unirun/internal/api"
)

// PollState is the poller lifecycle.
type PollState int

const (
	Idle PollState = iota
	Active
	Stopped
)

func (s PollState) String() string {
	switch s {
	case Active:
		return "active"
	case Stopped:
		return "stopped"
	default:
		return "idle"
	}
}

// Poller refetches the order on a fixed interval.
//
// At most one fetch is in flight at a time: a tick that fires while a fetch
// is pending is skipped, and Refresh queues behind it. Each fetch carries a
// sequence number and only a result newer than the last applied one can
// touch the store.
type Poller struct {
	s        *Session
	interval time.Duration
	state    PollState

	ctx    context.Context
	cancel context.CancelFunc

	inFlight bool
	queued   bool
	issued   uint64
	applied  uint64

	fetches uint64
	skipped uint64

	// hidden latches once a fetch is refused with 403.
	hidden bool
}

func newPoller(s *Session, interval time.Duration) *Poller {
	ctx, cancel := context.WithCancel(s.ctx)
	return &Poller{s: s, interval: interval, ctx: ctx, cancel: cancel}
}

// State returns the lifecycle state.
func (p *Poller) State() PollState { return p.state }

// InFlight reports whether a fetch is pending.
func (p *Poller) InFlight() bool { return p.inFlight }

// Fetches counts requests issued so far.
func (p *Poller) Fetches() uint64 { return p.fetches }

// Skipped counts ticks dropped because a fetch was still pending.
func (p *Poller) Skipped() uint64 { return p.skipped }

// Start moves Idle to Active, fetching once immediately and arming the ticker.
func (p *Poller) Start() tea.Cmd {
	if p.state != Idle {
		return nil
	}
	p.state = Active
	p.s.logger.Debug("polling started")
	return tea.Batch(p.fetch(), p.scheduleTick())
}

// Stop moves to Stopped and aborts a pending fetch. Idempotent, and safe
// before Start.
func (p *Poller) Stop() {
	if p.state == Stopped {
		return
	}
	p.state = Stopped
	p.queued = false
	p.cancel()
	p.s.logger.Debug("polling stopped")
}

// Refresh asks for an out-of-band fetch. With a fetch already pending the
// request is queued and issued when the pending one resolves.
func (p *Poller) Refresh() tea.Cmd {
	if p.state != Active {
		return nil
	}
	if p.inFlight {
		p.queued = true
		return nil
	}
	return p.fetch()
}

func (p *Poller) fetch() tea.Cmd {
	p.issued++
	p.fetches++
	p.inFlight = true
	var (
		seq     = p.issued
		ctx     = p.ctx
		backend = p.s.backend
		id      = p.s.orderID
		session = p.s.id
	)
	return func() tea.Msg {
		o, err := backend.Order(ctx, id)
		return fetchedMsg{session: session, seq: seq, order: o, err: err}
	}
}

func (p *Poller) scheduleTick() tea.Cmd {
	return p.s.after(p.interval, pollTickMsg{session: p.s.id})
}

func (p *Poller) handleTick() tea.Cmd {
	if p.state != Active {
		return nil
	}
	next := p.scheduleTick()
	if p.inFlight {
		p.skipped++
		p.s.logger.Debug("tick skipped, fetch still in flight")
		return next
	}
	return tea.Batch(p.fetch(), next)
}

func (p *Poller) handleFetched(msg fetchedMsg) tea.Cmd {
	if msg.seq == p.issued {
		p.inFlight = false
	}
	if p.state != Active || msg.seq <= p.applied {
		return nil
	}
	var notice tea.Cmd
	if msg.err != nil {
		notice = p.handleFailure(msg.err)
	} else {
		p.applied = msg.seq
		p.s.apply(msg.order, msg.seq)
	}
	if p.state == Active && p.queued && !p.inFlight {
		p.queued = false
		return tea.Batch(notice, p.fetch())
	}
	return notice
}

// handleFailure logs a failed fetch. Permanent rejections log at warn and a
// 403 shows a notice the first time it is seen.
func (p *Poller) handleFailure(err error) tea.Cmd {
	switch {
	case errors.Is(err, context.Canceled):
		return nil
	case errors.Is(err, api.ErrForbidden):
		p.s.logger.Warn("poll rejected", zap.Error(err))
		if p.hidden {
			return nil
		}
		p.hidden = true
		return p.s.notify(NoticeError, "This order is no longer visible to you")
	case errors.Is(err, api.ErrUnauthorized), errors.Is(err, api.ErrNotFound):
		p.s.logger.Warn("poll rejected", zap.Error(err))
	default:
		p.s.logger.Debug("poll failed", zap.Error(err))
	}
	return nil
}
