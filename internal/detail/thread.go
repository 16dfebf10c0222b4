package detail

import (
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kingrea/unirun/internal/api"
	"github.com/kingrea/unirun/internal/order"
)

// ErrEmptyMessage rejects blank chat input before any network call.
var ErrEmptyMessage = errors.New("detail: message is empty")

// Alignment places a chat bubble.
type Alignment int

const (
	Left Alignment = iota
	Right
)

// Entry is one displayed chat message. LocalID is set only on optimistic
// echoes that have not yet been replaced by a server snapshot.
type Entry struct {
	order.Message
	LocalID string
	Failed  bool
	// afterSeq is the last fetch issued before the echo was sent. Snapshots
	// from that fetch or older cannot contain it.
	afterSeq uint64
}

// Pending reports whether the entry is a local echo.
func (e Entry) Pending() bool { return e.LocalID != "" }

// Thread is the displayed chat log.
type Thread struct {
	s       *Session
	entries []Entry
}

func newThread(s *Session) *Thread {
	return &Thread{s: s}
}

// Entries returns a copy of the displayed messages in order.
func (t *Thread) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len is the number of displayed messages.
func (t *Thread) Len() int { return len(t.entries) }

// Send echoes text locally and returns the command that posts it.
func (t *Thread) Send(text string) (tea.Cmd, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	localID := uuid.NewString()
	t.entries = append(t.entries, Entry{
		Message: order.Message{
			SenderID: t.s.viewer.UserID,
			Type:     "text",
			Content:  text,
			SentAt:   order.NewTime(t.s.now()),
		},
		LocalID:  localID,
		afterSeq: t.s.poller.issued,
	})
	var (
		ctx     = t.s.ctx
		session = t.s.id
		b       = t.s.backend
		id      = t.s.orderID
	)
	return func() tea.Msg {
		_, err := b.SendMessage(ctx, id, text)
		return messageSentMsg{session: session, localID: localID, err: err}
	}, nil
}

// Reconcile replaces the thread with the server's list from fetch seq.
// Local echoes sent after that fetch was issued are kept at the end.
func (t *Thread) Reconcile(messages []order.Message, seq uint64) {
	entries := make([]Entry, 0, len(messages))
	for _, m := range messages {
		entries = append(entries, Entry{Message: m})
	}
	for _, e := range t.entries {
		if e.Pending() && e.afterSeq >= seq {
			entries = append(entries, e)
		}
	}
	t.entries = entries
}

func (t *Thread) handleSent(msg messageSentMsg) tea.Cmd {
	if msg.err == nil {
		return nil
	}
	for i := range t.entries {
		if t.entries[i].LocalID == msg.localID {
			t.entries[i].Failed = true
		}
	}
	t.s.logger.Info("message not delivered", zap.Error(msg.err))
	return t.s.notify(NoticeError, api.Message(msg.err))
}

// Align puts the viewer's own messages on the right.
func Align(m order.Message, viewer order.Viewer) Alignment {
	if !viewer.UserID.IsZero() && m.SenderID == viewer.UserID {
		return Right
	}
	return Left
}
