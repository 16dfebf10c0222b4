package detail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/kingrea/unirun/internal/affordance"
	"github.com/kingrea/unirun/internal/api"
)

var (
	// ErrActionUnavailable is returned when the current affordances do not offer the action.
	ErrActionUnavailable = errors.New("detail: action not available")
	// ErrActionInFlight is returned while the same action is still being submitted.
	ErrActionInFlight = errors.New("detail: action already submitted")
	// ErrNoRatingPrompt is returned when no completion prompt is open.
	ErrNoRatingPrompt = errors.New("detail: no rating prompt open")
	// ErrInvalidRating is returned for ratings outside 1..5.
	ErrInvalidRating = errors.New("detail: rating must be between 1 and 5")
)

const (
	MinRating = 1
	MaxRating = 5
)

// Prompt is an open yes/no confirmation.
type Prompt struct {
	Action affordance.Action
	Label  string
	affordance.Confirmation
}

// RatingPrompt is the one-shot prompt shown after an observed completion.
type RatingPrompt struct {
	Open       bool
	Submitting bool
}

// Dispatcher submits role-gated commands after confirmation.
type Dispatcher struct {
	s        *Session
	prompt   *Prompt
	inFlight map[affordance.Action]bool
	rating   RatingPrompt
	// ratingOffered latches so the prompt opens at most once per session.
	ratingOffered bool
	submitted     uint64
}

func newDispatcher(s *Session) *Dispatcher {
	return &Dispatcher{s: s, inFlight: map[affordance.Action]bool{}}
}

// Request opens the confirmation prompt for an offered remote action.
func (d *Dispatcher) Request(action affordance.Action) error {
	aff, ok := d.s.Affordances()
	if !ok {
		return fmt.Errorf("%w: order not loaded", ErrActionUnavailable)
	}
	desc, ok := aff.Find(action)
	if !ok {
		return fmt.Errorf("%w: %s", ErrActionUnavailable, action)
	}
	if !desc.Remote() {
		return fmt.Errorf("%w: %s is not a command", ErrActionUnavailable, action)
	}
	if d.inFlight[action] {
		return ErrActionInFlight
	}
	d.prompt = &Prompt{Action: action, Label: desc.Label, Confirmation: desc.Confirm}
	return nil
}

// Prompt returns the open confirmation, if any.
func (d *Dispatcher) Prompt() (Prompt, bool) {
	if d.prompt == nil {
		return Prompt{}, false
	}
	return *d.prompt, true
}

// Dismiss closes the confirmation without submitting.
func (d *Dispatcher) Dismiss() {
	d.prompt = nil
}

// Confirm submits the prompted action exactly once. Calling it again, or
// with no prompt open, does nothing.
func (d *Dispatcher) Confirm() tea.Cmd {
	if d.prompt == nil {
		return nil
	}
	action := d.prompt.Action
	d.prompt = nil
	if d.inFlight[action] {
		return nil
	}
	// The snapshot may have moved on while the prompt was open.
	if aff, ok := d.s.Affordances(); !ok || !aff.Has(action) {
		return d.s.notify(NoticeError, "This action is no longer available")
	}
	d.inFlight[action] = true
	d.submitted++
	d.s.journal.Submitting(string(action))

	var (
		ctx      = d.s.ctx
		session  = d.s.id
		revision = d.s.store.Revision()
		submit   = d.submitter(action)
	)
	return func() tea.Msg {
		res, err := submit(ctx)
		return commandDoneMsg{session: session, action: action, revision: revision, result: res, err: err}
	}
}

// Pending reports whether action is being submitted.
func (d *Dispatcher) Pending(action affordance.Action) bool {
	return d.inFlight[action]
}

// Submitted counts commands sent to the server.
func (d *Dispatcher) Submitted() uint64 { return d.submitted }

func (d *Dispatcher) submitter(action affordance.Action) func(context.Context) (api.Result, error) {
	b, id, viewer := d.s.backend, d.s.orderID, d.s.viewer.UserID
	switch action {
	case affordance.AcceptOrder:
		return func(ctx context.Context) (api.Result, error) { return b.Take(ctx, id, viewer) }
	case affordance.CancelOrder:
		return func(ctx context.Context) (api.Result, error) { return b.Cancel(ctx, id, viewer) }
	case affordance.ConfirmDelivery:
		return func(ctx context.Context) (api.Result, error) { return b.Deliver(ctx, id) }
	case affordance.ConfirmReceipt:
		return func(ctx context.Context) (api.Result, error) { return b.Finish(ctx, id) }
	}
	return func(context.Context) (api.Result, error) {
		return api.Result{}, fmt.Errorf("%w: %s", ErrActionUnavailable, action)
	}
}

func (d *Dispatcher) handleCommandDone(msg commandDoneMsg) tea.Cmd {
	delete(d.inFlight, msg.action)
	if msg.err != nil {
		d.s.logger.Info("command rejected", zap.String("action", string(msg.action)), zap.Error(msg.err))
		return d.s.notify(NoticeError, api.Message(msg.err))
	}
	text := strings.TrimSpace(msg.result.Message)
	if text == "" {
		text = affordance.SuccessNotice(msg.action)
	}
	d.s.bus.OrdersChanged(string(d.s.orderID), string(msg.action), msg.revision)
	return tea.Batch(d.s.notify(NoticeSuccess, text), d.s.poller.Refresh())
}

// Rating returns the completion prompt state.
func (d *Dispatcher) Rating() RatingPrompt { return d.rating }

func (d *Dispatcher) openRating() {
	if d.ratingOffered {
		return
	}
	d.ratingOffered = true
	d.rating = RatingPrompt{Open: true}
	d.s.journal.RatingRequested()
}

// SubmitRating sends a 1..5 star review with an optional comment.
func (d *Dispatcher) SubmitRating(stars int, comment string) (tea.Cmd, error) {
	if !d.rating.Open {
		return nil, ErrNoRatingPrompt
	}
	if stars < MinRating || stars > MaxRating {
		return nil, ErrInvalidRating
	}
	if d.rating.Submitting {
		return nil, nil
	}
	d.rating.Submitting = true
	var (
		ctx     = d.s.ctx
		session = d.s.id
		b       = d.s.backend
		id      = d.s.orderID
	)
	comment = strings.TrimSpace(comment)
	return func() tea.Msg {
		res, err := b.Rate(ctx, id, stars, comment)
		return ratedMsg{session: session, result: res, err: err}
	}, nil
}

// SkipRating closes the completion prompt.
func (d *Dispatcher) SkipRating() {
	d.rating = RatingPrompt{}
}

func (d *Dispatcher) handleRated(msg ratedMsg) tea.Cmd {
	d.rating.Submitting = false
	if msg.err != nil {
		// Prompt stays open so the user can try again.
		return d.s.notify(NoticeError, api.Message(msg.err))
	}
	d.rating = RatingPrompt{}
	text := strings.TrimSpace(msg.result.Message)
	if text == "" {
		text = "Thanks for your rating"
	}
	return d.s.notify(NoticeSuccess, text)
}

func (d *Dispatcher) reset() {
	d.prompt = nil
	d.rating = RatingPrompt{}
}
