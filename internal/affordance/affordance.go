// Package affordance derives everything a detail screen shows from an order
// snapshot and the viewer's identity.
//
// Derive is a pure function: it reads nothing but its arguments and returns
// identical output for identical input. It runs on every poll tick whether or
// not the snapshot changed.
package affordance

import (
	"github.com/kingrea/unirun/internal/order"
)

// Role is the viewer's relation to an order.
type Role int

const (
	Bystander Role = iota
	Owner
	Runner
)

func (r Role) String() string {
	switch r {
	case Owner:
		return "owner"
	case Runner:
		return "runner"
	default:
		return "bystander"
	}
}

// Action names a user-triggerable affordance.
type Action string

const (
	Contact         Action = "contact"
	AcceptOrder     Action = "accept"
	CancelOrder     Action = "cancel"
	ConfirmDelivery Action = "deliver"
	ConfirmReceipt  Action = "receive"
)

// Confirmation is the yes/no prompt copy shown before a remote command.
type Confirmation struct {
	Title string
	Body  string
}

// ActionDescriptor describes one button in the footer.
type ActionDescriptor struct {
	Action  Action
	Label   string
	Key     string
	Primary bool
	// Confirm is empty for Contact, which has no remote effect.
	Confirm Confirmation
}

// Remote reports whether the action submits a command to the server.
func (d ActionDescriptor) Remote() bool {
	return d.Action != Contact
}

// Timeline holds the progress markers under the header.
type Timeline struct {
	TakenActive bool
	DoneActive  bool
	TakenAt     string
	DoneAt      string
}

// StatusBadge is the fixed label and colours for a status.
type StatusBadge struct {
	Label      string
	Foreground string
	Background string
}

// Affordances is the declarative descriptor consumed by the rendering adapter.
type Affordances struct {
	Role           Role
	Status         StatusBadge
	Timeline       Timeline
	PrimaryActions []ActionDescriptor
	Hint           string
	FooterVisible  bool
}

// Has reports whether the action is currently offered.
func (a Affordances) Has(action Action) bool {
	_, ok := a.Find(action)
	return ok
}

// Find returns the descriptor for an offered action.
func (a Affordances) Find(action Action) (ActionDescriptor, bool) {
	for _, d := range a.PrimaryActions {
		if d.Action == action {
			return d, true
		}
	}
	return ActionDescriptor{}, false
}

// FindKey resolves a key press to an offered action.
func (a Affordances) FindKey(key string) (ActionDescriptor, bool) {
	for _, d := range a.PrimaryActions {
		if d.Key == key {
			return d, true
		}
	}
	return ActionDescriptor{}, false
}

const justNow = "just now"

// RoleOf resolves the viewer's role. An anonymous viewer is always a bystander.
func RoleOf(o order.Order, viewer order.Viewer) Role {
	if viewer.UserID.IsZero() {
		return Bystander
	}
	if o.RequesterID == viewer.UserID {
		return Owner
	}
	if !o.RunnerID.IsZero() && o.RunnerID == viewer.UserID {
		return Runner
	}
	return Bystander
}

// Derive maps a snapshot and viewer to the screen's affordances.
func Derive(o order.Order, viewer order.Viewer) Affordances {
	role := RoleOf(o, viewer)
	out := Affordances{
		Role:          role,
		Status:        BadgeFor(o.Status),
		Timeline:      timelineFor(o),
		FooterVisible: !o.Status.IsTerminal(),
		Hint:          hintFor(o, role),
	}
	out.PrimaryActions = actionsFor(o.Status, role)
	return out
}

func timelineFor(o order.Order) Timeline {
	tl := Timeline{}
	switch o.Status {
	case order.InProgress, order.AwaitingReceipt:
		tl.TakenActive = true
	case order.Completed:
		tl.TakenActive = true
		tl.DoneActive = true
	}
	if tl.TakenActive {
		tl.TakenAt = displayOr(o.AcceptedAt, justNow)
	}
	if tl.DoneActive {
		tl.DoneAt = displayOr(o.FinishedAt, justNow)
	}
	return tl
}

func displayOr(t order.Time, fallback string) string {
	if s := t.Display(); s != "" {
		return s
	}
	return fallback
}

func actionsFor(status order.Status, role Role) []ActionDescriptor {
	switch status {
	case order.Open:
		switch role {
		case Owner:
			return []ActionDescriptor{descriptor(Contact, false), descriptor(CancelOrder, true)}
		case Bystander:
			return []ActionDescriptor{descriptor(AcceptOrder, true)}
		default:
			return nil
		}
	case order.InProgress, order.AwaitingReceipt:
		switch role {
		case Owner:
			return []ActionDescriptor{descriptor(Contact, false), descriptor(ConfirmReceipt, true)}
		case Runner:
			return []ActionDescriptor{descriptor(Contact, false), descriptor(ConfirmDelivery, true)}
		default:
			return []ActionDescriptor{descriptor(Contact, false)}
		}
	default:
		return nil
	}
}

func descriptor(action Action, primary bool) ActionDescriptor {
	text := actionCopy[action]
	return ActionDescriptor{
		Action:  action,
		Label:   text.label,
		Key:     text.key,
		Primary: primary,
		Confirm: text.confirm,
	}
}

func hintFor(o order.Order, role Role) string {
	switch {
	case role == Owner && o.Status == order.Open:
		return "To change the request, cancel the order first."
	case role != Owner && o.Status == order.InProgress:
		return "Head to the " + LocationFor(o.Category) + " to complete the errand."
	default:
		return ""
	}
}
