// Package order models a campus errand order as the order API reports it.
//
// The server owns every order; values in this package are copies decoded from
// API responses. Ownership is decided by RequesterID only.
package order

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ID identifies an order or a user. The API emits integers but the client
// treats identifiers as opaque strings.
type ID string

// UserID identifies an account. The zero value means "not set".
type UserID = ID

// SystemSender is the sender id the server uses for generated messages.
const SystemSender UserID = "0"

// IsZero reports whether the identifier is unset.
func (id ID) IsZero() bool {
	return strings.TrimSpace(string(id)) == ""
}

// Short returns at most the first eight characters, used in headers.
func (id ID) Short() string {
	s := string(id)
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// UnmarshalJSON accepts numbers, strings and null.
func (id *ID) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "" || raw == "null" {
		*id = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("order: decode id: %w", err)
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("order: decode id %s: %w", raw, err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes numeric ids as numbers so requests match what the server sent.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// Category selects display copy only; it never changes state-machine behaviour.
type Category string

const (
	CategoryFood    Category = "food"
	CategoryPackage Category = "package"
	CategoryPrint   Category = "print"
)

// Message is one entry of the order's chat thread.
type Message struct {
	SenderID   UserID `json:"sender_id"`
	SenderName string `json:"sender_name,omitempty"`
	Type       string `json:"type,omitempty"`
	Content    string `json:"content"`
	SentAt     Time   `json:"create_time"`
}

// UnmarshalJSON accepts both create_time and the mock server's time field.
func (m *Message) UnmarshalJSON(b []byte) error {
	type plain Message
	var aux struct {
		plain
		Time *Time `json:"time"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*m = Message(aux.plain)
	if m.SentAt.IsZero() && aux.Time != nil {
		m.SentAt = *aux.Time
	}
	return nil
}

// Order is the last known server state of one errand.
type Order struct {
	ID              ID        `json:"order_id"`
	Status          Status    `json:"status"`
	RequesterID     UserID    `json:"requester_id"`
	RunnerID        UserID    `json:"runner_id"`
	Category        Category  `json:"category"`
	RewardPoints    int       `json:"reward_points"`
	Description     string    `json:"description"`
	LocationPickup  string    `json:"location_pickup,omitempty"`
	LocationDeliver string    `json:"location_deliver,omitempty"`
	PickupCode      string    `json:"pickup_code,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
	CreatedAt       Time      `json:"create_time"`
	AcceptedAt      Time      `json:"take_time"`
	DeliveredAt     Time      `json:"deliver_time"`
	FinishedAt      Time      `json:"confirm_time"`
	CancelledAt     Time      `json:"cancel_time"`
	Messages        []Message `json:"messages"`
}

// Equal reports whether two snapshots carry identical content.
func (o Order) Equal(other Order) bool {
	if o.ID != other.ID ||
		o.Status != other.Status ||
		o.RequesterID != other.RequesterID ||
		o.RunnerID != other.RunnerID ||
		o.Category != other.Category ||
		o.RewardPoints != other.RewardPoints ||
		o.Description != other.Description ||
		o.LocationPickup != other.LocationPickup ||
		o.LocationDeliver != other.LocationDeliver ||
		o.PickupCode != other.PickupCode {
		return false
	}
	if !o.CreatedAt.Equal(other.CreatedAt) ||
		!o.AcceptedAt.Equal(other.AcceptedAt) ||
		!o.DeliveredAt.Equal(other.DeliveredAt) ||
		!o.FinishedAt.Equal(other.FinishedAt) ||
		!o.CancelledAt.Equal(other.CancelledAt) {
		return false
	}
	if len(o.Tags) != len(other.Tags) || len(o.Messages) != len(other.Messages) {
		return false
	}
	for i := range o.Tags {
		if o.Tags[i] != other.Tags[i] {
			return false
		}
	}
	for i := range o.Messages {
		a, b := o.Messages[i], other.Messages[i]
		if a.SenderID != b.SenderID || a.Content != b.Content || a.Type != b.Type || !a.SentAt.Equal(b.SentAt) {
			return false
		}
	}
	return true
}

// Validate reports the first violated runner invariant. The server stays the
// authority; callers only log the result.
func (o Order) Validate() error {
	if o.RequesterID.IsZero() {
		return fmt.Errorf("order %s: requester is unset", o.ID)
	}
	switch o.Status {
	case Open:
		if !o.RunnerID.IsZero() {
			return fmt.Errorf("order %s: runner %s set while open", o.ID, o.RunnerID)
		}
	case InProgress, AwaitingReceipt, Completed:
		if o.RunnerID.IsZero() {
			return fmt.Errorf("order %s: runner unset in status %s", o.ID, o.Status)
		}
	}
	return nil
}

// Viewer is the locally authenticated user.
type Viewer struct {
	UserID UserID
}
