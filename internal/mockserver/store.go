package mockserver

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/unirun/internal/order"
)

// RuleError is a rejected request with the HTTP status and message to send back.
type RuleError struct {
	Status  int
	Message string
}

func (e *RuleError) Error() string { return e.Message }

func reject(status int, format string, args ...any) *RuleError {
	return &RuleError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// User is a mock account. Its token is the decimal user id.
type User struct {
	ID   order.UserID `json:"user_id"`
	Name string       `json:"name"`
}

// review is one submitted rating.
type review struct {
	reviewer order.UserID
	rating   int
	comment  string
}

// Store is the in-memory order database. It is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	users   map[order.UserID]User
	orders  map[order.ID]*order.Order
	reviews map[order.ID][]review
	nextID  int
	now     func() time.Time
}

// NewStore returns an empty store.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		users:   map[order.UserID]User{},
		orders:  map[order.ID]*order.Order{},
		reviews: map[order.ID][]review{},
		nextID:  1000,
		now:     now,
	}
}

// AddUser registers an account.
func (s *Store) AddUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// UserByToken resolves a bearer token.
func (s *Store) UserByToken(token string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[order.UserID(strings.TrimSpace(token))]
	return u, ok
}

// Put inserts or replaces an order. A zero id is assigned the next free one.
func (s *Store) Put(o order.Order) order.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID.IsZero() {
		s.nextID++
		for s.orders[order.ID(strconv.Itoa(s.nextID))] != nil {
			s.nextID++
		}
		o.ID = order.ID(strconv.Itoa(s.nextID))
	} else if n, err := strconv.Atoi(string(o.ID)); err == nil && n > s.nextID {
		s.nextID = n
	}
	cp := clone(o)
	s.orders[o.ID] = &cp
	return o.ID
}

// Len counts stored orders.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// Get returns an order as seen by viewer. Outsiders only see open orders.
func (s *Store) Get(id order.ID, viewer order.UserID) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.lookup(id)
	if err != nil {
		return order.Order{}, err
	}
	if !isParticipant(o, viewer) && o.Status != order.Open {
		return order.Order{}, reject(http.StatusForbidden, "You are not allowed to view this order")
	}
	return s.present(*o), nil
}

// ListFilter mirrors the list endpoint's query.
type ListFilter struct {
	Category string
	Status   string
}

// List returns matching orders, newest first, without their threads.
func (s *Store) List(filter ListFilter) ([]order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var want *order.Status
	switch status := strings.TrimSpace(filter.Status); status {
	case "", "active":
	default:
		n, err := strconv.Atoi(status)
		if err != nil || !order.Status(n).Valid() {
			return nil, reject(http.StatusBadRequest, "Invalid status filter %q", status)
		}
		st := order.Status(n)
		want = &st
	}
	out := []order.Order{}
	for _, o := range s.orders {
		if c := strings.TrimSpace(filter.Category); c != "" && c != "all" && string(o.Category) != c {
			continue
		}
		if filter.Status == "active" && o.Status.IsTerminal() {
			continue
		}
		if want != nil && o.Status != *want {
			continue
		}
		cp := clone(*o)
		cp.Messages = nil
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt.Time)
	})
	return out, nil
}

// Take assigns the runner: Open to InProgress.
func (s *Store) Take(id order.ID, taker order.UserID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	if o.Status != order.Open {
		return "", reject(http.StatusBadRequest, "Too slow, this order was already taken")
	}
	if o.RequesterID == taker {
		return "", reject(http.StatusForbidden, "You cannot take your own order")
	}
	if !o.RunnerID.IsZero() {
		return "", reject(http.StatusBadRequest, "This order already has a runner")
	}
	now := s.now()
	o.RunnerID = taker
	o.Status = order.InProgress
	o.AcceptedAt = order.NewTime(now)
	s.system(o, fmt.Sprintf("Your order was taken by %s and is on its way", s.nameOf(taker)))
	return "Order taken, please head to the pickup point", nil
}

// Deliver marks the hand-over: InProgress to AwaitingReceipt. Runner only.
func (s *Store) Deliver(id order.ID, user order.UserID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	if o.RunnerID != user {
		return "", reject(http.StatusForbidden, "Only the runner can confirm delivery")
	}
	if o.Status != order.InProgress {
		return "", reject(http.StatusBadRequest, "Order is not being delivered")
	}
	o.Status = order.AwaitingReceipt
	o.DeliveredAt = order.NewTime(s.now())
	s.system(o, "The runner marked your order as delivered, please confirm receipt")
	return "Delivery confirmed, waiting for the requester", nil
}

// Finish confirms receipt: AwaitingReceipt to Completed. Requester only.
func (s *Store) Finish(id order.ID, user order.UserID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	if o.RequesterID != user {
		return "", reject(http.StatusForbidden, "Only the requester can confirm receipt")
	}
	if o.Status != order.AwaitingReceipt {
		return "", reject(http.StatusBadRequest, "Order is not awaiting receipt")
	}
	o.Status = order.Completed
	o.FinishedAt = order.NewTime(s.now())
	s.system(o, fmt.Sprintf("Order completed, %d points were paid to the runner", o.RewardPoints))
	return "Receipt confirmed, order completed", nil
}

// Cancel withdraws an open order. Requester only.
func (s *Store) Cancel(id order.ID, user order.UserID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	if o.RequesterID != user {
		return "", reject(http.StatusForbidden, "Only the requester can cancel")
	}
	if o.Status != order.Open {
		return "", reject(http.StatusBadRequest, "Order was already taken and cannot be cancelled")
	}
	o.Status = order.Cancelled
	o.CancelledAt = order.NewTime(s.now())
	return "Order cancelled", nil
}

// Chat appends a message. Once a runner is assigned only the two parties may write.
func (s *Store) Chat(id order.ID, user order.UserID, kind, content string) (order.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.lookup(id)
	if err != nil {
		return order.Message{}, err
	}
	if !o.RunnerID.IsZero() && !isParticipant(o, user) {
		return order.Message{}, reject(http.StatusForbidden, "You are not part of this order")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return order.Message{}, reject(http.StatusBadRequest, "Message is empty")
	}
	if kind == "" {
		kind = "text"
	}
	msg := order.Message{
		SenderID:   user,
		SenderName: s.nameOf(user),
		Type:       kind,
		Content:    content,
		SentAt:     order.NewTime(s.now()),
	}
	o.Messages = append(o.Messages, msg)
	return msg, nil
}

// Rate records one review per participant of a completed order.
func (s *Store) Rate(id order.ID, user order.UserID, rating int, comment string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	if o.Status != order.Completed {
		return "", reject(http.StatusBadRequest, "Only completed orders can be rated")
	}
	if rating < 1 || rating > 5 {
		return "", reject(http.StatusBadRequest, "Rating must be between 1 and 5")
	}
	if !isParticipant(o, user) {
		return "", reject(http.StatusForbidden, "You are not allowed to rate this order")
	}
	for _, r := range s.reviews[id] {
		if r.reviewer == user {
			return "", reject(http.StatusConflict, "You already rated this order")
		}
	}
	s.reviews[id] = append(s.reviews[id], review{reviewer: user, rating: rating, comment: comment})
	return "Thanks for your rating", nil
}

// Reviews counts ratings stored for an order.
func (s *Store) Reviews(id order.ID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reviews[id])
}

func (s *Store) lookup(id order.ID) (*order.Order, error) {
	o := s.orders[id]
	if o == nil {
		return nil, reject(http.StatusNotFound, "Order %s not found", id)
	}
	return o, nil
}

func (s *Store) system(o *order.Order, content string) {
	o.Messages = append(o.Messages, order.Message{
		SenderID:   order.SystemSender,
		SenderName: "System",
		Type:       "text",
		Content:    content,
		SentAt:     order.NewTime(s.now()),
	})
}

func (s *Store) nameOf(id order.UserID) string {
	if u, ok := s.users[id]; ok && u.Name != "" {
		return u.Name
	}
	return "user " + string(id)
}

// present fills sender names the way the detail endpoint does.
func (s *Store) present(o order.Order) order.Order {
	cp := clone(o)
	for i := range cp.Messages {
		if cp.Messages[i].SenderName == "" {
			if cp.Messages[i].SenderID == order.SystemSender {
				cp.Messages[i].SenderName = "System"
			} else {
				cp.Messages[i].SenderName = s.nameOf(cp.Messages[i].SenderID)
			}
		}
	}
	return cp
}

func isParticipant(o *order.Order, user order.UserID) bool {
	if user.IsZero() {
		return false
	}
	return o.RequesterID == user || o.RunnerID == user
}

func clone(o order.Order) order.Order {
	cp := o
	cp.Messages = append([]order.Message(nil), o.Messages...)
	cp.Tags = append([]string(nil), o.Tags...)
	return cp
}
