// Package eventbus routes in-process notifications between screens.
//
// A detail screen publishes TopicOrdersChanged after a successful command so
// that the order list reloads. Events published before anyone subscribes are
// kept in a small backlog and flushed to the first subscriber.
package eventbus

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TopicOrdersChanged announces that an order was mutated by this client.
const TopicOrdersChanged = "orders.changed"

const (
	defaultSubscriberCapacity = 16
	defaultBacklogLimit       = 32
	defaultDedupeWindow       = 256
)

// Logger receives drop diagnostics. logging.Printf satisfies it.
type Logger interface {
	Printf(format string, args ...any)
}

// Event is one notification.
type Event struct {
	ID      string
	Topic   string
	OrderID string
	// Action is the command that caused the change, for example "accept".
	Action string
	At     time.Time
}

// Option customizes Bus construction.
type Option func(*Bus)

// WithLogger injects a logger for drop messages.
func WithLogger(logger Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// WithSubscriberCapacity overrides the buffered channel size per subscriber.
func WithSubscriberCapacity(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.channelSize = n
		}
	}
}

// WithBacklogLimit overrides how many events wait for a first subscriber.
func WithBacklogLimit(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.backlogLimit = n
		}
	}
}

// Bus fans events out to topic subscribers. It is safe for concurrent use.
type Bus struct {
	mu           sync.RWMutex
	subscribers  map[string]map[*subscriber]struct{}
	backlog      map[string][]Event
	recentIDs    map[string]struct{}
	recentOrder  []string
	channelSize  int
	backlogLimit int
	dedupeWindow int
	logger       Logger
	now          func() time.Time
}

// New constructs a bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subscribers:  map[string]map[*subscriber]struct{}{},
		backlog:      map[string][]Event{},
		recentIDs:    map[string]struct{}{},
		channelSize:  defaultSubscriberCapacity,
		backlogLimit: defaultBacklogLimit,
		dedupeWindow: defaultDedupeWindow,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Subscription is an active topic subscription.
type Subscription struct {
	Events <-chan Event
	cancel func()
}

// Close ends the subscription and closes Events. Safe to call twice.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Subscribe registers for a topic and flushes any backlog to the new subscriber.
func (b *Bus) Subscribe(topic string) Subscription {
	topic = normalizeTopic(topic)
	sub := newSubscriber(b.channelSize, b.logger)
	b.mu.Lock()
	if b.subscribers[topic] == nil {
		b.subscribers[topic] = map[*subscriber]struct{}{}
	}
	b.subscribers[topic][sub] = struct{}{}
	pending := b.backlog[topic]
	delete(b.backlog, topic)
	b.mu.Unlock()
	for _, event := range pending {
		sub.deliver(event)
	}
	return Subscription{
		Events: sub.ch,
		cancel: func() { b.remove(topic, sub) },
	}
}

// Publish stamps and routes an event. A nil bus ignores the call.
func (b *Bus) Publish(event Event) {
	if b == nil {
		return
	}
	event.Topic = normalizeTopic(event.Topic)
	if event.Topic == "" {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	} else if b.isDuplicate(event.ID) {
		return
	}
	if event.At.IsZero() {
		event.At = b.now()
	}
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subscribers[event.Topic]))
	for sub := range b.subscribers[event.Topic] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()
	if len(subs) == 0 {
		b.buffer(event)
		return
	}
	for _, sub := range subs {
		sub.deliver(event)
	}
}

// OrdersChanged publishes TopicOrdersChanged for one order. revision is the
// snapshot revision the command was sent against; repeating the same action
// on the same revision is delivered once.
func (b *Bus) OrdersChanged(orderID, action string, revision uint64) {
	b.Publish(Event{
		ID:      fmt.Sprintf("%s:%s:%d", orderID, action, revision),
		Topic:   TopicOrdersChanged,
		OrderID: orderID,
		Action:  action,
	})
}

func (b *Bus) remove(topic string, sub *subscriber) {
	b.mu.Lock()
	if subs := b.subscribers[topic]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.subscribers, topic)
		}
	}
	b.mu.Unlock()
	sub.close()
}

func (b *Bus) buffer(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	queue := b.backlog[event.Topic]
	if len(queue) >= b.backlogLimit {
		queue = queue[1:]
		if b.logger != nil {
			b.logger.Printf("eventbus: backlog drop for %s (limit %d)", event.Topic, b.backlogLimit)
		}
	}
	b.backlog[event.Topic] = append(queue, event)
}

func (b *Bus) isDuplicate(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.recentIDs[id]; ok {
		return true
	}
	b.recentIDs[id] = struct{}{}
	b.recentOrder = append(b.recentOrder, id)
	if len(b.recentOrder) > b.dedupeWindow {
		delete(b.recentIDs, b.recentOrder[0])
		b.recentOrder = b.recentOrder[1:]
	}
	return false
}

func normalizeTopic(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
	logger Logger
}

func newSubscriber(capacity int, logger Logger) *subscriber {
	if capacity <= 0 {
		capacity = defaultSubscriberCapacity
	}
	return &subscriber{ch: make(chan Event, capacity), logger: logger}
}

// deliver never blocks. On overflow the oldest queued event is dropped:
// subscribers only care that something changed since they last looked.
func (s *subscriber) deliver(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- event:
			return
		default:
		}
		select {
		case dropped := <-s.ch:
			if s.logger != nil {
				s.logger.Printf("eventbus: dropped %s for order %s (queue overflow)", dropped.Topic, dropped.OrderID)
			}
		default:
		}
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
