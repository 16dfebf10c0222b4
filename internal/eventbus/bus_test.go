package eventbus

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func TestBusBuffersUntilFirstSubscriber(t *testing.T) {
	bus := New()
	bus.OrdersChanged("1001", "accept", 1)
	bus.OrdersChanged("1002", "cancel", 1)

	sub := bus.Subscribe(TopicOrdersChanged)
	defer sub.Close()
	first := <-sub.Events
	second := <-sub.Events
	if first.OrderID != "1001" || second.OrderID != "1002" {
		t.Fatalf("unexpected backlog order: %s, %s", first.OrderID, second.OrderID)
	}
	if first.ID == "" || first.At.IsZero() {
		t.Fatalf("event should be stamped: %+v", first)
	}
}

func TestBusDedupesByEventID(t *testing.T) {
	bus := New()
	sub := bus.Subscribe("Orders.Changed")
	defer sub.Close()
	event := Event{ID: "evt-1", Topic: TopicOrdersChanged, OrderID: "1001"}
	bus.Publish(event)
	bus.Publish(event)
	<-sub.Events
	select {
	case <-sub.Events:
		t.Fatalf("duplicate event delivered")
	default:
	}
}

func TestOrdersChangedDedupesSameRevision(t *testing.T) {
	bus := New()
	sub := bus.Subscribe(TopicOrdersChanged)
	defer sub.Close()
	bus.OrdersChanged("1001", "accept", 3)
	bus.OrdersChanged("1001", "accept", 3)
	bus.OrdersChanged("1001", "accept", 4)
	bus.OrdersChanged("1001", "cancel", 4)

	var got []string
	for i := 0; i < 3; i++ {
		got = append(got, (<-sub.Events).ID)
	}
	want := []string{"1001:accept:3", "1001:accept:4", "1001:cancel:4"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected events: %v", got)
	}
	select {
	case e := <-sub.Events:
		t.Fatalf("duplicate event delivered: %+v", e)
	default:
	}
}

func TestBusOverflowKeepsNewest(t *testing.T) {
	logger := &recordingLogger{}
	bus := New(WithSubscriberCapacity(1), WithLogger(logger))
	sub := bus.Subscribe(TopicOrdersChanged)
	defer sub.Close()
	bus.OrdersChanged("1001", "accept", 1)
	bus.OrdersChanged("1002", "deliver", 1)

	if got := <-sub.Events; got.OrderID != "1002" {
		t.Fatalf("expected newest event to survive, got %s", got.OrderID)
	}
	if len(logger.lines) != 1 || !strings.Contains(logger.lines[0], "1001") {
		t.Fatalf("expected one drop log, got %v", logger.lines)
	}
}

func TestBusBacklogLimit(t *testing.T) {
	bus := New(WithBacklogLimit(2))
	for i := 0; i < 3; i++ {
		bus.OrdersChanged(fmt.Sprintf("10%d", i), "accept", 1)
	}
	sub := bus.Subscribe(TopicOrdersChanged)
	defer sub.Close()
	if got := <-sub.Events; got.OrderID != "101" {
		t.Fatalf("expected oldest backlog entry to be dropped, got %s", got.OrderID)
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	bus := New()
	sub := bus.Subscribe(TopicOrdersChanged)
	sub.Close()
	sub.Close()
	if _, ok := <-sub.Events; ok {
		t.Fatalf("expected closed channel")
	}
	bus.OrdersChanged("1001", "accept", 1)
}

func TestNilBusPublishIsNoop(t *testing.T) {
	var bus *Bus
	bus.OrdersChanged("1001", "accept", 1)
}
