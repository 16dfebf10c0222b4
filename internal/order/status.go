package order

import "fmt"

// Status is the lifecycle position of an order. Wire values are the integers.
type Status int

const (
	Open Status = iota
	InProgress
	AwaitingReceipt
	Completed
	Cancelled
)

var statusNames = map[Status]string{
	Open:            "open",
	InProgress:      "in_progress",
	AwaitingReceipt: "awaiting_receipt",
	Completed:       "completed",
	Cancelled:       "cancelled",
}

// Legal edges. Completed and Cancelled are absorbing.
var allowed = map[Status]map[Status]bool{
	Open:            {InProgress: true, Cancelled: true},
	InProgress:      {AwaitingReceipt: true},
	AwaitingReceipt: {Completed: true},
	Completed:       {},
	Cancelled:       {},
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Valid reports whether s is one of the five known statuses.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// IsTerminal reports whether no further transition can leave s.
func (s Status) IsTerminal() bool {
	return s == Completed || s == Cancelled
}

// CanTransition checks if from->to is a legal edge.
func CanTransition(from, to Status) bool {
	nexts := allowed[from]
	return nexts != nil && nexts[to]
}
