package detail

import "github.com/kingrea/unirun/internal/order"

// Store caches the last snapshot of one order. It never merges: every Set
// replaces the previous order wholesale.
type Store struct {
	current  order.Order
	loaded   bool
	revision uint64
}

// Set replaces the snapshot and reports whether the status differs from the
// previous one. The first load counts as a change.
func (s *Store) Set(o order.Order) bool {
	if !s.loaded {
		s.current = o
		s.loaded = true
		s.revision++
		return true
	}
	statusChanged := s.current.Status != o.Status
	if !s.current.Equal(o) {
		s.revision++
	}
	s.current = o
	return statusChanged
}

// Get returns the snapshot, or false before the first load.
func (s *Store) Get() (order.Order, bool) {
	return s.current, s.loaded
}

// Revision counts content changes. Renderers redraw when it moves.
func (s *Store) Revision() uint64 {
	return s.revision
}
