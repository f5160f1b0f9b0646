package store

// IDSet is an insertion-ordered set of identifiers. Removal leaves a hole in
// the order that is compacted once holes outnumber live entries.
type IDSet[T comparable] struct {
	order []slot[T]
	index map[T]int
	holes int
}

type slot[T comparable] struct {
	id   T
	dead bool
}

// NewIDSet creates an empty set.
func NewIDSet[T comparable]() *IDSet[T] {
	return &IDSet[T]{index: make(map[T]int)}
}

// Add inserts id and reports whether it was new.
func (s *IDSet[T]) Add(id T) bool {
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = len(s.order)
	s.order = append(s.order, slot[T]{id: id})
	return true
}

// Remove deletes id and reports whether it was present.
func (s *IDSet[T]) Remove(id T) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	delete(s.index, id)
	s.order[i] = slot[T]{dead: true}
	s.holes++
	if s.holes > len(s.index) {
		s.compact()
	}
	return true
}

func (s *IDSet[T]) compact() {
	live := s.order[:0]
	for _, sl := range s.order {
		if sl.dead {
			continue
		}
		s.index[sl.id] = len(live)
		live = append(live, sl)
	}
	clear(s.order[len(live):])
	s.order = live
	s.holes = 0
}

// Has reports membership.
func (s *IDSet[T]) Has(id T) bool {
	_, ok := s.index[id]
	return ok
}

// Len returns the number of ids.
func (s *IDSet[T]) Len() int { return len(s.index) }

// Values returns the ids in insertion order. The slice is a copy.
func (s *IDSet[T]) Values() []T {
	if len(s.index) == 0 {
		return nil
	}
	out := make([]T, 0, len(s.index))
	for _, sl := range s.order {
		if !sl.dead {
			out = append(out, sl.id)
		}
	}
	return out
}

// Clear removes every id.
func (s *IDSet[T]) Clear() {
	clear(s.order)
	s.order = s.order[:0]
	s.holes = 0
	clear(s.index)
}
