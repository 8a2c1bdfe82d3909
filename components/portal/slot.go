package portal

import "sync"

// FetchStatus is the lifecycle of a fetch slot.
type FetchStatus string

const (
	StatusIdle    FetchStatus = "idle"
	StatusPending FetchStatus = "pending"
	StatusSuccess FetchStatus = "success"
	StatusError   FetchStatus = "error"
)

// Ticket identifies one request generation. Only the ticket of the latest
// generation may resolve a slot.
type Ticket struct {
	Key        string
	Generation uint64
}

// FetchSlot is a point-in-time copy of a Slot.
type FetchSlot[T any] struct {
	RequestKey string      `json:"request_key"`
	Status     FetchStatus `json:"status"`
	Data       T           `json:"data"`
	Err        error       `json:"-"`
	Generation uint64      `json:"generation"`
}

// Slot holds the latest result of a repeatable async request. Every mutation
// goes through the slot mutex, which serializes completions.
type Slot[T any] struct {
	mu         sync.Mutex
	key        string
	status     FetchStatus
	data       T
	err        error
	generation uint64
	closed     bool
}

// Begin starts a new generation for key. Earlier tickets become stale.
func (s *Slot[T]) Begin(key string) Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.key = key
	s.status = StatusPending
	s.err = nil
	return Ticket{Key: key, Generation: s.generation}
}

// Reset stores data synchronously under a new generation, discarding any
// in-flight request.
func (s *Slot[T]) Reset(key string, data T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.key = key
	s.data = data
	s.err = nil
	s.status = StatusSuccess
}

// Cancel invalidates the in-flight generation and returns the slot to idle.
func (s *Slot[T]) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.status = StatusIdle
	s.err = nil
	var zero T
	s.data = zero
}

// Close permanently rejects further resolutions.
func (s *Slot[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.generation++
}

// Current reports whether t is still the latest generation.
func (s *Slot[T]) Current(t Ticket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked(t)
}

func (s *Slot[T]) currentLocked(t Ticket) bool {
	return !s.closed && t.Generation == s.generation
}

// Resolve applies a completion. On error the previous data is kept when
// keepData is set and zeroed otherwise. Stale tickets are ignored and
// Resolve reports false.
func (s *Slot[T]) Resolve(t Ticket, data T, err error, keepData bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(t) {
		return false
	}
	if err != nil {
		s.status = StatusError
		s.err = err
		if !keepData {
			var zero T
			s.data = zero
		}
		return true
	}
	s.status = StatusSuccess
	s.err = nil
	s.data = data
	return true
}

// Succeed is Resolve with a nil error.
func (s *Slot[T]) Succeed(t Ticket, data T) bool {
	return s.Resolve(t, data, nil, false)
}

// Snapshot copies the slot state.
func (s *Slot[T]) Snapshot() FetchSlot[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := s.status
	if status == "" {
		status = StatusIdle
	}
	return FetchSlot[T]{
		RequestKey: s.key,
		Status:     status,
		Data:       s.data,
		Err:        s.err,
		Generation: s.generation,
	}
}
