package history

import (
	"sync"
	"time"

	"shoe-concept-studio/internal/generation"
	"shoe-concept-studio/internal/request"
)

const DefaultCapacity = 20

// Entry records one completed attempt: the request and either its result or
// the failure the service answered with.
type Entry struct {
	Request *request.GenerationRequest
	Result  *generation.Result
	Failure *generation.Error
	At      time.Time
}

func (e Entry) OK() bool {
	return e.Result != nil && e.Failure == nil
}

// Store is a bounded log ordered newest first. Appending past capacity evicts
// the oldest entry.
type Store struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
}

func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{capacity: capacity}
}

func (s *Store) Append(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, Entry{})
	copy(s.entries[1:], s.entries)
	s.entries[0] = e
	if len(s.entries) > s.capacity {
		clear(s.entries[s.capacity:])
		s.entries = s.entries[:s.capacity]
	}
}

// Entries returns a copy, newest first.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Store) At(index int) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.entries) {
		return Entry{}, false
	}
	return s.entries[index], true
}

func (s *Store) Latest() (Entry, bool) {
	return s.At(0)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}
