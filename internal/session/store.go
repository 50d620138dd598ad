package session

import (
	"sync"
	"time"

	"shoe-concept-studio/internal/request"
	"shoe-concept-studio/internal/studio"
)

// Session is one user's workspace: the form being filled and the studio that
// owns locks, history and the last request.
type Session struct {
	ID           string
	Studio       *studio.Studio
	Draft        request.Draft
	LastActivity time.Time
}

type Options struct {
	// NewStudio builds the studio for a new session id.
	NewStudio func(id string) *studio.Studio
	IdleTTL   time.Duration
	Now       func() time.Time
}

type Store struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	newStudio func(id string) *studio.Studio
	idleTTL   time.Duration
	now       func() time.Time
}

func NewStore(opts Options) *Store {
	newStudio := opts.NewStudio
	if newStudio == nil {
		newStudio = func(id string) *studio.Studio {
			return studio.New(studio.Options{SessionID: id})
		}
	}
	idleTTL := opts.IdleTTL
	if idleTTL <= 0 {
		idleTTL = 6 * time.Hour
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Store{
		sessions:  make(map[string]*Session),
		newStudio: newStudio,
		idleTTL:   idleTTL,
		now:       now,
	}
}

func (s *Store) Studio(id string) *studio.Studio {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(id)
	sess.LastActivity = s.now()
	return sess.Studio
}

// Lookup returns the studio of an existing session without creating one.
func (s *Store) Lookup(id string) (*studio.Studio, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	sess.LastActivity = s.now()
	return sess.Studio, true
}

// Draft returns a copy of the session's form.
func (s *Store) Draft(id string) request.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(id)
	sess.LastActivity = s.now()
	return sess.Draft.Clone()
}

// UpdateDraft applies fn to the form under the store lock and returns a copy of
// the result.
func (s *Store) UpdateDraft(id string, fn func(*request.Draft)) request.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(id)
	sess.LastActivity = s.now()
	if fn != nil {
		fn(&sess.Draft)
	}
	return sess.Draft.Clone()
}

// ResetDraft empties the form but keeps history and locks.
func (s *Store) ResetDraft(id string) request.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(id)
	sess.LastActivity = s.now()
	sess.Draft = sess.Studio.NewDraft()
	return sess.Draft.Clone()
}

// Sweep drops sessions idle for longer than the TTL, skipping busy ones.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.idleTTL)
	removed := 0
	for id, sess := range s.sessions {
		if sess.LastActivity.Before(cutoff) && !sess.Studio.Busy() {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) getOrCreateLocked(id string) *Session {
	if sess, ok := s.sessions[id]; ok {
		return sess
	}

	st := s.newStudio(id)
	sess := &Session{
		ID:           id,
		Studio:       st,
		Draft:        st.NewDraft(),
		LastActivity: s.now(),
	}
	s.sessions[id] = sess
	return sess
}
