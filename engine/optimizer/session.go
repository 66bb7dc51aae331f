package optimizer

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/WessleyAI/wessley-routing/engine/domain"
)

// DefaultSessionTTL is how long a result accepts feedback.
const DefaultSessionTTL = 2 * time.Hour

// Session is the handle returned by a successful Optimize. It keeps the
// predicted travel time of every route so feedback can be scored later.
type Session struct {
	ID         string            `json:"id"`
	Scenario   domain.Scenario   `json:"scenario"`
	Source     domain.Coordinate `json:"source"`
	Dest       domain.Coordinate `json:"destination"`
	Departure  time.Time         `json:"departure"`
	CreatedAt  time.Time         `json:"created_at"`
	PredictedS []float64         `json:"predicted_seconds"`
	Completed  bool              `json:"completed"`
	Selected   int               `json:"selected_route"`
}

// SessionStore holds sessions in memory until they expire.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionStore creates a store. A non-positive ttl uses DefaultSessionTTL.
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{sessions: make(map[string]*Session), ttl: ttl, now: time.Now}
}

// Create registers a new session and returns a copy of it.
func (s *SessionStore) Create(sess Session) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.ID = uuid.NewString()
	sess.CreatedAt = s.now()
	sess.Selected = -1
	s.sessions[sess.ID] = &sess
	return sess
}

// Get returns a copy of the session with id.
func (s *SessionStore) Get(id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.lookupLocked(id)
	if err != nil {
		return Session{}, err
	}
	return *sess, nil
}

func (s *SessionStore) lookupLocked(id string) (*Session, error) {
	sess, ok := s.sessions[id]
	if !ok || s.now().Sub(sess.CreatedAt) > s.ttl {
		return nil, fmt.Errorf("optimizer: session %q: %w", id, domain.ErrSessionNotFound)
	}
	return sess, nil
}

// Complete marks route index of session id as driven and returns its
// predicted seconds. A session accepts one completion.
func (s *SessionStore) Complete(id string, index int) (Session, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.lookupLocked(id)
	if err != nil {
		return Session{}, 0, err
	}
	if index < 0 || index >= len(sess.PredictedS) {
		return Session{}, 0, fmt.Errorf("optimizer: route index %d out of range [0,%d): %w",
			index, len(sess.PredictedS), domain.ErrInvalidFeedback)
	}
	if sess.Completed {
		return Session{}, 0, fmt.Errorf("optimizer: session %q already completed: %w", id, domain.ErrInvalidFeedback)
	}
	sess.Completed = true
	sess.Selected = index
	return *sess, sess.PredictedS[index], nil
}

// reopen undoes Complete when the learner rejects the feedback.
func (s *SessionStore) reopen(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.Completed = false
		sess.Selected = -1
	}
}

// Evict drops expired sessions and returns how many were removed.
func (s *SessionStore) Evict() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if s.now().Sub(sess.CreatedAt) > s.ttl {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// Len returns the number of stored sessions, expired or not.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
