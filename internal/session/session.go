// Package session holds the authentication context consulted by the sync workers.
// It replaces ambient singletons: every worker receives a *Session and re-reads the
// current user on each cycle.
package session

import (
	"sync"

	"github.com/google/uuid"
)

// Provider exposes the currently authenticated user.
type Provider interface {
	// CurrentUserID returns the logged-in user, or false when nobody is logged in.
	CurrentUserID() (uuid.UUID, bool)
}

// Session is an in-process authentication context safe for concurrent use.
type Session struct {
	mu      sync.RWMutex
	userID  uuid.UUID
	active  bool
	changed chan struct{}
}

// New creates a Session with no logged-in user.
func New() *Session {
	return &Session{changed: make(chan struct{})}
}

// CurrentUserID returns the logged-in user.
func (s *Session) CurrentUserID() (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.active
}

// Login sets the current user. Logging in the same user again is a no-op.
func (s *Session) Login(userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active && s.userID == userID {
		return
	}
	s.userID = userID
	s.active = true
	s.broadcast()
}

// Logout clears the current user.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}
	s.userID = uuid.Nil
	s.active = false
	s.broadcast()
}

// Changed returns a channel closed on the next login or logout.
func (s *Session) Changed() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changed
}

// broadcast must be called with mu held.
func (s *Session) broadcast() {
	close(s.changed)
	s.changed = make(chan struct{})
}
