// Package session holds the mutable per-session state shared between the
// controller, the connection manager, and the timeline: the authenticated
// identity and the currently selected peer.
//
// The selected peer carries a monotonically increasing generation counter.
// Every peer switch bumps it, and any in-flight history fetch records the
// generation it was issued under; a result whose generation no longer
// matches is stale and must be discarded.
package session

import "sync"

// Identity is the authenticated user of the session.
type Identity struct {
	ID       string
	Username string
}

// Session is the shared session state. Handlers that filter inbound frames
// by peer must read the selected peer through this object rather than
// capture it at registration time, so routing stays correct after peer
// switches.
type Session struct {
	mu         sync.RWMutex
	identity   *Identity
	peerID     string
	generation uint64
}

// New creates an unauthenticated session with no selected peer.
func New() *Session {
	return &Session{}
}

// SetIdentity records the authenticated identity.
func (s *Session) SetIdentity(id, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = &Identity{ID: id, Username: username}
}

// ClearIdentity forgets the authenticated identity, e.g. on logout.
func (s *Session) ClearIdentity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = nil
}

// Identity returns the authenticated identity, if any.
func (s *Session) Identity() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return Identity{}, false
	}
	return *s.identity, true
}

// SelfID returns the authenticated user id, or "" when unauthenticated.
func (s *Session) SelfID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return ""
	}
	return s.identity.ID
}

// SelectPeer switches the selected peer and returns the new selection
// generation.
func (s *Session) SelectPeer(peerID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerID = peerID
	s.generation++
	return s.generation
}

// SelectedPeer returns the currently selected peer id, or "" when none is
// selected.
func (s *Session) SelectedPeer() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peerID
}

// Generation returns the current selection generation.
func (s *Session) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Current reports whether gen is still the active selection generation.
func (s *Session) Current(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation == gen
}
