package session

import "sync"

// Registry tracks live sessions by user id so real-partner messages can be
// routed between them. This is the in-process stand-in for a realtime
// change-feed: delivery order is whatever order the goroutines interleave.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int64]*Session)}
}

// Register adds a session. A previous session for the same user is replaced.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.UserID()] = s
}

// Unregister removes the session if it is still the registered one.
func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.UserID()] == s {
		delete(r.sessions, s.UserID())
	}
}

// Deliver routes a message to the target user's live session.
// Returns false when the user has no session right now.
func (r *Registry) Deliver(toUserID, fromUserID int64, text string) bool {
	r.mu.RLock()
	target := r.sessions[toUserID]
	r.mu.RUnlock()

	if target == nil {
		return false
	}
	target.DeliverPartnerMessage(fromUserID, text)
	return true
}
