package session

import "sync"

// Registry tracks the live sessions by call SID so the webhook can reject
// duplicate deliveries and the operational endpoints can inspect and end
// calls.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: map[string]*Session{}}
}

// Add registers a session. It returns false when the call SID is already
// active, which is how duplicate webhook deliveries get dropped.
func (r *Registry) Add(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.CallSid()]; exists {
		return false
	}
	r.sessions[s.CallSid()] = s
	return true
}

// Get returns the session for a call SID, if active.
func (r *Registry) Get(callSid string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[callSid]
	return s, ok
}

// Remove drops a finished session.
func (r *Registry) Remove(callSid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, callSid)
}

// CallSids lists the active call SIDs.
func (r *Registry) CallSids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	sids := make([]string, 0, len(r.sessions))
	for sid := range r.sessions {
		sids = append(sids, sid)
	}
	return sids
}

// Len reports the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
