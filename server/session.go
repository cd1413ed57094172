package server

import (
	"sync"
	"time"

	"github.com/corvusruntime/mcprt/protocol"
)

// Session is one connected peer's state. The lifecycle FSM in fsm.go is
// process-wide, but each session tracks its own negotiated protocol version
// and client info, since a server can serve peers that negotiated different
// versions concurrently.
type Session struct {
	ID             string
	CreatedAt      time.Time
	ClientInfo     protocol.Implementation
	ClientCaps     protocol.ClientCapabilities
	NegotiatedVersion string

	mu             sync.RWMutex
	lastActivity   time.Time
	pendingCount   int
}

func newSession(id string) *Session {
	now := time.Now()
	return &Session{ID: id, CreatedAt: now, lastActivity: now}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) lastActivityAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

func (s *Session) idleSince() time.Duration {
	return time.Since(s.lastActivityAt())
}

func (s *Session) beginRequest() {
	s.mu.Lock()
	s.pendingCount++
	s.mu.Unlock()
}

func (s *Session) endRequest() {
	s.mu.Lock()
	if s.pendingCount > 0 {
		s.pendingCount--
	}
	s.mu.Unlock()
}

func (s *Session) pendingRequests() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingCount
}

// sessionStore holds every connected session, keyed by id. Unlike the
// teacher's bare sync.Map, deletion here must also unwind subscriptions,
// so removal goes through the server rather than the store alone.
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*Session)}
}

func (s *sessionStore) put(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
}

func (s *sessionStore) get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *sessionStore) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *sessionStore) all() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// idleSessions returns sessions that have had no activity for at least ttl,
// used by the Streamable HTTP transport to expire abandoned sessions.
func (s *sessionStore) idleSessions(ttl time.Duration) []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Session
	for _, sess := range s.sessions {
		if sess.idleSince() >= ttl {
			out = append(out, sess)
		}
	}
	return out
}
