package server

import "sync"

// subscriptionManager maintains the URI -> subscriber-sessions inverted
// index plus its reverse (session -> URIs) for cheap cleanup on session
// teardown. The teacher's server.go keeps only the reverse direction
// (map[sessionID]map[uri]bool); adding the forward index lets notifyChange
// enumerate subscribers for a URI without scanning every session.
type subscriptionManager struct {
	mu            sync.Mutex
	byURI         map[string]map[string]struct{} // uri -> session ids
	bySession     map[string]map[string]struct{} // session id -> uris
}

func newSubscriptionManager() *subscriptionManager {
	return &subscriptionManager{
		byURI:     make(map[string]map[string]struct{}),
		bySession: make(map[string]map[string]struct{}),
	}
}

func (m *subscriptionManager) subscribe(sessionID, uri string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byURI[uri] == nil {
		m.byURI[uri] = make(map[string]struct{})
	}
	m.byURI[uri][sessionID] = struct{}{}
	if m.bySession[sessionID] == nil {
		m.bySession[sessionID] = make(map[string]struct{})
	}
	m.bySession[sessionID][uri] = struct{}{}
}

// unsubscribe is a no-op for a URI the session never subscribed to.
func (m *subscriptionManager) unsubscribe(sessionID, uri string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.byURI[uri]; ok {
		delete(subs, sessionID)
		if len(subs) == 0 {
			delete(m.byURI, uri)
		}
	}
	if uris, ok := m.bySession[sessionID]; ok {
		delete(uris, uri)
		if len(uris) == 0 {
			delete(m.bySession, sessionID)
		}
	}
}

// removeSession drops every subscription held by sessionID, called on
// session expiry or disconnect.
func (m *subscriptionManager) removeSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for uri := range m.bySession[sessionID] {
		if subs, ok := m.byURI[uri]; ok {
			delete(subs, sessionID)
			if len(subs) == 0 {
				delete(m.byURI, uri)
			}
		}
	}
	delete(m.bySession, sessionID)
}

// subscribers returns the session ids subscribed to uri, in no particular
// order; callers enqueue one notification per subscriber.
func (m *subscriptionManager) subscribers(uri string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.byURI[uri]
	out := make([]string, 0, len(subs))
	for id := range subs {
		out = append(out, id)
	}
	return out
}
