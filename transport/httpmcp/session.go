// Package httpmcp implements the Streamable HTTP transport: a single
// endpoint accepting JSON-RPC envelopes over POST, upgrading to
// Server-Sent Events for server-to-client push, plus a set of legacy
// endpoints for peers that predate the streamable design.
package httpmcp

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// queuedMessage is one outbound envelope waiting for its session's
// transport to deliver it, either over an SSE stream or attached as a
// pending_messages entry on the next POST response.
type queuedMessage struct {
	Payload    []byte
	MessageID  string
	EnqueuedAt time.Time
	Attempts   int
}

// maxQueueDepth bounds each session's outbound queue; push drops the
// oldest entry once full rather than blocking the handler that produced it.
const maxQueueDepth = 1000

// messageQueue is a per-session FIFO of outbound envelopes.
type messageQueue struct {
	mu      sync.Mutex
	entries []queuedMessage
	dropped int
}

func newMessageQueue() *messageQueue {
	return &messageQueue{entries: make([]queuedMessage, 0, 16)}
}

func (q *messageQueue) push(payload []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) >= maxQueueDepth {
		q.entries = q.entries[1:]
		q.dropped++
	}
	q.entries = append(q.entries, queuedMessage{
		Payload:    payload,
		MessageID:  uuid.NewString(),
		EnqueuedAt: time.Now(),
	})
}

// drain removes and returns every currently queued message.
func (q *messageQueue) drain() []queuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.entries
	q.entries = make([]queuedMessage, 0, 16)
	return out
}

func (q *messageQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// peekUpTo returns every queued message without removing it, incrementing
// each entry's attempt counter and dropping any that have exceeded
// maxRetries (a zero or negative maxRetries disables the retry cap).
func (q *messageQueue) peekUpTo(maxRetries int) []queuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.entries[:0:0]
	out := make([]queuedMessage, 0, len(q.entries))
	for _, msg := range q.entries {
		msg.Attempts++
		if maxRetries > 0 && msg.Attempts > maxRetries {
			q.dropped++
			continue
		}
		kept = append(kept, msg)
		out = append(out, msg)
	}
	q.entries = kept
	return out
}

// ack removes the message with the given id, called once a legacy peer
// confirms delivery.
func (q *messageQueue) ack(messageID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, msg := range q.entries {
		if msg.MessageID == messageID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return
		}
	}
}

// httpSession tracks one HTTP-transport peer: its outbound queue, last
// activity time (for the idle sweeper), and an optional live SSE writer
// channel installed while a stream is attached.
type httpSession struct {
	id           string
	queue        *messageQueue
	createdAt    time.Time
	mu           sync.Mutex
	lastActivity time.Time
	sseChan      chan []byte // non-nil while an SSE stream is attached
}

func newHTTPSession() *httpSession {
	now := time.Now()
	return &httpSession{
		id:           uuid.NewString(),
		queue:        newMessageQueue(),
		createdAt:    now,
		lastActivity: now,
	}
}

func (s *httpSession) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *httpSession) idleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

// attachSSE installs a channel the writer loop drains and registers it as
// the session's live stream; deliver prefers this channel over the queue
// while it is attached.
func (s *httpSession) attachSSE() chan []byte {
	ch := make(chan []byte, 64)
	s.mu.Lock()
	s.sseChan = ch
	s.mu.Unlock()
	return ch
}

func (s *httpSession) detachSSE() {
	s.mu.Lock()
	s.sseChan = nil
	s.mu.Unlock()
}

// deliver sends payload to the attached SSE stream if one exists,
// otherwise queues it for the next POST response to pick up.
func (s *httpSession) deliver(payload []byte) {
	s.mu.Lock()
	ch := s.sseChan
	s.mu.Unlock()
	if ch != nil {
		select {
		case ch <- payload:
			return
		default:
			// Stream is backed up; fall through to the queue so the
			// message isn't silently lost.
		}
	}
	s.queue.push(payload)
}

// sessionStore is the HTTP transport's own session table, distinct from
// server.sessionStore: it tracks the queue/SSE-channel bookkeeping the
// server package has no reason to know about. Every httpSession shares its
// id with the server.Session the dispatcher creates for it on first use.
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*httpSession
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*httpSession)}
}

func (s *sessionStore) create() *httpSession {
	sess := newHTTPSession()
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	return sess
}

func (s *sessionStore) get(id string) (*httpSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *sessionStore) remove(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// idleSessions returns every session whose last activity exceeds ttl.
func (s *sessionStore) idleSessions(ttl time.Duration) []*httpSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*httpSession
	for _, sess := range s.sessions {
		if sess.idleSince() > ttl {
			out = append(out, sess)
		}
	}
	return out
}
