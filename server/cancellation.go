package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/corvusruntime/mcprt/protocol"
)

// cancelEntry tracks one in-flight request's cancellation state. Generalizes
// the teacher's bare map[string]context.CancelFunc into a table that also
// answers is_cancelled without needing to unwind a context.
type cancelEntry struct {
	method       string
	registeredAt time.Time
	cancel       context.CancelFunc
	cancelled    bool
}

// cancellationManager is the in-flight request table: register on arrival,
// remove on completion, and a cooperative cancelled flag handlers poll
// instead of being preempted.
type cancellationManager struct {
	mu      sync.Mutex
	entries map[string]*cancelEntry
}

func newCancellationManager() *cancellationManager {
	return &cancellationManager{entries: make(map[string]*cancelEntry)}
}

// idKey canonicalizes a JSON-RPC id (string or number) to a map key.
func idKey(id interface{}) string {
	switch v := id.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// register inserts id into the table. The caller must never register
// "initialize" — that method is immune to cancellation per §4.5.
func (m *cancellationManager) register(id interface{}, method string, cancel context.CancelFunc) bool {
	key := idKey(id)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[key]; exists {
		return false
	}
	m.entries[key] = &cancelEntry{method: method, registeredAt: time.Now(), cancel: cancel}
	return true
}

// handleCancellation marks the request cancelled if present, not the
// "initialize" method, and not already cancelled. Returns true if this call
// is what flipped the flag. An unknown id is never an error — the peer may
// race a completion.
func (m *cancellationManager) handleCancellation(params protocol.CancelledParams) bool {
	key := idKey(params.RequestID)
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok || entry.method == protocol.MethodInitialize || entry.cancelled {
		return false
	}
	entry.cancelled = true
	if entry.cancel != nil {
		entry.cancel()
	}
	return true
}

// isCancelled is the cooperative poll a long-running handler calls at its
// own checkpoints; the runtime never aborts a handler forcibly.
func (m *cancellationManager) isCancelled(id interface{}) bool {
	key := idKey(id)
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	return ok && entry.cancelled
}

// complete removes id from the table once its handler has returned.
func (m *cancellationManager) complete(id interface{}) {
	key := idKey(id)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// isRegistered reports whether id is currently tracked, used by the
// dispatcher to reject a duplicate request id with -32600.
func (m *cancellationManager) isRegistered(id interface{}) bool {
	key := idKey(id)
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}
