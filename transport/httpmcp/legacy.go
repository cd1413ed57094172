package httpmcp

import (
	"encoding/json"
	"io"
	"net/http"
)

// The legacy endpoints adapt the same session store and message queue the
// streamable endpoint uses to the older connect/messages/ack shape some
// peers still speak: a GET to open a session, a POST per outbound message,
// and an explicit ack to dequeue what's been delivered. Grounded on the
// teacher's transport/sse.SSEServer two-endpoint split (HandleSSE +
// HandleMessage), widened to the four named endpoints spec.md lists.

// handleLegacy behaves like the streamable /mcp endpoint for peers that
// call the older path directly instead of /mcp.
func (t *Transport) handleLegacy(w http.ResponseWriter, r *http.Request) {
	t.handleMCP(w, r)
}

// handleLegacyConnect opens a session and returns its id without
// requiring an SSE upgrade, for peers that poll /mcp/messages instead of
// holding a stream open.
func (t *Transport) handleLegacyConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess := t.sessions.create()
	w.Header().Set(sessionIDHeader, sess.id)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"sessionId":       sess.id,
		"protocolVersion": t.protocolVersion(),
	})
}

// legacyEnvelope is one entry in a legacy /mcp/messages poll response: the
// envelope plus the id a subsequent /mcp/ack call references to dequeue it.
type legacyEnvelope struct {
	MessageID string          `json:"messageId"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
}

// handleLegacyMessages accepts a client->server envelope by POST and
// returns any queued server->client envelopes by GET, without acking them
// (a separate /mcp/ack call does that, so delivery survives a dropped
// response up to MaxMessageRetries).
func (t *Transport) handleLegacyMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionIDHeader)
	if sessionID == "" {
		sessionID = r.URL.Query().Get("sessionId")
	}
	sess, ok := t.sessions.get(sessionID)
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	sess.touch()

	switch r.Method {
	case http.MethodPost:
		body, err := io.ReadAll(io.LimitReader(r.Body, t.config.MaxRequestSize+1))
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		resp, err := t.dispatcher.HandleMessage(r.Context(), sess.id, body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if resp != nil {
			sess.queue.push(resp)
		}
		w.WriteHeader(http.StatusAccepted)

	case http.MethodGet:
		pending := sess.queue.peekUpTo(t.config.MaxMessageRetries)
		out := make([]legacyEnvelope, 0, len(pending))
		for _, msg := range pending {
			out = append(out, legacyEnvelope{MessageID: msg.MessageID, Payload: msg.Payload, Attempts: msg.Attempts})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleLegacyAck removes an acknowledged message from the session's
// queue by id.
func (t *Transport) handleLegacyAck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID := r.Header.Get(sessionIDHeader)
	if sessionID == "" {
		sessionID = r.URL.Query().Get("sessionId")
	}
	sess, ok := t.sessions.get(sessionID)
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	var body struct {
		MessageID string `json:"messageId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid ack body", http.StatusBadRequest)
		return
	}
	sess.queue.ack(body.MessageID)
	w.WriteHeader(http.StatusNoContent)
}
