package httpmcp

import (
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// backoffStart, backoffCap, and backoffOverallCap govern the exponential
// backoff the POST handler uses while polling a session's queue for
// messages besides the one it's about to answer, per spec.md §4.8's
// correlation design.
const (
	backoffStart      = 10 * time.Millisecond
	backoffCap        = 500 * time.Millisecond
	backoffOverallCap = 2 * time.Second
)

// defaultProtocolVersion is advertised when a Config leaves ProtocolVersion
// unset.
const defaultProtocolVersion = "2025-06-18"

// streamableRequest is the unified POST body, grounded on
// ultrafast-mcp-transport's StreamableMcpRequest: an optional session id
// (generated if absent), the JSON-RPC envelope to forward to the
// dispatcher (absent or null means "just poll for what's queued"), and an
// optional in-band request to upgrade this connection to an SSE stream.
type streamableRequest struct {
	SessionID       *string         `json:"session_id,omitempty"`
	Message         json.RawMessage `json:"message,omitempty"`
	UpgradeToStream bool            `json:"upgrade_to_stream,omitempty"`
}

// correlatedResponse is what handlePost writes back: the session's id and
// the transport's configured protocol version (StreamableMcpResponse's shape), the answer
// to the request just submitted (if any), and any other envelopes queued
// for this session picked up within the backoff window.
type correlatedResponse struct {
	SessionID       string            `json:"session_id"`
	ProtocolVersion string            `json:"protocol_version"`
	MessageID       string            `json:"message_id,omitempty"`
	Response        json.RawMessage   `json:"response,omitempty"`
	PendingMessages []json.RawMessage `json:"pending_messages"`
}

func (t *Transport) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		t.handlePost(w, r)
	case http.MethodGet:
		if wantsSSE(r) {
			t.handleSSE(w, r)
			return
		}
		http.Error(w, "GET requires an SSE upgrade", http.StatusMethodNotAllowed)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (t *Transport) protocolVersion() string {
	if t.config.ProtocolVersion != "" {
		return t.config.ProtocolVersion
	}
	return defaultProtocolVersion
}

func (t *Transport) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, t.config.MaxRequestSize+1))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if t.config.MaxRequestSize > 0 && int64(len(body)) > t.config.MaxRequestSize {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	var req streamableRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}
	}

	sessionID := ""
	if req.SessionID != nil {
		sessionID = *req.SessionID
	}
	if sessionID == "" {
		sessionID = r.Header.Get(sessionIDHeader)
	}
	if sessionID == "" {
		sessionID = r.URL.Query().Get("session_id")
	}

	var sess *httpSession
	if sessionID != "" {
		sess, _ = t.sessions.get(sessionID)
	}
	if sess == nil {
		sess = t.sessions.create()
	}
	sess.touch()

	if req.UpgradeToStream || wantsSSE(r) {
		r.Header.Set(sessionIDHeader, sess.id)
		t.handleSSE(w, r)
		return
	}

	w.Header().Set(sessionIDHeader, sess.id)
	w.Header().Set("Content-Type", "application/json")

	if len(req.Message) == 0 || string(req.Message) == "null" {
		// No message: a bare connection/poll request. Return whatever is
		// already queued without forwarding anything to the dispatcher.
		out := correlatedResponse{
			SessionID:       sess.id,
			ProtocolVersion: t.protocolVersion(),
			PendingMessages: drainAsRaw(sess),
		}
		_ = json.NewEncoder(w).Encode(out)
		return
	}

	answeredID := extractRequestID(req.Message)

	resp, err := t.dispatcher.HandleMessage(r.Context(), sess.id, req.Message)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	pending := t.drainPendingExcept(sess, answeredID)

	if resp == nil && len(pending) == 0 {
		// A pure notification with nothing else queued: acknowledge with
		// no body, matching the teacher's 204-on-notification handling.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	out := correlatedResponse{
		SessionID:       sess.id,
		ProtocolVersion: t.protocolVersion(),
		MessageID:       answeredID,
		Response:        resp,
		PendingMessages: pending,
	}
	_ = json.NewEncoder(w).Encode(out)
}

// drainAsRaw empties sess's queue without filtering, for the bare
// connection/poll path where there is no just-answered id to exclude.
func drainAsRaw(sess *httpSession) []json.RawMessage {
	out := make([]json.RawMessage, 0)
	for _, msg := range sess.queue.drain() {
		out = append(out, json.RawMessage(msg.Payload))
	}
	return out
}

// drainPendingExcept polls sess's queue with exponential backoff, looking
// for any envelope besides answeredID, and returns whatever has
// accumulated by the time the backoff window closes.
func (t *Transport) drainPendingExcept(sess *httpSession, answeredID string) []json.RawMessage {
	deadline := time.Now().Add(backoffOverallCap)
	wait := backoffStart

	collected := make([]json.RawMessage, 0)
	for {
		for _, msg := range sess.queue.drain() {
			if answeredID != "" && extractRequestID(msg.Payload) == answeredID {
				continue
			}
			collected = append(collected, json.RawMessage(msg.Payload))
		}
		if len(collected) > 0 || time.Now().After(deadline) {
			return collected
		}
		time.Sleep(wait)
		wait *= 2
		if wait > backoffCap {
			wait = backoffCap
		}
	}
}

func extractRequestID(raw []byte) string {
	var env struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return ""
	}
	return string(env.ID)
}
