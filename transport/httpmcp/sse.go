package httpmcp

import (
	"fmt"
	"net/http"
	"time"
)

// keepAliveInterval is how often the SSE writer loop emits a comment line
// to keep intermediaries (proxies, load balancers) from timing out an
// otherwise-idle connection.
const keepAliveInterval = 25 * time.Second

// handleSSE upgrades a GET request to a persistent event stream, attaching
// the session's live channel so deliver() prefers pushing over it instead
// of queuing. Grounded on the teacher's SSEServer.HandleSSE writer loop
// (transport/sse/sse.go), generalized to the event name and keep-alive
// comment spec.md's Streamable HTTP section calls for.
func (t *Transport) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sessionID := r.Header.Get(sessionIDHeader)
	var sess *httpSession
	if sessionID != "" {
		sess, _ = t.sessions.get(sessionID)
	}
	if sess == nil {
		sess = t.sessions.create()
	}
	sess.touch()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(sessionIDHeader, sess.id)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := sess.attachSSE()
	defer sess.detachSSE()

	// Flush anything that queued up before the stream attached.
	for _, msg := range sess.queue.drain() {
		t.writeSSEFrame(w, msg.Payload)
	}
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case payload := <-ch:
			t.writeSSEFrame(w, payload)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case <-ctx.Done():
			t.logger.Info("httpmcp: sse stream closed for session %s", sess.id)
			return
		}
	}
}

func (t *Transport) writeSSEFrame(w http.ResponseWriter, payload []byte) {
	fmt.Fprintf(w, "event: mcp-message\ndata: %s\n\n", payload)
}
