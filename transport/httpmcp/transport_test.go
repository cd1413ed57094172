package httpmcp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corvusruntime/mcprt/logx"
)

// recordingDispatcher is a test double for Dispatcher that returns a fixed
// response and records the last raw envelope it was handed.
type recordingDispatcher struct {
	response        []byte
	err             error
	gotRaw          []byte
	unregisteredIDs []string
}

func (d *recordingDispatcher) HandleMessage(ctx context.Context, sessionID string, raw []byte) ([]byte, error) {
	d.gotRaw = raw
	return d.response, d.err
}

func (d *recordingDispatcher) UnregisterSession(sessionID string) {
	d.unregisteredIDs = append(d.unregisteredIDs, sessionID)
}

func TestHandlePostReturnsCorrelatedResponse(t *testing.T) {
	disp := &recordingDispatcher{response: []byte(`{"jsonrpc":"2.0","id":1,"result":{}}`)}
	cfg := DefaultConfig()
	transport := NewTransport(disp, cfg, WithLogger(logx.NewDiscardLogger()))

	srv := httptest.NewServer(transport.Mux())
	defer srv.Close()

	message := []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	body, _ := json.Marshal(streamableRequest{Message: message})
	resp, err := http.Post(srv.URL+"/mcp", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(sessionIDHeader))

	var out correlatedResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "2025-06-18", out.ProtocolVersion)
	require.Equal(t, resp.Header.Get(sessionIDHeader), out.SessionID)
	require.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{}}`, string(out.Response))
	require.Equal(t, string(message), string(disp.gotRaw))
	require.NotNil(t, out.PendingMessages)
	require.Empty(t, out.PendingMessages)
}

func TestHandlePostRejectsOversizedBody(t *testing.T) {
	disp := &recordingDispatcher{response: []byte(`{}`)}
	cfg := DefaultConfig()
	cfg.MaxRequestSize = 8
	transport := NewTransport(disp, cfg, WithLogger(logx.NewDiscardLogger()))

	srv := httptest.NewServer(transport.Mux())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/mcp", "application/json", bytes.NewReader([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestHandlePostAcknowledgesNotificationWithNoContent(t *testing.T) {
	disp := &recordingDispatcher{response: nil, err: nil}
	cfg := DefaultConfig()
	transport := NewTransport(disp, cfg, WithLogger(logx.NewDiscardLogger()))

	srv := httptest.NewServer(transport.Mux())
	defer srv.Close()

	body, _ := json.Marshal(streamableRequest{Message: []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)})
	resp, err := http.Post(srv.URL+"/mcp", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

// TestHandlePostSessionEstablishmentWithNullMessage covers spec.md's E6
// scenario literally: a bare `{"message": null}` POST with no session id
// must allocate one and report an empty pending_messages, never touching
// the dispatcher.
func TestHandlePostSessionEstablishmentWithNullMessage(t *testing.T) {
	disp := &recordingDispatcher{}
	cfg := DefaultConfig()
	transport := NewTransport(disp, cfg, WithLogger(logx.NewDiscardLogger()))

	srv := httptest.NewServer(transport.Mux())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/mcp", "application/json", bytes.NewReader([]byte(`{"message": null}`)))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out correlatedResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.SessionID)
	require.Equal(t, "2025-06-18", out.ProtocolVersion)
	require.NotNil(t, out.PendingMessages)
	require.Empty(t, out.PendingMessages)
	require.Nil(t, disp.gotRaw, "a null message must never reach the dispatcher")
}

// TestHandlePostHonorsProvidedSessionID covers the body's session_id
// field taking priority over a fresh allocation.
func TestHandlePostHonorsProvidedSessionID(t *testing.T) {
	disp := &recordingDispatcher{response: []byte(`{"jsonrpc":"2.0","id":1,"result":{}}`)}
	cfg := DefaultConfig()
	transport := NewTransport(disp, cfg, WithLogger(logx.NewDiscardLogger()))

	srv := httptest.NewServer(transport.Mux())
	defer srv.Close()

	existing := transport.sessions.create()

	body, _ := json.Marshal(streamableRequest{
		SessionID: &existing.id,
		Message:   []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`),
	})
	resp, err := http.Post(srv.URL+"/mcp", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out correlatedResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, existing.id, out.SessionID)
}

func TestSweepLoopUnregistersEvictedSessionsOnTheDispatcher(t *testing.T) {
	disp := &recordingDispatcher{}
	cfg := DefaultConfig()
	cfg.SessionTimeout = time.Millisecond
	transport := NewTransport(disp, cfg, WithLogger(logx.NewDiscardLogger()))

	sess := transport.sessions.create()
	sess.mu.Lock()
	sess.lastActivity = time.Now().Add(-time.Hour)
	sess.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go transport.sweepLoop(ctx, time.Millisecond)

	require.Eventually(t, func() bool {
		for _, id := range disp.unregisteredIDs {
			if id == sess.id {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestRateLimiterRejectsBurstOverflow(t *testing.T) {
	limiter := newPerClientLimiter(1, 1)
	require.True(t, limiter.allow("client-a"))
	require.False(t, limiter.allow("client-a"))
}

func TestMessageQueueDropsOldestWhenFull(t *testing.T) {
	q := newMessageQueue()
	for i := 0; i < maxQueueDepth+10; i++ {
		q.push([]byte(`{}`))
	}
	require.Equal(t, maxQueueDepth, q.len())
	require.Equal(t, 10, q.dropped)
}

func TestLegacyAckRemovesMessage(t *testing.T) {
	q := newMessageQueue()
	q.push([]byte(`{"a":1}`))
	msgs := q.peekUpTo(0)
	require.Len(t, msgs, 1)
	q.ack(msgs[0].MessageID)
	require.Equal(t, 0, q.len())
}
