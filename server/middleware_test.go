package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidationMiddlewareRejectsOversizedPayload(t *testing.T) {
	m := newValidationMiddleware()
	huge := make([]byte, maxPayloadBytes+1)
	err := m.OnIncoming("client-1", huge)
	require.Error(t, err)
}

func TestValidationMiddlewareRejectsWrongJSONRPCVersion(t *testing.T) {
	m := newValidationMiddleware()
	err := m.OnIncoming("client-1", []byte(`{"jsonrpc":"1.0","method":"ping"}`))
	require.Error(t, err)
}

func TestValidationMiddlewareAcceptsWellFormedEnvelope(t *testing.T) {
	m := newValidationMiddleware()
	err := m.OnIncoming("client-1", []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	require.NoError(t, err)
}

func TestValidationMiddlewareRejectsReservedParamKeys(t *testing.T) {
	m := newValidationMiddleware()
	err := m.OnIncoming("client-1", []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"_secret":"x"}}`))
	require.Error(t, err)
}

func TestValidationMiddlewareAllowsUnderscoreMeta(t *testing.T) {
	m := newValidationMiddleware()
	err := m.OnIncoming("client-1", []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"_meta":{"progressToken":"x"}}}`))
	require.NoError(t, err)
}

func TestValidationMiddlewareRejectsDeepNesting(t *testing.T) {
	m := newValidationMiddleware()
	nested := "1"
	for i := 0; i <= maxParamDepth+1; i++ {
		nested = "[" + nested + "]"
	}
	payload := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":` + nested + `}`)
	err := m.OnIncoming("client-1", payload)
	require.Error(t, err)
}

func TestValidationMiddlewareRejectsEmbeddedNullByte(t *testing.T) {
	m := newValidationMiddleware()
	envelope := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]interface{}{"text": "a\x00b"},
	}
	payload, err := json.Marshal(envelope)
	require.NoError(t, err)

	err = m.OnIncoming("client-1", payload)
	require.Error(t, err)
}

func TestValidationMiddlewareLeavesBatchArraysToTheDispatcher(t *testing.T) {
	m := newValidationMiddleware()
	err := m.OnIncoming("client-1", []byte(`[{"jsonrpc":"2.0","id":1,"method":"ping"}]`))
	require.NoError(t, err, "a batch array is not a JSON object; shape checks are deferred to the dispatcher")
}

func TestRateLimitMiddlewareEnforcesPerClientBucket(t *testing.T) {
	m := newRateLimitMiddleware(1, 1)
	require.NoError(t, m.OnIncoming("client-a", nil))
	require.Error(t, m.OnIncoming("client-a", nil), "a second call within the same instant should exceed burst 1")
	require.NoError(t, m.OnIncoming("client-b", nil), "a different client has its own bucket")
}

func TestRequestStartTimesMarkElapsedClear(t *testing.T) {
	r := newRequestStartTimes()
	require.Equal(t, time.Duration(0), r.elapsed("req-1"), "an unmarked id has zero elapsed")

	r.mark("req-1")
	require.Greater(t, r.elapsed("req-1"), time.Duration(-1))

	r.clear("req-1")
	require.Equal(t, time.Duration(0), r.elapsed("req-1"))
}
