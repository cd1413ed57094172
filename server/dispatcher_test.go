package server

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corvusruntime/mcprt/logx"
	"github.com/corvusruntime/mcprt/protocol"
)

func newTestServer() *Server {
	return NewServer("test-server", "0.0.0-test", WithLogger(logx.NewDiscardLogger()))
}

func initializeRequest(id int) []byte {
	params := protocol.InitializeParams{
		ProtocolVersion: protocol.LatestProtocolVersion,
		ClientInfo:      protocol.Implementation{Name: "test-client", Version: "1.0"},
	}
	raw, _ := json.Marshal(params)
	req := protocol.Request{JSONRPC: "2.0", ID: id, Method: protocol.MethodInitialize, Params: raw}
	out, _ := json.Marshal(req)
	return out
}

func decodeResponse(t *testing.T, raw []byte) *protocol.Response {
	t.Helper()
	var resp protocol.Response
	require.NoError(t, json.Unmarshal(raw, &resp))
	return &resp
}

func TestHandleMessageBeforeInitializeRejectsOperatingMethods(t *testing.T) {
	s := newTestServer()
	s.RegisterSession("sess-1")

	req := protocol.Request{JSONRPC: "2.0", ID: 1, Method: protocol.MethodToolsList}
	raw, _ := json.Marshal(req)

	out, err := s.HandleMessage(context.Background(), "sess-1", raw)
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	require.NotNil(t, resp.Error)
	require.Equal(t, protocol.CodeServerNotReady, resp.Error.Code)
}

func TestHandleMessageInitializeNegotiatesLatestVersion(t *testing.T) {
	s := newTestServer()
	s.RegisterSession("sess-1")

	out, err := s.HandleMessage(context.Background(), "sess-1", initializeRequest(1))
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	require.Nil(t, resp.Error)

	resultRaw, _ := json.Marshal(resp.Result)
	var result protocol.InitializeResult
	require.NoError(t, json.Unmarshal(resultRaw, &result))
	require.Equal(t, protocol.LatestProtocolVersion, result.ProtocolVersion)
}

func TestHandleMessageSecondInitializeIsRejected(t *testing.T) {
	s := newTestServer()
	s.RegisterSession("sess-1")

	_, err := s.HandleMessage(context.Background(), "sess-1", initializeRequest(1))
	require.NoError(t, err)

	out, err := s.HandleMessage(context.Background(), "sess-1", initializeRequest(2))
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	require.NotNil(t, resp.Error)
	require.Equal(t, protocol.CodeInvalidRequest, resp.Error.Code)
}

func TestHandleMessageUnsupportedVersionFallsBackToLatest(t *testing.T) {
	s := newTestServer()
	s.RegisterSession("sess-1")

	params := protocol.InitializeParams{ProtocolVersion: "1999-01-01"}
	paramsRaw, _ := json.Marshal(params)
	req := protocol.Request{JSONRPC: "2.0", ID: 1, Method: protocol.MethodInitialize, Params: paramsRaw}
	raw, _ := json.Marshal(req)

	out, err := s.HandleMessage(context.Background(), "sess-1", raw)
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	require.Nil(t, resp.Error)

	resultRaw, _ := json.Marshal(resp.Result)
	var result protocol.InitializeResult
	require.NoError(t, json.Unmarshal(resultRaw, &result))
	require.Equal(t, protocol.LatestProtocolVersion, result.ProtocolVersion)
	require.NotEmpty(t, result.Instructions)
}

func TestHandleMessageAfterInitializeAllowsToolsList(t *testing.T) {
	s := newTestServer()
	s.RegisterSession("sess-1")
	_, err := s.HandleMessage(context.Background(), "sess-1", initializeRequest(1))
	require.NoError(t, err)

	tool := protocol.Tool{
		Name:         "add",
		Description:  "adds",
		OutputSchema: map[string]interface{}{"type": "object"},
	}
	require.NoError(t, s.RegisterTool(tool, func(ctx *Context, args map[string]interface{}) ([]protocol.Content, map[string]interface{}, bool) {
		return nil, nil, false
	}))

	req := protocol.Request{JSONRPC: "2.0", ID: 2, Method: protocol.MethodToolsList}
	raw, _ := json.Marshal(req)
	out, err := s.HandleMessage(context.Background(), "sess-1", raw)
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	require.Nil(t, resp.Error)

	resultRaw, _ := json.Marshal(resp.Result)
	var result protocol.ListToolsResult
	require.NoError(t, json.Unmarshal(resultRaw, &result))
	require.Len(t, result.Tools, 1)
	require.Equal(t, "add", result.Tools[0].Name)
}

func TestHandleMessageCallToolInvokesHandler(t *testing.T) {
	s := newTestServer()
	s.RegisterSession("sess-1")
	_, err := s.HandleMessage(context.Background(), "sess-1", initializeRequest(1))
	require.NoError(t, err)

	tool := protocol.Tool{
		Name:         "echo",
		Description:  "echoes text",
		InputSchema:  echoInputSchema(),
		OutputSchema: map[string]interface{}{"type": "object"},
	}
	require.NoError(t, s.RegisterTool(tool, func(ctx *Context, args map[string]interface{}) ([]protocol.Content, map[string]interface{}, bool) {
		return []protocol.Content{protocol.TextContent{Type: "text", Text: args["text"].(string)}}, nil, false
	}))

	params := protocol.CallToolParams{Name: "echo", Arguments: map[string]interface{}{"text": "hi"}}
	paramsRaw, _ := json.Marshal(params)
	req := protocol.Request{JSONRPC: "2.0", ID: 2, Method: protocol.MethodToolsCall, Params: paramsRaw}
	raw, _ := json.Marshal(req)

	out, err := s.HandleMessage(context.Background(), "sess-1", raw)
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	require.Nil(t, resp.Error)
}

func TestHandleMessageDuplicateRequestIDIsRejected(t *testing.T) {
	s := newTestServer()
	s.RegisterSession("sess-1")
	_, err := s.HandleMessage(context.Background(), "sess-1", initializeRequest(1))
	require.NoError(t, err)

	// Register a long-running tool so the first call's id stays in the
	// cancellation table until its handler returns.
	started := make(chan struct{})
	release := make(chan struct{})
	tool := protocol.Tool{
		Name:         "slow",
		Description:  "blocks until released",
		OutputSchema: map[string]interface{}{"type": "object"},
	}
	require.NoError(t, s.RegisterTool(tool, func(ctx *Context, args map[string]interface{}) ([]protocol.Content, map[string]interface{}, bool) {
		close(started)
		<-release
		return nil, nil, false
	}))

	req := protocol.Request{JSONRPC: "2.0", ID: 2, Method: protocol.MethodToolsCall,
		Params: mustMarshal(protocol.CallToolParams{Name: "slow"})}
	raw, _ := json.Marshal(req)

	done := make(chan []byte, 1)
	go func() {
		out, _ := s.HandleMessage(context.Background(), "sess-1", raw)
		done <- out
	}()
	<-started

	dupOut, err := s.HandleMessage(context.Background(), "sess-1", raw)
	require.NoError(t, err)
	dupResp := decodeResponse(t, dupOut)
	require.NotNil(t, dupResp.Error)
	require.Equal(t, protocol.CodeInvalidRequest, dupResp.Error.Code)

	close(release)
	<-done
}

func TestHandleMessageNotificationProducesNoResponse(t *testing.T) {
	s := newTestServer()
	s.RegisterSession("sess-1")

	notif := protocol.Notification{JSONRPC: "2.0", Method: protocol.MethodInitialized}
	raw, _ := json.Marshal(notif)

	out, err := s.HandleMessage(context.Background(), "sess-1", raw)
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestHandleMessageMalformedJSONReturnsParseError(t *testing.T) {
	s := newTestServer()
	s.RegisterSession("sess-1")

	out, err := s.HandleMessage(context.Background(), "sess-1", []byte("not json"))
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	require.NotNil(t, resp.Error)
	require.Equal(t, protocol.CodeParseError, resp.Error.Code)
}

func TestHandleMessageBatchProcessesEachRequest(t *testing.T) {
	s := newTestServer()
	s.RegisterSession("sess-1")
	_, err := s.HandleMessage(context.Background(), "sess-1", initializeRequest(1))
	require.NoError(t, err)

	req1 := protocol.Request{JSONRPC: "2.0", ID: 2, Method: protocol.MethodPing}
	req2 := protocol.Request{JSONRPC: "2.0", ID: 3, Method: protocol.MethodPing}
	batch := []protocol.Request{req1, req2}
	raw, _ := json.Marshal(batch)

	out, err := s.HandleMessage(context.Background(), "sess-1", raw)
	require.NoError(t, err)
	require.NotNil(t, out)

	var responses []protocol.Response
	require.NoError(t, json.Unmarshal(out, &responses))
	require.Len(t, responses, 2)
}

func TestHandleMessageBatchOfOnlyNotificationsProducesNoOutput(t *testing.T) {
	s := newTestServer()
	s.RegisterSession("sess-1")

	batch := []protocol.Notification{
		{JSONRPC: "2.0", Method: protocol.MethodInitialized},
	}
	raw, _ := json.Marshal(batch)

	out, err := s.HandleMessage(context.Background(), "sess-1", raw)
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestHandleMessageEmptyBatchIsInvalidRequest(t *testing.T) {
	s := newTestServer()
	s.RegisterSession("sess-1")

	out, err := s.HandleMessage(context.Background(), "sess-1", []byte("[]"))
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	require.NotNil(t, resp.Error)
	require.Equal(t, protocol.CodeInvalidRequest, resp.Error.Code)
}

func TestHandleMessagePingIsAllowedBeforeInitialize(t *testing.T) {
	s := newTestServer()
	s.RegisterSession("sess-1")

	req := protocol.Request{JSONRPC: "2.0", ID: 1, Method: protocol.MethodPing}
	raw, _ := json.Marshal(req)

	out, err := s.HandleMessage(context.Background(), "sess-1", raw)
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	require.Nil(t, resp.Error)
}

func TestBroadcastListChangedDeliversToEverySession(t *testing.T) {
	s := newTestServer()
	delivered := map[string][]byte{}
	s.SetOutbound(func(sessionID string, raw []byte) {
		delivered[sessionID] = raw
	})
	s.RegisterSession("sess-1")
	s.RegisterSession("sess-2")

	tool := protocol.Tool{Name: "add", Description: "adds", OutputSchema: map[string]interface{}{"type": "object"}}
	require.NoError(t, s.RegisterTool(tool, noopToolHandler))

	require.Len(t, delivered, 2)
	for _, raw := range delivered {
		var notif protocol.Notification
		require.NoError(t, json.Unmarshal(raw, &notif))
		require.Equal(t, protocol.MethodNotificationsToolsListChanged, notif.Method)
	}
}

func mustMarshal(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
