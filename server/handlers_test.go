package server

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corvusruntime/mcprt/protocol"
)

func initializedServer(t *testing.T, sessionID string) *Server {
	t.Helper()
	s := newTestServer()
	s.RegisterSession(sessionID)
	_, err := s.HandleMessage(context.Background(), sessionID, initializeRequest(1))
	require.NoError(t, err)
	return s
}

func readResourceRequest(id int, uri string) []byte {
	params, _ := json.Marshal(protocol.ReadResourceParams{URI: uri})
	req := protocol.Request{JSONRPC: "2.0", ID: id, Method: protocol.MethodResourcesRead, Params: params}
	out, _ := json.Marshal(req)
	return out
}

func TestHandleReadResourceRejectsDangerousURI(t *testing.T) {
	s := initializedServer(t, "sess-1")

	out, err := s.HandleMessage(context.Background(), "sess-1", readResourceRequest(2, "javascript:alert(1)"))
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	require.NotNil(t, resp.Error)
	require.Equal(t, protocol.CodeInvalidParams, resp.Error.Code)
}

func TestHandleReadResourceRejectsTraversal(t *testing.T) {
	s := initializedServer(t, "sess-1")

	out, err := s.HandleMessage(context.Background(), "sess-1", readResourceRequest(2, "file:///data/../../etc/passwd"))
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	require.NotNil(t, resp.Error)
	require.Equal(t, protocol.CodeInvalidParams, resp.Error.Code)
}

func TestHandleReadResourceAllowsRegisteredResource(t *testing.T) {
	s := initializedServer(t, "sess-1")
	err := s.RegisterResource(protocol.Resource{URI: "file:///notes.txt", Name: "notes"}, func(ctx *Context, uri string) ([]protocol.ResourceContents, error) {
		return []protocol.ResourceContents{{URI: uri, Text: "hello"}}, nil
	})
	require.NoError(t, err)

	out, herr := s.HandleMessage(context.Background(), "sess-1", readResourceRequest(2, "file:///notes.txt"))
	require.NoError(t, herr)
	resp := decodeResponse(t, out)
	require.Nil(t, resp.Error)
}

func subscribeRequest(id int, uri string) []byte {
	params, _ := json.Marshal(protocol.SubscribeParams{URI: uri})
	req := protocol.Request{JSONRPC: "2.0", ID: id, Method: protocol.MethodResourcesSubscribe, Params: params}
	out, _ := json.Marshal(req)
	return out
}

func TestHandleSubscribeRejectsDangerousURI(t *testing.T) {
	s := initializedServer(t, "sess-1")

	out, err := s.HandleMessage(context.Background(), "sess-1", subscribeRequest(2, "data:text/html,<script>x</script>"))
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	require.NotNil(t, resp.Error)
	require.Equal(t, protocol.CodeInvalidParams, resp.Error.Code)
}
