package server

import (
	"context"
	"encoding/json"

	"github.com/corvusruntime/mcprt/protocol"
	"github.com/corvusruntime/mcprt/schema"
)

func (s *Server) handleInitialize(ctx context.Context, session *Session, req *protocol.Request) (interface{}, error) {
	if !s.lifecycle.beginInitialize() {
		return nil, protocol.NewInvalidRequestError("server already initialized")
	}

	var params protocol.InitializeParams
	if err := protocol.UnmarshalParams(req.Params, &params); err != nil {
		return nil, protocol.NewInvalidParamsError(err.Error())
	}

	negotiated := params.ProtocolVersion
	instructions := s.instructions
	if !protocol.IsSupportedVersion(negotiated) {
		negotiated = protocol.LatestProtocolVersion
		instructions = "unsupported protocolVersion requested; server negotiated " +
			protocol.LatestProtocolVersion + ". Supported versions: " + joinVersions()
	}

	session.ClientInfo = params.ClientInfo
	session.ClientCaps = params.Capabilities
	session.NegotiatedVersion = negotiated

	s.lifecycle.completeInitialize()

	return protocol.InitializeResult{
		ProtocolVersion: negotiated,
		Capabilities:    s.capabilities,
		ServerInfo:      s.serverInfo,
		Instructions:    instructions,
	}, nil
}

func joinVersions() string {
	out := ""
	for i, v := range protocol.SupportedProtocolVersions {
		if i > 0 {
			out += ", "
		}
		out += v
	}
	return out
}

func (s *Server) handleShutdown(ctx context.Context, session *Session, req *protocol.Request) (interface{}, error) {
	s.beginShutdown()
	return map[string]interface{}{}, nil
}

func (s *Server) handlePingRequest(ctx context.Context, session *Session, req *protocol.Request) (interface{}, error) {
	var params struct {
		Data interface{} `json:"data"`
	}
	if len(req.Params) > 0 {
		_ = json.Unmarshal(req.Params, &params)
	}
	return s.ping.handlePing(params.Data), nil
}

func (s *Server) handleListTools(ctx context.Context, session *Session, req *protocol.Request) (interface{}, error) {
	return protocol.ListToolsResult{Tools: s.registry.listTools()}, nil
}

func (s *Server) handleCallTool(ctx context.Context, session *Session, req *protocol.Request) (interface{}, error) {
	var params protocol.CallToolParams
	if err := protocol.UnmarshalParams(req.Params, &params); err != nil {
		return nil, protocol.NewInvalidParamsError(err.Error())
	}

	t, err := s.registry.validateToolCall(params.Name, params.Arguments)
	if err != nil {
		return nil, err
	}

	hctx := newHandlerContext(ctx, s, session, req.ID, req.Method)
	content, structuredContent, isError := t.handler(hctx, params.Arguments)
	return protocol.CallToolResult{
		Content:           content,
		StructuredContent: structuredContent,
		IsError:           isError,
	}, nil
}

func (s *Server) handleListResources(ctx context.Context, session *Session, req *protocol.Request) (interface{}, error) {
	return protocol.ListResourcesResult{Resources: s.registry.listResources()}, nil
}

func (s *Server) handleListResourceTemplates(ctx context.Context, session *Session, req *protocol.Request) (interface{}, error) {
	return protocol.ListResourceTemplatesResult{ResourceTemplates: s.registry.listTemplates()}, nil
}

func (s *Server) handleReadResource(ctx context.Context, session *Session, req *protocol.Request) (interface{}, error) {
	var params protocol.ReadResourceParams
	if err := protocol.UnmarshalParams(req.Params, &params); err != nil {
		return nil, protocol.NewInvalidParamsError(err.Error())
	}
	if err := schema.ValidateResourceURI(params.URI); err != nil {
		return nil, protocol.NewInvalidParamsError(err.Error())
	}

	hctx := newHandlerContext(ctx, s, session, req.ID, req.Method)

	if res, ok := s.registry.resource(params.URI); ok {
		contents, err := res.reader(hctx, params.URI)
		if err != nil {
			return nil, protocol.AsMCPError(err)
		}
		return protocol.ReadResourceResult{Contents: contents}, nil
	}

	for uriTemplate, tmpl := range s.registry.templatesSnapshot() {
		if resolved, ok := matchURITemplate(uriTemplate, params.URI); ok {
			contents, err := tmpl.reader(hctx, resolved)
			if err != nil {
				return nil, protocol.AsMCPError(err)
			}
			return protocol.ReadResourceResult{Contents: contents}, nil
		}
	}

	return nil, protocol.NewNotFoundError("resource not found: " + params.URI)
}

func (s *Server) handleSubscribe(ctx context.Context, session *Session, req *protocol.Request) (interface{}, error) {
	var params protocol.SubscribeParams
	if err := protocol.UnmarshalParams(req.Params, &params); err != nil {
		return nil, protocol.NewInvalidParamsError(err.Error())
	}
	if err := schema.ValidateResourceURI(params.URI); err != nil {
		return nil, protocol.NewInvalidParamsError(err.Error())
	}
	s.subscriptions.subscribe(session.ID, params.URI)
	return map[string]interface{}{}, nil
}

func (s *Server) handleUnsubscribe(ctx context.Context, session *Session, req *protocol.Request) (interface{}, error) {
	var params protocol.SubscribeParams
	if err := protocol.UnmarshalParams(req.Params, &params); err != nil {
		return nil, protocol.NewInvalidParamsError(err.Error())
	}
	if err := schema.ValidateResourceURI(params.URI); err != nil {
		return nil, protocol.NewInvalidParamsError(err.Error())
	}
	s.subscriptions.unsubscribe(session.ID, params.URI)
	return map[string]interface{}{}, nil
}

func (s *Server) handleListPrompts(ctx context.Context, session *Session, req *protocol.Request) (interface{}, error) {
	return protocol.ListPromptsResult{Prompts: s.registry.listPrompts()}, nil
}

func (s *Server) handleGetPrompt(ctx context.Context, session *Session, req *protocol.Request) (interface{}, error) {
	var params protocol.GetPromptParams
	if err := protocol.UnmarshalParams(req.Params, &params); err != nil {
		return nil, protocol.NewInvalidParamsError(err.Error())
	}
	p, ok := s.registry.prompt(params.Name)
	if !ok {
		return nil, protocol.NewNotFoundError("prompt not found: " + params.Name)
	}
	hctx := newHandlerContext(ctx, s, session, req.ID, req.Method)
	result, err := p.renderer(hctx, params.Arguments)
	if err != nil {
		return nil, protocol.AsMCPError(err)
	}
	return result, nil
}

// handleCreateMessage, handleListRoots and handleElicit answer requests for
// the three client-served capabilities (sampling, roots, elicitation).
// Unlike tools/resources/prompts, these are ordinarily initiated by a
// server toward its peer; a locally registered provider function lets an
// embedding application supply the behavior without this runtime needing a
// full duplex correlation table over the wire.

func (s *Server) handleCreateMessage(ctx context.Context, session *Session, req *protocol.Request) (interface{}, error) {
	if s.samplingProvider == nil {
		return nil, protocol.NewMethodNotFoundError(req.Method)
	}
	var params protocol.CreateMessageParams
	if err := protocol.UnmarshalParams(req.Params, &params); err != nil {
		return nil, protocol.NewInvalidParamsError(err.Error())
	}
	result, err := s.samplingProvider(ctx, params)
	if err != nil {
		return nil, protocol.AsMCPError(err)
	}
	return result, nil
}

func (s *Server) handleComplete(ctx context.Context, session *Session, req *protocol.Request) (interface{}, error) {
	if s.completionProvider == nil {
		return nil, protocol.NewMethodNotFoundError(req.Method)
	}
	var params protocol.CompleteParams
	if err := protocol.UnmarshalParams(req.Params, &params); err != nil {
		return nil, protocol.NewInvalidParamsError(err.Error())
	}
	result, err := s.completionProvider(ctx, params)
	if err != nil {
		return nil, protocol.AsMCPError(err)
	}
	return result, nil
}

func (s *Server) handleListRoots(ctx context.Context, session *Session, req *protocol.Request) (interface{}, error) {
	if s.rootsProvider == nil {
		return nil, protocol.NewMethodNotFoundError(req.Method)
	}
	result, err := s.rootsProvider(ctx)
	if err != nil {
		return nil, protocol.AsMCPError(err)
	}
	return result, nil
}

func (s *Server) handleElicit(ctx context.Context, session *Session, req *protocol.Request) (interface{}, error) {
	if s.elicitationProvider == nil {
		return nil, protocol.NewMethodNotFoundError(req.Method)
	}
	var params protocol.ElicitRequestParams
	if err := protocol.UnmarshalParams(req.Params, &params); err != nil {
		return nil, protocol.NewInvalidParamsError(err.Error())
	}
	result, err := s.elicitationProvider(ctx, params)
	if err != nil {
		return nil, protocol.AsMCPError(err)
	}
	return result, nil
}

func (s *Server) handleSetLevel(ctx context.Context, session *Session, req *protocol.Request) (interface{}, error) {
	var params protocol.SetLevelParams
	if err := protocol.UnmarshalParams(req.Params, &params); err != nil {
		return nil, protocol.NewInvalidParamsError(err.Error())
	}
	if err := s.logging.setLevel(params.Level); err != nil {
		return nil, err
	}
	return map[string]interface{}{}, nil
}
