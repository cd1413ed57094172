package server

import (
	"context"
	"encoding/json"

	"github.com/corvusruntime/mcprt/logx"
	"github.com/corvusruntime/mcprt/protocol"
	"github.com/corvusruntime/mcprt/schema"
	"github.com/corvusruntime/mcprt/types"
)

// SamplingProviderFunc answers a sampling/createMessage request on behalf
// of the connected peer.
type SamplingProviderFunc func(ctx context.Context, params protocol.CreateMessageParams) (*protocol.CreateMessageResult, error)

// CompletionProviderFunc answers a completion/complete request for a
// prompt or resource argument.
type CompletionProviderFunc func(ctx context.Context, params protocol.CompleteParams) (*protocol.CompleteResult, error)

// RootsProviderFunc answers a roots/list request.
type RootsProviderFunc func(ctx context.Context) (*protocol.ListRootsResult, error)

// ElicitationProviderFunc answers an elicitation/request.
type ElicitationProviderFunc func(ctx context.Context, params protocol.ElicitRequestParams) (*protocol.ElicitResult, error)

// ProgressObserverFunc receives a forwarded notifications/progress payload.
type ProgressObserverFunc func(session *Session, progress protocol.ProgressParams)

// Server is the process-wide MCP runtime: one lifecycle FSM, one set of
// registries, shared by every connected Session regardless of which
// transport carries it. Mirrors the teacher's functional-options
// construction (NewServer(name string, opts ...ServerOption) *Server) with
// the single Server/serverImpl split collapsed into one coherent type.
type Server struct {
	serverInfo   protocol.Implementation
	capabilities protocol.ServerCapabilities
	instructions string

	lifecycle     *lifecycle
	registry      *registry
	cancellation  *cancellationManager
	subscriptions *subscriptionManager
	ping          *pingManager
	logging       *loggingConfig
	sessions      *sessionStore
	timing        *requestStartTimes
	middlewares   []Middleware
	routes        map[string]methodSpec

	samplingProvider    SamplingProviderFunc
	completionProvider  CompletionProviderFunc
	rootsProvider       RootsProviderFunc
	elicitationProvider ElicitationProviderFunc
	progressObserver    ProgressObserverFunc

	// outbound delivers a notification or out-of-band response to a
	// session's transport. STDIO has exactly one session and ignores the
	// id; Streamable HTTP looks the session up by id and enqueues onto its
	// message queue.
	outbound func(sessionID string, raw []byte)
}

// ServerOption configures a Server at construction time, mirroring the
// teacher's ServerOption func(*Server) pattern.
type ServerOption func(*Server)

func WithLogger(logger types.Logger) ServerOption {
	return func(s *Server) { s.logging.logger = logger }
}

func WithInstructions(instructions string) ServerOption {
	return func(s *Server) { s.instructions = instructions }
}

func WithAllowLevelChanges(allow bool) ServerOption {
	return func(s *Server) { s.logging.allowLevelChanges = allow }
}

func WithToolCapabilities(listChanged bool) ServerOption {
	return func(s *Server) {
		s.capabilities.Tools = &protocol.ListChangedCapability{ListChanged: listChanged}
	}
}

func WithResourceCapabilities(subscribe, listChanged bool) ServerOption {
	return func(s *Server) {
		s.capabilities.Resources = &protocol.ResourcesCapability{Subscribe: subscribe, ListChanged: listChanged}
	}
}

func WithPromptCapabilities(listChanged bool) ServerOption {
	return func(s *Server) {
		s.capabilities.Prompts = &protocol.ListChangedCapability{ListChanged: listChanged}
	}
}

func WithCompletionsCapability() ServerOption {
	return func(s *Server) { s.capabilities.Completions = &struct{}{} }
}

func WithOutbound(outbound func(sessionID string, raw []byte)) ServerOption {
	return func(s *Server) { s.outbound = outbound }
}

// SetOutbound installs the outbound delivery callback after construction,
// for transports (like httpmcp.Transport) whose own constructor needs a
// Dispatcher that isn't available until the Server already exists.
func (s *Server) SetOutbound(outbound func(sessionID string, raw []byte)) {
	s.outbound = outbound
}

func WithSamplingProvider(fn SamplingProviderFunc) ServerOption {
	return func(s *Server) { s.samplingProvider = fn }
}

func WithCompletionProvider(fn CompletionProviderFunc) ServerOption {
	return func(s *Server) { s.completionProvider = fn }
}

func WithRootsProvider(fn RootsProviderFunc) ServerOption {
	return func(s *Server) { s.rootsProvider = fn }
}

func WithElicitationProvider(fn ElicitationProviderFunc) ServerOption {
	return func(s *Server) { s.elicitationProvider = fn }
}

func WithProgressObserver(fn ProgressObserverFunc) ServerOption {
	return func(s *Server) { s.progressObserver = fn }
}

// WithRateLimit attaches a per-client token-bucket rate limiter to the
// middleware pipeline. It is appended after the default logging, validation
// and progress-timing middlewares, so it runs after validation. Off by default since
// eventsPerSecond/burst have no sane one-size-fits-all default; callers
// that want the pipeline's fourth member (spec.md §4.9) turn it on
// explicitly.
func WithRateLimit(eventsPerSecond float64, burst int) ServerOption {
	return func(s *Server) {
		s.middlewares = append(s.middlewares, newRateLimitMiddleware(eventsPerSecond, burst))
	}
}

// NewServer builds a Server advertising the given name/version, with tools,
// resources, prompts, and logging capabilities on by default (matching the
// teacher's NewServer defaults), then applies opts.
func NewServer(name, version string, opts ...ServerOption) *Server {
	s := &Server{
		serverInfo: protocol.Implementation{Name: name, Version: version},
		capabilities: protocol.ServerCapabilities{
			Logging:   &struct{}{},
			Tools:     &protocol.ListChangedCapability{ListChanged: true},
			Resources: &protocol.ResourcesCapability{Subscribe: true, ListChanged: true},
			Prompts:   &protocol.ListChangedCapability{ListChanged: true},
		},
		lifecycle:     newLifecycle(),
		cancellation:  newCancellationManager(),
		subscriptions: newSubscriptionManager(),
		ping:          newPingManager(),
		sessions:      newSessionStore(),
		timing:        newRequestStartTimes(),
		logging:       newLoggingConfig(logx.NewDefaultLogger(), true),
	}
	s.registry = newRegistry(schema.NewValidator(), s.logging)
	s.routes = s.buildRoutingTable()
	s.middlewares = []Middleware{
		newLoggingMiddleware(s.logging),
		newValidationMiddleware(),
		newProgressTimingMiddleware(),
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterTool exposes a tool by name, rejecting the registration per the
// RegisterError reasons enumerated in errors.go.
func (s *Server) RegisterTool(tool protocol.Tool, handler ToolHandlerFunc) error {
	if err := s.registry.registerTool(tool, handler); err != nil {
		return err
	}
	s.broadcastListChanged(protocol.MethodNotificationsToolsListChanged)
	return nil
}

func (s *Server) UnregisterTool(name string) bool {
	ok := s.registry.removeTool(name)
	if ok {
		s.broadcastListChanged(protocol.MethodNotificationsToolsListChanged)
	}
	return ok
}

// RegisterResource exposes a static, fully-qualified resource URI.
func (s *Server) RegisterResource(resource protocol.Resource, reader ResourceReaderFunc) error {
	if err := s.registry.registerResource(resource, reader); err != nil {
		return err
	}
	s.broadcastListChanged(protocol.MethodNotificationsResourcesListChanged)
	return nil
}

// RegisterResourceTemplate exposes a parameterized family of resources
// under a {var}-bearing URI pattern.
func (s *Server) RegisterResourceTemplate(tmpl protocol.ResourceTemplate, reader ResourceReaderFunc) error {
	return s.registry.registerTemplate(tmpl, reader)
}

func (s *Server) UnregisterResource(uri string) bool {
	ok := s.registry.removeResource(uri)
	if ok {
		s.broadcastListChanged(protocol.MethodNotificationsResourcesListChanged)
	}
	return ok
}

// RegisterPrompt exposes a prompt template.
func (s *Server) RegisterPrompt(prompt protocol.Prompt, renderer PromptRendererFunc) error {
	if err := s.registry.registerPrompt(prompt, renderer); err != nil {
		return err
	}
	s.broadcastListChanged(protocol.MethodNotificationsPromptsListChanged)
	return nil
}

func (s *Server) UnregisterPrompt(name string) bool {
	ok := s.registry.removePrompt(name)
	if ok {
		s.broadcastListChanged(protocol.MethodNotificationsPromptsListChanged)
	}
	return ok
}

// RegisterSession creates and tracks a new Session, called by a transport
// when a peer connects (or, for STDIO, once at startup).
func (s *Server) RegisterSession(id string) *Session {
	sess := newSession(id)
	s.sessions.put(sess)
	return sess
}

func (s *Server) UnregisterSession(id string) {
	s.sessions.remove(id)
	s.subscriptions.removeSession(id)
}

func (s *Server) Session(id string) (*Session, bool) {
	return s.sessions.get(id)
}

func (s *Server) beginShutdown() {
	s.lifecycle.beginShutdown()
}

// CompleteShutdown moves the FSM to its terminal state. Called by the
// embedding process once outstanding work has drained.
func (s *Server) CompleteShutdown() {
	s.lifecycle.completeShutdown()
}

func (s *Server) broadcastListChanged(method string) {
	if s.outbound == nil {
		return
	}
	notif, err := protocol.NewNotification(method, nil)
	if err != nil {
		return
	}
	raw, err := json.Marshal(notif)
	if err != nil {
		return
	}
	for _, sess := range s.sessions.all() {
		s.outbound(sess.ID, raw)
	}
}

// notifyResourceUpdated fans a notifications/resources/updated out to every
// session subscribed to uri.
func (s *Server) notifyResourceUpdated(uri string) {
	if s.outbound == nil {
		return
	}
	notif, err := protocol.NewNotification(protocol.MethodNotificationsResourcesUpdated, protocol.ResourceUpdatedParams{URI: uri})
	if err != nil {
		return
	}
	raw, err := json.Marshal(notif)
	if err != nil {
		return
	}
	for _, id := range s.subscriptions.subscribers(uri) {
		s.outbound(id, raw)
	}
}

func (s *Server) forwardProgress(session *Session, raw json.RawMessage) {
	if s.progressObserver == nil {
		return
	}
	var params protocol.ProgressParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return
	}
	s.progressObserver(session, params)
}

// HandleMessage is the transport-facing entry point: decode one JSON-RPC
// envelope (or a batch array of them), route it, and return the bytes of
// the response (nil for a pure-notification message, matching the
// teacher's HandleMessage batch-vs-single split in server/server.go).
func (s *Server) HandleMessage(ctx context.Context, sessionID string, raw []byte) ([]byte, error) {
	session, ok := s.sessions.get(sessionID)
	if !ok {
		session = s.RegisterSession(sessionID)
	}
	session.touch()

	for _, mw := range s.middlewares {
		if err := mw.OnIncoming(sessionID, raw); err != nil {
			me := protocol.AsMCPError(err)
			resp := protocol.NewErrorResponse(nil, me.Code, me.Message, me.Data)
			return json.Marshal(resp)
		}
	}

	trimmed := firstNonSpace(raw)
	var out []byte
	var err error
	if trimmed == '[' {
		out, err = s.handleBatch(ctx, session, raw)
	} else {
		out, err = s.handleSingle(ctx, session, raw)
	}
	if err != nil || out == nil {
		return out, err
	}
	for _, mw := range s.middlewares {
		out = mw.OnOutgoing(sessionID, out)
	}
	return out, nil
}

func firstNonSpace(raw []byte) byte {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return b
		}
	}
	return 0
}

func (s *Server) handleBatch(ctx context.Context, session *Session, raw []byte) ([]byte, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		resp := protocol.NewErrorResponse(nil, protocol.CodeParseError, "invalid batch payload", nil)
		return json.Marshal(resp)
	}
	if len(items) == 0 {
		resp := protocol.NewErrorResponse(nil, protocol.CodeInvalidRequest, "empty batch", nil)
		return json.Marshal(resp)
	}

	responses := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		out, err := s.handleSingle(ctx, session, item)
		if err != nil || out == nil {
			continue
		}
		responses = append(responses, out)
	}
	if len(responses) == 0 {
		return nil, nil
	}
	return json.Marshal(responses)
}

func (s *Server) handleSingle(ctx context.Context, session *Session, raw []byte) ([]byte, error) {
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		resp := protocol.NewErrorResponse(nil, protocol.CodeParseError, "invalid JSON", nil)
		return json.Marshal(resp)
	}

	switch env.Classify() {
	case protocol.KindRequest:
		req, err := env.AsRequest()
		if err != nil {
			resp := protocol.NewErrorResponse(nil, protocol.CodeInvalidRequest, err.Error(), nil)
			return json.Marshal(resp)
		}
		session.beginRequest()
		defer session.endRequest()
		s.timing.mark(req.ID)
		defer s.timing.clear(req.ID)

		result, err := s.dispatch(ctx, session, req)
		var resp *protocol.Response
		if err != nil {
			me := protocol.AsMCPError(err)
			resp = protocol.NewErrorResponse(req.ID, me.Code, me.Message, me.Data)
		} else {
			resp = protocol.NewSuccessResponse(req.ID, result)
		}
		return json.Marshal(resp)

	case protocol.KindNotification:
		notif := env.AsNotification()
		s.handleNotification(ctx, session, notif)
		return nil, nil

	default:
		resp := protocol.NewErrorResponse(nil, protocol.CodeInvalidRequest, "malformed envelope", nil)
		return json.Marshal(resp)
	}
}

// AsMessageHandler binds sessionID and returns a types.MessageHandler, for
// transports (like STDIO) that only ever drive a single implicit session.
func (s *Server) AsMessageHandler(sessionID string) types.MessageHandler {
	return func(ctx context.Context, message []byte) ([]byte, error) {
		return s.HandleMessage(ctx, sessionID, message)
	}
}
