package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/corvusruntime/mcprt/protocol"
)

// methodSpec is one routing-table entry: does this method require the FSM
// to be Operating, and which dispatcher function answers it. Built once at
// NewServer time so adding a method is a table entry, not a new switch
// case, while still dispatching through one function per method the way
// the teacher's handwritten switch did.
type methodSpec struct {
	requiresOperating bool
	handle            func(s *Server, ctx context.Context, session *Session, req *protocol.Request) (interface{}, error)
}

func (s *Server) buildRoutingTable() map[string]methodSpec {
	return map[string]methodSpec{
		protocol.MethodInitialize:            {requiresOperating: false, handle: (*Server).handleInitialize},
		protocol.MethodShutdown:              {requiresOperating: false, handle: (*Server).handleShutdown},
		protocol.MethodPing:                  {requiresOperating: false, handle: (*Server).handlePingRequest},
		protocol.MethodToolsList:             {requiresOperating: true, handle: (*Server).handleListTools},
		protocol.MethodToolsCall:             {requiresOperating: true, handle: (*Server).handleCallTool},
		protocol.MethodResourcesList:         {requiresOperating: true, handle: (*Server).handleListResources},
		protocol.MethodResourcesRead:         {requiresOperating: true, handle: (*Server).handleReadResource},
		protocol.MethodResourcesTemplatesList: {requiresOperating: true, handle: (*Server).handleListResourceTemplates},
		protocol.MethodResourcesSubscribe:    {requiresOperating: true, handle: (*Server).handleSubscribe},
		protocol.MethodResourcesUnsubscribe:  {requiresOperating: true, handle: (*Server).handleUnsubscribe},
		protocol.MethodPromptsList:           {requiresOperating: true, handle: (*Server).handleListPrompts},
		protocol.MethodPromptsGet:            {requiresOperating: true, handle: (*Server).handleGetPrompt},
		protocol.MethodSamplingCreateMessage: {requiresOperating: true, handle: (*Server).handleCreateMessage},
		protocol.MethodCompletionComplete:    {requiresOperating: true, handle: (*Server).handleComplete},
		protocol.MethodRootsList:             {requiresOperating: true, handle: (*Server).handleListRoots},
		protocol.MethodElicitationRequest:    {requiresOperating: true, handle: (*Server).handleElicit},
		protocol.MethodLoggingSetLevel:       {requiresOperating: false, handle: (*Server).handleSetLevel},
	}
}

// methodsExemptFromCancellationBookkeeping are never registered into the
// cancellation table, per §4.2: initialize, shutdown, and ping run outside
// the per-request id bookkeeping entirely.
var methodsExemptFromCancellationBookkeeping = map[string]struct{}{
	protocol.MethodInitialize: {},
	protocol.MethodShutdown:   {},
	protocol.MethodPing:       {},
}

// dispatch routes one parsed Request to its handler, applying the FSM gate,
// cancellation bookkeeping, and panic recovery spec.md §4.2 requires.
// Returns the value to place in a Response's Result (handler errors are
// returned as error and translated by the caller).
func (s *Server) dispatch(ctx context.Context, session *Session, req *protocol.Request) (result interface{}, err error) {
	spec, ok := s.routes[req.Method]
	if !ok {
		return nil, protocol.NewMethodNotFoundError(req.Method)
	}

	if spec.requiresOperating && !s.lifecycle.requireOperating() {
		return nil, protocol.NewServerNotReadyError(s.lifecycle.current().String())
	}

	_, exempt := methodsExemptFromCancellationBookkeeping[req.Method]
	var cancelFunc context.CancelFunc
	if !exempt {
		if s.cancellation.isRegistered(req.ID) {
			return nil, protocol.NewInvalidRequestError(fmt.Sprintf("duplicate request id: %v", req.ID))
		}
		ctx, cancelFunc = context.WithCancel(ctx)
		s.cancellation.register(req.ID, req.Method, cancelFunc)
		defer s.cancellation.complete(req.ID)
	}

	defer func() {
		if r := recover(); r != nil {
			err = protocol.NewInternalError(fmt.Errorf("handler panic: %v", r))
		}
	}()

	result, err = spec.handle(s, ctx, session, req)
	return result, err
}

// handleNotification dispatches a one-way message. Unknown notification
// methods are silently ignored per JSON-RPC convention (servers MUST NOT
// reply to notifications, including with an error).
func (s *Server) handleNotification(ctx context.Context, session *Session, notif *protocol.Notification) {
	switch notif.Method {
	case protocol.MethodInitialized:
		// idempotent acknowledgement; the transition to Operating already
		// happened when the initialize response was sent.
		return
	case protocol.MethodNotificationsCancelled:
		var params protocol.CancelledParams
		if err := json.Unmarshal(notif.Params, &params); err != nil {
			return
		}
		s.cancellation.handleCancellation(params)
	case protocol.MethodNotificationsProgress:
		s.forwardProgress(session, notif.Params)
	default:
		return
	}
}
