package server

import (
	"context"

	"github.com/mitchellh/mapstructure"

	"github.com/corvusruntime/mcprt/types"
)

// Context is the request-scoped value threaded through every tool handler,
// resource reader, and prompt renderer. It wraps a context.Context (for
// deadline/cancellation propagation) with the bookkeeping a handler needs:
// which session issued the request, a logger, and a way to poll cooperative
// cancellation without inspecting ctx.Err() directly.
type Context struct {
	ctx       context.Context
	RequestID interface{}
	Method    string
	Session   *Session
	Logger    types.Logger

	server *Server
}

func newHandlerContext(ctx context.Context, server *Server, session *Session, requestID interface{}, method string) *Context {
	return &Context{
		ctx:       ctx,
		RequestID: requestID,
		Method:    method,
		Session:   session,
		Logger:    server.logging.logger,
		server:    server,
	}
}

// Done mirrors context.Context.Done, so a handler can select on it alongside
// its own work.
func (c *Context) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Cancelled is the cooperative cancellation poll a long-running handler
// calls between units of work. The runtime never force-aborts a handler;
// it only flips this flag and cancels the derived context.
func (c *Context) Cancelled() bool {
	return c.server.cancellation.isCancelled(c.RequestID)
}

// Value exposes the underlying context.Context's Value lookup.
func (c *Context) Value(key interface{}) interface{} {
	return c.ctx.Value(key)
}

// NotifyResourceUpdated enqueues a resources/updated notification to every
// session subscribed to uri. Handlers call this after a write that changes
// a resource's contents.
func (c *Context) NotifyResourceUpdated(uri string) {
	c.server.notifyResourceUpdated(uri)
}

// DecodeArguments maps already schema-validated tool arguments onto a
// handler-declared Go struct, so a handler can opt into typed arguments
// instead of walking the raw map[string]interface{} by hand. Mirrors the
// teacher's reflection-based argument binding in registry.go, replacing its
// bespoke reflect.Value conversion with mapstructure's decoder.
func (c *Context) DecodeArguments(arguments map[string]interface{}, target interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(arguments)
}
