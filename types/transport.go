package types

import "context"

// MessageHandler processes one inbound envelope and returns the bytes of a
// response (nil for a notification, which has none).
type MessageHandler func(ctx context.Context, message []byte) ([]byte, error)

// Transport abstracts the wire mechanism carrying JSON-RPC envelopes between
// peer and server. The STDIO transport implements it, driving its own read
// loop and calling the installed MessageHandler per envelope. The Streamable
// HTTP transport (httpmcp) has its own Start/Deliver API and does not.
type Transport interface {
	// Start begins accepting/reading, invoking handler for every envelope.
	Start(ctx context.Context, handler MessageHandler) error

	// Send delivers an out-of-band envelope (a notification or a response
	// to a request that isn't being answered inline) to the peer.
	Send(ctx context.Context, message []byte) error

	// Close shuts the transport down, unblocking Start.
	Close() error
}
