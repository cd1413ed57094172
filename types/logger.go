// Package types defines the core interfaces shared across the runtime:
// logging and transports.
package types

import "github.com/corvusruntime/mcprt/protocol"

// Logger is the server-wide structured logger interface. Implementations
// live in logx; handlers and transports depend only on this interface so
// the concrete logger can be swapped without touching call sites.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Notice(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})

	// SetLevel changes the minimum level this logger emits.
	SetLevel(level protocol.LoggingLevel)
	// Level returns the currently configured minimum level.
	Level() protocol.LoggingLevel
}
