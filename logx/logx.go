// Package logx provides the runtime's default structured-logging
// implementation of types.Logger.
package logx

import (
	"log"
	"os"
	"sync"

	"github.com/corvusruntime/mcprt/protocol"
	"github.com/corvusruntime/mcprt/types"
)

// severity maps each level to a number where lower is more severe
// (emergency=0 ... debug=7), matching protocol.LoggingLevel's own ordering.
var severity = map[protocol.LoggingLevel]int{
	protocol.LogLevelEmergency: 0,
	protocol.LogLevelAlert:     1,
	protocol.LogLevelCritical:  2,
	protocol.LogLevelError:     3,
	protocol.LogLevelWarning:   4,
	protocol.LogLevelNotice:    5,
	protocol.LogLevelInfo:      6,
	protocol.LogLevelDebug:     7,
}

// DefaultLogger writes leveled, prefixed lines to an arbitrary io.Writer
// (stderr by default) using the standard library's log.Logger.
type DefaultLogger struct {
	logger *log.Logger
	mu     sync.Mutex
	level  protocol.LoggingLevel
}

// NewDefaultLogger creates a logger writing to stderr at info level.
func NewDefaultLogger() *DefaultLogger {
	return &DefaultLogger{
		logger: log.New(os.Stderr, "[mcprt] ", log.LstdFlags|log.Lmsgprefix),
		level:  protocol.LogLevelInfo,
	}
}

func (l *DefaultLogger) enabled(msgLevel protocol.LoggingLevel) bool {
	l.mu.Lock()
	cur := l.level
	l.mu.Unlock()
	return severity[msgLevel] <= severity[cur]
}

func (l *DefaultLogger) emit(tag, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Printf(tag+": "+format, args...)
}

func (l *DefaultLogger) Debug(format string, args ...interface{}) {
	if l.enabled(protocol.LogLevelDebug) {
		l.emit("DEBUG", format, args...)
	}
}

func (l *DefaultLogger) Info(format string, args ...interface{}) {
	if l.enabled(protocol.LogLevelInfo) {
		l.emit("INFO", format, args...)
	}
}

func (l *DefaultLogger) Notice(format string, args ...interface{}) {
	if l.enabled(protocol.LogLevelNotice) {
		l.emit("NOTICE", format, args...)
	}
}

func (l *DefaultLogger) Warn(format string, args ...interface{}) {
	if l.enabled(protocol.LogLevelWarning) {
		l.emit("WARN", format, args...)
	}
}

func (l *DefaultLogger) Error(format string, args ...interface{}) {
	// Errors and above always print regardless of configured level.
	l.emit("ERROR", format, args...)
}

// SetLevel changes the minimum severity this logger emits.
func (l *DefaultLogger) SetLevel(level protocol.LoggingLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Level returns the currently configured minimum severity.
func (l *DefaultLogger) Level() protocol.LoggingLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

var _ types.Logger = (*DefaultLogger)(nil)

// discardLogger is a logger that drops everything; useful in tests.
type discardLogger struct{}

func (discardLogger) Debug(string, ...interface{})                {}
func (discardLogger) Info(string, ...interface{})                 {}
func (discardLogger) Notice(string, ...interface{})               {}
func (discardLogger) Warn(string, ...interface{})                 {}
func (discardLogger) Error(string, ...interface{})                {}
func (discardLogger) SetLevel(protocol.LoggingLevel)               {}
func (discardLogger) Level() protocol.LoggingLevel                { return protocol.LogLevelDebug }

// NewDiscardLogger returns a Logger that does nothing, for tests that don't
// care about log output.
func NewDiscardLogger() types.Logger { return discardLogger{} }
