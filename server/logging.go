package server

import (
	"sync"

	"github.com/corvusruntime/mcprt/protocol"
	"github.com/corvusruntime/mcprt/types"
)

// loggingConfig is the process-wide logging state §4.10 describes: a single
// current_level shared by every session, optionally mutable by
// logging/setLevel.
type loggingConfig struct {
	mu                sync.RWMutex
	logger            types.Logger
	allowLevelChanges bool
}

func newLoggingConfig(logger types.Logger, allowLevelChanges bool) *loggingConfig {
	return &loggingConfig{logger: logger, allowLevelChanges: allowLevelChanges}
}

func (c *loggingConfig) currentLevel() protocol.LoggingLevel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger.Level()
}

// setLevel applies a logging/setLevel request. Returns an MCPError if level
// changes are disabled or the level isn't one of the eight known values.
func (c *loggingConfig) setLevel(level protocol.LoggingLevel) error {
	if !protocol.IsValidLoggingLevel(level) {
		return protocol.NewInvalidParamsError("unknown logging level: " + string(level))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.allowLevelChanges {
		return protocol.NewInvalidParamsError("logging level changes are disabled on this server")
	}
	c.logger.SetLevel(level)
	return nil
}
