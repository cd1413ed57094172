package server

import (
	"context"
	"sync"
	"time"
)

// pingManager answers ping requests and, when enabled, emits its own
// periodic pings to the peer. It is otherwise stateless: the manager does
// not track outstanding pings itself, since liveness-timeout policy belongs
// to the transport or an embedding monitor.
type pingManager struct {
	mu       sync.Mutex
	interval time.Duration
	cancel   context.CancelFunc
}

func newPingManager() *pingManager {
	return &pingManager{}
}

// handlePing answers a 'ping' request, echoing data if the peer supplied
// any. Pings are accepted in every FSM state, including ShuttingDown.
func (m *pingManager) handlePing(data interface{}) interface{} {
	if data == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}{"data": data}
}

// startSelfPing begins emitting send at each interval until ctx is done or
// stopSelfPing is called. send typically enqueues a 'ping' request onto a
// transport's outbound channel.
func (m *pingManager) startSelfPing(ctx context.Context, interval time.Duration, send func()) {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	pingCtx, cancel := context.WithCancel(ctx)
	m.interval = interval
	m.cancel = cancel
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				send()
			}
		}
	}()
}

func (m *pingManager) stopSelfPing() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}
