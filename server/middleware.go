package server

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/corvusruntime/mcprt/protocol"
	"github.com/corvusruntime/mcprt/schema"
)

const maxParamDepth = 32
const maxPayloadBytes = 1 << 20 // 1 MiB

// Middleware intercepts every envelope on its way in and every response
// HandleMessage returns on its way out. Notifications sent through the
// outbound callback do not pass through it. Middlewares compose into an
// ordered slice the way ServerOptions compose a Server, and run in order.
type Middleware interface {
	// OnIncoming inspects or rejects a raw envelope before dispatch. A
	// non-nil error short-circuits dispatch and becomes the response.
	OnIncoming(clientID string, raw []byte) error
	// OnOutgoing inspects or annotates an outbound message before it
	// reaches the transport.
	OnOutgoing(clientID string, raw []byte) []byte
}

// loggingMiddleware logs one line per envelope at debug level. It holds the
// loggingConfig rather than a bare Logger so a later WithLogger option (or
// a logging/setLevel call) is reflected without rebuilding the pipeline.
type loggingMiddleware struct {
	config *loggingConfig
}

func newLoggingMiddleware(config *loggingConfig) *loggingMiddleware {
	return &loggingMiddleware{config: config}
}

func (m *loggingMiddleware) OnIncoming(clientID string, raw []byte) error {
	m.config.logger.Debug("recv client=%s bytes=%d", clientID, len(raw))
	return nil
}

func (m *loggingMiddleware) OnOutgoing(clientID string, raw []byte) []byte {
	m.config.logger.Debug("send client=%s bytes=%d", clientID, len(raw))
	return raw
}

// rateLimitMiddleware enforces a token bucket per client identifier,
// grounded on golang.org/x/time/rate's limiter-per-key pattern.
type rateLimitMiddleware struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newRateLimitMiddleware(eventsPerSecond float64, burst int) *rateLimitMiddleware {
	return &rateLimitMiddleware{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(eventsPerSecond),
		burst:    burst,
	}
}

func (m *rateLimitMiddleware) limiterFor(clientID string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.limiters[clientID]
	if !ok {
		l = rate.NewLimiter(m.limit, m.burst)
		m.limiters[clientID] = l
	}
	return l
}

func (m *rateLimitMiddleware) OnIncoming(clientID string, raw []byte) error {
	if !m.limiterFor(clientID).Allow() {
		return protocol.NewInvalidRequestError("rate limit exceeded")
	}
	return nil
}

func (m *rateLimitMiddleware) OnOutgoing(clientID string, raw []byte) []byte {
	return raw
}

// validationMiddleware enforces the JSON-RPC envelope shape, payload size,
// parameter nesting depth, and reserved-key rules. The array and object
// size caps reuse the schema package's constants so they are defined once.
type validationMiddleware struct {
	scanner *schema.SecurityScanner
}

func newValidationMiddleware() *validationMiddleware {
	return &validationMiddleware{scanner: schema.NewSecurityScanner()}
}

func (m *validationMiddleware) OnIncoming(clientID string, raw []byte) error {
	if len(raw) > maxPayloadBytes {
		return protocol.NewInvalidRequestError("payload exceeds maximum size")
	}

	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		// Not an object (e.g. a batch array); leave shape checks to the
		// dispatcher's own JSON-RPC parsing.
		return nil
	}
	if v, ok := generic["jsonrpc"]; ok {
		if s, ok := v.(string); !ok || s != "2.0" {
			return protocol.NewInvalidRequestError("jsonrpc field must be \"2.0\"")
		}
	}
	if params, ok := generic["params"]; ok {
		if err := m.checkParams(params, 0); err != nil {
			return err
		}
	}
	return nil
}

func (m *validationMiddleware) checkParams(v interface{}, depth int) error {
	if depth > maxParamDepth {
		return protocol.NewInvalidParamsError("parameter nesting exceeds maximum depth")
	}
	switch val := v.(type) {
	case map[string]interface{}:
		if len(val) > schema.MaxObjectProperties {
			return protocol.NewInvalidParamsError("object has too many properties")
		}
		for k, child := range val {
			if strings.HasPrefix(k, "_") && k != "_meta" {
				return protocol.NewInvalidParamsError("reserved key: " + k)
			}
			if err := m.checkParams(child, depth+1); err != nil {
				return err
			}
		}
	case []interface{}:
		if len(val) > schema.MaxArrayLength {
			return protocol.NewInvalidParamsError("array exceeds maximum length")
		}
		for _, child := range val {
			if err := m.checkParams(child, depth+1); err != nil {
				return err
			}
		}
	case string:
		if strings.ContainsRune(val, 0) {
			return protocol.NewInvalidParamsError("string contains an embedded null byte")
		}
	}
	return nil
}

func (m *validationMiddleware) OnOutgoing(clientID string, raw []byte) []byte {
	return raw
}

// progressTimingMiddleware passes every envelope through unchanged in both
// directions. It adds no _meta fields: no start time and no timeout is
// stamped on any message. Per-request start times are kept by the server
// in requestStartTimes instead.
type progressTimingMiddleware struct{}

func newProgressTimingMiddleware() *progressTimingMiddleware {
	return &progressTimingMiddleware{}
}

func (m *progressTimingMiddleware) OnIncoming(clientID string, raw []byte) error {
	return nil
}

func (m *progressTimingMiddleware) OnOutgoing(clientID string, raw []byte) []byte {
	return raw
}

// requestStartTimes gives the dispatcher a place to stash per-request start
// times for progress-elapsed computation without mutating the raw envelope
// bytes in flight.
type requestStartTimes struct {
	mu     sync.Mutex
	starts map[string]time.Time
}

func newRequestStartTimes() *requestStartTimes {
	return &requestStartTimes{starts: make(map[string]time.Time)}
}

func (r *requestStartTimes) mark(id interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts[idKey(id)] = time.Now()
}

func (r *requestStartTimes) elapsed(id interface{}) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	start, ok := r.starts[idKey(id)]
	if !ok {
		return 0
	}
	return time.Since(start)
}

func (r *requestStartTimes) clear(id interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.starts, idKey(id))
}
