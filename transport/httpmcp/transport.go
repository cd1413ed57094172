package httpmcp

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/corvusruntime/mcprt/auth"
	"github.com/corvusruntime/mcprt/logx"
	"github.com/corvusruntime/mcprt/types"
)

// sessionIDHeader is the header a peer uses to carry its session id across
// requests once one has been assigned, mirroring the header name the MCP
// Streamable HTTP transport spec settled on.
const sessionIDHeader = "Mcp-Session-Id"

// Dispatcher is the interface httpmcp needs from the core runtime: decode
// one envelope for a session and return the response bytes. *server.Server
// satisfies this directly. Kept as its own interface, the way the
// teacher's transport/sse.MCPServerLogic decouples the HTTP plumbing from
// the concrete server type, so this package never imports server/.
type Dispatcher interface {
	HandleMessage(ctx context.Context, sessionID string, raw []byte) ([]byte, error)
	// UnregisterSession drops a session and its subscription-index entries
	// from the core runtime. Called by the idle sweeper so an evicted
	// httpmcp session doesn't leave an orphaned server.Session behind.
	UnregisterSession(sessionID string)
}

// Transport serves MCP over HTTP: a unified POST/GET endpoint supporting
// both request/response correlation and an SSE upgrade, plus a set of
// legacy endpoints for older peers. Grounded on the teacher's
// transport/sse.SSEServer (ServeHTTP routing, session registration,
// writer-loop shape) generalized to the streamable design spec.md names.
type Transport struct {
	dispatcher Dispatcher
	config     Config
	logger     types.Logger
	validator  auth.TokenValidator

	sessions *sessionStore
	limiter  *perClientLimiter

	server *http.Server
}

// Option configures a Transport at construction time.
type Option func(*Transport)

func WithLogger(logger types.Logger) Option {
	return func(t *Transport) { t.logger = logger }
}

// WithAuthValidator installs a bearer-token validator. Requests are
// authenticated whenever config.AuthRequired is true, regardless of
// whether this option was supplied (a nil validator then always fails).
func WithAuthValidator(validator auth.TokenValidator) Option {
	return func(t *Transport) { t.validator = validator }
}

// NewTransport builds a Transport over the given dispatcher and config.
func NewTransport(dispatcher Dispatcher, config Config, opts ...Option) *Transport {
	t := &Transport{
		dispatcher: dispatcher,
		config:     config,
		logger:     logx.NewDefaultLogger(),
		sessions:   newSessionStore(),
		limiter:    newPerClientLimiter(config.RateLimitConfig.EventsPerSecond, config.RateLimitConfig.Burst),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Mux builds the http.Handler serving every endpoint this transport
// exposes. Exposed separately from Start so callers can mount it under an
// existing http.Server or test it with httptest without binding a port.
func (t *Transport) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", t.withCommon(t.handleMCP))
	if t.config.EnableLegacyEndpoints {
		mux.HandleFunc("/mcp/legacy", t.withCommon(t.handleLegacy))
		mux.HandleFunc("/mcp/connect", t.withCommon(t.handleLegacyConnect))
		mux.HandleFunc("/mcp/messages", t.withCommon(t.handleLegacyMessages))
		mux.HandleFunc("/mcp/ack", t.withCommon(t.handleLegacyAck))
	}
	return mux
}

// Start binds the configured host:port and serves until ctx is cancelled.
// A background goroutine sweeps idle sessions and stale rate limiters
// every config.SessionTimeout.
func (t *Transport) Start(ctx context.Context) error {
	t.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", t.config.Host, t.config.Port),
		Handler:      t.Mux(),
		ReadTimeout:  t.config.RequestTimeout,
		WriteTimeout: 0, // SSE streams hold the connection open indefinitely
	}

	sweepInterval := t.config.SessionTimeout
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}
	go t.sweepLoop(ctx, sweepInterval)

	errCh := make(chan error, 1)
	go func() { errCh <- t.server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (t *Transport) sweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sess := range t.sessions.idleSessions(t.config.SessionTimeout) {
				t.sessions.remove(sess.id)
				t.dispatcher.UnregisterSession(sess.id)
				t.logger.Info("httpmcp: evicted idle session %s", sess.id)
			}
			t.limiter.sweep(t.config.SessionTimeout)
		}
	}
}

// withCommon wraps a handler with CORS, auth, and compression concerns
// common to every endpoint this transport exposes.
func (t *Transport) withCommon(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if t.config.CORSEnabled {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+sessionIDHeader)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}

		sessionID := r.Header.Get(sessionIDHeader)
		if sessionID == "" {
			sessionID = r.URL.Query().Get("sessionId")
		}

		key := clientKey(r, sessionID)
		if !t.limiter.allow(key) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		if t.config.AuthRequired {
			ctx, err := auth.Authenticate(r.Context(), t.validator, "", r.Header.Get("Authorization"))
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
				return
			}
			r = r.WithContext(ctx)
		}

		if t.config.EnableCompression && acceptsGzip(r) && !wantsSSE(r) {
			gz := gzip.NewWriter(w)
			defer gz.Close()
			w.Header().Set("Content-Encoding", "gzip")
			next(&gzipResponseWriter{ResponseWriter: w, writer: gz}, r)
			return
		}

		next(w, r)
	}
}

func acceptsGzip(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}

type gzipResponseWriter struct {
	http.ResponseWriter
	writer io.Writer
}

func (g *gzipResponseWriter) Write(p []byte) (int, error) {
	return g.writer.Write(p)
}

// Deliver pushes raw to the named session's live SSE stream if attached,
// otherwise queues it for the next POST's pending_messages. Intended as
// the server.WithOutbound callback: server.Server calls this for every
// broadcast notification and out-of-band response.
func (t *Transport) Deliver(sessionID string, raw []byte) {
	sess, ok := t.sessions.get(sessionID)
	if !ok {
		return
	}
	sess.deliver(raw)
}

func wantsSSE(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream") ||
		strings.EqualFold(r.Header.Get("Upgrade"), "sse")
}
