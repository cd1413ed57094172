package httpmcp

import "time"

// RateLimitConfig configures the transport's per-client token bucket.
type RateLimitConfig struct {
	EventsPerSecond float64
	Burst           int
}

// Config controls every behavior of the Streamable HTTP transport. Field
// names and defaults carry over the shape the teacher's transport options
// (transport/http, server/sse_server.go) split across several constructor
// functions, collapsed into one struct the way spec.md's external
// interface table names it.
type Config struct {
	Host string
	Port int

	// SessionTimeout is how long a session may sit idle before the
	// sweeper removes it and its queued messages.
	SessionTimeout time.Duration

	// MaxMessageRetries bounds how many times a legacy-endpoint message
	// is redelivered before being dropped without an ack.
	MaxMessageRetries int

	CORSEnabled bool

	// AuthRequired, when true, rejects any request lacking a validatable
	// Authorization: Bearer header, using the configured auth.TokenValidator.
	AuthRequired bool

	// ProtocolVersion is advertised verbatim in every connect/correlation
	// response body's protocol_version field.
	ProtocolVersion string

	EnableStreamableHTTP  bool
	EnableLegacyEndpoints bool

	RateLimitConfig RateLimitConfig

	RequestTimeout  time.Duration
	MaxRequestSize  int64
	EnableCompression bool
}

// DefaultConfig returns the configuration the teacher's own constructors
// default to when a caller doesn't override a field.
func DefaultConfig() Config {
	return Config{
		Host:                  "127.0.0.1",
		Port:                  8080,
		SessionTimeout:        5 * time.Minute,
		MaxMessageRetries:     3,
		CORSEnabled:           true,
		AuthRequired:          false,
		ProtocolVersion:       "2025-06-18",
		EnableStreamableHTTP:  true,
		EnableLegacyEndpoints: false,
		RateLimitConfig:       RateLimitConfig{EventsPerSecond: 20, Burst: 40},
		RequestTimeout:        30 * time.Second,
		MaxRequestSize:        1 << 20,
		EnableCompression:     true,
	}
}
