// Package transport carries conversation traffic between the client and the
// backend over a WebSocket, with callbacks for each inbound event type.
package transport

import (
	"log/slog"
	"time"

	"golang.org/x/oauth2"
)

// Config holds transport configuration.
type Config struct {
	// URL is the WebSocket endpoint (ws:// or wss://).
	URL string

	// CharacterID selects which persona the backend speaks as.
	CharacterID string

	// ConversationID routes frames to an existing conversation.
	ConversationID string

	// TokenSource supplies bearer tokens for the handshake. Optional;
	// when set, an auth rejection triggers one token refresh and redial.
	TokenSource oauth2.TokenSource

	// HandshakeTimeout bounds the WebSocket dial.
	// Default: 10s
	HandshakeTimeout time.Duration

	// ReadTimeout bounds each read from the connection.
	// Default: 60s
	ReadTimeout time.Duration

	// WriteTimeout bounds each write to the connection.
	// Default: 10s
	WriteTimeout time.Duration

	// PingInterval is how often keepalive pings are sent.
	// Default: 30s
	PingInterval time.Duration

	// Logger for transport events. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     30 * time.Second,
	}
}

// Option configures the transport.
type Option func(*Config)

// Apply applies the given options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// WithURL sets the WebSocket endpoint.
func WithURL(url string) Option {
	return func(c *Config) { c.URL = url }
}

// WithCharacterID sets the character persona.
func WithCharacterID(id string) Option {
	return func(c *Config) { c.CharacterID = id }
}

// WithConversationID sets the conversation to join.
func WithConversationID(id string) Option {
	return func(c *Config) { c.ConversationID = id }
}

// WithTokenSource sets the OAuth2 token source for authentication.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Config) { c.TokenSource = ts }
}

// WithHandshakeTimeout sets the dial timeout.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Config) { c.HandshakeTimeout = d }
}

// WithReadTimeout sets the per-read deadline.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) { c.ReadTimeout = d }
}

// WithPingInterval sets the keepalive interval.
func WithPingInterval(d time.Duration) Option {
	return func(c *Config) { c.PingInterval = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}
