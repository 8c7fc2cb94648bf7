package transport

import "context"

// ConnectionState represents the connection lifecycle.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateError        ConnectionState = "error"
)

// Backend is a bidirectional conversation channel. The WebSocket
// implementation is the production one; tests substitute fakes.
type Backend interface {
	// Connect establishes the channel and starts delivering callbacks.
	Connect(ctx context.Context) error

	// Close shuts the channel down. Safe to call multiple times.
	Close() error

	// IsConnected reports whether the channel is usable.
	IsConnected() bool

	// State returns the current connection state.
	State() ConnectionState

	// SendInit announces the conversation and character to the backend.
	SendInit() error

	// SendText sends a typed user message.
	SendText(text string) error

	// SendAudio sends one frame of PCM16 audio, base64-encoded on the wire.
	SendAudio(pcm []byte) error

	// SetConversationID switches which conversation outbound frames target.
	SetConversationID(id string)

	// ConversationID returns the current conversation target.
	ConversationID() string

	// Callbacks. Set before Connect; they fire from the read loop goroutine.
	OnStatus(fn func(status string))
	OnTranscription(fn func(text string, isFinal bool))
	OnTextResponse(fn func(id, text, audio string))
	OnAudioResponse(fn func(audio string))
	OnInterrupted(fn func())
	OnError(fn func(err error))
	OnDisconnect(fn func(err error))
}
