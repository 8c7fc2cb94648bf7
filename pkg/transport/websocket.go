package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/oauth2"
)

// WebSocket implements Backend over a gorilla/websocket connection.
type WebSocket struct {
	config *Config
	logger *slog.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	state     ConnectionState
	convID    string
	cancelCtx context.CancelFunc

	// Callbacks
	onStatus        func(status string)
	onTranscription func(text string, isFinal bool)
	onTextResponse  func(id, text, audio string)
	onAudioResponse func(audio string)
	onInterrupted   func()
	onError         func(err error)
	onDisconnect    func(err error)

	tokens *tokenCache

	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
}

// NewWebSocket creates a WebSocket backend.
func NewWebSocket(opts ...Option) (*WebSocket, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.CharacterID == "" {
		return nil, ErrMissingCharacterID
	}
	if cfg.ConversationID == "" {
		return nil, ErrMissingConversationID
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ws := &WebSocket{
		config: cfg,
		logger: cfg.Logger.With("component", "transport.websocket"),
		convID: cfg.ConversationID,
		state:  StateDisconnected,
	}
	if cfg.TokenSource != nil {
		ws.tokens = newTokenCache(cfg.TokenSource)
	}
	return ws, nil
}

// Connect dials the backend. If the handshake is rejected for auth and a
// token source is configured, the token is refreshed and the dial retried
// exactly once; a second rejection is fatal.
func (w *WebSocket) Connect(ctx context.Context) error {
	w.mu.Lock()
	if w.state == StateConnected {
		w.mu.Unlock()
		return ErrAlreadyConnected
	}
	w.state = StateConnecting
	w.mu.Unlock()

	conn, err := w.dial(ctx, false)
	if err != nil {
		if IsAuth(err) && w.config.TokenSource != nil {
			w.logger.Warn("handshake rejected, refreshing token and redialing")
			conn, err = w.dial(ctx, true)
		}
		if err != nil {
			w.mu.Lock()
			w.state = StateError
			w.mu.Unlock()
			return err
		}
	}

	msgCtx, cancel := context.WithCancel(context.Background())

	w.mu.Lock()
	w.conn = conn
	w.state = StateConnected
	w.cancelCtx = cancel
	w.mu.Unlock()

	go w.readLoop(msgCtx)
	if w.config.PingInterval > 0 {
		go w.pingLoop(msgCtx)
	}

	w.logger.Info("connected to conversation backend",
		"url", w.config.URL,
		"conversation_id", w.convID,
	)

	return nil
}

func (w *WebSocket) dial(ctx context.Context, forceRefresh bool) (*websocket.Conn, error) {
	headers := http.Header{}
	if w.tokens != nil {
		var tok *oauth2.Token
		var err error
		if forceRefresh {
			tok, err = w.tokens.Refresh()
		} else {
			tok, err = w.tokens.Token()
		}
		if err != nil {
			return nil, &AuthError{Cause: err}
		}
		tok.SetAuthHeader(&http.Request{Header: headers})
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: w.config.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, w.config.URL, headers)
	if err != nil {
		if resp != nil {
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return nil, &AuthError{StatusCode: resp.StatusCode, Cause: err}
			}
			return nil, NewConnectionError(
				fmt.Sprintf("dial failed with status %d", resp.StatusCode),
				err,
				resp.StatusCode >= 500,
			)
		}
		return nil, NewConnectionError("dial failed", err, true)
	}
	return conn, nil
}

// Close gracefully closes the connection.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateDisconnected {
		return nil
	}

	if w.cancelCtx != nil {
		w.cancelCtx()
	}

	if w.conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = w.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline,
		)
		w.conn.Close()
		w.conn = nil
	}

	w.state = StateDisconnected
	w.logger.Info("disconnected from conversation backend")

	return nil
}

// IsConnected returns true if connected.
func (w *WebSocket) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state == StateConnected
}

// State returns the current connection state.
func (w *WebSocket) State() ConnectionState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// SetConversationID switches which conversation outbound frames target.
func (w *WebSocket) SetConversationID(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.convID = id
}

// ConversationID returns the current conversation target.
func (w *WebSocket) ConversationID() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.convID
}

// SendInit announces the conversation and character to the backend.
func (w *WebSocket) SendInit() error {
	return w.send(outgoing{Type: TypeInit})
}

// SendText sends a typed user message.
func (w *WebSocket) SendText(text string) error {
	return w.send(outgoing{Type: TypeText, Text: text})
}

// SendAudio sends one frame of PCM16 audio, base64-encoded.
func (w *WebSocket) SendAudio(pcm []byte) error {
	return w.send(outgoing{
		Type:  TypeAudio,
		Audio: base64.StdEncoding.EncodeToString(pcm),
	})
}

func (w *WebSocket) send(msg outgoing) error {
	w.mu.RLock()
	conn := w.conn
	state := w.state
	msg.ConversationID = w.convID
	w.mu.RUnlock()

	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}

	msg.CharacterID = w.config.CharacterID

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("transport: marshal failed: %w", err)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return NewConnectionError("send failed", err, true)
	}

	w.messagesSent.Add(1)
	return nil
}

// Callback setters.

func (w *WebSocket) OnStatus(fn func(status string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onStatus = fn
}

func (w *WebSocket) OnTranscription(fn func(text string, isFinal bool)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onTranscription = fn
}

func (w *WebSocket) OnTextResponse(fn func(id, text, audio string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onTextResponse = fn
}

func (w *WebSocket) OnAudioResponse(fn func(audio string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onAudioResponse = fn
}

func (w *WebSocket) OnInterrupted(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onInterrupted = fn
}

func (w *WebSocket) OnError(fn func(err error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = fn
}

func (w *WebSocket) OnDisconnect(fn func(err error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onDisconnect = fn
}

// Stats returns message counters.
func (w *WebSocket) Stats() (sent, received int64) {
	return w.messagesSent.Load(), w.messagesReceived.Load()
}

// readLoop processes incoming WebSocket messages.
func (w *WebSocket) readLoop(ctx context.Context) {
	var loopErr error
	defer func() {
		w.mu.Lock()
		if w.state == StateConnected {
			w.state = StateDisconnected
		}
		w.mu.Unlock()
		w.emitDisconnect(loopErr)
	}()

	w.mu.RLock()
	conn := w.conn
	w.mu.RUnlock()
	if conn == nil {
		return
	}

	// Pongs extend the read deadline, so an idle but healthy connection
	// stays up for as long as pingLoop keeps eliciting them.
	_ = conn.SetReadDeadline(time.Now().Add(w.config.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(w.config.ReadTimeout))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.logger.Info("connection closed normally")
				return
			}
			select {
			case <-ctx.Done():
				// Local close racing with the read; not an error.
				return
			default:
			}
			w.logger.Error("read error", "error", err)
			loopErr = NewConnectionError("read failed", err, true)
			w.emitError(loopErr)
			return
		}

		w.messagesReceived.Add(1)

		var msg incoming
		if err := json.Unmarshal(data, &msg); err != nil {
			w.logger.Warn("failed to parse message", "error", err)
			continue
		}

		w.handleMessage(&msg)
	}
}

// handleMessage dispatches one inbound frame to its callback.
func (w *WebSocket) handleMessage(msg *incoming) {
	switch msg.Type {
	case TypeStatus:
		w.emitStatus(msg.Status)

	case TypeTranscription:
		w.emitTranscription(msg.text(), msg.IsFinal)

	case TypeTranscriptionResult:
		// The result variant is always final.
		w.emitTranscription(msg.text(), true)

	case TypeTextResponse, TypeAIMessage:
		w.emitTextResponse(msg.ID, msg.text(), msg.Audio)

	case TypeAudioResponse:
		w.emitAudioResponse(msg.Audio)

	case TypeInterrupted:
		w.emitInterrupted()

	case TypeError:
		w.emitError(&BackendError{Message: msg.errorMessage()})

	default:
		w.logger.Debug("unhandled message type", "type", msg.Type)
	}
}

// pingLoop sends keepalive pings until the context is cancelled.
func (w *WebSocket) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(w.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()
			if conn == nil {
				return
			}
			deadline := time.Now().Add(w.config.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				w.logger.Debug("ping failed", "error", err)
				return
			}
		}
	}
}

// Emit helpers.

func (w *WebSocket) emitStatus(status string) {
	w.mu.RLock()
	fn := w.onStatus
	w.mu.RUnlock()
	if fn != nil {
		fn(status)
	}
}

func (w *WebSocket) emitTranscription(text string, isFinal bool) {
	w.mu.RLock()
	fn := w.onTranscription
	w.mu.RUnlock()
	if fn != nil {
		fn(text, isFinal)
	}
}

func (w *WebSocket) emitTextResponse(id, text, audio string) {
	w.mu.RLock()
	fn := w.onTextResponse
	w.mu.RUnlock()
	if fn != nil {
		fn(id, text, audio)
	}
}

func (w *WebSocket) emitAudioResponse(audio string) {
	w.mu.RLock()
	fn := w.onAudioResponse
	w.mu.RUnlock()
	if fn != nil {
		fn(audio)
	}
}

func (w *WebSocket) emitInterrupted() {
	w.mu.RLock()
	fn := w.onInterrupted
	w.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (w *WebSocket) emitError(err error) {
	w.mu.RLock()
	fn := w.onError
	w.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

func (w *WebSocket) emitDisconnect(err error) {
	w.mu.RLock()
	fn := w.onDisconnect
	w.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// Ensure WebSocket implements Backend.
var _ Backend = (*WebSocket)(nil)
