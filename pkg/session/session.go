// Package session orchestrates one live conversation: it owns the transport,
// the capture and playback pipelines, the transcript, and the user-facing
// status, and wires interruption handling across all of them.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vozlab/go-charla/pkg/audioio"
	"github.com/vozlab/go-charla/pkg/capture"
	"github.com/vozlab/go-charla/pkg/codec"
	"github.com/vozlab/go-charla/pkg/playback"
	"github.com/vozlab/go-charla/pkg/poller"
	"github.com/vozlab/go-charla/pkg/transcript"
	"github.com/vozlab/go-charla/pkg/transport"
)

// Session drives a conversation over a transport backend.
type Session struct {
	backend transport.Backend
	logger  *slog.Logger

	source  audioio.Source
	sink    audioio.Sink
	capture *capture.Session

	sequencer   *playback.Sequencer
	interrupter *playback.Interrupter
	decoder     *codec.Decoder
	log         *transcript.Log
	poll        *poller.Poller
	dispatcher  Dispatcher
	clock       playback.Clock
	cooldown    time.Duration

	mu        sync.Mutex
	state     State
	status    string
	wanted    bool
	userMuted bool

	onStatus     func(status string)
	onTranscript func(entry transcript.Entry)

	metrics metrics
}

// Option configures a Session.
type Option func(*Session)

// WithSource attaches a microphone source; frames are resampled and sent
// upstream while connected.
func WithSource(src audioio.Source) Option {
	return func(s *Session) { s.source = src }
}

// WithSink attaches a playback sink for synthesized audio.
func WithSink(sink audioio.Sink) Option {
	return func(s *Session) { s.sink = sink }
}

// WithTranscript sets the transcript log. Defaults to a new bounded log.
func WithTranscript(log *transcript.Log) Option {
	return func(s *Session) { s.log = log }
}

// WithPoller sets the HTTP fallback poller.
func WithPoller(p *poller.Poller) Option {
	return func(s *Session) { s.poll = p }
}

// WithDispatcher sets the tool dispatcher.
func WithDispatcher(d Dispatcher) Option {
	return func(s *Session) { s.dispatcher = d }
}

// WithClock sets the clock used for playback scheduling and interruption.
func WithClock(c playback.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithCooldown sets the post-interruption suppression window.
func WithCooldown(d time.Duration) Option {
	return func(s *Session) { s.cooldown = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// OnStatus sets the status change callback.
func OnStatus(fn func(status string)) Option {
	return func(s *Session) { s.onStatus = fn }
}

// OnTranscript sets the transcript update callback.
func OnTranscript(fn func(entry transcript.Entry)) Option {
	return func(s *Session) { s.onTranscript = fn }
}

// New creates a session over backend.
func New(backend transport.Backend, opts ...Option) *Session {
	s := &Session{
		backend: backend,
		state:   StateDisconnected,
		status:  StatusDisconnected,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "session")

	if s.log == nil {
		s.log = transcript.New(0)
	}
	if s.clock == nil {
		s.clock = playback.RealClock{}
	}
	s.interrupter = playback.NewInterrupter(s.cooldown, s.clock)
	s.decoder = codec.NewDecoder(audioio.PlaybackRate, 1)

	if s.sink != nil {
		s.sequencer = playback.NewSequencer(s.sink, s.clock, s.logger)
		s.sequencer.OnDrain(s.handleDrain)
	}
	if s.source != nil {
		s.capture = capture.NewSession(s.source, s.sendFrame, capture.WithLogger(s.logger))
	}

	s.wireBackend()
	return s
}

func (s *Session) wireBackend() {
	s.backend.OnStatus(s.handleBackendStatus)
	s.backend.OnTranscription(s.handleTranscription)
	s.backend.OnTextResponse(s.handleTextResponse)
	s.backend.OnAudioResponse(s.handleAudioResponse)
	s.backend.OnInterrupted(s.handleInterrupted)
	s.backend.OnError(s.handleError)
	s.backend.OnDisconnect(s.handleDisconnect)
}

// Connect brings the session up: dial, announce, start the pipelines.
// A Disconnect issued while the dial is in flight wins; the session tears
// itself back down instead of finishing the bring-up.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateConnected || s.state == StateConnecting {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.wanted = true
	s.mu.Unlock()
	s.setStatus(StatusConnecting)

	if s.sink != nil {
		if err := s.sink.Start(ctx); err != nil {
			return s.failConnect(fmt.Errorf("session: start sink: %w", err))
		}
	}

	if err := s.backend.Connect(ctx); err != nil {
		return s.failConnect(err)
	}

	s.mu.Lock()
	stillWanted := s.wanted
	s.mu.Unlock()
	if !stillWanted {
		s.logger.Info("connect finished after disconnect was requested, tearing down")
		s.teardown(nil)
		return nil
	}

	if err := s.backend.SendInit(); err != nil {
		return s.failConnect(err)
	}

	// The user may have hung up while the handshake was in flight. The
	// wanted check and the transition to connected share one critical
	// section so a Disconnect cannot slip between them.
	s.mu.Lock()
	if !s.wanted {
		s.mu.Unlock()
		s.logger.Info("connect finished after disconnect was requested, tearing down")
		s.teardown(nil)
		return nil
	}
	s.state = StateConnected
	s.mu.Unlock()
	s.metrics.markConnected()
	s.setStatus(StatusConnected)

	if s.capture != nil {
		if err := s.capture.Start(ctx); err != nil {
			if errors.Is(err, audioio.ErrPermissionDenied) {
				// No microphone access means no conversation.
				return s.failConnect(fmt.Errorf("session: microphone: %w", err))
			}
			// Other capture failures leave a text-only session up.
			s.logger.Error("capture start failed, continuing text-only", "error", err)
			s.metrics.errors.Add(1)
		} else {
			s.capture.SetMuted(s.muted())
			s.setStatus(StatusRecording)
		}
	}

	s.logger.Info("session connected", "conversation_id", s.backend.ConversationID())
	return nil
}

func (s *Session) failConnect(err error) error {
	s.releaseResources()

	s.mu.Lock()
	s.state = StateError
	s.wanted = false
	s.mu.Unlock()
	s.metrics.errors.Add(1)
	s.setStatus(StatusError(err.Error()))
	return err
}

// Disconnect tears the session down. Idempotent; safe to call at any point,
// including while Connect is still in flight.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	s.wanted = false
	state := s.state
	s.mu.Unlock()

	if state == StateConnecting {
		// Connect observes the cleared flag and tears down itself.
		return nil
	}
	if state == StateDisconnected {
		return nil
	}

	s.teardown(nil)
	return nil
}

// teardown stops pipelines and the transport. disconnectErr, when non-nil,
// marks the session as failed rather than cleanly closed.
func (s *Session) teardown(disconnectErr error) {
	s.releaseResources()

	s.mu.Lock()
	if disconnectErr != nil {
		s.state = StateError
	} else {
		s.state = StateDisconnected
	}
	s.mu.Unlock()

	if disconnectErr != nil {
		s.setStatus(StatusError(disconnectErr.Error()))
	} else {
		s.setStatus(StatusDisconnected)
	}
	s.logger.Info("session disconnected")
}

// releaseResources stops the pipelines and the transport. Every exit path,
// clean or failed, local or remote, funnels through here.
func (s *Session) releaseResources() {
	if s.capture != nil {
		_ = s.capture.Stop()
	}
	if s.sequencer != nil {
		s.sequencer.FlushAll()
	}
	if s.sink != nil {
		_ = s.sink.Stop()
	}
	_ = s.backend.Close()
}

// SendText sends a typed user message and records it in the transcript.
func (s *Session) SendText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	entry := s.log.Append(transcript.Entry{
		Role:    transcript.RoleUser,
		Content: text,
	})
	s.emitTranscript(entry)

	if err := s.backend.SendText(text); err != nil {
		s.metrics.errors.Add(1)
		return err
	}
	s.metrics.messagesSent.Add(1)
	s.setStatus(StatusGenerating)
	return nil
}

// SetMuted toggles microphone forwarding. Capture keeps running; frames are
// suppressed at the send boundary so unmute is instant.
func (s *Session) SetMuted(muted bool) {
	s.mu.Lock()
	s.userMuted = muted
	s.mu.Unlock()
	if s.capture != nil {
		s.capture.SetMuted(muted)
	}
}

func (s *Session) muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userMuted
}

// State returns the connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the user-facing status string.
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// History returns the transcript window.
func (s *Session) History() []transcript.Entry {
	return s.log.Entries()
}

// Metrics returns a snapshot of session counters.
func (s *Session) Metrics() Metrics {
	return s.metrics.snapshot(s.interrupter.Count())
}

// ConversationID returns the active conversation ID.
func (s *Session) ConversationID() string {
	return s.backend.ConversationID()
}

// AwaitResponse falls back to HTTP polling for the assistant's reply when
// the live push has not delivered one. The poller snapshots the conversation
// before waiting, so replies that predate the wait never satisfy it. In
// voice mode the reply must carry audio; it is played on arrival.
func (s *Session) AwaitResponse(ctx context.Context, voiceMode bool) (*poller.Result, error) {
	if s.poll == nil {
		return nil, fmt.Errorf("session: no poller configured")
	}

	res, err := s.poll.WaitForResponse(ctx, s.backend.ConversationID(), voiceMode)
	if err != nil {
		return nil, err
	}

	s.emitTranscript(res.Entry)
	if res.Audio != "" {
		s.playAudio(res.Audio)
	}
	return res, nil
}

// Dispatch runs a tool call. Microphone forwarding is suspended for the
// duration and the result is sent to the backend as a text frame.
func (s *Session) Dispatch(ctx context.Context, call ToolCall) (string, error) {
	if s.dispatcher == nil {
		return "", fmt.Errorf("session: no dispatcher configured")
	}
	if call.ID == "" {
		call.ID = uuid.NewString()
	}

	if s.capture != nil {
		s.capture.SetMuted(true)
		defer s.capture.SetMuted(s.muted())
	}
	s.setStatus(StatusProcessing)

	result, err := s.dispatcher.Dispatch(ctx, call)
	if err != nil {
		s.metrics.errors.Add(1)
		s.setStatus(StatusReady)
		return "", fmt.Errorf("session: tool %q: %w", call.Name, err)
	}

	if err := s.backend.SendText(result); err != nil {
		s.metrics.errors.Add(1)
		return result, err
	}
	s.metrics.messagesSent.Add(1)
	s.setStatus(StatusGenerating)

	s.logger.Info("tool dispatched", "tool", call.Name, "call_id", call.ID)
	return result, nil
}

// sendFrame forwards one capture frame upstream.
func (s *Session) sendFrame(pcm []byte) {
	if err := s.backend.SendAudio(pcm); err != nil {
		s.logger.Debug("audio send failed", "error", err)
		s.metrics.errors.Add(1)
		return
	}
	s.metrics.audioBytesSent.Add(int64(len(pcm)))
}

// Backend event handlers.

func (s *Session) handleBackendStatus(status string) {
	switch strings.ToLower(status) {
	case "processing", "transcribing":
		s.setStatus(StatusProcessing)
	case "generating", "synthesizing":
		s.setStatus(StatusGenerating)
	case "ready", "idle":
		s.handleDrain()
	default:
		s.logger.Debug("backend status", "status", status)
	}
}

func (s *Session) handleTranscription(text string, isFinal bool) {
	s.metrics.messagesReceived.Add(1)

	var entry transcript.Entry
	if isFinal {
		entry = s.log.ReplacePartial(transcript.RoleUser, text)
	} else {
		entry = s.log.Merge(transcript.Entry{
			Role:    transcript.RoleUser,
			Content: text,
			Partial: true,
		})
	}
	s.emitTranscript(entry)
}

func (s *Session) handleTextResponse(id, text, audio string) {
	s.metrics.messagesReceived.Add(1)

	entry := s.log.Merge(transcript.Entry{
		ID:      id,
		Role:    transcript.RoleAssistant,
		Content: text,
	})
	s.emitTranscript(entry)

	if audio != "" {
		s.playAudio(audio)
	} else {
		// Text arrived first; audio follows in a later frame.
		s.setStatus(StatusGenerating)
	}
}

func (s *Session) handleAudioResponse(audio string) {
	s.metrics.messagesReceived.Add(1)
	s.playAudio(audio)
}

// playAudio decodes one audio payload and schedules it for playback.
// Payloads inside the post-interruption window are dropped.
func (s *Session) playAudio(b64 string) {
	if s.interrupter.Suppressed() {
		s.metrics.chunksDropped.Add(1)
		s.logger.Debug("dropping audio inside interruption window")
		return
	}
	if s.sequencer == nil {
		return
	}

	data, err := codec.DecodeBase64(b64)
	if err != nil {
		s.metrics.errors.Add(1)
		s.logger.Warn("audio payload rejected", "error", err)
		return
	}
	pcm, err := s.decoder.Decode(data)
	if err != nil {
		// Drop the chunk, keep the stream alive.
		s.metrics.errors.Add(1)
		s.logger.Warn("audio decode failed, dropping chunk", "error", err)
		return
	}
	if len(pcm) == 0 {
		return
	}
	s.metrics.audioBytesReceived.Add(int64(len(pcm) * 2))

	chunk := audioio.AudioChunk{
		Samples:    audioio.PCM16ToFloats(pcm),
		SampleRate: audioio.PlaybackRate,
		Channels:   1,
	}
	if _, err := s.sequencer.Schedule(context.Background(), chunk); err != nil {
		s.metrics.errors.Add(1)
		s.logger.Warn("playback schedule failed", "error", err)
		return
	}
	s.setStatus(StatusReady)
}

// handleInterrupted is the barge-in path: stop everything queued, open the
// suppression window, and go back to listening.
func (s *Session) handleInterrupted() {
	s.interrupter.Trigger()
	if s.sequencer != nil {
		s.sequencer.FlushAll()
	}
	s.logger.Info("playback interrupted")
	s.handleDrain()
}

func (s *Session) handleDrain() {
	if s.State() != StateConnected {
		return
	}
	if s.capture != nil && s.capture.Running() {
		s.setStatus(StatusRecording)
	} else {
		s.setStatus(StatusReady)
	}
}

func (s *Session) handleError(err error) {
	s.metrics.errors.Add(1)
	s.logger.Error("backend error", "error", err)

	if isConversationMismatch(err) {
		s.recoverConversation()
	}
}

// recoverConversation discards the cached conversation identity after the
// backend stopped recognizing it and re-announces under a fresh one.
func (s *Session) recoverConversation() {
	fresh := uuid.NewString()
	old := s.backend.ConversationID()
	s.backend.SetConversationID(fresh)

	s.logger.Warn("conversation not recognized, starting fresh",
		"old_id", old,
		"new_id", fresh,
	)

	if err := s.backend.SendInit(); err != nil {
		s.logger.Error("re-init failed", "error", err)
		s.metrics.errors.Add(1)
	}
}

func isConversationMismatch(err error) bool {
	var backendErr *transport.BackendError
	if !errors.As(err, &backendErr) {
		return false
	}
	msg := strings.ToLower(backendErr.Message)
	return strings.Contains(msg, "conversation") &&
		(strings.Contains(msg, "not found") || strings.Contains(msg, "mismatch") || strings.Contains(msg, "invalid"))
}

func (s *Session) handleDisconnect(err error) {
	s.mu.Lock()
	wanted := s.wanted
	state := s.state
	s.mu.Unlock()

	// Local teardown already handled the state change.
	if !wanted || state == StateDisconnected {
		return
	}

	// Remote close takes the same cleanup path as a local one.
	s.releaseResources()

	s.mu.Lock()
	if err != nil {
		s.state = StateError
	} else {
		s.state = StateDisconnected
	}
	s.wanted = false
	s.mu.Unlock()

	if err != nil {
		s.metrics.errors.Add(1)
		s.setStatus(StatusError(err.Error()))
	} else {
		s.setStatus(StatusDisconnected)
	}
}

func (s *Session) setStatus(status string) {
	s.mu.Lock()
	if s.status == status {
		s.mu.Unlock()
		return
	}
	s.status = status
	fn := s.onStatus
	s.mu.Unlock()

	if fn != nil {
		fn(status)
	}
}

func (s *Session) emitTranscript(entry transcript.Entry) {
	s.mu.Lock()
	fn := s.onTranscript
	s.mu.Unlock()
	if fn != nil {
		fn(entry)
	}
}
