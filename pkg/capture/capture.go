// Package capture runs the microphone side of a conversation: it pulls
// native-rate audio from a source, resamples to the wire rate, and hands
// PCM16 frames to a send callback.
package capture

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/vozlab/go-charla/pkg/audioio"
)

// Session owns one capture run from Start to Stop.
//
// Mute is applied at the send boundary: the device keeps running and frames
// keep being produced, they are just not delivered. That keeps unmute
// instant and the device state independent of the mute toggle.
type Session struct {
	source audioio.Source
	logger *slog.Logger

	resampler *audioio.Resampler

	// onFrame receives resampled PCM16 frames ready for the wire.
	// The slice is owned by the callback.
	onFrame func(pcm []byte)

	// onLevel receives the RMS level of each native chunk, for metering.
	onLevel func(rms float64)

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}

	muted       atomic.Bool
	framesSent  atomic.Int64
	framesMuted atomic.Int64
}

// Option configures a Session.
type Option func(*Session)

// WithLevelMeter sets a callback receiving per-chunk RMS levels.
func WithLevelMeter(fn func(rms float64)) Option {
	return func(s *Session) { s.onLevel = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// NewSession creates a capture session reading from source and delivering
// wire-rate PCM16 frames to onFrame.
func NewSession(source audioio.Source, onFrame func(pcm []byte), opts ...Option) *Session {
	s := &Session{
		source:    source,
		onFrame:   onFrame,
		resampler: audioio.NewResampler(source.Config().SampleRate, audioio.CaptureRate),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Start opens the device and begins delivering frames.
// Returns audioio.ErrPermissionDenied unchanged when the device refuses.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if err := s.source.Start(ctx); err != nil {
		return err
	}

	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(ctx)

	s.logger.Info("capture started",
		"backend", s.source.Name(),
		"native_rate", s.source.Config().SampleRate,
		"wire_rate", audioio.CaptureRate,
	)

	return nil
}

func (s *Session) loop(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case chunk, ok := <-s.source.Stream():
			if !ok {
				return
			}
			s.process(chunk)
		}
	}
}

func (s *Session) process(chunk audioio.AudioChunk) {
	if s.onLevel != nil {
		s.onLevel(audioio.CalculateRMS(chunk.Samples))
	}

	if s.muted.Load() {
		s.framesMuted.Add(1)
		return
	}

	pcm := s.resampler.Process(chunk.Samples)
	if len(pcm) == 0 {
		return
	}

	// The resampler reuses its buffer; the frame must outlive this call.
	frame := audioio.SamplesToBytes(pcm)

	if s.onFrame != nil {
		s.onFrame(frame)
		s.framesSent.Add(1)
	}
}

// Stop halts capture and waits for the delivery loop to finish, so no
// frame callback fires after Stop returns.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	done := s.done
	s.mu.Unlock()

	err := s.source.Stop()
	<-done

	s.logger.Info("capture stopped",
		"frames_sent", s.framesSent.Load(),
		"frames_muted", s.framesMuted.Load(),
	)

	return err
}

// SetMuted toggles frame delivery without touching the device.
func (s *Session) SetMuted(muted bool) {
	s.muted.Store(muted)
}

// Muted reports the mute state.
func (s *Session) Muted() bool {
	return s.muted.Load()
}

// Running reports whether the session is capturing.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// FramesSent returns how many frames were delivered.
func (s *Session) FramesSent() int64 {
	return s.framesSent.Load()
}
