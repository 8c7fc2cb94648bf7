package audioio

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// PipeSource reads raw PCM16 little-endian audio from an io.Reader and
// delivers it as float chunks, paced in real time. Point it at a file, a
// named pipe, or the stdout of a capture process such as arecord.
type PipeSource struct {
	cfg    Config
	r      io.Reader
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	streamCh chan AudioChunk
	stopCh   chan struct{}
	done     chan struct{}

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

// NewPipeSource creates a source that reads PCM16 LE from r at cfg's rate.
func NewPipeSource(cfg Config, r io.Reader, logger *slog.Logger) *PipeSource {
	if logger == nil {
		logger = slog.Default()
	}

	return &PipeSource{
		cfg:      cfg,
		r:        bufio.NewReaderSize(r, cfg.BufferBytes()*4),
		logger:   logger,
		streamCh: make(chan AudioChunk, 10),
		stopCh:   make(chan struct{}),
	}
}

// Start begins reading from the pipe.
func (p *PipeSource) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return io.ErrClosedPipe
	}
	if p.running {
		return nil
	}

	p.running = true
	p.stopCh = make(chan struct{})
	p.streamCh = make(chan AudioChunk, 10)
	p.done = make(chan struct{})

	go p.readLoop(ctx, p.streamCh, p.stopCh, p.done)

	p.logger.Info("pipe audio source started",
		"sample_rate", p.cfg.SampleRate,
		"buffer_bytes", p.cfg.BufferBytes(),
	)

	return nil
}

// readLoop owns streamCh: it is the only closer, so Stop can never race a
// send on a closed channel. Stop does not wait for it; a read blocked on a
// quiet pipe finishes in its own time and the channel closes then.
func (p *PipeSource) readLoop(ctx context.Context, streamCh chan AudioChunk, stopCh, done chan struct{}) {
	defer func() {
		close(streamCh)
		close(done)
	}()

	// Pace delivery to real time so a file behaves like a live device.
	ticker := time.NewTicker(p.cfg.BufferDuration)
	defer ticker.Stop()

	buf := make([]byte, p.cfg.BufferBytes())

	for {
		select {
		case <-ctx.Done():
			p.markStopped()
			return
		case <-stopCh:
			return
		case <-ticker.C:
			n, err := io.ReadFull(p.r, buf)
			if err != nil && err != io.ErrUnexpectedEOF {
				if err != io.EOF {
					p.logger.Error("pipe read failed", "error", err)
				}
				p.markStopped()
				return
			}
			if n == 0 {
				continue
			}

			pcm := BytesToSamples(buf[:n-n%2])
			chunk := AudioChunk{
				Samples:    PCM16ToFloats(pcm),
				SampleRate: p.cfg.SampleRate,
				Channels:   p.cfg.Channels,
			}

			select {
			case streamCh <- chunk:
				p.chunksRead.Add(1)
				p.samplesRead.Add(int64(len(chunk.Samples)))
			default:
				p.overruns.Add(1)
			}
		}
	}
}

func (p *PipeSource) markStopped() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
}

// Stop halts reading.
func (p *PipeSource) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}

	p.running = false
	close(p.stopCh)

	p.logger.Info("pipe audio source stopped")

	return nil
}

// Read reads the next audio chunk.
func (p *PipeSource) Read(ctx context.Context) (AudioChunk, error) {
	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-p.streamCh:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream returns the audio chunk channel.
func (p *PipeSource) Stream() <-chan AudioChunk {
	return p.streamCh
}

// Config returns the audio configuration.
func (p *PipeSource) Config() Config {
	return p.cfg
}

// Name returns "pipe".
func (p *PipeSource) Name() string {
	return "pipe"
}

// Close releases resources.
func (p *PipeSource) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.Stop()

	if c, ok := p.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Stats returns source statistics.
func (p *PipeSource) Stats() SourceStats {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()

	return SourceStats{
		ChunksRead:  p.chunksRead.Load(),
		SamplesRead: p.samplesRead.Load(),
		Overruns:    p.overruns.Load(),
		Running:     running,
		Backend:     "pipe",
	}
}

var _ SourceWithStats = (*PipeSource)(nil)

// PipeSink writes raw PCM16 little-endian audio to an io.Writer. Point it at
// a file, a named pipe, or the stdin of a playback process such as aplay.
// Chunks are queued and written by a background goroutine so Clear can drop
// everything not yet flushed downstream.
type PipeSink struct {
	cfg    Config
	w      io.Writer
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	queue   chan AudioChunk
	stopCh  chan struct{}
	done    chan struct{}

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
}

// NewPipeSink creates a sink that writes PCM16 LE to w.
func NewPipeSink(cfg Config, w io.Writer, logger *slog.Logger) *PipeSink {
	if logger == nil {
		logger = slog.Default()
	}

	return &PipeSink{
		cfg:    cfg,
		w:      w,
		logger: logger,
	}
}

// Start begins accepting audio.
func (p *PipeSink) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return io.ErrClosedPipe
	}
	if p.running {
		return nil
	}

	p.running = true
	p.queue = make(chan AudioChunk, 32)
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})

	go p.writeLoop()

	p.logger.Info("pipe audio sink started", "sample_rate", p.cfg.SampleRate)

	return nil
}

func (p *PipeSink) writeLoop() {
	defer close(p.done)

	for {
		select {
		case <-p.stopCh:
			return
		case chunk, ok := <-p.queue:
			if !ok {
				return
			}

			data := SamplesToBytes(FloatsToPCM16(chunk.Samples))
			if _, err := p.w.Write(data); err != nil {
				p.logger.Error("pipe write failed", "error", err)
				return
			}

			p.chunksWritten.Add(1)
			p.samplesWritten.Add(int64(len(chunk.Samples)))
		}
	}
}

// Stop halts audio output.
func (p *PipeSink) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}

	p.running = false
	close(p.stopCh)
	<-p.done

	p.logger.Info("pipe audio sink stopped")

	return nil
}

// Write queues an audio chunk for output.
func (p *PipeSink) Write(ctx context.Context, chunk AudioChunk) error {
	p.mu.Lock()
	if p.closed || !p.running {
		p.mu.Unlock()
		return io.ErrClosedPipe
	}
	queue := p.queue
	p.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case queue <- chunk:
		return nil
	}
}

// Flush waits until the queue has drained.
func (p *PipeSink) Flush(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		p.mu.Lock()
		pending := 0
		if p.queue != nil {
			pending = len(p.queue)
		}
		running := p.running
		p.mu.Unlock()

		if pending == 0 || !running {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Clear drops all queued audio immediately.
func (p *PipeSink) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.queue == nil {
		return nil
	}

	for {
		select {
		case <-p.queue:
		default:
			p.logger.Debug("pipe audio sink cleared")
			return nil
		}
	}
}

// Config returns the audio configuration.
func (p *PipeSink) Config() Config {
	return p.cfg
}

// Name returns "pipe".
func (p *PipeSink) Name() string {
	return "pipe"
}

// Close releases resources.
func (p *PipeSink) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.Stop()

	if c, ok := p.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Stats returns sink statistics.
func (p *PipeSink) Stats() SinkStats {
	p.mu.Lock()
	running := p.running
	buffered := int64(0)
	if p.queue != nil {
		buffered = int64(len(p.queue)) * int64(p.cfg.BufferSize())
	}
	p.mu.Unlock()

	return SinkStats{
		ChunksWritten:   p.chunksWritten.Load(),
		SamplesWritten:  p.samplesWritten.Load(),
		Underruns:       0,
		Running:         running,
		Backend:         "pipe",
		BufferedSamples: buffered,
	}
}

var _ SinkWithStats = (*PipeSink)(nil)
