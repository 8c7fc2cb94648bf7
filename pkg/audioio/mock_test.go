package audioio

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMockSourceSineWave(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock
	cfg.SampleRate = 16000
	cfg.BufferDuration = 10 * time.Millisecond

	src := NewMockSource(cfg, nil, WithSineWave(440, 0.5))
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	chunk, err := src.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if chunk.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", chunk.SampleRate)
	}
	if len(chunk.Samples) != cfg.BufferSize() {
		t.Errorf("len(Samples) = %d, want %d", len(chunk.Samples), cfg.BufferSize())
	}

	// Sine output should not be all zeros.
	nonZero := false
	for _, s := range chunk.Samples {
		if s != 0 {
			nonZero = true
		}
		if s > 0.5 || s < -0.5 {
			t.Fatalf("sample %v exceeds amplitude 0.5", s)
		}
	}
	if !nonZero {
		t.Error("sine wave produced all-zero samples")
	}
}

func TestMockSourceStartError(t *testing.T) {
	cfg := DefaultConfig()
	src := NewMockSource(cfg, nil, WithStartError(ErrPermissionDenied))
	defer src.Close()

	err := src.Start(context.Background())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Start() error = %v, want ErrPermissionDenied", err)
	}
}

func TestMockSourceStopIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	src := NewMockSource(cfg, nil)

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
}

func TestMockSourceStopClosesStream(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferDuration = time.Millisecond

	src := NewMockSource(cfg, nil)
	defer src.Close()

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Let the generator run against a full buffer, then stop it mid-flight.
	time.Sleep(20 * time.Millisecond)
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	// The generator owns the channel; by the time Stop returns it has
	// stopped sending and closed it, so a drain must terminate.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-src.Stream():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream not closed after Stop")
		}
	}
}

func TestMockSinkWriteAndClear(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SampleRate = PlaybackRate

	sink := NewMockSink(cfg, nil)
	defer sink.Close()

	ctx := context.Background()
	if err := sink.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	chunk := AudioChunk{
		Samples:    make([]float32, 480),
		SampleRate: PlaybackRate,
		Channels:   1,
	}
	for i := 0; i < 3; i++ {
		if err := sink.Write(ctx, chunk); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	stats := sink.Stats()
	if stats.ChunksWritten != 3 {
		t.Errorf("ChunksWritten = %d, want 3", stats.ChunksWritten)
	}
	if stats.BufferedSamples != 3*480 {
		t.Errorf("BufferedSamples = %d, want %d", stats.BufferedSamples, 3*480)
	}

	if err := sink.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if got := sink.Stats().BufferedSamples; got != 0 {
		t.Errorf("BufferedSamples after Clear = %d, want 0", got)
	}
	if sink.Clears() != 1 {
		t.Errorf("Clears() = %d, want 1", sink.Clears())
	}
}

func TestMockSinkWriteAfterClose(t *testing.T) {
	cfg := DefaultConfig()
	sink := NewMockSink(cfg, nil)

	ctx := context.Background()
	if err := sink.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	sink.Close()

	chunk := AudioChunk{Samples: make([]float32, 10), SampleRate: 16000, Channels: 1}
	if err := sink.Write(ctx, chunk); err == nil {
		t.Error("Write() after Close should fail")
	}
}

func TestAudioChunkDuration(t *testing.T) {
	chunk := AudioChunk{
		Samples:    make([]float32, 24000),
		SampleRate: 24000,
		Channels:   1,
	}
	if d := chunk.Duration(); d != 1.0 {
		t.Errorf("Duration() = %v, want 1.0", d)
	}

	empty := AudioChunk{}
	if d := empty.Duration(); d != 0 {
		t.Errorf("Duration() of zero chunk = %v, want 0", d)
	}
}
