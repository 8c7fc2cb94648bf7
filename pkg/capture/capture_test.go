package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vozlab/go-charla/pkg/audioio"
)

func testSource(t *testing.T, opts ...audioio.MockSourceOption) *audioio.MockSource {
	t.Helper()
	cfg := audioio.DefaultConfig()
	cfg.Backend = audioio.BackendMock
	cfg.SampleRate = 48000
	cfg.BufferDuration = 10 * time.Millisecond
	src := audioio.NewMockSource(cfg, nil, opts...)
	t.Cleanup(func() { src.Close() })
	return src
}

func TestCaptureDeliversFrames(t *testing.T) {
	src := testSource(t, audioio.WithSineWave(440, 0.5))

	var mu sync.Mutex
	var frames [][]byte
	gotFrame := make(chan struct{}, 1)

	sess := NewSession(src, func(pcm []byte) {
		mu.Lock()
		frames = append(frames, pcm)
		mu.Unlock()
		select {
		case gotFrame <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := sess.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer sess.Stop()

	select {
	case <-gotFrame:
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
	}

	mu.Lock()
	defer mu.Unlock()

	// 10ms of 48kHz resampled to 16kHz is 160 samples, 320 bytes.
	if len(frames[0]) != 320 {
		t.Errorf("frame size = %d bytes, want 320", len(frames[0]))
	}
}

func TestCapturePermissionDenied(t *testing.T) {
	src := testSource(t, audioio.WithStartError(audioio.ErrPermissionDenied))

	sess := NewSession(src, func([]byte) {})

	err := sess.Start(context.Background())
	if !errors.Is(err, audioio.ErrPermissionDenied) {
		t.Errorf("Start() error = %v, want ErrPermissionDenied", err)
	}
	if sess.Running() {
		t.Error("Running() = true after failed start")
	}
}

func TestMuteSuppressesFrames(t *testing.T) {
	src := testSource(t, audioio.WithSineWave(440, 0.5))

	frameCh := make(chan struct{}, 100)
	sess := NewSession(src, func([]byte) {
		frameCh <- struct{}{}
	})
	sess.SetMuted(true)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := sess.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer sess.Stop()

	select {
	case <-frameCh:
		t.Fatal("frame delivered while muted")
	case <-time.After(100 * time.Millisecond):
	}

	// Device stays running under mute.
	if !sess.Running() {
		t.Error("Running() = false while muted")
	}

	// Unmute resumes delivery without restarting.
	sess.SetMuted(false)
	select {
	case <-frameCh:
	case <-time.After(time.Second):
		t.Fatal("no frame after unmute")
	}
}

func TestStopIsDeterministic(t *testing.T) {
	src := testSource(t, audioio.WithSineWave(440, 0.5))

	var mu sync.Mutex
	stopped := false

	sess := NewSession(src, nil)
	sess.onFrame = func([]byte) {
		mu.Lock()
		if stopped {
			t.Error("frame delivered after Stop returned")
		}
		mu.Unlock()
	}

	ctx := context.Background()
	if err := sess.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	if err := sess.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	mu.Lock()
	stopped = true
	mu.Unlock()

	time.Sleep(50 * time.Millisecond)

	if err := sess.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
}

func TestLevelMeter(t *testing.T) {
	src := testSource(t, audioio.WithSineWave(440, 0.5))

	levels := make(chan float64, 1)
	sess := NewSession(src, func([]byte) {},
		WithLevelMeter(func(rms float64) {
			select {
			case levels <- rms:
			default:
			}
		}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sess.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer sess.Stop()

	select {
	case rms := <-levels:
		// A 0.5 amplitude sine has RMS near 0.35.
		if rms < 0.1 || rms > 0.6 {
			t.Errorf("rms = %v, outside plausible sine range", rms)
		}
	case <-time.After(time.Second):
		t.Fatal("no level reported")
	}
}
