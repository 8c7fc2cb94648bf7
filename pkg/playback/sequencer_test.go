package playback

import (
	"context"
	"testing"
	"time"

	"github.com/vozlab/go-charla/pkg/audioio"
)

func testSink(t *testing.T) *audioio.MockSink {
	t.Helper()
	cfg := audioio.DefaultConfig()
	cfg.SampleRate = audioio.PlaybackRate
	sink := audioio.NewMockSink(cfg, nil)
	if err := sink.Start(context.Background()); err != nil {
		t.Fatalf("sink start: %v", err)
	}
	t.Cleanup(func() { sink.Close() })
	return sink
}

// chunk returns d worth of playback-rate audio.
func chunk(d time.Duration) audioio.AudioChunk {
	n := int(float64(audioio.PlaybackRate) * d.Seconds())
	return audioio.AudioChunk{
		Samples:    make([]float32, n),
		SampleRate: audioio.PlaybackRate,
		Channels:   1,
	}
}

func TestScheduleBackToBack(t *testing.T) {
	base := time.Unix(1000, 0)
	clock := NewManualClock(base)
	seq := NewSequencer(testSink(t), clock, nil)

	ctx := context.Background()

	h1, err := seq.Schedule(ctx, chunk(100*time.Millisecond))
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	h2, err := seq.Schedule(ctx, chunk(50*time.Millisecond))
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	if !h1.StartAt.Equal(base) {
		t.Errorf("h1 start = %v, want %v", h1.StartAt, base)
	}
	if !h2.StartAt.Equal(h1.EndAt) {
		t.Errorf("h2 start = %v, want h1 end %v", h2.StartAt, h1.EndAt)
	}
	if got := seq.Cursor(); !got.Equal(h2.EndAt) {
		t.Errorf("cursor = %v, want %v", got, h2.EndAt)
	}
}

func TestScheduleAfterGapStartsNow(t *testing.T) {
	base := time.Unix(1000, 0)
	clock := NewManualClock(base)
	seq := NewSequencer(testSink(t), clock, nil)

	ctx := context.Background()

	h1, err := seq.Schedule(ctx, chunk(20*time.Millisecond))
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	// The previous chunk finished long ago; the next starts at now, not
	// at the stale cursor.
	clock.Advance(5 * time.Second)

	h2, err := seq.Schedule(ctx, chunk(20*time.Millisecond))
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if !h2.StartAt.Equal(clock.Now()) {
		t.Errorf("h2 start = %v, want now %v", h2.StartAt, clock.Now())
	}
	if h2.StartAt.Before(h1.EndAt) {
		t.Error("play windows overlap")
	}
}

func TestStartTimesMonotonic(t *testing.T) {
	clock := NewManualClock(time.Unix(1000, 0))
	seq := NewSequencer(testSink(t), clock, nil)

	ctx := context.Background()
	var prev *Handle
	for i := 0; i < 10; i++ {
		h, err := seq.Schedule(ctx, chunk(10*time.Millisecond))
		if err != nil {
			t.Fatalf("Schedule() error = %v", err)
		}
		if prev != nil && h.StartAt.Before(prev.StartAt) {
			t.Fatalf("start times regressed: %v before %v", h.StartAt, prev.StartAt)
		}
		if i%3 == 0 {
			clock.Advance(7 * time.Millisecond)
		}
		prev = h
	}
}

func TestFlushAll(t *testing.T) {
	sink := testSink(t)
	clock := NewManualClock(time.Unix(1000, 0))
	seq := NewSequencer(sink, clock, nil)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := seq.Schedule(ctx, chunk(100*time.Millisecond)); err != nil {
			t.Fatalf("Schedule() error = %v", err)
		}
	}
	if seq.Pending() != 3 {
		t.Fatalf("Pending() = %d, want 3", seq.Pending())
	}

	seq.FlushAll()

	if seq.Pending() != 0 {
		t.Errorf("Pending() after flush = %d, want 0", seq.Pending())
	}
	if !seq.Cursor().IsZero() {
		t.Errorf("Cursor() after flush = %v, want zero", seq.Cursor())
	}
	if !seq.Idle() {
		t.Error("Idle() = false after flush")
	}
	if sink.Clears() != 1 {
		t.Errorf("sink Clears() = %d, want 1", sink.Clears())
	}
	if got := sink.Stats().BufferedSamples; got != 0 {
		t.Errorf("sink still buffers %d samples after flush", got)
	}
}

func TestScheduleAfterFlushStartsFresh(t *testing.T) {
	base := time.Unix(1000, 0)
	clock := NewManualClock(base)
	seq := NewSequencer(testSink(t), clock, nil)

	ctx := context.Background()
	if _, err := seq.Schedule(ctx, chunk(10*time.Second)); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	seq.FlushAll()

	h, err := seq.Schedule(ctx, chunk(20*time.Millisecond))
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if !h.StartAt.Equal(base) {
		t.Errorf("post-flush start = %v, want now %v (not the old cursor)", h.StartAt, base)
	}
}

func TestOnDrainFires(t *testing.T) {
	seq := NewSequencer(testSink(t), RealClock{}, nil)

	drained := make(chan struct{}, 1)
	seq.OnDrain(func() {
		select {
		case drained <- struct{}{}:
		default:
		}
	})

	if _, err := seq.Schedule(context.Background(), chunk(10*time.Millisecond)); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("OnDrain never fired")
	}
	if !seq.Idle() {
		t.Error("Idle() = false after drain")
	}
}

func TestInterrupterWindow(t *testing.T) {
	clock := NewManualClock(time.Unix(1000, 0))
	i := NewInterrupter(500*time.Millisecond, clock)

	if i.Suppressed() {
		t.Error("suppressed before any trigger")
	}

	i.Trigger()
	if !i.Suppressed() {
		t.Error("not suppressed right after trigger")
	}

	clock.Advance(499 * time.Millisecond)
	if !i.Suppressed() {
		t.Error("suppression ended early")
	}

	clock.Advance(2 * time.Millisecond)
	if i.Suppressed() {
		t.Error("still suppressed after cooldown elapsed")
	}

	if i.Count() != 1 {
		t.Errorf("Count() = %d, want 1", i.Count())
	}
}

func TestInterrupterRetrigger(t *testing.T) {
	clock := NewManualClock(time.Unix(1000, 0))
	i := NewInterrupter(500*time.Millisecond, clock)

	i.Trigger()
	clock.Advance(400 * time.Millisecond)
	i.Trigger()
	clock.Advance(400 * time.Millisecond)

	// Second trigger extended the window.
	if !i.Suppressed() {
		t.Error("retrigger did not extend suppression")
	}
}
