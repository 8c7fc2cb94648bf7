package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vozlab/go-charla/pkg/audioio"
)

// Handle tracks one scheduled chunk from enqueue until its play window ends.
type Handle struct {
	ID      string
	StartAt time.Time
	EndAt   time.Time

	timer *time.Timer
}

// Duration returns the play window length.
func (h *Handle) Duration() time.Duration {
	return h.EndAt.Sub(h.StartAt)
}

// Sequencer schedules audio chunks back to back on a sink. Each chunk starts
// at the later of now and the end of the previous chunk, so bursts of small
// chunks play gaplessly and a chunk arriving after silence starts at once.
type Sequencer struct {
	clock  Clock
	sink   audioio.Sink
	logger *slog.Logger

	mu     sync.Mutex
	cursor time.Time
	active map[string]*Handle

	// onDrain fires when the last active chunk finishes playing.
	onDrain func()
}

// NewSequencer creates a sequencer writing to sink.
// A nil clock uses the system clock.
func NewSequencer(sink audioio.Sink, clock Clock, logger *slog.Logger) *Sequencer {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{
		clock:  clock,
		sink:   sink,
		logger: logger,
		active: make(map[string]*Handle),
	}
}

// OnDrain sets the callback fired when playback becomes idle.
func (s *Sequencer) OnDrain(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDrain = fn
}

// Schedule enqueues a chunk for playback and returns its handle.
// The write to the sink happens immediately; the handle's window records
// when the chunk occupies the output timeline.
func (s *Sequencer) Schedule(ctx context.Context, chunk audioio.AudioChunk) (*Handle, error) {
	dur := time.Duration(chunk.Duration() * float64(time.Second))

	s.mu.Lock()
	start := s.clock.Now()
	if s.cursor.After(start) {
		start = s.cursor
	}
	end := start.Add(dur)
	s.cursor = end

	h := &Handle{
		ID:      uuid.NewString(),
		StartAt: start,
		EndAt:   end,
	}
	s.active[h.ID] = h

	// Completion fires when the play window closes.
	wait := end.Sub(s.clock.Now())
	h.timer = time.AfterFunc(wait, func() { s.complete(h.ID) })
	s.mu.Unlock()

	if err := s.sink.Write(ctx, chunk); err != nil {
		s.mu.Lock()
		s.removeLocked(h.ID)
		s.mu.Unlock()
		return nil, err
	}

	return h, nil
}

func (s *Sequencer) complete(id string) {
	s.mu.Lock()
	s.removeLocked(id)
	idle := len(s.active) == 0
	fn := s.onDrain
	s.mu.Unlock()

	if idle && fn != nil {
		fn()
	}
}

func (s *Sequencer) removeLocked(id string) {
	if h, ok := s.active[id]; ok {
		if h.timer != nil {
			h.timer.Stop()
		}
		delete(s.active, id)
	}
}

// FlushAll stops everything scheduled: the sink's buffer is cleared, all
// handles are cancelled, and the cursor resets so the next chunk starts
// immediately. This is the barge-in path.
func (s *Sequencer) FlushAll() {
	s.mu.Lock()
	for id := range s.active {
		s.removeLocked(id)
	}
	s.cursor = time.Time{}
	s.mu.Unlock()

	if err := s.sink.Clear(); err != nil {
		s.logger.Warn("sink clear failed", "error", err)
	}

	s.logger.Debug("playback flushed")
}

// Pending returns how many chunks are in flight.
func (s *Sequencer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Idle reports whether nothing is scheduled.
func (s *Sequencer) Idle() bool {
	return s.Pending() == 0
}

// Cursor returns the end of the last scheduled chunk, or the zero time when
// nothing has been scheduled since the last flush.
func (s *Sequencer) Cursor() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}
