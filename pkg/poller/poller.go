package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vozlab/go-charla/pkg/transcript"
)

// Defaults for the polling budget.
const (
	DefaultInterval = 2 * time.Second
	DefaultAttempts = 15
)

// ErrBudgetExhausted indicates polling gave up without finding a response.
var ErrBudgetExhausted = errors.New("poller: no response within polling budget")

// Result is what a successful poll found.
type Result struct {
	// Entry is the assistant message merged into the log.
	Entry transcript.Entry

	// Audio is the base64 audio payload, when the backend stored one.
	Audio string

	// Attempts is how many polls it took.
	Attempts int
}

// Poller repeatedly fetches a conversation until a new assistant response
// appears or the attempt budget runs out.
type Poller struct {
	client   *Client
	log      *transcript.Log
	logger   *slog.Logger
	interval time.Duration
	attempts int
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the delay between polls.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) { p.interval = d }
}

// WithAttempts sets the maximum number of polls.
func WithAttempts(n int) Option {
	return func(p *Poller) { p.attempts = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) { p.logger = logger }
}

// New creates a Poller that merges findings into log.
func New(client *Client, log *transcript.Log, opts ...Option) *Poller {
	p := &Poller{
		client:   client,
		log:      log,
		interval: DefaultInterval,
		attempts: DefaultAttempts,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// WaitForResponse polls conversation convID until an assistant message that
// was not present when polling started appears. A snapshot taken before the
// first wait fixes the baseline, so on a resumed conversation no amount of
// replayed history can satisfy the wait, regardless of how much of it the
// transcript window has forgotten. When requireAudio is set (voice mode), a
// reply without stored audio does not end the wait; text alone is not
// playable.
//
// All messages found along the way are merged into the transcript log, so
// repeated polls of the same state change nothing.
func (p *Poller) WaitForResponse(ctx context.Context, convID string, requireAudio bool) (*Result, error) {
	seen := make(map[string]bool)
	unnamed := 0
	if conv, err := p.client.FetchConversation(ctx, convID); err != nil {
		p.logger.Warn("baseline fetch failed", "error", err)
	} else {
		for _, msg := range conv.Messages {
			p.log.Merge(transcript.Entry{ID: msg.ID, Role: msg.Role, Content: msg.Content})
			if msg.Role != transcript.RoleAssistant {
				continue
			}
			if msg.ID != "" {
				seen[msg.ID] = true
			} else {
				unnamed++
			}
		}
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= p.attempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		conv, err := p.client.FetchConversation(ctx, convID)
		if err != nil {
			p.logger.Warn("poll failed", "attempt", attempt, "error", err)
			continue
		}

		var found *Result
		unnamedNow := 0
		for _, msg := range conv.Messages {
			entry := p.log.Merge(transcript.Entry{
				ID:      msg.ID,
				Role:    msg.Role,
				Content: msg.Content,
			})
			if msg.Role != transcript.RoleAssistant {
				continue
			}
			// Messages without IDs fall back to position counting.
			fresh := false
			if msg.ID != "" {
				fresh = !seen[msg.ID]
			} else {
				unnamedNow++
				fresh = unnamedNow > unnamed
			}
			if fresh && (!requireAudio || msg.Audio != "") {
				found = &Result{
					Entry:    entry,
					Audio:    msg.Audio,
					Attempts: attempt,
				}
			}
		}

		if found != nil {
			p.logger.Info("poll found response",
				"attempts", attempt,
				"has_audio", found.Audio != "",
			)
			return found, nil
		}
	}

	return nil, ErrBudgetExhausted
}
