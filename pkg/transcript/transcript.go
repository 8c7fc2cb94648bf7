// Package transcript maintains the conversation history visible to the user.
//
// The log is a bounded window: only the most recent entries are retained,
// which keeps memory flat over long sessions. Merge is idempotent so that
// entries arriving twice (live push plus polling fallback) collapse into one.
package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// DefaultWindow is how many entries the log retains.
const DefaultWindow = 20

// Entry is one line of conversation history.
type Entry struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// Partial marks an in-flight transcription that later messages replace.
	Partial bool `json:"partial,omitempty"`
}

// Log is a bounded, concurrency-safe conversation history.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	window  int
}

// New creates a Log retaining up to window entries.
// A window of 0 or less uses DefaultWindow.
func New(window int) *Log {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Log{
		entries: make([]Entry, 0, window),
		window:  window,
	}
}

// Append adds an entry, assigning an ID if it has none, and trims the window.
// Returns the stored entry.
func (l *Log) Append(e Entry) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(e)
}

func (l *Log) appendLocked(e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	l.entries = append(l.entries, e)
	if len(l.entries) > l.window {
		l.entries = l.entries[len(l.entries)-l.window:]
	}
	return e
}

// Merge folds an entry into the log without duplicating. Matching runs in
// order of confidence: same ID wins, then same role with identical trimmed
// content, and only then is the entry appended as new.
func (l *Log) Merge(e Entry) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.ID != "" {
		for i := range l.entries {
			if l.entries[i].ID == e.ID {
				l.updateLocked(i, e)
				return l.entries[i]
			}
		}
	}

	content := strings.TrimSpace(e.Content)
	for i := range l.entries {
		if l.entries[i].Role == e.Role && strings.TrimSpace(l.entries[i].Content) == content {
			l.updateLocked(i, e)
			return l.entries[i]
		}
	}

	return l.appendLocked(e)
}

func (l *Log) updateLocked(i int, e Entry) {
	if e.Content != "" {
		l.entries[i].Content = e.Content
	}
	// A confirmed entry replaces a partial one, never the reverse.
	if !e.Partial {
		l.entries[i].Partial = false
	}
}

// ReplacePartial swaps the most recent partial entry for role with a final
// one. When no partial exists the entry is merged instead, so a final
// transcription of text the user already typed does not duplicate it.
func (l *Log) ReplacePartial(role Role, content string) Entry {
	l.mu.Lock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Role == role && l.entries[i].Partial {
			l.entries[i].Content = content
			l.entries[i].Partial = false
			e := l.entries[i]
			l.mu.Unlock()
			return e
		}
	}
	l.mu.Unlock()

	return l.Merge(Entry{Role: role, Content: content})
}

// Entries returns a copy of the current window, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Clear empties the log.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = l.entries[:0]
}
