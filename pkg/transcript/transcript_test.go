package transcript

import (
	"fmt"
	"testing"
)

func TestAppendAssignsID(t *testing.T) {
	log := New(0)

	e := log.Append(Entry{Role: RoleUser, Content: "hola"})
	if e.ID == "" {
		t.Error("Append did not assign an ID")
	}
	if e.Timestamp.IsZero() {
		t.Error("Append did not assign a timestamp")
	}
	if log.Len() != 1 {
		t.Errorf("Len() = %d, want 1", log.Len())
	}
}

func TestWindowTrimsOldest(t *testing.T) {
	log := New(3)

	for i := 0; i < 5; i++ {
		log.Append(Entry{Role: RoleUser, Content: fmt.Sprintf("msg %d", i)})
	}

	entries := log.Entries()
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}
	if entries[0].Content != "msg 2" {
		t.Errorf("oldest = %q, want %q", entries[0].Content, "msg 2")
	}
	if entries[2].Content != "msg 4" {
		t.Errorf("newest = %q, want %q", entries[2].Content, "msg 4")
	}
}

func TestMergeByID(t *testing.T) {
	log := New(0)

	e := log.Append(Entry{ID: "abc", Role: RoleAssistant, Content: "partial", Partial: true})

	merged := log.Merge(Entry{ID: e.ID, Role: RoleAssistant, Content: "final answer"})
	if log.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", log.Len())
	}
	if merged.Content != "final answer" {
		t.Errorf("Content = %q, want %q", merged.Content, "final answer")
	}
	if merged.Partial {
		t.Error("merged entry still marked partial")
	}
}

func TestMergeByRoleAndContent(t *testing.T) {
	log := New(0)

	log.Append(Entry{Role: RoleUser, Content: "Hola"})
	log.Merge(Entry{Role: RoleUser, Content: "  Hola  "})

	if log.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (duplicate should merge)", log.Len())
	}
}

func TestMergeAppendsNew(t *testing.T) {
	log := New(0)

	log.Append(Entry{Role: RoleUser, Content: "Hola"})
	log.Merge(Entry{Role: RoleAssistant, Content: "Hola"})

	if log.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (same content, different role)", log.Len())
	}
}

func TestMergeIdempotent(t *testing.T) {
	log := New(0)

	e := Entry{ID: "fixed", Role: RoleAssistant, Content: "respuesta"}
	for i := 0; i < 5; i++ {
		log.Merge(e)
	}

	if log.Len() != 1 {
		t.Errorf("Len() = %d after 5 identical merges, want 1", log.Len())
	}
}

func TestReplacePartial(t *testing.T) {
	log := New(0)

	log.Append(Entry{Role: RoleUser, Content: "hol...", Partial: true})
	final := log.ReplacePartial(RoleUser, "hola mundo")

	if log.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", log.Len())
	}
	if final.Content != "hola mundo" || final.Partial {
		t.Errorf("final = %+v, want confirmed content", final)
	}
}

func TestReplacePartialAppendsWhenNone(t *testing.T) {
	log := New(0)

	log.ReplacePartial(RoleUser, "hola")
	if log.Len() != 1 {
		t.Errorf("Len() = %d, want 1", log.Len())
	}
}

func TestReplacePartialDeduplicatesTyped(t *testing.T) {
	log := New(0)

	// The user typed the message; the final transcription repeats it.
	log.Append(Entry{Role: RoleUser, Content: "Hola"})
	log.ReplacePartial(RoleUser, "Hola")

	if log.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (transcription should merge with typed entry)", log.Len())
	}
}

func TestEntriesReturnsCopy(t *testing.T) {
	log := New(0)
	log.Append(Entry{Role: RoleUser, Content: "original"})

	entries := log.Entries()
	entries[0].Content = "mutated"

	if log.Entries()[0].Content != "original" {
		t.Error("Entries() exposed internal state")
	}
}

func TestClear(t *testing.T) {
	log := New(0)
	log.Append(Entry{Role: RoleUser, Content: "x"})
	log.Clear()
	if log.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", log.Len())
	}
}
