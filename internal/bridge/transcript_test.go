package bridge

import (
	"testing"
	"time"
)

func ts(sec int) time.Time {
	return time.Date(2026, 3, 10, 12, 0, sec, 0, time.UTC)
}

func TestUpsertOrdersByTimestamp(t *testing.T) {
	tr := NewTranscript()
	tr.Upsert(Message{ID: "c", Role: RoleAssistant, Text: "third", Timestamp: ts(3)})
	tr.Upsert(Message{ID: "a", Role: RoleUser, Text: "first", Timestamp: ts(1)})
	tr.Upsert(Message{ID: "b", Role: RoleAssistant, Text: "second", Timestamp: ts(2)})

	got := tr.Messages()
	want := []string{"first", "second", "third"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, m := range got {
		if m.Text != want[i] {
			t.Errorf("messages[%d].Text = %q, want %q", i, m.Text, want[i])
		}
	}
}

func TestUpsertTiebreaksByID(t *testing.T) {
	tr := NewTranscript()
	tr.Upsert(Message{ID: "b", Role: RoleUser, Text: "two", Timestamp: ts(1)})
	tr.Upsert(Message{ID: "a", Role: RoleUser, Text: "one", Timestamp: ts(1)})

	got := tr.Messages()
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("order = [%s %s], want [a b]", got[0].ID, got[1].ID)
	}
}

func TestUpsertRejectsBlankText(t *testing.T) {
	tr := NewTranscript()
	if tr.Upsert(Message{ID: "x", Role: RoleUser, Text: "   ", Timestamp: ts(1)}) {
		t.Error("blank message accepted")
	}
	if tr.Len() != 0 {
		t.Errorf("len = %d, want 0", tr.Len())
	}
}

func TestUpsertDeduplicatesByID(t *testing.T) {
	tr := NewTranscript()
	tr.Upsert(Message{ID: "m1", Role: RoleAssistant, Text: "hello", Timestamp: ts(1)})
	if tr.Upsert(Message{ID: "m1", Role: RoleAssistant, Text: "hello", Timestamp: ts(1)}) {
		t.Error("duplicate id reported as a new message")
	}
	if tr.Len() != 1 {
		t.Errorf("len = %d, want 1", tr.Len())
	}
}

func TestUpsertMergePreservesMetadata(t *testing.T) {
	tr := NewTranscript()
	tr.Upsert(Message{ID: "m1", Role: RoleAssistant, Text: "hello", Timestamp: ts(1)})
	tr.AttachToolCalls("m1", []ToolCall{{Name: "rag_search"}})

	// A later poll delivers the same message without metadata.
	tr.Upsert(Message{ID: "m1", Role: RoleAssistant, Text: "hello", Timestamp: ts(1)})

	got := tr.Messages()[0]
	if len(got.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(got.ToolCalls))
	}
}

func TestReplacePreservesMetadata(t *testing.T) {
	tr := NewTranscript()
	tr.Upsert(Message{ID: "m1", Role: RoleAssistant, Text: "hello", Timestamp: ts(1)})
	tr.AttachToolCalls("m1", []ToolCall{{Name: "rag_search"}})

	tr.Replace([]Message{
		{ID: "m0", Role: RoleUser, Text: "hi", Timestamp: ts(0)},
		{ID: "m1", Role: RoleAssistant, Text: "hello", Timestamp: ts(1)},
	})

	got := tr.Messages()
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if len(got[1].ToolCalls) != 1 {
		t.Errorf("tool calls lost across replace")
	}
}

func TestReplaceSkipsBlankAndDuplicate(t *testing.T) {
	tr := NewTranscript()
	tr.Replace([]Message{
		{ID: "a", Role: RoleUser, Text: "one", Timestamp: ts(1)},
		{ID: "b", Role: RoleUser, Text: "  ", Timestamp: ts(2)},
		{ID: "a", Role: RoleUser, Text: "one again", Timestamp: ts(3)},
	})
	if tr.Len() != 1 {
		t.Fatalf("len = %d, want 1", tr.Len())
	}
	if got := tr.Messages()[0].Text; got != "one" {
		t.Errorf("text = %q, want %q", got, "one")
	}
}

func TestLastAssistantID(t *testing.T) {
	tr := NewTranscript()
	if _, ok := tr.LastAssistantID(); ok {
		t.Fatal("empty transcript reported an assistant message")
	}
	tr.Upsert(Message{ID: "a", Role: RoleAssistant, Text: "one", Timestamp: ts(1)})
	tr.Upsert(Message{ID: "u", Role: RoleUser, Text: "two", Timestamp: ts(2)})
	tr.Upsert(Message{ID: "b", Role: RoleAssistant, Text: "three", Timestamp: ts(3)})

	id, ok := tr.LastAssistantID()
	if !ok || id != "b" {
		t.Errorf("last assistant = %q ok=%v, want b true", id, ok)
	}
}

func TestContainsText(t *testing.T) {
	tr := NewTranscript()
	tr.Upsert(Message{ID: "a", Role: RoleAssistant, Text: "hello there", Timestamp: ts(1)})

	if !tr.ContainsText(RoleAssistant, "hello there") {
		t.Error("exact assistant text not found")
	}
	if tr.ContainsText(RoleUser, "hello there") {
		t.Error("matched text under the wrong role")
	}
}
