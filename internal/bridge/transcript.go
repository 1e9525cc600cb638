package bridge

import (
	"sort"
	"strings"
)

// Transcript is the de-duplicated, time-ordered message store backing the
// visible conversation. Messages are keyed by id; the visible order is
// ascending by timestamp with id as tiebreak, so the final order is
// deterministic regardless of which source delivered a message first.
//
// Transcript is not goroutine-safe; the Bridge serializes access.
type Transcript struct {
	byID  map[string]Message
	order []string // ids, kept sorted
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{byID: make(map[string]Message)}
}

// Upsert inserts a message, or merges it into the existing entry with the
// same id. Returns false if the message was rejected (blank text) or was
// already present; true if the visible list changed.
//
// Merge keeps attached metadata: a later poll result for an id that already
// carries tool calls must not wipe them.
func (t *Transcript) Upsert(m Message) bool {
	if strings.TrimSpace(m.Text) == "" {
		return false
	}
	if existing, ok := t.byID[m.ID]; ok {
		if len(m.ToolCalls) == 0 {
			m.ToolCalls = existing.ToolCalls
		}
		if len(m.Searches) == 0 {
			m.Searches = existing.Searches
		}
		changed := existing.Text != m.Text || !existing.Timestamp.Equal(m.Timestamp)
		t.byID[m.ID] = m
		if changed && !existing.Timestamp.Equal(m.Timestamp) {
			t.resort()
		}
		return false
	}
	t.byID[m.ID] = m
	t.insert(m.ID)
	return true
}

// Replace rebuilds the transcript from msgs, preserving metadata already
// attached to messages whose ids survive.
func (t *Transcript) Replace(msgs []Message) {
	old := t.byID
	t.byID = make(map[string]Message, len(msgs))
	t.order = t.order[:0]
	for _, m := range msgs {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		if prev, ok := old[m.ID]; ok {
			if len(m.ToolCalls) == 0 {
				m.ToolCalls = prev.ToolCalls
			}
			if len(m.Searches) == 0 {
				m.Searches = prev.Searches
			}
		}
		if _, dup := t.byID[m.ID]; dup {
			continue
		}
		t.byID[m.ID] = m
		t.order = append(t.order, m.ID)
	}
	t.resort()
}

// Messages returns the ordered transcript as a copy.
func (t *Transcript) Messages() []Message {
	out := make([]Message, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.byID[id])
	}
	return out
}

// Len returns the number of visible messages.
func (t *Transcript) Len() int { return len(t.order) }

// Contains reports whether a message with this id exists.
func (t *Transcript) Contains(id string) bool {
	_, ok := t.byID[id]
	return ok
}

// ContainsText reports whether any message has this role and exact text.
// Used by the response-done fallback to avoid synthesizing a duplicate of a
// message the append event already delivered.
func (t *Transcript) ContainsText(role Role, text string) bool {
	for _, m := range t.byID {
		if m.Role == role && m.Text == text {
			return true
		}
	}
	return false
}

// LastAssistantID returns the id of the most recent assistant message,
// scanning backward from the end of the visible list.
func (t *Transcript) LastAssistantID() (string, bool) {
	for i := len(t.order) - 1; i >= 0; i-- {
		if t.byID[t.order[i]].Role == RoleAssistant {
			return t.order[i], true
		}
	}
	return "", false
}

// AttachToolCalls appends calls to the message's metadata.
func (t *Transcript) AttachToolCalls(id string, calls []ToolCall) bool {
	m, ok := t.byID[id]
	if !ok {
		return false
	}
	m.ToolCalls = append(m.ToolCalls, calls...)
	t.byID[id] = m
	return true
}

// AttachSearches appends retrieval records to the message's metadata.
func (t *Transcript) AttachSearches(id string, searches []Search) bool {
	m, ok := t.byID[id]
	if !ok {
		return false
	}
	m.Searches = append(m.Searches, searches...)
	t.byID[id] = m
	return true
}

func (t *Transcript) insert(id string) {
	i := sort.Search(len(t.order), func(i int) bool {
		return t.less(id, t.order[i])
	})
	t.order = append(t.order, "")
	copy(t.order[i+1:], t.order[i:])
	t.order[i] = id
}

func (t *Transcript) resort() {
	sort.SliceStable(t.order, func(i, j int) bool {
		return t.less(t.order[i], t.order[j])
	})
}

func (t *Transcript) less(a, b string) bool {
	ma, mb := t.byID[a], t.byID[b]
	if !ma.Timestamp.Equal(mb.Timestamp) {
		return ma.Timestamp.Before(mb.Timestamp)
	}
	return a < b
}
