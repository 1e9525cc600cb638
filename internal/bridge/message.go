package bridge

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teleglass/gateway/internal/runtime"
)

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolCall is a structured function-invocation record emitted by the
// runtime mid-response, attached as metadata to the owning assistant message.
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Search is a retrieval record attached to an assistant message.
type Search struct {
	Query     string    `json:"query"`
	Timestamp time.Time `json:"timestamp"`
}

// Message is one entry of the merged transcript. Text is always non-blank
// after trimming; the transcript rejects anything else.
type Message struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Text      string     `json:"text"`
	Timestamp time.Time  `json:"timestamp"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Searches  []Search   `json:"searches,omitempty"`
}

// fromHistory maps a raw runtime history entry to a Message. The second
// return is false for entries with blank text, which are skipped.
// Entries without a runtime id get a synthesized timestamp-index id; index
// is the entry's position in the polled history, so the id is stable across
// polls of the same history.
func fromHistory(e runtime.HistoryEntry, index int) (Message, bool) {
	text := strings.TrimSpace(e.Text)
	if text == "" {
		return Message{}, false
	}
	role := RoleAssistant
	if e.Role == string(RoleUser) {
		role = RoleUser
	}
	id := e.ID
	if id == "" {
		id = fmt.Sprintf("%d-%d", e.Timestamp.UnixMilli(), index)
	}
	return Message{ID: id, Role: role, Text: text, Timestamp: e.Timestamp}, true
}

// newLocalID generates an id for optimistic and externally injected
// messages. UUIDs rather than timestamp-random: two rapid local appends must
// never collide.
func newLocalID() string {
	return uuid.NewString()
}
