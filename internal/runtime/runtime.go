// Package runtime abstracts the external assistant runtime: the third-party
// service that owns the actual voice/chat/avatar logic. The gateway only
// calls into it and listens to its events; no assistant logic lives here.
package runtime

import (
	"context"
	"encoding/json"
	"time"
)

// Event types emitted by the assistant runtime.
const (
	EventSessionReady    = "session.ready"
	EventItemAppended    = "conversation.item.appended"
	EventTranscriptDelta = "assistant.transcript.delta"
	EventSpeechStopped   = "input_audio_buffer.speech_stopped"
	EventBufferCommitted = "input_audio_buffer.committed"
	EventOutputItemAdded = "response.output_item.added"
	EventResponseDone    = "response.done"
	EventConnectionState = "connection.state"
	EventMuteState       = "mute.state"
	EventStatus          = "status"
	EventP2PMessage      = "p2p.message"
	EventNavigate        = "navigation.update"
)

// Event is the JSON envelope the runtime emits. Fields are populated
// depending on Type; unused fields are zero.
type Event struct {
	Type string `json:"type"`

	// conversation.item.appended, p2p.message
	ID        string    `json:"id,omitempty"`
	Role      string    `json:"role,omitempty"`
	Text      string    `json:"text,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`

	// assistant.transcript.delta
	Delta string `json:"delta,omitempty"`

	// response.output_item.added
	Item json.RawMessage `json:"item,omitempty"`

	// response.done
	Response json.RawMessage `json:"response,omitempty"`

	// connection.state, mute.state, status
	Connected bool   `json:"connected,omitempty"`
	Muted     bool   `json:"muted,omitempty"`
	Status    string `json:"status,omitempty"`

	// navigation.update
	Payload json.RawMessage `json:"payload,omitempty"`
}

// HistoryEntry is one raw conversation entry as the runtime reports it.
// ID may be empty; Text may be blank (such entries carry no transcript).
type HistoryEntry struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is the capability surface the gateway consumes from the
// assistant runtime. Implementations must be safe for concurrent use.
type Conversation interface {
	// Connect establishes the runtime session and blocks until the runtime
	// signals readiness or ctx expires. Idempotence is the caller's concern.
	Connect(ctx context.Context) error

	// SendText forwards a user utterance to the runtime.
	SendText(ctx context.Context, text string) error

	// History returns the runtime's full conversation history.
	History(ctx context.Context) ([]HistoryEntry, error)

	// Mute toggles the runtime's audio input.
	Mute(ctx context.Context, muted bool) error

	// SetBackground switches the avatar's background scene.
	SetBackground(ctx context.Context, id string) error

	// Events returns the runtime event stream. The channel is closed when
	// the underlying connection is lost or Close is called.
	Events() <-chan Event

	// Close tears down the connection. Safe to call more than once.
	Close() error
}

// FunctionCallItem is the structured output item carried by
// response.output_item.added for tool invocations. Arguments may arrive
// either as an object or as a string-encoded JSON document.
type FunctionCallItem struct {
	Type      string          `json:"type"`
	CallID    string          `json:"call_id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ParseArguments decodes the item's arguments, tolerating the
// string-encoded form. Returns nil (not an error) for empty arguments.
func (f *FunctionCallItem) ParseArguments() (map[string]any, error) {
	raw := f.Arguments
	if len(raw) == 0 {
		return nil, nil
	}
	// String-encoded JSON: unquote first, then decode the inner document.
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, err
		}
		if inner == "" {
			return nil, nil
		}
		raw = []byte(inner)
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	return args, nil
}
