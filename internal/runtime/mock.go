package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockConversation is a scripted stand-in for the real runtime, used in dev
// mode and tests. It echoes every sent utterance back as an assistant reply
// and keeps its own history, like the real runtime does.
type MockConversation struct {
	mu        sync.Mutex
	connected bool
	closed    bool
	history   []HistoryEntry
	events    chan Event

	// ConnectErr, when set, makes Connect fail.
	ConnectErr error
	// SendErr, when set, makes SendText fail.
	SendErr error
	// Reply builds the assistant echo for a sent text. Defaults to a canned line.
	Reply func(text string) string
}

// NewMock creates a connected-on-demand mock conversation.
func NewMock() *MockConversation {
	return &MockConversation{
		events: make(chan Event, 64),
	}
}

func (m *MockConversation) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	if m.closed {
		return fmt.Errorf("conversation closed")
	}
	if !m.connected {
		m.connected = true
		m.emit(Event{Type: EventSessionReady})
		m.emit(Event{Type: EventConnectionState, Connected: true})
	}
	return nil
}

func (m *MockConversation) SendText(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	if !m.connected {
		return fmt.Errorf("not connected")
	}

	now := time.Now()
	m.history = append(m.history, HistoryEntry{
		ID: uuid.NewString(), Role: "user", Text: text, Timestamp: now,
	})

	reply := "You said: " + text
	if m.Reply != nil {
		reply = m.Reply(text)
	}
	entry := HistoryEntry{
		ID: uuid.NewString(), Role: "assistant", Text: reply, Timestamp: now.Add(time.Millisecond),
	}
	m.history = append(m.history, entry)

	m.emit(Event{Type: EventTranscriptDelta, Delta: reply})
	m.emit(Event{
		Type: EventItemAppended,
		ID:   entry.ID, Role: entry.Role, Text: entry.Text, Timestamp: entry.Timestamp,
	})
	m.emit(Event{Type: EventResponseDone})
	return nil
}

func (m *MockConversation) History(ctx context.Context) ([]HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]HistoryEntry, len(m.history))
	copy(out, m.history)
	return out, nil
}

func (m *MockConversation) Mute(ctx context.Context, muted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emit(Event{Type: EventMuteState, Muted: muted})
	return nil
}

func (m *MockConversation) SetBackground(ctx context.Context, id string) error {
	return nil
}

func (m *MockConversation) Events() <-chan Event {
	return m.events
}

func (m *MockConversation) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		m.connected = false
		close(m.events)
	}
	return nil
}

// Emit injects an arbitrary event, for tests that script runtime behavior.
func (m *MockConversation) Emit(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.emit(ev)
	}
}

// AddHistory seeds the mock's history, for tests exercising the poll path.
func (m *MockConversation) AddHistory(entries ...HistoryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, entries...)
}

func (m *MockConversation) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
	}
}
