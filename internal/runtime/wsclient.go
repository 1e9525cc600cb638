package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// command is the JSON frame the gateway writes to the runtime socket.
type command struct {
	Op    string `json:"op"`
	ReqID string `json:"req_id,omitempty"`
	Text  string `json:"text,omitempty"`
	Muted bool   `json:"muted,omitempty"`
	ID    string `json:"id,omitempty"`
}

// frame is the superset of everything the runtime writes back: either a
// reply to a command (ReqID set) or an unsolicited event.
type frame struct {
	Event
	ReqID   string         `json:"req_id,omitempty"`
	Error   string         `json:"error,omitempty"`
	Entries []HistoryEntry `json:"entries,omitempty"`
}

// WSConversation talks to the assistant runtime over a WebSocket using a
// JSON envelope protocol. One reader goroutine fans frames out to either
// the event stream or a pending command reply.
type WSConversation struct {
	url          string
	readyTimeout time.Duration
	logger       *slog.Logger

	writeMu sync.Mutex // guards conn writes
	mu      sync.Mutex // guards everything below
	conn    *websocket.Conn
	pending map[string]chan *frame
	ready   chan struct{}
	closed  bool

	events chan Event
}

// NewWSConversation creates a conversation that will dial url on Connect.
// readyTimeout bounds the wait for the runtime's session.ready signal; the
// runtime never defines readiness any other way, so there are no fixed
// sleeps here.
func NewWSConversation(url string, readyTimeout time.Duration, logger *slog.Logger) *WSConversation {
	return &WSConversation{
		url:          url,
		readyTimeout: readyTimeout,
		logger:       logger,
		pending:      make(map[string]chan *frame),
		ready:        make(chan struct{}),
		events:       make(chan Event, 64),
	}
}

// Connect dials the runtime, starts the reader, issues the connect command
// and waits for session.ready. Calling Connect on an already connected
// conversation is a no-op. A failed attempt leaves the conversation
// dialable, so the caller can simply call Connect again.
func (c *WSConversation) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("conversation closed")
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial runtime: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("conversation closed")
	}
	c.conn = conn
	c.ready = make(chan struct{})
	ready := c.ready
	c.mu.Unlock()

	go c.readLoop(conn)

	if err := c.write(command{Op: "connect"}); err != nil {
		c.abort(conn)
		return fmt.Errorf("connect command: %w", err)
	}

	// Readiness is an explicit runtime signal, bounded by readyTimeout.
	timer := time.NewTimer(c.readyTimeout)
	defer timer.Stop()
	select {
	case <-ready:
		return nil
	case <-timer.C:
		c.abort(conn)
		return fmt.Errorf("runtime not ready after %s", c.readyTimeout)
	case <-ctx.Done():
		c.abort(conn)
		return ctx.Err()
	}
}

// abort tears down a failed connect attempt: the socket is closed and
// pending replies dropped, but the conversation stays open for a redial.
func (c *WSConversation) abort(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
	conn.Close()
}

// SendText forwards a user utterance to the runtime.
func (c *WSConversation) SendText(ctx context.Context, text string) error {
	if err := c.write(command{Op: "send_text", Text: text}); err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	return nil
}

// History requests the full conversation history over the socket and waits
// for the correlated reply.
func (c *WSConversation) History(ctx context.Context) ([]HistoryEntry, error) {
	reqID := uuid.NewString()
	replyCh := make(chan *frame, 1)

	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("not connected")
	}
	c.pending[reqID] = replyCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
	}()

	if err := c.write(command{Op: "history", ReqID: reqID}); err != nil {
		return nil, fmt.Errorf("history command: %w", err)
	}

	select {
	case reply := <-replyCh:
		if reply == nil {
			return nil, fmt.Errorf("connection lost")
		}
		if reply.Error != "" {
			return nil, fmt.Errorf("runtime: %s", reply.Error)
		}
		return reply.Entries, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Mute toggles the runtime's audio input.
func (c *WSConversation) Mute(ctx context.Context, muted bool) error {
	return c.write(command{Op: "mute", Muted: muted})
}

// SetBackground switches the avatar's background scene.
func (c *WSConversation) SetBackground(ctx context.Context, id string) error {
	return c.write(command{Op: "background", ID: id})
}

// Events returns the runtime event stream.
func (c *WSConversation) Events() <-chan Event {
	return c.events
}

// Close tears down the conversation for good: the connection is dropped,
// the event stream closes, and further Connect calls fail. Safe to call
// more than once.
func (c *WSConversation) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	close(c.events)
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		return conn.Close()
	}
	return nil
}

func (c *WSConversation) write(cmd command) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(cmd)
}

func (c *WSConversation) readLoop(conn *websocket.Conn) {
	// On exit only this attempt's state is torn down; the conversation
	// itself stays dialable unless Close was called. Event sends happen
	// under the lock so Close can safely close the channel.
	defer func() {
		c.mu.Lock()
		current := c.conn == conn
		if current {
			c.conn = nil
		}
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		if current && !c.closed {
			select {
			case c.events <- Event{Type: EventConnectionState, Connected: false}:
			default:
			}
		}
		c.mu.Unlock()
	}()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Error("runtime read failed", "url", c.url, "error", err)
			}
			return
		}

		// Command reply
		if f.ReqID != "" {
			c.mu.Lock()
			ch, ok := c.pending[f.ReqID]
			if ok {
				delete(c.pending, f.ReqID)
			}
			c.mu.Unlock()
			if ok {
				ch <- &f
			}
			continue
		}

		c.mu.Lock()
		if f.Type == EventSessionReady && c.conn == conn {
			select {
			case <-c.ready:
			default:
				close(c.ready)
			}
		}
		if !c.closed {
			select {
			case c.events <- f.Event:
			default:
				// Consumer stalled; drop rather than block the socket reader.
				c.logger.Warn("runtime event dropped", "type", f.Type)
			}
		}
		c.mu.Unlock()
	}
}
