// Package bridge reconciles the assistant conversation into one consistent,
// time-ordered transcript. Three independent sources race to produce
// messages: the runtime's per-message append event, a periodic poll of the
// full history (fallback for appends the event path misses), and externally
// injected peer-to-peer messages. The bridge merges all three,
// de-duplicates by id, tracks the typing/thinking indicators, and attaches
// tool-call metadata to the assistant message that owns it.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/teleglass/gateway/internal/runtime"
)

var tracer = otel.Tracer("teleglass/bridge")
var meter = otel.Meter("teleglass/bridge")

// FallbackErrorText is the canned assistant bubble shown when the runtime
// cannot be reached or a send fails.
const FallbackErrorText = "Sorry, I'm having trouble connecting right now. Please try again in a moment."

// reloadDelay is the short fallback-reload scheduled after each completed
// response, reconciling anything the event path missed.
const reloadDelay = 100 * time.Millisecond

// Runtime is the subset of the assistant runtime the bridge drives.
type Runtime interface {
	Connect(ctx context.Context) error
	SendText(ctx context.Context, text string) error
	History(ctx context.Context) ([]runtime.HistoryEntry, error)
}

// Snapshot is the bridge's externally visible state.
type Snapshot struct {
	Messages  []Message `json:"messages"`
	Connected bool      `json:"connected"`
	Typing    bool      `json:"typing"`
	Thinking  bool      `json:"thinking"`
}

// Bridge merges runtime events, history polls, and external messages into
// one transcript. All methods are safe for concurrent use.
type Bridge struct {
	rt     Runtime
	logger *slog.Logger

	mu         sync.Mutex
	transcript *Transcript
	external   []Message

	connected bool
	typing    bool
	thinking  bool

	// In-flight connect attempt; later callers wait on it instead of
	// re-invoking the runtime.
	connectCh  chan struct{}
	connectErr error

	// Tool calls captured during the current response cycle, keyed by call
	// id, drained exactly once on response completion.
	pending    []ToolCall
	pendingIdx map[string]int

	// Calls drained by a completed response that had no assistant message
	// to own them yet; attached to the next appended assistant message.
	staged []ToolCall

	subs map[chan Snapshot]struct{}

	pollStop    chan struct{}
	pollStarted bool
	reloadMu    sync.Mutex
	reloadTimer *time.Timer

	now func() time.Time

	messagesCtr  metric.Int64Counter
	toolCallsCtr metric.Int64Counter
}

// New creates a bridge over the given runtime.
func New(rt Runtime, logger *slog.Logger) *Bridge {
	messagesCtr, _ := meter.Int64Counter("teleglass.bridge.messages",
		metric.WithDescription("Messages merged into the transcript, by source"))
	toolCallsCtr, _ := meter.Int64Counter("teleglass.bridge.tool_calls",
		metric.WithDescription("Tool calls captured, attached, and restaged"))

	return &Bridge{
		rt:           rt,
		logger:       logger,
		transcript:   NewTranscript(),
		pendingIdx:   make(map[string]int),
		subs:         make(map[chan Snapshot]struct{}),
		pollStop:     make(chan struct{}),
		now:          time.Now,
		messagesCtr:  messagesCtr,
		toolCallsCtr: toolCallsCtr,
	}
}

// Connect establishes the runtime session. Idempotent: if already connected
// it returns immediately, and if an attempt is in flight the caller waits
// for that attempt's outcome instead of re-invoking the runtime. No retry
// is scheduled on failure; the caller re-invokes.
func (b *Bridge) Connect(ctx context.Context) error {
	b.mu.Lock()
	if b.connected {
		b.mu.Unlock()
		return nil
	}
	if b.rt == nil {
		b.mu.Unlock()
		return fmt.Errorf("no runtime configured")
	}
	if b.connectCh != nil {
		ch := b.connectCh
		b.mu.Unlock()
		select {
		case <-ch:
			b.mu.Lock()
			err := b.connectErr
			b.mu.Unlock()
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	ch := make(chan struct{})
	b.connectCh = ch
	b.mu.Unlock()

	err := b.rt.Connect(ctx)

	b.mu.Lock()
	b.connectErr = err
	b.connected = err == nil
	b.connectCh = nil
	close(ch)
	b.mu.Unlock()
	b.notify()
	return err
}

// Send forwards a user utterance. Blank input is a no-op. The user's bubble
// is appended optimistically so the UI never waits on the network for it;
// failures surface as a canned assistant error bubble, never as an error to
// the caller.
func (b *Bridge) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	ctx, span := tracer.Start(ctx, "bridge.send")
	defer span.End()

	if err := b.Connect(ctx); err != nil {
		b.logger.Warn("send: connect failed", "error", err)
		b.appendLocal(RoleAssistant, FallbackErrorText)
		return nil
	}

	b.mu.Lock()
	msg := Message{ID: newLocalID(), Role: RoleUser, Text: text, Timestamp: b.now()}
	b.transcript.Upsert(msg)
	b.thinking = true
	b.mu.Unlock()
	b.messagesCtr.Add(ctx, 1, metric.WithAttributes(attribute.String("source", "local")))
	b.notify()

	if err := b.rt.SendText(ctx, text); err != nil {
		b.logger.Error("send: runtime send failed", "error", err)
		b.mu.Lock()
		b.typing = false
		b.thinking = false
		b.mu.Unlock()
		b.appendLocal(RoleAssistant, FallbackErrorText)
		return nil
	}

	b.mu.Lock()
	b.typing = true
	b.mu.Unlock()
	b.notify()
	return nil
}

// LoadHistory polls the runtime's full history, merges it with externally
// injected messages, and replaces the visible list. Metadata attached to
// surviving messages is preserved.
func (b *Bridge) LoadHistory(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "bridge.load_history")
	defer span.End()

	if b.rt == nil {
		return fmt.Errorf("no runtime configured")
	}
	entries, err := b.rt.History(ctx)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	b.mu.Lock()
	seen := make(map[string]bool, len(entries))
	msgs := make([]Message, 0, len(entries)+len(b.external))
	for i, e := range entries {
		m, ok := fromHistory(e, i)
		if !ok {
			continue
		}
		// A synthesized id colliding with an earlier entry would silently
		// drop the message; fall back to a fresh one instead.
		if seen[m.ID] {
			m.ID = newLocalID()
		}
		seen[m.ID] = true
		msgs = append(msgs, m)
	}
	msgs = append(msgs, b.external...)
	b.transcript.Replace(msgs)
	b.mu.Unlock()

	b.messagesCtr.Add(ctx, int64(len(msgs)), metric.WithAttributes(attribute.String("source", "poll")))
	b.notify()
	return nil
}

// AddExternal injects a message from the peer-to-peer side channel into the
// merged transcript. Blank text is a no-op.
func (b *Bridge) AddExternal(role Role, text string, ts time.Time) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if role != RoleUser {
		role = RoleAssistant
	}
	if ts.IsZero() {
		ts = b.now()
	}
	m := Message{ID: newLocalID(), Role: role, Text: text, Timestamp: ts}

	b.mu.Lock()
	b.external = append(b.external, m)
	b.transcript.Upsert(m)
	b.mu.Unlock()
	b.messagesCtr.Add(context.Background(), 1, metric.WithAttributes(attribute.String("source", "external")))
	b.notify()
}

// HandleConnectionChange records an external connection-state signal (for
// example, the avatar disconnecting). Disconnection clears the typing flag.
func (b *Bridge) HandleConnectionChange(connected bool) {
	b.mu.Lock()
	b.connected = connected
	if !connected {
		b.typing = false
	}
	b.mu.Unlock()
	b.notify()
}

// Apply routes a runtime event to the corresponding state change. Nothing
// an event carries may propagate as a failure: malformed payloads are
// logged and dropped.
func (b *Bridge) Apply(ev runtime.Event) {
	switch ev.Type {
	case runtime.EventItemAppended:
		b.onItemAppended(ev.ID, Role(ev.Role), ev.Text, ev.Timestamp)
	case runtime.EventTranscriptDelta:
		b.onTranscriptDelta()
	case runtime.EventSpeechStopped, runtime.EventBufferCommitted:
		b.onThinkingStart()
	case runtime.EventOutputItemAdded:
		b.onOutputItem(ev.Item)
	case runtime.EventResponseDone:
		b.onResponseDone(ev.Response)
	case runtime.EventSessionReady:
		b.HandleConnectionChange(true)
	case runtime.EventConnectionState:
		b.HandleConnectionChange(ev.Connected)
	case runtime.EventP2PMessage:
		b.AddExternal(Role(ev.Role), ev.Text, ev.Timestamp)
	}
}

// onItemAppended handles the once-per-message append event. An assistant
// append also claims any tool calls staged by an earlier completed response
// that had no assistant message to own them.
func (b *Bridge) onItemAppended(id string, role Role, text string, ts time.Time) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if role != RoleUser {
		role = RoleAssistant
	}
	if id == "" {
		id = newLocalID()
	}
	if ts.IsZero() {
		ts = b.now()
	}

	b.mu.Lock()
	b.transcript.Upsert(Message{ID: id, Role: role, Text: text, Timestamp: ts})
	if role != RoleUser {
		b.typing = false
		b.thinking = false
	}
	if role == RoleAssistant && len(b.staged) > 0 {
		b.transcript.AttachToolCalls(id, b.staged)
		b.transcript.AttachSearches(id, searchRecords(b.staged))
		b.toolCallsCtr.Add(context.Background(), int64(len(b.staged)),
			metric.WithAttributes(attribute.String("phase", "attached_late")))
		b.staged = nil
	}
	b.mu.Unlock()
	b.messagesCtr.Add(context.Background(), 1, metric.WithAttributes(attribute.String("source", "event")))
	b.notify()
}

// onTranscriptDelta marks the assistant as actively producing output.
func (b *Bridge) onTranscriptDelta() {
	b.mu.Lock()
	b.typing = true
	b.thinking = false
	b.mu.Unlock()
	b.notify()
}

// onThinkingStart handles the two low-level audio-buffer signals that both
// mean the assistant heard the user and is working.
func (b *Bridge) onThinkingStart() {
	b.mu.Lock()
	b.thinking = true
	b.mu.Unlock()
	b.notify()
}

// MarkThinking raises the thinking indicator from outside the event path,
// used when an instruction is forwarded to the assistant on the caller's
// behalf.
func (b *Bridge) MarkThinking() {
	b.onThinkingStart()
}

// onOutputItem captures a function-call output item into the pending
// buffer, keyed by call id. Malformed items are swallowed so a bad tool
// call never breaks the chat.
func (b *Bridge) onOutputItem(raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	var item runtime.FunctionCallItem
	if err := json.Unmarshal(raw, &item); err != nil {
		b.logger.Debug("output item dropped", "error", err)
		return
	}
	if item.Type != "function_call" {
		return
	}
	args, err := item.ParseArguments()
	if err != nil {
		b.logger.Debug("tool call arguments dropped", "name", item.Name, "error", err)
		return
	}

	call := ToolCall{ID: item.CallID, Name: item.Name, Arguments: args, Timestamp: b.now()}

	b.mu.Lock()
	key := item.CallID
	if key == "" {
		key = fmt.Sprintf("%s-%d", item.Name, len(b.pending))
	}
	if i, ok := b.pendingIdx[key]; ok {
		b.pending[i] = call
	} else {
		b.pendingIdx[key] = len(b.pending)
		b.pending = append(b.pending, call)
	}
	b.mu.Unlock()
	b.toolCallsCtr.Add(context.Background(), 1, metric.WithAttributes(attribute.String("phase", "captured")))
}

// onResponseDone runs the completion algorithm, once per assistant turn:
//
//  1. Clear typing and thinking.
//  2. Drain the pending tool-call buffer (drain-once: the buffer is always
//     cleared, even when empty, so nothing leaks into the next turn).
//  3. Attach drained calls to the most recent assistant message.
//  4. Redundant path: if the completion payload carries an audio transcript
//     the append event never delivered, synthesize the assistant message,
//     carrying the drained calls if step 3 found no owner.
//  5. Calls still without an owner are staged for the next assistant
//     append rather than dropped.
//  6. Schedule a short-delayed history reload to reconcile anything the
//     steps above missed.
func (b *Bridge) onResponseDone(raw json.RawMessage) {
	b.mu.Lock()
	b.typing = false
	b.thinking = false

	calls := b.pending
	b.pending = nil
	b.pendingIdx = make(map[string]int)

	attached := false
	if len(calls) > 0 {
		if id, ok := b.transcript.LastAssistantID(); ok {
			b.transcript.AttachToolCalls(id, calls)
			b.transcript.AttachSearches(id, searchRecords(calls))
			attached = true
		}
	}

	if text := audioTranscript(raw); text != "" && !b.transcript.ContainsText(RoleAssistant, text) {
		m := Message{ID: newLocalID(), Role: RoleAssistant, Text: text, Timestamp: b.now()}
		if !attached && len(calls) > 0 {
			m.ToolCalls = calls
			m.Searches = searchRecords(calls)
			attached = true
		}
		b.transcript.Upsert(m)
	}

	if !attached && len(calls) > 0 {
		b.staged = append(b.staged, calls...)
		b.toolCallsCtr.Add(context.Background(), int64(len(calls)),
			metric.WithAttributes(attribute.String("phase", "staged")))
	} else if attached {
		b.toolCallsCtr.Add(context.Background(), int64(len(calls)),
			metric.WithAttributes(attribute.String("phase", "attached")))
	}
	b.mu.Unlock()

	b.notify()
	b.scheduleReload()
}

// Snapshot returns a copy of the bridge's visible state.
func (b *Bridge) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

// Subscribe registers for state snapshots. The returned cancel must be
// called when done. Slow subscribers see only the latest snapshot; the
// bridge never blocks on them.
func (b *Bridge) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	ch <- b.snapshotLocked()
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// StartPolling begins the periodic history poll, the fallback for append
// events that never fire (for example while the panel is hidden).
func (b *Bridge) StartPolling(interval time.Duration) {
	b.mu.Lock()
	if b.pollStarted {
		b.mu.Unlock()
		return
	}
	b.pollStarted = true
	b.mu.Unlock()
	go b.poll(interval)
}

// Close stops the poller and any scheduled reload.
func (b *Bridge) Close() {
	b.mu.Lock()
	started := b.pollStarted
	b.pollStarted = false
	b.mu.Unlock()
	if started {
		close(b.pollStop)
	}
	b.reloadMu.Lock()
	if b.reloadTimer != nil {
		b.reloadTimer.Stop()
	}
	b.reloadMu.Unlock()
}

func (b *Bridge) poll(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.pollStop:
			return
		case <-ticker.C:
			b.mu.Lock()
			connected := b.connected
			b.mu.Unlock()
			if !connected {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := b.LoadHistory(ctx); err != nil {
				b.logger.Debug("history poll failed", "error", err)
			}
			cancel()
		}
	}
}

func (b *Bridge) scheduleReload() {
	b.reloadMu.Lock()
	defer b.reloadMu.Unlock()
	if b.reloadTimer != nil {
		b.reloadTimer.Stop()
	}
	b.reloadTimer = time.AfterFunc(reloadDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.LoadHistory(ctx); err != nil {
			b.logger.Debug("fallback reload failed", "error", err)
		}
	})
}

func (b *Bridge) appendLocal(role Role, text string) {
	b.mu.Lock()
	b.transcript.Upsert(Message{ID: newLocalID(), Role: role, Text: text, Timestamp: b.now()})
	b.mu.Unlock()
	b.notify()
}

func (b *Bridge) snapshotLocked() Snapshot {
	return Snapshot{
		Messages:  b.transcript.Messages(),
		Connected: b.connected,
		Typing:    b.typing,
		Thinking:  b.thinking,
	}
}

func (b *Bridge) notify() {
	b.mu.Lock()
	snap := b.snapshotLocked()
	for ch := range b.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
	b.mu.Unlock()
}

// searchRecords derives retrieval metadata from tool calls against the
// knowledge-search tools.
func searchRecords(calls []ToolCall) []Search {
	var out []Search
	for _, c := range calls {
		if c.Name != "rag_search" && c.Name != "search_knowledge" {
			continue
		}
		query, _ := c.Arguments["query"].(string)
		if query == "" {
			continue
		}
		out = append(out, Search{Query: query, Timestamp: c.Timestamp})
	}
	return out
}

// audioTranscript digs the assistant transcript out of a completion
// payload's structured output, if one is present.
func audioTranscript(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var resp struct {
		Output []struct {
			Type    string `json:"type"`
			Content []struct {
				Type       string `json:"type"`
				Transcript string `json:"transcript"`
			} `json:"content"`
		} `json:"output"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ""
	}
	for _, item := range resp.Output {
		if item.Type != "message" {
			continue
		}
		for _, c := range item.Content {
			if c.Type == "audio" || c.Type == "output_audio" {
				if text := strings.TrimSpace(c.Transcript); text != "" {
					return text
				}
			}
		}
	}
	return ""
}
