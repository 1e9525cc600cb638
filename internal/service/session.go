package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/teleglass/gateway/internal/bridge"
	"github.com/teleglass/gateway/internal/nav"
	"github.com/teleglass/gateway/internal/runtime"
)

var sessionTracer = otel.Tracer("teleglass/service/session")

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = fmt.Errorf("session not found")

// Session binds one browser conversation to its runtime connection,
// bridge, and navigation state.
type Session struct {
	ID     string
	Owner  string // verified email of the session holder
	Bridge *bridge.Bridge
	Conv   runtime.Conversation
	Router *nav.Router

	mu         sync.Mutex
	lastActive time.Time
	cancel     context.CancelFunc
}

// Touch records activity on the session.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActive)
}

// SessionService creates and tracks live sessions, pumps runtime events
// into each session's bridge and router, and reaps idle sessions.
type SessionService struct {
	dial         func(ctx context.Context) (runtime.Conversation, error)
	logger       *slog.Logger
	pollInterval time.Duration
	idleTimeout  time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
	onClose  func(id string)

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewSessionService creates a new SessionService. dial produces a fresh
// runtime conversation per session.
func NewSessionService(
	dial func(ctx context.Context) (runtime.Conversation, error),
	logger *slog.Logger,
	pollInterval time.Duration,
	idleTimeout time.Duration,
) *SessionService {
	return &SessionService{
		dial:         dial,
		logger:       logger,
		pollInterval: pollInterval,
		idleTimeout:  idleTimeout,
		sessions:     make(map[string]*Session),
		stopCh:       make(chan struct{}),
	}
}

// OnClose registers fn to run whenever a session is torn down, whether by
// an explicit delete, the idle reaper, or shutdown. Per-session state held
// elsewhere (acknowledgments) is released through this hook.
func (s *SessionService) OnClose(fn func(id string)) {
	s.mu.Lock()
	s.onClose = fn
	s.mu.Unlock()
}

// Start begins the idle-session reaper loop in a goroutine.
func (s *SessionService) Start() {
	go s.reap()
	s.logger.Info("session service started", "idle_timeout", s.idleTimeout)
}

// Stop closes all sessions and stops the reaper.
func (s *SessionService) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		_ = s.Close(id)
	}
	s.logger.Info("session service stopped")
}

// Create opens a new session for the owner: dials the runtime, builds the
// bridge and router, starts the event pump and the history poll.
func (s *SessionService) Create(ctx context.Context, owner string) (*Session, error) {
	ctx, span := sessionTracer.Start(ctx, "session.create")
	defer span.End()

	conv, err := s.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial runtime: %w", err)
	}

	br := bridge.New(conv, s.logger)
	sess := &Session{
		ID:         uuid.NewString(),
		Owner:      owner,
		Bridge:     br,
		Conv:       conv,
		Router:     nav.NewRouter(),
		lastActive: time.Now(),
	}
	span.SetAttributes(attribute.String("session_id", sess.ID))

	pumpCtx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel
	go s.pump(pumpCtx, sess)

	br.StartPolling(s.pollInterval)

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.logger.Info("session created", "session_id", sess.ID, "owner", owner)
	return sess, nil
}

// Get returns a live session by id, touching its activity clock.
func (s *SessionService) Get(id string) (*Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.Touch(time.Now())
	return sess, nil
}

// Close tears down a session: stops the pump and poll, closes the runtime
// connection.
func (s *SessionService) Close(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	onClose := s.onClose
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	sess.cancel()
	sess.Bridge.Close()
	if err := sess.Conv.Close(); err != nil {
		s.logger.Warn("runtime close failed", "session_id", id, "error", err)
	}
	if onClose != nil {
		onClose(id)
	}
	s.logger.Info("session closed", "session_id", id)
	return nil
}

// pump routes runtime events: navigation updates go to the router,
// everything else to the bridge. A malformed navigation payload is logged
// and the view state left untouched.
func (s *SessionService) pump(ctx context.Context, sess *Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sess.Conv.Events():
			if !ok {
				sess.Bridge.HandleConnectionChange(false)
				return
			}
			if ev.Type == runtime.EventNavigate {
				if _, _, err := sess.Router.ApplyRaw(ev.Payload); err != nil {
					s.logger.Warn("navigation payload rejected", "session_id", sess.ID, "error", err)
				}
				continue
			}
			sess.Bridge.Apply(ev)
		}
	}
}

func (s *SessionService) reap() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			var idle []string
			for id, sess := range s.sessions {
				if sess.idleSince(now) >= s.idleTimeout {
					idle = append(idle, id)
				}
			}
			s.mu.Unlock()
			for _, id := range idle {
				s.logger.Info("closing idle session", "session_id", id)
				_ = s.Close(id)
			}
		}
	}
}
