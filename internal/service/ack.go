package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// acknowledgments maps short ids to the canned presentation instructions
// forwarded to the assistant runtime. Each fires at most once per session.
var acknowledgments = map[string]string{
	"nav-back":        "The visitor navigated back. Briefly reorient them to where they are now.",
	"template-open":   "The visitor opened the template you presented. Walk them through it.",
	"nda-accepted":    "The visitor completed the access verification. Thank them and continue.",
	"quiz-complete":   "The visitor finished the quiz. Summarize how they did.",
	"survey-complete": "The visitor submitted the survey. Thank them for the feedback.",
	"scroll-bottom":   "The visitor reached the end of the section. Offer the next step.",
}

// AckService sends canned, session-deduplicated acknowledgments and
// free-form notifications to the assistant runtime.
type AckService struct {
	sessions *SessionService
	logger   *slog.Logger

	mu    sync.Mutex
	fired map[string]map[string]bool // session id → acknowledgment ids sent
}

// NewAckService creates a new AckService.
func NewAckService(sessions *SessionService, logger *slog.Logger) *AckService {
	return &AckService{
		sessions: sessions,
		logger:   logger,
		fired:    make(map[string]map[string]bool),
	}
}

// Acknowledge fires the canned message for id at most once per session.
// Returns whether it fired. Runtime send failures are logged, never
// propagated: the acknowledgment is still considered fired so the session
// is not re-prompted.
func (a *AckService) Acknowledge(ctx context.Context, sessionID, id string) (bool, error) {
	message, ok := acknowledgments[id]
	if !ok {
		return false, fmt.Errorf("unknown acknowledgment %q", id)
	}

	sess, err := a.sessions.Get(sessionID)
	if err != nil {
		return false, err
	}

	a.mu.Lock()
	sent := a.fired[sessionID]
	if sent == nil {
		sent = make(map[string]bool)
		a.fired[sessionID] = sent
	}
	if sent[id] {
		a.mu.Unlock()
		return false, nil
	}
	sent[id] = true
	a.mu.Unlock()

	a.forward(ctx, sess, message)
	return true, nil
}

// Notify forwards a free-form instruction to the session's runtime,
// fire-and-forget.
func (a *AckService) Notify(ctx context.Context, sessionID, message string) error {
	sess, err := a.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	a.forward(ctx, sess, message)
	return nil
}

// Reset clears the per-session dedup state, used when a session ends.
func (a *AckService) Reset(sessionID string) {
	a.mu.Lock()
	delete(a.fired, sessionID)
	a.mu.Unlock()
}

func (a *AckService) forward(ctx context.Context, sess *Session, message string) {
	sess.Bridge.MarkThinking()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sess.Conv.SendText(ctx, message); err != nil {
		a.logger.Warn("acknowledgment send failed", "session_id", sess.ID, "error", err)
	}
}
