package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/teleglass/gateway/internal/api/middleware"
	"github.com/teleglass/gateway/internal/api/response"
	"github.com/teleglass/gateway/internal/bridge"
	"github.com/teleglass/gateway/internal/service"
)

var sessionHandlerTracer = otel.Tracer("teleglass/handler/session")

const maxPayloadBytes = 64 << 10

// SessionHandler handles session lifecycle, transcript, navigation, and
// acknowledgment endpoints.
type SessionHandler struct {
	sessions *service.SessionService
	acks     *service.AckService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *service.SessionService, acks *service.AckService) *SessionHandler {
	return &SessionHandler{sessions: sessions, acks: acks}
}

// resolve looks up the session from the route and verifies the caller
// owns it. Admin API key callers may reach any session.
func (h *SessionHandler) resolve(w http.ResponseWriter, r *http.Request) (*service.Session, bool) {
	sess, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		handleSessionError(w, err)
		return nil, false
	}
	email := middleware.EmailFromContext(r.Context())
	if !middleware.IsAdminContext(r.Context()) && sess.Owner != email {
		response.Error(w, http.StatusForbidden, "not your session")
		return nil, false
	}
	return sess, true
}

func handleSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrSessionNotFound) {
		response.Error(w, http.StatusNotFound, "session not found")
		return
	}
	response.Error(w, http.StatusInternalServerError, "internal error")
}

// Create handles POST /sessions.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, span := sessionHandlerTracer.Start(r.Context(), "session.create")
	defer span.End()

	email := middleware.EmailFromContext(ctx)
	if email == "" && !middleware.IsAdminContext(ctx) {
		response.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	sess, err := h.sessions.Create(ctx, email)
	if err != nil {
		response.Error(w, http.StatusBadGateway, "failed to start session")
		return
	}
	span.SetAttributes(attribute.String("session_id", sess.ID))

	response.JSON(w, http.StatusCreated, map[string]any{
		"id":   sess.ID,
		"view": sess.Router.View(),
	})
}

// Delete handles DELETE /sessions/{id}.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if err := h.sessions.Close(sess.ID); err != nil {
		handleSessionError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"message": "session closed"})
}

// Messages handles GET /sessions/{id}/messages.
func (h *SessionHandler) Messages(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.resolve(w, r)
	if !ok {
		return
	}
	snap := sess.Bridge.Snapshot()
	response.JSON(w, http.StatusOK, snap)
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

// Send handles POST /sessions/{id}/messages.
func (h *SessionHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx, span := sessionHandlerTracer.Start(r.Context(), "session.send")
	defer span.End()

	sess, ok := h.resolve(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		response.Error(w, http.StatusBadRequest, "text is required")
		return
	}

	// Send failures surface to the user as a fallback bubble in the
	// transcript, not as an HTTP error.
	if err := sess.Bridge.Send(ctx, req.Text); err != nil {
		span.RecordError(err)
	}
	sess.Touch(time.Now())

	response.JSON(w, http.StatusAccepted, sess.Bridge.Snapshot())
}

type externalMessageRequest struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// External handles POST /sessions/{id}/external. Side-channel messages
// are merged into the transcript without touching the runtime.
func (h *SessionHandler) External(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.resolve(w, r)
	if !ok {
		return
	}

	var req externalMessageRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	role := bridge.Role(req.Role)
	if role != bridge.RoleUser && role != bridge.RoleAssistant {
		response.Error(w, http.StatusBadRequest, "role must be user or assistant")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		response.Error(w, http.StatusBadRequest, "text is required")
		return
	}

	sess.Bridge.AddExternal(role, req.Text, time.Now())
	response.JSON(w, http.StatusOK, sess.Bridge.Snapshot())
}

// Navigate handles POST /sessions/{id}/navigate. The body is the raw
// directive payload; a malformed payload is rejected and leaves the
// current view untouched.
func (h *SessionHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.resolve(w, r)
	if !ok {
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "failed to read body")
		return
	}

	changed, scrollTop, err := sess.Router.ApplyRaw(raw)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid navigation payload")
		return
	}
	sess.Touch(time.Now())

	response.JSON(w, http.StatusOK, map[string]any{
		"view":       sess.Router.View(),
		"changed":    changed,
		"scroll_top": scrollTop,
	})
}

// View handles GET /sessions/{id}/view.
func (h *SessionHandler) View(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.resolve(w, r)
	if !ok {
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"view": sess.Router.View()})
}

// Ack handles POST /sessions/{id}/ack/{ackID}.
func (h *SessionHandler) Ack(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.resolve(w, r)
	if !ok {
		return
	}

	fired, err := h.acks.Acknowledge(r.Context(), sess.ID, chi.URLParam(r, "ackID"))
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			response.Error(w, http.StatusNotFound, "session not found")
			return
		}
		response.Error(w, http.StatusBadRequest, "unknown acknowledgment")
		return
	}
	response.JSON(w, http.StatusOK, map[string]bool{"fired": fired})
}

type muteRequest struct {
	Muted bool `json:"muted"`
}

// Mute handles POST /sessions/{id}/mute, toggling the runtime's audio
// input.
func (h *SessionHandler) Mute(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.resolve(w, r)
	if !ok {
		return
	}

	var req muteRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := sess.Conv.Mute(r.Context(), req.Muted); err != nil {
		response.Error(w, http.StatusBadGateway, "failed to toggle mute")
		return
	}
	response.JSON(w, http.StatusOK, map[string]bool{"muted": req.Muted})
}

type backgroundRequest struct {
	ID string `json:"id"`
}

// Background handles POST /sessions/{id}/background, switching the
// avatar's background scene.
func (h *SessionHandler) Background(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.resolve(w, r)
	if !ok {
		return
	}

	var req backgroundRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" {
		response.Error(w, http.StatusBadRequest, "id is required")
		return
	}
	if err := sess.Conv.SetBackground(r.Context(), req.ID); err != nil {
		response.Error(w, http.StatusBadGateway, "failed to switch background")
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"background": req.ID})
}

type notifyRequest struct {
	Message string `json:"message"`
}

// Notify handles POST /sessions/{id}/notify. Free-form instructions are
// forwarded to the runtime fire-and-forget.
func (h *SessionHandler) Notify(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.resolve(w, r)
	if !ok {
		return
	}

	var req notifyRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		response.Error(w, http.StatusBadRequest, "message is required")
		return
	}

	if err := h.acks.Notify(r.Context(), sess.ID, req.Message); err != nil {
		handleSessionError(w, err)
		return
	}
	response.JSON(w, http.StatusAccepted, map[string]string{"message": "notified"})
}
