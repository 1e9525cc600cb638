package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/teleglass/gateway/internal/api/middleware"
	"github.com/teleglass/gateway/internal/api/response"
	"github.com/teleglass/gateway/internal/auth"
	"github.com/teleglass/gateway/internal/service"
)

var streamTracer = otel.Tracer("teleglass/handler/stream")

const streamPingInterval = 30 * time.Second

// StreamHandler streams live transcript snapshots over WebSocket.
type StreamHandler struct {
	sessions    *service.SessionService
	jwtSecret   string
	adminAPIKey string
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(sessions *service.SessionService, jwtSecret, adminAPIKey string) *StreamHandler {
	return &StreamHandler{sessions: sessions, jwtSecret: jwtSecret, adminAPIKey: adminAPIKey}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// extractEmail gets the caller identity from context (middleware), the
// session cookie, or the ?token= query param. Browsers cannot set an
// Authorization header on a WebSocket request, hence the fallbacks.
func (h *StreamHandler) extractEmail(r *http.Request) string {
	if email := middleware.EmailFromContext(r.Context()); email != "" {
		return email
	}
	if cookie, err := r.Cookie("session"); err == nil {
		claims, err := auth.ValidateToken(h.jwtSecret, cookie.Value)
		if err == nil && claims.Purpose == "session" {
			return claims.Email
		}
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		claims, err := auth.ValidateToken(h.jwtSecret, tok)
		if err == nil && claims.Purpose == "session" {
			return claims.Email
		}
	}
	return ""
}

// isAdmin accepts the same X-API-Key credential the session routes take,
// checked directly because this endpoint sits outside the auth middleware.
func (h *StreamHandler) isAdmin(r *http.Request) bool {
	if middleware.IsAdminContext(r.Context()) {
		return true
	}
	key := r.Header.Get("X-API-Key")
	return h.adminAPIKey != "" && key == h.adminAPIKey
}

// Stream handles GET /sessions/{id}/stream. The current snapshot is sent
// immediately, then every transcript or indicator change pushes a fresh
// snapshot until the client disconnects.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	_, span := streamTracer.Start(r.Context(), "stream.transcript")
	defer span.End()

	email := h.extractEmail(r)
	admin := h.isAdmin(r)
	if email == "" && !admin {
		response.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	sess, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		handleSessionError(w, err)
		return
	}
	if !admin && sess.Owner != email {
		response.Error(w, http.StatusForbidden, "not your session")
		return
	}
	span.SetAttributes(attribute.String("session_id", sess.ID))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Subscribe seeds the channel with the current snapshot, so the
	// client sees the transcript immediately.
	snapshots, cancel := sess.Bridge.Subscribe()
	defer cancel()

	// Reader loop only watches for the client going away.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pings := time.NewTicker(streamPingInterval)
	defer pings.Stop()

	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			sess.Touch(time.Now())
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		case <-pings.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-clientGone:
			return
		}
	}
}
