package handler

import (
	"net/http"
	"strings"

	"github.com/teleglass/gateway/internal/api/response"
	"github.com/teleglass/gateway/internal/service"
)

// AccessHandler handles the access code flow.
type AccessHandler struct {
	access *service.AccessService
}

// NewAccessHandler creates a new AccessHandler.
func NewAccessHandler(access *service.AccessService) *AccessHandler {
	return &AccessHandler{access: access}
}

type requestCodeRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Request handles POST /access/request.
func (h *AccessHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req requestCodeRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		response.Error(w, http.StatusBadRequest, "email is required")
		return
	}

	if err := h.access.RequestCode(r.Context(), req.Email, req.Phone); err != nil {
		if strings.Contains(err.Error(), "invalid email") {
			response.Error(w, http.StatusBadRequest, "invalid email")
			return
		}
		response.Error(w, http.StatusBadGateway, "failed to send access code")
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{"message": "code sent"})
}

type verifyCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// Verify handles POST /access/verify. On success the session token is
// set as an HttpOnly cookie and also returned in the body for clients
// that prefer a bearer header.
func (h *AccessHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Code == "" {
		response.Error(w, http.StatusBadRequest, "email and code are required")
		return
	}

	token, err := h.access.Verify(r.Context(), w, req.Email, req.Code)
	if err != nil {
		response.Error(w, http.StatusUnauthorized, "invalid or expired code")
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{"token": token})
}
