package handler

import (
	"context"
	"net/http"

	"github.com/teleglass/gateway/internal/api/middleware"
	"github.com/teleglass/gateway/internal/api/response"
)

// AliasPatcher updates a mailbox alias on the mail relay.
type AliasPatcher interface {
	PatchAlias(ctx context.Context, mailbox, alias string) error
}

type patchAliasRequest struct {
	Mailbox string `json:"mailbox"`
	Alias   string `json:"alias"`
}

// PatchAlias handles POST /admin/alias, an operator-only maintenance
// call that repoints a relay mailbox alias.
func PatchAlias(patcher AliasPatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !middleware.IsAdminContext(r.Context()) {
			response.Error(w, http.StatusForbidden, "admin access required")
			return
		}

		var req patchAliasRequest
		if err := response.Decode(r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Mailbox == "" || req.Alias == "" {
			response.Error(w, http.StatusBadRequest, "mailbox and alias are required")
			return
		}

		if err := patcher.PatchAlias(r.Context(), req.Mailbox, req.Alias); err != nil {
			response.Error(w, http.StatusBadGateway, "failed to patch alias")
			return
		}
		response.JSON(w, http.StatusOK, map[string]string{"message": "alias updated"})
	}
}
