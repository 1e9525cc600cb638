package handler

import (
	"net/http"

	"github.com/teleglass/gateway/internal/api/response"
	"github.com/teleglass/gateway/internal/nav"
)

// Templates returns a handler serving the generative template catalog
// with per-template prop schemas.
func Templates() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, map[string]any{
			"templates": nav.Catalog(),
		})
	}
}
