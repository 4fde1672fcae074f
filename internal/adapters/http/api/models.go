// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"

	"github.com/fieldline/gridcast/internal/adapters/registry"
)

// ModelsHandler handles model listing requests.
type ModelsHandler struct {
	deps Dependencies
}

// NewModelsHandler creates a new models handler.
func NewModelsHandler(deps Dependencies) *ModelsHandler {
	return &ModelsHandler{deps: deps}
}

// modelsResponse wraps the model list.
type modelsResponse struct {
	Models []registry.Health `json:"models"`
}

// HandleGetModels handles GET /models requests.
func (h *ModelsHandler) HandleGetModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}
	writeJSON(w, http.StatusOK, modelsResponse{Models: h.deps.Models()})
}
