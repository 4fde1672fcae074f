// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"

	service "github.com/fieldline/gridcast/internal/app"
)

// maxBatchBodyBytes caps the batch request body.
const maxBatchBodyBytes = 1 << 20 // 1 MiB

// BatchHandler handles batch prediction requests.
type BatchHandler struct {
	deps Dependencies
}

// NewBatchHandler creates a new batch handler.
func NewBatchHandler(deps Dependencies) *BatchHandler {
	return &BatchHandler{deps: deps}
}

// batchRequest mirrors the POST /predict/batch body.
type batchRequest struct {
	Matchups []service.MatchupRequest `json:"matchups"`
}

// batchResponse wraps the per-item results.
type batchResponse struct {
	Results []service.BatchItem `json:"results"`
}

// HandlePostBatch handles POST /predict/batch requests. Items are isolated:
// each result carries its own prediction or error.
func (h *BatchHandler) HandlePostBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}

	var req batchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_body", err)
		return
	}

	items, err := h.deps.PredictMany(r.Context(), req.Matchups)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, batchResponse{Results: items})
}
