// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fieldline/gridcast/internal/adapters/registry"
	"github.com/fieldline/gridcast/internal/domain/model"
	"github.com/fieldline/gridcast/pkg/metrics"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	deps Dependencies
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(deps Dependencies) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// healthResponse is the GET /healthz body: per-model breaker state plus the
// feature schema version in service.
type healthResponse struct {
	Status        string            `json:"status"`
	SchemaVersion string            `json:"schema_version"`
	Models        []registry.Health `json:"models"`
}

// HandleHealth handles GET /healthz requests. The process answers ok as long
// as it can serve anything; individual model health is reported per model,
// and the overall status only degrades when no model is healthy.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}

	models := h.deps.Models()
	status := "degraded"
	for _, m := range models {
		if m.Status == model.StatusHealthy {
			status = "ok"
			break
		}
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:        status,
		SchemaVersion: h.deps.SchemaVersion(),
		Models:        models,
	})
}

// HandleMetrics serves Prometheus metrics from our custom registry.
func (h *HealthHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
