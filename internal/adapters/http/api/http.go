// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/fieldline/gridcast/internal/adapters/featurestore"
	"github.com/fieldline/gridcast/internal/adapters/registry"
	service "github.com/fieldline/gridcast/internal/app"
	"github.com/fieldline/gridcast/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// PredictMatchup computes or serves a cached prediction for one game.
	PredictMatchup(ctx context.Context, req service.MatchupRequest) (model.CombinedPrediction, error)

	// PredictMany runs a batch of predictions with per-item isolation.
	PredictMany(ctx context.Context, reqs []service.MatchupRequest) ([]service.BatchItem, error)

	// Models returns per-model health snapshots.
	Models() []registry.Health

	// Matchups lists matchups with stored feature snapshots for a week.
	Matchups(ctx context.Context, season, week int) ([]featurestore.Matchup, error)

	// SchemaVersion reports the feature schema version in service.
	SchemaVersion() string
}

// Server wires HTTP routes for the business API.
type Server struct {
	predictHandler  *PredictHandler
	batchHandler    *BatchHandler
	healthHandler   *HealthHandler
	modelsHandler   *ModelsHandler
	matchupsHandler *MatchupsHandler
	statsHandler    *StatsHandler
	limiter         *rate.Limiter
}

// NewServer creates a new API server with all handlers. A nil limiter
// disables rate limiting.
func NewServer(deps Dependencies, statsProvider StatsProvider, limiter *rate.Limiter) *Server {
	return &Server{
		predictHandler:  NewPredictHandler(deps),
		batchHandler:    NewBatchHandler(deps),
		healthHandler:   NewHealthHandler(deps),
		modelsHandler:   NewModelsHandler(deps),
		matchupsHandler: NewMatchupsHandler(deps),
		statsHandler:    NewStatsHandler(statsProvider),
		limiter:         limiter,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	wrap := func(next http.HandlerFunc, endpoint string) http.HandlerFunc {
		return RequestIDMiddleware(RateLimitMiddleware(s.limiter, MetricsMiddleware(next, endpoint)))
	}

	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", MetricsMiddleware(s.healthHandler.HandleMetrics, "metrics"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/predict/batch", wrap(s.batchHandler.HandlePostBatch, "predict_batch"))
	mux.HandleFunc("/predict", wrap(s.predictHandler.HandleGetPredict, "predict"))
	mux.HandleFunc("/models", wrap(s.modelsHandler.HandleGetModels, "models"))
	mux.HandleFunc("/matchups", wrap(s.matchupsHandler.HandleGetMatchups, "matchups"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError maps domain errors to HTTP responses. The taxonomy is
// fixed: validation is the caller's fault, missing data is 404, temporary
// unavailability is 503, everything else is 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case model.IsValidation(err):
		writeError(w, http.StatusBadRequest, "validation_error", err)
	case errors.Is(err, featurestore.ErrNotFound):
		writeError(w, http.StatusNotFound, "matchup_not_found", err)
	case errors.Is(err, featurestore.ErrNotYetAvailable):
		writeError(w, http.StatusServiceUnavailable, "feature_unavailable", err)
	case errors.Is(err, model.ErrEnsembleUnavailable):
		writeError(w, http.StatusServiceUnavailable, "ensemble_unavailable", err)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
