// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	service "github.com/fieldline/gridcast/internal/app"
	"github.com/fieldline/gridcast/internal/domain/model"
)

// PredictHandler handles single-matchup prediction requests.
type PredictHandler struct {
	deps Dependencies
}

// NewPredictHandler creates a new predict handler.
func NewPredictHandler(deps Dependencies) *PredictHandler {
	return &PredictHandler{deps: deps}
}

// predictResponse augments the combined prediction with the side the
// win probability favors. Omitted on a coin flip.
type predictResponse struct {
	model.CombinedPrediction
	SuggestedSide string `json:"suggested_side,omitempty"`
}

// HandleGetPredict handles GET /predict?home=&away=&season=&week= requests.
// An optional fields parameter trims the response to a comma-separated
// subset of top-level fields.
func (h *PredictHandler) HandleGetPredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}

	req, err := parseMatchupQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err)
		return
	}

	pred, err := h.deps.PredictMatchup(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := predictResponse{CombinedPrediction: pred, SuggestedSide: pred.SuggestedSide()}
	if fields := r.URL.Query().Get("fields"); fields != "" {
		writeJSON(w, http.StatusOK, filterFields(resp, fields))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseMatchupQuery pulls a MatchupRequest out of query parameters. Deep
// validation (bounds, identity) happens in the service; this only rejects
// unparseable input.
func parseMatchupQuery(r *http.Request) (service.MatchupRequest, error) {
	q := r.URL.Query()

	season, err := strconv.Atoi(q.Get("season"))
	if err != nil {
		return service.MatchupRequest{}, model.NewValidationError("season", "must be an integer")
	}
	week, err := strconv.Atoi(q.Get("week"))
	if err != nil {
		return service.MatchupRequest{}, model.NewValidationError("week", "must be an integer")
	}

	return service.MatchupRequest{
		Home:   q.Get("home"),
		Away:   q.Get("away"),
		Season: season,
		Week:   week,
	}, nil
}

// filterFields projects a response onto the requested top-level JSON
// fields. Unknown names are ignored rather than rejected.
func filterFields(resp any, fields string) map[string]json.RawMessage {
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil
	}
	var full map[string]json.RawMessage
	if err := json.Unmarshal(raw, &full); err != nil {
		return nil
	}

	out := make(map[string]json.RawMessage)
	for _, name := range strings.Split(fields, ",") {
		name = strings.TrimSpace(name)
		if v, ok := full[name]; ok {
			out[name] = v
		}
	}
	return out
}
