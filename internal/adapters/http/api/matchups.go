// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
	"strconv"

	"github.com/fieldline/gridcast/internal/adapters/featurestore"
	"github.com/fieldline/gridcast/internal/domain/model"
)

// MatchupsHandler handles matchup listing requests.
type MatchupsHandler struct {
	deps Dependencies
}

// NewMatchupsHandler creates a new matchups handler.
func NewMatchupsHandler(deps Dependencies) *MatchupsHandler {
	return &MatchupsHandler{deps: deps}
}

// matchupsResponse wraps the matchup list.
type matchupsResponse struct {
	Season   int                    `json:"season"`
	Week     int                    `json:"week"`
	Matchups []featurestore.Matchup `json:"matchups"`
}

// HandleGetMatchups handles GET /matchups?season=&week= requests.
func (h *MatchupsHandler) HandleGetMatchups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}

	q := r.URL.Query()
	season, err := strconv.Atoi(q.Get("season"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error",
			model.NewValidationError("season", "must be an integer"))
		return
	}
	week, err := strconv.Atoi(q.Get("week"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error",
			model.NewValidationError("week", "must be an integer"))
		return
	}

	matchups, err := h.deps.Matchups(r.Context(), season, week)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if matchups == nil {
		matchups = []featurestore.Matchup{}
	}

	writeJSON(w, http.StatusOK, matchupsResponse{Season: season, Week: week, Matchups: matchups})
}
