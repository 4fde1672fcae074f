// Package feature defines the canonical matchup feature schema and the
// versioned feature vector passed between the store and the models.
package feature

// CurrentSchemaVersion identifies the feature schema this build understands.
// The ingestion pipeline stamps every snapshot with the version it was
// computed under; predictions are keyed by it so a schema bump never serves
// stale cache entries.
const CurrentSchemaVersion = "v3"

// Unit metrics computed for each side of the ball, opponent-adjusted by the
// ingestion pipeline. Prefixed home_off_/home_def_/away_off_/away_def_.
var unitMetrics = []string{
	"success_rate",
	"epa_per_play",
	"explosiveness",
	"rushing_epa",
	"passing_epa",
	"points_per_drive",
	"yards_per_play",
	"third_down_rate",
	"red_zone_td_rate",
	"havoc_rate",
	"line_yards",
	"sack_rate",
	"stuff_rate",
	"finishing_drives",
	"field_position",
}

// Team-level metrics, prefixed home_/away_.
var teamMetrics = []string{
	"pace",
	"talent_composite",
	"strength_of_schedule",
	"turnover_margin",
	"penalty_yards",
	"special_teams_epa",
	"returning_production",
	"recent_form",
}

// Matchup-level metrics with no side prefix.
var matchupMetrics = []string{
	"neutral_site",
	"rest_differential",
	"elo_diff",
	"travel_distance",
	"conference_game",
	"rivalry_game",
	"week_index",
	"home_field_advantage",
	"temperature",
	"wind_speed",
}

// fieldNames is the canonical ordered field list, built once at init.
var fieldNames []string

func init() {
	for _, side := range []string{"home", "away"} {
		for _, unit := range []string{"off", "def"} {
			for _, m := range unitMetrics {
				fieldNames = append(fieldNames, side+"_"+unit+"_"+m)
			}
		}
	}
	for _, side := range []string{"home", "away"} {
		for _, m := range teamMetrics {
			fieldNames = append(fieldNames, side+"_"+m)
		}
	}
	fieldNames = append(fieldNames, matchupMetrics...)
}

// FieldNames returns the canonical ordered field list for the current schema.
// Callers receive a copy and may not mutate the schema.
func FieldNames() []string {
	out := make([]string, len(fieldNames))
	copy(out, fieldNames)
	return out
}

// FieldCount returns the number of fields in the canonical schema.
func FieldCount() int {
	return len(fieldNames)
}

// IsKnownField reports whether name belongs to the canonical schema.
func IsKnownField(name string) bool {
	for _, f := range fieldNames {
		if f == name {
			return true
		}
	}
	return false
}
