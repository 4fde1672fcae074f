// Package featurestore provides read access to precomputed matchup feature
// snapshots, keyed by teams, season, and week.
package featurestore

import (
	"context"

	"github.com/fieldline/gridcast/internal/domain/feature"
)

// Matchup identifies one scheduled game with a stored snapshot.
type Matchup struct {
	Home   string `json:"home"`
	Away   string `json:"away"`
	Season int    `json:"season"`
	Week   int    `json:"week"`
}

// Store is the feature snapshot repository. Snapshots are written by the
// offline feature pipeline and read by the serving path.
type Store interface {
	// Get returns the feature snapshot for a matchup. It returns
	// ErrNotFound when the matchup is unknown and ErrNotYetAvailable when
	// the matchup exists but its snapshot has not been computed yet.
	Get(ctx context.Context, home, away string, season, week int) (feature.Vector, error)

	// Put stores a snapshot, replacing any previous one for the matchup.
	Put(ctx context.Context, m Matchup, vec feature.Vector) error

	// Schedule registers a matchup whose snapshot is not computed yet.
	// Get for a scheduled matchup returns ErrNotYetAvailable until a
	// snapshot is stored.
	Schedule(ctx context.Context, m Matchup) error

	// Medians returns per-field medians over the snapshots of the window
	// weeks preceding week in the given season. The result backs
	// imputation of missing feature values.
	Medians(ctx context.Context, season, week, window int) (map[string]float64, error)

	// ListMatchups returns the matchups with stored snapshots for a week.
	ListMatchups(ctx context.Context, season, week int) ([]Matchup, error)

	// SchemaVersion reports the feature schema version the store serves.
	SchemaVersion() string

	// Close releases the underlying resources.
	Close() error
}
