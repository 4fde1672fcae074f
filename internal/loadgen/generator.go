package loadgen

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/google/uuid"

	"github.com/fieldline/gridcast/internal/adapters/featurestore"
	"github.com/fieldline/gridcast/internal/domain/feature"
	"github.com/fieldline/gridcast/pkg/logger"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
	teamTagLength      = 8
	// dropoutPercent of fields are withheld from each snapshot to exercise
	// median imputation downstream.
	dropoutPercent = 10
)

// Value ranges for synthetic feature generation.
const (
	rateMin     = 0.0
	rateRange   = 1.0
	epaMin      = -0.5
	epaRange    = 1.0
	diffMin     = -20.0
	diffRange   = 40.0
	genericMin  = 0.0
	genericSpan = 10.0
)

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// getRandomInt returns a random int in [0, max) using crypto/rand.
func getRandomInt(max int64) int64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(max))
	return n.Int64()
}

// generateMatchups creates the requested number of matchups with unique team
// pairs plus a synthetic feature snapshot for each.
func generateMatchups(ctx context.Context, config *Config, stats *Stats) ([]featurestore.Matchup, []feature.Vector, error) {
	logger.Get().Info(ctx, "generating synthetic matchups",
		logger.Int("numMatchups", config.NumMatchups),
		logger.Int("season", config.Season),
		logger.Int("week", config.Week))

	matchups := make([]featurestore.Matchup, config.NumMatchups)
	vectors := make([]feature.Vector, config.NumMatchups)

	for i := 0; i < config.NumMatchups; i++ {
		matchups[i] = featurestore.Matchup{
			Home:   syntheticTeamName(),
			Away:   syntheticTeamName(),
			Season: config.Season,
			Week:   config.Week,
		}
		vectors[i] = generateSnapshot()
	}

	stats.MatchupsGenerated = len(matchups)
	logger.Get().Info(ctx, "generated matchups successfully", logger.Int("count", len(matchups)))
	return matchups, vectors, nil
}

// syntheticTeamName builds a unique team identifier.
func syntheticTeamName() string {
	tag := strings.ReplaceAll(uuid.New().String(), "-", "")[:teamTagLength]
	return "team-" + tag
}

// generateSnapshot builds one feature snapshot with plausible per-field
// ranges, randomly withholding a small fraction of fields so the serving
// path has something to impute.
func generateSnapshot() feature.Vector {
	values := make(map[string]float64, feature.FieldCount())
	for _, name := range feature.FieldNames() {
		if getRandomInt(100) < dropoutPercent {
			continue
		}
		values[name] = syntheticValue(name)
	}
	return feature.NewVector(feature.CurrentSchemaVersion, values)
}

// syntheticValue picks a range appropriate to the field's meaning.
func syntheticValue(name string) float64 {
	switch {
	case strings.Contains(name, "neutral_site"),
		strings.Contains(name, "conference_game"),
		strings.Contains(name, "rivalry_game"):
		return float64(getRandomInt(2))
	case strings.Contains(name, "rate"), strings.Contains(name, "production"):
		return rateMin + getRandomFloat()*rateRange
	case strings.Contains(name, "epa"):
		return epaMin + getRandomFloat()*epaRange
	case strings.Contains(name, "diff"), strings.Contains(name, "margin"):
		return diffMin + getRandomFloat()*diffRange
	default:
		return genericMin + getRandomFloat()*genericSpan
	}
}

// seedStore writes the generated snapshots into the feature database the
// service reads from.
func seedStore(ctx context.Context, config *Config, matchups []featurestore.Matchup, vectors []feature.Vector, stats *Stats) error {
	store, err := featurestore.OpenSQLite(config.SeedDBPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	for i, m := range matchups {
		if err := store.Put(ctx, m, vectors[i]); err != nil {
			return err
		}
		stats.SnapshotsSeeded++
	}

	logger.Get().Info(ctx, "feature store seeded",
		logger.Int("snapshots", stats.SnapshotsSeeded),
		logger.String("path", config.SeedDBPath))
	return nil
}
