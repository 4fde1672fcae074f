package loadgen

import (
	"context"
	"math"

	"github.com/fieldline/gridcast/internal/adapters/featurestore"
	"github.com/fieldline/gridcast/pkg/logger"
)

// Verification bounds.
const (
	confidenceFloor = 0.05
	confidenceCeil  = 0.95
	// replaySampleSize is how many matchups are re-requested to confirm
	// cached idempotence.
	replaySampleSize = 25
	floatTolerance   = 1e-9
)

// verifyPredictions checks every received prediction against the service's
// published invariants and replays a sample to confirm idempotence.
func verifyPredictions(ctx context.Context, config *Config, matchups []featurestore.Matchup, preds []*Prediction, stats *Stats) error {
	log := logger.Get()

	for i, pred := range preds {
		if pred == nil {
			continue
		}
		if pred.WinProbability < 0 || pred.WinProbability > 1 {
			stats.VerificationErrors++
			log.Error(ctx, "probability out of range",
				logger.String("home", matchups[i].Home),
				logger.Float64("probability", pred.WinProbability))
		}
		if pred.Confidence < confidenceFloor || pred.Confidence > confidenceCeil {
			stats.VerificationErrors++
			log.Error(ctx, "confidence out of range",
				logger.String("home", matchups[i].Home),
				logger.Float64("confidence", pred.Confidence))
		}
		// Sign consistency: the margin and the probability must favor the
		// same side.
		if pred.Margin > 0 && pred.WinProbability < 0.5 ||
			pred.Margin < 0 && pred.WinProbability > 0.5 {
			stats.VerificationErrors++
			log.Error(ctx, "margin and probability disagree",
				logger.String("home", matchups[i].Home),
				logger.Float64("margin", pred.Margin),
				logger.Float64("probability", pred.WinProbability))
		}
	}

	// Replay a sample: within the cache TTL the same matchup must return
	// the identical prediction.
	client := newHTTPClient(config.Timeout)
	sample := replaySampleSize
	if sample > len(matchups) {
		sample = len(matchups)
	}
	for i := 0; i < sample; i++ {
		if preds[i] == nil {
			continue
		}
		replay, err := fetchSinglePrediction(ctx, client, config.BaseURL, matchups[i])
		if err != nil {
			stats.VerificationErrors++
			log.Error(ctx, "replay request failed", logger.Error(err))
			continue
		}
		stats.CacheReplays++
		if math.Abs(replay.WinProbability-preds[i].WinProbability) > floatTolerance ||
			math.Abs(replay.Margin-preds[i].Margin) > floatTolerance {
			stats.VerificationErrors++
			log.Error(ctx, "replay returned a different prediction",
				logger.String("home", matchups[i].Home),
				logger.Float64("first", preds[i].WinProbability),
				logger.Float64("replay", replay.WinProbability))
		}
	}

	if stats.VerificationErrors > 0 {
		log.Warn(ctx, "verification finished with errors",
			logger.Int("errors", stats.VerificationErrors))
	} else {
		log.Info(ctx, "all predictions verified",
			logger.Int("checked", stats.PredictionsReceived),
			logger.Int("replays", stats.CacheReplays))
	}
	return nil
}
