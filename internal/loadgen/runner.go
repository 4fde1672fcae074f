package loadgen

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fieldline/gridcast/internal/adapters/featurestore"
	"github.com/fieldline/gridcast/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
)

// Run executes the complete prediction load test.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{
		StartTime: time.Now(),
	}

	logger.Get().Info(ctx, "starting gridcast load test",
		logger.String("baseURL", config.BaseURL),
		logger.Int("matchups", config.NumMatchups),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()),
		logger.Int("season", config.Season),
		logger.Int("week", config.Week),
		logger.Any("verbose", config.Verbose))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate matchups and snapshots
	matchups, vectors, err := generateMatchups(ctx, config, stats)
	if err != nil {
		return fmt.Errorf("matchup generation failed: %w", err)
	}

	// Step 3: Seed the feature database when asked
	if config.SeedDBPath != "" {
		if err := seedStore(ctx, config, matchups, vectors, stats); err != nil {
			return fmt.Errorf("feature store seeding failed: %w", err)
		}
	}

	// Step 4: Fetch predictions concurrently
	preds, err := fetchPredictions(ctx, config, matchups, stats)
	if err != nil {
		return fmt.Errorf("prediction fetch failed: %w", err)
	}

	// Step 5: Verify invariants and cached idempotence
	if err := verifyPredictions(ctx, config, matchups, preds, stats); err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	// Step 6: Save matchups to file
	if err := saveMatchupsToFile(ctx, config, matchups); err != nil {
		logger.Get().Warn(ctx, "failed to save matchups to file", logger.Error(err))
	}

	// Final statistics
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	displayFinalStats(stats)

	logger.Get().Info(ctx, "load test completed")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	logger.Get().Info(ctx, "checking service health")

	client := newHTTPClient(config.Timeout)
	resp, err := client.Get(ctx, config.BaseURL+"/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close response body", logger.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// saveMatchupsToFile saves the generated matchups to a JSON file.
func saveMatchupsToFile(ctx context.Context, config *Config, matchups []featurestore.Matchup) error {
	if len(matchups) == 0 {
		return fmt.Errorf("no matchups to save")
	}

	filename := config.OutputFile
	if filename == "" {
		timestamp := time.Now().Format("20060102_150405")
		filename = "matchups_" + timestamp + ".json"
	}

	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(matchups, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal matchups: %w", err)
	}
	if err := os.WriteFile(filename, data, logFilePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	logger.Get().Info(ctx, "matchups saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats prints the final test statistics.
func displayFinalStats(stats *Stats) {
	var successRate, predictionsPerSecond float64

	if stats.PredictionsRequested > 0 {
		successRate = float64(stats.PredictionsReceived) / float64(stats.PredictionsRequested) * 100
	}
	if stats.Duration > 0 {
		predictionsPerSecond = float64(stats.PredictionsRequested) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("matchupsGenerated", stats.MatchupsGenerated),
		logger.Int("snapshotsSeeded", stats.SnapshotsSeeded),
		logger.Int("predictionsRequested", stats.PredictionsRequested),
		logger.Int("predictionsReceived", stats.PredictionsReceived),
		logger.Int("predictionsFailed", stats.PredictionsFailed),
		logger.Int("cacheReplays", stats.CacheReplays),
		logger.Int("verificationErrors", stats.VerificationErrors),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", successRate),
		logger.Float64("predictionsPerSecond", predictionsPerSecond))
}
