// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keep fields unexported where possible and use functional options.
// - Provide New(...Option) initializer to build a Config with defaults.
// - All future functions must accept context.Context as the first parameter.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"context"
	"runtime"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// ModelsDir is the directory holding model artifact JSON files.
	ModelsDir string `koanf:"models_dir"`

	// FeatureDBPath is the SQLite feature snapshot database path.
	FeatureDBPath string `koanf:"feature_db_path"`

	// SeasonMin and SeasonMax bound accepted season values.
	SeasonMin int `koanf:"season_min"`
	SeasonMax int `koanf:"season_max"`

	// WeekMin and WeekMax bound accepted week values.
	WeekMin int `koanf:"week_min"`
	WeekMax int `koanf:"week_max"`

	// PredictTimeoutMS caps each individual model invocation.
	PredictTimeoutMS int `koanf:"predict_timeout_ms"`

	// CacheTTLMS and CacheSweepIntervalMS tune the result cache.
	CacheTTLMS           int `koanf:"cache_ttl_ms"`
	CacheSweepIntervalMS int `koanf:"cache_sweep_interval_ms"`

	// BreakerDegradedThreshold and BreakerUnavailableThreshold are the
	// consecutive-failure counts for per-model breaker transitions;
	// BreakerCooldownMS is how long an unavailable model waits before a
	// half-open probe.
	BreakerDegradedThreshold    int `koanf:"breaker_degraded_threshold"`
	BreakerUnavailableThreshold int `koanf:"breaker_unavailable_threshold"`
	BreakerCooldownMS           int `koanf:"breaker_cooldown_ms"`

	// ImputationThreshold is the imputed-feature fraction above which a
	// model input is flagged low confidence.
	ImputationThreshold float64 `koanf:"imputation_threshold"`

	// LowConfidenceDiscount multiplies a model's weight when its input was
	// flagged low confidence.
	LowConfidenceDiscount float64 `koanf:"low_confidence_discount"`

	// CalibrationK converts point margins to win probabilities.
	CalibrationK float64 `koanf:"calibration_k"`

	// ConfidenceSlope scales |margin| into the confidence score.
	ConfidenceSlope float64 `koanf:"confidence_slope"`

	// MissingModelPenalty reduces confidence per absent model.
	MissingModelPenalty float64 `koanf:"missing_model_penalty"`

	// AllowDegradedFallback serves a home-field prior when every model is
	// unavailable instead of failing the request. Off by default; without
	// explicit opt-in a total model outage is a typed error.
	AllowDegradedFallback bool `koanf:"allow_degraded_fallback"`

	// BatchMaxSize caps POST /predict/batch request size.
	BatchMaxSize int `koanf:"batch_max_size"`

	// BatchWorkerCount sets the batch prediction pool size.
	BatchWorkerCount int `koanf:"batch_worker_count"`

	// RateLimitRPS and RateLimitBurst tune the HTTP rate limiter.
	RateLimitRPS   float64 `koanf:"rate_limit_rps"`
	RateLimitBurst int     `koanf:"rate_limit_burst"`

	// MedianWindowWeeks sets how many prior weeks feed imputation medians.
	MedianWindowWeeks int `koanf:"median_window_weeks"`
}

// New creates a Config using provided options. Context is accepted first to
// satisfy the project-wide convention; it is reserved for future use (e.g.,
// loading from env/files) and is currently unused.
func New(_ context.Context) *Config {
	c := &Config{
		LogLevel:                    "info",
		Addr:                        ":9080",
		ModelsDir:                   "./models",
		FeatureDBPath:               "./data/features.db",
		SeasonMin:                   1995,
		SeasonMax:                   2030,
		WeekMin:                     0,
		WeekMax:                     16,
		PredictTimeoutMS:            2000,
		CacheTTLMS:                  3_600_000,
		CacheSweepIntervalMS:        60_000,
		BreakerDegradedThreshold:    3,
		BreakerUnavailableThreshold: 5,
		BreakerCooldownMS:           60_000,
		ImputationThreshold:         0.30,
		LowConfidenceDiscount:       0.5,
		CalibrationK:                10.0,
		ConfidenceSlope:             0.03,
		MissingModelPenalty:         0.05,
		AllowDegradedFallback:       false,
		BatchMaxSize:                100,
		BatchWorkerCount:            runtime.NumCPU() * 2,
		RateLimitRPS:                200,
		RateLimitBurst:              400,
		MedianWindowWeeks:           4,
	}
	return c
}
