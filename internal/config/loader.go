package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New(ctx))
//  2. file (YAML) if GRIDCAST_CONFIG is set
//  3. env (prefix GRIDCAST_)
func Load(ctx context.Context) (*Config, error) {
	// Start with defaults
	base := New(ctx)

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("GRIDCAST_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: GRIDCAST_ADDR, GRIDCAST_MODELS_DIR, ...
	// Map env keys like GRIDCAST_MODELS_DIR -> models_dir (flat keys)
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("GRIDCAST_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "gridcast_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects configurations the serving path cannot operate under.
func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.ModelsDir == "":
		return fmt.Errorf("%w: models_dir must not be empty", ErrInvalidConfig)
	case c.FeatureDBPath == "":
		return fmt.Errorf("%w: feature_db_path must not be empty", ErrInvalidConfig)
	case c.SeasonMin > c.SeasonMax:
		return fmt.Errorf("%w: season_min exceeds season_max", ErrInvalidConfig)
	case c.WeekMin > c.WeekMax:
		return fmt.Errorf("%w: week_min exceeds week_max", ErrInvalidConfig)
	case c.PredictTimeoutMS <= 0:
		return fmt.Errorf("%w: predict_timeout_ms must be positive", ErrInvalidConfig)
	case c.ImputationThreshold < 0 || c.ImputationThreshold > 1:
		return fmt.Errorf("%w: imputation_threshold must be within [0, 1]", ErrInvalidConfig)
	case c.LowConfidenceDiscount <= 0 || c.LowConfidenceDiscount > 1:
		return fmt.Errorf("%w: low_confidence_discount must be within (0, 1]", ErrInvalidConfig)
	case c.CalibrationK <= 0:
		return fmt.Errorf("%w: calibration_k must be positive", ErrInvalidConfig)
	case c.ConfidenceSlope <= 0:
		return fmt.Errorf("%w: confidence_slope must be positive", ErrInvalidConfig)
	case c.MissingModelPenalty < 0:
		return fmt.Errorf("%w: missing_model_penalty must not be negative", ErrInvalidConfig)
	case c.BatchMaxSize <= 0:
		return fmt.Errorf("%w: batch_max_size must be positive", ErrInvalidConfig)
	case c.BreakerDegradedThreshold <= 0 || c.BreakerUnavailableThreshold < c.BreakerDegradedThreshold:
		return fmt.Errorf("%w: breaker thresholds must be positive and ordered", ErrInvalidConfig)
	}
	return nil
}
