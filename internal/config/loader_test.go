package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/fieldline/gridcast/internal/config"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.ModelsDir, convey.ShouldEqual, "./models")
				convey.So(cfg.PredictTimeoutMS, convey.ShouldEqual, 2000)
				convey.So(cfg.CacheTTLMS, convey.ShouldEqual, 3_600_000)
				convey.So(cfg.ImputationThreshold, convey.ShouldEqual, 0.30)
				convey.So(cfg.AllowDegradedFallback, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("GRIDCAST_ADDR", ":8080")
			_ = os.Setenv("GRIDCAST_MODELS_DIR", "/srv/models")
			_ = os.Setenv("GRIDCAST_PREDICT_TIMEOUT_MS", "500")
			_ = os.Setenv("GRIDCAST_BATCH_MAX_SIZE", "50")
			_ = os.Setenv("GRIDCAST_ALLOW_DEGRADED_FALLBACK", "true")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.ModelsDir, convey.ShouldEqual, "/srv/models")
				convey.So(cfg.PredictTimeoutMS, convey.ShouldEqual, 500)
				convey.So(cfg.BatchMaxSize, convey.ShouldEqual, 50)
				convey.So(cfg.AllowDegradedFallback, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
models_dir: "/opt/models"
predict_timeout_ms: 1500
calibration_k: 12.5
breaker_cooldown_ms: 30000
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("GRIDCAST_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.ModelsDir, convey.ShouldEqual, "/opt/models")
				convey.So(cfg.PredictTimeoutMS, convey.ShouldEqual, 1500)
				convey.So(cfg.CalibrationK, convey.ShouldEqual, 12.5)
				convey.So(cfg.BreakerCooldownMS, convey.ShouldEqual, 30000)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
addr: ":9090"
models_dir: "/opt/models"
predict_timeout_ms: 1500
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("GRIDCAST_CONFIG", tmpFile)
			_ = os.Setenv("GRIDCAST_ADDR", ":8080") // This should override the file
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")            // Overridden by env
				convey.So(cfg.ModelsDir, convey.ShouldEqual, "/opt/models") // From file
				convey.So(cfg.PredictTimeoutMS, convey.ShouldEqual, 1500)   // From file
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("GRIDCAST_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("GRIDCAST_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with partial YAML file", func() {
			yamlContent := `
addr: ":9090"
batch_max_size: 25
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("GRIDCAST_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should merge with defaults for missing fields", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.BatchMaxSize, convey.ShouldEqual, 25)
				convey.So(cfg.PredictTimeoutMS, convey.ShouldEqual, 2000)
				convey.So(cfg.ImputationThreshold, convey.ShouldEqual, 0.30)
			})
		})
	})
}

func TestConfigValidation(t *testing.T) {
	convey.Convey("Given config validation", t, func() {
		ctx := context.Background()

		cases := []struct {
			name    string
			envVar  string
			value   string
			message string
		}{
			{"empty addr", "GRIDCAST_ADDR", "", "addr must not be empty"},
			{"empty models dir", "GRIDCAST_MODELS_DIR", "", "models_dir must not be empty"},
			{"empty feature db path", "GRIDCAST_FEATURE_DB_PATH", "", "feature_db_path must not be empty"},
			{"non-positive timeout", "GRIDCAST_PREDICT_TIMEOUT_MS", "0", "predict_timeout_ms must be positive"},
			{"imputation threshold above one", "GRIDCAST_IMPUTATION_THRESHOLD", "1.5", "imputation_threshold must be within [0, 1]"},
			{"zero low-confidence discount", "GRIDCAST_LOW_CONFIDENCE_DISCOUNT", "0", "low_confidence_discount must be within (0, 1]"},
			{"non-positive calibration", "GRIDCAST_CALIBRATION_K", "-1", "calibration_k must be positive"},
			{"non-positive confidence slope", "GRIDCAST_CONFIDENCE_SLOPE", "0", "confidence_slope must be positive"},
			{"negative missing-model penalty", "GRIDCAST_MISSING_MODEL_PENALTY", "-0.1", "missing_model_penalty must not be negative"},
			{"non-positive batch size", "GRIDCAST_BATCH_MAX_SIZE", "0", "batch_max_size must be positive"},
			{"inverted breaker thresholds", "GRIDCAST_BREAKER_UNAVAILABLE_THRESHOLD", "1", "breaker thresholds"},
			{"inverted season bounds", "GRIDCAST_SEASON_MIN", "2050", "season_min exceeds season_max"},
			{"inverted week bounds", "GRIDCAST_WEEK_MIN", "20", "week_min exceeds week_max"},
		}

		for _, tc := range cases {
			tc := tc
			convey.Convey("When the config has "+tc.name, func() {
				clearConfigEnvVars()
				_ = os.Setenv(tc.envVar, tc.value)
				defer clearConfigEnvVars()

				cfg, err := config.Load(ctx)

				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, tc.message)
				convey.So(cfg, convey.ShouldBeNil)
			})
		}
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"GRIDCAST_CONFIG",
		"GRIDCAST_ADDR",
		"GRIDCAST_MODELS_DIR",
		"GRIDCAST_FEATURE_DB_PATH",
		"GRIDCAST_PREDICT_TIMEOUT_MS",
		"GRIDCAST_BATCH_MAX_SIZE",
		"GRIDCAST_ALLOW_DEGRADED_FALLBACK",
		"GRIDCAST_IMPUTATION_THRESHOLD",
		"GRIDCAST_LOW_CONFIDENCE_DISCOUNT",
		"GRIDCAST_CALIBRATION_K",
		"GRIDCAST_CONFIDENCE_SLOPE",
		"GRIDCAST_MISSING_MODEL_PENALTY",
		"GRIDCAST_BREAKER_UNAVAILABLE_THRESHOLD",
		"GRIDCAST_SEASON_MIN",
		"GRIDCAST_WEEK_MIN",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "gridcast-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
