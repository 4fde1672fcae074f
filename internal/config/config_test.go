package config_test

import (
	"context"
	"runtime"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/fieldline/gridcast/internal/config"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.LogLevel, convey.ShouldEqual, "info")
			convey.So(cfg.ModelsDir, convey.ShouldEqual, "./models")
			convey.So(cfg.FeatureDBPath, convey.ShouldEqual, "./data/features.db")
			convey.So(cfg.PredictTimeoutMS, convey.ShouldEqual, 2000)
			convey.So(cfg.CacheTTLMS, convey.ShouldEqual, 3_600_000)
			convey.So(cfg.BreakerDegradedThreshold, convey.ShouldEqual, 3)
			convey.So(cfg.BreakerUnavailableThreshold, convey.ShouldEqual, 5)
			convey.So(cfg.BreakerCooldownMS, convey.ShouldEqual, 60_000)
			convey.So(cfg.ImputationThreshold, convey.ShouldEqual, 0.30)
			convey.So(cfg.LowConfidenceDiscount, convey.ShouldEqual, 0.5)
			convey.So(cfg.CalibrationK, convey.ShouldEqual, 10.0)
			convey.So(cfg.ConfidenceSlope, convey.ShouldEqual, 0.03)
			convey.So(cfg.MissingModelPenalty, convey.ShouldEqual, 0.05)
			convey.So(cfg.AllowDegradedFallback, convey.ShouldBeFalse)
			convey.So(cfg.BatchMaxSize, convey.ShouldEqual, 100)
			convey.So(cfg.BatchWorkerCount, convey.ShouldEqual, runtime.NumCPU()*2)
			convey.So(cfg.MedianWindowWeeks, convey.ShouldEqual, 4)
		})

		convey.Convey("Then season and week bounds cover the modern era", func() {
			convey.So(cfg.SeasonMin, convey.ShouldEqual, 1995)
			convey.So(cfg.SeasonMax, convey.ShouldEqual, 2030)
			convey.So(cfg.WeekMin, convey.ShouldEqual, 0)
			convey.So(cfg.WeekMax, convey.ShouldEqual, 16)
		})
	})
}
