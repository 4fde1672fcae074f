package featurestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/fieldline/gridcast/internal/domain/feature"
	"github.com/fieldline/gridcast/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func snapshot(values map[string]float64) feature.Vector {
	return feature.NewVector(feature.CurrentSchemaVersion, values)
}

// storeUnderTest runs the shared Store contract against any implementation.
func storeUnderTest(t *testing.T, name string, open func(t *testing.T) Store) {
	ctx := context.Background()

	Convey("Given an empty "+name, t, func() {
		store := open(t)
		defer func() { _ = store.Close() }()

		m := Matchup{Home: "alpha", Away: "beta", Season: 2025, Week: 8}

		Convey("When an unknown matchup is requested", func() {
			_, err := store.Get(ctx, "alpha", "beta", 2025, 8)
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})

		Convey("When a matchup is scheduled without features", func() {
			So(store.Schedule(ctx, m), ShouldBeNil)

			_, err := store.Get(ctx, "alpha", "beta", 2025, 8)
			So(errors.Is(err, ErrNotYetAvailable), ShouldBeTrue)

			Convey("Then writing features clears the pending state", func() {
				So(store.Put(ctx, m, snapshot(map[string]float64{"f1": 1.5})), ShouldBeNil)

				vec, err := store.Get(ctx, "alpha", "beta", 2025, 8)
				So(err, ShouldBeNil)
				v, ok := vec.Value("f1")
				So(ok, ShouldBeTrue)
				So(v, ShouldEqual, 1.5)
			})
		})

		Convey("When a snapshot is stored and re-read", func() {
			vec := snapshot(map[string]float64{"f1": 1.5, "f2": -3.25})
			So(store.Put(ctx, m, vec), ShouldBeNil)

			got, err := store.Get(ctx, "alpha", "beta", 2025, 8)
			So(err, ShouldBeNil)
			So(got.SchemaVersion(), ShouldEqual, feature.CurrentSchemaVersion)
			So(got.Map(), ShouldResemble, vec.Map())
		})

		Convey("When a snapshot is replaced", func() {
			So(store.Put(ctx, m, snapshot(map[string]float64{"f1": 1})), ShouldBeNil)
			So(store.Put(ctx, m, snapshot(map[string]float64{"f1": 2})), ShouldBeNil)

			got, err := store.Get(ctx, "alpha", "beta", 2025, 8)
			So(err, ShouldBeNil)
			v, _ := got.Value("f1")
			So(v, ShouldEqual, 2)
		})

		Convey("When the home/away orientation is reversed", func() {
			So(store.Put(ctx, m, snapshot(map[string]float64{"f1": 1})), ShouldBeNil)

			_, err := store.Get(ctx, "beta", "alpha", 2025, 8)
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})

		Convey("When medians are computed over the trailing window", func() {
			// Weeks 5-7 feed the median for week 8; week 8 itself never does.
			put := func(home string, week int, v float64) {
				So(store.Put(ctx,
					Matchup{Home: home, Away: "opp-" + home, Season: 2025, Week: week},
					snapshot(map[string]float64{"f1": v})), ShouldBeNil)
			}
			put("a", 5, 1)
			put("b", 6, 3)
			put("c", 7, 10)
			put("d", 8, 100)

			medians, err := store.Medians(ctx, 2025, 8, 4)
			So(err, ShouldBeNil)
			So(medians["f1"], ShouldEqual, 3)

			Convey("And an even sample count averages the middle pair", func() {
				put("e", 7, 5)
				medians, err := store.Medians(ctx, 2025, 8, 4)
				So(err, ShouldBeNil)
				So(medians["f1"], ShouldEqual, 4) // middle of 1,3,5,10
			})

			Convey("And other seasons never leak in", func() {
				So(store.Put(ctx,
					Matchup{Home: "x", Away: "y", Season: 2024, Week: 6},
					snapshot(map[string]float64{"f1": 1000})), ShouldBeNil)

				medians, err := store.Medians(ctx, 2025, 8, 4)
				So(err, ShouldBeNil)
				So(medians["f1"], ShouldEqual, 3)
			})
		})

		Convey("When matchups for a week are listed", func() {
			So(store.Put(ctx,
				Matchup{Home: "zeta", Away: "eta", Season: 2025, Week: 8},
				snapshot(map[string]float64{"f1": 1})), ShouldBeNil)
			So(store.Put(ctx,
				Matchup{Home: "alpha", Away: "beta", Season: 2025, Week: 8},
				snapshot(map[string]float64{"f1": 1})), ShouldBeNil)
			So(store.Schedule(ctx,
				Matchup{Home: "pending", Away: "other", Season: 2025, Week: 8}), ShouldBeNil)

			list, err := store.ListMatchups(ctx, 2025, 8)
			So(err, ShouldBeNil)

			Convey("Then only populated matchups appear, in order", func() {
				So(list, ShouldHaveLength, 2)
				So(list[0].Home, ShouldEqual, "alpha")
				So(list[1].Home, ShouldEqual, "zeta")
			})
		})

		Convey("When the schema version is queried", func() {
			So(store.SchemaVersion(), ShouldEqual, feature.CurrentSchemaVersion)
		})
	})
}

func TestMemoryStore(t *testing.T) {
	storeUnderTest(t, "memory store", func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	storeUnderTest(t, "sqlite store", func(t *testing.T) Store {
		store, err := OpenSQLite(filepath.Join(t.TempDir(), "features.db"))
		if err != nil {
			t.Fatalf("open sqlite store: %v", err)
		}
		return store
	})
}

func TestSQLiteStoreReopen(t *testing.T) {
	Convey("Given a sqlite store with data on disk", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "features.db")

		store, err := OpenSQLite(path)
		So(err, ShouldBeNil)

		m := Matchup{Home: "alpha", Away: "beta", Season: 2025, Week: 8}
		So(store.Put(ctx, m, snapshot(map[string]float64{"f1": 1.5})), ShouldBeNil)
		So(store.Close(), ShouldBeNil)

		Convey("When the database is reopened", func() {
			reopened, err := OpenSQLite(path)
			So(err, ShouldBeNil)
			defer func() { _ = reopened.Close() }()

			vec, err := reopened.Get(ctx, "alpha", "beta", 2025, 8)
			So(err, ShouldBeNil)
			v, ok := vec.Value("f1")
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 1.5)
		})
	})
}
