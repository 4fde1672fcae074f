package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/fieldline/gridcast/internal/adapters/featurestore"
	"github.com/fieldline/gridcast/internal/adapters/registry"
	service "github.com/fieldline/gridcast/internal/app"
	"github.com/fieldline/gridcast/internal/domain/model"
	"github.com/fieldline/gridcast/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// stubDeps is a canned Dependencies implementation for handler tests.
type stubDeps struct {
	prediction model.CombinedPrediction
	predictErr error
	items      []service.BatchItem
	batchErr   error
	health     []registry.Health
	matchups   []featurestore.Matchup
	listErr    error
}

func (s *stubDeps) PredictMatchup(_ context.Context, req service.MatchupRequest) (model.CombinedPrediction, error) {
	if s.predictErr != nil {
		return model.CombinedPrediction{}, s.predictErr
	}
	pred := s.prediction
	pred.Home = req.Home
	pred.Away = req.Away
	pred.Season = req.Season
	pred.Week = req.Week
	return pred, nil
}

func (s *stubDeps) PredictMany(_ context.Context, reqs []service.MatchupRequest) ([]service.BatchItem, error) {
	if s.batchErr != nil {
		return nil, s.batchErr
	}
	return s.items, nil
}

func (s *stubDeps) Models() []registry.Health {
	return s.health
}

func (s *stubDeps) Matchups(_ context.Context, season, week int) ([]featurestore.Matchup, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.matchups, nil
}

func (s *stubDeps) SchemaVersion() string { return "v3" }

type stubStats struct{}

func (stubStats) GetStats() map[string]interface{} {
	return map[string]interface{}{"started": true}
}

func newTestMux(deps *stubDeps, limiter *rate.Limiter) *http.ServeMux {
	mux := http.NewServeMux()
	NewServer(deps, stubStats{}, limiter).Register(context.Background(), mux)
	return mux
}

func doRequest(mux *http.ServeMux, method, target string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeError(rec *httptest.ResponseRecorder) errorResponse {
	var resp errorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return resp
}

func healthyDeps() *stubDeps {
	return &stubDeps{
		prediction: model.CombinedPrediction{
			SchemaVersion:  "v3",
			Margin:         5.5,
			WinProbability: 0.63,
			Confidence:     0.66,
			Contributions:  []model.Contribution{{ModelID: "margin-v1", WeightUsed: 1.0}},
			GeneratedAt:    time.Date(2025, 10, 18, 12, 0, 0, 0, time.UTC),
		},
		health: []registry.Health{
			{ID: "margin-v1", OutputType: "margin", Status: model.StatusHealthy},
		},
	}
}

func TestPredictEndpoint(t *testing.T) {
	Convey("Given the predict endpoint", t, func() {
		deps := healthyDeps()
		mux := newTestMux(deps, nil)

		Convey("When a valid request arrives", func() {
			rec := doRequest(mux, http.MethodGet, "/predict?home=alpha&away=beta&season=2025&week=8", "")

			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Header().Get("Content-Type"), ShouldStartWith, "application/json")

			var pred struct {
				model.CombinedPrediction
				SuggestedSide string `json:"suggested_side"`
			}
			So(json.Unmarshal(rec.Body.Bytes(), &pred), ShouldBeNil)
			So(pred.Home, ShouldEqual, "alpha")
			So(pred.Margin, ShouldEqual, 5.5)
			So(pred.WinProbability, ShouldEqual, 0.63)
			So(pred.SuggestedSide, ShouldEqual, "alpha")
		})

		Convey("When the season is not an integer", func() {
			rec := doRequest(mux, http.MethodGet, "/predict?home=alpha&away=beta&season=nope&week=8", "")

			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeError(rec).Code, ShouldEqual, "validation_error")
		})

		Convey("When the week is missing", func() {
			rec := doRequest(mux, http.MethodGet, "/predict?home=alpha&away=beta&season=2025", "")
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the method is wrong", func() {
			rec := doRequest(mux, http.MethodPut, "/predict?home=a&away=b&season=2025&week=8", "")
			So(rec.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})

		Convey("When fields projection is requested", func() {
			rec := doRequest(mux, http.MethodGet,
				"/predict?home=alpha&away=beta&season=2025&week=8&fields=margin,suggested_side,bogus", "")

			So(rec.Code, ShouldEqual, http.StatusOK)

			var body map[string]json.RawMessage
			So(json.Unmarshal(rec.Body.Bytes(), &body), ShouldBeNil)
			So(body, ShouldContainKey, "margin")
			So(body, ShouldContainKey, "suggested_side")
			So(body, ShouldNotContainKey, "confidence")
			So(body, ShouldNotContainKey, "bogus")
		})
	})
}

func TestPredictErrorMapping(t *testing.T) {
	Convey("Given domain failures behind the predict endpoint", t, func() {
		cases := []struct {
			name   string
			err    error
			status int
			code   string
		}{
			{"validation", model.NewValidationError("away", "must differ from home"), http.StatusBadRequest, "validation_error"},
			{"unknown matchup", featurestore.ErrNotFound, http.StatusNotFound, "matchup_not_found"},
			{"features pending", featurestore.ErrNotYetAvailable, http.StatusServiceUnavailable, "feature_unavailable"},
			{"ensemble down", model.ErrEnsembleUnavailable, http.StatusServiceUnavailable, "ensemble_unavailable"},
			{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		}

		for _, tc := range cases {
			tc := tc
			Convey("When the service reports "+tc.name, func() {
				mux := newTestMux(&stubDeps{predictErr: tc.err}, nil)
				rec := doRequest(mux, http.MethodGet, "/predict?home=alpha&away=beta&season=2025&week=8", "")

				So(rec.Code, ShouldEqual, tc.status)
				So(decodeError(rec).Code, ShouldEqual, tc.code)
			})
		}
	})
}

func TestBatchEndpoint(t *testing.T) {
	Convey("Given the batch endpoint", t, func() {
		deps := healthyDeps()
		pred := deps.prediction
		deps.items = []service.BatchItem{
			{Request: service.MatchupRequest{Home: "alpha", Away: "beta", Season: 2025, Week: 8}, Prediction: &pred},
			{Request: service.MatchupRequest{Home: "", Away: "beta", Season: 2025, Week: 8}, Error: "invalid home: must not be empty"},
		}
		mux := newTestMux(deps, nil)

		Convey("When a valid batch arrives", func() {
			body := `{"matchups":[{"home":"alpha","away":"beta","season":2025,"week":8},{"home":"","away":"beta","season":2025,"week":8}]}`
			rec := doRequest(mux, http.MethodPost, "/predict/batch", body)

			So(rec.Code, ShouldEqual, http.StatusOK)

			var resp struct {
				Results []service.BatchItem `json:"results"`
			}
			So(json.Unmarshal(rec.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Results, ShouldHaveLength, 2)
			So(resp.Results[0].Prediction, ShouldNotBeNil)
			So(resp.Results[1].Prediction, ShouldBeNil)
			So(resp.Results[1].Error, ShouldNotBeEmpty)
		})

		Convey("When the body is not JSON", func() {
			rec := doRequest(mux, http.MethodPost, "/predict/batch", "{nope")
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeError(rec).Code, ShouldEqual, "malformed_body")
		})

		Convey("When the body has unknown fields", func() {
			rec := doRequest(mux, http.MethodPost, "/predict/batch", `{"games":[]}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the method is wrong", func() {
			rec := doRequest(mux, http.MethodGet, "/predict/batch", "")
			So(rec.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})

		Convey("When the batch violates the size limit", func() {
			oversize := newTestMux(&stubDeps{
				batchErr: model.NewValidationError("matchups", "batch size 101 exceeds limit 100"),
			}, nil)
			rec := doRequest(oversize, http.MethodPost, "/predict/batch", `{"matchups":[]}`)

			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeError(rec).Code, ShouldEqual, "validation_error")
		})
	})
}

func TestHealthEndpoint(t *testing.T) {
	Convey("Given the health endpoint", t, func() {
		Convey("When at least one model is healthy", func() {
			mux := newTestMux(healthyDeps(), nil)
			rec := doRequest(mux, http.MethodGet, "/healthz", "")

			So(rec.Code, ShouldEqual, http.StatusOK)

			var resp struct {
				Status        string            `json:"status"`
				SchemaVersion string            `json:"schema_version"`
				Models        []registry.Health `json:"models"`
			}
			So(json.Unmarshal(rec.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Status, ShouldEqual, "ok")
			So(resp.SchemaVersion, ShouldEqual, "v3")
			So(resp.Models, ShouldHaveLength, 1)
		})

		Convey("When every model is unavailable", func() {
			deps := healthyDeps()
			deps.health = []registry.Health{
				{ID: "margin-v1", Status: model.StatusUnavailable},
				{ID: "prob-v1", Status: model.StatusDegraded},
			}
			mux := newTestMux(deps, nil)
			rec := doRequest(mux, http.MethodGet, "/healthz", "")

			So(rec.Code, ShouldEqual, http.StatusOK)

			var resp struct {
				Status string `json:"status"`
			}
			So(json.Unmarshal(rec.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Status, ShouldEqual, "degraded")
		})
	})
}

func TestModelsAndMatchupsEndpoints(t *testing.T) {
	Convey("Given the introspection endpoints", t, func() {
		deps := healthyDeps()
		deps.matchups = []featurestore.Matchup{
			{Home: "alpha", Away: "beta", Season: 2025, Week: 8},
		}
		mux := newTestMux(deps, nil)

		Convey("When models are listed", func() {
			rec := doRequest(mux, http.MethodGet, "/models", "")
			So(rec.Code, ShouldEqual, http.StatusOK)

			var models []registry.Health
			So(json.Unmarshal(rec.Body.Bytes(), &models), ShouldBeNil)
			So(models, ShouldHaveLength, 1)
			So(models[0].ID, ShouldEqual, "margin-v1")
		})

		Convey("When matchups are listed", func() {
			rec := doRequest(mux, http.MethodGet, "/matchups?season=2025&week=8", "")
			So(rec.Code, ShouldEqual, http.StatusOK)

			var resp struct {
				Season   int                    `json:"season"`
				Week     int                    `json:"week"`
				Matchups []featurestore.Matchup `json:"matchups"`
			}
			So(json.Unmarshal(rec.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Season, ShouldEqual, 2025)
			So(resp.Matchups, ShouldHaveLength, 1)
		})

		Convey("When the week has no matchups", func() {
			deps.matchups = nil
			rec := doRequest(mux, http.MethodGet, "/matchups?season=2025&week=9", "")

			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, `"matchups":[]`)
		})

		Convey("When the matchup query is unparseable", func() {
			rec := doRequest(mux, http.MethodGet, "/matchups?season=x&week=8", "")
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the listing bounds are violated", func() {
			deps.listErr = model.NewValidationError("season", "must be within [1995, 2030]")
			rec := doRequest(mux, http.MethodGet, "/matchups?season=1800&week=8", "")
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestStatsEndpoint(t *testing.T) {
	Convey("Given the stats endpoint", t, func() {
		mux := newTestMux(healthyDeps(), nil)

		Convey("When stats are requested", func() {
			rec := doRequest(mux, http.MethodGet, "/stats", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, `"started":true`)
		})

		Convey("When the method is wrong", func() {
			rec := doRequest(mux, http.MethodPost, "/stats", "")
			So(rec.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestMetricsEndpoint(t *testing.T) {
	Convey("Given the metrics endpoint", t, func() {
		mux := newTestMux(healthyDeps(), nil)
		rec := doRequest(mux, http.MethodGet, "/metrics", "")

		So(rec.Code, ShouldEqual, http.StatusOK)
		So(rec.Body.Len(), ShouldBeGreaterThan, 0)
	})
}

func TestRateLimiting(t *testing.T) {
	Convey("Given a tight rate limit", t, func() {
		limiter := rate.NewLimiter(rate.Limit(1), 1)
		mux := newTestMux(healthyDeps(), limiter)

		Convey("When requests exceed the burst", func() {
			first := doRequest(mux, http.MethodGet, "/predict?home=a&away=b&season=2025&week=8", "")
			second := doRequest(mux, http.MethodGet, "/predict?home=a&away=b&season=2025&week=8", "")

			So(first.Code, ShouldEqual, http.StatusOK)
			So(second.Code, ShouldEqual, http.StatusTooManyRequests)
			So(decodeError(second).Code, ShouldEqual, "rate_limited")
		})

		Convey("Then health stays exempt from rate limiting", func() {
			for i := 0; i < 5; i++ {
				rec := doRequest(mux, http.MethodGet, "/healthz", "")
				So(rec.Code, ShouldEqual, http.StatusOK)
			}
		})
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	Convey("Given the request ID middleware", t, func() {
		mux := newTestMux(healthyDeps(), nil)

		Convey("When the client sends no request ID", func() {
			rec := doRequest(mux, http.MethodGet, "/predict?home=a&away=b&season=2025&week=8", "")
			So(rec.Header().Get("X-Request-ID"), ShouldNotBeEmpty)
		})

		Convey("When the client supplies a request ID", func() {
			req := httptest.NewRequest(http.MethodGet, "/predict?home=a&away=b&season=2025&week=8", nil)
			req.Header.Set("X-Request-ID", "req-123")
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			So(rec.Header().Get("X-Request-ID"), ShouldEqual, "req-123")
		})
	})
}
