// Package service provides the core prediction service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fieldline/gridcast/internal/adapters/featurestore"
	"github.com/fieldline/gridcast/internal/adapters/pool"
	"github.com/fieldline/gridcast/internal/adapters/registry"
	"github.com/fieldline/gridcast/internal/domain/align"
	"github.com/fieldline/gridcast/internal/domain/ensemble"
	"github.com/fieldline/gridcast/internal/domain/feature"
	"github.com/fieldline/gridcast/internal/domain/model"
	"github.com/fieldline/gridcast/internal/resilience/breaker"
	"github.com/fieldline/gridcast/internal/resilience/cache"
	"github.com/fieldline/gridcast/pkg/logger"
	"github.com/fieldline/gridcast/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultSeasonMin        = 1995
	defaultSeasonMax        = 2030
	defaultWeekMin          = 0
	defaultWeekMax          = 16
	defaultPredictTimeout   = 2 * time.Second
	defaultBatchMaxSize     = 100
	defaultMedianWindow     = 4
	defaultFallbackMargin   = 2.5 // home-field prior in points
	fallbackConfidence      = 0.5
	homeFieldAdvantageField = "home_field_advantage"
	maxTeamNameLength       = 64
)

// MatchupRequest identifies one game to predict.
type MatchupRequest struct {
	Home   string `json:"home"`
	Away   string `json:"away"`
	Season int    `json:"season"`
	Week   int    `json:"week"`
}

// BatchItem is the per-request outcome of a batch prediction. Exactly one of
// Prediction and Error is set; one bad matchup never fails its neighbors.
type BatchItem struct {
	Request    MatchupRequest            `json:"request"`
	Prediction *model.CombinedPrediction `json:"prediction,omitempty"`
	Error      string                    `json:"error,omitempty"`
	err        error
}

// Err returns the underlying error for a failed item.
func (b BatchItem) Err() error {
	return b.err
}

// Service wires the feature store, model registry, aligner, combiner, and
// resilience layer into the prediction facade the HTTP API serves.
type Service struct {
	mu sync.RWMutex

	// Core components
	store    featurestore.Store
	models   *registry.Registry
	combiner *ensemble.Combiner
	results  *cache.Cache
	flights  *cache.FlightGroup
	batch    *pool.Pool

	// Configuration
	modelsDir             string
	featureDBPath         string
	seasonMin, seasonMax  int
	weekMin, weekMax      int
	predictTimeout        time.Duration
	imputationThreshold   float64
	medianWindow          int
	allowDegradedFallback bool
	batchMaxSize          int
	batchWorkerCount      int
	breakerOpts           []breaker.Option
	cacheOpts             []cache.Option
	combinerOpts          []ensemble.Option
	watchArtifacts        bool

	// medians caches the per-(season,week) imputation median tables.
	medians   map[medianKey]map[string]float64
	mediansMu sync.Mutex

	// State
	started bool
	cancel  context.CancelFunc

	// Logging
	logger logger.Logger
}

type medianKey struct {
	season int
	week   int
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithModelsDir sets the model artifact directory.
func WithModelsDir(dir string) Option {
	return func(s *Service) {
		if dir != "" {
			s.modelsDir = dir
		}
	}
}

// WithFeatureDBPath sets the SQLite feature database path.
func WithFeatureDBPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.featureDBPath = path
		}
	}
}

// WithStore injects a feature store, bypassing the SQLite path. Used by
// tests and the load generator.
func WithStore(store featurestore.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithSeasonBounds sets the accepted season range.
func WithSeasonBounds(min, max int) Option {
	return func(s *Service) {
		if min <= max {
			s.seasonMin = min
			s.seasonMax = max
		}
	}
}

// WithWeekBounds sets the accepted week range.
func WithWeekBounds(min, max int) Option {
	return func(s *Service) {
		if min <= max {
			s.weekMin = min
			s.weekMax = max
		}
	}
}

// WithPredictTimeout caps each individual model invocation.
func WithPredictTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.predictTimeout = d
		}
	}
}

// WithImputationThreshold sets the low-confidence imputation fraction.
func WithImputationThreshold(t float64) Option {
	return func(s *Service) {
		if t >= 0 && t <= 1 {
			s.imputationThreshold = t
		}
	}
}

// WithMedianWindow sets how many prior weeks feed the median table.
func WithMedianWindow(weeks int) Option {
	return func(s *Service) {
		if weeks > 0 {
			s.medianWindow = weeks
		}
	}
}

// WithDegradedFallback enables or disables the home-field prior fallback
// when no model can contribute. Off unless explicitly enabled.
func WithDegradedFallback(allow bool) Option {
	return func(s *Service) {
		s.allowDegradedFallback = allow
	}
}

// WithBatchMaxSize caps batch prediction request size.
func WithBatchMaxSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchMaxSize = n
		}
	}
}

// WithBatchWorkerCount sets the batch prediction pool size.
func WithBatchWorkerCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchWorkerCount = n
		}
	}
}

// WithBreakerOptions sets the options applied to every model breaker.
func WithBreakerOptions(opts ...breaker.Option) Option {
	return func(s *Service) {
		s.breakerOpts = opts
	}
}

// WithCacheOptions sets the result cache options.
func WithCacheOptions(opts ...cache.Option) Option {
	return func(s *Service) {
		s.cacheOpts = opts
	}
}

// WithCombinerOptions sets the ensemble calibration options.
func WithCombinerOptions(opts ...ensemble.Option) Option {
	return func(s *Service) {
		s.combinerOpts = opts
	}
}

// WithArtifactWatching enables fsnotify hot reload of model artifacts.
func WithArtifactWatching(enabled bool) Option {
	return func(s *Service) {
		s.watchArtifacts = enabled
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		modelsDir:             "./models",
		featureDBPath:         "./data/features.db",
		seasonMin:             defaultSeasonMin,
		seasonMax:             defaultSeasonMax,
		weekMin:               defaultWeekMin,
		weekMax:               defaultWeekMax,
		predictTimeout:        defaultPredictTimeout,
		imputationThreshold:   0.30,
		medianWindow:          defaultMedianWindow,
		allowDegradedFallback: false,
		batchMaxSize:          defaultBatchMaxSize,
		medians:               make(map[medianKey]map[string]float64),
		watchArtifacts:        true,
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting prediction service...")

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	if s.store == nil {
		store, err := featurestore.OpenSQLite(s.featureDBPath)
		if err != nil {
			cancel()
			return fmt.Errorf("open feature store: %w", err)
		}
		s.store = store
	}

	s.models = registry.New(s.modelsDir, registry.WithBreakerOptions(s.breakerOpts...))
	if err := s.models.Load(ctx); err != nil {
		cancel()
		return fmt.Errorf("load model registry: %w", err)
	}
	if s.watchArtifacts {
		if err := s.models.Watch(runCtx); err != nil {
			// Serving works without hot reload; log and continue.
			s.logger.Warn(ctx, "artifact watching disabled", logger.Error(err))
		}
	}

	s.combiner = ensemble.New(s.combinerOpts...)
	s.results = cache.New(s.cacheOpts...)
	s.results.Start(runCtx)
	s.flights = cache.NewFlightGroup()

	s.batch = pool.New(s.batchWorkerCount, pool.WithName("batch-pool"))
	s.batch.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "prediction service started",
		logger.Int("models", s.models.Len()),
		logger.String("modelsDir", s.modelsDir),
		logger.Int("batchWorkers", s.batch.Size()),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping prediction service...")

	if s.batch != nil {
		_ = s.batch.Shutdown(ctx)
	}
	if s.models != nil {
		s.models.Close()
	}
	if s.results != nil {
		s.results.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
	if s.cancel != nil {
		s.cancel()
	}

	s.started = false
	s.logger.Info(ctx, "prediction service stopped")
}

// PredictMatchup returns the combined prediction for one matchup. Results
// are cached by (home, away, season, week, schema version); concurrent
// misses for the same key collapse into one computation.
func (s *Service) PredictMatchup(ctx context.Context, req MatchupRequest) (model.CombinedPrediction, error) {
	req.Home = strings.TrimSpace(req.Home)
	req.Away = strings.TrimSpace(req.Away)

	if err := s.validate(req); err != nil {
		metrics.RecordPredictionFailed("validation")
		return model.CombinedPrediction{}, err
	}

	key := cache.Key{
		Home:          req.Home,
		Away:          req.Away,
		Season:        req.Season,
		Week:          req.Week,
		SchemaVersion: s.store.SchemaVersion(),
	}

	if cached, ok := s.results.Get(key); ok {
		return cached, nil
	}

	pred, err := s.flights.Do(ctx, key, func(ctx context.Context) (model.CombinedPrediction, error) {
		return s.compute(ctx, key, req)
	})
	if err != nil {
		metrics.RecordPredictionFailed(failureReason(err))
		return model.CombinedPrediction{}, err
	}
	return pred, nil
}

// compute is the cache-miss path: fetch features, fan out across models,
// combine, and cache.
func (s *Service) compute(ctx context.Context, key cache.Key, req MatchupRequest) (model.CombinedPrediction, error) {
	vec, err := s.store.Get(ctx, req.Home, req.Away, req.Season, req.Week)
	if err != nil {
		return model.CombinedPrediction{}, err
	}

	aligner, err := s.alignerFor(ctx, req.Season, req.Week)
	if err != nil {
		return model.CombinedPrediction{}, err
	}

	entries := s.models.Entries()
	raws, absorbed := s.fanOut(ctx, vec, aligner, entries)

	descriptors := make(map[string]model.Descriptor, len(entries))
	for _, e := range entries {
		descriptors[e.Descriptor.ID] = e.Descriptor
	}

	usedFallback := false
	pred, err := s.combiner.Combine(raws, descriptors, len(entries))
	if errors.Is(err, model.ErrEnsembleUnavailable) {
		if !s.allowDegradedFallback {
			// Per-model failures surface only here, in aggregate.
			return model.CombinedPrediction{}, errors.Join(append([]error{err}, absorbed...)...)
		}
		s.logger.Warn(ctx, "no model contributed, serving home-field prior",
			logger.String("home", req.Home),
			logger.String("away", req.Away))
		pred = s.fallback(vec)
		usedFallback = true
	} else if err != nil {
		return model.CombinedPrediction{}, err
	}

	pred.Home = req.Home
	pred.Away = req.Away
	pred.Season = req.Season
	pred.Week = req.Week
	pred.SchemaVersion = key.SchemaVersion

	// Fallback answers are never cached: the next request re-checks the
	// registry instead of serving the prior until TTL expiry.
	if !usedFallback {
		s.results.Put(key, pred)
	}
	metrics.RecordPredictionServed(pred.Confidence, pred.WinProbability, pred.Degraded)
	return pred, nil
}

// fanOut invokes every admissible model concurrently, each under its own
// timeout, and collects the raw predictions. A model failure updates its
// breaker and is absorbed as a wrapped model.ErrModelUnavailable; the
// ensemble decides what the gaps mean.
func (s *Service) fanOut(ctx context.Context, vec feature.Vector, aligner *align.Aligner, entries []*registry.Entry) ([]model.RawPrediction, []error) {
	var (
		mu       sync.Mutex
		raws     []model.RawPrediction
		absorbed []error
		wg       sync.WaitGroup
	)

	absorb := func(id string, err error) {
		mu.Lock()
		absorbed = append(absorbed, fmt.Errorf("model %s: %w: %w", id, model.ErrModelUnavailable, err))
		mu.Unlock()
	}

	for _, e := range entries {
		if e.Predictor == nil || !e.Breaker.Allow() {
			mu.Lock()
			absorbed = append(absorbed, fmt.Errorf("model %s: %w", e.Descriptor.ID, model.ErrModelUnavailable))
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(e *registry.Entry) {
			defer wg.Done()

			id := e.Descriptor.ID
			metrics.RecordModelInvocation(id)

			aligned, err := aligner.Align(vec, e.Descriptor)
			if err != nil {
				e.Breaker.OnFailure(0)
				metrics.RecordModelFailure(id, "alignment")
				s.logger.Warn(ctx, "feature alignment failed",
					logger.String("model", id), logger.Error(err))
				absorb(id, err)
				return
			}
			metrics.RecordImputedFeatures(id, len(aligned.Imputed))

			tctx, cancel := context.WithTimeout(ctx, s.predictTimeout)
			defer cancel()

			start := time.Now()
			raw, err := e.Predictor.Predict(tctx, aligned)
			latency := time.Since(start)
			metrics.RecordModelLatency(id, float64(latency.Microseconds())/1000.0)

			if err != nil {
				e.Breaker.OnFailure(latency)
				if errors.Is(err, context.DeadlineExceeded) {
					metrics.RecordModelTimeout(id)
				} else {
					metrics.RecordModelFailure(id, "predict")
				}
				s.logger.Warn(ctx, "model invocation failed",
					logger.String("model", id), logger.Error(err))
				absorb(id, err)
				return
			}

			e.Breaker.OnSuccess(latency)
			mu.Lock()
			raws = append(raws, raw)
			mu.Unlock()
		}(e)
	}

	wg.Wait()
	return raws, absorbed
}

// fallback builds the home-field prior served when every model is down. It
// is always degraded and never confident.
func (s *Service) fallback(vec feature.Vector) model.CombinedPrediction {
	margin := defaultFallbackMargin
	if hfa, ok := vec.Value(homeFieldAdvantageField); ok && hfa > 0 {
		margin = hfa
	}
	return model.CombinedPrediction{
		Margin:         margin,
		WinProbability: s.combiner.ImpliedProbability(margin),
		Confidence:     fallbackConfidence,
		Contributions:  []model.Contribution{},
		Degraded:       true,
		GeneratedAt:    time.Now(),
	}
}

// alignerFor returns an aligner primed with the median table for the weeks
// preceding (season, week). Tables are computed once per key and cached.
func (s *Service) alignerFor(ctx context.Context, season, week int) (*align.Aligner, error) {
	key := medianKey{season: season, week: week}

	s.mediansMu.Lock()
	table, ok := s.medians[key]
	s.mediansMu.Unlock()

	if !ok {
		var err error
		table, err = s.store.Medians(ctx, season, week, s.medianWindow)
		if err != nil {
			return nil, fmt.Errorf("compute imputation medians: %w", err)
		}
		s.mediansMu.Lock()
		s.medians[key] = table
		s.mediansMu.Unlock()
	}

	return align.New(
		align.WithImputationThreshold(s.imputationThreshold),
		align.WithMedians(table),
	), nil
}

// PredictMany runs a batch of predictions on the worker pool. Items are
// isolated: each gets its own prediction or error, in request order.
func (s *Service) PredictMany(ctx context.Context, reqs []MatchupRequest) ([]BatchItem, error) {
	if len(reqs) == 0 {
		return nil, model.NewValidationError("matchups", "must not be empty")
	}
	if len(reqs) > s.batchMaxSize {
		return nil, model.NewValidationError("matchups",
			fmt.Sprintf("batch size %d exceeds limit %d", len(reqs), s.batchMaxSize))
	}

	items := make([]BatchItem, len(reqs))
	var wg sync.WaitGroup

	for i, req := range reqs {
		items[i].Request = req

		i, req := i, req
		wg.Add(1)
		job := func(jobCtx context.Context) {
			defer wg.Done()
			pred, err := s.PredictMatchup(ctx, req)
			if err != nil {
				items[i].err = err
				items[i].Error = err.Error()
				return
			}
			items[i].Prediction = &pred
		}

		if err := s.batch.Submit(ctx, job); err != nil {
			wg.Done()
			items[i].err = err
			items[i].Error = err.Error()
		}
	}

	wg.Wait()
	return items, nil
}

// Models returns per-model health snapshots for the health endpoint.
func (s *Service) Models() []registry.Health {
	return s.models.Snapshot()
}

// Matchups lists the matchups with stored snapshots for a week.
func (s *Service) Matchups(ctx context.Context, season, week int) ([]featurestore.Matchup, error) {
	if season < s.seasonMin || season > s.seasonMax {
		return nil, model.NewValidationError("season",
			fmt.Sprintf("must be within [%d, %d]", s.seasonMin, s.seasonMax))
	}
	if week < s.weekMin || week > s.weekMax {
		return nil, model.NewValidationError("week",
			fmt.Sprintf("must be within [%d, %d]", s.weekMin, s.weekMax))
	}
	return s.store.ListMatchups(ctx, season, week)
}

// SchemaVersion reports the feature schema version in service.
func (s *Service) SchemaVersion() string {
	return s.store.SchemaVersion()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hits, misses := int64(0), int64(0)
	cacheLen := 0
	inFlight := 0
	modelCount := 0
	if s.started {
		hits, misses = s.results.Stats()
		cacheLen = s.results.Len()
		inFlight = s.flights.Len()
		modelCount = s.models.Len()
	}

	return map[string]interface{}{
		"started":        s.started,
		"models":         modelCount,
		"cache_entries":  cacheLen,
		"cache_hits":     hits,
		"cache_misses":   misses,
		"in_flight":      inFlight,
		"batch_workers":  s.batchWorkerCount,
		"schema_version": feature.CurrentSchemaVersion,
	}
}

// validate rejects malformed matchup requests before any work happens.
func (s *Service) validate(req MatchupRequest) error {
	if req.Home == "" {
		return model.NewValidationError("home", "must not be empty")
	}
	if req.Away == "" {
		return model.NewValidationError("away", "must not be empty")
	}
	if len(req.Home) > maxTeamNameLength {
		return model.NewValidationError("home", "team name too long")
	}
	if len(req.Away) > maxTeamNameLength {
		return model.NewValidationError("away", "team name too long")
	}
	if strings.EqualFold(req.Home, req.Away) {
		return model.NewValidationError("away", "must differ from home")
	}
	if req.Season < s.seasonMin || req.Season > s.seasonMax {
		return model.NewValidationError("season",
			fmt.Sprintf("must be within [%d, %d]", s.seasonMin, s.seasonMax))
	}
	if req.Week < s.weekMin || req.Week > s.weekMax {
		return model.NewValidationError("week",
			fmt.Sprintf("must be within [%d, %d]", s.weekMin, s.weekMax))
	}
	return nil
}

// failureReason buckets an error for the failure counter.
func failureReason(err error) string {
	switch {
	case model.IsValidation(err):
		return "validation"
	case errors.Is(err, featurestore.ErrNotFound):
		return "matchup_not_found"
	case errors.Is(err, featurestore.ErrNotYetAvailable):
		return "feature_unavailable"
	case errors.Is(err, model.ErrEnsembleUnavailable):
		return "ensemble_unavailable"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}
