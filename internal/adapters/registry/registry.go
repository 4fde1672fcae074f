// Package registry loads trained model artifacts from disk and tracks each
// model's descriptor, predictor, and circuit breaker.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fieldline/gridcast/internal/adapters/predictor"
	"github.com/fieldline/gridcast/internal/domain/model"
	"github.com/fieldline/gridcast/internal/resilience/breaker"
	"github.com/fieldline/gridcast/pkg/logger"
	"github.com/fieldline/gridcast/pkg/metrics"
)

// reloadDebounce coalesces bursts of file events into one reload.
const reloadDebounce = 250 * time.Millisecond

// Entry is one registered model: its descriptor, its predictor (nil when the
// artifact failed to load), and its breaker.
type Entry struct {
	Descriptor model.Descriptor
	Predictor  predictor.Predictor
	Breaker    *breaker.Breaker
}

// Health is a serializable health snapshot of one model.
type Health struct {
	ID               string        `json:"id"`
	OutputType       string        `json:"output_type"`
	Status           model.Status  `json:"status"`
	HistoricalWeight float64       `json:"historical_weight"`
	FeatureCount     int           `json:"feature_count"`
	TrainedAt        time.Time     `json:"trained_at"`
	Breaker          breaker.Stats `json:"breaker"`
}

// Registry owns the model set. Artifacts are JSON files in one directory;
// Load reads them all, Watch reloads on changes. A malformed artifact never
// crashes the process: the model is registered unavailable and skipped by the
// serving path until a good artifact replaces it.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	dir         string
	log         logger.Logger
	breakerOpts []breaker.Option
	watcher     *fsnotify.Watcher
	stopOnce    sync.Once
	stopCh      chan struct{}
}

// New builds a Registry over the artifact directory. Call Load before
// serving.
func New(dir string, opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*Entry),
		dir:     dir,
		log:     logger.Get().Named("registry"),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load reads every *.json artifact in the directory and replaces the model
// set. Breakers survive reloads so a reload cannot reset failure history.
func (r *Registry) Load(ctx context.Context) error {
	paths, err := filepath.Glob(filepath.Join(r.dir, "*.json"))
	if err != nil {
		return fmt.Errorf("scan artifact directory: %w", err)
	}
	if len(paths) == 0 {
		return fmt.Errorf("%w: %s", ErrNoArtifacts, r.dir)
	}
	sort.Strings(paths)

	next := make(map[string]*Entry, len(paths))
	for _, path := range paths {
		entry := r.loadArtifact(ctx, path)
		next[entry.Descriptor.ID] = entry
	}

	r.mu.Lock()
	// Carry existing breakers across the reload.
	for id, entry := range next {
		if prev, ok := r.entries[id]; ok {
			entry.Breaker = prev.Breaker
			if entry.Predictor == nil {
				entry.Breaker.ForceUnavailable()
			}
		}
	}
	r.entries = next
	count := len(r.entries)
	r.mu.Unlock()

	metrics.UpdateRegisteredModels(count)
	r.log.Info(ctx, "model registry loaded",
		logger.Int("models", count),
		logger.String("dir", r.dir))
	return nil
}

// loadArtifact parses one artifact file. On any failure it returns an
// unavailable placeholder entry named after the file so the health endpoint
// still surfaces the broken model.
func (r *Registry) loadArtifact(ctx context.Context, path string) *Entry {
	entry := &Entry{Breaker: breaker.New(r.breakerOpts...)}

	raw, err := os.ReadFile(path)
	if err != nil {
		r.log.Error(ctx, "artifact unreadable, registering model as unavailable",
			logger.String("path", path), logger.Error(err))
		return r.placeholder(entry, path)
	}

	var artifact predictor.Artifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		r.log.Error(ctx, "artifact undecodable, registering model as unavailable",
			logger.String("path", path), logger.Error(err))
		return r.placeholder(entry, path)
	}

	pred, err := predictor.New(artifact)
	if err != nil {
		r.log.Error(ctx, "artifact invalid, registering model as unavailable",
			logger.String("path", path), logger.Error(err))
		metrics.RecordErrorByComponent("registry", "artifact_invalid")
		if artifact.ID != "" {
			entry.Descriptor = artifact.Descriptor()
			entry.Descriptor.Status = model.StatusUnavailable
			entry.Breaker.ForceUnavailable()
			return entry
		}
		return r.placeholder(entry, path)
	}

	entry.Descriptor = artifact.Descriptor()
	entry.Predictor = pred
	return entry
}

// placeholder fills an entry for an artifact that could not be parsed at
// all, identified by the file's base name.
func (r *Registry) placeholder(entry *Entry, path string) *Entry {
	metrics.RecordErrorByComponent("registry", "artifact_unreadable")
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	entry.Descriptor = model.Descriptor{ID: id, Status: model.StatusUnavailable}
	entry.Breaker.ForceUnavailable()
	return entry
}

// Watch reloads the registry when artifact files change. It returns after
// starting the watcher goroutine; the goroutine exits when ctx is done or
// Close is called.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create artifact watcher: %w", err)
	}
	if err := watcher.Add(r.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch artifact directory: %w", err)
	}
	r.watcher = watcher

	go func() {
		defer func() { _ = watcher.Close() }()

		var pending *time.Timer
		var pendingC <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case event := <-watcher.Events:
				if !strings.HasSuffix(event.Name, ".json") {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				// Debounce: artifact swaps arrive as event bursts.
				if pending == nil {
					pending = time.NewTimer(reloadDebounce)
					pendingC = pending.C
				} else {
					pending.Reset(reloadDebounce)
				}
			case err := <-watcher.Errors:
				r.log.Warn(ctx, "artifact watcher error", logger.Error(err))
			case <-pendingC:
				pending = nil
				pendingC = nil
				if err := r.Load(ctx); err != nil {
					r.log.Error(ctx, "artifact reload failed", logger.Error(err))
				}
			}
		}
	}()
	return nil
}

// Close stops the watcher goroutine.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Get returns the entry for a model id.
func (r *Registry) Get(id string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// Entries returns a snapshot of all registered models, ordered by id.
func (r *Registry) Entries() []*Entry {
	r.mu.RLock()
	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Descriptor.ID < out[j].Descriptor.ID })
	return out
}

// Len returns the registered model count, loadable or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot returns per-model health, deriving status from each breaker and
// publishing the state gauges as a side effect.
func (r *Registry) Snapshot() []Health {
	entries := r.Entries()
	out := make([]Health, 0, len(entries))
	for _, e := range entries {
		stats := e.Breaker.Snapshot()
		status := statusFor(stats.State)
		metrics.UpdateBreakerState(e.Descriptor.ID, stateGaugeValue(stats.State))
		out = append(out, Health{
			ID:               e.Descriptor.ID,
			OutputType:       string(e.Descriptor.OutputType),
			Status:           status,
			HistoricalWeight: e.Descriptor.HistoricalWeight,
			FeatureCount:     e.Descriptor.Dimension(),
			TrainedAt:        e.Descriptor.TrainedAt,
			Breaker:          stats,
		})
	}
	return out
}

// statusFor maps a breaker state to the externally visible model status. A
// half-open model is still unavailable to callers; the probe is internal.
func statusFor(state breaker.State) model.Status {
	switch state {
	case breaker.StateHealthy:
		return model.StatusHealthy
	case breaker.StateDegraded:
		return model.StatusDegraded
	default:
		return model.StatusUnavailable
	}
}

func stateGaugeValue(state breaker.State) float64 {
	switch state {
	case breaker.StateHealthy:
		return 0
	case breaker.StateDegraded:
		return 1
	case breaker.StateUnavailable:
		return 2
	case breaker.StateHalfOpen:
		return 3
	default:
		return 2
	}
}
