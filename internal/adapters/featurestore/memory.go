package featurestore

import (
	"context"
	"sort"
	"sync"

	"github.com/fieldline/gridcast/internal/domain/feature"
)

// MemoryStore is an in-memory Store used by tests and the load generator.
// It mirrors SQLiteStore semantics, including the scheduled-but-unavailable
// state.
type MemoryStore struct {
	mu            sync.RWMutex
	snapshots     map[Matchup]feature.Vector
	scheduled     map[Matchup]struct{}
	schemaVersion string
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots:     make(map[Matchup]feature.Vector),
		scheduled:     make(map[Matchup]struct{}),
		schemaVersion: feature.CurrentSchemaVersion,
	}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, home, away string, season, week int) (feature.Vector, error) {
	key := Matchup{Home: home, Away: away, Season: season, Week: week}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if vec, ok := s.snapshots[key]; ok {
		return vec, nil
	}
	if _, ok := s.scheduled[key]; ok {
		return feature.Vector{}, ErrNotYetAvailable
	}
	return feature.Vector{}, ErrNotFound
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, m Matchup, vec feature.Vector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[m] = vec
	delete(s.scheduled, m)
	return nil
}

// Schedule implements Store.
func (s *MemoryStore) Schedule(_ context.Context, m Matchup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snapshots[m]; !ok {
		s.scheduled[m] = struct{}{}
	}
	return nil
}

// Medians implements Store.
func (s *MemoryStore) Medians(_ context.Context, season, week, window int) (map[string]float64, error) {
	from := week - window
	if from < 0 {
		from = 0
	}

	s.mu.RLock()
	samples := make(map[string][]float64)
	for m, vec := range s.snapshots {
		if m.Season != season || m.Week < from || m.Week >= week {
			continue
		}
		for name, v := range vec.Map() {
			samples[name] = append(samples[name], v)
		}
	}
	s.mu.RUnlock()

	medians := make(map[string]float64, len(samples))
	for name, vals := range samples {
		medians[name] = median(vals)
	}
	return medians, nil
}

// ListMatchups implements Store.
func (s *MemoryStore) ListMatchups(_ context.Context, season, week int) ([]Matchup, error) {
	s.mu.RLock()
	var out []Matchup
	for m := range s.snapshots {
		if m.Season == season && m.Week == week {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Home != out[j].Home {
			return out[i].Home < out[j].Home
		}
		return out[i].Away < out[j].Away
	})
	return out, nil
}

// SchemaVersion implements Store.
func (s *MemoryStore) SchemaVersion() string {
	return s.schemaVersion
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
