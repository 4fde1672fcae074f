package featurestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/fieldline/gridcast/internal/domain/feature"
	"github.com/fieldline/gridcast/pkg/logger"
	"github.com/fieldline/gridcast/pkg/metrics"
)

// Default SQLite configuration constants.
const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultBusyTimeout     = 5 * time.Second
	defaultJournalMode     = "WAL"
	defaultSynchronous     = "NORMAL"
)

// SQLiteStore is the durable Store backed by a local SQLite database.
// Snapshots are stored one row per matchup with the feature map as JSON.
type SQLiteStore struct {
	db            *sql.DB
	schemaVersion string
	log           logger.Logger

	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
	busyTimeout     time.Duration
	journalMode     string
	synchronous     string
}

// OpenSQLite opens (creating if necessary) the feature database at path,
// applies pending migrations, and returns the store.
func OpenSQLite(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	s := &SQLiteStore{
		schemaVersion:   feature.CurrentSchemaVersion,
		log:             logger.Get().Named("featurestore"),
		maxOpenConns:    defaultMaxOpenConns,
		maxIdleConns:    defaultMaxIdleConns,
		connMaxLifetime: defaultConnMaxLifetime,
		busyTimeout:     defaultBusyTimeout,
		journalMode:     defaultJournalMode,
		synchronous:     defaultSynchronous,
	}
	for _, opt := range opts {
		opt(s)
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		if err := migrateUp(path); err != nil {
			return nil, err
		}
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=%d&_journal_mode=%s&_synchronous=%s&_foreign_keys=on",
		path,
		s.busyTimeout.Milliseconds(),
		s.journalMode,
		s.synchronous,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open feature database: %w", err)
	}

	db.SetMaxOpenConns(s.maxOpenConns)
	db.SetMaxIdleConns(s.maxIdleConns)
	db.SetConnMaxLifetime(s.connMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping feature database: %w", err)
	}

	// In-memory databases skip the file-based migration path above.
	if path == ":memory:" {
		if err := bootstrapSchema(db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	s.db = db
	return s, nil
}

// bootstrapSchema creates the schema directly for in-memory databases, where
// the migration runner's separate connection would see a different database.
func bootstrapSchema(db *sql.DB) error {
	ddl, err := migrationsFS.ReadFile("migrations/000001_create_feature_snapshots.up.sql")
	if err != nil {
		return fmt.Errorf("read bootstrap schema: %w", err)
	}
	if _, err := db.Exec(string(ddl)); err != nil {
		return fmt.Errorf("bootstrap schema: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, home, away string, season, week int) (feature.Vector, error) {
	start := time.Now()

	var (
		schemaVersion string
		raw           sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT schema_version, features FROM feature_snapshots
		 WHERE home = ? AND away = ? AND season = ? AND week = ?`,
		home, away, season, week,
	).Scan(&schemaVersion, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordFeatureFetchError()
		return feature.Vector{}, ErrNotFound
	}
	if err != nil {
		metrics.RecordFeatureFetchError()
		return feature.Vector{}, fmt.Errorf("query snapshot: %w", err)
	}
	if !raw.Valid {
		metrics.RecordFeatureFetchError()
		return feature.Vector{}, ErrNotYetAvailable
	}

	var values map[string]float64
	if err := json.Unmarshal([]byte(raw.String), &values); err != nil {
		metrics.RecordFeatureFetchError()
		return feature.Vector{}, fmt.Errorf("decode snapshot: %w", err)
	}

	metrics.RecordFeatureFetchLatency(float64(time.Since(start).Microseconds()) / 1000.0)
	return feature.NewVector(schemaVersion, values), nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, m Matchup, vec feature.Vector) error {
	raw, err := json.Marshal(vec.Map())
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO feature_snapshots (home, away, season, week, schema_version, features, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, datetime('now'))
		 ON CONFLICT (home, away, season, week)
		 DO UPDATE SET schema_version = excluded.schema_version,
		               features = excluded.features,
		               updated_at = excluded.updated_at`,
		m.Home, m.Away, m.Season, m.Week, vec.SchemaVersion(), string(raw),
	)
	if err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

// Schedule implements Store. An already-stored snapshot is left untouched.
func (s *SQLiteStore) Schedule(ctx context.Context, m Matchup) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feature_snapshots (home, away, season, week, schema_version, features)
		 VALUES (?, ?, ?, ?, ?, NULL)
		 ON CONFLICT (home, away, season, week) DO NOTHING`,
		m.Home, m.Away, m.Season, m.Week, s.schemaVersion,
	)
	if err != nil {
		return fmt.Errorf("schedule matchup: %w", err)
	}
	return nil
}

// Medians implements Store. The median is computed per field across every
// snapshot in the window weeks before week; fields absent everywhere are
// absent from the result.
func (s *SQLiteStore) Medians(ctx context.Context, season, week, window int) (map[string]float64, error) {
	from := week - window
	if from < 0 {
		from = 0
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT features FROM feature_snapshots
		 WHERE season = ? AND week >= ? AND week < ? AND features IS NOT NULL`,
		season, from, week,
	)
	if err != nil {
		return nil, fmt.Errorf("query median window: %w", err)
	}
	defer rows.Close()

	samples := make(map[string][]float64)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan median window: %w", err)
		}
		var values map[string]float64
		if err := json.Unmarshal([]byte(raw), &values); err != nil {
			s.log.Warn(ctx, "skipping undecodable snapshot in median window", logger.Error(err))
			continue
		}
		for name, v := range values {
			samples[name] = append(samples[name], v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate median window: %w", err)
	}

	medians := make(map[string]float64, len(samples))
	for name, vals := range samples {
		medians[name] = median(vals)
	}
	return medians, nil
}

// ListMatchups implements Store.
func (s *SQLiteStore) ListMatchups(ctx context.Context, season, week int) ([]Matchup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT home, away FROM feature_snapshots
		 WHERE season = ? AND week = ? AND features IS NOT NULL
		 ORDER BY home, away`,
		season, week,
	)
	if err != nil {
		return nil, fmt.Errorf("query matchups: %w", err)
	}
	defer rows.Close()

	var out []Matchup
	for rows.Next() {
		m := Matchup{Season: season, Week: week}
		if err := rows.Scan(&m.Home, &m.Away); err != nil {
			return nil, fmt.Errorf("scan matchup: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matchups: %w", err)
	}
	return out, nil
}

// SchemaVersion implements Store.
func (s *SQLiteStore) SchemaVersion() string {
	return s.schemaVersion
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// median returns the middle value of vals; for an even count it averages the
// two middle values. vals is sorted in place.
func median(vals []float64) float64 {
	sort.Float64s(vals)
	n := len(vals)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}
