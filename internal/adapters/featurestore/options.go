package featurestore

import "time"

// SQLiteOption applies a configuration option to the SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithMaxOpenConns sets the maximum number of open connections.
func WithMaxOpenConns(n int) SQLiteOption {
	return func(s *SQLiteStore) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}

// WithMaxIdleConns sets the maximum number of idle connections.
func WithMaxIdleConns(n int) SQLiteOption {
	return func(s *SQLiteStore) {
		if n > 0 {
			s.maxIdleConns = n
		}
	}
}

// WithConnMaxLifetime sets how long a connection may be reused.
func WithConnMaxLifetime(d time.Duration) SQLiteOption {
	return func(s *SQLiteStore) {
		if d > 0 {
			s.connMaxLifetime = d
		}
	}
}

// WithBusyTimeout sets how long to wait when the database is locked.
func WithBusyTimeout(d time.Duration) SQLiteOption {
	return func(s *SQLiteStore) {
		if d > 0 {
			s.busyTimeout = d
		}
	}
}

// WithJournalMode sets the SQLite journal mode.
func WithJournalMode(mode string) SQLiteOption {
	return func(s *SQLiteStore) {
		if mode != "" {
			s.journalMode = mode
		}
	}
}

// WithSynchronous sets the SQLite synchronous mode.
func WithSynchronous(mode string) SQLiteOption {
	return func(s *SQLiteStore) {
		if mode != "" {
			s.synchronous = mode
		}
	}
}

// WithSchemaVersion overrides the feature schema version the store reports.
func WithSchemaVersion(version string) SQLiteOption {
	return func(s *SQLiteStore) {
		if version != "" {
			s.schemaVersion = version
		}
	}
}
