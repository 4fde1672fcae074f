package featurestore

import (
	"errors"
)

// Sentinel kinds for feature store errors.
var (
	// ErrNotFound indicates the matchup has no snapshot row at all.
	ErrNotFound = errors.New("matchup not found")
	// ErrNotYetAvailable indicates the matchup is scheduled but its
	// snapshot has not been computed yet.
	ErrNotYetAvailable = errors.New("feature snapshot not yet available")
	// ErrSchemaMismatch indicates a stored snapshot carries a schema
	// version this build does not understand.
	ErrSchemaMismatch = errors.New("feature schema version mismatch")
)
