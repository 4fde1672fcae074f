package pool

import (
	"errors"
)

// Sentinel kinds for pool errors.
var (
	// ErrPoolClosed indicates a submit after shutdown.
	ErrPoolClosed = errors.New("worker pool closed")
)
