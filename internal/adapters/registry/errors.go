package registry

import (
	"errors"
)

// Sentinel kinds for registry errors.
var (
	// ErrNoArtifacts indicates the artifact directory holds no model files.
	ErrNoArtifacts = errors.New("no model artifacts found")
)
