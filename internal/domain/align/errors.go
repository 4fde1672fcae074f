package align

import "errors"

// Sentinel kinds for alignment errors.
var (
	ErrNoRequiredFeatures = errors.New("descriptor declares no required features")
)
