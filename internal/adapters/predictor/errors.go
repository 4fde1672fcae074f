package predictor

import "errors"

// Sentinel kinds for artifact and prediction errors.
var (
	ErrMissingID         = errors.New("artifact missing id")
	ErrUnknownOutputType = errors.New("unknown output type")
	ErrNoFeatures        = errors.New("artifact declares no features")
	ErrDimensionMismatch = errors.New("feature dimension mismatch")
	ErrNegativeWeight    = errors.New("historical weight must be >= 0")
)
