package feature

import "errors"

// Sentinel kinds for feature schema errors.
var (
	ErrUnknownField  = errors.New("unknown feature field")
	ErrEmptySnapshot = errors.New("empty feature snapshot")
)
