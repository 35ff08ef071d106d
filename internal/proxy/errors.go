package proxy

import "errors"

// Sentinel errors for proxy operations.
var (
	// ErrInvalidTargetURL indicates that the backend URL is invalid.
	ErrInvalidTargetURL = errors.New("invalid target URL")
)
