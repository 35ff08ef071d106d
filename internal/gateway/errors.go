package gateway

import "errors"

// Sentinel errors for gateway lifecycle operations.
var (
	// ErrNilConfig is returned by New when no configuration is given.
	ErrNilConfig = errors.New("configuration is required")

	// ErrNotStopped is returned by Start when the gateway is not stopped.
	ErrNotStopped = errors.New("gateway is not in stopped state")

	// ErrNotRunning is returned by Stop when the gateway is not running.
	ErrNotRunning = errors.New("gateway is not running")

	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("gateway is closed")
)
