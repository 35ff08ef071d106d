package policy

import (
	"errors"
	"fmt"
	"net/http"
)

// FailureMessage is the body of every authentication failure.
const FailureMessage = "Unauthorized"

// FailureKey is a stable machine-readable failure reason. Each policy
// package declares its own closed set of keys.
type FailureKey string

// String returns the wire form of the key.
func (k FailureKey) String() string {
	return string(k)
}

// Failure is the interrupt directive handed to the gateway, which writes
// it to the client without calling the backend.
type Failure struct {
	StatusCode int        `json:"http_status_code"`
	Key        FailureKey `json:"key"`
	Message    string     `json:"message"`
}

// NewFailure builds the 401 failure for key.
func NewFailure(key FailureKey) *Failure {
	return &Failure{
		StatusCode: http.StatusUnauthorized,
		Key:        key,
		Message:    FailureMessage,
	}
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("policy failure (%d %s): %s", f.StatusCode, f.Key, f.Message)
}

// AsFailure reports whether err is, or wraps, a *Failure.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
