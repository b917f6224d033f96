package downloader

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no video id could be parsed out of the URL.
	ErrNotFound = errors.New("video id not found")

	// ErrFormatUnavailable means the strategy's filter matched nothing; the next strategy may still work.
	ErrFormatUnavailable = errors.New("requested format is not available")

	// ErrNoStream is returned by Select when no descriptor satisfies the constraint.
	ErrNoStream = fmt.Errorf("no matching stream: %w", ErrFormatUnavailable)

	// ErrBackendBlocked means the backend refused to serve this network; try the next backend.
	ErrBackendBlocked = errors.New("backend blocked")
)

// BackendError is a non-recoverable failure of a single backend call.
type BackendError struct {
	Backend string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// RelayError is the failure of one relay endpoint.
type RelayError struct {
	Relay  string
	Status int
	Err    error
}

func (e *RelayError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("relay %s: status %d: %v", e.Relay, e.Status, e.Err)
	}
	return fmt.Sprintf("relay %s: %v", e.Relay, e.Err)
}

func (e *RelayError) Unwrap() error { return e.Err }

// AllRelaysExhaustedError carries the last relay failure for diagnostics.
type AllRelaysExhaustedError struct {
	Tried int
	Last  error
}

func (e *AllRelaysExhaustedError) Error() string {
	return fmt.Sprintf("all %d relays exhausted, last error: %v", e.Tried, e.Last)
}

func (e *AllRelaysExhaustedError) Unwrap() error { return e.Last }

// TranscodeError is a non-zero exit of the transcoding tool.
type TranscodeError struct {
	Output string
	Err    error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("transcode failed: %v: %s", e.Err, e.Output)
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// StrategyError tags an error with the strategy that produced it.
type StrategyError struct {
	Strategy string
	Err      error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("strategy %s: %v", e.Strategy, e.Err)
}

func (e *StrategyError) Unwrap() error { return e.Err }

// IsRecoverable reports whether the engine should move on to the next strategy.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrFormatUnavailable) || errors.Is(err, ErrBackendBlocked)
}
