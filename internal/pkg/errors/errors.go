package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing or expired resources.
	ErrNotFound = errors.New("not found")
	// ErrNotReady marks a result requested before the pipeline finished.
	ErrNotReady = errors.New("not ready")
	// ErrResultMissing marks a completed request whose result cannot be
	// recovered from any copy.
	ErrResultMissing = errors.New("result missing")
	// ErrCancelled marks a request cancelled by the client.
	ErrCancelled = errors.New("cancelled")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
)
