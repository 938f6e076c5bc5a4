package worker

import "errors"

var (
	// ErrInvalidIdentity is returned when the request path is not {original-path}/{key}.
	ErrInvalidIdentity = errors.New("invalid variant identity")

	// ErrTimeout is returned when an invocation exceeds Config.Timeout.
	ErrTimeout = errors.New("transformation timed out")

	// ErrPayloadTooLarge is returned when the output exceeds MaxPayloadBytes and cannot
	// be served by redirect.
	ErrPayloadTooLarge = errors.New("transformed payload exceeds size limit")

	// ErrNilDependency is returned when a required dependency is nil.
	ErrNilDependency = errors.New("required dependency is nil")
)
