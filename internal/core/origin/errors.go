package origin

import "errors"

var (
	// ErrOriginNotFound is returned when the original asset does not exist.
	ErrOriginNotFound = errors.New("original not found")

	// ErrOriginFetchFailed is returned when fetching the original fails for any other reason.
	ErrOriginFetchFailed = errors.New("failed to fetch original")

	// ErrOriginTimeout is returned when the origin does not answer within the deadline.
	ErrOriginTimeout = errors.New("origin request timed out")

	// ErrSourceTooLarge is returned when the original exceeds the configured size limit.
	ErrSourceTooLarge = errors.New("original exceeds size limit")

	// ErrCircuitOpen is returned while the breaker for an origin host is open.
	ErrCircuitOpen = errors.New("origin circuit open")
)
