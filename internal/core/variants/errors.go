package variants

import "errors"

var (
	// ErrVariantNotFound is returned by Get when no variant is stored for the identity.
	// It is a normal miss, not a failure.
	ErrVariantNotFound = errors.New("variant not found")

	// ErrVariantStoreUnavailable wraps backend failures so callers can tell an outage
	// from a miss.
	ErrVariantStoreUnavailable = errors.New("variant store unavailable")

	// ErrInvalidOriginalPath is returned when an invalidation path is empty or escapes
	// the store root.
	ErrInvalidOriginalPath = errors.New("invalid original path")

	// ErrEdgeInvalidation is returned when stored variants were removed but the edge
	// refused the purge.
	ErrEdgeInvalidation = errors.New("edge invalidation failed")

	// ErrNilStore is returned when the cache is built without a backing store.
	ErrNilStore = errors.New("variant store is nil")
)
