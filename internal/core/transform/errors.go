package transform

import "errors"

var (
	// ErrUnsupportedFormat is returned when the source cannot be decoded or the target
	// format cannot be produced from it.
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrTransformFailed is returned when decoding, resizing or encoding fails.
	ErrTransformFailed = errors.New("image transformation failed")

	// ErrResourceLimit is returned when the source exceeds the configured pixel ceiling.
	ErrResourceLimit = errors.New("source image exceeds resource limit")
)
