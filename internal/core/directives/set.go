// Package directives turns image requests into canonical variant identities.
//
// A request names an original asset by path and asks for a transformation through
// query directives (format, width, height, quality). Normalize validates those
// directives, resolves format=auto against the Accept header and renders the survivors
// in a fixed order, so every request that means the same variant maps to one
// byte-identical identity: {original-path}/{canonical-key}. That identity is what the
// edge cache and the variant store key on.
package directives

import (
	"strconv"
	"strings"
)

// Directive names, in canonical key order.
const (
	KeyFormat  = "format"
	KeyQuality = "quality"
	KeyWidth   = "width"
	KeyHeight  = "height"
)

// OriginalKey is the canonical key of a request with no surviving directives.
const OriginalKey = "original"

// MaxQuality is the upper clamp for the quality directive.
const MaxQuality = 100

// Set is a validated transform directive set. Zero values mean "not requested".
type Set struct {
	Format  Format
	Quality int
	Width   int
	Height  int
}

// IsOriginal reports whether the set requests no transformation.
func (s Set) IsOriginal() bool {
	return s.Format == "" && s.Quality == 0 && s.Width == 0 && s.Height == 0
}

// Key renders the canonical cache key: format, quality, width, height as key=value,
// comma-joined, or OriginalKey for an empty set.
func (s Set) Key() string {
	if s.IsOriginal() {
		return OriginalKey
	}
	parts := make([]string, 0, 4)
	if s.Format != "" {
		parts = append(parts, KeyFormat+"="+string(s.Format))
	}
	if s.Quality > 0 {
		parts = append(parts, KeyQuality+"="+strconv.Itoa(s.Quality))
	}
	if s.Width > 0 {
		parts = append(parts, KeyWidth+"="+strconv.Itoa(s.Width))
	}
	if s.Height > 0 {
		parts = append(parts, KeyHeight+"="+strconv.Itoa(s.Height))
	}
	return strings.Join(parts, ",")
}

// String returns the canonical key.
func (s Set) String() string {
	return s.Key()
}

// Identity is a rewritten request identity: the original asset plus its canonical key.
type Identity struct {
	OriginalPath string
	Set          Set
	Key          string
}

// Path returns {original-path}/{canonical-key}.
func (i Identity) Path() string {
	return i.OriginalPath + "/" + i.Key
}

// String returns the identity path.
func (i Identity) String() string {
	return i.Path()
}
