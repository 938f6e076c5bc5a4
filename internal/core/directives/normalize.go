package directives

import (
	"errors"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrInvalidIdentity is returned when a canonical identity has no original path or no key segment.
	ErrInvalidIdentity = errors.New("invalid variant identity")
)

// Normalizer validates and canonicalizes directive sets. The zero value is ready to use.
type Normalizer struct {
	// MaxDimension drops width/height values above it. 0 leaves dimensions unbounded.
	MaxDimension int
}

// Normalize rewrites a request for originalPath with query directives into its canonical
// identity, using the zero Normalizer.
func Normalize(originalPath string, query url.Values, accept string) Identity {
	return Normalizer{}.Normalize(originalPath, query, accept)
}

// Normalize rewrites a request for originalPath with query directives into its canonical
// identity. Unrecognized keys and invalid values are dropped, never reported. The result
// depends only on the arguments.
func (n Normalizer) Normalize(originalPath string, query url.Values, accept string) Identity {
	var set Set

	// Keys are visited in sorted order so duplicate spellings of one directive
	// (Width, WIDTH) resolve the same way on every call.
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, rawKey := range keys {
		key := strings.ToLower(strings.TrimSpace(rawKey))
		for _, value := range query[rawKey] {
			if n.apply(&set, key, value, accept) {
				break
			}
		}
	}

	return newIdentity(CleanPath(originalPath), set)
}

// apply validates one directive and stores it in set if the slot is still empty.
// It returns true when the value was accepted.
func (n Normalizer) apply(set *Set, key, value, accept string) bool {
	switch key {
	case KeyFormat:
		if set.Format != "" {
			return false
		}
		f, ok := ParseFormat(value)
		if !ok {
			return false
		}
		if f == FormatAuto {
			f = ResolveAuto(accept)
		}
		set.Format = f
		return true
	case KeyQuality:
		if set.Quality != 0 {
			return false
		}
		q, ok := parsePositive(value)
		if !ok {
			return false
		}
		set.Quality = min(q, MaxQuality)
		return true
	case KeyWidth:
		if set.Width != 0 {
			return false
		}
		w, ok := n.dimension(value)
		if !ok {
			return false
		}
		set.Width = w
		return true
	case KeyHeight:
		if set.Height != 0 {
			return false
		}
		h, ok := n.dimension(value)
		if !ok {
			return false
		}
		set.Height = h
		return true
	default:
		return false
	}
}

func (n Normalizer) dimension(value string) (int, bool) {
	v, ok := parsePositive(value)
	if !ok {
		return 0, false
	}
	if n.MaxDimension > 0 && v > n.MaxDimension {
		return 0, false
	}
	return v, true
}

// Parse decodes a canonical key (the trailing identity segment) into a Set. The worker
// can be reached without going through Normalize, so every value is validated again.
// A format value outside the table, including auto, decodes as jpeg.
func (n Normalizer) Parse(key string) Set {
	var set Set
	key = strings.TrimSpace(key)
	if key == "" || key == OriginalKey {
		return set
	}
	for _, pair := range strings.Split(key, ",") {
		name, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if name == KeyFormat {
			if set.Format != "" {
				continue
			}
			f, ok := ParseFormat(value)
			if !ok || f == FormatAuto {
				f = FormatJPEG
			}
			set.Format = f
			continue
		}
		n.apply(&set, name, value, "")
	}
	return dropLosslessQuality(set)
}

// Parse decodes a canonical key with the zero Normalizer.
func Parse(key string) Set {
	return Normalizer{}.Parse(key)
}

// SplitIdentity splits {original-path}/{key} at the last slash.
func SplitIdentity(identity string) (originalPath, key string, err error) {
	identity = strings.TrimPrefix(identity, "/")
	i := strings.LastIndexByte(identity, '/')
	if i <= 0 || i == len(identity)-1 {
		return "", "", ErrInvalidIdentity
	}
	originalPath = CleanPath(identity[:i])
	if originalPath == "" {
		return "", "", ErrInvalidIdentity
	}
	return originalPath, identity[i+1:], nil
}

// ParseIdentity splits and parses a canonical identity into an Identity whose key is
// re-rendered from the validated set.
func (n Normalizer) ParseIdentity(identity string) (Identity, error) {
	originalPath, key, err := SplitIdentity(identity)
	if err != nil {
		return Identity{}, err
	}
	return newIdentity(originalPath, n.Parse(key)), nil
}

// CleanPath makes an asset path relative and free of dot segments. Leading "../"
// segments cannot escape the root.
func CleanPath(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

// dropLosslessQuality clears quality when the explicit target format ignores it, so
// format=png and format=png,quality=80 share one variant.
func dropLosslessQuality(set Set) Set {
	if set.Format != "" && !set.Format.Lossy() {
		set.Quality = 0
	}
	return set
}

func newIdentity(originalPath string, set Set) Identity {
	set = dropLosslessQuality(set)
	return Identity{
		OriginalPath: originalPath,
		Set:          set,
		Key:          set.Key(),
	}
}

func parsePositive(value string) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
