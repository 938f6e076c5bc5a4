package directives

import "strings"

// Format is an output image format directive.
type Format string

const (
	FormatAuto Format = "auto"
	FormatJPEG Format = "jpeg"
	FormatWebP Format = "webp"
	FormatAVIF Format = "avif"
	FormatPNG  Format = "png"
	FormatSVG  Format = "svg"
	FormatGIF  Format = "gif"
)

// supportedFormats is the set of recognized format directive values.
var supportedFormats = map[Format]struct{}{
	FormatAuto: {},
	FormatJPEG: {},
	FormatWebP: {},
	FormatAVIF: {},
	FormatPNG:  {},
	FormatSVG:  {},
	FormatGIF:  {},
}

// mimeTypes maps concrete formats to their Content-Type.
var mimeTypes = map[Format]string{
	FormatJPEG: "image/jpeg",
	FormatWebP: "image/webp",
	FormatAVIF: "image/avif",
	FormatPNG:  "image/png",
	FormatGIF:  "image/gif",
	FormatSVG:  "image/svg+xml",
}

// ParseFormat lower-cases s and reports whether it names a recognized format.
func ParseFormat(s string) (Format, bool) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	_, ok := supportedFormats[f]
	return f, ok
}

// String returns the directive value.
func (f Format) String() string {
	return string(f)
}

// MIMEType returns the Content-Type for f. Anything outside the table maps to image/jpeg.
func (f Format) MIMEType() string {
	if mt, ok := mimeTypes[f]; ok {
		return mt
	}
	return mimeTypes[FormatJPEG]
}

// Lossy reports whether quality applies when encoding to f.
func (f Format) Lossy() bool {
	switch f {
	case FormatJPEG, FormatWebP, FormatAVIF:
		return true
	default:
		return false
	}
}

// FormatFromMIME maps a Content-Type back to a concrete format. Parameters such as
// charset are ignored. ok is false for types outside the table.
func FormatFromMIME(contentType string) (Format, bool) {
	mt := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if mt == "image/jpg" {
		return FormatJPEG, true
	}
	for f, candidate := range mimeTypes {
		if candidate == mt {
			return f, true
		}
	}
	return "", false
}

// ResolveAuto picks a concrete format from an Accept header: avif, then webp, else jpeg.
func ResolveAuto(accept string) Format {
	accept = strings.ToLower(accept)
	switch {
	case strings.Contains(accept, "image/avif"):
		return FormatAVIF
	case strings.Contains(accept, "image/webp"):
		return FormatWebP
	default:
		return FormatJPEG
	}
}
