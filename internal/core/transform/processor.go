// Package transform resizes and re-encodes images: auto-orientation from EXIF,
// aspect-preserving resize that never upscales, and encoding to the requested format.
package transform

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"
	_ "golang.org/x/image/webp" // Register WebP decoder

	"Prism/internal/core/directives"
)

// Encoder defaults used when a lossy target has no quality directive.
const (
	DefaultJPEGQuality = 85
	DefaultWebPQuality = 80
	DefaultAVIFQuality = 60

	// DefaultMaxSourcePixels bounds decoded size (about 400 MB of RGBA).
	DefaultMaxSourcePixels = 100_000_000

	avifSpeed = 8
)

// Output is an encoded variant.
type Output struct {
	Data        []byte
	ContentType string
	Format      directives.Format
}

// Processor applies a directive set to a source image.
type Processor interface {
	Process(data []byte, contentType string, set directives.Set) (*Output, error)
}

// ImageProcessor implements Processor with the imaging library.
type ImageProcessor struct {
	maxSourcePixels int
}

// NewProcessor returns an ImageProcessor. maxSourcePixels <= 0 uses DefaultMaxSourcePixels.
func NewProcessor(maxSourcePixels int) *ImageProcessor {
	if maxSourcePixels <= 0 {
		maxSourcePixels = DefaultMaxSourcePixels
	}
	return &ImageProcessor{maxSourcePixels: maxSourcePixels}
}

// Process decodes data, auto-orients it, resizes per set and encodes to set.Format.
// An empty set returns the source unchanged. With no format directive the source
// format is kept when it can be encoded, otherwise the output is JPEG.
func (p *ImageProcessor) Process(data []byte, contentType string, set directives.Set) (*Output, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image data", ErrUnsupportedFormat)
	}
	if set.IsOriginal() {
		return &Output{Data: data, ContentType: passThroughType(data, contentType)}, nil
	}

	if isSVG(data, contentType) {
		// Vector sources are served as-is; rasterizing is not supported.
		if set.Format == "" || set.Format == directives.FormatSVG {
			return &Output{Data: data, ContentType: directives.FormatSVG.MIMEType(), Format: directives.FormatSVG}, nil
		}
		return nil, fmt.Errorf("%w: cannot rasterize svg to %s", ErrUnsupportedFormat, set.Format)
	}
	if set.Format == directives.FormatSVG {
		return nil, fmt.Errorf("%w: cannot encode raster image as svg", ErrUnsupportedFormat)
	}

	cfg, sourceFormat, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, decodeError(err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > int64(p.maxSourcePixels) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels",
			ErrResourceLimit, cfg.Width, cfg.Height, p.maxSourcePixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, decodeError(err)
	}

	img = resize(img, set.Width, set.Height)

	target := set.Format
	if target == "" {
		target = encodableSource(sourceFormat)
	}
	encoded, err := encode(img, target, set.Quality)
	if err != nil {
		return nil, err
	}
	return &Output{Data: encoded, ContentType: target.MIMEType(), Format: target}, nil
}

// resize fits img to the requested dimensions without upscaling. A dimension larger
// than the source is dropped; one dimension scales proportionally; two dimensions fit
// the image inside the box.
func resize(img image.Image, width, height int) image.Image {
	bounds := img.Bounds()
	srcWidth, srcHeight := bounds.Dx(), bounds.Dy()

	if width >= srcWidth {
		width = 0
	}
	if height >= srcHeight {
		height = 0
	}

	switch {
	case width == 0 && height == 0:
		return img
	case width > 0 && height > 0:
		return imaging.Fit(img, width, height, imaging.Lanczos)
	default:
		return imaging.Resize(img, width, height, imaging.Lanczos)
	}
}

func encode(img image.Image, format directives.Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	switch format {
	case directives.FormatPNG:
		err = imaging.Encode(&buf, img, imaging.PNG)
	case directives.FormatGIF:
		err = imaging.Encode(&buf, img, imaging.GIF)
	case directives.FormatWebP:
		err = webp.Encode(&buf, img, webp.Options{Quality: qualityOr(quality, DefaultWebPQuality)})
	case directives.FormatAVIF:
		err = avif.Encode(&buf, img, avif.Options{
			Quality:      qualityOr(quality, DefaultAVIFQuality),
			QualityAlpha: qualityOr(quality, DefaultAVIFQuality),
			Speed:        avifSpeed,
		})
	default:
		format = directives.FormatJPEG
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(qualityOr(quality, DefaultJPEGQuality)))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode %s: %v", ErrTransformFailed, format, err)
	}
	return buf.Bytes(), nil
}

func qualityOr(quality, fallback int) int {
	if quality <= 0 {
		return fallback
	}
	return min(quality, directives.MaxQuality)
}

// encodableSource maps a decoder name to an output format we can write.
func encodableSource(decoderName string) directives.Format {
	switch decoderName {
	case "png":
		return directives.FormatPNG
	case "gif":
		return directives.FormatGIF
	case "webp":
		return directives.FormatWebP
	case "avif":
		return directives.FormatAVIF
	default:
		return directives.FormatJPEG
	}
}

func passThroughType(data []byte, contentType string) string {
	if f, ok := directives.FormatFromMIME(contentType); ok {
		return f.MIMEType()
	}
	if contentType != "" && !strings.HasPrefix(contentType, "application/octet-stream") {
		return contentType
	}
	if isSVG(data, "") {
		return directives.FormatSVG.MIMEType()
	}
	if _, name, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		return encodableSource(name).MIMEType()
	}
	return "application/octet-stream"
}

// isSVG reports whether the source is an SVG document, by content type or by sniffing
// the first kilobyte for an <svg element.
func isSVG(data []byte, contentType string) bool {
	if f, ok := directives.FormatFromMIME(contentType); ok {
		return f == directives.FormatSVG
	}
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	head = bytes.TrimSpace(head)
	if !bytes.HasPrefix(head, []byte("<")) {
		return false
	}
	return bytes.Contains(bytes.ToLower(head), []byte("<svg"))
}

func decodeError(err error) error {
	if isUnsupportedFormatError(err) {
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return fmt.Errorf("%w: failed to decode image: %v", ErrTransformFailed, err)
}

func isUnsupportedFormatError(err error) bool {
	if errors.Is(err, image.ErrFormat) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unknown format") ||
		strings.Contains(msg, "missing SOI marker")
}
