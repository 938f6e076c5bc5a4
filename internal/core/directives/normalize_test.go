package directives

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustQuery(t *testing.T, raw string) url.Values {
	t.Helper()
	q, err := url.ParseQuery(raw)
	require.NoError(t, err)
	return q
}

func TestNormalize_CanonicalOrderAndCase(t *testing.T) {
	a := Normalize("images/cat.jpg", mustQuery(t, "WIDTH=200&Format=WEBP"), "")
	b := Normalize("images/cat.jpg", mustQuery(t, "format=webp&width=200"), "")

	assert.Equal(t, "images/cat.jpg/format=webp,width=200", a.Path())
	assert.Equal(t, a.Path(), b.Path())
	assert.Equal(t, a, b)
}

func TestNormalize_FullKeyOrder(t *testing.T) {
	id := Normalize("/a/b.png", mustQuery(t, "height=50&width=100&quality=80&format=webp"), "")
	assert.Equal(t, "a/b.png", id.OriginalPath)
	assert.Equal(t, "format=webp,quality=80,width=100,height=50", id.Key)
}

func TestNormalize_LosslessFormatsDropQuality(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"format=png&quality=100", "format=png"},
		{"format=gif&quality=40&width=10", "format=gif,width=10"},
		{"format=svg&quality=1", "format=svg"},
		{"format=jpeg&quality=100", "format=jpeg,quality=100"},
		{"quality=70", "quality=70"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			id := Normalize("x.png", mustQuery(t, tt.query), "")
			assert.Equal(t, tt.want, id.Key)
		})
	}

	a := Normalize("x.png", mustQuery(t, "format=png&quality=80"), "")
	b := Normalize("x.png", mustQuery(t, "format=png"), "")
	assert.Equal(t, a, b)
}

func TestParse_LosslessFormatsDropQuality(t *testing.T) {
	assert.Equal(t, "format=png,width=5", Parse("format=png,quality=90,width=5").Key())

	id, err := Normalizer{}.ParseIdentity("a/b.gif/format=gif,quality=50")
	require.NoError(t, err)
	assert.Equal(t, "a/b.gif/format=gif", id.Path())
}

func TestNormalize_DropUnknown(t *testing.T) {
	withJunk := Normalize("x.jpg", mustQuery(t, "foo=bar&width=100"), "")
	plain := Normalize("x.jpg", mustQuery(t, "width=100"), "")
	assert.Equal(t, plain.Path(), withJunk.Path())
}

func TestNormalize_NoDirectivesIsOriginal(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"empty", ""},
		{"unknown only", "foo=bar&baz=1"},
		{"all invalid", "width=-5&height=abc&quality=0&format=tiff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := Normalize("images/dog.png", mustQuery(t, tt.query), "image/avif")
			assert.Equal(t, "images/dog.png/original", id.Path())
			assert.True(t, id.Set.IsOriginal())
		})
	}
}

func TestNormalize_QualityClamp(t *testing.T) {
	id := Normalize("x.jpg", mustQuery(t, "quality=150&format=jpeg"), "")
	assert.Equal(t, 100, id.Set.Quality)
	assert.Equal(t, "format=jpeg,quality=100", id.Key)
}

func TestNormalize_DimensionValidation(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"width=0", OriginalKey},
		{"width=-1", OriginalKey},
		{"width=1.5", OriginalKey},
		{"width=abc", OriginalKey},
		{"width=%20300%20", "width=300"},
		{"height=20", "height=20"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize("x", mustQuery(t, tt.query), "").Key)
		})
	}
}

func TestNormalize_MaxDimensionHook(t *testing.T) {
	n := Normalizer{MaxDimension: 4000}
	id := n.Normalize("x.jpg", mustQuery(t, "width=5000&height=3000"), "")
	assert.Equal(t, "height=3000", id.Key)
}

func TestNormalize_AutoFormat(t *testing.T) {
	tests := []struct {
		accept string
		want   Format
	}{
		{"image/avif,image/webp", FormatAVIF},
		{"image/webp,*/*", FormatWebP},
		{"image/webp", FormatWebP},
		{"text/html,*/*;q=0.8", FormatJPEG},
		{"", FormatJPEG},
	}
	for _, tt := range tests {
		t.Run(tt.accept, func(t *testing.T) {
			id := Normalize("x.jpg", mustQuery(t, "format=auto"), tt.accept)
			assert.Equal(t, tt.want, id.Set.Format)
			assert.Equal(t, "format="+string(tt.want), id.Key)
		})
	}
}

func TestNormalize_DuplicateKeysDeterministic(t *testing.T) {
	q := mustQuery(t, "width=300&WIDTH=200&width=100")
	first := Normalize("x.jpg", q, "").Key
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, Normalize("x.jpg", q, "").Key)
	}
	assert.Equal(t, "width=200", first)
}

func TestNormalize_InvalidFirstValueFallsThrough(t *testing.T) {
	id := Normalize("x.jpg", mustQuery(t, "width=abc&width=120"), "")
	assert.Equal(t, 120, id.Set.Width)
}

func TestNormalize_PathCannotEscapeRoot(t *testing.T) {
	id := Normalize("../../etc/passwd", nil, "")
	assert.Equal(t, "etc/passwd", id.OriginalPath)
}

func TestParse_RoundTripsCanonicalKeys(t *testing.T) {
	keys := []string{
		"original",
		"format=webp",
		"format=avif,quality=60,width=640",
		"width=100,height=100",
	}
	for _, key := range keys {
		t.Run(key, func(t *testing.T) {
			assert.Equal(t, key, Parse(key).Key())
		})
	}
}

func TestParse_RevalidatesUntrustedInput(t *testing.T) {
	set := Parse("quality=500,width=-20,height=0,bogus=1,format=tiff")
	assert.Equal(t, 100, set.Quality)
	assert.Zero(t, set.Width)
	assert.Zero(t, set.Height)
	assert.Equal(t, FormatJPEG, set.Format, "unknown format values fall back to jpeg")
}

func TestParse_AutoIsNotTrustedAtWorker(t *testing.T) {
	assert.Equal(t, FormatJPEG, Parse("format=auto").Format)
}

func TestSplitIdentity(t *testing.T) {
	p, key, err := SplitIdentity("/images/cats/mycat.jpg/format=webp,width=200")
	require.NoError(t, err)
	assert.Equal(t, "images/cats/mycat.jpg", p)
	assert.Equal(t, "format=webp,width=200", key)

	for _, bad := range []string{"", "/", "original", "/original", "images/cat.jpg/"} {
		_, _, err := SplitIdentity(bad)
		assert.ErrorIs(t, err, ErrInvalidIdentity, bad)
	}
}

func TestParseIdentity_RerendersKey(t *testing.T) {
	id, err := Normalizer{}.ParseIdentity("a/b.jpg/width=10,format=png")
	require.NoError(t, err)
	assert.Equal(t, "a/b.jpg/format=png,width=10", id.Path())
}

func TestFormat_MIMETable(t *testing.T) {
	assert.Equal(t, "image/jpeg", FormatJPEG.MIMEType())
	assert.Equal(t, "image/webp", FormatWebP.MIMEType())
	assert.Equal(t, "image/avif", FormatAVIF.MIMEType())
	assert.Equal(t, "image/png", FormatPNG.MIMEType())
	assert.Equal(t, "image/gif", FormatGIF.MIMEType())
	assert.Equal(t, "image/svg+xml", FormatSVG.MIMEType())
	assert.Equal(t, "image/jpeg", Format("bmp").MIMEType())
	assert.Equal(t, "image/jpeg", FormatAuto.MIMEType())

	assert.True(t, FormatJPEG.Lossy())
	assert.True(t, FormatWebP.Lossy())
	assert.True(t, FormatAVIF.Lossy())
	assert.False(t, FormatPNG.Lossy())
	assert.False(t, FormatGIF.Lossy())
}

func TestFormatFromMIME(t *testing.T) {
	f, ok := FormatFromMIME("image/png; charset=binary")
	assert.True(t, ok)
	assert.Equal(t, FormatPNG, f)

	f, ok = FormatFromMIME("IMAGE/JPG")
	assert.True(t, ok)
	assert.Equal(t, FormatJPEG, f)

	_, ok = FormatFromMIME("application/octet-stream")
	assert.False(t, ok)
}
