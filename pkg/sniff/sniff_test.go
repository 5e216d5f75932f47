package sniff

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const redPixelPNG = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8DwHwAFBQIAX8jx0gAAAABJRU5ErkJggg=="

func TestClassify(t *testing.T) {
	long := strings.Repeat("QUJD", 21) // 84 chars of base64

	cases := []struct {
		name  string
		value string
		want  Kind
	}{
		{"empty", "", Plain},
		{"http", "http://example.com/a.png", External},
		{"https", "https://example.com/cover.jpg", External},
		{"absolute path", "/static/logo.svg", External},
		{"relative path", "./img/a.png", External},
		{"parent path", "../img/a.png", External},
		{"reference", "asset://sha256:" + strings.Repeat("ab", 32), External},
		{"malformed reference", "asset://sha256:nothex", External},
		{"data uri", redPixelPNG, Embedded},
		{"blob url", "blob:https://editor.local/8d1e-44", Embedded},
		{"raw base64", long, Embedded},
		{"raw base64 with padding", long + "QQ==", Embedded},
		{"base64 at threshold", long[:MinRawBase64Length], Plain},
		{"base64 just over threshold", long[:MinRawBase64Length+1], Embedded},
		{"too much padding", long + "===", Plain},
		{"contains scheme", strings.Repeat("a", 90) + "://x", Plain},
		{"ordinary text", "Quarterly results", Plain},
		{"color", "#ff0000", Plain},
		{"long prose", strings.Repeat("word ", 30), Plain},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.value))
		})
	}
}

func TestExtractBytes(t *testing.T) {
	t.Run("png data uri", func(t *testing.T) {
		data, err := ExtractBytes(redPixelPNG)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, sigPNG))
	})

	t.Run("percent encoded data uri", func(t *testing.T) {
		data, err := ExtractBytes("data:text/plain;charset=utf-8,hello%20world")
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(data))
	})

	t.Run("raw base64", func(t *testing.T) {
		payload := bytes.Repeat([]byte{1, 2, 3}, 30)
		data, err := ExtractBytes(base64.StdEncoding.EncodeToString(payload))
		require.NoError(t, err)
		assert.Equal(t, payload, data)
	})

	t.Run("missing comma", func(t *testing.T) {
		_, err := ExtractBytes("data:image/png;base64")
		require.ErrorIs(t, err, ErrDecode)
	})

	t.Run("bad padding", func(t *testing.T) {
		_, err := ExtractBytes("data:image/png;base64,iVBORw0KGgo=A")
		require.ErrorIs(t, err, ErrDecode)
	})

	t.Run("blob url", func(t *testing.T) {
		_, err := ExtractBytes("blob:https://editor.local/123")
		require.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("external value", func(t *testing.T) {
		_, err := ExtractBytes("https://example.com/a.png")
		require.ErrorIs(t, err, ErrUnsupportedFormat)
	})
}

func TestParseDataURI(t *testing.T) {
	uri, err := ParseDataURI("data:image/SVG+xml;charset=utf-8;base64,PHN2Zy8+")
	require.NoError(t, err)
	assert.Equal(t, "image/svg+xml", uri.MediaType)
	assert.Equal(t, "utf-8", uri.Params["charset"])
	assert.True(t, uri.Base64)
	assert.Equal(t, "<svg/>", string(uri.Data))

	uri, err = ParseDataURI("data:,plain")
	require.NoError(t, err)
	assert.Empty(t, uri.MediaType)
	assert.Equal(t, "plain", string(uri.Data))

	assert.Equal(t, "image/png", DeclaredMediaType(redPixelPNG))
	assert.Empty(t, DeclaredMediaType("https://example.com"))
}

func TestDetectMIMEType(t *testing.T) {
	png, err := ExtractBytes(redPixelPNG)
	require.NoError(t, err)

	ftyp := func(major string, compat ...string) []byte {
		box := []byte{0, 0, 0, byte(16 + 4*len(compat))}
		box = append(box, "ftyp"+major+"\x00\x00\x00\x00"...)
		for _, c := range compat {
			box = append(box, c...)
		}
		return box
	}

	cases := []struct {
		name string
		data []byte
		want string
	}{
		{"png", png, "image/png"},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0}, "image/jpeg"},
		{"gif", []byte("GIF89a\x01\x00\x01\x00"), "image/gif"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "image/webp"},
		{"riff without webp", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), OctetStream},
		{"avif major brand", ftyp("avif", "mif1"), "image/avif"},
		{"avif compatible brand", ftyp("mif1", "avif"), "image/avif"},
		{"mp4", ftyp("isom", "mp41"), "video/mp4"},
		{"webm", []byte{0x1A, 0x45, 0xDF, 0xA3, 0x9F}, "video/webm"},
		{"woff2", []byte("wOF2\x00\x01"), "font/woff2"},
		{"woff", []byte("wOFF\x00\x01"), "font/woff"},
		{"ttf", []byte{0, 1, 0, 0, 0, 0x10}, "font/ttf"},
		{"otf", []byte("OTTO\x00\x0A"), "font/otf"},
		{"text", []byte("hello"), OctetStream},
		{"empty", nil, OctetStream},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectMIMEType(tc.data))
		})
	}
}

func TestProbeImageDimensions(t *testing.T) {
	png, err := ExtractBytes(redPixelPNG)
	require.NoError(t, err)

	dims, ok := ProbeImageDimensions(png, "image/png")
	require.True(t, ok)
	assert.Equal(t, Dimensions{Width: 1, Height: 1}, dims)

	jpeg := []byte{
		0xFF, 0xD8,
		0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0, 1, 1, 0, 0, 1, 0, 1, 0, 0,
		0xFF, 0xC4, 0x00, 0x04, 0x00, 0x00, // DHT is not a frame header
		0xFF, 0xC0, 0x00, 0x11, 0x08, 0x00, 0x20, 0x00, 0x40, 0x03,
	}
	dims, ok = ProbeImageDimensions(jpeg, "image/jpeg")
	require.True(t, ok)
	assert.Equal(t, Dimensions{Width: 64, Height: 32}, dims)

	gif := []byte("GIF89a\x40\x01\xF0\x00")
	dims, ok = ProbeImageDimensions(gif, "image/gif")
	require.True(t, ok)
	assert.Equal(t, Dimensions{Width: 320, Height: 240}, dims)

	t.Run("truncated headers", func(t *testing.T) {
		_, ok := ProbeImageDimensions(png[:20], "image/png")
		assert.False(t, ok)
		_, ok = ProbeImageDimensions(jpeg[:len(jpeg)-4], "image/jpeg")
		assert.False(t, ok)
		_, ok = ProbeImageDimensions(gif[:8], "image/gif")
		assert.False(t, ok)
	})

	t.Run("corrupt jpeg marker", func(t *testing.T) {
		_, ok := ProbeImageDimensions([]byte{0xFF, 0xD8, 0x00, 0x11, 0x22, 0x33}, "image/jpeg")
		assert.False(t, ok)
	})

	t.Run("unsupported format", func(t *testing.T) {
		_, ok := ProbeImageDimensions([]byte("RIFF\x00\x00\x00\x00WEBP"), "image/webp")
		assert.False(t, ok)
	})
}

func TestClassifyProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("short alphanumeric identifiers are never payloads", prop.ForAll(
		func(s string) bool {
			if len(s) > MinRawBase64Length {
				s = s[:MinRawBase64Length]
			}
			return Classify(s) != Embedded
		},
		gen.AlphaString(),
	))

	properties.Property("encoded payloads above the threshold round trip", prop.ForAll(
		func(payload []byte) bool {
			encoded := base64.StdEncoding.EncodeToString(payload)
			if len(encoded) <= MinRawBase64Length || strings.HasPrefix(encoded, "/") {
				return true // outside the heuristic's domain
			}
			if Classify(encoded) != Embedded {
				return false
			}
			data, err := ExtractBytes(encoded)
			return err == nil && bytes.Equal(data, payload)
		},
		gen.SliceOfN(96, gen.UInt8()),
	))

	properties.Property("probing arbitrary bytes never panics", prop.ForAll(
		func(data []byte) bool {
			for _, mimeType := range []string{"image/png", "image/jpeg", "image/gif"} {
				ProbeImageDimensions(data, mimeType)
			}
			DetectMIMEType(data)
			return true
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}
