// Package sniff decides whether a document field value is an inline binary
// payload, decodes such payloads, identifies their media type from magic
// bytes and reads raster image dimensions from their headers.
//
// Classification never fails: every string is External, Embedded or Plain.
// Only ExtractBytes reports errors, and callers are expected to treat them
// as "leave the value alone".
package sniff

import (
	"errors"
	"strings"
)

// MinRawBase64Length is the length a bare base64 string must exceed before
// it is treated as an inline payload. Shorter strings are assumed to be
// identifiers or ordinary text. The value is a heuristic, not a contract.
const MinRawBase64Length = 80

var (
	// ErrDecode is returned for malformed data URIs and invalid base64.
	ErrDecode = errors.New("sniff: decode failed")
	// ErrUnsupportedFormat is returned for values that cannot be
	// dereferenced headlessly (blob: URLs) or match no known payload shape.
	ErrUnsupportedFormat = errors.New("sniff: unsupported format")
)

// Kind is the outcome of Classify.
type Kind int

const (
	// Plain values are ordinary strings: neither a payload nor a pointer.
	Plain Kind = iota
	// External values point elsewhere (URLs, paths, content references)
	// and are passed through unchanged.
	External
	// Embedded values carry binary data inline.
	Embedded
)

func (k Kind) String() string {
	switch k {
	case External:
		return "external"
	case Embedded:
		return "embedded"
	default:
		return "plain"
	}
}

// assetScheme covers content references, well-formed or not. They are
// never uploaded.
const assetScheme = "asset://"

var externalPrefixes = []string{"http://", "https://", "/", "./", "../"}

// Classify reports what kind of value s is.
func Classify(s string) Kind {
	if s == "" {
		return Plain
	}
	if strings.HasPrefix(s, assetScheme) {
		return External
	}
	for _, prefix := range externalPrefixes {
		if strings.HasPrefix(s, prefix) {
			return External
		}
	}
	if strings.HasPrefix(s, "data:") || strings.HasPrefix(s, "blob:") {
		return Embedded
	}
	if isRawBase64(s) {
		return Embedded
	}
	return Plain
}

// isRawBase64 matches ^[A-Za-z0-9+/]+={0,2}$ longer than MinRawBase64Length.
// The alphabet excludes ':' so "://" can never appear, and '/' is only
// rejected in the leading position, which Classify already routes to
// External.
func isRawBase64(s string) bool {
	if len(s) <= MinRawBase64Length {
		return false
	}
	body := strings.TrimRight(s, "=")
	if len(s)-len(body) > 2 || body == "" {
		return false
	}
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '+', c == '/':
		default:
			return false
		}
	}
	return true
}
