package sniff

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/url"
	"strings"
)

// DataURI is a parsed RFC 2397 data URI.
type DataURI struct {
	// MediaType is the declared type, lowercased, without parameters.
	// It is empty when the URI declares none.
	MediaType string
	Params    map[string]string
	Base64    bool
	Data      []byte
}

// ParseDataURI parses a data: URI of the form
// data:[<mediatype>][;param=value]*[;base64],<data>.
func ParseDataURI(s string) (*DataURI, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, fmt.Errorf("%w: missing data: scheme", ErrDecode)
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("%w: data URI has no comma", ErrDecode)
	}

	uri := &DataURI{}
	parts := strings.Split(header, ";")
	if n := len(parts); n > 0 && strings.EqualFold(strings.TrimSpace(parts[n-1]), "base64") {
		uri.Base64 = true
		parts = parts[:n-1]
	}

	if len(parts) > 0 && strings.TrimSpace(parts[0]) != "" {
		mediaType, params, err := mime.ParseMediaType(strings.Join(parts, ";"))
		if err != nil {
			return nil, fmt.Errorf("%w: media type: %v", ErrDecode, err)
		}
		uri.MediaType = mediaType
		uri.Params = params
	} else if len(parts) > 1 {
		// Parameters without a type, e.g. "data:;charset=utf-8,...".
		_, params, err := mime.ParseMediaType("text/plain;" + strings.Join(parts[1:], ";"))
		if err != nil {
			return nil, fmt.Errorf("%w: parameters: %v", ErrDecode, err)
		}
		uri.Params = params
	}

	if uri.Base64 {
		data, err := decodeBase64(payload)
		if err != nil {
			return nil, err
		}
		uri.Data = data
		return uri, nil
	}

	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: percent-encoding: %v", ErrDecode, err)
	}
	uri.Data = []byte(decoded)
	return uri, nil
}

// ExtractBytes decodes an Embedded value. data: URIs and bare base64 are
// supported; blob: URLs only resolve inside a browser and are reported as
// ErrUnsupportedFormat, as is anything else.
func ExtractBytes(s string) ([]byte, error) {
	switch {
	case strings.HasPrefix(s, "data:"):
		uri, err := ParseDataURI(s)
		if err != nil {
			return nil, err
		}
		return uri.Data, nil
	case strings.HasPrefix(s, "blob:"):
		return nil, fmt.Errorf("%w: blob URLs cannot be dereferenced outside a browser", ErrUnsupportedFormat)
	case Classify(s) == Embedded:
		return decodeBase64(s)
	default:
		return nil, fmt.Errorf("%w: value is not an inline payload", ErrUnsupportedFormat)
	}
}

// DeclaredMediaType returns the media type declared by a data URI, or "".
func DeclaredMediaType(s string) string {
	if !strings.HasPrefix(s, "data:") {
		return ""
	}
	header, _, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok {
		return ""
	}
	mediaType, _, _ := strings.Cut(header, ";")
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func decodeBase64(s string) ([]byte, error) {
	// Editors wrap long payloads; whitespace is not part of the alphabet.
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrDecode, err)
	}
	return data, nil
}
