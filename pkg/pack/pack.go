// Package pack reads and writes the deck package: a zip archive holding a
// portable document split across fixed JSON manifests, plus asset files.
//
// Layout:
//
//	meta.json        schema stamp, deck metadata, theme, settings, asset registry (required)
//	slides.json      ordered slides without notes (required)
//	notes.json       slide id -> notes (optional)
//	provenance.json  provenance log (optional)
//	animations.json  per-slide transitions and builds, derived from slides.json
//	assets/...       asset bytes, conventionally assets/<hex><ext>
//
// Serialize output is deterministic: identical inputs give identical bytes.
package pack

import (
	"errors"
	"io"
	"time"

	"github.com/klauspost/compress/flate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/sethwebster/presentations-sub001/pkg/deck"
)

// Fixed manifest names.
const (
	MetaFile       = "meta.json"
	SlidesFile     = "slides.json"
	NotesFile      = "notes.json"
	ProvenanceFile = "provenance.json"
	AnimationsFile = "animations.json"

	// AssetDir is the conventional prefix for asset files.
	AssetDir = "assets/"
)

// DefaultMaxEntrySize caps the uncompressed size of any single entry.
const DefaultMaxEntrySize int64 = 512 << 20

var manifestNames = []string{MetaFile, SlidesFile, NotesFile, ProvenanceFile, AnimationsFile}

var (
	// ErrInvalidPackage is returned when a package lacks meta.json or
	// slides.json, or a manifest it carries is malformed.
	ErrInvalidPackage = errors.New("pack: invalid package")
	// ErrUnsupportedVersion is returned for schema versions other than 1.x.
	ErrUnsupportedVersion = errors.New("pack: unsupported schema version")
	// ErrInvalidPath is returned for asset paths that are absolute, escape
	// the archive root or collide with a manifest.
	ErrInvalidPath = errors.New("pack: invalid archive path")
	// ErrEntryTooLarge is returned when an entry exceeds the size cap.
	ErrEntryTooLarge = errors.New("pack: archive entry too large")
	// ErrAssetMismatch is returned when an asset file's bytes do not hash
	// to the name it is stored under.
	ErrAssetMismatch = errors.New("pack: asset content does not match its name")
)

// entryTime is stamped on every entry so output does not depend on the clock.
var entryTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Package is a deserialized archive.
type Package struct {
	Document *deck.PortableDocument
	// Files holds every file entry of the archive, manifests included,
	// keyed by its path.
	Files map[string][]byte
}

// Codec serializes and deserializes packages.
type Codec struct {
	pretty       bool
	maxEntrySize int64
	level        int
	tracer       trace.Tracer
}

// Option configures a Codec.
type Option func(*Codec)

// WithPretty controls manifest indentation. The default is indented.
func WithPretty(pretty bool) Option {
	return func(c *Codec) { c.pretty = pretty }
}

// WithMaxEntrySize overrides DefaultMaxEntrySize.
func WithMaxEntrySize(n int64) Option {
	return func(c *Codec) {
		if n > 0 {
			c.maxEntrySize = n
		}
	}
}

// WithCompressionLevel sets the Deflate level for manifests and
// compressible assets.
func WithCompressionLevel(level int) Option {
	return func(c *Codec) { c.level = level }
}

// New returns a Codec.
func New(opts ...Option) *Codec {
	c := &Codec{
		pretty:       true,
		maxEntrySize: DefaultMaxEntrySize,
		level:        flate.BestCompression,
		tracer:       otel.Tracer("github.com/sethwebster/presentations-sub001/pkg/pack"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Codec) compressor(out io.Writer) (io.WriteCloser, error) {
	return flate.NewWriter(out, c.level)
}

func decompressor(r io.Reader) io.ReadCloser {
	return flate.NewReader(r)
}
