package pack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/klauspost/compress/zip"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/unicode/norm"

	"github.com/sethwebster/presentations-sub001/pkg/deck"
	"github.com/sethwebster/presentations-sub001/pkg/sniff"
)

var (
	emptyArray  = json.RawMessage(`[]`)
	emptyObject = json.RawMessage(`{}`)
)

// metaManifest is the layout of meta.json.
type metaManifest struct {
	Schema   deck.Schema                       `json:"schema"`
	Meta     deck.Meta                         `json:"meta"`
	Theme    json.RawMessage                   `json:"theme,omitempty"`
	Settings *deck.Settings                    `json:"settings,omitempty"`
	Assets   map[deck.Reference]deck.Reference `json:"assets"`
}

// animationEntry is one row of animations.json.
type animationEntry struct {
	SlideID     string          `json:"slideId"`
	Transitions json.RawMessage `json:"transitions"`
	Builds      json.RawMessage `json:"builds"`
}

type entry struct {
	name   string
	data   []byte
	method uint16
}

// Serialize writes doc and files into a package archive. files maps archive
// paths to asset bytes and may be nil.
func Serialize(ctx context.Context, doc *deck.PortableDocument, files map[string][]byte) ([]byte, error) {
	return New().Serialize(ctx, doc, files)
}

// Serialize writes doc and files into a package archive.
func (c *Codec) Serialize(ctx context.Context, doc *deck.PortableDocument, files map[string][]byte) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "deckpack.pack.Serialize")
	defer span.End()

	if doc == nil {
		return nil, fmt.Errorf("pack: nil document")
	}
	assets, err := normalizeAssetPaths(files)
	if err != nil {
		return nil, err
	}

	entries, err := c.manifests(doc)
	if err != nil {
		return nil, err
	}
	for _, name := range sortedKeys(assets) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data := assets[name]
		if int64(len(data)) > c.maxEntrySize {
			return nil, fmt.Errorf("%w: %s (%d bytes)", ErrEntryTooLarge, name, len(data))
		}
		method := zip.Deflate
		if sniff.IsCompressed(sniff.DetectMIMEType(data)) {
			method = zip.Store
		}
		entries = append(entries, entry{name: name, data: data, method: method})
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, c.compressor)
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     e.name,
			Method:   e.method,
			Modified: entryTime,
		})
		if err != nil {
			return nil, fmt.Errorf("pack: create %s: %w", e.name, err)
		}
		if _, err := w.Write(e.data); err != nil {
			return nil, fmt.Errorf("pack: write %s: %w", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("pack: finish archive: %w", err)
	}

	span.SetAttributes(
		attribute.Int("deckpack.pack.slides", len(doc.Slides)),
		attribute.Int("deckpack.pack.assets", len(assets)),
		attribute.Int("deckpack.pack.bytes", buf.Len()),
	)
	return buf.Bytes(), nil
}

// manifests renders the five JSON manifests in their fixed order.
func (c *Codec) manifests(doc *deck.PortableDocument) ([]entry, error) {
	slides := make([]deck.Slide, len(doc.Slides))
	notes := make(map[string]json.RawMessage)
	animations := make([]animationEntry, 0, len(doc.Slides))
	for i, s := range doc.Slides {
		s = normalizeSlide(s)
		if hasValue(s.Notes) {
			notes[s.ID] = s.Notes
		}
		s.Notes = nil
		slides[i] = s
		animations = append(animations, animationEntry{
			SlideID:     s.ID,
			Transitions: s.Transitions,
			Builds:      s.Builds,
		})
	}

	assets := doc.Assets
	if assets == nil {
		assets = map[deck.Reference]deck.Reference{}
	}
	provenance := doc.Provenance
	if provenance == nil {
		provenance = []deck.ProvenanceEntry{}
	}

	parts := []struct {
		name string
		v    any
	}{
		{MetaFile, metaManifest{
			Schema:   doc.Schema,
			Meta:     doc.Meta,
			Theme:    doc.Theme,
			Settings: doc.Settings,
			Assets:   assets,
		}},
		{SlidesFile, slides},
		{NotesFile, notes},
		{ProvenanceFile, provenance},
		{AnimationsFile, animations},
	}

	entries := make([]entry, 0, len(parts))
	for _, p := range parts {
		data, err := c.encode(p.v)
		if err != nil {
			return nil, fmt.Errorf("pack: encode %s: %w", p.name, err)
		}
		entries = append(entries, entry{name: p.name, data: data, method: zip.Deflate})
	}
	return entries, nil
}

func (c *Codec) encode(v any) ([]byte, error) {
	if c.pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

// normalizeSlide fills the keys a reader should never have to guess.
func normalizeSlide(s deck.Slide) deck.Slide {
	if s.Elements == nil {
		s.Elements = []deck.Element{}
	}
	if !hasValue(s.Builds) {
		s.Builds = emptyArray
	}
	if !hasValue(s.Transitions) {
		s.Transitions = emptyObject
	}
	if !hasValue(s.Timeline) {
		s.Timeline = emptyObject
	}
	return s
}

func hasValue(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// normalizeAssetPaths returns files keyed by NFC-normalized, validated paths.
func normalizeAssetPaths(files map[string][]byte) (map[string][]byte, error) {
	out := make(map[string][]byte, len(files))
	for name, data := range files {
		clean, err := validatePath(name)
		if err != nil {
			return nil, err
		}
		if slices.Contains(manifestNames, clean) {
			return nil, fmt.Errorf("%w: %q collides with a manifest", ErrInvalidPath, name)
		}
		if _, dup := out[clean]; dup {
			return nil, fmt.Errorf("%w: %q collides with another path after normalization", ErrInvalidPath, name)
		}
		out[clean] = data
	}
	return out, nil
}

// validatePath normalizes name to NFC and rejects anything that is not a
// clean relative slash-separated path inside the archive.
func validatePath(name string) (string, error) {
	clean := norm.NFC.String(name)
	switch {
	case clean == "",
		strings.HasPrefix(clean, "/"),
		strings.HasSuffix(clean, "/"),
		strings.ContainsAny(clean, "\\\x00"),
		path.Clean(clean) != clean:
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	for _, seg := range strings.Split(clean, "/") {
		if seg == ".." || seg == "." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
		}
	}
	return clean, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
