package pack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sethwebster/presentations-sub001/pkg/deck"
)

// Deserialize reads a package archive.
func Deserialize(ctx context.Context, data []byte) (*Package, error) {
	return New().Deserialize(ctx, data)
}

// Deserialize reads a package archive. Only meta.json and slides.json are
// required; notes.json and provenance.json are read when present and
// animations.json is ignored because slides.json is authoritative.
func (c *Codec) Deserialize(ctx context.Context, data []byte) (*Package, error) {
	ctx, span := c.tracer.Start(ctx, "deckpack.pack.Deserialize")
	defer span.End()

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPackage, err)
	}
	zr.RegisterDecompressor(zip.Deflate, decompressor)

	files := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		name, err := validatePath(f.Name)
		if err != nil {
			return nil, err
		}
		if _, dup := files[name]; dup {
			return nil, fmt.Errorf("%w: duplicate entry %q", ErrInvalidPackage, name)
		}
		body, err := c.readEntry(f)
		if err != nil {
			return nil, err
		}
		files[name] = body
	}

	doc, err := assemble(files)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("deckpack.pack.slides", len(doc.Slides)),
		attribute.Int("deckpack.pack.files", len(files)),
	)
	return &Package{Document: doc, Files: files}, nil
}

// readEntry decompresses f, refusing to inflate past the entry cap even
// when the declared size lies.
func (c *Codec) readEntry(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > uint64(c.maxEntrySize) {
		return nil, fmt.Errorf("%w: %s (%d bytes)", ErrEntryTooLarge, f.Name, f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrInvalidPackage, f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	body, err := io.ReadAll(io.LimitReader(rc, c.maxEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidPackage, f.Name, err)
	}
	if int64(len(body)) > c.maxEntrySize {
		return nil, fmt.Errorf("%w: %s", ErrEntryTooLarge, f.Name)
	}
	return body, nil
}

// assemble rebuilds the portable document from its manifests.
func assemble(files map[string][]byte) (*deck.PortableDocument, error) {
	rawMeta, ok := files[MetaFile]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidPackage, MetaFile)
	}
	rawSlides, ok := files[SlidesFile]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidPackage, SlidesFile)
	}

	if err := validateManifest(MetaFile, rawMeta); err != nil {
		return nil, err
	}
	meta, err := decodeMeta(rawMeta)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(meta.Schema.Version); err != nil {
		return nil, err
	}

	if err := validateManifest(SlidesFile, rawSlides); err != nil {
		return nil, err
	}
	var slides []deck.Slide
	if err := json.Unmarshal(rawSlides, &slides); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPackage, SlidesFile, err)
	}

	notes := map[string]json.RawMessage{}
	if err := decodeOptional(files, NotesFile, &notes); err != nil {
		return nil, err
	}
	provenance := []deck.ProvenanceEntry{}
	if err := decodeOptional(files, ProvenanceFile, &provenance); err != nil {
		return nil, err
	}

	if slides == nil {
		slides = []deck.Slide{}
	}
	for i := range slides {
		if n, ok := notes[slides[i].ID]; ok && hasValue(n) {
			slides[i].Notes = n
		}
	}
	if meta.Assets == nil {
		meta.Assets = map[deck.Reference]deck.Reference{}
	}

	return &deck.PortableDocument{
		Schema:     meta.Schema,
		Meta:       meta.Meta,
		Slides:     slides,
		Theme:      meta.Theme,
		Settings:   meta.Settings,
		Provenance: provenance,
		Assets:     meta.Assets,
	}, nil
}

// decodeMeta reads meta.json. Archives assembled by hand may carry the bare
// deck metadata object instead of the manifest; that form gets the current
// schema version and an empty registry.
func decodeMeta(raw []byte) (metaManifest, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return metaManifest{}, fmt.Errorf("%w: %s: %v", ErrInvalidPackage, MetaFile, err)
	}

	var meta metaManifest
	if _, wrapped := members["meta"]; wrapped {
		if err := json.Unmarshal(raw, &meta); err != nil {
			return metaManifest{}, fmt.Errorf("%w: %s: %v", ErrInvalidPackage, MetaFile, err)
		}
		return meta, nil
	}
	if err := json.Unmarshal(raw, &meta.Meta); err != nil {
		return metaManifest{}, fmt.Errorf("%w: %s: %v", ErrInvalidPackage, MetaFile, err)
	}
	meta.Schema = deck.Schema{Version: deck.SchemaVersion}
	meta.Assets = map[deck.Reference]deck.Reference{}
	return meta, nil
}

func decodeOptional(files map[string][]byte, name string, v any) error {
	raw, ok := files[name]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		var syntax *json.SyntaxError
		if errors.As(err, &syntax) {
			return fmt.Errorf("%w: %s: offset %d: %v", ErrInvalidPackage, name, syntax.Offset, err)
		}
		return fmt.Errorf("%w: %s: %v", ErrInvalidPackage, name, err)
	}
	return nil
}
