package convert

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/sethwebster/presentations-sub001/pkg/artifacts"
	"github.com/sethwebster/presentations-sub001/pkg/deck"
	"github.com/sethwebster/presentations-sub001/pkg/sniff"
)

// ErrNilDocument is returned by ToPortable when there is no document.
var ErrNilDocument = errors.New("convert: nil document")

// ToPortable returns the portable form of doc. doc is not modified.
//
// Every embedded value is uploaded to store at most once per call, however
// many fields hold it. Existing references are kept and registered but never
// uploaded. External and plain values pass through untouched.
func (c *Converter) ToPortable(ctx context.Context, doc *deck.WorkingDocument, store artifacts.Store) (*deck.PortableDocument, *Report, error) {
	if doc == nil {
		return nil, nil, ErrNilDocument
	}
	ctx, span := c.tracer.Start(ctx, "deckpack.convert.ToPortable",
		trace.WithAttributes(attribute.Int("deckpack.slides", len(doc.Slides))),
	)
	defer span.End()

	out := doc.Clone()
	r := &resolver{
		c:        c,
		store:    store,
		cache:    make(map[string]outcome),
		minted:   make(map[string]deck.Reference),
		registry: make(map[deck.Reference]deck.Reference),
	}

	if err := r.walk(ctx, out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	r.report.sortWarnings()
	span.SetAttributes(
		attribute.Int("deckpack.assets.stored", r.report.Stored),
		attribute.Int("deckpack.assets.deduplicated", r.report.Deduplicated),
		attribute.Int("deckpack.assets.warnings", len(r.report.Warnings)),
	)

	slides := out.Slides
	if slides == nil {
		slides = []deck.Slide{}
	}
	return &deck.PortableDocument{
		Schema:     deck.Schema{Version: deck.SchemaVersion, MigratedAt: c.now().UTC()},
		Meta:       out.Meta,
		Slides:     slides,
		Theme:      out.Theme,
		Settings:   out.Settings,
		Provenance: out.Provenance,
		Assets:     r.registry,
	}, &r.report, nil
}

// outcome is the result of resolving one embedded value.
type outcome struct {
	ref deck.Reference
	err error // non-nil when the value is left in place
	// uploaded is set on the outcome of the Put that first stored the bytes.
	uploaded bool
}

type resolver struct {
	c     *Converter
	store artifacts.Store

	values singleflight.Group // keyed by embedded value
	blobs  singleflight.Group // keyed by content hash

	mu       sync.Mutex
	cache    map[string]outcome        // embedded value -> outcome
	minted   map[string]deck.Reference // content hash -> reference
	registry map[deck.Reference]deck.Reference
	report   Report
}

func (r *resolver) walk(ctx context.Context, doc *deck.WorkingDocument) error {
	var err error
	if doc.Meta.CoverImage, err = r.resolve(ctx, "meta.coverImage", doc.Meta.CoverImage); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.c.concurrency)

	for i := range doc.Slides {
		g.Go(func() error {
			return r.slide(gctx, "slides["+strconv.Itoa(i)+"]", &doc.Slides[i])
		})
	}

	if s := doc.Settings; s != nil {
		if err := r.background(ctx, "settings.defaultBackground", s.DefaultBackground); err != nil {
			_ = g.Wait()
			return err
		}
		if s.Branding != nil && s.Branding.Logo != nil {
			logo := s.Branding.Logo
			if logo.Src, err = r.resolve(ctx, "settings.branding.logo.src", logo.Src); err != nil {
				_ = g.Wait()
				return err
			}
		}

		themes := make([]string, 0, len(s.Masters))
		for theme := range s.Masters {
			themes = append(themes, theme)
		}
		slices.Sort(themes)
		for _, theme := range themes {
			masters := s.Masters[theme]
			for i := range masters {
				path := fmt.Sprintf("settings.masters[%q][%d]", theme, i)
				g.Go(func() error {
					return r.master(gctx, path, &masters[i])
				})
			}
		}
	}

	return g.Wait()
}

func (r *resolver) slide(ctx context.Context, path string, s *deck.Slide) error {
	if err := r.background(ctx, path+".background", s.Background); err != nil {
		return err
	}
	var err error
	if s.Thumbnail, err = r.resolve(ctx, path+".thumbnail", s.Thumbnail); err != nil {
		return err
	}
	if err := r.elements(ctx, path+".elements", s.Elements); err != nil {
		return err
	}
	for i := range s.Layers {
		lpath := path + ".layers[" + strconv.Itoa(i) + "].elements"
		if err := r.elements(ctx, lpath, s.Layers[i].Elements); err != nil {
			return err
		}
	}
	return nil
}

func (r *resolver) master(ctx context.Context, path string, m *deck.MasterSlide) error {
	if err := r.background(ctx, path+".background", m.Background); err != nil {
		return err
	}
	return r.elements(ctx, path+".elements", m.Elements)
}

func (r *resolver) elements(ctx context.Context, path string, elements []deck.Element) error {
	for i := range elements {
		if err := r.element(ctx, path+"["+strconv.Itoa(i)+"]", &elements[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *resolver) element(ctx context.Context, path string, e *deck.Element) error {
	var err error
	switch {
	case e.Type.IsMedia():
		e.Src, err = r.resolve(ctx, path+".src", e.Src)
	case e.Type == deck.ElementGroup:
		err = r.elements(ctx, path+".children", e.Children)
	case e.Type == deck.ElementCustom:
		err = r.props(ctx, path+".props", e)
	}
	return err
}

// props resolves the asset-bearing props of a custom element: the keys its
// component schema names, or every string prop when there is no schema.
func (r *resolver) props(ctx context.Context, path string, e *deck.Element) error {
	if len(e.Props) == 0 {
		return nil
	}
	keys, ok := r.c.schemas[e.Component]
	if !ok {
		keys = make([]string, 0, len(e.Props))
		for k := range e.Props {
			keys = append(keys, k)
		}
		slices.Sort(keys)
	}
	for _, k := range keys {
		value, ok := e.Props[k].(string)
		if !ok {
			continue
		}
		resolved, err := r.resolve(ctx, path+"."+k, value)
		if err != nil {
			return err
		}
		if resolved != value {
			e.Props[k] = resolved
		}
	}
	return nil
}

// background resolves literal backgrounds and the value of image and video
// object backgrounds. Color and gradient objects are never touched.
func (r *resolver) background(ctx context.Context, path string, b *deck.Background) error {
	if b == nil {
		return nil
	}
	src, ok := b.Source()
	if !ok {
		return nil
	}
	if !b.IsLiteral() {
		path += ".value"
	}
	resolved, err := r.resolve(ctx, path, src)
	if err != nil {
		return err
	}
	if resolved != src {
		b.SetSource(resolved)
	}
	return nil
}

// resolve returns the portable form of value. The returned error is
// non-nil only when ctx is done.
func (r *resolver) resolve(ctx context.Context, path, value string) (string, error) {
	if value == "" {
		return value, nil
	}
	if err := ctx.Err(); err != nil {
		return value, err
	}
	if deck.IsReference(value) {
		r.register(deck.Reference(value))
		return value, nil
	}
	if sniff.Classify(value) != sniff.Embedded {
		return value, nil
	}

	r.mu.Lock()
	out, hit := r.cache[value]
	r.mu.Unlock()

	fresh := false
	if !hit {
		leader := false
		v, err, _ := r.values.Do(value, func() (any, error) {
			leader = true
			return r.mint(ctx, value)
		})
		if err != nil {
			return value, err
		}
		out = v.(outcome)
		fresh = leader && out.uploaded
	}

	if out.err != nil {
		r.warn(ctx, path, out.err)
		return value, nil
	}
	if !fresh {
		r.mu.Lock()
		r.report.Deduplicated++
		r.mu.Unlock()
		r.c.deduplicated.Add(ctx, 1)
	}
	return string(out.ref), nil
}

// mint decodes one embedded value and uploads its bytes unless the same
// bytes were already stored in this call under another encoding. Decode and
// store failures are cached as warning outcomes. A done ctx is returned as
// an error and not cached.
func (r *resolver) mint(ctx context.Context, value string) (outcome, error) {
	r.mu.Lock()
	if out, ok := r.cache[value]; ok {
		r.mu.Unlock()
		out.uploaded = false
		return out, nil
	}
	r.mu.Unlock()

	var out outcome
	data, err := sniff.ExtractBytes(value)
	if err != nil {
		out = outcome{err: err}
	} else {
		hash := artifacts.HashBytes(data)
		leader := false
		v, err, _ := r.blobs.Do(hash, func() (any, error) {
			leader = true
			return r.upload(ctx, hash, value, data)
		})
		if err != nil {
			return outcome{}, err
		}
		out = v.(outcome)
		out.uploaded = out.uploaded && leader
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[value] = out
	return out, nil
}

func (r *resolver) upload(ctx context.Context, hash, value string, data []byte) (outcome, error) {
	r.mu.Lock()
	ref, ok := r.minted[hash]
	r.mu.Unlock()
	if ok {
		return outcome{ref: ref}, nil
	}

	mimeType := sniff.DetectMIMEType(data)
	if mimeType == sniff.OctetStream {
		if declared := sniff.DeclaredMediaType(value); declared != "" {
			mimeType = declared
		}
	}
	info := &artifacts.AssetInfo{MimeType: mimeType}
	if sniff.IsImage(mimeType) {
		if dims, ok := sniff.ProbeImageDimensions(data, mimeType); ok {
			info.Image = &artifacts.ImageInfo{Width: dims.Width, Height: dims.Height}
		}
	}

	stored, err := r.store.Put(ctx, data, info)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return outcome{}, ctxErr
		}
		return outcome{err: fmt.Errorf("store put: %w", err)}, nil
	}
	if stored != hash {
		return outcome{err: fmt.Errorf("store returned %s for content hashing to %s", stored, hash)}, nil
	}
	ref, err = deck.NewReference(stored)
	if err != nil {
		return outcome{err: err}, nil
	}

	r.mu.Lock()
	r.minted[hash] = ref
	r.registry[ref] = ref
	r.report.Stored++
	r.mu.Unlock()
	r.c.stored.Add(ctx, 1)
	return outcome{ref: ref, uploaded: true}, nil
}

func (r *resolver) register(ref deck.Reference) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registry[ref] = ref
}

func (r *resolver) warn(ctx context.Context, path string, err error) {
	r.mu.Lock()
	r.report.Warnings = append(r.report.Warnings, Warning{Path: path, Err: err})
	r.mu.Unlock()

	r.c.warned.Add(ctx, 1)
	r.c.logger.WarnContext(ctx, "embedded asset left in place", "path", path, "error", err)
}
