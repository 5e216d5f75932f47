// Package convert turns working documents into portable documents and back.
//
// ToPortable walks every field that can hold binary data, uploads embedded
// payloads to an artifacts.Store and replaces them with content references.
// A field that cannot be converted is left exactly as supplied and reported
// as a Warning; only context cancellation fails the call. ToWorking is a
// structural copy that never touches asset bytes.
package convert

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/sethwebster/presentations-sub001/pkg/artifacts"
	"github.com/sethwebster/presentations-sub001/pkg/deck"
)

const instrumentationName = "github.com/sethwebster/presentations-sub001/pkg/convert"

// DefaultConcurrency bounds how many slides and master slides are walked at once.
const DefaultConcurrency = 4

// PropSchemas maps a custom component name to the prop keys that may hold
// asset data. Components without an entry have every top-level string prop
// inspected.
type PropSchemas map[string][]string

// Converter converts between working and portable documents. It holds no
// per-call state and is safe for concurrent use.
type Converter struct {
	logger      *slog.Logger
	concurrency int
	schemas     PropSchemas
	now         func() time.Time

	tracer       trace.Tracer
	stored       metric.Int64Counter
	deduplicated metric.Int64Counter
	warned       metric.Int64Counter
}

// Option configures a Converter.
type Option func(*Converter)

// WithLogger sets the logger used for warnings. Nil means slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Converter) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithConcurrency bounds the slide fan-out. Values below 1 mean 1.
func WithConcurrency(n int) Option {
	return func(c *Converter) {
		c.concurrency = max(n, 1)
	}
}

// WithPropSchemas declares the asset-bearing props of custom components.
func WithPropSchemas(schemas PropSchemas) Option {
	return func(c *Converter) { c.schemas = schemas }
}

// WithClock overrides the time source used for the schema stamp.
func WithClock(now func() time.Time) Option {
	return func(c *Converter) { c.now = now }
}

// New returns a Converter.
func New(opts ...Option) *Converter {
	c := &Converter{
		logger:      slog.Default().With("component", "convert"),
		concurrency: DefaultConcurrency,
		now:         time.Now,
		tracer:      otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(c)
	}

	meter := otel.Meter(instrumentationName)
	c.stored = counter(meter, "deckpack.assets.stored", "Distinct embedded assets uploaded during conversion")
	c.deduplicated = counter(meter, "deckpack.assets.deduplicated", "Embedded assets resolved from the per-call cache")
	c.warned = counter(meter, "deckpack.assets.warnings", "Fields left unconverted")
	return c
}

func counter(meter metric.Meter, name, description string) metric.Int64Counter {
	ctr, err := meter.Int64Counter(name,
		metric.WithDescription(description),
		metric.WithUnit("{asset}"),
	)
	if err != nil {
		return noop.Int64Counter{}
	}
	return ctr
}

var defaultConverter = New()

// ToPortable converts doc with a default Converter.
func ToPortable(ctx context.Context, doc *deck.WorkingDocument, store artifacts.Store) (*deck.PortableDocument, *Report, error) {
	return defaultConverter.ToPortable(ctx, doc, store)
}

// ToWorking converts doc with a default Converter.
func ToWorking(doc *deck.PortableDocument) *deck.WorkingDocument {
	return defaultConverter.ToWorking(doc)
}
