package deck

import (
	"encoding/json"
	"maps"
	"slices"
	"time"
)

// SchemaVersion is stamped on every PortableDocument produced by this module.
const SchemaVersion = "v1.0"

// Meta is deck-level metadata. Timestamps are kept as the raw JSON the
// editor wrote (ISO strings, dates, epoch millis) and are never reformatted.
type Meta struct {
	ID          string          `json:"id"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	Authors     []string        `json:"authors,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	CreatedAt   json.RawMessage `json:"createdAt,omitempty"`
	UpdatedAt   json.RawMessage `json:"updatedAt,omitempty"`
	CoverImage  string          `json:"coverImage,omitempty"`

	Extra Extra `json:"-"`
}

func (m Meta) MarshalJSON() ([]byte, error) {
	type plain Meta
	return marshalObject(plain(m), m.Extra)
}

func (m *Meta) UnmarshalJSON(data []byte) error {
	type plain Meta
	var p plain
	extra, err := unmarshalObject(data, &p)
	if err != nil {
		return err
	}
	*m = Meta(p)
	m.Extra = extra
	return nil
}

// Clone returns a deep copy of m.
func (m Meta) Clone() Meta {
	c := m
	c.Authors = slices.Clone(m.Authors)
	c.Tags = slices.Clone(m.Tags)
	c.CreatedAt = slices.Clone(m.CreatedAt)
	c.UpdatedAt = slices.Clone(m.UpdatedAt)
	c.Extra = maps.Clone(m.Extra)
	return c
}

// Layer is a named, ordered group of elements on a slide.
type Layer struct {
	ID       string    `json:"id"`
	Name     string    `json:"name,omitempty"`
	Elements []Element `json:"elements"`

	Extra Extra `json:"-"`
}

func (l Layer) MarshalJSON() ([]byte, error) {
	type plain Layer
	p := plain(l)
	if p.Elements == nil {
		p.Elements = []Element{}
	}
	return marshalObject(p, l.Extra)
}

func (l *Layer) UnmarshalJSON(data []byte) error {
	type plain Layer
	var p plain
	extra, err := unmarshalObject(data, &p)
	if err != nil {
		return err
	}
	*l = Layer(p)
	l.Extra = extra
	return nil
}

// Slide is one page of a deck. Content is either the flat Elements list or
// the ordered Layers, each holding its own elements.
//
// Notes, Builds, Transitions and Timeline are opaque to this module.
type Slide struct {
	ID          string          `json:"id"`
	Title       string          `json:"title,omitempty"`
	Background  *Background     `json:"background,omitempty"`
	Thumbnail   string          `json:"thumbnail,omitempty"`
	Elements    []Element       `json:"elements"`
	Layers      []Layer         `json:"layers,omitempty"`
	Notes       json.RawMessage `json:"notes,omitempty"`
	Builds      json.RawMessage `json:"builds,omitempty"`
	Transitions json.RawMessage `json:"transitions,omitempty"`
	Timeline    json.RawMessage `json:"timeline,omitempty"`

	Extra Extra `json:"-"`
}

func (s Slide) MarshalJSON() ([]byte, error) {
	type plain Slide
	p := plain(s)
	if p.Elements == nil {
		p.Elements = []Element{}
	}
	return marshalObject(p, s.Extra)
}

func (s *Slide) UnmarshalJSON(data []byte) error {
	type plain Slide
	var p plain
	extra, err := unmarshalObject(data, &p)
	if err != nil {
		return err
	}
	*s = Slide(p)
	s.Extra = extra
	return nil
}

// Clone returns a deep copy of s.
func (s Slide) Clone() Slide {
	c := s
	c.Background = s.Background.Clone()
	c.Elements = cloneElements(s.Elements)
	if s.Layers != nil {
		c.Layers = make([]Layer, len(s.Layers))
		for i, l := range s.Layers {
			c.Layers[i] = l
			c.Layers[i].Elements = cloneElements(l.Elements)
			c.Layers[i].Extra = maps.Clone(l.Extra)
		}
	}
	c.Extra = maps.Clone(s.Extra)
	return c
}

// MasterSlide is a theme template whose background and elements appear
// beneath every slide using the theme.
type MasterSlide struct {
	ID         string      `json:"id"`
	Name       string      `json:"name,omitempty"`
	Background *Background `json:"background,omitempty"`
	Elements   []Element   `json:"elements,omitempty"`

	Extra Extra `json:"-"`
}

func (m MasterSlide) MarshalJSON() ([]byte, error) {
	type plain MasterSlide
	return marshalObject(plain(m), m.Extra)
}

func (m *MasterSlide) UnmarshalJSON(data []byte) error {
	type plain MasterSlide
	var p plain
	extra, err := unmarshalObject(data, &p)
	if err != nil {
		return err
	}
	*m = MasterSlide(p)
	m.Extra = extra
	return nil
}

// Logo is the branding mark shown on every slide.
type Logo struct {
	Src string `json:"src,omitempty"`

	Extra Extra `json:"-"`
}

func (l Logo) MarshalJSON() ([]byte, error) {
	type plain Logo
	return marshalObject(plain(l), l.Extra)
}

func (l *Logo) UnmarshalJSON(data []byte) error {
	type plain Logo
	var p plain
	extra, err := unmarshalObject(data, &p)
	if err != nil {
		return err
	}
	*l = Logo(p)
	l.Extra = extra
	return nil
}

// Branding groups deck-wide brand settings.
type Branding struct {
	Logo *Logo `json:"logo,omitempty"`

	Extra Extra `json:"-"`
}

func (b Branding) MarshalJSON() ([]byte, error) {
	type plain Branding
	return marshalObject(plain(b), b.Extra)
}

func (b *Branding) UnmarshalJSON(data []byte) error {
	type plain Branding
	var p plain
	extra, err := unmarshalObject(data, &p)
	if err != nil {
		return err
	}
	*b = Branding(p)
	b.Extra = extra
	return nil
}

// Settings holds deck-wide presentation settings.
type Settings struct {
	Navigation        string      `json:"navigation,omitempty"`
	DefaultBackground *Background `json:"defaultBackground,omitempty"`
	Branding          *Branding   `json:"branding,omitempty"`

	// Masters maps a theme id to its master slides.
	Masters map[string][]MasterSlide `json:"masters,omitempty"`

	Extra Extra `json:"-"`
}

func (s Settings) MarshalJSON() ([]byte, error) {
	type plain Settings
	return marshalObject(plain(s), s.Extra)
}

func (s *Settings) UnmarshalJSON(data []byte) error {
	type plain Settings
	var p plain
	extra, err := unmarshalObject(data, &p)
	if err != nil {
		return err
	}
	*s = Settings(p)
	s.Extra = extra
	return nil
}

// Clone returns a deep copy of s.
func (s *Settings) Clone() *Settings {
	if s == nil {
		return nil
	}
	c := *s
	c.DefaultBackground = s.DefaultBackground.Clone()
	if s.Branding != nil {
		b := *s.Branding
		b.Extra = maps.Clone(s.Branding.Extra)
		if s.Branding.Logo != nil {
			logo := *s.Branding.Logo
			logo.Extra = maps.Clone(s.Branding.Logo.Extra)
			b.Logo = &logo
		}
		c.Branding = &b
	}
	if s.Masters != nil {
		c.Masters = make(map[string][]MasterSlide, len(s.Masters))
		for theme, masters := range s.Masters {
			out := make([]MasterSlide, len(masters))
			for i, m := range masters {
				out[i] = m
				out[i].Background = m.Background.Clone()
				out[i].Elements = cloneElements(m.Elements)
				out[i].Extra = maps.Clone(m.Extra)
			}
			c.Masters[theme] = out
		}
	}
	c.Extra = maps.Clone(s.Extra)
	return &c
}

// ProvenanceEntry records one action taken on the deck.
type ProvenanceEntry struct {
	ID        string          `json:"id,omitempty"`
	Action    string          `json:"action"`
	Actor     string          `json:"actor,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitzero"`
	Details   json.RawMessage `json:"details,omitempty"`

	Extra Extra `json:"-"`
}

func (p ProvenanceEntry) MarshalJSON() ([]byte, error) {
	type plain ProvenanceEntry
	return marshalObject(plain(p), p.Extra)
}

func (p *ProvenanceEntry) UnmarshalJSON(data []byte) error {
	type plain ProvenanceEntry
	var v plain
	extra, err := unmarshalObject(data, &v)
	if err != nil {
		return err
	}
	*p = ProvenanceEntry(v)
	p.Extra = extra
	return nil
}

// AssetDeclaration is an editor-side record of an asset the deck uses.
type AssetDeclaration struct {
	ID       string `json:"id"`
	Src      string `json:"src,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Name     string `json:"name,omitempty"`
}

// WorkingDocument is the live, mutable form of a deck.
type WorkingDocument struct {
	Meta       Meta               `json:"meta"`
	Slides     []Slide            `json:"slides"`
	Assets     []AssetDeclaration `json:"assets,omitempty"`
	Provenance []ProvenanceEntry  `json:"provenance,omitempty"`
	Theme      json.RawMessage    `json:"theme,omitempty"`
	Settings   *Settings          `json:"settings,omitempty"`
}

// Clone returns a deep copy of d.
func (d *WorkingDocument) Clone() *WorkingDocument {
	if d == nil {
		return nil
	}
	c := &WorkingDocument{
		Meta:       d.Meta.Clone(),
		Assets:     slices.Clone(d.Assets),
		Provenance: slices.Clone(d.Provenance),
		Theme:      d.Theme,
		Settings:   d.Settings.Clone(),
	}
	if d.Slides != nil {
		c.Slides = make([]Slide, len(d.Slides))
		for i, s := range d.Slides {
			c.Slides[i] = s.Clone()
		}
	}
	return c
}

// Schema stamps a PortableDocument with the format version it was written in.
type Schema struct {
	Version    string    `json:"version"`
	MigratedAt time.Time `json:"migratedAt,omitzero"`
}

// PortableDocument is the archival form of a deck. Every binary-bearing
// field holds a Reference, and Assets lists every Reference used anywhere
// in the document, mapped to itself.
type PortableDocument struct {
	Schema     Schema                  `json:"schema"`
	Meta       Meta                    `json:"meta"`
	Slides     []Slide                 `json:"slides"`
	Theme      json.RawMessage         `json:"theme,omitempty"`
	Settings   *Settings               `json:"settings,omitempty"`
	Provenance []ProvenanceEntry       `json:"provenance,omitempty"`
	Assets     map[Reference]Reference `json:"assets"`
}

// References returns the registry keys in sorted order.
func (d *PortableDocument) References() []Reference {
	refs := make([]Reference, 0, len(d.Assets))
	for ref := range d.Assets {
		refs = append(refs, ref)
	}
	slices.Sort(refs)
	return refs
}
