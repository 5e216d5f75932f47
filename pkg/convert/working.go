package convert

import (
	"github.com/sethwebster/presentations-sub001/pkg/deck"
)

// ToWorking returns the working form of doc. References are kept as they
// are; resolving them to bytes is left to whoever renders the deck. Slides
// always come back with non-nil Elements and Layers.
func (c *Converter) ToWorking(doc *deck.PortableDocument) *deck.WorkingDocument {
	if doc == nil {
		return nil
	}
	out := (&deck.WorkingDocument{
		Meta:       doc.Meta,
		Slides:     doc.Slides,
		Provenance: doc.Provenance,
		Theme:      doc.Theme,
		Settings:   doc.Settings,
	}).Clone()

	if out.Slides == nil {
		out.Slides = []deck.Slide{}
	}
	for i := range out.Slides {
		s := &out.Slides[i]
		if s.Elements == nil {
			s.Elements = []deck.Element{}
		}
		if s.Layers == nil {
			s.Layers = []deck.Layer{}
		}
		for j := range s.Layers {
			if s.Layers[j].Elements == nil {
				s.Layers[j].Elements = []deck.Element{}
			}
		}
	}
	return out
}
