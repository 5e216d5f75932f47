package deck

import (
	"bytes"
	"encoding/json"
	"maps"
)

// ElementType is the discriminator of the Element union.
type ElementType string

const (
	ElementText      ElementType = "text"
	ElementRichText  ElementType = "richtext"
	ElementCodeBlock ElementType = "codeblock"
	ElementTable     ElementType = "table"
	ElementImage     ElementType = "image"
	ElementVideo     ElementType = "video"
	ElementAudio     ElementType = "audio"
	ElementMedia     ElementType = "media"
	ElementShape     ElementType = "shape"
	ElementChart     ElementType = "chart"
	ElementGroup     ElementType = "group"
	ElementCustom    ElementType = "custom"
)

// IsMedia reports whether elements of type t carry a src.
func (t ElementType) IsMedia() bool {
	switch t {
	case ElementImage, ElementVideo, ElementAudio, ElementMedia:
		return true
	}
	return false
}

// Element is a node of a slide's content tree. Only the members that can
// reference binary data are modeled; everything else (geometry, styling,
// text runs, table cells, chart series) lives in Extra.
//
// Element ids are unique within a slide.
type Element struct {
	ID   string      `json:"id"`
	Type ElementType `json:"type"`

	// Src is the media source for image, video, audio and media elements.
	Src string `json:"src,omitempty"`

	// Children holds the members of a group element.
	Children []Element `json:"children,omitempty"`

	// Component and Props describe a custom element.
	Component string         `json:"component,omitempty"`
	Props     map[string]any `json:"props,omitempty"`

	Extra Extra `json:"-"`
}

// Clone returns a deep copy of e. Prop values are copied shallowly; only
// top-level string props are ever rewritten.
func (e Element) Clone() Element {
	c := e
	c.Children = cloneElements(e.Children)
	c.Props = maps.Clone(e.Props)
	c.Extra = maps.Clone(e.Extra)
	return c
}

func cloneElements(elements []Element) []Element {
	if elements == nil {
		return nil
	}
	out := make([]Element, len(elements))
	for i, e := range elements {
		out[i] = e.Clone()
	}
	return out
}

func (e Element) MarshalJSON() ([]byte, error) {
	type plain Element
	data, err := marshalObject(plain(e), e.Extra)
	if err != nil {
		return nil, err
	}
	if e.Type == ElementGroup && len(e.Children) == 0 {
		// omitempty drops the empty list; groups always carry children.
		return withMember(data, "children", []byte("[]"))
	}
	return data, nil
}

func (e *Element) UnmarshalJSON(data []byte) error {
	type plain Element
	var p plain
	extra, err := unmarshalObject(data, &p)
	if err != nil {
		return err
	}

	// Props are re-decoded with UseNumber so large integers survive.
	var members struct {
		Props json.RawMessage `json:"props"`
	}
	if err := json.Unmarshal(data, &members); err != nil {
		return err
	}
	if len(members.Props) > 0 && !bytes.Equal(members.Props, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(members.Props))
		dec.UseNumber()
		p.Props = nil
		if err := dec.Decode(&p.Props); err != nil {
			return err
		}
	}

	*e = Element(p)
	e.Extra = extra
	return nil
}

func withMember(object []byte, name string, value json.RawMessage) ([]byte, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(object, &members); err != nil {
		return nil, err
	}
	members[name] = value
	return json.Marshal(members)
}
