package deck

import (
	"bytes"
	"encoding/json"
	"errors"
	"maps"
)

// BackgroundType names the variant of an object-form background.
type BackgroundType string

const (
	BackgroundColor    BackgroundType = "color"
	BackgroundGradient BackgroundType = "gradient"
	BackgroundImage    BackgroundType = "image"
	BackgroundVideo    BackgroundType = "video"
)

// Background is a slide or master background. It is either a literal string
// (a color, URL or inline payload) or an object {type, value, ...}.
type Background struct {
	literal bool
	text    string

	Type  BackgroundType
	Value json.RawMessage
	Extra Extra
}

// LiteralBackground returns the string form of a background.
func LiteralBackground(s string) *Background {
	return &Background{literal: true, text: s}
}

// ObjectBackground returns an object-form background whose value is the
// JSON string s.
func ObjectBackground(t BackgroundType, s string) *Background {
	value, _ := json.Marshal(s)
	return &Background{Type: t, Value: value}
}

// IsLiteral reports whether b is the string form.
func (b *Background) IsLiteral() bool {
	return b != nil && b.literal
}

// Literal returns the string form. It is empty for object backgrounds.
func (b *Background) Literal() string {
	if b == nil {
		return ""
	}
	return b.text
}

// Source returns the value that may carry binary data: the literal string,
// or the string value of an image or video background. Color and gradient
// backgrounds never carry a source.
func (b *Background) Source() (string, bool) {
	if b == nil {
		return "", false
	}
	if b.literal {
		return b.text, true
	}
	if b.Type != BackgroundImage && b.Type != BackgroundVideo {
		return "", false
	}
	var s string
	if err := json.Unmarshal(b.Value, &s); err != nil {
		return "", false
	}
	return s, true
}

// SetSource replaces the value returned by Source. It is a no-op for
// backgrounds without a source.
func (b *Background) SetSource(s string) {
	if _, ok := b.Source(); !ok {
		return
	}
	if b.literal {
		b.text = s
		return
	}
	b.Value, _ = json.Marshal(s)
}

// Clone returns a deep copy of b.
func (b *Background) Clone() *Background {
	if b == nil {
		return nil
	}
	c := *b
	c.Value = bytes.Clone(b.Value)
	c.Extra = maps.Clone(b.Extra)
	return &c
}

type backgroundObject struct {
	Type  BackgroundType  `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

func (b Background) MarshalJSON() ([]byte, error) {
	if b.literal {
		return json.Marshal(b.text)
	}
	return marshalObject(backgroundObject{Type: b.Type, Value: b.Value}, b.Extra)
}

func (b *Background) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("deck: empty background")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = Background{literal: true, text: s}
		return nil
	}

	var obj backgroundObject
	extra, err := unmarshalObject(data, &obj)
	if err != nil {
		return err
	}
	*b = Background{Type: obj.Type, Value: obj.Value, Extra: extra}
	return nil
}
