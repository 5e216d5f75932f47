package deck

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHex = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func TestReference(t *testing.T) {
	ref, err := NewReference("sha256:" + testHex)
	require.NoError(t, err)
	assert.Equal(t, Reference("asset://sha256:"+testHex), ref)
	assert.Equal(t, "sha256:"+testHex, ref.Hash())
	assert.Equal(t, testHex, ref.Hex())

	bare, err := NewReference(testHex)
	require.NoError(t, err)
	assert.Equal(t, ref, bare)

	assert.True(t, IsReference(string(ref)))
	assert.False(t, IsReference("asset://sha256:"+strings.ToUpper(testHex)))
	assert.False(t, IsReference("asset://sha256:abc"))
	assert.False(t, IsReference("https://example.com/"+testHex))

	_, err = NewReference("sha256:xyz")
	require.ErrorIs(t, err, ErrInvalidReference)
	_, err = ParseReference("asset://md5:" + testHex)
	require.ErrorIs(t, err, ErrInvalidReference)
}

func TestElement_PreservesUnknownMembers(t *testing.T) {
	in := `{"id":"e1","type":"shape","x":10,"style":{"fill":"#f00"},"label":"box"}`

	var e Element
	require.NoError(t, json.Unmarshal([]byte(in), &e))
	assert.Equal(t, "e1", e.ID)
	assert.Equal(t, ElementShape, e.Type)
	require.Contains(t, e.Extra, "style")

	out, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestElement_GroupAndCustom(t *testing.T) {
	in := `{
		"id":"g","type":"group",
		"children":[
			{"id":"img","type":"image","src":"https://example.com/a.png","alt":"a"},
			{"id":"c","type":"custom","component":"Avatar","props":{"photo":"x","size":12345678901234567890}}
		]
	}`

	var e Element
	require.NoError(t, json.Unmarshal([]byte(in), &e))
	require.Len(t, e.Children, 2)
	assert.Equal(t, "https://example.com/a.png", e.Children[0].Src)
	assert.Equal(t, "Avatar", e.Children[1].Component)
	assert.Equal(t, json.Number("12345678901234567890"), e.Children[1].Props["size"])

	out, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestElement_EmptyGroupKeepsChildren(t *testing.T) {
	out, err := json.Marshal(Element{ID: "g", Type: ElementGroup})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"g","type":"group","children":[]}`, string(out))
}

func TestBackground_Forms(t *testing.T) {
	t.Run("literal", func(t *testing.T) {
		var b Background
		require.NoError(t, json.Unmarshal([]byte(`"#112233"`), &b))
		assert.True(t, b.IsLiteral())
		src, ok := b.Source()
		require.True(t, ok)
		assert.Equal(t, "#112233", src)

		b.SetSource("data:image/png;base64,AAAA")
		out, err := json.Marshal(b)
		require.NoError(t, err)
		assert.JSONEq(t, `"data:image/png;base64,AAAA"`, string(out))
	})

	t.Run("image object", func(t *testing.T) {
		in := `{"type":"image","value":"https://example.com/bg.jpg","fit":"cover"}`
		var b Background
		require.NoError(t, json.Unmarshal([]byte(in), &b))
		assert.False(t, b.IsLiteral())
		src, ok := b.Source()
		require.True(t, ok)
		assert.Equal(t, "https://example.com/bg.jpg", src)

		b.SetSource("asset://sha256:" + testHex)
		out, err := json.Marshal(b)
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"image","value":"asset://sha256:`+testHex+`","fit":"cover"}`, string(out))
	})

	t.Run("gradient object has no source", func(t *testing.T) {
		in := `{"type":"gradient","value":{"from":"#000","to":"#fff","angle":90}}`
		var b Background
		require.NoError(t, json.Unmarshal([]byte(in), &b))
		_, ok := b.Source()
		assert.False(t, ok)

		b.SetSource("ignored")
		out, err := json.Marshal(b)
		require.NoError(t, err)
		assert.JSONEq(t, in, string(out))
	})
}

func TestSlide_ElementsNeverMissing(t *testing.T) {
	out, err := json.Marshal(Slide{ID: "s1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"s1","elements":[]}`, string(out))
}

func TestWorkingDocument_CloneIsDeep(t *testing.T) {
	doc := &WorkingDocument{
		Meta: Meta{ID: "d", Tags: []string{"a"}},
		Slides: []Slide{{
			ID:         "s1",
			Background: LiteralBackground("#fff"),
			Elements: []Element{{
				ID: "g", Type: ElementGroup,
				Children: []Element{{ID: "i", Type: ElementImage, Src: "one"}},
			}},
		}},
		Settings: &Settings{
			Branding: &Branding{Logo: &Logo{Src: "logo"}},
			Masters:  map[string][]MasterSlide{"dark": {{ID: "m", Elements: []Element{{ID: "x", Type: ElementImage, Src: "m"}}}}},
		},
	}

	c := doc.Clone()
	c.Meta.Tags[0] = "changed"
	c.Slides[0].Background.SetSource("changed")
	c.Slides[0].Elements[0].Children[0].Src = "changed"
	c.Settings.Branding.Logo.Src = "changed"
	c.Settings.Masters["dark"][0].Elements[0].Src = "changed"

	assert.Equal(t, "a", doc.Meta.Tags[0])
	assert.Equal(t, "#fff", doc.Slides[0].Background.Literal())
	assert.Equal(t, "one", doc.Slides[0].Elements[0].Children[0].Src)
	assert.Equal(t, "logo", doc.Settings.Branding.Logo.Src)
	assert.Equal(t, "m", doc.Settings.Masters["dark"][0].Elements[0].Src)
}

func TestPortableDocument_EmptyRegistryIsObject(t *testing.T) {
	doc := PortableDocument{
		Schema: Schema{Version: SchemaVersion},
		Meta:   Meta{ID: "d", Title: "Empty"},
		Slides: []Slide{},
		Assets: map[Reference]Reference{},
	}
	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"schema":{"version":"v1.0"},"meta":{"id":"d","title":"Empty"},"slides":[],"assets":{}}`, string(out))
}

func TestMeta_TimestampsPassThrough(t *testing.T) {
	cases := map[string]string{
		"iso with millis": `{"id":"d","createdAt":"2024-01-15T10:00:00.000Z","updatedAt":"2024-01-16T08:30:00.000+02:00"}`,
		"date only":       `{"id":"d","createdAt":"2024-01-15"}`,
		"epoch millis":    `{"id":"d","createdAt":1700000000000,"updatedAt":1700000000500}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			var m Meta
			require.NoError(t, json.Unmarshal([]byte(in), &m))

			out, err := json.Marshal(m.Clone())
			require.NoError(t, err)
			assert.JSONEq(t, in, string(out))
			assert.Equal(t, in, string(out))
		})
	}
}
