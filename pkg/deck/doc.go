// Package deck defines the presentation document model in its two forms.
//
// A WorkingDocument is the live, editable form produced by the editor. Any
// field capable of holding binary data (cover images, backgrounds, media
// sources, custom component props) may carry an inline payload such as a
// data URI.
//
// A PortableDocument is the archival form: every binary-bearing field holds
// a Reference of the form asset://sha256:<hex>, and the document carries a
// schema stamp plus a registry of every reference it uses.
//
// Slide content is treated as opaque structured data. Members this package
// does not model are preserved verbatim through JSON round trips so that
// documents authored by newer editors survive conversion untouched.
package deck
