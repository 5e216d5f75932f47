package convert

import (
	"fmt"
	"slices"
	"strings"
)

// Warning records a field that was left unconverted.
type Warning struct {
	// Path locates the field, e.g. "slides[2].elements[0].children[1].src".
	Path string
	Err  error
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %v", w.Path, w.Err)
}

// Report summarises one ToPortable call.
type Report struct {
	// Stored counts distinct embedded values uploaded to the store.
	Stored int
	// Deduplicated counts embedded values answered from values already
	// uploaded in the same call.
	Deduplicated int
	// Warnings is sorted by Path.
	Warnings []Warning
}

func (r *Report) sortWarnings() {
	slices.SortFunc(r.Warnings, func(a, b Warning) int {
		return strings.Compare(a.Path, b.Path)
	})
}
