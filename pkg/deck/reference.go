package deck

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ReferencePrefix is the scheme and algorithm prefix of every Reference.
	ReferencePrefix = "asset://sha256:"

	hashPrefix = "sha256:"
	hexLength  = 64
)

// ErrInvalidReference is returned when a string is not a well-formed Reference.
var ErrInvalidReference = errors.New("deck: invalid asset reference")

// Reference is a content address of the form asset://sha256:<64 lowercase hex>.
// Two references are equal iff the referenced bytes are equal.
type Reference string

// NewReference builds a Reference from a content hash. Both the store form
// "sha256:<hex>" and a bare hex digest are accepted.
func NewReference(hash string) (Reference, error) {
	digest := strings.TrimPrefix(hash, hashPrefix)
	if !isLowerHex(digest) {
		return "", fmt.Errorf("%w: hash %q", ErrInvalidReference, hash)
	}
	return Reference(ReferencePrefix + digest), nil
}

// ParseReference validates s and returns it as a Reference.
func ParseReference(s string) (Reference, error) {
	if !IsReference(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, s)
	}
	return Reference(s), nil
}

// IsReference reports whether s is a well-formed Reference.
func IsReference(s string) bool {
	digest, ok := strings.CutPrefix(s, ReferencePrefix)
	return ok && isLowerHex(digest)
}

// HasReferencePrefix reports whether s starts like a Reference, without
// validating the digest.
func HasReferencePrefix(s string) bool {
	return strings.HasPrefix(s, ReferencePrefix)
}

// Hash returns the store form of the content hash, "sha256:<hex>".
func (r Reference) Hash() string {
	return hashPrefix + r.Hex()
}

// Hex returns the bare hex digest.
func (r Reference) Hex() string {
	return strings.TrimPrefix(string(r), ReferencePrefix)
}

func (r Reference) String() string {
	return string(r)
}

func isLowerHex(s string) bool {
	if len(s) != hexLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
