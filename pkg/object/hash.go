package object

import (
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
)

// HashObject computes the git object id of content stored as kind.
func HashObject(kind ObjectKind, content []byte) Hash {
	return plumbing.ComputeHash(kind.plumbingType(), content)
}

// ParseHash parses a 40-character hex object id.
func ParseHash(s string) (Hash, error) {
	s = strings.TrimSpace(s)
	if !plumbing.IsHash(s) {
		return ZeroHash, fmt.Errorf("invalid object id %q", s)
	}
	return plumbing.NewHash(s), nil
}
