package object

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
)

// Hash is a 20-byte git object id (SHA-1 over the "kind len\0content"
// envelope).
type Hash = plumbing.Hash

// ZeroHash is the all-zero object id.
var ZeroHash = plumbing.ZeroHash

// ObjectKind identifies the kind of a loose object.
type ObjectKind string

const (
	KindBlob   ObjectKind = "blob"
	KindTree   ObjectKind = "tree"
	KindCommit ObjectKind = "commit"
	KindTag    ObjectKind = "tag"
)

// ParseKind maps a header token to an ObjectKind. Only the exact lowercase
// tokens are accepted.
func ParseKind(name string) (ObjectKind, error) {
	switch k := ObjectKind(name); k {
	case KindBlob, KindTree, KindCommit, KindTag:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTypeName, name)
}

func (k ObjectKind) String() string {
	return string(k)
}

func (k ObjectKind) plumbingType() plumbing.ObjectType {
	switch k {
	case KindBlob:
		return plumbing.BlobObject
	case KindTree:
		return plumbing.TreeObject
	case KindCommit:
		return plumbing.CommitObject
	case KindTag:
		return plumbing.TagObject
	}
	return plumbing.InvalidObject
}

// GitObject is a decoded loose object. Length is the size declared in the
// header and always equals len(Content) for objects returned by Decode.
type GitObject struct {
	Kind    ObjectKind
	Length  uint64
	Content []byte
}

// Hash returns the object id of o.
func (o *GitObject) Hash() Hash {
	return HashObject(o.Kind, o.Content)
}
