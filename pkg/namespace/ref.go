package namespace

import (
	"fmt"

	"github.com/tett23/ckusro/pkg/object"
)

// Ref binds a namespace to an object id. Parent is shared between all
// refs below it and is never modified after construction.
//
// NewRef does not check that the parent is one level up; the typed views
// check that when Parent is called.
type Ref struct {
	namespace Namespace
	objectID  object.Hash
	parent    *Ref
}

// NewRef returns a ref for ns pointing at id.
func NewRef(ns Namespace, id object.Hash, parent *Ref) *Ref {
	return &Ref{namespace: ns, objectID: id, parent: parent}
}

// Namespace returns the namespace the ref points at.
func (r *Ref) Namespace() Namespace {
	return r.namespace
}

// ObjectID returns the id of the object the ref resolves to.
func (r *Ref) ObjectID() object.Hash {
	return r.objectID
}

// Parent returns the untyped parent link, nil for a root.
func (r *Ref) Parent() *Ref {
	return r.parent
}

func (r *Ref) Kind() Kind {
	return r.namespace.kind
}

// Walk calls fn for r and each of its ancestors, leaf first. It stops
// with ErrChainTooDeep after MaxDepth refs, so a cyclic chain terminates.
func (r *Ref) Walk(fn func(*Ref) error) error {
	cur := r
	for depth := 0; cur != nil; depth++ {
		if depth == MaxDepth {
			return fmt.Errorf("walk %s: %w", r.namespace, ErrChainTooDeep)
		}
		if err := fn(cur); err != nil {
			return err
		}
		cur = cur.parent
	}
	return nil
}

// Fragment reconstructs the path fragment of a repository ref by walking
// its typed parents.
func (r *Ref) Fragment() (PathFragment, error) {
	repo, err := AsRepositoryRef(r)
	if err != nil {
		return PathFragment{}, err
	}
	user, err := repo.Parent()
	if err != nil {
		return PathFragment{}, err
	}
	domain, err := user.Parent()
	if err != nil {
		return PathFragment{}, err
	}
	if domain.Ref().parent != nil {
		return PathFragment{}, fmt.Errorf("fragment %s: %w", r.namespace, ErrChainTooDeep)
	}
	return PathFragment{
		Domain:     domain.Ref().namespace.name,
		User:       user.Ref().namespace.name,
		Repository: repo.Ref().namespace.name,
	}, nil
}

// Chain builds the three refs of a fragment. ids holds the object ids of
// the domain, user and repository levels, in that order.
func Chain(f PathFragment, ids [MaxDepth]object.Hash) RepositoryRef {
	d, u, rp := f.Namespaces()
	domain := NewRef(d.Raw(), ids[KindDomain], nil)
	user := NewRef(u.Raw(), ids[KindUser], domain)
	return RepositoryRef{ref: NewRef(rp.Raw(), ids[KindRepository], user)}
}

func checkRef(r *Ref, want Kind) error {
	if r == nil {
		return fmt.Errorf("%s ref: %w", want, ErrNoParent)
	}
	return checkKind(r.namespace, want)
}

// DomainRef is a view of a Ref whose namespace is a domain. It is the
// root of a chain and has no parent accessor.
type DomainRef struct{ ref *Ref }

// AsDomainRef checks that r is a domain ref.
func AsDomainRef(r *Ref) (DomainRef, error) {
	if err := checkRef(r, KindDomain); err != nil {
		return DomainRef{}, err
	}
	return DomainRef{ref: r}, nil
}

// Ref returns the underlying untyped ref.
func (d DomainRef) Ref() *Ref { return d.ref }

// UserRef is a view of a Ref whose namespace is a user.
type UserRef struct{ ref *Ref }

// AsUserRef checks that r is a user ref.
func AsUserRef(r *Ref) (UserRef, error) {
	if err := checkRef(r, KindUser); err != nil {
		return UserRef{}, err
	}
	return UserRef{ref: r}, nil
}

// Ref returns the underlying untyped ref.
func (u UserRef) Ref() *Ref { return u.ref }

// Parent returns the domain the user belongs to. A missing or non-domain
// parent means the chain is corrupt.
func (u UserRef) Parent() (DomainRef, error) {
	if u.ref.parent == nil {
		return DomainRef{}, fmt.Errorf("user %q: %w", u.ref.namespace.name, ErrNoParent)
	}
	d, err := AsDomainRef(u.ref.parent)
	if err != nil {
		return DomainRef{}, fmt.Errorf("user %q parent: %w", u.ref.namespace.name, err)
	}
	return d, nil
}

// RepositoryRef is a view of a Ref whose namespace is a repository.
type RepositoryRef struct{ ref *Ref }

// AsRepositoryRef checks that r is a repository ref.
func AsRepositoryRef(r *Ref) (RepositoryRef, error) {
	if err := checkRef(r, KindRepository); err != nil {
		return RepositoryRef{}, err
	}
	return RepositoryRef{ref: r}, nil
}

// Ref returns the underlying untyped ref.
func (r RepositoryRef) Ref() *Ref { return r.ref }

// Parent returns the user owning the repository.
func (r RepositoryRef) Parent() (UserRef, error) {
	if r.ref.parent == nil {
		return UserRef{}, fmt.Errorf("repository %q: %w", r.ref.namespace.name, ErrNoParent)
	}
	u, err := AsUserRef(r.ref.parent)
	if err != nil {
		return UserRef{}, fmt.Errorf("repository %q parent: %w", r.ref.namespace.name, err)
	}
	return u, nil
}
