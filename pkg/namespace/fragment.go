package namespace

import "strings"

const (
	UserSeparator       = "@"
	RepositorySeparator = ":"
)

// PathFragment is the parsed form of domain@user:repository.
type PathFragment struct {
	Domain     string
	User       string
	Repository string
}

// ParseFragment parses a fully qualified path fragment. Both separators
// must be present, the first "@" must come before the first ":", and no
// component may be empty.
func ParseFragment(s string) (PathFragment, error) {
	userIdx := strings.Index(s, UserSeparator)
	repoIdx := strings.Index(s, RepositorySeparator)
	if userIdx < 0 || repoIdx < 0 || userIdx > repoIdx {
		return PathFragment{}, &MalformedFragmentError{Fragment: s}
	}

	domain, rest, _ := strings.Cut(s, UserSeparator)
	user, repository, _ := strings.Cut(rest, RepositorySeparator)
	if domain == "" || user == "" || repository == "" {
		return PathFragment{}, &MalformedFragmentError{Fragment: s}
	}

	return PathFragment{Domain: domain, User: user, Repository: repository}, nil
}

// String renders f in path fragment syntax.
func (f PathFragment) String() string {
	return f.Domain + UserSeparator + f.User + RepositorySeparator + f.Repository
}

// Namespaces returns the domain, user and repository namespaces named by f.
func (f PathFragment) Namespaces() (Domain, User, Repository) {
	return Domain{ns: New(KindDomain, f.Domain)},
		User{ns: New(KindUser, f.User)},
		Repository{ns: New(KindRepository, f.Repository)}
}
