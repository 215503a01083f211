package namespace

// Namespace is a named node at one level of the hierarchy. Values are
// immutable and compare with ==.
type Namespace struct {
	kind Kind
	name string
}

// New returns a namespace of the given kind.
func New(kind Kind, name string) Namespace {
	return Namespace{kind: kind, name: name}
}

func (n Namespace) Kind() Kind {
	return n.kind
}

func (n Namespace) Name() string {
	return n.name
}

func (n Namespace) String() string {
	return n.kind.String() + ":" + n.name
}

func checkKind(n Namespace, want Kind) error {
	if n.kind != want {
		return &MismatchError{Expected: want, Actual: n.kind}
	}
	return nil
}

// Domain is a namespace known to be of KindDomain.
type Domain struct{ ns Namespace }

// NewDomain asserts that n is a domain namespace.
func NewDomain(n Namespace) (Domain, error) {
	if err := checkKind(n, KindDomain); err != nil {
		return Domain{}, err
	}
	return Domain{ns: n}, nil
}

// Raw returns the untyped namespace.
func (d Domain) Raw() Namespace { return d.ns }

// User is a namespace known to be of KindUser.
type User struct{ ns Namespace }

// NewUser asserts that n is a user namespace.
func NewUser(n Namespace) (User, error) {
	if err := checkKind(n, KindUser); err != nil {
		return User{}, err
	}
	return User{ns: n}, nil
}

// Raw returns the untyped namespace.
func (u User) Raw() Namespace { return u.ns }

// Repository is a namespace known to be of KindRepository.
type Repository struct{ ns Namespace }

// NewRepository asserts that n is a repository namespace.
func NewRepository(n Namespace) (Repository, error) {
	if err := checkKind(n, KindRepository); err != nil {
		return Repository{}, err
	}
	return Repository{ns: n}, nil
}

// Raw returns the untyped namespace.
func (r Repository) Raw() Namespace { return r.ns }
