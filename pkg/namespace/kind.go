package namespace

import "fmt"

// Kind is the level of a namespace in the hierarchy.
type Kind int

const (
	KindDomain Kind = iota
	KindUser
	KindRepository
)

// MaxDepth is the number of levels in a complete chain.
const MaxDepth = 3

var kindNames = [...]string{
	KindDomain:     "domain",
	KindUser:       "user",
	KindRepository: "repository",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind parses the lowercase kind name produced by String.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown namespace kind %q", s)
}

// Parent returns the kind one level up. The domain level has none.
func (k Kind) Parent() (Kind, bool) {
	switch k {
	case KindUser:
		return KindDomain, true
	case KindRepository:
		return KindUser, true
	}
	return 0, false
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if k < 0 || int(k) >= len(kindNames) {
		return nil, fmt.Errorf("invalid namespace kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	v, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
