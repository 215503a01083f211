package namespace

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Manager is a registry of namespace refs keyed by their path: "domain",
// "domain@user" or "domain@user:repository". Adding a ref registers its
// ancestors too. A Manager is safe for concurrent use.
type Manager struct {
	logger *zap.Logger

	mu   sync.RWMutex
	refs map[string]*Ref
}

// NewManager returns an empty registry. A nil logger disables logging.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger: logger,
		refs:   make(map[string]*Ref),
	}
}

// RefPath returns the registry key of r. The chain above r must be
// well-formed.
func RefPath(r *Ref) (string, error) {
	switch r.Kind() {
	case KindDomain:
		d, err := AsDomainRef(r)
		if err != nil {
			return "", err
		}
		if d.ref.parent != nil {
			return "", fmt.Errorf("domain %q: %w", r.namespace.name, ErrChainTooDeep)
		}
		return r.namespace.name, nil
	case KindUser:
		u, err := AsUserRef(r)
		if err != nil {
			return "", err
		}
		d, err := u.Parent()
		if err != nil {
			return "", err
		}
		parent, err := RefPath(d.ref)
		if err != nil {
			return "", err
		}
		return parent + UserSeparator + r.namespace.name, nil
	case KindRepository:
		f, err := r.Fragment()
		if err != nil {
			return "", err
		}
		return f.String(), nil
	}
	return "", fmt.Errorf("ref %s: unknown kind %d", r.namespace.name, int(r.Kind()))
}

// Add registers r and every ancestor of r. An existing entry with the
// same path is replaced.
func (m *Manager) Add(r *Ref) error {
	type entry struct {
		path string
		ref  *Ref
	}
	var entries []entry
	err := r.Walk(func(cur *Ref) error {
		path, err := RefPath(cur)
		if err != nil {
			return err
		}
		entries = append(entries, entry{path: path, ref: cur})
		return nil
	})
	if err != nil {
		return fmt.Errorf("add namespace ref: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if old, ok := m.refs[e.path]; ok && old != e.ref {
			m.logger.Debug("replacing namespace ref",
				zap.String("path", e.path),
				zap.Stringer("old", old.objectID),
				zap.Stringer("new", e.ref.objectID),
			)
		}
		m.refs[e.path] = e.ref
	}
	return nil
}

// Remove drops the ref registered under path and reports whether it was
// present. Refs below it keep their parent link.
func (m *Manager) Remove(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.refs[path]; !ok {
		return false
	}
	delete(m.refs, path)
	return true
}

// LookupPath returns the ref registered under path.
func (m *Manager) LookupPath(path string) (*Ref, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.refs[path]
	return r, ok
}

// Lookup returns the repository ref for f.
func (m *Manager) Lookup(f PathFragment) (RepositoryRef, bool) {
	r, ok := m.LookupPath(f.String())
	if !ok {
		return RepositoryRef{}, false
	}
	repo, err := AsRepositoryRef(r)
	if err != nil {
		return RepositoryRef{}, false
	}
	return repo, true
}

// Children returns the refs whose parent is registered under path,
// sorted by name.
func (m *Manager) Children(path string) []*Ref {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Ref
	for _, r := range m.refs {
		if r.parent == nil {
			continue
		}
		parentPath, err := RefPath(r.parent)
		if err != nil || parentPath != path {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].namespace.name < out[j].namespace.name
	})
	return out
}

// Paths returns every registered path in sorted order. Ancestors sort
// before their descendants.
func (m *Manager) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.refs))
	for p := range m.refs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered refs.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.refs)
}
