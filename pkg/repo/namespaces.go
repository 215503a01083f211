package repo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/tett23/ckusro/pkg/namespace"
	"github.com/tett23/ckusro/pkg/object"
)

const (
	namespaceFile = "namespaces.toml"
	namespaceLock = "namespaces.lock"

	namespaceLockRetryDelay = 10 * time.Millisecond
	namespaceLockWaitLimit  = 2 * time.Second
)

var (
	ErrNamespaceNotFound = errors.New("namespace not found")
	ErrObjectNotFound    = errors.New("object not found")
	ErrCorruptTable      = errors.New("corrupt namespace table")
)

// namespaceTable is the on-disk form of the registered refs, one entry per
// level of every chain.
type namespaceTable struct {
	Entries []namespaceEntry `toml:"namespace,omitempty"`
}

type namespaceEntry struct {
	Path   string         `toml:"path"`
	Kind   namespace.Kind `toml:"kind"`
	Name   string         `toml:"name"`
	Parent string         `toml:"parent,omitempty"`
	Object string         `toml:"object"`
}

func readNamespaceTable(dir string) (*namespaceTable, error) {
	var table namespaceTable
	data, err := os.ReadFile(filepath.Join(dir, namespaceFile))
	if err != nil {
		if os.IsNotExist(err) {
			return &table, nil
		}
		return nil, fmt.Errorf("read namespaces: %w", err)
	}
	if _, err := toml.Decode(string(data), &table); err != nil {
		return nil, fmt.Errorf("read namespaces: decode: %w", err)
	}
	return &table, nil
}

func writeNamespaceTable(dir string, table *namespaceTable) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(table); err != nil {
		return fmt.Errorf("write namespaces: encode: %w", err)
	}
	if err := writeFileAtomic(dir, namespaceFile, buf.Bytes()); err != nil {
		return fmt.Errorf("write namespaces: %w", err)
	}
	return nil
}

// buildManager links table entries into ref chains. Parents are created
// before children, so every parent path must name an earlier entry.
func buildManager(table *namespaceTable, logger *zap.Logger) (*namespace.Manager, error) {
	entries := append([]namespaceEntry(nil), table.Entries...)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Kind < entries[j].Kind
	})

	m := namespace.NewManager(logger)
	byPath := make(map[string]*namespace.Ref, len(entries))
	for _, e := range entries {
		id, err := object.ParseHash(e.Object)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptTable, e.Path, err)
		}
		var parent *namespace.Ref
		if e.Parent != "" {
			p, ok := byPath[e.Parent]
			if !ok {
				return nil, fmt.Errorf("%w: %s: parent %q not registered", ErrCorruptTable, e.Path, e.Parent)
			}
			parent = p
		}

		ref := namespace.NewRef(namespace.New(e.Kind, e.Name), id, parent)
		path, err := namespace.RefPath(ref)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrCorruptTable, e.Path, err)
		}
		if path != e.Path {
			return nil, fmt.Errorf("%w: entry %q links to %q", ErrCorruptTable, e.Path, path)
		}
		if err := m.Add(ref); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptTable, err)
		}
		byPath[path] = ref
	}
	return m, nil
}

func tableFromManager(m *namespace.Manager) (*namespaceTable, error) {
	table := &namespaceTable{}
	for _, path := range m.Paths() {
		ref, _ := m.LookupPath(path)
		e := namespaceEntry{
			Path:   path,
			Kind:   ref.Kind(),
			Name:   ref.Namespace().Name(),
			Object: ref.ObjectID().String(),
		}
		if ref.Parent() != nil {
			parent, err := namespace.RefPath(ref.Parent())
			if err != nil {
				return nil, err
			}
			e.Parent = parent
		}
		table.Entries = append(table.Entries, e)
	}
	return table, nil
}

// Namespaces loads the registered namespace refs.
func (r *Repo) Namespaces() (*namespace.Manager, error) {
	table, err := readNamespaceTable(r.Dir)
	if err != nil {
		return nil, err
	}
	return buildManager(table, r.logger)
}

// namespaceChange is one namespace log line produced under the lock.
type namespaceChange struct {
	fragment string
	oldID    object.Hash
	newID    object.Hash
}

// withNamespaceLock runs fn while holding the namespace table lock. If fn
// succeeds the manager is written back and the changes it returns are
// appended to the namespace log before the lock is released, so the log
// follows the order of table writes.
func (r *Repo) withNamespaceLock(ctx context.Context, fn func(*namespace.Manager) ([]namespaceChange, error)) error {
	lock := flock.New(filepath.Join(r.Dir, namespaceLock))
	lockCtx, cancel := context.WithTimeout(ctx, namespaceLockWaitLimit)
	defer cancel()

	locked, err := lock.TryLockContext(lockCtx, namespaceLockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock namespaces: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock namespaces: timeout after %v", namespaceLockWaitLimit)
	}
	defer lock.Unlock()

	m, err := r.Namespaces()
	if err != nil {
		return err
	}
	changes, err := fn(m)
	if err != nil {
		return err
	}
	table, err := tableFromManager(m)
	if err != nil {
		return fmt.Errorf("write namespaces: %w", err)
	}
	if err := writeNamespaceTable(r.Dir, table); err != nil {
		return err
	}

	for _, c := range changes {
		if err := r.appendNamespaceLog(c.fragment, c.oldID, c.newID); err != nil {
			r.logger.Warn("namespace log append failed", zap.String("fragment", c.fragment), zap.Error(err))
		}
	}
	return nil
}

// markerBlob is the content stored for the domain and user levels of a
// chain; the repository level points at a caller-supplied object.
func markerBlob(kind namespace.Kind, path string) []byte {
	return []byte(fmt.Sprintf("%s %s\n", kind, path))
}

// RegisterFragment records fragment as pointing at id. The domain and user
// levels are backed by marker blobs written to the store.
func (r *Repo) RegisterFragment(ctx context.Context, fragment string, id object.Hash) (namespace.RepositoryRef, error) {
	f, err := namespace.ParseFragment(fragment)
	if err != nil {
		return namespace.RepositoryRef{}, fmt.Errorf("register: %w", err)
	}
	if r.Config.Namespaces.RequireObject && !r.Store.Has(id) {
		return namespace.RepositoryRef{}, fmt.Errorf("register %s: %w: %s", f, ErrObjectNotFound, id)
	}

	domainID, err := r.Store.Write(object.KindBlob, markerBlob(namespace.KindDomain, f.Domain))
	if err != nil {
		return namespace.RepositoryRef{}, fmt.Errorf("register %s: %w", f, err)
	}
	userID, err := r.Store.Write(object.KindBlob, markerBlob(namespace.KindUser, f.Domain+namespace.UserSeparator+f.User))
	if err != nil {
		return namespace.RepositoryRef{}, fmt.Errorf("register %s: %w", f, err)
	}

	repoRef := namespace.Chain(f, [namespace.MaxDepth]object.Hash{domainID, userID, id})
	err = r.withNamespaceLock(ctx, func(m *namespace.Manager) ([]namespaceChange, error) {
		oldID := object.ZeroHash
		if old, ok := m.Lookup(f); ok {
			oldID = old.Ref().ObjectID()
		}
		if err := m.Add(repoRef.Ref()); err != nil {
			return nil, err
		}
		return []namespaceChange{{fragment: f.String(), oldID: oldID, newID: id}}, nil
	})
	if err != nil {
		return namespace.RepositoryRef{}, fmt.Errorf("register %s: %w", f, err)
	}

	r.logger.Info("registered namespace",
		zap.String("fragment", f.String()),
		zap.Stringer("object", id),
	)
	return repoRef, nil
}

// Unregister removes the repository level of fragment. Users and domains
// left without children are removed as well.
func (r *Repo) Unregister(ctx context.Context, fragment string) error {
	f, err := namespace.ParseFragment(fragment)
	if err != nil {
		return fmt.Errorf("unregister: %w", err)
	}

	err = r.withNamespaceLock(ctx, func(m *namespace.Manager) ([]namespaceChange, error) {
		old, ok := m.Lookup(f)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNamespaceNotFound, f)
		}
		m.Remove(f.String())

		userPath := f.Domain + namespace.UserSeparator + f.User
		if len(m.Children(userPath)) == 0 {
			m.Remove(userPath)
		}
		if len(m.Children(f.Domain)) == 0 {
			m.Remove(f.Domain)
		}
		return []namespaceChange{{fragment: f.String(), oldID: old.Ref().ObjectID(), newID: object.ZeroHash}}, nil
	})
	if err != nil {
		return fmt.Errorf("unregister %s: %w", f, err)
	}
	return nil
}

// Resolve returns the registered repository ref for fragment.
func (r *Repo) Resolve(fragment string) (namespace.RepositoryRef, error) {
	f, err := namespace.ParseFragment(fragment)
	if err != nil {
		return namespace.RepositoryRef{}, fmt.Errorf("resolve: %w", err)
	}
	m, err := r.Namespaces()
	if err != nil {
		return namespace.RepositoryRef{}, fmt.Errorf("resolve %s: %w", f, err)
	}
	ref, ok := m.Lookup(f)
	if !ok {
		return namespace.RepositoryRef{}, fmt.Errorf("resolve %s: %w", f, ErrNamespaceNotFound)
	}
	return ref, nil
}
