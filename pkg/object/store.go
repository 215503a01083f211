package object

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zlib"
)

// Store is a loose-object database with git's fan-out layout:
// objects/ab/cdef0123... Each file holds one zlib-compressed object.
type Store struct {
	root  string
	level int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithCompressionLevel sets the zlib level used for new objects.
func WithCompressionLevel(level int) StoreOption {
	return func(s *Store) {
		s.level = level
	}
}

// NewStore creates a Store rooted at the given directory. The objects/
// subdirectory is created lazily on first write.
func NewStore(root string, opts ...StoreOption) *Store {
	s := &Store{root: root, level: zlib.DefaultCompression}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// objectPath returns the filesystem path for a given id.
func (s *Store) objectPath(h Hash) string {
	hex := h.String()
	return filepath.Join(s.root, "objects", hex[:2], hex[2:])
}

// Has reports whether the store contains an object with the given id.
func (s *Store) Has(h Hash) bool {
	_, err := os.Stat(s.objectPath(h))
	return err == nil
}

// Write compresses and stores an object and returns its id. Writes are
// atomic: data is written to a temp file and then renamed into place.
func (s *Store) Write(kind ObjectKind, content []byte) (Hash, error) {
	h := HashObject(kind, content)

	// Fast path: already exists.
	if s.Has(h) {
		return h, nil
	}

	raw, err := EncodeLevel(kind, content, s.level)
	if err != nil {
		return ZeroHash, fmt.Errorf("object write: %w", err)
	}
	if err := s.WriteRaw(h, raw); err != nil {
		return ZeroHash, err
	}
	return h, nil
}

// WriteRaw stores an already-compressed object under h without
// recompressing it. The caller is responsible for h matching raw.
func (s *Store) WriteRaw(h Hash, raw []byte) error {
	if s.Has(h) {
		return nil
	}

	dir := filepath.Dir(s.objectPath(h))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("object write mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("object write tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("object write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("object write close: %w", err)
	}

	// Loose objects are read-only once written, as in git.
	if err := os.Chmod(tmpName, 0o444); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("object write chmod: %w", err)
	}

	if err := os.Rename(tmpName, s.objectPath(h)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("object write rename: %w", err)
	}
	return nil
}

// ReadRaw returns the compressed bytes stored for h.
func (s *Store) ReadRaw(h Hash) ([]byte, error) {
	raw, err := os.ReadFile(s.objectPath(h))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("object read %s: %w", h, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("object read %s: %w", h, err)
	}
	return raw, nil
}

// Read retrieves and decodes an object by id. The decoded object must hash
// back to h.
func (s *Store) Read(h Hash) (*GitObject, error) {
	raw, err := s.ReadRaw(h)
	if err != nil {
		return nil, err
	}
	obj, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("object read %s: %w", h, err)
	}
	if got := obj.Hash(); got != h {
		return nil, fmt.Errorf("object read %s: %w: content hashes to %s", h, ErrCorruptObject, got)
	}
	return obj, nil
}

// ReadKind reads an object and checks that it has the wanted kind.
func (s *Store) ReadKind(h Hash, want ObjectKind) (*GitObject, error) {
	obj, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if obj.Kind != want {
		return nil, fmt.Errorf("object %s: %w: got %q, want %q", h, ErrKindMismatch, obj.Kind, want)
	}
	return obj, nil
}
