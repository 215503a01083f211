package repo

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/tett23/ckusro/pkg/namespace"
	"github.com/tett23/ckusro/pkg/object"
)

// A bundle is a zstd stream holding:
//
//	ckusro-bundle 1\n
//	namespaces <n>\n<n bytes of namespaces.toml>
//	objects <count>\n
//	<id> <n>\n<n bytes of compressed loose object>   (count times)
//	<32-byte BLAKE3 of everything above>
const bundleMagic = "ckusro-bundle 1\n"

var ErrCorruptBundle = errors.New("corrupt bundle")

// BundleStats counts what a bundle carried.
type BundleStats struct {
	Namespaces int
	Objects    int
}

// ExportBundle writes every registered namespace and the objects its
// refs point at to w. Objects missing from the store are skipped.
func (r *Repo) ExportBundle(w io.Writer) (BundleStats, error) {
	var stats BundleStats

	m, err := r.Namespaces()
	if err != nil {
		return stats, fmt.Errorf("export bundle: %w", err)
	}
	table, err := tableFromManager(m)
	if err != nil {
		return stats, fmt.Errorf("export bundle: %w", err)
	}
	var tableBuf bytes.Buffer
	if err := toml.NewEncoder(&tableBuf).Encode(table); err != nil {
		return stats, fmt.Errorf("export bundle: encode namespaces: %w", err)
	}

	seen := make(map[object.Hash]bool)
	var ids []object.Hash
	for _, e := range table.Entries {
		id, err := object.ParseHash(e.Object)
		if err != nil {
			return stats, fmt.Errorf("export bundle: %w", err)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		if !r.Store.Has(id) {
			r.logger.Warn("bundle export: object missing", zap.String("path", e.Path), zap.Stringer("object", id))
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})

	var payload bytes.Buffer
	payload.WriteString(bundleMagic)
	fmt.Fprintf(&payload, "namespaces %d\n", tableBuf.Len())
	payload.Write(tableBuf.Bytes())
	fmt.Fprintf(&payload, "objects %d\n", len(ids))
	for _, id := range ids {
		raw, err := r.Store.ReadRaw(id)
		if err != nil {
			return stats, fmt.Errorf("export bundle: %w", err)
		}
		fmt.Fprintf(&payload, "%s %d\n", id, len(raw))
		payload.Write(raw)
	}
	sum := blake3.Sum256(payload.Bytes())

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return stats, fmt.Errorf("export bundle: zstd writer: %w", err)
	}
	if _, err := enc.Write(payload.Bytes()); err != nil {
		enc.Close()
		return stats, fmt.Errorf("export bundle: write: %w", err)
	}
	if _, err := enc.Write(sum[:]); err != nil {
		enc.Close()
		return stats, fmt.Errorf("export bundle: write checksum: %w", err)
	}
	if err := enc.Close(); err != nil {
		return stats, fmt.Errorf("export bundle: close: %w", err)
	}

	stats.Namespaces = len(table.Entries)
	stats.Objects = len(ids)
	r.logger.Info("exported bundle", zap.Int("namespaces", stats.Namespaces), zap.Int("objects", stats.Objects))
	return stats, nil
}

// ImportBundle verifies a bundle, writes its objects to the store and
// registers its namespaces. Existing refs with the same path are replaced.
func (r *Repo) ImportBundle(ctx context.Context, rd io.Reader) (BundleStats, error) {
	var stats BundleStats

	dec, err := zstd.NewReader(rd, zstd.WithDecoderMaxMemory(maxBundleSize))
	if err != nil {
		return stats, fmt.Errorf("import bundle: zstd reader: %w", err)
	}
	data, err := io.ReadAll(dec)
	dec.Close()
	if err != nil {
		return stats, fmt.Errorf("import bundle: %w: %v", ErrCorruptBundle, err)
	}

	b, err := parseBundle(data)
	if err != nil {
		return stats, fmt.Errorf("import bundle: %w", err)
	}
	imported, err := buildManager(b.table, r.logger)
	if err != nil {
		return stats, fmt.Errorf("import bundle: %w", err)
	}

	for _, o := range b.objects {
		if err := r.Store.WriteRaw(o.id, o.raw); err != nil {
			return stats, fmt.Errorf("import bundle: %w", err)
		}
	}
	stats.Objects = len(b.objects)

	var repos []*namespace.Ref
	for _, path := range imported.Paths() {
		ref, _ := imported.LookupPath(path)
		if ref.Kind() == namespace.KindRepository {
			repos = append(repos, ref)
		}
	}
	if r.Config.Namespaces.RequireObject {
		for _, ref := range repos {
			if !r.Store.Has(ref.ObjectID()) {
				f, _ := ref.Fragment()
				return stats, fmt.Errorf("import bundle: %s: %w: %s", f, ErrObjectNotFound, ref.ObjectID())
			}
		}
	}

	err = r.withNamespaceLock(ctx, func(m *namespace.Manager) ([]namespaceChange, error) {
		var changes []namespaceChange
		for _, ref := range repos {
			f, err := ref.Fragment()
			if err != nil {
				return nil, err
			}
			oldID := object.ZeroHash
			if old, ok := m.Lookup(f); ok {
				oldID = old.Ref().ObjectID()
			}
			if err := m.Add(ref); err != nil {
				return nil, err
			}
			changes = append(changes, namespaceChange{fragment: f.String(), oldID: oldID, newID: ref.ObjectID()})
		}
		return changes, nil
	})
	if err != nil {
		return stats, fmt.Errorf("import bundle: %w", err)
	}
	stats.Namespaces = imported.Len()

	r.logger.Info("imported bundle", zap.Int("namespaces", stats.Namespaces), zap.Int("objects", stats.Objects))
	return stats, nil
}

type bundleObject struct {
	id  object.Hash
	raw []byte
}

type bundle struct {
	table   *namespaceTable
	objects []bundleObject
}

func parseBundle(data []byte) (*bundle, error) {
	if len(data) < len(bundleMagic)+blake3Size {
		return nil, fmt.Errorf("%w: too short (%d bytes)", ErrCorruptBundle, len(data))
	}
	payload := data[:len(data)-blake3Size]
	trailer := data[len(data)-blake3Size:]
	sum := blake3.Sum256(payload)
	if !bytes.Equal(sum[:], trailer) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptBundle)
	}

	rd := bytes.NewReader(payload)
	br := bufio.NewReader(rd)
	remaining := func() int { return rd.Len() + br.Buffered() }

	magic, err := br.ReadString('\n')
	if err != nil || magic != bundleMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptBundle)
	}

	tableData, err := readSection(br, "namespaces", remaining())
	if err != nil {
		return nil, err
	}
	var table namespaceTable
	if _, err := toml.Decode(string(tableData), &table); err != nil {
		return nil, fmt.Errorf("%w: namespaces: %v", ErrCorruptBundle, err)
	}

	count, err := readHeaderLine(br, "objects")
	if err != nil {
		return nil, err
	}
	b := &bundle{table: &table}
	for i := 0; i < count; i++ {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("%w: object %d: %v", ErrCorruptBundle, i, err)
		}
		idText, sizeText, ok := strings.Cut(strings.TrimSuffix(line, "\n"), " ")
		if !ok {
			return nil, fmt.Errorf("%w: object %d: bad header %q", ErrCorruptBundle, i, line)
		}
		id, err := object.ParseHash(idText)
		if err != nil {
			return nil, fmt.Errorf("%w: object %d: %v", ErrCorruptBundle, i, err)
		}
		size, err := strconv.Atoi(sizeText)
		if err != nil || size < 0 {
			return nil, fmt.Errorf("%w: object %d: bad size %q", ErrCorruptBundle, i, sizeText)
		}
		if size > remaining() {
			return nil, fmt.Errorf("%w: object %d: size %d exceeds remaining %d bytes", ErrCorruptBundle, i, size, remaining())
		}
		raw := make([]byte, size)
		if _, err := io.ReadFull(br, raw); err != nil {
			return nil, fmt.Errorf("%w: object %d: %v", ErrCorruptBundle, i, err)
		}

		obj, err := object.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: object %s: %w", ErrCorruptBundle, id, err)
		}
		if got := obj.Hash(); got != id {
			return nil, fmt.Errorf("%w: object %s hashes to %s", ErrCorruptBundle, id, got)
		}
		b.objects = append(b.objects, bundleObject{id: id, raw: raw})
	}
	if _, err := br.ReadByte(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data", ErrCorruptBundle)
	}
	return b, nil
}

const blake3Size = 32

// maxBundleSize caps the decompressed size of an imported bundle.
const maxBundleSize = 1 << 30

func readHeaderLine(br *bufio.Reader, name string) (int, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return 0, fmt.Errorf("%w: %s header: %v", ErrCorruptBundle, name, err)
	}
	text, ok := strings.CutPrefix(strings.TrimSuffix(line, "\n"), name+" ")
	if !ok {
		return 0, fmt.Errorf("%w: expected %s header, got %q", ErrCorruptBundle, name, line)
	}
	n, err := strconv.Atoi(text)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s header: bad count %q", ErrCorruptBundle, name, text)
	}
	return n, nil
}

// readSection reads a "<name> <n>\n" header and the n bytes after it.
// limit is the number of payload bytes left, header included.
func readSection(br *bufio.Reader, name string, limit int) ([]byte, error) {
	n, err := readHeaderLine(br, name)
	if err != nil {
		return nil, err
	}
	if n > limit {
		return nil, fmt.Errorf("%w: %s: size %d exceeds remaining %d bytes", ErrCorruptBundle, name, n, limit)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(br, buf); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptBundle, name, err)
	}
	return buf, nil
}
