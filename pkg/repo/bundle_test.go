package repo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/tett23/ckusro/pkg/object"
)

func TestBundle_ExportImport(t *testing.T) {
	src := initRepo(t)
	ctx := context.Background()
	fragments := []string{"github.com@tett23:ckusro-core", "github.com@tett23:ckusro-web"}
	for _, f := range fragments {
		if _, err := src.RegisterFragment(ctx, f, writeBlob(t, src, "content of "+f)); err != nil {
			t.Fatalf("RegisterFragment(%q): %v", f, err)
		}
	}

	var buf bytes.Buffer
	stats, err := src.ExportBundle(&buf)
	if err != nil {
		t.Fatalf("ExportBundle: %v", err)
	}
	// domain + user + two repositories; markers and content are distinct objects
	if stats.Namespaces != 4 || stats.Objects != 4 {
		t.Errorf("export stats = %+v, want 4 namespaces, 4 objects", stats)
	}

	dst := initRepo(t)
	got, err := dst.ImportBundle(ctx, bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ImportBundle: %v", err)
	}
	if diff := cmp.Diff(stats, got); diff != "" {
		t.Errorf("import stats mismatch (-want +got):\n%s", diff)
	}

	for _, f := range fragments {
		want, err := src.Resolve(f)
		if err != nil {
			t.Fatalf("src.Resolve(%q): %v", f, err)
		}
		ref, err := dst.Resolve(f)
		if err != nil {
			t.Fatalf("dst.Resolve(%q): %v", f, err)
		}
		if ref.Ref().ObjectID() != want.Ref().ObjectID() {
			t.Errorf("%s: ObjectID = %s, want %s", f, ref.Ref().ObjectID(), want.Ref().ObjectID())
		}
		obj, err := dst.Store.Read(ref.Ref().ObjectID())
		if err != nil {
			t.Fatalf("dst.Store.Read: %v", err)
		}
		if string(obj.Content) != "content of "+f {
			t.Errorf("%s: content = %q", f, obj.Content)
		}
	}

	entries, err := dst.ReadReflog(0)
	if err != nil {
		t.Fatalf("ReadReflog: %v", err)
	}
	if len(entries) != len(fragments) {
		t.Errorf("reflog has %d entries after import, want %d", len(entries), len(fragments))
	}
}

func TestBundle_ImportMergesWithExisting(t *testing.T) {
	ctx := context.Background()
	src := initRepo(t)
	if _, err := src.RegisterFragment(ctx, "github.com@tett23:ckusro-core", writeBlob(t, src, "core")); err != nil {
		t.Fatalf("RegisterFragment: %v", err)
	}
	var buf bytes.Buffer
	if _, err := src.ExportBundle(&buf); err != nil {
		t.Fatalf("ExportBundle: %v", err)
	}

	dst := initRepo(t)
	if _, err := dst.RegisterFragment(ctx, "gitlab.com@alice:tools", writeBlob(t, dst, "tools")); err != nil {
		t.Fatalf("RegisterFragment: %v", err)
	}
	if _, err := dst.ImportBundle(ctx, &buf); err != nil {
		t.Fatalf("ImportBundle: %v", err)
	}
	m, err := dst.Namespaces()
	if err != nil {
		t.Fatalf("Namespaces: %v", err)
	}
	if m.Len() != 6 {
		t.Errorf("Paths after merge = %v", m.Paths())
	}
}

func TestBundle_Empty(t *testing.T) {
	var buf bytes.Buffer
	stats, err := initRepo(t).ExportBundle(&buf)
	if err != nil {
		t.Fatalf("ExportBundle: %v", err)
	}
	if stats.Namespaces != 0 || stats.Objects != 0 {
		t.Errorf("stats = %+v, want zero", stats)
	}
	if _, err := initRepo(t).ImportBundle(context.Background(), &buf); err != nil {
		t.Fatalf("ImportBundle: %v", err)
	}
}

func zstdCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd.NewWriter: %v", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

func TestBundle_Corrupt(t *testing.T) {
	src := initRepo(t)
	ctx := context.Background()
	if _, err := src.RegisterFragment(ctx, "github.com@tett23:ckusro-core", writeBlob(t, src, "core")); err != nil {
		t.Fatalf("RegisterFragment: %v", err)
	}
	var buf bytes.Buffer
	if _, err := src.ExportBundle(&buf); err != nil {
		t.Fatalf("ExportBundle: %v", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		t.Fatalf("zstd.NewReader: %v", err)
	}
	plain, err := dec.DecodeAll(buf.Bytes(), nil)
	dec.Close()
	if err != nil {
		t.Fatalf("DecodeAll: %v", err)
	}

	flipped := append([]byte(nil), plain...)
	flipped[len(bundleMagic)+3] ^= 0xff

	tests := map[string][]byte{
		"checksum mismatch": zstdCompress(t, flipped),
		"truncated":         zstdCompress(t, plain[:10]),
		"not zstd":          []byte("definitely not a bundle"),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := initRepo(t).ImportBundle(ctx, bytes.NewReader(data))
			if err == nil {
				t.Fatal("ImportBundle should fail")
			}
			if name != "not zstd" && !errors.Is(err, ErrCorruptBundle) {
				t.Errorf("ImportBundle error = %v, want %v", err, ErrCorruptBundle)
			}
		})
	}
}

func TestBundle_ImportRequiresObjects(t *testing.T) {
	ctx := context.Background()
	src := initRepo(t)
	src.Config.Namespaces.RequireObject = false
	missing := object.HashObject(object.KindBlob, []byte("never stored"))
	if _, err := src.RegisterFragment(ctx, "a@b:c", missing); err != nil {
		t.Fatalf("RegisterFragment: %v", err)
	}
	var buf bytes.Buffer
	if _, err := src.ExportBundle(&buf); err != nil {
		t.Fatalf("ExportBundle: %v", err)
	}
	data := buf.Bytes()

	dst := initRepo(t)
	_, err := dst.ImportBundle(ctx, bytes.NewReader(data))
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("ImportBundle error = %v, want %v", err, ErrObjectNotFound)
	}
	if _, err := dst.Resolve("a@b:c"); !errors.Is(err, ErrNamespaceNotFound) {
		t.Errorf("Resolve after rejected import = %v, want %v", err, ErrNamespaceNotFound)
	}

	lenient := initRepo(t)
	lenient.Config.Namespaces.RequireObject = false
	if _, err := lenient.ImportBundle(ctx, bytes.NewReader(data)); err != nil {
		t.Fatalf("ImportBundle with require_object off: %v", err)
	}
	if _, err := lenient.Resolve("a@b:c"); err != nil {
		t.Errorf("Resolve: %v", err)
	}
}

// sealBundle appends the checksum to payload and compresses it, giving a
// bundle that passes the integrity check whatever its contents.
func sealBundle(t *testing.T, payload string) []byte {
	t.Helper()
	sum := blake3.Sum256([]byte(payload))
	return zstdCompress(t, append([]byte(payload), sum[:]...))
}

func TestBundle_OversizedLength(t *testing.T) {
	tests := map[string]string{
		"object size":       bundleMagic + "namespaces 0\nobjects 1\n" + fmt.Sprintf("%s %d\n", object.ZeroHash, int64(1)<<62),
		"object size small": bundleMagic + "namespaces 0\nobjects 1\n" + fmt.Sprintf("%s %d\n", object.ZeroHash, 64) + "short",
		"namespaces size":   bundleMagic + "namespaces 4611686018427387904\nobjects 0\n",
	}
	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := initRepo(t).ImportBundle(context.Background(), bytes.NewReader(sealBundle(t, payload)))
			if !errors.Is(err, ErrCorruptBundle) {
				t.Errorf("ImportBundle error = %v, want %v", err, ErrCorruptBundle)
			}
		})
	}
}
