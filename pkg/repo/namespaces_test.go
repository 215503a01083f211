package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tett23/ckusro/pkg/namespace"
	"github.com/tett23/ckusro/pkg/object"
)

func writeBlob(t *testing.T, r *Repo, content string) object.Hash {
	t.Helper()
	h, err := r.Store.Write(object.KindBlob, []byte(content))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	return h
}

func TestRegisterFragment_Resolve(t *testing.T) {
	r := initRepo(t)
	ctx := context.Background()
	id := writeBlob(t, r, "readme\n")

	ref, err := r.RegisterFragment(ctx, "github.com@tett23:ckusro-core", id)
	if err != nil {
		t.Fatalf("RegisterFragment: %v", err)
	}
	if ref.Ref().ObjectID() != id {
		t.Errorf("ObjectID = %s, want %s", ref.Ref().ObjectID(), id)
	}

	got, err := r.Resolve("github.com@tett23:ckusro-core")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Ref().ObjectID() != id {
		t.Errorf("resolved ObjectID = %s, want %s", got.Ref().ObjectID(), id)
	}

	user, err := got.Parent()
	if err != nil {
		t.Fatalf("Parent: %v", err)
	}
	if user.Ref().Namespace() != namespace.New(namespace.KindUser, "tett23") {
		t.Errorf("user namespace = %v", user.Ref().Namespace())
	}
	domain, err := user.Parent()
	if err != nil {
		t.Fatalf("Parent: %v", err)
	}
	if domain.Ref().Namespace() != namespace.New(namespace.KindDomain, "github.com") {
		t.Errorf("domain namespace = %v", domain.Ref().Namespace())
	}

	// Domain and user levels are backed by marker blobs.
	obj, err := r.Store.ReadKind(domain.Ref().ObjectID(), object.KindBlob)
	if err != nil {
		t.Fatalf("read domain marker: %v", err)
	}
	if string(obj.Content) != "domain github.com\n" {
		t.Errorf("domain marker = %q", obj.Content)
	}
	obj, err = r.Store.ReadKind(user.Ref().ObjectID(), object.KindBlob)
	if err != nil {
		t.Fatalf("read user marker: %v", err)
	}
	if string(obj.Content) != "user github.com@tett23\n" {
		t.Errorf("user marker = %q", obj.Content)
	}
}

func TestRegisterFragment_Errors(t *testing.T) {
	r := initRepo(t)
	ctx := context.Background()

	if _, err := r.RegisterFragment(ctx, "tett23:ckusro-core", object.ZeroHash); !errors.Is(err, namespace.ErrMalformedFragment) {
		t.Errorf("malformed fragment error = %v, want %v", err, namespace.ErrMalformedFragment)
	}
	missing := object.HashObject(object.KindBlob, []byte("never written"))
	if _, err := r.RegisterFragment(ctx, "github.com@tett23:ckusro-core", missing); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("missing object error = %v, want %v", err, ErrObjectNotFound)
	}
	if _, err := r.Resolve("github.com@tett23:ckusro-core"); !errors.Is(err, ErrNamespaceNotFound) {
		t.Errorf("Resolve error = %v, want %v", err, ErrNamespaceNotFound)
	}
}

func TestRegisterFragment_WithoutRequireObject(t *testing.T) {
	r := initRepo(t)
	r.Config.Namespaces.RequireObject = false
	missing := object.HashObject(object.KindBlob, []byte("elsewhere"))

	if _, err := r.RegisterFragment(context.Background(), "github.com@tett23:ckusro-core", missing); err != nil {
		t.Fatalf("RegisterFragment: %v", err)
	}
	got, err := r.Resolve("github.com@tett23:ckusro-core")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Ref().ObjectID() != missing {
		t.Errorf("ObjectID = %s, want %s", got.Ref().ObjectID(), missing)
	}
}

func TestNamespaces_TableLayout(t *testing.T) {
	r := initRepo(t)
	ctx := context.Background()
	for _, f := range []string{"github.com@tett23:ckusro-core", "github.com@tett23:ckusro-web", "gitlab.com@alice:tools"} {
		if _, err := r.RegisterFragment(ctx, f, writeBlob(t, r, f)); err != nil {
			t.Fatalf("RegisterFragment(%q): %v", f, err)
		}
	}

	m, err := r.Namespaces()
	if err != nil {
		t.Fatalf("Namespaces: %v", err)
	}
	want := []string{
		"github.com",
		"github.com@tett23",
		"github.com@tett23:ckusro-core",
		"github.com@tett23:ckusro-web",
		"gitlab.com",
		"gitlab.com@alice",
		"gitlab.com@alice:tools",
	}
	if diff := cmp.Diff(want, m.Paths()); diff != "" {
		t.Errorf("Paths mismatch (-want +got):\n%s", diff)
	}
	if got := m.Children("github.com@tett23"); len(got) != 2 {
		t.Errorf("Children(github.com@tett23) = %d refs, want 2", len(got))
	}

	data, err := os.ReadFile(filepath.Join(r.Dir, namespaceFile))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), `kind = "repository"`) {
		t.Errorf("namespaces.toml does not store kinds as text:\n%s", data)
	}
}

func TestRegisterFragment_Replace(t *testing.T) {
	r := initRepo(t)
	ctx := context.Background()
	v1 := writeBlob(t, r, "v1")
	v2 := writeBlob(t, r, "v2")

	if _, err := r.RegisterFragment(ctx, "github.com@tett23:ckusro-core", v1); err != nil {
		t.Fatalf("RegisterFragment(v1): %v", err)
	}
	if _, err := r.RegisterFragment(ctx, "github.com@tett23:ckusro-core", v2); err != nil {
		t.Fatalf("RegisterFragment(v2): %v", err)
	}
	got, err := r.Resolve("github.com@tett23:ckusro-core")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Ref().ObjectID() != v2 {
		t.Errorf("ObjectID = %s, want %s", got.Ref().ObjectID(), v2)
	}
	m, _ := r.Namespaces()
	if m.Len() != 3 {
		t.Errorf("Len = %d, want 3", m.Len())
	}
}

func TestUnregister_PrunesEmptyParents(t *testing.T) {
	r := initRepo(t)
	ctx := context.Background()
	for _, f := range []string{"github.com@tett23:ckusro-core", "github.com@tett23:ckusro-web"} {
		if _, err := r.RegisterFragment(ctx, f, writeBlob(t, r, f)); err != nil {
			t.Fatalf("RegisterFragment(%q): %v", f, err)
		}
	}

	if err := r.Unregister(ctx, "github.com@tett23:ckusro-core"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	m, _ := r.Namespaces()
	if diff := cmp.Diff([]string{"github.com", "github.com@tett23", "github.com@tett23:ckusro-web"}, m.Paths()); diff != "" {
		t.Errorf("Paths mismatch (-want +got):\n%s", diff)
	}

	if err := r.Unregister(ctx, "github.com@tett23:ckusro-web"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	m, _ = r.Namespaces()
	if m.Len() != 0 {
		t.Errorf("Paths after removing last repository = %v", m.Paths())
	}

	if err := r.Unregister(ctx, "github.com@tett23:ckusro-web"); !errors.Is(err, ErrNamespaceNotFound) {
		t.Errorf("Unregister missing error = %v, want %v", err, ErrNamespaceNotFound)
	}
}

func TestRegisterFragment_Concurrent(t *testing.T) {
	r := initRepo(t)
	ctx := context.Background()

	const n = 8
	ids := make([]object.Hash, n)
	for i := range ids {
		ids[i] = writeBlob(t, r, string(rune('a'+i)))
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fragment := "github.com@tett23:repo-" + string(rune('a'+i))
			if _, err := r.RegisterFragment(ctx, fragment, ids[i]); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("RegisterFragment: %v", err)
	}

	m, err := r.Namespaces()
	if err != nil {
		t.Fatalf("Namespaces: %v", err)
	}
	if got := len(m.Children("github.com@tett23")); got != n {
		t.Errorf("registered %d repositories, want %d", got, n)
	}
}

func TestNamespaces_CorruptTable(t *testing.T) {
	r := initRepo(t)
	id := object.HashObject(object.KindBlob, []byte("x")).String()
	tables := map[string]string{
		"missing parent": `[[namespace]]
path = "github.com@tett23"
kind = "user"
name = "tett23"
parent = "github.com"
object = "` + id + `"
`,
		"bad object": `[[namespace]]
path = "github.com"
kind = "domain"
name = "github.com"
object = "nope"
`,
		"wrong parent kind": `[[namespace]]
path = "github.com"
kind = "domain"
name = "github.com"
object = "` + id + `"

[[namespace]]
path = "github.com@ckusro-core"
kind = "repository"
name = "ckusro-core"
parent = "github.com"
object = "` + id + `"
`,
		"path disagrees with chain": `[[namespace]]
path = "example.org"
kind = "domain"
name = "github.com"
object = "` + id + `"
`,
	}
	for name, data := range tables {
		t.Run(name, func(t *testing.T) {
			if err := os.WriteFile(filepath.Join(r.Dir, namespaceFile), []byte(data), 0o644); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			if _, err := r.Namespaces(); !errors.Is(err, ErrCorruptTable) {
				t.Errorf("Namespaces error = %v, want %v", err, ErrCorruptTable)
			}
		})
	}
}

func TestRegisterFragment_LogsRegistration(t *testing.T) {
	r := initRepo(t)
	core, logs := observer.New(zapcore.InfoLevel)
	r.SetLogger(zap.New(core))

	id := writeBlob(t, r, "readme\n")
	if _, err := r.RegisterFragment(context.Background(), "github.com@tett23:ckusro-core", id); err != nil {
		t.Fatalf("RegisterFragment: %v", err)
	}

	entries := logs.FilterMessage("registered namespace").All()
	if len(entries) != 1 {
		t.Fatalf("got %d registration log entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["fragment"] != "github.com@tett23:ckusro-core" {
		t.Errorf("fragment field = %v", fields["fragment"])
	}
	if fields["object"] != id.String() {
		t.Errorf("object field = %v, want %s", fields["object"], id)
	}
	if fields["repo"] != r.RootDir {
		t.Errorf("repo field = %v, want %s", fields["repo"], r.RootDir)
	}
}

func TestRegisterFragment_ConcurrentLogOrder(t *testing.T) {
	r := initRepo(t)
	ctx := context.Background()
	const fragment = "github.com@tett23:ckusro-core"

	const n = 8
	ids := make([]object.Hash, n)
	for i := range ids {
		ids[i] = writeBlob(t, r, "revision "+string(rune('a'+i)))
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := r.RegisterFragment(ctx, fragment, ids[i]); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("RegisterFragment: %v", err)
	}

	entries, err := r.ReadReflog(0)
	if err != nil {
		t.Fatalf("ReadReflog: %v", err)
	}
	if len(entries) != n {
		t.Fatalf("reflog has %d entries, want %d", len(entries), n)
	}

	// Oldest entry starts from nothing and each entry continues the one
	// before it; the newest matches the table.
	if entries[n-1].OldID != object.ZeroHash {
		t.Errorf("oldest entry OldID = %s, want zero", entries[n-1].OldID)
	}
	for i := 0; i < n-1; i++ {
		if entries[i].OldID != entries[i+1].NewID {
			t.Errorf("entry %d OldID = %s, want %s", i, entries[i].OldID, entries[i+1].NewID)
		}
	}
	ref, err := r.Resolve(fragment)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ref.Ref().ObjectID() != entries[0].NewID {
		t.Errorf("table points at %s, newest log entry at %s", ref.Ref().ObjectID(), entries[0].NewID)
	}
}
