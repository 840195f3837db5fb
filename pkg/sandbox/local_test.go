package sandbox

import (
	"context"
	"debug/elf"
	"os"
	"path/filepath"
	"testing"

	"github.com/matzehuels/refcheck/internal/testutil/elftest"
	"github.com/matzehuels/refcheck/pkg/artifact"
	"github.com/matzehuels/refcheck/pkg/errors"
)

func noSystemDirs(elf.Class) []string { return nil }

func newLocal(searchPaths ...string) *Local {
	return &Local{SearchPaths: searchPaths, SystemDirs: noSystemDirs}
}

func mustCreate(t *testing.T, f Facility, baseDir string) Context {
	t.Helper()
	sc, err := f.Create(context.Background(), filepath.Base(baseDir), baseDir)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { _ = sc.Destroy() })
	return sc
}

func mustLoad(t *testing.T, sc Context, path string) *artifact.Artifact {
	t.Helper()
	a, err := sc.LoadFromPath(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	return a
}

func resolve(t *testing.T, sc Context, name string) Outcome {
	t.Helper()
	out, err := sc.Resolve(context.Background(), artifact.Declaration{Name: name})
	if err != nil {
		t.Fatalf("Resolve(%s): %v", name, err)
	}
	return out
}

func TestLocalResolveBaseDir(t *testing.T) {
	dir := t.TempDir()
	app := elftest.Write(t, dir, "app", elftest.Spec{Needed: []string{"libfoo.so.1"}})
	lib := elftest.Write(t, dir, "libfoo.so.1", elftest.Spec{})

	sc := mustCreate(t, newLocal(), dir)
	mustLoad(t, sc, app)

	out := resolve(t, sc, "libfoo.so.1")
	if out.Kind != KindResolved {
		t.Fatalf("Kind = %v (%v), want resolved", out.Kind, out.Err)
	}
	if out.Location != Canonical(lib) {
		t.Errorf("Location = %q, want %q", out.Location, Canonical(lib))
	}
	if !out.OK() {
		t.Error("OK() = false for resolved outcome")
	}
}

func TestLocalResolveNotFound(t *testing.T) {
	dir := t.TempDir()
	app := elftest.Write(t, dir, "app", elftest.Spec{Needed: []string{"libmissing.so.1"}})

	sc := mustCreate(t, newLocal(), dir)
	mustLoad(t, sc, app)

	out := resolve(t, sc, "libmissing.so.1")
	if out.Kind != KindNotFound {
		t.Errorf("Kind = %v, want not found", out.Kind)
	}
	if out.OK() {
		t.Error("OK() = true for not found outcome")
	}
}

func TestLocalResolveSearchOrder(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "bin")
	runDir := filepath.Join(root, "run")
	rDir := filepath.Join(root, "r")
	envDir := filepath.Join(root, "env")

	for _, d := range []string{runDir, rDir, envDir, base} {
		elftest.Write(t, d, "libx.so", elftest.Spec{})
	}

	tests := []struct {
		name   string
		spec   elftest.Spec
		search []string
		want   string
	}{
		{"rpath wins without runpath", elftest.Spec{RPath: rDir}, []string{envDir}, rDir},
		{"search path before runpath", elftest.Spec{RunPath: runDir}, []string{envDir}, envDir},
		{"runpath disables rpath", elftest.Spec{RPath: rDir, RunPath: runDir}, nil, runDir},
		{"base dir last", elftest.Spec{}, nil, base},
		{"origin expansion", elftest.Spec{RunPath: "$ORIGIN/../run"}, nil, runDir},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := tt.spec
			spec.Needed = []string{"libx.so"}
			app := elftest.Write(t, base, "app", spec)

			sc := mustCreate(t, newLocal(tt.search...), base)
			mustLoad(t, sc, app)

			out := resolve(t, sc, "libx.so")
			want := Canonical(filepath.Join(tt.want, "libx.so"))
			if out.Location != want {
				t.Errorf("Location = %q, want %q", out.Location, want)
			}
		})
	}
}

func TestLocalResolveSkipsIncompatible(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "bin")
	armDir := filepath.Join(root, "arm")
	app := elftest.Write(t, base, "app", elftest.Spec{RunPath: armDir})
	elftest.Write(t, armDir, "libx.so", elftest.Spec{Machine: elf.EM_AARCH64})

	sc := mustCreate(t, newLocal(), base)
	mustLoad(t, sc, app)

	// Only an incompatible candidate exists.
	out := resolve(t, sc, "libx.so")
	if out.Kind != KindEvalError {
		t.Fatalf("Kind = %v, want evaluation error", out.Kind)
	}
	if !errors.Is(out.Err, errors.ErrCodeEvaluation) {
		t.Errorf("Err = %v, want EVALUATION_FAILED", out.Err)
	}

	// A compatible one later on the path wins.
	good := elftest.Write(t, base, "libx.so", elftest.Spec{})
	out = resolve(t, sc, "libx.so")
	if out.Kind != KindResolved || out.Location != Canonical(good) {
		t.Errorf("Outcome = %+v, want resolved at %s", out, good)
	}
}

func TestLocalResolveCorruptCandidate(t *testing.T) {
	dir := t.TempDir()
	app := elftest.Write(t, dir, "app", elftest.Spec{})
	if err := os.WriteFile(filepath.Join(dir, "libbad.so"), []byte("not an elf"), 0o644); err != nil {
		t.Fatal(err)
	}

	sc := mustCreate(t, newLocal(), dir)
	mustLoad(t, sc, app)

	out := resolve(t, sc, "libbad.so")
	if out.Kind != KindEvalError || out.Err == nil {
		t.Errorf("Outcome = %+v, want evaluation error with detail", out)
	}
}

func TestLocalResolvePathNames(t *testing.T) {
	dir := t.TempDir()
	app := elftest.Write(t, dir, "app", elftest.Spec{})
	lib := elftest.Write(t, filepath.Join(dir, "plugins"), "libp.so", elftest.Spec{})

	sc := mustCreate(t, newLocal(), dir)
	mustLoad(t, sc, app)

	if out := resolve(t, sc, "plugins/libp.so"); out.Location != Canonical(lib) {
		t.Errorf("relative: %+v", out)
	}
	if out := resolve(t, sc, lib); out.Location != Canonical(lib) {
		t.Errorf("absolute: %+v", out)
	}
	if out := resolve(t, sc, "plugins/"); out.Kind != KindEvalError {
		t.Errorf("malformed name: Kind = %v, want evaluation error", out.Kind)
	}
}

func TestLocalResolveWithoutOwner(t *testing.T) {
	sc := mustCreate(t, newLocal(), t.TempDir())
	out := resolve(t, sc, "libfoo.so")
	if out.Kind != KindEvalError {
		t.Errorf("Kind = %v, want evaluation error", out.Kind)
	}
}

func TestLocalCanonicalisesSymlinks(t *testing.T) {
	dir := t.TempDir()
	app := elftest.Write(t, dir, "app", elftest.Spec{})
	target := elftest.Write(t, dir, "libfoo.so.1.2.3", elftest.Spec{})
	if err := os.Symlink("libfoo.so.1.2.3", filepath.Join(dir, "libfoo.so.1")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	sc := mustCreate(t, newLocal(), dir)
	mustLoad(t, sc, app)

	if out := resolve(t, sc, "libfoo.so.1"); out.Location != Canonical(target) {
		t.Errorf("Location = %q, want %q", out.Location, Canonical(target))
	}
}

func TestLocalLoadErrors(t *testing.T) {
	dir := t.TempDir()
	sc := mustCreate(t, newLocal(), dir)

	_, err := sc.LoadFromPath(context.Background(), filepath.Join(dir, "missing"))
	if !errors.Is(err, errors.ErrCodeArtifactNotFound) {
		t.Errorf("missing: err = %v", err)
	}

	junk := filepath.Join(dir, "junk")
	if err := os.WriteFile(junk, []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = sc.LoadFromPath(context.Background(), "junk")
	if !errors.Is(err, errors.ErrCodeInvalidFormat) {
		t.Errorf("junk: err = %v", err)
	}
}

func TestLocalCreateRequiresDirectory(t *testing.T) {
	dir := t.TempDir()
	file := elftest.Write(t, dir, "app", elftest.Spec{})

	for _, base := range []string{filepath.Join(dir, "missing"), file} {
		if _, err := newLocal().Create(context.Background(), "x", base); !errors.Is(err, errors.ErrCodeContextLifecycle) {
			t.Errorf("Create(%s) err = %v, want CONTEXT_LIFECYCLE", base, err)
		}
	}
}

func TestLocalDestroy(t *testing.T) {
	dir := t.TempDir()
	app := elftest.Write(t, dir, "app", elftest.Spec{})

	sc, err := newLocal().Create(context.Background(), "app", dir)
	if err != nil {
		t.Fatal(err)
	}
	if sc.ID() == "" || sc.Name() != "app" || sc.BaseDir() != dir {
		t.Errorf("identity = %q %q %q", sc.ID(), sc.Name(), sc.BaseDir())
	}
	mustLoad(t, sc, app)

	if err := sc.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if err := sc.Destroy(); err != nil {
		t.Errorf("second Destroy: %v", err)
	}

	if _, err := sc.LoadFromPath(context.Background(), app); !errors.Is(err, errors.ErrCodeContextLifecycle) {
		t.Errorf("load after destroy: err = %v", err)
	}
	if _, err := sc.Resolve(context.Background(), artifact.Declaration{Name: "libx.so"}); !errors.Is(err, errors.ErrCodeContextLifecycle) {
		t.Errorf("resolve after destroy: err = %v", err)
	}
}

func TestContextIDsAreUnique(t *testing.T) {
	dir := t.TempDir()
	a := mustCreate(t, newLocal(), dir)
	b := mustCreate(t, newLocal(), dir)
	if a.ID() == b.ID() {
		t.Errorf("IDs collide: %s", a.ID())
	}
}
