package closure

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/matzehuels/refcheck/pkg/artifact"
	"github.com/matzehuels/refcheck/pkg/errors"
	"github.com/matzehuels/refcheck/pkg/sandbox"
)

// fakeFacility serves a dependency graph from memory. Artifacts are keyed by
// location, resolutions by declaration name.
type fakeFacility struct {
	artifacts map[string][]artifact.Declaration
	resolve   map[string]sandbox.Outcome
	panics    map[string]bool
	loadErr   map[string]error

	createErr  error
	destroyErr error

	created   int
	destroyed int
	live      int
	maxLive   int
	loads     []string
	resolved  []string
}

func newFake() *fakeFacility {
	return &fakeFacility{
		artifacts: make(map[string][]artifact.Declaration),
		resolve:   make(map[string]sandbox.Outcome),
		panics:    make(map[string]bool),
		loadErr:   make(map[string]error),
	}
}

// add registers an artifact at loc whose declarations are deps, and makes
// the declaration name of loc resolve to it.
func (f *fakeFacility) add(loc string, deps ...string) {
	decls := make([]artifact.Declaration, len(deps))
	for i, d := range deps {
		decls[i] = artifact.Declaration{Name: d}
	}
	f.artifacts[loc] = decls
	f.resolve[filepath.Base(loc)] = sandbox.Resolved(loc)
}

func (f *fakeFacility) Create(_ context.Context, name, baseDir string) (sandbox.Context, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created++
	f.live++
	if f.live > f.maxLive {
		f.maxLive = f.live
	}
	return &fakeContext{f: f, id: fmt.Sprintf("ctx-%d", f.created), name: name, baseDir: baseDir}, nil
}

func (f *fakeFacility) loadCount(loc string) int {
	n := 0
	for _, l := range f.loads {
		if l == loc {
			n++
		}
	}
	return n
}

type fakeContext struct {
	f         *fakeFacility
	id        string
	name      string
	baseDir   string
	destroyed bool
}

func (c *fakeContext) ID() string      { return c.id }
func (c *fakeContext) Name() string    { return c.name }
func (c *fakeContext) BaseDir() string { return c.baseDir }

func (c *fakeContext) LoadFromPath(_ context.Context, path string) (*artifact.Artifact, error) {
	c.f.loads = append(c.f.loads, path)
	if err := c.f.loadErr[path]; err != nil {
		return nil, err
	}
	deps, ok := c.f.artifacts[path]
	if !ok {
		return nil, errors.New(errors.ErrCodeArtifactNotFound, "%s not registered", path)
	}
	return &artifact.Artifact{Path: path, Name: filepath.Base(path), Deps: deps}, nil
}

func (c *fakeContext) Resolve(_ context.Context, d artifact.Declaration) (sandbox.Outcome, error) {
	c.f.resolved = append(c.f.resolved, d.Name)
	if c.f.panics[d.Name] {
		panic("resolver exploded")
	}
	if out, ok := c.f.resolve[d.Name]; ok {
		return out, nil
	}
	return sandbox.NotFound(), nil
}

func (c *fakeContext) Destroy() error {
	if c.destroyed {
		return nil
	}
	c.destroyed = true
	c.f.destroyed++
	c.f.live--
	return c.f.destroyErr
}

// recorder captures reporter events as strings.
type recorder struct {
	events []string
}

func (r *recorder) BeginAction(name string) { r.events = append(r.events, "begin "+name) }
func (r *recorder) CompleteAction(ok bool)   { r.events = append(r.events, fmt.Sprintf("end %v", ok)) }
func (r *recorder) Detail(text string)       { r.events = append(r.events, "detail") }

// place creates an empty file called name under dir and returns its
// canonical location.
func place(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	return sandbox.Canonical(p)
}

func artifactDecl(name, sig string) artifact.Declaration {
	return artifact.Declaration{Name: name, Signature: sig}
}
