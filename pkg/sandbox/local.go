package sandbox

import (
	"context"
	"debug/elf"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/refcheck/pkg/artifact"
	"github.com/matzehuels/refcheck/pkg/errors"
)

// Local creates contexts inside the calling process.
//
// Resolution follows the dynamic loader's order, with the context's base
// directory standing in for the application base:
//
//  1. the owner's DT_RPATH, unless it also has DT_RUNPATH
//  2. SearchPaths (the LD_LIBRARY_PATH equivalent)
//  3. the owner's DT_RUNPATH
//  4. the context base directory
//  5. the system directories
//
// The first candidate that opens and matches the owner's class and machine
// wins. Candidates that exist but are unusable are skipped; if nothing wins
// the first such failure is reported as an evaluation error.
type Local struct {
	SearchPaths []string
	// SystemDirs returns the system directories for a class. Nil uses the
	// package level SystemDirs.
	SystemDirs func(elf.Class) []string
	Logger     *log.Logger
}

// Create returns a new in-process context. baseDir must be a directory.
func (l *Local) Create(ctx context.Context, name, baseDir string) (Context, error) {
	info, err := os.Stat(baseDir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeContextLifecycle, err, "create context %s", name)
	}
	if !info.IsDir() {
		return nil, errors.New(errors.ErrCodeContextLifecycle, "create context %s: base %s is not a directory", name, baseDir)
	}

	system := l.SystemDirs
	if system == nil {
		system = SystemDirs
	}
	logger := l.Logger
	if logger == nil {
		logger = log.Default()
	}

	c := &localContext{
		id:      uuid.NewString(),
		name:    name,
		baseDir: filepath.Clean(baseDir),
		search:  append([]string(nil), l.SearchPaths...),
		system:  system,
		logger:  logger,
	}
	logger.Debug("context created", "id", c.id, "name", name, "base", c.baseDir)
	return c, nil
}

type localContext struct {
	id      string
	name    string
	baseDir string
	search  []string
	system  func(elf.Class) []string
	logger  *log.Logger

	mu        sync.Mutex
	owner     *artifact.Artifact
	open      []*artifact.Artifact
	destroyed bool
}

func (c *localContext) ID() string      { return c.id }
func (c *localContext) Name() string    { return c.name }
func (c *localContext) BaseDir() string { return c.baseDir }

func (c *localContext) LoadFromPath(ctx context.Context, path string) (*artifact.Artifact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil, c.destroyedErr()
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(c.baseDir, path)
	}
	a, err := artifact.Open(path)
	if err != nil {
		return nil, err
	}
	c.open = append(c.open, a)
	if c.owner == nil {
		c.owner = a
	}
	c.logger.Debug("artifact loaded", "id", c.id, "path", path, "deps", len(a.Deps))
	return a, nil
}

func (c *localContext) Resolve(ctx context.Context, d artifact.Declaration) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return Outcome{}, c.destroyedErr()
	}
	if c.owner == nil {
		return Failed(errors.New(errors.ErrCodeEvaluation, "context %s has no artifact loaded", c.name)), nil
	}
	if err := errors.ValidateLibraryName(d.Name); err != nil {
		return Failed(err), nil
	}

	var skipped error
	for _, p := range c.candidates(d.Name) {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}

		cand, err := artifact.Open(p)
		if err != nil {
			c.logger.Debug("skipping candidate", "dep", d.Name, "path", p, "err", err)
			if skipped == nil {
				skipped = errors.Wrap(errors.ErrCodeEvaluation, err, "load %s", d.Name)
			}
			continue
		}
		if !c.owner.Compatible(cand) {
			cand.Close()
			c.logger.Debug("skipping incompatible candidate", "dep", d.Name, "path", p)
			if skipped == nil {
				skipped = errors.New(errors.ErrCodeEvaluation, "%s is %s/%s, %s needs %s/%s",
					p, cand.Class, cand.Machine, c.owner.Name, c.owner.Class, c.owner.Machine)
			}
			continue
		}

		c.open = append(c.open, cand)
		loc := Canonical(p)
		c.logger.Debug("dependency resolved", "dep", d.Name, "path", loc)
		return Resolved(loc), nil
	}

	if skipped != nil {
		return Failed(skipped), nil
	}
	return NotFound(), nil
}

// candidates lists the paths tried for name, in search order.
func (c *localContext) candidates(name string) []string {
	if strings.Contains(name, "/") {
		if filepath.IsAbs(name) {
			return []string{filepath.Clean(name)}
		}
		return []string{filepath.Join(c.baseDir, name)}
	}

	var dirs []string
	if len(c.owner.RunPath) == 0 {
		dirs = append(dirs, c.owner.RPath...)
	}
	dirs = append(dirs, c.search...)
	dirs = append(dirs, c.owner.RunPath...)
	dirs = append(dirs, c.baseDir)
	dirs = append(dirs, c.system(c.owner.Class)...)

	dirs = dedupe(dirs)
	paths := make([]string, len(dirs))
	for i, d := range dirs {
		paths[i] = filepath.Join(d, name)
	}
	return paths
}

func (c *localContext) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil
	}
	c.destroyed = true

	var errs []error
	for _, a := range c.open {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.open = nil
	c.owner = nil
	c.logger.Debug("context destroyed", "id", c.id, "name", c.name)

	if len(errs) > 0 {
		return errors.Wrap(errors.ErrCodeContextLifecycle, stderrors.Join(errs...), "destroy context %s", c.name)
	}
	return nil
}

func (c *localContext) destroyedErr() error {
	return errors.New(errors.ErrCodeContextLifecycle, "context %s already destroyed", c.name)
}

// Canonical returns the absolute, symlink-free form of path. When symlinks
// cannot be evaluated the cleaned absolute path is returned.
func Canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
