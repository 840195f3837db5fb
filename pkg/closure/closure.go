package closure

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/refcheck/pkg/artifact"
	"github.com/matzehuels/refcheck/pkg/errors"
	"github.com/matzehuels/refcheck/pkg/sandbox"
	"github.com/matzehuels/refcheck/pkg/trust"
)

// Result summarises one traversal.
type Result struct {
	// OK is the AND of every probe's verdict.
	OK bool
	// Visited holds every enqueued location, in enqueue order. The root is
	// always first.
	Visited []string
	// Probes counts probe invocations.
	Probes   int
	Failures []Failure
}

// Resolver walks the dependency closure of an artifact.
type Resolver struct {
	Facility sandbox.Facility
	// Trust exempts declarations from probing. Nil trusts nothing.
	Trust    *trust.Table
	Reporter Reporter
	Verbose  bool
	Logger   *log.Logger
}

// Resolve probes root and everything it transitively resolves to. Each
// location is probed once, inside its own sandbox context.
//
// Dependency failures never stop the walk; they show up in Result.Failures
// and clear Result.OK. An error is returned when root cannot be located,
// when the first probe cannot open it, when a context cannot be created or
// destroyed, or when ctx is done. The partial result is returned alongside
// errors raised after the walk started.
func (r *Resolver) Resolve(ctx context.Context, root string) (*Result, error) {
	loc, err := Locate(root)
	if err != nil {
		return nil, err
	}
	logger := r.Logger
	if logger == nil {
		logger = log.Default()
	}
	if r.Facility == nil {
		return nil, errors.New(errors.ErrCodeInternal, "resolver has no sandbox facility")
	}
	p := &Prober{Trust: r.Trust, Reporter: r.Reporter, Verbose: r.Verbose, Logger: logger}

	queue := []string{loc}
	visited := map[string]bool{loc: true}
	res := &Result{OK: true, Visited: []string{loc}}

	start := time.Now()
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		cur := queue[0]
		queue = queue[1:]

		pr, err := r.visit(ctx, p, cur)
		if err != nil {
			if cur != loc && errors.IsStartup(err) {
				err = errors.Wrap(errors.ErrCodeEvaluation, err, "probe dependency %s", filepath.Base(cur))
			}
			return res, err
		}
		res.Probes++
		res.OK = res.OK && pr.OK
		res.Failures = append(res.Failures, pr.Failures...)

		for _, dep := range pr.Discovered {
			if visited[dep] {
				continue
			}
			visited[dep] = true
			res.Visited = append(res.Visited, dep)
			queue = append(queue, dep)
		}
	}

	logger.Debug("closure resolved", "root", loc, "artifacts", len(res.Visited),
		"failures", len(res.Failures), "took", time.Since(start))
	return res, nil
}

// visit runs one probe inside a fresh context. The context is destroyed on
// every path out.
func (r *Resolver) visit(ctx context.Context, p *Prober, location string) (pr *ProbeResult, err error) {
	name := filepath.Base(location)
	sc, err := r.Facility.Create(ctx, name, filepath.Dir(location))
	if err != nil {
		if errors.GetCode(err) == "" {
			err = errors.Wrap(errors.ErrCodeContextLifecycle, err, "create context for %s", name)
		}
		return nil, err
	}
	defer func() {
		derr := sc.Destroy()
		if derr == nil || err != nil {
			return
		}
		pr = nil
		if errors.GetCode(derr) == "" {
			derr = errors.Wrap(errors.ErrCodeContextLifecycle, derr, "destroy context for %s", name)
		}
		err = derr
	}()

	rep := orNop(r.Reporter)
	rep.BeginAction("Processing " + name)
	pr, err = p.Probe(ctx, sc, location)
	if err != nil {
		rep.CompleteAction(false)
		return nil, err
	}
	rep.CompleteAction(pr.OK)
	return pr, nil
}

// Locate returns the canonical location of path, which must name an
// existing regular file.
func Locate(path string) (string, error) {
	if err := errors.ValidateArtifactPath(path); err != nil {
		return "", err
	}
	loc := sandbox.Canonical(path)
	info, err := os.Stat(loc)
	switch {
	case stderrors.Is(err, fs.ErrNotExist):
		return "", errors.New(errors.ErrCodeArtifactNotFound, "artifact %s could not be found", path)
	case stderrors.Is(err, fs.ErrPermission):
		return "", errors.Wrap(errors.ErrCodeArtifactUnreadable, err, "artifact %s is not readable", path)
	case err != nil:
		return "", errors.Wrap(errors.ErrCodeArtifactUnreadable, err, "stat %s", path)
	case !info.Mode().IsRegular():
		return "", errors.New(errors.ErrCodeInvalidFormat, "%s is not a valid binary", path)
	}
	return loc, nil
}

// Validate is Locate followed by a trial open of the artifact, so format
// problems surface before any context is created.
func Validate(path string) (string, error) {
	loc, err := Locate(path)
	if err != nil {
		return "", err
	}
	a, err := artifact.Open(loc)
	if err != nil {
		return "", err
	}
	return loc, a.Close()
}
