package closure

import (
	"context"
	stderrors "errors"
	"runtime/debug"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/refcheck/pkg/artifact"
	"github.com/matzehuels/refcheck/pkg/errors"
	"github.com/matzehuels/refcheck/pkg/sandbox"
	"github.com/matzehuels/refcheck/pkg/trust"
)

// Failure is one dependency that did not resolve.
type Failure struct {
	// Artifact is the location of the artifact that declared the dependency.
	Artifact   string
	Dependency artifact.Declaration
	Kind       sandbox.Kind
	Err        error
}

// Reason returns a short human-readable cause.
func (f Failure) Reason() string {
	if f.Kind == sandbox.KindNotFound {
		return "not found"
	}
	if f.Err == nil {
		return f.Kind.String()
	}
	return reason(f.Err)
}

// reason joins the user message of err with those of its causes.
func reason(err error) string {
	var e *errors.Error
	if !stderrors.As(err, &e) {
		return err.Error()
	}
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + reason(e.Cause)
}

// ProbeResult is the outcome of probing one artifact.
type ProbeResult struct {
	Artifact *artifact.Artifact
	// Discovered lists resolved locations in declaration order.
	Discovered []string
	// Skipped lists declarations exempted by the trust table.
	Skipped  []artifact.Declaration
	Failures []Failure
	// OK is true when every declaration that was not skipped resolved.
	OK bool
}

// Prober resolves the direct dependencies of a single artifact.
type Prober struct {
	Trust    *trust.Table
	Reporter Reporter
	// Verbose reports successful resolutions too. Failures are always
	// reported.
	Verbose bool
	Logger  *log.Logger
}

// Probe loads location into sc and tries to resolve each declared
// dependency in order. Failing to load the artifact, or a broken context,
// is returned as an error; unresolved dependencies are not.
func (p *Prober) Probe(ctx context.Context, sc sandbox.Context, location string) (*ProbeResult, error) {
	logger := p.Logger
	if logger == nil {
		logger = log.Default()
	}
	rep := orNop(p.Reporter)

	a, err := sc.LoadFromPath(ctx, location)
	if err != nil {
		return nil, err
	}
	logger.Debug("probing", "artifact", a.Name, "deps", len(a.Deps), "context", sc.ID())

	res := &ProbeResult{Artifact: a, OK: true}
	for _, d := range a.Deps {
		if rule, ok := p.Trust.Match(d); ok {
			logger.Debug("trusted, skipping", "dep", d.Name, "rule", rule.String())
			res.Skipped = append(res.Skipped, d)
			continue
		}

		action := "Testing " + d.String()
		if p.Verbose {
			rep.BeginAction(action)
		}
		out, err := resolveOne(ctx, sc, d)
		if err != nil {
			if p.Verbose {
				rep.CompleteAction(false)
			}
			return nil, err
		}

		if out.OK() {
			res.Discovered = append(res.Discovered, out.Location)
			if p.Verbose {
				rep.CompleteAction(true)
			}
			continue
		}

		res.OK = false
		f := Failure{Artifact: location, Dependency: d, Kind: out.Kind, Err: out.Err}
		if out.Kind == sandbox.KindNotFound && f.Err == nil {
			f.Err = errors.New(errors.ErrCodeDependencyNotFound, "%s not found in search path", d.Name)
		}
		res.Failures = append(res.Failures, f)

		if !p.Verbose {
			rep.BeginAction(action)
		}
		if out.Kind == sandbox.KindEvalError && out.Err != nil {
			rep.Detail(out.Err.Error())
		}
		rep.CompleteAction(false)
		logger.Debug("dependency failed", "artifact", a.Name, "dep", d.Name, "kind", out.Kind, "err", f.Err)
	}
	return res, nil
}

// resolveOne turns a panic inside the sandbox into an evaluation failure so
// one bad dependency cannot take the traversal down.
func resolveOne(ctx context.Context, sc sandbox.Context, d artifact.Declaration) (out sandbox.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = sandbox.Failed(errors.New(errors.ErrCodeEvaluation,
				"resolving %s panicked: %v\n%s", d.Name, r, debug.Stack()))
			err = nil
		}
	}()
	out, err = sc.Resolve(ctx, d)
	if err == nil && out.Kind == sandbox.KindResolved && out.Location == "" {
		out = sandbox.Failed(errors.New(errors.ErrCodeEvaluation, "%s resolved without a location", d.Name))
	}
	return out, err
}
