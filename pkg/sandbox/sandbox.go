// Package sandbox provides isolated evaluation contexts for probing an
// artifact's dependencies.
//
// A [Facility] creates one [Context] per artifact. The context is scoped to
// the artifact's directory, loads the artifact, resolves its declarations
// against a loader search path, and is destroyed when the probe is done.
// Destroy releases every file handle the context opened.
//
// Two facilities are provided:
//
//   - [Local]: contexts live inside the calling process.
//   - [Process]: every context is a child process speaking a line-delimited
//     JSON protocol over stdio (see [Serve]). The child is the same binary
//     started with a hidden worker subcommand.
//
// # Outcomes
//
// Resolving a declaration yields an [Outcome], not an error. Missing and
// unusable dependencies are expected, frequent results. The error return of
// [Context.Resolve] is reserved for failures of the context itself.
package sandbox

import (
	"context"
	"fmt"

	"github.com/matzehuels/refcheck/pkg/artifact"
)

// Facility creates isolated evaluation contexts.
type Facility interface {
	// Create returns a new context named name whose base directory is
	// baseDir. Errors indicate an environment problem.
	Create(ctx context.Context, name, baseDir string) (Context, error)
}

// Context is one isolated evaluation context.
//
// The first artifact loaded into a context is its owner; Resolve searches on
// the owner's behalf using its RPATH, RUNPATH, class and machine.
type Context interface {
	// ID uniquely identifies the context for log correlation.
	ID() string
	// Name is the name given to Create.
	Name() string
	// BaseDir is the directory the context is scoped to.
	BaseDir() string
	// LoadFromPath opens the artifact at path inside the context.
	LoadFromPath(ctx context.Context, path string) (*artifact.Artifact, error)
	// Resolve locates the dependency d. The returned error is non-nil only
	// when the context itself failed.
	Resolve(ctx context.Context, d artifact.Declaration) (Outcome, error)
	// Destroy releases all resources. It is idempotent.
	Destroy() error
}

// Kind classifies a resolution outcome.
type Kind int

const (
	KindResolved  Kind = iota // Dependency found and loadable
	KindNotFound              // No candidate anywhere on the search path
	KindEvalError             // A candidate exists but cannot be used
)

func (k Kind) String() string {
	switch k {
	case KindResolved:
		return "resolved"
	case KindNotFound:
		return "not found"
	case KindEvalError:
		return "evaluation failed"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Outcome is the result of resolving one declaration.
type Outcome struct {
	Kind     Kind
	Location string // Canonical path; set for KindResolved
	Err      error  // Diagnostic detail; set for KindEvalError
}

// Resolved returns a successful outcome at location.
func Resolved(location string) Outcome {
	return Outcome{Kind: KindResolved, Location: location}
}

// NotFound returns the outcome for a dependency that is nowhere on the path.
func NotFound() Outcome {
	return Outcome{Kind: KindNotFound}
}

// Failed returns the outcome for a dependency that exists but is unusable.
func Failed(err error) Outcome {
	return Outcome{Kind: KindEvalError, Err: err}
}

// OK reports whether the dependency resolved.
func (o Outcome) OK() bool { return o.Kind == KindResolved }
