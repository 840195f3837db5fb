package sandbox

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"runtime/debug"

	"github.com/matzehuels/refcheck/pkg/artifact"
	"github.com/matzehuels/refcheck/pkg/errors"
)

// WorkerCommand is the hidden subcommand that runs [Serve] in a child process.
const WorkerCommand = "__sandbox-worker"

// WorkerArgs returns the flags the worker subcommand expects.
func WorkerArgs(name, baseDir string, searchPaths []string) []string {
	args := []string{"--name", name, "--base", baseDir}
	for _, p := range searchPaths {
		args = append(args, "--search-path", p)
	}
	return args
}

// Serve creates one context from f and answers requests read from r until a
// destroy request or end of input. The context is destroyed on every exit.
func Serve(ctx context.Context, r io.Reader, w io.Writer, f Facility, name, baseDir string) error {
	enc := json.NewEncoder(w)
	dec := json.NewDecoder(bufio.NewReader(r))

	sc, err := f.Create(ctx, name, baseDir)
	if err != nil {
		_ = enc.Encode(response{Error: toWire(err)})
		return err
	}
	if err := enc.Encode(response{Ready: true, ID: sc.ID()}); err != nil {
		_ = sc.Destroy()
		return err
	}

	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			derr := sc.Destroy()
			if stderrors.Is(err, io.EOF) {
				return derr
			}
			return stderrors.Join(err, derr)
		}

		var resp response
		switch req.Op {
		case opLoad:
			a, err := sc.LoadFromPath(ctx, req.Path)
			resp.Artifact, resp.Error = a, toWire(err)
		case opResolve:
			if req.Dependency == nil {
				resp.Error = toWire(errors.New(errors.ErrCodeInvalidInput, "resolve request without dependency"))
				break
			}
			resp = serveResolve(ctx, sc, *req.Dependency)
		case opDestroy:
			derr := sc.Destroy()
			if err := enc.Encode(response{Error: toWire(derr)}); err != nil {
				return err
			}
			return derr
		default:
			resp.Error = toWire(errors.New(errors.ErrCodeInvalidInput, "unknown operation %q", req.Op))
		}

		if err := enc.Encode(resp); err != nil {
			_ = sc.Destroy()
			return err
		}
	}
}

// serveResolve answers one resolve request. A panic in the context becomes
// an evaluation failure so the worker keeps serving.
func serveResolve(ctx context.Context, sc Context, d artifact.Declaration) (resp response) {
	defer func() {
		if r := recover(); r != nil {
			resp = response{Outcome: toWireOutcome(Failed(errors.New(errors.ErrCodeEvaluation,
				"resolving %s panicked: %v\n%s", d.Name, r, debug.Stack())))}
		}
	}()
	out, err := sc.Resolve(ctx, d)
	if err != nil {
		return response{Error: toWire(err)}
	}
	return response{Outcome: toWireOutcome(out)}
}
