// Package closure computes the transitive dependency closure of a binary
// artifact and reports which dependencies actually resolve.
//
// # Overview
//
// Two pieces do the work:
//
//   - [Prober] takes one artifact inside an isolated [sandbox.Context],
//     drops declarations the [trust.Table] exempts, and resolves the rest.
//     Per-dependency failures are collected, never returned as errors.
//   - [Resolver] walks the graph breadth first. Every artifact gets a fresh
//     context that is destroyed before the next one is created, and every
//     location is enqueued at most once.
//
// Progress is reported through a [Reporter] passed in by the caller. The
// package never writes to the terminal itself.
//
// # Usage
//
//	r := &closure.Resolver{
//	    Facility: sandbox.NewProcess(searchPaths, logger),
//	    Trust:    trust.Default(),
//	    Reporter: console,
//	}
//	res, err := r.Resolve(ctx, "/opt/app/bin/server")
//	if err != nil {
//	    // startup or lifecycle failure
//	}
//	if !res.OK {
//	    for _, f := range res.Failures {
//	        fmt.Println(f.Artifact, f.Dependency, f.Reason())
//	    }
//	}
//
// # Errors
//
// [Resolver.Resolve] returns an error only for conditions that say nothing
// about the dependencies themselves: the root is missing or not a valid
// binary, the sandbox facility failed, or ctx was cancelled.
package closure
