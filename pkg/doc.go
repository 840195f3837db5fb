// Package pkg provides the core libraries for refcheck.
//
// # Overview
//
// refcheck answers one question about a binary: will every library it
// needs, and every library those need, actually load where it is deployed?
// It never runs the binary. The pkg directory is organized as:
//
//  1. [artifact] - Opening ELF files and reading their dependency declarations
//  2. [trust] - The table of base-platform libraries that are never probed
//  3. [sandbox] - Isolated evaluation contexts, in-process or one child process each
//  4. [closure] - The breadth-first closure walk and per-artifact probe
//  5. [errors] - Coded errors shared by all of the above
//
// # Architecture
//
// One traversal flows like this:
//
//	root artifact
//	     ↓ closure.Locate
//	queue ← root
//	     ↓ for each location
//	sandbox.Facility.Create (scoped to the artifact's directory)
//	     ↓
//	closure.Prober: load, skip trusted, resolve the rest
//	     ↓
//	sandbox.Context.Destroy
//	     ↓
//	unseen locations → queue
//
// [artifact]: github.com/matzehuels/refcheck/pkg/artifact
// [trust]: github.com/matzehuels/refcheck/pkg/trust
// [sandbox]: github.com/matzehuels/refcheck/pkg/sandbox
// [closure]: github.com/matzehuels/refcheck/pkg/closure
// [errors]: github.com/matzehuels/refcheck/pkg/errors
package pkg
