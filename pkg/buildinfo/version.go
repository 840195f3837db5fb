// Package buildinfo holds the version stamped into the refcheck binary.
//
// The sandbox worker is the same executable re-run as a hidden subcommand,
// so parent and worker always report the same values. Set them at link time:
//
//	go build -ldflags "-X github.com/matzehuels/refcheck/pkg/buildinfo.Version=v1.0.0 \
//	    -X github.com/matzehuels/refcheck/pkg/buildinfo.Commit=$(git rev-parse HEAD) \
//	    -X github.com/matzehuels/refcheck/pkg/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)" \
//	    ./cmd/refcheck
package buildinfo

import "fmt"

var (
	// Version is the release tag, "dev" for local builds.
	Version = "dev"
	// Commit is the git commit SHA.
	Commit = "none"
	// Date is the build timestamp.
	Date = "unknown"
)

// String returns the formatted build information.
func String() string {
	return fmt.Sprintf("version: %s\ncommit: %s\nbuilt: %s", Version, Commit, Date)
}

// Template returns the version template string for cobra.
func Template() string {
	return fmt.Sprintf("{{.Name}} version %s\ncommit: %s\nbuilt: %s\n", Version, Commit, Date)
}

// Fields returns the build information as structured log key/value pairs.
func Fields() []any {
	return []any{"version", Version, "commit", Commit, "built", Date}
}
