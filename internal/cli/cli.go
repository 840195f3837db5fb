// Package cli implements the refcheck command-line interface.
//
// refcheck walks the dependency closure of an ELF executable or shared
// object and reports every dependency that cannot be resolved where the
// artifact would run. The command is built with cobra; progress is rendered
// with lipgloss and diagnostics are logged with charmbracelet/log.
//
// # Commands
//
//   - refcheck [flags] [artifact]: check one artifact. Without an argument
//     on a terminal, an interactive prompt asks for the path.
//   - completion: generate shell completion scripts.
//   - __sandbox-worker: hidden; serves one sandbox context over stdio for
//     the process backend.
//
// # Exit codes
//
//	0    every dependency resolved
//	1    unresolved dependencies, timeout, or any other failure
//	2    the artifact is missing, unreadable, or not a valid binary
//	130  interrupted
package cli

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/matzehuels/refcheck/pkg/buildinfo"
	"github.com/matzehuels/refcheck/pkg/errors"
	"github.com/matzehuels/refcheck/pkg/sandbox"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = "refcheck"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitStartup     = 2
	ExitInterrupted = 130
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Facility replaces the sandbox chosen by --sandbox.
	Facility sandbox.Facility
	// Interactive reports whether the prompt may be shown. Nil checks
	// whether Stdin is a terminal.
	Interactive func() bool

	debug bool
}

// New creates a new CLI instance with a default logger writing to w.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: w,
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	opts := &checkOptions{}
	root := &cobra.Command{
		Use:   "refcheck [flags] [artifact]",
		Short: "refcheck verifies that every dependency of a binary resolves",
		Long: `refcheck walks the full dependency closure of an ELF executable or shared
object and reports every library that cannot be found or loaded, without
running the artifact.`,
		Version:       buildinfo.Version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := LogInfo
			if c.debug {
				level = LogDebug
			}
			c.SetLogLevel(level)
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			c.Logger.Debug("starting "+cmd.Name(), buildinfo.Fields()...)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runCheck(cmd, args, opts)
		},
	}
	root.SetVersionTemplate(buildinfo.Template())
	root.SetIn(c.Stdin)
	root.SetOut(c.Stdout)
	root.SetErr(c.Stderr)

	root.PersistentFlags().BoolVar(&c.debug, "debug", false, "enable debug logging")
	c.addCheckFlags(root, opts)

	root.AddCommand(c.completionCommand())
	root.AddCommand(c.workerCommand())

	return root
}

// Run executes the command line args and returns the process exit code.
// Errors are printed to Stderr, except unresolved dependencies, which the
// summary already lists.
func (c *CLI) Run(ctx context.Context, args []string) int {
	root := c.RootCommand()
	root.SetArgs(normalizeArgs(args))
	err := root.ExecuteContext(ctx)
	code := ExitCode(err)
	if err != nil && code != ExitInterrupted && !errors.Is(err, errors.ErrCodeDependencyNotFound) {
		printError(c.Stderr, newTheme(c.Stderr), "%s", errorMessage(err))
	}
	return code
}

// ExitCode maps a command error to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case stderrors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.IsStartup(err):
		return ExitStartup
	}
	return ExitFailure
}

// errorMessage phrases startup errors the way users expect and falls back
// to the full error otherwise.
func errorMessage(err error) string {
	switch errors.GetCode(err) {
	case errors.ErrCodeArtifactNotFound:
		return "Cannot find the specified file."
	case errors.ErrCodeInvalidFormat:
		return "The selected file is not a valid binary: " + errors.UserMessage(err)
	case errors.ErrCodeArtifactUnreadable:
		return "The selected file cannot be read: " + errors.UserMessage(err)
	}
	return err.Error()
}

// normalizeArgs accepts the historical single-dash -verbose spelling.
func normalizeArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if a == "-verbose" || strings.HasPrefix(a, "-verbose=") {
			a = "-" + a
		}
		out[i] = a
	}
	return out
}

// =============================================================================
// Terminal Detection
// =============================================================================

func (c *CLI) interactive() bool {
	if c.Interactive != nil {
		return c.Interactive()
	}
	return isTerminal(c.Stdin)
}

func (c *CLI) stdoutIsTerminal() bool {
	return isTerminal(c.Stdout)
}

func isTerminal(v any) bool {
	f, ok := v.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
