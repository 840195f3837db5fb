package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/refcheck/pkg/closure"
	"github.com/matzehuels/refcheck/pkg/errors"
	"github.com/matzehuels/refcheck/pkg/sandbox"
)

// sandboxKind selects the isolation backend.
type sandboxKind string

const (
	sandboxProcess   sandboxKind = "process"
	sandboxInProcess sandboxKind = "inprocess"
)

func parseSandboxKind(s string) (sandboxKind, error) {
	switch k := sandboxKind(s); k {
	case sandboxProcess, sandboxInProcess:
		return k, nil
	}
	return "", errors.New(errors.ErrCodeInvalidInput, "unknown sandbox %q (want %s or %s)", s, sandboxProcess, sandboxInProcess)
}

// checkOptions holds the flags of the root command.
type checkOptions struct {
	verbose     bool
	timeout     time.Duration
	sandbox     string
	searchPaths []string
	ignoreEnv   bool
	configPath  string
}

// applyConfig fills options the user did not set on the command line.
func (o *checkOptions) applyConfig(cmd *cobra.Command, cfg *Config) {
	if cfg == nil {
		return
	}
	if !cmd.Flags().Changed("sandbox") && cfg.Sandbox != "" {
		o.sandbox = cfg.Sandbox
	}
	if !cmd.Flags().Changed("timeout") && cfg.Timeout > 0 {
		o.timeout = time.Duration(cfg.Timeout)
	}
	o.searchPaths = append(o.searchPaths, cfg.SearchPaths...)
}

// effectiveSearchPaths returns flag and config paths followed by
// LD_LIBRARY_PATH, unless the environment is ignored.
func (o *checkOptions) effectiveSearchPaths() []string {
	paths := append([]string(nil), o.searchPaths...)
	if !o.ignoreEnv {
		paths = append(paths, sandbox.EnvSearchPath(os.Getenv("LD_LIBRARY_PATH"))...)
	}
	return paths
}

func (c *CLI) addCheckFlags(cmd *cobra.Command, opts *checkOptions) {
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "report every dependency, not only failures")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "give up waiting after this long (0 waits forever)")
	cmd.Flags().StringVar(&opts.sandbox, "sandbox", string(sandboxProcess), "isolation backend: process or inprocess")
	cmd.Flags().StringArrayVar(&opts.searchPaths, "search-path", nil, "extra library directory, searched before LD_LIBRARY_PATH (repeatable)")
	cmd.Flags().BoolVar(&opts.ignoreEnv, "ignore-env", false, "do not search LD_LIBRARY_PATH")
	cmd.Flags().StringVar(&opts.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/refcheck/config.toml)")
}

// runCheck resolves the closure of one artifact and prints the verdict.
func (c *CLI) runCheck(cmd *cobra.Command, args []string, opts *checkOptions) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	path := ""
	if len(args) > 0 {
		path = args[0]
	} else {
		if !c.interactive() {
			return errors.New(errors.ErrCodeInvalidInput, "no artifact given; pass a path or run from a terminal")
		}
		answer, err := runPrompt(ctx, c.Stdin, c.Stdout)
		if err != nil {
			return err
		}
		path, opts.verbose = answer.Path, answer.Verbose
	}

	cfg, err := resolveConfig(opts.configPath)
	if err != nil {
		return err
	}
	opts.applyConfig(cmd, cfg)
	kind, err := parseSandboxKind(opts.sandbox)
	if err != nil {
		return err
	}
	table, err := cfg.trustTable()
	if err != nil {
		return err
	}

	loc, err := closure.Validate(path)
	if err != nil {
		return err
	}

	console := NewConsole(c.Stdout)
	console.Println("Start searching for references for artifact %s...", filepath.Base(loc))

	resolver := &closure.Resolver{
		Facility: c.facility(kind, opts, logger),
		Trust:    table,
		Reporter: console,
		Verbose:  opts.verbose,
		Logger:   logger,
	}
	logger.Debug("resolving", "artifact", loc, "sandbox", kind, "trust_rules", table.Len(), "timeout", opts.timeout)

	var spin *Spinner
	if c.stdoutIsTerminal() {
		spin = newSpinnerWithContext(ctx, "resolving", console)
		spin.Start()
		defer spin.Stop()
	}

	prog := newProgress(logger)
	res, err := waitFor(ctx, opts.timeout, func(ctx context.Context) (*closure.Result, error) {
		return resolver.Resolve(ctx, loc)
	})
	if spin != nil {
		spin.Stop()
	}
	console.Clear()
	if errors.Is(err, errors.ErrCodeTimeout) {
		console.Timeout()
		return err
	}
	if err != nil {
		return err
	}
	logger.Debug("traversal finished", "artifacts", len(res.Visited), "probes", res.Probes)

	console.Println("")
	printSummary(c.Stdout, console.th, res)
	prog.done(fmt.Sprintf("Checked %d artifacts", len(res.Visited)))
	if !res.OK {
		return errors.New(errors.ErrCodeDependencyNotFound, "%d dependencies could not be resolved", len(res.Failures))
	}
	return nil
}

// facility builds the sandbox backend.
func (c *CLI) facility(kind sandboxKind, opts *checkOptions, logger *log.Logger) sandbox.Facility {
	if c.Facility != nil {
		return c.Facility
	}
	paths := opts.effectiveSearchPaths()
	if kind == sandboxInProcess {
		return &sandbox.Local{SearchPaths: paths, Logger: logger}
	}
	p := sandbox.NewProcess(paths, logger)
	if c.debug {
		p.Args = append(p.Args, "--debug")
	}
	return p
}
