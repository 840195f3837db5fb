package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/refcheck/pkg/errors"
	"github.com/matzehuels/refcheck/pkg/sandbox"
)

// workerCommand serves one sandbox context over stdin/stdout. The process
// sandbox starts it; it is not meant to be run by hand.
func (c *CLI) workerCommand() *cobra.Command {
	var (
		name        string
		base        string
		searchPaths []string
	)
	cmd := &cobra.Command{
		Use:    sandbox.WorkerCommand,
		Short:  "Serve a sandbox context over stdio",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if base == "" {
				return errors.New(errors.ErrCodeInvalidInput, "--base is required")
			}
			logger := loggerFromContext(cmd.Context())
			f := &sandbox.Local{SearchPaths: searchPaths, Logger: logger}
			return sandbox.Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), f, name, base)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "context name")
	cmd.Flags().StringVar(&base, "base", "", "context base directory")
	cmd.Flags().StringArrayVar(&searchPaths, "search-path", nil, "library search directory (repeatable)")
	return cmd
}
