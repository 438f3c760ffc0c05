package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/errors"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFiles  []string
	ReportURL string

	// load and open build the App; replaced in tests
	load func(opts *RootOptions) (*config.Config, error)
	open func(ctx context.Context, cfg *config.Config, scope scope, out io.Writer) (*App, error)
}

// NewRootCommand creates the root command for the fern CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{load: loadConfig, open: openApp})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fern",
		Short: "fern - city reconciliation between the graph and canonical stores",
		Long: `Resolve, synchronize, audit and gate City records between the graph store
and the canonical Postgres store. Every stage is a stand-alone run that writes
one JSON report.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringSliceVar(&opts.EnvFiles, "env-file", []string{".env"}, "dotenv files to load before reading the environment")
	cmd.PersistentFlags().StringVar(&opts.ReportURL, "report-url", "", "report location, overrides REPORT_URL")

	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewBackfillCommand(opts))
	cmd.AddCommand(NewNormalizeCommand(opts))
	cmd.AddCommand(NewShadowCommand(opts))
	cmd.AddCommand(NewGateCommand(opts))
	cmd.AddCommand(NewPipelineCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return execute(ctx, NewRootCommand(), args, stdout, stderr)
}

func execute(ctx context.Context, cmd *cobra.Command, args []string, stdout, stderr io.Writer) int {
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	switch {
	case stderrors.Is(err, ErrGateFailed):
		fmt.Fprintln(stderr, "delta gate failed")
	case errors.IsEnvironmentGuardError(err):
		fmt.Fprintf(stderr, "refused: %v\n", err)
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
	}
	return 1
}
