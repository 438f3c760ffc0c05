package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/reconcile"
)

// NewPipelineCommand creates the command running the environment's stage sequence.
func NewPipelineCommand(rootOpts *RootOptions) *cobra.Command {
	var apply bool
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run every stage for the current environment in order",
		Long: `Run audit, backfill, normalize (outside production), shadow and gate
(production only) in order, stopping at the first failing stage.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, scopeStages, nil, func(ctx context.Context, app *App) error {
				return app.RunSequence(ctx, apply)
			})
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "let the shadow stage write merged fields back")
	return cmd
}

// RunSequence runs the stages of the configured environment, stopping at the first failure.
func (a *App) RunSequence(ctx context.Context, apply bool) error {
	for _, stage := range reconcile.Sequence(a.cfg.Environment()) {
		if err := a.RunStage(ctx, stage, apply); err != nil {
			return fmt.Errorf("pipeline stopped at %s: %w", stage, err)
		}
	}
	return nil
}
