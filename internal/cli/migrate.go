package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/database"
)

// NewMigrateCommand creates the command applying the canonical store migrations.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "migrate",
		Short:         "Apply the canonical store migrations",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, scopeDatabase, nil, func(ctx context.Context, app *App) error {
				return app.Migrate()
			})
		},
	}
}

// Migrate brings the canonical store to DB_MIGRATION_VERSION, or to the latest version when unset.
func (a *App) Migrate() error {
	service := database.NewMigrationService(a.logger, &database.MigrationConfig{
		MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
		Version:             uint(a.cfg.DatabaseMigrationVersion),
		Force:               a.cfg.DatabaseMigrationForce,
		AutoRollback:        a.cfg.DatabaseMigrationAutoRollback,
	})
	if err := service.MigratePostgres(a.db.SQLDB(), a.cfg.DatabaseName); err != nil {
		return err
	}

	if latest, err := database.LatestVersion(a.cfg.DatabaseMigrationFolderPath); err == nil {
		a.logger.WithField("latest_version", latest).Info("Canonical store migrated")
	}
	return nil
}
