package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/case-service/internal/persistence"
)

// MigrateCmd applies the embedded database migrations.
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
			if err != nil {
				return err
			}
			defer pg.Close()

			if err := persistence.RunMigrations(cmd.Context(), pg, logger); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s migrations applied\n", okMark("✓"))
			return nil
		},
	}
}
