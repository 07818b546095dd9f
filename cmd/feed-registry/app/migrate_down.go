package app

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/stacklok/feed-registry-server/database"
)

func newMigrateDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Revert database migrations",
		Long: `Revert database migrations. Reverting every migration drops the phase
history, so the command asks for confirmation unless --yes is given.

Examples:
  # Migrate down by 1 step
  feed-registry migrate down --config config.yaml --num-steps 1 --yes

  # Migrate down all the way (WARNING: destroys all data)
  feed-registry migrate down --config config.yaml --yes`,
		RunE: runMigrateDown,
	}
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	cfg, connString, err := setupMigration(cmd)
	if err != nil {
		return err
	}

	numSteps, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return fmt.Errorf("failed to get num-steps flag: %w", err)
	}

	steps := int(numSteps)
	if steps == 0 {
		current, _, err := database.GetVersion(connString)
		if err != nil {
			return fmt.Errorf("failed to get migration version: %w", err)
		}
		if current == 0 {
			slog.Info("No migrations to revert")
			return nil
		}
		steps = int(current)
	}

	question := fmt.Sprintf("About to revert %d migration(s) on database %s.", steps, describeDatabase(cfg))
	ok, err := confirm(cmd, question)
	if err != nil || !ok {
		return err
	}

	if err := database.MigrateDown(connString, steps); err != nil {
		return fmt.Errorf("failed to revert migrations: %w", err)
	}

	version, _, err := database.GetVersion(connString)
	if err != nil {
		slog.Warn("Unable to get migration version", "error", err)
		return nil
	}
	slog.Info("Migrations reverted successfully", "version", version)
	return nil
}
