package app

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/stacklok/feed-registry-server/internal/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file",
		Long:  `Load and validate a configuration file without starting the server.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(config.WithConfigPath(args[0]))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return printConfigSummary(cmd.OutOrStdout(), cfg)
		},
	}
}

func printConfigSummary(w io.Writer, cfg *config.Config) error {
	lines := []string{
		"✓ Valid configuration",
		fmt.Sprintf("  Owner: %s", cfg.Owner),
		fmt.Sprintf("  Storage: %s", cfg.GetStorageType()),
		fmt.Sprintf("  Sources: %d", len(cfg.Sources)),
		fmt.Sprintf("  Access policy: %s", cfg.Access.GetPolicy()),
		fmt.Sprintf("  Auth mode: %s", cfg.Auth.GetMode()),
	}
	if cfg.Events != nil && cfg.Events.Redis != nil {
		lines = append(lines, fmt.Sprintf("  Event stream: %s", cfg.Events.Redis.GetStream()))
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
