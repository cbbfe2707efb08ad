package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command, which opens the configured
// backend and applies its schema/indexes. Idempotent: safe to run against
// an already-initialized backend.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "init",
		Short:         "Initialize the configured backend's schema",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}

			engine, err := openEngine(cmd.Context(), cfg)
			if err != nil {
				return WrapExitError(ExitCommandError, "open backend", err)
			}
			defer engine.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s backend at %s\n", cfg.Backend, cfg.DSN)
			return nil
		},
	}
	return cmd
}
