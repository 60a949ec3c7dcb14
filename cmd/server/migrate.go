package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-relay/internal/app"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/log"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the message store schema",
		Long:  `Open the configured message store, create its schema if missing and exit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(config.Config{})
			if err != nil {
				return oops.Code("CONFIG_INVALID").With("path", configFile).Wrap(err)
			}
			logger := log.New(cfg.LogLevel)

			st, err := app.OpenStore(cmd.Context(), cfg.Store, logger)
			if err != nil {
				return oops.Code("MIGRATION_FAILED").With("driver", cfg.Store.Driver).Wrap(err)
			}
			if err := st.Close(); err != nil {
				return oops.Code("DB_CLOSE_FAILED").With("driver", cfg.Store.Driver).Wrap(err)
			}

			cmd.Println("Migrations completed successfully")
			return nil
		},
	}
}
