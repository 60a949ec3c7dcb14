package main

import (
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/log"
)

// Global flags available to all subcommands.
var (
	configFile string
	logLevel   string
)

// NewRootCmd creates the root command for the relay CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wirechat-relay",
		Short: "Real-time room chat relay over WebSocket",
		Long: `wirechat-relay accepts WebSocket connections, groups them into
named rooms and relays chat messages between members, persisting them to
SQLite, PostgreSQL or Badger.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}

// loadConfig resolves configuration and applies flag overrides.
func loadConfig(overrides config.Config) (config.Config, error) {
	bootLog := log.New(logLevel)

	cfg, path, err := config.Load(bootLog, configFile)
	if err != nil {
		return cfg, err
	}
	overrides.LogLevel = logLevel
	cfg.UpdateFrom(overrides)

	bootLog.Debug().Str("path", path).Msg("config loaded")
	return cfg, nil
}
