package main

import (
	"log/slog"

	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/pkg/logging"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the authd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authd",
		Short: "authd - account authentication service",
		Long: `authd registers accounts, issues and rotates session tokens and runs
the email verification and password reset flows.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}

// loadConfig reads the environment and builds the process logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg := config.Load()
	logger := logging.New(logging.Options{
		Service: cfg.AppName,
		Env:     cfg.AppEnv,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
	if err := cfg.Validate(); err != nil {
		return nil, nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return cfg, logger, nil
}
