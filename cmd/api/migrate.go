package main

import (
	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/infrastructure/dynamo"
	"github.com/go-auth-nosql/internal/infrastructure/sqlite"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or migrate the account schema",
		Long: `Apply the account schema for the configured STORE_DRIVER: SQL migrations
for postgres and sqlite, table creation for dynamo.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, down)
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back every migration (postgres only)")
	return cmd
}

func runMigrate(cmd *cobra.Command, down bool) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if down && cfg.StoreDriver != config.DriverPostgres {
		return oops.Code("CONFIG_INVALID").Errorf("--down is only supported for postgres")
	}
	ctx := cmd.Context()

	cmd.Printf("Migrating %s store...\n", cfg.StoreDriver)
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		version, err := migratePostgres(cfg.DatabaseURL, down)
		if err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
		}
		cmd.Printf("Schema version %d\n", version)
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath, cfg.DBConnectRetries)
		if err != nil {
			return oops.Code("DB_CONNECT_FAILED").With("operation", "open database").Wrap(err)
		}
		defer func() { _ = store.Close() }()
		if err := store.ApplyMigrations(); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
		}
	case config.DriverDynamo:
		client, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			return oops.Code("DB_CONNECT_FAILED").With("operation", "create client").Wrap(err)
		}
		if err := dynamo.Bootstrap(ctx, client, cfg.DynamoTables); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "create tables").Wrap(err)
		}
	case config.DriverMemory:
		cmd.Println("The memory store has no schema")
		return nil
	}

	cmd.Println("Migrations completed successfully")
	return nil
}
