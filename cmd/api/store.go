package main

import (
	"context"
	"log/slog"

	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/infrastructure/dynamo"
	"github.com/go-auth-nosql/internal/infrastructure/memory"
	"github.com/go-auth-nosql/internal/infrastructure/postgres"
	"github.com/go-auth-nosql/internal/infrastructure/sqlite"
	transporthttp "github.com/go-auth-nosql/internal/transport/http"
	"github.com/samber/oops"
)

// openStore connects the configured backend and makes sure its schema exists.
// The returned close func is never nil.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (transporthttp.AccountStore, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverDynamo:
		client, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := dynamo.Bootstrap(ctx, client, cfg.DynamoTables); err != nil {
			return nil, nil, err
		}
		return dynamo.NewAccountRepo(client, cfg.DynamoTables), func() {}, nil

	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DBConnectRetries)
		if err != nil {
			return nil, nil, err
		}
		if _, err := migratePostgres(cfg.DatabaseURL, false); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return postgres.NewAccountRepo(pool), pool.Close, nil

	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath, cfg.DBConnectRetries)
		if err != nil {
			return nil, nil, err
		}
		if err := store.ApplyMigrations(); err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil

	case config.DriverMemory:
		logger.Warn("using the in-memory account store; accounts are lost on restart")
		return memory.NewAccountRepo(), func() {}, nil
	}
	return nil, nil, oops.Code("CONFIG_INVALID").Errorf("unknown store driver %q", cfg.StoreDriver)
}

// migratePostgres returns the schema version left in place.
func migratePostgres(databaseURL string, down bool) (uint, error) {
	m, err := postgres.NewMigrator(databaseURL)
	if err != nil {
		return 0, err
	}
	defer func() { _ = m.Close() }()
	if down {
		err = m.Down()
	} else {
		err = m.Up()
	}
	if err != nil {
		return 0, err
	}
	v, _, err := m.Version()
	return v, err
}
