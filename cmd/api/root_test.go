package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/go-auth-nosql/internal/application/notify"
	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/infrastructure/smtp"
	"github.com/go-auth-nosql/internal/infrastructure/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ACCESS_TOKEN_SECRET", "access-secret")
	t.Setenv("REFRESH_TOKEN_SECRET", "refresh-secret")
	t.Setenv("LOG_LEVEL", "error")
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["migrate"])

	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	assert.NotNil(t, serve.Flags().Lookup("addr"))

	migrate, _, err := cmd.Find([]string{"migrate"})
	require.NoError(t, err)
	assert.NotNil(t, migrate.Flags().Lookup("down"))
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_SECRET", "")
	t.Setenv("REFRESH_TOKEN_SECRET", "")
	_, _, err := loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ACCESS_TOKEN_SECRET is required")
}

func TestMigrateCmd_Memory(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("STORE_DRIVER", "memory")

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"migrate"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "no schema")
}

func TestMigrateCmd_DownRequiresPostgres(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("STORE_DRIVER", "memory")

	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"migrate", "--down"})
	assert.Error(t, cmd.Execute())
}

func TestMigrateCmd_SQLite(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "file:"+filepath.Join(t.TempDir(), "authd.db"))

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"migrate"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Migrations completed successfully")
}

func TestOpenStore_SQLite(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "file:"+filepath.Join(t.TempDir(), "authd.db"))
	cfg, logger, err := loadConfig()
	require.NoError(t, err)

	accounts, closeStore, err := openStore(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer closeStore()

	a := storetest.NewAccount("erin")
	require.NoError(t, accounts.Create(context.Background(), a))
	got, err := accounts.FindByID(context.Background(), a.AccountID)
	require.NoError(t, err)
	assert.Equal(t, a.Email, got.Email)
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, _, err := openStore(context.Background(), &config.Config{StoreDriver: "cassandra"}, nil)
	assert.Error(t, err)
}

func TestNewSender(t *testing.T) {
	s, err := newSender(context.Background(), &config.Config{Notifier: config.NotifierLog}, nil)
	require.NoError(t, err)
	assert.IsType(t, notify.LogSender{}, s)

	s, err = newSender(context.Background(), &config.Config{Notifier: config.NotifierSMTP, SMTPHost: "localhost", SMTPPort: "1025"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &smtp.Mailer{}, s)

	_, err = newSender(context.Background(), &config.Config{Notifier: "pigeon"}, nil)
	assert.Error(t, err)
}
