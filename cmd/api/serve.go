package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	jwtinfra "github.com/go-auth-nosql/internal/infrastructure/jwt"
	"github.com/go-auth-nosql/internal/pkg/metrics"
	"github.com/go-auth-nosql/internal/pkg/password"
	transporthttp "github.com/go-auth-nosql/internal/transport/http"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API. The configured store is connected and its schema
created or migrated before the listener opens.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to :$APP_PORT)")
	return cmd
}

func runServe(cmd *cobra.Command, addr string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if addr == "" {
		addr = ":" + cfg.AppPort
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	accounts, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return oops.Code("STORE_OPEN_FAILED").With("driver", cfg.StoreDriver).Wrap(err)
	}
	defer closeStore()

	sender, err := newSender(ctx, cfg, logger)
	if err != nil {
		return oops.Code("NOTIFIER_INIT_FAILED").With("notifier", cfg.Notifier).Wrap(err)
	}

	tokens, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}

	router := transporthttp.NewRouter(cfg, &transporthttp.Deps{
		Accounts: accounts,
		Hasher:   password.NewHasher(cfg.BcryptCost),
		Tokens:   tokens,
		Sender:   sender,
		Metrics:  metrics.New(),
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", addr, "store", cfg.StoreDriver, "notifier", cfg.Notifier)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return oops.Code("SERVER_FAILED").Wrap(err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return oops.Code("SHUTDOWN_FAILED").Wrap(err)
	}
	logger.Info("server stopped")
	return nil
}
