package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/erazemk/popis/internal/api"
	"github.com/erazemk/popis/internal/auth"
	"github.com/erazemk/popis/internal/config"
	"github.com/erazemk/popis/internal/db"
	"github.com/erazemk/popis/internal/store"
)

func serveCmd() *cobra.Command {
	var adminUser string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Runs the HTTP API. A missing database is created first, together with an
admin account whose password is printed once.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return serve(cmd, cfg, adminUser)
		},
	}

	cmd.Flags().StringP("db", "d", "", "SQLite database path")
	cmd.Flags().StringP("addr", "a", "", "listen address")
	cmd.Flags().StringP("log", "l", "", "log file path")
	cmd.Flags().StringVarP(&adminUser, "user", "u", defaultAdmin, "admin username on first run")
	return cmd
}

func serve(cmd *cobra.Command, cfg *config.Config, adminUser string) error {
	logger, closeLog, err := setupLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Auto-init on first run.
	if _, err := os.Stat(cfg.Database.Path); errors.Is(err, os.ErrNotExist) {
		database, password, err := initDatabase(ctx, cfg.Database.Path, adminUser)
		if err != nil {
			return fmt.Errorf("initializing database: %w", err)
		}
		database.Close()

		printInitResult(cmd.OutOrStdout(), cfg.Database.Path, adminUser, password)
		fmt.Fprintln(cmd.OutOrStdout())
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(ctx, database); err != nil {
		return err
	}
	if n, err := store.PurgeExpiredTokens(ctx, database, time.Now()); err != nil {
		logger.Warn("purging expired token revocations", "error", err)
	} else if n > 0 {
		logger.Info("purged expired token revocations", "count", n)
	}
	logger.Info("database ready", "path", cfg.Database.Path)

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		if secret, err = store.GetJWTSecret(ctx, database); err != nil {
			return fmt.Errorf("loading JWT secret: %w", err)
		}
	}
	signer := auth.NewSigner(secret, cfg.Auth.TokenTTL)

	mux := http.NewServeMux()
	mux.Handle("/api/", api.NewRouter(database, signer, logger))

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server started", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped, closing database")
	return nil
}
