package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/erazemk/zaloga/internal/api"
	"github.com/erazemk/zaloga/internal/notify"
	"github.com/erazemk/zaloga/internal/scheduler"
	"github.com/erazemk/zaloga/internal/store"
	"github.com/erazemk/zaloga/internal/workflow"
)

func newServeCmd(a *app) *cobra.Command {
	var addr, adminUser string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.HTTP.Addr = addr
			}
			return a.serve(cmd.Context(), adminUser)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (overrides http.addr)")
	cmd.Flags().StringVarP(&adminUser, "user", "u", "admin", "admin username on first run")
	return cmd
}

func (a *app) serve(ctx context.Context, adminUser string) error {
	cfg := a.cfg

	// Auto-init on first run.
	if _, err := os.Stat(cfg.DB.Path); os.IsNotExist(err) {
		database, password, err := initDatabase(ctx, cfg.DB.Path, adminUser)
		if err != nil {
			return fmt.Errorf("initializing database: %w", err)
		}
		database.Close()

		printInitResult(cfg.DB.Path, adminUser, password)
		fmt.Println()
	}

	database, err := a.openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	slog.Info("database ready", "path", cfg.DB.Path)

	jwtSecret := cfg.Auth.JWTSecret
	if jwtSecret == "" {
		if jwtSecret, err = store.GetJWTSecret(ctx, database); err != nil {
			return fmt.Errorf("loading jwt secret: %w", err)
		}
	}

	dispatcher, err := a.newDispatcher(database)
	if err != nil {
		return err
	}

	sched, err := scheduler.New(scheduler.Job{
		Name:     "low-stock-scan",
		Schedule: cfg.Alerts.LowStockSchedule,
		Run: func(ctx context.Context) error {
			_, err := workflow.New(database, dispatcher).ScanLowStock(ctx)
			return err
		},
	}, scheduler.Job{
		Name:     "revoked-token-prune",
		Schedule: "@hourly",
		Run: func(ctx context.Context) error {
			n, err := store.PruneRevokedTokens(ctx, database, time.Now())
			if n > 0 {
				slog.Info("revoked tokens pruned", "count", n)
			}
			return err
		},
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: api.NewRouter(api.Options{
			DB:             database,
			JWTSecret:      jwtSecret,
			TokenTTL:       cfg.Auth.TokenTTL,
			SecureCookie:   cfg.Auth.SecureCookie,
			MaxUploadBytes: cfg.Import.MaxUploadMB << 20,
			Notifier:       dispatcher,
			Metrics:        cfg.Metrics.Enabled,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server started", "addr", cfg.HTTP.Addr, "env", cfg.App.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	sched.Start()

	select {
	case err := <-errc:
		sched.Stop(context.Background())
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sched.Stop(shutdownCtx)
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("server stopped, closing database")
	return nil
}

// newDispatcher sends mail over SMTP when a host is configured and only logs
// messages otherwise.
func (a *app) newDispatcher(database *sql.DB) (*notify.Dispatcher, error) {
	var mailer notify.Mailer = notify.LogMailer{}
	if a.cfg.MailEnabled() {
		smtp := a.cfg.SMTP
		m, err := notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     smtp.Host,
			Port:     smtp.Port,
			Username: smtp.Username,
			Password: smtp.Password,
			From:     smtp.From,
			TLS:      smtp.TLS,
		})
		if err != nil {
			return nil, fmt.Errorf("configuring mailer: %w", err)
		}
		mailer = m
	} else {
		slog.Warn("smtp not configured, notifications are only logged")
	}
	return notify.NewDispatcher(mailer, notify.StoreDirectory{DB: database}, a.cfg.App.Name), nil
}
