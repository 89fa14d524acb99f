// Command zaloga runs the material store service and its maintenance tasks.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/erazemk/zaloga/internal/config"
	"github.com/erazemk/zaloga/internal/db"
)

// app carries state shared by every subcommand once the root pre-run has
// loaded the configuration.
type app struct {
	configPath string
	dbPath     string
	logLevel   string

	cfg      *config.Config
	closeLog func()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "zaloga",
		Short:         "Material store management service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a.closeLog != nil {
				a.closeLog()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "zaloga.yaml", "YAML config file (optional)")
	flags.StringVarP(&a.dbPath, "db", "d", "", "SQLite database path (overrides db.path)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides log.level)")

	root.AddCommand(
		newServeCmd(a),
		newInitCmd(a),
		newMigrateCmd(a),
		newImportCmd(a),
		newLowStockCmd(a),
		newVerifyCmd(a),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.DB.Path = a.dbPath
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	closeLog, err := setupLogger(cfg.Log.Path, level, cfg.Production())
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.closeLog = closeLog
	return nil
}

// openDB opens the configured database and applies pending migrations.
func (a *app) openDB(ctx context.Context) (*sql.DB, error) {
	database, err := db.Open(a.cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, database); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}
