package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/erazemk/zaloga/internal/authz"
	"github.com/erazemk/zaloga/internal/catalog"
	"github.com/erazemk/zaloga/internal/db"
	"github.com/erazemk/zaloga/internal/ledger"
	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/sheet"
	"github.com/erazemk/zaloga/internal/store"
	"github.com/erazemk/zaloga/internal/workflow"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			database, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			database.Close()
			fmt.Println("Schema is up to date.")
			return nil
		},
	}, &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			database, err := db.Open(a.cfg.DB.Path)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer database.Close()

			statuses, err := db.Status(cmd.Context(), database)
			if err != nil {
				return err
			}
			for _, s := range statuses {
				state := "pending"
				if s.Applied {
					state = "applied"
				}
				fmt.Printf("%5d  %-8s  %s\n", s.Version, state, s.Path)
			}
			return nil
		},
	})
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "import <file.xlsx>",
		Short: "Import materials from a worksheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if !strings.EqualFold(filepath.Ext(path), ".xlsx") {
				return errors.New("only .xlsx files are supported")
			}

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			rows, err := sheet.ParseMaterials(f)
			if err != nil {
				return err
			}

			database, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()

			u, err := store.GetUserByUsername(cmd.Context(), database, username)
			if err != nil {
				return err
			}
			if u == nil || !u.Active() {
				return fmt.Errorf("user %q: %w", username, model.ErrNotFound)
			}
			if err := authz.Check(u.Role, authz.ImportMaterials); err != nil {
				return fmt.Errorf("user %q cannot import materials: %w", username, err)
			}

			actor := model.Actor{UserID: u.ID, Username: u.Username, Role: u.Role}
			result, err := catalog.New(database, nil).Import(cmd.Context(), actor, rows)
			if err != nil {
				return err
			}

			fmt.Printf("Created: %d, updated: %d, failed: %d\n", result.Created, result.Updated, result.Failed)
			for _, e := range result.Errors {
				fmt.Printf("  row %d: %s\n", e.Row, e.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "as", "u", "admin", "user recorded on the import transactions")
	return cmd
}

func newLowStockCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "low-stock",
		Short: "Send the low-stock alert now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			database, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()

			dispatcher, err := a.newDispatcher(database)
			if err != nil {
				return err
			}

			report, err := workflow.New(database, dispatcher).ScanLowStock(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Low stock materials: %d, managers notified: %d\n", report.Materials, report.Notified)
			return nil
		},
	}
}

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that every material's stock matches its transaction log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			database, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()

			results, err := ledger.ReconcileAll(cmd.Context(), database)
			if err != nil {
				return err
			}

			drifted := 0
			for _, r := range results {
				if r.Consistent {
					continue
				}
				drifted++
				fmt.Printf("%-20s stock %s, ledger %s, drift %s\n",
					r.MaterialNumber, r.CurrentStock.StringFixed(2), r.LedgerTotal.StringFixed(2), r.Drift.StringFixed(2))
			}
			if drifted > 0 {
				return fmt.Errorf("%d of %d materials do not match their transaction log", drifted, len(results))
			}
			fmt.Printf("All %d materials match their transaction log.\n", len(results))
			return nil
		},
	}
}
