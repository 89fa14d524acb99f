package db

import (
	"context"
	"testing"
)

func TestMigrateIsIdempotent(t *testing.T) {
	database := NewTestDB(t)
	ctx := context.Background()

	if err := Migrate(ctx, database); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	statuses, err := Status(ctx, database)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(statuses) == 0 {
		t.Fatal("expected at least one migration")
	}
	for _, s := range statuses {
		if !s.Applied {
			t.Errorf("migration %d not applied", s.Version)
		}
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	database := NewTestDB(t)

	_, err := database.Exec(
		`INSERT INTO transactions (material_id, user_id, transaction_type, quantity) VALUES (999, 999, 'receive', 1)`,
	)
	if err == nil {
		t.Fatal("expected foreign key violation")
	}
}

func TestTransactionsAreAppendOnly(t *testing.T) {
	database := NewTestDB(t)

	mustExec := func(q string, args ...any) {
		t.Helper()
		if _, err := database.Exec(q, args...); err != nil {
			t.Fatalf("exec %q: %v", q, err)
		}
	}
	mustExec(`INSERT INTO users (username, password_hash) VALUES ('u', 'h')`)
	mustExec(`INSERT INTO materials (material_number, description) VALUES ('M-1', 'bolt')`)
	mustExec(`INSERT INTO transactions (material_id, user_id, transaction_type, quantity) VALUES (1, 1, 'receive', 5)`)

	if _, err := database.Exec(`UPDATE transactions SET quantity = 6`); err == nil {
		t.Error("expected update to be rejected")
	}
	if _, err := database.Exec(`DELETE FROM transactions`); err == nil {
		t.Error("expected delete to be rejected")
	}
}

func TestStockCannotGoNegative(t *testing.T) {
	database := NewTestDB(t)

	if _, err := database.Exec(`INSERT INTO materials (material_number, description) VALUES ('M-1', 'bolt')`); err != nil {
		t.Fatalf("insert material: %v", err)
	}
	if _, err := database.Exec(`UPDATE materials SET current_stock = -1 WHERE id = 1`); err == nil {
		t.Fatal("expected check constraint violation")
	}
}
