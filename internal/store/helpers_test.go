package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/erazemk/zaloga/internal/model"
)

func seedUser(t *testing.T, database *sql.DB, username, role string) *model.User {
	t.Helper()
	u, err := CreateUser(context.Background(), database, &model.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
		Role:         role,
		Department:   "Maintenance",
	})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return u
}

func seedMaterial(t *testing.T, database *sql.DB, number string, stock int64) *model.Material {
	t.Helper()
	ctx := context.Background()
	m, err := CreateMaterial(ctx, database, &model.Material{
		MaterialNumber: number,
		Description:    "Material " + number,
		Category:       "General",
		Unit:           model.UnitPieces,
		MinimumStock:   model.DefaultMinimumStock,
		MaximumStock:   model.DefaultMaximumStock,
		UnitPrice:      decimal.RequireFromString("2.50"),
	})
	if err != nil {
		t.Fatalf("CreateMaterial(%s): %v", number, err)
	}
	if stock > 0 {
		if _, ok, err := ApplyStockDelta(ctx, database, m.ID, decimal.NewFromInt(stock)); err != nil || !ok {
			t.Fatalf("ApplyStockDelta(%s): ok=%v err=%v", number, ok, err)
		}
		m, _ = GetMaterial(ctx, database, m.ID)
	}
	return m
}
