// Package ledger is the only writer of material stock. Every change posts a
// transaction in the same database transaction, so current stock always equals
// the sum of the material's transactions.
package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/erazemk/zaloga/internal/metrics"
	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/store"
)

// Entry describes one stock movement. Quantity is signed.
type Entry struct {
	MaterialID int64
	UserID     int64
	Type       string
	Quantity   decimal.Decimal
	Reference  string
	Purpose    string
	Remarks    string
}

// Posting is the outcome of a successful Post.
type Posting struct {
	Transaction *model.Transaction
	Material    *model.Material
	Before      decimal.Decimal
}

// CrossedMinimum reports whether this posting took the material from above its
// minimum level to at or below it.
func (p *Posting) CrossedMinimum() bool {
	return p.Before.GreaterThan(p.Material.MinimumStock) && p.Material.IsLowStock()
}

// Post applies e to the material's stock and appends the transaction, both
// through tx. The stock update is conditional, so a movement that would take
// stock below zero fails with *model.InsufficientStockError and changes nothing.
// Quantities are rounded to two decimals before any check.
func Post(ctx context.Context, tx store.DBTX, e Entry) (*Posting, error) {
	e.Quantity = e.Quantity.Round(2)
	if !model.ValidTransactionType(e.Type) {
		return nil, model.Invalid("transaction_type", fmt.Sprintf("unknown type %q", e.Type))
	}
	if e.Quantity.IsZero() {
		return nil, model.Invalid("quantity", "must not be zero")
	}
	switch e.Type {
	case model.TxIssue:
		if !e.Quantity.IsNegative() {
			return nil, model.Invalid("quantity", "issues must be negative")
		}
	case model.TxReceive, model.TxReturn:
		if !e.Quantity.IsPositive() {
			return nil, model.Invalid("quantity", "must be positive")
		}
	}

	m, err := store.GetMaterial(ctx, tx, e.MaterialID)
	if err != nil {
		return nil, err
	}
	if m == nil || !m.IsActive {
		return nil, fmt.Errorf("material %d: %w", e.MaterialID, model.ErrNotFound)
	}

	after, ok, err := store.ApplyStockDelta(ctx, tx, m.ID, e.Quantity)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &model.InsufficientStockError{
			MaterialID:     m.ID,
			MaterialNumber: m.MaterialNumber,
			Available:      m.CurrentStock,
			Requested:      e.Quantity.Neg(),
		}
	}

	t, err := store.InsertTransaction(ctx, tx, &model.Transaction{
		MaterialID:      m.ID,
		UserID:          e.UserID,
		Type:            e.Type,
		Quantity:        e.Quantity,
		UnitPrice:       m.UnitPrice,
		ReferenceNumber: e.Reference,
		Purpose:         e.Purpose,
		Remarks:         e.Remarks,
	})
	if err != nil {
		return nil, err
	}

	before := m.CurrentStock
	m.CurrentStock = after
	metrics.StockTransactions.WithLabelValues(e.Type).Inc()

	return &Posting{Transaction: t, Material: m, Before: before}, nil
}

// Receive books incoming stock.
func Receive(ctx context.Context, tx store.DBTX, materialID, userID int64, qty decimal.Decimal, reference, remarks string) (*Posting, error) {
	return Post(ctx, tx, Entry{
		MaterialID: materialID, UserID: userID, Type: model.TxReceive,
		Quantity: qty, Reference: reference, Remarks: remarks,
	})
}

// Return books stock handed back to the store.
func Return(ctx context.Context, tx store.DBTX, materialID, userID int64, qty decimal.Decimal, reference, remarks string) (*Posting, error) {
	return Post(ctx, tx, Entry{
		MaterialID: materialID, UserID: userID, Type: model.TxReturn,
		Quantity: qty, Reference: reference, Remarks: remarks,
	})
}

// Issue books stock leaving the store. qty is the positive amount issued.
func Issue(ctx context.Context, tx store.DBTX, materialID, userID int64, qty decimal.Decimal, reference, purpose, remarks string) (*Posting, error) {
	qty = qty.Round(2)
	if !qty.IsPositive() {
		return nil, model.Invalid("quantity", "must be positive")
	}
	return Post(ctx, tx, Entry{
		MaterialID: materialID, UserID: userID, Type: model.TxIssue,
		Quantity: qty.Neg(), Reference: reference, Purpose: purpose, Remarks: remarks,
	})
}

// AdjustStock books a signed correction with the given reason.
func AdjustStock(ctx context.Context, tx store.DBTX, materialID, userID int64, delta decimal.Decimal, reason string) (*Posting, error) {
	return Post(ctx, tx, Entry{
		MaterialID: materialID, UserID: userID, Type: model.TxAdjust,
		Quantity: delta, Remarks: reason,
	})
}

// Reconciliation compares a material's stock with its transaction log.
type Reconciliation struct {
	MaterialID     int64           `json:"material_id"`
	MaterialNumber string          `json:"material_number"`
	CurrentStock   decimal.Decimal `json:"current_stock"`
	LedgerTotal    decimal.Decimal `json:"ledger_total"`
	Drift          decimal.Decimal `json:"drift"`
	Consistent     bool            `json:"consistent"`
}

// Reconcile checks one material.
func Reconcile(ctx context.Context, db store.DBTX, materialID int64) (*Reconciliation, error) {
	m, err := store.GetMaterial(ctx, db, materialID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("material %d: %w", materialID, model.ErrNotFound)
	}
	return reconcile(ctx, db, m)
}

// ReconcileAll checks every active material and returns the results in
// material number order.
func ReconcileAll(ctx context.Context, db *sql.DB) ([]Reconciliation, error) {
	materials, err := store.ListAllMaterials(ctx, db)
	if err != nil {
		return nil, err
	}

	results := make([]Reconciliation, 0, len(materials))
	for i := range materials {
		r, err := reconcile(ctx, db, &materials[i])
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, nil
}

func reconcile(ctx context.Context, db store.DBTX, m *model.Material) (*Reconciliation, error) {
	total, err := store.SumTransactionQuantity(ctx, db, m.ID)
	if err != nil {
		return nil, err
	}
	drift := m.CurrentStock.Sub(total)
	return &Reconciliation{
		MaterialID:     m.ID,
		MaterialNumber: m.MaterialNumber,
		CurrentStock:   m.CurrentStock,
		LedgerTotal:    total,
		Drift:          drift,
		Consistent:     drift.IsZero(),
	}, nil
}
