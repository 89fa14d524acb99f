package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/zaloga/internal/model"
)

// The transaction log is append-only: there are no update or delete
// functions, and triggers in the schema reject both.

const transactionSelect = `SELECT t.id, t.material_id, t.user_id, t.transaction_type, t.quantity,
	       t.unit_price, t.reference_number, t.purpose, t.remarks, t.transaction_date,
	       m.material_number, m.description, m.unit, u.username
	FROM transactions t
	JOIN materials m ON m.id = t.material_id
	JOIN users u ON u.id = t.user_id`

func scanTransaction(row interface{ Scan(...any) error }, t *model.Transaction) error {
	return row.Scan(&t.ID, &t.MaterialID, &t.UserID, &t.Type, &t.Quantity,
		&t.UnitPrice, &t.ReferenceNumber, &t.Purpose, &t.Remarks, &t.Date,
		&t.MaterialNumber, &t.MaterialDescription, &t.Unit, &t.Username)
}

// InsertTransaction appends a transaction to the log.
func InsertTransaction(ctx context.Context, db DBTX, t *model.Transaction) (*model.Transaction, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO transactions (material_id, user_id, transaction_type, quantity, unit_price,
		     reference_number, purpose, remarks)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.MaterialID, t.UserID, t.Type, t.Quantity.Round(2), t.UnitPrice.Round(2),
		t.ReferenceNumber, t.Purpose, t.Remarks,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting transaction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting transaction id: %w", err)
	}

	return GetTransaction(ctx, db, id)
}

// GetTransaction returns a transaction by ID.
func GetTransaction(ctx context.Context, db DBTX, id int64) (*model.Transaction, error) {
	t := &model.Transaction{}
	err := scanTransaction(db.QueryRowContext(ctx, transactionSelect+` WHERE t.id = ?`, id), t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting transaction: %w", err)
	}
	return t, nil
}

// TransactionFilter narrows a transaction listing. Zero values match everything.
// From is inclusive and To exclusive.
type TransactionFilter struct {
	Type       string
	MaterialID int64
	UserID     int64
	From       time.Time
	To         time.Time
	Page       int
	PerPage    int
}

func (f TransactionFilter) where() (string, []any) {
	where := ` WHERE 1=1`
	var args []any

	if f.Type != "" {
		where += ` AND t.transaction_type = ?`
		args = append(args, f.Type)
	}
	if f.MaterialID > 0 {
		where += ` AND t.material_id = ?`
		args = append(args, f.MaterialID)
	}
	if f.UserID > 0 {
		where += ` AND t.user_id = ?`
		args = append(args, f.UserID)
	}
	if !f.From.IsZero() {
		where += ` AND t.transaction_date >= ?`
		args = append(args, sqliteTime(f.From))
	}
	if !f.To.IsZero() {
		where += ` AND t.transaction_date < ?`
		args = append(args, sqliteTime(f.To))
	}
	return where, args
}

// ListTransactions returns one page of transactions, newest first.
func ListTransactions(ctx context.Context, db DBTX, f TransactionFilter) (Page[model.Transaction], error) {
	where, args := f.where()
	page, perPage, offset := pageBounds(f.Page, f.PerPage)

	var total int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions t`+where, args...,
	).Scan(&total); err != nil {
		return Page[model.Transaction]{}, fmt.Errorf("counting transactions: %w", err)
	}

	txs, err := queryTransactions(ctx, db,
		transactionSelect+where+` ORDER BY t.transaction_date DESC, t.id DESC LIMIT ? OFFSET ?`,
		append(args, perPage, offset)...)
	if err != nil {
		return Page[model.Transaction]{}, err
	}
	return newPage(txs, page, perPage, total), nil
}

// ListAllTransactions returns every transaction matching f, oldest first,
// ignoring pagination. It backs exports.
func ListAllTransactions(ctx context.Context, db DBTX, f TransactionFilter) ([]model.Transaction, error) {
	where, args := f.where()
	return queryTransactions(ctx, db,
		transactionSelect+where+` ORDER BY t.transaction_date, t.id`, args...)
}

// RecentTransactions returns the newest transactions, optionally for one material.
func RecentTransactions(ctx context.Context, db DBTX, materialID int64, limit int) ([]model.Transaction, error) {
	query := transactionSelect
	var args []any
	if materialID > 0 {
		query += ` WHERE t.material_id = ?`
		args = append(args, materialID)
	}
	query += ` ORDER BY t.transaction_date DESC, t.id DESC LIMIT ?`
	args = append(args, limit)
	return queryTransactions(ctx, db, query, args...)
}

func queryTransactions(ctx context.Context, db DBTX, query string, args ...any) ([]model.Transaction, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		var t model.Transaction
		if err := scanTransaction(rows, &t); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// SumTransactionQuantity returns the signed sum of all movements of a material.
func SumTransactionQuantity(ctx context.Context, db DBTX, materialID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := db.QueryRowContext(ctx,
		`SELECT ROUND(COALESCE(SUM(quantity), 0), 2) FROM transactions WHERE material_id = ?`,
		materialID,
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("summing transactions: %w", err)
	}
	return sum, nil
}
