package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/erazemk/zaloga/internal/model"
)

const requestSelect = `SELECT r.id, r.material_id, r.user_id, r.quantity_requested, r.quantity_approved,
	       r.purpose, r.priority, r.status, r.request_date, r.approved_date, r.approved_by,
	       r.issued_date, r.issued_by, r.remarks,
	       m.material_number, m.description, m.unit,
	       u.username, u.email, u.department,
	       COALESCE(a.username, ''), COALESCE(i.username, '')
	FROM material_requests r
	JOIN materials m ON m.id = r.material_id
	JOIN users u ON u.id = r.user_id
	LEFT JOIN users a ON a.id = r.approved_by
	LEFT JOIN users i ON i.id = r.issued_by`

func scanRequest(row interface{ Scan(...any) error }, r *model.MaterialRequest) error {
	return row.Scan(&r.ID, &r.MaterialID, &r.UserID, &r.QuantityRequested, &r.QuantityApproved,
		&r.Purpose, &r.Priority, &r.Status, &r.RequestDate, &r.ApprovedDate, &r.ApprovedBy,
		&r.IssuedDate, &r.IssuedBy, &r.Remarks,
		&r.MaterialNumber, &r.MaterialDescription, &r.Unit,
		&r.RequesterName, &r.RequesterEmail, &r.RequesterDepartment,
		&r.ApproverName, &r.IssuerName)
}

// CreateRequest inserts a pending request.
func CreateRequest(ctx context.Context, db DBTX, r *model.MaterialRequest) (*model.MaterialRequest, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO material_requests (material_id, user_id, quantity_requested, purpose, priority, status)
		 VALUES (?, ?, ?, ?, ?, 'pending')`,
		r.MaterialID, r.UserID, r.QuantityRequested.Round(2), r.Purpose, r.Priority,
	)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting request id: %w", err)
	}

	return GetRequest(ctx, db, id)
}

// GetRequest returns a request by ID with material and user names joined.
func GetRequest(ctx context.Context, db DBTX, id int64) (*model.MaterialRequest, error) {
	r := &model.MaterialRequest{}
	err := scanRequest(db.QueryRowContext(ctx, requestSelect+` WHERE r.id = ?`, id), r)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting request: %w", err)
	}
	return r, nil
}

// RequestFilter narrows a request listing. A zero UserID lists every user's requests.
type RequestFilter struct {
	UserID  int64
	Status  string
	Page    int
	PerPage int
}

// ListRequests returns one page of requests, newest first.
func ListRequests(ctx context.Context, db DBTX, f RequestFilter) (Page[model.MaterialRequest], error) {
	where := ` WHERE 1=1`
	var args []any

	if f.UserID > 0 {
		where += ` AND r.user_id = ?`
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		where += ` AND r.status = ?`
		args = append(args, f.Status)
	}

	page, perPage, offset := pageBounds(f.Page, f.PerPage)

	var total int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM material_requests r`+where, args...,
	).Scan(&total); err != nil {
		return Page[model.MaterialRequest]{}, fmt.Errorf("counting requests: %w", err)
	}

	requests, err := queryRequests(ctx, db,
		requestSelect+where+` ORDER BY r.request_date DESC, r.id DESC LIMIT ? OFFSET ?`,
		append(args, perPage, offset)...)
	if err != nil {
		return Page[model.MaterialRequest]{}, err
	}
	return newPage(requests, page, perPage, total), nil
}

// RecentRequests returns the newest requests across all users.
func RecentRequests(ctx context.Context, db DBTX, limit int) ([]model.MaterialRequest, error) {
	return queryRequests(ctx, db, requestSelect+` ORDER BY r.request_date DESC, r.id DESC LIMIT ?`, limit)
}

func queryRequests(ctx context.Context, db DBTX, query string, args ...any) ([]model.MaterialRequest, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing requests: %w", err)
	}
	defer rows.Close()

	var requests []model.MaterialRequest
	for rows.Next() {
		var r model.MaterialRequest
		if err := scanRequest(rows, &r); err != nil {
			return nil, fmt.Errorf("scanning request: %w", err)
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

// Status changes below are compare-and-set on the current status: a request
// that was moved on by a concurrent caller yields model.ErrInvalidTransition.

// MarkApproved moves a pending request to approved.
func MarkApproved(ctx context.Context, db DBTX, id int64, quantity decimal.Decimal, approverID int64, remarks string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE material_requests
		 SET status = 'approved', quantity_approved = ?, approved_by = ?,
		     approved_date = CURRENT_TIMESTAMP, remarks = ?
		 WHERE id = ? AND status = 'pending'`,
		quantity.Round(2), approverID, remarks, id,
	)
	if err != nil {
		return fmt.Errorf("approving request: %w", err)
	}
	return requireTransition(result)
}

// MarkRejected moves a pending request to rejected.
func MarkRejected(ctx context.Context, db DBTX, id int64, approverID int64, remarks string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE material_requests
		 SET status = 'rejected', approved_by = ?, approved_date = CURRENT_TIMESTAMP, remarks = ?
		 WHERE id = ? AND status = 'pending'`,
		approverID, remarks, id,
	)
	if err != nil {
		return fmt.Errorf("rejecting request: %w", err)
	}
	return requireTransition(result)
}

// MarkIssued moves an approved request to issued.
func MarkIssued(ctx context.Context, db DBTX, id int64, issuerID int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE material_requests
		 SET status = 'issued', issued_by = ?, issued_date = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = 'approved'`,
		issuerID, id,
	)
	if err != nil {
		return fmt.Errorf("issuing request: %w", err)
	}
	return requireTransition(result)
}

// MarkCancelled moves a pending request to cancelled.
func MarkCancelled(ctx context.Context, db DBTX, id int64, remarks string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE material_requests SET status = 'cancelled', remarks = ?
		 WHERE id = ? AND status = 'pending'`,
		remarks, id,
	)
	if err != nil {
		return fmt.Errorf("cancelling request: %w", err)
	}
	return requireTransition(result)
}

// CountRequestsByStatus returns how many requests are in the given status.
func CountRequestsByStatus(ctx context.Context, db DBTX, status string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM material_requests WHERE status = ?`, status,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting requests: %w", err)
	}
	return n, nil
}

func requireTransition(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return model.ErrInvalidTransition
	}
	return nil
}
