// Package workflow runs material requests through their lifecycle:
// pending, then approved or rejected or cancelled, then issued.
package workflow

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/erazemk/zaloga/internal/authz"
	"github.com/erazemk/zaloga/internal/ledger"
	"github.com/erazemk/zaloga/internal/metrics"
	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/store"
)

// Notifier receives workflow events after they are committed. Implementations
// must not fail the caller.
type Notifier interface {
	RequestSubmitted(ctx context.Context, r *model.MaterialRequest)
	RequestApproved(ctx context.Context, r *model.MaterialRequest)
	RequestRejected(ctx context.Context, r *model.MaterialRequest)
	RequestIssued(ctx context.Context, r *model.MaterialRequest)
	LowStock(ctx context.Context, materials []model.Material) int
}

// Service runs workflow operations against the database.
type Service struct {
	db       *sql.DB
	notifier Notifier
}

// New creates a workflow service.
func New(db *sql.DB, notifier Notifier) *Service {
	return &Service{db: db, notifier: notifier}
}

// SubmitInput is a new material request.
type SubmitInput struct {
	MaterialID int64           `json:"material_id"`
	Quantity   decimal.Decimal `json:"quantity_requested"`
	Purpose    string          `json:"purpose"`
	Priority   string          `json:"priority"`
}

func (in *SubmitInput) validate() error {
	if in.MaterialID <= 0 {
		return model.Invalid("material_id", "is required")
	}
	in.Quantity = in.Quantity.Round(2)
	if !in.Quantity.IsPositive() {
		return model.Invalid("quantity_requested", "must be greater than zero")
	}
	in.Purpose = strings.TrimSpace(in.Purpose)
	if in.Purpose == "" {
		return model.Invalid("purpose", "is required")
	}
	if utf8.RuneCountInString(in.Purpose) > model.MaxPurposeLength {
		return model.Invalid("purpose", fmt.Sprintf("must be at most %d characters", model.MaxPurposeLength))
	}
	if in.Priority == "" {
		in.Priority = model.PriorityNormal
	}
	if !model.ValidPriority(in.Priority) {
		return model.Invalid("priority", fmt.Sprintf("unknown priority %q", in.Priority))
	}
	return nil
}

// Submit creates a pending request for an active material and notifies
// managers. Stock is not reserved.
func (s *Service) Submit(ctx context.Context, actor model.Actor, in SubmitInput) (*model.MaterialRequest, error) {
	if err := authz.Check(actor.Role, authz.SubmitRequest); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	var req *model.MaterialRequest
	err := store.InTx(ctx, s.db, func(tx *sql.Tx) error {
		m, err := store.GetMaterial(ctx, tx, in.MaterialID)
		if err != nil {
			return err
		}
		if m == nil || !m.IsActive {
			return fmt.Errorf("material %d: %w", in.MaterialID, model.ErrNotFound)
		}

		req, err = store.CreateRequest(ctx, tx, &model.MaterialRequest{
			MaterialID:        m.ID,
			UserID:            actor.UserID,
			QuantityRequested: in.Quantity,
			Purpose:           in.Purpose,
			Priority:          in.Priority,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.done(ctx, actor, "submitted", req)
	s.notifier.RequestSubmitted(ctx, req)
	return req, nil
}

// ApproveInput is a manager's approval. A nil Quantity approves the full
// requested quantity.
type ApproveInput struct {
	Quantity *decimal.Decimal `json:"approved_quantity"`
	Remarks  string           `json:"remarks"`
}

// Approve moves a pending request to approved. The approved quantity must be
// positive, no more than requested and no more than current stock. Stock is
// not changed.
func (s *Service) Approve(ctx context.Context, actor model.Actor, id int64, in ApproveInput) (*model.MaterialRequest, error) {
	if err := authz.Check(actor.Role, authz.ApproveRequest); err != nil {
		return nil, err
	}

	req, err := s.transition(ctx, id, model.StatusApproved, func(tx *sql.Tx, r *model.MaterialRequest) error {
		qty := r.QuantityRequested
		if in.Quantity != nil {
			qty = *in.Quantity
		}
		qty = qty.Round(2)
		if !qty.IsPositive() {
			return model.Invalid("approved_quantity", "must be greater than zero")
		}
		if qty.GreaterThan(r.QuantityRequested) {
			return model.Invalid("approved_quantity", "cannot exceed the requested quantity")
		}

		m, err := store.GetMaterial(ctx, tx, r.MaterialID)
		if err != nil {
			return err
		}
		if m == nil || !m.IsActive {
			return fmt.Errorf("material %d: %w", r.MaterialID, model.ErrNotFound)
		}
		if qty.GreaterThan(m.CurrentStock) {
			return &model.InsufficientStockError{
				MaterialID:     m.ID,
				MaterialNumber: m.MaterialNumber,
				Available:      m.CurrentStock,
				Requested:      qty,
			}
		}

		return store.MarkApproved(ctx, tx, r.ID, qty, actor.UserID, strings.TrimSpace(in.Remarks))
	})
	if err != nil {
		return nil, err
	}

	s.done(ctx, actor, "approved", req)
	s.notifier.RequestApproved(ctx, req)
	return req, nil
}

// Reject moves a pending request to rejected.
func (s *Service) Reject(ctx context.Context, actor model.Actor, id int64, remarks string) (*model.MaterialRequest, error) {
	if err := authz.Check(actor.Role, authz.RejectRequest); err != nil {
		return nil, err
	}

	req, err := s.transition(ctx, id, model.StatusRejected, func(tx *sql.Tx, r *model.MaterialRequest) error {
		return store.MarkRejected(ctx, tx, r.ID, actor.UserID, strings.TrimSpace(remarks))
	})
	if err != nil {
		return nil, err
	}

	s.done(ctx, actor, "rejected", req)
	s.notifier.RequestRejected(ctx, req)
	return req, nil
}

// Issue hands out an approved request: stock is decremented by the approved
// quantity and an issue transaction is logged, atomically with the status
// change. If stock is short the request stays approved.
func (s *Service) Issue(ctx context.Context, actor model.Actor, id int64) (*model.MaterialRequest, error) {
	if err := authz.Check(actor.Role, authz.IssueRequest); err != nil {
		return nil, err
	}

	var posting *ledger.Posting
	req, err := s.transition(ctx, id, model.StatusIssued, func(tx *sql.Tx, r *model.MaterialRequest) error {
		var err error
		posting, err = ledger.Issue(ctx, tx, r.MaterialID, actor.UserID, r.QuantityApproved,
			r.Reference(), r.Purpose,
			fmt.Sprintf("Issued to %s (%s)", r.RequesterName, r.RequesterDepartment))
		if err != nil {
			return err
		}
		return store.MarkIssued(ctx, tx, r.ID, actor.UserID)
	})
	if err != nil {
		return nil, err
	}

	s.done(ctx, actor, "issued", req)
	s.notifier.RequestIssued(ctx, req)
	if posting.CrossedMinimum() {
		slog.Warn("material fell to minimum stock", "material", posting.Material.MaterialNumber,
			"stock", posting.Material.CurrentStock.String())
		s.notifier.LowStock(ctx, []model.Material{*posting.Material})
	}
	return req, nil
}

// Cancel withdraws a pending request. Requesters may cancel their own
// requests; managers may cancel any.
func (s *Service) Cancel(ctx context.Context, actor model.Actor, id int64, remarks string) (*model.MaterialRequest, error) {
	req, err := s.transition(ctx, id, model.StatusCancelled, func(tx *sql.Tx, r *model.MaterialRequest) error {
		if r.UserID != actor.UserID {
			if err := authz.Check(actor.Role, authz.CancelAnyRequest); err != nil {
				return err
			}
		}
		return store.MarkCancelled(ctx, tx, r.ID, strings.TrimSpace(remarks))
	})
	if err != nil {
		return nil, err
	}

	s.done(ctx, actor, "cancelled", req)
	return req, nil
}

// transition loads the request inside a transaction, checks that it may move
// to status, runs apply and returns the reloaded request.
func (s *Service) transition(ctx context.Context, id int64, status string, apply func(tx *sql.Tx, r *model.MaterialRequest) error) (*model.MaterialRequest, error) {
	var out *model.MaterialRequest
	err := store.InTx(ctx, s.db, func(tx *sql.Tx) error {
		r, err := store.GetRequest(ctx, tx, id)
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("request %d: %w", id, model.ErrNotFound)
		}
		if !model.CanTransition(r.Status, status) {
			return fmt.Errorf("request %d is %s, cannot become %s: %w", id, r.Status, status, model.ErrInvalidTransition)
		}

		if err := apply(tx, r); err != nil {
			return err
		}

		out, err = store.GetRequest(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) done(ctx context.Context, actor model.Actor, action string, r *model.MaterialRequest) {
	metrics.RequestTransitions.WithLabelValues(action).Inc()
	slog.InfoContext(ctx, "request "+action, "user", actor.Username, "request", r.Reference(),
		"material", r.MaterialNumber, "status", r.Status)
}

// Get returns a request visible to actor: their own, or any for managers.
func (s *Service) Get(ctx context.Context, actor model.Actor, id int64) (*model.MaterialRequest, error) {
	r, err := store.GetRequest(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("request %d: %w", id, model.ErrNotFound)
	}
	if r.UserID != actor.UserID {
		if err := authz.Check(actor.Role, authz.ViewAllRequests); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// List returns a page of requests. Users who may not view all requests only
// see their own.
func (s *Service) List(ctx context.Context, actor model.Actor, f store.RequestFilter) (store.Page[model.MaterialRequest], error) {
	if f.Status != "" && !model.ValidStatus(f.Status) {
		return store.Page[model.MaterialRequest]{}, model.Invalid("status", fmt.Sprintf("unknown status %q", f.Status))
	}
	if !authz.Allowed(actor.Role, authz.ViewAllRequests) {
		f.UserID = actor.UserID
	}
	return store.ListRequests(ctx, s.db, f)
}

// LowStockReport summarizes a low-stock scan.
type LowStockReport struct {
	Materials int `json:"materials"`
	Notified  int `json:"notified"`
}

// CheckLowStock runs a low-stock scan on behalf of actor.
func (s *Service) CheckLowStock(ctx context.Context, actor model.Actor) (*LowStockReport, error) {
	if err := authz.Check(actor.Role, authz.TriggerAlerts); err != nil {
		return nil, err
	}
	return s.ScanLowStock(ctx)
}

// ScanLowStock emails managers one batched alert listing every active
// material at or below its minimum. Nothing is sent when none are.
func (s *Service) ScanLowStock(ctx context.Context) (*LowStockReport, error) {
	materials, err := store.ListLowStock(ctx, s.db, 0)
	if err != nil {
		return nil, err
	}

	report := &LowStockReport{Materials: len(materials)}
	if len(materials) > 0 {
		report.Notified = s.notifier.LowStock(ctx, materials)
	}

	if err := store.SetSetting(ctx, s.db, "low_stock_last_scan", time.Now().UTC().Format(time.RFC3339)); err != nil {
		slog.Warn("failed to record low stock scan", "error", err)
	}
	slog.Info("low stock scan finished", "materials", report.Materials, "notified", report.Notified)
	return report, nil
}
