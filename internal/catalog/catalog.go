// Package catalog maintains material master data and books stock movements
// that do not come from a request.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/erazemk/zaloga/internal/authz"
	"github.com/erazemk/zaloga/internal/ledger"
	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/store"
)

// MaxMaterialNumberLength bounds material numbers.
const MaxMaterialNumberLength = 50

// Alerter is told about materials that fell to their minimum level.
type Alerter interface {
	LowStock(ctx context.Context, materials []model.Material) int
}

// Service runs catalog operations.
type Service struct {
	db      *sql.DB
	alerter Alerter
}

// New creates a catalog service. alerter may be nil.
func New(db *sql.DB, alerter Alerter) *Service {
	return &Service{db: db, alerter: alerter}
}

// MaterialInput carries material attributes for create and update. Nil levels
// keep the current value (or the default on create). A nil CurrentStock
// leaves stock unchanged.
type MaterialInput struct {
	MaterialNumber string           `json:"material_number"`
	Description    string           `json:"description"`
	Category       string           `json:"category"`
	Unit           string           `json:"unit"`
	CurrentStock   *decimal.Decimal `json:"current_stock"`
	MinimumStock   *decimal.Decimal `json:"minimum_stock"`
	MaximumStock   *decimal.Decimal `json:"maximum_stock"`
	UnitPrice      *decimal.Decimal `json:"unit_price"`
	Location       string           `json:"location"`
	RackNumber     string           `json:"rack_number"`
	BinNumber      string           `json:"bin_number"`
	Supplier       string           `json:"supplier"`
}

// round keeps quantities and price at the two decimals the store holds.
func (in *MaterialInput) round() {
	for _, d := range []**decimal.Decimal{&in.CurrentStock, &in.MinimumStock, &in.MaximumStock, &in.UnitPrice} {
		if *d != nil {
			r := (*d).Round(2)
			*d = &r
		}
	}
}

// apply copies the input onto m and validates the result.
func (in MaterialInput) apply(m *model.Material) error {
	m.MaterialNumber = strings.TrimSpace(in.MaterialNumber)
	m.Description = strings.TrimSpace(in.Description)
	m.Category = strings.TrimSpace(in.Category)
	m.Unit = strings.ToUpper(strings.TrimSpace(in.Unit))
	m.Location = strings.TrimSpace(in.Location)
	m.RackNumber = strings.TrimSpace(in.RackNumber)
	m.BinNumber = strings.TrimSpace(in.BinNumber)
	m.Supplier = strings.TrimSpace(in.Supplier)
	if m.Unit == "" {
		m.Unit = model.UnitPieces
	}
	if in.MinimumStock != nil {
		m.MinimumStock = *in.MinimumStock
	}
	if in.MaximumStock != nil {
		m.MaximumStock = *in.MaximumStock
	}
	if in.UnitPrice != nil {
		m.UnitPrice = *in.UnitPrice
	}
	return validate(m)
}

func validate(m *model.Material) error {
	switch {
	case m.MaterialNumber == "":
		return model.Invalid("material_number", "is required")
	case utf8.RuneCountInString(m.MaterialNumber) > MaxMaterialNumberLength:
		return model.Invalid("material_number", fmt.Sprintf("must be at most %d characters", MaxMaterialNumberLength))
	case m.Description == "":
		return model.Invalid("description", "is required")
	case !model.ValidUnit(m.Unit):
		return model.Invalid("unit", fmt.Sprintf("unknown unit %q", m.Unit))
	case m.MinimumStock.IsNegative():
		return model.Invalid("minimum_stock", "must not be negative")
	case m.MaximumStock.IsNegative():
		return model.Invalid("maximum_stock", "must not be negative")
	case m.UnitPrice.IsNegative():
		return model.Invalid("unit_price", "must not be negative")
	}
	return nil
}

func checkStock(stock *decimal.Decimal) error {
	if stock != nil && stock.IsNegative() {
		return model.Invalid("current_stock", "must not be negative")
	}
	return nil
}

// Create adds a material. Opening stock, if any, is booked as a receive
// transaction.
func (s *Service) Create(ctx context.Context, actor model.Actor, in MaterialInput) (*model.Material, error) {
	if err := authz.Check(actor.Role, authz.ManageMaterials); err != nil {
		return nil, err
	}

	var m *model.Material
	err := store.InTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		m, err = s.create(ctx, tx, actor, in, "Initial stock entry")
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "material created", "user", actor.Username, "material", m.MaterialNumber,
		"stock", m.CurrentStock.String())
	return m, nil
}

func (s *Service) create(ctx context.Context, tx *sql.Tx, actor model.Actor, in MaterialInput, remarks string) (*model.Material, error) {
	m := &model.Material{
		MinimumStock: model.DefaultMinimumStock,
		MaximumStock: model.DefaultMaximumStock,
	}
	in.round()
	if err := in.apply(m); err != nil {
		return nil, err
	}
	if err := checkStock(in.CurrentStock); err != nil {
		return nil, err
	}
	if err := s.numberFree(ctx, tx, m.MaterialNumber, 0); err != nil {
		return nil, err
	}

	created, err := store.CreateMaterial(ctx, tx, m)
	if err != nil {
		return nil, err
	}

	if in.CurrentStock != nil && in.CurrentStock.IsPositive() {
		p, err := ledger.Receive(ctx, tx, created.ID, actor.UserID, *in.CurrentStock, "", remarks)
		if err != nil {
			return nil, err
		}
		created = p.Material
	}
	return created, nil
}

func (s *Service) numberFree(ctx context.Context, tx store.DBTX, number string, self int64) error {
	existing, err := store.GetMaterialByNumber(ctx, tx, number)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != self {
		return model.Invalid("material_number", fmt.Sprintf("%s already exists", number))
	}
	return nil
}

// Update edits a material. A changed CurrentStock is booked as an adjustment
// of the difference.
func (s *Service) Update(ctx context.Context, actor model.Actor, id int64, in MaterialInput) (*model.Material, error) {
	if err := authz.Check(actor.Role, authz.ManageMaterials); err != nil {
		return nil, err
	}

	var (
		m       *model.Material
		posting *ledger.Posting
	)
	err := store.InTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		m, posting, err = s.update(ctx, tx, actor, id, in, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "material updated", "user", actor.Username, "material", m.MaterialNumber)
	s.alertIfCrossed(ctx, posting)
	return m, nil
}

func (s *Service) update(ctx context.Context, tx *sql.Tx, actor model.Actor, id int64, in MaterialInput, note string) (*model.Material, *ledger.Posting, error) {
	m, err := store.GetMaterial(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}
	if m == nil || !m.IsActive {
		return nil, nil, fmt.Errorf("material %d: %w", id, model.ErrNotFound)
	}
	before := m.CurrentStock

	in.round()
	if err := in.apply(m); err != nil {
		return nil, nil, err
	}
	if err := checkStock(in.CurrentStock); err != nil {
		return nil, nil, err
	}
	if err := s.numberFree(ctx, tx, m.MaterialNumber, m.ID); err != nil {
		return nil, nil, err
	}
	if err := store.UpdateMaterial(ctx, tx, m); err != nil {
		return nil, nil, err
	}

	var posting *ledger.Posting
	if in.CurrentStock != nil && !in.CurrentStock.Equal(before) {
		reason := fmt.Sprintf("Stock adjusted from %s to %s", before.StringFixed(2), in.CurrentStock.StringFixed(2))
		if note != "" {
			reason += " " + note
		}
		posting, err = ledger.AdjustStock(ctx, tx, m.ID, actor.UserID, in.CurrentStock.Sub(before), reason)
		if err != nil {
			return nil, nil, err
		}
	}

	m, err = store.GetMaterial(ctx, tx, id)
	return m, posting, err
}

// Deactivate soft-deletes a material. Its history is kept.
func (s *Service) Deactivate(ctx context.Context, actor model.Actor, id int64) error {
	if err := authz.Check(actor.Role, authz.DeactivateMaterial); err != nil {
		return err
	}
	if err := store.DeactivateMaterial(ctx, s.db, id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "material deactivated", "user", actor.Username, "id", id)
	return nil
}

// MovementInput is a manual stock movement.
type MovementInput struct {
	Type      string          `json:"transaction_type"`
	Quantity  decimal.Decimal `json:"quantity"`
	Reference string          `json:"reference_number"`
	Remarks   string          `json:"remarks"`
}

// RecordMovement books a receive, return or adjustment against a material.
// Issues only happen through requests.
func (s *Service) RecordMovement(ctx context.Context, actor model.Actor, id int64, in MovementInput) (*ledger.Posting, error) {
	if err := authz.Check(actor.Role, authz.RecordMovement); err != nil {
		return nil, err
	}
	switch in.Type {
	case model.TxReceive, model.TxReturn, model.TxAdjust:
	case model.TxIssue:
		return nil, model.Invalid("transaction_type", "issues are recorded through requests")
	default:
		return nil, model.Invalid("transaction_type", fmt.Sprintf("unknown type %q", in.Type))
	}

	var p *ledger.Posting
	err := store.InTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		p, err = ledger.Post(ctx, tx, ledger.Entry{
			MaterialID: id,
			UserID:     actor.UserID,
			Type:       in.Type,
			Quantity:   in.Quantity,
			Reference:  strings.TrimSpace(in.Reference),
			Remarks:    strings.TrimSpace(in.Remarks),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "stock movement recorded", "user", actor.Username, "material", p.Material.MaterialNumber,
		"type", in.Type, "quantity", p.Transaction.Quantity.String(), "stock", p.Material.CurrentStock.String())
	s.alertIfCrossed(ctx, p)
	return p, nil
}

// Reconcile compares one material's stock with its transaction log.
func (s *Service) Reconcile(ctx context.Context, actor model.Actor, id int64) (*ledger.Reconciliation, error) {
	if err := authz.Check(actor.Role, authz.ReconcileStock); err != nil {
		return nil, err
	}
	return ledger.Reconcile(ctx, s.db, id)
}

func (s *Service) alertIfCrossed(ctx context.Context, p *ledger.Posting) {
	if s.alerter == nil || p == nil || !p.CrossedMinimum() {
		return
	}
	s.alerter.LowStock(ctx, []model.Material{*p.Material})
}
