package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/erazemk/zaloga/internal/authz"
	"github.com/erazemk/zaloga/internal/metrics"
	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/sheet"
	"github.com/erazemk/zaloga/internal/store"
)

// RowError reports why one import row was skipped. Row is the worksheet line.
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// ImportResult summarizes a bulk import.
type ImportResult struct {
	Created int        `json:"created"`
	Updated int        `json:"updated"`
	Failed  int        `json:"failed"`
	Errors  []RowError `json:"errors"`
}

// Import applies parsed worksheet rows. Each row commits on its own, so a bad
// row is reported and skipped without undoing the others. Existing material
// numbers are updated and their stock adjusted to the sheet value; new ones
// are created with the sheet value as opening stock.
func (s *Service) Import(ctx context.Context, actor model.Actor, rows []sheet.MaterialRow) (*ImportResult, error) {
	if err := authz.Check(actor.Role, authz.ImportMaterials); err != nil {
		return nil, err
	}

	result := &ImportResult{Errors: []RowError{}}
	for _, row := range rows {
		created, err := s.importRow(ctx, actor, row)
		switch {
		case err != nil:
			result.Failed++
			result.Errors = append(result.Errors, RowError{Row: row.Line, Error: err.Error()})
			metrics.ImportRows.WithLabelValues("failed").Inc()
		case created:
			result.Created++
			metrics.ImportRows.WithLabelValues("created").Inc()
		default:
			result.Updated++
			metrics.ImportRows.WithLabelValues("updated").Inc()
		}
	}

	slog.InfoContext(ctx, "materials imported", "user", actor.Username,
		"created", result.Created, "updated", result.Updated, "failed", result.Failed)
	return result, nil
}

func (s *Service) importRow(ctx context.Context, actor model.Actor, row sheet.MaterialRow) (bool, error) {
	if row.Err != nil {
		return false, row.Err
	}
	if row.MaterialNumber == "" {
		return false, model.Invalid(sheet.ColMaterialNumber, "is required")
	}

	var created bool
	err := store.InTx(ctx, s.db, func(tx *sql.Tx) error {
		existing, err := store.GetMaterialByNumber(ctx, tx, row.MaterialNumber)
		if err != nil {
			return err
		}

		if existing == nil {
			created = true
			_, err = s.create(ctx, tx, actor, rowInput(row, nil), "Initial stock entry (import)")
			return err
		}
		if !existing.IsActive {
			return fmt.Errorf("material %s is deactivated", existing.MaterialNumber)
		}
		_, _, err = s.update(ctx, tx, actor, existing.ID, rowInput(row, existing), "(import)")
		return err
	})
	return created, err
}

// rowInput builds the input for a row, keeping base's values for columns the
// row leaves empty.
func rowInput(row sheet.MaterialRow, base *model.Material) MaterialInput {
	stock := row.CurrentStock
	in := MaterialInput{
		MaterialNumber: row.MaterialNumber,
		Description:    row.Description,
		CurrentStock:   &stock,
		MinimumStock:   row.MinimumStock,
		MaximumStock:   row.MaximumStock,
		UnitPrice:      row.UnitPrice,
	}
	if base != nil {
		in.Category = base.Category
		in.Unit = base.Unit
		in.Location = base.Location
		in.RackNumber = base.RackNumber
		in.BinNumber = base.BinNumber
		in.Supplier = base.Supplier
	}

	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&in.Category, row.Category)
	set(&in.Unit, row.Unit)
	set(&in.Location, row.Location)
	set(&in.RackNumber, row.RackNumber)
	set(&in.BinNumber, row.BinNumber)
	set(&in.Supplier, row.Supplier)
	return in
}
