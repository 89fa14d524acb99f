package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/erazemk/zaloga/internal/model"
)

const materialColumns = `id, material_number, description, category, unit, current_stock,
	minimum_stock, maximum_stock, unit_price, location, rack_number, bin_number, supplier,
	created_at, last_updated, is_active`

func scanMaterial(row interface{ Scan(...any) error }, m *model.Material) error {
	return row.Scan(&m.ID, &m.MaterialNumber, &m.Description, &m.Category, &m.Unit,
		&m.CurrentStock, &m.MinimumStock, &m.MaximumStock, &m.UnitPrice, &m.Location,
		&m.RackNumber, &m.BinNumber, &m.Supplier, &m.CreatedAt, &m.LastUpdated, &m.IsActive)
}

// CreateMaterial inserts a material with zero stock. Opening stock is booked
// afterwards through the ledger so it has a matching transaction.
func CreateMaterial(ctx context.Context, db DBTX, m *model.Material) (*model.Material, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO materials (material_number, description, category, unit, current_stock,
		     minimum_stock, maximum_stock, unit_price, location, rack_number, bin_number, supplier)
		 VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?)`,
		m.MaterialNumber, m.Description, m.Category, m.Unit,
		m.MinimumStock, m.MaximumStock, m.UnitPrice.Round(2),
		m.Location, m.RackNumber, m.BinNumber, m.Supplier,
	)
	if err != nil {
		return nil, fmt.Errorf("creating material: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting material id: %w", err)
	}

	return GetMaterial(ctx, db, id)
}

// GetMaterial returns a material by ID, including inactive ones.
func GetMaterial(ctx context.Context, db DBTX, id int64) (*model.Material, error) {
	m := &model.Material{}
	err := scanMaterial(db.QueryRowContext(ctx,
		`SELECT `+materialColumns+` FROM materials WHERE id = ?`, id,
	), m)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting material: %w", err)
	}
	return m, nil
}

// GetMaterialByNumber returns a material by its material number.
func GetMaterialByNumber(ctx context.Context, db DBTX, number string) (*model.Material, error) {
	m := &model.Material{}
	err := scanMaterial(db.QueryRowContext(ctx,
		`SELECT `+materialColumns+` FROM materials WHERE material_number = ?`, number,
	), m)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting material by number: %w", err)
	}
	return m, nil
}

// MaterialFilter narrows a material listing.
type MaterialFilter struct {
	Search   string
	Category string
	Page     int
	PerPage  int
}

// ListMaterials returns one page of active materials ordered by material number.
func ListMaterials(ctx context.Context, db DBTX, f MaterialFilter) (Page[model.Material], error) {
	where := ` WHERE is_active = 1`
	var args []any

	if f.Search != "" {
		where += ` AND (material_number LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\')`
		p := likePattern(f.Search)
		args = append(args, p, p)
	}
	if f.Category != "" {
		where += ` AND category = ?`
		args = append(args, f.Category)
	}

	page, perPage, offset := pageBounds(f.Page, f.PerPage)

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM materials`+where, args...).Scan(&total); err != nil {
		return Page[model.Material]{}, fmt.Errorf("counting materials: %w", err)
	}

	materials, err := queryMaterials(ctx, db,
		`SELECT `+materialColumns+` FROM materials`+where+
			` ORDER BY material_number LIMIT ? OFFSET ?`,
		append(args, perPage, offset)...)
	if err != nil {
		return Page[model.Material]{}, err
	}

	return newPage(materials, page, perPage, total), nil
}

// ListAllMaterials returns every active material.
func ListAllMaterials(ctx context.Context, db DBTX) ([]model.Material, error) {
	return queryMaterials(ctx, db,
		`SELECT `+materialColumns+` FROM materials WHERE is_active = 1 ORDER BY material_number`)
}

// ListLowStock returns active materials at or below their minimum level,
// lowest stock first. A limit of zero returns all of them.
func ListLowStock(ctx context.Context, db DBTX, limit int) ([]model.Material, error) {
	query := `SELECT ` + materialColumns + ` FROM materials
	          WHERE is_active = 1 AND current_stock <= minimum_stock
	          ORDER BY current_stock, material_number`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return queryMaterials(ctx, db, query, args...)
}

func queryMaterials(ctx context.Context, db DBTX, query string, args ...any) ([]model.Material, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing materials: %w", err)
	}
	defer rows.Close()

	var materials []model.Material
	for rows.Next() {
		var m model.Material
		if err := scanMaterial(rows, &m); err != nil {
			return nil, fmt.Errorf("scanning material: %w", err)
		}
		materials = append(materials, m)
	}
	return materials, rows.Err()
}

// ListCategories returns the distinct non-empty categories of active materials.
func ListCategories(ctx context.Context, db DBTX) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT DISTINCT category FROM materials
		 WHERE is_active = 1 AND category <> '' ORDER BY category`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// UpdateMaterial updates a material's descriptive fields, levels and price.
// Stock is never written here; use ApplyStockDelta.
func UpdateMaterial(ctx context.Context, db DBTX, m *model.Material) error {
	result, err := db.ExecContext(ctx,
		`UPDATE materials SET material_number = ?, description = ?, category = ?, unit = ?,
		     minimum_stock = ?, maximum_stock = ?, unit_price = ?, location = ?,
		     rack_number = ?, bin_number = ?, supplier = ?, last_updated = CURRENT_TIMESTAMP
		 WHERE id = ? AND is_active = 1`,
		m.MaterialNumber, m.Description, m.Category, m.Unit,
		m.MinimumStock, m.MaximumStock, m.UnitPrice.Round(2), m.Location,
		m.RackNumber, m.BinNumber, m.Supplier, m.ID,
	)
	if err != nil {
		return fmt.Errorf("updating material: %w", err)
	}
	return requireAffected(result, "material")
}

// DeactivateMaterial soft-deletes a material.
func DeactivateMaterial(ctx context.Context, db DBTX, id int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE materials SET is_active = 0, last_updated = CURRENT_TIMESTAMP
		 WHERE id = ? AND is_active = 1`, id,
	)
	if err != nil {
		return fmt.Errorf("deactivating material: %w", err)
	}
	return requireAffected(result, "material")
}

// ApplyStockDelta adds delta to a material's stock in one conditional
// statement. It returns ok=false without changing anything when the result
// would be negative or the material is inactive or missing.
func ApplyStockDelta(ctx context.Context, db DBTX, id int64, delta decimal.Decimal) (decimal.Decimal, bool, error) {
	var stock decimal.Decimal
	err := db.QueryRowContext(ctx,
		`UPDATE materials
		 SET current_stock = ROUND(current_stock + ?, 2), last_updated = CURRENT_TIMESTAMP
		 WHERE id = ? AND is_active = 1 AND ROUND(current_stock + ?, 2) >= 0
		 RETURNING current_stock`,
		delta, id, delta,
	).Scan(&stock)
	if err == sql.ErrNoRows {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("applying stock delta: %w", err)
	}
	return stock, true, nil
}
