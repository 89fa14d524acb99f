// Package sheet reads material imports from and writes reports to xlsx workbooks.
package sheet

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/erazemk/zaloga/internal/model"
)

// Column names recognized in an import header row.
const (
	ColMaterialNumber = "material_number"
	ColDescription    = "description"
	ColCurrentStock   = "current_stock"
	ColCategory       = "category"
	ColUnit           = "unit"
	ColMinimumStock   = "minimum_stock"
	ColMaximumStock   = "maximum_stock"
	ColUnitPrice      = "unit_price"
	ColLocation       = "location"
	ColRackNumber     = "rack_number"
	ColBinNumber      = "bin_number"
	ColSupplier       = "supplier"
)

// RequiredColumns must all be present in an import header.
var RequiredColumns = []string{ColMaterialNumber, ColDescription, ColCurrentStock}

// MaterialRow is one data row of an import. Optional fields are nil when the
// column is missing or the cell is empty. Err is set when the row could not
// be parsed; such rows are reported, not applied.
type MaterialRow struct {
	Line           int
	MaterialNumber string
	Description    string
	CurrentStock   decimal.Decimal
	Category       *string
	Unit           *string
	MinimumStock   *decimal.Decimal
	MaximumStock   *decimal.Decimal
	UnitPrice      *decimal.Decimal
	Location       *string
	RackNumber     *string
	BinNumber      *string
	Supplier       *string
	Err            error
}

// ParseMaterials reads the active sheet of an xlsx workbook. The first row is
// the header. A header missing a required column fails the whole import with
// a *model.ValidationError.
func ParseMaterials(r io.Reader) ([]MaterialRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, model.Invalid("file", "not a readable xlsx workbook")
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(f.GetSheetName(f.GetActiveSheetIndex()), excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("reading sheet: %w", err)
	}
	if len(rows) == 0 {
		return nil, model.Invalid("file", "workbook is empty")
	}

	index := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}

	var missing []string
	for _, c := range RequiredColumns {
		if _, ok := index[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, model.Invalid("file", "missing required columns: "+strings.Join(missing, ", "))
	}

	var out []MaterialRow
	for i, cells := range rows[1:] {
		c := cellReader{index: index, cells: cells}
		if c.blank() {
			continue
		}
		out = append(out, c.material(i+2))
	}
	return out, nil
}

type cellReader struct {
	index map[string]int
	cells []string
}

func (c cellReader) get(col string) string {
	i, ok := c.index[col]
	if !ok || i >= len(c.cells) {
		return ""
	}
	return strings.TrimSpace(c.cells[i])
}

func (c cellReader) blank() bool {
	for _, v := range c.cells {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func (c cellReader) optional(col string) *string {
	v := c.get(col)
	if v == "" {
		return nil
	}
	return &v
}

func (c cellReader) optionalDecimal(col string) (*decimal.Decimal, error) {
	v := c.get(col)
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %q is not a number", col, v)
	}
	return &d, nil
}

func (c cellReader) material(line int) MaterialRow {
	row := MaterialRow{
		Line:           line,
		MaterialNumber: c.get(ColMaterialNumber),
		Description:    c.get(ColDescription),
		Category:       c.optional(ColCategory),
		Location:       c.optional(ColLocation),
		RackNumber:     c.optional(ColRackNumber),
		BinNumber:      c.optional(ColBinNumber),
		Supplier:       c.optional(ColSupplier),
	}
	if u := c.optional(ColUnit); u != nil {
		upper := strings.ToUpper(*u)
		row.Unit = &upper
	}

	stock := c.get(ColCurrentStock)
	if stock == "" {
		row.Err = fmt.Errorf("%s is required", ColCurrentStock)
		return row
	}
	d, err := decimal.NewFromString(stock)
	if err != nil {
		row.Err = fmt.Errorf("%s: %q is not a number", ColCurrentStock, stock)
		return row
	}
	row.CurrentStock = d

	if row.MinimumStock, err = c.optionalDecimal(ColMinimumStock); err != nil {
		row.Err = err
		return row
	}
	if row.MaximumStock, err = c.optionalDecimal(ColMaximumStock); err != nil {
		row.Err = err
		return row
	}
	if row.UnitPrice, err = c.optionalDecimal(ColUnitPrice); err != nil {
		row.Err = err
		return row
	}
	return row
}
