package sheet

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/erazemk/zaloga/internal/model"
)

// ContentType is the MIME type of the workbooks written here.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WriteTransactions writes the transactions as a workbook with one row each.
func WriteTransactions(w io.Writer, txs []model.Transaction) error {
	header := []any{
		"date", "material_number", "description", "type", "quantity", "unit",
		"unit_price", "total_value", "reference_number", "purpose", "remarks", "user",
	}
	return write(w, "Transactions", header, len(txs), func(i int) []any {
		t := txs[i]
		return []any{
			t.Date.Format("2006-01-02 15:04:05"),
			t.MaterialNumber,
			t.MaterialDescription,
			t.Type,
			t.Quantity.InexactFloat64(),
			t.Unit,
			t.UnitPrice.InexactFloat64(),
			t.TotalValue().InexactFloat64(),
			t.ReferenceNumber,
			t.Purpose,
			t.Remarks,
			t.Username,
		}
	})
}

// WriteMaterials writes a stock list whose header matches the import format,
// so an exported file can be edited and imported again.
func WriteMaterials(w io.Writer, materials []model.Material) error {
	header := []any{
		ColMaterialNumber, ColDescription, ColCategory, ColUnit, ColCurrentStock,
		ColMinimumStock, ColMaximumStock, ColUnitPrice, ColLocation, ColRackNumber,
		ColBinNumber, ColSupplier,
	}
	return write(w, "Materials", header, len(materials), func(i int) []any {
		m := materials[i]
		return []any{
			m.MaterialNumber,
			m.Description,
			m.Category,
			m.Unit,
			m.CurrentStock.InexactFloat64(),
			m.MinimumStock.InexactFloat64(),
			m.MaximumStock.InexactFloat64(),
			m.UnitPrice.InexactFloat64(),
			m.Location,
			m.RackNumber,
			m.BinNumber,
			m.Supplier,
		}
	})
}

func write(w io.Writer, name string, header []any, n int, row func(int) []any) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if err := f.SetSheetName(sheet, name); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i := 0; i < n; i++ {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("addressing row %d: %w", i+2, err)
		}
		values := row(i)
		if err := f.SetSheetRow(name, cell, &values); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}
