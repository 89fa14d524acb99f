package sheet

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/erazemk/zaloga/internal/model"
)

func workbook(t *testing.T, rows ...[]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &r))
	}

	buf := &bytes.Buffer{}
	require.NoError(t, f.Write(buf))
	return buf
}

func TestParseMaterials(t *testing.T) {
	buf := workbook(t,
		[]any{"Material_Number", "Description", "Current_Stock", "Unit", "Unit_Price", "Category"},
		[]any{"M-001", "Bolt", 12, "pcs", "0.35", "Fasteners"},
		[]any{"", "", "", "", "", ""},
		[]any{"M-002", "Oil", "4.5", "", "", ""},
		[]any{"M-003", "Broken", "lots", "", "", ""},
		[]any{"M-004", "Priced", 1, "", "cheap", ""},
	)

	rows, err := ParseMaterials(buf)
	require.NoError(t, err)
	require.Len(t, rows, 4, "blank rows are skipped")

	first := rows[0]
	assert.Equal(t, 2, first.Line)
	assert.Equal(t, "M-001", first.MaterialNumber)
	assert.True(t, first.CurrentStock.Equal(decimal.NewFromInt(12)))
	require.NotNil(t, first.Unit)
	assert.Equal(t, model.UnitPieces, *first.Unit)
	require.NotNil(t, first.UnitPrice)
	assert.True(t, first.UnitPrice.Equal(decimal.RequireFromString("0.35")))
	require.NotNil(t, first.Category)
	assert.Nil(t, first.Location, "missing optional column")
	assert.NoError(t, first.Err)

	second := rows[1]
	assert.Equal(t, 4, second.Line)
	assert.Nil(t, second.Unit, "empty optional cell")
	assert.True(t, second.CurrentStock.Equal(decimal.RequireFromString("4.5")))

	assert.Error(t, rows[2].Err)
	assert.Contains(t, rows[3].Err.Error(), ColUnitPrice)
}

func TestParseMaterialsIgnoresNumberFormats(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())

	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"material_number", "description", "current_stock", "unit_price"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"M-001", "Cable", 1234.5, 0.125}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"M-002", "Tape", 12.5, 3}))

	thousands, err := f.NewStyle(&excelize.Style{NumFmt: 3}) // #,##0
	require.NoError(t, err)
	whole, err := f.NewStyle(&excelize.Style{NumFmt: 1}) // 0
	require.NoError(t, err)
	require.NoError(t, f.SetCellStyle(sheet, "C2", "D2", thousands))
	require.NoError(t, f.SetCellStyle(sheet, "C3", "C3", whole))

	buf := &bytes.Buffer{}
	require.NoError(t, f.Write(buf))

	rows, err := ParseMaterials(buf)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NoError(t, rows[0].Err)
	assert.True(t, rows[0].CurrentStock.Equal(decimal.RequireFromString("1234.5")), "got %s", rows[0].CurrentStock)
	require.NotNil(t, rows[0].UnitPrice)
	assert.True(t, rows[0].UnitPrice.Equal(decimal.RequireFromString("0.125")), "got %s", rows[0].UnitPrice)

	require.NoError(t, rows[1].Err)
	assert.True(t, rows[1].CurrentStock.Equal(decimal.RequireFromString("12.5")), "got %s", rows[1].CurrentStock)
}

func TestParseMaterialsMissingColumns(t *testing.T) {
	buf := workbook(t, []any{"material_number", "quantity"}, []any{"M-1", 3})

	_, err := ParseMaterials(buf)
	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Message, "description")
	assert.Contains(t, ve.Message, "current_stock")
}

func TestParseMaterialsRejectsGarbage(t *testing.T) {
	_, err := ParseMaterials(strings.NewReader("not a workbook"))
	var ve *model.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestWriteMaterialsRoundTrips(t *testing.T) {
	materials := []model.Material{{
		MaterialNumber: "M-9",
		Description:    "Gasket",
		Unit:           model.UnitPieces,
		CurrentStock:   decimal.RequireFromString("2.5"),
		MinimumStock:   decimal.NewFromInt(1),
		MaximumStock:   decimal.NewFromInt(50),
		UnitPrice:      decimal.RequireFromString("1.2"),
		Location:       "A1",
	}}

	buf := &bytes.Buffer{}
	require.NoError(t, WriteMaterials(buf, materials))

	rows, err := ParseMaterials(buf)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "M-9", rows[0].MaterialNumber)
	assert.True(t, rows[0].CurrentStock.Equal(decimal.RequireFromString("2.5")))
	require.NotNil(t, rows[0].Location)
	assert.Equal(t, "A1", *rows[0].Location)
}

func TestWriteTransactions(t *testing.T) {
	txs := []model.Transaction{{
		MaterialNumber: "M-1",
		Type:           model.TxIssue,
		Quantity:       decimal.NewFromInt(-2),
		UnitPrice:      decimal.NewFromInt(3),
		Date:           time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Username:       "boss",
	}}

	buf := &bytes.Buffer{}
	require.NoError(t, WriteTransactions(buf, txs))

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Transactions")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "date", rows[0][0])
	assert.Equal(t, "2026-03-01 10:00:00", rows[1][0])
	assert.Equal(t, "-2", rows[1][4])
	assert.Equal(t, "6", rows[1][7])
}
