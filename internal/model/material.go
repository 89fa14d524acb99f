package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Material is a stocked article identified by its material number.
type Material struct {
	ID             int64           `json:"id"`
	MaterialNumber string          `json:"material_number"`
	Description    string          `json:"description"`
	Category       string          `json:"category"`
	Unit           string          `json:"unit"`
	CurrentStock   decimal.Decimal `json:"current_stock"`
	MinimumStock   decimal.Decimal `json:"minimum_stock"`
	MaximumStock   decimal.Decimal `json:"maximum_stock"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Location       string          `json:"location"`
	RackNumber     string          `json:"rack_number"`
	BinNumber      string          `json:"bin_number"`
	Supplier       string          `json:"supplier"`
	CreatedAt      time.Time       `json:"created_at"`
	LastUpdated    time.Time       `json:"last_updated"`
	IsActive       bool            `json:"is_active"`
}

// Units of measure.
const (
	UnitPieces = "PCS"
	UnitKilo   = "KG"
	UnitLitre  = "LTR"
	UnitMetre  = "MTR"
)

// Defaults applied when a material is created without explicit levels.
var (
	DefaultMinimumStock = decimal.NewFromInt(10)
	DefaultMaximumStock = decimal.NewFromInt(1000)
)

// ValidUnit reports whether unit is a known unit of measure.
func ValidUnit(unit string) bool {
	switch unit {
	case UnitPieces, UnitKilo, UnitLitre, UnitMetre:
		return true
	}
	return false
}

// IsLowStock reports whether stock is at or below the minimum level.
func (m *Material) IsLowStock() bool {
	return m.CurrentStock.LessThanOrEqual(m.MinimumStock)
}

// StockValue is the value of the stock on hand at the current unit price.
func (m *Material) StockValue() decimal.Decimal {
	return m.CurrentStock.Mul(m.UnitPrice).Round(2)
}

// MarshalJSON adds the derived low-stock flag and stock value.
func (m Material) MarshalJSON() ([]byte, error) {
	type material Material
	return json.Marshal(struct {
		material
		IsLowStock bool            `json:"is_low_stock"`
		StockValue decimal.Decimal `json:"stock_value"`
	}{material(m), m.IsLowStock(), m.StockValue()})
}
