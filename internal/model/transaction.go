package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one immutable stock movement. Quantity is signed: issues are
// negative, receipts and returns positive, adjustments either.
type Transaction struct {
	ID              int64           `json:"id"`
	MaterialID      int64           `json:"material_id"`
	UserID          int64           `json:"user_id"`
	Type            string          `json:"transaction_type"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	ReferenceNumber string          `json:"reference_number,omitempty"`
	Purpose         string          `json:"purpose,omitempty"`
	Remarks         string          `json:"remarks,omitempty"`
	Date            time.Time       `json:"transaction_date"`

	// Joined fields (not always populated).
	MaterialNumber      string `json:"material_number,omitempty"`
	MaterialDescription string `json:"material_description,omitempty"`
	Unit                string `json:"unit,omitempty"`
	Username            string `json:"username,omitempty"`
}

// Transaction types.
const (
	TxIssue   = "issue"
	TxReceive = "receive"
	TxAdjust  = "adjust"
	TxReturn  = "return"
)

// ValidTransactionType reports whether t is a known transaction type.
func ValidTransactionType(t string) bool {
	switch t {
	case TxIssue, TxReceive, TxAdjust, TxReturn:
		return true
	}
	return false
}

// TotalValue is the absolute quantity priced at the snapshot unit price.
func (t *Transaction) TotalValue() decimal.Decimal {
	return t.Quantity.Abs().Mul(t.UnitPrice).Round(2)
}

// MarshalJSON adds the derived total value.
func (t Transaction) MarshalJSON() ([]byte, error) {
	type transaction Transaction
	return json.Marshal(struct {
		transaction
		TotalValue decimal.Decimal `json:"total_value"`
	}{transaction(t), t.TotalValue()})
}

// RequestReference formats the reference number used for issues against a request.
func RequestReference(requestID int64) string {
	return fmt.Sprintf("REQ-%d", requestID)
}
