package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaterialRequest is a user's request to draw material from the store.
type MaterialRequest struct {
	ID                int64           `json:"id"`
	MaterialID        int64           `json:"material_id"`
	UserID            int64           `json:"user_id"`
	QuantityRequested decimal.Decimal `json:"quantity_requested"`
	QuantityApproved  decimal.Decimal `json:"quantity_approved"`
	Purpose           string          `json:"purpose"`
	Priority          string          `json:"priority"`
	Status            string          `json:"status"`
	RequestDate       time.Time       `json:"request_date"`
	ApprovedDate      *time.Time      `json:"approved_date,omitempty"`
	ApprovedBy        *int64          `json:"approved_by,omitempty"`
	IssuedDate        *time.Time      `json:"issued_date,omitempty"`
	IssuedBy          *int64          `json:"issued_by,omitempty"`
	Remarks           string          `json:"remarks,omitempty"`

	// Joined fields (not always populated).
	MaterialNumber      string `json:"material_number,omitempty"`
	MaterialDescription string `json:"material_description,omitempty"`
	Unit                string `json:"unit,omitempty"`
	RequesterName       string `json:"requester_name,omitempty"`
	RequesterEmail      string `json:"requester_email,omitempty"`
	RequesterDepartment string `json:"requester_department,omitempty"`
	ApproverName        string `json:"approver_name,omitempty"`
	IssuerName          string `json:"issuer_name,omitempty"`
}

// Request statuses.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusIssued    = "issued"
	StatusCancelled = "cancelled"
)

// Request priorities.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// MaxPurposeLength bounds the purpose text of a request.
const MaxPurposeLength = 200

var transitions = map[string][]string{
	StatusPending:  {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved: {StatusIssued},
}

// CanTransition reports whether a request may move from one status to another.
// Rejected, issued and cancelled are terminal.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidStatus reports whether status is a known request status.
func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusApproved, StatusRejected, StatusIssued, StatusCancelled:
		return true
	}
	return false
}

// ValidPriority reports whether priority is a known request priority.
func ValidPriority(priority string) bool {
	switch priority {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Reference is the transaction reference number recorded when the request is issued.
func (r *MaterialRequest) Reference() string {
	return RequestReference(r.ID)
}
