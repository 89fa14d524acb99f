// Package authz holds the single capability table that decides which role may
// run which operation.
package authz

import (
	"fmt"

	"github.com/erazemk/zaloga/internal/model"
)

// Operation names an action guarded by a capability check.
type Operation string

// Operations.
const (
	ViewMaterials      Operation = "materials.view"
	ManageMaterials    Operation = "materials.manage"
	DeactivateMaterial Operation = "materials.deactivate"
	ImportMaterials    Operation = "materials.import"
	RecordMovement     Operation = "stock.movement"
	ReconcileStock     Operation = "stock.reconcile"
	SubmitRequest      Operation = "requests.submit"
	ViewAllRequests    Operation = "requests.view_all"
	ApproveRequest     Operation = "requests.approve"
	RejectRequest      Operation = "requests.reject"
	IssueRequest       Operation = "requests.issue"
	CancelAnyRequest   Operation = "requests.cancel_any"
	ViewTransactions   Operation = "transactions.view"
	ViewReports        Operation = "reports.view"
	TriggerAlerts      Operation = "alerts.trigger"
	ManageUsers        Operation = "users.manage"
)

// minimumRole lists the lowest role allowed to run each operation.
var minimumRole = map[Operation]string{
	ViewMaterials:      model.RoleStaff,
	ManageMaterials:    model.RoleManager,
	DeactivateMaterial: model.RoleAdmin,
	ImportMaterials:    model.RoleManager,
	RecordMovement:     model.RoleManager,
	ReconcileStock:     model.RoleManager,
	SubmitRequest:      model.RoleStaff,
	ViewAllRequests:    model.RoleManager,
	ApproveRequest:     model.RoleManager,
	RejectRequest:      model.RoleManager,
	IssueRequest:       model.RoleManager,
	CancelAnyRequest:   model.RoleManager,
	ViewTransactions:   model.RoleManager,
	ViewReports:        model.RoleManager,
	TriggerAlerts:      model.RoleManager,
	ManageUsers:        model.RoleAdmin,
}

type capability struct {
	op   Operation
	role string
}

var capabilities = buildCapabilities()

func buildCapabilities() map[capability]bool {
	roles := []string{model.RoleAdmin, model.RoleManager, model.RoleStaff}
	caps := make(map[capability]bool, len(minimumRole)*len(roles))
	for op, minimum := range minimumRole {
		for _, role := range roles {
			if model.RoleAtLeast(role, minimum) {
				caps[capability{op, role}] = true
			}
		}
	}
	return caps
}

// Allowed reports whether role may run op. Unknown roles and operations are denied.
func Allowed(role string, op Operation) bool {
	return capabilities[capability{op, role}]
}

// Check returns an error wrapping model.ErrForbidden when role may not run op.
func Check(role string, op Operation) error {
	if Allowed(role, op) {
		return nil
	}
	return fmt.Errorf("%w: role %q may not perform %s", model.ErrForbidden, role, op)
}

// MinimumRole returns the lowest role allowed to run op.
func MinimumRole(op Operation) (string, bool) {
	role, ok := minimumRole[op]
	return role, ok
}
