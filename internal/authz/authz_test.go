package authz

import (
	"errors"
	"testing"

	"github.com/erazemk/zaloga/internal/model"
)

func TestAllowed(t *testing.T) {
	tests := []struct {
		role string
		op   Operation
		want bool
	}{
		{model.RoleStaff, SubmitRequest, true},
		{model.RoleStaff, ViewMaterials, true},
		{model.RoleStaff, ApproveRequest, false},
		{model.RoleStaff, IssueRequest, false},
		{model.RoleStaff, ManageMaterials, false},
		{model.RoleStaff, ViewTransactions, false},
		{model.RoleManager, ApproveRequest, true},
		{model.RoleManager, RejectRequest, true},
		{model.RoleManager, IssueRequest, true},
		{model.RoleManager, ImportMaterials, true},
		{model.RoleManager, DeactivateMaterial, false},
		{model.RoleManager, ManageUsers, false},
		{model.RoleAdmin, DeactivateMaterial, true},
		{model.RoleAdmin, ManageUsers, true},
		{model.RoleAdmin, IssueRequest, true},
		{"", SubmitRequest, false},
		{"guest", ViewMaterials, false},
		{model.RoleAdmin, Operation("unknown"), false},
	}

	for _, tt := range tests {
		if got := Allowed(tt.role, tt.op); got != tt.want {
			t.Errorf("Allowed(%q, %s) = %v, want %v", tt.role, tt.op, got, tt.want)
		}
	}
}

func TestCheckWrapsForbidden(t *testing.T) {
	err := Check(model.RoleStaff, IssueRequest)
	if !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := Check(model.RoleManager, IssueRequest); err != nil {
		t.Fatalf("expected manager to be allowed, got %v", err)
	}
}

func TestEveryOperationHasMinimumRole(t *testing.T) {
	for op := range minimumRole {
		role, ok := MinimumRole(op)
		if !ok || !model.ValidRole(role) {
			t.Errorf("operation %s has invalid minimum role %q", op, role)
		}
		if !Allowed(model.RoleAdmin, op) {
			t.Errorf("admin denied %s", op)
		}
	}
}
