package store

import (
	"context"
	"errors"
	"testing"

	"github.com/erazemk/zaloga/internal/db"
	"github.com/erazemk/zaloga/internal/model"
)

func TestCreateAndGetUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user := seedUser(t, database, "testuser", model.RoleStaff)
	if user.Username != "testuser" {
		t.Errorf("expected username 'testuser', got %q", user.Username)
	}
	if user.Role != model.RoleStaff {
		t.Errorf("expected role 'staff', got %q", user.Role)
	}
	if user.Department != "Maintenance" {
		t.Errorf("expected department 'Maintenance', got %q", user.Department)
	}

	got, err := GetUser(ctx, database, user.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Email != "testuser@example.com" {
		t.Errorf("expected email 'testuser@example.com', got %q", got.Email)
	}
	if got.LastLogin != nil {
		t.Error("expected no last login for a new user")
	}
}

func TestGetUserByUsername(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	seedUser(t, database, "alice", model.RoleAdmin)

	user, err := GetUserByUsername(ctx, database, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if user == nil {
		t.Fatal("expected user, got nil")
	}

	missing, err := GetUserByUsername(ctx, database, "bob")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing user")
	}
}

func TestUsernameReusableAfterDelete(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	old := seedUser(t, database, "carol", model.RoleStaff)
	if err := DeleteUser(ctx, database, old.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	_, err := CreateUser(ctx, database, &model.User{Username: "carol", PasswordHash: "h", Role: model.RoleManager})
	if err != nil {
		t.Fatalf("recreating deleted username: %v", err)
	}

	got, _ := GetUserByUsername(ctx, database, "carol")
	if got == nil || !got.Active() || got.Role != model.RoleManager {
		t.Errorf("expected the active manager account, got %+v", got)
	}
}

func TestListUsersByRole(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	seedUser(t, database, "a", model.RoleStaff)
	seedUser(t, database, "b", model.RoleManager)
	admin := seedUser(t, database, "c", model.RoleAdmin)
	gone := seedUser(t, database, "d", model.RoleManager)
	DeleteUser(ctx, database, gone.ID)

	users, err := ListUsersByRole(ctx, database, model.RoleManager, model.RoleAdmin)
	if err != nil {
		t.Fatalf("ListUsersByRole: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	if users[1].ID != admin.ID {
		t.Errorf("expected admin last, got %q", users[1].Username)
	}

	all, _ := ListUsers(ctx, database)
	if len(all) != 3 {
		t.Errorf("expected 3 active users, got %d", len(all))
	}
}

func TestUpdateUserAndPassword(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user := seedUser(t, database, "pwuser", model.RoleStaff)
	user.Role = model.RoleManager
	user.Department = "Stores"
	if err := UpdateUser(ctx, database, user); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if err := UpdateUserPassword(ctx, database, user.ID, "newhash"); err != nil {
		t.Fatalf("UpdateUserPassword: %v", err)
	}
	if err := TouchLastLogin(ctx, database, user.ID); err != nil {
		t.Fatalf("TouchLastLogin: %v", err)
	}

	got, _ := GetUser(ctx, database, user.ID)
	if got.PasswordHash != "newhash" {
		t.Errorf("expected password hash 'newhash', got %q", got.PasswordHash)
	}
	if got.Role != model.RoleManager || got.Department != "Stores" {
		t.Errorf("profile not updated: %+v", got)
	}
	if got.LastLogin == nil {
		t.Error("expected last login to be set")
	}
}

func TestUpdateMissingUser(t *testing.T) {
	database := db.NewTestDB(t)

	err := UpdateUserPassword(context.Background(), database, 404, "hash")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
