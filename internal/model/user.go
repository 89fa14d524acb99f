package model

import (
	"fmt"
	"time"
)

// User is an account that can sign in, request materials and, depending on
// role, run the store.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	Department   string     `json:"department"`
	EmployeeID   string     `json:"employee_id"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Active reports whether the user has not been deleted.
func (u *User) Active() bool {
	return u.DeletedAt == nil
}

// Roles.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleStaff   = "staff"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

var roleLevels = map[string]int{
	RoleAdmin:   3,
	RoleManager: 2,
	RoleStaff:   1,
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	_, ok := roleLevels[role]
	return ok
}

// RoleAtLeast checks if role meets or exceeds the minimum required role.
// Unknown roles never satisfy any minimum.
func RoleAtLeast(role, minimum string) bool {
	have, ok := roleLevels[role]
	if !ok {
		return false
	}
	want, ok := roleLevels[minimum]
	if !ok {
		return false
	}
	return have >= want
}

// ValidatePassword checks a new password against the length policy.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return &ValidationError{
			Field:   "password",
			Message: fmt.Sprintf("must be at least %d characters", MinPasswordLength),
		}
	}
	return nil
}

// Actor identifies the authenticated user performing an operation.
type Actor struct {
	UserID   int64
	Username string
	Role     string
}
