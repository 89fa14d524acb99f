package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/erazemk/zaloga/internal/model"
)

const userColumns = `id, username, email, password_hash, role, department, employee_id,
	created_at, last_login, deleted_at`

func scanUser(row interface{ Scan(...any) error }, u *model.User) error {
	return row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Department,
		&u.EmployeeID, &u.CreatedAt, &u.LastLogin, &u.DeletedAt)
}

// CreateUser creates a new user from u. PasswordHash must already be set.
func CreateUser(ctx context.Context, db DBTX, u *model.User) (*model.User, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, role, department, employee_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.Username, u.Email, u.PasswordHash, u.Role, u.Department, u.EmployeeID,
	)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	return GetUser(ctx, db, id)
}

// GetUser returns a user by ID, including soft-deleted users.
func GetUser(ctx context.Context, db DBTX, id int64) (*model.User, error) {
	u := &model.User{}
	err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	), u)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByUsername returns the active user with the given username, or the
// most recently deleted one when no active user has it.
func GetUserByUsername(ctx context.Context, db DBTX, username string) (*model.User, error) {
	u := &model.User{}
	err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?
		 ORDER BY deleted_at IS NOT NULL, id DESC LIMIT 1`, username,
	), u)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by username: %w", err)
	}
	return u, nil
}

// ListUsers returns all non-deleted users.
func ListUsers(ctx context.Context, db DBTX) ([]model.User, error) {
	return queryUsers(ctx, db,
		`SELECT `+userColumns+` FROM users WHERE deleted_at IS NULL ORDER BY id`)
}

// ListUsersByRole returns active users holding any of the given roles.
func ListUsersByRole(ctx context.Context, db DBTX, roles ...string) ([]model.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(roles)), ",")
	args := make([]any, len(roles))
	for i, r := range roles {
		args[i] = r
	}
	return queryUsers(ctx, db,
		`SELECT `+userColumns+` FROM users
		 WHERE deleted_at IS NULL AND role IN (`+placeholders+`) ORDER BY id`, args...)
}

func queryUsers(ctx context.Context, db DBTX, query string, args ...any) ([]model.User, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUser updates a user's profile fields and role.
func UpdateUser(ctx context.Context, db DBTX, u *model.User) error {
	result, err := db.ExecContext(ctx,
		`UPDATE users SET email = ?, role = ?, department = ?, employee_id = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		u.Email, u.Role, u.Department, u.EmployeeID, u.ID,
	)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	return requireAffected(result, "user")
}

// UpdateUserPassword updates a user's password hash.
func UpdateUserPassword(ctx context.Context, db DBTX, id int64, passwordHash string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ? AND deleted_at IS NULL`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	return requireAffected(result, "user")
}

// TouchLastLogin records a successful sign-in.
func TouchLastLogin(ctx context.Context, db DBTX, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET last_login = CURRENT_TIMESTAMP WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return nil
}

// DeleteUser soft-deletes a user.
func DeleteUser(ctx context.Context, db DBTX, id int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE users SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return requireAffected(result, "user")
}

// requireAffected turns an update that matched no rows into model.ErrNotFound.
func requireAffected(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	return nil
}
