package api

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/store"
)

// UsersHandler handles user management endpoints (admin only).
type UsersHandler struct {
	DB *sql.DB
}

type createUserRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	Department string `json:"department"`
	EmployeeID string `json:"employee_id"`
}

type updateUserRequest struct {
	Email      string `json:"email"`
	Role       string `json:"role"`
	Department string `json:"department"`
	EmployeeID string `json:"employee_id"`
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

// List handles GET /api/users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := store.ListUsers(r.Context(), h.DB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	jsonResponse(w, http.StatusOK, users)
}

// Create handles POST /api/users.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Password == "" || req.Email == "" {
		jsonError(w, http.StatusBadRequest, "username, email and password required")
		return
	}
	if req.Role == "" {
		req.Role = model.RoleStaff
	}
	if !model.ValidRole(req.Role) {
		writeError(w, r, model.Invalid("role", "invalid role"))
		return
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		writeError(w, r, err)
		return
	}

	existing, err := store.GetUserByUsername(r.Context(), h.DB, req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if existing != nil && existing.Active() {
		jsonError(w, http.StatusConflict, "username already exists")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := store.CreateUser(r.Context(), h.DB, &model.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         req.Role,
		Department:   strings.TrimSpace(req.Department),
		EmployeeID:   strings.TrimSpace(req.EmployeeID),
	})
	if err != nil {
		slog.Warn("failed to create user", "username", req.Username, "error", err)
		jsonError(w, http.StatusConflict, "username or email already exists")
		return
	}

	slog.Info("user created", "user", actor(r).Username, "new_user", user.Username, "role", user.Role)
	jsonResponse(w, http.StatusCreated, user)
}

// Get handles GET /api/users/{id}.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}

	jsonResponse(w, http.StatusOK, user)
}

// Update handles PUT /api/users/{id}.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !model.ValidRole(req.Role) {
		writeError(w, r, model.Invalid("role", "invalid role"))
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil || !user.Active() {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}

	if email := strings.TrimSpace(req.Email); email != "" {
		user.Email = email
	}
	user.Role = req.Role
	user.Department = strings.TrimSpace(req.Department)
	user.EmployeeID = strings.TrimSpace(req.EmployeeID)

	if err := store.UpdateUser(r.Context(), h.DB, user); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("user updated", "user", actor(r).Username, "target_user", user.Username, "role", user.Role)
	jsonResponse(w, http.StatusOK, user)
}

// ResetPassword handles PUT /api/users/{id}/password.
func (h *UsersHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		writeError(w, r, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := store.UpdateUserPassword(r.Context(), h.DB, id, string(hash)); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("user password reset", "user", actor(r).Username, "target_user", h.name(r, id))
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password reset"})
}

// Delete handles DELETE /api/users/{id}.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	// Prevent self-deletion.
	if actor(r).UserID == id {
		jsonError(w, http.StatusBadRequest, "cannot delete yourself")
		return
	}

	targetName := h.name(r, id)
	if err := store.DeleteUser(r.Context(), h.DB, id); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("user deleted", "user", actor(r).Username, "deleted_user", targetName)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

func (h *UsersHandler) name(r *http.Request, id int64) string {
	if u, _ := store.GetUser(r.Context(), h.DB, id); u != nil {
		return u.Username
	}
	return fmt.Sprintf("id:%d", id)
}
