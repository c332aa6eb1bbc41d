package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/padillasconcrete/siteapi/internal/auth"
	"github.com/padillasconcrete/siteapi/internal/core"
	apperrors "github.com/padillasconcrete/siteapi/internal/errors"
	"github.com/padillasconcrete/siteapi/internal/server/middleware"
)

type createUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"omitempty,oneof=user admin"`
}

type updateUserRequest struct {
	Username           string `json:"username" validate:"omitempty,min=3,max=64"`
	Password           string `json:"password" validate:"omitempty,min=6"`
	Role               string `json:"role" validate:"omitempty,oneof=user admin"`
	MustChangePassword *bool  `json:"mustChangePassword"`
}

// ListUsers handles GET /api/users.
func (a *API) ListUsers(w http.ResponseWriter, r *http.Request) {
	if !a.requireUsers(w, r) {
		return
	}
	users, err := a.Users.ListUsers(r.Context())
	if err != nil {
		respondWithError(w, r, storeError(r.Context(), err, "user"))
		return
	}
	if users == nil {
		users = []core.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// CreateUser handles POST /api/users. New accounts must change their
// password on first login.
func (a *API) CreateUser(w http.ResponseWriter, r *http.Request) {
	if !a.requireUsers(w, r) {
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}

	hash, err := auth.HashPassword(req.Password, a.BcryptCost)
	if err != nil {
		respondWithError(w, r, passwordError(r, err))
		return
	}
	role := core.RoleUser
	if req.Role != "" {
		role = core.Role(req.Role)
	}

	user := &core.User{
		ID:                 uuid.NewString(),
		Username:           strings.TrimSpace(req.Username),
		PasswordHash:       hash,
		Role:               role,
		MustChangePassword: true,
	}
	if err := a.Users.CreateUser(r.Context(), user); err != nil {
		respondWithError(w, r, storeError(r.Context(), err, "username"))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

// UpdateUser handles PUT /api/users/{id}.
func (a *API) UpdateUser(w http.ResponseWriter, r *http.Request) {
	if !a.requireUsers(w, r) {
		return
	}
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}

	user, err := a.Users.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, r, storeError(r.Context(), err, "user"))
		return
	}

	if name := strings.TrimSpace(req.Username); name != "" {
		user.Username = name
	}
	if req.Role != "" {
		claims := middleware.ClaimsFromContext(r.Context())
		if claims != nil && claims.UserID == user.ID && core.Role(req.Role) != core.RoleAdmin {
			respondWithError(w, r, apperrors.NewInvalidInputError("you cannot remove your own admin role"))
			return
		}
		user.Role = core.Role(req.Role)
	}
	if req.Password != "" {
		hash, err := auth.HashPassword(req.Password, a.BcryptCost)
		if err != nil {
			respondWithError(w, r, passwordError(r, err))
			return
		}
		user.PasswordHash = hash
	}
	if req.MustChangePassword != nil {
		user.MustChangePassword = *req.MustChangePassword
	}

	if err := a.Users.UpdateUser(r.Context(), user); err != nil {
		respondWithError(w, r, storeError(r.Context(), err, "username"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// DeleteUser handles DELETE /api/users/{id}. Admins cannot delete their own
// account.
func (a *API) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if !a.requireUsers(w, r) {
		return
	}
	id := chi.URLParam(r, "id")
	if claims := middleware.ClaimsFromContext(r.Context()); claims != nil && claims.UserID == id {
		respondWithError(w, r, apperrors.NewInvalidInputError("you cannot delete your own account"))
		return
	}
	if err := a.Users.DeleteUser(r.Context(), id); err != nil {
		respondWithError(w, r, storeError(r.Context(), err, "user"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) requireUsers(w http.ResponseWriter, r *http.Request) bool {
	if a.Users == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("user store is not configured"))
		return false
	}
	return true
}

func passwordError(r *http.Request, err error) error {
	if errors.Is(err, auth.ErrWeakPassword) {
		return apperrors.NewValidationError(err.Error())
	}
	return apperrors.WrapInternal(r.Context(), err, "failed to hash password")
}
