package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/padillasconcrete/siteapi/internal/auth"
	"github.com/padillasconcrete/siteapi/internal/core"
	"github.com/padillasconcrete/siteapi/internal/core/store"
	apperrors "github.com/padillasconcrete/siteapi/internal/errors"
	"github.com/padillasconcrete/siteapi/internal/metrics"
	"github.com/padillasconcrete/siteapi/internal/server/middleware"
)

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	Success   bool       `json:"success"`
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      *core.User `json:"user"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
	NewUsername     string `json:"newUsername" validate:"omitempty,min=3,max=64"`
}

// Login handles POST /api/auth/login.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	if a.Users == nil || a.Issuer == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("authentication is not configured"))
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}

	user, err := a.Users.GetUserByUsername(r.Context(), strings.TrimSpace(req.Username))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to load user"))
		return
	}
	if user == nil {
		_ = auth.CheckUnknownUser(req.Password, a.BcryptCost)
	}
	if user == nil || auth.CheckPassword(user.PasswordHash, req.Password) != nil {
		metrics.RecordLogin("failure")
		respondWithError(w, r, apperrors.NewUnauthorizedError(auth.ErrInvalidCredentials.Error()))
		return
	}

	token, expires, err := a.Issuer.Issue(user)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "failed to issue token"))
		return
	}

	metrics.RecordLogin("success")
	if a.Logger != nil {
		a.Logger.Info("Admin login", zap.String("user_id", user.ID), zap.String("client_ip", middleware.ClientIP(r)))
	}
	writeJSON(w, http.StatusOK, tokenResponse{Success: true, Token: token, ExpiresAt: expires, User: user})
}

// Verify handles GET /api/auth/verify. The token has already been checked
// by the Authenticate middleware; the user is reloaded so deleted accounts
// stop verifying.
func (a *API) Verify(w http.ResponseWriter, r *http.Request) {
	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": user})
}

// ChangePassword handles POST /api/auth/change-password and returns a fresh
// token reflecting the new username and cleared must-change flag.
func (a *API) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, req.CurrentPassword); err != nil {
		respondWithError(w, r, apperrors.NewUnauthorizedError("current password is incorrect"))
		return
	}

	hash, err := auth.HashPassword(req.NewPassword, a.BcryptCost)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			respondWithError(w, r, apperrors.NewValidationError(err.Error()))
			return
		}
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "failed to hash password"))
		return
	}

	user.PasswordHash = hash
	user.MustChangePassword = false
	if name := strings.TrimSpace(req.NewUsername); name != "" {
		user.Username = name
	}
	if err := a.Users.UpdateUser(r.Context(), user); err != nil {
		respondWithError(w, r, storeError(r.Context(), err, "user"))
		return
	}

	token, expires, err := a.Issuer.Issue(user)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "failed to issue token"))
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Success: true, Token: token, ExpiresAt: expires, User: user})
}

func (a *API) currentUser(w http.ResponseWriter, r *http.Request) (*core.User, bool) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		respondWithError(w, r, apperrors.NewUnauthorizedError("authentication required"))
		return nil, false
	}
	if a.Users == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("authentication is not configured"))
		return nil, false
	}
	user, err := a.Users.GetUser(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondWithError(w, r, apperrors.NewUnauthorizedError("account no longer exists"))
			return nil, false
		}
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to load user"))
		return nil, false
	}
	return user, true
}
