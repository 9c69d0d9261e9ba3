// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/danielhkuo/livepoll/auth"
	"github.com/danielhkuo/livepoll/cliparse"
	"github.com/danielhkuo/livepoll/db"
	"github.com/danielhkuo/livepoll/middleware"
	"github.com/danielhkuo/livepoll/models"
	"github.com/google/uuid"
)

const maxUsernameLength = 32

// UserStore persists user accounts. db.Store implements it.
type UserStore interface {
	CreateUser(ctx context.Context, user models.User) error
}

type UserHandler struct {
	store UserStore
	cfg   cliparse.Config
}

func NewUserHandler(store UserStore, cfg cliparse.Config) *UserHandler {
	return &UserHandler{store: store, cfg: cfg}
}

// CreateUser handles POST /users
// Registers a username and returns a bearer token for it
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "username is required")
		return
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		middleware.ErrorResponse(w, http.StatusBadRequest, "username is too long")
		return
	}

	user := models.User{
		ID:        uuid.NewString(),
		Username:  username,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, db.ErrConflict) {
			middleware.ErrorResponse(w, http.StatusConflict, "username already taken")
			return
		}
		slog.Error("failed to create user", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	token, err := auth.IssueToken(h.cfg.JWTSecret, auth.Identity{UserID: user.ID, Username: user.Username}, h.cfg.TokenTTL)
	if err != nil {
		slog.Error("failed to issue token", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	slog.Info("user created", "user_id", user.ID, "username", user.Username)

	middleware.JSONResponse(w, http.StatusCreated, models.CreateUserResponse{
		Token: token,
		User:  user,
	})
}
