// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"

	"github.com/danielhkuo/livepoll/middleware"
	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/session"
)

type ResultsHandler struct {
	reg *session.Registry
}

func NewResultsHandler(reg *session.Registry) *ResultsHandler {
	return &ResultsHandler{reg: reg}
}

// GetRemainingTime handles GET /polls/{code}/remaining
// Returns whole seconds left on the active question, 0 when none is active
func (h *ResultsHandler) GetRemainingTime(w http.ResponseWriter, r *http.Request) {
	if _, ok := identity(w, r); !ok {
		return
	}

	code := r.PathValue("code")
	remaining, err := h.reg.GetRemainingTime(r.Context(), code)
	if err != nil {
		writeError(w, "Failed to read timer", err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.RemainingTimeResponse{
		Code:      code,
		Remaining: remaining,
	})
}

// GetPollHistory handles GET /polls/{code}/history
// Returns closed questions with their tallies and the caller's own choice
func (h *ResultsHandler) GetPollHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	history, err := h.reg.GetPollHistory(r.Context(), r.PathValue("code"), id.UserID)
	if err != nil {
		writeError(w, "Failed to load history", err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, history)
}
