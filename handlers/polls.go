// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/danielhkuo/livepoll/middleware"
	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/session"
)

type PollHandler struct {
	reg *session.Registry
}

func NewPollHandler(reg *session.Registry) *PollHandler {
	return &PollHandler{reg: reg}
}

// CreatePoll handles POST /polls
func (h *PollHandler) CreatePoll(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req models.CreatePollRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	poll, err := h.reg.CreatePoll(r.Context(), id.UserID, req.Title)
	if err != nil {
		writeError(w, "Failed to create poll", err)
		return
	}

	slog.Info("poll created", "code", poll.Code, "creator_id", id.UserID)

	middleware.JSONResponse(w, http.StatusCreated, poll)
}

// JoinPoll handles POST /polls/{code}/join
func (h *PollHandler) JoinPoll(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	poll, err := h.reg.JoinPoll(r.Context(), r.PathValue("code"), id.UserID, id.Username)
	if err != nil {
		writeError(w, "Failed to join poll", err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, poll)
}

// GetPollState handles GET /polls/{code}
// Returns the snapshot a client needs to render the room
func (h *PollHandler) GetPollState(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	state, err := h.reg.GetPollState(r.Context(), r.PathValue("code"), id.UserID)
	if err != nil {
		writeError(w, "Failed to load poll", err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, state)
}

// ClosePoll handles POST /polls/{code}/close
// Closes the active question, if any, before closing the poll
func (h *PollHandler) ClosePoll(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	poll, err := h.reg.ClosePoll(r.Context(), r.PathValue("code"), id.UserID)
	if err != nil {
		writeError(w, "Failed to close poll", err)
		return
	}

	slog.Info("poll closed", "code", poll.Code)

	middleware.JSONResponse(w, http.StatusOK, poll)
}
