// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"

	"github.com/danielhkuo/livepoll/middleware"
	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/session"
)

// QuestionHandler serves the creator-only question lifecycle.
type QuestionHandler struct {
	reg *session.Registry
}

func NewQuestionHandler(reg *session.Registry) *QuestionHandler {
	return &QuestionHandler{reg: reg}
}

// AddQuestion handles POST /polls/{code}/questions
func (h *QuestionHandler) AddQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req models.AddQuestionRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	q, err := h.reg.AddQuestion(r.Context(), r.PathValue("code"), id.UserID, req)
	if err != nil {
		writeError(w, "Failed to add question", err)
		return
	}

	middleware.JSONResponse(w, http.StatusCreated, q)
}

// ActivateQuestion handles POST /polls/{code}/questions/{id}/activate
// Starts the question timer; 409 if another question is already live
func (h *QuestionHandler) ActivateQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	q, err := h.reg.ActivateQuestion(r.Context(), r.PathValue("code"), id.UserID, r.PathValue("id"))
	if err != nil {
		writeError(w, "Failed to activate question", err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, q)
}

// CloseQuestion handles POST /polls/{code}/questions/{id}/close
// Closing an already closed question returns it unchanged
func (h *QuestionHandler) CloseQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	q, err := h.reg.CloseQuestion(r.Context(), r.PathValue("code"), id.UserID, r.PathValue("id"))
	if err != nil {
		writeError(w, "Failed to close question", err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, q)
}

// DeleteQuestion handles DELETE /polls/{code}/questions/{id}
func (h *QuestionHandler) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	if err := h.reg.DeleteQuestion(r.Context(), r.PathValue("code"), id.UserID, r.PathValue("id")); err != nil {
		writeError(w, "Failed to delete question", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
