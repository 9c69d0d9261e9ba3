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

type VotingHandler struct {
	reg *session.Registry
}

func NewVotingHandler(reg *session.Registry) *VotingHandler {
	return &VotingHandler{reg: reg}
}

// SubmitAnswer handles POST /questions/{id}/answers
// One answer per user per question; resubmitting returns 409
func (h *VotingHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req models.SubmitAnswerRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.OptionID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "optionId is required")
		return
	}

	answer, err := h.reg.SubmitAnswer(r.Context(), r.PathValue("id"), id.UserID, req.OptionID)
	if err != nil {
		writeError(w, "Failed to submit answer", err)
		return
	}

	slog.Debug("answer submitted", "question_id", answer.QuestionID, "user_id", id.UserID)

	middleware.JSONResponse(w, http.StatusCreated, answer)
}
