// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielhkuo/livepoll/db"
	"github.com/danielhkuo/livepoll/models"
	"github.com/google/uuid"
)

// SubmitAnswer admits at most one answer per (question, participant).
// The status, window, option and duplicate checks and the insert run under
// the question lock, and the insert is itself conditional on the question
// being ACTIVE, so a concurrent close or a second submission cannot slip
// between check and write.
func (r *Registry) SubmitAnswer(ctx context.Context, questionID, userID, optionID string) (models.Answer, error) {
	const op = "session.SubmitAnswer"

	q, err := r.repo.GetQuestion(ctx, questionID)
	if err != nil {
		return models.Answer{}, wrap(op, err)
	}
	poll, err := r.repo.GetPollByID(ctx, q.PollID)
	if err != nil {
		return models.Answer{}, wrap(op, err)
	}

	_, err = r.repo.GetParticipant(ctx, poll.ID, userID)
	if errors.Is(err, db.ErrNotFound) {
		return models.Answer{}, fmt.Errorf("%s: not a participant: %w", op, ErrForbidden)
	}
	if err != nil {
		return models.Answer{}, wrap(op, err)
	}

	unlock := r.questionLocks.Lock(questionID)
	defer unlock()

	// Re-read under the lock; the status may have moved since the first read.
	q, err = r.repo.GetQuestion(ctx, questionID)
	if err != nil {
		return models.Answer{}, wrap(op, err)
	}
	if q.Status != models.QuestionActive {
		return models.Answer{}, fmt.Errorf("%s: question is %s: %w", op, q.Status, ErrInvalidState)
	}

	now := r.clock.Now()
	if q.ActivatedAt != nil && remaining(*q.ActivatedAt, q.Timer, now) == 0 {
		return models.Answer{}, fmt.Errorf("%s: answer window elapsed: %w", op, ErrInvalidState)
	}
	if !q.HasOption(optionID) {
		return models.Answer{}, fmt.Errorf("%s: option %s: %w", op, optionID, ErrInvalidReference)
	}

	answer := models.Answer{
		ID:         uuid.NewString(),
		QuestionID: questionID,
		OptionID:   optionID,
		UserID:     userID,
		CreatedAt:  now,
	}
	if err := r.repo.InsertAnswer(ctx, answer); err != nil {
		return models.Answer{}, wrap(op, err)
	}

	event := models.AnswerUpdateEvent{QuestionID: questionID}
	if r.cfg.LiveBreakdown {
		counts, err := r.repo.CountAnswersByOption(ctx, questionID)
		if err != nil {
			r.log.Error("failed to count answers", "question_id", questionID, "error", err)
			return answer, nil
		}
		event.Counts = make(map[string]int, len(q.Options))
		for _, o := range q.Options {
			event.Counts[o.ID] = counts[o.ID]
			event.AnswerCount += counts[o.ID]
		}
	} else {
		n, err := r.repo.CountAnswers(ctx, questionID)
		if err != nil {
			r.log.Error("failed to count answers", "question_id", questionID, "error", err)
			return answer, nil
		}
		event.AnswerCount = n
	}
	r.publish(poll.Code, models.EventAnswerUpdate, event)

	r.log.Debug("answer submitted",
		"code", poll.Code,
		"question_id", questionID,
		"answers", event.AnswerCount,
	)

	return answer, nil
}
