// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/danielhkuo/livepoll/db"
	"github.com/danielhkuo/livepoll/models"
	"github.com/google/uuid"
)

// maxTimerSeconds bounds a question's countdown to one day.
const maxTimerSeconds = 24 * 60 * 60

// AddQuestion creates a PENDING question with its options. Only the poll
// creator may add questions, and only while the poll is open.
func (r *Registry) AddQuestion(ctx context.Context, code, creatorID string, req models.AddQuestionRequest) (models.Question, error) {
	const op = "session.AddQuestion"

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return models.Question{}, fmt.Errorf("%s: text is required: %w", op, ErrInvalidArgument)
	}
	if len(req.Options) < 2 {
		return models.Question{}, fmt.Errorf("%s: at least 2 options are required: %w", op, ErrInvalidArgument)
	}
	if req.Timer <= 0 {
		return models.Question{}, fmt.Errorf("%s: timer must be positive: %w", op, ErrInvalidArgument)
	}
	if req.Timer > maxTimerSeconds {
		return models.Question{}, fmt.Errorf("%s: timer exceeds %d seconds: %w", op, maxTimerSeconds, ErrInvalidArgument)
	}
	if req.CorrectOption != nil && (*req.CorrectOption < 0 || *req.CorrectOption >= len(req.Options)) {
		return models.Question{}, fmt.Errorf("%s: correct option out of range: %w", op, ErrInvalidArgument)
	}

	now := r.clock.Now()
	q := models.Question{
		ID:        uuid.NewString(),
		Text:      text,
		Timer:     req.Timer,
		Status:    models.QuestionPending,
		CreatedAt: now,
		Options:   make([]models.Option, 0, len(req.Options)),
	}
	for i, label := range req.Options {
		label = strings.TrimSpace(label)
		if label == "" {
			return models.Question{}, fmt.Errorf("%s: option %d is empty: %w", op, i, ErrInvalidArgument)
		}
		q.Options = append(q.Options, models.Option{
			ID:        uuid.NewString(),
			Text:      label,
			IsCorrect: req.CorrectOption != nil && *req.CorrectOption == i,
		})
	}

	unlock := r.pollLocks.Lock(code)
	defer unlock()

	poll, err := r.ownedPoll(ctx, op, code, creatorID)
	if err != nil {
		return models.Question{}, err
	}
	if poll.Status != models.PollActive {
		return models.Question{}, fmt.Errorf("%s: poll is closed: %w", op, ErrInvalidState)
	}

	q.PollID = poll.ID
	if err := r.repo.CreateQuestion(ctx, &q); err != nil {
		return models.Question{}, wrap(op, err)
	}

	r.log.Info("question added", "code", code, "question_id", q.ID, "options", len(q.Options), "timer", q.Timer)

	return q, nil
}

// ActivateQuestion moves a PENDING question to ACTIVE, announces it to the
// room and arms its closing timer. Activation is rejected with ErrConflict
// while another question of the poll is ACTIVE.
func (r *Registry) ActivateQuestion(ctx context.Context, code, creatorID, questionID string) (models.Question, error) {
	const op = "session.ActivateQuestion"

	unlock := r.pollLocks.Lock(code)
	defer unlock()

	poll, err := r.ownedPoll(ctx, op, code, creatorID)
	if err != nil {
		return models.Question{}, err
	}
	if poll.Status != models.PollActive {
		return models.Question{}, fmt.Errorf("%s: poll is closed: %w", op, ErrInvalidState)
	}

	q, err := r.pollQuestion(ctx, op, poll, questionID)
	if err != nil {
		return models.Question{}, err
	}
	if q.Status != models.QuestionPending {
		return models.Question{}, fmt.Errorf("%s: question is %s: %w", op, q.Status, ErrInvalidState)
	}

	active, err := r.repo.FindActiveQuestion(ctx, poll.ID)
	switch {
	case err == nil:
		return models.Question{}, fmt.Errorf("%s: question %s is already active: %w", op, active.ID, ErrConflict)
	case !errors.Is(err, db.ErrNotFound):
		return models.Question{}, wrap(op, err)
	}

	unlockQ := r.questionLocks.Lock(q.ID)
	defer unlockQ()

	now := r.clock.Now()
	if err := r.repo.TransitionQuestion(ctx, q.ID, models.QuestionPending, models.QuestionActive, now); err != nil {
		return models.Question{}, wrap(op, err)
	}
	q.Status = models.QuestionActive
	q.ActivatedAt = &now

	r.publish(code, models.EventQuestionActivated, models.QuestionActivatedEvent{Question: q.Public()})
	r.arm(code, q.ID, now, q.Timer)

	r.log.Info("question activated", "code", code, "question_id", q.ID, "timer", q.Timer)

	return q, nil
}

// CloseQuestion is the moderator's explicit close. Closing an already
// CLOSED question succeeds without side effects.
func (r *Registry) CloseQuestion(ctx context.Context, code, requesterID, questionID string) (models.Question, error) {
	const op = "session.CloseQuestion"

	unlock := r.pollLocks.Lock(code)
	defer unlock()

	poll, err := r.ownedPoll(ctx, op, code, requesterID)
	if err != nil {
		return models.Question{}, err
	}
	if _, err := r.pollQuestion(ctx, op, poll, questionID); err != nil {
		return models.Question{}, err
	}

	q, _, err := r.closeLocked(ctx, code, questionID)
	if err != nil {
		return models.Question{}, fmt.Errorf("%s: %w", op, err)
	}

	return q, nil
}

// DeleteQuestion removes a question with its options and answers. Deleting
// the active question cancels its timer.
func (r *Registry) DeleteQuestion(ctx context.Context, code, requesterID, questionID string) error {
	const op = "session.DeleteQuestion"

	unlock := r.pollLocks.Lock(code)
	defer unlock()

	poll, err := r.ownedPoll(ctx, op, code, requesterID)
	if err != nil {
		return err
	}
	if _, err := r.pollQuestion(ctx, op, poll, questionID); err != nil {
		return err
	}

	unlockQ := r.questionLocks.Lock(questionID)
	defer unlockQ()

	if err := r.repo.DeleteQuestion(ctx, questionID); err != nil {
		return wrap(op, err)
	}
	r.forget(code, questionID)

	r.log.Info("question deleted", "code", code, "question_id", questionID)

	return nil
}

// close is the single ACTIVE -> CLOSED path shared by the timer, explicit
// close and poll close.
func (r *Registry) close(ctx context.Context, code, questionID string) (models.Question, bool, error) {
	unlock := r.pollLocks.Lock(code)
	defer unlock()
	return r.closeLocked(ctx, code, questionID)
}

// closeLocked reports closedNow=true only for the caller whose status swap
// won; that caller alone aggregates and publishes question-results. Caller
// holds the poll lock.
func (r *Registry) closeLocked(ctx context.Context, code, questionID string) (q models.Question, closedNow bool, err error) {
	const op = "session.close"

	unlockQ := r.questionLocks.Lock(questionID)
	defer unlockQ()

	q, err = r.repo.GetQuestion(ctx, questionID)
	if err != nil {
		return models.Question{}, false, wrap(op, err)
	}
	switch q.Status {
	case models.QuestionClosed:
		r.forget(code, questionID)
		return q, false, nil
	case models.QuestionPending:
		return models.Question{}, false, fmt.Errorf("%s: question is not active: %w", op, ErrInvalidState)
	}

	now := r.clock.Now()
	err = r.repo.TransitionQuestion(ctx, questionID, models.QuestionActive, models.QuestionClosed, now)
	if errors.Is(err, db.ErrStatusMismatch) {
		r.forget(code, questionID)
		q, err = r.repo.GetQuestion(ctx, questionID)
		if err != nil {
			return models.Question{}, false, wrap(op, err)
		}
		return q, false, nil
	}
	if err != nil {
		return models.Question{}, false, wrap(op, err)
	}
	q.Status = models.QuestionClosed
	q.ClosedAt = &now
	r.forget(code, questionID)

	if err := r.publishResults(ctx, code, q); err != nil {
		// The close is committed; no later close will publish results.
		r.log.Error("failed to aggregate closed question", "code", code, "question_id", questionID, "error", err)
		r.clock.AfterFunc(r.cfg.RetryDelay, func() { r.retryResults(code, questionID, 1) })
	}

	return q, true, nil
}

// publishResults aggregates a closed question and announces it to the room.
func (r *Registry) publishResults(ctx context.Context, code string, q models.Question) error {
	counts, err := r.repo.CountAnswersByOption(ctx, q.ID)
	if err != nil {
		return err
	}
	results := Aggregate(q, counts)
	r.publish(code, models.EventQuestionResults, results)

	r.log.Info("question closed",
		slog.String("code", code),
		slog.String("question_id", q.ID),
		slog.Int("answers", results.TotalAnswers),
	)

	return nil
}

// retryResults reruns publishResults for a question whose close committed
// but whose aggregation failed.
func (r *Registry) retryResults(code, questionID string, attempt int) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	unlock := r.questionLocks.Lock(questionID)
	defer unlock()

	q, err := r.repo.GetQuestion(ctx, questionID)
	if errors.Is(err, db.ErrNotFound) {
		return
	}
	if err == nil {
		if err = r.publishResults(ctx, code, q); err == nil {
			return
		}
	}

	if attempt >= r.cfg.CloseRetries {
		r.log.Error("giving up publishing question results", "code", code, "question_id", questionID, "attempts", attempt+1, "error", err)
		return
	}
	r.log.Warn("retrying question results", "code", code, "question_id", questionID, "attempt", attempt, "error", err)
	r.clock.AfterFunc(r.cfg.RetryDelay, func() { r.retryResults(code, questionID, attempt+1) })
}

// pollQuestion loads a question and checks it belongs to poll.
func (r *Registry) pollQuestion(ctx context.Context, op string, poll models.Poll, questionID string) (models.Question, error) {
	q, err := r.repo.GetQuestion(ctx, questionID)
	if err != nil {
		return models.Question{}, wrap(op, err)
	}
	if q.PollID != poll.ID {
		return models.Question{}, fmt.Errorf("%s: question not in poll: %w", op, ErrNotFound)
	}
	return q, nil
}
