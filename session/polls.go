// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danielhkuo/livepoll/auth"
	"github.com/danielhkuo/livepoll/db"
	"github.com/danielhkuo/livepoll/models"
	"github.com/google/uuid"
)

const maxCodeAttempts = 5

// CreatePoll creates an ACTIVE poll owned by creatorID under a fresh code.
func (r *Registry) CreatePoll(ctx context.Context, creatorID, title string) (models.Poll, error) {
	const op = "session.CreatePoll"

	title = strings.TrimSpace(title)
	if title == "" {
		return models.Poll{}, fmt.Errorf("%s: title is required: %w", op, ErrInvalidArgument)
	}

	poll := models.Poll{
		ID:        uuid.NewString(),
		Title:     title,
		CreatorID: creatorID,
		Status:    models.PollActive,
		CreatedAt: r.clock.Now(),
	}

	for attempt := 1; ; attempt++ {
		code, err := auth.GeneratePollCode()
		if err != nil {
			return models.Poll{}, fmt.Errorf("%s: %w", op, err)
		}
		poll.Code = code

		err = r.repo.CreatePoll(ctx, poll)
		if err == nil {
			break
		}
		if !errors.Is(err, db.ErrConflict) || attempt == maxCodeAttempts {
			return models.Poll{}, wrap(op, err)
		}
		r.log.Warn("poll code collision, retrying", "code", code, "attempt", attempt)
	}

	r.log.Info("poll created", "poll_id", poll.ID, "code", poll.Code, "creator_id", creatorID)

	return poll, nil
}

// JoinPoll records userID as a participant. Joining again returns the same
// poll without creating a second membership or announcing it twice.
func (r *Registry) JoinPoll(ctx context.Context, code, userID, username string) (models.Poll, error) {
	const op = "session.JoinPoll"

	// Held across the status check and the insert so no join lands after
	// ClosePoll.
	unlock := r.pollLocks.Lock(code)
	defer unlock()

	poll, err := r.repo.GetPollByCode(ctx, code)
	if err != nil {
		return models.Poll{}, wrap(op, err)
	}
	if poll.Status != models.PollActive {
		return models.Poll{}, fmt.Errorf("%s: poll is closed: %w", op, ErrInvalidState)
	}

	participant, created, err := r.repo.AddParticipant(ctx, models.Participant{
		ID:       uuid.NewString(),
		PollID:   poll.ID,
		UserID:   userID,
		Username: username,
		JoinedAt: r.clock.Now(),
	})
	if err != nil {
		return models.Poll{}, wrap(op, err)
	}

	if created {
		r.publish(code, models.EventNewParticipant, models.NewParticipantEvent{User: participant})
		r.log.Info("participant joined", "code", code, "user_id", userID)
	}

	return poll, nil
}

// ClosePoll closes the active question, if any, and then the poll itself.
// A closed poll accepts no joins, questions or activations.
func (r *Registry) ClosePoll(ctx context.Context, code, requesterID string) (models.Poll, error) {
	const op = "session.ClosePoll"

	unlock := r.pollLocks.Lock(code)
	defer unlock()

	poll, err := r.ownedPoll(ctx, op, code, requesterID)
	if err != nil {
		return models.Poll{}, err
	}

	active, err := r.repo.FindActiveQuestion(ctx, poll.ID)
	switch {
	case err == nil:
		if _, _, err := r.closeLocked(ctx, code, active.ID); err != nil {
			return models.Poll{}, fmt.Errorf("%s: %w", op, err)
		}
	case !errors.Is(err, db.ErrNotFound):
		return models.Poll{}, wrap(op, err)
	}

	if err := r.repo.SetPollStatus(ctx, poll.ID, models.PollActive, models.PollClosed); err != nil {
		return models.Poll{}, wrap(op, err)
	}
	poll.Status = models.PollClosed

	r.publish(code, models.EventPollClosed, models.PollClosedEvent{Code: code})
	r.log.Info("poll closed", "code", code)

	return poll, nil
}

// GetPollState is the snapshot a late joiner renders from: the poll, its
// participants and questions, and the active question with its remaining
// seconds. Correct options of unclosed questions are hidden from everyone
// but the creator.
func (r *Registry) GetPollState(ctx context.Context, code, requesterID string) (models.PollState, error) {
	const op = "session.GetPollState"

	poll, err := r.memberPoll(ctx, op, code, requesterID)
	if err != nil {
		return models.PollState{}, err
	}

	participants, err := r.repo.ListParticipants(ctx, poll.ID)
	if err != nil {
		return models.PollState{}, wrap(op, err)
	}
	questions, err := r.repo.ListQuestions(ctx, poll.ID)
	if err != nil {
		return models.PollState{}, wrap(op, err)
	}

	state := models.PollState{
		Poll:         poll,
		Participants: participants,
		Questions:    questions,
	}
	owner := poll.CreatorID == requesterID
	now := r.clock.Now()
	for i, q := range questions {
		if !owner && q.Status != models.QuestionClosed {
			state.Questions[i] = q.Public()
		}
		if q.Status == models.QuestionActive {
			active := state.Questions[i]
			state.ActiveQuestion = &active
			if q.ActivatedAt != nil {
				state.Remaining = remaining(*q.ActivatedAt, q.Timer, now)
			}
		}
	}

	return state, nil
}

// GetPollHistory lists the poll's closed questions in creation order with
// per-option results and the option the requester chose, if any.
func (r *Registry) GetPollHistory(ctx context.Context, code, requesterID string) (models.PollHistory, error) {
	const op = "session.GetPollHistory"

	poll, err := r.memberPoll(ctx, op, code, requesterID)
	if err != nil {
		return models.PollHistory{}, err
	}

	questions, err := r.repo.ListQuestions(ctx, poll.ID)
	if err != nil {
		return models.PollHistory{}, wrap(op, err)
	}
	chosen, err := r.repo.AnswersByUser(ctx, poll.ID, requesterID)
	if err != nil {
		return models.PollHistory{}, wrap(op, err)
	}

	history := models.PollHistory{
		PollID:  poll.ID,
		Code:    poll.Code,
		Title:   poll.Title,
		History: []models.HistoryItem{},
	}
	for _, q := range questions {
		if q.Status != models.QuestionClosed {
			continue
		}

		counts, err := r.repo.CountAnswersByOption(ctx, q.ID)
		if err != nil {
			return models.PollHistory{}, wrap(op, err)
		}
		results := Aggregate(q, counts)

		item := models.HistoryItem{
			ID:      q.ID,
			Text:    q.Text,
			Timer:   q.Timer,
			Status:  q.Status,
			Options: make([]models.HistoryOption, 0, len(q.Options)),
		}
		for i, o := range q.Options {
			item.Options = append(item.Options, models.HistoryOption{
				ID:         o.ID,
				Text:       o.Text,
				IsCorrect:  o.IsCorrect,
				Count:      results.Results[i].Count,
				Percentage: results.Results[i].Percentage,
			})
		}
		if optionID, ok := chosen[q.ID]; ok {
			item.UserAnswerID = &optionID
		}

		history.History = append(history.History, item)
	}

	return history, nil
}
