// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package session

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/danielhkuo/livepoll/db"
)

const closeTimeout = 10 * time.Second

// arm records questionID as the poll's active question and schedules its
// close at activatedAt + timer. Any previous timer for the poll is stopped.
// Caller holds the poll lock.
func (r *Registry) arm(code, questionID string, activatedAt time.Time, timer int) {
	deadline := activatedAt.Add(time.Duration(timer) * time.Second)
	delay := deadline.Sub(r.clock.Now())
	if delay < 0 {
		delay = 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev := r.sessions[code]; prev != nil && prev.handle != nil {
		prev.handle.Stop()
	}
	r.sessions[code] = &pollSession{
		questionID:  questionID,
		activatedAt: activatedAt,
		timer:       timer,
		handle: r.clock.AfterFunc(delay, func() {
			r.expire(code, questionID, 0)
		}),
	}
}

// forget drops the poll's session if it still refers to questionID and
// stops its timer. Caller holds the poll lock.
func (r *Registry) forget(code, questionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.sessions[code]
	if s == nil || s.questionID != questionID {
		return
	}
	if s.handle != nil {
		s.handle.Stop()
	}
	delete(r.sessions, code)
}

// expire is the timer callback. A question that is gone or already closed is
// an expected race and ends quietly; anything else is a persistence failure
// and is retried, since giving up leaves the question open.
func (r *Registry) expire(code, questionID string, attempt int) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	_, _, err := r.close(ctx, code, questionID)
	if err == nil {
		return
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidState) {
		r.log.Debug("timer close skipped", "code", code, "question_id", questionID, "reason", err)
		return
	}

	if attempt >= r.cfg.CloseRetries {
		r.log.Error("giving up closing expired question",
			"code", code, "question_id", questionID, "attempts", attempt+1, "error", err)
		return
	}

	r.log.Error("failed to close expired question, retrying",
		"code", code, "question_id", questionID, "attempt", attempt+1, "error", err)
	r.clock.AfterFunc(r.cfg.RetryDelay, func() {
		r.expire(code, questionID, attempt+1)
	})
}

// remaining is the whole seconds left in a window, rounded up, never
// negative.
func remaining(activatedAt time.Time, timer int, now time.Time) int {
	left := time.Duration(timer)*time.Second - now.Sub(activatedAt)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}

// GetRemainingTime returns the seconds left for the poll's active question,
// measured from its activation timestamp, or 0 when none is active.
func (r *Registry) GetRemainingTime(ctx context.Context, code string) (int, error) {
	const op = "session.GetRemainingTime"

	if s := r.session(code); s != nil {
		return remaining(s.activatedAt, s.timer, r.clock.Now()), nil
	}

	// No in-process session: fall back to the persisted activation.
	poll, err := r.repo.GetPollByCode(ctx, code)
	if err != nil {
		return 0, wrap(op, err)
	}
	q, err := r.repo.FindActiveQuestion(ctx, poll.ID)
	if errors.Is(err, db.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, wrap(op, err)
	}
	if q.ActivatedAt == nil {
		return 0, nil
	}

	return remaining(*q.ActivatedAt, q.Timer, r.clock.Now()), nil
}
