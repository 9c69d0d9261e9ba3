// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/danielhkuo/livepoll/clock"
	"github.com/danielhkuo/livepoll/db"
	"github.com/danielhkuo/livepoll/models"
)

// Repository is the durable store behind the registry. db.Store implements it.
type Repository interface {
	CreatePoll(ctx context.Context, poll models.Poll) error
	GetPollByCode(ctx context.Context, code string) (models.Poll, error)
	GetPollByID(ctx context.Context, id string) (models.Poll, error)
	SetPollStatus(ctx context.Context, pollID, from, to string) error

	AddParticipant(ctx context.Context, p models.Participant) (models.Participant, bool, error)
	GetParticipant(ctx context.Context, pollID, userID string) (models.Participant, error)
	ListParticipants(ctx context.Context, pollID string) ([]models.Participant, error)

	CreateQuestion(ctx context.Context, q *models.Question) error
	GetQuestion(ctx context.Context, id string) (models.Question, error)
	ListQuestions(ctx context.Context, pollID string) ([]models.Question, error)
	ListActiveQuestions(ctx context.Context) ([]models.Question, error)
	FindActiveQuestion(ctx context.Context, pollID string) (models.Question, error)
	TransitionQuestion(ctx context.Context, id, from, to string, at time.Time) error
	DeleteQuestion(ctx context.Context, id string) error

	InsertAnswer(ctx context.Context, a models.Answer) error
	CountAnswers(ctx context.Context, questionID string) (int, error)
	CountAnswersByOption(ctx context.Context, questionID string) (map[string]int, error)
	AnswersByUser(ctx context.Context, pollID, userID string) (map[string]string, error)
}

//go:generate mockgen -destination=mocks/mock_broadcaster.go -package=mocks github.com/danielhkuo/livepoll/session Broadcaster

// Broadcaster fans an event out to every connection subscribed to room.
// Publish must not block on slow connections.
type Broadcaster interface {
	Publish(room, event string, payload any) error
}

type Config struct {
	// LiveBreakdown adds per-option counts to answer-update events.
	// Off by default so partial results stay hidden until closing.
	LiveBreakdown bool
	// CloseRetries is how many times a failed timer close is retried.
	CloseRetries int
	RetryDelay   time.Duration
}

func DefaultConfig() Config {
	return Config{
		CloseRetries: 3,
		RetryDelay:   time.Second,
	}
}

// pollSession is the in-process view of a poll's active question.
type pollSession struct {
	questionID  string
	activatedAt time.Time
	timer       int // seconds
	handle      clock.Timer
}

// Registry owns every question status transition. Transitions for one poll
// are serialized by the poll lock, and the admission checks for one question
// by the question lock; lock order is poll then question.
type Registry struct {
	repo  Repository
	bc    Broadcaster
	clock clock.Clock
	log   *slog.Logger
	cfg   Config

	pollLocks     *keyedMutex
	questionLocks *keyedMutex

	mu       sync.Mutex
	sessions map[string]*pollSession // by poll code
}

func NewRegistry(repo Repository, bc Broadcaster, clk clock.Clock, log *slog.Logger, cfg Config) *Registry {
	if cfg.CloseRetries < 0 {
		cfg.CloseRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Registry{
		repo:          repo,
		bc:            bc,
		clock:         clk,
		log:           log,
		cfg:           cfg,
		pollLocks:     newKeyedMutex(),
		questionLocks: newKeyedMutex(),
		sessions:      make(map[string]*pollSession),
	}
}

// Recover re-arms timers for questions persisted as ACTIVE, typically after
// a restart. Questions whose window already elapsed close immediately.
func (r *Registry) Recover(ctx context.Context) error {
	const op = "session.Recover"

	questions, err := r.repo.ListActiveQuestions(ctx)
	if err != nil {
		return wrap(op, err)
	}

	for _, q := range questions {
		poll, err := r.repo.GetPollByID(ctx, q.PollID)
		if err != nil {
			return wrap(op, err)
		}

		activatedAt := r.clock.Now()
		if q.ActivatedAt != nil {
			activatedAt = *q.ActivatedAt
		}

		unlock := r.pollLocks.Lock(poll.Code)
		r.arm(poll.Code, q.ID, activatedAt, q.Timer)
		unlock()

		r.log.Info("question timer recovered",
			"code", poll.Code,
			"question_id", q.ID,
			"remaining", remaining(activatedAt, q.Timer, r.clock.Now()),
		)
	}

	return nil
}

func (r *Registry) publish(room, event string, payload any) {
	if err := r.bc.Publish(room, event, payload); err != nil {
		r.log.Warn("failed to publish event", "room", room, "event", event, "error", err)
	}
}

func (r *Registry) session(code string) *pollSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[code]
}

// ownedPoll loads the poll and checks requesterID created it.
func (r *Registry) ownedPoll(ctx context.Context, op, code, requesterID string) (models.Poll, error) {
	poll, err := r.repo.GetPollByCode(ctx, code)
	if err != nil {
		return models.Poll{}, wrap(op, err)
	}
	if poll.CreatorID != requesterID {
		return models.Poll{}, fmt.Errorf("%s: not the poll owner: %w", op, ErrForbidden)
	}
	return poll, nil
}

// memberPoll loads the poll and checks requesterID is its creator or a
// participant.
func (r *Registry) memberPoll(ctx context.Context, op, code, requesterID string) (models.Poll, error) {
	poll, err := r.repo.GetPollByCode(ctx, code)
	if err != nil {
		return models.Poll{}, wrap(op, err)
	}
	if poll.CreatorID == requesterID {
		return poll, nil
	}
	_, err = r.repo.GetParticipant(ctx, poll.ID, requesterID)
	if errors.Is(err, db.ErrNotFound) {
		return models.Poll{}, fmt.Errorf("%s: not a member of the poll: %w", op, ErrForbidden)
	}
	if err != nil {
		return models.Poll{}, wrap(op, err)
	}
	return poll, nil
}
