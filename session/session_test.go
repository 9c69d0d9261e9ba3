// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package session_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danielhkuo/livepoll/clock"
	"github.com/danielhkuo/livepoll/db"
	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/session"
	"github.com/danielhkuo/livepoll/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	room    string
	event   string
	payload any
}

// recorder is a Broadcaster that keeps every published event.
type recorder struct {
	mu     sync.Mutex
	events []published
}

func (r *recorder) Publish(room, event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{room: room, event: event, payload: payload})
	return nil
}

func (r *recorder) all(event string) []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []published
	for _, e := range r.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.event
	}
	return out
}

type env struct {
	store *db.Store
	clk   *clock.FakeClock
	bc    *recorder
	reg   *session.Registry

	owner models.User
	alice models.User
	bob   models.User
}

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newEnv(t *testing.T, cfg session.Config) *env {
	t.Helper()

	store := testutil.SetupTestStore(t)
	e := &env{
		store: store,
		clk:   clock.Fake(epoch),
		bc:    &recorder{},
		owner: testutil.CreateTestUser(t, store, "owner"),
		alice: testutil.CreateTestUser(t, store, "alice"),
		bob:   testutil.CreateTestUser(t, store, "bob"),
	}
	e.reg = session.NewRegistry(store, e.bc, e.clk, slog.New(slog.DiscardHandler), cfg)
	return e
}

// newPoll creates a poll owned by e.owner that alice and bob have joined.
func (e *env) newPoll(t *testing.T) models.Poll {
	t.Helper()
	ctx := context.Background()

	poll, err := e.reg.CreatePoll(ctx, e.owner.ID, "P")
	require.NoError(t, err)
	_, err = e.reg.JoinPoll(ctx, poll.Code, e.alice.ID, e.alice.Username)
	require.NoError(t, err)
	_, err = e.reg.JoinPoll(ctx, poll.Code, e.bob.ID, e.bob.Username)
	require.NoError(t, err)

	return poll
}

func (e *env) addQuestion(t *testing.T, code string, timer int, correct *int) models.Question {
	t.Helper()

	q, err := e.reg.AddQuestion(context.Background(), code, e.owner.ID, models.AddQuestionRequest{
		Text:          "Q1",
		Options:       []string{"A", "B"},
		Timer:         timer,
		CorrectOption: correct,
	})
	require.NoError(t, err)
	return q
}

func intPtr(i int) *int { return &i }

func TestCreatePoll(t *testing.T) {
	e := newEnv(t, session.DefaultConfig())
	ctx := context.Background()

	poll, err := e.reg.CreatePoll(ctx, e.owner.ID, "  Friday quiz ")
	require.NoError(t, err)
	assert.Regexp(t, `^POLL-[0-9A-Z]{6}$`, poll.Code)
	assert.Equal(t, "Friday quiz", poll.Title)
	assert.Equal(t, models.PollActive, poll.Status)

	_, err = e.reg.CreatePoll(ctx, e.owner.ID, "   ")
	assert.ErrorIs(t, err, session.ErrInvalidArgument)
}

func TestJoinPoll_RejoinIsIdempotent(t *testing.T) {
	e := newEnv(t, session.DefaultConfig())
	ctx := context.Background()
	poll := e.newPoll(t)

	again, err := e.reg.JoinPoll(ctx, poll.Code, e.alice.ID, e.alice.Username)
	require.NoError(t, err)
	assert.Equal(t, poll.ID, again.ID)

	participants, err := e.store.ListParticipants(ctx, poll.ID)
	require.NoError(t, err)
	assert.Len(t, participants, 2)
	assert.Len(t, e.bc.all(models.EventNewParticipant), 2, "rejoin must not announce again")

	_, err = e.reg.JoinPoll(ctx, "POLL-NOPE00", e.alice.ID, e.alice.Username)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestAddQuestion_Validation(t *testing.T) {
	e := newEnv(t, session.DefaultConfig())
	poll := e.newPoll(t)

	tests := []struct {
		name    string
		code    string
		user    string
		req     models.AddQuestionRequest
		wantErr error
	}{
		{"one option", poll.Code, e.owner.ID, models.AddQuestionRequest{Text: "Q", Options: []string{"A"}, Timer: 10}, session.ErrInvalidArgument},
		{"zero timer", poll.Code, e.owner.ID, models.AddQuestionRequest{Text: "Q", Options: []string{"A", "B"}}, session.ErrInvalidArgument},
		{"timer over a day", poll.Code, e.owner.ID, models.AddQuestionRequest{Text: "Q", Options: []string{"A", "B"}, Timer: 1 << 34}, session.ErrInvalidArgument},
		{"empty text", poll.Code, e.owner.ID, models.AddQuestionRequest{Options: []string{"A", "B"}, Timer: 10}, session.ErrInvalidArgument},
		{"blank option", poll.Code, e.owner.ID, models.AddQuestionRequest{Text: "Q", Options: []string{"A", " "}, Timer: 10}, session.ErrInvalidArgument},
		{"correct out of range", poll.Code, e.owner.ID, models.AddQuestionRequest{Text: "Q", Options: []string{"A", "B"}, Timer: 10, CorrectOption: intPtr(2)}, session.ErrInvalidArgument},
		{"not owner", poll.Code, e.alice.ID, models.AddQuestionRequest{Text: "Q", Options: []string{"A", "B"}, Timer: 10}, session.ErrForbidden},
		{"unknown poll", "POLL-NOPE00", e.owner.ID, models.AddQuestionRequest{Text: "Q", Options: []string{"A", "B"}, Timer: 10}, session.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.reg.AddQuestion(context.Background(), tt.code, tt.user, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	q := e.addQuestion(t, poll.Code, 10, intPtr(1))
	assert.Equal(t, models.QuestionPending, q.Status)
	require.NotNil(t, q.CorrectOptionID())
	assert.Equal(t, q.Options[1].ID, *q.CorrectOptionID())
}

func TestActivateQuestion(t *testing.T) {
	e := newEnv(t, session.DefaultConfig())
	ctx := context.Background()
	poll := e.newPoll(t)
	q1 := e.addQuestion(t, poll.Code, 30, intPtr(0))
	q2 := e.addQuestion(t, poll.Code, 30, nil)

	_, err := e.reg.ActivateQuestion(ctx, poll.Code, e.alice.ID, q1.ID)
	assert.ErrorIs(t, err, session.ErrForbidden)

	active, err := e.reg.ActivateQuestion(ctx, poll.Code, e.owner.ID, q1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuestionActive, active.Status)
	require.NotNil(t, active.ActivatedAt)
	assert.True(t, active.ActivatedAt.Equal(epoch))

	events := e.bc.all(models.EventQuestionActivated)
	require.Len(t, events, 1)
	assert.Equal(t, poll.Code, events[0].room)
	payload := events[0].payload.(models.QuestionActivatedEvent)
	assert.Equal(t, q1.ID, payload.Question.ID)
	assert.Nil(t, payload.Question.CorrectOptionID(), "answer key must not be broadcast")
	assert.Equal(t, 1, e.clk.Pending())

	_, err = e.reg.ActivateQuestion(ctx, poll.Code, e.owner.ID, q1.ID)
	assert.ErrorIs(t, err, session.ErrInvalidState)

	_, err = e.reg.ActivateQuestion(ctx, poll.Code, e.owner.ID, q2.ID)
	assert.ErrorIs(t, err, session.ErrConflict)

	_, err = e.reg.ActivateQuestion(ctx, poll.Code, e.owner.ID, "missing")
	assert.ErrorIs(t, err, session.ErrNotFound)

	// A question from another poll is not found through this poll.
	other, err := e.reg.CreatePoll(ctx, e.owner.ID, "Other")
	require.NoError(t, err)
	foreign := e.addQuestion(t, other.Code, 30, nil)
	_, err = e.reg.ActivateQuestion(ctx, poll.Code, e.owner.ID, foreign.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestActivateQuestion_OneActiveUnderConcurrency(t *testing.T) {
	for round := 0; round < 5; round++ {
		e := newEnv(t, session.DefaultConfig())
		poll := e.newPoll(t)

		questions := make([]models.Question, 8)
		for i := range questions {
			questions[i] = e.addQuestion(t, poll.Code, 30, nil)
		}

		var wg sync.WaitGroup
		var succeeded, conflicted atomic.Int32
		for _, q := range questions {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := e.reg.ActivateQuestion(context.Background(), poll.Code, e.owner.ID, id)
				switch {
				case err == nil:
					succeeded.Add(1)
				case errors.Is(err, session.ErrConflict):
					conflicted.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(q.ID)
		}
		wg.Wait()

		assert.Equal(t, int32(1), succeeded.Load())
		assert.Equal(t, int32(len(questions)-1), conflicted.Load())

		active, err := e.store.ListActiveQuestions(context.Background())
		require.NoError(t, err)
		assert.Len(t, active, 1)
		assert.Equal(t, 1, e.clk.Pending())
	}
}

func TestSubmitAnswer_ConcurrentDuplicates(t *testing.T) {
	e := newEnv(t, session.DefaultConfig())
	ctx := context.Background()
	poll := e.newPoll(t)
	q := e.addQuestion(t, poll.Code, 30, nil)
	_, err := e.reg.ActivateQuestion(ctx, poll.Code, e.owner.ID, q.ID)
	require.NoError(t, err)

	const attempts = 20
	var wg sync.WaitGroup
	var succeeded, conflicted atomic.Int32
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.reg.SubmitAnswer(ctx, q.ID, e.alice.ID, q.Options[0].ID)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, session.ErrConflict):
				conflicted.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(attempts-1), conflicted.Load())

	n, err := e.store.CountAnswers(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	updates := e.bc.all(models.EventAnswerUpdate)
	require.Len(t, updates, 1)
	update := updates[0].payload.(models.AnswerUpdateEvent)
	assert.Equal(t, 1, update.AnswerCount)
	assert.Nil(t, update.Counts, "breakdown is withheld by default")
}

func TestSubmitAnswer_Errors(t *testing.T) {
	e := newEnv(t, session.DefaultConfig())
	ctx := context.Background()
	poll := e.newPoll(t)
	q := e.addQuestion(t, poll.Code, 30, nil)
	other := e.addQuestion(t, poll.Code, 30, nil)

	_, err := e.reg.SubmitAnswer(ctx, q.ID, e.alice.ID, q.Options[0].ID)
	assert.ErrorIs(t, err, session.ErrInvalidState, "pending question")

	_, err = e.reg.ActivateQuestion(ctx, poll.Code, e.owner.ID, q.ID)
	require.NoError(t, err)

	outsider := testutil.CreateTestUser(t, e.store, "mallory")
	_, err = e.reg.SubmitAnswer(ctx, q.ID, outsider.ID, q.Options[0].ID)
	assert.ErrorIs(t, err, session.ErrForbidden)

	_, err = e.reg.SubmitAnswer(ctx, q.ID, e.alice.ID, other.Options[0].ID)
	assert.ErrorIs(t, err, session.ErrInvalidReference)

	_, err = e.reg.SubmitAnswer(ctx, "missing", e.alice.ID, q.Options[0].ID)
	assert.ErrorIs(t, err, session.ErrNotFound)

	answer, err := e.reg.SubmitAnswer(ctx, q.ID, e.alice.ID, q.Options[1].ID)
	require.NoError(t, err)
	assert.Equal(t, q.Options[1].ID, answer.OptionID)
}

func TestSubmitAnswer_LiveBreakdown(t *testing.T) {
	cfg := session.DefaultConfig()
	cfg.LiveBreakdown = true
	e := newEnv(t, cfg)
	ctx := context.Background()
	poll := e.newPoll(t)
	q := e.addQuestion(t, poll.Code, 30, nil)
	_, err := e.reg.ActivateQuestion(ctx, poll.Code, e.owner.ID, q.ID)
	require.NoError(t, err)

	_, err = e.reg.SubmitAnswer(ctx, q.ID, e.alice.ID, q.Options[0].ID)
	require.NoError(t, err)
	_, err = e.reg.SubmitAnswer(ctx, q.ID, e.bob.ID, q.Options[0].ID)
	require.NoError(t, err)

	updates := e.bc.all(models.EventAnswerUpdate)
	require.Len(t, updates, 2)
	last := updates[1].payload.(models.AnswerUpdateEvent)
	assert.Equal(t, 2, last.AnswerCount)
	assert.Equal(t, map[string]int{q.Options[0].ID: 2, q.Options[1].ID: 0}, last.Counts)
}

func TestEndToEnd_TimerClosesAndAggregates(t *testing.T) {
	e := newEnv(t, session.DefaultConfig())
	ctx := context.Background()
	poll := e.newPoll(t)
	q := e.addQuestion(t, poll.Code, 2, nil)

	_, err := e.reg.ActivateQuestion(ctx, poll.Code, e.owner.ID, q.ID)
	require.NoError(t, err)

	e.clk.Advance(500 * time.Millisecond)
	_, err = e.reg.SubmitAnswer(ctx, q.ID, e.alice.ID, q.Options[0].ID)
	require.NoError(t, err)
	e.clk.Advance(time.Second)
	_, err = e.reg.SubmitAnswer(ctx, q.ID, e.bob.ID, q.Options[1].ID)
	require.NoError(t, err)

	e.clk.Advance(time.Second)

	results := e.bc.all(models.EventQuestionResults)
	require.Len(t, results, 1)
	got := results[0].payload.(models.Results)
	assert.Equal(t, q.ID, got.QuestionID)
	assert.Equal(t, 2, got.TotalAnswers)
	require.Len(t, got.Results, 2)
	assert.Equal(t, q.Options[0].ID, got.Results[0].OptionID)
	assert.InDelta(t, 50.0, got.Results[0].Percentage, 1e-9)
	assert.InDelta(t, 50.0, got.Results[1].Percentage, 1e-9)
	assert.Nil(t, got.CorrectOptionID)

	_, err = e.reg.SubmitAnswer(ctx, q.ID, e.alice.ID, q.Options[1].ID)
	assert.ErrorIs(t, err, session.ErrInvalidState)

	stored, err := e.store.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuestionClosed, stored.Status)

	// Activation is observed before any update or result for the question.
	assert.Equal(t, []string{
		models.EventNewParticipant,
		models.EventNewParticipant,
		models.EventQuestionActivated,
		models.EventAnswerUpdate,
		models.EventAnswerUpdate,
		models.EventQuestionResults,
	}, e.bc.names())
}

func TestCloseQuestion_IdempotentAndCancelsTimer(t *testing.T) {
	e := newEnv(t, session.DefaultConfig())
	ctx := context.Background()
	poll := e.newPoll(t)
	q := e.addQuestion(t, poll.Code, 30, intPtr(0))

	_, err := e.reg.CloseQuestion(ctx, poll.Code, e.owner.ID, q.ID)
	assert.ErrorIs(t, err, session.ErrInvalidState, "pending question cannot close")

	_, err = e.reg.ActivateQuestion(ctx, poll.Code, e.owner.ID, q.ID)
	require.NoError(t, err)

	_, err = e.reg.CloseQuestion(ctx, poll.Code, e.alice.ID, q.ID)
	assert.ErrorIs(t, err, session.ErrForbidden)

	closed, err := e.reg.CloseQuestion(ctx, poll.Code, e.owner.ID, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuestionClosed, closed.Status)
	assert.Equal(t, 0, e.clk.Pending(), "explicit close stops the timer")

	again, err := e.reg.CloseQuestion(ctx, poll.Code, e.owner.ID, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuestionClosed, again.Status)

	e.clk.Advance(time.Minute)

	results := e.bc.all(models.EventQuestionResults)
	require.Len(t, results, 1)
	got := results[0].payload.(models.Results)
	require.NotNil(t, got.CorrectOptionID)
	assert.Equal(t, q.Options[0].ID, *got.CorrectOptionID)
	assert.Zero(t, got.TotalAnswers)
}

func TestCloseQuestion_RacingClosesPublishOnce(t *testing.T) {
	e := newEnv(t, session.DefaultConfig())
	ctx := context.Background()
	poll := e.newPoll(t)
	q := e.addQuestion(t, poll.Code, 5, nil)
	_, err := e.reg.ActivateQuestion(ctx, poll.Code, e.owner.ID, q.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.reg.CloseQuestion(ctx, poll.Code, e.owner.ID, q.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.clk.Advance(5 * time.Second)
	}()
	wg.Wait()

	assert.Len(t, e.bc.all(models.EventQuestionResults), 1)
}

func TestGetRemainingTime_Monotonic(t *testing.T) {
	e := newEnv(t, session.DefaultConfig())
	ctx := context.Background()
	poll := e.newPoll(t)

	remaining, err := e.reg.GetRemainingTime(ctx, poll.Code)
	require.NoError(t, err)
	assert.Zero(t, remaining, "no active question")

	q := e.addQuestion(t, poll.Code, 60, nil)
	_, err = e.reg.ActivateQuestion(ctx, poll.Code, e.owner.ID, q.ID)
	require.NoError(t, err)

	prev := 61
	elapsed := time.Duration(0)
	for elapsed <= 70*time.Second {
		got, err := e.reg.GetRemainingTime(ctx, poll.Code)
		require.NoError(t, err)
		assert.LessOrEqual(t, got, prev, "at %v", elapsed)
		assert.GreaterOrEqual(t, got, 0)
		if elapsed >= 60*time.Second {
			assert.Zero(t, got, "at %v", elapsed)
		}
		prev = got

		e.clk.Advance(2500 * time.Millisecond)
		elapsed += 2500 * time.Millisecond
	}

	_, err = e.reg.GetRemainingTime(ctx, "POLL-NOPE00")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestDeleteQuestion_TimerBecomesNoop(t *testing.T) {
	e := newEnv(t, session.DefaultConfig())
	ctx := context.Background()
	poll := e.newPoll(t)
	q := e.addQuestion(t, poll.Code, 10, nil)
	_, err := e.reg.ActivateQuestion(ctx, poll.Code, e.owner.ID, q.ID)
	require.NoError(t, err)

	require.NoError(t, e.reg.DeleteQuestion(ctx, poll.Code, e.owner.ID, q.ID))
	assert.Equal(t, 0, e.clk.Pending())

	e.clk.Advance(time.Minute)
	assert.Empty(t, e.bc.all(models.EventQuestionResults))

	assert.ErrorIs(t, e.reg.DeleteQuestion(ctx, poll.Code, e.owner.ID, q.ID), session.ErrNotFound)

	remaining, err := e.reg.GetRemainingTime(ctx, poll.Code)
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

// flakyRepo fails the first n ACTIVE -> CLOSED transitions.
type flakyRepo struct {
	session.Repository
	failures atomic.Int32
}

func (f *flakyRepo) TransitionQuestion(ctx context.Context, id, from, to string, at time.Time) error {
	if to == models.QuestionClosed && f.failures.Add(-1) >= 0 {
		return errors.New("connection reset")
	}
	return f.Repository.TransitionQuestion(ctx, id, from, to, at)
}

func TestTimerClose_RetriesPersistenceFailure(t *testing.T) {
	e := newEnv(t, session.DefaultConfig())
	repo := &flakyRepo{Repository: e.store}
	repo.failures.Store(2)
	reg := session.NewRegistry(repo, e.bc, e.clk, slog.New(slog.DiscardHandler), session.Config{
		CloseRetries: 3,
		RetryDelay:   time.Second,
	})
	ctx := context.Background()

	poll, err := reg.CreatePoll(ctx, e.owner.ID, "P")
	require.NoError(t, err)
	q, err := reg.AddQuestion(ctx, poll.Code, e.owner.ID, models.AddQuestionRequest{
		Text: "Q", Options: []string{"A", "B"}, Timer: 3,
	})
	require.NoError(t, err)
	_, err = reg.ActivateQuestion(ctx, poll.Code, e.owner.ID, q.ID)
	require.NoError(t, err)

	e.clk.Advance(3 * time.Second)
	assert.Empty(t, e.bc.all(models.EventQuestionResults), "first attempt fails")
	e.clk.Advance(time.Second)
	assert.Empty(t, e.bc.all(models.EventQuestionResults), "first retry fails")
	e.clk.Advance(time.Second)
	assert.Len(t, e.bc.all(models.EventQuestionResults), 1)

	stored, err := e.store.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuestionClosed, stored.Status)
}

// failingCounts fails the next n per-option counts.
type failingCounts struct {
	session.Repository
	failures atomic.Int32
}

func (f *failingCounts) CountAnswersByOption(ctx context.Context, questionID string) (map[string]int, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("connection reset")
	}
	return f.Repository.CountAnswersByOption(ctx, questionID)
}

func TestTimerClose_RetriesResultsAfterAggregateFailure(t *testing.T) {
	e := newEnv(t, session.DefaultConfig())
	repo := &failingCounts{Repository: e.store}
	reg := session.NewRegistry(repo, e.bc, e.clk, slog.New(slog.DiscardHandler), session.Config{
		CloseRetries: 3,
		RetryDelay:   time.Second,
	})
	ctx := context.Background()

	poll, err := reg.CreatePoll(ctx, e.owner.ID, "P")
	require.NoError(t, err)
	_, err = reg.JoinPoll(ctx, poll.Code, e.alice.ID, e.alice.Username)
	require.NoError(t, err)
	q, err := reg.AddQuestion(ctx, poll.Code, e.owner.ID, models.AddQuestionRequest{
		Text: "Q", Options: []string{"A", "B"}, Timer: 3,
	})
	require.NoError(t, err)
	_, err = reg.ActivateQuestion(ctx, poll.Code, e.owner.ID, q.ID)
	require.NoError(t, err)
	_, err = reg.SubmitAnswer(ctx, q.ID, e.alice.ID, q.Options[1].ID)
	require.NoError(t, err)

	repo.failures.Store(1)
	e.clk.Advance(3 * time.Second)

	stored, err := e.store.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuestionClosed, stored.Status, "close is committed")
	assert.Empty(t, e.bc.all(models.EventQuestionResults), "aggregation failed")

	e.clk.Advance(time.Second)
	results := e.bc.all(models.EventQuestionResults)
	require.Len(t, results, 1)
	res := results[0].payload.(models.Results)
	assert.Equal(t, 1, res.TotalAnswers)

	e.clk.Advance(10 * time.Second)
	assert.Len(t, e.bc.all(models.EventQuestionResults), 1, "published exactly once")
	assert.Equal(t, 0, e.clk.Pending())
}

func TestCloseQuestion_GivesUpPublishingResults(t *testing.T) {
	e := newEnv(t, session.DefaultConfig())
	repo := &failingCounts{Repository: e.store}
	reg := session.NewRegistry(repo, e.bc, e.clk, slog.New(slog.DiscardHandler), session.Config{
		CloseRetries: 2,
		RetryDelay:   time.Second,
	})
	ctx := context.Background()

	poll, err := reg.CreatePoll(ctx, e.owner.ID, "P")
	require.NoError(t, err)
	q, err := reg.AddQuestion(ctx, poll.Code, e.owner.ID, models.AddQuestionRequest{
		Text: "Q", Options: []string{"A", "B"}, Timer: 30,
	})
	require.NoError(t, err)
	_, err = reg.ActivateQuestion(ctx, poll.Code, e.owner.ID, q.ID)
	require.NoError(t, err)

	repo.failures.Store(100)
	closed, err := reg.CloseQuestion(ctx, poll.Code, e.owner.ID, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuestionClosed, closed.Status)

	for i := 0; i < 5; i++ {
		e.clk.Advance(time.Second)
	}
	assert.Empty(t, e.bc.all(models.EventQuestionResults))
	assert.Equal(t, 0, e.clk.Pending(), "retries stop after the configured attempts")
	assert.Equal(t, int32(100-3), repo.failures.Load())
}

func TestRecover(t *testing.T) {
	e := newEnv(t, session.DefaultConfig())
	ctx := context.Background()
	poll := e.newPoll(t)
	live := e.addQuestion(t, poll.Code, 30, nil)

	other, err := e.reg.CreatePoll(ctx, e.owner.ID, "Other")
	require.NoError(t, err)
	stale := e.addQuestion(t, other.Code, 30, nil)

	// Persisted ACTIVE rows left behind by a previous process.
	require.NoError(t, e.store.TransitionQuestion(ctx, live.ID, models.QuestionPending, models.QuestionActive, epoch.Add(-10*time.Second)))
	require.NoError(t, e.store.TransitionQuestion(ctx, stale.ID, models.QuestionPending, models.QuestionActive, epoch.Add(-time.Minute)))

	reg := session.NewRegistry(e.store, e.bc, e.clk, slog.New(slog.DiscardHandler), session.DefaultConfig())

	// Remaining time is correct even before recovery.
	remaining, err := reg.GetRemainingTime(ctx, poll.Code)
	require.NoError(t, err)
	assert.Equal(t, 20, remaining)

	require.NoError(t, reg.Recover(ctx))
	assert.Equal(t, 2, e.clk.Pending())

	e.clk.Advance(0)
	results := e.bc.all(models.EventQuestionResults)
	require.Len(t, results, 1, "expired question closes right away")
	assert.Equal(t, other.Code, results[0].room)

	remaining, err = reg.GetRemainingTime(ctx, poll.Code)
	require.NoError(t, err)
	assert.Equal(t, 20, remaining)

	e.clk.Advance(20 * time.Second)
	assert.Len(t, e.bc.all(models.EventQuestionResults), 2)
}

func TestClosePoll(t *testing.T) {
	e := newEnv(t, session.DefaultConfig())
	ctx := context.Background()
	poll := e.newPoll(t)
	q := e.addQuestion(t, poll.Code, 30, nil)
	next := e.addQuestion(t, poll.Code, 30, nil)
	_, err := e.reg.ActivateQuestion(ctx, poll.Code, e.owner.ID, q.ID)
	require.NoError(t, err)

	_, err = e.reg.ClosePoll(ctx, poll.Code, e.alice.ID)
	assert.ErrorIs(t, err, session.ErrForbidden)

	closed, err := e.reg.ClosePoll(ctx, poll.Code, e.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PollClosed, closed.Status)
	assert.Len(t, e.bc.all(models.EventQuestionResults), 1)
	assert.Len(t, e.bc.all(models.EventPollClosed), 1)
	assert.Equal(t, 0, e.clk.Pending())

	_, err = e.reg.ActivateQuestion(ctx, poll.Code, e.owner.ID, next.ID)
	assert.ErrorIs(t, err, session.ErrInvalidState)

	newcomer := testutil.CreateTestUser(t, e.store, "carol")
	_, err = e.reg.JoinPoll(ctx, poll.Code, newcomer.ID, newcomer.Username)
	assert.ErrorIs(t, err, session.ErrInvalidState)

	_, err = e.reg.ClosePoll(ctx, poll.Code, e.owner.ID)
	assert.ErrorIs(t, err, session.ErrInvalidState)
}

func TestJoinPoll_RacesClosePoll(t *testing.T) {
	e := newEnv(t, session.DefaultConfig())
	ctx := context.Background()
	poll := e.newPoll(t)

	const joiners = 20
	users := make([]models.User, joiners)
	for i := range users {
		users[i] = testutil.CreateTestUser(t, e.store, fmt.Sprintf("joiner%02d", i))
	}

	var (
		wg     sync.WaitGroup
		joined atomic.Int32
		start  = make(chan struct{})
	)
	for _, u := range users {
		wg.Add(1)
		go func(u models.User) {
			defer wg.Done()
			<-start
			_, err := e.reg.JoinPoll(ctx, poll.Code, u.ID, u.Username)
			if err == nil {
				joined.Add(1)
				return
			}
			assert.ErrorIs(t, err, session.ErrInvalidState)
		}(u)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		_, err := e.reg.ClosePoll(ctx, poll.Code, e.owner.ID)
		assert.NoError(t, err)
	}()
	close(start)
	wg.Wait()

	participants, err := e.store.ListParticipants(ctx, poll.ID)
	require.NoError(t, err)
	assert.Len(t, participants, 2+int(joined.Load()))

	closedAt := -1
	for i, name := range e.bc.names() {
		if name == models.EventPollClosed {
			closedAt = i
			continue
		}
		if closedAt >= 0 {
			assert.NotEqual(t, models.EventNewParticipant, name, "no one joins a closed poll")
		}
	}
	require.GreaterOrEqual(t, closedAt, 0)
}

func TestGetPollState(t *testing.T) {
	e := newEnv(t, session.DefaultConfig())
	ctx := context.Background()
	poll := e.newPoll(t)
	q := e.addQuestion(t, poll.Code, 30, intPtr(1))
	_, err := e.reg.ActivateQuestion(ctx, poll.Code, e.owner.ID, q.ID)
	require.NoError(t, err)
	e.clk.Advance(12 * time.Second)

	state, err := e.reg.GetPollState(ctx, poll.Code, e.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, poll.ID, state.Poll.ID)
	assert.Len(t, state.Participants, 2)
	require.NotNil(t, state.ActiveQuestion)
	assert.Equal(t, q.ID, state.ActiveQuestion.ID)
	assert.Nil(t, state.ActiveQuestion.CorrectOptionID(), "participants do not see the key")
	assert.Equal(t, 18, state.Remaining)

	ownerState, err := e.reg.GetPollState(ctx, poll.Code, e.owner.ID)
	require.NoError(t, err)
	require.NotNil(t, ownerState.ActiveQuestion)
	assert.NotNil(t, ownerState.ActiveQuestion.CorrectOptionID())

	outsider := testutil.CreateTestUser(t, e.store, "mallory")
	_, err = e.reg.GetPollState(ctx, poll.Code, outsider.ID)
	assert.ErrorIs(t, err, session.ErrForbidden)
}

func TestGetPollHistory(t *testing.T) {
	e := newEnv(t, session.DefaultConfig())
	ctx := context.Background()
	poll := e.newPoll(t)
	q1 := e.addQuestion(t, poll.Code, 10, intPtr(0))
	q2 := e.addQuestion(t, poll.Code, 10, nil)

	_, err := e.reg.ActivateQuestion(ctx, poll.Code, e.owner.ID, q1.ID)
	require.NoError(t, err)
	_, err = e.reg.SubmitAnswer(ctx, q1.ID, e.alice.ID, q1.Options[0].ID)
	require.NoError(t, err)
	e.clk.Advance(10 * time.Second)

	history, err := e.reg.GetPollHistory(ctx, poll.Code, e.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, poll.Code, history.Code)
	require.Len(t, history.History, 1, "pending %s is not history", q2.ID)

	item := history.History[0]
	assert.Equal(t, q1.ID, item.ID)
	require.NotNil(t, item.UserAnswerID)
	assert.Equal(t, q1.Options[0].ID, *item.UserAnswerID)
	require.Len(t, item.Options, 2)
	assert.True(t, item.Options[0].IsCorrect)
	assert.Equal(t, 1, item.Options[0].Count)
	assert.InDelta(t, 100.0, item.Options[0].Percentage, 1e-9)
	assert.Zero(t, item.Options[1].Count)

	bobs, err := e.reg.GetPollHistory(ctx, poll.Code, e.bob.ID)
	require.NoError(t, err)
	require.Len(t, bobs.History, 1)
	assert.Nil(t, bobs.History[0].UserAnswerID)

	outsider := testutil.CreateTestUser(t, e.store, "mallory")
	_, err = e.reg.GetPollHistory(ctx, poll.Code, outsider.ID)
	assert.ErrorIs(t, err, session.ErrForbidden)
}
