// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/danielhkuo/livepoll/models"
)

// Store is the SQL repository for polls, questions, options, answers,
// participants and users.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

func NewStore(conn *sql.DB, dialect Dialect) *Store {
	return &Store{db: conn, dialect: dialect}
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullableTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

// Users

func (s *Store) CreateUser(ctx context.Context, user models.User) error {
	const op = "db.CreateUser"

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO app_user (id, username, created_at) VALUES (?, ?, ?)
	`), user.ID, user.Username, toMillis(user.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, ErrConflict)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	const op = "db.GetUser"

	var user models.User
	var createdAt int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, username, created_at FROM app_user WHERE id = ?
	`), id).Scan(&user.ID, &user.Username, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}
	user.CreatedAt = fromMillis(createdAt)

	return user, nil
}

// Polls

func (s *Store) CreatePoll(ctx context.Context, poll models.Poll) error {
	const op = "db.CreatePoll"

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO poll (id, code, title, creator_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), poll.ID, poll.Code, poll.Title, poll.CreatorID, poll.Status, toMillis(poll.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, ErrConflict)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

const pollColumns = `id, code, title, creator_id, status, created_at`

func scanPoll(row interface{ Scan(...any) error }) (models.Poll, error) {
	var p models.Poll
	var createdAt int64
	if err := row.Scan(&p.ID, &p.Code, &p.Title, &p.CreatorID, &p.Status, &createdAt); err != nil {
		return models.Poll{}, err
	}
	p.CreatedAt = fromMillis(createdAt)
	return p, nil
}

func (s *Store) GetPollByCode(ctx context.Context, code string) (models.Poll, error) {
	const op = "db.GetPollByCode"

	poll, err := scanPoll(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+pollColumns+` FROM poll WHERE code = ?`), code))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Poll{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return models.Poll{}, fmt.Errorf("%s: %w", op, err)
	}

	return poll, nil
}

func (s *Store) GetPollByID(ctx context.Context, id string) (models.Poll, error) {
	const op = "db.GetPollByID"

	poll, err := scanPoll(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+pollColumns+` FROM poll WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Poll{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return models.Poll{}, fmt.Errorf("%s: %w", op, err)
	}

	return poll, nil
}

// SetPollStatus updates the poll status only if it currently equals from.
func (s *Store) SetPollStatus(ctx context.Context, pollID, from, to string) error {
	const op = "db.SetPollStatus"

	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE poll SET status = ? WHERE id = ? AND status = ?
	`), to, pollID, from)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetPollByID(ctx, pollID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return fmt.Errorf("%s: %w", op, ErrStatusMismatch)
	}

	return nil
}

// Participants

// AddParticipant inserts the membership unless one already exists for
// (poll, user). It returns the stored row and whether it was created.
func (s *Store) AddParticipant(ctx context.Context, p models.Participant) (models.Participant, bool, error) {
	const op = "db.AddParticipant"

	res, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO participant (id, poll_id, user_id, username, joined_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (poll_id, user_id) DO NOTHING
	`), p.ID, p.PollID, p.UserID, p.Username, toMillis(p.JoinedAt))
	if err != nil {
		return models.Participant{}, false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Participant{}, false, fmt.Errorf("%s: %w", op, err)
	}

	stored, err := s.GetParticipant(ctx, p.PollID, p.UserID)
	if err != nil {
		return models.Participant{}, false, fmt.Errorf("%s: %w", op, err)
	}

	return stored, n == 1, nil
}

func (s *Store) GetParticipant(ctx context.Context, pollID, userID string) (models.Participant, error) {
	const op = "db.GetParticipant"

	var p models.Participant
	var joinedAt int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, poll_id, user_id, username, joined_at
		FROM participant WHERE poll_id = ? AND user_id = ?
	`), pollID, userID).Scan(&p.ID, &p.PollID, &p.UserID, &p.Username, &joinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Participant{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return models.Participant{}, fmt.Errorf("%s: %w", op, err)
	}
	p.JoinedAt = fromMillis(joinedAt)

	return p, nil
}

func (s *Store) ListParticipants(ctx context.Context, pollID string) ([]models.Participant, error) {
	const op = "db.ListParticipants"

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, poll_id, user_id, username, joined_at
		FROM participant WHERE poll_id = ?
		ORDER BY joined_at, id
	`), pollID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	participants := []models.Participant{}
	for rows.Next() {
		var p models.Participant
		var joinedAt int64
		if err := rows.Scan(&p.ID, &p.PollID, &p.UserID, &p.Username, &joinedAt); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		p.JoinedAt = fromMillis(joinedAt)
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows error: %w", op, err)
	}

	return participants, nil
}

// Questions

// CreateQuestion inserts the question and its options in one transaction.
// Position is assigned from the poll's current question count.
func (s *Store) CreateQuestion(ctx context.Context, q *models.Question) error {
	const op = "db.CreateQuestion"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer tx.Rollback()

	var position int
	err = tx.QueryRowContext(ctx, s.rebind(`
		SELECT COUNT(*) FROM question WHERE poll_id = ?
	`), q.PollID).Scan(&position)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	q.Position = position

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO question (id, poll_id, text, timer, status, position, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), q.ID, q.PollID, q.Text, q.Timer, q.Status, q.Position, toMillis(q.CreatedAt))
	if err != nil {
		return fmt.Errorf("%s: insert question: %w", op, err)
	}

	for i := range q.Options {
		o := &q.Options[i]
		o.QuestionID = q.ID
		o.Position = i
		_, err = tx.ExecContext(ctx, s.rebind(`
			INSERT INTO option (id, question_id, text, is_correct, position)
			VALUES (?, ?, ?, ?, ?)
		`), o.ID, o.QuestionID, o.Text, o.IsCorrect, o.Position)
		if err != nil {
			return fmt.Errorf("%s: insert option: %w", op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	return nil
}

const questionColumns = `id, poll_id, text, timer, status, position, created_at, activated_at, closed_at`

func scanQuestion(row interface{ Scan(...any) error }) (models.Question, error) {
	var q models.Question
	var createdAt int64
	var activatedAt, closedAt sql.NullInt64
	err := row.Scan(&q.ID, &q.PollID, &q.Text, &q.Timer, &q.Status, &q.Position,
		&createdAt, &activatedAt, &closedAt)
	if err != nil {
		return models.Question{}, err
	}
	q.CreatedAt = fromMillis(createdAt)
	q.ActivatedAt = nullableTime(activatedAt)
	q.ClosedAt = nullableTime(closedAt)
	q.Options = []models.Option{}
	return q, nil
}

func (s *Store) optionsFor(ctx context.Context, q queryer, where string, arg string) (map[string][]models.Option, error) {
	rows, err := q.QueryContext(ctx, s.rebind(`
		SELECT o.id, o.question_id, o.text, o.is_correct, o.position
		FROM option o JOIN question q ON q.id = o.question_id
		WHERE `+where+`
		ORDER BY o.question_id, o.position
	`), arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byQuestion := make(map[string][]models.Option)
	for rows.Next() {
		var o models.Option
		if err := rows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.IsCorrect, &o.Position); err != nil {
			return nil, err
		}
		byQuestion[o.QuestionID] = append(byQuestion[o.QuestionID], o)
	}
	return byQuestion, rows.Err()
}

func (s *Store) GetQuestion(ctx context.Context, id string) (models.Question, error) {
	const op = "db.GetQuestion"

	q, err := scanQuestion(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+questionColumns+` FROM question WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Question{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return models.Question{}, fmt.Errorf("%s: %w", op, err)
	}

	options, err := s.optionsFor(ctx, s.db, "q.id = ?", id)
	if err != nil {
		return models.Question{}, fmt.Errorf("%s: options: %w", op, err)
	}
	if opts, ok := options[id]; ok {
		q.Options = opts
	}

	return q, nil
}

func (s *Store) listQuestions(ctx context.Context, op, where, arg string) ([]models.Question, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+questionColumns+` FROM question WHERE `+where+` ORDER BY position, id`), arg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	questions := []models.Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows error: %w", op, err)
	}

	return questions, nil
}

func (s *Store) attachOptions(ctx context.Context, questions []models.Question, where, arg string) error {
	options, err := s.optionsFor(ctx, s.db, where, arg)
	if err != nil {
		return err
	}
	for i := range questions {
		if opts, ok := options[questions[i].ID]; ok {
			questions[i].Options = opts
		}
	}
	return nil
}

// ListQuestions returns the poll's questions in creation order, with options.
func (s *Store) ListQuestions(ctx context.Context, pollID string) ([]models.Question, error) {
	const op = "db.ListQuestions"

	questions, err := s.listQuestions(ctx, op, "poll_id = ?", pollID)
	if err != nil {
		return nil, err
	}
	if err := s.attachOptions(ctx, questions, "q.poll_id = ?", pollID); err != nil {
		return nil, fmt.Errorf("%s: options: %w", op, err)
	}

	return questions, nil
}

// ListActiveQuestions returns every ACTIVE question across all polls.
func (s *Store) ListActiveQuestions(ctx context.Context) ([]models.Question, error) {
	const op = "db.ListActiveQuestions"

	questions, err := s.listQuestions(ctx, op, "status = ?", models.QuestionActive)
	if err != nil {
		return nil, err
	}
	if err := s.attachOptions(ctx, questions, "q.status = ?", models.QuestionActive); err != nil {
		return nil, fmt.Errorf("%s: options: %w", op, err)
	}

	return questions, nil
}

// FindActiveQuestion returns the poll's ACTIVE question or ErrNotFound.
func (s *Store) FindActiveQuestion(ctx context.Context, pollID string) (models.Question, error) {
	const op = "db.FindActiveQuestion"

	var id string
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id FROM question WHERE poll_id = ? AND status = ?
	`), pollID, models.QuestionActive).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Question{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return models.Question{}, fmt.Errorf("%s: %w", op, err)
	}

	return s.GetQuestion(ctx, id)
}

// TransitionQuestion moves a question from one status to another only if
// its current status is from. Entering ACTIVE stamps activated_at, entering
// CLOSED stamps closed_at.
func (s *Store) TransitionQuestion(ctx context.Context, id, from, to string, at time.Time) error {
	const op = "db.TransitionQuestion"

	column := "closed_at"
	if to == models.QuestionActive {
		column = "activated_at"
	}

	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE question SET status = ?, `+column+` = ? WHERE id = ? AND status = ?
	`), to, toMillis(at), id, from)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, ErrConflict)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		var status string
		err := s.db.QueryRowContext(ctx, s.rebind(`SELECT status FROM question WHERE id = ?`), id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return fmt.Errorf("%s: status is %s: %w", op, status, ErrStatusMismatch)
	}

	return nil
}

func (s *Store) DeleteQuestion(ctx context.Context, id string) error {
	const op = "db.DeleteQuestion"

	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM question WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	return nil
}

// Answers

// InsertAnswer stores the answer only if the question is ACTIVE and the
// option belongs to it, in a single statement. A second answer for the same
// (question, user) fails with ErrConflict.
func (s *Store) InsertAnswer(ctx context.Context, a models.Answer) error {
	const op = "db.InsertAnswer"

	res, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO answer (id, question_id, option_id, user_id, created_at)
		SELECT CAST(? AS TEXT), CAST(? AS TEXT), CAST(? AS TEXT), CAST(? AS TEXT), CAST(? AS BIGINT)
		WHERE EXISTS (SELECT 1 FROM question WHERE id = ? AND status = ?)
		  AND EXISTS (SELECT 1 FROM option WHERE id = ? AND question_id = ?)
	`), a.ID, a.QuestionID, a.OptionID, a.UserID, toMillis(a.CreatedAt),
		a.QuestionID, models.QuestionActive,
		a.OptionID, a.QuestionID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, ErrConflict)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 1 {
		return nil
	}

	var status string
	err = s.db.QueryRowContext(ctx, s.rebind(`SELECT status FROM question WHERE id = ?`), a.QuestionID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if status != models.QuestionActive {
		return fmt.Errorf("%s: %w", op, ErrNotActive)
	}
	return fmt.Errorf("%s: %w", op, ErrOptionMismatch)
}

func (s *Store) CountAnswers(ctx context.Context, questionID string) (int, error) {
	const op = "db.CountAnswers"

	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT COUNT(*) FROM answer WHERE question_id = ?
	`), questionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

// CountAnswersByOption groups the question's answers by option.
// Options without answers are absent from the map.
func (s *Store) CountAnswersByOption(ctx context.Context, questionID string) (map[string]int, error) {
	const op = "db.CountAnswersByOption"

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT option_id, COUNT(*) FROM answer WHERE question_id = ? GROUP BY option_id
	`), questionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var optionID string
		var n int
		if err := rows.Scan(&optionID, &n); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		counts[optionID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows error: %w", op, err)
	}

	return counts, nil
}

// AnswersByUser maps question id to the option the user chose, for every
// question of the poll the user answered.
func (s *Store) AnswersByUser(ctx context.Context, pollID, userID string) (map[string]string, error) {
	const op = "db.AnswersByUser"

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT a.question_id, a.option_id
		FROM answer a JOIN question q ON q.id = a.question_id
		WHERE q.poll_id = ? AND a.user_id = ?
	`), pollID, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	chosen := make(map[string]string)
	for rows.Next() {
		var questionID, optionID string
		if err := rows.Scan(&questionID, &optionID); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		chosen[questionID] = optionID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows error: %w", op, err)
	}

	return chosen, nil
}
