// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import "time"

// Poll status constants
const (
	PollActive = "ACTIVE"
	PollClosed = "CLOSED"
)

// Question status constants
const (
	QuestionPending = "PENDING"
	QuestionActive  = "ACTIVE"
	QuestionClosed  = "CLOSED"
)

// Room event names published to the broadcaster
const (
	EventQuestionActivated = "question-activated"
	EventAnswerUpdate      = "answer-update"
	EventQuestionResults   = "question-results"
	EventNewParticipant    = "new-participant"
	EventPollState         = "poll-state"
	EventPollClosed        = "poll-closed"
)

// Request types

type CreateUserRequest struct {
	Username string `json:"username"`
}

type CreatePollRequest struct {
	Title string `json:"title"`
}

type AddQuestionRequest struct {
	Text    string   `json:"text"`
	Options []string `json:"options"`
	Timer   int      `json:"timer"`
	// index into Options, nil when no option is marked correct
	CorrectOption *int `json:"correctOption,omitempty"`
}

type SubmitAnswerRequest struct {
	OptionID string `json:"optionId"`
}

// Response types

type CreateUserResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type RemainingTimeResponse struct {
	Code      string `json:"code"`
	Remaining int    `json:"remaining"` // seconds
}

// Domain types

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

type Poll struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Title     string    `json:"title"`
	CreatorID string    `json:"creatorId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type Option struct {
	ID         string `json:"id"`
	QuestionID string `json:"questionId"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"isCorrect,omitempty"`
	Position   int    `json:"position"`
}

type Question struct {
	ID          string     `json:"id"`
	PollID      string     `json:"pollId"`
	Text        string     `json:"text"`
	Timer       int        `json:"timer"` // seconds
	Status      string     `json:"status"`
	Position    int        `json:"position"`
	CreatedAt   time.Time  `json:"createdAt"`
	ActivatedAt *time.Time `json:"activatedAt,omitempty"`
	ClosedAt    *time.Time `json:"closedAt,omitempty"`
	Options     []Option   `json:"options"`
}

// CorrectOptionID returns the id of the option flagged correct, or nil.
func (q Question) CorrectOptionID() *string {
	for _, o := range q.Options {
		if o.IsCorrect {
			id := o.ID
			return &id
		}
	}
	return nil
}

// HasOption reports whether optionID belongs to the question.
func (q Question) HasOption(optionID string) bool {
	for _, o := range q.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}

// Public returns a copy with correctness flags cleared, for audiences that
// must not see the answer key before the question closes.
func (q Question) Public() Question {
	out := q
	out.Options = make([]Option, len(q.Options))
	for i, o := range q.Options {
		o.IsCorrect = false
		out.Options[i] = o
	}
	return out
}

type Participant struct {
	ID       string    `json:"id"`
	PollID   string    `json:"pollId"`
	UserID   string    `json:"userId"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joinedAt"`
}

type Answer struct {
	ID         string    `json:"id"`
	QuestionID string    `json:"questionId"`
	OptionID   string    `json:"optionId"`
	UserID     string    `json:"userId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Result types

type OptionResult struct {
	OptionID   string  `json:"optionId"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type Results struct {
	QuestionID      string         `json:"questionId"`
	Results         []OptionResult `json:"results"`
	TotalAnswers    int            `json:"totalAnswers"`
	CorrectOptionID *string        `json:"correctOptionId"`
}

type HistoryOption struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	IsCorrect  bool    `json:"isCorrect"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type HistoryItem struct {
	ID           string          `json:"id"`
	Text         string          `json:"text"`
	Timer        int             `json:"timer"`
	Status       string          `json:"status"`
	Options      []HistoryOption `json:"options"`
	UserAnswerID *string         `json:"userAnswerId"`
}

type PollHistory struct {
	PollID  string        `json:"pollId"`
	Code    string        `json:"code"`
	Title   string        `json:"title"`
	History []HistoryItem `json:"history"`
}

// PollState is the snapshot a late joiner needs to render the room.
type PollState struct {
	Poll           Poll          `json:"poll"`
	Participants   []Participant `json:"participants"`
	Questions      []Question    `json:"questions"`
	ActiveQuestion *Question     `json:"activeQuestion"`
	Remaining      int           `json:"remaining"`
}

// Event payloads

type QuestionActivatedEvent struct {
	Question Question `json:"question"`
}

type AnswerUpdateEvent struct {
	QuestionID  string         `json:"questionId"`
	AnswerCount int            `json:"answerCount"`
	Counts      map[string]int `json:"counts,omitempty"`
}

type NewParticipantEvent struct {
	User Participant `json:"user"`
}

type PollClosedEvent struct {
	Code string `json:"code"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
