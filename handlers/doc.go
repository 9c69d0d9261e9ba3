// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the livepoll API.

# Handler Types

Each handler is a thin struct over its dependencies:

  - UserHandler: Username registration and token issue
  - PollHandler: Poll create, join, state snapshot, close
  - QuestionHandler: Add, activate, close and delete questions
  - VotingHandler: Answer submission
  - ResultsHandler: Remaining time and poll history
  - SocketHandler: Websocket upgrade into the broadcast hub

Business rules live in session.Registry; handlers decode requests, take the
caller from the context set by middleware.RequireAuth, and map registry
errors to status codes:

	session.ErrNotFound         → 404
	session.ErrForbidden        → 403
	session.ErrInvalidState     → 409
	session.ErrConflict         → 409
	session.ErrInvalidReference → 422
	session.ErrInvalidArgument  → 400

Anything else is logged and reported as a bare 500.

# Question Lifecycle

	POST /polls/{code}/questions               → AddQuestion (PENDING)
	POST /polls/{code}/questions/{id}/activate → ActivateQuestion (ACTIVE, timer starts)
	POST /polls/{code}/questions/{id}/close    → CloseQuestion (CLOSED, results broadcast)

The timer closes the question on its own if the creator does not.
*/
package handlers
