// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the livepoll API server.

livepoll runs live, room-scoped quizzes: a creator opens a poll, participants
join by code, and the creator activates one timed question at a time. Answers
are accepted once per participant while the question is live, and results are
broadcast to the room when the timer runs out or the creator closes it.

# Starting the Server

The server reads its configuration from the environment (and a .env file, if
present) with CLI flags taking precedence:

	DATABASE_URL=livepoll.db JWT_SECRET=... go run .

Or with flags:

	go run . -p 3318 -t postgres -d "postgres://..."

# Configuration

Required settings:

  - DATABASE_URL (-d): SQLite file/DSN or PostgreSQL connection string
  - JWT_SECRET (--jwt-secret): Secret for signing bearer tokens

Optional settings:

  - PORT (-p): Server port (default: 3318)
  - DATABASE_TYPE (-t): sqlite or postgres (default: sqlite)
  - ENV (--env): local, dev or prod; selects text or JSON logs (default: local)
  - TOKEN_TTL: Bearer token lifetime (default: 5h)
  - LIVE_BREAKDOWN (--live-breakdown): Per-option counts in answer updates
  - CLOSE_RETRIES: Attempts to persist a timer close (default: 3)
  - CORS_ORIGIN: Allowed browser origin (default: *)

# Architecture

  - session: Question lifecycle, timers, answer admission, aggregation
  - broadcast: Websocket rooms keyed by poll code
  - handlers: HTTP request handlers (users, polls, questions, answers, results)
  - router: Route definitions using Go 1.22+ routing
  - middleware: CORS, logging, bearer auth, JSON helpers
  - db: Schema and repository for SQLite and PostgreSQL
  - auth: Bearer tokens and poll codes
  - clock: Real and fake time sources
  - cliparse: Configuration parsing

See package documentation for each component.
*/
package main
