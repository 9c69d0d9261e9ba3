// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db handles schema creation and the SQL repository.

# Connecting

Open picks the driver from the dialect (lib/pq for PostgreSQL, modernc.org/sqlite
for SQLite):

	conn, err := db.Open(db.SQLite, "file:livepoll.db?_pragma=foreign_keys(1)")
	if err != nil {
		log.Fatal(err)
	}
	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}
	store := db.NewStore(conn, db.SQLite)

CreateSchema is safe to call multiple times - it uses IF NOT EXISTS for all
tables and indexes.

# Tables

  - app_user: registered users
  - poll: poll metadata and status (ACTIVE, CLOSED)
  - participant: poll membership, unique per (poll, user)
  - question: timed questions (PENDING, ACTIVE, CLOSED)
  - option: answer choices per question
  - answer: one answer per (question, user)

# Relationships

	app_user 1──* poll
	poll 1──* participant
	poll 1──* question
	question 1──* option
	question 1──* answer
	option 1──* answer

All child foreign keys use ON DELETE CASCADE. A partial unique index allows
at most one ACTIVE question per poll.

# Conditional Writes

Status changes go through compare-and-swap updates (TransitionQuestion,
SetPollStatus) and answers through a conditional insert, so callers never
rely on a separate read to guard a write. Failures map to ErrNotFound,
ErrConflict, ErrStatusMismatch, ErrNotActive and ErrOptionMismatch.
*/
package db
