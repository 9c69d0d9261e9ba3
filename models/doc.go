// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines domain records, request/response bodies and the
payloads of room events.

# Domain Types

  - User: registered identity (id, username)
  - Poll: moderator-owned session identified by a shareable code
  - Question: timed poll item with a PENDING → ACTIVE → CLOSED lifecycle
  - Option: answer choice, optionally flagged correct
  - Answer: one participant's choice for one question
  - Participant: poll-scoped membership record

# Room Events

Events are published to the room named by the poll code:

	question-activated → QuestionActivatedEvent
	answer-update      → AnswerUpdateEvent
	question-results   → Results
	new-participant    → NewParticipantEvent
	poll-state         → PollState (sent to a connection right after it joins)
	poll-closed        → PollClosedEvent

# Constants

Poll status:

	PollActive = "ACTIVE"
	PollClosed = "CLOSED"

Question status:

	QuestionPending = "PENDING"
	QuestionActive  = "ACTIVE"
	QuestionClosed  = "CLOSED"
*/
package models
