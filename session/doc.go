// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package session runs live polls: the question lifecycle, the timer that
closes each question, answer admission and result aggregation.

# Question Lifecycle

	PENDING ──ActivateQuestion──▶ ACTIVE ──timer / CloseQuestion / ClosePoll──▶ CLOSED

At most one question per poll is ACTIVE. Activating while another question
is ACTIVE fails with ErrConflict; activating a question that is not PENDING
fails with ErrInvalidState. Closing is idempotent: whichever of the timer and
an explicit close wins the status swap publishes question-results, the other
is a no-op.

# Answers

SubmitAnswer accepts one answer per (question, participant) while the
question is ACTIVE and its window has not elapsed. Every accepted answer
publishes answer-update with the running count; per-option counts are added
only when Config.LiveBreakdown is set.

# Timers

Each active question has one timer, owned by the Registry and stopped on
explicit close or deletion. Remaining time is always derived from the
persisted activation timestamp, and Recover re-arms timers after a restart.

# Errors

Operations return errors wrapping one of ErrNotFound, ErrForbidden,
ErrInvalidState, ErrConflict, ErrInvalidReference or ErrInvalidArgument.
Anything else is a storage failure.
*/
package session
