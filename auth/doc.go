// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth issues and verifies bearer tokens and generates poll codes.

# Bearer Tokens

Tokens are HS256 JWTs carrying the user id (sub), username (name) and
expiry (exp):

	token, err := auth.IssueToken(secret, auth.Identity{UserID: id, Username: name}, ttl)
	identity, err := auth.ParseToken(secret, token)

ParseToken returns ErrExpiredToken for expired tokens and ErrInvalidToken
for everything else it rejects.

# Poll Codes

	code, err := auth.GeneratePollCode() // e.g. "POLL-7KQ2ZD"

Codes are random, six uppercase base36 characters after the POLL- prefix.
Uniqueness is enforced by the database; callers retry on collision.
*/
package auth
