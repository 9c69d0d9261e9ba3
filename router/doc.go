// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the livepoll API.

# Route Registration

NewRouter creates a configured http.ServeMux with all endpoints:

	mux := router.NewRouter(store, registry, hub, cfg)

# Endpoints

Public:

	GET  /health - Liveness
	POST /users  - Register a username, returns a bearer token
	GET  /ws     - Websocket upgrade (?token= or Authorization header)

Polls (Authorization: Bearer):

	POST /polls                 - Create poll, caller becomes creator
	GET  /polls/{code}          - Poll state snapshot
	POST /polls/{code}/join     - Join as participant
	POST /polls/{code}/close    - Close poll (creator)
	GET  /polls/{code}/remaining - Seconds left on the active question
	GET  /polls/{code}/history  - Closed questions with tallies

Questions (creator):

	POST   /polls/{code}/questions               - Add question
	POST   /polls/{code}/questions/{id}/activate - Start timer
	POST   /polls/{code}/questions/{id}/close    - Close early
	DELETE /polls/{code}/questions/{id}          - Remove question

Answers (participants):

	POST /questions/{id}/answers - Submit {"optionId": ...}

# Middleware

Authenticated routes are wrapped as WithLogging(RequireAuth(handler)), so
rejected tokens are still logged. CORS is applied to the whole mux in main.
*/
package router
