// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and helper functions.

# Request Logging

Wrap handlers with request logging:

	mux.HandleFunc("GET /health", middleware.WithLogging(handler))

Logs request start (method, path, remote) and completion (status,
duration_ms). The wrapper supports hijacking, so websocket upgrades can be
logged too.

# Authentication

RequireAuth verifies the bearer token and stores the caller's identity:

	protect := middleware.RequireAuth(cfg.JWTSecret)
	mux.HandleFunc("POST /polls", middleware.WithLogging(protect(h.CreatePoll)))

	id, _ := middleware.IdentityFrom(r.Context())

Missing, malformed, forged and expired tokens get 401.

# CORS Middleware

	server := http.Server{
		Handler: middleware.CORS(cfg.CORSOrigin)(mux),
	}

"*" reflects the request's Origin header.

# JSON Helpers

	middleware.JSONResponse(w, http.StatusOK, data)
	middleware.ErrorResponse(w, http.StatusBadRequest, "message")

	var req models.CreatePollRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

# Client IP Extraction

	ip := middleware.GetClientIP(r)

Honors X-Forwarded-For and X-Real-IP; used in request logs.
*/
package middleware
