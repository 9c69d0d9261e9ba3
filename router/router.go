// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"net/http"

	"github.com/danielhkuo/livepoll/broadcast"
	"github.com/danielhkuo/livepoll/cliparse"
	"github.com/danielhkuo/livepoll/handlers"
	"github.com/danielhkuo/livepoll/middleware"
	"github.com/danielhkuo/livepoll/session"
)

func NewRouter(store handlers.UserStore, reg *session.Registry, hub *broadcast.Hub, cfg cliparse.Config) *http.ServeMux {
	mux := http.NewServeMux()

	// Initialize handlers
	userHandler := handlers.NewUserHandler(store, cfg)
	pollHandler := handlers.NewPollHandler(reg)
	questionHandler := handlers.NewQuestionHandler(reg)
	votingHandler := handlers.NewVotingHandler(reg)
	resultsHandler := handlers.NewResultsHandler(reg)
	socketHandler := handlers.NewSocketHandler(hub, cfg)

	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return middleware.WithLogging(middleware.RequireAuth(cfg.JWTSecret)(h))
	}

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Accounts (public)
	mux.HandleFunc("POST /users", middleware.WithLogging(userHandler.CreateUser))

	// Poll lifecycle
	mux.HandleFunc("POST /polls", authed(pollHandler.CreatePoll))
	mux.HandleFunc("GET /polls/{code}", authed(pollHandler.GetPollState))
	mux.HandleFunc("POST /polls/{code}/join", authed(pollHandler.JoinPoll))
	mux.HandleFunc("POST /polls/{code}/close", authed(pollHandler.ClosePoll))

	// Questions (creator only)
	mux.HandleFunc("POST /polls/{code}/questions", authed(questionHandler.AddQuestion))
	mux.HandleFunc("POST /polls/{code}/questions/{id}/activate", authed(questionHandler.ActivateQuestion))
	mux.HandleFunc("POST /polls/{code}/questions/{id}/close", authed(questionHandler.CloseQuestion))
	mux.HandleFunc("DELETE /polls/{code}/questions/{id}", authed(questionHandler.DeleteQuestion))

	// Answers
	mux.HandleFunc("POST /questions/{id}/answers", authed(votingHandler.SubmitAnswer))

	// Timer and results
	mux.HandleFunc("GET /polls/{code}/remaining", authed(resultsHandler.GetRemainingTime))
	mux.HandleFunc("GET /polls/{code}/history", authed(resultsHandler.GetPollHistory))

	// Realtime room events; the token is checked by the handler
	mux.HandleFunc("GET /ws", middleware.WithLogging(socketHandler.Connect))

	// Root endpoint
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("livepoll API v1"))
	})

	return mux
}
