// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"

	"github.com/danielhkuo/livepoll/auth"
	"github.com/danielhkuo/livepoll/broadcast"
	"github.com/danielhkuo/livepoll/cliparse"
	"github.com/danielhkuo/livepoll/middleware"
)

type SocketHandler struct {
	hub *broadcast.Hub
	cfg cliparse.Config
}

func NewSocketHandler(hub *broadcast.Hub, cfg cliparse.Config) *SocketHandler {
	return &SocketHandler{hub: hub, cfg: cfg}
}

// Connect handles GET /ws
// Browsers cannot set headers on a websocket handshake, so the token may
// also come from the query string.
func (h *SocketHandler) Connect(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = auth.BearerToken(r.Header.Get("Authorization"))
	}
	if token == "" {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "missing token")
		return
	}

	id, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "invalid token")
		return
	}

	h.hub.Serve(w, r, id)
}
