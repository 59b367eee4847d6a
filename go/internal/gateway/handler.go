package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bingo/go/internal/apperr"
)

// WebSocketHandler handles WebSocket upgrade requests for game connections
type WebSocketHandler struct {
	service *Service
}

func NewWebSocketHandler(s *Service) *WebSocketHandler {
	return &WebSocketHandler{service: s}
}

// HandleGameConnection serves /ws/game?game_id=...&player_id=... (or &admin_key=...).
// The socket is upgraded before identity is checked so a rejected client
// receives a policy-violation close frame instead of an HTTP error.
func (h *WebSocketHandler) HandleGameConnection(w http.ResponseWriter, r *http.Request) {
	s := h.service
	q := r.URL.Query()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}

	conn := NewConnection(ws, s.config.ConnectionConfig)
	s.metrics.ConnectionOpened()
	defer s.metrics.ConnectionClosed()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.writePump()
	}()

	ctx := s.context()
	gameID, identity, err := parseHandshake(q.Get("game_id"), q.Get("player_id"), q.Get("admin_key"))
	if err == nil {
		err = s.Join(ctx, conn, gameID, identity)
	}
	if err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", conn.ID).
			Str("game_id", q.Get("game_id")).
			Msg("rejected game connection")
		s.reply(conn, "", nil, err)
		conn.Close(websocket.ClosePolicyViolation, string(apperr.KindOf(err)))
		<-done
		return
	}

	conn.readPump(func(frame []byte) {
		s.HandleMessage(ctx, conn, frame)
	})
	s.Leave(context.WithoutCancel(ctx), conn)
	<-done
}

func parseHandshake(gameIDStr, playerIDStr, adminKey string) (uuid.UUID, Identity, error) {
	const op = "handshake"
	if gameIDStr == "" {
		return uuid.Nil, Identity{}, apperr.New(apperr.KindInvalidArgument, op, "game_id is required")
	}
	gameID, err := uuid.Parse(gameIDStr)
	if err != nil {
		return uuid.Nil, Identity{}, apperr.New(apperr.KindInvalidArgument, op, "invalid game_id format")
	}
	if adminKey != "" {
		return gameID, Identity{AdminKey: adminKey}, nil
	}
	if playerIDStr == "" {
		return uuid.Nil, Identity{}, apperr.New(apperr.KindInvalidArgument, op, "player_id is required")
	}
	playerID, err := uuid.Parse(playerIDStr)
	if err != nil {
		return uuid.Nil, Identity{}, apperr.New(apperr.KindInvalidArgument, op, "invalid player_id format")
	}
	return gameID, Identity{PlayerID: playerID}, nil
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.service.registry.Stats()); err != nil {
		log.Error().Err(err).Msg("failed to write connection stats")
	}
}

func (h *WebSocketHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/game", h.HandleGameConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
	mux.HandleFunc("/health", h.HandleHealth)
}

func (s *Service) context() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseCtx
}
