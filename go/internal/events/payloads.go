package events

import (
	"time"

	"github.com/mcdev12/bingo/go/internal/bingo"
	"github.com/mcdev12/bingo/go/internal/models"
)

// Broadcast and push payloads

// GameStatePayload is the full game snapshot
type GameStatePayload struct {
	Game *models.Game `json:"game"`
}

// PlayerStatePayload is the receiving player's own record
type PlayerStatePayload struct {
	Player *models.Player `json:"player"`
}

type GameStateChangedPayload struct {
	GameID string            `json:"gameId"`
	Status models.GameStatus `json:"status"`
	Game   *models.Game      `json:"game,omitempty"`
}

type NumberDrawnPayload struct {
	GameID     string    `json:"gameId"`
	Number     int       `json:"number"`
	DrawnCount int       `json:"drawnCount"`
	DrawnAt    time.Time `json:"drawnAt"`
}

type PlayerJoinedPayload struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

type PlayerBingoPayload struct {
	PlayerID   string       `json:"playerId"`
	PlayerName string       `json:"playerName"`
	Lines      []bingo.Line `json:"lines,omitempty"`
}

// Requests and their ack data

type MarkNumberRequest struct {
	Number int `json:"number"`
}

type MarkNumberResponse struct {
	Success bool `json:"success"`
}

type ValidateBingoRequest struct {
	MarkedNumbers []int `json:"markedNumbers"`
}

type ValidateBingoResponse struct {
	Valid bool         `json:"valid"`
	Lines []bingo.Line `json:"lines,omitempty"`
}

type AdminDrawRequest struct {
	GameID string `json:"gameId"`
}

type AdminDrawResponse struct {
	Success bool `json:"success"`
	Number  int  `json:"number"`
}

type SyncStateRequest struct{}

type SyncStateResponse struct {
	Game   *models.Game   `json:"game"`
	Player *models.Player `json:"player,omitempty"`
}
