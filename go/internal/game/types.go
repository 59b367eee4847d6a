package game

import (
	"github.com/mcdev12/bingo/go/internal/bingo"
	"github.com/mcdev12/bingo/go/internal/models"
)

// CreateGameRequest contains the data needed to create a game
type CreateGameRequest struct {
	Name            string          `json:"name"`
	DrawMode        models.DrawMode `json:"draw_mode"`
	DrawIntervalSec int             `json:"draw_interval_sec"`
}

// ClaimResult is the authoritative outcome of a bingo claim
type ClaimResult struct {
	Valid    bool           `json:"valid"`
	Lines    []bingo.Line   `json:"lines,omitempty"`
	FirstWin bool           `json:"first_win"`
	Player   *models.Player `json:"player,omitempty"`
}

// API messages served over connect

type CreateGameResponse struct {
	Game *models.Game `json:"game"`
}

type GameIDRequest struct {
	GameID string `json:"game_id"`
}

type GameResponse struct {
	Game *models.Game `json:"game"`
}

type JoinGameRequest struct {
	JoinCode   string `json:"join_code"`
	PlayerName string `json:"player_name"`
}

type JoinGameResponse struct {
	Game   *models.Game   `json:"game"`
	Player *models.Player `json:"player"`
}

type GetPlayerRequest struct {
	PlayerID string `json:"player_id"`
}

type PlayerResponse struct {
	Player *models.Player `json:"player"`
}

type ListPlayersResponse struct {
	Players []*models.Player `json:"players"`
}
