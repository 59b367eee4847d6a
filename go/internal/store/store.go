package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/bingo/go/internal/apperr"
	"github.com/mcdev12/bingo/go/internal/models"
)

// ErrGameNotFound and ErrPlayerNotFound are returned by lookups that miss
var (
	ErrGameNotFound   = apperr.New(apperr.KindNotFound, "store", "game not found")
	ErrPlayerNotFound = apperr.New(apperr.KindNotFound, "store", "player not found")
)

// GameStore persists games
type GameStore interface {
	CreateGame(ctx context.Context, g *models.Game) error
	GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error)
	GetGameByJoinCode(ctx context.Context, code string) (*models.Game, error)
	ListGamesByStatus(ctx context.Context, status models.GameStatus) ([]*models.Game, error)

	// UpdateGame loads the game, applies fn and saves the result atomically
	// with respect to other UpdateGame calls. If fn returns an error nothing
	// is written.
	UpdateGame(ctx context.Context, id uuid.UUID, fn func(g *models.Game) error) (*models.Game, error)

	// AppendDrawnNumber appends number only if the game is active, exactly
	// expectedCount numbers have been drawn and number is not among them.
	// It returns false without error when the condition does not hold.
	AppendDrawnNumber(ctx context.Context, id uuid.UUID, expectedCount, number int, at time.Time) (bool, error)
}

// PlayerStore persists players
type PlayerStore interface {
	CreatePlayer(ctx context.Context, p *models.Player) error
	GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error)
	ListPlayers(ctx context.Context, gameID uuid.UUID) ([]*models.Player, error)
	UpdatePlayer(ctx context.Context, id uuid.UUID, fn func(p *models.Player) error) (*models.Player, error)
}

// Store is the full persistence surface
type Store interface {
	GameStore
	PlayerStore
	Close() error
}
