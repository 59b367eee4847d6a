package game

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bingo/go/internal/apperr"
	"github.com/mcdev12/bingo/go/internal/bingo"
	"github.com/mcdev12/bingo/go/internal/draw"
	"github.com/mcdev12/bingo/go/internal/models"
	"github.com/mcdev12/bingo/go/internal/store"
)

const (
	maxJoinCodeAttempts = 10
	maxDrawIntervalSec  = 3600
	maxNameLength       = 64
)

// Repository defines what the app layer needs from storage
type Repository interface {
	store.GameStore
	store.PlayerStore
}

// Notifier is told about state changes that connected clients must see
type Notifier interface {
	GameChanged(ctx context.Context, g *models.Game)
	NumberDrawn(ctx context.Context, gameID uuid.UUID, res *draw.Result)
	PlayerWon(ctx context.Context, gameID uuid.UUID, p *models.Player, lines []bingo.Line)
}

type noopNotifier struct{}

func (noopNotifier) GameChanged(context.Context, *models.Game)                          {}
func (noopNotifier) NumberDrawn(context.Context, uuid.UUID, *draw.Result)               {}
func (noopNotifier) PlayerWon(context.Context, uuid.UUID, *models.Player, []bingo.Line) {}

// App handles game business logic
type App struct {
	repo       Repository
	engine     *draw.Engine
	clock      clockwork.Clock
	rand       bingo.RandFunc
	adminKey   string
	freeCenter bool
	notifier   Notifier
}

type Option func(*App)

func WithClock(c clockwork.Clock) Option {
	return func(a *App) { a.clock = c }
}

func WithRand(r bingo.RandFunc) Option {
	return func(a *App) { a.rand = r }
}

// WithAdminKey sets the shared credential administrators present
func WithAdminKey(key string) Option {
	return func(a *App) { a.adminKey = key }
}

func WithFreeCenter(enabled bool) Option {
	return func(a *App) { a.freeCenter = enabled }
}

// NewApp creates a new game App
func NewApp(repo Repository, opts ...Option) *App {
	a := &App{
		repo:       repo,
		clock:      clockwork.NewRealClock(),
		rand:       bingo.FastRand,
		freeCenter: true,
		notifier:   noopNotifier{},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.engine = draw.NewEngine(repo, draw.WithClock(a.clock), draw.WithRand(a.rand))
	return a
}

// SetNotifier wires the component that fans changes out to clients
func (a *App) SetNotifier(n Notifier) {
	if n == nil {
		n = noopNotifier{}
	}
	a.notifier = n
}

// Engine exposes the draw engine for the timed scheduler
func (a *App) Engine() *draw.Engine {
	return a.engine
}

// AuthorizeAdmin checks an admin credential
func (a *App) AuthorizeAdmin(key string) error {
	if a.adminKey == "" || key == "" ||
		subtle.ConstantTimeCompare([]byte(a.adminKey), []byte(key)) != 1 {
		return apperr.New(apperr.KindUnauthenticated, "AuthorizeAdmin", "invalid admin key")
	}
	return nil
}

// CreateGame creates a game with a fresh join code
func (a *App) CreateGame(ctx context.Context, req CreateGameRequest) (*models.Game, error) {
	if err := validateCreateGameRequest(&req); err != nil {
		return nil, err
	}

	now := a.clock.Now()
	for attempt := 0; attempt < maxJoinCodeAttempts; attempt++ {
		g := &models.Game{
			ID:              uuid.New(),
			JoinCode:        GenerateJoinCode(a.rand),
			Name:            req.Name,
			Status:          models.GameStatusCreated,
			DrawMode:        req.DrawMode,
			DrawIntervalSec: req.DrawIntervalSec,
			DrawnNumbers:    []int{},
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		err := a.repo.CreateGame(ctx, g)
		if apperr.Is(err, apperr.KindConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create game: %w", err)
		}

		log.Info().
			Str("game_id", g.ID.String()).
			Str("join_code", g.JoinCode).
			Str("draw_mode", string(g.DrawMode)).
			Msg("created game")
		return g, nil
	}
	return nil, apperr.New(apperr.KindConflict, "CreateGame", "could not allocate a unique join code")
}

func (a *App) GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	g, err := a.repo.GetGame(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return g, nil
}

func (a *App) GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	p, err := a.repo.GetPlayer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	return p, nil
}

func (a *App) ListPlayers(ctx context.Context, gameID uuid.UUID) ([]*models.Player, error) {
	players, err := a.repo.ListPlayers(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	return players, nil
}

// ListGames returns games in the given status, used to resume timed draws on startup
func (a *App) ListGames(ctx context.Context, status models.GameStatus) ([]*models.Game, error) {
	games, err := a.repo.ListGamesByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	return games, nil
}

// RegisterPlayer adds a player with a new card to the game behind joinCode
func (a *App) RegisterPlayer(ctx context.Context, joinCode, name string) (*models.Game, *models.Player, error) {
	const op = "RegisterPlayer"

	code := NormalizeJoinCode(joinCode)
	if err := ValidateJoinCode(code); err != nil {
		return nil, nil, apperr.Wrap(apperr.KindInvalidArgument, op, err)
	}
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return nil, nil, apperr.New(apperr.KindInvalidArgument, op, "player name must be 1-64 characters")
	}

	g, err := a.repo.GetGameByJoinCode(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find game: %w", err)
	}
	if g.Status == models.GameStatusEnded {
		return nil, nil, apperr.New(apperr.KindInvalidState, op, "game has ended")
	}

	now := a.clock.Now()
	p := &models.Player{
		ID:            uuid.New(),
		GameID:        g.ID,
		Name:          name,
		Card:          bingo.NewCard(a.rand, a.freeCenter),
		MarkedNumbers: []int{},
		LastSeenAt:    now,
		CreatedAt:     now,
	}
	if err := a.repo.CreatePlayer(ctx, p); err != nil {
		return nil, nil, fmt.Errorf("failed to create player: %w", err)
	}

	g, err = a.repo.UpdateGame(ctx, g.ID, func(g *models.Game) error {
		g.RegisteredPlayers++
		g.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to count player: %w", err)
	}

	log.Info().
		Str("game_id", g.ID.String()).
		Str("player_id", p.ID.String()).
		Str("player_name", p.Name).
		Msg("registered player")
	return g, p, nil
}

// StartGame moves a created game to active
func (a *App) StartGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	return a.transition(ctx, "StartGame", id, func(g *models.Game) error {
		if g.Status != models.GameStatusCreated {
			return apperr.New(apperr.KindInvalidState, "StartGame", fmt.Sprintf("cannot start a %s game", g.Status))
		}
		now := a.clock.Now()
		g.Status = models.GameStatusActive
		g.StartedAt = &now
		return nil
	})
}

func (a *App) PauseGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	return a.transition(ctx, "PauseGame", id, func(g *models.Game) error {
		if g.Status != models.GameStatusActive {
			return apperr.New(apperr.KindInvalidState, "PauseGame", fmt.Sprintf("cannot pause a %s game", g.Status))
		}
		g.Status = models.GameStatusPaused
		return nil
	})
}

func (a *App) ResumeGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	return a.transition(ctx, "ResumeGame", id, func(g *models.Game) error {
		if g.Status != models.GameStatusPaused {
			return apperr.New(apperr.KindInvalidState, "ResumeGame", fmt.Sprintf("cannot resume a %s game", g.Status))
		}
		g.Status = models.GameStatusActive
		return nil
	})
}

// EndGame ends the game from any state. Ending an ended game is a no-op.
func (a *App) EndGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	g, err := a.repo.GetGame(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	if g.Status == models.GameStatusEnded {
		return g, nil
	}
	return a.transition(ctx, "EndGame", id, func(g *models.Game) error {
		if g.Status == models.GameStatusEnded {
			return errAlreadyEnded
		}
		now := a.clock.Now()
		g.Status = models.GameStatusEnded
		g.EndedAt = &now
		return nil
	})
}

var errAlreadyEnded = apperr.New(apperr.KindInvalidState, "EndGame", "already ended")

func (a *App) transition(ctx context.Context, op string, id uuid.UUID, fn func(g *models.Game) error) (*models.Game, error) {
	var from models.GameStatus
	g, err := a.repo.UpdateGame(ctx, id, func(g *models.Game) error {
		from = g.Status
		if err := fn(g); err != nil {
			return err
		}
		g.UpdatedAt = a.clock.Now()
		return nil
	})
	if errors.Is(err, errAlreadyEnded) {
		// lost a race with another EndGame
		return a.repo.GetGame(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info().
		Str("game_id", id.String()).
		Str("from", string(from)).
		Str("to", string(g.Status)).
		Msg("game status changed")
	a.notifier.GameChanged(ctx, g)
	return g, nil
}

// DrawNumber draws the next number. Exhausting the pool ends the game.
func (a *App) DrawNumber(ctx context.Context, gameID uuid.UUID) (*draw.Result, error) {
	res, err := a.engine.DrawNext(ctx, gameID)
	if apperr.Is(err, apperr.KindExhausted) {
		a.HandleExhausted(ctx, gameID)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if res.Committed {
		a.notifier.NumberDrawn(ctx, gameID, res)
	}
	return res, nil
}

// HandleExhausted ends a game whose numbers have all been drawn
func (a *App) HandleExhausted(ctx context.Context, gameID uuid.UUID) {
	if _, err := a.EndGame(ctx, gameID); err != nil {
		log.Error().Err(err).Str("game_id", gameID.String()).Msg("failed to end exhausted game")
	}
}

// MarkNumber records a mark. The number must be on the player's card and
// already drawn, and the game must not have ended. Re-marking is a no-op.
func (a *App) MarkNumber(ctx context.Context, playerID uuid.UUID, number int) (*models.Player, error) {
	const op = "MarkNumber"
	if !bingo.ValidNumber(number) {
		return nil, apperr.New(apperr.KindInvalidArgument, op, fmt.Sprintf("number %d out of range", number))
	}

	p, g, err := a.playerAndGame(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if g.Status == models.GameStatusEnded {
		return nil, apperr.New(apperr.KindInvalidState, op, "game has ended")
	}
	if !p.Card.Contains(number) {
		return nil, apperr.New(apperr.KindInvalidArgument, op, fmt.Sprintf("number %d is not on the card", number))
	}
	if !g.HasDrawn(number) {
		return nil, apperr.New(apperr.KindInvalidState, op, fmt.Sprintf("number %d has not been drawn", number))
	}

	p, err = a.repo.UpdatePlayer(ctx, playerID, func(p *models.Player) error {
		if !p.IsMarked(number) {
			p.MarkedNumbers = append(p.MarkedNumbers, number)
		}
		p.LastSeenAt = a.clock.Now()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark number: %w", err)
	}
	return p, nil
}

// UnmarkNumber removes a mark; removing an absent mark is a no-op
func (a *App) UnmarkNumber(ctx context.Context, playerID uuid.UUID, number int) (*models.Player, error) {
	const op = "UnmarkNumber"
	if !bingo.ValidNumber(number) {
		return nil, apperr.New(apperr.KindInvalidArgument, op, fmt.Sprintf("number %d out of range", number))
	}

	_, g, err := a.playerAndGame(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if g.Status == models.GameStatusEnded {
		return nil, apperr.New(apperr.KindInvalidState, op, "game has ended")
	}

	p, err := a.repo.UpdatePlayer(ctx, playerID, func(p *models.Player) error {
		kept := p.MarkedNumbers[:0]
		for _, m := range p.MarkedNumbers {
			if m != number {
				kept = append(kept, m)
			}
		}
		p.MarkedNumbers = kept
		p.LastSeenAt = a.clock.Now()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unmark number: %w", err)
	}
	return p, nil
}

// ClaimBingo validates a claim against the authoritative drawn list. Only
// numbers that have actually been drawn count, whatever the client sent.
func (a *App) ClaimBingo(ctx context.Context, playerID uuid.UUID, claimed []int) (*ClaimResult, error) {
	const op = "ClaimBingo"

	p, g, err := a.playerAndGame(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if g.Status != models.GameStatusActive && g.Status != models.GameStatusPaused {
		return nil, apperr.New(apperr.KindInvalidState, op, fmt.Sprintf("cannot claim in a %s game", g.Status))
	}

	claimedSet := bingo.NewMarkSet(append(append([]int{}, claimed...), p.MarkedNumbers...))
	result := bingo.CheckClaim(p.Card, claimedSet, g.DrawnNumbers)
	marks := claimedSet.Intersect(g.DrawnNumbers)
	if !result.Won {
		log.Debug().
			Str("game_id", g.ID.String()).
			Str("player_id", p.ID.String()).
			Msg("rejected bingo claim")
		return &ClaimResult{Valid: false, Player: p}, nil
	}

	firstWin := false
	now := a.clock.Now()
	p, err = a.repo.UpdatePlayer(ctx, playerID, func(p *models.Player) error {
		merged := bingo.NewMarkSet(p.MarkedNumbers)
		for n := range marks {
			if p.Card.Contains(n) {
				merged[n] = struct{}{}
			}
		}
		p.MarkedNumbers = merged.Sorted()
		if !p.HasWon {
			firstWin = true
			p.HasWon = true
			p.WonAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record win: %w", err)
	}

	if firstWin {
		if _, err := a.repo.UpdateGame(ctx, g.ID, func(g *models.Game) error {
			g.WinnerCount++
			g.UpdatedAt = now
			return nil
		}); err != nil {
			return nil, fmt.Errorf("failed to count winner: %w", err)
		}
		log.Info().
			Str("game_id", g.ID.String()).
			Str("player_id", p.ID.String()).
			Int("lines", len(result.Lines)).
			Msg("bingo")
		a.notifier.PlayerWon(ctx, g.ID, p, result.Lines)
	}

	return &ClaimResult{Valid: true, Lines: result.Lines, FirstWin: firstWin, Player: p}, nil
}

// SetPlayerOnline binds the player to connID
func (a *App) SetPlayerOnline(ctx context.Context, playerID uuid.UUID, connID string) (*models.Player, error) {
	wasOnline := false
	now := a.clock.Now()
	p, err := a.repo.UpdatePlayer(ctx, playerID, func(p *models.Player) error {
		wasOnline = p.Online
		id := connID
		p.Online = true
		p.ConnectionID = &id
		p.LastSeenAt = now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set player online: %w", err)
	}
	if !wasOnline {
		a.adjustActive(ctx, p.GameID, 1)
	}
	return p, nil
}

// SetPlayerOffline clears the player's connection, but only if connID is
// still the one bound to the player. It reports whether anything changed.
func (a *App) SetPlayerOffline(ctx context.Context, playerID uuid.UUID, connID string) (bool, error) {
	changed := false
	p, err := a.repo.UpdatePlayer(ctx, playerID, func(p *models.Player) error {
		if !p.Online || p.ConnectionID == nil || *p.ConnectionID != connID {
			return nil
		}
		changed = true
		p.Online = false
		p.ConnectionID = nil
		p.LastSeenAt = a.clock.Now()
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to set player offline: %w", err)
	}
	if changed {
		a.adjustActive(ctx, p.GameID, -1)
	}
	return changed, nil
}

func (a *App) adjustActive(ctx context.Context, gameID uuid.UUID, delta int) {
	_, err := a.repo.UpdateGame(ctx, gameID, func(g *models.Game) error {
		g.ActivePlayers += delta
		if g.ActivePlayers < 0 {
			g.ActivePlayers = 0
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("game_id", gameID.String()).Msg("failed to update active player count")
	}
}

func (a *App) AddAdminConnection(ctx context.Context, gameID uuid.UUID, connID string) (*models.Game, error) {
	g, err := a.repo.UpdateGame(ctx, gameID, func(g *models.Game) error {
		for _, c := range g.AdminConnections {
			if c == connID {
				return nil
			}
		}
		g.AdminConnections = append(g.AdminConnections, connID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add admin connection: %w", err)
	}
	return g, nil
}

func (a *App) RemoveAdminConnection(ctx context.Context, gameID uuid.UUID, connID string) error {
	_, err := a.repo.UpdateGame(ctx, gameID, func(g *models.Game) error {
		kept := g.AdminConnections[:0]
		for _, c := range g.AdminConnections {
			if c != connID {
				kept = append(kept, c)
			}
		}
		g.AdminConnections = kept
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove admin connection: %w", err)
	}
	return nil
}

func (a *App) playerAndGame(ctx context.Context, playerID uuid.UUID) (*models.Player, *models.Game, error) {
	p, err := a.repo.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get player: %w", err)
	}
	g, err := a.repo.GetGame(ctx, p.GameID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get game: %w", err)
	}
	return p, g, nil
}

func validateCreateGameRequest(req *CreateGameRequest) error {
	const op = "CreateGame"
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > maxNameLength {
		return apperr.New(apperr.KindInvalidArgument, op, "game name must be 1-64 characters")
	}
	if req.DrawMode == "" {
		req.DrawMode = models.DrawModeManual
	}
	switch req.DrawMode {
	case models.DrawModeManual:
		req.DrawIntervalSec = 0
	case models.DrawModeTimed:
		if req.DrawIntervalSec < 1 || req.DrawIntervalSec > maxDrawIntervalSec {
			return apperr.New(apperr.KindInvalidArgument, op, "timed games need an interval of 1-3600 seconds")
		}
	default:
		return apperr.New(apperr.KindInvalidArgument, op, fmt.Sprintf("unknown draw mode %q", req.DrawMode))
	}
	return nil
}
