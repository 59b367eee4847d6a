package game

import (
	"context"
	"fmt"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/mcdev12/bingo/go/internal/apperr"
	"github.com/mcdev12/bingo/go/internal/draw"
	"github.com/mcdev12/bingo/go/internal/models"
)

// GameApp defines what the service layer needs from the game application
type GameApp interface {
	AuthorizeAdmin(key string) error
	CreateGame(ctx context.Context, req CreateGameRequest) (*models.Game, error)
	GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error)
	StartGame(ctx context.Context, id uuid.UUID) (*models.Game, error)
	PauseGame(ctx context.Context, id uuid.UUID) (*models.Game, error)
	ResumeGame(ctx context.Context, id uuid.UUID) (*models.Game, error)
	EndGame(ctx context.Context, id uuid.UUID) (*models.Game, error)
	DrawNumber(ctx context.Context, id uuid.UUID) (*draw.Result, error)
	RegisterPlayer(ctx context.Context, joinCode, name string) (*models.Game, *models.Player, error)
	GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error)
	ListPlayers(ctx context.Context, gameID uuid.UUID) ([]*models.Player, error)
}

// Service implements GameServiceHandler
type Service struct {
	app GameApp
}

func NewService(app GameApp) *Service {
	return &Service{app: app}
}

var _ GameServiceHandler = (*Service)(nil)

func (s *Service) CreateGame(ctx context.Context, req *connect.Request[CreateGameRequest]) (*connect.Response[CreateGameResponse], error) {
	if err := s.authorize(req.Header().Get(AdminKeyHeader)); err != nil {
		return nil, err
	}
	g, err := s.app.CreateGame(ctx, *req.Msg)
	if err != nil {
		return nil, apperr.ToConnect(err)
	}
	return connect.NewResponse(&CreateGameResponse{Game: g}), nil
}

func (s *Service) GetGame(ctx context.Context, req *connect.Request[GameIDRequest]) (*connect.Response[GameResponse], error) {
	id, err := parseID("game_id", req.Msg.GameID)
	if err != nil {
		return nil, err
	}
	g, err := s.app.GetGame(ctx, id)
	if err != nil {
		return nil, apperr.ToConnect(err)
	}
	return connect.NewResponse(&GameResponse{Game: g}), nil
}

func (s *Service) StartGame(ctx context.Context, req *connect.Request[GameIDRequest]) (*connect.Response[GameResponse], error) {
	return s.adminTransition(ctx, req, s.app.StartGame)
}

func (s *Service) PauseGame(ctx context.Context, req *connect.Request[GameIDRequest]) (*connect.Response[GameResponse], error) {
	return s.adminTransition(ctx, req, s.app.PauseGame)
}

func (s *Service) ResumeGame(ctx context.Context, req *connect.Request[GameIDRequest]) (*connect.Response[GameResponse], error) {
	return s.adminTransition(ctx, req, s.app.ResumeGame)
}

func (s *Service) EndGame(ctx context.Context, req *connect.Request[GameIDRequest]) (*connect.Response[GameResponse], error) {
	return s.adminTransition(ctx, req, s.app.EndGame)
}

func (s *Service) DrawNumber(ctx context.Context, req *connect.Request[GameIDRequest]) (*connect.Response[draw.Result], error) {
	if err := s.authorize(req.Header().Get(AdminKeyHeader)); err != nil {
		return nil, err
	}
	id, err := parseID("game_id", req.Msg.GameID)
	if err != nil {
		return nil, err
	}
	res, err := s.app.DrawNumber(ctx, id)
	if err != nil {
		return nil, apperr.ToConnect(err)
	}
	return connect.NewResponse(res), nil
}

func (s *Service) JoinGame(ctx context.Context, req *connect.Request[JoinGameRequest]) (*connect.Response[JoinGameResponse], error) {
	g, p, err := s.app.RegisterPlayer(ctx, req.Msg.JoinCode, req.Msg.PlayerName)
	if err != nil {
		return nil, apperr.ToConnect(err)
	}
	return connect.NewResponse(&JoinGameResponse{Game: g, Player: p}), nil
}

func (s *Service) GetPlayer(ctx context.Context, req *connect.Request[GetPlayerRequest]) (*connect.Response[PlayerResponse], error) {
	id, err := parseID("player_id", req.Msg.PlayerID)
	if err != nil {
		return nil, err
	}
	p, err := s.app.GetPlayer(ctx, id)
	if err != nil {
		return nil, apperr.ToConnect(err)
	}
	return connect.NewResponse(&PlayerResponse{Player: p}), nil
}

func (s *Service) ListPlayers(ctx context.Context, req *connect.Request[GameIDRequest]) (*connect.Response[ListPlayersResponse], error) {
	if err := s.authorize(req.Header().Get(AdminKeyHeader)); err != nil {
		return nil, err
	}
	id, err := parseID("game_id", req.Msg.GameID)
	if err != nil {
		return nil, err
	}
	players, err := s.app.ListPlayers(ctx, id)
	if err != nil {
		return nil, apperr.ToConnect(err)
	}
	return connect.NewResponse(&ListPlayersResponse{Players: players}), nil
}

func (s *Service) adminTransition(
	ctx context.Context,
	req *connect.Request[GameIDRequest],
	fn func(context.Context, uuid.UUID) (*models.Game, error),
) (*connect.Response[GameResponse], error) {
	if err := s.authorize(req.Header().Get(AdminKeyHeader)); err != nil {
		return nil, err
	}
	id, err := parseID("game_id", req.Msg.GameID)
	if err != nil {
		return nil, err
	}
	g, err := fn(ctx, id)
	if err != nil {
		return nil, apperr.ToConnect(err)
	}
	return connect.NewResponse(&GameResponse{Game: g}), nil
}

func (s *Service) authorize(key string) error {
	if err := s.app.AuthorizeAdmin(key); err != nil {
		return apperr.ToConnect(err)
	}
	return nil
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid %s: %w", field, err))
	}
	return id, nil
}
