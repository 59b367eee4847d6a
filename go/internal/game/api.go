package game

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mcdev12/bingo/go/internal/draw"
)

const (
	// GameServiceName is the fully-qualified name of the management service
	GameServiceName = "bingo.v1.GameService"

	CreateGameProcedure  = "/" + GameServiceName + "/CreateGame"
	GetGameProcedure     = "/" + GameServiceName + "/GetGame"
	StartGameProcedure   = "/" + GameServiceName + "/StartGame"
	PauseGameProcedure   = "/" + GameServiceName + "/PauseGame"
	ResumeGameProcedure  = "/" + GameServiceName + "/ResumeGame"
	EndGameProcedure     = "/" + GameServiceName + "/EndGame"
	DrawNumberProcedure  = "/" + GameServiceName + "/DrawNumber"
	JoinGameProcedure    = "/" + GameServiceName + "/JoinGame"
	GetPlayerProcedure   = "/" + GameServiceName + "/GetPlayer"
	ListPlayersProcedure = "/" + GameServiceName + "/ListPlayers"

	// AdminKeyHeader carries the admin credential on management calls
	AdminKeyHeader = "X-Admin-Key"
)

// GameServiceHandler is implemented by *Service
type GameServiceHandler interface {
	CreateGame(context.Context, *connect.Request[CreateGameRequest]) (*connect.Response[CreateGameResponse], error)
	GetGame(context.Context, *connect.Request[GameIDRequest]) (*connect.Response[GameResponse], error)
	StartGame(context.Context, *connect.Request[GameIDRequest]) (*connect.Response[GameResponse], error)
	PauseGame(context.Context, *connect.Request[GameIDRequest]) (*connect.Response[GameResponse], error)
	ResumeGame(context.Context, *connect.Request[GameIDRequest]) (*connect.Response[GameResponse], error)
	EndGame(context.Context, *connect.Request[GameIDRequest]) (*connect.Response[GameResponse], error)
	DrawNumber(context.Context, *connect.Request[GameIDRequest]) (*connect.Response[draw.Result], error)
	JoinGame(context.Context, *connect.Request[JoinGameRequest]) (*connect.Response[JoinGameResponse], error)
	GetPlayer(context.Context, *connect.Request[GetPlayerRequest]) (*connect.Response[PlayerResponse], error)
	ListPlayers(context.Context, *connect.Request[GameIDRequest]) (*connect.Response[ListPlayersResponse], error)
}

// NewGameServiceHandler builds the HTTP handler for every procedure and
// returns the path prefix to mount it on
func NewGameServiceHandler(svc GameServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)

	handlers := map[string]http.Handler{
		CreateGameProcedure:  connect.NewUnaryHandler(CreateGameProcedure, svc.CreateGame, opts...),
		GetGameProcedure:     connect.NewUnaryHandler(GetGameProcedure, svc.GetGame, opts...),
		StartGameProcedure:   connect.NewUnaryHandler(StartGameProcedure, svc.StartGame, opts...),
		PauseGameProcedure:   connect.NewUnaryHandler(PauseGameProcedure, svc.PauseGame, opts...),
		ResumeGameProcedure:  connect.NewUnaryHandler(ResumeGameProcedure, svc.ResumeGame, opts...),
		EndGameProcedure:     connect.NewUnaryHandler(EndGameProcedure, svc.EndGame, opts...),
		DrawNumberProcedure:  connect.NewUnaryHandler(DrawNumberProcedure, svc.DrawNumber, opts...),
		JoinGameProcedure:    connect.NewUnaryHandler(JoinGameProcedure, svc.JoinGame, opts...),
		GetPlayerProcedure:   connect.NewUnaryHandler(GetPlayerProcedure, svc.GetPlayer, opts...),
		ListPlayersProcedure: connect.NewUnaryHandler(ListPlayersProcedure, svc.ListPlayers, opts...),
	}

	prefix := "/" + GameServiceName + "/"
	return prefix, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := handlers[r.URL.Path]; ok {
			h.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}

// GameServiceClient calls the management API
type GameServiceClient struct {
	createGame  *connect.Client[CreateGameRequest, CreateGameResponse]
	getGame     *connect.Client[GameIDRequest, GameResponse]
	startGame   *connect.Client[GameIDRequest, GameResponse]
	pauseGame   *connect.Client[GameIDRequest, GameResponse]
	resumeGame  *connect.Client[GameIDRequest, GameResponse]
	endGame     *connect.Client[GameIDRequest, GameResponse]
	drawNumber  *connect.Client[GameIDRequest, draw.Result]
	joinGame    *connect.Client[JoinGameRequest, JoinGameResponse]
	getPlayer   *connect.Client[GetPlayerRequest, PlayerResponse]
	listPlayers *connect.Client[GameIDRequest, ListPlayersResponse]
	adminKey    string
}

// NewGameServiceClient builds a client for baseURL (for example http://localhost:8080).
// adminKey may be empty for player-only use.
func NewGameServiceClient(httpClient connect.HTTPClient, baseURL, adminKey string, opts ...connect.ClientOption) *GameServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)
	return &GameServiceClient{
		createGame:  connect.NewClient[CreateGameRequest, CreateGameResponse](httpClient, baseURL+CreateGameProcedure, opts...),
		getGame:     connect.NewClient[GameIDRequest, GameResponse](httpClient, baseURL+GetGameProcedure, opts...),
		startGame:   connect.NewClient[GameIDRequest, GameResponse](httpClient, baseURL+StartGameProcedure, opts...),
		pauseGame:   connect.NewClient[GameIDRequest, GameResponse](httpClient, baseURL+PauseGameProcedure, opts...),
		resumeGame:  connect.NewClient[GameIDRequest, GameResponse](httpClient, baseURL+ResumeGameProcedure, opts...),
		endGame:     connect.NewClient[GameIDRequest, GameResponse](httpClient, baseURL+EndGameProcedure, opts...),
		drawNumber:  connect.NewClient[GameIDRequest, draw.Result](httpClient, baseURL+DrawNumberProcedure, opts...),
		joinGame:    connect.NewClient[JoinGameRequest, JoinGameResponse](httpClient, baseURL+JoinGameProcedure, opts...),
		getPlayer:   connect.NewClient[GetPlayerRequest, PlayerResponse](httpClient, baseURL+GetPlayerProcedure, opts...),
		listPlayers: connect.NewClient[GameIDRequest, ListPlayersResponse](httpClient, baseURL+ListPlayersProcedure, opts...),
		adminKey:    adminKey,
	}
}

func call[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], adminKey string, msg *Req) (*Res, error) {
	req := connect.NewRequest(msg)
	if adminKey != "" {
		req.Header().Set(AdminKeyHeader, adminKey)
	}
	res, err := c.CallUnary(ctx, req)
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *GameServiceClient) CreateGame(ctx context.Context, req *CreateGameRequest) (*CreateGameResponse, error) {
	return call(ctx, c.createGame, c.adminKey, req)
}

func (c *GameServiceClient) GetGame(ctx context.Context, gameID string) (*GameResponse, error) {
	return call(ctx, c.getGame, c.adminKey, &GameIDRequest{GameID: gameID})
}

func (c *GameServiceClient) StartGame(ctx context.Context, gameID string) (*GameResponse, error) {
	return call(ctx, c.startGame, c.adminKey, &GameIDRequest{GameID: gameID})
}

func (c *GameServiceClient) PauseGame(ctx context.Context, gameID string) (*GameResponse, error) {
	return call(ctx, c.pauseGame, c.adminKey, &GameIDRequest{GameID: gameID})
}

func (c *GameServiceClient) ResumeGame(ctx context.Context, gameID string) (*GameResponse, error) {
	return call(ctx, c.resumeGame, c.adminKey, &GameIDRequest{GameID: gameID})
}

func (c *GameServiceClient) EndGame(ctx context.Context, gameID string) (*GameResponse, error) {
	return call(ctx, c.endGame, c.adminKey, &GameIDRequest{GameID: gameID})
}

func (c *GameServiceClient) DrawNumber(ctx context.Context, gameID string) (*draw.Result, error) {
	return call(ctx, c.drawNumber, c.adminKey, &GameIDRequest{GameID: gameID})
}

func (c *GameServiceClient) JoinGame(ctx context.Context, joinCode, playerName string) (*JoinGameResponse, error) {
	return call(ctx, c.joinGame, "", &JoinGameRequest{JoinCode: joinCode, PlayerName: playerName})
}

func (c *GameServiceClient) GetPlayer(ctx context.Context, playerID string) (*PlayerResponse, error) {
	return call(ctx, c.getPlayer, "", &GetPlayerRequest{PlayerID: playerID})
}

func (c *GameServiceClient) ListPlayers(ctx context.Context, gameID string) (*ListPlayersResponse, error) {
	return call(ctx, c.listPlayers, c.adminKey, &GameIDRequest{GameID: gameID})
}
