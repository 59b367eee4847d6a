package game

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"

	"github.com/mcdev12/bingo/go/internal/models"
)

func newTestServer(t *testing.T) (*httptest.Server, *App) {
	t.Helper()
	app, _, _ := newTestApp(t)
	mux := http.NewServeMux()
	path, handler := NewGameServiceHandler(NewService(app))
	mux.Handle(path, handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, app
}

func TestServiceAdminFlow(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()
	admin := NewGameServiceClient(srv.Client(), srv.URL, "secret")
	player := NewGameServiceClient(srv.Client(), srv.URL, "")

	created, err := admin.CreateGame(ctx, &CreateGameRequest{Name: "hall"})
	if err != nil {
		t.Fatalf("CreateGame() = %v", err)
	}
	gameID := created.Game.ID.String()

	joined, err := player.JoinGame(ctx, created.Game.JoinCode, "ann")
	if err != nil {
		t.Fatalf("JoinGame() = %v", err)
	}
	if joined.Player.Name != "ann" || joined.Game.RegisteredPlayers != 1 {
		t.Fatalf("unexpected join %+v", joined)
	}

	started, err := admin.StartGame(ctx, gameID)
	if err != nil || started.Game.Status != models.GameStatusActive {
		t.Fatalf("StartGame() = %+v, %v", started, err)
	}

	res, err := admin.DrawNumber(ctx, gameID)
	if err != nil || !res.Committed || res.Number < 1 || res.Number > 75 {
		t.Fatalf("DrawNumber() = %+v, %v", res, err)
	}

	got, err := player.GetPlayer(ctx, joined.Player.ID.String())
	if err != nil || got.Player.Card.Grid != joined.Player.Card.Grid {
		t.Fatalf("GetPlayer() = %+v, %v", got, err)
	}

	list, err := admin.ListPlayers(ctx, gameID)
	if err != nil || len(list.Players) != 1 {
		t.Fatalf("ListPlayers() = %+v, %v", list, err)
	}
}

func TestServiceErrorCodes(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()
	admin := NewGameServiceClient(srv.Client(), srv.URL, "secret")
	anonymous := NewGameServiceClient(srv.Client(), srv.URL, "")

	if _, err := anonymous.CreateGame(ctx, &CreateGameRequest{Name: "x"}); connect.CodeOf(err) != connect.CodeUnauthenticated {
		t.Errorf("CreateGame without key: %v", err)
	}

	created, err := admin.CreateGame(ctx, &CreateGameRequest{Name: "hall"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := admin.PauseGame(ctx, created.Game.ID.String()); connect.CodeOf(err) != connect.CodeFailedPrecondition {
		t.Errorf("PauseGame on created game: %v", err)
	}
	if _, err := admin.GetGame(ctx, "not-a-uuid"); connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("GetGame with bad id: %v", err)
	}
	if _, err := admin.GetGame(ctx, "6f1c2f7e-8a4b-4a53-9d0a-1b2c3d4e5f60"); connect.CodeOf(err) != connect.CodeNotFound {
		t.Errorf("GetGame with unknown id: %v", err)
	}
	if _, err := admin.DrawNumber(ctx, created.Game.ID.String()); connect.CodeOf(err) != connect.CodeFailedPrecondition {
		t.Errorf("DrawNumber before start: %v", err)
	}
}
