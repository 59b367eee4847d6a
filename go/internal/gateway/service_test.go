package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/bingo/go/internal/apperr"
	"github.com/mcdev12/bingo/go/internal/events"
	"github.com/mcdev12/bingo/go/internal/game"
	"github.com/mcdev12/bingo/go/internal/models"
	"github.com/mcdev12/bingo/go/internal/store/memory"
)

const testAdminKey = "secret"

type harness struct {
	app   *game.App
	store *memory.Store
	svc   *Service
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	clock := clockwork.NewFakeClock()
	s := memory.New()
	app := game.NewApp(s, game.WithClock(clock), game.WithAdminKey(testAdminKey))
	svc := NewService(app, cfg, WithClock(clock))
	app.SetNotifier(svc)
	t.Cleanup(func() { _ = svc.Stop() })
	return &harness{app: app, store: s, svc: svc}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RateLimit = 1000
	return cfg
}

// newGame creates a game with one registered player
func (h *harness) newGame(t *testing.T, req game.CreateGameRequest) (*models.Game, *models.Player) {
	t.Helper()
	ctx := context.Background()
	if req.Name == "" {
		req.Name = "hall"
	}
	g, err := h.app.CreateGame(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	_, p, err := h.app.RegisterPlayer(ctx, g.JoinCode, "ann")
	if err != nil {
		t.Fatal(err)
	}
	return g, p
}

func (h *harness) joinPlayer(t *testing.T, gameID, playerID uuid.UUID) *Connection {
	t.Helper()
	c := detached()
	if err := h.svc.Join(context.Background(), c, gameID, Identity{PlayerID: playerID}); err != nil {
		t.Fatalf("Join() = %v", err)
	}
	return c
}

func (h *harness) joinAdmin(t *testing.T, gameID uuid.UUID) *Connection {
	t.Helper()
	c := detached()
	if err := h.svc.Join(context.Background(), c, gameID, Identity{AdminKey: testAdminKey}); err != nil {
		t.Fatalf("Join(admin) = %v", err)
	}
	return c
}

func (h *harness) setDrawn(t *testing.T, gameID uuid.UUID, nums []int) {
	t.Helper()
	if _, err := h.store.UpdateGame(context.Background(), gameID, func(g *models.Game) error {
		g.DrawnNumbers = append([]int(nil), nums...)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
}

// drain returns every frame queued on c
func drain(t *testing.T, c *Connection) []events.Message {
	t.Helper()
	var out []events.Message
	for {
		select {
		case frame := <-c.Outbound():
			var msg events.Message
			if err := json.Unmarshal(frame, &msg); err != nil {
				t.Fatalf("bad frame %s: %v", frame, err)
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

func types(msgs []events.Message) []events.EventType {
	out := make([]events.EventType, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}

// request sends one client request through HandleMessage and returns its ack
func request(t *testing.T, h *harness, c *Connection, typ events.EventType, data any) events.Message {
	t.Helper()
	drain(t, c)
	id := uuid.NewString()
	frame, err := events.Encode(typ, id, data)
	if err != nil {
		t.Fatal(err)
	}
	h.svc.HandleMessage(context.Background(), c, frame)
	for _, m := range drain(t, c) {
		if m.Type == events.EventTypeAck && m.ID == id {
			return m
		}
	}
	t.Fatalf("no ack for %s", typ)
	return events.Message{}
}

func TestJoinPlayer(t *testing.T) {
	h := newHarness(t, testConfig())
	g, p := h.newGame(t, game.CreateGameRequest{})

	c := h.joinPlayer(t, g.ID, p.ID)

	got := types(drain(t, c))
	want := []events.EventType{events.EventTypeGameState, events.EventTypePlayerState, events.EventTypePlayerJoined}
	if len(got) != len(want) {
		t.Fatalf("frames = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frames = %v, want %v", got, want)
		}
	}

	stored, _ := h.app.GetPlayer(context.Background(), p.ID)
	if !stored.Online || stored.ConnectionID == nil || *stored.ConnectionID != c.ID {
		t.Errorf("player should be online on %s, got %+v", c.ID, stored)
	}
	if gs, _ := h.app.GetGame(context.Background(), g.ID); gs.ActivePlayers != 1 {
		t.Errorf("ActivePlayers = %d, want 1", gs.ActivePlayers)
	}
}

func TestJoinAnnouncesToRoom(t *testing.T) {
	h := newHarness(t, testConfig())
	g, p := h.newGame(t, game.CreateGameRequest{})
	admin := h.joinAdmin(t, g.ID)
	drain(t, admin)

	h.joinPlayer(t, g.ID, p.ID)

	msgs := drain(t, admin)
	if len(msgs) != 1 || msgs[0].Type != events.EventTypePlayerJoined {
		t.Fatalf("admin frames = %v", types(msgs))
	}
	payload, err := events.DecodeData[events.PlayerJoinedPayload](msgs[0])
	if err != nil {
		t.Fatal(err)
	}
	if payload.PlayerID != p.ID.String() || payload.PlayerName != "ann" {
		t.Errorf("unexpected payload %+v", payload)
	}
}

func TestJoinRejected(t *testing.T) {
	h := newHarness(t, testConfig())
	g, p := h.newGame(t, game.CreateGameRequest{})
	other, _ := h.newGame(t, game.CreateGameRequest{Name: "other"})

	tests := []struct {
		name   string
		gameID uuid.UUID
		id     Identity
		kind   apperr.Kind
	}{
		{"missing game", uuid.Nil, Identity{PlayerID: p.ID}, apperr.KindInvalidArgument},
		{"missing identity", g.ID, Identity{}, apperr.KindInvalidArgument},
		{"unknown game", uuid.New(), Identity{PlayerID: p.ID}, apperr.KindNotFound},
		{"unknown player", g.ID, Identity{PlayerID: uuid.New()}, apperr.KindNotFound},
		{"player of another game", other.ID, Identity{PlayerID: p.ID}, apperr.KindInvalidArgument},
		{"bad admin key", g.ID, Identity{AdminKey: "wrong"}, apperr.KindUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.svc.Join(context.Background(), detached(), tt.gameID, tt.id)
			if !apperr.Is(err, tt.kind) {
				t.Fatalf("Join() = %v, want %s", err, tt.kind)
			}
			if stats := h.svc.Registry().Stats(); stats.Connections != 0 {
				t.Errorf("rejected join left %d connections registered", stats.Connections)
			}
		})
	}
}

func TestRejoinReplacesConnection(t *testing.T) {
	h := newHarness(t, testConfig())
	g, p := h.newGame(t, game.CreateGameRequest{})
	ctx := context.Background()

	first := h.joinPlayer(t, g.ID, p.ID)
	second := h.joinPlayer(t, g.ID, p.ID)

	if first.CloseCode() != websocket.ClosePolicyViolation {
		t.Errorf("old connection close code = %d", first.CloseCode())
	}

	// the old socket's read loop exits after it is closed
	h.svc.Leave(ctx, first)
	stored, _ := h.app.GetPlayer(ctx, p.ID)
	if !stored.Online || *stored.ConnectionID != second.ID {
		t.Fatal("leaving the replaced connection must not mark the player offline")
	}

	h.svc.Leave(ctx, second)
	stored, _ = h.app.GetPlayer(ctx, p.ID)
	if stored.Online {
		t.Fatal("player should be offline after the current connection leaves")
	}
	if gs, _ := h.app.GetGame(ctx, g.ID); gs.ActivePlayers != 0 {
		t.Errorf("ActivePlayers = %d, want 0", gs.ActivePlayers)
	}
}

func TestLeaveIsIdempotent(t *testing.T) {
	h := newHarness(t, testConfig())
	g, _ := h.newGame(t, game.CreateGameRequest{})
	ctx := context.Background()

	h.svc.Leave(ctx, detached())

	admin := h.joinAdmin(t, g.ID)
	gs, _ := h.app.GetGame(ctx, g.ID)
	if len(gs.AdminConnections) != 1 {
		t.Fatalf("admin connections = %v", gs.AdminConnections)
	}
	h.svc.Leave(ctx, admin)
	h.svc.Leave(ctx, admin)

	gs, _ = h.app.GetGame(ctx, g.ID)
	if len(gs.AdminConnections) != 0 {
		t.Errorf("admin connection not removed: %v", gs.AdminConnections)
	}
}

func TestBroadcastDropsFullRecipient(t *testing.T) {
	h := newHarness(t, testConfig())
	gameID := uuid.New()

	cfg := DefaultConnectionConfig()
	cfg.SendBufferSize = 1
	slow := NewConnection(nil, cfg)
	fast := detached()
	h.svc.Registry().BindPlayer(slow, gameID, uuid.New())
	h.svc.Registry().BindPlayer(fast, gameID, uuid.New())

	h.svc.Broadcast(gameID, events.EventTypeNumberDrawn, events.NumberDrawnPayload{Number: 1})
	h.svc.Broadcast(gameID, events.EventTypeNumberDrawn, events.NumberDrawnPayload{Number: 2})

	if got := len(drain(t, fast)); got != 2 {
		t.Errorf("healthy recipient got %d frames, want 2", got)
	}
	if slow.CloseCode() != websocket.CloseTryAgainLater {
		t.Errorf("full recipient close code = %d", slow.CloseCode())
	}

	// closed recipients are skipped without blocking the others
	h.svc.Broadcast(gameID, events.EventTypeNumberDrawn, events.NumberDrawnPayload{Number: 3})
	if got := len(drain(t, fast)); got != 1 {
		t.Errorf("healthy recipient got %d frames, want 1", got)
	}
}

func TestAdminDrawBroadcasts(t *testing.T) {
	h := newHarness(t, testConfig())
	g, p := h.newGame(t, game.CreateGameRequest{})
	if _, err := h.app.StartGame(context.Background(), g.ID); err != nil {
		t.Fatal(err)
	}
	admin := h.joinAdmin(t, g.ID)
	player := h.joinPlayer(t, g.ID, p.ID)
	drain(t, player)

	ack := request(t, h, admin, events.EventTypeAdminDrawNumber, events.AdminDrawRequest{GameID: g.ID.String()})
	if ack.Error != nil {
		t.Fatalf("draw failed: %+v", ack.Error)
	}
	resp, _ := events.DecodeData[events.AdminDrawResponse](ack)
	if !resp.Success || resp.Number < 1 || resp.Number > models.MaxNumber {
		t.Fatalf("unexpected draw response %+v", resp)
	}

	msgs := drain(t, player)
	if len(msgs) != 1 || msgs[0].Type != events.EventTypeNumberDrawn {
		t.Fatalf("player frames = %v", types(msgs))
	}
	drawn, _ := events.DecodeData[events.NumberDrawnPayload](msgs[0])
	if drawn.Number != resp.Number || drawn.DrawnCount != 1 {
		t.Errorf("numberDrawn = %+v, want number %d", drawn, resp.Number)
	}
}

func TestRequestAuthorization(t *testing.T) {
	h := newHarness(t, testConfig())
	g, p := h.newGame(t, game.CreateGameRequest{})
	if _, err := h.app.StartGame(context.Background(), g.ID); err != nil {
		t.Fatal(err)
	}
	player := h.joinPlayer(t, g.ID, p.ID)
	admin := h.joinAdmin(t, g.ID)

	ack := request(t, h, player, events.EventTypeAdminDrawNumber, events.AdminDrawRequest{})
	if ack.Error == nil || ack.Error.Kind != apperr.KindUnauthenticated {
		t.Errorf("player draw ack = %+v", ack.Error)
	}
	ack = request(t, h, admin, events.EventTypeMarkNumber, events.MarkNumberRequest{Number: 1})
	if ack.Error == nil || ack.Error.Kind != apperr.KindInvalidState {
		t.Errorf("admin mark ack = %+v", ack.Error)
	}
	ack = request(t, h, player, "shout", nil)
	if ack.Error == nil || ack.Error.Kind != apperr.KindInvalidArgument {
		t.Errorf("unknown type ack = %+v", ack.Error)
	}

	stranger := detached()
	ack = request(t, h, stranger, events.EventTypeSyncState, nil)
	if ack.Error == nil || ack.Error.Kind != apperr.KindInvalidState {
		t.Errorf("unjoined ack = %+v", ack.Error)
	}
}

func TestMarkAndUnmark(t *testing.T) {
	h := newHarness(t, testConfig())
	g, p := h.newGame(t, game.CreateGameRequest{})
	if _, err := h.app.StartGame(context.Background(), g.ID); err != nil {
		t.Fatal(err)
	}
	onCard := p.Card.Numbers()[0]
	h.setDrawn(t, g.ID, []int{onCard})
	c := h.joinPlayer(t, g.ID, p.ID)

	ack := request(t, h, c, events.EventTypeMarkNumber, events.MarkNumberRequest{Number: onCard})
	resp, _ := events.DecodeData[events.MarkNumberResponse](ack)
	if ack.Error != nil || !resp.Success {
		t.Fatalf("mark ack = %+v / %+v", resp, ack.Error)
	}

	undrawn := p.Card.Numbers()[1]
	ack = request(t, h, c, events.EventTypeMarkNumber, events.MarkNumberRequest{Number: undrawn})
	if ack.Error == nil || ack.Error.Kind != apperr.KindInvalidState {
		t.Errorf("undrawn mark ack = %+v", ack.Error)
	}

	ack = request(t, h, c, events.EventTypeUnmarkNumber, events.MarkNumberRequest{Number: onCard})
	if ack.Error != nil {
		t.Fatalf("unmark ack = %+v", ack.Error)
	}
	stored, _ := h.app.GetPlayer(context.Background(), p.ID)
	if len(stored.MarkedNumbers) != 0 {
		t.Errorf("marks after unmark = %v", stored.MarkedNumbers)
	}
}

func TestValidateBingoBroadcastsWinner(t *testing.T) {
	h := newHarness(t, testConfig())
	g, p := h.newGame(t, game.CreateGameRequest{})
	if _, err := h.app.StartGame(context.Background(), g.ID); err != nil {
		t.Fatal(err)
	}
	row := p.Card.Grid[0][:]
	h.setDrawn(t, g.ID, row)

	c := h.joinPlayer(t, g.ID, p.ID)
	admin := h.joinAdmin(t, g.ID)
	drain(t, admin)

	ack := request(t, h, c, events.EventTypeValidateBingo, events.ValidateBingoRequest{MarkedNumbers: row})
	resp, _ := events.DecodeData[events.ValidateBingoResponse](ack)
	if ack.Error != nil || !resp.Valid || len(resp.Lines) == 0 {
		t.Fatalf("validate ack = %+v / %+v", resp, ack.Error)
	}

	msgs := drain(t, admin)
	if len(msgs) != 1 || msgs[0].Type != events.EventTypePlayerBingo {
		t.Fatalf("admin frames = %v", types(msgs))
	}
	win, _ := events.DecodeData[events.PlayerBingoPayload](msgs[0])
	if win.PlayerID != p.ID.String() || win.PlayerName != "ann" {
		t.Errorf("unexpected playerBingo %+v", win)
	}

	// a second claim is valid but not announced again
	request(t, h, c, events.EventTypeValidateBingo, events.ValidateBingoRequest{MarkedNumbers: row})
	if msgs := drain(t, admin); len(msgs) != 0 {
		t.Errorf("repeat claim broadcast %v", types(msgs))
	}
}

func TestSyncState(t *testing.T) {
	h := newHarness(t, testConfig())
	g, p := h.newGame(t, game.CreateGameRequest{})
	c := h.joinPlayer(t, g.ID, p.ID)

	ack := request(t, h, c, events.EventTypeSyncState, events.SyncStateRequest{})
	resp, err := events.DecodeData[events.SyncStateResponse](ack)
	if err != nil || ack.Error != nil {
		t.Fatalf("sync ack = %v / %+v", err, ack.Error)
	}
	if resp.Game == nil || resp.Game.ID != g.ID || resp.Player == nil || resp.Player.ID != p.ID {
		t.Errorf("unexpected sync response %+v", resp)
	}
}

func TestRateLimitedRequest(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 2
	cfg.RateWindow = time.Minute
	h := newHarness(t, cfg)
	g, p := h.newGame(t, game.CreateGameRequest{})
	c := h.joinPlayer(t, g.ID, p.ID)

	request(t, h, c, events.EventTypeSyncState, nil)
	request(t, h, c, events.EventTypeSyncState, nil)
	ack := request(t, h, c, events.EventTypeSyncState, nil)
	if ack.Error == nil || ack.Error.Kind != apperr.KindRateLimited {
		t.Errorf("third request ack = %+v", ack.Error)
	}
}

func TestLifecycleDrivesScheduler(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	g, p := h.newGame(t, game.CreateGameRequest{DrawMode: models.DrawModeTimed, DrawIntervalSec: 5})
	c := h.joinPlayer(t, g.ID, p.ID)
	drain(t, c)

	if _, err := h.app.StartGame(ctx, g.ID); err != nil {
		t.Fatal(err)
	}
	if !h.svc.Scheduler().Active(g.ID) {
		t.Fatal("starting a timed game should schedule draws")
	}
	msgs := drain(t, c)
	if len(msgs) != 1 || msgs[0].Type != events.EventTypeGameStateChanged {
		t.Fatalf("frames = %v", types(msgs))
	}
	changed, _ := events.DecodeData[events.GameStateChangedPayload](msgs[0])
	if changed.Status != models.GameStatusActive {
		t.Errorf("status = %s", changed.Status)
	}

	if _, err := h.app.PauseGame(ctx, g.ID); err != nil {
		t.Fatal(err)
	}
	if h.svc.Scheduler().Active(g.ID) {
		t.Fatal("pausing should stop timed draws")
	}
}

func TestStatusObserverSeesLocalChanges(t *testing.T) {
	h := newHarness(t, testConfig())
	g, _ := h.newGame(t, game.CreateGameRequest{})

	var seen []models.GameStatus
	h.svc.SetStatusObserver(func(id uuid.UUID, status models.GameStatus) bool {
		if id == g.ID {
			seen = append(seen, status)
		}
		return true
	})

	if _, err := h.app.StartGame(context.Background(), g.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := h.app.EndGame(context.Background(), g.ID); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[0] != models.GameStatusActive || seen[1] != models.GameStatusEnded {
		t.Errorf("observed %v", seen)
	}
}

// gameLookupFails lets a join get as far as marking the player online, then
// fails the game reload that follows
type gameLookupFails struct {
	GameApp

	mu     sync.Mutex
	online bool
}

func (f *gameLookupFails) SetPlayerOnline(ctx context.Context, playerID uuid.UUID, connID string) (*models.Player, error) {
	p, err := f.GameApp.SetPlayerOnline(ctx, playerID, connID)
	f.mu.Lock()
	f.online = true
	f.mu.Unlock()
	return p, err
}

func (f *gameLookupFails) GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	f.mu.Lock()
	failing := f.online
	f.mu.Unlock()
	if failing {
		return nil, apperr.New(apperr.KindInternal, "GetGame", "store unavailable")
	}
	return f.GameApp.GetGame(ctx, id)
}

func TestJoinUndoneWhenGameReloadFails(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	app := game.NewApp(memory.New(), game.WithClock(clock), game.WithAdminKey(testAdminKey))
	svc := NewService(&gameLookupFails{GameApp: app}, testConfig(), WithClock(clock))
	app.SetNotifier(svc)
	t.Cleanup(func() { _ = svc.Stop() })

	g, err := app.CreateGame(ctx, game.CreateGameRequest{Name: "hall"})
	if err != nil {
		t.Fatal(err)
	}
	_, p, err := app.RegisterPlayer(ctx, g.JoinCode, "ann")
	if err != nil {
		t.Fatal(err)
	}

	c := detached()
	if err := svc.Join(ctx, c, g.ID, Identity{PlayerID: p.ID}); !apperr.Is(err, apperr.KindInternal) {
		t.Fatalf("Join() = %v, want internal error", err)
	}

	if _, ok := svc.Registry().Lookup(c.ID); ok {
		t.Error("failed join left the connection bound")
	}
	if conn, ok := svc.Registry().PlayerConnection(p.ID); ok {
		t.Errorf("player still routed to %s", conn.ID)
	}
	if stats := svc.Registry().Stats(); stats.Connections != 0 {
		t.Errorf("registry holds %d connections", stats.Connections)
	}
	stored, _ := app.GetPlayer(ctx, p.ID)
	if stored.Online {
		t.Error("player should be offline after a failed join")
	}
	if gs, _ := app.GetGame(ctx, g.ID); gs.ActivePlayers != 0 {
		t.Errorf("ActivePlayers = %d, want 0", gs.ActivePlayers)
	}
	if msgs := drain(t, c); len(msgs) != 0 {
		t.Errorf("failed join sent %v", types(msgs))
	}
}

func TestGameChangedSkipsDeliveredStatus(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	g, p := h.newGame(t, game.CreateGameRequest{DrawMode: models.DrawModeTimed, DrawIntervalSec: 5})
	c := h.joinPlayer(t, g.ID, p.ID)
	drain(t, c)

	// the status listener got there first
	h.svc.SetStatusObserver(func(uuid.UUID, models.GameStatus) bool { return false })

	if _, err := h.app.StartGame(ctx, g.ID); err != nil {
		t.Fatal(err)
	}
	if msgs := drain(t, c); len(msgs) != 0 {
		t.Fatalf("duplicate broadcast: %v", types(msgs))
	}
	if !h.svc.Scheduler().Active(g.ID) {
		t.Fatal("timed draws should start even when the broadcast is skipped")
	}

	h.svc.HandleStatusChange(ctx, g.ID)
	msgs := drain(t, c)
	if len(msgs) != 1 || msgs[0].Type != events.EventTypeGameStateChanged {
		t.Fatalf("listener delivery frames = %v", types(msgs))
	}

	if _, err := h.app.PauseGame(ctx, g.ID); err != nil {
		t.Fatal(err)
	}
	if h.svc.Scheduler().Active(g.ID) {
		t.Fatal("pausing should stop timed draws even when the broadcast is skipped")
	}
}
