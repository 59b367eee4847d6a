package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bingo/go/internal/apperr"
	"github.com/mcdev12/bingo/go/internal/bingo"
	"github.com/mcdev12/bingo/go/internal/draw"
	"github.com/mcdev12/bingo/go/internal/events"
	"github.com/mcdev12/bingo/go/internal/game"
	"github.com/mcdev12/bingo/go/internal/models"
)

const publishTimeout = 5 * time.Second

// GameApp is the slice of game.App the gateway drives
type GameApp interface {
	AuthorizeAdmin(key string) error
	Engine() *draw.Engine
	GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error)
	GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error)
	ListGames(ctx context.Context, status models.GameStatus) ([]*models.Game, error)
	SetPlayerOnline(ctx context.Context, playerID uuid.UUID, connID string) (*models.Player, error)
	SetPlayerOffline(ctx context.Context, playerID uuid.UUID, connID string) (bool, error)
	AddAdminConnection(ctx context.Context, gameID uuid.UUID, connID string) (*models.Game, error)
	RemoveAdminConnection(ctx context.Context, gameID uuid.UUID, connID string) error
	MarkNumber(ctx context.Context, playerID uuid.UUID, number int) (*models.Player, error)
	UnmarkNumber(ctx context.Context, playerID uuid.UUID, number int) (*models.Player, error)
	ClaimBingo(ctx context.Context, playerID uuid.UUID, claimed []int) (*game.ClaimResult, error)
	DrawNumber(ctx context.Context, gameID uuid.UUID) (*draw.Result, error)
	HandleExhausted(ctx context.Context, gameID uuid.UUID)
}

// Identity is what a socket presents when joining: a player id, or the admin key
type Identity struct {
	PlayerID uuid.UUID
	AdminKey string
}

// StatusObserver records a status the gateway has already broadcast and
// reports whether it was new
type StatusObserver func(gameID uuid.UUID, status models.GameStatus) bool

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	RateLimit        int
	RateWindow       time.Duration
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		RateLimit:        20,
		RateWindow:       time.Second,
	}
}

type Option func(*Service)

func WithMetrics(m MetricsCollector) Option {
	return func(s *Service) { s.metrics = m }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock sets the clock used by the draw scheduler and rate limiter
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// Service owns every live socket and fans game events out to rooms. It
// implements game.Notifier.
type Service struct {
	app       GameApp
	config    Config
	registry  *Registry
	limiter   *RateLimiter
	scheduler *draw.Scheduler
	metrics   MetricsCollector
	publisher Publisher
	clock     clockwork.Clock
	upgrader  websocket.Upgrader

	mu       sync.RWMutex
	baseCtx  context.Context
	observer StatusObserver
}

var _ game.Notifier = (*Service)(nil)

func NewService(app GameApp, config Config, opts ...Option) *Service {
	s := &Service{
		app:       app,
		config:    config,
		registry:  NewRegistry(),
		metrics:   NoOpMetricsCollector{},
		publisher: NoopPublisher{},
		clock:     clockwork.NewRealClock(),
		baseCtx:   context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.limiter = NewRateLimiter(config.RateLimit, config.RateWindow, s.clock)
	s.scheduler = draw.NewScheduler(app.Engine(), s.clock, draw.Callbacks{
		OnDraw:      s.NumberDrawn,
		OnExhausted: app.HandleExhausted,
	})
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  config.ConnectionConfig.ReadBufferSize,
		WriteBufferSize: config.ConnectionConfig.WriteBufferSize,
		CheckOrigin:     config.ConnectionConfig.CheckOrigin,
	}
	return s
}

// SetStatusObserver installs the dedupe hook shared with the status listener
func (s *Service) SetStatusObserver(fn StatusObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = fn
}

func (s *Service) Registry() *Registry {
	return s.registry
}

func (s *Service) Scheduler() *draw.Scheduler {
	return s.scheduler
}

// Start resumes timed draws for active games and blocks until ctx is done
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting bingo gateway service")

	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	if err := s.ResumeSchedules(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	log.Info().Msg("bingo gateway service shutting down")
	return s.Stop()
}

// ResumeSchedules restarts timers for timed games that were active when the
// process last stopped
func (s *Service) ResumeSchedules(ctx context.Context) error {
	games, err := s.app.ListGames(ctx, models.GameStatusActive)
	if err != nil {
		return fmt.Errorf("failed to list active games: %w", err)
	}
	for _, g := range games {
		s.syncSchedule(g)
	}
	return nil
}

// Stop halts every timed game and closes the publisher
func (s *Service) Stop() error {
	s.scheduler.StopAll()
	if err := s.publisher.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close event publisher")
	}
	log.Info().Msg("bingo gateway service stopped")
	return nil
}

// Join validates identity and binds conn to the game's room. On error
// nothing has been registered and the caller must close the connection.
func (s *Service) Join(ctx context.Context, conn *Connection, gameID uuid.UUID, id Identity) error {
	const op = "Join"
	if gameID == uuid.Nil {
		return apperr.New(apperr.KindInvalidArgument, op, "game_id is required")
	}

	if id.AdminKey != "" {
		err := s.joinAdmin(ctx, conn, gameID, id.AdminKey)
		s.metrics.JoinCompleted("admin", err == nil)
		return err
	}
	if id.PlayerID == uuid.Nil {
		s.metrics.JoinCompleted("player", false)
		return apperr.New(apperr.KindInvalidArgument, op, "player_id or admin_key is required")
	}
	err := s.joinPlayer(ctx, conn, gameID, id.PlayerID)
	s.metrics.JoinCompleted("player", err == nil)
	return err
}

func (s *Service) joinPlayer(ctx context.Context, conn *Connection, gameID, playerID uuid.UUID) error {
	if _, err := s.app.GetGame(ctx, gameID); err != nil {
		return err
	}
	p, err := s.app.GetPlayer(ctx, playerID)
	if err != nil {
		return err
	}
	if p.GameID != gameID {
		return apperr.New(apperr.KindInvalidArgument, "Join", "player does not belong to this game")
	}

	p, err = s.app.SetPlayerOnline(ctx, playerID, conn.ID)
	if err != nil {
		return err
	}
	if replaced := s.registry.BindPlayer(conn, gameID, playerID); replaced != nil {
		log.Info().
			Str("player_id", playerID.String()).
			Str("old_connection_id", replaced.ID).
			Str("connection_id", conn.ID).
			Msg("player reconnected, closing previous connection")
		replaced.Close(websocket.ClosePolicyViolation, "replaced by a newer connection")
	}

	g, err := s.app.GetGame(ctx, gameID)
	if err != nil {
		s.Leave(context.WithoutCancel(ctx), conn)
		return err
	}

	s.send(conn, events.EventTypeGameState, events.GameStatePayload{Game: g})
	s.send(conn, events.EventTypePlayerState, events.PlayerStatePayload{Player: p})
	s.Broadcast(gameID, events.EventTypePlayerJoined, events.PlayerJoinedPayload{
		PlayerID:   p.ID.String(),
		PlayerName: p.Name,
	})

	log.Info().
		Str("game_id", gameID.String()).
		Str("player_id", playerID.String()).
		Str("connection_id", conn.ID).
		Msg("player joined")
	return nil
}

func (s *Service) joinAdmin(ctx context.Context, conn *Connection, gameID uuid.UUID, key string) error {
	if err := s.app.AuthorizeAdmin(key); err != nil {
		return err
	}
	g, err := s.app.AddAdminConnection(ctx, gameID, conn.ID)
	if err != nil {
		return err
	}
	s.registry.BindAdmin(conn, gameID)
	s.send(conn, events.EventTypeGameState, events.GameStatePayload{Game: g})

	log.Info().
		Str("game_id", gameID.String()).
		Str("connection_id", conn.ID).
		Msg("admin joined")
	return nil
}

// Leave unbinds conn. It is safe to call more than once and for
// connections that never joined.
func (s *Service) Leave(ctx context.Context, conn *Connection) {
	s.limiter.Remove(conn.ID)

	b, ok := s.registry.Unbind(conn.ID)
	if !ok {
		return
	}

	if b.IsAdmin {
		if err := s.app.RemoveAdminConnection(ctx, b.GameID, conn.ID); err != nil {
			log.Error().Err(err).Str("game_id", b.GameID.String()).Msg("failed to remove admin connection")
		}
	} else if _, err := s.app.SetPlayerOffline(ctx, b.PlayerID, conn.ID); err != nil {
		log.Error().Err(err).Str("player_id", b.PlayerID.String()).Msg("failed to mark player offline")
	}

	log.Info().
		Str("game_id", b.GameID.String()).
		Str("connection_id", conn.ID).
		Bool("admin", b.IsAdmin).
		Msg("connection left")
}

// Broadcast sends an event to every connection in the game's room. Slow or
// closed recipients are skipped; a recipient whose buffer is full is closed
// so it reconnects and resyncs.
func (s *Service) Broadcast(gameID uuid.UUID, event events.EventType, payload any) {
	frame, err := events.Encode(event, "", payload)
	if err != nil {
		log.Error().Err(err).Str("event", string(event)).Msg("failed to encode broadcast")
		return
	}

	room := s.registry.Room(gameID)
	sent := 0
	for _, c := range room {
		if c.Enqueue(frame) {
			sent++
			continue
		}
		s.metrics.SendDropped(string(event))
		if !c.Closed() {
			log.Warn().
				Str("connection_id", c.ID).
				Str("game_id", gameID.String()).
				Msg("send buffer full, closing connection")
			c.Close(websocket.CloseTryAgainLater, "send buffer full")
		}
	}
	s.metrics.BroadcastSent(string(event), sent)

	log.Debug().
		Str("game_id", gameID.String()).
		Str("event", string(event)).
		Int("recipients", sent).
		Int("room_size", len(room)).
		Msg("broadcast")
}

func (s *Service) send(conn *Connection, event events.EventType, payload any) {
	frame, err := events.Encode(event, "", payload)
	if err != nil {
		log.Error().Err(err).Str("event", string(event)).Msg("failed to encode message")
		return
	}
	if !conn.Enqueue(frame) {
		s.metrics.SendDropped(string(event))
	}
}

// GameChanged broadcasts a lifecycle change and starts or stops timed draws.
// A change the status listener already delivered is not broadcast again.
func (s *Service) GameChanged(ctx context.Context, g *models.Game) {
	if s.observe(g.ID, g.Status) {
		s.announceGameChanged(ctx, g)
	}
	s.syncSchedule(g)
}

// HandleStatusChange reloads a game whose status was changed by another
// process and rebroadcasts it
func (s *Service) HandleStatusChange(ctx context.Context, gameID uuid.UUID) {
	g, err := s.app.GetGame(ctx, gameID)
	if err != nil {
		log.Error().Err(err).Str("game_id", gameID.String()).Msg("failed to load changed game")
		return
	}
	s.announceGameChanged(ctx, g)
	s.syncSchedule(g)
}

func (s *Service) announceGameChanged(ctx context.Context, g *models.Game) {
	payload := events.GameStateChangedPayload{
		GameID: g.ID.String(),
		Status: g.Status,
		Game:   g,
	}
	s.Broadcast(g.ID, events.EventTypeGameStateChanged, payload)
	s.publish(ctx, g.ID, events.EventTypeGameStateChanged, payload)
}

// NumberDrawn broadcasts a committed draw from either an admin or the scheduler
func (s *Service) NumberDrawn(ctx context.Context, gameID uuid.UUID, res *draw.Result) {
	s.metrics.DrawRecorded("committed")
	payload := events.NumberDrawnPayload{
		GameID:     gameID.String(),
		Number:     res.Number,
		DrawnCount: res.DrawnCount,
		DrawnAt:    res.DrawnAt,
	}
	s.Broadcast(gameID, events.EventTypeNumberDrawn, payload)
	s.publish(ctx, gameID, events.EventTypeNumberDrawn, payload)
}

// PlayerWon announces a player's first valid bingo to the room
func (s *Service) PlayerWon(ctx context.Context, gameID uuid.UUID, p *models.Player, lines []bingo.Line) {
	payload := events.PlayerBingoPayload{
		PlayerID:   p.ID.String(),
		PlayerName: p.Name,
		Lines:      lines,
	}
	s.Broadcast(gameID, events.EventTypePlayerBingo, payload)
	s.publish(ctx, gameID, events.EventTypePlayerBingo, payload)
}

func (s *Service) syncSchedule(g *models.Game) {
	if g.Status == models.GameStatusActive && g.IsTimed() {
		if !s.scheduler.Active(g.ID) {
			s.mu.RLock()
			ctx := s.baseCtx
			s.mu.RUnlock()
			s.scheduler.Start(ctx, g.ID, time.Duration(g.DrawIntervalSec)*time.Second)
		}
		return
	}
	s.scheduler.Stop(g.ID)
}

// observe reports whether status is news for gameID; without an observer
// every change is
func (s *Service) observe(gameID uuid.UUID, status models.GameStatus) bool {
	s.mu.RLock()
	fn := s.observer
	s.mu.RUnlock()
	if fn == nil {
		return true
	}
	return fn(gameID, status)
}

func (s *Service) publish(ctx context.Context, gameID uuid.UUID, event events.EventType, payload any) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err := s.publisher.Publish(ctx, gameID, event, payload)
	s.metrics.EventPublished(string(event), err == nil)
	if err != nil {
		log.Error().
			Err(err).
			Str("game_id", gameID.String()).
			Str("event", string(event)).
			Msg("failed to publish event")
	}
}

// RegisterRoutes registers the WebSocket HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	h := NewWebSocketHandler(s)
	h.RegisterRoutes(mux)
	log.Info().Msg("bingo gateway routes registered")
}
