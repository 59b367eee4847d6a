package client

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bingo/go/internal/apperr"
	"github.com/mcdev12/bingo/go/internal/bingo"
	"github.com/mcdev12/bingo/go/internal/events"
	"github.com/mcdev12/bingo/go/internal/models"
)

// Snapshot is the session's current view of the game
type Snapshot struct {
	Game   *models.Game
	Player *models.Player
	Marks  []int
}

var (
	// TopicSnapshot fires whenever local state changes
	TopicSnapshot = events.NewTopic[Snapshot]("session.snapshot")
	// TopicBingo fires when any player in the room wins
	TopicBingo = events.NewTopic[events.PlayerBingoPayload]("session.bingo")
)

// Session keeps optimistic local state for one player (or admin) and keeps
// it reconciled with the server across disconnects
type Session struct {
	conn    *Conn
	queue   *Queue
	clock   clockwork.Clock
	backoff Backoff

	mu         sync.RWMutex
	game       *models.Game
	player     *models.Player
	marks      bingo.MarkSet
	inflight   map[string]PendingAction
	unsubs     []func()
	retryTimer clockwork.Timer
	retries    int
	stopped    bool
}

type SessionOption func(*Session)

func WithSessionClock(c clockwork.Clock) SessionOption {
	return func(s *Session) { s.clock = c }
}

// WithSyncBackoff sets the delays between queue replay passes
func WithSyncBackoff(b Backoff) SessionOption {
	return func(s *Session) { s.backoff = b }
}

func NewSession(conn *Conn, queue *Queue, opts ...SessionOption) *Session {
	s := &Session{
		conn:     conn,
		queue:    queue,
		clock:    clockwork.NewRealClock(),
		backoff:  DefaultBackoff(),
		marks:    make(bingo.MarkSet),
		inflight: make(map[string]PendingAction),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start subscribes to the connection and connects
func (s *Session) Start(ctx context.Context) error {
	bus := s.conn.Bus()
	s.mu.Lock()
	s.stopped = false
	s.unsubs = append(s.unsubs,
		events.Subscribe(bus, TopicConnected, func(Connected) {
			go s.onConnected(context.WithoutCancel(ctx))
		}),
		events.Subscribe(bus, TopicMessage, s.handlePush),
	)
	s.mu.Unlock()

	return s.conn.Connect(ctx)
}

// Stop cancels the sync retry loop and disconnects
func (s *Session) Stop() {
	s.mu.Lock()
	s.stopped = true
	unsubs := s.unsubs
	s.unsubs = nil
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	s.conn.Disconnect()
}

func (s *Session) Conn() *Conn {
	return s.conn
}

func (s *Session) Connected() bool {
	return s.conn.State() == StateConnected
}

// Snapshot returns copies of the cached game, player and effective marks
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Game:   s.game.Clone(),
		Player: s.player.Clone(),
		Marks:  s.marks.Sorted(),
	}
}

// MarkNumber marks locally at once, then sends or queues the action
func (s *Session) MarkNumber(ctx context.Context, n int) error {
	return s.apply(ctx, ActionMark, n)
}

func (s *Session) UnmarkNumber(ctx context.Context, n int) error {
	return s.apply(ctx, ActionUnmark, n)
}

func (s *Session) apply(ctx context.Context, typ ActionType, n int) error {
	if !bingo.ValidNumber(n) {
		return apperr.New(apperr.KindInvalidArgument, string(typ), "number out of range")
	}

	s.mu.Lock()
	_, wasMarked := s.marks[n]
	setMark(s.marks, typ, n)
	s.mu.Unlock()
	s.publishSnapshot()

	a := PendingAction{
		ID:        uuid.NewString(),
		Type:      typ,
		Number:    n,
		Timestamp: s.clock.Now(),
	}

	// queued actions go first, so a live send would overtake them
	if !s.Connected() || s.queue.Len() > 0 {
		return s.enqueue(ctx, a)
	}

	s.mu.Lock()
	s.inflight[a.ID] = a
	s.mu.Unlock()

	err := s.SendAction(ctx, a)
	switch {
	case err == nil:
		s.settle(a.ID)
		return nil
	case apperr.Retryable(err):
		// queued before leaving the in-flight set so a resync always sees it
		qerr := s.enqueue(ctx, a)
		s.settle(a.ID)
		return qerr
	default:
		s.mu.Lock()
		delete(s.inflight, a.ID)
		if wasMarked {
			s.marks[n] = struct{}{}
		} else {
			delete(s.marks, n)
		}
		s.mu.Unlock()
		s.publishSnapshot()
		return err
	}
}

func (s *Session) settle(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

// unackedLocked lists queued and in-flight actions, the ones a server
// snapshot may not reflect yet
func (s *Session) unackedLocked() []PendingAction {
	pending := s.queue.Pending()
	for _, a := range s.inflight {
		pending = append(pending, a)
	}
	return pending
}

func (s *Session) enqueue(ctx context.Context, a PendingAction) error {
	if err := s.queue.Enqueue(a); err != nil {
		return apperr.Wrap(apperr.KindInternal, "enqueue", err)
	}
	log.Debug().Str("type", string(a.Type)).Int("number", a.Number).Msg("action queued")
	if s.Connected() {
		go s.SyncPending(context.WithoutCancel(ctx))
	}
	return nil
}

// SendAction implements Sender
func (s *Session) SendAction(ctx context.Context, a PendingAction) error {
	typ := events.EventTypeMarkNumber
	if a.Type == ActionUnmark {
		typ = events.EventTypeUnmarkNumber
	}
	var resp events.MarkNumberResponse
	if err := s.conn.Request(ctx, typ, events.MarkNumberRequest{Number: a.Number}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return apperr.New(apperr.KindInternal, string(typ), "server did not confirm the action")
	}
	return nil
}

// SyncPending replays the queue. A retryable failure schedules another pass
// with backoff; a fully drained queue triggers a resync.
func (s *Session) SyncPending(ctx context.Context) {
	res, err := s.queue.Sync(ctx, s)
	if err != nil {
		log.Warn().Err(err).Int("remaining", res.Remaining).Msg("pending action sync incomplete")
		if apperr.Retryable(err) || apperr.KindOf(err) == apperr.KindInternal || apperr.Is(err, apperr.KindRateLimited) {
			s.scheduleSyncRetry(ctx)
		}
		return
	}

	s.mu.Lock()
	s.retries = 0
	s.mu.Unlock()

	if res.Sent > 0 || res.Dropped > 0 {
		log.Info().Int("sent", res.Sent).Int("dropped", res.Dropped).Msg("pending actions synced")
		if err := s.Resync(ctx); err != nil {
			log.Warn().Err(err).Msg("resync after queue replay failed")
		}
	}
}

func (s *Session) scheduleSyncRetry(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.retryTimer != nil {
		return
	}
	s.retries++
	if !s.backoff.Allowed(s.retries) {
		log.Error().Int("attempts", s.retries-1).Msg("giving up on pending action sync until next reconnect")
		s.retries = 0
		return
	}
	delay := s.backoff.Delay(s.retries)
	s.retryTimer = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		s.retryTimer = nil
		s.mu.Unlock()
		s.SyncPending(ctx)
	})
}

// Resync replaces cached state with the server's, keeping unacked actions on top
func (s *Session) Resync(ctx context.Context) error {
	var resp events.SyncStateResponse
	if err := s.conn.Request(ctx, events.EventTypeSyncState, events.SyncStateRequest{}, &resp); err != nil {
		return err
	}

	s.mu.Lock()
	if resp.Game != nil {
		s.game = resp.Game
	}
	if resp.Player != nil {
		s.player = resp.Player
		s.marks = bingo.NewMarkSet(Merge(resp.Player.MarkedNumbers, s.unackedLocked()))
	}
	s.mu.Unlock()
	s.publishSnapshot()
	return nil
}

// ClaimBingo checks the local card first, by the same rule the server
// applies, and asks the server only when the drawn marks form a line
func (s *Session) ClaimBingo(ctx context.Context) (*events.ValidateBingoResponse, error) {
	s.mu.RLock()
	player := s.player
	marks := s.marks.Sorted()
	local := s.localWinLocked()
	s.mu.RUnlock()

	if player == nil {
		return nil, apperr.New(apperr.KindInvalidState, "ClaimBingo", "no player state yet")
	}
	if !local.Won {
		return &events.ValidateBingoResponse{Valid: false}, nil
	}

	var resp events.ValidateBingoResponse
	if err := s.conn.Request(ctx, events.EventTypeValidateBingo, events.ValidateBingoRequest{MarkedNumbers: marks}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LocalWin evaluates the cached card against the effective marks that have
// been drawn
func (s *Session) LocalWin() bingo.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localWinLocked()
}

func (s *Session) localWinLocked() bingo.Result {
	if s.player == nil {
		return bingo.Result{}
	}
	var drawn []int
	if s.game != nil {
		drawn = s.game.DrawnNumbers
	}
	return bingo.CheckClaim(s.player.Card, s.marks, drawn)
}

// DrawNumber asks the server to draw; admin sessions only
func (s *Session) DrawNumber(ctx context.Context, gameID uuid.UUID) (int, error) {
	var resp events.AdminDrawResponse
	if err := s.conn.Request(ctx, events.EventTypeAdminDrawNumber, events.AdminDrawRequest{GameID: gameID.String()}, &resp); err != nil {
		return 0, err
	}
	return resp.Number, nil
}

func (s *Session) onConnected(ctx context.Context) {
	s.mu.Lock()
	s.retries = 0
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.mu.Unlock()

	if err := s.Resync(ctx); err != nil {
		log.Warn().Err(err).Msg("resync after connect failed")
	}
	s.SyncPending(ctx)
}

func (s *Session) handlePush(msg events.Message) {
	switch msg.Type {
	case events.EventTypeGameState:
		p, err := events.DecodeData[events.GameStatePayload](msg)
		if err != nil || p.Game == nil {
			return
		}
		s.mu.Lock()
		s.game = p.Game
		s.mu.Unlock()

	case events.EventTypePlayerState:
		p, err := events.DecodeData[events.PlayerStatePayload](msg)
		if err != nil || p.Player == nil {
			return
		}
		s.mu.Lock()
		s.player = p.Player
		s.marks = bingo.NewMarkSet(Merge(p.Player.MarkedNumbers, s.unackedLocked()))
		s.mu.Unlock()

	case events.EventTypeGameStateChanged:
		p, err := events.DecodeData[events.GameStateChangedPayload](msg)
		if err != nil {
			return
		}
		s.mu.Lock()
		if p.Game != nil {
			s.game = p.Game
		} else if s.game != nil {
			s.game.Status = p.Status
		}
		s.mu.Unlock()

	case events.EventTypeNumberDrawn:
		p, err := events.DecodeData[events.NumberDrawnPayload](msg)
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.game != nil && !s.game.HasDrawn(p.Number) {
			s.game.DrawnNumbers = append(s.game.DrawnNumbers, p.Number)
		}
		s.mu.Unlock()

	case events.EventTypePlayerBingo:
		p, err := events.DecodeData[events.PlayerBingoPayload](msg)
		if err != nil {
			return
		}
		events.Publish(s.conn.Bus(), TopicBingo, p)
		return

	default:
		return
	}
	s.publishSnapshot()
}

func (s *Session) publishSnapshot() {
	events.Publish(s.conn.Bus(), TopicSnapshot, s.Snapshot())
}

func setMark(marks bingo.MarkSet, typ ActionType, n int) {
	if typ == ActionMark {
		marks[n] = struct{}{}
	} else {
		delete(marks, n)
	}
}
