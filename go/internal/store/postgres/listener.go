package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bingo/go/internal/models"
)

// StatusChannel is the NOTIFY channel fed by the games_status_notify trigger
const StatusChannel = "bingo_game_status"

// StatusChange is the decoded notification payload
type StatusChange struct {
	GameID uuid.UUID         `json:"id"`
	Status models.GameStatus `json:"status"`
}

// StatusHandler receives status changes, including ones written by other processes
type StatusHandler func(ctx context.Context, change StatusChange)

type ListenerConfig struct {
	DatabaseURL  string
	Channel      string
	PingInterval time.Duration
	DedupeSize   int
}

func DefaultListenerConfig(dsn string) ListenerConfig {
	return ListenerConfig{
		DatabaseURL:  dsn,
		Channel:      StatusChannel,
		PingInterval: 90 * time.Second,
		DedupeSize:   1024,
	}
}

// ChangeListener turns game status NOTIFYs into handler calls. A status
// already delivered for a game is not delivered again until it changes.
type ChangeListener struct {
	listener *pq.Listener
	handler  StatusHandler
	cfg      ListenerConfig

	mu   sync.Mutex
	seen *lru.Cache
}

func NewChangeListener(cfg ListenerConfig, handler StatusHandler) (*ChangeListener, error) {
	seen, err := lru.New(cfg.DedupeSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedupe cache: %w", err)
	}

	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.Channel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().Str("channel", cfg.Channel).Msg("listening for game status notifications")

	return &ChangeListener{
		listener: l,
		handler:  handler,
		seen:     seen,
		cfg:      cfg,
	}, nil
}

// Start blocks until ctx is done
func (l *ChangeListener) Start(ctx context.Context) error {
	pingTicker := time.NewTicker(l.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("status listener shutting down")
			return l.listener.Close()
		case note := <-l.listener.Notify:
			if note == nil {
				// connection was re-established; notifications may have been missed
				l.seen.Purge()
				continue
			}
			l.handle(ctx, note.Extra)
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (l *ChangeListener) handle(ctx context.Context, extra string) {
	change, err := ParseStatusChange(extra)
	if err != nil {
		log.Error().Err(err).Str("payload", extra).Msg("invalid status notification")
		return
	}
	if !l.Observe(change) {
		return
	}
	l.handler(ctx, change)
}

// Observe records change and reports whether it differs from the last status
// seen for the game. Local writers call it too so their own notification is
// not delivered twice.
func (l *ChangeListener) Observe(change StatusChange) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.seen.Get(change.GameID); ok && prev.(models.GameStatus) == change.Status {
		return false
	}
	l.seen.Add(change.GameID, change.Status)
	return true
}

func ParseStatusChange(extra string) (StatusChange, error) {
	var change StatusChange
	if err := json.Unmarshal([]byte(extra), &change); err != nil {
		return StatusChange{}, fmt.Errorf("decode status notification: %w", err)
	}
	if change.GameID == uuid.Nil || !change.Status.Valid() {
		return StatusChange{}, fmt.Errorf("incomplete status notification %q", extra)
	}
	return change, nil
}
