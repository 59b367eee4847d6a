package draw

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bingo/go/internal/apperr"
	"github.com/mcdev12/bingo/go/internal/bingo"
	"github.com/mcdev12/bingo/go/internal/models"
)

// DefaultMaxAttempts bounds how many fresh picks one DrawNext makes when its
// conditional write keeps losing without another draw landing
const DefaultMaxAttempts = 8

// GameStore is what the engine needs from storage
type GameStore interface {
	GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error)
	AppendDrawnNumber(ctx context.Context, id uuid.UUID, expectedCount, number int, at time.Time) (bool, error)
}

// Result describes the number a DrawNext call produced. Committed is false
// when the call lost a race and is reporting the number another caller drew.
type Result struct {
	Number     int       `json:"number"`
	Committed  bool      `json:"committed"`
	DrawnCount int       `json:"drawn_count"`
	DrawnAt    time.Time `json:"drawn_at"`
}

// Engine draws numbers for games. It holds no per-game state; all
// coordination happens in the store's conditional append.
type Engine struct {
	store       GameStore
	clock       clockwork.Clock
	rand        bingo.RandFunc
	maxAttempts int
}

type Option func(*Engine)

func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithRand(r bingo.RandFunc) Option {
	return func(e *Engine) { e.rand = r }
}

func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

func NewEngine(store GameStore, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		clock:       clockwork.NewRealClock(),
		rand:        bingo.FastRand,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DrawNext picks a number not yet drawn and commits it. Two concurrent calls
// for the same game never both add a number for the same position.
func (e *Engine) DrawNext(ctx context.Context, gameID uuid.UUID) (*Result, error) {
	const op = "DrawNext"

	g, err := e.load(ctx, gameID)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if g.Status != models.GameStatusActive {
			return nil, apperr.New(apperr.KindInvalidState, op,
				fmt.Sprintf("game is %s, not active", g.Status))
		}
		remaining := g.RemainingNumbers()
		if len(remaining) == 0 {
			return nil, apperr.New(apperr.KindExhausted, op, "all numbers have been drawn")
		}

		number := remaining[e.rand(len(remaining))]
		expected := len(g.DrawnNumbers)
		at := e.clock.Now()

		ok, err := e.store.AppendDrawnNumber(ctx, gameID, expected, number, at)
		if err != nil {
			return nil, fmt.Errorf("failed to commit draw: %w", err)
		}
		if ok {
			log.Info().
				Str("game_id", gameID.String()).
				Int("number", number).
				Int("drawn_count", expected+1).
				Msg("number drawn")
			return &Result{Number: number, Committed: true, DrawnCount: expected + 1, DrawnAt: at}, nil
		}

		fresh, err := e.load(ctx, gameID)
		if err != nil {
			return nil, err
		}
		if fresh.Status != models.GameStatusActive {
			return nil, apperr.New(apperr.KindInvalidState, op,
				fmt.Sprintf("game is %s, not active", fresh.Status))
		}
		if len(fresh.DrawnNumbers) > expected {
			// someone else drew first; report their number instead of adding another
			res := &Result{
				Number:     fresh.LastDrawn(),
				Committed:  false,
				DrawnCount: len(fresh.DrawnNumbers),
			}
			if fresh.LastDrawnAt != nil {
				res.DrawnAt = *fresh.LastDrawnAt
			}
			log.Debug().
				Str("game_id", gameID.String()).
				Int("number", res.Number).
				Msg("concurrent draw won the race")
			return res, nil
		}

		log.Debug().
			Str("game_id", gameID.String()).
			Int("attempt", attempt).
			Msg("conditional draw write lost, retrying")
		g = fresh
	}

	log.Error().
		Str("game_id", gameID.String()).
		Int("attempts", e.maxAttempts).
		Msg("draw gave up after repeated conflicts")
	return nil, apperr.New(apperr.KindConflict, op, "could not commit a draw")
}

func (e *Engine) load(ctx context.Context, gameID uuid.UUID) (*models.Game, error) {
	g, err := e.store.GetGame(ctx, gameID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load game: %w", err)
	}
	return g, nil
}
