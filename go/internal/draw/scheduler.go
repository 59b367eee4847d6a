package draw

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bingo/go/internal/apperr"
)

// Drawer is satisfied by *Engine
type Drawer interface {
	DrawNext(ctx context.Context, gameID uuid.UUID) (*Result, error)
}

// Callbacks receive scheduler outcomes. Either may be nil. Their context
// outlives a Stop issued from inside the callback.
type Callbacks struct {
	OnDraw      func(ctx context.Context, gameID uuid.UUID, res *Result)
	OnExhausted func(ctx context.Context, gameID uuid.UUID)
}

type scheduled struct {
	cancel   context.CancelFunc
	interval time.Duration
}

// Scheduler drives timed games: one cancellable one-shot timer per game,
// re-armed after each draw.
type Scheduler struct {
	drawer    Drawer
	clock     clockwork.Clock
	callbacks Callbacks

	mu     sync.Mutex
	active map[uuid.UUID]*scheduled
	wg     sync.WaitGroup
}

func NewScheduler(drawer Drawer, clock clockwork.Clock, callbacks Callbacks) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		drawer:    drawer,
		clock:     clock,
		callbacks: callbacks,
		active:    make(map[uuid.UUID]*scheduled),
	}
}

// Start begins timed draws for gameID, replacing any schedule already running
func (s *Scheduler) Start(ctx context.Context, gameID uuid.UUID, interval time.Duration) {
	if interval <= 0 {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	entry := &scheduled{cancel: cancel, interval: interval}

	s.mu.Lock()
	if existing, ok := s.active[gameID]; ok {
		existing.cancel()
		log.Debug().Str("game_id", gameID.String()).Msg("replaced existing draw schedule")
	}
	s.active[gameID] = entry
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(runCtx, gameID, entry)

	log.Info().
		Str("game_id", gameID.String()).
		Dur("interval", interval).
		Msg("timed draws started")
}

// Stop cancels timed draws for gameID; a no-op when none are running
func (s *Scheduler) Stop(gameID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.active[gameID]; ok {
		entry.cancel()
		delete(s.active, gameID)
		log.Info().Str("game_id", gameID.String()).Msg("timed draws stopped")
	}
}

// StopAll cancels every schedule and waits for the timer goroutines to exit
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	for id, entry := range s.active {
		entry.cancel()
		delete(s.active, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) Active(gameID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[gameID]
	return ok
}

func (s *Scheduler) run(ctx context.Context, gameID uuid.UUID, entry *scheduled) {
	defer s.wg.Done()
	defer s.finish(gameID, entry)

	for {
		timer := s.clock.NewTimer(entry.interval)
		select {
		case <-ctx.Done():
			stopAndDrainTimer(timer)
			return
		case <-timer.Chan():
		}

		res, err := s.drawer.DrawNext(ctx, gameID)
		switch {
		case err == nil:
			if res.Committed && s.callbacks.OnDraw != nil {
				s.callbacks.OnDraw(context.WithoutCancel(ctx), gameID, res)
			}
		case apperr.Is(err, apperr.KindExhausted):
			log.Info().Str("game_id", gameID.String()).Msg("timed game exhausted all numbers")
			if s.callbacks.OnExhausted != nil {
				s.callbacks.OnExhausted(context.WithoutCancel(ctx), gameID)
			}
			return
		case apperr.Is(err, apperr.KindInvalidState), apperr.Is(err, apperr.KindNotFound):
			log.Info().Err(err).Str("game_id", gameID.String()).Msg("timed draws halted")
			return
		case errors.Is(err, context.Canceled):
			return
		default:
			log.Warn().Err(err).Str("game_id", gameID.String()).Msg("timed draw failed, will retry next interval")
		}
	}
}

// finish drops the entry unless a newer schedule already replaced it
func (s *Scheduler) finish(gameID uuid.UUID, entry *scheduled) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.active[gameID]; ok && current == entry {
		entry.cancel()
		delete(s.active, gameID)
	}
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
