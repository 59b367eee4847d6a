package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/bingo/go/internal/apperr"
	"github.com/mcdev12/bingo/go/internal/models"
	"github.com/mcdev12/bingo/go/internal/store"
)

// Store keeps games and players in maps. Every value crossing the API is a
// deep copy, so callers never share memory with the store.
type Store struct {
	mu        sync.Mutex
	games     map[uuid.UUID]*models.Game
	joinCodes map[string]uuid.UUID
	players   map[uuid.UUID]*models.Player
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		games:     make(map[uuid.UUID]*models.Game),
		joinCodes: make(map[string]uuid.UUID),
		players:   make(map[uuid.UUID]*models.Player),
	}
}

func (s *Store) CreateGame(ctx context.Context, g *models.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.games[g.ID]; ok {
		return apperr.New(apperr.KindConflict, "CreateGame", fmt.Sprintf("game %s already exists", g.ID))
	}
	if _, ok := s.joinCodes[g.JoinCode]; ok {
		return apperr.New(apperr.KindConflict, "CreateGame", fmt.Sprintf("join code %s in use", g.JoinCode))
	}
	s.games[g.ID] = g.Clone()
	s.joinCodes[g.JoinCode] = g.ID
	return nil
}

func (s *Store) GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.games[id]
	if !ok {
		return nil, store.ErrGameNotFound
	}
	return g.Clone(), nil
}

func (s *Store) GetGameByJoinCode(ctx context.Context, code string) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.joinCodes[code]
	if !ok {
		return nil, store.ErrGameNotFound
	}
	return s.games[id].Clone(), nil
}

func (s *Store) ListGamesByStatus(ctx context.Context, status models.GameStatus) ([]*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Game
	for _, g := range s.games {
		if g.Status == status {
			out = append(out, g.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateGame(ctx context.Context, id uuid.UUID, fn func(g *models.Game) error) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.games[id]
	if !ok {
		return nil, store.ErrGameNotFound
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = id
	next.JoinCode = current.JoinCode
	s.games[id] = next
	return next.Clone(), nil
}

func (s *Store) AppendDrawnNumber(ctx context.Context, id uuid.UUID, expectedCount, number int, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.games[id]
	if !ok {
		return false, store.ErrGameNotFound
	}
	if g.Status != models.GameStatusActive || len(g.DrawnNumbers) != expectedCount || g.HasDrawn(number) {
		return false, nil
	}
	g.DrawnNumbers = append(g.DrawnNumbers, number)
	t := at
	g.LastDrawnAt = &t
	g.UpdatedAt = at
	return true, nil
}

func (s *Store) CreatePlayer(ctx context.Context, p *models.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.games[p.GameID]; !ok {
		return store.ErrGameNotFound
	}
	if _, ok := s.players[p.ID]; ok {
		return apperr.New(apperr.KindConflict, "CreatePlayer", fmt.Sprintf("player %s already exists", p.ID))
	}
	s.players[p.ID] = p.Clone()
	return nil
}

func (s *Store) GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[id]
	if !ok {
		return nil, store.ErrPlayerNotFound
	}
	return p.Clone(), nil
}

func (s *Store) ListPlayers(ctx context.Context, gameID uuid.UUID) ([]*models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Player
	for _, p := range s.players {
		if p.GameID == gameID {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdatePlayer(ctx context.Context, id uuid.UUID, fn func(p *models.Player) error) (*models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.players[id]
	if !ok {
		return nil, store.ErrPlayerNotFound
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = id
	next.GameID = current.GameID
	s.players[id] = next
	return next.Clone(), nil
}

func (s *Store) Close() error {
	return nil
}
