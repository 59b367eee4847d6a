package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/bingo/go/internal/apperr"
	"github.com/mcdev12/bingo/go/internal/models"
)

func newActiveGame(t *testing.T, s *Store, drawn ...int) *models.Game {
	t.Helper()
	g := &models.Game{
		ID:           uuid.New(),
		JoinCode:     "ABCD",
		Status:       models.GameStatusActive,
		DrawMode:     models.DrawModeManual,
		DrawnNumbers: drawn,
		CreatedAt:    time.Now(),
	}
	if err := s.CreateGame(context.Background(), g); err != nil {
		t.Fatalf("CreateGame() = %v", err)
	}
	return g
}

func TestAppendDrawnNumberConditions(t *testing.T) {
	ctx := context.Background()
	s := New()
	g := newActiveGame(t, s, 5)
	at := time.Now()

	tests := []struct {
		name          string
		expectedCount int
		number        int
		want          bool
	}{
		{"stale count", 0, 9, false},
		{"already drawn", 1, 5, false},
		{"ok", 1, 9, true},
		{"same count again", 1, 10, false},
	}
	for _, tt := range tests {
		ok, err := s.AppendDrawnNumber(ctx, g.ID, tt.expectedCount, tt.number, at)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if ok != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, ok, tt.want)
		}
	}

	got, _ := s.GetGame(ctx, g.ID)
	if len(got.DrawnNumbers) != 2 || got.DrawnNumbers[1] != 9 {
		t.Fatalf("drawn = %v, want [5 9]", got.DrawnNumbers)
	}
	if got.LastDrawnAt == nil || !got.LastDrawnAt.Equal(at) {
		t.Errorf("LastDrawnAt not set with the append")
	}
}

func TestAppendDrawnNumberRequiresActive(t *testing.T) {
	ctx := context.Background()
	s := New()
	g := newActiveGame(t, s)

	if _, err := s.UpdateGame(ctx, g.ID, func(g *models.Game) error {
		g.Status = models.GameStatusPaused
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	ok, err := s.AppendDrawnNumber(ctx, g.ID, 0, 1, time.Now())
	if err != nil || ok {
		t.Fatalf("paused game accepted a draw: ok=%v err=%v", ok, err)
	}
}

func TestAppendDrawnNumberConcurrent(t *testing.T) {
	ctx := context.Background()
	s := New()
	g := newActiveGame(t, s)

	var wg sync.WaitGroup
	results := make(chan bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ok, _ := s.AppendDrawnNumber(ctx, g.ID, 0, n+1, time.Now())
			results <- ok
		}(i)
	}
	wg.Wait()
	close(results)

	winners := 0
	for ok := range results {
		if ok {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("%d concurrent appends succeeded, want 1", winners)
	}
}

func TestNotFound(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.GetGame(ctx, uuid.New()); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("GetGame: expected not_found, got %v", err)
	}
	if _, err := s.GetPlayer(ctx, uuid.New()); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("GetPlayer: expected not_found, got %v", err)
	}
	if _, err := s.GetGameByJoinCode(ctx, "ZZZZ"); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("GetGameByJoinCode: expected not_found, got %v", err)
	}
	err := s.CreatePlayer(ctx, &models.Player{ID: uuid.New(), GameID: uuid.New()})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("CreatePlayer for missing game: expected not_found, got %v", err)
	}
}

func TestUpdatePlayerRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	g := newActiveGame(t, s)
	p := &models.Player{ID: uuid.New(), GameID: g.ID, Name: "ann"}
	if err := s.CreatePlayer(ctx, p); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	_, err := s.UpdatePlayer(ctx, p.ID, func(p *models.Player) error {
		p.Name = "changed"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	got, _ := s.GetPlayer(ctx, p.ID)
	if got.Name != "ann" {
		t.Fatalf("failed update was persisted: %q", got.Name)
	}

	players, _ := s.ListPlayers(ctx, g.ID)
	if len(players) != 1 {
		t.Fatalf("ListPlayers() returned %d players", len(players))
	}
}

func TestJoinCodeUnique(t *testing.T) {
	s := New()
	newActiveGame(t, s)
	err := s.CreateGame(context.Background(), &models.Game{ID: uuid.New(), JoinCode: "ABCD"})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for duplicate join code, got %v", err)
	}
}
