package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/mcdev12/bingo/go/internal/apperr"
	"github.com/mcdev12/bingo/go/internal/bingo"
	"github.com/mcdev12/bingo/go/internal/models"
)

// setupTestStore starts a throwaway Postgres and applies the migrations
func setupTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("bingo"),
		tcpostgres.WithUsername("bingo"),
		tcpostgres.WithPassword("bingo"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("failed to start postgres: %v", err)
	}

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	s, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := Migrate(ctx, s.Pool()); err != nil {
		t.Fatalf("Migrate() = %v", err)
	}
	// second run must be a no-op
	if err := Migrate(ctx, s.Pool()); err != nil {
		t.Fatalf("second Migrate() = %v", err)
	}
	return s, dsn
}

func createGame(t *testing.T, s *Store, status models.GameStatus) *models.Game {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	g := &models.Game{
		ID:        uuid.New(),
		JoinCode:  uuid.NewString()[:4],
		Name:      "friday night",
		Status:    status,
		DrawMode:  models.DrawModeManual,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateGame(context.Background(), g); err != nil {
		t.Fatalf("CreateGame() = %v", err)
	}
	return g
}

func TestStoreGameRoundTrip(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	g := createGame(t, s, models.GameStatusCreated)

	got, err := s.GetGameByJoinCode(ctx, g.JoinCode)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != g.ID || got.Status != models.GameStatusCreated || len(got.DrawnNumbers) != 0 {
		t.Fatalf("unexpected game %+v", got)
	}

	updated, err := s.UpdateGame(ctx, g.ID, func(g *models.Game) error {
		g.Status = models.GameStatusActive
		g.AdminConnections = append(g.AdminConnections, "admin-1")
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != models.GameStatusActive || len(updated.AdminConnections) != 1 {
		t.Fatalf("update not applied: %+v", updated)
	}

	active, err := s.ListGamesByStatus(ctx, models.GameStatusActive)
	if err != nil || len(active) != 1 {
		t.Fatalf("ListGamesByStatus() = %d games, %v", len(active), err)
	}

	if _, err := s.GetGame(ctx, uuid.New()); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestStoreAppendDrawnNumberIsAtomic(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	g := createGame(t, s, models.GameStatusActive)

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ok, err := s.AppendDrawnNumber(ctx, g.ID, 0, n, time.Now())
			if err != nil {
				t.Errorf("AppendDrawnNumber() = %v", err)
				return
			}
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("%d concurrent appends succeeded, want 1", winners)
	}
	got, _ := s.GetGame(ctx, g.ID)
	if len(got.DrawnNumbers) != 1 || got.LastDrawnAt == nil {
		t.Fatalf("unexpected state after draw: %+v", got)
	}

	// duplicate number at the right count is rejected
	ok, err := s.AppendDrawnNumber(ctx, g.ID, 1, got.DrawnNumbers[0], time.Now())
	if err != nil || ok {
		t.Fatalf("duplicate accepted: ok=%v err=%v", ok, err)
	}

	if _, err := s.AppendDrawnNumber(ctx, uuid.New(), 0, 1, time.Now()); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not_found for missing game, got %v", err)
	}
}

func TestStorePlayerRoundTrip(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	g := createGame(t, s, models.GameStatusActive)

	p := &models.Player{
		ID:         uuid.New(),
		GameID:     g.ID,
		Name:       "ann",
		Card:       bingo.NewCard(nil, true),
		LastSeenAt: time.Now(),
		CreatedAt:  time.Now(),
	}
	if err := s.CreatePlayer(ctx, p); err != nil {
		t.Fatal(err)
	}

	conn := "conn-1"
	updated, err := s.UpdatePlayer(ctx, p.ID, func(p *models.Player) error {
		p.MarkedNumbers = []int{4, 19}
		p.Online = true
		p.ConnectionID = &conn
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !updated.Online || len(updated.MarkedNumbers) != 2 {
		t.Fatalf("update not applied: %+v", updated)
	}

	got, err := s.GetPlayer(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Card.Grid != p.Card.Grid || got.Card.FreeSpace == nil {
		t.Fatal("card did not survive the round trip")
	}
	if got.ConnectionID == nil || *got.ConnectionID != conn {
		t.Fatalf("connection id = %v", got.ConnectionID)
	}

	if err := s.CreatePlayer(ctx, &models.Player{ID: uuid.New(), GameID: uuid.New(), Name: "x"}); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not_found for missing game, got %v", err)
	}
}

func TestChangeListenerReceivesStatusChanges(t *testing.T) {
	s, dsn := setupTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	changes := make(chan StatusChange, 4)
	l, err := NewChangeListener(DefaultListenerConfig(dsn), func(_ context.Context, c StatusChange) {
		changes <- c
	})
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = l.Start(ctx) }()

	g := createGame(t, s, models.GameStatusCreated)
	if _, err := s.UpdateGame(ctx, g.ID, func(g *models.Game) error {
		g.Status = models.GameStatusActive
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	want := []models.GameStatus{models.GameStatusCreated, models.GameStatusActive}
	for _, status := range want {
		select {
		case c := <-changes:
			if c.GameID != g.ID || c.Status != status {
				t.Fatalf("got %+v, want %s", c, status)
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for %s", status)
		}
	}
}
