package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/bingo/go/internal/apperr"
	"github.com/mcdev12/bingo/go/internal/models"
	"github.com/mcdev12/bingo/go/internal/sqlutil"
	"github.com/mcdev12/bingo/go/internal/store"
)

const gameColumns = `id, join_code, name, status, draw_mode, draw_interval_sec, drawn_numbers,
	registered_players, active_players, winner_count, admin_connections,
	created_at, started_at, ended_at, last_drawn_at, updated_at`

const playerColumns = `id, game_id, name, card, marked_numbers, has_won, won_at, online,
	last_seen_at, connection_id, created_at`

// Store implements store.Store on a pgx pool
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New connects to dsn and verifies the connection
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewFromPool wraps an existing pool
func NewFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) CreateGame(ctx context.Context, g *models.Game) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO games (`+gameColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		g.ID, g.JoinCode, g.Name, string(g.Status), string(g.DrawMode), g.DrawIntervalSec,
		sqlutil.ToInt4Array(g.DrawnNumbers), g.RegisteredPlayers, g.ActivePlayers, g.WinnerCount,
		sqlutil.ToTextArray(g.AdminConnections), g.CreatedAt, g.StartedAt, g.EndedAt,
		g.LastDrawnAt, g.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Wrap(apperr.KindConflict, "CreateGame", err)
		}
		return fmt.Errorf("failed to create game: %w", err)
	}
	return nil
}

func (s *Store) GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, id)
	return scanGame(row)
}

func (s *Store) GetGameByJoinCode(ctx context.Context, code string) (*models.Game, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE join_code = $1`, code)
	return scanGame(row)
}

func (s *Store) ListGamesByStatus(ctx context.Context, status models.GameStatus) ([]*models.Game, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+gameColumns+` FROM games WHERE status = $1 ORDER BY created_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	var games []*models.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating game rows: %w", err)
	}
	return games, nil
}

func (s *Store) UpdateGame(ctx context.Context, id uuid.UUID, fn func(g *models.Game) error) (*models.Game, error) {
	var updated *models.Game
	err := sqlutil.Run(ctx, s.pool, func(tx pgx.Tx) pgx.Tx { return tx }, func(tx pgx.Tx) error {
		g, err := scanGame(tx.QueryRow(ctx,
			`SELECT `+gameColumns+` FROM games WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if err := fn(g); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE games SET
				name = $2, status = $3, draw_mode = $4, draw_interval_sec = $5,
				drawn_numbers = $6, registered_players = $7, active_players = $8,
				winner_count = $9, admin_connections = $10, started_at = $11,
				ended_at = $12, last_drawn_at = $13, updated_at = $14
			WHERE id = $1`,
			id, g.Name, string(g.Status), string(g.DrawMode), g.DrawIntervalSec,
			sqlutil.ToInt4Array(g.DrawnNumbers), g.RegisteredPlayers, g.ActivePlayers,
			g.WinnerCount, sqlutil.ToTextArray(g.AdminConnections), g.StartedAt,
			g.EndedAt, g.LastDrawnAt, g.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update game: %w", err)
		}
		g.ID = id
		updated = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AppendDrawnNumber is the single conditional write behind every draw
func (s *Store) AppendDrawnNumber(ctx context.Context, id uuid.UUID, expectedCount, number int, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE games
		SET drawn_numbers = array_append(drawn_numbers, $3),
		    last_drawn_at = $4,
		    updated_at = $4
		WHERE id = $1
		  AND status = 'active'
		  AND cardinality(drawn_numbers) = $2
		  AND NOT ($3 = ANY(drawn_numbers))`,
		id, int32(expectedCount), int32(number), at,
	)
	if err != nil {
		return false, fmt.Errorf("failed to append drawn number: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// distinguish a lost race from a missing game
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM games WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check game: %w", err)
	}
	if !exists {
		return false, store.ErrGameNotFound
	}
	return false, nil
}

func (s *Store) CreatePlayer(ctx context.Context, p *models.Player) error {
	card, err := json.Marshal(p.Card)
	if err != nil {
		return fmt.Errorf("failed to marshal card: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO players (`+playerColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		p.ID, p.GameID, p.Name, card, sqlutil.ToInt4Array(p.MarkedNumbers), p.HasWon,
		p.WonAt, p.Online, p.LastSeenAt, p.ConnectionID, p.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return store.ErrGameNotFound
		}
		if isUniqueViolation(err) {
			return apperr.Wrap(apperr.KindConflict, "CreatePlayer", err)
		}
		return fmt.Errorf("failed to create player: %w", err)
	}
	return nil
}

func (s *Store) GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+playerColumns+` FROM players WHERE id = $1`, id)
	return scanPlayer(row)
}

func (s *Store) ListPlayers(ctx context.Context, gameID uuid.UUID) ([]*models.Player, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+playerColumns+` FROM players WHERE game_id = $1 ORDER BY created_at`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()

	var players []*models.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating player rows: %w", err)
	}
	return players, nil
}

func (s *Store) UpdatePlayer(ctx context.Context, id uuid.UUID, fn func(p *models.Player) error) (*models.Player, error) {
	var updated *models.Player
	err := sqlutil.Run(ctx, s.pool, func(tx pgx.Tx) pgx.Tx { return tx }, func(tx pgx.Tx) error {
		p, err := scanPlayer(tx.QueryRow(ctx,
			`SELECT `+playerColumns+` FROM players WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		card, err := json.Marshal(p.Card)
		if err != nil {
			return fmt.Errorf("failed to marshal card: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE players SET
				name = $2, card = $3, marked_numbers = $4, has_won = $5, won_at = $6,
				online = $7, last_seen_at = $8, connection_id = $9
			WHERE id = $1`,
			id, p.Name, card, sqlutil.ToInt4Array(p.MarkedNumbers), p.HasWon, p.WonAt,
			p.Online, p.LastSeenAt, p.ConnectionID,
		)
		if err != nil {
			return fmt.Errorf("failed to update player: %w", err)
		}
		p.ID = id
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func scanGame(row pgx.Row) (*models.Game, error) {
	var (
		g      models.Game
		status string
		mode   string
		drawn  []int32
		admins []string
	)
	err := row.Scan(
		&g.ID, &g.JoinCode, &g.Name, &status, &mode, &g.DrawIntervalSec, &drawn,
		&g.RegisteredPlayers, &g.ActivePlayers, &g.WinnerCount, &admins,
		&g.CreatedAt, &g.StartedAt, &g.EndedAt, &g.LastDrawnAt, &g.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan game: %w", err)
	}
	g.Status = models.GameStatus(status)
	g.DrawMode = models.DrawMode(mode)
	g.DrawnNumbers = sqlutil.FromInt4Array(drawn)
	if len(admins) > 0 {
		g.AdminConnections = admins
	}
	return &g, nil
}

func scanPlayer(row pgx.Row) (*models.Player, error) {
	var (
		p      models.Player
		card   []byte
		marked []int32
	)
	err := row.Scan(
		&p.ID, &p.GameID, &p.Name, &card, &marked, &p.HasWon, &p.WonAt, &p.Online,
		&p.LastSeenAt, &p.ConnectionID, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan player: %w", err)
	}
	if err := json.Unmarshal(card, &p.Card); err != nil {
		return nil, fmt.Errorf("failed to decode card for player %s: %w", p.ID, err)
	}
	p.MarkedNumbers = sqlutil.FromInt4Array(marked)
	return &p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
