package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bingo/go/internal/config"
	"github.com/mcdev12/bingo/go/internal/dbconfig"
	"github.com/mcdev12/bingo/go/internal/store"
	"github.com/mcdev12/bingo/go/internal/store/memory"
	"github.com/mcdev12/bingo/go/internal/store/postgres"
)

// storage is the selected backend plus, for Postgres, its status listener
type storage struct {
	store.Store
	postgres *postgres.Store
	listener *postgres.ChangeListener
	dsn      string
}

func setupStore(ctx context.Context, cfg *config.Config) (*storage, error) {
	if cfg.Store == config.StoreMemory {
		log.Warn().Msg("using in-memory store, state is lost on restart")
		return &storage{Store: memory.New()}, nil
	}

	dbCfg, err := dbconfig.NewConfigFromEnv()
	if err != nil {
		return nil, err
	}
	pg, err := postgres.New(ctx, dbCfg.PoolDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := postgres.Migrate(ctx, pg.Pool()); err != nil {
		pg.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("database", dbCfg.Database).
		Int32("max_conns", dbCfg.MaxConns).
		Msg("connected to database")
	return &storage{Store: pg, postgres: pg, dsn: dbCfg.DSN()}, nil
}
