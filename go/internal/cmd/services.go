package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/bingo/go/internal/config"
	"github.com/mcdev12/bingo/go/internal/game"
	"github.com/mcdev12/bingo/go/internal/gateway"
	"github.com/mcdev12/bingo/go/internal/models"
	"github.com/mcdev12/bingo/go/internal/store/postgres"
)

type Services struct {
	Game    *game.Service
	Gateway *gateway.Service
	Metrics *gateway.PrometheusMetrics
}

func setupServices(ctx context.Context, cfg *config.Config, db *storage) (*Services, error) {
	// Store → App → Service, with the gateway as the app's notifier
	gameApp := game.NewApp(db,
		game.WithAdminKey(cfg.AdminKey),
		game.WithFreeCenter(cfg.FreeCenter),
	)
	gameService := game.NewService(gameApp)

	publisher, err := setupPublisher(ctx, cfg)
	if err != nil {
		return nil, err
	}

	metrics := gateway.NewPrometheusMetrics()

	gwCfg := gateway.DefaultConfig()
	gwCfg.RateLimit = cfg.RateLimit
	gwCfg.RateWindow = cfg.RateWindow
	gwCfg.ConnectionConfig.MaxMessageSize = cfg.MaxMessageSize
	gatewayService := gateway.NewService(gameApp, gwCfg,
		gateway.WithMetrics(metrics),
		gateway.WithPublisher(publisher),
	)
	gameApp.SetNotifier(gatewayService)

	if db.postgres != nil {
		listener, err := postgres.NewChangeListener(
			postgres.DefaultListenerConfig(db.dsn),
			func(ctx context.Context, change postgres.StatusChange) {
				gatewayService.HandleStatusChange(ctx, change.GameID)
			},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to start status listener: %w", err)
		}
		gatewayService.SetStatusObserver(func(id uuid.UUID, status models.GameStatus) bool {
			return listener.Observe(postgres.StatusChange{GameID: id, Status: status})
		})
		db.listener = listener
	}

	return &Services{
		Game:    gameService,
		Gateway: gatewayService,
		Metrics: metrics,
	}, nil
}

func setupPublisher(ctx context.Context, cfg *config.Config) (gateway.Publisher, error) {
	if cfg.NATSURL == "" {
		log.Info().Msg("NATS not configured, room events stay in-process")
		return gateway.NoopPublisher{}, nil
	}
	jsCfg := gateway.DefaultJetStreamConfig()
	jsCfg.URL = cfg.NATSURL
	publisher, err := gateway.NewJetStreamPublisher(ctx, jsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up JetStream publisher: %w", err)
	}
	log.Info().Str("url", cfg.NATSURL).Str("stream", jsCfg.StreamName).Msg("publishing room events to JetStream")
	return publisher, nil
}
