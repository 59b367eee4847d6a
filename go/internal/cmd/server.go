package main

import (
	"net/http"

	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/bingo/go/internal/config"
	"github.com/mcdev12/bingo/go/internal/game"
)

func setupServer(cfg *config.Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	registerServices(mux, services)

	// WebSocket, stats and health routes
	services.Gateway.RegisterRoutes(mux)

	mux.Handle("/metrics", services.Metrics.Handler())

	handler := c.Handler(mux)

	return &http.Server{
		Addr:    cfg.Addr(),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func registerServices(mux *http.ServeMux, services *Services) {
	gameServicePath, gameServiceHandler := game.NewGameServiceHandler(services.Game)
	mux.Handle(gameServicePath, gameServiceHandler)
}
