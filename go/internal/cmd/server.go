package main

import (
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/synctimer/go/internal/config"
	"github.com/mcdev12/synctimer/go/internal/timer/bridge"
	"github.com/mcdev12/synctimer/go/internal/timer/metrics"
)

func setupServer(cfg config.Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	// Timer display stream, REST API and health check
	services.Gateway.RegisterRoutes(mux)

	// Sync health: 503 while disconnected, unsynced or stuck publishing
	mux.Handle("/health/sync", bridge.HealthHandler(services.Bridge, bridge.DefaultStaleThreshold))

	// Prometheus scrape endpoint
	mux.Handle("/metrics", metrics.Handler(services.Registry))

	// Wrap with CORS
	handler := c.Handler(mux)

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Gateway.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}
