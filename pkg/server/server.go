// Package server provides the public entry point for initializing the
// riskplane server.
//
// This package exists in pkg/ (not internal/) so that deployment
// wrappers can import it and compose the server with their own
// middleware.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/riskplane/riskplane/internal/agents"
	"github.com/riskplane/riskplane/internal/api"
	"github.com/riskplane/riskplane/internal/api/handlers"
	"github.com/riskplane/riskplane/internal/config"
	"github.com/riskplane/riskplane/internal/feedback"
	"github.com/riskplane/riskplane/internal/oracle"
	"github.com/riskplane/riskplane/internal/orchestrator"
	"github.com/riskplane/riskplane/internal/policy"
	"github.com/riskplane/riskplane/internal/store"
	"github.com/riskplane/riskplane/internal/telemetry"

	"github.com/rs/zerolog/log"
)

// Server holds the initialized riskplane service.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the data store (in-memory or PostgreSQL).
	Store store.Store

	// Config is the loaded configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes all components from environment configuration and
// returns a ready Server.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the service with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	var dataStore store.Store
	if cfg.Database.URL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		dataStore = pg
		log.Info().Msg("PostgreSQL store initialized")
	} else {
		dataStore = store.NewMemoryStore()
		log.Info().Msg("In-memory store initialized")
	}

	pol := policy.Default().WithMode(cfg.Decision.Mode)
	client := oracle.NewHTTPClient(cfg.Oracle)

	creditAgent := agents.NewCreditAgent(client, pol)
	fraudAgent := agents.NewFraudAgent(client, pol)
	orch := orchestrator.New(creditAgent, fraudAgent)

	fb := feedback.NewService(dataStore, pol)
	agg := feedback.NewAggregator(dataStore, pol)

	log.Info().Str("oracle", cfg.Oracle.Kind).Str("mode", string(pol.Mode)).Msg("Agents initialized")

	h := handlers.New(dataStore, orch, fb, agg, pol)
	router := api.NewRouter(cfg, h)

	return &Server{
		Handler:      router,
		Store:        dataStore,
		Config:       cfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}
