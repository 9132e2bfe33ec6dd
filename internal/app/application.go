package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"skillhub/internal/api"
	"skillhub/internal/broker"
	"skillhub/internal/chat"
	"skillhub/internal/config"
	"skillhub/internal/database"
	"skillhub/internal/identity"
	"skillhub/internal/negotiation"
	"skillhub/internal/notify"
	"skillhub/internal/presence"
	"skillhub/internal/websocket"
	pkgdatabase "skillhub/pkg/database"
)

// Application coordinates all hub components. Initialization follows
// dependency order: Database → Broker/Presence → Notify → Chat →
// Negotiation → Identity → API → WebSocket → HTTP.
type Application struct {
	config     *config.Config
	dbManager  *database.Manager
	registry   *presence.Registry
	broker     *broker.Broker
	dispatcher *notify.Dispatcher
	notifier   *notify.Fanout
	pipeline   *chat.Pipeline
	negotiator *negotiation.Coordinator
	apiServer  *api.Server
	httpServer *http.Server
}

// NewApplication builds an application with all components wired.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
		MigrationsPath:  cfg.Database.MigrationsPath,
	}

	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	migrationManager := pkgdatabase.NewMigrationManager(dbManager.GetDB(), dbConfig.MigrationsPath)
	if err := migrationManager.ApplyMigrations(); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	log.Println("Database migrations applied successfully")

	eventBroker := broker.New()
	registry := presence.NewRegistry()

	dispatcher := notify.NewDispatcher(
		&notify.LogPushDeliverer{},
		&notify.LogEmailDeliverer{},
		dbManager,
		cfg.Notify.QueueSize,
		cfg.Notify.Workers,
		cfg.Notify.DispatchTimeout,
	)
	notifier := notify.NewFanout(dbManager, eventBroker, dispatcher)

	pipeline := chat.NewPipeline(eventBroker, dbManager, dbManager, notifier)

	negotiator := negotiation.NewCoordinator(
		dbManager,
		notifier,
		eventBroker,
		cfg.Negotiation.Window,
		cfg.Negotiation.SweepInterval,
	)

	verifier := identity.NewVerifier(identity.Config{
		Secret: cfg.Auth.Secret,
		Issuer: cfg.Auth.Issuer,
	})

	apiServer := api.NewServer(verifier, dbManager, dbManager, pipeline, notifier, negotiator, registry, dbManager)

	wsHandler := websocket.NewHandler(
		verifier,
		dbManager,
		dbManager,
		registry,
		eventBroker,
		pipeline,
		negotiator,
		notifier,
		websocket.Options{
			PingInterval: cfg.WebSocket.PingInterval,
			ReadTimeout:  cfg.WebSocket.ReadTimeout,
			WriteWait:    cfg.WebSocket.WriteTimeout,
			BufferSize:   cfg.WebSocket.BufferSize,
		},
	)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		dbManager:  dbManager,
		registry:   registry,
		broker:     eventBroker,
		dispatcher: dispatcher,
		notifier:   notifier,
		pipeline:   pipeline,
		negotiator: negotiator,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start brings up background workers, then the HTTP listener.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting SkillHub on %s", app.httpServer.Addr)

	app.dispatcher.Start(ctx)
	if err := app.negotiator.Start(ctx); err != nil {
		app.dispatcher.Stop()
		return fmt.Errorf("failed to start negotiation coordinator: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		app.negotiator.Stop()
		app.dispatcher.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("SkillHub started successfully")
		return nil
	case <-ctx.Done():
		app.negotiator.Stop()
		app.dispatcher.Stop()
		return ctx.Err()
	}
}

// Stop shuts components down in reverse dependency order:
// HTTP → Negotiation → Dispatch → Database.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down SkillHub")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	app.negotiator.Stop()
	app.dispatcher.Stop()

	if err := app.dbManager.Close(); err != nil {
		log.Printf("Database shutdown error: %v", err)
	}

	log.Printf("SkillHub shutdown complete")
	return nil
}

// GetAddr returns the listen address.
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
