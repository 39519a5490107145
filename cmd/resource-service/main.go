package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ibabi/ibabi-backend/internal/auth/jwt"
	"github.com/ibabi/ibabi-backend/internal/resource/events"
	"github.com/ibabi/ibabi-backend/internal/resource/handler"
	"github.com/ibabi/ibabi-backend/internal/resource/repository"
	"github.com/ibabi/ibabi-backend/internal/resource/service"
	"github.com/ibabi/ibabi-backend/migrations"
	"github.com/ibabi/ibabi-backend/pkg/config"
	"github.com/ibabi/ibabi-backend/pkg/database"
	"github.com/ibabi/ibabi-backend/pkg/httputil"
	"github.com/ibabi/ibabi-backend/pkg/logger"
	"github.com/ibabi/ibabi-backend/pkg/messaging"
	"github.com/ibabi/ibabi-backend/pkg/metrics"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation(events.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(events.ServiceName, cfg.Server.Environment).SetLevel(cfg.Log.Level)
	log.Info().Msg("starting Resource Service")

	if cfg.Database.MigrateOnStart {
		if err := runMigrations(&cfg.Database, log); err != nil {
			log.Fatal().Err(err).Msg("failed to apply migrations")
		}
	}

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	publisher, err := events.NewResourceEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	m := metrics.New()

	store := repository.NewPostgresStore(db, cfg.Ledger.LockTimeout, cfg.Ledger.StatementTimeout)
	directory := repository.NewPostgresDirectory(db)
	resourceService := service.NewResourceService(store, directory, log, service.WithMetrics(m))

	relay := events.NewOutboxRelay(repository.NewOutboxRepository(db), publisher, events.RelayConfig{
		Interval:    cfg.Outbox.PollInterval,
		BatchSize:   cfg.Outbox.BatchSize,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	}, m, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	relay.Start(ctx)

	tokens := jwt.NewManager(&cfg.JWT)
	requestHandler := handler.NewRequestHandler(resourceService, log)
	stockHandler := handler.NewStockHandler(resourceService, log)

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Correlation-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  events.ServiceName,
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, m.Handler())
	}

	r.Route("/api/v1/resources", func(r chi.Router) {
		r.Use(jwt.Authenticate(tokens, log))
		r.Mount("/", handler.Routes(requestHandler, stockHandler))
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Stop the outbox relay
	cancel()
	relay.Stop()

	log.Info().Msg("server stopped")
}

// runMigrations uses its own connection because the migrator closes it.
func runMigrations(cfg *config.DatabaseConfig, log *logger.Logger) error {
	db, err := database.New(cfg, log)
	if err != nil {
		return err
	}

	migrator, err := database.NewMigrator(db, migrations.FS, ".", log)
	if err != nil {
		db.Close()
		return err
	}
	defer migrator.Close()

	return migrator.Up()
}
