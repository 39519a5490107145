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
	"github.com/ibabi/ibabi-backend/internal/notification"
	"github.com/ibabi/ibabi-backend/pkg/config"
	"github.com/ibabi/ibabi-backend/pkg/httputil"
	"github.com/ibabi/ibabi-backend/pkg/logger"
	"github.com/ibabi/ibabi-backend/pkg/messaging"
	"github.com/redis/go-redis/v9"
)

const serviceName = "notification-service"

func main() {
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.Server.Environment).SetLevel(cfg.Log.Level)
	log.Info().Msg("starting Notification Service")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	pingCancel()

	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	if err := rmq.DeclareDeadLetterQueue(serviceName); err != nil {
		log.Fatal().Err(err).Msg("failed to declare dead letter queue")
	}

	consumer, err := messaging.NewConsumer(rmq, serviceName+".resource-events", log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create consumer")
	}

	dispatcher := notification.NewDispatcher(
		notification.NewRedisDedup(rdb, cfg.Redis.DedupTTL),
		notification.NewLogNotifier(log),
		log,
	)
	if err := dispatcher.Register(consumer); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to resource events")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := consumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start consumer")
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Recoverer(log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		redisStatus := "healthy"
		if err := rdb.Ping(r.Context()).Err(); err != nil {
			redisStatus = "unhealthy"
		}
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  serviceName,
			"redis":    redisStatus,
			"rabbitmq": rmq.Health(),
		})
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

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	// Cancel context to stop the consumer
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("notification service stopped")
}
