package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/motyweiss/temporal-flight-saga/internal/catalog"
	"github.com/motyweiss/temporal-flight-saga/internal/config"
	"github.com/motyweiss/temporal-flight-saga/internal/events"
	"github.com/motyweiss/temporal-flight-saga/internal/handlers"
	"github.com/motyweiss/temporal-flight-saga/internal/inventory"
	"github.com/motyweiss/temporal-flight-saga/internal/router"
	"github.com/motyweiss/temporal-flight-saga/internal/service"
	"github.com/motyweiss/temporal-flight-saga/internal/store"
	"github.com/motyweiss/temporal-flight-saga/internal/websocket"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		logger.Fatal("failed to create Temporal client", zap.Error(err))
	}
	defer temporalClient.Close()

	cat := catalog.New(catalog.Seed(time.Now()))

	opts := service.Options{}

	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		opts.Cache = catalog.NewCache(redisClient, time.Duration(cfg.Redis.FlightsTTLSecs)*time.Second)
		logger.Info("flight cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()
		opts.Inventory = inventory.NewPostgres(pool)
		opts.Sessions = store.NewPostgres(pool)
		logger.Info("database connected")
	}

	hub := websocket.NewHub(logger)
	go hub.Run()

	if len(cfg.Kafka.Brokers) > 0 {
		consumer := events.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.EventsTopic, logger)
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx, func(ctx context.Context, event events.SessionEvent) {
				hub.HandleSessionEvent(event)
			}); err != nil {
				logger.Error("event consumer stopped", zap.Error(err))
			}
		}()
		logger.Info("event consumer started", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	bookingService := service.New(temporalClient, cfg.Temporal.TaskQueue, cat, logger, opts)
	h := handlers.NewHandler(bookingService, logger)
	r := router.New(h, hub)

	srv := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("API server starting",
			zap.String("addr", cfg.HTTP.Address),
			zap.String("temporal", cfg.Temporal.HostPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}
