package main

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/motyweiss/temporal-flight-saga/internal/activities"
	"github.com/motyweiss/temporal-flight-saga/internal/catalog"
	"github.com/motyweiss/temporal-flight-saga/internal/config"
	"github.com/motyweiss/temporal-flight-saga/internal/events"
	"github.com/motyweiss/temporal-flight-saga/internal/inventory"
	"github.com/motyweiss/temporal-flight-saga/internal/models"
	"github.com/motyweiss/temporal-flight-saga/internal/payment"
	"github.com/motyweiss/temporal-flight-saga/internal/store"
	"github.com/motyweiss/temporal-flight-saga/internal/workflows"
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

	ctx := context.Background()

	var inv inventory.Inventory
	var sessions store.SessionStore

	if cfg.Database.URL != "" {
		logger.Info("connecting to database")
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Fatal("failed to ping database", zap.Error(err))
		}
		inv = inventory.NewPostgres(pool)
		sessions = store.NewPostgres(pool)
	} else {
		// Single-node mode: seat state lives in this process.
		cat := catalog.New(catalog.Seed(time.Now()))
		var seats []*models.Seat
		for _, f := range cat.Flights() {
			flightSeats, err := cat.SeatMap(f.ID)
			if err != nil {
				logger.Fatal("failed to build seat map", zap.Error(err))
			}
			seats = append(seats, flightSeats...)
		}
		inv = inventory.NewMemory(seats, nil)
		sessions = store.NewMemory()
		logger.Info("using in-memory inventory", zap.Int("seats", len(seats)))
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
		defer producer.Close()
		publisher = producer
		logger.Info("event producer enabled", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	gateway := payment.NewSimulated(cfg.Payment.GatewayLatency(), cfg.Payment.FailureRate, 0)

	logger.Info("connecting to Temporal", zap.String("host", cfg.Temporal.HostPort))
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		logger.Fatal("failed to connect to Temporal", zap.Error(err))
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	wfs := workflows.New(workflows.Config{
		SeatHoldDuration: cfg.Booking.SeatHoldDuration(),
		ReviewDuration:   cfg.Booking.ReviewDuration(),
		AttemptTimeout:   cfg.Payment.AttemptTimeout(),
		MaxAttempts:      cfg.Payment.MaxAttempts,
		CarryDeadline:    cfg.Booking.CarryDeadline,
	})
	w.RegisterWorkflowWithOptions(wfs.BookingSession, workflow.RegisterOptions{Name: workflows.WorkflowName})

	acts := activities.New(inv, sessions, gateway, publisher)
	w.RegisterActivityWithOptions(acts.HoldSeats, activity.RegisterOptions{Name: "HoldSeats"})
	w.RegisterActivityWithOptions(acts.ExtendHolds, activity.RegisterOptions{Name: "ExtendHolds"})
	w.RegisterActivityWithOptions(acts.ReleaseSeats, activity.RegisterOptions{Name: "ReleaseSeats"})
	w.RegisterActivityWithOptions(acts.CaptureSeats, activity.RegisterOptions{Name: "CaptureSeats"})
	w.RegisterActivityWithOptions(acts.ChargePayment, activity.RegisterOptions{Name: "ChargePayment"})
	w.RegisterActivityWithOptions(acts.SaveSession, activity.RegisterOptions{Name: "SaveSession"})

	logger.Info("starting Temporal worker", zap.String("taskQueue", cfg.Temporal.TaskQueue))
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Fatal("worker failed", zap.Error(err))
	}
}
