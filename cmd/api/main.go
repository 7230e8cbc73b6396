package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/pantypost/order-sync/internal/config"
	"github.com/pantypost/order-sync/internal/events"
	"github.com/pantypost/order-sync/internal/httpx"
	kafkax "github.com/pantypost/order-sync/internal/kafka"
	"github.com/pantypost/order-sync/internal/logx"
	"github.com/pantypost/order-sync/internal/negotiation"
	"github.com/pantypost/order-sync/internal/orders"
	"github.com/pantypost/order-sync/internal/postgres"
	"github.com/pantypost/order-sync/internal/redisx"
	"github.com/pantypost/order-sync/internal/session"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logx.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("exit", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMax)
	if err != nil {
		return err
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka: push channel in, address notifications out
	hub := events.NewKafkaHub(&redisx.Deduper{RDB: rdb, Service: cfg.ServiceName, TTL: cfg.DedupTTL}, logger)
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroup, cfg.KafkaTopic, cfg.KafkaWorkers, logger)
	prod := kafkax.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, 1024, logger)
	prod.Start(ctx)

	bus := events.NewLocalBus()
	reg := session.NewRegistry(session.Deps{
		Orders:          &orders.Repo{DB: db},
		Requests:        &negotiation.Repo{DB: db},
		Signals:         &redisx.SignalStore{RDB: rdb, TTL: cfg.SignalTTL},
		Updater:         &orders.Repo{DB: db},
		Notifier:        &kafkax.Notifier{Publisher: prod, Service: cfg.ServiceName, Logger: logger},
		Sources:         []events.Source{hub, bus},
		Logger:          logger,
		PollInterval:    cfg.PollInterval,
		PollMaxAttempts: cfg.PollMaxAttempts,
		ReloadDebounce:  cfg.ReloadDebounce,
	})

	router := httpx.NewRouter(hub, bus)
	(&httpx.SessionsHandler{Registry: reg, Bus: bus, Logger: logger}).Register(router)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http_listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return cons.Start(gctx, hub.Handle)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting_down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	err = g.Wait()
	reg.Close()
	prod.Close()
	prod.WaitClosed()
	return err
}
