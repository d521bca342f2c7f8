package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/cimillas/ticket-inventory/internal/app"
	"github.com/cimillas/ticket-inventory/internal/clock"
	"github.com/cimillas/ticket-inventory/internal/config"
	"github.com/cimillas/ticket-inventory/internal/metrics"
	"github.com/cimillas/ticket-inventory/internal/notify"
	"github.com/cimillas/ticket-inventory/internal/storage/postgres"
	"github.com/cimillas/ticket-inventory/internal/storage/sqlite"
	transporthttp "github.com/cimillas/ticket-inventory/internal/transport/http"
	"github.com/cimillas/ticket-inventory/migrations"
)

const (
	startupTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

// storage is the engine's view of whichever backend was configured.
type storage struct {
	inventory    app.InventoryRepository
	reservations app.ReservationRepository
	pinger       transporthttp.Pinger
	close        func()
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("load config")
	}
	logger.SetLevel(cfg.Level())

	startupCtx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	store, err := openStorage(startupCtx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("open storage")
	}
	defer store.close()

	clk := clock.NewSystem()
	opts := []app.Option{
		app.WithLogger(logger),
		app.WithHoldDuration(cfg.HoldDuration),
		app.WithReaperInterval(cfg.ReaperInterval),
		app.WithReaperBatchSize(cfg.ReaperBatchSize),
	}

	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, app.WithMetrics(metrics.New(registry)))
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}

	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Fatal("parse REDIS_URL")
		}
		rc := redis.NewClient(redisOpts)
		defer rc.Close()

		notifier := notify.NewRedisNotifier(rc, clk)
		if err := notifier.Ping(startupCtx); err != nil {
			logger.WithError(err).Warn("redis unreachable, release notifications will fail until it recovers")
		}
		opts = append(opts, app.WithNotifier(notifier))
	}

	inventorySvc := app.NewInventoryService(store.inventory, clk, opts...)
	allocator := app.NewAllocator(store.inventory, clk, opts...)
	reservationSvc := app.NewReservationService(store.inventory, store.reservations, allocator, clk, opts...)
	paymentSvc := app.NewPaymentService(store.inventory, store.reservations, reservationSvc, clk, opts...)
	reaper := app.NewReaper(store.reservations, reservationSvc, clk, opts...)

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reaperDone := make(chan struct{})
	go func() {
		defer close(reaperDone)
		reaper.Run(stopCtx)
	}()

	server := &http.Server{
		Addr: cfg.Addr(),
		Handler: transporthttp.NewRouter(transporthttp.RouterConfig{
			Inventory:    inventorySvc,
			Reservations: reservationSvc,
			Payments:     paymentSvc,
			Store:        store.pinger,
			Metrics:      metricsHandler,
			CORSOrigins:  cfg.CORSOrigins,
			Logger:       logger,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.WithFields(logrus.Fields{
		"addr":    cfg.Addr(),
		"storage": cfg.StorageDriver,
		"hold":    cfg.HoldDuration.String(),
	}).Info("api listening")

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server error")
		}
		stop()
	case <-stopCtx.Done():
		logger.Info("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Error("server shutdown error")
	}
	<-reaperDone
	logger.Info("server stopped")
}

func openStorage(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (storage, error) {
	if cfg.StorageDriver == config.DriverSQLite {
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return storage{}, err
		}
		logger.WithField("path", cfg.SQLitePath).Info("sqlite store opened")
		return storage{
			inventory:    db,
			reservations: db,
			pinger:       db,
			close:        func() { _ = db.Close() },
		}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return storage{}, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return storage{}, err
	}
	applied, err := migrations.Apply(ctx, pool)
	if err != nil {
		pool.Close()
		return storage{}, err
	}
	for _, name := range applied {
		logger.WithField("migration", name).Info("migration applied")
	}
	return storage{
		inventory:    postgres.NewInventoryRepository(pool),
		reservations: postgres.NewReservationRepository(pool),
		pinger:       pool,
		close:        pool.Close,
	}, nil
}
