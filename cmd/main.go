/**
 * @description
 * Entry point for the gifting service.
 *
 * Serves the reveal, reciprocity and imbalance alert APIs, runs the optional
 * in-process reveal schedule and the alert change listener.
 */
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/joiedevivre/gifting-service/internal/api"
	"github.com/joiedevivre/gifting-service/internal/app"
	"github.com/joiedevivre/gifting-service/internal/config"
	"github.com/joiedevivre/gifting-service/internal/store"
	"github.com/joiedevivre/gifting-service/pkg/audioclient"
	"github.com/joiedevivre/gifting-service/pkg/logging"
	giftingrabbit "github.com/joiedevivre/gifting-service/pkg/rabbitmq"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	pgConfig.MaxConns = 20
	pgConfig.MinConns = 2
	pgConfig.MaxConnLifetime = 30 * time.Minute
	pgConfig.MaxConnIdleTime = 5 * time.Minute
	pgConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, pgConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	if cfg.AutoMigrate {
		if err := store.Migrate(ctx, dbpool); err != nil {
			logger.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		logger.Info("database schema applied")
	}

	repository := store.NewRepository(dbpool)

	var lock app.PassLock = app.NoopPassLock{}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Warn("invalid REDIS_URL, reveal passes will not be serialized", "error", err)
		} else {
			rdb := redis.NewClient(opts)
			defer rdb.Close()
			lock = app.NewRedisPassLock(rdb, cfg.RedisLockPrefix, cfg.RevealPassBudget(), logger)
			logger.Info("reveal pass lock enabled")
		}
	}

	var publisher interface {
		app.EventPublisher
		Close()
	} = &giftingrabbit.EventProducerFallback{Logger: logger}
	if cfg.RabbitMQURL != "" {
		if producer, err := giftingrabbit.NewEventProducer(cfg.RabbitMQURL, logger); err == nil {
			publisher = producer
		} else {
			logger.Warn("failed to connect to RabbitMQ, using fallback publisher", "error", err)
		}
	}
	defer publisher.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := app.NewMetrics(registry)

	audio := audioclient.NewClient(cfg.AudioServiceURL, cfg.AudioServiceAPIKey, logger)

	revealService := app.NewRevealService(repository, audio, repository, repository, publisher, lock, metrics, logger, *cfg)
	reciprocityService := app.NewReciprocityService(repository, repository, publisher, metrics, logger, *cfg)
	alertService := app.NewAlertService(repository)
	listener := store.NewListener(dbpool, store.AlertsChangedChannel, logger)

	handler := api.NewHandler(revealService, reciprocityService, alertService, api.NewListenerFeed(listener), logger)
	router := api.NewRouter(handler, api.RouterConfig{
		InternalAPIKey: cfg.InternalAPIKey,
		Keys:           api.NewJWKSCache(cfg.ClerkJWKSURL, 10*time.Minute),
		Roles:          repository,
		Gatherer:       registry,
	})

	scheduler := app.NewScheduler(revealService, logger, *cfg)
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start reveal scheduler", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return listener.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received, gracefully shutting down")

		<-scheduler.Stop().Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
