package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/alumnet-backend/internal/counters"
	"github.com/angelmondragon/alumnet-backend/internal/cron"
	"github.com/angelmondragon/alumnet-backend/internal/lifecycle"
	"github.com/angelmondragon/alumnet-backend/pkg/config"
	"github.com/angelmondragon/alumnet-backend/pkg/db"
	"github.com/angelmondragon/alumnet-backend/pkg/logger"
	"github.com/angelmondragon/alumnet-backend/pkg/metrics"
	"github.com/angelmondragon/alumnet-backend/pkg/migrate"
	"github.com/angelmondragon/alumnet-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	var lock cron.Lock = cron.NewLocalLock()
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		lock, err = cron.NewRedisLock(redisClient, redis.LockKey("cron-worker:"+envOrLocal(cfg.App.Env)), cfg.Cron.LockTTL)
		if err != nil {
			logg.Error(context.Background(), "failed to create cron lock", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "redis not configured; using in-process cron lock")
	}

	reconcileJob, err := cron.NewCounterReconcileJob(cron.CounterReconcileJobParams{
		Logger:      logg,
		Definitions: lifecycle.Definitions(),
		DB:          dbClient,
		Ledgers:     lifecycle.NewRepository(dbClient.DB()),
		Counters:    counters.NewRepository(dbClient.DB()),
		Metrics:     metrics.NewLifecycleMetrics(prometheus.DefaultRegisterer),
		DryRun:      cfg.Cron.ReconcileDryRun,
		MaxRepairs:  cfg.Cron.ReconcileBatchMax,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create counter reconcile job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry()
	if err := registry.Register(reconcileJob); err != nil {
		logg.Error(context.Background(), "failed to register cron job", err)
		os.Exit(1)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"interval":    service.Interval().String(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func envOrLocal(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
