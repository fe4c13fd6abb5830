package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/alumnet-backend/api/routes"
	"github.com/angelmondragon/alumnet-backend/internal/cache"
	"github.com/angelmondragon/alumnet-backend/internal/counters"
	"github.com/angelmondragon/alumnet-backend/internal/dashboard"
	"github.com/angelmondragon/alumnet-backend/internal/donations"
	"github.com/angelmondragon/alumnet-backend/internal/events"
	"github.com/angelmondragon/alumnet-backend/internal/lifecycle"
	"github.com/angelmondragon/alumnet-backend/internal/mentorship"
	"github.com/angelmondragon/alumnet-backend/pkg/config"
	"github.com/angelmondragon/alumnet-backend/pkg/db"
	"github.com/angelmondragon/alumnet-backend/pkg/logger"
	"github.com/angelmondragon/alumnet-backend/pkg/metrics"
	"github.com/angelmondragon/alumnet-backend/pkg/migrate"
	"github.com/angelmondragon/alumnet-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": cfg.Service.Kind})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	var redisPinger redis.Pinger
	if cfg.Redis.Enabled() {
		redisClient, rerr := redis.New(ctx, cfg.Redis, logg)
		if rerr != nil {
			return rerr
		}
		defer func() { err = multierr.Append(err, redisClient.Close()) }()
		redisPinger = redisClient
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	lifecycleMetrics := metrics.NewLifecycleMetrics(registry)

	dashboardCache := cache.New(cache.Options{
		Name:          "dashboard",
		SweepInterval: cfg.Cache.SweepInterval,
		SweepBatch:    cfg.Cache.SweepBatch,
		Metrics:       metrics.NewCacheMetrics(registry),
		Logger:        logg,
	})
	dashboardCache.Start(ctx)
	defer dashboardCache.Stop()

	aggregator, err := dashboard.NewAggregator(dashboard.NewRepository(dbClient.DB()), dashboardCache, logg, dashboard.Options{
		MetricsTTL:      cfg.Dashboard.MetricsTTL,
		ActivitiesTTL:   cfg.Dashboard.ActivitiesTTL,
		QueryTimeout:    cfg.Dashboard.QueryTimeout,
		BreakdownMonths: cfg.Dashboard.BreakdownMonths,
		DefaultLimit:    cfg.Dashboard.DefaultActivities,
	})
	if err != nil {
		return err
	}

	ledgers := lifecycle.NewRepository(dbClient.DB())
	counterRepo := counters.NewRepository(dbClient.DB())
	locks := lifecycle.NewKeyLock()
	newLifecycle := func(def lifecycle.Definition) (lifecycle.Service, error) {
		return lifecycle.NewService(lifecycle.ServiceParams{
			Definition:  def,
			DB:          dbClient,
			Ledgers:     ledgers,
			Counters:    counterRepo,
			Locks:       locks,
			Logger:      logg,
			Metrics:     lifecycleMetrics,
			Invalidator: aggregator,
			Timeout:     cfg.Lifecycle.TransitionTimeout,
		})
	}

	registrations, err := newLifecycle(lifecycle.EventRegistration)
	if err != nil {
		return err
	}
	connections, err := newLifecycle(lifecycle.MentorshipConnection)
	if err != nil {
		return err
	}
	pledges, err := newLifecycle(lifecycle.Donation)
	if err != nil {
		return err
	}

	eventsService, err := events.NewService(events.ServiceParams{
		Repo:            events.NewRepository(dbClient.DB()),
		DB:              dbClient,
		Lifecycle:       registrations,
		Invalidator:     aggregator,
		DefaultCapacity: cfg.Lifecycle.DefaultEventCapacity,
	})
	if err != nil {
		return err
	}
	mentorshipService, err := mentorship.NewService(mentorship.ServiceParams{
		Repo:              mentorship.NewRepository(dbClient.DB()),
		DB:                dbClient,
		Lifecycle:         connections,
		Invalidator:       aggregator,
		DefaultMaxMentees: cfg.Lifecycle.DefaultMaxMentees,
	})
	if err != nil {
		return err
	}
	donationsService, err := donations.NewService(donations.ServiceParams{
		Repo:        donations.NewRepository(dbClient.DB()),
		DB:          dbClient,
		Lifecycle:   pledges,
		Invalidator: aggregator,
	})
	if err != nil {
		return err
	}

	router := routes.NewRouter(routes.Params{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Redis:      redisPinger,
		Events:     eventsService,
		Mentorship: mentorshipService,
		Donations:  donationsService,
		Dashboard:  aggregator,
		Gatherer:   registry,
	})

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(logg.WithField(ctx, "port", cfg.App.Port), "api listening")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(ctx, "api shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
