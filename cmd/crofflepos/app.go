package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"crofflepos/internal/availability"
	"crofflepos/internal/cache"
	"crofflepos/internal/config"
	"crofflepos/internal/domain"
	"crofflepos/internal/inventory"
	"crofflepos/internal/logging"
	"crofflepos/internal/recipes"
	"crofflepos/internal/service"
	"crofflepos/internal/store"
	"crofflepos/internal/store/memory"
	pgstore "crofflepos/internal/store/postgres"
)

// app holds the wired backend shared by every subcommand.
type app struct {
	cfg     config.Config
	log     *logrus.Logger
	repo    store.Repository
	retry   *inventory.RetryQueue
	service *service.Service
	closers []func() error
}

// systemActor runs operator commands with full access.
var systemActor = domain.Actor{Username: "system", Role: domain.RoleAdmin}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	logger, err := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: logger}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(connectCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
		}
		a.repo = pg
		a.closers = append(a.closers, pg.Close)
		logger.WithField("repository", "postgres").Info("repository ready")
	} else {
		a.repo = memory.NewSeeded()
		logger.WithField("repository", "memory").Info("repository ready")
	}

	availabilityCache := cache.AvailabilityCache(cache.NoopAvailabilityCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisAvailabilityCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(connectCtx); err != nil {
			logger.WithError(err).Warn("redis unavailable, availability cache disabled")
			_ = redisCache.Close()
		} else {
			availabilityCache = redisCache
			a.closers = append(a.closers, redisCache.Close)
			logger.WithField("cache", "redis").Info("availability cache ready")
		}
	}

	deductor := inventory.NewDeductor(a.repo, logger)
	a.retry = inventory.NewRetryQueue(a.repo, deductor, cfg.RetryMaxAttempts, cfg.RetryInterval(), logger)
	avail := availability.NewEngine(a.repo, availabilityCache, cfg.AvailabilityTTL(), logger)
	manager := recipes.NewManager(a.repo, cfg.DeployConcurrency, logger)
	a.service = service.New(a.repo, deductor, a.retry, avail, manager, service.Options{
		DefaultStoreID: cfg.StoreID,
		VATRatePercent: cfg.VATRatePercent,
		Location:       cfg.Location(),
	}, logger)
	return a, nil
}

// operatorContext authorizes CLI calls against the service.
func operatorContext(ctx context.Context) context.Context {
	return service.WithActor(ctx, systemActor)
}

func (a *app) Close() {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			a.log.WithError(err).Warn("close failed")
		}
	}
}
