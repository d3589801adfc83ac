// Package app assembles the registration agent from configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/hospital-registration-agent/internal/booking"
	"github.com/hackgods/hospital-registration-agent/internal/config"
	"github.com/hackgods/hospital-registration-agent/internal/conversation"
	"github.com/hackgods/hospital-registration-agent/internal/db"
	"github.com/hackgods/hospital-registration-agent/internal/observability/metrics"
	redisclient "github.com/hackgods/hospital-registration-agent/internal/redis"
	"github.com/hackgods/hospital-registration-agent/internal/session"
	"github.com/hackgods/hospital-registration-agent/pkg/logging"
)

// App holds every long-lived component. Close releases connections.
type App struct {
	Catalog   *booking.Catalog
	Repo      booking.Repository
	Allocator *booking.Allocator
	Sessions  *session.Store
	Machine   *conversation.Machine
	Metrics   *metrics.BookingMetrics
	Postgres  *pgxpool.Pool // nil unless STORE_DRIVER=postgres
	Redis     *redis.Client // nil unless cfg.NeedsRedis

	closers []func()
}

// Build connects the configured backends. reg may be nil for the default registerer.
func Build(ctx context.Context, cfg config.Config, logger *logging.Logger, reg prometheus.Registerer) (*App, error) {
	a := &App{}

	catalog, err := booking.LoadCatalog(cfg.DepartmentsFile)
	if err != nil {
		return nil, fmt.Errorf("load departments: %w", err)
	}
	a.Catalog = catalog
	a.Metrics = metrics.NewBookingMetrics(reg)

	if err := a.openStore(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.NeedsRedis() {
		rdb, err := redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.Redis = rdb
		a.closers = append(a.closers, func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", "error", err)
			}
		})
	}

	var locker redisclient.Locker
	if cfg.SlotLocking && a.Redis != nil {
		locker = redisclient.NewRedisSlotLocker(a.Redis, cfg.LockTTL, cfg.LockWait)
	}
	a.Allocator = booking.NewAllocator(a.Repo, catalog, locker, logger, a.Metrics)

	var sessionRepo session.Repository
	switch cfg.SessionDriver {
	case config.SessionDriverRedis:
		// the key outlives the idle window so expiry is always observed by Store first
		sessionRepo = session.NewRedisRepository(a.Redis, 2*cfg.SessionTTL)
	default:
		sessionRepo = session.NewMemoryRepository()
	}
	a.Sessions = session.NewStore(sessionRepo, cfg.SessionTTL, logger, session.WithMetrics(a.Metrics))

	a.Machine = conversation.NewMachine(a.Sessions, a.Allocator, catalog, logger, conversation.WithMetrics(a.Metrics))
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg config.Config) error {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancel()
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		a.Postgres = pool
		a.closers = append(a.closers, pool.Close)
		a.Repo = booking.NewPgRepository(pool, cfg.AllocationRetries)
	case config.StoreDriverSQLite:
		repo, err := booking.NewSQLiteRepository(cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
		a.closers = append(a.closers, func() { _ = repo.Close() })
		a.Repo = repo
	case config.StoreDriverMemory:
		a.Repo = booking.NewMemoryRepository()
	default:
		return fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
	return nil
}

// Close releases resources in reverse order of acquisition
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
