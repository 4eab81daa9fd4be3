// Package app wires the services of the gate attendance backend together.
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"gate-attendance-backend/config"
	"gate-attendance-backend/internal/alerts"
	"gate-attendance-backend/internal/api"
	"gate-attendance-backend/internal/clock"
	"gate-attendance-backend/internal/devices"
	"gate-attendance-backend/internal/directory"
	"gate-attendance-backend/internal/keylock"
	"gate-attendance-backend/internal/lasttag"
	"gate-attendance-backend/internal/ledger"
	"gate-attendance-backend/internal/report"
	"gate-attendance-backend/internal/store"
)

// App holds the assembled services and their background workers.
type App struct {
	Router   *gin.Engine
	Clock    *clock.Clock
	Store    store.Store
	Devices  *devices.Registry
	Ledger   *ledger.Ledger
	LastTag  lasttag.Store
	alerts   *alerts.WorkerPool
	sweeper  *devices.Sweeper
	sweepOn  bool
	closeTag func() error
}

// New builds the application on an open database. now may be nil for the
// system clock.
func New(cfg *config.Config, gormDB *gorm.DB, now func() time.Time) (*App, error) {
	clk, err := clock.New(cfg.Clock.Timezone, cfg.Clock.DeviceOffset, now)
	if err != nil {
		return nil, fmt.Errorf("invalid clock configuration: %w", err)
	}

	appStore := store.NewGormStore(gormDB, store.Options{OpTimeout: cfg.Database.OpTimeout})
	locks := keylock.New()

	slot, closeTag, err := newLastTag(cfg.LastTag)
	if err != nil {
		return nil, err
	}

	dir := directory.New(appStore)
	registry := devices.NewRegistry(appStore, locks, clk, cfg.Devices.LivenessTimeout)
	pool := alerts.NewWorkerPool(cfg.WorkerPool.Size, registry)
	led := ledger.New(appStore, dir, clk, locks, ledger.Options{
		MinScanInterval: cfg.Ledger.MinScanInterval,
		Alerts:          pool,
		Unmatched:       slot,
	})

	h := api.NewHandler(api.Deps{
		Directory: dir,
		Ledger:    led,
		Devices:   registry,
		Reports:   report.New(dir, appStore, clk),
		LastTag:   slot,
		Clock:     clk,
		DB:        appStore,
	})
	router := api.NewRouter(h, api.RouterConfig{
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		ReportCacheTTL:  time.Duration(cfg.Server.CacheTTLSeconds) * time.Second,
		CORSOrigins:     cfg.Server.CORSOrigins,
	})

	return &App{
		Router:   router,
		Clock:    clk,
		Store:    appStore,
		Devices:  registry,
		Ledger:   led,
		LastTag:  slot,
		alerts:   pool,
		sweeper:  devices.NewSweeper(registry, cfg.Devices.SweepInterval),
		sweepOn:  cfg.Devices.SweepOn(),
		closeTag: closeTag,
	}, nil
}

func newLastTag(cfg config.LastTagConfig) (lasttag.Store, func() error, error) {
	switch cfg.Backend {
	case "memory":
		return lasttag.NewMemory(cfg.TTL), func() error { return nil }, nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, nil, fmt.Errorf("last_tag.redis_addr is required for the redis backend")
		}
		client := lasttag.NewRedisClient(cfg.RedisAddr)
		log.Printf("last-tag slot backed by redis at %s", cfg.RedisAddr)
		return lasttag.NewRedis(client, cfg.RedisKey, cfg.TTL), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown last_tag.backend %q", cfg.Backend)
	}
}

// Run starts the alert workers and, when enabled, the liveness sweeper.
// It blocks until ctx is done.
func (a *App) Run(ctx context.Context) error {
	a.alerts.Start(ctx)

	g, ctx := errgroup.WithContext(ctx)
	if a.sweepOn {
		g.Go(func() error {
			a.sweeper.Run(ctx)
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	return g.Wait()
}

// Close releases the last-tag backend.
func (a *App) Close() error {
	return a.closeTag()
}
