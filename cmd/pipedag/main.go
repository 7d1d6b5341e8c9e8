// Command pipedag is the process entrypoint: it wires config, logging,
// tracing, the table store, the lock manager, the stage registry, the
// materialisation controller and stage committer, then — depending on
// RUN_SERVER / RUN_WORKER — serves the read-only introspection HTTP API
// and/or polls Temporal for materialise_task work, as a single dual-mode
// launcher over one app lifecycle.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/pipedag/pipedag-engine/internal/config"
	"github.com/pipedag/pipedag-engine/internal/httpapi"
	"github.com/pipedag/pipedag-engine/internal/lockmanager"
	"github.com/pipedag/pipedag-engine/internal/materializer"
	"github.com/pipedag/pipedag-engine/internal/pkg/logger"
	"github.com/pipedag/pipedag-engine/internal/stagecommit"
	"github.com/pipedag/pipedag-engine/internal/stageregistry"
	"github.com/pipedag/pipedag-engine/internal/tablestore"
	"github.com/pipedag/pipedag-engine/internal/telemetry"
	"github.com/pipedag/pipedag-engine/internal/temporalpipe"
)

// app bundles every long-lived component so main() stays a thin
// dual-mode launcher.
type app struct {
	log        *logger.Logger
	cfg        config.Config
	registry   *stageregistry.Registry
	store      tablestore.Store
	locks      lockmanager.Backend
	controller *materializer.Controller
	committer  *stagecommit.Committer
	shutdownFn func(context.Context) error
}

func newApp(ctx context.Context) (*app, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("loading configuration...")
	cfg := config.LoadConfig(log)

	shutdownFn := telemetry.InitOTel(ctx, log, telemetry.OtelConfig{
		ServiceName: cfg.OtelServiceName,
		Environment: cfg.OtelEnvironment,
	})

	store, err := wireTableStore(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("init table store: %w", err)
	}

	locks, err := wireLockManager(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("init lock manager: %w", err)
	}

	registry := stageregistry.New()
	controller := materializer.New(registry, store, log)
	committer := stagecommit.New(registry, store, log)

	return &app{
		log:        log,
		cfg:        cfg,
		registry:   registry,
		store:      store,
		locks:      locks,
		controller: controller,
		committer:  committer,
		shutdownFn: shutdownFn,
	}, nil
}

func wireTableStore(cfg config.Config, log *logger.Logger) (tablestore.Store, error) {
	switch strings.ToLower(cfg.TableStoreDriver) {
	case "", "memory", "mem":
		return tablestore.NewMemStore(log), nil
	case "postgres":
		db, err := gorm.Open(postgres.Open(cfg.TableStoreDSN), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return tablestore.NewGormStore(db, log)
	case "sqlite":
		dsn := cfg.TableStoreDSN
		if dsn == "" {
			dsn = "pipedag.sqlite3"
		}
		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return tablestore.NewGormStore(db, log)
	default:
		return nil, fmt.Errorf("unknown table store driver %q", cfg.TableStoreDriver)
	}
}

func wireLockManager(cfg config.Config, log *logger.Logger) (lockmanager.Backend, error) {
	switch strings.ToLower(cfg.LockManagerBackend) {
	case "", "noop":
		return lockmanager.NewNoLockManager(log), nil
	case "file":
		return lockmanager.NewFileLockManager(cfg.LockFileBaseDir, log)
	case "coordinator", "redis":
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		return lockmanager.NewCoordinatorLockManager(rdb, log), nil
	default:
		return nil, fmt.Errorf("unknown lock manager backend %q", cfg.LockManagerBackend)
	}
}

func (a *app) close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.shutdownFn != nil {
		if err := a.shutdownFn(ctx); err != nil {
			a.log.Warn("otel shutdown failed", "error", err)
		}
	}
	if a.log != nil {
		a.log.Sync()
	}
}

func envTrue(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		fmt.Printf("failed to initialize pipedag: %v\n", err)
		os.Exit(1)
	}
	defer a.close(context.Background())

	runServer := envTrue("RUN_SERVER", true)
	runWorker := envTrue("RUN_WORKER", false)

	if runWorker {
		tc, err := temporalpipe.NewClient(ctx, a.log)
		if err != nil {
			a.log.Warn("temporal client unavailable, worker disabled", "error", err)
		} else {
			runner, err := temporalpipe.NewRunner(a.log, tc, a.controller, a.registry)
			if err != nil {
				a.log.Warn("temporal worker init failed", "error", err)
			} else if err := runner.Start(ctx); err != nil {
				a.log.Warn("temporal worker failed to start", "error", err)
			}
		}
	}

	if runServer {
		handlers := httpapi.NewHandlers(a.registry, a.locks)
		server := httpapi.NewServer(httpapi.RouterConfig{Handlers: handlers}, a.cfg.HTTPAddr, a.log)
		a.log.Info("pipedag introspection server starting", "addr", a.cfg.HTTPAddr)
		if err := server.Run(ctx); err != nil {
			a.log.Warn("introspection server stopped with error", "error", err)
		}
		return
	}

	// Worker-only process: block until signalled.
	<-ctx.Done()
}
