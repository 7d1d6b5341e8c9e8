// Package config assembles process configuration: env vars read through
// internal/utils, plus an optional YAML file read first so env vars
// still win as the final override layer.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pipedag/pipedag-engine/internal/pkg/logger"
	"github.com/pipedag/pipedag-engine/internal/utils"
)

// Config covers every backend this process can be wired against except
// Temporal: the table store, the lock manager, OTel export and the
// introspection HTTP server. Temporal's own address/namespace/task queue
// are read directly by temporalpipe.LoadConfig, since that package is the
// only thing that ever dials or polls it — keeping a second copy here
// would just invite the two to drift.
type Config struct {
	TableStoreDriver string // "memory", "postgres", or "sqlite"
	TableStoreDSN    string

	LockManagerBackend string // "noop", "file", or "coordinator"
	LockFileBaseDir    string
	RedisAddr          string

	OtelServiceName string
	OtelEnvironment string

	HTTPAddr string
}

// yamlOverlay is the optional pipedag.yaml shape; zero-value fields leave
// the built-in defaults (and any subsequent env var) in place.
type yamlOverlay struct {
	TableStoreDriver   string `yaml:"table_store_driver"`
	TableStoreDSN      string `yaml:"table_store_dsn"`
	LockManagerBackend string `yaml:"lock_manager_backend"`
	LockFileBaseDir    string `yaml:"lock_file_base_dir"`
	RedisAddr          string `yaml:"redis_addr"`
	OtelServiceName    string `yaml:"otel_service_name"`
	OtelEnvironment    string `yaml:"otel_environment"`
	HTTPAddr           string `yaml:"http_addr"`
}

// LoadConfig reads pipedag.yaml (if PIPEDAG_CONFIG_FILE points at one, or
// it exists in the working directory) as a base layer, then lets every
// PIPEDAG_* env var override it, logging each fallback to a default
// through utils.GetEnv.
func LoadConfig(log *logger.Logger) Config {
	overlay := loadYAMLOverlay(log)

	return Config{
		TableStoreDriver:   utils.GetEnv("PIPEDAG_TABLE_STORE_DRIVER", orDefault(overlay.TableStoreDriver, "memory"), log),
		TableStoreDSN:      utils.GetEnv("PIPEDAG_TABLE_STORE_DSN", overlay.TableStoreDSN, log),
		LockManagerBackend: utils.GetEnv("PIPEDAG_LOCK_MANAGER", orDefault(overlay.LockManagerBackend, "noop"), log),
		LockFileBaseDir:    utils.GetEnv("PIPEDAG_LOCK_FILE_DIR", orDefault(overlay.LockFileBaseDir, ".pipedag/locks"), log),
		RedisAddr:          utils.GetEnv("PIPEDAG_REDIS_ADDR", orDefault(overlay.RedisAddr, "localhost:6379"), log),
		OtelServiceName:    utils.GetEnv("OTEL_SERVICE_NAME", orDefault(overlay.OtelServiceName, "pipedag-engine"), log),
		OtelEnvironment:    utils.GetEnv("PIPEDAG_ENVIRONMENT", orDefault(overlay.OtelEnvironment, "development"), log),
		HTTPAddr:           utils.GetEnv("PIPEDAG_HTTP_ADDR", orDefault(overlay.HTTPAddr, ":8090"), log),
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func loadYAMLOverlay(log *logger.Logger) yamlOverlay {
	path := utils.GetEnv("PIPEDAG_CONFIG_FILE", "pipedag.yaml", log)
	data, err := os.ReadFile(path)
	if err != nil {
		return yamlOverlay{}
	}
	var overlay yamlOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		if log != nil {
			log.Warn("failed to parse config overlay, ignoring it", "path", path, "error", err)
		}
		return yamlOverlay{}
	}
	return overlay
}

// TemporalHeartbeatTimeout is the activity heartbeat cadence used by
// internal/temporalpipe; kept here since it's a configuration constant,
// not a per-deployment override.
const TemporalHeartbeatTimeout = 30 * time.Second
