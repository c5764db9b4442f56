// Package poolconfig loads the orchestrator's environment configuration:
// the search path the Plug-in Loader scans, the
// temporary-composite aging window, per-controller poll overrides, and the
// default change thresholds: struct tags
// decoded with envdecode, an optional .env file, and a YAML file for the
// naturally structured parts.
package poolconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/r3e-network/pool-orchestrator/pkg/logging"
)

// LoaderConfig controls the Plug-in Loader.
type LoaderConfig struct {
	PoolPath      []string `yaml:"pool_path"`
	PoolPathEnv   string   `yaml:"-" env:"POOL_PATH"`
	ProgramCache  int      `yaml:"program_cache_size" env:"POOL_PROGRAM_CACHE_SIZE"`
}

// SchedulerConfig controls the Motion/Acquisition Scheduler and the
// Temporary Composite housekeeping sweep.
type SchedulerConfig struct {
	DefaultPollIntervalMS int                    `yaml:"default_poll_interval_ms" env:"POOL_POLL_INTERVAL_MS"`
	PerControllerPollMS   map[string]int         `yaml:"per_controller_poll_ms"`
	TmpMaxInactiveSeconds int                    `yaml:"tmp_max_inactive_seconds" env:"POOL_TMP_MAX_INACTIVE_SECONDS"`
	HousekeepingCron      string                 `yaml:"housekeeping_cron" env:"POOL_HOUSEKEEPING_CRON"`
}

// ElementDefaultsConfig holds the default absolute change thresholds for
// motor positions and counter values. They are loaded from YAML and the
// environment only: no other package reads them, and created elements
// carry no change threshold.
type ElementDefaultsConfig struct {
	MotorPositionAbsChange float64 `yaml:"default_mot_pos_abs_change" env:"POOL_DEFAULT_MOTPOS_ABSCHANGE"`
	CounterValueAbsChange  float64 `yaml:"default_ct_val_abs_change" env:"POOL_DEFAULT_CTVAL_ABSCHANGE"`
}

// ConfigStoreConfig selects and parameterizes the external config-store
// adapter (internal/configstore).
type ConfigStoreConfig struct {
	Backend  string `yaml:"backend" env:"POOL_CONFIGSTORE_BACKEND"` // "memory" or "redis"
	RedisURL string `yaml:"redis_url" env:"POOL_CONFIGSTORE_REDIS_URL"`
}

// PersistenceConfig parameterizes the reference Postgres element-identity
// store (internal/persistence).
type PersistenceConfig struct {
	DSN            string `yaml:"dsn" env:"POOL_PERSISTENCE_DSN"`
	MigrateOnStart bool   `yaml:"migrate_on_start" env:"POOL_PERSISTENCE_MIGRATE_ON_START"`
}

// PublisherConfig parameterizes the reference WebSocket group-adapter fan
// out (internal/publisher), the out-of-scope distributed-objects
// middleware's event-facing side.
type PublisherConfig struct {
	ListenAddr string `yaml:"listen_addr" env:"POOL_PUBLISHER_LISTEN_ADDR"`
}

// DiagnosticsConfig parameterizes cmd/poold's /healthz, /readyz, /metrics
// surface. There is no control surface: administration happens through
// the external admin tooling, never through this process.
type DiagnosticsConfig struct {
	ListenAddr string `yaml:"listen_addr" env:"POOL_DIAG_LISTEN_ADDR"`
	JWTSecret  string `yaml:"-" env:"POOL_DIAG_JWT_SECRET"`
}

// Config is the top-level configuration structure.
type Config struct {
	Loader       LoaderConfig          `yaml:"loader"`
	Scheduler    SchedulerConfig       `yaml:"scheduler"`
	Defaults     ElementDefaultsConfig `yaml:"defaults"`
	ConfigStore  ConfigStoreConfig     `yaml:"config_store"`
	Persistence  PersistenceConfig     `yaml:"persistence"`
	Publisher    PublisherConfig       `yaml:"publisher"`
	Diagnostics  DiagnosticsConfig     `yaml:"diagnostics"`
	Logging      logging.Config        `yaml:"logging"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Loader: LoaderConfig{
			PoolPath:     []string{"./controllers"},
			ProgramCache: 128,
		},
		Scheduler: SchedulerConfig{
			DefaultPollIntervalMS: 50,
			PerControllerPollMS:   map[string]int{},
			TmpMaxInactiveSeconds: 300,
			HousekeepingCron:      "@every 30s",
		},
		Defaults: ElementDefaultsConfig{
			MotorPositionAbsChange: 0.05,
			CounterValueAbsChange:  0.01,
		},
		ConfigStore: ConfigStoreConfig{
			Backend: "memory",
		},
		Persistence: PersistenceConfig{
			MigrateOnStart: true,
		},
		Publisher: PublisherConfig{
			ListenAddr: ":9001",
		},
		Diagnostics: DiagnosticsConfig{
			ListenAddr: ":8080",
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads an optional .env file, an optional YAML config file (path
// given by POOL_CONFIG_FILE, defaulting to configs/poold.yaml), then
// applies environment-variable overrides.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	path := strings.TrimSpace(os.Getenv("POOL_CONFIG_FILE"))
	if path == "" {
		path = "configs/poold.yaml"
	}
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	cfg.normalize()
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// normalize reconciles the envdecode-only PoolPathEnv field (a
// colon-separated string, the shape an operator typically exports) with
// the YAML-native PoolPath list.
func (c *Config) normalize() {
	if c.Loader.PoolPathEnv != "" {
		c.Loader.PoolPath = strings.Split(c.Loader.PoolPathEnv, ":")
	}
}

// PollInterval returns the configured default poll interval as a
// time.Duration.
func (c *SchedulerConfig) PollInterval() time.Duration {
	return time.Duration(c.DefaultPollIntervalMS) * time.Millisecond
}

// MaxInactive returns the configured temporary-composite aging window.
func (c *SchedulerConfig) MaxInactive() time.Duration {
	return time.Duration(c.TmpMaxInactiveSeconds) * time.Second
}

// PerControllerPollIntervals converts the string-keyed YAML map (controller
// instance name -> milliseconds) to durations. The scheduler keys its
// overrides by controller id; cmd/poold does not call this method and
// starts the scheduler with an empty per-controller table, so these YAML
// overrides are parsed but not applied.
func (c *SchedulerConfig) PerControllerPollIntervals() map[string]time.Duration {
	out := make(map[string]time.Duration, len(c.PerControllerPollMS))
	for name, ms := range c.PerControllerPollMS {
		out[name] = time.Duration(ms) * time.Millisecond
	}
	return out
}

// ParseMillis is a small helper for env-string overrides expressed as
// plain integers rather than structured YAML (e.g. a k8s ConfigMap key).
func ParseMillis(raw string) (time.Duration, error) {
	ms, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("not an integer millisecond count: %q", raw)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
