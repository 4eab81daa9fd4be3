package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Clock      ClockConfig      `yaml:"clock"`
	Devices    DevicesConfig    `yaml:"devices"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	LastTag    LastTagConfig    `yaml:"last_tag"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// WorkerPoolConfig holds the configuration for the tamper alert worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	Mode            string   `yaml:"mode"` // gin mode: debug, release or test
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
	CacheTTLSeconds int      `yaml:"cache_ttl_seconds"`
	CORSOrigins     []string `yaml:"cors_origins"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string        `yaml:"driver"` // postgres or sqlite
	DSN                    string        `yaml:"dsn"`
	MaxOpenConns           int           `yaml:"max_open_conns"`
	MaxIdleConns           int           `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int           `yaml:"conn_max_lifetime_minutes"`
	OpTimeoutMS            int           `yaml:"op_timeout_ms"`
	OpTimeout              time.Duration `yaml:"-"`
	LogLevel               string        `yaml:"log_level"`
}

// ClockConfig defines the canonical civil timezone.
type ClockConfig struct {
	Timezone            string        `yaml:"timezone"`
	DeviceOffsetMinutes *int          `yaml:"device_offset_minutes"`
	DeviceOffset        time.Duration `yaml:"-"`
}

// DevicesConfig holds liveness tracking settings.
type DevicesConfig struct {
	LivenessTimeoutSeconds int           `yaml:"liveness_timeout_seconds"`
	LivenessTimeout        time.Duration `yaml:"-"`
	SweepEnabled           *bool         `yaml:"sweep_enabled"`
	SweepIntervalSeconds   int           `yaml:"sweep_interval_seconds"`
	SweepInterval          time.Duration `yaml:"-"`
}

// LedgerConfig holds scan processing settings.
type LedgerConfig struct {
	MinScanIntervalSeconds int           `yaml:"min_scan_interval_seconds"`
	MinScanInterval        time.Duration `yaml:"-"`
}

// LastTagConfig selects the backend of the last-scanned-tag slot.
type LastTagConfig struct {
	Backend    string        `yaml:"backend"` // memory or redis
	TTLSeconds int           `yaml:"ttl_seconds"`
	TTL        time.Duration `yaml:"-"`
	RedisAddr  string        `yaml:"redis_addr"`
	RedisKey   string        `yaml:"redis_key"`
}

// SweepOn reports whether the periodic liveness sweep should run.
func (d DevicesConfig) SweepOn() bool {
	return d.SweepEnabled == nil || *d.SweepEnabled
}

// Load reads the configuration from the given path. A missing file is not
// an error; defaults and environment overrides still apply.
func Load(path string) (*Config, error) {
	var cfg Config

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
		log.Printf("config file %s not found; using defaults and environment", path)
	default:
		return nil, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Database.Driver = getEnv("DATABASE_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = getEnv("DATABASE_DSN", cfg.Database.DSN)
	cfg.Clock.Timezone = getEnv("TIMEZONE", cfg.Clock.Timezone)
	cfg.LastTag.Backend = getEnv("LASTTAG_BACKEND", cfg.LastTag.Backend)
	cfg.LastTag.RedisAddr = getEnv("REDIS_ADDR", cfg.LastTag.RedisAddr)
	cfg.Server.Mode = getEnv("GIN_MODE", cfg.Server.Mode)
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		} else {
			log.Printf("ignoring invalid SERVER_PORT %q", v)
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 20
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 10
	}
	if cfg.Server.CacheTTLSeconds < 0 {
		cfg.Server.CacheTTLSeconds = 0
	} else if cfg.Server.CacheTTLSeconds == 0 {
		cfg.Server.CacheTTLSeconds = 15
	}

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.MaxOpenConns <= 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns <= 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.OpTimeoutMS <= 0 {
		cfg.Database.OpTimeoutMS = 3000
	}
	cfg.Database.OpTimeout = time.Duration(cfg.Database.OpTimeoutMS) * time.Millisecond
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}

	if cfg.Clock.Timezone == "" {
		cfg.Clock.Timezone = "Asia/Jakarta"
	}
	offset := 420
	if cfg.Clock.DeviceOffsetMinutes != nil {
		offset = *cfg.Clock.DeviceOffsetMinutes
	}
	cfg.Clock.DeviceOffset = time.Duration(offset) * time.Minute

	if cfg.Devices.LivenessTimeoutSeconds <= 0 {
		cfg.Devices.LivenessTimeoutSeconds = 120
	}
	cfg.Devices.LivenessTimeout = time.Duration(cfg.Devices.LivenessTimeoutSeconds) * time.Second
	if cfg.Devices.SweepIntervalSeconds <= 0 {
		cfg.Devices.SweepIntervalSeconds = 30
	}
	cfg.Devices.SweepInterval = time.Duration(cfg.Devices.SweepIntervalSeconds) * time.Second

	if cfg.Ledger.MinScanIntervalSeconds < 0 {
		cfg.Ledger.MinScanIntervalSeconds = 0
	}
	cfg.Ledger.MinScanInterval = time.Duration(cfg.Ledger.MinScanIntervalSeconds) * time.Second

	cfg.LastTag.Backend = strings.ToLower(strings.TrimSpace(cfg.LastTag.Backend))
	if cfg.LastTag.Backend == "" {
		cfg.LastTag.Backend = "memory"
	}
	if cfg.LastTag.TTLSeconds <= 0 {
		cfg.LastTag.TTLSeconds = 300
	}
	cfg.LastTag.TTL = time.Duration(cfg.LastTag.TTLSeconds) * time.Second
	if cfg.LastTag.RedisKey == "" {
		cfg.LastTag.RedisKey = "gate:last-tag"
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
