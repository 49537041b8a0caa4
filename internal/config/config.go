package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the consensus engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Engine    EngineConfig    `yaml:"engine"`
	Cache     CacheConfig     `yaml:"cache"`
	Learning  LearningConfig  `yaml:"learning"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig controls HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// ProvidersConfig groups the external data sources the oracles consume.
type ProvidersConfig struct {
	Registry RegistryConfig `yaml:"registry"`
	Audit    AuditConfig    `yaml:"audit"`
}

// RegistryConfig configures the package-registry query provider.
type RegistryConfig struct {
	BaseURL string        `yaml:"baseURL"`
	Timeout time.Duration `yaml:"timeout"`
}

// AuditConfig configures the version-audit provider that reports the complete
// ever-existed version set.
type AuditConfig struct {
	BaseURL string        `yaml:"baseURL"`
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
}

// EngineConfig tunes the fusion engine.
type EngineConfig struct {
	OracleTimeout      time.Duration `yaml:"oracleTimeout"`
	ConsensusThreshold float64       `yaml:"consensusThreshold"`
}

// CacheConfig controls the shared result cache.
type CacheConfig struct {
	// Backend is "memory" or "redis".
	Backend    string        `yaml:"backend"`
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	ResultTTL  time.Duration `yaml:"resultTTL"`
	HistoryTTL time.Duration `yaml:"historyTTL"`
}

// LearningConfig controls the outcome history store.
type LearningConfig struct {
	Path       string `yaml:"path"`
	MaxRecords int    `yaml:"maxRecords"`
}

// MonitorConfig tunes the health-check loop and alert thresholds.
type MonitorConfig struct {
	PollInterval    time.Duration `yaml:"pollInterval"`
	HistorySize     int           `yaml:"historySize"`
	MaxIdle         time.Duration `yaml:"maxIdle"`
	MaxFailureRate  float64       `yaml:"maxFailureRate"`
	MaxAvgResponse  time.Duration `yaml:"maxAvgResponse"`
	MinOracleCover  float64       `yaml:"minOracleCoverage"`
	MinConfidence   float64       `yaml:"minConfidence"`
	MinSuccessCount int           `yaml:"minSuccessCount"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("PKG_SENTINEL_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Providers: ProvidersConfig{
			Registry: RegistryConfig{
				BaseURL: "https://registry.npmjs.org",
				Timeout: 5 * time.Second,
			},
			Audit: AuditConfig{
				Path:    "/api/v1/audit/versions",
				Timeout: 5 * time.Second,
			},
		},
		Engine: EngineConfig{
			OracleTimeout:      4 * time.Second,
			ConsensusThreshold: 0.6,
		},
		Cache: CacheConfig{
			Backend:    "memory",
			ResultTTL:  5 * time.Minute,
			HistoryTTL: 10 * time.Minute,
		},
		Learning: LearningConfig{
			Path:       "data/history",
			MaxRecords: 1000,
		},
		Monitor: MonitorConfig{
			PollInterval:    10 * time.Second,
			HistorySize:     500,
			MaxIdle:         5 * time.Minute,
			MaxFailureRate:  0.25,
			MaxAvgResponse:  3 * time.Second,
			MinOracleCover:  0.5,
			MinConfidence:   0.4,
			MinSuccessCount: 5,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PKG_SENTINEL_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("PKG_SENTINEL_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("PKG_SENTINEL_REGISTRY_URL"); v != "" {
		cfg.Providers.Registry.BaseURL = v
	}
	if v := os.Getenv("PKG_SENTINEL_AUDIT_URL"); v != "" {
		cfg.Providers.Audit.BaseURL = v
	}
	if v := os.Getenv("PKG_SENTINEL_ORACLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.OracleTimeout = d
		}
	}
	if v := os.Getenv("PKG_SENTINEL_CONSENSUS_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Engine.ConsensusThreshold = f
		}
	}
	if v := os.Getenv("PKG_SENTINEL_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("PKG_SENTINEL_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("PKG_SENTINEL_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("PKG_SENTINEL_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("PKG_SENTINEL_CACHE_RESULT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.ResultTTL = d
		}
	}
	if v := os.Getenv("PKG_SENTINEL_CACHE_HISTORY_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.HistoryTTL = d
		}
	}
	if v := os.Getenv("PKG_SENTINEL_LEARNING_PATH"); v != "" {
		cfg.Learning.Path = v
	}
	if v := os.Getenv("PKG_SENTINEL_LEARNING_MAX_RECORDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Learning.MaxRecords = n
		}
	}
	if v := os.Getenv("PKG_SENTINEL_MONITOR_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Monitor.PollInterval = d
		}
	}
	if v := os.Getenv("PKG_SENTINEL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PKG_SENTINEL_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}
