package domain

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete Magpie configuration.
type Config struct {
	// Server settings
	Server ServerConfig `yaml:"server"`

	// Engine thresholds for the built-in checks
	Engine EngineConfig `yaml:"engine"`

	// Component configurations
	Repository RepositoryConfig `yaml:"repository"`
	Cache      CacheConfig      `yaml:"cache"`
	EventBus   EventBusConfig   `yaml:"event_bus"`

	// Observability
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"read_timeout"`  // seconds
	WriteTimeout int    `yaml:"write_timeout"` // seconds
}

// EngineConfig holds the detection thresholds. The built-in checks read
// these instead of hard-coded literals so they are tunable per deployment.
type EngineConfig struct {
	// BulkItemCount is the inclusive item-count floor for the skip-scan
	// check.
	BulkItemCount int `yaml:"bulk_item_count"`

	// BulkAvgPrice is the per-item average (currency units) below which a
	// bulk basket is suspicious.
	BulkAvgPrice float64 `yaml:"bulk_avg_price"`

	// DiscountPercent is the strict percentage threshold for the per-line
	// discount check.
	DiscountPercent float64 `yaml:"discount_percent"`

	// CashCeiling is the strict total above which a cash sale is flagged.
	CashCeiling float64 `yaml:"cash_ceiling"`

	// OffHoursStart/OffHoursEnd bound the off-hours window: a sale fires
	// when hour >= start OR hour < end.
	OffHoursStart int `yaml:"off_hours_start"`
	OffHoursEnd   int `yaml:"off_hours_end"`

	// Currency is the symbol used when interpolating amounts into signal
	// descriptions.
	Currency string `yaml:"currency"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ServiceName  string `yaml:"service_name"`
	ExporterType string `yaml:"exporter_type"` // stdout, otlp
	Endpoint     string `yaml:"endpoint"`
}

// DefaultConfig returns the single-node default configuration:
// SQLite storage, in-memory cache, channel bus.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Engine: DefaultEngineConfig(),
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./magpie.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "magpie",
		},
	}
}

// DefaultEngineConfig returns the stock detection thresholds.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BulkItemCount:   5,
		BulkAvgPrice:    20,
		DiscountPercent: 50,
		CashCeiling:     5000,
		OffHoursStart:   22,
		OffHoursEnd:     6,
		Currency:        "₹",
	}
}

// DistributedConfig returns a configuration for multi-node deployments:
// PostgreSQL storage, two-phase Redis cache, NATS bus.
func DistributedConfig() *Config {
	cfg := DefaultConfig()
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "magpie",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}

// LoadConfig reads a YAML config file over the defaults. A missing path
// returns the defaults unchanged.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}
