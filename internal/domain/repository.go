package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require retailerID for strict per-retailer isolation.
type Repository interface {
	// Catalog operations
	SaveProduct(ctx context.Context, retailerID string, p *Product) error
	GetProduct(ctx context.Context, retailerID string, productID string) (*Product, error)
	ListProducts(ctx context.Context, retailerID string) ([]*Product, error)

	// Sale operations
	SaveSale(ctx context.Context, retailerID string, sale *Sale) error
	GetSale(ctx context.Context, retailerID string, saleID string) (*Sale, error)
	ListSalesByCustomer(ctx context.Context, retailerID string, phone string) ([]*Sale, error)

	// Alert operations
	InsertAlerts(ctx context.Context, retailerID string, alerts []*Alert) error
	ListOpenAlerts(ctx context.Context, retailerID string, limit int) ([]*Alert, error)
	ResolveAlert(ctx context.Context, retailerID string, alertID string) error
	DeleteAlert(ctx context.Context, retailerID string, alertID string) error

	// Custom rule configuration operations
	SaveRuleConfig(ctx context.Context, retailerID string, rule *RuleConfig) error
	GetRuleConfig(ctx context.Context, retailerID string, ruleID string) (*RuleConfig, error)
	ListRuleConfigs(ctx context.Context, retailerID string) ([]*RuleConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `yaml:"driver"`

	// SQLite specific
	SQLitePath string `yaml:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `yaml:"postgres_host"`
	PostgresPort     int    `yaml:"postgres_port"`
	PostgresUser     string `yaml:"postgres_user"`
	PostgresPassword string `yaml:"postgres_password"`
	PostgresDB       string `yaml:"postgres_db"`
	PostgresSSLMode  string `yaml:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}
