// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openretail/magpie/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveProduct inserts or updates a catalog entry with retailer isolation.
func (r *SQLRepository) SaveProduct(ctx context.Context, retailerID string, p *domain.Product) error {
	if retailerID == "" {
		return fmt.Errorf("%w: retailerID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO products (id, retailer_id, name, price, stock, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, retailer_id) DO UPDATE SET
			name = excluded.name,
			price = excluded.price,
			stock = excluded.stock,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		p.ID, retailerID, p.Name, p.Price, p.Stock, now, now,
	)
	return err
}

// GetProduct retrieves a catalog entry with retailer isolation.
func (r *SQLRepository) GetProduct(ctx context.Context, retailerID string, productID string) (*domain.Product, error) {
	if retailerID == "" {
		return nil, fmt.Errorf("%w: retailerID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, retailer_id, name, price, stock, created_at, updated_at
		FROM products
		WHERE retailer_id = ? AND id = ?
	`

	var p domain.Product
	err := r.db.QueryRowContext(ctx, r.rebind(query), retailerID, productID).Scan(
		&p.ID, &p.RetailerID, &p.Name, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// ListProducts retrieves all catalog entries for a retailer.
func (r *SQLRepository) ListProducts(ctx context.Context, retailerID string) ([]*domain.Product, error) {
	if retailerID == "" {
		return nil, fmt.Errorf("%w: retailerID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, retailer_id, name, price, stock, created_at, updated_at
		FROM products
		WHERE retailer_id = ?
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), retailerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(
			&p.ID, &p.RetailerID, &p.Name, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		products = append(products, &p)
	}

	return products, rows.Err()
}

// SaveSale stores a sale with retailer isolation. Line items are stored as
// a JSON document alongside the totals.
func (r *SQLRepository) SaveSale(ctx context.Context, retailerID string, sale *domain.Sale) error {
	if retailerID == "" {
		return fmt.Errorf("%w: retailerID is required", ErrInvalidInput)
	}

	items, err := json.Marshal(sale.Items)
	if err != nil {
		return fmt.Errorf("failed to encode sale items: %w", err)
	}

	query := `
		INSERT INTO sales (
			id, retailer_id, customer_phone, cashier_id, items,
			subtotal, tax, total, payment_method, timestamp, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		sale.ID, retailerID, sale.CustomerPhone, sale.CashierID, string(items),
		sale.Subtotal, sale.Tax, sale.Total, sale.PaymentMethod,
		sale.Timestamp, sale.CreatedAt,
	)
	return err
}

// GetSale retrieves a sale by ID with retailer isolation.
func (r *SQLRepository) GetSale(ctx context.Context, retailerID string, saleID string) (*domain.Sale, error) {
	if retailerID == "" {
		return nil, fmt.Errorf("%w: retailerID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, retailer_id, customer_phone, cashier_id, items,
			   subtotal, tax, total, payment_method, timestamp, created_at
		FROM sales
		WHERE retailer_id = ? AND id = ?
	`

	sale, err := scanSale(r.db.QueryRowContext(ctx, r.rebind(query), retailerID, saleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sale, err
}

// ListSalesByCustomer retrieves a customer's sales newest-first.
func (r *SQLRepository) ListSalesByCustomer(ctx context.Context, retailerID string, phone string) ([]*domain.Sale, error) {
	if retailerID == "" {
		return nil, fmt.Errorf("%w: retailerID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, retailer_id, customer_phone, cashier_id, items,
			   subtotal, tax, total, payment_method, timestamp, created_at
		FROM sales
		WHERE retailer_id = ? AND customer_phone = ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), retailerID, phone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []*domain.Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}

	return sales, rows.Err()
}

// InsertAlerts stores a batch of alerts in one transaction. All alerts must
// belong to the given retailer.
func (r *SQLRepository) InsertAlerts(ctx context.Context, retailerID string, alerts []*domain.Alert) error {
	if retailerID == "" {
		return fmt.Errorf("%w: retailerID is required", ErrInvalidInput)
	}
	if len(alerts) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := r.rebind(`
		INSERT INTO fraud_alerts (
			id, retailer_id, transaction_id, severity, alert_type,
			description, details, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)

	for _, alert := range alerts {
		details, err := json.Marshal(alert.Details)
		if err != nil {
			return fmt.Errorf("failed to encode alert details: %w", err)
		}

		if _, err := tx.ExecContext(ctx, query,
			alert.ID, retailerID, alert.TransactionID,
			string(alert.Severity), string(alert.AlertType),
			alert.Description, string(details), alert.CreatedAt,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListOpenAlerts retrieves unresolved alerts newest-first.
func (r *SQLRepository) ListOpenAlerts(ctx context.Context, retailerID string, limit int) ([]*domain.Alert, error) {
	if retailerID == "" {
		return nil, fmt.Errorf("%w: retailerID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, retailer_id, transaction_id, severity, alert_type,
			   description, details, created_at, resolved_at
		FROM fraud_alerts
		WHERE retailer_id = ? AND resolved_at IS NULL
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), retailerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		var a domain.Alert
		var severity, alertType, details string
		var resolvedAt sql.NullTime

		if err := rows.Scan(
			&a.ID, &a.RetailerID, &a.TransactionID, &severity, &alertType,
			&a.Description, &details, &a.CreatedAt, &resolvedAt,
		); err != nil {
			return nil, err
		}

		a.Severity = domain.Severity(severity)
		a.AlertType = domain.SignalType(alertType)
		if details != "" && details != "null" {
			json.Unmarshal([]byte(details), &a.Details)
		}
		if resolvedAt.Valid {
			t := resolvedAt.Time
			a.ResolvedAt = &t
		}

		alerts = append(alerts, &a)
	}

	return alerts, rows.Err()
}

// ResolveAlert marks an alert reviewed by setting resolved_at. The row is
// retained for audit.
func (r *SQLRepository) ResolveAlert(ctx context.Context, retailerID string, alertID string) error {
	if retailerID == "" {
		return fmt.Errorf("%w: retailerID is required", ErrInvalidInput)
	}

	query := `
		UPDATE fraud_alerts
		SET resolved_at = ?
		WHERE retailer_id = ? AND id = ? AND resolved_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), retailerID, alertID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteAlert removes an alert row entirely.
func (r *SQLRepository) DeleteAlert(ctx context.Context, retailerID string, alertID string) error {
	if retailerID == "" {
		return fmt.Errorf("%w: retailerID is required", ErrInvalidInput)
	}

	query := `DELETE FROM fraud_alerts WHERE retailer_id = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), retailerID, alertID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveRuleConfig stores a custom rule configuration with retailer isolation.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, retailerID string, rule *domain.RuleConfig) error {
	if retailerID == "" {
		return fmt.Errorf("%w: retailerID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO rule_configs (
			id, retailer_id, name, description, version, expression,
			severity, signal_type, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, retailer_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			severity = excluded.severity,
			signal_type = excluded.signal_type,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, retailerID, rule.Name, rule.Description, rule.Version,
		rule.Expression, string(rule.Severity), string(rule.SignalType),
		enabled, now, now,
	)
	return err
}

// GetRuleConfig retrieves a custom rule configuration with retailer isolation.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, retailerID string, ruleID string) (*domain.RuleConfig, error) {
	if retailerID == "" {
		return nil, fmt.Errorf("%w: retailerID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, retailer_id, name, description, version, expression,
			   severity, signal_type, enabled
		FROM rule_configs
		WHERE retailer_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var cfg domain.RuleConfig
	var severity, signalType string
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), retailerID, ruleID).Scan(
		&cfg.ID, &cfg.RetailerID, &cfg.Name, &cfg.Description, &cfg.Version,
		&cfg.Expression, &severity, &signalType, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.Severity = domain.Severity(severity)
	cfg.SignalType = domain.SignalType(signalType)
	cfg.Enabled = enabled == 1

	return &cfg, nil
}

// ListRuleConfigs retrieves all active custom rules for a retailer.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context, retailerID string) ([]*domain.RuleConfig, error) {
	if retailerID == "" {
		return nil, fmt.Errorf("%w: retailerID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, retailer_id, name, description, version, expression,
			   severity, signal_type, enabled
		FROM rule_configs
		WHERE retailer_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), retailerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		var cfg domain.RuleConfig
		var severity, signalType string
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.RetailerID, &cfg.Name, &cfg.Description, &cfg.Version,
			&cfg.Expression, &severity, &signalType, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Severity = domain.Severity(severity)
		cfg.SignalType = domain.SignalType(signalType)
		cfg.Enabled = enabled == 1
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (*domain.Sale, error) {
	var sale domain.Sale
	var phone, cashier sql.NullString
	var items string

	if err := row.Scan(
		&sale.ID, &sale.RetailerID, &phone, &cashier, &items,
		&sale.Subtotal, &sale.Tax, &sale.Total, &sale.PaymentMethod,
		&sale.Timestamp, &sale.CreatedAt,
	); err != nil {
		return nil, err
	}

	sale.CustomerPhone = phone.String
	sale.CashierID = cashier.String
	if err := json.Unmarshal([]byte(items), &sale.Items); err != nil {
		return nil, fmt.Errorf("failed to parse sale items: %w", err)
	}

	return &sale, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
