package repository

// Schema definitions for the Magpie database.
// Compatible with both SQLite and PostgreSQL.

const schemaProducts = `
CREATE TABLE IF NOT EXISTS products (
    id TEXT NOT NULL,
    retailer_id TEXT NOT NULL,
    name TEXT NOT NULL,
    price REAL NOT NULL,
    stock INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, retailer_id)
);

CREATE INDEX IF NOT EXISTS idx_products_retailer ON products(retailer_id);
`

const schemaSales = `
CREATE TABLE IF NOT EXISTS sales (
    id TEXT PRIMARY KEY,
    retailer_id TEXT NOT NULL,
    customer_phone TEXT,
    cashier_id TEXT,
    items TEXT NOT NULL,
    subtotal REAL NOT NULL,
    tax REAL NOT NULL DEFAULT 0,
    total REAL NOT NULL,
    payment_method TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sales_retailer ON sales(retailer_id);
CREATE INDEX IF NOT EXISTS idx_sales_customer ON sales(retailer_id, customer_phone);
CREATE INDEX IF NOT EXISTS idx_sales_timestamp ON sales(retailer_id, timestamp);
`

const schemaFraudAlerts = `
CREATE TABLE IF NOT EXISTS fraud_alerts (
    id TEXT PRIMARY KEY,
    retailer_id TEXT NOT NULL,
    transaction_id TEXT NOT NULL,
    severity TEXT NOT NULL,
    alert_type TEXT NOT NULL,
    description TEXT NOT NULL,
    details TEXT,
    created_at TIMESTAMP NOT NULL,
    resolved_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_fraud_alerts_retailer ON fraud_alerts(retailer_id);
CREATE INDEX IF NOT EXISTS idx_fraud_alerts_open ON fraud_alerts(retailer_id, resolved_at, created_at);
CREATE INDEX IF NOT EXISTS idx_fraud_alerts_tx ON fraud_alerts(retailer_id, transaction_id);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT NOT NULL,
    retailer_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    severity TEXT NOT NULL,
    signal_type TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, retailer_id, version)
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_retailer ON rule_configs(retailer_id);
CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(retailer_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaProducts,
		schemaSales,
		schemaFraudAlerts,
		schemaRuleConfigs,
	}
}
