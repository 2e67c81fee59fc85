package repository

// Schema definitions for the Heron database.
// Compatible with both SQLite and PostgreSQL. Monetary values are stored as
// TEXT in canonical decimal form; REAL would silently corrupt fee amounts.

const schemaCustomers = `
CREATE TABLE IF NOT EXISTS customers (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    segment TEXT NOT NULL,
    annual_turnover TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_customers_tenant ON customers(tenant_id);
CREATE INDEX IF NOT EXISTS idx_customers_segment ON customers(tenant_id, segment);
`

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    type TEXT NOT NULL,
    amount TEXT NOT NULL,
    channel TEXT,
    atm_owner TEXT,
    pos_scope TEXT,
    transfer_scope TEXT,
    merchant TEXT,
    timestamp TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_tenant ON transactions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_transactions_customer ON transactions(tenant_id, customer_id);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(tenant_id, timestamp);
`

// Fee schedules, account products and KPI profiles share a shape: identity
// and filter columns plus the full document as JSON. The engines consume the
// decoded document; the columns exist for listing and reload queries.
const schemaFeeSchedules = `
CREATE TABLE IF NOT EXISTS fee_schedules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    version TEXT NOT NULL,
    config TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_fee_schedules_tenant ON fee_schedules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_fee_schedules_enabled ON fee_schedules(tenant_id, enabled);
`

const schemaAccountTypes = `
CREATE TABLE IF NOT EXISTS account_types (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    version TEXT NOT NULL DEFAULT '',
    config TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_account_types_tenant ON account_types(tenant_id);
CREATE INDEX IF NOT EXISTS idx_account_types_enabled ON account_types(tenant_id, enabled);
`

const schemaKPIProfiles = `
CREATE TABLE IF NOT EXISTS kpi_profiles (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    version TEXT NOT NULL DEFAULT '',
    config TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_kpi_profiles_tenant ON kpi_profiles(tenant_id);
CREATE INDEX IF NOT EXISTS idx_kpi_profiles_enabled ON kpi_profiles(tenant_id, enabled);
`

const schemaAssessments = `
CREATE TABLE IF NOT EXISTS assessments (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    account_type_id TEXT NOT NULL,
    total_fee TEXT NOT NULL,
    payload TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_tenant ON assessments(tenant_id);
CREATE INDEX IF NOT EXISTS idx_assessments_customer ON assessments(tenant_id, customer_id);
CREATE INDEX IF NOT EXISTS idx_assessments_timestamp ON assessments(tenant_id, timestamp);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCustomers,
		schemaTransactions,
		schemaFeeSchedules,
		schemaAccountTypes,
		schemaKPIProfiles,
		schemaAssessments,
	}
}
