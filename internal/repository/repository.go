// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/heron/internal/domain"
)

var (
	ErrNotFound     = domain.ErrNotFound
	ErrInvalidInput = domain.ErrInvalidInput
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

// SaveCustomer upserts a customer profile with tenant isolation.
func (r *SQLRepository) SaveCustomer(ctx context.Context, tenantID string, c *domain.Customer) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	var turnover sql.NullString
	if c.AnnualTurnover != nil {
		turnover = sql.NullString{String: c.AnnualTurnover.String(), Valid: true}
	}

	now := time.Now().UTC()
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := `
		INSERT INTO customers (
			id, tenant_id, segment, annual_turnover, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			segment = excluded.segment,
			annual_turnover = excluded.annual_turnover,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		c.ID, tenantID, c.Segment, turnover, createdAt, now,
	)
	return err
}

// GetCustomer retrieves a customer by ID with tenant isolation.
func (r *SQLRepository) GetCustomer(ctx context.Context, tenantID string, customerID string) (*domain.Customer, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, segment, annual_turnover, created_at, updated_at
		FROM customers
		WHERE tenant_id = ? AND id = ?
	`

	c, err := scanCustomer(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, customerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// ListCustomers retrieves all customers for a tenant, ordered by ID so
// portfolio runs see a stable book.
func (r *SQLRepository) ListCustomers(ctx context.Context, tenantID string) ([]*domain.Customer, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, segment, annual_turnover, created_at, updated_at
		FROM customers
		WHERE tenant_id = ?
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []*domain.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (*domain.Customer, error) {
	var c domain.Customer
	var turnover sql.NullString

	if err := row.Scan(
		&c.ID, &c.TenantID, &c.Segment, &turnover, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if turnover.Valid {
		d, err := decimal.NewFromString(turnover.String)
		if err != nil {
			return nil, fmt.Errorf("customer %s: bad annual_turnover %q: %w", c.ID, turnover.String, err)
		}
		c.AnnualTurnover = &d
	}
	return &c, nil
}

// SaveTransaction stores a transaction with tenant isolation.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tenantID string, tx *domain.Transaction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, r.rebind(insertTransactionQuery),
		tx.ID, tenantID, tx.CustomerID, tx.Type, tx.Amount.String(),
		tx.Channel, tx.ATMOwner, tx.POSScope, tx.TransferScope, tx.Merchant,
		tx.Timestamp, createdAt,
	)
	return err
}

const insertTransactionQuery = `
	INSERT INTO transactions (
		id, tenant_id, customer_id, type, amount,
		channel, atm_owner, pos_scope, transfer_scope, merchant,
		timestamp, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// SaveTransactions stores a batch atomically; replay loads either land whole
// or not at all.
func (r *SQLRepository) SaveTransactions(ctx context.Context, tenantID string, txs []*domain.Transaction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if len(txs) == 0 {
		return nil
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.PrepareContext(ctx, r.rebind(insertTransactionQuery))
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, tx := range txs {
		createdAt := tx.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := stmt.ExecContext(ctx,
			tx.ID, tenantID, tx.CustomerID, tx.Type, tx.Amount.String(),
			tx.Channel, tx.ATMOwner, tx.POSScope, tx.TransferScope, tx.Merchant,
			tx.Timestamp, createdAt,
		); err != nil {
			return fmt.Errorf("transaction %s: %w", tx.ID, err)
		}
	}

	return dbTx.Commit()
}

// GetTransactionsByCustomer retrieves a customer's history in timestamp
// order, oldest first, so feature extraction sees the ledger as it happened.
func (r *SQLRepository) GetTransactionsByCustomer(ctx context.Context, tenantID string, customerID string) ([]*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, customer_id, type, amount,
			   channel, atm_owner, pos_scope, transfer_scope, merchant,
			   timestamp, created_at
		FROM transactions
		WHERE tenant_id = ? AND customer_id = ?
		ORDER BY timestamp, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var amount string

		if err := rows.Scan(
			&tx.ID, &tx.TenantID, &tx.CustomerID, &tx.Type, &amount,
			&tx.Channel, &tx.ATMOwner, &tx.POSScope, &tx.TransferScope, &tx.Merchant,
			&tx.Timestamp, &tx.CreatedAt,
		); err != nil {
			return nil, err
		}

		tx.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: bad amount %q: %w", tx.ID, amount, err)
		}

		transactions = append(transactions, &tx)
	}
	return transactions, rows.Err()
}

// SaveFeeSchedule upserts a fee schedule document with tenant isolation.
// The schedule is validated before it touches the database; a schedule that
// cannot price is never persisted.
func (r *SQLRepository) SaveFeeSchedule(ctx context.Context, tenantID string, s *domain.FeeSchedule) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return r.saveDocument(ctx, "fee_schedules", tenantID, s.ID, s.Name, s.Version, s.Enabled, s)
}

// GetFeeSchedule retrieves an enabled fee schedule by ID.
func (r *SQLRepository) GetFeeSchedule(ctx context.Context, tenantID string, scheduleID string) (*domain.FeeSchedule, error) {
	var s domain.FeeSchedule
	if err := r.getDocument(ctx, "fee_schedules", tenantID, scheduleID, &s); err != nil {
		return nil, err
	}
	s.TenantID = tenantID
	return &s, nil
}

// ListFeeSchedules retrieves all enabled fee schedules for a tenant.
func (r *SQLRepository) ListFeeSchedules(ctx context.Context, tenantID string) ([]*domain.FeeSchedule, error) {
	blobs, err := r.listDocuments(ctx, "fee_schedules", tenantID)
	if err != nil {
		return nil, err
	}

	schedules := make([]*domain.FeeSchedule, 0, len(blobs))
	for _, blob := range blobs {
		var s domain.FeeSchedule
		if err := json.Unmarshal(blob, &s); err != nil {
			return nil, fmt.Errorf("failed to parse fee schedule: %w", err)
		}
		s.TenantID = tenantID
		schedules = append(schedules, &s)
	}
	return schedules, nil
}

// SaveAccountConfig upserts an account product with tenant isolation.
func (r *SQLRepository) SaveAccountConfig(ctx context.Context, tenantID string, a *domain.AccountConfig) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return r.saveDocument(ctx, "account_types", tenantID, a.ID, a.Name, "", a.Enabled, a)
}

// GetAccountConfig retrieves an enabled account product by ID.
func (r *SQLRepository) GetAccountConfig(ctx context.Context, tenantID string, accountID string) (*domain.AccountConfig, error) {
	var a domain.AccountConfig
	if err := r.getDocument(ctx, "account_types", tenantID, accountID, &a); err != nil {
		return nil, err
	}
	a.TenantID = tenantID
	return &a, nil
}

// ListAccountConfigs retrieves all enabled account products for a tenant.
func (r *SQLRepository) ListAccountConfigs(ctx context.Context, tenantID string) ([]*domain.AccountConfig, error) {
	blobs, err := r.listDocuments(ctx, "account_types", tenantID)
	if err != nil {
		return nil, err
	}

	accounts := make([]*domain.AccountConfig, 0, len(blobs))
	for _, blob := range blobs {
		var a domain.AccountConfig
		if err := json.Unmarshal(blob, &a); err != nil {
			return nil, fmt.Errorf("failed to parse account config: %w", err)
		}
		a.TenantID = tenantID
		accounts = append(accounts, &a)
	}
	return accounts, nil
}

// SaveKPIProfile upserts a KPI profile with tenant isolation. Structural
// validation happens here; formula compilation stays with the KPI engine.
func (r *SQLRepository) SaveKPIProfile(ctx context.Context, tenantID string, p *domain.KPIProfile) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return r.saveDocument(ctx, "kpi_profiles", tenantID, p.ID, p.Name, p.Version, p.Enabled, p)
}

// GetKPIProfile retrieves an enabled KPI profile by ID.
func (r *SQLRepository) GetKPIProfile(ctx context.Context, tenantID string, profileID string) (*domain.KPIProfile, error) {
	var p domain.KPIProfile
	if err := r.getDocument(ctx, "kpi_profiles", tenantID, profileID, &p); err != nil {
		return nil, err
	}
	p.TenantID = tenantID
	return &p, nil
}

// ListKPIProfiles retrieves all enabled KPI profiles for a tenant.
func (r *SQLRepository) ListKPIProfiles(ctx context.Context, tenantID string) ([]*domain.KPIProfile, error) {
	blobs, err := r.listDocuments(ctx, "kpi_profiles", tenantID)
	if err != nil {
		return nil, err
	}

	profiles := make([]*domain.KPIProfile, 0, len(blobs))
	for _, blob := range blobs {
		var p domain.KPIProfile
		if err := json.Unmarshal(blob, &p); err != nil {
			return nil, fmt.Errorf("failed to parse kpi profile: %w", err)
		}
		p.TenantID = tenantID
		profiles = append(profiles, &p)
	}
	return profiles, nil
}

// DeleteKPIProfile soft-deletes a profile by setting enabled = 0.
func (r *SQLRepository) DeleteKPIProfile(ctx context.Context, tenantID string, profileID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE kpi_profiles
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, profileID)
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

// SaveAssessment stores an assessment result with tenant isolation.
func (r *SQLRepository) SaveAssessment(ctx context.Context, tenantID string, a *domain.Assessment) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode assessment: %w", err)
	}

	timestamp := a.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO assessments (
			id, tenant_id, customer_id, account_type_id, total_fee, payload, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		a.ID, tenantID, a.CustomerID, a.AccountTypeID,
		a.TotalFee.String(), string(payload), timestamp,
	)
	return err
}

// GetAssessment retrieves an assessment by ID with tenant isolation.
func (r *SQLRepository) GetAssessment(ctx context.Context, tenantID string, assessmentID string) (*domain.Assessment, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT payload FROM assessments
		WHERE tenant_id = ? AND id = ?
	`

	var payload string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, assessmentID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var a domain.Assessment
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return nil, fmt.Errorf("failed to parse assessment: %w", err)
	}
	return &a, nil
}

// ListAssessmentsByCustomer retrieves a customer's assessments, newest first.
func (r *SQLRepository) ListAssessmentsByCustomer(ctx context.Context, tenantID string, customerID string) ([]*domain.Assessment, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT payload FROM assessments
		WHERE tenant_id = ? AND customer_id = ?
		ORDER BY timestamp DESC, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assessments []*domain.Assessment
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var a domain.Assessment
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return nil, fmt.Errorf("failed to parse assessment: %w", err)
		}
		assessments = append(assessments, &a)
	}
	return assessments, rows.Err()
}

// saveDocument upserts one config document. The table name is always one of
// the fixed schema constants, never caller input.
func (r *SQLRepository) saveDocument(ctx context.Context, table, tenantID, id, name, version string, enabled bool, doc any) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	config, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	enabledInt := 0
	if enabled {
		enabledInt = 1
	}

	now := time.Now().UTC()

	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, tenant_id, name, version, config, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			version = excluded.version,
			config = excluded.config,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`, table)

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		id, tenantID, name, version, string(config), enabledInt, now, now,
	)
	return err
}

func (r *SQLRepository) getDocument(ctx context.Context, table, tenantID, id string, out any) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := fmt.Sprintf(`
		SELECT config FROM %s
		WHERE tenant_id = ? AND id = ? AND enabled = 1
	`, table)

	var config string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id).Scan(&config)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(config), out); err != nil {
		return fmt.Errorf("failed to parse document %s: %w", id, err)
	}
	return nil
}

func (r *SQLRepository) listDocuments(ctx context.Context, table, tenantID string) ([][]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := fmt.Sprintf(`
		SELECT config FROM %s
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`, table)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blobs [][]byte
	for rows.Next() {
		var config string
		if err := rows.Scan(&config); err != nil {
			return nil, err
		}
		blobs = append(blobs, []byte(config))
	}
	return blobs, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
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
