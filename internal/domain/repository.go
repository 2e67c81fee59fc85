// Package domain defines the core interfaces and types for Heron.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Customer operations
	SaveCustomer(ctx context.Context, tenantID string, c *Customer) error
	GetCustomer(ctx context.Context, tenantID string, customerID string) (*Customer, error)
	ListCustomers(ctx context.Context, tenantID string) ([]*Customer, error)

	// Transaction operations
	SaveTransaction(ctx context.Context, tenantID string, tx *Transaction) error
	SaveTransactions(ctx context.Context, tenantID string, txs []*Transaction) error
	GetTransactionsByCustomer(ctx context.Context, tenantID string, customerID string) ([]*Transaction, error)

	// Fee schedule operations
	SaveFeeSchedule(ctx context.Context, tenantID string, s *FeeSchedule) error
	GetFeeSchedule(ctx context.Context, tenantID string, scheduleID string) (*FeeSchedule, error)
	ListFeeSchedules(ctx context.Context, tenantID string) ([]*FeeSchedule, error)

	// Account product operations
	SaveAccountConfig(ctx context.Context, tenantID string, a *AccountConfig) error
	GetAccountConfig(ctx context.Context, tenantID string, accountID string) (*AccountConfig, error)
	ListAccountConfigs(ctx context.Context, tenantID string) ([]*AccountConfig, error)

	// KPI profile operations
	SaveKPIProfile(ctx context.Context, tenantID string, p *KPIProfile) error
	GetKPIProfile(ctx context.Context, tenantID string, profileID string) (*KPIProfile, error)
	ListKPIProfiles(ctx context.Context, tenantID string) ([]*KPIProfile, error)
	DeleteKPIProfile(ctx context.Context, tenantID string, profileID string) error

	// Assessment results
	SaveAssessment(ctx context.Context, tenantID string, a *Assessment) error
	GetAssessment(ctx context.Context, tenantID string, assessmentID string) (*Assessment, error)
	ListAssessmentsByCustomer(ctx context.Context, tenantID string, customerID string) ([]*Assessment, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
