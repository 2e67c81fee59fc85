package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Account classes used by the POS pricing path.
const (
	AccountClassCurrent = "current"
	AccountClassSavings = "savings"
)

// AccountConfig describes one account product: its fixed monthly fee, the
// class that selects its POS pricing, the free-tier allowances consumed by
// benefit resolution, and which KPI profile evaluates it.
type AccountConfig struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId,omitempty"`
	Name     string `json:"name"`

	MonthlyFee   decimal.Decimal `json:"monthly_fee"`
	AccountClass string          `json:"account_class"`

	// FreeTier values are heterogeneous on purpose: bool allowances are
	// unconditional inclusions, numbers are countable quotas, lists are
	// categorical inclusions.
	FreeTier map[string]any `json:"free_tier,omitempty"`

	// KPIProfileID selects the KPI configuration for this product.
	// Empty means fee analysis only, no KPI pipeline.
	KPIProfileID string `json:"kpi_profile,omitempty"`

	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Validate checks the fields the tariff engine depends on.
func (a *AccountConfig) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("account id is required")
	}
	switch a.AccountClass {
	case AccountClassCurrent, AccountClassSavings:
		return nil
	case "":
		return fmt.Errorf("account_class is required")
	default:
		return fmt.Errorf("unknown account_class: %q", a.AccountClass)
	}
}
