package domain

import (
	"fmt"
	"time"
)

// KPIDefinition is either a formula evaluated against the feature namespace
// or a computed KPI resolved by a fixed algorithm (excess_atm_cost,
// account_fit_score). A definition with both set is invalid.
type KPIDefinition struct {
	Formula  string `json:"formula,omitempty"`
	Computed bool   `json:"computed,omitempty"`
}

// SignalDefinition is a migration signal: a conjunction of boolean
// expressions over the KPI namespace and the fit-score penalty applied when
// it fires.
type SignalDefinition struct {
	// All holds the conditions; every one must evaluate truthy for the
	// signal to fire. "conditions" is accepted as a legacy alias on decode.
	All    []string `json:"all,omitempty"`
	Legacy []string `json:"conditions,omitempty"`

	// Penalty defaults to 10 when the profile omits it; an explicit 0 is
	// a valid informational signal.
	Penalty *float64 `json:"penalty,omitempty"`
}

// PenaltyValue returns the configured penalty or the default of 10.
func (s *SignalDefinition) PenaltyValue() float64 {
	if s.Penalty != nil {
		return *s.Penalty
	}
	return 10
}

// Conditions returns the condition list regardless of which key style the
// profile used.
func (s *SignalDefinition) Conditions() []string {
	if len(s.All) > 0 {
		return s.All
	}
	return s.Legacy
}

// InsightDefinition maps a signal name to a human-readable message.
// The good_fit entry is the fallback emitted when no signal fires.
type InsightDefinition struct {
	Message string `json:"message"`
}

// InsightGoodFit is the reserved fallback key in InsightOutputs.
const InsightGoodFit = "good_fit"

// NorthStar carries the fit-score starting point.
type NorthStar struct {
	Base float64 `json:"base"`
}

// BaseValue returns the configured base or the default of 100.
func (n NorthStar) BaseValue() float64 {
	if n.Base == 0 {
		return 100
	}
	return n.Base
}

// BenefitDefinition links a free-tier allowance key to the feature that
// measures its usage.
type BenefitDefinition struct {
	AllowanceKey    string `json:"allowance_key"`
	UsageFeatureKey string `json:"usage_feature_key"`
}

// KPIProfile is the full KPI configuration for one account product. All
// product thresholds live here; the engine holds no hardcoded values.
type KPIProfile struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId,omitempty"`
	Name     string `json:"name"`
	Version  string `json:"version"`

	FreeTier         map[string]any               `json:"free_tier,omitempty"`
	KPIs             map[string]KPIDefinition     `json:"kpis,omitempty"`
	MigrationSignals map[string]SignalDefinition  `json:"migration_signals,omitempty"`
	InsightOutputs   map[string]InsightDefinition `json:"insight_outputs,omitempty"`
	NorthStar        NorthStar                    `json:"north_star"`
	Benefits         map[string]BenefitDefinition `json:"benefits,omitempty"`

	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// FreeATMWithdrawalsKey is the free-tier key consumed by the excess-ATM-cost
// computation.
const FreeATMWithdrawalsKey = "free_nedbank_atm_withdrawals"

// Validate checks structural requirements. Formula syntax is validated
// separately by the KPI engine at load time.
func (p *KPIProfile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("kpi profile id is required")
	}
	for name, def := range p.KPIs {
		if def.Computed && def.Formula != "" {
			return fmt.Errorf("kpi %q: computed KPIs must not carry a formula", name)
		}
	}
	for name, sig := range p.MigrationSignals {
		if len(sig.Conditions()) == 0 {
			return fmt.Errorf("migration signal %q has no conditions", name)
		}
	}
	return nil
}
