package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeeBreakdown is the tariff engine's per-customer output. VariableTotal is
// the 2dp-rounded sum of all per-transaction fees; the per-type and
// per-channel maps are rounded at the same point, never per transaction.
type FeeBreakdown struct {
	VariableTotal decimal.Decimal            `json:"variableTotal"`
	ByType        map[string]decimal.Decimal `json:"byType,omitempty"`
	ByChannel     map[string]decimal.Decimal `json:"byChannel,omitempty"`
}

// Deposit eligibility statuses. Individual always maps to individual
// regardless of turnover.
type EligibilityStatus string

const (
	EligibilityIndividual        EligibilityStatus = "individual"
	EligibilitySMEBelowThreshold EligibilityStatus = "sme_below_threshold"
	EligibilitySMEAboveThreshold EligibilityStatus = "sme_above_threshold"
	EligibilityUnknown           EligibilityStatus = "unknown"
)

// DepositFlags surfaces fail-safe decisions taken during deposit fee
// resolution.
type DepositFlags struct {
	TurnoverRequiredForDepositFee bool `json:"turnoverRequiredForDepositFee,omitempty"`
}

// DepositAssessment is the cash-deposit fee outcome for one customer.
type DepositAssessment struct {
	Fee          decimal.Decimal   `json:"fee"`
	Status       EligibilityStatus `json:"eligibilityStatus"`
	Flags        DepositFlags      `json:"flags"`
	DepositCount int               `json:"depositCount"`
}

// BenefitUsage reports utilisation of one configured benefit. Remaining is
// an int for countable quotas or the string "included" for unconditional
// and categorical allowances.
type BenefitUsage struct {
	Usage     int `json:"usage"`
	Allowance any `json:"allowance"`
	Remaining any `json:"remaining"`
}

// FeeDriver is one entry of the top-fee-drivers list.
type FeeDriver struct {
	Type string          `json:"type"`
	Fee  decimal.Decimal `json:"fee"`
}

// KPIReport is the KPI engine's output for one customer/product pair.
type KPIReport struct {
	KPIs             map[string]float64      `json:"kpis"`
	AccountFitScore  float64                 `json:"accountFitScore"`
	MigrationSignals []string                `json:"migrationSignals"`
	Insights         []string                `json:"insights"`
	Benefits         map[string]BenefitUsage `json:"benefits,omitempty"`
}

// AssessmentMetadata carries processing information for one assessment.
type AssessmentMetadata struct {
	TraceID       string `json:"traceId,omitempty"`
	FeesMs        int64  `json:"feesMs"`
	KPIMs         int64  `json:"kpiMs"`
	TotalMs       int64  `json:"totalMs"`
	EngineVersion string `json:"engineVersion"`
}

// Assessment is the complete evaluation of one customer against one account
// product: the monthly cost picture plus the behavioural fit picture.
type Assessment struct {
	ID            string `json:"id"`
	TenantID      string `json:"tenantId"`
	CustomerID    string `json:"customerId"`
	AccountTypeID string `json:"accountTypeId"`
	Segment       string `json:"segment"`

	Features FeatureSet `json:"features,omitempty"`

	FixedFee    decimal.Decimal   `json:"fixedFee"`
	Fees        FeeBreakdown      `json:"fees"`
	Deposit     DepositAssessment `json:"deposit"`
	VariableFee decimal.Decimal   `json:"variableFee"`
	TotalFee    decimal.Decimal   `json:"totalFee"`
	TopDrivers  []FeeDriver       `json:"topDrivers,omitempty"`

	// KPI pipeline output; nil when the product has no KPI profile.
	KPI *KPIReport `json:"kpi,omitempty"`

	Timestamp time.Time          `json:"timestamp"`
	Metadata  AssessmentMetadata `json:"metadata"`
}

// SignalsFired reports whether any migration signal fired.
func (a *Assessment) SignalsFired() bool {
	return a.KPI != nil && len(a.KPI.MigrationSignals) > 0
}

// Recommendation is the portfolio engine's product choice for a customer.
type Recommendation struct {
	RecommendedAccount string   `json:"recommendedAccount"`
	Alternative        string   `json:"alternative,omitempty"`
	Reasons            []string `json:"reasons,omitempty"`
}

// CustomerPortfolioResult groups one customer's assessments across products.
type CustomerPortfolioResult struct {
	CustomerID     string                 `json:"customerId"`
	Accounts       map[string]*Assessment `json:"accounts"`
	Recommendation Recommendation         `json:"recommendation"`
}

// Target is one row of a ranked targeting list.
type Target struct {
	CustomerID string  `json:"customerId"`
	HasSignal  bool    `json:"hasSignal"`
	Metric     float64 `json:"metric"`
	Reason     string  `json:"reason"`
}

// PortfolioAggregate summarises a portfolio run.
type PortfolioAggregate struct {
	CustomerCount        int             `json:"customerCount"`
	RecommendationCounts map[string]int  `json:"recommendationCounts"`
	SignalCounts         map[string]int  `json:"signalCounts"`
	ATMPressureCount     int             `json:"atmPressureCount"`
	TotalVariableFees    decimal.Decimal `json:"totalVariableFees"`
	AvgTotalFee          decimal.Decimal `json:"avgTotalFee"`
}

// PortfolioReport is the full batch output.
type PortfolioReport struct {
	Customers map[string]*CustomerPortfolioResult `json:"customers"`
	Aggregate PortfolioAggregate                  `json:"aggregate"`
	Targets   map[string][]Target                 `json:"targets"`
}
