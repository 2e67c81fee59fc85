package assess

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/features"
	"github.com/opensource-finance/heron/internal/tariff"
)

// EngineVersion is stamped into every assessment's metadata.
const EngineVersion = "heron-1.0"

// Processor runs the assessment pipeline against the registry's loaded
// configuration.
type Processor struct {
	registry *Registry
}

// NewProcessor creates a processor over a registry.
func NewProcessor(registry *Registry) *Processor {
	return &Processor{registry: registry}
}

// Registry exposes the processor's registry for configuration handlers.
func (p *Processor) Registry() *Registry { return p.registry }

// Input is one assessment request: a customer, their transaction history,
// and the product and tariff book to evaluate them against.
type Input struct {
	TenantID      string
	Customer      *domain.Customer
	Transactions  []domain.Transaction
	AccountTypeID string
	ScheduleID    string
	TraceID       string
	StartTime     time.Time
}

// Process assesses one customer against one account product. The pipeline
// is features, then variable fees, then the deposit fee, then the KPI
// report; the KPI stage is skipped when the product has no profile.
func (p *Processor) Process(ctx context.Context, input *Input) (*domain.Assessment, error) {
	if input.Customer == nil {
		return nil, fmt.Errorf("%w: customer is required", domain.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	account, ok := p.registry.Account(input.AccountTypeID)
	if !ok {
		return nil, fmt.Errorf("%w: account type %q is not loaded", domain.ErrNotFound, input.AccountTypeID)
	}
	schedule, ok := p.registry.Schedule(input.ScheduleID)
	if !ok {
		return nil, fmt.Errorf("%w: fee schedule %q is not loaded", domain.ErrNotFound, input.ScheduleID)
	}

	start := input.StartTime
	if start.IsZero() {
		start = time.Now()
	}
	feesStart := time.Now()

	featureSet := features.Extract(input.Transactions, features.Input{
		Segment:           input.Customer.Segment,
		AnnualTurnover:    input.Customer.AnnualTurnover,
		TurnoverThreshold: schedule.CashDeposit.TurnoverThreshold,
		Schedule:          schedule,
		AccountClass:      account.AccountClass,
	})

	breakdown := tariff.ComputeCustomerFees(input.Transactions, schedule, account.AccountClass)
	deposit := tariff.ComputeCashDepositFee(
		input.Customer.Segment,
		input.Customer.AnnualTurnover,
		tariff.CountCashDeposits(input.Transactions),
		schedule.CashDeposit,
	)
	feesMs := time.Since(feesStart).Milliseconds()

	variableFee := breakdown.VariableTotal.Add(deposit.Fee).Round(2)
	totalFee := account.MonthlyFee.Add(variableFee).Round(2)

	assessment := &domain.Assessment{
		ID:            uuid.New().String(),
		TenantID:      input.TenantID,
		CustomerID:    input.Customer.ID,
		AccountTypeID: account.ID,
		Segment:       input.Customer.Segment,
		Features:      featureSet,
		FixedFee:      account.MonthlyFee,
		Fees:          breakdown,
		Deposit:       deposit,
		VariableFee:   variableFee,
		TotalFee:      totalFee,
		TopDrivers:    topDrivers(breakdown, deposit, 3),
		Timestamp:     time.Now().UTC(),
	}

	var kpiMs int64
	if account.KPIProfileID != "" {
		engine, ok := p.registry.Engine(account.KPIProfileID)
		if !ok {
			return nil, fmt.Errorf("%w: kpi profile %q is not loaded", domain.ErrNotFound, account.KPIProfileID)
		}
		kpiStart := time.Now()
		report, err := engine.ComputeAll(featureSet, input.Transactions, schedule, account)
		if err != nil {
			return nil, fmt.Errorf("customer %s: %w", input.Customer.ID, err)
		}
		kpiMs = time.Since(kpiStart).Milliseconds()
		assessment.KPI = report
	}

	assessment.Metadata = domain.AssessmentMetadata{
		TraceID:       input.TraceID,
		FeesMs:        feesMs,
		KPIMs:         kpiMs,
		TotalMs:       time.Since(start).Milliseconds(),
		EngineVersion: EngineVersion,
	}
	return assessment, nil
}

// topDrivers ranks per-type fees, folding the deposit fee in as its own
// driver, and keeps the top n. Ties break on type name so output is stable.
func topDrivers(breakdown domain.FeeBreakdown, deposit domain.DepositAssessment, n int) []domain.FeeDriver {
	drivers := make([]domain.FeeDriver, 0, len(breakdown.ByType)+1)
	for txType, fee := range breakdown.ByType {
		drivers = append(drivers, domain.FeeDriver{Type: txType, Fee: fee})
	}
	if deposit.Fee.IsPositive() {
		merged := false
		for i := range drivers {
			if drivers[i].Type == domain.TxCashDeposit {
				drivers[i].Fee = drivers[i].Fee.Add(deposit.Fee)
				merged = true
				break
			}
		}
		if !merged {
			drivers = append(drivers, domain.FeeDriver{Type: domain.TxCashDeposit, Fee: deposit.Fee})
		}
	}

	sort.Slice(drivers, func(i, j int) bool {
		if !drivers[i].Fee.Equal(drivers[j].Fee) {
			return drivers[i].Fee.GreaterThan(drivers[j].Fee)
		}
		return drivers[i].Type < drivers[j].Type
	})
	if len(drivers) > n {
		drivers = drivers[:n]
	}
	return drivers
}
