// Package portfolio fans the assessment pipeline out across a customer
// book and multiple account products, then aggregates the results into
// recommendation counts, signal counts, and ranked targeting lists.
package portfolio

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/heron/internal/assess"
	"github.com/opensource-finance/heron/internal/domain"
)

// Runner executes portfolio batch runs. Each customer's pipeline reads
// only immutable inputs, so the fan-out needs no locking beyond collecting
// results.
type Runner struct {
	processor  *assess.Processor
	maxWorkers int
}

// NewRunner creates a runner over an assessment processor.
func NewRunner(processor *assess.Processor, maxWorkers int) *Runner {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	return &Runner{processor: processor, maxWorkers: maxWorkers}
}

// RunInput is one batch request.
type RunInput struct {
	TenantID     string
	Customers    []*domain.Customer
	Transactions []domain.Transaction

	// Products to assess every customer against. BaseAccountID is the
	// signals/targeting source, PAYUAccountID the usage-priced alternative.
	AccountTypeIDs []string
	BaseAccountID  string
	PAYUAccountID  string
	ScheduleID     string

	// Optional CEL predicate restricting targeting lists.
	TargetFilter string
	TargetLimit  int
}

// Run assesses every customer against every requested product and builds
// the portfolio report. One customer failing aborts the run; a portfolio
// report with silently missing customers is worse than no report.
func (r *Runner) Run(ctx context.Context, input *RunInput) (*domain.PortfolioReport, error) {
	var filter *TargetFilter
	if input.TargetFilter != "" {
		f, err := CompileTargetFilter(input.TargetFilter)
		if err != nil {
			return nil, err
		}
		filter = f
	}

	txnsByCustomer := make(map[string][]domain.Transaction)
	for _, tx := range input.Transactions {
		txnsByCustomer[tx.CustomerID] = append(txnsByCustomer[tx.CustomerID], tx)
	}

	results := make(map[string]*domain.CustomerPortfolioResult, len(input.Customers))
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)
	sem := make(chan struct{}, r.maxWorkers)

	for _, customer := range input.Customers {
		wg.Add(1)
		go func(c *domain.Customer) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := r.assessCustomer(ctx, input, c, txnsByCustomer[c.ID])

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("customer %s: %w", c.ID, err)
				}
				return
			}
			results[c.ID] = res
		}(customer)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	freeATM := r.baseFreeATMAllowance(input.BaseAccountID)
	return &domain.PortfolioReport{
		Customers: results,
		Aggregate: r.aggregate(results, input),
		Targets:   rankTargets(results, input.BaseAccountID, freeATM, filter, input.TargetLimit),
	}, nil
}

func (r *Runner) assessCustomer(ctx context.Context, input *RunInput, customer *domain.Customer, txns []domain.Transaction) (*domain.CustomerPortfolioResult, error) {
	res := &domain.CustomerPortfolioResult{
		CustomerID: customer.ID,
		Accounts:   make(map[string]*domain.Assessment, len(input.AccountTypeIDs)),
	}

	for _, accountID := range input.AccountTypeIDs {
		a, err := r.processor.Process(ctx, &assess.Input{
			TenantID:      input.TenantID,
			Customer:      customer,
			Transactions:  txns,
			AccountTypeID: accountID,
			ScheduleID:    input.ScheduleID,
		})
		if err != nil {
			return nil, err
		}
		res.Accounts[accountID] = a
	}

	res.Recommendation = recommend(res.Accounts[input.BaseAccountID], res.Accounts[input.PAYUAccountID])
	return res, nil
}

// recommend compares the base product against the usage-priced product:
// lower total monthly cost wins, with fit score as the tie breaker. Both
// assessments are required; anything else is an explicit unknown.
func recommend(base, payu *domain.Assessment) domain.Recommendation {
	if base == nil || payu == nil {
		return domain.Recommendation{
			RecommendedAccount: "unknown",
			Reasons:            []string{"missing required accounts for recommendation"},
		}
	}

	reasons := []string{
		fmt.Sprintf("monthly cost %s vs %s", base.TotalFee.StringFixed(2), payu.TotalFee.StringFixed(2)),
	}
	if base.SignalsFired() {
		reasons = append(reasons, fmt.Sprintf("migration signals on %s: %v", base.AccountTypeID, base.KPI.MigrationSignals))
	}

	switch {
	case payu.TotalFee.LessThan(base.TotalFee):
		return domain.Recommendation{RecommendedAccount: payu.AccountTypeID, Alternative: base.AccountTypeID, Reasons: reasons}
	case base.TotalFee.LessThan(payu.TotalFee):
		return domain.Recommendation{RecommendedAccount: base.AccountTypeID, Alternative: payu.AccountTypeID, Reasons: reasons}
	default:
		// Equal cost: prefer the product the customer fits better.
		if fitScore(payu) > fitScore(base) {
			return domain.Recommendation{RecommendedAccount: payu.AccountTypeID, Alternative: base.AccountTypeID, Reasons: reasons}
		}
		return domain.Recommendation{RecommendedAccount: base.AccountTypeID, Alternative: payu.AccountTypeID, Reasons: reasons}
	}
}

func fitScore(a *domain.Assessment) float64 {
	if a.KPI == nil {
		return 0
	}
	return a.KPI.AccountFitScore
}

// aggregate summarises the run: recommendation counts, per-signal counts on
// the base product, how many customers exceed the base free ATM tier, and
// the cost picture on the usage-priced product.
func (r *Runner) aggregate(results map[string]*domain.CustomerPortfolioResult, input *RunInput) domain.PortfolioAggregate {
	agg := domain.PortfolioAggregate{
		CustomerCount:        len(results),
		RecommendationCounts: make(map[string]int),
		SignalCounts:         make(map[string]int),
		TotalVariableFees:    decimal.Zero,
		AvgTotalFee:          decimal.Zero,
	}

	freeATM := r.baseFreeATMAllowance(input.BaseAccountID)

	totalFees := decimal.Zero
	feeCount := 0
	for _, id := range sortedCustomerIDs(results) {
		res := results[id]
		agg.RecommendationCounts[res.Recommendation.RecommendedAccount]++

		if base, ok := res.Accounts[input.BaseAccountID]; ok && base != nil {
			if base.KPI != nil {
				for _, sig := range base.KPI.MigrationSignals {
					agg.SignalCounts[sig]++
				}
			}
			if base.Features.Int("nedbank_atm_withdrawal_count") > freeATM {
				agg.ATMPressureCount++
			}
		}

		if payu, ok := res.Accounts[input.PAYUAccountID]; ok && payu != nil {
			agg.TotalVariableFees = agg.TotalVariableFees.Add(payu.VariableFee)
			totalFees = totalFees.Add(payu.TotalFee)
			feeCount++
		}
	}

	if feeCount > 0 {
		agg.AvgTotalFee = totalFees.Div(decimal.NewFromInt(int64(feeCount))).Round(2)
	}
	return agg
}

// baseFreeATMAllowance reads the base product's free ATM withdrawal tier;
// zero when the product or key is absent.
func (r *Runner) baseFreeATMAllowance(baseAccountID string) int {
	account, ok := r.processor.Registry().Account(baseAccountID)
	if !ok {
		return 0
	}
	switch v := account.FreeTier[domain.FreeATMWithdrawalsKey].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
