package tariff

import (
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/heron/internal/domain"
)

// ResolveDepositEligibility classifies a customer for the branch cash
// deposit fee. Individuals are always exempt; a business customer with no
// recorded turnover is unknown rather than assumed chargeable.
func ResolveDepositEligibility(segment string, annualTurnover *decimal.Decimal, threshold decimal.Decimal) domain.EligibilityStatus {
	if segment == domain.SegmentIndividual {
		return domain.EligibilityIndividual
	}
	if annualTurnover == nil {
		return domain.EligibilityUnknown
	}
	if annualTurnover.LessThanOrEqual(threshold) {
		return domain.EligibilitySMEBelowThreshold
	}
	return domain.EligibilitySMEAboveThreshold
}

// ComputeCashDepositFee prices a customer's branch cash deposits.
//
// The fee is charged only when all of the following hold: the customer is
// not an individual, at least one cash deposit exists, turnover is known,
// and turnover exceeds the schedule threshold. Unknown turnover never
// charges; it sets the review flag instead.
func ComputeCashDepositFee(segment string, annualTurnover *decimal.Decimal, depositCount int, terms domain.CashDepositTerms) domain.DepositAssessment {
	status := ResolveDepositEligibility(segment, annualTurnover, terms.TurnoverThreshold)

	result := domain.DepositAssessment{
		Fee:          decimal.Zero,
		Status:       status,
		DepositCount: depositCount,
	}

	if status == domain.EligibilityIndividual {
		return result
	}
	// No deposits means nothing to charge, whatever the turnover says.
	if depositCount == 0 {
		return result
	}
	if status == domain.EligibilityUnknown {
		result.Flags.TurnoverRequiredForDepositFee = true
		return result
	}
	if status == domain.EligibilitySMEBelowThreshold {
		return result
	}

	perEvent := decimal.Zero
	if terms.FeeIfApplicable != nil {
		perEvent = terms.FeeIfApplicable.Value
	}
	result.Fee = perEvent.Mul(decimal.NewFromInt(int64(depositCount))).Round(2)
	return result
}

// CountCashDeposits counts a history's cash deposit transactions.
func CountCashDeposits(txns []domain.Transaction) int {
	n := 0
	for i := range txns {
		if txns[i].Type == domain.TxCashDeposit {
			n++
		}
	}
	return n
}
