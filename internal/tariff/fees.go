// Package tariff prices transaction histories against a fee schedule and
// computes the branch cash deposit fee.
package tariff

import "github.com/shopspring/decimal"

// CeilSteps returns the number of charging steps an amount occupies. Exact
// multiples occupy exactly their quotient: CeilSteps(300, 300) == 1.
func CeilSteps(amount, stepAmount decimal.Decimal) int64 {
	if stepAmount.IsZero() {
		return 0
	}
	return amount.Div(stepAmount).Ceil().IntPart()
}

// Flat returns the rule's flat value.
func Flat(value decimal.Decimal) decimal.Decimal {
	return value
}

// PerStep prices an amount at stepFee per started step.
func PerStep(amount, stepAmount, stepFee decimal.Decimal) decimal.Decimal {
	return stepFee.Mul(decimal.NewFromInt(CeilSteps(amount, stepAmount)))
}

// BasePlusStepCap prices an amount as base + steps*stepFee, capped.
func BasePlusStepCap(amount, baseFee, stepAmount, stepFee, cap decimal.Decimal) decimal.Decimal {
	fee := baseFee.Add(stepFee.Mul(decimal.NewFromInt(CeilSteps(amount, stepAmount))))
	if fee.GreaterThan(cap) {
		return cap
	}
	return fee
}
