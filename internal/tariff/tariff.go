package tariff

import (
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/heron/internal/domain"
)

// ApplyRule prices a single amount under a validated fee rule. Unknown rule
// types price to zero here only because Validate rejects them at load time.
func ApplyRule(rule *domain.FeeRule, amount decimal.Decimal) decimal.Decimal {
	if rule == nil {
		return decimal.Zero
	}
	switch rule.RuleType {
	case domain.RuleFlat, domain.RuleFlatPerEvent:
		return Flat(rule.Value)
	case domain.RulePerStep:
		return PerStep(amount, rule.StepAmount, rule.StepFee)
	case domain.RuleBasePlusStepCap:
		return BasePlusStepCap(amount, rule.BaseFee, rule.StepAmount, rule.StepFee, rule.Cap)
	default:
		return decimal.Zero
	}
}

// TransactionFee resolves the rule for one transaction and prices it.
// Income is never charged; channel/type combinations the schedule does not
// cover price to zero rather than falling back to a default rule.
func TransactionFee(tx *domain.Transaction, schedule *domain.FeeSchedule, accountClass string) decimal.Decimal {
	if tx.Type == domain.TxIncome {
		return decimal.Zero
	}
	amount := tx.AbsAmount()

	switch tx.Channel {
	case domain.ChannelOnline:
		if rule, ok := schedule.Online[tx.Type]; ok {
			return ApplyRule(rule, amount)
		}

	case domain.ChannelATM:
		if tx.Type != domain.TxATMWithdrawal {
			return decimal.Zero
		}
		// A missing owner means the bank's own machine; any owner other
		// than the bank's is priced as an other-bank withdrawal.
		owner := tx.ATMOwner
		if owner == "" {
			owner = domain.ATMOwnerNedbank
		}
		if owner == domain.ATMOwnerNedbank {
			return ApplyRule(schedule.ATM.NedbankWithdrawal, amount)
		}
		return ApplyRule(schedule.ATM.OtherBankWithdrawal, amount)

	case domain.ChannelPOS:
		if tx.Type != domain.TxPOSPurchase {
			return decimal.Zero
		}
		scope := tx.POSScope
		if scope == "" {
			scope = domain.POSScopeLocal
		}
		if scope == domain.POSScopeLocal {
			if rule, ok := schedule.POS.Local[accountClass]; ok {
				return ApplyRule(rule, amount)
			}
		}
	}
	return decimal.Zero
}

// ComputeCustomerFees prices one customer's transaction history. Per-fee
// amounts stay unrounded during accumulation; totals are rounded to cents
// once at the end so step fees never drift by a cent across a month.
func ComputeCustomerFees(txns []domain.Transaction, schedule *domain.FeeSchedule, accountClass string) domain.FeeBreakdown {
	byType := make(map[string]decimal.Decimal)
	byChannel := make(map[string]decimal.Decimal)
	total := decimal.Zero

	for i := range txns {
		tx := &txns[i]
		fee := TransactionFee(tx, schedule, accountClass)
		if fee.IsPositive() {
			total = total.Add(fee)
			byType[tx.Type] = byType[tx.Type].Add(fee)
			byChannel[tx.Channel] = byChannel[tx.Channel].Add(fee)
		}
	}

	for k, v := range byType {
		byType[k] = v.Round(2)
	}
	for k, v := range byChannel {
		byChannel[k] = v.Round(2)
	}
	return domain.FeeBreakdown{
		VariableTotal: total.Round(2),
		ByType:        byType,
		ByChannel:     byChannel,
	}
}

// ComputeVariableFees groups a mixed transaction batch by customer and
// prices each history. Order of input does not affect the result.
func ComputeVariableFees(txns []domain.Transaction, schedule *domain.FeeSchedule, accountClass string) map[string]domain.FeeBreakdown {
	grouped := make(map[string][]domain.Transaction)
	for _, tx := range txns {
		grouped[tx.CustomerID] = append(grouped[tx.CustomerID], tx)
	}
	out := make(map[string]domain.FeeBreakdown, len(grouped))
	for customerID, history := range grouped {
		out[customerID] = ComputeCustomerFees(history, schedule, accountClass)
	}
	return out
}
