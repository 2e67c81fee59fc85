// Package features derives the behavioural feature set a KPI profile's
// formulas evaluate against, from a customer's raw transaction history.
package features

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/tariff"
)

// digitalTypes are the transaction types counted as digital activity. Cash
// deposits are branch events and never count.
var digitalTypes = map[string]bool{
	domain.TxPOSPurchase:         true,
	domain.TxAirtimePurchase:     true,
	domain.TxElectricityPurchase: true,
	domain.TxThirdPartyPayment:   true,
	domain.TxEFTTransfer:         true,
	domain.TxEFTInternal:         true,
	domain.TxEFTExternal:         true,
}

// paymentTypes is everything except income and cash deposits.
var paymentTypes = map[string]bool{
	domain.TxPOSPurchase:         true,
	domain.TxAirtimePurchase:     true,
	domain.TxElectricityPurchase: true,
	domain.TxThirdPartyPayment:   true,
	domain.TxEFTTransfer:         true,
	domain.TxEFTInternal:         true,
	domain.TxEFTExternal:         true,
	domain.TxATMWithdrawal:       true,
	domain.TxCashout:             true,
}

// digitalChannels feed the online_subscription_used flag.
var digitalChannels = map[string]bool{
	domain.ChannelOnline: true,
	"app":                true,
	"ussd":               true,
}

// Behaviour tags, most specific rule first.
const (
	TagNoActivity       = "no_activity"
	TagCashHeavy        = "cash_heavy"
	TagDigitalFirst     = "digital_first"
	TagUtilitiesFocused = "utilities_focused"
	TagMixedUsage       = "mixed_usage"
)

// Input bundles everything feature extraction needs beyond the raw history.
// Schedule may be nil, in which case charged_txn_count is zero.
type Input struct {
	Segment           string
	AnnualTurnover    *decimal.Decimal
	TurnoverThreshold decimal.Decimal
	Schedule          *domain.FeeSchedule
	AccountClass      string
}

// Extract computes the full behavioural feature set for one customer's
// transactions. Every numeric key is always present so formulas can rely on
// the contract; absent source fields degrade to zero counts, never to a
// missing key.
func Extract(txns []domain.Transaction, in Input) domain.FeatureSet {
	txnCount := len(txns)

	inflow := decimal.Zero
	outflow := decimal.Zero
	var (
		atmCount        int
		cashDeposits    int
		utilityCount    int
		thirdPartyCount int
		digitalCount    int
		nedbankATMCount int
		cashoutCount    int
		totalPayments   int
		posCount        int
		eftInternal     int
		eftExternal     int
		onlineUsed      bool
	)

	for i := range txns {
		tx := &txns[i]
		if tx.Type == domain.TxIncome {
			inflow = inflow.Add(tx.Amount)
		} else {
			outflow = outflow.Add(tx.Amount)
		}

		switch tx.Type {
		case domain.TxATMWithdrawal:
			atmCount++
			if tx.ATMOwner == "" || tx.ATMOwner == domain.ATMOwnerNedbank {
				nedbankATMCount++
			}
		case domain.TxCashDeposit:
			cashDeposits++
		case domain.TxAirtimePurchase, domain.TxElectricityPurchase:
			utilityCount++
		case domain.TxThirdPartyPayment:
			thirdPartyCount++
		case domain.TxPOSPurchase:
			posCount++
		case domain.TxEFTInternal:
			eftInternal++
		case domain.TxEFTExternal:
			eftExternal++
		}

		if digitalTypes[tx.Type] {
			digitalCount++
		}
		if paymentTypes[tx.Type] {
			totalPayments++
		}
		if tx.Type == domain.TxCashout ||
			(tx.Type == domain.TxPOSPurchase && tx.Merchant == domain.MerchantRetailCashout) {
			cashoutCount++
		}
		if digitalChannels[tx.Channel] {
			onlineUsed = true
		}
	}

	digitalRatio := 0.0
	if txnCount > 0 {
		digitalRatio = float64(digitalCount) / float64(txnCount)
	}

	tag := behaviourTag(txnCount, atmCount, digitalRatio, utilityCount)

	eligibility := tariff.ResolveDepositEligibility(in.Segment, in.AnnualTurnover, in.TurnoverThreshold)

	chargedCount := 0
	if in.Schedule != nil && txnCount > 0 {
		chargedCount = chargedTxnCount(txns, in.Schedule, in.AccountClass)
	}

	onlineSubscription := 0
	if onlineUsed {
		onlineSubscription = 1
	}

	return domain.FeatureSet{
		"txn_count":                      txnCount,
		"total_inflow":                   inflow.Abs().InexactFloat64(),
		"total_outflow":                  outflow.InexactFloat64(),
		"atm_withdrawal_count":           atmCount,
		"cash_deposit_count":             cashDeposits,
		"utility_count":                  utilityCount,
		"third_party_payment_count":      thirdPartyCount,
		"digital_ratio":                  math.Round(digitalRatio*10000) / 10000,
		"behaviour_tag":                  tag,
		"deposit_fee_eligibility_status": string(eligibility),

		"nedbank_atm_withdrawal_count": nedbankATMCount,
		"cashout_count":                cashoutCount,
		"digital_txn_count":            digitalCount,
		"total_payments":               totalPayments,
		"pos_purchase_count":           posCount,
		"charged_txn_count":            chargedCount,

		"online_subscription_used": onlineSubscription,
		"eft_to_nedbank_count":     eftInternal,
		"eft_to_otherbank_count":   eftExternal,
	}
}

func behaviourTag(txnCount, atmCount int, digitalRatio float64, utilityCount int) string {
	switch {
	case txnCount == 0:
		return TagNoActivity
	case float64(atmCount)/float64(txnCount) >= 0.4:
		return TagCashHeavy
	case digitalRatio >= 0.7:
		return TagDigitalFirst
	case utilityCount >= 3:
		return TagUtilitiesFocused
	default:
		return TagMixedUsage
	}
}

// chargedTxnCount counts transactions of every type that accrued a positive
// fee under the schedule, priced by the tariff engine rather than guessed
// from type alone.
func chargedTxnCount(txns []domain.Transaction, schedule *domain.FeeSchedule, accountClass string) int {
	breakdown := tariff.ComputeCustomerFees(txns, schedule, accountClass)

	typeCounts := make(map[string]int)
	for i := range txns {
		typeCounts[txns[i].Type]++
	}

	count := 0
	for txType, fee := range breakdown.ByType {
		if fee.IsPositive() {
			count += typeCounts[txType]
		}
	}
	return count
}
