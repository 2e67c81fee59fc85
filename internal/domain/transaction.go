package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction channels.
const (
	ChannelOnline = "online"
	ChannelATM    = "atm"
	ChannelPOS    = "pos"
	ChannelBranch = "branch"
)

// Transaction types with dedicated handling in the tariff and KPI engines.
// Any other type string is carried through and simply accrues no fee.
const (
	TxIncome              = "income"
	TxATMWithdrawal       = "atm_withdrawal"
	TxPOSPurchase         = "pos_purchase"
	TxCashDeposit         = "cash_deposit"
	TxCashout             = "cashout"
	TxAirtimePurchase     = "airtime_purchase"
	TxElectricityPurchase = "electricity_purchase"
	TxThirdPartyPayment   = "third_party_payment"
	TxEFTTransfer         = "eft_transfer"
	TxEFTInternal         = "eft_transfer_internal"
	TxEFTExternal         = "eft_transfer_external"
)

// ATMOwnerNedbank marks withdrawals at own-brand ATMs; any other owner
// value takes the other-bank fee path.
const ATMOwnerNedbank = "nedbank"

// POSScopeLocal is the only POS scope with a configured fee today.
const POSScopeLocal = "local"

// MerchantRetailCashout marks POS purchases that are really cash-out events.
const MerchantRetailCashout = "retail_cashout"

// Transaction is one ledger line for a customer. Income amounts are stored
// negative; fee computation always works on the magnitude.
type Transaction struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenantId"`
	CustomerID string `json:"customerId"`

	Type    string          `json:"type"`
	Amount  decimal.Decimal `json:"amount"`
	Channel string          `json:"channel,omitempty"`

	// Optional classifiers. Absent values degrade to the documented
	// defaults instead of erroring.
	ATMOwner      string `json:"atmOwner,omitempty"`
	POSScope      string `json:"posScope,omitempty"`
	TransferScope string `json:"transferScope,omitempty"`
	Merchant      string `json:"merchant,omitempty"`

	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`
}

// AbsAmount returns the transaction magnitude used for fee computation.
func (t *Transaction) AbsAmount() decimal.Decimal {
	return t.Amount.Abs()
}

// Customer segments.
const (
	SegmentIndividual = "individual"
	SegmentSME        = "sme"
	SegmentBusiness   = "business"
)

// Customer is the profile attached to a transaction history.
// AnnualTurnover is nil when unknown; the deposit fee path must never
// guess and charge on a nil turnover.
type Customer struct {
	ID             string           `json:"id"`
	TenantID       string           `json:"tenantId"`
	Segment        string           `json:"segment"`
	AnnualTurnover *decimal.Decimal `json:"annualTurnover,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// FeatureSet is the flat behavioural feature snapshot for one customer,
// derived once from their transaction set. Values are float64, int, bool or
// string (the behaviour tag). It is the sole input namespace for KPI
// formulas, merged with the profile's free-tier constants.
type FeatureSet map[string]any

// Float returns a numeric feature as float64, tolerating int and bool values.
func (f FeatureSet) Float(key string) (float64, bool) {
	switch v := f[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Int returns a count feature, defaulting to zero when absent.
func (f FeatureSet) Int(key string) int {
	v, ok := f.Float(key)
	if !ok {
		return 0
	}
	return int(v)
}
