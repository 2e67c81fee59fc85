package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RuleType discriminates the fee rule variants in a schedule.
type RuleType string

const (
	RuleFlat            RuleType = "flat"
	RulePerStep         RuleType = "per_step"
	RuleBasePlusStepCap RuleType = "base_plus_step_cap"
	RuleFlatPerEvent    RuleType = "flat_per_event"
)

// FeeRule is a tagged variant over the schedule's rule shapes. Which fields
// are meaningful depends on RuleType; Validate enforces that at decode time
// so an unknown rule_type can never silently price to zero.
type FeeRule struct {
	RuleType RuleType `json:"rule_type"`

	// flat / flat_per_event
	Value decimal.Decimal `json:"value,omitempty"`

	// per_step / base_plus_step_cap
	StepAmount decimal.Decimal `json:"step_amount,omitempty"`
	StepFee    decimal.Decimal `json:"step_fee,omitempty"`

	// base_plus_step_cap
	BaseFee decimal.Decimal `json:"base_fee,omitempty"`
	Cap     decimal.Decimal `json:"cap,omitempty"`
}

// Validate rejects unknown rule types and zero step sizes. Deserialization
// fails closed: a schedule that does not validate is never loaded.
func (r *FeeRule) Validate() error {
	switch r.RuleType {
	case RuleFlat, RuleFlatPerEvent:
		return nil
	case RulePerStep:
		if r.StepAmount.IsZero() {
			return fmt.Errorf("per_step rule requires a non-zero step_amount")
		}
		return nil
	case RuleBasePlusStepCap:
		if r.StepAmount.IsZero() {
			return fmt.Errorf("base_plus_step_cap rule requires a non-zero step_amount")
		}
		return nil
	case "":
		return fmt.Errorf("rule_type is required")
	default:
		return fmt.Errorf("unknown rule_type: %q", r.RuleType)
	}
}

// ATMFees holds the ATM withdrawal rules. The nedbank rule is also reused by
// the KPI engine's excess-cost computation.
type ATMFees struct {
	NedbankWithdrawal   *FeeRule `json:"nedbank_atm_withdrawal,omitempty"`
	OtherBankWithdrawal *FeeRule `json:"other_bank_atm_withdrawal,omitempty"`
}

// POSFees holds POS purchase rules, keyed first by scope then account class.
type POSFees struct {
	Local map[string]*FeeRule `json:"local,omitempty"`
}

// Turnover-missing charge policies. Only do_not_charge_flag is accepted;
// charging on unknown turnover is deliberately unrepresentable.
const ChargePolicyDoNotChargeFlag = "do_not_charge_flag"

// CashDepositTerms gates the branch cash deposit fee by segment and turnover.
type CashDepositTerms struct {
	TurnoverThreshold decimal.Decimal `json:"turnover_threshold"`
	ChargePolicy      string          `json:"charge_policy_when_turnover_missing"`
	FeeIfApplicable   *FeeRule        `json:"fee_if_applicable,omitempty"`
}

// FeeSchedule is a bank tariff book: channel/type keyed rule definitions
// plus the cash deposit block. Delivered to the core already decoded.
type FeeSchedule struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId,omitempty"`
	Name     string `json:"name"`
	Version  string `json:"version"`

	Online      map[string]*FeeRule `json:"online,omitempty"`
	ATM         ATMFees             `json:"atm"`
	POS         POSFees             `json:"pos"`
	CashDeposit CashDepositTerms    `json:"cash_deposit"`

	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Validate walks every rule in the schedule. Unknown rule types or a
// charge-on-missing-turnover policy are configuration errors.
func (s *FeeSchedule) Validate() error {
	for txType, rule := range s.Online {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("online.%s: %w", txType, err)
		}
	}
	if r := s.ATM.NedbankWithdrawal; r != nil {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("atm.nedbank_atm_withdrawal: %w", err)
		}
	}
	if r := s.ATM.OtherBankWithdrawal; r != nil {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("atm.other_bank_atm_withdrawal: %w", err)
		}
	}
	for class, rule := range s.POS.Local {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("pos.local.%s: %w", class, err)
		}
	}
	if s.CashDeposit.ChargePolicy != "" && s.CashDeposit.ChargePolicy != ChargePolicyDoNotChargeFlag {
		return fmt.Errorf("cash_deposit: unsupported charge_policy_when_turnover_missing %q", s.CashDeposit.ChargePolicy)
	}
	if r := s.CashDeposit.FeeIfApplicable; r != nil {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("cash_deposit.fee_if_applicable: %w", err)
		}
	}
	return nil
}
