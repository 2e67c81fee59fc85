package kpi

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/heron/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func fptr(v float64) *float64 { return &v }

func testProfile() *domain.KPIProfile {
	return &domain.KPIProfile{
		ID:      "basic_banking_kpis",
		Name:    "Basic Banking KPIs",
		Version: "0.3.1",
		FreeTier: map[string]any{
			domain.FreeATMWithdrawalsKey: float64(2),
		},
		KPIs: map[string]domain.KPIDefinition{
			"atm_dependency_ratio": {Formula: "atm_withdrawal_count / max(total_payments, 1)"},
			"digital_adoption":     {Formula: "digital_txn_count / max(txn_count, 1)"},
			"excess_atm_cost":      {Computed: true},
			"account_fit_score":    {Computed: true},
		},
		MigrationSignals: map[string]domain.SignalDefinition{
			"cash_heavy": {
				All:     []string{"atm_dependency_ratio >= 0.4"},
				Penalty: fptr(25),
			},
			"heavy_atm_cost": {
				Legacy:  []string{"excess_atm_cost > 50"},
				Penalty: fptr(15),
			},
			"low_digital": {
				All: []string{"digital_adoption < 0.3"},
				// penalty omitted: defaults to 10
			},
		},
		InsightOutputs: map[string]domain.InsightDefinition{
			"cash_heavy":         {Message: "High ATM dependency; a bundled account would reduce withdrawal fees."},
			"heavy_atm_cost":     {Message: "Excess ATM withdrawals are costing real money each month."},
			domain.InsightGoodFit: {Message: "Current account remains a good fit."},
		},
		NorthStar: domain.NorthStar{Base: 100},
		Benefits: map[string]domain.BenefitDefinition{
			"free_atm_withdrawals": {AllowanceKey: domain.FreeATMWithdrawalsKey, UsageFeatureKey: "nedbank_atm_withdrawal_count"},
			"online_banking":       {AllowanceKey: "online_banking_included", UsageFeatureKey: "online_subscription_used"},
			"free_txn_types":       {AllowanceKey: "free_transaction_types", UsageFeatureKey: "digital_txn_count"},
			"mystery_benefit":      {AllowanceKey: "not_configured", UsageFeatureKey: "txn_count"},
		},
		Enabled: true,
	}
}

func testAccountConfig() *domain.AccountConfig {
	return &domain.AccountConfig{
		ID:           "basic_banking",
		Name:         "Basic Banking",
		MonthlyFee:   dec("57.50"),
		AccountClass: domain.AccountClassCurrent,
		FreeTier: map[string]any{
			domain.FreeATMWithdrawalsKey: float64(2),
			"online_banking_included":    true,
			"free_transaction_types":     []any{"eft_transfer_internal"},
		},
		Enabled: true,
	}
}

func atmSchedule() *domain.FeeSchedule {
	return &domain.FeeSchedule{
		ATM: domain.ATMFees{
			NedbankWithdrawal: &domain.FeeRule{
				RuleType: domain.RulePerStep, StepAmount: dec("300"), StepFee: dec("10"),
			},
		},
	}
}

func TestNewEngineRejectsBadFormula(t *testing.T) {
	profile := testProfile()
	profile.KPIs["broken"] = domain.KPIDefinition{Formula: "import os"}

	if _, err := NewEngine(profile); err == nil {
		t.Fatal("expected compile error for disallowed formula")
	} else if !strings.Contains(err.Error(), "broken") {
		t.Errorf("error should name the KPI: %v", err)
	}
}

func TestNewEngineRejectsBadSignalCondition(t *testing.T) {
	profile := testProfile()
	profile.MigrationSignals["bad"] = domain.SignalDefinition{All: []string{"x >"}}

	if _, err := NewEngine(profile); err == nil {
		t.Fatal("expected compile error for malformed condition")
	}
}

func TestComputeKPIs(t *testing.T) {
	engine, err := NewEngine(testProfile())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	features := domain.FeatureSet{
		"atm_withdrawal_count": 4,
		"total_payments":       10,
		"digital_txn_count":    6,
		"txn_count":            12,
	}

	kpis, err := engine.ComputeKPIs(features)
	if err != nil {
		t.Fatalf("ComputeKPIs: %v", err)
	}
	if got := kpis["atm_dependency_ratio"]; got != 0.4 {
		t.Errorf("atm_dependency_ratio = %v, want 0.4", got)
	}
	if got := kpis["digital_adoption"]; got != 0.5 {
		t.Errorf("digital_adoption = %v, want 0.5", got)
	}
	if _, ok := kpis["excess_atm_cost"]; ok {
		t.Error("computed KPIs must not be produced by ComputeKPIs")
	}
}

func TestComputeKPIsFailsFastWithContext(t *testing.T) {
	profile := testProfile()
	profile.KPIs["needs_missing"] = domain.KPIDefinition{Formula: "nonexistent_feature * 2"}
	engine, err := NewEngine(profile)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	_, err = engine.ComputeKPIs(domain.FeatureSet{
		"atm_withdrawal_count": 0, "total_payments": 0, "digital_txn_count": 0, "txn_count": 0,
	})
	if err == nil {
		t.Fatal("expected evaluation error")
	}
	if !strings.Contains(err.Error(), "needs_missing") || !strings.Contains(err.Error(), "nonexistent_feature") {
		t.Errorf("error should carry KPI name and formula: %v", err)
	}
}

func TestComputeExcessATMCost(t *testing.T) {
	engine, err := NewEngine(testProfile())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	txns := []domain.Transaction{
		{Type: domain.TxATMWithdrawal, ATMOwner: domain.ATMOwnerNedbank, Amount: dec("100")},
		{Type: domain.TxATMWithdrawal, ATMOwner: domain.ATMOwnerNedbank, Amount: dec("1000")},
		{Type: domain.TxATMWithdrawal, ATMOwner: domain.ATMOwnerNedbank, Amount: dec("50")},
	}
	features := domain.FeatureSet{"nedbank_atm_withdrawal_count": 3}

	// Free tier of 2 covers the cheapest two (50, 100); the 1000 withdrawal
	// is priced at 4 steps of 10.
	got := engine.ComputeExcessATMCost(features, txns, atmSchedule())
	if got != 40.0 {
		t.Errorf("ComputeExcessATMCost = %v, want 40", got)
	}
}

func TestComputeExcessATMCostEdgeCases(t *testing.T) {
	engine, err := NewEngine(testProfile())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	schedule := atmSchedule()

	withdrawals := []domain.Transaction{
		{Type: domain.TxATMWithdrawal, ATMOwner: domain.ATMOwnerNedbank, Amount: dec("400")},
		{Type: domain.TxATMWithdrawal, ATMOwner: domain.ATMOwnerNedbank, Amount: dec("200")},
	}

	t.Run("within free tier", func(t *testing.T) {
		features := domain.FeatureSet{"nedbank_atm_withdrawal_count": 2}
		if got := engine.ComputeExcessATMCost(features, withdrawals, schedule); got != 0 {
			t.Errorf("got %v, want 0", got)
		}
	})

	t.Run("nil schedule", func(t *testing.T) {
		features := domain.FeatureSet{"nedbank_atm_withdrawal_count": 3}
		if got := engine.ComputeExcessATMCost(features, withdrawals, nil); got != 0 {
			t.Errorf("got %v, want 0", got)
		}
	})

	t.Run("no transactions", func(t *testing.T) {
		features := domain.FeatureSet{"nedbank_atm_withdrawal_count": 3}
		if got := engine.ComputeExcessATMCost(features, nil, schedule); got != 0 {
			t.Errorf("got %v, want 0", got)
		}
	})

	t.Run("other bank withdrawals are ignored", func(t *testing.T) {
		txns := []domain.Transaction{
			{Type: domain.TxATMWithdrawal, ATMOwner: "other_bank", Amount: dec("900")},
			{Type: domain.TxATMWithdrawal, ATMOwner: domain.ATMOwnerNedbank, Amount: dec("300")},
			{Type: domain.TxATMWithdrawal, ATMOwner: domain.ATMOwnerNedbank, Amount: dec("300")},
			{Type: domain.TxATMWithdrawal, ATMOwner: domain.ATMOwnerNedbank, Amount: dec("300")},
		}
		features := domain.FeatureSet{"nedbank_atm_withdrawal_count": 3}
		if got := engine.ComputeExcessATMCost(features, txns, schedule); got != 10 {
			t.Errorf("got %v, want 10", got)
		}
	})
}

func TestEvaluateMigrationSignals(t *testing.T) {
	engine, err := NewEngine(testProfile())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	kpis := map[string]float64{
		"atm_dependency_ratio": 0.5,
		"digital_adoption":     0.2,
		"excess_atm_cost":      60,
		"txn_count":            10,
	}

	fired := engine.EvaluateMigrationSignals(kpis)
	want := []string{"cash_heavy", "heavy_atm_cost", "low_digital"}
	if len(fired) != len(want) {
		t.Fatalf("fired = %v, want %v", fired, want)
	}
	for i, name := range want {
		if fired[i] != name {
			t.Errorf("fired[%d] = %q, want %q (sorted order)", i, fired[i], name)
		}
	}
}

func TestSignalsAreFaultTolerant(t *testing.T) {
	profile := testProfile()
	profile.MigrationSignals["references_unknown"] = domain.SignalDefinition{
		All: []string{"kpi_that_never_exists > 1"},
	}
	engine, err := NewEngine(profile)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	fired := engine.EvaluateMigrationSignals(map[string]float64{
		"atm_dependency_ratio": 0, "digital_adoption": 1, "excess_atm_cost": 0, "txn_count": 1,
	})
	for _, name := range fired {
		if name == "references_unknown" {
			t.Error("signal with unevaluable condition must not fire")
		}
	}
}

func TestComputeAccountFitScore(t *testing.T) {
	engine, err := NewEngine(testProfile())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	tests := []struct {
		name    string
		signals []string
		want    float64
	}{
		{"no signals", nil, 100},
		{"one signal", []string{"cash_heavy"}, 75},
		{"default penalty applies", []string{"low_digital"}, 90},
		{"all signals", []string{"cash_heavy", "heavy_atm_cost", "low_digital"}, 50},
		{"unknown signal ignored", []string{"not_in_profile"}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := engine.ComputeAccountFitScore(tt.signals); got != tt.want {
				t.Errorf("score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFitScoreClampsAfterFullDeduction(t *testing.T) {
	profile := testProfile()
	profile.MigrationSignals["massive_a"] = domain.SignalDefinition{All: []string{"txn_count >= 0"}, Penalty: fptr(80)}
	profile.MigrationSignals["massive_b"] = domain.SignalDefinition{All: []string{"txn_count >= 0"}, Penalty: fptr(80)}
	engine, err := NewEngine(profile)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	if got := engine.ComputeAccountFitScore([]string{"massive_a", "massive_b"}); got != 0 {
		t.Errorf("score = %v, want clamp to 0", got)
	}
}

func TestGenerateInsights(t *testing.T) {
	engine, err := NewEngine(testProfile())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	t.Run("signal keyed messages", func(t *testing.T) {
		got := engine.GenerateInsights([]string{"cash_heavy", "heavy_atm_cost"})
		if len(got) != 2 {
			t.Fatalf("insights = %v, want 2 messages", got)
		}
	})

	t.Run("good fit fallback keeps insights non-empty", func(t *testing.T) {
		got := engine.GenerateInsights(nil)
		if len(got) != 1 {
			t.Fatalf("insights = %v, want exactly the fallback", got)
		}
		if !strings.Contains(got[0], "good fit") {
			t.Errorf("fallback message = %q", got[0])
		}
	})

	t.Run("signal without configured insight falls back", func(t *testing.T) {
		got := engine.GenerateInsights([]string{"low_digital"})
		if len(got) != 1 || !strings.Contains(got[0], "good fit") {
			t.Errorf("insights = %v, want fallback only", got)
		}
	})
}

func TestComputeBenefits(t *testing.T) {
	engine, err := NewEngine(testProfile())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	features := domain.FeatureSet{
		"nedbank_atm_withdrawal_count": 3,
		"online_subscription_used":     1,
		"digital_txn_count":            5,
		"txn_count":                    9,
	}

	got := engine.ComputeBenefits(features, testAccountConfig())

	atm := got["free_atm_withdrawals"]
	if atm.Usage != 3 {
		t.Errorf("atm usage = %d, want 3", atm.Usage)
	}
	if atm.Remaining != 0 {
		t.Errorf("atm remaining = %v, want 0 (over allowance)", atm.Remaining)
	}

	if online := got["online_banking"]; online.Remaining != "included" {
		t.Errorf("online remaining = %v, want included", online.Remaining)
	}
	if freeTypes := got["free_txn_types"]; freeTypes.Remaining != "included" {
		t.Errorf("list allowance remaining = %v, want included", freeTypes.Remaining)
	}
	if mystery := got["mystery_benefit"]; mystery.Remaining != "unknown" {
		t.Errorf("missing allowance remaining = %v, want unknown", mystery.Remaining)
	}
}

func TestComputeAll(t *testing.T) {
	engine, err := NewEngine(testProfile())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	txns := []domain.Transaction{
		{Type: domain.TxATMWithdrawal, ATMOwner: domain.ATMOwnerNedbank, Amount: dec("300")},
		{Type: domain.TxATMWithdrawal, ATMOwner: domain.ATMOwnerNedbank, Amount: dec("300")},
		{Type: domain.TxATMWithdrawal, ATMOwner: domain.ATMOwnerNedbank, Amount: dec("900")},
	}
	features := domain.FeatureSet{
		"atm_withdrawal_count":         3,
		"total_payments":               3,
		"digital_txn_count":            0,
		"txn_count":                    3,
		"nedbank_atm_withdrawal_count": 3,
		"online_subscription_used":     0,
	}

	report, err := engine.ComputeAll(features, txns, atmSchedule(), testAccountConfig())
	if err != nil {
		t.Fatalf("ComputeAll: %v", err)
	}

	// One excess withdrawal (900) at 3 steps of 10.
	if got := report.KPIs["excess_atm_cost"]; got != 30 {
		t.Errorf("excess_atm_cost = %v, want 30", got)
	}
	// atm ratio 1.0 and zero digital adoption fire cash_heavy + low_digital.
	if len(report.MigrationSignals) != 2 {
		t.Errorf("signals = %v, want cash_heavy and low_digital", report.MigrationSignals)
	}
	if report.AccountFitScore != 65 {
		t.Errorf("fit score = %v, want 65", report.AccountFitScore)
	}
	if report.KPIs["account_fit_score"] != report.AccountFitScore {
		t.Error("account_fit_score KPI must mirror the report score")
	}
	if len(report.Insights) == 0 {
		t.Error("insights must never be empty")
	}
	if len(report.Benefits) == 0 {
		t.Error("benefits missing despite account config")
	}
}
