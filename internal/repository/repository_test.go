package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

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

func TestSQLiteRepository(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "heron-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetCustomer", func(t *testing.T) {
		turnover := dec("1500000")
		c := &domain.Customer{
			ID:             "CUST_001",
			Segment:        domain.SegmentSME,
			AnnualTurnover: &turnover,
		}

		if err := repo.SaveCustomer(ctx, tenantID, c); err != nil {
			t.Fatalf("SaveCustomer failed: %v", err)
		}

		retrieved, err := repo.GetCustomer(ctx, tenantID, "CUST_001")
		if err != nil {
			t.Fatalf("GetCustomer failed: %v", err)
		}
		if retrieved.Segment != domain.SegmentSME {
			t.Errorf("segment = %q", retrieved.Segment)
		}
		if retrieved.AnnualTurnover == nil || !retrieved.AnnualTurnover.Equal(turnover) {
			t.Errorf("annual turnover = %v, want %s", retrieved.AnnualTurnover, turnover)
		}
	})

	t.Run("CustomerUpsertAndNilTurnover", func(t *testing.T) {
		c := &domain.Customer{ID: "CUST_001", Segment: domain.SegmentIndividual}
		if err := repo.SaveCustomer(ctx, tenantID, c); err != nil {
			t.Fatalf("SaveCustomer failed: %v", err)
		}

		retrieved, err := repo.GetCustomer(ctx, tenantID, "CUST_001")
		if err != nil {
			t.Fatalf("GetCustomer failed: %v", err)
		}
		if retrieved.Segment != domain.SegmentIndividual {
			t.Errorf("segment not updated: %q", retrieved.Segment)
		}
		if retrieved.AnnualTurnover != nil {
			t.Errorf("expected nil turnover after upsert, got %s", retrieved.AnnualTurnover)
		}
	})

	t.Run("SaveAndListTransactions", func(t *testing.T) {
		now := time.Now().UTC()
		txs := []*domain.Transaction{
			{
				ID: "tx-002", CustomerID: "CUST_001", Type: domain.TxPOSPurchase,
				Amount: dec("200"), Channel: domain.ChannelPOS,
				Timestamp: now,
			},
			{
				ID: "tx-001", CustomerID: "CUST_001", Type: domain.TxATMWithdrawal,
				Amount: dec("450.50"), Channel: domain.ChannelATM,
				ATMOwner: domain.ATMOwnerNedbank, Timestamp: now.Add(-time.Hour),
			},
		}

		if err := repo.SaveTransactions(ctx, tenantID, txs); err != nil {
			t.Fatalf("SaveTransactions failed: %v", err)
		}

		retrieved, err := repo.GetTransactionsByCustomer(ctx, tenantID, "CUST_001")
		if err != nil {
			t.Fatalf("GetTransactionsByCustomer failed: %v", err)
		}
		if len(retrieved) != 2 {
			t.Fatalf("got %d transactions, want 2", len(retrieved))
		}
		// Oldest first.
		if retrieved[0].ID != "tx-001" {
			t.Errorf("first transaction = %s, want tx-001", retrieved[0].ID)
		}
		if !retrieved[0].Amount.Equal(dec("450.50")) {
			t.Errorf("amount = %s, want 450.50", retrieved[0].Amount)
		}
		if retrieved[0].ATMOwner != domain.ATMOwnerNedbank {
			t.Errorf("atm owner = %q", retrieved[0].ATMOwner)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		if _, err := repo.GetCustomer(ctx, "tenant-002", "CUST_001"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for different tenant, got: %v", err)
		}
		txs, err := repo.GetTransactionsByCustomer(ctx, "tenant-002", "CUST_001")
		if err != nil {
			t.Fatalf("GetTransactionsByCustomer failed: %v", err)
		}
		if len(txs) != 0 {
			t.Errorf("transactions leaked across tenants: %d", len(txs))
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := repo.SaveCustomer(ctx, "", &domain.Customer{ID: "x"}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got: %v", err)
		}
		if _, err := repo.GetCustomer(ctx, "", "CUST_001"); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got: %v", err)
		}
	})

	t.Run("FeeScheduleRoundTrip", func(t *testing.T) {
		s := &domain.FeeSchedule{
			ID: "nedbank_2026_27", Name: "Nedbank Namibia 2026/27", Version: "2026.27",
			ATM: domain.ATMFees{
				NedbankWithdrawal: &domain.FeeRule{
					RuleType: domain.RulePerStep, StepAmount: dec("300"), StepFee: dec("10"),
				},
			},
			CashDeposit: domain.CashDepositTerms{
				TurnoverThreshold: dec("1300000"),
				ChargePolicy:      domain.ChargePolicyDoNotChargeFlag,
			},
			Enabled: true,
		}

		if err := repo.SaveFeeSchedule(ctx, tenantID, s); err != nil {
			t.Fatalf("SaveFeeSchedule failed: %v", err)
		}

		retrieved, err := repo.GetFeeSchedule(ctx, tenantID, s.ID)
		if err != nil {
			t.Fatalf("GetFeeSchedule failed: %v", err)
		}
		rule := retrieved.ATM.NedbankWithdrawal
		if rule == nil || rule.RuleType != domain.RulePerStep || !rule.StepFee.Equal(dec("10")) {
			t.Errorf("atm rule did not survive round trip: %+v", rule)
		}
		if !retrieved.CashDeposit.TurnoverThreshold.Equal(dec("1300000")) {
			t.Errorf("turnover threshold = %s", retrieved.CashDeposit.TurnoverThreshold)
		}

		list, err := repo.ListFeeSchedules(ctx, tenantID)
		if err != nil {
			t.Fatalf("ListFeeSchedules failed: %v", err)
		}
		if len(list) != 1 {
			t.Errorf("listed %d schedules, want 1", len(list))
		}
	})

	t.Run("SaveFeeScheduleRejectsInvalidRule", func(t *testing.T) {
		bad := &domain.FeeSchedule{
			ID: "broken", Name: "Broken",
			Online: map[string]*domain.FeeRule{
				"eft_transfer": {RuleType: "percentage_of_amount"},
			},
			Enabled: true,
		}
		if err := repo.SaveFeeSchedule(ctx, tenantID, bad); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got: %v", err)
		}
	})

	t.Run("AccountConfigRoundTrip", func(t *testing.T) {
		a := &domain.AccountConfig{
			ID: "silver_payu", Name: "Silver Pay-As-You-Use",
			MonthlyFee: dec("30.00"), AccountClass: domain.AccountClassCurrent,
			FreeTier:     map[string]any{domain.FreeATMWithdrawalsKey: float64(2)},
			KPIProfileID: "basic_banking_kpis",
			Enabled:      true,
		}

		if err := repo.SaveAccountConfig(ctx, tenantID, a); err != nil {
			t.Fatalf("SaveAccountConfig failed: %v", err)
		}

		retrieved, err := repo.GetAccountConfig(ctx, tenantID, "silver_payu")
		if err != nil {
			t.Fatalf("GetAccountConfig failed: %v", err)
		}
		if !retrieved.MonthlyFee.Equal(dec("30.00")) {
			t.Errorf("monthly fee = %s", retrieved.MonthlyFee)
		}
		if retrieved.KPIProfileID != "basic_banking_kpis" {
			t.Errorf("kpi profile = %q", retrieved.KPIProfileID)
		}
	})

	t.Run("KPIProfileLifecycle", func(t *testing.T) {
		p := &domain.KPIProfile{
			ID: "basic_banking_kpis", Name: "Basic Banking KPIs", Version: "0.3.1",
			KPIs: map[string]domain.KPIDefinition{
				"atm_dependency_ratio": {Formula: "atm_withdrawal_count / max(total_payments, 1)"},
			},
			MigrationSignals: map[string]domain.SignalDefinition{
				"cash_heavy": {All: []string{"atm_dependency_ratio >= 0.4"}},
			},
			Enabled: true,
		}

		if err := repo.SaveKPIProfile(ctx, tenantID, p); err != nil {
			t.Fatalf("SaveKPIProfile failed: %v", err)
		}

		retrieved, err := repo.GetKPIProfile(ctx, tenantID, p.ID)
		if err != nil {
			t.Fatalf("GetKPIProfile failed: %v", err)
		}
		if retrieved.KPIs["atm_dependency_ratio"].Formula == "" {
			t.Error("kpi formula did not survive round trip")
		}

		if err := repo.DeleteKPIProfile(ctx, tenantID, p.ID); err != nil {
			t.Fatalf("DeleteKPIProfile failed: %v", err)
		}
		if _, err := repo.GetKPIProfile(ctx, tenantID, p.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("soft-deleted profile still served: %v", err)
		}
		if err := repo.DeleteKPIProfile(ctx, tenantID, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("AssessmentRoundTrip", func(t *testing.T) {
		a := &domain.Assessment{
			ID:            "asm-001",
			TenantID:      tenantID,
			CustomerID:    "CUST_001",
			AccountTypeID: "silver_payu",
			FixedFee:      dec("30.00"),
			VariableFee:   dec("73.50"),
			TotalFee:      dec("103.50"),
			KPI: &domain.KPIReport{
				AccountFitScore:  65,
				MigrationSignals: []string{"cash_heavy"},
			},
			Timestamp: time.Now().UTC(),
		}

		if err := repo.SaveAssessment(ctx, tenantID, a); err != nil {
			t.Fatalf("SaveAssessment failed: %v", err)
		}

		retrieved, err := repo.GetAssessment(ctx, tenantID, "asm-001")
		if err != nil {
			t.Fatalf("GetAssessment failed: %v", err)
		}
		if !retrieved.TotalFee.Equal(dec("103.50")) {
			t.Errorf("total fee = %s", retrieved.TotalFee)
		}
		if retrieved.KPI == nil || retrieved.KPI.AccountFitScore != 65 {
			t.Errorf("kpi report did not survive round trip: %+v", retrieved.KPI)
		}

		list, err := repo.ListAssessmentsByCustomer(ctx, tenantID, "CUST_001")
		if err != nil {
			t.Fatalf("ListAssessmentsByCustomer failed: %v", err)
		}
		if len(list) != 1 || list[0].ID != "asm-001" {
			t.Errorf("listed assessments = %v", list)
		}
	})
}
