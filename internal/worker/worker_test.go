package worker

import (
	"context"
	"encoding/json"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/heron/internal/assess"
	"github.com/opensource-finance/heron/internal/bus"
	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/repository"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func fptr(v float64) *float64 { return &v }

func testRegistry(t *testing.T) *assess.Registry {
	t.Helper()
	r := assess.NewRegistry()

	schedule := &domain.FeeSchedule{
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
	account := &domain.AccountConfig{
		ID: "silver_payu", Name: "Silver Pay-As-You-Use",
		MonthlyFee: dec("30.00"), AccountClass: domain.AccountClassCurrent,
		KPIProfileID: "basic_banking_kpis", Enabled: true,
	}
	profile := &domain.KPIProfile{
		ID: "basic_banking_kpis", Name: "Basic Banking KPIs", Version: "0.3.1",
		KPIs: map[string]domain.KPIDefinition{
			"atm_dependency_ratio": {Formula: "atm_withdrawal_count / max(total_payments, 1)"},
			"excess_atm_cost":      {Computed: true},
			"account_fit_score":    {Computed: true},
		},
		MigrationSignals: map[string]domain.SignalDefinition{
			"cash_heavy": {All: []string{"atm_dependency_ratio >= 0.4"}, Penalty: fptr(25)},
		},
		InsightOutputs: map[string]domain.InsightDefinition{
			domain.InsightGoodFit: {Message: "Good fit."},
		},
		Enabled: true,
	}

	if err := r.LoadSchedule(schedule); err != nil {
		t.Fatalf("LoadSchedule: %v", err)
	}
	if err := r.LoadAccount(account); err != nil {
		t.Fatalf("LoadAccount: %v", err)
	}
	if err := r.LoadProfile(profile); err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	return r
}

func testRepo(t *testing.T) domain.Repository {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "heron-worker-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	ctx := context.Background()
	tenantID := "tenant-test"

	repo := testRepo(t)
	processor := assess.NewProcessor(testRegistry(t))

	// Seed an ATM-heavy customer.
	if err := repo.SaveCustomer(ctx, tenantID, &domain.Customer{
		ID: "CUST_001", Segment: domain.SegmentIndividual,
	}); err != nil {
		t.Fatalf("SaveCustomer: %v", err)
	}
	now := time.Now().UTC()
	txns := []*domain.Transaction{
		{ID: "tx-1", CustomerID: "CUST_001", Type: domain.TxATMWithdrawal,
			Channel: domain.ChannelATM, ATMOwner: domain.ATMOwnerNedbank,
			Amount: dec("300"), Timestamp: now},
		{ID: "tx-2", CustomerID: "CUST_001", Type: domain.TxATMWithdrawal,
			Channel: domain.ChannelATM, ATMOwner: domain.ATMOwnerNedbank,
			Amount: dec("600"), Timestamp: now},
	}
	if err := repo.SaveTransactions(ctx, tenantID, txns); err != nil {
		t.Fatalf("SaveTransactions: %v", err)
	}

	t.Run("StartAndStop", func(t *testing.T) {
		worker := NewWorker(eventBus, repo, processor)

		if err := worker.Start(Config{TenantIDs: []string{tenantID}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := worker.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}

		if err := worker.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if stats := worker.GetStats(); stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessAssessmentRequest", func(t *testing.T) {
		w := NewWorker(eventBus, repo, processor)
		w.Start(Config{TenantIDs: []string{tenantID}})
		defer w.Stop()

		var completedReceived atomic.Bool
		var completedPayload []byte
		var signalReceived atomic.Bool

		eventBus.Subscribe(ctx, tenantID, domain.TopicAssessmentCompleted, func(ctx context.Context, msg *domain.Message) error {
			completedPayload = msg.Payload
			completedReceived.Store(true)
			return nil
		})
		eventBus.Subscribe(ctx, tenantID, domain.TopicSignalFired, func(ctx context.Context, msg *domain.Message) error {
			signalReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		req := AssessmentRequest{
			TenantID:      tenantID,
			TraceID:       "trace-001",
			CustomerID:    "CUST_001",
			AccountTypeID: "silver_payu",
			ScheduleID:    "nedbank_2026_27",
		}
		payload, _ := json.Marshal(req)
		if err := eventBus.Publish(ctx, tenantID, domain.TopicAssessmentRequested, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		time.Sleep(200 * time.Millisecond)

		if !completedReceived.Load() {
			t.Fatal("expected assessment to be published")
		}

		var a domain.Assessment
		if err := json.Unmarshal(completedPayload, &a); err != nil {
			t.Fatalf("failed to parse assessment: %v", err)
		}
		if a.CustomerID != "CUST_001" {
			t.Errorf("customer id = %q", a.CustomerID)
		}
		// Two withdrawals of 300 and 600 at 10 per 300 step.
		if !a.Fees.VariableTotal.Equal(dec("30.00")) {
			t.Errorf("variable total = %s, want 30.00", a.Fees.VariableTotal)
		}
		if a.Metadata.TraceID != "trace-001" {
			t.Errorf("trace id = %q", a.Metadata.TraceID)
		}

		// All transactions are ATM withdrawals, so cash_heavy fires.
		if !signalReceived.Load() {
			t.Error("expected signal event to be published")
		}

		saved, err := repo.ListAssessmentsByCustomer(ctx, tenantID, "CUST_001")
		if err != nil {
			t.Fatalf("ListAssessmentsByCustomer: %v", err)
		}
		if len(saved) == 0 {
			t.Error("expected assessment to be persisted")
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := NewWorker(eventBus, repo, processor)
		w.Start(Config{TenantIDs: []string{"tenant-a", "tenant-b"}})
		defer w.Stop()

		if stats := w.GetStats(); stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions for 2 tenants, got %d", stats.SubscriptionCount)
		}
	})
}

func TestAssessmentRequestParsing(t *testing.T) {
	req := AssessmentRequest{
		TenantID:      "tenant-001",
		TraceID:       "trace-456",
		CustomerID:    "CUST_042",
		AccountTypeID: "silver_payu",
		ScheduleID:    "nedbank_2026_27",
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var parsed AssessmentRequest
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if parsed.CustomerID != req.CustomerID {
		t.Errorf("expected CustomerID %q, got %q", req.CustomerID, parsed.CustomerID)
	}
	if parsed.ScheduleID != req.ScheduleID {
		t.Errorf("expected ScheduleID %q, got %q", req.ScheduleID, parsed.ScheduleID)
	}
}
