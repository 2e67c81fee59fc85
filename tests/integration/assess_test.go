//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Heron account fit engine.
//
// These tests verify the COMPLETE assessment pipeline:
//
//	Transactions → Features → Tariff Fees → KPIs → Signals → Assessment
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. TRANSACTION: One ledger event for a customer (ATM withdrawal, POS
//    purchase, EFT, cash deposit, ...)
//
// 2. FEE SCHEDULE: The bank's published tariff. Each fee is a rule:
//   - flat: fixed amount per event
//   - per_step: fee per started step of the amount (e.g. N$10 per N$300)
//   - base_plus_step: base fee plus stepped fee, optionally capped
//
// 3. ACCOUNT PRODUCT: A monthly-fee package (bundled or pay-as-you-use),
//    optionally pointing at a KPI profile.
//
// 4. KPI PROFILE: Formula-driven indicators over the feature set, plus
//    migration signals (threshold conditions) and insight templates.
//
// 5. ASSESSMENT: The final verdict - what the account costs this customer
//    per month and how well it fits their behaviour (fit score 0-100).
//
// REQUIRED CONFIG (seeded by these tests via the API):
//
// | Document                  | Endpoint            |
// |---------------------------|---------------------|
// | integration_2026_27       | POST /schedules     |
// | integration_payu          | POST /accounts      |
// | integration_kpis          | POST /kpi-profiles  |
//
// NOTE: Configuration is database-driven. No built-in documents exist.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL  string
	TenantID string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("HERON_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL:  baseURL,
		TenantID: "test-tenant",
	}
}

// ============================================================================
// API Request/Response Types (matching Heron's API contract)
// ============================================================================

type CustomerPayload struct {
	ID             string `json:"id"`
	Segment        string `json:"segment"`
	AnnualTurnover string `json:"annualTurnover,omitempty"`
}

type TransactionPayload struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Amount   string `json:"amount"`
	Channel  string `json:"channel,omitempty"`
	ATMOwner string `json:"atmOwner,omitempty"`
	Merchant string `json:"merchant,omitempty"`
}

// AssessRequest is the body sent to POST /assess
type AssessRequest struct {
	Customer      *CustomerPayload     `json:"customer,omitempty"`
	CustomerID    string               `json:"customerId,omitempty"`
	Transactions  []TransactionPayload `json:"transactions,omitempty"`
	AccountTypeID string               `json:"accountTypeId"`
	ScheduleID    string               `json:"scheduleId"`
}

// AssessResponse is what POST /assess returns
type AssessResponse struct {
	ID            string `json:"id"`
	CustomerID    string `json:"customerId"`
	AccountTypeID string `json:"accountTypeId"`

	FixedFee    string `json:"fixedFee"`
	VariableFee string `json:"variableFee"`
	TotalFee    string `json:"totalFee"`

	KPI *struct {
		KPIs             map[string]float64 `json:"kpis"`
		AccountFitScore  float64            `json:"accountFitScore"`
		MigrationSignals []string           `json:"migrationSignals"`
		Insights         []string           `json:"insights"`
	} `json:"kpi"`

	Metadata struct {
		TraceID       string `json:"traceId"`
		TotalMs       int64  `json:"totalMs"`
		EngineVersion string `json:"engineVersion"`
	} `json:"metadata"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func post(t *testing.T, config TestConfig, path string, payload any) (*http.Response, []byte) {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	httpReq, err := http.NewRequest("POST", config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", config.TenantID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp, respBody
}

func assess(t *testing.T, config TestConfig, req AssessRequest) AssessResponse {
	t.Helper()

	resp, body := post(t, config, "/assess", req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, string(body))
	}

	var result AssessResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(body))
	}
	return result
}

// seedConfig creates the schedule, account product and KPI profile the
// scenarios below price against. Creating an existing document upserts it, so
// re-runs are safe.
func seedConfig(t *testing.T, config TestConfig) {
	t.Helper()

	schedule := map[string]any{
		"id":      "integration_2026_27",
		"name":    "Integration Tariff 2026/27",
		"version": "2026.27",
		"atm": map[string]any{
			"nedbank_atm_withdrawal": map[string]any{
				"rule_type":   "per_step",
				"step_amount": "300",
				"step_fee":    "10",
			},
		},
		"cash_deposit": map[string]any{
			"turnover_threshold":                  "1300000",
			"charge_policy_when_turnover_missing": "do_not_charge_flag",
		},
		"enabled": true,
	}
	if resp, body := post(t, config, "/schedules", schedule); resp.StatusCode != http.StatusCreated {
		t.Fatalf("Failed to seed schedule: %d: %s", resp.StatusCode, string(body))
	}

	account := map[string]any{
		"id":             "integration_payu",
		"name":           "Integration Pay-As-You-Use",
		"monthly_fee":   "30.00",
		"account_class": "current",
		"kpi_profile":   "integration_kpis",
		"enabled":       true,
	}
	if resp, body := post(t, config, "/accounts", account); resp.StatusCode != http.StatusCreated {
		t.Fatalf("Failed to seed account: %d: %s", resp.StatusCode, string(body))
	}

	profile := map[string]any{
		"id":      "integration_kpis",
		"name":    "Integration KPIs",
		"version": "1.0.0",
		"kpis": map[string]any{
			"atm_dependency_ratio": map[string]any{
				"formula": "atm_withdrawal_count / max(total_payments, 1)",
			},
			"digital_ratio_kpi": map[string]any{
				"formula": "digital_txn_count / max(txn_count, 1)",
			},
			"excess_atm_cost":   map[string]any{"computed": true},
			"account_fit_score": map[string]any{"computed": true},
		},
		"migration_signals": map[string]any{
			"cash_heavy": map[string]any{
				"all":     []string{"atm_dependency_ratio >= 0.5"},
				"penalty": 25,
			},
		},
		"insight_outputs": map[string]any{
			"good_fit": map[string]any{"message": "Good fit."},
		},
		"enabled": true,
	}
	if resp, body := post(t, config, "/kpi-profiles", profile); resp.StatusCode != http.StatusCreated {
		t.Fatalf("Failed to seed kpi profile: %d: %s", resp.StatusCode, string(body))
	}
}

// ============================================================================
// SCENARIO 1: Digital-First Customer (No Signals)
// ============================================================================

func TestDigitalCustomer_NoSignals(t *testing.T) {
	/*
	   SCENARIO: A customer who transacts only through POS and EFT

	   EXPECTED BEHAVIOR:
	   - No ATM fee rule matches → variable fee 0
	   - Total fee = monthly fee only (N$30.00)
	   - atm_dependency_ratio = 0 → cash_heavy does not fire
	   - Fit score stays at 100
	*/
	config := getTestConfig()
	seedConfig(t, config)

	req := AssessRequest{
		Customer: &CustomerPayload{ID: "int-digital-001", Segment: "individual"},
		Transactions: []TransactionPayload{
			{ID: "d-1", Type: "pos_purchase", Amount: "120.00", Channel: "pos"},
			{ID: "d-2", Type: "eft_transfer_internal", Amount: "800.00", Channel: "online"},
			{ID: "d-3", Type: "airtime_purchase", Amount: "50.00", Channel: "app"},
		},
		AccountTypeID: "integration_payu",
		ScheduleID:    "integration_2026_27",
	}

	result := assess(t, config, req)

	if result.TotalFee != "30" && result.TotalFee != "30.00" {
		t.Errorf("Expected total fee 30.00 (monthly only), got %s", result.TotalFee)
	}
	if result.KPI == nil {
		t.Fatal("Expected KPI report")
	}
	if len(result.KPI.MigrationSignals) != 0 {
		t.Errorf("Expected no signals, got %v", result.KPI.MigrationSignals)
	}
	if result.KPI.AccountFitScore != 100 {
		t.Errorf("Expected fit score 100, got %.1f", result.KPI.AccountFitScore)
	}

	t.Logf("✓ Digital customer: fee=%s, fit=%.1f", result.TotalFee, result.KPI.AccountFitScore)
}

// ============================================================================
// SCENARIO 2: Cash-Heavy Customer (Signal Fires)
// ============================================================================

func TestCashHeavyCustomer_SignalFires(t *testing.T) {
	/*
	   SCENARIO: A customer who withdraws cash constantly

	   EXPECTED BEHAVIOR:
	   - Each N$300 withdrawal prices at N$10 (per_step), N$600 at N$20
	   - atm_dependency_ratio = 1.0 → cash_heavy fires (penalty 25)
	   - Fit score = 100 - 25 = 75
	*/
	config := getTestConfig()
	seedConfig(t, config)

	req := AssessRequest{
		Customer: &CustomerPayload{ID: "int-cash-001", Segment: "individual"},
		Transactions: []TransactionPayload{
			{ID: "c-1", Type: "atm_withdrawal", Amount: "300.00", Channel: "atm", ATMOwner: "nedbank"},
			{ID: "c-2", Type: "atm_withdrawal", Amount: "600.00", Channel: "atm", ATMOwner: "nedbank"},
		},
		AccountTypeID: "integration_payu",
		ScheduleID:    "integration_2026_27",
	}

	result := assess(t, config, req)

	if result.VariableFee != "30" && result.VariableFee != "30.00" {
		t.Errorf("Expected variable fee 30.00 (10 + 20 per-step), got %s", result.VariableFee)
	}
	if result.KPI == nil {
		t.Fatal("Expected KPI report")
	}
	found := false
	for _, sig := range result.KPI.MigrationSignals {
		if sig == "cash_heavy" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected cash_heavy signal, got %v", result.KPI.MigrationSignals)
	}
	if result.KPI.AccountFitScore != 75 {
		t.Errorf("Expected fit score 75 (100 - 25 penalty), got %.1f", result.KPI.AccountFitScore)
	}

	t.Logf("✓ Cash-heavy customer: fee=%s, fit=%.1f, signals=%v",
		result.TotalFee, result.KPI.AccountFitScore, result.KPI.MigrationSignals)
}

// ============================================================================
// SCENARIO 3: Per-Step Boundary Pricing
// ============================================================================

func TestPerStepBoundary(t *testing.T) {
	/*
	   SCENARIO: Withdrawal of exactly N$300 vs N$300.01

	   EXPECTED BEHAVIOR:
	   - N$300.00 is one full step → N$10
	   - N$300.01 starts a second step → N$20

	   WHY THIS TEST:
	   Step pricing uses ceiling division. Boundary amounts catch
	   off-by-one-step errors.
	*/
	config := getTestConfig()
	seedConfig(t, config)

	exact := assess(t, config, AssessRequest{
		Customer: &CustomerPayload{ID: "int-boundary-001", Segment: "individual"},
		Transactions: []TransactionPayload{
			{ID: "b-1", Type: "atm_withdrawal", Amount: "300.00", Channel: "atm", ATMOwner: "nedbank"},
		},
		AccountTypeID: "integration_payu",
		ScheduleID:    "integration_2026_27",
	})
	if exact.VariableFee != "10" && exact.VariableFee != "10.00" {
		t.Errorf("Expected 10.00 for exactly one step, got %s", exact.VariableFee)
	}

	above := assess(t, config, AssessRequest{
		Customer: &CustomerPayload{ID: "int-boundary-002", Segment: "individual"},
		Transactions: []TransactionPayload{
			{ID: "b-2", Type: "atm_withdrawal", Amount: "300.01", Channel: "atm", ATMOwner: "nedbank"},
		},
		AccountTypeID: "integration_payu",
		ScheduleID:    "integration_2026_27",
	})
	if above.VariableFee != "20" && above.VariableFee != "20.00" {
		t.Errorf("Expected 20.00 for one cent into the second step, got %s", above.VariableFee)
	}

	t.Logf("✓ Step boundary: 300.00 → %s, 300.01 → %s", exact.VariableFee, above.VariableFee)
}

// ============================================================================
// SCENARIO 4: Persisted Customer Flow
// ============================================================================

func TestPersistedCustomerFlow(t *testing.T) {
	/*
	   SCENARIO: Ingest a customer with history, then assess by ID only

	   This exercises the storage path: POST /customers persists the ledger,
	   POST /assess with customerId loads it back, and the assessment itself
	   lands in the customer's history.
	*/
	config := getTestConfig()
	seedConfig(t, config)

	customerID := fmt.Sprintf("int-persist-%d", time.Now().UnixNano())

	ingest := map[string]any{
		"customer": map[string]any{"id": customerID, "segment": "individual"},
		"transactions": []map[string]any{
			{"id": customerID + "-1", "type": "atm_withdrawal", "amount": "300.00",
				"channel": "atm", "atmOwner": "nedbank"},
			{"id": customerID + "-2", "type": "pos_purchase", "amount": "75.00",
				"channel": "pos"},
		},
	}
	if resp, body := post(t, config, "/customers", ingest); resp.StatusCode != http.StatusCreated {
		t.Fatalf("Failed to ingest customer: %d: %s", resp.StatusCode, string(body))
	}

	result := assess(t, config, AssessRequest{
		CustomerID:    customerID,
		AccountTypeID: "integration_payu",
		ScheduleID:    "integration_2026_27",
	})

	if result.CustomerID != customerID {
		t.Errorf("Expected customerId %s, got %s", customerID, result.CustomerID)
	}
	// Monthly 30.00 plus one 10.00 ATM step.
	if result.TotalFee != "40" && result.TotalFee != "40.00" {
		t.Errorf("Expected total fee 40.00, got %s", result.TotalFee)
	}

	// The assessment must be retrievable afterwards.
	client := &http.Client{Timeout: 10 * time.Second}
	httpReq, _ := http.NewRequest("GET", config.BaseURL+"/assessments/"+result.ID, nil)
	httpReq.Header.Set("X-Tenant-ID", config.TenantID)
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 fetching stored assessment, got %d", resp.StatusCode)
	}

	t.Logf("✓ Persisted flow: customer=%s, assessment=%s, fee=%s",
		customerID, result.ID, result.TotalFee)
}

// ============================================================================
// SCENARIO 5: Input Validation
// ============================================================================

func TestMissingAccountType_Error(t *testing.T) {
	/*
	   SCENARIO: Request missing required accountTypeId field

	   EXPECTED: HTTP 400 Bad Request
	*/
	config := getTestConfig()

	resp, body := post(t, config, "/assess", AssessRequest{
		Customer:   &CustomerPayload{ID: "int-invalid-001", Segment: "individual"},
		ScheduleID: "integration_2026_27",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing accountTypeId, got %d: %s", resp.StatusCode, string(body))
	}

	t.Logf("✓ Validation test passed: missing accountTypeId → HTTP %d", resp.StatusCode)
}

func TestUnknownAccountType_Error(t *testing.T) {
	/*
	   SCENARIO: Assessing against a product that was never configured

	   EXPECTED: HTTP 404 Not Found
	*/
	config := getTestConfig()
	seedConfig(t, config)

	resp, body := post(t, config, "/assess", AssessRequest{
		Customer:      &CustomerPayload{ID: "int-unknown-001", Segment: "individual"},
		AccountTypeID: "no_such_product",
		ScheduleID:    "integration_2026_27",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown account, got %d: %s", resp.StatusCode, string(body))
	}

	t.Logf("✓ Validation test passed: unknown account → HTTP %d", resp.StatusCode)
}

func TestMissingTenantHeader_Error(t *testing.T) {
	/*
	   SCENARIO: Request without X-Tenant-ID header

	   Tenant ID is validated as a required field, not as auth, so the
	   middleware answers 400 rather than 401.
	*/
	config := getTestConfig()

	body, _ := json.Marshal(AssessRequest{
		AccountTypeID: "integration_payu",
		ScheduleID:    "integration_2026_27",
	})
	httpReq, _ := http.NewRequest("POST", config.BaseURL+"/assess", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	// NO X-Tenant-ID header!

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing tenant, got %d", resp.StatusCode)
	}

	t.Logf("✓ Validation test passed: missing tenant → HTTP %d", resp.StatusCode)
}

// ============================================================================
// SCENARIO 6: Portfolio Run
// ============================================================================

func TestPortfolioRun(t *testing.T) {
	/*
	   SCENARIO: Batch-assess two persisted customers

	   Exercises the whole-book path: customers and ledgers come from the
	   store, every customer is assessed concurrently, and the report carries
	   per-customer recommendations plus ranked targeting lists.
	*/
	config := getTestConfig()
	seedConfig(t, config)

	stamp := time.Now().UnixNano()
	cashID := fmt.Sprintf("int-pf-cash-%d", stamp)
	digiID := fmt.Sprintf("int-pf-digi-%d", stamp)

	seeds := []map[string]any{
		{
			"customer": map[string]any{"id": cashID, "segment": "individual"},
			"transactions": []map[string]any{
				{"id": cashID + "-1", "type": "atm_withdrawal", "amount": "300.00",
					"channel": "atm", "atmOwner": "nedbank"},
				{"id": cashID + "-2", "type": "atm_withdrawal", "amount": "900.00",
					"channel": "atm", "atmOwner": "nedbank"},
			},
		},
		{
			"customer": map[string]any{"id": digiID, "segment": "individual"},
			"transactions": []map[string]any{
				{"id": digiID + "-1", "type": "pos_purchase", "amount": "60.00", "channel": "pos"},
				{"id": digiID + "-2", "type": "eft_transfer_internal", "amount": "400.00", "channel": "online"},
			},
		},
	}
	for _, seed := range seeds {
		if resp, body := post(t, config, "/customers", seed); resp.StatusCode != http.StatusCreated {
			t.Fatalf("Failed to seed customer: %d: %s", resp.StatusCode, string(body))
		}
	}

	run := map[string]any{
		"customerIds":    []string{cashID, digiID},
		"accountTypeIds": []string{"integration_payu"},
		"baseAccountId":  "integration_payu",
		"payuAccountId":  "integration_payu",
		"scheduleId":     "integration_2026_27",
	}
	resp, body := post(t, config, "/portfolio/run", run)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 from portfolio run, got %d: %s", resp.StatusCode, string(body))
	}

	var report struct {
		Customers map[string]json.RawMessage `json:"customers"`
	}
	if err := json.Unmarshal(body, &report); err != nil {
		t.Fatalf("Failed to parse report: %v", err)
	}
	if len(report.Customers) != 2 {
		t.Errorf("Expected 2 customers in report, got %d", len(report.Customers))
	}

	t.Logf("✓ Portfolio run: %d customers assessed", len(report.Customers))
}

// ============================================================================
// SCENARIO 7: Response Metadata Verification
// ============================================================================

func TestResponseMetadata(t *testing.T) {
	/*
	   SCENARIO: Verify response includes all required metadata

	   This ensures the API contract is stable for clients.
	*/
	config := getTestConfig()
	seedConfig(t, config)

	result := assess(t, config, AssessRequest{
		Customer: &CustomerPayload{ID: "int-metadata-001", Segment: "individual"},
		Transactions: []TransactionPayload{
			{ID: "m-1", Type: "pos_purchase", Amount: "100.00", Channel: "pos"},
		},
		AccountTypeID: "integration_payu",
		ScheduleID:    "integration_2026_27",
	})

	if result.ID == "" {
		t.Error("Missing assessment id")
	}
	if result.Metadata.TraceID == "" {
		t.Error("Missing metadata.traceId")
	}
	if result.Metadata.EngineVersion == "" {
		t.Error("Missing metadata.engineVersion")
	}
	// Note: TotalMs can be 0 for very fast operations (sub-millisecond)
	if result.Metadata.TotalMs < 0 {
		t.Error("Invalid metadata.totalMs (negative)")
	}

	t.Logf("✓ Metadata complete: id=%s, traceId=%s, engine=%s, totalMs=%d",
		result.ID[:8], result.Metadata.TraceID[:8], result.Metadata.EngineVersion, result.Metadata.TotalMs)
}
