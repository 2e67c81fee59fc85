// Benchmark tool for replaying customer transaction ledgers through Heron.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/ledger.csv -url http://localhost:8080
//
// This tool:
//   1. Reads a transaction ledger CSV (one row per transaction, grouped by customer)
//   2. Sends each customer's ledger to Heron for assessment
//   3. Summarizes the fee distribution, fit scores and fired signals
//   4. Reports latency and throughput
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/heron/internal/domain"
)

// CustomerLedger groups one customer's ledger rows.
type CustomerLedger struct {
	Customer     domain.Customer
	Transactions []domain.Transaction
}

// AssessRequest mirrors the POST /assess body.
type AssessRequest struct {
	Customer      *domain.Customer     `json:"customer"`
	Transactions  []domain.Transaction `json:"transactions"`
	AccountTypeID string               `json:"accountTypeId"`
	ScheduleID    string               `json:"scheduleId"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TotalProcessed int64
	TotalErrors    int64

	SignalsFired int64

	ProcessingTimeMs int64

	mu           sync.Mutex
	fees         []decimal.Decimal
	fitScores    []float64
	signalCounts map[string]int64
	tagCounts    map[string]int64
}

func (m *Metrics) record(a *domain.Assessment) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fees = append(m.fees, a.TotalFee)
	if a.KPI != nil {
		m.fitScores = append(m.fitScores, a.KPI.AccountFitScore)
		for _, sig := range a.KPI.MigrationSignals {
			m.signalCounts[sig]++
		}
	}
	if tag, ok := a.Features["behaviour_tag"].(string); ok {
		m.tagCounts[tag]++
	}
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to transaction ledger CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Heron base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	accountTypeID := flag.String("account", "", "Account product to assess against")
	scheduleID := flag.String("schedule", "", "Fee schedule to price with")
	limit := flag.Int("limit", 10000, "Maximum customers to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each customer result")
	flag.Parse()

	if *csvPath == "" || *accountTypeID == "" || *scheduleID == "" {
		fmt.Println("Usage: benchmark -csv /path/to/ledger.csv -account silver_payu -schedule nedbank_2026_27")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║          HERON BENCHMARK - Ledger Replay                      ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Heron URL:   %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Account:     %s\n", *accountTypeID)
	fmt.Printf("Schedule:    %s\n", *scheduleID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	// Check Heron is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Heron not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Heron is running:")
		fmt.Println("  cd heron && go run cmd/heron/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Heron is healthy")

	// Read ledger data
	fmt.Printf("\nReading ledger from %s...\n", *csvPath)
	ledgers, err := readLedgerCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	txnCount := 0
	for _, l := range ledgers {
		txnCount += len(l.Transactions)
	}
	fmt.Printf("✓ Loaded %d customers (%d transactions)\n", len(ledgers), txnCount)

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(ledgers, *baseURL, *tenantID, *accountTypeID, *scheduleID, *workers, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// readLedgerCSV reads the ledger and groups rows by customer, keeping the
// file's row order within each customer.
func readLedgerCSV(path string, limit int) ([]*CustomerLedger, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	field := func(record []string, name string) string {
		idx, ok := colIndex[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	byCustomer := make(map[string]*CustomerLedger)
	var order []string
	rowNum := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}
		rowNum++

		customerID := field(record, "customer_id")
		if customerID == "" {
			continue
		}

		ledger, ok := byCustomer[customerID]
		if !ok {
			if limit > 0 && len(order) >= limit {
				continue
			}
			customer := domain.Customer{
				ID:      customerID,
				Segment: field(record, "segment"),
			}
			if turnover := field(record, "annual_turnover"); turnover != "" {
				if d, err := decimal.NewFromString(turnover); err == nil {
					customer.AnnualTurnover = &d
				}
			}
			ledger = &CustomerLedger{Customer: customer}
			byCustomer[customerID] = ledger
			order = append(order, customerID)
		}

		amount, err := decimal.NewFromString(field(record, "amount"))
		if err != nil {
			continue
		}

		txnID := field(record, "txn_id")
		if txnID == "" {
			txnID = fmt.Sprintf("%s-row-%d", customerID, rowNum)
		}

		ledger.Transactions = append(ledger.Transactions, domain.Transaction{
			ID:         txnID,
			CustomerID: customerID,
			Type:       field(record, "type"),
			Amount:     amount,
			Channel:    field(record, "channel"),
			ATMOwner:   field(record, "atm_owner"),
			Merchant:   field(record, "merchant"),
			Timestamp:  time.Now().UTC(),
		})
	}

	ledgers := make([]*CustomerLedger, 0, len(order))
	for _, id := range order {
		ledgers = append(ledgers, byCustomer[id])
	}
	return ledgers, nil
}

func runBenchmark(ledgers []*CustomerLedger, baseURL, tenantID, accountTypeID, scheduleID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{
		signalCounts: make(map[string]int64),
		tagCounts:    make(map[string]int64),
	}

	// Create work channel
	work := make(chan *CustomerLedger, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for ledger := range work {
				start := time.Now()
				result, err := assessCustomer(client, baseURL, tenantID, accountTypeID, scheduleID, ledger)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", ledger.Customer.ID, err)
					}
					continue
				}

				metrics.record(result)
				if result.KPI != nil && len(result.KPI.MigrationSignals) > 0 {
					atomic.AddInt64(&metrics.SignalsFired, 1)
				}

				if verbose {
					fitScore := 0.0
					signals := "-"
					if result.KPI != nil {
						fitScore = result.KPI.AccountFitScore
						if len(result.KPI.MigrationSignals) > 0 {
							signals = strings.Join(result.KPI.MigrationSignals, ",")
						}
					}
					fmt.Printf("%-12s | Txns: %4d | Fee: N$%10s | Fit: %5.1f | Signals: %s\n",
						ledger.Customer.ID,
						len(ledger.Transactions),
						result.TotalFee.StringFixed(2),
						fitScore,
						signals,
					)
				}
			}
		}()
	}

	// Send work
	for _, ledger := range ledgers {
		work <- ledger
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func assessCustomer(client *http.Client, baseURL, tenantID, accountTypeID, scheduleID string, ledger *CustomerLedger) (*domain.Assessment, error) {
	req := AssessRequest{
		Customer:      &ledger.Customer,
		Transactions:  ledger.Transactions,
		AccountTypeID: accountTypeID,
		ScheduleID:    scheduleID,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/assess", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result domain.Assessment
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Customers Assessed:  %d\n", m.TotalProcessed)
	fmt.Printf("   With Signals:        %d\n", m.SignalsFired)
	fmt.Printf("   Errors:              %d\n", m.TotalErrors)

	if len(m.fees) > 0 {
		sorted := make([]decimal.Decimal, len(m.fees))
		copy(sorted, m.fees)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

		total := decimal.Zero
		for _, fee := range sorted {
			total = total.Add(fee)
		}
		avg := total.Div(decimal.NewFromInt(int64(len(sorted))))
		median := sorted[len(sorted)/2]

		fmt.Printf("\n💰 MONTHLY FEE DISTRIBUTION\n")
		fmt.Printf("   Min:     N$%s\n", sorted[0].StringFixed(2))
		fmt.Printf("   Median:  N$%s\n", median.StringFixed(2))
		fmt.Printf("   Avg:     N$%s\n", avg.StringFixed(2))
		fmt.Printf("   Max:     N$%s\n", sorted[len(sorted)-1].StringFixed(2))
		fmt.Printf("   Total:   N$%s\n", total.StringFixed(2))
	}

	if len(m.fitScores) > 0 {
		// Bucket fit scores into quartile-style bands.
		var bands [4]int
		sum := 0.0
		for _, score := range m.fitScores {
			sum += score
			switch {
			case score < 25:
				bands[0]++
			case score < 50:
				bands[1]++
			case score < 75:
				bands[2]++
			default:
				bands[3]++
			}
		}
		fmt.Printf("\n🎯 FIT SCORE DISTRIBUTION\n")
		fmt.Printf("   Avg Score:  %.1f\n", sum/float64(len(m.fitScores)))
		fmt.Printf("   [ 0- 25):   %d\n", bands[0])
		fmt.Printf("   [25- 50):   %d\n", bands[1])
		fmt.Printf("   [50- 75):   %d\n", bands[2])
		fmt.Printf("   [75-100]:   %d\n", bands[3])
	}

	if len(m.signalCounts) > 0 {
		fmt.Printf("\n🚩 MIGRATION SIGNALS\n")
		names := make([]string, 0, len(m.signalCounts))
		for name := range m.signalCounts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("   %-28s %d\n", name, m.signalCounts[name])
		}
	}

	if len(m.tagCounts) > 0 {
		fmt.Printf("\n🏷️  BEHAVIOUR TAGS\n")
		names := make([]string, 0, len(m.tagCounts))
		for name := range m.tagCounts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("   %-28s %d\n", name, m.tagCounts[name])
		}
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		cps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f customers/sec\n", cps)
	}

	fmt.Println()
}
