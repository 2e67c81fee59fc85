// Package worker provides async assessment processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/heron/internal/assess"
	"github.com/opensource-finance/heron/internal/domain"
)

// Worker consumes assessment requests from the EventBus, runs them through
// the assessment pipeline and publishes the results.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	processor *assess.Processor

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string

	// WorkerCount is the number of concurrent workers per tenant
	WorkerCount int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, processor *assess.Processor) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		repo:      repo,
		processor: processor,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" tenant ID
	// In production, you'd want to subscribe with wildcards or JetStream
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicAssessmentRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicAssessmentRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.processRequest(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicAssessmentRequested,
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processRequest(ctx, msg.TenantID, msg)
}

// AssessmentRequest is the message payload asking for one customer/account
// assessment.
type AssessmentRequest struct {
	TenantID      string `json:"tenantId,omitempty"`
	TraceID       string `json:"traceId,omitempty"`
	CustomerID    string `json:"customerId"`
	AccountTypeID string `json:"accountTypeId"`
	ScheduleID    string `json:"scheduleId"`
}

// SignalEvent is published on the signal topic when migration signals fire.
type SignalEvent struct {
	AssessmentID  string   `json:"assessmentId"`
	CustomerID    string   `json:"customerId"`
	AccountTypeID string   `json:"accountTypeId"`
	Signals       []string `json:"signals"`
	FitScore      float64  `json:"fitScore"`
}

// processRequest loads the customer's data and runs the assessment pipeline.
func (w *Worker) processRequest(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var req AssessmentRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse assessment request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if req.TenantID != "" {
		tenantID = req.TenantID
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing assessment request",
		"customer_id", req.CustomerID,
		"account_type_id", req.AccountTypeID,
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	customer, err := w.repo.GetCustomer(ctx, tenantID, req.CustomerID)
	if err != nil {
		slog.Error("failed to load customer",
			"customer_id", req.CustomerID,
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	txns, err := w.repo.GetTransactionsByCustomer(ctx, tenantID, req.CustomerID)
	if err != nil {
		slog.Error("failed to load transactions",
			"customer_id", req.CustomerID,
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	history := make([]domain.Transaction, len(txns))
	for i, tx := range txns {
		history[i] = *tx
	}

	assessment, err := w.processor.Process(ctx, &assess.Input{
		TenantID:      tenantID,
		Customer:      customer,
		Transactions:  history,
		AccountTypeID: req.AccountTypeID,
		ScheduleID:    req.ScheduleID,
		TraceID:       traceID,
		StartTime:     start,
	})
	if err != nil {
		slog.Error("assessment failed",
			"customer_id", req.CustomerID,
			"account_type_id", req.AccountTypeID,
			"error", err,
		)
		return err
	}

	if w.repo != nil {
		if err := w.repo.SaveAssessment(ctx, tenantID, assessment); err != nil {
			slog.Error("failed to save assessment",
				"assessment_id", assessment.ID,
				"error", err,
			)
		}
	}

	resultPayload, _ := json.Marshal(assessment)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicAssessmentCompleted, resultPayload); err != nil {
		slog.Error("failed to publish assessment",
			"assessment_id", assessment.ID,
			"error", err,
		)
	}

	if assessment.SignalsFired() {
		event := SignalEvent{
			AssessmentID:  assessment.ID,
			CustomerID:    assessment.CustomerID,
			AccountTypeID: assessment.AccountTypeID,
			Signals:       assessment.KPI.MigrationSignals,
			FitScore:      assessment.KPI.AccountFitScore,
		}
		eventPayload, _ := json.Marshal(event)
		if err := w.bus.Publish(ctx, tenantID, domain.TopicSignalFired, eventPayload); err != nil {
			slog.Error("failed to publish signal event",
				"assessment_id", assessment.ID,
				"error", err,
			)
		}
	}

	slog.Info("assessment processed",
		"customer_id", req.CustomerID,
		"account_type_id", req.AccountTypeID,
		"tenant_id", tenantID,
		"total_fee", assessment.TotalFee.StringFixed(2),
		"signals", len(assessmentSignals(assessment)),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

func assessmentSignals(a *domain.Assessment) []string {
	if a.KPI == nil {
		return nil
	}
	return a.KPI.MigrationSignals
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
