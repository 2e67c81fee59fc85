package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/heron/internal/assess"
	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/features"
	"github.com/opensource-finance/heron/internal/portfolio"
	"github.com/opensource-finance/heron/internal/worker"
)

// featureCacheTTL bounds how long a customer's behavioural snapshot is
// served without re-extraction.
const featureCacheTTL = 15 * time.Minute

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	processor *assess.Processor
	runner    *portfolio.Runner
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, processor *assess.Processor, runner *portfolio.Runner, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		processor: processor,
		runner:    runner,
		version:   version,
	}
}

// AssessRequest is the request body for POST /assess. The customer and
// transactions can be supplied inline or referenced by customerId, in which
// case both are loaded from the repository.
type AssessRequest struct {
	Customer     *domain.Customer     `json:"customer,omitempty"`
	CustomerID   string               `json:"customerId,omitempty"`
	Transactions []domain.Transaction `json:"transactions,omitempty"`

	AccountTypeID string `json:"accountTypeId"`
	ScheduleID    string `json:"scheduleId"`
}

// Assess handles POST /assess requests.
func (h *Handler) Assess(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req AssessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.AccountTypeID == "" || req.ScheduleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "accountTypeId and scheduleId are required",
		})
		return
	}

	customer := req.Customer
	transactions := req.Transactions

	if customer == nil {
		if req.CustomerID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "customer or customerId is required",
			})
			return
		}
		if h.repo == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "repository not available",
			})
			return
		}

		var err error
		customer, err = h.repo.GetCustomer(ctx, tenantID, req.CustomerID)
		if err != nil {
			h.writeRepoError(w, "customer", err)
			return
		}
		stored, err := h.repo.GetTransactionsByCustomer(ctx, tenantID, req.CustomerID)
		if err != nil {
			h.writeRepoError(w, "transactions", err)
			return
		}
		transactions = make([]domain.Transaction, len(stored))
		for i, tx := range stored {
			transactions[i] = *tx
		}
	}

	assessment, err := h.processor.Process(ctx, &assess.Input{
		TenantID:      tenantID,
		Customer:      customer,
		Transactions:  transactions,
		AccountTypeID: req.AccountTypeID,
		ScheduleID:    req.ScheduleID,
		TraceID:       traceID,
		StartTime:     start,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		case errors.Is(err, domain.ErrInvalidInput):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			slog.Error("assessment failed",
				"customer_id", customer.ID,
				"account_type_id", req.AccountTypeID,
				"error", err,
			)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "assessment failed",
			})
		}
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveAssessment(ctx, tenantID, assessment); err != nil {
			slog.Error("failed to save assessment", "id", assessment.ID, "error", err)
		}
	}

	if h.cache != nil {
		if err := h.cache.SetFeatures(ctx, tenantID, customer.ID, assessment.Features, featureCacheTTL); err != nil {
			slog.Warn("failed to cache features", "customer_id", customer.ID, "error", err)
		}
	}

	if h.bus != nil {
		payload, _ := json.Marshal(assessment)
		if err := h.bus.Publish(ctx, tenantID, domain.TopicAssessmentCompleted, payload); err != nil {
			slog.Error("failed to publish assessment", "id", assessment.ID, "error", err)
		}
		if assessment.SignalsFired() {
			event, _ := json.Marshal(worker.SignalEvent{
				AssessmentID:  assessment.ID,
				CustomerID:    assessment.CustomerID,
				AccountTypeID: assessment.AccountTypeID,
				Signals:       assessment.KPI.MigrationSignals,
				FitScore:      assessment.KPI.AccountFitScore,
			})
			if err := h.bus.Publish(ctx, tenantID, domain.TopicSignalFired, event); err != nil {
				slog.Error("failed to publish signal event", "id", assessment.ID, "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, assessment)
}

// GetAssessment retrieves a persisted assessment by ID.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	id := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	assessment, err := h.repo.GetAssessment(ctx, tenantID, id)
	if err != nil {
		h.writeRepoError(w, "assessment", err)
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}

// CreateCustomerRequest is the request body for POST /customers. The
// transaction history can be loaded in the same call.
type CreateCustomerRequest struct {
	Customer     domain.Customer      `json:"customer"`
	Transactions []domain.Transaction `json:"transactions,omitempty"`
}

// CreateCustomer upserts a customer and optionally their history.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	var req CreateCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Customer.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "customer.id is required",
		})
		return
	}

	if err := h.repo.SaveCustomer(ctx, tenantID, &req.Customer); err != nil {
		slog.Error("failed to save customer", "id", req.Customer.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save customer",
		})
		return
	}

	if len(req.Transactions) > 0 {
		txs := make([]*domain.Transaction, len(req.Transactions))
		for i := range req.Transactions {
			req.Transactions[i].CustomerID = req.Customer.ID
			txs[i] = &req.Transactions[i]
		}
		if err := h.repo.SaveTransactions(ctx, tenantID, txs); err != nil {
			slog.Error("failed to save transactions", "customer_id", req.Customer.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save transactions",
			})
			return
		}
	}

	if h.bus != nil {
		payload, _ := json.Marshal(req.Customer)
		_ = h.bus.Publish(ctx, tenantID, domain.TopicCustomerIngested, payload)
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"customerId":       req.Customer.ID,
		"transactionCount": len(req.Transactions),
	})
}

// ListCustomerAssessments lists a customer's assessment history, newest first.
func (h *Handler) ListCustomerAssessments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	customerID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	assessments, err := h.repo.ListAssessmentsByCustomer(ctx, tenantID, customerID)
	if err != nil {
		h.writeRepoError(w, "assessments", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"assessments": assessments,
		"count":       len(assessments),
	})
}

// GetCustomerFeatures returns the customer's behavioural feature snapshot,
// serving from cache when fresh and re-extracting on a miss.
func (h *Handler) GetCustomerFeatures(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	customerID := chi.URLParam(r, "id")

	if h.cache != nil {
		fs, err := h.cache.GetFeatures(ctx, tenantID, customerID)
		if err != nil {
			slog.Warn("feature cache read failed", "customer_id", customerID, "error", err)
		}
		if fs != nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"customerId": customerID,
				"features":   fs,
				"cached":     true,
			})
			return
		}
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	customer, err := h.repo.GetCustomer(ctx, tenantID, customerID)
	if err != nil {
		h.writeRepoError(w, "customer", err)
		return
	}
	stored, err := h.repo.GetTransactionsByCustomer(ctx, tenantID, customerID)
	if err != nil {
		h.writeRepoError(w, "transactions", err)
		return
	}
	txns := make([]domain.Transaction, len(stored))
	for i, tx := range stored {
		txns[i] = *tx
	}

	in := features.Input{
		Segment:        customer.Segment,
		AnnualTurnover: customer.AnnualTurnover,
	}
	registry := h.processor.Registry()
	if id := r.URL.Query().Get("scheduleId"); id != "" {
		if schedule, ok := registry.Schedule(id); ok {
			in.Schedule = schedule
			in.TurnoverThreshold = schedule.CashDeposit.TurnoverThreshold
		}
	}
	if id := r.URL.Query().Get("accountTypeId"); id != "" {
		if account, ok := registry.Account(id); ok {
			in.AccountClass = account.AccountClass
		}
	}

	fs := features.Extract(txns, in)

	if h.cache != nil {
		_ = h.cache.SetFeatures(ctx, tenantID, customerID, fs, featureCacheTTL)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"customerId": customerID,
		"features":   fs,
		"cached":     false,
	})
}

// PortfolioRunRequest is the request body for POST /portfolio/run. An empty
// customerIds list runs the tenant's whole book.
type PortfolioRunRequest struct {
	CustomerIDs    []string `json:"customerIds,omitempty"`
	AccountTypeIDs []string `json:"accountTypeIds"`
	BaseAccountID  string   `json:"baseAccountId"`
	PAYUAccountID  string   `json:"payuAccountId"`
	ScheduleID     string   `json:"scheduleId"`
	TargetFilter   string   `json:"targetFilter,omitempty"`
	TargetLimit    int      `json:"targetLimit,omitempty"`
}

// RunPortfolio handles POST /portfolio/run requests.
func (h *Handler) RunPortfolio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	var req PortfolioRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.AccountTypeIDs) == 0 || req.ScheduleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "accountTypeIds and scheduleId are required",
		})
		return
	}

	var customers []*domain.Customer
	if len(req.CustomerIDs) == 0 {
		var err error
		customers, err = h.repo.ListCustomers(ctx, tenantID)
		if err != nil {
			h.writeRepoError(w, "customers", err)
			return
		}
	} else {
		for _, id := range req.CustomerIDs {
			c, err := h.repo.GetCustomer(ctx, tenantID, id)
			if err != nil {
				h.writeRepoError(w, "customer "+id, err)
				return
			}
			customers = append(customers, c)
		}
	}

	var transactions []domain.Transaction
	for _, c := range customers {
		stored, err := h.repo.GetTransactionsByCustomer(ctx, tenantID, c.ID)
		if err != nil {
			h.writeRepoError(w, "transactions", err)
			return
		}
		for _, tx := range stored {
			transactions = append(transactions, *tx)
		}
	}

	report, err := h.runner.Run(ctx, &portfolio.RunInput{
		TenantID:       tenantID,
		Customers:      customers,
		Transactions:   transactions,
		AccountTypeIDs: req.AccountTypeIDs,
		BaseAccountID:  req.BaseAccountID,
		PAYUAccountID:  req.PAYUAccountID,
		ScheduleID:     req.ScheduleID,
		TargetFilter:   req.TargetFilter,
		TargetLimit:    req.TargetLimit,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		default:
			slog.Error("portfolio run failed", "tenant_id", tenantID, "error", err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// CreateSchedule validates, persists, and hot-loads a fee schedule.
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var schedule domain.FeeSchedule
	if err := json.NewDecoder(r.Body).Decode(&schedule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if schedule.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id is required",
		})
		return
	}

	registry := h.processor.Registry()
	if err := registry.ValidateSchedule(&schedule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveFeeSchedule(ctx, tenantID, &schedule); err != nil {
			slog.Error("failed to save fee schedule", "id", schedule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save fee schedule",
			})
			return
		}
	}

	if schedule.Enabled {
		if err := registry.LoadSchedule(&schedule); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}

	slog.Info("fee schedule created", "id", schedule.ID, "version", schedule.Version)
	writeJSON(w, http.StatusCreated, &schedule)
}

// GetSchedule retrieves a fee schedule by ID.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if schedule, ok := h.processor.Registry().Schedule(id); ok {
		writeJSON(w, http.StatusOK, schedule)
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "fee schedule not found",
	})
}

// ListSchedules lists the tenant's persisted fee schedules.
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	schedules, err := h.repo.ListFeeSchedules(ctx, tenantID)
	if err != nil {
		h.writeRepoError(w, "fee schedules", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"schedules": schedules,
		"count":     len(schedules),
	})
}

// ReloadSchedules reloads the registry's schedule set from the repository.
func (h *Handler) ReloadSchedules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	schedules, err := h.repo.ListFeeSchedules(ctx, tenantID)
	if err != nil {
		h.writeRepoError(w, "fee schedules", err)
		return
	}
	if err := h.processor.Registry().ReloadSchedules(schedules); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload schedules: " + err.Error(),
		})
		return
	}

	slog.Info("fee schedules reloaded", "count", len(schedules))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "fee schedules reloaded successfully",
		"count":   len(schedules),
	})
}

// CreateAccount validates, persists, and hot-loads an account product.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var account domain.AccountConfig
	if err := json.NewDecoder(r.Body).Decode(&account); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if err := account.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveAccountConfig(ctx, tenantID, &account); err != nil {
			slog.Error("failed to save account config", "id", account.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save account config",
			})
			return
		}
	}

	if account.Enabled {
		if err := h.processor.Registry().LoadAccount(&account); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}

	slog.Info("account config created", "id", account.ID)
	writeJSON(w, http.StatusCreated, &account)
}

// GetAccount retrieves an account product by ID.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if account, ok := h.processor.Registry().Account(id); ok {
		writeJSON(w, http.StatusOK, account)
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "account config not found",
	})
}

// ListAccounts lists the tenant's persisted account products.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	accounts, err := h.repo.ListAccountConfigs(ctx, tenantID)
	if err != nil {
		h.writeRepoError(w, "account configs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// ReloadAccounts reloads the registry's account set from the repository.
func (h *Handler) ReloadAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	accounts, err := h.repo.ListAccountConfigs(ctx, tenantID)
	if err != nil {
		h.writeRepoError(w, "account configs", err)
		return
	}
	if err := h.processor.Registry().ReloadAccounts(accounts); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload accounts: " + err.Error(),
		})
		return
	}

	slog.Info("account configs reloaded", "count", len(accounts))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "account configs reloaded successfully",
		"count":   len(accounts),
	})
}

// CreateKPIProfile validates, persists, and hot-loads a KPI profile. The
// profile's formulas and signal conditions must compile before anything is
// stored.
func (h *Handler) CreateKPIProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var profile domain.KPIProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	registry := h.processor.Registry()
	if err := registry.ValidateProfile(&profile); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveKPIProfile(ctx, tenantID, &profile); err != nil {
			slog.Error("failed to save kpi profile", "id", profile.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save kpi profile",
			})
			return
		}
	}

	if profile.Enabled {
		if err := registry.LoadProfile(&profile); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}

	slog.Info("kpi profile created", "id", profile.ID, "version", profile.Version)
	writeJSON(w, http.StatusCreated, &profile)
}

// ListKPIProfiles lists the tenant's persisted KPI profiles.
func (h *Handler) ListKPIProfiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	profiles, err := h.repo.ListKPIProfiles(ctx, tenantID)
	if err != nil {
		h.writeRepoError(w, "kpi profiles", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profiles": profiles,
		"count":    len(profiles),
	})
}

// DeleteKPIProfile soft-deletes a profile and reloads the registry so the
// engine set matches the store.
func (h *Handler) DeleteKPIProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	id := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.DeleteKPIProfile(ctx, tenantID, id); err != nil {
		h.writeRepoError(w, "kpi profile", err)
		return
	}

	profiles, err := h.repo.ListKPIProfiles(ctx, tenantID)
	if err != nil {
		slog.Error("failed to reload kpi profiles after delete", "error", err)
	} else if err := h.processor.Registry().ReloadProfiles(profiles); err != nil {
		slog.Error("failed to reload kpi profiles after delete", "error", err)
	}

	slog.Info("kpi profile deleted", "id", id)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "kpi profile deleted and registry reloaded",
	})
}

// ReloadKPIProfiles recompiles the registry's profile set from the repository.
func (h *Handler) ReloadKPIProfiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	profiles, err := h.repo.ListKPIProfiles(ctx, tenantID)
	if err != nil {
		h.writeRepoError(w, "kpi profiles", err)
		return
	}
	if err := h.processor.Registry().ReloadProfiles(profiles); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload kpi profiles: " + err.Error(),
		})
		return
	}

	slog.Info("kpi profiles reloaded", "count", len(profiles))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "kpi profiles reloaded successfully",
		"count":   len(profiles),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready reports whether the server can assess: at least one schedule and
// one account product must be loaded.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	schedules, accounts, profiles := h.processor.Registry().Counts()
	ready := schedules > 0 && accounts > 0

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"ready":     ready,
		"schedules": schedules,
		"accounts":  accounts,
		"profiles":  profiles,
	})
}

func (h *Handler) writeRepoError(w http.ResponseWriter, what string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": what + " not found",
		})
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		slog.Error("repository error", "what", what, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "storage failure",
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
