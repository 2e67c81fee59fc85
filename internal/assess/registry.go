// Package assess runs the per-customer assessment pipeline: behavioural
// features, variable fees, the cash deposit fee, and the KPI report, folded
// into one persisted assessment record.
package assess

import (
	"fmt"
	"sync"

	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/kpi"
)

// Registry holds the loaded fee schedules, account configurations, and
// compiled KPI engines. Configurations validate and compile at load time;
// assessment requests only ever see fully loaded artifacts. Safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	schedules map[string]*domain.FeeSchedule
	accounts  map[string]*domain.AccountConfig
	engines   map[string]*kpi.Engine
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		schedules: make(map[string]*domain.FeeSchedule),
		accounts:  make(map[string]*domain.AccountConfig),
		engines:   make(map[string]*kpi.Engine),
	}
}

// ValidateSchedule checks a schedule without loading it.
func (r *Registry) ValidateSchedule(s *domain.FeeSchedule) error {
	if s == nil {
		return fmt.Errorf("fee schedule is required")
	}
	return s.Validate()
}

// LoadSchedule validates and loads one fee schedule.
func (r *Registry) LoadSchedule(s *domain.FeeSchedule) error {
	if err := r.ValidateSchedule(s); err != nil {
		return fmt.Errorf("fee schedule %q: %w", s.ID, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schedules[s.ID] = s
	return nil
}

// ReloadSchedules swaps in a full schedule set atomically. Disabled
// schedules are skipped; one invalid schedule aborts the whole reload so a
// half-applied tariff book can never serve traffic.
func (r *Registry) ReloadSchedules(schedules []*domain.FeeSchedule) error {
	next := make(map[string]*domain.FeeSchedule)
	for _, s := range schedules {
		if !s.Enabled {
			continue
		}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("fee schedule %q: %w", s.ID, err)
		}
		next[s.ID] = s
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schedules = next
	return nil
}

// Schedule returns a loaded schedule by ID.
func (r *Registry) Schedule(id string) (*domain.FeeSchedule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schedules[id]
	return s, ok
}

// LoadAccount validates and loads one account configuration.
func (r *Registry) LoadAccount(a *domain.AccountConfig) error {
	if a == nil {
		return fmt.Errorf("account config is required")
	}
	if err := a.Validate(); err != nil {
		return fmt.Errorf("account %q: %w", a.ID, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[a.ID] = a
	return nil
}

// ReloadAccounts swaps in a full account set atomically.
func (r *Registry) ReloadAccounts(accounts []*domain.AccountConfig) error {
	next := make(map[string]*domain.AccountConfig)
	for _, a := range accounts {
		if !a.Enabled {
			continue
		}
		if err := a.Validate(); err != nil {
			return fmt.Errorf("account %q: %w", a.ID, err)
		}
		next[a.ID] = a
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts = next
	return nil
}

// Account returns a loaded account configuration by ID.
func (r *Registry) Account(id string) (*domain.AccountConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	return a, ok
}

// ValidateProfile compiles a profile's formulas without loading it.
func (r *Registry) ValidateProfile(p *domain.KPIProfile) error {
	if p == nil {
		return fmt.Errorf("kpi profile is required")
	}
	_, err := kpi.NewEngine(p)
	return err
}

// LoadProfile compiles and loads one KPI profile.
func (r *Registry) LoadProfile(p *domain.KPIProfile) error {
	engine, err := kpi.NewEngine(p)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[p.ID] = engine
	return nil
}

// ReloadProfiles compiles and swaps in a full profile set atomically.
func (r *Registry) ReloadProfiles(profiles []*domain.KPIProfile) error {
	next := make(map[string]*kpi.Engine)
	for _, p := range profiles {
		if !p.Enabled {
			continue
		}
		engine, err := kpi.NewEngine(p)
		if err != nil {
			return err
		}
		next[p.ID] = engine
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines = next
	return nil
}

// Engine returns the compiled KPI engine for a profile ID.
func (r *Registry) Engine(profileID string) (*kpi.Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[profileID]
	return e, ok
}

// Counts reports how many schedules, accounts, and profiles are loaded.
func (r *Registry) Counts() (schedules, accounts, profiles int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.schedules), len(r.accounts), len(r.engines)
}
