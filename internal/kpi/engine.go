// Package kpi computes configured KPIs, migration signals, the account fit
// score, insights, and benefit utilisation for one customer.
package kpi

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/formula"
	"github.com/opensource-finance/heron/internal/tariff"
)

// Engine evaluates one KPI profile. All formulas and signal conditions are
// compiled at construction, so a malformed profile fails at load time and a
// loaded engine never re-parses. Engines are immutable and safe for
// concurrent use.
type Engine struct {
	profile *domain.KPIProfile

	kpiPrograms map[string]*formula.Program
	signalConds map[string][]*formula.Program

	// Definition maps iterate in sorted order so identical inputs always
	// produce identical output.
	kpiNames     []string
	signalNames  []string
	insightNames []string
	benefitNames []string
}

// NewEngine validates and compiles a KPI profile.
func NewEngine(profile *domain.KPIProfile) (*Engine, error) {
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("kpi profile %q: %w", profile.ID, err)
	}

	e := &Engine{
		profile:     profile,
		kpiPrograms: make(map[string]*formula.Program),
		signalConds: make(map[string][]*formula.Program),
	}

	for name, def := range profile.KPIs {
		e.kpiNames = append(e.kpiNames, name)
		if def.Computed || def.Formula == "" {
			continue
		}
		prog, err := formula.Compile(def.Formula)
		if err != nil {
			return nil, fmt.Errorf("kpi %q: %w", name, err)
		}
		e.kpiPrograms[name] = prog
	}
	sort.Strings(e.kpiNames)

	for name, sig := range profile.MigrationSignals {
		e.signalNames = append(e.signalNames, name)
		var progs []*formula.Program
		for _, cond := range sig.Conditions() {
			prog, err := formula.Compile(cond)
			if err != nil {
				return nil, fmt.Errorf("migration signal %q: %w", name, err)
			}
			progs = append(progs, prog)
		}
		e.signalConds[name] = progs
	}
	sort.Strings(e.signalNames)

	for name := range profile.InsightOutputs {
		e.insightNames = append(e.insightNames, name)
	}
	sort.Strings(e.insightNames)

	for name := range profile.Benefits {
		e.benefitNames = append(e.benefitNames, name)
	}
	sort.Strings(e.benefitNames)

	return e, nil
}

// Profile returns the profile this engine was built from.
func (e *Engine) Profile() *domain.KPIProfile { return e.profile }

// ComputeAll runs the full KPI pipeline for one customer. Transactions and
// schedule feed the excess-ATM-cost KPI; accountCfg feeds benefit
// utilisation and may be nil.
func (e *Engine) ComputeAll(
	features domain.FeatureSet,
	txns []domain.Transaction,
	schedule *domain.FeeSchedule,
	accountCfg *domain.AccountConfig,
) (*domain.KPIReport, error) {
	kpis, err := e.ComputeKPIs(features)
	if err != nil {
		return nil, err
	}
	kpis["excess_atm_cost"] = e.ComputeExcessATMCost(features, txns, schedule)

	signals := e.EvaluateMigrationSignals(kpis)
	score := e.ComputeAccountFitScore(signals)
	kpis["account_fit_score"] = score

	report := &domain.KPIReport{
		KPIs:             kpis,
		AccountFitScore:  score,
		MigrationSignals: signals,
		Insights:         e.GenerateInsights(signals),
	}
	if accountCfg != nil {
		report.Benefits = e.ComputeBenefits(features, accountCfg)
	}
	return report, nil
}

// ComputeKPIs evaluates every formula KPI against the feature namespace
// merged with the profile's free-tier constants. A formula failure aborts
// the whole computation; a profile that cannot score a customer must not
// quietly score them anyway.
func (e *Engine) ComputeKPIs(features domain.FeatureSet) (map[string]float64, error) {
	ns := make(map[string]any, len(features)+len(e.profile.FreeTier))
	for k, v := range features {
		ns[k] = v
	}
	for k, v := range e.profile.FreeTier {
		ns[k] = v
	}

	results := make(map[string]float64, len(e.kpiNames))
	for _, name := range e.kpiNames {
		prog, ok := e.kpiPrograms[name]
		if !ok {
			continue // computed KPIs are filled by their dedicated methods
		}
		value, err := prog.EvalNumber(ns)
		if err != nil {
			return nil, fmt.Errorf("kpi %q: failed to evaluate formula %q: %w", name, prog.Source(), err)
		}
		results[name] = value
	}
	return results, nil
}

// ComputeExcessATMCost prices the own-brand ATM withdrawals beyond the free
// tier. The free tier covers the cheapest withdrawals first; the remainder
// is priced under the schedule's per-step rule. Missing inputs cost zero.
func (e *Engine) ComputeExcessATMCost(features domain.FeatureSet, txns []domain.Transaction, schedule *domain.FeeSchedule) float64 {
	if len(txns) == 0 || schedule == nil {
		return 0
	}

	freeCount := freeTierInt(e.profile.FreeTier, domain.FreeATMWithdrawalsKey)
	atmCount := features.Int("nedbank_atm_withdrawal_count")
	if atmCount-freeCount <= 0 {
		return 0
	}

	var amounts []decimal.Decimal
	for i := range txns {
		tx := &txns[i]
		if tx.Type != domain.TxATMWithdrawal {
			continue
		}
		if tx.ATMOwner != "" && tx.ATMOwner != domain.ATMOwnerNedbank {
			continue
		}
		amounts = append(amounts, tx.AbsAmount())
	}
	if len(amounts) == 0 || freeCount >= len(amounts) {
		return 0
	}
	sort.Slice(amounts, func(i, j int) bool { return amounts[i].LessThan(amounts[j]) })
	excess := amounts[freeCount:]

	rule := schedule.ATM.NedbankWithdrawal
	if rule == nil {
		return 0
	}

	total := decimal.Zero
	if rule.RuleType == domain.RulePerStep {
		for _, amount := range excess {
			total = total.Add(tariff.PerStep(amount, rule.StepAmount, rule.StepFee))
		}
	} else {
		// Unknown rule shape: charge the step fee once per excess withdrawal.
		total = rule.StepFee.Mul(decimal.NewFromInt(int64(len(excess))))
	}
	return total.Round(2).InexactFloat64()
}

// EvaluateMigrationSignals fires every signal whose conditions all hold.
// Signal evaluation is fault tolerant: a condition that cannot be evaluated
// means the signal does not fire, never that scoring aborts.
func (e *Engine) EvaluateMigrationSignals(kpis map[string]float64) []string {
	ns := make(map[string]any, len(kpis))
	for k, v := range kpis {
		ns[k] = v
	}

	fired := make([]string, 0)
	for _, name := range e.signalNames {
		conds := e.signalConds[name]
		if len(conds) == 0 {
			continue
		}
		allTrue := true
		for _, cond := range conds {
			ok, err := cond.EvalBool(ns)
			if err != nil || !ok {
				allTrue = false
				break
			}
		}
		if allTrue {
			fired = append(fired, name)
		}
	}
	return fired
}

// ComputeAccountFitScore deducts each fired signal's penalty from the north
// star base, rounds to one decimal, and clamps to [0, 100]. Clamping happens
// once after the full deduction, not per signal.
func (e *Engine) ComputeAccountFitScore(signals []string) float64 {
	score := e.profile.NorthStar.BaseValue()
	for _, name := range signals {
		sig, ok := e.profile.MigrationSignals[name]
		if !ok {
			continue
		}
		score -= sig.PenaltyValue()
	}

	score = round1(score)
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// GenerateInsights maps fired signals to their configured messages. The
// good_fit entry is reserved as the fallback, so the result is never empty
// when the profile defines one.
func (e *Engine) GenerateInsights(signals []string) []string {
	firedSet := make(map[string]bool, len(signals))
	for _, s := range signals {
		firedSet[s] = true
	}

	messages := make([]string, 0)
	for _, key := range e.insightNames {
		if key == domain.InsightGoodFit {
			continue
		}
		def := e.profile.InsightOutputs[key]
		if def.Message == "" {
			continue
		}
		if firedSet[key] {
			messages = append(messages, def.Message)
		}
	}

	if len(messages) == 0 {
		if def, ok := e.profile.InsightOutputs[domain.InsightGoodFit]; ok && def.Message != "" {
			messages = append(messages, def.Message)
		}
	}
	return messages
}

// ComputeBenefits reports per-benefit usage against the account's free-tier
// allowances. Boolean and list allowances are unconditional inclusions;
// numeric allowances report what is left.
func (e *Engine) ComputeBenefits(features domain.FeatureSet, accountCfg *domain.AccountConfig) map[string]domain.BenefitUsage {
	results := make(map[string]domain.BenefitUsage, len(e.benefitNames))
	for _, name := range e.benefitNames {
		def := e.profile.Benefits[name]
		allowance := accountCfg.FreeTier[def.AllowanceKey]
		usage := features.Int(def.UsageFeatureKey)

		var remaining any
		switch a := allowance.(type) {
		case bool:
			if a {
				remaining = "included"
			} else {
				remaining = 0
			}
		case []any:
			remaining = "included"
		case float64:
			r := int(a) - usage
			if r < 0 {
				r = 0
			}
			remaining = r
		case int:
			r := a - usage
			if r < 0 {
				r = 0
			}
			remaining = r
		default:
			remaining = "unknown"
		}

		results[name] = domain.BenefitUsage{
			Usage:     usage,
			Allowance: allowance,
			Remaining: remaining,
		}
	}
	return results
}

func freeTierInt(freeTier map[string]any, key string) int {
	switch v := freeTier[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func round1(v float64) float64 {
	d := decimal.NewFromFloat(v)
	return d.Round(1).InexactFloat64()
}
