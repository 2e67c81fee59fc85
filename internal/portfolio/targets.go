package portfolio

import (
	"fmt"
	"sort"

	"github.com/opensource-finance/heron/internal/domain"
)

// Targeting list keys and the signals that drive them.
const (
	TargetsUpgrade      = "top_payu_upgrade_targets"
	TargetsCashoutShift = "top_cashout_shift_targets"
	TargetsDigitalShift = "top_digital_shift_targets"

	SignalUpgradeCandidate      = "payu_upgrade_candidate"
	SignalCashoutShiftCandidate = "cashout_shift_candidate"
	SignalDigitalShiftCandidate = "digital_shift_candidate"
)

// defaultTargetLimit bounds each targeting list.
const defaultTargetLimit = 10

// reasonMaxLen keeps campaign reasons inside the CRM field limit.
const reasonMaxLen = 59

func clampReason(s string) string {
	if len(s) <= reasonMaxLen {
		return s
	}
	return s[:reasonMaxLen]
}

// rankTargets builds the three targeting lists from base-account
// assessments. Customers with the driving signal rank first, then by the
// list's metric; ties break on customer ID so batch output is stable.
func rankTargets(results map[string]*domain.CustomerPortfolioResult, baseAccountID string, freeATM int, filter *TargetFilter, limit int) map[string][]domain.Target {
	if limit <= 0 {
		limit = defaultTargetLimit
	}

	var upgrade, cashout, digital []domain.Target
	for _, customerID := range sortedCustomerIDs(results) {
		res := results[customerID]
		base, ok := res.Accounts[baseAccountID]
		if !ok || base == nil {
			continue
		}
		if !filter.Match(base) {
			continue
		}

		var signals []string
		kpis := map[string]float64{}
		if base.KPI != nil {
			signals = base.KPI.MigrationSignals
			kpis = base.KPI.KPIs
		}

		atmUsed := base.Features.Int("nedbank_atm_withdrawal_count")
		excessATM := atmUsed - freeATM
		if excessATM < 0 {
			excessATM = 0
		}

		upgrade = append(upgrade, domain.Target{
			CustomerID: customerID,
			HasSignal:  hasSignal(signals, SignalUpgradeCandidate),
			Metric:     float64(excessATM),
			Reason:     clampReason(fmt.Sprintf("ATMex %d", excessATM)),
		})
		cashout = append(cashout, domain.Target{
			CustomerID: customerID,
			HasSignal:  hasSignal(signals, SignalCashoutShiftCandidate),
			Metric:     float64(atmUsed),
			Reason:     clampReason(fmt.Sprintf("ATM Count %d", atmUsed)),
		})

		digitalRatio, ok := kpis["digital_ratio"]
		if !ok {
			digitalRatio, ok = base.Features.Float("digital_ratio")
			if !ok {
				digitalRatio = 1.0
			}
		}
		digital = append(digital, domain.Target{
			CustomerID: customerID,
			HasSignal:  hasSignal(signals, SignalDigitalShiftCandidate),
			Metric:     digitalRatio,
			Reason:     clampReason(fmt.Sprintf("DigiRatio %.2f", digitalRatio)),
		})
	}

	// Upgrade and cashout lists rank high metrics first; the digital list
	// chases the least digital customers, so it ranks low metrics first.
	sortTargets(upgrade, false)
	sortTargets(cashout, false)
	sortTargets(digital, true)

	return map[string][]domain.Target{
		TargetsUpgrade:      truncateTargets(upgrade, limit),
		TargetsCashoutShift: truncateTargets(cashout, limit),
		TargetsDigitalShift: truncateTargets(digital, limit),
	}
}

func sortTargets(targets []domain.Target, ascendingMetric bool) {
	sort.SliceStable(targets, func(i, j int) bool {
		if targets[i].HasSignal != targets[j].HasSignal {
			return targets[i].HasSignal
		}
		if targets[i].Metric != targets[j].Metric {
			if ascendingMetric {
				return targets[i].Metric < targets[j].Metric
			}
			return targets[i].Metric > targets[j].Metric
		}
		return targets[i].CustomerID < targets[j].CustomerID
	})
}

func truncateTargets(targets []domain.Target, limit int) []domain.Target {
	if len(targets) > limit {
		return targets[:limit]
	}
	return targets
}

func hasSignal(signals []string, name string) bool {
	for _, s := range signals {
		if s == name {
			return true
		}
	}
	return false
}

func sortedCustomerIDs(results map[string]*domain.CustomerPortfolioResult) []string {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
