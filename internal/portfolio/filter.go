package portfolio

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/heron/internal/domain"
)

// TargetFilter is a compiled CEL predicate applied per customer when
// building targeting lists. Analysts pass ad-hoc expressions like
// "fit_score < 70.0 && features.atm_withdrawal_count >= 4.0" with a run
// request; the KPI formula sandbox stays untouched.
type TargetFilter struct {
	program cel.Program
	source  string
}

// CompileTargetFilter compiles a filter expression. The expression must
// produce a bool.
func CompileTargetFilter(expr string) (*TargetFilter, error) {
	env, err := cel.NewEnv(
		cel.Variable("customer_id", cel.StringType),
		cel.Variable("fit_score", cel.DoubleType),
		cel.Variable("signals", cel.ListType(cel.StringType)),
		cel.Variable("features", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("kpis", cel.MapType(cel.StringType, cel.DoubleType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile target filter: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("target filter must return bool, got %s", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build target filter program: %w", err)
	}
	return &TargetFilter{program: program, source: expr}, nil
}

// Source returns the original filter expression.
func (f *TargetFilter) Source() string { return f.source }

// Match evaluates the filter against one customer's assessment. Evaluation
// errors exclude the customer rather than failing the run.
func (f *TargetFilter) Match(a *domain.Assessment) bool {
	if f == nil {
		return true
	}

	fitScore := 0.0
	signals := []string{}
	kpis := map[string]float64{}
	if a.KPI != nil {
		fitScore = a.KPI.AccountFitScore
		signals = a.KPI.MigrationSignals
		kpis = a.KPI.KPIs
	}

	out, _, err := f.program.Eval(map[string]any{
		"customer_id": a.CustomerID,
		"fit_score":   fitScore,
		"signals":     signals,
		"features":    map[string]any(a.Features),
		"kpis":        kpis,
	})
	if err != nil {
		return false
	}
	b, ok := out.(types.Bool)
	return ok && bool(b)
}
