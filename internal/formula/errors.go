// Package formula provides the sandboxed expression evaluator for
// configuration-supplied KPI formulas and migration signal conditions.
//
// Formulas are parsed into an explicit AST, every node is validated against
// a strict allow-list before any evaluation happens, and evaluation resolves
// names only from the caller-supplied namespace plus max/min. There is no
// ambient environment and the grammar has no loop or recursion constructs,
// so every accepted formula terminates.
package formula

import "fmt"

// SyntaxError reports a formula that failed to parse.
type SyntaxError struct {
	Formula string
	Detail  string
	Pos     int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("formula syntax error at offset %d in %q: %s", e.Pos, e.Formula, e.Detail)
}

// DisallowedError reports a formula that parsed but contains a construct
// outside the allow-list. Construct names the offending construct.
type DisallowedError struct {
	Formula   string
	Construct string
}

func (e *DisallowedError) Error() string {
	return fmt.Sprintf("disallowed expression in formula %q: %s (only arithmetic, comparisons, boolean ops, name references, and max()/min() calls are permitted)", e.Formula, e.Construct)
}

// NameError reports a variable reference absent from the namespace.
type NameError struct {
	Formula string
	Name    string
}

func (e *NameError) Error() string {
	return fmt.Sprintf("name %q in formula %q is not defined in the evaluation namespace", e.Name, e.Formula)
}

// EvalError reports a runtime evaluation fault such as division by zero or
// an operand of an unsupported type.
type EvalError struct {
	Formula string
	Detail  string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluation error in formula %q: %s", e.Formula, e.Detail)
}
