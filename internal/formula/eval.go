package formula

import (
	"fmt"
	"math"
)

// evalNode evaluates a validated tree against the namespace. Values are
// float64 or bool; booleans coerce to 0/1 inside arithmetic, matching the
// semantics the formulas were authored against.
func evalNode(src string, node Node, ns map[string]any) (any, error) {
	switch n := node.(type) {
	case *NumberLit:
		return n.Value, nil

	case *BoolLit:
		return n.Value, nil

	case *Name:
		raw, ok := ns[n.Ident]
		if !ok {
			return nil, &NameError{Formula: src, Name: n.Ident}
		}
		return coerceValue(src, n.Ident, raw)

	case *Unary:
		x, err := evalNode(src, n.X, ns)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case "not":
			return !truthy(x), nil
		case "-":
			f, err := asNumber(src, x)
			if err != nil {
				return nil, err
			}
			return -f, nil
		default: // "+"
			return asNumber(src, x)
		}

	case *Binary:
		x, err := evalNode(src, n.X, ns)
		if err != nil {
			return nil, err
		}
		y, err := evalNode(src, n.Y, ns)
		if err != nil {
			return nil, err
		}
		return evalArith(src, n.Op, x, y)

	case *BoolOp:
		// Short-circuit with value semantics: the last operand evaluated is
		// the result, whatever its type.
		var last any
		for i, v := range n.Values {
			val, err := evalNode(src, v, ns)
			if err != nil {
				return nil, err
			}
			last = val
			if i == len(n.Values)-1 {
				break
			}
			if n.Op == "and" && !truthy(val) {
				return val, nil
			}
			if n.Op == "or" && truthy(val) {
				return val, nil
			}
		}
		return last, nil

	case *Compare:
		left, err := evalNode(src, n.X, ns)
		if err != nil {
			return nil, err
		}
		for i, op := range n.Ops {
			right, err := evalNode(src, n.Ys[i], ns)
			if err != nil {
				return nil, err
			}
			ok, err := evalCompare(src, op, left, right)
			if err != nil {
				return nil, err
			}
			if !ok {
				return false, nil
			}
			left = right
		}
		return true, nil

	case *Call:
		// Validation guarantees the callee is max or min with positional
		// args only.
		fn := n.Func.(*Name).Ident
		if len(n.Args) == 0 {
			return nil, &EvalError{Formula: src, Detail: fn + "() requires at least one argument"}
		}
		var best float64
		for i, arg := range n.Args {
			v, err := evalNode(src, arg, ns)
			if err != nil {
				return nil, err
			}
			f, err := asNumber(src, v)
			if err != nil {
				return nil, err
			}
			if i == 0 || (fn == "max" && f > best) || (fn == "min" && f < best) {
				best = f
			}
		}
		return best, nil

	default:
		return nil, &EvalError{Formula: src, Detail: "unexpected " + node.nodeKind()}
	}
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	default:
		return false
	}
}

func asNumber(src string, v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, &EvalError{Formula: src, Detail: fmt.Sprintf("operand %v is not numeric", v)}
	}
}

// coerceValue narrows a namespace entry to the evaluator's value domain.
func coerceValue(src, name string, raw any) (any, error) {
	switch x := raw.(type) {
	case bool:
		return x, nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	default:
		return nil, &EvalError{Formula: src, Detail: fmt.Sprintf("variable %q has unsupported type %T", name, raw)}
	}
}

func evalArith(src, op string, xv, yv any) (any, error) {
	x, err := asNumber(src, xv)
	if err != nil {
		return nil, err
	}
	y, err := asNumber(src, yv)
	if err != nil {
		return nil, err
	}
	switch op {
	case "+":
		return x + y, nil
	case "-":
		return x - y, nil
	case "*":
		return x * y, nil
	case "/":
		if y == 0 {
			return nil, &EvalError{Formula: src, Detail: "division by zero"}
		}
		return x / y, nil
	case "//":
		if y == 0 {
			return nil, &EvalError{Formula: src, Detail: "integer division by zero"}
		}
		return math.Floor(x / y), nil
	case "%":
		if y == 0 {
			return nil, &EvalError{Formula: src, Detail: "modulo by zero"}
		}
		// Result carries the sign of the divisor.
		r := math.Mod(x, y)
		if r != 0 && (r < 0) != (y < 0) {
			r += y
		}
		return r, nil
	case "**":
		return math.Pow(x, y), nil
	default:
		return nil, &EvalError{Formula: src, Detail: fmt.Sprintf("unsupported operator %q", op)}
	}
}

func evalCompare(src, op string, xv, yv any) (bool, error) {
	x, err := asNumber(src, xv)
	if err != nil {
		return false, err
	}
	y, err := asNumber(src, yv)
	if err != nil {
		return false, err
	}
	switch op {
	case "==":
		return x == y, nil
	case "!=":
		return x != y, nil
	case "<":
		return x < y, nil
	case "<=":
		return x <= y, nil
	case ">":
		return x > y, nil
	case ">=":
		return x >= y, nil
	default:
		return false, &EvalError{Formula: src, Detail: fmt.Sprintf("unsupported comparison %q", op)}
	}
}
