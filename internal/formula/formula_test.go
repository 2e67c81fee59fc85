package formula

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestEvaluateArithmetic(t *testing.T) {
	ns := map[string]any{
		"a": 10.0,
		"b": 3,
		"c": -7.5,
		"d": true,
		"e": false,
	}

	tests := []struct {
		name string
		src  string
		want float64
	}{
		{"addition", "a + b", 13},
		{"subtraction", "a - b", 7},
		{"multiplication", "a * b", 30},
		{"true division", "a / 4", 2.5},
		{"floor division", "a // b", 3},
		{"floor division negative", "-7 // 2", -4},
		{"modulo", "a % b", 1},
		{"modulo sign follows divisor", "-7 % 3", 2},
		{"modulo negative divisor", "7 % -3", -2},
		{"power", "2 ** 10", 1024},
		{"power right associative", "2 ** 3 ** 2", 512},
		{"unary minus", "-c", 7.5},
		{"unary plus", "+b", 3},
		{"parentheses", "(a + b) * 2", 26},
		{"precedence", "2 + 3 * 4", 14},
		{"bool in arithmetic", "d + d + e", 2},
		{"max", "max(a, b, c)", 10},
		{"min", "min(a, b, c)", -7.5},
		{"nested calls", "max(min(a, b), 5)", 5},
		{"exponent literal", "1.5e2", 150},
		{"underscored literal", "1_000 + 1", 1001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.src, ns)
			if err != nil {
				t.Fatalf("Evaluate(%q) error: %v", tt.src, err)
			}
			f, ok := got.(float64)
			if !ok {
				t.Fatalf("Evaluate(%q) = %v (%T), want float64", tt.src, got, got)
			}
			if math.Abs(f-tt.want) > 1e-9 {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.src, f, tt.want)
			}
		})
	}
}

func TestEvaluateBooleans(t *testing.T) {
	ns := map[string]any{
		"x":      5.0,
		"y":      0.0,
		"flag":   true,
		"txns":   12,
		"digital": 0.8,
	}

	tests := []struct {
		name string
		src  string
		want bool
	}{
		{"comparison", "x > 3", true},
		{"chained comparison", "0 < x < 10", true},
		{"chained comparison fails middle", "0 < y < 10", false},
		{"equality", "x == 5", true},
		{"inequality", "x != 5", false},
		{"and", "x > 3 and flag", true},
		{"or", "y > 0 or flag", true},
		{"not", "not flag", false},
		{"not of zero", "not y", true},
		{"conjunction of metrics", "txns >= 10 and digital >= 0.7", true},
		{"bool compares as number", "flag == 1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.src, ns)
			if err != nil {
				t.Fatalf("Evaluate(%q) error: %v", tt.src, err)
			}
			if truthy(got) != tt.want {
				t.Errorf("Evaluate(%q) = %v, want truthiness %v", tt.src, got, tt.want)
			}
		})
	}
}

func TestShortCircuitValueSemantics(t *testing.T) {
	ns := map[string]any{"x": 5.0, "y": 0.0}

	// "or" yields the first truthy operand, "and" the first falsy one.
	got, err := Evaluate("y or x", ns)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 5.0 {
		t.Errorf("y or x = %v, want 5", got)
	}

	got, err = Evaluate("x and y", ns)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0.0 {
		t.Errorf("x and y = %v, want 0", got)
	}

	// The right side of a short-circuited branch must not be evaluated.
	if _, err := Evaluate("y and missing", ns); err != nil {
		t.Errorf("short-circuited and still evaluated right side: %v", err)
	}
	if _, err := Evaluate("x or missing", ns); err != nil {
		t.Errorf("short-circuited or still evaluated right side: %v", err)
	}
}

func TestDisallowedConstructs(t *testing.T) {
	tests := []struct {
		name      string
		src       string
		construct string
	}{
		{"attribute access", "obj.attr", "attribute access"},
		{"attribute on call result", "max(1, 2).real", "attribute access"},
		{"subscript", "data[0]", "subscript"},
		{"string literal", "'hello'", "string literal"},
		{"fstring", "f'{x}'", "string interpolation"},
		{"list literal", "[1, 2, 3]", "list literal"},
		{"comprehension", "[x for x in y]", "comprehension"},
		{"lambda", "lambda x: x + 1", "lambda"},
		{"conditional expression", "1 if x else 2", "conditional expression"},
		{"membership", "x in y", "membership test"},
		{"identity", "x is y", "identity comparison"},
		{"none literal", "None", "None literal"},
		{"unknown function", "abs(-1)", `call to "abs"`},
		{"open", "open('/etc/passwd')", `call to "open"`},
		{"dunder import", "__import__('os')", `call to "__import__"`},
		{"keyword argument", "max(1, b=2)", "keyword argument"},
		{"starred argument", "max(*values)", "starred argument"},
		{"call of a call", "max(1)(2)", "call of a function call"},
		{"walrus", "(x := 5)", "assignment expression"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.src)
			if err == nil {
				t.Fatalf("Check(%q) succeeded, want DisallowedError", tt.src)
			}
			var de *DisallowedError
			if !errors.As(err, &de) {
				t.Fatalf("Check(%q) error = %v (%T), want DisallowedError", tt.src, err, err)
			}
			if !strings.Contains(de.Construct, tt.construct) {
				t.Errorf("Check(%q) construct = %q, want it to mention %q", tt.src, de.Construct, tt.construct)
			}
		})
	}
}

func TestRejectionHappensBeforeEvaluation(t *testing.T) {
	// A disallowed construct must be reported even when the namespace could
	// never satisfy the formula, proving validation precedes evaluation.
	_, err := Evaluate("missing.attr", map[string]any{})
	var de *DisallowedError
	if !errors.As(err, &de) {
		t.Fatalf("got %v (%T), want DisallowedError", err, err)
	}
}

func TestSyntaxErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty", ""},
		{"dangling operator", "1 +"},
		{"unbalanced paren", "(1 + 2"},
		{"unterminated string", "'abc"},
		{"unknown character", "1 @ 2"},
		{"double operator", "1 * * 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.src)
			var se *SyntaxError
			if !errors.As(err, &se) {
				t.Fatalf("Check(%q) error = %v (%T), want SyntaxError", tt.src, err, err)
			}
		})
	}
}

func TestNameError(t *testing.T) {
	_, err := Evaluate("known + unknown", map[string]any{"known": 1.0})
	var ne *NameError
	if !errors.As(err, &ne) {
		t.Fatalf("got %v (%T), want NameError", err, err)
	}
	if ne.Name != "unknown" {
		t.Errorf("NameError.Name = %q, want %q", ne.Name, "unknown")
	}
}

func TestEvalErrors(t *testing.T) {
	ns := map[string]any{"x": 1.0, "s": "oops"}

	tests := []struct {
		name string
		src  string
	}{
		{"division by zero", "x / 0"},
		{"floor division by zero", "x // 0"},
		{"modulo by zero", "x % 0"},
		{"string-typed variable", "s + 1"},
		{"max with no args", "max()"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(tt.src, ns)
			var ee *EvalError
			if !errors.As(err, &ee) {
				t.Fatalf("Evaluate(%q) error = %v (%T), want EvalError", tt.src, err, err)
			}
		})
	}
}

func TestCompiledProgramReuse(t *testing.T) {
	p, err := Compile("balance * rate / 12")
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	if p.Source() != "balance * rate / 12" {
		t.Errorf("Source() = %q", p.Source())
	}

	for i := 1; i <= 3; i++ {
		got, err := p.EvalNumber(map[string]any{"balance": float64(i * 1200), "rate": 0.5})
		if err != nil {
			t.Fatalf("EvalNumber error: %v", err)
		}
		want := float64(i*1200) * 0.5 / 12
		if got != want {
			t.Errorf("run %d: got %v, want %v", i, got, want)
		}
	}
}
