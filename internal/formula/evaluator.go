package formula

// Program is a parsed and validated formula, ready for repeated evaluation.
// Compile once at profile load, Eval per customer.
type Program struct {
	src  string
	root Node
}

// Compile parses and validates a formula. The returned Program is immutable
// and safe for concurrent use.
func Compile(src string) (*Program, error) {
	root, err := Parse(src)
	if err != nil {
		return nil, err
	}
	if err := validate(src, root); err != nil {
		return nil, err
	}
	return &Program{src: src, root: root}, nil
}

// Check reports whether a formula is well-formed and within the allow-list
// without evaluating it. Used when profiles are written, not when they run.
func Check(src string) error {
	_, err := Compile(src)
	return err
}

// Source returns the original formula text.
func (p *Program) Source() string { return p.src }

// Eval evaluates the program against a namespace. Results are float64 or
// bool. Namespace values may be any Go numeric type or bool; anything else
// yields an EvalError, and a reference to a missing variable a NameError.
func (p *Program) Eval(ns map[string]any) (any, error) {
	return evalNode(p.src, p.root, ns)
}

// EvalNumber evaluates the program and coerces the result to a number,
// with True and False counting as 1 and 0.
func (p *Program) EvalNumber(ns map[string]any) (float64, error) {
	v, err := p.Eval(ns)
	if err != nil {
		return 0, err
	}
	return asNumber(p.src, v)
}

// EvalBool evaluates the program and applies truthiness to the result.
func (p *Program) EvalBool(ns map[string]any) (bool, error) {
	v, err := p.Eval(ns)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

// Evaluate is the one-shot form: parse, validate, and run in a single call.
func Evaluate(src string, ns map[string]any) (any, error) {
	p, err := Compile(src)
	if err != nil {
		return nil, err
	}
	return p.Eval(ns)
}
