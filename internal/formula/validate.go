package formula

import "fmt"

// allowedFuncs is the complete callable surface of the sandbox.
var allowedFuncs = map[string]bool{
	"max": true,
	"min": true,
}

// validate walks the tree and rejects any node outside the allow-list.
// The switch is deliberately exhaustive over every variant the parser can
// produce, with a default that denies anything unrecognised.
func validate(src string, node Node) error {
	switch n := node.(type) {
	case *NumberLit, *BoolLit, *Name:
		return nil

	case *Unary:
		return validate(src, n.X)

	case *Binary:
		if err := validate(src, n.X); err != nil {
			return err
		}
		return validate(src, n.Y)

	case *BoolOp:
		for _, v := range n.Values {
			if err := validate(src, v); err != nil {
				return err
			}
		}
		return nil

	case *Compare:
		if err := validate(src, n.X); err != nil {
			return err
		}
		for _, y := range n.Ys {
			if err := validate(src, y); err != nil {
				return err
			}
		}
		return nil

	case *Call:
		fn, ok := n.Func.(*Name)
		if !ok {
			return &DisallowedError{Formula: src, Construct: "call of a " + n.Func.nodeKind()}
		}
		if !allowedFuncs[fn.Ident] {
			return &DisallowedError{Formula: src, Construct: fmt.Sprintf("call to %q", fn.Ident)}
		}
		if len(n.Keywords) > 0 {
			return &DisallowedError{Formula: src, Construct: "keyword argument"}
		}
		for _, a := range n.Args {
			if s, ok := a.(*Starred); ok {
				return &DisallowedError{Formula: src, Construct: s.nodeKind()}
			}
			if err := validate(src, a); err != nil {
				return err
			}
		}
		return nil

	case *NoneLit, *StringLit, *FStringLit, *ListLit, *Attribute, *Subscript, *Starred:
		return &DisallowedError{Formula: src, Construct: node.nodeKind()}

	default:
		return &DisallowedError{Formula: src, Construct: node.nodeKind()}
	}
}
