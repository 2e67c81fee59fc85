package formula

import "fmt"

// parser is a single-pass recursive descent parser over the restricted
// expression grammar. Precedence mirrors the source language the formulas
// are written in: or < and < not < comparison < additive < multiplicative <
// unary < power < postfix.
type parser struct {
	lex lexer
	cur token
}

// Parse parses a formula into an expression tree without validating it.
// Constructs the grammar can name but never accept (lambda, conditionals,
// comprehensions, assignment) surface as DisallowedError here; anything the
// scanner cannot tokenise is a SyntaxError.
func Parse(src string) (Node, error) {
	p := &parser{lex: lexer{src: src}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokEOF {
		if p.cur.kind == tokKeyword {
			return nil, p.disallowedKeyword(p.cur.text)
		}
		return nil, p.syntaxf("unexpected token %q", p.cur.text)
	}
	return node, nil
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *parser) syntaxf(format string, args ...any) error {
	return &SyntaxError{Formula: p.lex.src, Detail: fmt.Sprintf(format, args...), Pos: p.cur.pos}
}

func (p *parser) disallowed(construct string) error {
	return &DisallowedError{Formula: p.lex.src, Construct: construct}
}

// disallowedKeyword names the construct a reserved word introduces, so the
// error tells a config author what was rejected rather than where.
func (p *parser) disallowedKeyword(word string) error {
	switch word {
	case "lambda":
		return p.disallowed("lambda")
	case "if", "else":
		return p.disallowed("conditional expression")
	case "for":
		return p.disallowed("comprehension")
	case "in":
		return p.disallowed("membership test")
	case "is":
		return p.disallowed("identity comparison")
	case "import":
		return p.disallowed("import")
	case "yield", "await":
		return p.disallowed(word + " expression")
	default:
		return p.disallowed(fmt.Sprintf("keyword %q", word))
	}
}

func (p *parser) atOp(text string) bool {
	return p.cur.kind == tokOp && p.cur.text == text
}

func (p *parser) atKeyword(text string) bool {
	return p.cur.kind == tokKeyword && p.cur.text == text
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	if !p.atKeyword("or") {
		return left, nil
	}
	values := []Node{left}
	for p.atKeyword("or") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		values = append(values, right)
	}
	return &BoolOp{Op: "or", Values: values}, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	if !p.atKeyword("and") {
		return left, nil
	}
	values := []Node{left}
	for p.atKeyword("and") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		values = append(values, right)
	}
	return &BoolOp{Op: "and", Values: values}, nil
}

func (p *parser) parseNot() (Node, error) {
	if p.atKeyword("not") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: "not", X: x}, nil
	}
	return p.parseComparison()
}

var compareOps = map[string]bool{
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
}

func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if p.atKeyword("in") || p.atKeyword("is") {
		return nil, p.disallowedKeyword(p.cur.text)
	}
	if p.atOp(":=") || p.atOp("=") {
		return nil, p.disallowed("assignment expression")
	}
	if p.cur.kind != tokOp || !compareOps[p.cur.text] {
		return left, nil
	}
	cmp := &Compare{X: left}
	for p.cur.kind == tokOp && compareOps[p.cur.text] {
		op := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		cmp.Ops = append(cmp.Ops, op)
		cmp.Ys = append(cmp.Ys, right)
	}
	return cmp, nil
}

func (p *parser) parseAdditive() (Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.atOp("+") || p.atOp("-") {
		op := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, X: left, Y: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.atOp("*") || p.atOp("/") || p.atOp("//") || p.atOp("%") {
		op := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, X: left, Y: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Node, error) {
	if p.atOp("+") || p.atOp("-") {
		op := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: op, X: x}, nil
	}
	return p.parsePower()
}

// parsePower handles ** with right associativity; the exponent may itself
// be signed (2 ** -1).
func (p *parser) parsePower() (Node, error) {
	base, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if !p.atOp("**") {
		return base, nil
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	exp, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &Binary{Op: "**", X: base, Y: exp}, nil
}

func (p *parser) parsePostfix() (Node, error) {
	node, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.atOp("("):
			node, err = p.parseCall(node)
			if err != nil {
				return nil, err
			}
		case p.atOp("."):
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.cur.kind != tokIdent {
				return nil, p.syntaxf("expected attribute name after '.'")
			}
			node = &Attribute{X: node, Attr: p.cur.text}
			if err := p.advance(); err != nil {
				return nil, err
			}
		case p.atOp("["):
			if err := p.advance(); err != nil {
				return nil, err
			}
			idx, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if !p.atOp("]") {
				return nil, p.syntaxf("expected ']'")
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
			node = &Subscript{X: node, Index: idx}
		default:
			return node, nil
		}
	}
}

func (p *parser) parseCall(fn Node) (Node, error) {
	if err := p.advance(); err != nil { // consume '('
		return nil, err
	}
	call := &Call{Func: fn}
	for !p.atOp(")") {
		if p.cur.kind == tokEOF {
			return nil, p.syntaxf("unterminated call: expected ')'")
		}
		if p.atOp("*") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			x, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, &Starred{X: x})
		} else if p.cur.kind == tokIdent {
			// Could be a keyword argument: ident '=' value. One token of
			// lookahead decides.
			name := p.cur.text
			save := p.lex.pos
			saveTok := p.cur
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.atOp("=") {
				if err := p.advance(); err != nil {
					return nil, err
				}
				val, err := p.parseOr()
				if err != nil {
					return nil, err
				}
				call.Keywords = append(call.Keywords, KeywordArg{Name: name, Value: val})
			} else {
				p.lex.pos = save
				p.cur = saveTok
				arg, err := p.parseOr()
				if err != nil {
					return nil, err
				}
				call.Args = append(call.Args, arg)
			}
		} else {
			arg, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
		}
		if p.atOp(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
		} else if !p.atOp(")") {
			return nil, p.syntaxf("expected ',' or ')' in call arguments")
		}
	}
	if err := p.advance(); err != nil { // consume ')'
		return nil, err
	}
	return call, nil
}

func (p *parser) parseAtom() (Node, error) {
	switch p.cur.kind {
	case tokNumber:
		node := &NumberLit{Value: p.cur.num}
		return node, p.advance()

	case tokString:
		node := &StringLit{Raw: p.cur.text}
		return node, p.advance()

	case tokFString:
		node := &FStringLit{Raw: p.cur.text}
		return node, p.advance()

	case tokIdent:
		node := &Name{Ident: p.cur.text}
		return node, p.advance()

	case tokKeyword:
		switch p.cur.text {
		case "True":
			node := &BoolLit{Value: true}
			return node, p.advance()
		case "False":
			node := &BoolLit{Value: false}
			return node, p.advance()
		case "None":
			node := &NoneLit{}
			return node, p.advance()
		default:
			return nil, p.disallowedKeyword(p.cur.text)
		}

	case tokOp:
		switch p.cur.text {
		case "(":
			if err := p.advance(); err != nil {
				return nil, err
			}
			node, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if !p.atOp(")") {
				return nil, p.syntaxf("expected ')'")
			}
			return node, p.advance()
		case "[":
			return p.parseListDisplay()
		case "=", ":=":
			return nil, p.disallowed("assignment expression")
		}
	}
	return nil, p.syntaxf("unexpected token %q", p.cur.text)
}

// parseListDisplay parses a bracketed display so the validator can reject
// it as a list literal; a "for" inside it is named as a comprehension.
func (p *parser) parseListDisplay() (Node, error) {
	if err := p.advance(); err != nil { // consume '['
		return nil, err
	}
	lit := &ListLit{}
	for !p.atOp("]") {
		if p.cur.kind == tokEOF {
			return nil, p.syntaxf("expected ']'")
		}
		if p.atKeyword("for") {
			return nil, p.disallowed("comprehension")
		}
		el, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		lit.Elems = append(lit.Elems, el)
		if p.atKeyword("for") {
			return nil, p.disallowed("comprehension")
		}
		if p.atOp(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
		} else if !p.atOp("]") {
			return nil, p.syntaxf("expected ',' or ']'")
		}
	}
	return lit, p.advance()
}
