package formula

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokKeyword // reserved words: and, or, not, lambda, for, ...
	tokString
	tokFString
	tokOp // operators and punctuation
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

// reservedWords maps keywords to whether they are part of the accepted
// grammar (and/or/not and the boolean literals) or merely recognised so the
// parser can name the disallowed construct precisely.
var reservedWords = map[string]bool{
	"and": true, "or": true, "not": true,
	"True": true, "False": true,
	"None":   false,
	"lambda": false, "if": false, "else": false,
	"for": false, "in": false, "is": false,
	"import": false, "yield": false, "await": false,
}

// multi-char operators, longest first so the scanner is greedy.
var multiOps = []string{"**", "//", "==", "!=", "<=", ">=", ":="}

const singleOps = "+-*/%<>()[],.:="

type lexer struct {
	src string
	pos int
}

func (l *lexer) errf(pos int, format string, args ...any) error {
	return &SyntaxError{Formula: l.src, Detail: fmt.Sprintf(format, args...), Pos: pos}
}

// next scans one token. Unknown characters are syntax errors; there is no
// recovery mode.
func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && isSpace(l.src[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.src[l.pos]

	// Numbers: integer or decimal, optional exponent.
	if isDigit(c) || (c == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1])) {
		return l.scanNumber(start)
	}

	// Identifiers and keywords; an f/r-prefixed string literal lexes as one
	// token so the validator can reject interpolation by name.
	if isIdentStart(rune(c)) {
		end := l.pos
		for end < len(l.src) && isIdentPart(rune(l.src[end])) {
			end++
		}
		word := l.src[l.pos:end]
		if end < len(l.src) && (l.src[end] == '\'' || l.src[end] == '"') && isStringPrefix(word) {
			l.pos = end
			tok, err := l.scanString(start)
			if err != nil {
				return token{}, err
			}
			tok.kind = tokFString
			return tok, nil
		}
		l.pos = end
		if _, ok := reservedWords[word]; ok {
			return token{kind: tokKeyword, text: word, pos: start}, nil
		}
		return token{kind: tokIdent, text: word, pos: start}, nil
	}

	if c == '\'' || c == '"' {
		return l.scanString(start)
	}

	for _, op := range multiOps {
		if strings.HasPrefix(l.src[l.pos:], op) {
			l.pos += len(op)
			return token{kind: tokOp, text: op, pos: start}, nil
		}
	}
	if strings.IndexByte(singleOps, c) >= 0 {
		l.pos++
		return token{kind: tokOp, text: string(c), pos: start}, nil
	}

	return token{}, l.errf(start, "unexpected character %q", string(c))
}

func (l *lexer) scanNumber(start int) (token, error) {
	end := l.pos
	for end < len(l.src) && (isDigit(l.src[end]) || l.src[end] == '.' || l.src[end] == '_') {
		end++
	}
	// exponent part
	if end < len(l.src) && (l.src[end] == 'e' || l.src[end] == 'E') {
		e := end + 1
		if e < len(l.src) && (l.src[e] == '+' || l.src[e] == '-') {
			e++
		}
		if e < len(l.src) && isDigit(l.src[e]) {
			for e < len(l.src) && isDigit(l.src[e]) {
				e++
			}
			end = e
		}
	}
	text := strings.ReplaceAll(l.src[l.pos:end], "_", "")
	val, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, l.errf(start, "invalid numeric literal %q", l.src[l.pos:end])
	}
	l.pos = end
	return token{kind: tokNumber, text: text, num: val, pos: start}, nil
}

func (l *lexer) scanString(start int) (token, error) {
	quote := l.src[l.pos]
	end := l.pos + 1
	for end < len(l.src) {
		if l.src[end] == '\\' {
			end += 2
			continue
		}
		if l.src[end] == quote {
			tok := token{kind: tokString, text: l.src[start : end+1], pos: start}
			l.pos = end + 1
			return tok, nil
		}
		end++
	}
	return token{}, l.errf(start, "unterminated string literal")
}

func isStringPrefix(word string) bool {
	if len(word) > 2 {
		return false
	}
	for _, r := range strings.ToLower(word) {
		if r != 'f' && r != 'r' && r != 'b' && r != 'u' {
			return false
		}
	}
	return true
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }
func isIdentPart(r rune) bool  { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) }
