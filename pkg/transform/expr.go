// Package transform pkg/transform/expr.go
//
// A restricted single-variable expression evaluator for the profile "math"
// stage. The grammar covers arithmetic operators, parentheses and an
// allow-list of named functions. There is no general code execution path:
// expressions compile to a small AST that can only do float arithmetic on x.
package transform

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// funcDef is one allow-listed function.
type funcDef struct {
	arity int
	call  func(args []float64) float64
}

// allowedFuncs is the full set of functions a profile math expression may
// reference. Anything else is rejected at parse time.
var allowedFuncs = map[string]funcDef{
	"sin":   {1, func(a []float64) float64 { return math.Sin(a[0]) }},
	"cos":   {1, func(a []float64) float64 { return math.Cos(a[0]) }},
	"tan":   {1, func(a []float64) float64 { return math.Tan(a[0]) }},
	"log":   {1, func(a []float64) float64 { return math.Log(a[0]) }},
	"log10": {1, func(a []float64) float64 { return math.Log10(a[0]) }},
	"log2":  {1, func(a []float64) float64 { return math.Log2(a[0]) }},
	"sqrt":  {1, func(a []float64) float64 { return math.Sqrt(a[0]) }},
	"abs":   {1, func(a []float64) float64 { return math.Abs(a[0]) }},
	"exp":   {1, func(a []float64) float64 { return math.Exp(a[0]) }},
	"floor": {1, func(a []float64) float64 { return math.Floor(a[0]) }},
	"ceil":  {1, func(a []float64) float64 { return math.Ceil(a[0]) }},
	"round": {1, func(a []float64) float64 { return math.Round(a[0]) }},
	"pow":   {2, func(a []float64) float64 { return math.Pow(a[0], a[1]) }},
	"min":   {2, func(a []float64) float64 { return math.Min(a[0], a[1]) }},
	"max":   {2, func(a []float64) float64 { return math.Max(a[0], a[1]) }},
}

// Expr is a compiled math expression over the single variable x.
type Expr struct {
	src  string
	root node
}

// ParseExpr compiles src. Malformed expressions, unknown identifiers and
// wrong function arities are all reported here, never at evaluation time.
func ParseExpr(src string) (*Expr, error) {
	p := &exprParser{src: src}
	p.next()

	root, err := p.parseAdditive()
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrMalformedExpr, src, err)
	}

	if p.tok.kind != tokEOF {
		return nil, fmt.Errorf("%w: %q: unexpected %q", ErrMalformedExpr, src, p.tok.text)
	}

	return &Expr{src: src, root: root}, nil
}

// Eval evaluates the expression with the variable bound to x.
func (e *Expr) Eval(x float64) float64 {
	return e.root.eval(x)
}

// String returns the original source of the expression.
func (e *Expr) String() string {
	return e.src
}

// ---------------------------------------------------------------------------
// AST
// ---------------------------------------------------------------------------

type node interface {
	eval(x float64) float64
}

type numNode float64

func (n numNode) eval(float64) float64 { return float64(n) }

type varNode struct{}

func (varNode) eval(x float64) float64 { return x }

type unaryNode struct {
	op      byte
	operand node
}

func (n unaryNode) eval(x float64) float64 {
	v := n.operand.eval(x)
	if n.op == '-' {
		return -v
	}

	return v
}

type binaryNode struct {
	op          byte
	left, right node
}

func (n binaryNode) eval(x float64) float64 {
	l := n.left.eval(x)
	r := n.right.eval(x)

	switch n.op {
	case '+':
		return l + r
	case '-':
		return l - r
	case '*':
		return l * r
	case '/':
		return l / r
	case '%':
		return math.Mod(l, r)
	default: // '^'
		return math.Pow(l, r)
	}
}

type callNode struct {
	fn   funcDef
	args []node
}

func (n callNode) eval(x float64) float64 {
	args := make([]float64, len(n.args))
	for i, a := range n.args {
		args[i] = a.eval(x)
	}

	return n.fn.call(args)
}

// ---------------------------------------------------------------------------
// Scanner + recursive descent parser
// ---------------------------------------------------------------------------

type tokKind int

const (
	tokEOF tokKind = iota
	tokNum
	tokIdent
	tokOp // single-byte operator or delimiter
)

type token struct {
	kind tokKind
	text string
	num  float64
}

type exprParser struct {
	src string
	pos int
	tok token
}

func (p *exprParser) next() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}

	if p.pos >= len(p.src) {
		p.tok = token{kind: tokEOF}
		return
	}

	c := p.src[p.pos]

	switch {
	case c >= '0' && c <= '9' || c == '.':
		start := p.pos
		for p.pos < len(p.src) && (isNumChar(p.src[p.pos]) ||
			(p.src[p.pos] == '-' || p.src[p.pos] == '+') && (p.src[p.pos-1] == 'e' || p.src[p.pos-1] == 'E')) {
			p.pos++
		}

		text := p.src[start:p.pos]

		num, err := strconv.ParseFloat(text, 64)
		if err != nil {
			p.tok = token{kind: tokOp, text: text} // will fail in the parser
			return
		}

		p.tok = token{kind: tokNum, text: text, num: num}
	case unicode.IsLetter(rune(c)):
		start := p.pos
		for p.pos < len(p.src) && (unicode.IsLetter(rune(p.src[p.pos])) || unicode.IsDigit(rune(p.src[p.pos]))) {
			p.pos++
		}

		p.tok = token{kind: tokIdent, text: p.src[start:p.pos]}
	default:
		p.pos++
		p.tok = token{kind: tokOp, text: string(c)}
	}
}

func isNumChar(c byte) bool {
	return c >= '0' && c <= '9' || c == '.' || c == 'e' || c == 'E'
}

func (p *exprParser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}

	for p.tok.kind == tokOp && (p.tok.text == "+" || p.tok.text == "-") {
		op := p.tok.text[0]
		p.next()

		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}

		left = binaryNode{op: op, left: left, right: right}
	}

	return left, nil
}

func (p *exprParser) parseMultiplicative() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for p.tok.kind == tokOp && (p.tok.text == "*" || p.tok.text == "/" || p.tok.text == "%") {
		op := p.tok.text[0]
		p.next()

		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		left = binaryNode{op: op, left: left, right: right}
	}

	return left, nil
}

func (p *exprParser) parseUnary() (node, error) {
	if p.tok.kind == tokOp && (p.tok.text == "-" || p.tok.text == "+") {
		op := p.tok.text[0]
		p.next()

		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		return unaryNode{op: op, operand: operand}, nil
	}

	return p.parsePower()
}

func (p *exprParser) parsePower() (node, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	// Right associative: 2^3^2 is 2^(3^2).
	if p.tok.kind == tokOp && p.tok.text == "^" {
		p.next()

		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		return binaryNode{op: '^', left: base, right: exp}, nil
	}

	return base, nil
}

func (p *exprParser) parsePrimary() (node, error) {
	switch {
	case p.tok.kind == tokNum:
		n := numNode(p.tok.num)
		p.next()

		return n, nil
	case p.tok.kind == tokIdent:
		name := p.tok.text
		p.next()

		if name == "x" {
			return varNode{}, nil
		}

		fn, ok := allowedFuncs[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("unknown identifier %q", name)
		}

		return p.parseCall(name, fn)
	case p.tok.kind == tokOp && p.tok.text == "(":
		p.next()

		inner, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}

		if p.tok.kind != tokOp || p.tok.text != ")" {
			return nil, fmt.Errorf("missing closing parenthesis")
		}

		p.next()

		return inner, nil
	case p.tok.kind == tokEOF:
		return nil, fmt.Errorf("unexpected end of expression")
	default:
		return nil, fmt.Errorf("unexpected %q", p.tok.text)
	}
}

func (p *exprParser) parseCall(name string, fn funcDef) (node, error) {
	if p.tok.kind != tokOp || p.tok.text != "(" {
		return nil, fmt.Errorf("function %q must be called with arguments", name)
	}

	p.next()

	args := make([]node, 0, fn.arity)

	for {
		arg, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}

		args = append(args, arg)

		if p.tok.kind == tokOp && p.tok.text == "," {
			p.next()
			continue
		}

		break
	}

	if p.tok.kind != tokOp || p.tok.text != ")" {
		return nil, fmt.Errorf("missing closing parenthesis in call to %q", name)
	}

	p.next()

	if len(args) != fn.arity {
		return nil, fmt.Errorf("function %q takes %d argument(s), got %d", name, fn.arity, len(args))
	}

	return callNode{fn: fn, args: args}, nil
}
