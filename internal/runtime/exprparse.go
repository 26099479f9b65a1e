package runtime

import (
	"fmt"
	"slices"
	"strings"
)

// binaryLevels lists the Tcl binary operators from loosest to tightest.
// ** binds tighter still and is parsed by power.
var binaryLevels = [][]string{
	{"||"},
	{"&&"},
	{"|"},
	{"^"},
	{"&"},
	{"==", "!="},
	{"<", ">", "<=", ">="},
	{"<<", ">>"},
	{"+", "-"},
	{"*", "/", "%"},
}

// builtinOps are operators evaluated by a host function instead of Risor.
var builtinOps = map[string]string{
	"/":  opPrefix + "div",
	"%":  opPrefix + "mod",
	"**": opPrefix + "pow",
}

// exprParser turns translated tokens into fully parenthesised Risor source.
type exprParser struct {
	toks []exprToken
	pos  int
}

func (p *exprParser) parse() (string, error) {
	src, err := p.ternary()
	if err != nil {
		return "", err
	}
	if p.pos < len(p.toks) {
		return "", fmt.Errorf("unexpected %q", p.toks[p.pos].text)
	}
	return src, nil
}

func (p *exprParser) peek() (exprToken, bool) {
	if p.pos < len(p.toks) {
		return p.toks[p.pos], true
	}
	return exprToken{}, false
}

func (p *exprParser) peekOperator(ops ...string) (string, bool) {
	tok, ok := p.peek()
	if !ok || tok.kind != tokOperator || !slices.Contains(ops, tok.text) {
		return "", false
	}
	return tok.text, true
}

func (p *exprParser) expect(kind tokenKind, text string) error {
	tok, ok := p.peek()
	if !ok {
		return fmt.Errorf("missing %q", text)
	}
	if tok.kind != kind || tok.text != text {
		return fmt.Errorf("expected %q but got %q", text, tok.text)
	}
	p.pos++
	return nil
}

// ternary is right associative: a ? b : c ? d : e.
func (p *exprParser) ternary() (string, error) {
	cond, err := p.binary(0)
	if err != nil {
		return "", err
	}
	if _, ok := p.peekOperator("?"); !ok {
		return cond, nil
	}
	p.pos++
	then, err := p.ternary()
	if err != nil {
		return "", err
	}
	if err := p.expect(tokOperator, ":"); err != nil {
		return "", err
	}
	els, err := p.ternary()
	if err != nil {
		return "", err
	}
	return "(" + cond + " ? " + then + " : " + els + ")", nil
}

func (p *exprParser) binary(level int) (string, error) {
	if level == len(binaryLevels) {
		return p.power()
	}
	left, err := p.binary(level + 1)
	if err != nil {
		return "", err
	}
	for {
		op, ok := p.peekOperator(binaryLevels[level]...)
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.binary(level + 1)
		if err != nil {
			return "", err
		}
		left = combine(op, left, right)
	}
}

// power is right associative and takes unary operands, so -2**2 is 4.
func (p *exprParser) power() (string, error) {
	base, err := p.unary()
	if err != nil {
		return "", err
	}
	if _, ok := p.peekOperator("**"); !ok {
		return base, nil
	}
	p.pos++
	exp, err := p.power()
	if err != nil {
		return "", err
	}
	return combine("**", base, exp), nil
}

func (p *exprParser) unary() (string, error) {
	op, ok := p.peekOperator("-", "+", "!", "~")
	if !ok {
		return p.primary()
	}
	p.pos++
	x, err := p.unary()
	if err != nil {
		return "", err
	}
	switch op {
	case "+":
		return x, nil
	case "~":
		return opPrefix + "bnot(" + x + ")", nil
	}
	return "(" + op + x + ")", nil
}

func (p *exprParser) primary() (string, error) {
	tok, ok := p.peek()
	if !ok {
		return "", fmt.Errorf("missing operand")
	}
	p.pos++
	switch tok.kind {
	case tokOperand:
		return tok.text, nil
	case tokOpen:
		x, err := p.ternary()
		if err != nil {
			return "", err
		}
		if err := p.expect(tokClose, ")"); err != nil {
			return "", err
		}
		return "(" + x + ")", nil
	case tokFunc:
		return p.call(tok.text)
	}
	return "", fmt.Errorf("unexpected %q", tok.text)
}

func (p *exprParser) call(name string) (string, error) {
	if err := p.expect(tokOpen, "("); err != nil {
		return "", err
	}
	var args []string
	if tok, ok := p.peek(); ok && tok.kind == tokClose {
		p.pos++
		return name + "()", nil
	}
	for {
		arg, err := p.ternary()
		if err != nil {
			return "", err
		}
		args = append(args, arg)
		tok, ok := p.peek()
		if !ok {
			return "", fmt.Errorf("missing \")\" after arguments to %s", name)
		}
		p.pos++
		switch tok.kind {
		case tokClose:
			return name + "(" + strings.Join(args, ", ") + ")", nil
		case tokComma:
		default:
			return "", fmt.Errorf("unexpected %q in arguments to %s", tok.text, name)
		}
	}
}

func combine(op, left, right string) string {
	if fn, ok := builtinOps[op]; ok {
		return fn + "(" + left + ", " + right + ")"
	}
	return "(" + left + " " + op + " " + right + ")"
}
