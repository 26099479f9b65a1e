package runtime

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/object"

	"github.com/jward/soarls/internal/tcl"
)

// Expr evaluates a Tcl expression. Operands are substituted and bound as
// typed Risor globals. The operators are parsed with Tcl precedence and
// emitted as Risor source; operators whose Tcl semantics differ from Risor's
// (integer / and %, **, ~) become host builtin calls.
func (in *Interp) Expr(ctx context.Context, expr string) (string, error) {
	obj, err := in.evalExpr(ctx, expr)
	if err != nil {
		return "", err
	}
	return formatObject(obj), nil
}

// ExprBool evaluates a condition for if, while and for.
func (in *Interp) ExprBool(ctx context.Context, expr string) (bool, error) {
	obj, err := in.evalExpr(ctx, expr)
	if err != nil {
		return false, err
	}
	switch v := obj.(type) {
	case *object.Bool:
		return v.Value(), nil
	case *object.Int:
		return v.Value() != 0, nil
	case *object.Float:
		return v.Value() != 0, nil
	}
	return parseBool(formatObject(obj))
}

func (in *Interp) evalExpr(ctx context.Context, expr string) (object.Object, error) {
	tr := exprTranslator{in: in, globals: map[string]any{}}
	if err := tr.translate(ctx, expr); err != nil {
		return nil, err
	}
	if len(tr.toks) == 0 {
		return nil, fmt.Errorf("empty expression")
	}
	src, err := (&exprParser{toks: tr.toks}).parse()
	if err != nil {
		return nil, fmt.Errorf("syntax error in expression %q: %w", expr, err)
	}
	opts := make([]risor.Option, 0, len(tr.globals)+len(mathFuncs)+len(opFuncs))
	for name, v := range tr.globals {
		opts = append(opts, risor.WithGlobal(name, v))
	}
	for name, fn := range mathFuncs {
		opts = append(opts, risor.WithGlobal(mathPrefix+name, fn))
	}
	for name, fn := range opFuncs {
		opts = append(opts, risor.WithGlobal(name, fn))
	}
	obj, err := risor.Eval(ctx, src, opts...)
	if err != nil {
		return nil, fmt.Errorf("syntax error in expression %q: %w", expr, err)
	}
	if e, ok := obj.(*object.Error); ok {
		return nil, e.Value()
	}
	return obj, nil
}

type tokenKind int

const (
	tokOperand tokenKind = iota
	tokOperator
	tokFunc
	tokOpen
	tokClose
	tokComma
)

type exprToken struct {
	kind tokenKind
	text string
}

type exprTranslator struct {
	in      *Interp
	globals map[string]any
	toks    []exprToken
}

func (t *exprTranslator) emit(kind tokenKind, text string) {
	t.toks = append(t.toks, exprToken{kind: kind, text: text})
}

// bind stores an operand as a global and emits its name. Operands that look
// numeric become Int or Float values.
func (t *exprTranslator) bind(s string) {
	name := "tclv" + strconv.Itoa(len(t.globals))
	t.globals[name] = operand(s)
	t.emit(tokOperand, name)
}

func operand(s string) any {
	trimmed := strings.TrimSpace(s)
	if n, err := strconv.ParseInt(trimmed, 0, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil && !strings.ContainsAny(trimmed, "xXpP") {
		return f
	}
	return s
}

func (t *exprTranslator) translate(ctx context.Context, s string) error {
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '$':
			name, n := scanVarName(s[i:])
			if n == 0 {
				return fmt.Errorf("invalid character \"$\" in expression %q", s)
			}
			v, ok := t.in.Var(name)
			if !ok {
				return fmt.Errorf("can't read %q: no such variable", name)
			}
			t.bind(v)
			i += n
		case c == '[':
			end := tcl.MatchBracket(s, i)
			if end < 0 {
				return fmt.Errorf("missing close-bracket in expression %q", s)
			}
			v, err := t.in.Eval(ctx, s[i+1:end-1])
			if err != nil {
				return err
			}
			t.bind(v)
			i = end
		case c == '"':
			end := tcl.MatchQuote(s, i)
			if end < 0 {
				return fmt.Errorf("missing close-quote in expression %q", s)
			}
			v, err := t.in.Subst(ctx, s[i+1:end-1])
			if err != nil {
				return err
			}
			t.bind(v)
			i = end
		case c == '{':
			end := tcl.MatchBrace(s, i)
			if end < 0 {
				return fmt.Errorf("missing close-brace in expression %q", s)
			}
			t.bind(s[i+1 : end-1])
			i = end
		case isDigit(c) || (c == '.' && i+1 < len(s) && isDigit(s[i+1])):
			j := scanNumber(s, i)
			lit := s[i:j]
			if _, ok := operand(lit).(string); ok {
				return fmt.Errorf("invalid number %q in expression", lit)
			}
			t.bind(lit)
			i = j
		case isLetterByte(c):
			j := i
			for j < len(s) && isNameByte(s[j]) {
				j++
			}
			word := s[i:j]
			k := j
			for k < len(s) && (s[k] == ' ' || s[k] == '\t') {
				k++
			}
			if k < len(s) && s[k] == '(' {
				if _, ok := mathFuncs[word]; !ok {
					return fmt.Errorf("unknown math function %q", word)
				}
				t.emit(tokFunc, mathPrefix+word)
				i = j
				continue
			}
			switch word {
			case "eq":
				t.emit(tokOperator, "==")
			case "ne":
				t.emit(tokOperator, "!=")
			case "true", "false":
				t.emit(tokOperand, word)
			case "yes", "on":
				t.emit(tokOperand, "true")
			case "no", "off":
				t.emit(tokOperand, "false")
			default:
				return fmt.Errorf("invalid bare word %q", word)
			}
			i = j
		case c == '(':
			t.emit(tokOpen, "(")
			i++
		case c == ')':
			t.emit(tokClose, ")")
			i++
		case c == ',':
			t.emit(tokComma, ",")
			i++
		case strings.IndexByte("+-*/%<>=!&|?:~^", c) >= 0:
			op := s[i : i+1]
			i++
			if i < len(s) && isCompound(c, s[i]) {
				op += s[i : i+1]
				i++
			}
			if op == "=" {
				return fmt.Errorf("invalid character \"=\" in expression %q", s)
			}
			t.emit(tokOperator, op)
		default:
			return fmt.Errorf("invalid character %q in expression %q", string(c), s)
		}
	}
	return nil
}

func isCompound(a, b byte) bool {
	switch string([]byte{a, b}) {
	case "==", "!=", "<=", ">=", "&&", "||", "**", "<<", ">>":
		return true
	}
	return false
}

func scanNumber(s string, i int) int {
	j := i
	for j < len(s) {
		c := s[j]
		switch {
		case isDigit(c) || c == '.' || c == 'x' || c == 'X' || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F'):
			j++
		case (c == '+' || c == '-') && j > i && (s[j-1] == 'e' || s[j-1] == 'E') && !strings.HasPrefix(s[i:], "0x"):
			j++
		default:
			return j
		}
	}
	return j
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

func isLetterByte(c byte) bool { return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || c == '_' }

// formatObject renders an expression result the way Tcl prints numbers.
func formatObject(obj object.Object) string {
	switch v := obj.(type) {
	case *object.Int:
		return strconv.FormatInt(v.Value(), 10)
	case *object.Float:
		return formatFloat(v.Value())
	case *object.Bool:
		return boolString(v.Value())
	case *object.String:
		return v.Value()
	case *object.NilType:
		return ""
	}
	return obj.Inspect()
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	case math.IsNaN(f):
		return "NaN"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
