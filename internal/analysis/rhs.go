package analysis

import (
	"strconv"
	"strings"
	"unicode"
)

// BuiltinRHSFunctions are the right-hand-side functions every Soar kernel
// provides.
var BuiltinRHSFunctions = []string{
	"write", "crlf", "halt", "interrupt", "wait", "accept", "make-constant-symbol",
	"timestamp", "capitalize-symbol", "concat", "deep-copy", "dc", "cmd", "exec",
	"ifeq", "strlen", "trim", "+", "-", "*", "/", "div", "mod", "abs", "atan2",
	"sqrt", "sin", "cos", "int", "float", "round-off", "round-off-heading",
	"compute-heading", "compute-range", "size", "log", "debug",
}

// splitProduction separates the name of a production from its body.
func splitProduction(text string) (name, body string) {
	text = strings.TrimSpace(text)
	i := strings.IndexFunc(text, unicode.IsSpace)
	if i < 0 {
		return text, ""
	}
	return text[:i], strings.TrimSpace(text[i:])
}

// rhsFunctions returns the function names called on the right-hand side of
// a production body, in order of appearance.
func rhsFunctions(body string) []string {
	arrow := indexOutsidePipes(body, "-->")
	if arrow < 0 {
		return nil
	}
	rhs := body[arrow+3:]
	var names []string
	for i := 0; i < len(rhs); i++ {
		switch rhs[i] {
		case '|':
			i = skipPipe(rhs, i)
		case '(':
			j := i + 1
			for j < len(rhs) && isSpaceByte(rhs[j]) {
				j++
			}
			k := j
			for k < len(rhs) && !isSpaceByte(rhs[k]) && rhs[k] != '(' && rhs[k] != ')' && rhs[k] != '|' {
				k++
			}
			if tok := rhs[j:k]; tok != "" && tok[0] != '<' && tok[0] != '^' {
				names = append(names, tok)
			}
		}
	}
	return names
}

func indexOutsidePipes(s, sub string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '|' {
			i = skipPipe(s, i)
			continue
		}
		if strings.HasPrefix(s[i:], sub) {
			return i
		}
	}
	return -1
}

// skipPipe returns the offset of the pipe closing the string literal that
// opens at i, or the last offset when it is unterminated.
func skipPipe(s string, i int) int {
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case '|':
			return j
		}
	}
	return len(s) - 1
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// canonicalBody normalises whitespace and renames variables by order of
// first appearance, so productions that differ only in naming compare
// equal.
func canonicalBody(body string) string {
	renamed := make(map[string]string)
	var b strings.Builder
	for i := 0; i < len(body); {
		c := body[i]
		switch {
		case isSpaceByte(c):
			for i < len(body) && isSpaceByte(body[i]) {
				i++
			}
			b.WriteByte(' ')
		case c == '|':
			j := skipPipe(body, i)
			b.WriteString(body[i : j+1])
			i = j + 1
		case c == '<':
			j := strings.IndexByte(body[i:], '>')
			if j < 0 || strings.ContainsAny(body[i:i+j], " \t\n()") {
				b.WriteByte(c)
				i++
				continue
			}
			v := body[i : i+j+1]
			r, ok := renamed[v]
			if !ok {
				r = "<v" + strconv.Itoa(len(renamed)) + ">"
				renamed[v] = r
			}
			b.WriteString(r)
			i += j + 1
		case c == '(' || c == ')':
			b.WriteByte(c)
			i++
			for i < len(body) && isSpaceByte(body[i]) {
				i++
			}
		default:
			b.WriteByte(c)
			i++
		}
	}
	return strings.TrimSpace(strings.ReplaceAll(b.String(), " )", ")"))
}
