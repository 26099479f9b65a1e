package runtime

import (
	"fmt"
	"strings"

	"github.com/jward/soarls/internal/tcl"
)

// SplitList splits a Tcl list into its elements.
func SplitList(s string) ([]string, error) {
	var elems []string
	i := 0
	for {
		for i < len(s) && isListSpace(s[i]) {
			i++
		}
		if i >= len(s) {
			return elems, nil
		}
		switch s[i] {
		case '{':
			end := tcl.MatchBrace(s, i)
			if end < 0 {
				return nil, fmt.Errorf("unmatched open brace in list")
			}
			if end < len(s) && !isListSpace(s[end]) {
				return nil, fmt.Errorf("list element in braces followed by %q instead of space", s[end:end+1])
			}
			elems = append(elems, s[i+1:end-1])
			i = end
		case '"':
			end := tcl.MatchQuote(s, i)
			if end < 0 {
				return nil, fmt.Errorf("unmatched open quote in list")
			}
			if end < len(s) && !isListSpace(s[end]) {
				return nil, fmt.Errorf("list element in quotes followed by %q instead of space", s[end:end+1])
			}
			elems = append(elems, unescape(s[i+1:end-1]))
			i = end
		default:
			start := i
			for i < len(s) && !isListSpace(s[i]) {
				if s[i] == '\\' {
					i++
				}
				i++
			}
			i = min(i, len(s))
			elems = append(elems, unescape(s[start:i]))
		}
	}
}

func isListSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

func unescape(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			i++
			continue
		}
		r, n := backslash(s[i:])
		b.WriteString(r)
		i += n
	}
	return b.String()
}

// FormatList joins elements into a canonical Tcl list.
func FormatList(elems []string) string {
	parts := make([]string, len(elems))
	for i, e := range elems {
		parts[i] = quoteElement(e)
	}
	return strings.Join(parts, " ")
}

func quoteElement(e string) string {
	if e == "" {
		return "{}"
	}
	special := false
	for i := 0; i < len(e); i++ {
		switch e[i] {
		case ' ', '\t', '\n', '\r', '\v', '\f', ';', '$', '[', ']', '"', '\\', '{', '}':
			special = true
		}
	}
	if e[0] == '#' {
		special = true
	}
	if !special {
		return e
	}
	if balancedBraces(e) && e[len(e)-1] != '\\' {
		return "{" + e + "}"
	}
	var b strings.Builder
	for i := 0; i < len(e); i++ {
		switch c := e[i]; c {
		case ' ', ';', '$', '[', ']', '"', '\\', '{', '}':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func balancedBraces(s string) bool {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// Param is one formal parameter of a procedure.
type Param struct {
	Name       string
	Default    string
	HasDefault bool
}

// ParseParams parses a proc argument list: each element is a bare name or
// a two-element {name default} list.
func ParseParams(spec string) ([]Param, error) {
	elems, err := SplitList(spec)
	if err != nil {
		return nil, err
	}
	params := make([]Param, 0, len(elems))
	for _, e := range elems {
		parts, err := SplitList(e)
		if err != nil {
			return nil, err
		}
		switch len(parts) {
		case 1:
			params = append(params, Param{Name: parts[0]})
		case 2:
			params = append(params, Param{Name: parts[0], Default: parts[1], HasDefault: true})
		default:
			return nil, fmt.Errorf("too many fields in argument specifier %q", e)
		}
	}
	return params, nil
}
