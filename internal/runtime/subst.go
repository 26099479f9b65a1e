package runtime

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jward/soarls/internal/tcl"
)

// Subst performs backslash, variable and command substitution on s.
func (in *Interp) Subst(ctx context.Context, s string) (string, error) {
	if !strings.ContainsAny(s, "\\$[") {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		switch s[i] {
		case '\\':
			r, n := backslash(s[i:])
			b.WriteString(r)
			i += n
		case '$':
			name, n := scanVarName(s[i:])
			if n == 0 {
				b.WriteByte('$')
				i++
				continue
			}
			v, ok := in.Var(name)
			if !ok {
				return "", fmt.Errorf("can't read %q: no such variable", name)
			}
			b.WriteString(v)
			i += n
		case '[':
			end := tcl.MatchBracket(s, i)
			if end < 0 {
				return "", fmt.Errorf("missing close-bracket")
			}
			v, err := in.Eval(ctx, s[i+1:end-1])
			if err != nil {
				return "", err
			}
			b.WriteString(v)
			i = end
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String(), nil
}

// scanVarName reads the variable reference at the start of s, which begins
// with '$'. It returns the name and the number of bytes consumed, or 0 when
// the dollar sign is literal.
func scanVarName(s string) (string, int) {
	if len(s) < 2 {
		return "", 0
	}
	if s[1] == '{' {
		end := strings.IndexByte(s[2:], '}')
		if end < 0 {
			return "", 0
		}
		return s[2 : 2+end], end + 3
	}
	i := 1
	for i < len(s) {
		c := s[i]
		if c == ':' && i+1 < len(s) && s[i+1] == ':' {
			i += 2
			continue
		}
		if !isNameByte(c) {
			break
		}
		i++
	}
	if i == 1 {
		return "", 0
	}
	return s[1:i], i
}

func isNameByte(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') || c == '_'
}

// backslash decodes the escape sequence at the start of s and returns the
// replacement text and the number of bytes consumed.
func backslash(s string) (string, int) {
	if len(s) < 2 {
		return "\\", 1
	}
	switch c := s[1]; c {
	case 'a':
		return "\a", 2
	case 'b':
		return "\b", 2
	case 'f':
		return "\f", 2
	case 'n':
		return "\n", 2
	case 'r':
		return "\r", 2
	case 't':
		return "\t", 2
	case 'v':
		return "\v", 2
	case '\n':
		n := 2
		for n < len(s) && (s[n] == ' ' || s[n] == '\t') {
			n++
		}
		return " ", n
	case 'x':
		return hexEscape(s, 2, 2)
	case 'u':
		return hexEscape(s, 2, 4)
	default:
		if '0' <= c && c <= '7' {
			n := 1
			for n < 4 && n < len(s) && '0' <= s[n] && s[n] <= '7' {
				n++
			}
			v, _ := strconv.ParseUint(s[1:n], 8, 8)
			return string(rune(v)), n
		}
		return s[1:2], 2
	}
}

func hexEscape(s string, start, maxDigits int) (string, int) {
	n := start
	for n < len(s) && n-start < maxDigits && isHex(s[n]) {
		n++
	}
	if n == start {
		return s[1:2], 2
	}
	v, _ := strconv.ParseUint(s[start:n], 16, 32)
	return string(rune(v)), n
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
