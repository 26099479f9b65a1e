package document

import (
	"sort"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// NormalizeLineEndings rewrites "\r\n" and bare "\r" to "\n".
func NormalizeLineEndings(s string) string {
	if !strings.ContainsRune(s, '\r') {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// LineIndex maps byte offsets of a normalized text to positions and back.
type LineIndex struct {
	text   string
	starts []int
}

// NewLineIndex indexes text, which must already be normalized.
func NewLineIndex(text string) *LineIndex {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &LineIndex{text: text, starts: starts}
}

// LineCount returns the number of lines, counting a trailing empty one.
func (x *LineIndex) LineCount() int { return len(x.starts) }

// Position converts a byte offset. Offsets outside the text are clamped.
func (x *LineIndex) Position(offset int) Position {
	offset = max(0, min(offset, len(x.text)))
	line := sort.Search(len(x.starts), func(i int) bool { return x.starts[i] > offset }) - 1
	return Position{Line: line, Character: utf16Len(x.text[x.starts[line]:offset])}
}

// Offset converts a position to a byte offset. A line past the end maps to
// the end of the text and a character past the end of its line maps to the
// end of that line.
func (x *LineIndex) Offset(pos Position) int {
	if pos.Line < 0 {
		return 0
	}
	if pos.Line >= len(x.starts) {
		return len(x.text)
	}
	i := x.starts[pos.Line]
	for units := 0; i < len(x.text) && x.text[i] != '\n'; {
		if units >= pos.Character {
			break
		}
		r, size := utf8.DecodeRuneInString(x.text[i:])
		units += utf16.RuneLen(r)
		if units > pos.Character && r >= 0x10000 {
			// A position between the two halves of a surrogate pair
			// belongs to the start of the rune.
			break
		}
		i += size
	}
	return i
}

// Line returns the text of line n without its newline.
func (x *LineIndex) Line(n int) string {
	if n < 0 || n >= len(x.starts) {
		return ""
	}
	end := len(x.text)
	if n+1 < len(x.starts) {
		end = x.starts[n+1] - 1
	}
	return x.text[x.starts[n]:end]
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}
