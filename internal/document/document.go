// Package document holds immutable text snapshots of Soar source files and
// the concurrent store that serves them to the analysis engine and the
// protocol handlers.
package document

import (
	"strings"

	"github.com/jward/soarls/internal/tcl"
)

// Document is an immutable snapshot of a file: normalized text, its parse
// tree, a line index and the parse diagnostics. Edits produce a new Document.
type Document struct {
	uri     string
	version int32
	text    string
	tree    *tcl.Tree
	lines   *LineIndex
	diags   []Diagnostic
}

// New normalizes line endings in text and parses it.
func New(uri, text string, version int32) *Document {
	text = NormalizeLineEndings(text)
	d := &Document{
		uri:     uri,
		version: version,
		text:    text,
		tree:    tcl.Parse(text),
		lines:   NewLineIndex(text),
	}
	for _, e := range d.tree.Errors() {
		d.diags = append(d.diags, Diagnostic{
			Range:    d.Range(e.Start, e.End),
			Severity: SeverityError,
			Code:     CodeParseError,
			Source:   DiagnosticSource,
			Message:  e.Message,
		})
	}
	return d
}

// URI returns the canonical file URI of the snapshot.
func (d *Document) URI() string { return d.uri }

// Version is the client version, or 0 for text read from disk.
func (d *Document) Version() int32 { return d.version }

// Text returns the text with line endings normalized to \n.
func (d *Document) Text() string { return d.text }

// Tree returns the parse tree of Text.
func (d *Document) Tree() *tcl.Tree { return d.tree }

// Lines returns the line index of Text.
func (d *Document) Lines() *LineIndex { return d.lines }

// Diagnostics returns the parse diagnostics of the snapshot.
func (d *Document) Diagnostics() []Diagnostic { return d.diags }

// Position converts a byte offset into Text to a Position.
func (d *Document) Position(offset int) Position { return d.lines.Position(offset) }

// Offset converts a Position to a byte offset into Text, clamping it to the
// line and the text.
func (d *Document) Offset(pos Position) int { return d.lines.Offset(pos) }

// Range converts a byte span to a Range.
func (d *Document) Range(start, end int) Range {
	return Range{Start: d.lines.Position(start), End: d.lines.Position(end)}
}

// NodeRange returns the range covered by a node of this document's tree.
func (d *Document) NodeRange(id tcl.NodeID) Range {
	n := d.tree.Node(id)
	return d.Range(n.Start, n.End)
}

// NodeLocation is NodeRange paired with the document URI.
func (d *Document) NodeLocation(id tcl.NodeID) Location {
	return Location{URI: d.uri, Range: d.NodeRange(id)}
}

// NodeAt returns the deepest node containing pos.
func (d *Document) NodeAt(pos Position) tcl.NodeID {
	return d.tree.NodeAt(d.Offset(pos))
}

// Line returns the text of line n without its newline.
func (d *Document) Line(n int) string { return d.lines.Line(n) }

// Change is one content change. A nil Range replaces the whole text.
type Change struct {
	Range *Range `json:"range,omitempty"`
	Text  string `json:"text"`
}

// Apply returns a new snapshot with changes applied in order. Each range is
// interpreted against the text produced by the previous change.
func (d *Document) Apply(version int32, changes ...Change) *Document {
	text := d.text
	lines := d.lines
	for _, c := range changes {
		replacement := NormalizeLineEndings(c.Text)
		if c.Range == nil {
			text = replacement
		} else {
			start, end := lines.Offset(c.Range.Start), lines.Offset(c.Range.End)
			if end < start {
				start, end = end, start
			}
			var b strings.Builder
			b.Grow(len(text) - (end - start) + len(replacement))
			b.WriteString(text[:start])
			b.WriteString(replacement)
			b.WriteString(text[end:])
			text = b.String()
		}
		lines = NewLineIndex(text)
	}
	return New(d.uri, text, version)
}
