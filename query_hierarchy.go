package soarls

import (
	"strings"

	"github.com/jward/soarls/internal/analysis"
	"github.com/jward/soarls/internal/document"
	"github.com/jward/soarls/internal/tcl"
)

// DocumentSymbol is a node of a file's outline.
type DocumentSymbol struct {
	Name           string           `json:"name"`
	Detail         string           `json:"detail,omitempty"`
	Kind           SymbolKind       `json:"kind"`
	Range          Range            `json:"range"`
	SelectionRange Range            `json:"selectionRange"`
	Children       []DocumentSymbol `json:"children,omitempty"`
}

// DocumentSymbols returns the outline of uri from the first analysis
// containing it. Every top-level command is a node whose children are the
// productions and procedures it defined. A command that directly defines a
// single thing collapses to that child.
func (q *QueryBuilder) DocumentSymbols(uri string) []DocumentSymbol {
	uri = document.CanonicalURI(uri)
	projects := q.containing(uri)
	if len(projects) == 0 {
		return nil
	}
	fa, _ := projects[0].Analysis.File(uri)
	doc := fa.Document()
	tree := doc.Tree()

	procsByNode := make(map[tcl.NodeID][]*analysis.ProcedureDefinition)
	for _, d := range fa.ProcedureDefinitions() {
		procsByNode[d.Node] = append(procsByNode[d.Node], d)
	}

	var out []DocumentSymbol
	for _, cmd := range tree.Children(tree.Root()) {
		if tree.Kind(cmd) != tcl.KindCommand {
			continue
		}
		var children []DocumentSymbol
		for _, p := range fa.ProductionsAt(cmd) {
			children = append(children, DocumentSymbol{
				Name:           p.Name,
				Kind:           SymbolObject,
				Range:          p.Location.Range,
				SelectionRange: p.Location.Range,
			})
		}
		for _, d := range procsByNode[cmd] {
			sel := d.Location.Range
			if d.NameNode != tcl.NoNode {
				sel = doc.NodeRange(d.NameNode)
			}
			children = append(children, DocumentSymbol{
				Name:           d.Name,
				Detail:         signatureLabel(d.Name, d.Arguments),
				Kind:           SymbolFunction,
				Range:          d.Location.Range,
				SelectionRange: sel,
			})
		}

		if len(children) == 1 && !resolvedHead(fa, tree, cmd) {
			out = append(out, children[0])
			continue
		}
		rng := doc.NodeRange(cmd)
		sel := rng
		if head := tree.Head(cmd); head != tcl.NoNode {
			sel = doc.NodeRange(head)
		}
		first, _, _ := strings.Cut(tree.Source(cmd), "\n")
		out = append(out, DocumentSymbol{
			Name:           strings.TrimSpace(first),
			Kind:           SymbolEvent,
			Range:          rng,
			SelectionRange: sel,
			Children:       children,
		})
	}
	return out
}

// resolvedHead reports whether the command's head calls a known procedure.
func resolvedHead(fa *analysis.FileAnalysis, tree *tcl.Tree, cmd tcl.NodeID) bool {
	head := tree.Head(cmd)
	if head == tcl.NoNode {
		return false
	}
	c, ok := fa.ProcedureCall(head)
	return ok && c.Definition != nil
}

// FoldingRange is a collapsible span of lines.
type FoldingRange struct {
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
	Kind      string `json:"kind,omitempty"`
}

// Folding range kinds.
const (
	FoldComment = "comment"
	FoldRegion  = "region"
)

// FoldingRanges returns one range per top-level comment block or command
// that spans more than one line of the current text of uri.
func (q *QueryBuilder) FoldingRanges(uri string) []FoldingRange {
	doc, ok := q.document(document.CanonicalURI(uri))
	if !ok {
		return nil
	}
	tree := doc.Tree()
	var out []FoldingRange
	for _, id := range tree.Children(tree.Root()) {
		n := tree.Node(id)
		if n.End <= n.Start {
			continue
		}
		start := doc.Position(n.Start).Line
		// Comment blocks end after their newline.
		end := doc.Position(n.End - 1).Line
		if end <= start {
			continue
		}
		kind := FoldRegion
		switch tree.Kind(id) {
		case tcl.KindComment:
			kind = FoldComment
		case tcl.KindCommand:
		default:
			continue
		}
		out = append(out, FoldingRange{StartLine: start, EndLine: end, Kind: kind})
	}
	return out
}
