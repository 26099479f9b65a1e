package soarls

import (
	"slices"
	"sort"
	"strings"

	"github.com/jward/soarls/internal/analysis"
	"github.com/jward/soarls/internal/document"
	"github.com/jward/soarls/internal/tcl"
)

// QueryBuilder answers editor queries from a fixed set of analyses. It
// never fails: a position with no answer yields an empty result.
type QueryBuilder struct {
	docs             *document.Store
	projects         []Project
	fullCommentHover bool
}

// Projects returns the analyses the builder reads, active first.
func (q *QueryBuilder) Projects() []Project { return slices.Clone(q.projects) }

// containing returns the projects whose file set includes uri, active
// first.
func (q *QueryBuilder) containing(uri string) []Project {
	var out []Project
	for _, p := range q.projects {
		if _, ok := p.Analysis.File(uri); ok {
			out = append(out, p)
		}
	}
	return out
}

// target is the definition a position refers to. At most one field is set.
type target struct {
	proc *analysis.ProcedureDefinition
	vr   *analysis.VariableDefinition
}

func (t target) found() bool { return t.proc != nil || t.vr != nil }

// resolve finds the definition the node at pos refers to. Calls and
// variable reads resolve to their definitions. With containment, a
// position inside a definition's own command resolves to that definition.
func resolve(fa *analysis.FileAnalysis, pos Position, containment bool) target {
	doc := fa.Document()
	node := doc.NodeAt(pos)
	if c, ok := fa.ProcedureCall(node); ok && c.Definition != nil {
		return target{proc: c.Definition}
	}
	if r, ok := fa.VariableRetrieval(node); ok && r.Definition != nil {
		return target{vr: r.Definition}
	}
	if !containment {
		return target{}
	}

	tree := doc.Tree()
	var fallback target
	for _, d := range fa.ProcedureDefinitions() {
		if d.NameNode != tcl.NoNode && tree.Contains(d.NameNode, node) {
			return target{proc: d}
		}
		if !fallback.found() && tree.Contains(d.Node, node) {
			fallback = target{proc: d}
		}
	}
	for _, d := range fa.VariableDefinitions() {
		if d.NameNode != tcl.NoNode && tree.Contains(d.NameNode, node) {
			return target{vr: d}
		}
		if !fallback.found() && tree.Contains(d.Node, node) {
			fallback = target{vr: d}
		}
	}
	return fallback
}

// uses returns the locations of every call or read of t.
func (t target) uses(p *analysis.ProjectAnalysis) []Location {
	var out []Location
	if t.proc != nil {
		for _, c := range p.Calls(t.proc) {
			out = append(out, c.Location)
		}
	}
	if t.vr != nil {
		for _, r := range p.Retrievals(t.vr) {
			out = append(out, r.Location)
		}
	}
	return out
}

// declaration returns the location of the defining name, or the whole
// defining command when the name was produced by a macro.
func (t target) declaration(p *analysis.ProjectAnalysis) Location {
	loc, node := t.location()
	if node == tcl.NoNode {
		return loc
	}
	fa, ok := p.File(loc.URI)
	if !ok {
		return loc
	}
	return fa.Document().NodeLocation(node)
}

func (t target) location() (Location, tcl.NodeID) {
	if t.proc != nil {
		return t.proc.Location, t.proc.NameNode
	}
	return t.vr.Location, t.vr.NameNode
}

func appendUnique(locs []Location, more ...Location) []Location {
	for _, l := range more {
		if !slices.Contains(locs, l) {
			locs = append(locs, l)
		}
	}
	return locs
}

// Definition returns where the procedure called or the variable read at
// pos is defined, across every entry point containing the file.
func (q *QueryBuilder) Definition(uri string, pos Position) []Location {
	uri = document.CanonicalURI(uri)
	var out []Location
	for _, p := range q.containing(uri) {
		fa, _ := p.Analysis.File(uri)
		t := resolve(fa, pos, false)
		if !t.found() {
			continue
		}
		loc, _ := t.location()
		out = appendUnique(out, loc)
	}
	return out
}

// References returns every call or read of the definition at pos. The
// position may be on a use or inside the definition itself.
func (q *QueryBuilder) References(uri string, pos Position, includeDeclaration bool) []Location {
	uri = document.CanonicalURI(uri)
	var out []Location
	for _, p := range q.containing(uri) {
		fa, _ := p.Analysis.File(uri)
		t := resolve(fa, pos, true)
		if !t.found() {
			continue
		}
		if includeDeclaration {
			out = appendUnique(out, t.declaration(p.Analysis))
		}
		out = appendUnique(out, t.uses(p.Analysis)...)
	}
	return out
}

// DocumentHighlightKind follows the language server protocol numbering.
type DocumentHighlightKind int

const (
	HighlightText  DocumentHighlightKind = 1
	HighlightRead  DocumentHighlightKind = 2
	HighlightWrite DocumentHighlightKind = 3
)

// DocumentHighlight is one occurrence of the symbol under the cursor.
type DocumentHighlight struct {
	Range Range                 `json:"range"`
	Kind  DocumentHighlightKind `json:"kind"`
}

// DocumentHighlights returns the occurrences in uri of the definition at
// pos. Without a definition, the enclosing top-level command is
// highlighted.
func (q *QueryBuilder) DocumentHighlights(uri string, pos Position) []DocumentHighlight {
	uri = document.CanonicalURI(uri)
	var out []DocumentHighlight
	add := func(r Range, kind DocumentHighlightKind) {
		for _, h := range out {
			if h.Range == r {
				return
			}
		}
		out = append(out, DocumentHighlight{Range: r, Kind: kind})
	}

	for _, p := range q.containing(uri) {
		fa, _ := p.Analysis.File(uri)
		t := resolve(fa, pos, true)
		if !t.found() {
			continue
		}
		if decl := t.declaration(p.Analysis); decl.URI == uri {
			add(decl.Range, HighlightWrite)
		}
		for _, l := range t.uses(p.Analysis) {
			if l.URI == uri {
				add(l.Range, HighlightRead)
			}
		}
	}
	if len(out) > 0 {
		sortHighlights(out)
		return out
	}

	doc, ok := q.document(uri)
	if !ok {
		return nil
	}
	tree := doc.Tree()
	cmd := topLevel(tree, doc.NodeAt(pos))
	if cmd == tcl.NoNode {
		return nil
	}
	return []DocumentHighlight{{Range: doc.NodeRange(cmd), Kind: HighlightText}}
}

func sortHighlights(hs []DocumentHighlight) {
	sort.Slice(hs, func(i, j int) bool { return hs[i].Range.Start.Before(hs[j].Range.Start) })
}

// topLevel returns the child of the root containing id.
func topLevel(tree *tcl.Tree, id tcl.NodeID) tcl.NodeID {
	for id != tcl.NoNode {
		parent := tree.Parent(id)
		if parent == tree.Root() {
			return id
		}
		id = parent
	}
	return tcl.NoNode
}

// document returns the current snapshot of uri.
func (q *QueryBuilder) document(uri string) (*document.Document, bool) {
	if q.docs == nil {
		return nil, false
	}
	return q.docs.Get(uri)
}

// TextEdit replaces a range of a document.
type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

// WorkspaceEdit maps document URIs to their edits.
type WorkspaceEdit map[string][]TextEdit

// Rename returns the edits that rename the definition at pos, its calls or
// reads, across every entry point containing the file. A leading :: on a
// variable name is kept.
func (q *QueryBuilder) Rename(uri string, pos Position, newName string) WorkspaceEdit {
	uri = document.CanonicalURI(uri)
	edits := make(WorkspaceEdit)
	add := func(u string, e TextEdit) {
		if !slices.Contains(edits[u], e) {
			edits[u] = append(edits[u], e)
		}
	}

	for _, p := range q.containing(uri) {
		fa, _ := p.Analysis.File(uri)
		t := resolve(fa, pos, true)
		if !t.found() {
			continue
		}
		editAt := func(loc Location, node tcl.NodeID) {
			f, ok := p.Analysis.File(loc.URI)
			if !ok || node == tcl.NoNode {
				return
			}
			add(loc.URI, nameEdit(f.Document(), node, newName))
		}

		loc, nameNode := t.location()
		editAt(loc, nameNode)
		if t.proc != nil {
			for _, c := range p.Analysis.Calls(t.proc) {
				editAt(c.Location, c.Node)
			}
		}
		if t.vr != nil {
			for _, r := range p.Analysis.Retrievals(t.vr) {
				editAt(r.Location, r.Node)
			}
		}
	}
	if len(edits) == 0 {
		return nil
	}
	for u := range edits {
		sort.Slice(edits[u], func(i, j int) bool {
			return edits[u][i].Range.Start.Before(edits[u][j].Range.Start)
		})
	}
	return edits
}

// nameEdit replaces the name held by node, which is a word naming a
// definition or call, or a variable reference.
func nameEdit(doc *document.Document, node tcl.NodeID, newName string) TextEdit {
	tree := doc.Tree()
	n := tree.Node(node)
	start, end := n.Start, n.End
	switch tree.Kind(node) {
	case tcl.KindVariable:
		for _, c := range tree.Children(node) {
			if tree.Kind(c) == tcl.KindVariableName {
				cn := tree.Node(c)
				start, end = cn.Start, cn.End
				break
			}
		}
	case tcl.KindBracedWord, tcl.KindQuotedWord:
		if n.Err == nil && end-start >= 2 {
			start, end = start+1, end-1
		}
	}
	text := doc.Text()[start:end]
	if strings.HasPrefix(text, "::") && !strings.HasPrefix(newName, "::") {
		newName = "::" + newName
	}
	return TextEdit{Range: doc.Range(start, end), NewText: newName}
}
