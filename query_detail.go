package soarls

import (
	"strings"

	"github.com/jward/soarls/internal/analysis"
	"github.com/jward/soarls/internal/document"
	"github.com/jward/soarls/internal/runtime"
	"github.com/jward/soarls/internal/tcl"
)

// Hover is rendered hover text and the range it applies to.
type Hover struct {
	Contents string `json:"contents"`
	Range    Range  `json:"range"`
}

// Hover describes the variable or procedure call at pos. A variable shows
// its value, labelled per entry point when more than one defines it. A
// procedure call shows its signature and the comment above the definition.
func (q *QueryBuilder) Hover(uri string, pos Position) *Hover {
	uri = document.CanonicalURI(uri)
	projects := q.containing(uri)

	type value struct{ label, text string }
	var values []value
	var varRange *Range
	for _, p := range projects {
		fa, _ := p.Analysis.File(uri)
		doc := fa.Document()
		node := doc.NodeAt(pos)
		if r, ok := fa.VariableRetrieval(node); ok {
			if varRange == nil {
				rng := doc.NodeRange(r.Node)
				varRange = &rng
			}
			if r.Definition != nil {
				values = append(values, value{p.Entry.Name, r.Definition.Value})
			}
			continue
		}
		if c, ok := fa.ProcedureCall(node); ok && c.Definition != nil {
			return &Hover{Contents: q.procedureHover(c.Definition), Range: c.CallSite.Range}
		}
	}

	switch {
	case len(values) == 0:
		return nil
	case len(values) == 1:
		return &Hover{Contents: values[0].text, Range: *varRange}
	}
	lines := make([]string, len(values))
	for i, v := range values {
		lines[i] = v.label + ": " + v.text
	}
	return &Hover{Contents: strings.Join(lines, "\n"), Range: *varRange}
}

func (q *QueryBuilder) procedureHover(d *analysis.ProcedureDefinition) string {
	text := signatureLabel(d.Name, d.Arguments)
	if d.Comment == nil || d.Comment.Text == "" {
		return text
	}
	comment := d.Comment.Text
	if !q.fullCommentHover {
		comment, _, _ = strings.Cut(comment, "\n")
	}
	return text + "\n\n" + comment
}

// signatureLabel renders a call with the given parameters, defaults in
// braces: "name a {b 1}".
func signatureLabel(name string, params []runtime.Param) string {
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, name)
	for _, p := range params {
		parts = append(parts, paramLabel(p))
	}
	return strings.Join(parts, " ")
}

func paramLabel(p runtime.Param) string {
	if p.HasDefault {
		return "{" + runtime.FormatList([]string{p.Name, p.Default}) + "}"
	}
	return p.Name
}

// ParameterInformation labels one parameter of a signature.
type ParameterInformation struct {
	Label string `json:"label"`
}

// SignatureInformation is one way to call a procedure.
type SignatureInformation struct {
	Label         string                 `json:"label"`
	Documentation string                 `json:"documentation,omitempty"`
	Parameters    []ParameterInformation `json:"parameters"`
}

// SignatureHelp lists the signatures of the call at the cursor.
type SignatureHelp struct {
	Signatures      []SignatureInformation `json:"signatures"`
	ActiveSignature int                    `json:"activeSignature"`
	ActiveParameter int                    `json:"activeParameter"`
}

// SignatureHelp renders one signature for every valid argument count of the
// procedure called at pos, from the required count to the full list. The
// active signature is the shortest one that still has room for the
// argument being typed.
func (q *QueryBuilder) SignatureHelp(uri string, pos Position) *SignatureHelp {
	uri = document.CanonicalURI(uri)
	for _, p := range q.containing(uri) {
		fa, _ := p.Analysis.File(uri)
		if h := signatureHelp(fa, pos); h != nil {
			return h
		}
	}
	return nil
}

func signatureHelp(fa *analysis.FileAnalysis, pos Position) *SignatureHelp {
	doc := fa.Document()
	tree := doc.Tree()
	offset := doc.Offset(pos)

	cmd, def := callAt(fa, offset)
	if def == nil {
		// Past the last word of the command, e.g. after a trailing space.
		o := offset
		for o > 0 && (doc.Text()[o-1] == ' ' || doc.Text()[o-1] == '\t') {
			o--
		}
		if o == offset || o == 0 {
			return nil
		}
		if cmd, def = callAt(fa, o-1); def == nil {
			return nil
		}
	}

	h := &SignatureHelp{}
	doc0 := ""
	if def.Comment != nil {
		doc0 = def.Comment.Text
	}
	total := len(def.Arguments)
	for k := def.Required(); k <= total; k++ {
		params := def.Arguments[:k]
		sig := SignatureInformation{
			Label:         signatureLabel(def.Name, params),
			Documentation: doc0,
			Parameters:    make([]ParameterInformation, k),
		}
		for i, a := range params {
			sig.Parameters[i] = ParameterInformation{Label: paramLabel(a)}
		}
		h.Signatures = append(h.Signatures, sig)
	}

	words := tree.Words(cmd)
	head := words[0]
	if offset <= tree.Node(head).End {
		h.ActiveSignature = len(h.Signatures) - 1
		return h
	}
	filled := 0
	for _, w := range words[1:] {
		if tree.Node(w).End < offset {
			filled++
		}
	}
	h.ActiveSignature = len(h.Signatures) - 1
	for i, sig := range h.Signatures {
		if len(sig.Parameters) > filled {
			h.ActiveSignature = i
			break
		}
	}
	if k := len(h.Signatures[h.ActiveSignature].Parameters); k > 0 {
		h.ActiveParameter = min(filled, k-1)
	}
	return h
}

// callAt returns the innermost command or substitution around offset whose
// head resolves to a procedure.
func callAt(fa *analysis.FileAnalysis, offset int) (tcl.NodeID, *analysis.ProcedureDefinition) {
	tree := fa.Document().Tree()
	for id := tree.NodeAt(offset); id != tcl.NoNode; id = tree.Parent(id) {
		k := tree.Kind(id)
		if k != tcl.KindCommand && k != tcl.KindCommandWord {
			continue
		}
		head := tree.Head(id)
		if head == tcl.NoNode {
			continue
		}
		if c, ok := fa.ProcedureCall(head); ok && c.Definition != nil {
			return id, c.Definition
		}
	}
	return tcl.NoNode, nil
}
