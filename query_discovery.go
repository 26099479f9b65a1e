package soarls

import (
	"path"
	"sort"
	"strings"

	"github.com/jward/soarls/internal/analysis"
	"github.com/jward/soarls/internal/document"
)

// --- Completion ---

// CompletionItemKind follows the language server protocol numbering.
type CompletionItemKind int

const (
	CompletionFunction CompletionItemKind = 3
	CompletionConstant CompletionItemKind = 21
)

// CompletionItem is one candidate name.
type CompletionItem struct {
	Label  string             `json:"label"`
	Kind   CompletionItemKind `json:"kind"`
	Detail string             `json:"detail,omitempty"`
}

// completionContext classifies the text before the cursor on its line. A
// '$' or '${' starts a variable name; whitespace, '[', '{', '"', ';' or the
// start of the line start a procedure name.
func completionContext(line string, cursor int) (prefix string, variable bool) {
	cursor = min(cursor, len(line))
	for i := cursor - 1; i >= 0; i-- {
		switch line[i] {
		case '$':
			return line[i+1 : cursor], true
		case '{':
			return line[i+1 : cursor], i > 0 && line[i-1] == '$'
		case ' ', '\t', '[', '"', ';':
			return line[i+1 : cursor], false
		}
	}
	return line[:cursor], false
}

// Completion returns the procedures or variables of the active entry point
// whose names start with the word being typed at pos.
func (q *QueryBuilder) Completion(uri string, pos Position) []CompletionItem {
	uri = document.CanonicalURI(uri)
	projects := q.containing(uri)
	if len(projects) == 0 {
		projects = q.projects
	}
	if len(projects) == 0 {
		return nil
	}
	p := projects[0].Analysis

	doc, ok := q.document(uri)
	if !ok {
		fa, found := p.File(uri)
		if !found {
			return nil
		}
		doc = fa.Document()
	}
	lineStart := doc.Offset(Position{Line: pos.Line})
	prefix, variable := completionContext(doc.Line(pos.Line), doc.Offset(pos)-lineStart)

	var items []CompletionItem
	if variable {
		name := strings.TrimLeft(prefix, ":")
		for _, d := range p.Variables() {
			if strings.HasPrefix(d.Name, name) {
				items = append(items, CompletionItem{Label: d.Name, Kind: CompletionConstant, Detail: d.Value})
			}
		}
	} else {
		for _, d := range p.Procedures() {
			if strings.HasPrefix(d.Name, prefix) {
				items = append(items, CompletionItem{Label: d.Name, Kind: CompletionFunction, Detail: signatureLabel(d.Name, d.Arguments)})
			}
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })
	return items
}

// --- Search ---

// SymbolKind follows the language server protocol numbering.
type SymbolKind int

const (
	SymbolFunction SymbolKind = 12
	SymbolVariable SymbolKind = 13
	SymbolObject   SymbolKind = 19
	SymbolEvent    SymbolKind = 24
)

// SymbolInformation is a named definition found by a workspace search.
type SymbolInformation struct {
	Name          string     `json:"name"`
	Kind          SymbolKind `json:"kind"`
	Location      Location   `json:"location"`
	ContainerName string     `json:"containerName,omitempty"`
}

// SearchSymbols returns the procedures, variables and productions of every
// entry point whose name matches pattern. '*' is a wildcard; a pattern
// without one matches names containing it. Results are deduplicated and
// sorted by name.
func (q *QueryBuilder) SearchSymbols(pattern string) []SymbolInformation {
	match := matcher(pattern)
	seen := make(map[Location]bool)
	var out []SymbolInformation
	add := func(s SymbolInformation) {
		if !match(s.Name) || seen[s.Location] {
			return
		}
		seen[s.Location] = true
		out = append(out, s)
	}
	for _, p := range q.projects {
		for _, d := range p.Analysis.Procedures() {
			add(SymbolInformation{Name: d.Name, Kind: SymbolFunction, Location: d.Location, ContainerName: p.Entry.Name})
		}
		for _, d := range p.Analysis.Variables() {
			add(SymbolInformation{Name: d.Name, Kind: SymbolVariable, Location: d.Location, ContainerName: p.Entry.Name})
		}
		for _, uri := range p.Analysis.Files() {
			fa, _ := p.Analysis.File(uri)
			for _, prod := range fa.Productions() {
				add(SymbolInformation{Name: prod.Name, Kind: SymbolObject, Location: prod.Location, ContainerName: p.Entry.Name})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func matcher(pattern string) func(string) bool {
	if pattern == "" {
		return func(string) bool { return true }
	}
	if !strings.Contains(pattern, "*") {
		return func(name string) bool { return strings.Contains(name, pattern) }
	}
	return func(name string) bool {
		ok, err := path.Match(pattern, name)
		return err == nil && ok
	}
}

// --- Digest ---

// ProjectSummary counts what one entry point's analysis found.
type ProjectSummary struct {
	Entry       EntryPoint
	Files       int
	Procedures  int
	Variables   int
	Productions int
	Errors      int
	Warnings    int
}

// Summaries returns a summary per entry point, active first.
func (q *QueryBuilder) Summaries() []ProjectSummary {
	out := make([]ProjectSummary, 0, len(q.projects))
	for _, p := range q.projects {
		out = append(out, summarize(p))
	}
	return out
}

func summarize(p Project) ProjectSummary {
	s := ProjectSummary{
		Entry:      p.Entry,
		Files:      len(p.Analysis.Files()),
		Procedures: len(p.Analysis.Procedures()),
		Variables:  len(p.Analysis.Variables()),
	}
	for _, uri := range p.Analysis.Files() {
		fa, _ := p.Analysis.File(uri)
		s.Productions += len(fa.Productions())
		countSeverities(&s, fa)
	}
	return s
}

func countSeverities(s *ProjectSummary, fa *analysis.FileAnalysis) {
	for _, d := range fa.Diagnostics() {
		switch d.Severity {
		case document.SeverityError:
			s.Errors++
		case document.SeverityWarning:
			s.Warnings++
		}
	}
}
