package soarls

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jward/soarls/internal/document"
)

// CodeLens is an inline annotation. Title is what the editor shows.
type CodeLens struct {
	Range Range  `json:"range"`
	Title string `json:"title"`
}

// CodeLenses lists which entry points include uri: once at the top of the
// file and once at every procedure definition and production.
func (q *QueryBuilder) CodeLenses(uri string) []CodeLens {
	uri = document.CanonicalURI(uri)
	projects := q.containing(uri)
	if len(projects) == 0 {
		return nil
	}
	names := make([]string, len(projects))
	for i, p := range projects {
		names[i] = p.Entry.Name
	}
	title := "Member of " + strings.Join(names, ", ")

	lenses := []CodeLens{{Title: title}}
	fa, _ := projects[0].Analysis.File(uri)
	var ranges []Range
	for _, d := range fa.ProcedureDefinitions() {
		ranges = append(ranges, d.Location.Range)
	}
	for _, p := range fa.Productions() {
		ranges = append(ranges, p.Location.Range)
	}
	slices.SortFunc(ranges, func(a, b Range) int {
		switch {
		case a.Start.Before(b.Start):
			return -1
		case b.Start.Before(a.Start):
			return 1
		}
		return 0
	})
	for _, r := range slices.Compact(ranges) {
		lenses = append(lenses, CodeLens{Range: r, Title: title})
	}
	return lenses
}

// SourceEdge is one file sourced by another.
type SourceEdge struct {
	From  string
	To    string
	Found bool
}

// Sourcing returns the source edges of the named entry point's latest
// analysis, or of the active one when name is empty, in evaluation order.
func (q *QueryBuilder) Sourcing(name string) []SourceEdge {
	p, ok := q.project(name)
	if !ok {
		return nil
	}
	var out []SourceEdge
	for _, uri := range p.Analysis.SourcedURIs() {
		fa, ok := p.Analysis.File(uri)
		if !ok {
			continue
		}
		for _, to := range fa.FilesSourced() {
			_, found := p.Analysis.File(to)
			out = append(out, SourceEdge{From: uri, To: to, Found: found})
		}
	}
	return out
}

func (q *QueryBuilder) project(name string) (Project, bool) {
	for _, p := range q.projects {
		if name == "" || p.Entry.Name == name {
			return p, true
		}
	}
	return Project{}, false
}

// SourceTree renders the sourcing hierarchy of an entry point as an
// indented tree. Paths are relative to the entry point's directory.
// Files that could not be read and recursive sources are marked.
func (q *QueryBuilder) SourceTree(name string) string {
	p, ok := q.project(name)
	if !ok {
		return ""
	}
	entry := p.Analysis.EntryPoint()
	base := ""
	if path, err := document.PathFromURI(entry); err == nil {
		base = filepath.Dir(path)
	}
	display := func(uri string) string {
		path, err := document.PathFromURI(uri)
		if err != nil {
			return uri
		}
		if rel, err := filepath.Rel(base, path); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
		return path
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", display(entry), p.Entry.Name)
	var walk func(uri string, depth int, stack []string)
	walk = func(uri string, depth int, stack []string) {
		fa, ok := p.Analysis.File(uri)
		if !ok {
			return
		}
		for _, to := range fa.FilesSourced() {
			indent := strings.Repeat("  ", depth)
			switch {
			case slices.Contains(stack, to):
				fmt.Fprintf(&b, "%s%s (recursive)\n", indent, display(to))
			case !hasFile(p, to):
				fmt.Fprintf(&b, "%s%s (not found)\n", indent, display(to))
			default:
				fmt.Fprintf(&b, "%s%s\n", indent, display(to))
				walk(to, depth+1, append(slices.Clip(stack), to))
			}
		}
	}
	walk(entry, 1, []string{entry})
	return b.String()
}

func hasFile(p Project, uri string) bool {
	_, ok := p.Analysis.File(uri)
	return ok
}
