package analysis

import (
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jward/soarls/internal/document"
	"github.com/jward/soarls/internal/runtime"
	"github.com/jward/soarls/internal/tcl"
)

// Comment is a comment block attached to the definition that follows it.
type Comment struct {
	Node tcl.NodeID
	Text string
}

// ProcedureDefinition records a proc command that ran during analysis.
type ProcedureDefinition struct {
	Name      string
	Location  document.Location
	Arguments []runtime.Param
	// Node is the top-level command that was being evaluated.
	Node tcl.NodeID
	// NameNode is the word holding the procedure name, or tcl.NoNode when
	// the definition was produced by a macro.
	NameNode tcl.NodeID
	Comment  *Comment
}

// Required returns the number of arguments without a default value.
func (d *ProcedureDefinition) Required() int {
	n := 0
	for _, a := range d.Arguments {
		if !a.HasDefault && a.Name != "args" {
			n++
		}
	}
	return n
}

// Variadic reports whether the last argument is the special args list.
func (d *ProcedureDefinition) Variadic() bool {
	return len(d.Arguments) > 0 && d.Arguments[len(d.Arguments)-1].Name == "args"
}

// VariableDefinition records a global assignment made by set.
type VariableDefinition struct {
	Name     string
	Location document.Location
	Value    string
	Node     tcl.NodeID
	NameNode tcl.NodeID
	Comment  *Comment
}

// ProcedureCall is a command or command substitution whose head word may
// name a procedure. Definition is nil when it does not resolve.
type ProcedureCall struct {
	// Location is the head word.
	Location document.Location
	// CallSite spans the whole command or command substitution.
	CallSite   document.Location
	Node       tcl.NodeID
	Definition *ProcedureDefinition
}

// VariableRetrieval is a $name reference. Definition is nil when it does not
// resolve.
type VariableRetrieval struct {
	Location   document.Location
	Node       tcl.NodeID
	Definition *VariableDefinition
}

// Production is a rule loaded through sp.
type Production struct {
	Name     string
	Body     string
	Location document.Location
	Node     tcl.NodeID
}

// FileAnalysis holds the facts collected while one file was evaluated. It
// is never modified after the run that built it completes.
type FileAnalysis struct {
	doc         *document.Document
	calls       map[tcl.NodeID]*ProcedureCall
	retrievals  map[tcl.NodeID]*VariableRetrieval
	procs       []*ProcedureDefinition
	vars        []*VariableDefinition
	sourced     []string
	productions map[tcl.NodeID][]*Production
	diags       []document.Diagnostic
}

func newFileAnalysis(doc *document.Document) *FileAnalysis {
	return &FileAnalysis{
		doc:         doc,
		calls:       make(map[tcl.NodeID]*ProcedureCall),
		retrievals:  make(map[tcl.NodeID]*VariableRetrieval),
		productions: make(map[tcl.NodeID][]*Production),
		diags:       slices.Clone(doc.Diagnostics()),
	}
}

// URI returns the identity of the analysed file.
func (f *FileAnalysis) URI() string { return f.doc.URI() }

// Document returns the snapshot that was analysed. Node IDs stored in the
// analysis refer to its tree.
func (f *FileAnalysis) Document() *document.Document { return f.doc }

// ProcedureCall returns the call whose head word is node.
func (f *FileAnalysis) ProcedureCall(node tcl.NodeID) (*ProcedureCall, bool) {
	c, ok := f.calls[node]
	return c, ok
}

// VariableRetrieval returns the retrieval at node, which may be the
// Variable node or its VariableName child.
func (f *FileAnalysis) VariableRetrieval(node tcl.NodeID) (*VariableRetrieval, bool) {
	tree := f.doc.Tree()
	if node != tcl.NoNode && tree.Kind(node) == tcl.KindVariableName {
		node = tree.Parent(node)
	}
	r, ok := f.retrievals[node]
	return r, ok
}

// ProcedureCalls returns every call in the file ordered by position.
func (f *FileAnalysis) ProcedureCalls() []*ProcedureCall {
	return sortedByNode(f.calls, f.doc.Tree())
}

// VariableRetrievals returns every retrieval in the file ordered by position.
func (f *FileAnalysis) VariableRetrievals() []*VariableRetrieval {
	return sortedByNode(f.retrievals, f.doc.Tree())
}

func sortedByNode[T any](m map[tcl.NodeID]T, tree *tcl.Tree) []T {
	ids := slices.Collect(maps.Keys(m))
	sort.Slice(ids, func(i, j int) bool { return tree.Node(ids[i]).Start < tree.Node(ids[j]).Start })
	out := make([]T, len(ids))
	for i, id := range ids {
		out[i] = m[id]
	}
	return out
}

// ProcedureDefinitions returns the procedures defined while evaluating the
// file, in evaluation order.
func (f *FileAnalysis) ProcedureDefinitions() []*ProcedureDefinition { return slices.Clone(f.procs) }

// VariableDefinitions returns the variables defined while evaluating the
// file, in evaluation order.
func (f *FileAnalysis) VariableDefinitions() []*VariableDefinition { return slices.Clone(f.vars) }

// FilesSourced returns the URIs this file sourced, in order.
func (f *FileAnalysis) FilesSourced() []string { return slices.Clone(f.sourced) }

// Productions returns every production loaded by the file ordered by the
// command that produced it.
func (f *FileAnalysis) Productions() []*Production {
	var out []*Production
	for _, ps := range sortedByNode(f.productions, f.doc.Tree()) {
		out = append(out, ps...)
	}
	return out
}

// ProductionsAt returns the productions attributed to a top-level command.
func (f *FileAnalysis) ProductionsAt(node tcl.NodeID) []*Production {
	return slices.Clone(f.productions[node])
}

// Diagnostics returns parse and evaluation diagnostics for the file.
func (f *FileAnalysis) Diagnostics() []document.Diagnostic { return slices.Clone(f.diags) }

// ProjectAnalysis is the result of one run from an entry point. It is never
// modified after Analyze returns, so it can be shared between goroutines.
type ProjectAnalysis struct {
	runID      uuid.UUID
	entryPoint string
	started    time.Time
	elapsed    time.Duration

	sourced    []string
	files      map[string]*FileAnalysis
	procs      map[string]*ProcedureDefinition
	calls      map[*ProcedureDefinition][]*ProcedureCall
	vars       map[string]*VariableDefinition
	retrievals map[*VariableDefinition][]*VariableRetrieval
}

// RunID identifies the run that produced the analysis.
func (p *ProjectAnalysis) RunID() uuid.UUID { return p.runID }

// EntryPoint returns the URI the run started from.
func (p *ProjectAnalysis) EntryPoint() string { return p.entryPoint }

// Started returns when the run began.
func (p *ProjectAnalysis) Started() time.Time { return p.started }

// Elapsed returns how long the run took.
func (p *ProjectAnalysis) Elapsed() time.Duration { return p.elapsed }

// File returns the analysis of a file reached from the entry point.
func (p *ProjectAnalysis) File(uri string) (*FileAnalysis, bool) {
	f, ok := p.files[uri]
	return f, ok
}

// Files returns the URIs of every analysed file, sorted.
func (p *ProjectAnalysis) Files() []string {
	uris := slices.Collect(maps.Keys(p.files))
	sort.Strings(uris)
	return uris
}

// SourcedURIs returns every URI the run attempted to source, including those
// that could not be read, in first-attempt order. The entry point is first.
func (p *ProjectAnalysis) SourcedURIs() []string { return slices.Clone(p.sourced) }

// Contains reports whether uri was part of this run's file set.
func (p *ProjectAnalysis) Contains(uri string) bool {
	if _, ok := p.files[uri]; ok {
		return true
	}
	return slices.Contains(p.sourced, uri)
}

// Procedure returns the latest definition of name.
func (p *ProjectAnalysis) Procedure(name string) (*ProcedureDefinition, bool) {
	d, ok := p.procs[name]
	return d, ok
}

// Procedures returns the latest definition of every procedure, by name.
func (p *ProjectAnalysis) Procedures() []*ProcedureDefinition {
	return sortedByName(p.procs)
}

// Calls returns the call sites that resolved to d, in evaluation order.
func (p *ProjectAnalysis) Calls(d *ProcedureDefinition) []*ProcedureCall {
	return slices.Clone(p.calls[d])
}

// Variable returns the latest definition of name.
func (p *ProjectAnalysis) Variable(name string) (*VariableDefinition, bool) {
	d, ok := p.vars[name]
	return d, ok
}

// Variables returns the latest definition of every variable, by name.
func (p *ProjectAnalysis) Variables() []*VariableDefinition {
	return sortedByName(p.vars)
}

// Retrievals returns the read sites that resolved to d, in evaluation order.
func (p *ProjectAnalysis) Retrievals(d *VariableDefinition) []*VariableRetrieval {
	return slices.Clone(p.retrievals[d])
}

// Diagnostics returns the diagnostics of every analysed file keyed by URI.
func (p *ProjectAnalysis) Diagnostics() map[string][]document.Diagnostic {
	out := make(map[string][]document.Diagnostic, len(p.files))
	for uri, f := range p.files {
		out[uri] = f.Diagnostics()
	}
	return out
}

func sortedByName[T any](m map[string]T) []T {
	names := slices.Collect(maps.Keys(m))
	sort.Strings(names)
	out := make([]T, len(names))
	for i, n := range names {
		out[i] = m[n]
	}
	return out
}
