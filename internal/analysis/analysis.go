// Package analysis builds the project model of a Soar agent by evaluating
// its sources from an entry point. The macro layer is run in a fresh
// runtime session with recording versions of source, pushd, popd, sp, proc
// and set installed, so that definitions, call sites, variable reads and
// productions are observed in evaluation order.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jward/soarls/internal/document"
	"github.com/jward/soarls/internal/runtime"
	"github.com/jward/soarls/internal/tcl"
)

// Diagnostic codes produced by the engine.
const (
	CodeEvaluationError     = "evaluation-error"
	CodeSourceNotFound      = "source-not-found"
	CodeInternalError       = "internal-error"
	CodeUnknownRHSFunction  = "unknown-rhs-function"
	CodeDuplicateProduction = "duplicate-production"
)

// ErrSourceNotFound is matched by every SourceNotFoundError.
var ErrSourceNotFound = errors.New("source not found")

// SourceNotFoundError reports a sourced path that could not be read.
type SourceNotFoundError struct {
	Path string
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("couldn't read file %q: no such file or directory", e.Path)
}

// Is makes errors.Is(err, ErrSourceNotFound) hold.
func (e *SourceNotFoundError) Is(target error) bool { return target == ErrSourceNotFound }

// Documents supplies document snapshots. *document.Store satisfies it.
type Documents interface {
	Get(uri string) (*document.Document, bool)
}

// Option configures a run.
type Option func(*engine)

// WithLogger sets the run logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *engine) { e.logger = l }
}

// WithRHSFunctions whitelists extra right-hand-side function names.
func WithRHSFunctions(names ...string) Option {
	return func(e *engine) {
		for _, n := range names {
			e.rhs[n] = true
		}
	}
}

// WithLimits bounds the evaluator per top-level command.
func WithLimits(maxSteps, maxDepth int) Option {
	return func(e *engine) {
		e.interpOpts = append(e.interpOpts, runtime.WithMaxSteps(maxSteps), runtime.WithMaxDepth(maxDepth))
	}
}

type engine struct {
	docs       Documents
	in         *runtime.Interp
	base       map[string]runtime.Command
	interpOpts []runtime.Option
	logger     *slog.Logger
	rhs        map[string]bool

	dirs    []string
	active  []string
	sourced []string

	files       map[string]*FileAnalysis
	procs       map[string]*ProcedureDefinition
	calls       map[*ProcedureDefinition][]*ProcedureCall
	vars        map[string]*VariableDefinition
	retrievals  map[*VariableDefinition][]*VariableRetrieval
	productions map[string]string
}

// Analyze evaluates the project rooted at entryURI and returns its model.
// Failures are reported as diagnostics on the files that caused them, so a
// model is always returned.
func Analyze(ctx context.Context, docs Documents, entryURI string, opts ...Option) *ProjectAnalysis {
	e := &engine{
		docs:        docs,
		logger:      slog.New(slog.DiscardHandler),
		rhs:         make(map[string]bool),
		files:       make(map[string]*FileAnalysis),
		procs:       make(map[string]*ProcedureDefinition),
		calls:       make(map[*ProcedureDefinition][]*ProcedureCall),
		vars:        make(map[string]*VariableDefinition),
		retrievals:  make(map[*VariableDefinition][]*VariableRetrieval),
		productions: make(map[string]string),
	}
	for _, n := range BuiltinRHSFunctions {
		e.rhs[n] = true
	}
	for _, opt := range opts {
		opt(e)
	}
	e.in = runtime.New(append(e.interpOpts, runtime.WithLogger(e.logger))...)
	e.base = make(map[string]runtime.Command)
	for _, name := range []string{"sp", "proc", "set"} {
		e.base[name], _ = e.in.Lookup(name)
	}

	p := &ProjectAnalysis{
		runID:      uuid.New(),
		entryPoint: entryURI,
		started:    time.Now(),
	}
	logger := e.logger.With(slog.String("run", p.runID.String()), slog.String("entry", entryURI))

	dir := ""
	if path, err := document.PathFromURI(entryURI); err == nil {
		dir = filepath.Dir(path)
	} else {
		logger.Warn("entry point is not a file", slog.String("error", err.Error()))
	}
	e.dirs = []string{dir}

	e.noteSourced(entryURI)
	if err := e.analyseFile(ctx, entryURI); err != nil {
		logger.Warn("entry point not analysed", slog.String("error", err.Error()))
	}

	p.elapsed = time.Since(p.started)
	p.sourced = e.sourced
	p.files = e.files
	p.procs = e.procs
	p.calls = e.calls
	p.vars = e.vars
	p.retrievals = e.retrievals
	logger.Debug("analysis complete",
		slog.Int("files", len(p.files)),
		slog.Int("procedures", len(p.procs)),
		slog.Int("variables", len(p.vars)),
		slog.Duration("elapsed", p.elapsed))
	return p
}

func (e *engine) noteSourced(uri string) {
	if !slices.Contains(e.sourced, uri) {
		e.sourced = append(e.sourced, uri)
	}
}

// visit is the per-file state the recording commands need.
type visit struct {
	fa      *FileAnalysis
	tree    *tcl.Tree
	current tcl.NodeID
}

func (v *visit) location(id tcl.NodeID) document.Location {
	return v.fa.doc.NodeLocation(id)
}

func (v *visit) diagnose(id tcl.NodeID, sev document.Severity, code, msg string) {
	v.fa.diags = append(v.fa.diags, document.Diagnostic{
		Range:    v.fa.doc.NodeRange(id),
		Severity: sev,
		Code:     code,
		Source:   document.DiagnosticSource,
		Message:  msg,
	})
}

// comment returns the comment attached to the current command: the
// preceding sibling, when it is a comment ending on the line the command
// starts on.
func (v *visit) comment() *Comment {
	prev := v.tree.PrevSibling(v.current)
	if prev == tcl.NoNode || v.tree.Kind(prev) != tcl.KindComment {
		return nil
	}
	doc := v.fa.doc
	if doc.Position(v.tree.Node(prev).End).Line != doc.Position(v.tree.Node(v.current).Start).Line {
		return nil
	}
	return &Comment{Node: prev, Text: commentText(v.tree.Source(prev))}
}

// commentText strips the comment markers from a comment block.
func commentText(raw string) string {
	lines := strings.Split(strings.TrimRight(raw, "\n"), "\n")
	for i, l := range lines {
		l = strings.TrimLeft(l, " \t")
		l = strings.TrimLeft(l, "#")
		lines[i] = strings.TrimPrefix(l, " ")
	}
	return strings.Join(lines, "\n")
}

// nameNode returns the second word of the current command when the command
// is a direct call of cmd defining name.
func (v *visit) nameNode(cmd, name string) tcl.NodeID {
	head := v.tree.Head(v.current)
	if head == tcl.NoNode || v.tree.Source(head) != cmd {
		return tcl.NoNode
	}
	words := v.tree.Words(v.current)
	if len(words) < 2 || v.tree.InternalText(words[1]) != name {
		return tcl.NoNode
	}
	return words[1]
}

func (e *engine) analyseFile(ctx context.Context, uri string) error {
	doc, ok := e.docs.Get(uri)
	if !ok {
		path, perr := document.PathFromURI(uri)
		if perr != nil {
			path = uri
		}
		return &SourceNotFoundError{Path: path}
	}

	if prev, ok := e.files[uri]; ok {
		e.forget(prev)
	}
	v := &visit{fa: newFileAnalysis(doc), tree: doc.Tree(), current: tcl.NoNode}
	e.files[uri] = v.fa
	e.active = append(e.active, uri)
	defer func() { e.active = e.active[:len(e.active)-1] }()

	restore := e.install(v)
	defer restore()

	defer func() {
		if r := recover(); r != nil {
			at := v.current
			if at == tcl.NoNode {
				at = v.tree.Root()
			}
			e.logger.Error("analysis panic", slog.String("uri", uri), slog.Any("panic", r))
			v.diagnose(at, document.SeverityError, CodeInternalError, fmt.Sprintf("internal error: %v", r))
		}
	}()

	for _, id := range v.tree.Children(v.tree.Root()) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if v.tree.Kind(id) != tcl.KindCommand {
			continue
		}
		v.current = id
		var evalErr error
		if v.tree.Node(id).Err == nil {
			e.in.ResetBudget()
			_, evalErr = e.in.EvalCommand(ctx, v.tree, id)
		}
		e.recordUses(v, id)

		var ret *runtime.ReturnError
		switch {
		case evalErr == nil:
		case errors.As(evalErr, &ret):
			return nil
		case errors.Is(evalErr, ErrSourceNotFound):
			v.diagnose(id, document.SeverityError, CodeSourceNotFound, evalErr.Error())
		default:
			v.diagnose(id, document.SeverityError, CodeEvaluationError, evalErr.Error())
		}
	}
	return nil
}

// forget removes the uses recorded by an earlier visit of the same file
// from the reverse indexes.
func (e *engine) forget(prev *FileAnalysis) {
	for _, c := range prev.calls {
		if c.Definition != nil {
			e.calls[c.Definition] = slices.DeleteFunc(e.calls[c.Definition], func(x *ProcedureCall) bool { return x == c })
		}
	}
	for _, r := range prev.retrievals {
		if r.Definition != nil {
			e.retrievals[r.Definition] = slices.DeleteFunc(e.retrievals[r.Definition], func(x *VariableRetrieval) bool { return x == r })
		}
	}
}

// recordUses records calls and variable reads inside a top-level command
// after it has been evaluated.
func (e *engine) recordUses(v *visit, cmd tcl.NodeID) {
	v.tree.Walk(cmd, func(id tcl.NodeID) bool {
		switch v.tree.Kind(id) {
		case tcl.KindCommand, tcl.KindCommandWord:
			head := v.tree.Head(id)
			if head == tcl.NoNode {
				break
			}
			call := &ProcedureCall{Location: v.location(head), CallSite: v.location(id), Node: head}
			if def, ok := e.procs[v.tree.Source(head)]; ok {
				call.Definition = def
				e.calls[def] = append(e.calls[def], call)
			}
			v.fa.calls[head] = call
		case tcl.KindVariable:
			r := &VariableRetrieval{Location: v.location(id), Node: id}
			if def, ok := e.vars[normalizeVar(v.tree.InternalText(id))]; ok {
				r.Definition = def
				e.retrievals[def] = append(e.retrievals[def], r)
			}
			v.fa.retrievals[id] = r
		}
		return true
	})
}

func normalizeVar(name string) string {
	for len(name) > 2 && name[:2] == "::" {
		name = name[2:]
	}
	return name
}

// install registers the recording commands for one file and returns the
// function restoring the previous bindings. sp, proc and set delegate to the
// session's original commands, never to an enclosing file's recorders.
func (e *engine) install(v *visit) func() {
	type saved struct {
		name    string
		prev    runtime.Command
		existed bool
	}
	cmds := map[string]runtime.Command{
		"source": e.sourceCmd(v),
		"pushd":  e.pushdCmd,
		"popd":   e.popdCmd,
		"sp":     e.spCmd(v, e.base["sp"]),
		"proc":   e.procCmd(v, e.base["proc"]),
		"set":    e.setCmd(v, e.base["set"]),
	}
	restore := make([]saved, 0, len(cmds))
	for name, cmd := range cmds {
		prev, existed := e.in.Register(name, cmd)
		restore = append(restore, saved{name, prev, existed})
	}
	return func() {
		for _, s := range restore {
			e.in.Restore(s.name, s.prev, s.existed)
		}
	}
}

func (e *engine) resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(e.dirs[len(e.dirs)-1], path)
}

func (e *engine) sourceCmd(v *visit) runtime.Command {
	return func(ctx context.Context, in *runtime.Interp, args []string) (string, error) {
		if len(args) != 2 {
			return "", fmt.Errorf("wrong # args: should be %q", "source fileName")
		}
		path := e.resolve(args[1])
		uri := document.FileURI(path)
		v.fa.sourced = append(v.fa.sourced, uri)
		e.noteSourced(uri)

		if slices.Contains(e.active, uri) {
			return "", fmt.Errorf("recursive source of %s", path)
		}

		e.dirs = append(e.dirs, filepath.Dir(path))
		defer func() { e.dirs = e.dirs[:len(e.dirs)-1] }()

		e.logger.Debug("source", slog.String("from", v.fa.URI()), slog.String("uri", uri))
		return "", e.analyseFile(ctx, uri)
	}
}

func (e *engine) pushdCmd(_ context.Context, _ *runtime.Interp, args []string) (string, error) {
	if len(args) != 2 {
		return "", fmt.Errorf("wrong # args: should be %q", "pushd dirName")
	}
	e.dirs = append(e.dirs, e.resolve(args[1]))
	return "", nil
}

func (e *engine) popdCmd(_ context.Context, _ *runtime.Interp, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("wrong # args: should be %q", "popd")
	}
	if len(e.dirs) < 2 {
		return "", errors.New("directory stack is empty")
	}
	e.dirs = e.dirs[:len(e.dirs)-1]
	return "", nil
}

func (e *engine) spCmd(v *visit, prev runtime.Command) runtime.Command {
	return func(ctx context.Context, in *runtime.Interp, args []string) (string, error) {
		if len(args) == 2 {
			name, body := splitProduction(args[1])
			p := &Production{Name: name, Body: body, Location: v.location(v.current), Node: v.current}
			v.fa.productions[v.current] = append(v.fa.productions[v.current], p)
			e.checkProduction(v, p)
		}
		return prev(ctx, in, args)
	}
}

func (e *engine) checkProduction(v *visit, p *Production) {
	seen := make(map[string]bool)
	for _, fn := range rhsFunctions(p.Body) {
		if e.rhs[fn] || seen[fn] {
			continue
		}
		seen[fn] = true
		v.diagnose(v.current, document.SeverityWarning, CodeUnknownRHSFunction,
			fmt.Sprintf("No RHS function named '%s'", fn))
	}

	key := canonicalBody(p.Body)
	if original, ok := e.productions[key]; ok && original != p.Name {
		v.diagnose(v.current, document.SeverityWarning, CodeDuplicateProduction,
			fmt.Sprintf("Ignoring %s because it is a duplicate of %s", p.Name, original))
		return
	}
	e.productions[key] = p.Name
}

func (e *engine) procCmd(v *visit, prev runtime.Command) runtime.Command {
	return func(ctx context.Context, in *runtime.Interp, args []string) (string, error) {
		if len(args) != 4 {
			return prev(ctx, in, args)
		}
		params, err := runtime.ParseParams(args[2])
		if err != nil {
			return "", err
		}
		res, err := prev(ctx, in, args)
		if err != nil {
			return "", err
		}
		def := &ProcedureDefinition{
			Name:      args[1],
			Location:  v.location(v.current),
			Arguments: params,
			Node:      v.current,
			NameNode:  v.nameNode("proc", args[1]),
			Comment:   v.comment(),
		}
		v.fa.procs = append(v.fa.procs, def)
		e.procs[def.Name] = def
		e.calls[def] = []*ProcedureCall{}
		return res, nil
	}
}

func (e *engine) setCmd(v *visit, prev runtime.Command) runtime.Command {
	return func(ctx context.Context, in *runtime.Interp, args []string) (string, error) {
		res, err := prev(ctx, in, args)
		if err != nil || len(args) != 3 || !in.IsGlobal(args[1]) {
			return res, err
		}
		def := &VariableDefinition{
			Name:     normalizeVar(args[1]),
			Location: v.location(v.current),
			Value:    res,
			Node:     v.current,
			NameNode: v.nameNode("set", args[1]),
			Comment:  v.comment(),
		}
		v.fa.vars = append(v.fa.vars, def)
		e.vars[def.Name] = def
		e.retrievals[def] = []*VariableRetrieval{}
		return res, nil
	}
}
