// Package runtime is the macro evaluator session used by the analysis
// engine. It implements the subset of Tcl that Soar agent sources rely on
// (substitution, variables, procedures, control flow, lists, strings) and
// delegates arithmetic in expr to an embedded Risor VM.
//
// Every Interp owns its own command table, so recording overrides installed
// by one analysis run never leak into another.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/jward/soarls/internal/tcl"
)

// Command implements one macro command. args[0] is the command name.
type Command func(ctx context.Context, in *Interp, args []string) (string, error)

// Default evaluation limits.
const (
	DefaultMaxSteps = 200_000
	DefaultMaxDepth = 200
)

// Interp is a single evaluator session. It is not safe for concurrent use.
type Interp struct {
	commands map[string]Command
	procs    map[string]*procedure
	frames   []*frame
	scripts  map[string]*tcl.Tree

	maxSteps int
	maxDepth int
	steps    int
	depth    int

	out    io.Writer
	logger *slog.Logger
}

// Option configures an Interp.
type Option func(*Interp)

// WithOutput sets where puts writes. The default discards output.
func WithOutput(w io.Writer) Option {
	return func(in *Interp) { in.out = w }
}

// WithMaxSteps bounds the number of commands a budget window may run.
func WithMaxSteps(n int) Option {
	return func(in *Interp) { in.maxSteps = n }
}

// WithMaxDepth bounds nesting of procedure calls and nested scripts.
func WithMaxDepth(n int) Option {
	return func(in *Interp) { in.maxDepth = n }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(in *Interp) { in.logger = l }
}

// New creates a session with the built-in and Soar agent commands installed.
func New(opts ...Option) *Interp {
	in := &Interp{
		commands: make(map[string]Command),
		procs:    make(map[string]*procedure),
		frames:   []*frame{newFrame()},
		scripts:  make(map[string]*tcl.Tree),
		maxSteps: DefaultMaxSteps,
		maxDepth: DefaultMaxDepth,
		out:      io.Discard,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(in)
	}
	registerBuiltins(in)
	registerSoarCommands(in)
	return in
}

// Register binds name to cmd and returns the previous binding, if any.
func (in *Interp) Register(name string, cmd Command) (prev Command, existed bool) {
	prev, existed = in.commands[name]
	in.commands[name] = cmd
	return prev, existed
}

// Restore undoes a Register call using the values it returned.
func (in *Interp) Restore(name string, prev Command, existed bool) {
	if existed {
		in.commands[name] = prev
		return
	}
	delete(in.commands, name)
}

// Lookup returns the command bound to name.
func (in *Interp) Lookup(name string) (Command, bool) {
	cmd, ok := in.commands[name]
	return cmd, ok
}

// Commands returns the names of all bound commands, sorted.
func (in *Interp) Commands() []string {
	names := make([]string, 0, len(in.commands))
	for name := range in.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResetBudget starts a new step budget window. The analysis engine calls it
// before every top-level command.
func (in *Interp) ResetBudget() { in.steps = 0 }

// Level returns the procedure call depth; 0 is the global frame.
func (in *Interp) Level() int { return len(in.frames) - 1 }

// Eval parses and evaluates script, returning the result of its last command.
func (in *Interp) Eval(ctx context.Context, script string) (string, error) {
	tree := in.parse(script)
	if errs := tree.Errors(); len(errs) > 0 {
		return "", fmt.Errorf("%s", strings.ToLower(errs[0].Message))
	}
	return in.evalTree(ctx, tree)
}

func (in *Interp) parse(script string) *tcl.Tree {
	if tree, ok := in.scripts[script]; ok {
		return tree
	}
	tree := tcl.Parse(script)
	if len(in.scripts) >= 512 {
		clear(in.scripts)
	}
	in.scripts[script] = tree
	return tree
}

func (in *Interp) evalTree(ctx context.Context, tree *tcl.Tree) (string, error) {
	in.depth++
	defer func() { in.depth-- }()
	if in.depth > in.maxDepth {
		return "", ErrDepthLimit
	}

	var result string
	for _, id := range tree.Children(tree.Root()) {
		if tree.Kind(id) != tcl.KindCommand {
			continue
		}
		res, err := in.EvalCommand(ctx, tree, id)
		if err != nil {
			return "", err
		}
		result = res
	}
	return result, nil
}

// EvalCommand substitutes the words of a Command node and invokes it.
func (in *Interp) EvalCommand(ctx context.Context, tree *tcl.Tree, id tcl.NodeID) (string, error) {
	words := tree.Words(id)
	args := make([]string, 0, len(words))
	for _, w := range words {
		v, err := in.word(ctx, tree, w)
		if err != nil {
			return "", err
		}
		args = append(args, v)
	}
	return in.Invoke(ctx, args...)
}

func (in *Interp) word(ctx context.Context, tree *tcl.Tree, id tcl.NodeID) (string, error) {
	switch tree.Kind(id) {
	case tcl.KindBracedWord:
		return collapseContinuations(tree.InternalText(id)), nil
	case tcl.KindQuotedWord:
		return in.Subst(ctx, tree.InternalText(id))
	case tcl.KindCommandWord:
		return in.Eval(ctx, tree.InternalText(id))
	}
	return in.Subst(ctx, tree.Source(id))
}

// Invoke runs the command args[0] with already substituted arguments.
func (in *Interp) Invoke(ctx context.Context, args ...string) (string, error) {
	if len(args) == 0 {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := in.step(); err != nil {
		return "", err
	}
	cmd, ok := in.commands[args[0]]
	if !ok {
		return "", fmt.Errorf("invalid command name %q", args[0])
	}
	return cmd(ctx, in, args)
}

func (in *Interp) step() error {
	in.steps++
	if in.maxSteps > 0 && in.steps > in.maxSteps {
		return ErrStepLimit
	}
	return nil
}

// frame holds the variables of one procedure activation.
type frame struct {
	vars map[string]*variable
}

type variable struct {
	value string
	set   bool
}

func newFrame() *frame { return &frame{vars: make(map[string]*variable)} }

func (in *Interp) current() *frame { return in.frames[len(in.frames)-1] }

func (in *Interp) global() *frame { return in.frames[0] }

// Var reads a variable visible from the current frame.
func (in *Interp) Var(name string) (string, bool) {
	f := in.current()
	if strings.HasPrefix(name, "::") {
		f, name = in.global(), strings.TrimPrefix(name, "::")
	}
	v, ok := f.vars[name]
	if !ok || !v.set {
		return "", false
	}
	return v.value, true
}

// SetVar assigns a variable in the current frame and returns the value.
func (in *Interp) SetVar(name, value string) string {
	f := in.current()
	if strings.HasPrefix(name, "::") {
		f, name = in.global(), strings.TrimPrefix(name, "::")
	}
	v, ok := f.vars[name]
	if !ok {
		v = &variable{}
		f.vars[name] = v
	}
	v.value, v.set = value, true
	return value
}

// UnsetVar removes a variable from the current frame.
func (in *Interp) UnsetVar(name string) bool {
	f := in.current()
	if strings.HasPrefix(name, "::") {
		f, name = in.global(), strings.TrimPrefix(name, "::")
	}
	v, ok := f.vars[name]
	if !ok || !v.set {
		return false
	}
	delete(f.vars, name)
	return true
}

// IsGlobal reports whether an assignment to name from the current frame
// lands in the global frame.
func (in *Interp) IsGlobal(name string) bool {
	if in.Level() == 0 || strings.HasPrefix(name, "::") {
		return true
	}
	v, ok := in.current().vars[name]
	if !ok {
		return false
	}
	g, ok := in.global().vars[name]
	return ok && g == v
}

// linkGlobal makes name in the current frame refer to the global variable.
func (in *Interp) linkGlobal(name string) {
	if in.Level() == 0 {
		return
	}
	g, ok := in.global().vars[name]
	if !ok {
		g = &variable{}
		in.global().vars[name] = g
	}
	in.current().vars[name] = g
}

// Globals returns the names of the set global variables, sorted.
func (in *Interp) Globals() []string {
	var names []string
	for name, v := range in.global().vars {
		if v.set {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (in *Interp) pushFrame(f *frame) error {
	if len(in.frames) > in.maxDepth {
		return ErrDepthLimit
	}
	in.frames = append(in.frames, f)
	return nil
}

func (in *Interp) popFrame() { in.frames = in.frames[:len(in.frames)-1] }

// Control flow and limit errors.
var (
	ErrBreak      = errors.New(`invoked "break" outside of a loop`)
	ErrContinue   = errors.New(`invoked "continue" outside of a loop`)
	ErrStepLimit  = errors.New("evaluation step limit exceeded")
	ErrDepthLimit = errors.New("too many nested evaluations (infinite loop?)")
)

// ReturnError carries the value of a return command up to the enclosing
// procedure.
type ReturnError struct {
	Value string
}

func (e *ReturnError) Error() string { return `invoked "return" outside of a proc` }

// ScriptError is raised by the error command.
type ScriptError struct {
	Message string
}

func (e *ScriptError) Error() string { return e.Message }

func wrongArgs(usage string) error {
	return fmt.Errorf("wrong # args: should be %q", usage)
}

// collapseContinuations replaces backslash-newline and the whitespace after
// it with a single space, which Tcl does even inside braces.
func collapseContinuations(s string) string {
	if !strings.Contains(s, "\\\n") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && s[i+1] == '\n' {
			i += 2
			for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
				i++
			}
			i--
			b.WriteByte(' ')
			continue
		}
		if s[i] == '\\' && i+1 < len(s) {
			b.WriteByte(s[i])
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
