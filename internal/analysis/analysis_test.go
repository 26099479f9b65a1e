package analysis

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/soarls/internal/document"
)

// writeProject creates the given files under a temp dir and returns it.
func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func uriOf(dir, name string) string {
	return document.FileURI(filepath.Join(dir, filepath.FromSlash(name)))
}

func analyze(t *testing.T, dir, entry string, opts ...Option) *ProjectAnalysis {
	t.Helper()
	p := Analyze(context.Background(), document.NewStore(), uriOf(dir, entry), opts...)
	require.NotNil(t, p)
	return p
}

func file(t *testing.T, p *ProjectAnalysis, dir, name string) *FileAnalysis {
	t.Helper()
	f, ok := p.File(uriOf(dir, name))
	require.True(t, ok, "no analysis for %s", name)
	return f
}

func codes(diags []document.Diagnostic) []string {
	out := make([]string, len(diags))
	for i, d := range diags {
		out[i] = d.Code
	}
	return out
}

func TestAnalyze_ProcedureScenario(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, map[string]string{"load.soar": "proc foo {a b} {return $a}\nfoo 1 2\n"})
	p := analyze(t, dir, "load.soar")
	f := file(t, p, dir, "load.soar")

	defs := f.ProcedureDefinitions()
	require.Len(t, defs, 1)
	def := defs[0]
	assert.Equal(t, "foo", def.Name)
	assert.Len(t, def.Arguments, 2)
	assert.Equal(t, "a", def.Arguments[0].Name)
	assert.Equal(t, "b", def.Arguments[1].Name)
	assert.False(t, def.Arguments[0].HasDefault)
	assert.False(t, def.Arguments[1].HasDefault)
	assert.Equal(t, 2, def.Required())

	latest, ok := p.Procedure("foo")
	require.True(t, ok)
	assert.Same(t, def, latest)

	calls := p.Calls(def)
	require.Len(t, calls, 1)
	assert.Equal(t, 1, calls[0].Location.Range.Start.Line)
	assert.Same(t, def, calls[0].Definition)
	assert.Equal(t, "foo", f.Document().Tree().Source(calls[0].Node))

	assert.Empty(t, f.Diagnostics())
}

func TestAnalyze_ProductionScenario(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, map[string]string{"load.soar": "sp {my-rule\n(state <s>)\n-->\n(<s> ^x 1)\n}\n"})
	p := analyze(t, dir, "load.soar")
	f := file(t, p, dir, "load.soar")

	prods := f.Productions()
	require.Len(t, prods, 1)
	assert.Equal(t, "my-rule", prods[0].Name)
	assert.Equal(t, "(state <s>)\n-->\n(<s> ^x 1)", prods[0].Body)
	assert.Equal(t, 0, prods[0].Location.Range.Start.Line)
	assert.Len(t, f.ProductionsAt(prods[0].Node), 1)
	assert.Empty(t, f.Diagnostics())
}

func TestAnalyze_RedefinitionFollowsEvaluationOrder(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, map[string]string{
		"load.soar": "source a.soar\nsource b.soar\n",
		"a.soar":    "set X 1\n",
		"b.soar":    "set X 2\n",
	})
	p := analyze(t, dir, "load.soar")

	x, ok := p.Variable("X")
	require.True(t, ok)
	assert.Equal(t, "2", x.Value)
	assert.Equal(t, uriOf(dir, "b.soar"), x.Location.URI)

	assert.Equal(t, []string{uriOf(dir, "a.soar"), uriOf(dir, "b.soar")}, file(t, p, dir, "load.soar").FilesSourced())
	assert.Len(t, p.Files(), 3)
	assert.Equal(t, uriOf(dir, "load.soar"), p.SourcedURIs()[0])
}

func TestAnalyze_DefinitionsInsideProcedures(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, map[string]string{
		"load.soar": "proc f {} { set ::X from-proc; set local 1 }\nset X top\nf\n",
	})
	p := analyze(t, dir, "load.soar")

	x, ok := p.Variable("X")
	require.True(t, ok)
	assert.Equal(t, "from-proc", x.Value)
	assert.Equal(t, 2, x.Location.Range.Start.Line)

	_, ok = p.Variable("local")
	assert.False(t, ok, "procedure locals are not project variables")
}

func TestAnalyze_CallAndRetrievalSymmetry(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, map[string]string{
		"load.soar":  "proc a {} {}\nset v 1\nsource other.soar\na\nputs $v\nputs [a]\n",
		"other.soar": "proc b {x} {}\nb $v\na\nset v 2\nputs $v$v\nunknown $nope\n",
	})
	p := analyze(t, dir, "load.soar")

	resolvedCalls := map[*ProcedureCall]int{}
	resolvedReads := map[*VariableRetrieval]int{}
	for _, uri := range p.Files() {
		f, _ := p.File(uri)
		for _, c := range f.ProcedureCalls() {
			if c.Definition != nil {
				resolvedCalls[c]++
			}
		}
		for _, r := range f.VariableRetrievals() {
			if r.Definition != nil {
				resolvedReads[r]++
			}
		}
	}

	total := 0
	for _, d := range p.Procedures() {
		for _, c := range p.Calls(d) {
			assert.Same(t, d, c.Definition)
			assert.Equal(t, 1, resolvedCalls[c])
			total++
		}
	}
	assert.Equal(t, len(resolvedCalls), total)

	total = 0
	for _, uri := range p.Files() {
		f, _ := p.File(uri)
		for _, d := range f.VariableDefinitions() {
			for _, r := range p.Retrievals(d) {
				assert.Same(t, d, r.Definition)
				assert.Equal(t, 1, resolvedReads[r])
				total++
			}
		}
	}
	assert.Equal(t, len(resolvedReads), total)

	a, _ := p.Procedure("a")
	assert.Len(t, p.Calls(a), 3)
	v, _ := p.Variable("v")
	assert.Len(t, p.Retrievals(v), 3, "reads after the redefinition resolve to it")

	other := file(t, p, dir, "other.soar")
	var unresolved int
	for _, r := range other.VariableRetrievals() {
		if r.Definition == nil {
			unresolved++
		}
	}
	assert.Equal(t, 1, unresolved)
}

func TestAnalyze_MissingSourceIsIsolated(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, map[string]string{"load.soar": "set a 1\nsource missing.soar\nset b 2\n"})
	p := analyze(t, dir, "load.soar")
	f := file(t, p, dir, "load.soar")

	diags := f.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, CodeSourceNotFound, diags[0].Code)
	assert.Equal(t, document.SeverityError, diags[0].Severity)
	assert.Equal(t, document.Range{Start: document.Position{Line: 1}, End: document.Position{Line: 1, Character: 19}}, diags[0].Range)
	assert.Contains(t, diags[0].Message, "missing.soar")

	_, ok := p.Variable("b")
	assert.True(t, ok)
	assert.Contains(t, p.SourcedURIs(), uriOf(dir, "missing.soar"))
	assert.True(t, p.Contains(uriOf(dir, "missing.soar")))
	_, ok = p.File(uriOf(dir, "missing.soar"))
	assert.False(t, ok)
}

func TestAnalyze_CaughtSourceHasNoDiagnostic(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, map[string]string{"load.soar": "catch {source missing.soar}\nset b 2\n"})
	p := analyze(t, dir, "load.soar")
	assert.Empty(t, file(t, p, dir, "load.soar").Diagnostics())
}

func TestAnalyze_DirectoryStack(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, map[string]string{
		"load.soar":               "pushd sub\nsource x.soar\npopd\nsource y.soar\n",
		"sub/x.soar":              "source deeper/z.soar\nset X 1\n",
		"sub/deeper/z.soar":       "source sibling.soar\n",
		"sub/deeper/sibling.soar": "set S 1\n",
		"y.soar":                  "set Y 1\n",
	})
	p := analyze(t, dir, "load.soar")
	for _, name := range []string{"load.soar", "sub/x.soar", "sub/deeper/z.soar", "sub/deeper/sibling.soar", "y.soar"} {
		f := file(t, p, dir, name)
		assert.Empty(t, f.Diagnostics(), name)
	}

	dir = writeProject(t, map[string]string{"load.soar": "popd\nset a 1\n"})
	p = analyze(t, dir, "load.soar")
	assert.Equal(t, []string{CodeEvaluationError}, codes(file(t, p, dir, "load.soar").Diagnostics()))
}

func TestAnalyze_CommentAssociation(t *testing.T) {
	t.Parallel()
	src := "# Adds things.\n# Second line.\nproc add {a b} {}\n\n# detached\n\nproc lone {} {}\n# var doc\nset V 1\n"
	dir := writeProject(t, map[string]string{"load.soar": src})
	p := analyze(t, dir, "load.soar")

	add, _ := p.Procedure("add")
	require.NotNil(t, add.Comment)
	assert.Equal(t, "Adds things.\nSecond line.", add.Comment.Text)

	lone, _ := p.Procedure("lone")
	assert.Nil(t, lone.Comment)

	v, _ := p.Variable("V")
	require.NotNil(t, v.Comment)
	assert.Equal(t, "var doc", v.Comment.Text)

	f := file(t, p, dir, "load.soar")
	assert.Equal(t, "add", f.Document().Tree().Source(add.NameNode))
}

func TestAnalyze_EvaluationErrorIsIsolated(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, map[string]string{"load.soar": "set a 1\nundefined-cmd x\nset b 2\n"})
	p := analyze(t, dir, "load.soar")

	diags := file(t, p, dir, "load.soar").Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, CodeEvaluationError, diags[0].Code)
	assert.Equal(t, 1, diags[0].Range.Start.Line)
	assert.Equal(t, `invalid command name "undefined-cmd"`, diags[0].Message)
	_, ok := p.Variable("b")
	assert.True(t, ok)
}

func TestAnalyze_ParseErrorsAndResync(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, map[string]string{"load.soar": "set x 99\nsp {test\nset p hello\n"})
	p := analyze(t, dir, "load.soar")

	f := file(t, p, dir, "load.soar")
	assert.Equal(t, []string{document.CodeParseError}, codes(f.Diagnostics()))
	assert.Empty(t, f.Productions())
	pv, ok := p.Variable("p")
	require.True(t, ok)
	assert.Equal(t, "hello", pv.Value)
}

func TestAnalyze_RecursiveSource(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, map[string]string{
		"a.soar": "source b.soar\n",
		"b.soar": "source a.soar\nset B 1\n",
	})
	p := analyze(t, dir, "a.soar")
	b := file(t, p, dir, "b.soar")
	diags := b.Diagnostics()
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "recursive source of")
	_, ok := p.Variable("B")
	assert.True(t, ok)
}

func TestAnalyze_SourcingTwiceKeepsIndexesSymmetric(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, map[string]string{
		"load.soar": "proc p {} {}\nsource u.soar\nsource u.soar\n",
		"u.soar":    "p\n",
	})
	p := analyze(t, dir, "load.soar")
	def, _ := p.Procedure("p")
	calls := p.Calls(def)
	require.Len(t, calls, 1)

	u := file(t, p, dir, "u.soar")
	got, ok := u.ProcedureCall(calls[0].Node)
	require.True(t, ok)
	assert.Same(t, calls[0], got)
}

func TestAnalyze_ReturnStopsFile(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, map[string]string{
		"load.soar":  "source early.soar\nset after 1\n",
		"early.soar": "set a 1\nreturn\nset b 2\n",
	})
	p := analyze(t, dir, "load.soar")
	_, ok := p.Variable("b")
	assert.False(t, ok)
	_, ok = p.Variable("after")
	assert.True(t, ok)
	assert.Empty(t, file(t, p, dir, "early.soar").Diagnostics())
}

func TestAnalyze_StepLimit(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, map[string]string{"load.soar": "while 1 {}\nset b 2\n"})
	p := analyze(t, dir, "load.soar", WithLimits(1000, 50))
	diags := file(t, p, dir, "load.soar").Diagnostics()
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "step limit")
	_, ok := p.Variable("b")
	assert.True(t, ok)
}

func TestAnalyze_UnknownRHSFunction(t *testing.T) {
	t.Parallel()
	src := "sp {p\n(state <s>)\n-->\n(<s> ^x (force-learn <s>))\n(write (crlf) |hi (there)|)\n}\n"
	dir := writeProject(t, map[string]string{"load.soar": src})

	p := analyze(t, dir, "load.soar")
	diags := file(t, p, dir, "load.soar").Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, CodeUnknownRHSFunction, diags[0].Code)
	assert.Equal(t, document.SeverityWarning, diags[0].Severity)
	assert.Equal(t, "No RHS function named 'force-learn'", diags[0].Message)
	assert.Equal(t, document.Range{End: document.Position{Line: 5, Character: 1}}, diags[0].Range)

	p = analyze(t, dir, "load.soar", WithRHSFunctions("force-learn"))
	assert.Empty(t, file(t, p, dir, "load.soar").Diagnostics())
}

func TestAnalyze_DuplicateProduction(t *testing.T) {
	t.Parallel()
	src := "sp {elaborate*original\n(state <s>)\n-->\n(<s> ^x 1)\n}\n" +
		"sp {elaborate*duplicate\n  (state <t>)\n-->\n  (<t> ^x 1)\n}\n"
	dir := writeProject(t, map[string]string{"load.soar": src})
	p := analyze(t, dir, "load.soar")

	diags := file(t, p, dir, "load.soar").Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, CodeDuplicateProduction, diags[0].Code)
	assert.Equal(t, "Ignoring elaborate*duplicate because it is a duplicate of elaborate*original", diags[0].Message)
	assert.Equal(t, 5, diags[0].Range.Start.Line)
}

type panickingDocs struct {
	*document.Store
	boom string
}

func (d panickingDocs) Get(uri string) (*document.Document, bool) {
	if uri == d.boom {
		panic("disk on fire")
	}
	return d.Store.Get(uri)
}

func TestAnalyze_InternalErrorKeepsPartialFile(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, map[string]string{
		"load.soar": "set a 1\nsource boom.soar\nset b 2\n",
		"boom.soar": "",
	})
	docs := panickingDocs{Store: document.NewStore(), boom: uriOf(dir, "boom.soar")}
	p := Analyze(context.Background(), docs, uriOf(dir, "load.soar"))

	f := file(t, p, dir, "load.soar")
	diags := f.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, CodeInternalError, diags[0].Code)
	assert.Equal(t, 1, diags[0].Range.Start.Line)
	assert.True(t, strings.Contains(diags[0].Message, "disk on fire"))

	_, ok := p.Variable("a")
	assert.True(t, ok)
}

func TestAnalyze_MissingEntryPoint(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := analyze(t, dir, "nope.soar")
	assert.Empty(t, p.Files())
	assert.Equal(t, []string{uriOf(dir, "nope.soar")}, p.SourcedURIs())
	assert.NotEqual(t, p.RunID().String(), "")
}

func TestAnalyze_CommandsDoNotLeakBetweenRuns(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, map[string]string{
		"a.soar": "proc only-in-a {} {}\n",
		"b.soar": "only-in-a\n",
	})
	analyze(t, dir, "a.soar")
	p := analyze(t, dir, "b.soar")
	assert.Equal(t, []string{CodeEvaluationError}, codes(file(t, p, dir, "b.soar").Diagnostics()))
}

func TestAnalyze_OpenDocumentSupersedesDisk(t *testing.T) {
	t.Parallel()
	dir := writeProject(t, map[string]string{"load.soar": "set X disk\n"})
	docs := document.NewStore()
	docs.Open(uriOf(dir, "load.soar"), "set X editor\n", 1)
	p := Analyze(context.Background(), docs, uriOf(dir, "load.soar"))
	x, _ := p.Variable("X")
	assert.Equal(t, "editor", x.Value)
}

func TestSplitProduction(t *testing.T) {
	t.Parallel()
	name, body := splitProduction("  a*b \n  (state <s>)\n-->\n  (<s> ^x 1)\n")
	assert.Equal(t, "a*b", name)
	assert.Equal(t, "(state <s>)\n-->\n  (<s> ^x 1)", body)

	name, body = splitProduction("lonely")
	assert.Equal(t, "lonely", name)
	assert.Equal(t, "", body)
}

func TestRHSFunctions(t *testing.T) {
	t.Parallel()
	body := "(state <s> ^f (bogus))\n-->\n(<s> ^a (+ 1 (my-fn 2)))\n(write |(not-a-fn)| (crlf))\n(<s> ^b <c> +)"
	assert.Equal(t, []string{"+", "my-fn", "write", "crlf"}, rhsFunctions(body))
	assert.Nil(t, rhsFunctions("(state <s>)"))
}

func TestCanonicalBody(t *testing.T) {
	t.Parallel()
	a := canonicalBody("(state <s> ^io <io>)\n-->\n(<io> ^x 1)")
	b := canonicalBody("( state <z>   ^io <i> )\n-->\n  (<i> ^x 1)")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, canonicalBody("(state <s> ^io <io>)\n-->\n(<s> ^x 1)"))
}
