package soarls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentSymbols_DirectDefinitionsCollapse(t *testing.T) {
	q, dir := newTestQueryBuilder(t)

	assert.Equal(t, []DocumentSymbol{
		{
			Name:           "foo",
			Detail:         "foo a {b 2}",
			Kind:           SymbolFunction,
			Range:          rng(2, 0, 4, 1),
			SelectionRange: rng(2, 5, 2, 8),
		},
		{
			Name:           "rule-a",
			Kind:           SymbolObject,
			Range:          rng(5, 0, 8, 15),
			SelectionRange: rng(5, 0, 8, 15),
		},
	}, q.DocumentSymbols(uriIn(dir, "procs.soar")))
}

func TestDocumentSymbols_PlainCommands(t *testing.T) {
	q, dir := newTestQueryBuilder(t)

	syms := q.DocumentSymbols(uriIn(dir, "load.soar"))
	var names []string
	for _, s := range syms {
		names = append(names, s.Name)
		assert.Equal(t, SymbolEvent, s.Kind)
		assert.Empty(t, s.Children)
	}
	assert.Equal(t, []string{
		"source procs.soar", "set NAME primary", "foo 1 2", "echo $NAME", "source show.soar",
	}, names)
}

func TestDocumentSymbols_MacroKeepsCaller(t *testing.T) {
	w, dir := newTestWorkspace(t, map[string]string{
		"soarAgents.json": `{"entryPoints": [{"path": "load.soar"}]}`,
		"load.soar": "proc mk {n} {\n" +
			"    sp \"$n (state <s>) --> (<s> ^x 1)\"\n" +
			"}\n" +
			"mk r1\n",
	})
	analyzeNow(t, w)

	syms := w.Query().DocumentSymbols(uriIn(dir, "load.soar"))
	require.Len(t, syms, 2)
	assert.Equal(t, "mk", syms[0].Name)
	assert.Equal(t, SymbolFunction, syms[0].Kind)

	assert.Equal(t, "mk r1", syms[1].Name)
	assert.Equal(t, SymbolEvent, syms[1].Kind)
	assert.Equal(t, rng(3, 0, 3, 2), syms[1].SelectionRange)
	require.Len(t, syms[1].Children, 1)
	assert.Equal(t, "r1", syms[1].Children[0].Name)
}

func TestDocumentSymbols_NotAnalysed(t *testing.T) {
	q, dir := newTestQueryBuilder(t)
	assert.Nil(t, q.DocumentSymbols(uriIn(dir, "unrelated.soar")))
}

func TestFoldingRanges(t *testing.T) {
	q, dir := newTestQueryBuilder(t)

	assert.Equal(t, []FoldingRange{
		{StartLine: 0, EndLine: 1, Kind: FoldComment},
		{StartLine: 2, EndLine: 4, Kind: FoldRegion},
		{StartLine: 5, EndLine: 8, Kind: FoldRegion},
	}, q.FoldingRanges(uriIn(dir, "procs.soar")))

	assert.Empty(t, q.FoldingRanges(uriIn(dir, "load.soar")), "single line commands do not fold")
}

func TestFoldingRanges_UsesCurrentText(t *testing.T) {
	w, dir := newTestWorkspace(t, agentFiles)
	analyzeNow(t, w)

	uri := uriIn(dir, "load.soar")
	w.Open(uri, "proc x {} {\n}\n", 2)
	assert.Equal(t, []FoldingRange{{StartLine: 0, EndLine: 1, Kind: FoldRegion}}, w.Query().FoldingRanges(uri))
}
