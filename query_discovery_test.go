package soarls

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompletionContext(t *testing.T) {
	t.Parallel()
	tests := []struct {
		line     string
		prefix   string
		variable bool
	}{
		{"set x [fo", "fo", false},
		{"echo $NA", "NA", true},
		{"echo ${NA", "NA", true},
		{"fo", "fo", false},
		{"a;bc", "bc", false},
		{"x {ab", "ab", false},
		{`puts "ab`, "ab", false},
		{"echo $", "", true},
	}
	for _, tt := range tests {
		prefix, variable := completionContext(tt.line, len(tt.line))
		assert.Equal(t, tt.prefix, prefix, tt.line)
		assert.Equal(t, tt.variable, variable, tt.line)
	}
}

func TestCompletion(t *testing.T) {
	q, dir := newTestQueryBuilder(t)
	load := uriIn(dir, "load.soar")

	assert.Equal(t, []CompletionItem{
		{Label: "foo", Kind: CompletionFunction, Detail: "foo a {b 2}"},
	}, q.Completion(load, pos(2, 2)))

	assert.Equal(t, []CompletionItem{
		{Label: "NAME", Kind: CompletionConstant, Detail: "primary"},
	}, q.Completion(load, pos(3, 8)))

	assert.Empty(t, q.Completion(load, pos(0, 3)), "no procedure starts with sou")
}

func TestSearchSymbols(t *testing.T) {
	q, dir := newTestQueryBuilder(t)

	procs := q.SearchSymbols("fo")
	assert.Len(t, procs, 1, "shared definitions are listed once")
	assert.Equal(t, "foo", procs[0].Name)
	assert.Equal(t, SymbolFunction, procs[0].Kind)
	assert.Equal(t, uriIn(dir, "procs.soar"), procs[0].Location.URI)

	vars := q.SearchSymbols("NA*")
	assert.Len(t, vars, 2)
	assert.Equal(t, []string{"primary", "secondary"}, []string{vars[0].ContainerName, vars[1].ContainerName})

	rules := q.SearchSymbols("rule-*")
	assert.Len(t, rules, 1)
	assert.Equal(t, SymbolObject, rules[0].Kind)

	assert.Empty(t, q.SearchSymbols("zzz"))
}

func TestSummaries(t *testing.T) {
	q, _ := newTestQueryBuilder(t)

	s := q.Summaries()
	assert.Len(t, s, 2)
	assert.Equal(t, "primary", s[0].Entry.Name)
	assert.Equal(t, 3, s[0].Files)
	assert.Equal(t, 1, s[0].Procedures)
	assert.Equal(t, 1, s[0].Variables)
	assert.Equal(t, 1, s[0].Productions)
	assert.Zero(t, s[0].Errors)
	assert.Zero(t, s[0].Warnings)
}
