package tcl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkTree asserts the structural invariants every tree must satisfy.
func checkTree(t *testing.T, tree *Tree) {
	t.Helper()
	root := tree.Node(tree.Root())
	require.Equal(t, KindRoot, root.Kind)
	require.Equal(t, NoNode, root.Parent)
	assert.Equal(t, 0, root.Start)
	assert.Equal(t, len(tree.Text()), root.End)

	seen := 0
	tree.Walk(tree.Root(), func(id NodeID) bool {
		seen++
		n := tree.Node(id)
		assert.LessOrEqual(t, n.Start, n.End, "node %d (%s)", id, n.Kind)
		prevEnd := n.Start
		for _, c := range n.Children {
			child := tree.Node(c)
			assert.Equal(t, id, child.Parent, "parent link of %d", c)
			assert.GreaterOrEqual(t, child.Start, prevEnd, "child %d overlaps its previous sibling", c)
			assert.LessOrEqual(t, child.End, n.End, "child %d escapes parent %d", c, id)
			prevEnd = child.End
		}
		return true
	})
	assert.Equal(t, tree.Len(), seen, "arena holds unreachable nodes")
}

func kinds(tree *Tree, ids []NodeID) []Kind {
	out := make([]Kind, len(ids))
	for i, id := range ids {
		out[i] = tree.Kind(id)
	}
	return out
}

func TestParse_Empty(t *testing.T) {
	t.Parallel()
	tree := Parse("")
	checkTree(t, tree)
	assert.Empty(t, tree.Children(tree.Root()))
	assert.Empty(t, tree.Errors())
}

func TestParse_SimpleCommands(t *testing.T) {
	t.Parallel()
	tree := Parse("set a 1\nset b 2; puts $a\n")
	checkTree(t, tree)
	require.Empty(t, tree.Errors())

	cmds := tree.Children(tree.Root())
	require.Len(t, cmds, 3)
	for _, c := range cmds {
		assert.Equal(t, KindCommand, tree.Kind(c))
	}
	assert.Equal(t, "set a 1", tree.Source(cmds[0]))
	assert.Equal(t, "set b 2", tree.Source(cmds[1]))
	assert.Equal(t, "puts $a", tree.Source(cmds[2]))

	words := tree.Words(cmds[2])
	require.Len(t, words, 2)
	vars := tree.Children(words[1])
	require.Len(t, vars, 1)
	assert.Equal(t, KindVariable, tree.Kind(vars[0]))
	assert.Equal(t, "a", tree.InternalText(vars[0]))
}

func TestParse_WordKinds(t *testing.T) {
	t.Parallel()
	tree := Parse(`cmd plain "quoted $x" {braced {nested}} [inner arg] pre[mid]post`)
	checkTree(t, tree)
	require.Empty(t, tree.Errors())

	cmd := tree.Children(tree.Root())[0]
	words := tree.Words(cmd)
	assert.Equal(t, []Kind{
		KindNormalWord, KindNormalWord, KindQuotedWord, KindBracedWord, KindCommandWord, KindNormalWord,
	}, kinds(tree, words))

	assert.Equal(t, "quoted $x", tree.InternalText(words[2]))
	assert.Equal(t, "braced {nested}", tree.InternalText(words[3]))
	assert.Equal(t, "inner arg", tree.InternalText(words[4]))

	braced := tree.Children(words[3])
	assert.Equal(t, []Kind{KindNormalWord, KindBracedWord}, kinds(tree, braced))

	inner := tree.Children(words[4])
	assert.Equal(t, []Kind{KindNormalWord, KindNormalWord}, kinds(tree, inner))
	assert.Equal(t, "inner", tree.Source(tree.Head(words[4])))

	mixed := tree.Children(words[5])
	require.Len(t, mixed, 1)
	assert.Equal(t, KindCommandWord, tree.Kind(mixed[0]))
}

func TestParse_BracedVariableName(t *testing.T) {
	t.Parallel()
	tree := Parse("puts ${my var}")
	checkTree(t, tree)
	require.Empty(t, tree.Errors())

	var found NodeID = NoNode
	tree.Walk(tree.Root(), func(id NodeID) bool {
		if tree.Kind(id) == KindVariable {
			found = id
		}
		return true
	})
	require.NotEqual(t, NoNode, found)
	assert.Equal(t, "my var", tree.InternalText(found))
	assert.Equal(t, "${my var}", tree.Source(found))
}

func TestParse_DollarWithoutName(t *testing.T) {
	t.Parallel()
	tree := Parse("puts $ 5$")
	checkTree(t, tree)
	tree.Walk(tree.Root(), func(id NodeID) bool {
		assert.NotEqual(t, KindVariable, tree.Kind(id))
		return true
	})
}

func TestParse_CommentBlock(t *testing.T) {
	t.Parallel()
	src := "# first\n  # second\nproc a {} {}\n\n# lone\n\nset x 1\n"
	tree := Parse(src)
	checkTree(t, tree)

	top := tree.Children(tree.Root())
	assert.Equal(t, []Kind{KindComment, KindCommand, KindComment, KindCommand}, kinds(tree, top))
	assert.Equal(t, "# first\n  # second\n", tree.Source(top[0]))
	assert.Equal(t, top[0], tree.PrevSibling(top[1]))
}

func TestParse_LineContinuation(t *testing.T) {
	t.Parallel()
	tree := Parse("set a \\\n    1\nset b 2\n")
	checkTree(t, tree)
	cmds := tree.Children(tree.Root())
	require.Len(t, cmds, 2)
	assert.Len(t, tree.Words(cmds[0]), 3)
}

func TestParse_SemicolonInsideQuotesAndBrackets(t *testing.T) {
	t.Parallel()
	tree := Parse(`puts "a;b" [set x 1; set y 2]`)
	checkTree(t, tree)
	require.Empty(t, tree.Errors())
	cmds := tree.Children(tree.Root())
	require.Len(t, cmds, 1)
	words := tree.Words(cmds[0])
	require.Len(t, words, 3)
	assert.Equal(t, "a;b", tree.InternalText(words[1]))
}

func TestParse_ProcScenario(t *testing.T) {
	t.Parallel()
	tree := Parse("proc foo {a b} {return $a}\nfoo 1 2\n")
	checkTree(t, tree)
	require.Empty(t, tree.Errors())

	cmds := tree.Children(tree.Root())
	require.Len(t, cmds, 2)
	words := tree.Words(cmds[0])
	require.Len(t, words, 4)
	assert.Equal(t, "a b", tree.InternalText(words[2]))
	assert.Equal(t, "return $a", tree.InternalText(words[3]))
	assert.Equal(t, "foo", tree.Source(tree.Head(cmds[1])))
}

func TestParse_UnterminatedBraceResyncs(t *testing.T) {
	t.Parallel()
	src := "set x 99\nsp {test\nset p hello\n"
	tree := Parse(src)
	checkTree(t, tree)

	errs := tree.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, MsgMissingBrace, errs[0].Message)
	assert.Equal(t, 12, errs[0].Start)
	assert.Equal(t, 18, errs[0].End)

	cmds := tree.Children(tree.Root())
	require.Len(t, cmds, 3)
	assert.NotNil(t, tree.Node(cmds[1]).Err)
	assert.Equal(t, "sp {test\n", tree.Source(cmds[1]))
	assert.Equal(t, "set p hello", tree.Source(cmds[2]))
	assert.Nil(t, tree.Node(cmds[2]).Err)
}

func TestParse_UnterminatedQuoteResyncs(t *testing.T) {
	t.Parallel()
	tree := Parse("set a \"abc\nset b 2\n")
	checkTree(t, tree)

	errs := tree.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, MsgMissingQuote, errs[0].Message)

	cmds := tree.Children(tree.Root())
	require.Len(t, cmds, 2)
	assert.Equal(t, "set b 2", tree.Source(cmds[1]))
}

func TestParse_UnterminatedBracket(t *testing.T) {
	t.Parallel()
	tree := Parse("puts [foo bar")
	checkTree(t, tree)
	errs := tree.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, MsgMissingBracket, errs[0].Message)
	assert.Equal(t, 5, errs[0].Start)
	assert.Equal(t, 13, errs[0].End)
}

func TestParse_NestedErrorReportedOnce(t *testing.T) {
	t.Parallel()
	tree := Parse(`puts "a [b {c`)
	checkTree(t, tree)
	require.Len(t, tree.Errors(), 1)
	assert.Equal(t, MsgMissingBrace, tree.Errors()[0].Message)
}

func TestParse_IndentedLinesDoNotResync(t *testing.T) {
	t.Parallel()
	src := "proc p {} {\n  set a 1\n  set b 2\nset c 3\n"
	tree := Parse(src)
	checkTree(t, tree)
	cmds := tree.Children(tree.Root())
	require.Len(t, cmds, 2)
	assert.Equal(t, "set c 3", tree.Source(cmds[1]))
}

func TestParse_AlwaysATree(t *testing.T) {
	t.Parallel()
	inputs := []string{
		"{", "}", "\"", "[", "]", "$", "${", "\\", "\\\n", ";;;", "[[[", "}}}{{{",
		"#", "# only a comment", "\n\n\n", "\r\n\r\n", "a\r\nb\rc",
		"set a {\nproc b {} {\n", "set \"x\n\"y [z\n$", "\x00\xff{[\"",
		"sp {a\n(state <s>)\n-->\n(<s> ^x 1)\n", "a[b[c[d", "x ${a b",
	}
	for _, in := range inputs {
		tree := Parse(in)
		require.NotNil(t, tree, "input %q", in)
		checkTree(t, tree)
	}
}

func TestTree_NodeAt(t *testing.T) {
	t.Parallel()
	src := "foo $bar [baz]"
	tree := Parse(src)

	id := tree.NodeAt(6)
	assert.Equal(t, KindVariableName, tree.Kind(id))
	assert.Equal(t, KindVariable, tree.Kind(tree.Parent(id)))

	id = tree.NodeAt(1)
	assert.Equal(t, KindNormalWord, tree.Kind(id))
	assert.Equal(t, "foo", tree.Source(id))

	id = tree.NodeAt(11)
	assert.Equal(t, "baz", tree.Source(id))
	assert.NotEqual(t, NoNode, tree.Ancestor(id, KindCommandWord))

	assert.Equal(t, tree.Root(), tree.NodeAt(100))
}

func TestTree_Contains(t *testing.T) {
	t.Parallel()
	tree := Parse("proc a {} { b $c }\nd")
	cmds := tree.Children(tree.Root())
	inner := tree.NodeAt(12)
	assert.True(t, tree.Contains(cmds[0], inner))
	assert.False(t, tree.Contains(cmds[1], inner))
}

func FuzzParse(f *testing.F) {
	for _, seed := range []string{"", "set a 1", "proc f {a {b 2}} {return [expr $a+$b]}", "sp {x\n", "\"[{$"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, in string) {
		checkTree(t, Parse(in))
	})
}

func TestMatchDelimiters(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 9, MatchBracket("[a {]} b]c", 0))
	assert.Equal(t, 5, MatchBracket("x[ab]", 1))
	assert.Equal(t, -1, MatchBracket("[abc", 0))
	assert.Equal(t, -1, MatchBracket("abc", 0))
	assert.Equal(t, 7, MatchBrace("{a {b}}", 0))
	assert.Equal(t, -1, MatchBrace("{a {b}", 0))
	assert.Equal(t, 6, MatchQuote(`"a\"b" c`, 0))
}
