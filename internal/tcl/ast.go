// Package tcl parses the Tcl-like macro language that Soar agents are
// written in. The parser never fails: it always returns a Tree, and syntax
// problems are reported through Tree.Errors.
package tcl

import "fmt"

// Kind identifies the syntactic role of a Node.
type Kind uint8

const (
	KindRoot Kind = iota
	KindComment
	KindCommand
	KindNormalWord
	KindQuotedWord
	KindBracedWord
	KindCommandWord
	KindVariable
	KindVariableName
)

var kindNames = [...]string{
	KindRoot:         "Root",
	KindComment:      "Comment",
	KindCommand:      "Command",
	KindNormalWord:   "NormalWord",
	KindQuotedWord:   "QuotedWord",
	KindBracedWord:   "BracedWord",
	KindCommandWord:  "CommandWord",
	KindVariable:     "Variable",
	KindVariableName: "VariableName",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// IsWord reports whether nodes of this kind appear as words of a command.
func (k Kind) IsWord() bool {
	switch k {
	case KindNormalWord, KindQuotedWord, KindBracedWord, KindCommandWord:
		return true
	}
	return false
}

// NodeID addresses a node inside the arena of its Tree.
type NodeID int32

// NoNode is the zero value for "no such node", e.g. the parent of the root.
const NoNode NodeID = -1

// Node is one entry of the arena. Start and End are byte offsets into the
// parsed text, half-open. A parent's span contains all of its children and
// siblings are ordered by Start without overlapping.
type Node struct {
	Kind     Kind
	Start    int
	End      int
	Parent   NodeID
	Children []NodeID
	Err      *Error
}

// Len returns the number of bytes covered by the node.
func (n Node) Len() int { return n.End - n.Start }

// Error is a recoverable syntax error.
type Error struct {
	Start   int
	End     int
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("%d-%d: %s", e.Start, e.End, e.Message)
}

// Tree is an immutable parse result. The root is always NodeID 0.
type Tree struct {
	text  string
	nodes []Node
	errs  []Error
}

// Root returns the root node ID.
func (t *Tree) Root() NodeID { return 0 }

// Text returns the text the tree was parsed from.
func (t *Tree) Text() string { return t.text }

// Len returns the number of nodes reachable from the root.
func (t *Tree) Len() int { return len(t.nodes) }

// Errors returns the syntax errors collected while parsing, in source order.
func (t *Tree) Errors() []Error { return t.errs }

// Node returns the node with the given ID. It panics on an out of range ID
// in the same way a slice index would.
func (t *Tree) Node(id NodeID) Node { return t.nodes[id] }

// Kind returns the kind of node id.
func (t *Tree) Kind(id NodeID) Kind { return t.nodes[id].Kind }

// Parent returns the parent of id, or NoNode for the root.
func (t *Tree) Parent(id NodeID) NodeID { return t.nodes[id].Parent }

// Children returns the ordered children of id. The slice must not be modified.
func (t *Tree) Children(id NodeID) []NodeID { return t.nodes[id].Children }

// Source returns the exact text covered by id.
func (t *Tree) Source(id NodeID) string {
	n := t.nodes[id]
	return t.text[n.Start:n.End]
}

// InternalText returns the text of id without its delimiters: braces for
// braced words, quotes for quoted words, brackets for command words and the
// dollar sign for variables.
func (t *Tree) InternalText(id NodeID) string {
	n := t.nodes[id]
	switch n.Kind {
	case KindBracedWord, KindQuotedWord, KindCommandWord:
		start, end := n.Start+1, n.End
		if n.Err == nil && end > start {
			end--
		}
		if start > end {
			return ""
		}
		return t.text[start:end]
	case KindVariable:
		for _, c := range n.Children {
			if t.nodes[c].Kind == KindVariableName {
				return t.Source(c)
			}
		}
		return ""
	}
	return t.text[n.Start:n.End]
}

// Walk visits id and its descendants in pre-order. Returning false from fn
// skips the children of the node just visited.
func (t *Tree) Walk(id NodeID, fn func(NodeID) bool) {
	if !fn(id) {
		return
	}
	for _, c := range t.nodes[id].Children {
		t.Walk(c, fn)
	}
}

// NodeAt returns the deepest node whose span contains offset. The root is
// returned when no other node does.
func (t *Tree) NodeAt(offset int) NodeID {
	id := t.Root()
	for {
		next := NoNode
		for _, c := range t.nodes[id].Children {
			n := t.nodes[c]
			if n.Start > offset {
				break
			}
			if offset < n.End {
				next = c
				break
			}
		}
		if next == NoNode {
			return id
		}
		id = next
	}
}

// Ancestor returns the closest ancestor of id (including id itself) of the
// given kind, or NoNode.
func (t *Tree) Ancestor(id NodeID, kind Kind) NodeID {
	for id != NoNode {
		if t.nodes[id].Kind == kind {
			return id
		}
		id = t.nodes[id].Parent
	}
	return NoNode
}

// Contains reports whether id is ancestor or a descendant of ancestor.
func (t *Tree) Contains(ancestor, id NodeID) bool {
	for id != NoNode {
		if id == ancestor {
			return true
		}
		id = t.nodes[id].Parent
	}
	return false
}

// PrevSibling returns the sibling immediately before id, or NoNode.
func (t *Tree) PrevSibling(id NodeID) NodeID {
	parent := t.nodes[id].Parent
	if parent == NoNode {
		return NoNode
	}
	siblings := t.nodes[parent].Children
	for i, c := range siblings {
		if c == id {
			if i == 0 {
				return NoNode
			}
			return siblings[i-1]
		}
	}
	return NoNode
}

// Words returns the word children of a command or command word.
func (t *Tree) Words(id NodeID) []NodeID {
	var words []NodeID
	for _, c := range t.nodes[id].Children {
		if t.nodes[c].Kind.IsWord() {
			words = append(words, c)
		}
	}
	return words
}

// Head returns the first word of a command or command word when it is a
// plain NormalWord, which is the only form that names a command statically.
func (t *Tree) Head(id NodeID) NodeID {
	for _, c := range t.nodes[id].Children {
		if t.nodes[c].Kind == KindNormalWord {
			return c
		}
		if t.nodes[c].Kind.IsWord() {
			return NoNode
		}
	}
	return NoNode
}
